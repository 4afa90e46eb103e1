package services

import (
	"fmt"
	"os"
	"strings"

	"github.com/Robin318-Gamer/StoryReader/internal/models"
	"gopkg.in/yaml.v3"
)

// DefaultVoice is used when a request specifies no voice.
const DefaultVoice = "yue-HK-Standard-A"

// VoiceTable maps a voice identifier's leading token to its language/locale.
// The provider requires a languageCode consistent with the voice name, and
// the markup generator uses the language name for its prompt. Unknown
// prefixes fall back to the configured default locale.
type VoiceTable struct {
	prefixes         []voicePrefix
	fallbackLocale   string
	fallbackLanguage string
}

type voicePrefix struct {
	Prefix   string `yaml:"prefix"`
	Locale   string `yaml:"language_code"`
	Language string `yaml:"language"`
}

type voiceTableFile struct {
	Default  string        `yaml:"default"`
	Prefixes []voicePrefix `yaml:"prefixes"`
}

// DefaultVoiceTable returns the built-in prefix table.
func DefaultVoiceTable() *VoiceTable {
	return &VoiceTable{
		prefixes: []voicePrefix{
			{Prefix: "yue", Locale: "yue-HK", Language: "Cantonese"},
			{Prefix: "cmn", Locale: "cmn-CN", Language: "Mandarin Chinese"},
			{Prefix: "en", Locale: "en-US", Language: "English"},
			{Prefix: "ja", Locale: "ja-JP", Language: "Japanese"},
			{Prefix: "ko", Locale: "ko-KR", Language: "Korean"},
			{Prefix: "fr", Locale: "fr-FR", Language: "French"},
		},
		fallbackLocale:   "yue-HK",
		fallbackLanguage: "Cantonese",
	}
}

// LoadVoiceTable reads a prefix table from a YAML file. An empty path
// returns the built-in table.
func LoadVoiceTable(path string) (*VoiceTable, error) {
	if path == "" {
		return DefaultVoiceTable(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read voice table %s: %w", path, err)
	}

	var file voiceTableFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse voice table %s: %w", path, err)
	}

	if len(file.Prefixes) == 0 {
		return nil, fmt.Errorf("voice table %s defines no prefixes", path)
	}

	table := &VoiceTable{
		prefixes:         file.Prefixes,
		fallbackLocale:   file.Default,
		fallbackLanguage: "English",
	}
	if table.fallbackLocale == "" {
		table.fallbackLocale = "yue-HK"
	}
	for _, p := range file.Prefixes {
		if p.Locale == table.fallbackLocale {
			table.fallbackLanguage = p.Language
			break
		}
	}
	return table, nil
}

// LanguageCode derives the locale for a voice identifier from its prefix.
func (t *VoiceTable) LanguageCode(voiceID string) string {
	for _, p := range t.prefixes {
		if strings.HasPrefix(voiceID, p.Prefix) {
			return p.Locale
		}
	}
	return t.fallbackLocale
}

// LanguageName returns the human-readable language for a voice identifier.
func (t *VoiceTable) LanguageName(voiceID string) string {
	for _, p := range t.prefixes {
		if strings.HasPrefix(voiceID, p.Prefix) {
			return p.Language
		}
	}
	return t.fallbackLanguage
}

// Voices lists the table contents for the voices endpoint.
func (t *VoiceTable) Voices() []models.VoiceInfo {
	infos := make([]models.VoiceInfo, len(t.prefixes))
	for i, p := range t.prefixes {
		infos[i] = models.VoiceInfo{
			Prefix:       p.Prefix,
			LanguageCode: p.Locale,
			Language:     p.Language,
		}
	}
	return infos
}

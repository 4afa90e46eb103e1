package services

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLanguageCodePrefixes(t *testing.T) {
	table := DefaultVoiceTable()

	cases := map[string]string{
		"yue-HK-Standard-A": "yue-HK",
		"cmn-CN-Wavenet-B":  "cmn-CN",
		"en-US-Neural2-C":   "en-US",
		"ja-JP-Standard-A":  "ja-JP",
		"ko-KR-Standard-B":  "ko-KR",
		"fr-FR-Wavenet-A":   "fr-FR",
	}

	for voice, want := range cases {
		if got := table.LanguageCode(voice); got != want {
			t.Errorf("LanguageCode(%q) = %q, want %q", voice, got, want)
		}
	}
}

func TestLanguageCodeUnknownPrefixFallsBack(t *testing.T) {
	table := DefaultVoiceTable()

	if got := table.LanguageCode("xx-ZZ-Standard-A"); got != "yue-HK" {
		t.Errorf("expected fallback locale yue-HK, got %q", got)
	}
	if got := table.LanguageName("xx-ZZ-Standard-A"); got != "Cantonese" {
		t.Errorf("expected fallback language Cantonese, got %q", got)
	}
}

func TestLoadVoiceTableEmptyPathReturnsDefault(t *testing.T) {
	table, err := LoadVoiceTable("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := table.LanguageCode("en-GB-Standard-A"); got != "en-US" {
		t.Errorf("default table not loaded, LanguageCode = %q", got)
	}
}

func TestLoadVoiceTableFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voices.yaml")
	content := `default: de-DE
prefixes:
  - prefix: de
    language_code: de-DE
    language: German
  - prefix: en
    language_code: en-GB
    language: English
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write table: %v", err)
	}

	table, err := LoadVoiceTable(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := table.LanguageCode("de-DE-Standard-A"); got != "de-DE" {
		t.Errorf("LanguageCode = %q, want de-DE", got)
	}
	if got := table.LanguageName("en-GB-Standard-A"); got != "English" {
		t.Errorf("LanguageName = %q, want English", got)
	}
	if got := table.LanguageCode("yue-HK-Standard-A"); got != "de-DE" {
		t.Errorf("unknown prefix should use configured default, got %q", got)
	}
	if got := table.LanguageName("xx"); got != "German" {
		t.Errorf("fallback language should follow default locale, got %q", got)
	}
}

func TestLoadVoiceTableRejectsEmptyPrefixList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voices.yaml")
	if err := os.WriteFile(path, []byte("default: en-US\n"), 0o644); err != nil {
		t.Fatalf("failed to write table: %v", err)
	}

	if _, err := LoadVoiceTable(path); err == nil {
		t.Error("expected error for table with no prefixes")
	}
}

func TestVoicesListing(t *testing.T) {
	infos := DefaultVoiceTable().Voices()
	if len(infos) != 6 {
		t.Fatalf("expected 6 voice prefixes, got %d", len(infos))
	}
	if infos[0].Prefix != "yue" || infos[0].LanguageCode != "yue-HK" {
		t.Errorf("unexpected first entry: %+v", infos[0])
	}
}

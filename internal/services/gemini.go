package services

import (
	"context"
	"fmt"
	"log"

	"google.golang.org/genai"
)

// ---------------------------------------------------------------------------
// Gemini speech-markup generation
// Uses the Google Gen AI SDK to turn plain text into storyteller SSML.
// Long input is split and each part generated separately, then joined with
// a pause between parts.
// ---------------------------------------------------------------------------

const geminiMarkupModel = "gemini-2.0-flash"

// GeminiMarkupService generates storyteller SSML via the Gemini API.
type GeminiMarkupService struct {
	apiKey string
	model  string
	voices *VoiceTable
}

var _ MarkupService = (*GeminiMarkupService)(nil)

func NewGeminiMarkupService(apiKey string, voices *VoiceTable) *GeminiMarkupService {
	return &GeminiMarkupService{
		apiKey: apiKey,
		model:  geminiMarkupModel,
		voices: voices,
	}
}

// GenerateSpeechMarkup converts plain text into inner SSML (no <speak>
// wrapper). Implements the MarkupService interface.
func (s *GeminiMarkupService) GenerateSpeechMarkup(ctx context.Context, text, voiceID string) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  s.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create genai client: %w", err)
	}

	language := s.voices.LanguageName(voiceID)
	pieces := splitForMarkup(text)

	log.Printf("[Gemini] Generating storyteller SSML (model=%s, language=%s, textLen=%d, parts=%d)",
		s.model, language, len(text), len(pieces))

	parts := make([]string, 0, len(pieces))
	for i, piece := range pieces {
		prompt := buildMarkupPrompt(piece, language, i+1, len(pieces))

		resp, err := client.Models.GenerateContent(ctx, s.model, genai.Text(prompt), &genai.GenerateContentConfig{
			Temperature:     genai.Ptr[float32](0.7),
			MaxOutputTokens: 8192,
			CandidateCount:  1,
		})
		if err != nil {
			return "", fmt.Errorf("gemini request failed for part %d/%d: %w", i+1, len(pieces), err)
		}

		markup := cleanMarkupOutput(resp.Text())
		if markup == "" {
			return "", fmt.Errorf("gemini returned no markup for part %d/%d", i+1, len(pieces))
		}

		log.Printf("[Gemini] Part %d/%d generated (%d characters)", i+1, len(pieces), len(markup))
		parts = append(parts, markup)
	}

	return joinMarkupParts(parts), nil
}

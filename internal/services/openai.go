package services

import (
	"context"
	"fmt"
	"log"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIMarkupService generates storyteller SSML via OpenAI chat completion.
// Used as the markup provider when only an OpenAI key is configured.
type OpenAIMarkupService struct {
	client *openai.Client
	model  string
	voices *VoiceTable
}

var _ MarkupService = (*OpenAIMarkupService)(nil)

func NewOpenAIMarkupService(apiKey string, voices *VoiceTable) *OpenAIMarkupService {
	return &OpenAIMarkupService{
		client: openai.NewClient(apiKey),
		model:  openai.GPT4oMini,
		voices: voices,
	}
}

// GenerateSpeechMarkup converts plain text into inner SSML (no <speak>
// wrapper). Implements the MarkupService interface.
func (s *OpenAIMarkupService) GenerateSpeechMarkup(ctx context.Context, text, voiceID string) (string, error) {
	language := s.voices.LanguageName(voiceID)
	pieces := splitForMarkup(text)

	log.Printf("[OpenAI markup] Generating storyteller SSML (model=%s, language=%s, textLen=%d, parts=%d)",
		s.model, language, len(text), len(pieces))

	parts := make([]string, 0, len(pieces))
	for i, piece := range pieces {
		prompt := buildMarkupPrompt(piece, language, i+1, len(pieces))

		resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: s.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			Temperature: 0.7,
		})
		if err != nil {
			return "", fmt.Errorf("openai request failed for part %d/%d: %w", i+1, len(pieces), err)
		}

		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("no response from openai for part %d/%d", i+1, len(pieces))
		}

		markup := cleanMarkupOutput(resp.Choices[0].Message.Content)
		if markup == "" {
			return "", fmt.Errorf("openai returned no markup for part %d/%d", i+1, len(pieces))
		}

		log.Printf("[OpenAI markup] Part %d/%d generated (%d characters)", i+1, len(pieces), len(markup))
		parts = append(parts, markup)
	}

	return joinMarkupParts(parts), nil
}

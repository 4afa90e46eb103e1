package services

import (
	"context"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Speech markup generation
// Turns plain text into expressive SSML for storytelling. Two providers
// implement the interface: Gemini (preferred) and OpenAI (fallback when only
// an OpenAI key is configured). Both return the inner SSML without a
// <speak> wrapper — the synthesis client adds the envelope per segment.
// ---------------------------------------------------------------------------

// MarkupService generates speech-synthesis markup from plain text.
type MarkupService interface {
	GenerateSpeechMarkup(ctx context.Context, text, voiceID string) (string, error)
}

// markupMaxInputChars bounds a single generation call's input; longer text
// is split at paragraph/sentence boundaries and the results joined.
const markupMaxInputChars = 15000

// markupPartBreak separates independently generated parts in the final SSML.
const markupPartBreak = `<break time="1.5s"/>`

func buildMarkupPrompt(text, language string, part, total int) string {
	var b strings.Builder

	b.WriteString("You are an expert in Google Cloud Text-to-Speech SSML (Speech Synthesis Markup Language).\n\n")
	fmt.Fprintf(&b, "Your task: Convert the following %s text into SSML markup optimized for engaging storytelling.\n\n", language)

	if total > 1 {
		fmt.Fprintf(&b, "NOTE: This is part %d of %d in a longer story. Maintain storytelling continuity.\n\n", part, total)
	}

	b.WriteString(`Guidelines:
1. DO NOT add opening <speak> or closing </speak> tags (they will be added automatically)
2. Use <s> tags for sentences and <p> tags for paragraphs
3. Add <break time="..."/> for natural pauses (300ms-800ms between sentences, 1s between paragraphs)
4. Use <prosody> to adjust rate, pitch and volume
5. Use <emphasis level="strong"> for important words or dramatic moments
6. Vary prosody throughout to make it engaging
7. For questions, increase pitch slightly
8. For dramatic moments, slow down rate and add pauses
9. Output ONLY the SSML content (no <speak> wrapper, no explanations)

Text to convert:
"""
`)
	b.WriteString(text)
	b.WriteString("\n\"\"\"\n\nSSML Output (without <speak> wrapper):")

	return b.String()
}

// cleanMarkupOutput strips code fences and any speak wrapper a model adds
// despite the prompt.
func cleanMarkupOutput(s string) string {
	s = strings.ReplaceAll(s, "```xml", "")
	s = strings.ReplaceAll(s, "```", "")
	s = strings.TrimSpace(s)

	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "<speak>") {
		s = strings.TrimSpace(s[len("<speak>"):])
	}
	lower = strings.ToLower(s)
	if strings.HasSuffix(lower, "</speak>") {
		s = strings.TrimSpace(s[:len(s)-len("</speak>")])
	}
	return s
}

func joinMarkupParts(parts []string) string {
	return strings.Join(parts, markupPartBreak)
}

// splitForMarkup splits long input at paragraph boundaries, then sentence
// boundaries, so each piece stays within the generation model's input limit.
func splitForMarkup(text string) []string {
	if len(text) <= markupMaxInputChars {
		return []string{text}
	}

	var chunks []string
	var cur strings.Builder

	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, strings.TrimSpace(cur.String()))
			cur.Reset()
		}
	}

	for _, paragraph := range strings.Split(text, "\n\n") {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}

		if len(paragraph) > markupMaxInputChars {
			flush()
			for _, sentence := range splitSentences(paragraph) {
				if cur.Len() > 0 && cur.Len()+len(sentence) > markupMaxInputChars {
					flush()
				}
				cur.WriteString(sentence)
			}
			continue
		}

		if cur.Len() > 0 && cur.Len()+2+len(paragraph) > markupMaxInputChars {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(paragraph)
	}

	flush()
	return chunks
}

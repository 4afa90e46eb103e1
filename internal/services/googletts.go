package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/Robin318-Gamer/StoryReader/internal/models"
)

// ---------------------------------------------------------------------------
// Google Cloud Text-to-Speech Service
// One REST call per text segment; the response body carries base64 MP3.
// The client performs no retries — retry policy belongs to the pipeline.
// ---------------------------------------------------------------------------

const (
	googleTTSBaseURL = "https://texttospeech.googleapis.com/v1/text:synthesize"

	// speakEnvelope wraps markup segments per call. Its overhead must fit
	// inside MaxRequestBytes - ChunkByteCeiling.
	speakOpenTag  = "<speak>"
	speakCloseTag = "</speak>"
)

// SynthesisFailure is returned when the provider rejects or errors on a
// segment. The provider's own message is preserved for the caller.
type SynthesisFailure struct {
	Reason          string
	ProviderMessage string
}

func (e *SynthesisFailure) Error() string {
	if e.ProviderMessage != "" {
		return fmt.Sprintf("synthesis failed: %s: %s", e.Reason, e.ProviderMessage)
	}
	return fmt.Sprintf("synthesis failed: %s", e.Reason)
}

// GoogleTTSService converts one text segment into MP3 audio per call.
type GoogleTTSService struct {
	apiKey  string
	baseURL string
	voices  *VoiceTable
	client  *http.Client
}

func NewGoogleTTSService(apiKey string, voices *VoiceTable) *GoogleTTSService {
	return &GoogleTTSService{
		apiKey:  apiKey,
		baseURL: googleTTSBaseURL,
		voices:  voices,
		client:  &http.Client{Timeout: 90 * time.Second},
	}
}

// NewGoogleTTSServiceWithBaseURL is used by tests to point at a stub server.
func NewGoogleTTSServiceWithBaseURL(apiKey, baseURL string, voices *VoiceTable) *GoogleTTSService {
	svc := NewGoogleTTSService(apiKey, voices)
	svc.baseURL = baseURL
	return svc
}

// Request/response types for the synthesize endpoint.

type googleTTSInput struct {
	Text string `json:"text,omitempty"`
	SSML string `json:"ssml,omitempty"`
}

type googleTTSVoice struct {
	LanguageCode string `json:"languageCode"`
	Name         string `json:"name"`
}

type googleTTSAudioConfig struct {
	AudioEncoding string  `json:"audioEncoding"`
	SpeakingRate  float64 `json:"speakingRate"`
}

type googleTTSRequest struct {
	Input       googleTTSInput       `json:"input"`
	Voice       googleTTSVoice       `json:"voice"`
	AudioConfig googleTTSAudioConfig `json:"audioConfig"`
}

type googleTTSResponse struct {
	AudioContent string `json:"audioContent"`
}

type googleTTSError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Synthesize runs one remote synthesis call for a single segment and returns
// its MP3 bytes. Markup segments are wrapped in a speak envelope; the
// chunker's safety margin guarantees the wrapped payload stays under the
// provider's hard limit.
func (s *GoogleTTSService) Synthesize(ctx context.Context, segment models.TextSegment, kind models.ContentKind, voiceID string, rate float64) (models.AudioSegment, error) {
	input := googleTTSInput{Text: segment.Payload}
	payloadBytes := segment.ByteSize
	if kind == models.ContentMarkupSpeech {
		input = googleTTSInput{SSML: speakOpenTag + segment.Payload + speakCloseTag}
		payloadBytes += len(speakOpenTag) + len(speakCloseTag)
	}

	if payloadBytes > MaxRequestBytes {
		return models.AudioSegment{}, &SynthesisFailure{
			Reason: fmt.Sprintf("segment %d exceeds provider limit (%d > %d bytes)", segment.Ordinal, payloadBytes, MaxRequestBytes),
		}
	}

	reqBody := googleTTSRequest{
		Input: input,
		Voice: googleTTSVoice{
			LanguageCode: s.voices.LanguageCode(voiceID),
			Name:         voiceID,
		},
		AudioConfig: googleTTSAudioConfig{
			AudioEncoding: "MP3",
			SpeakingRate:  rate,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return models.AudioSegment{}, fmt.Errorf("failed to marshal synthesis request: %w", err)
	}

	url := fmt.Sprintf("%s?key=%s", s.baseURL, s.apiKey)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return models.AudioSegment{}, fmt.Errorf("failed to create synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	log.Printf("[GoogleTTS] Synthesizing segment %d (voice=%s, rate=%.2f, %d bytes)",
		segment.Ordinal, voiceID, rate, segment.ByteSize)

	resp, err := s.client.Do(req)
	if err != nil {
		return models.AudioSegment{}, &SynthesisFailure{Reason: "request failed", ProviderMessage: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		var provErr googleTTSError
		msg := string(body)
		if json.Unmarshal(body, &provErr) == nil && provErr.Error.Message != "" {
			msg = provErr.Error.Message
		}
		return models.AudioSegment{}, &SynthesisFailure{
			Reason:          fmt.Sprintf("provider returned status %d", resp.StatusCode),
			ProviderMessage: msg,
		}
	}

	var result googleTTSResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return models.AudioSegment{}, &SynthesisFailure{Reason: "failed to decode provider response", ProviderMessage: err.Error()}
	}

	audio, err := base64.StdEncoding.DecodeString(result.AudioContent)
	if err != nil {
		return models.AudioSegment{}, &SynthesisFailure{Reason: "invalid base64 audio in provider response", ProviderMessage: err.Error()}
	}
	if len(audio) == 0 {
		return models.AudioSegment{}, &SynthesisFailure{Reason: "provider returned empty audio"}
	}

	log.Printf("[GoogleTTS] Segment %d synthesized (%d bytes)", segment.Ordinal, len(audio))

	return models.AudioSegment{
		Ordinal: segment.Ordinal,
		Bytes:   audio,
		Source:  segment,
	}, nil
}

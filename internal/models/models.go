package models

import (
	"time"

	"github.com/google/uuid"
)

// Enums

// ContentKind distinguishes plain narration text from SSML markup.
// Markup requests are never served from cache and are chunked as opaque
// text, since generated markup may differ between identical inputs.
type ContentKind string

const (
	ContentPlainText    ContentKind = "text"
	ContentMarkupSpeech ContentKind = "ssml"
)

type ProcessingStatus string

const (
	ProcessingStatusCompleted ProcessingStatus = "completed"
	ProcessingStatusFailed    ProcessingStatus = "failed"
)

// SynthesisRequest is one validated pipeline run's input.
type SynthesisRequest struct {
	Content           string      `json:"content"`
	ContentKind       ContentKind `json:"content_kind"`
	VoiceID           string      `json:"voice_id"`
	Rate              float64     `json:"rate"`
	RequesterIdentity string      `json:"requester_identity"`
	Title             *string     `json:"title,omitempty"`
	// OriginalText carries the pre-markup plain text when Content holds
	// generated SSML, so history keeps both forms.
	OriginalText string `json:"original_text,omitempty"`
}

// TextSegment is one provider-legal slice of the request content.
type TextSegment struct {
	Ordinal  int    `json:"ordinal"`
	Payload  string `json:"payload"`
	ByteSize int    `json:"byte_size"`
}

// AudioSegment is the synthesized audio for one TextSegment. It is owned
// by a single pipeline run and never shared across requests.
type AudioSegment struct {
	Ordinal int
	Bytes   []byte
	Source  TextSegment
}

// SynthesisResult is the immutable outcome of one successful run.
type SynthesisResult struct {
	AudioURL       string `json:"audio_url"`
	SegmentCount   int    `json:"segment_count"`
	CharacterCount int    `json:"character_count"`
	FromCache      bool   `json:"from_cache"`
	// HistoryWarning is set when the run succeeded but the history append
	// failed; the audio URL is still valid.
	HistoryWarning string `json:"history_warning,omitempty"`
}

// ProgressEvent is one entry in the ordered progress stream of a run.
// Percent is non-decreasing until a terminal event; a terminal error
// event reports percent 0 with Error set.
type ProgressEvent struct {
	Percent  int                    `json:"progress"`
	Message  string                 `json:"message"`
	Error    bool                   `json:"error,omitempty"`
	Terminal bool                   `json:"-"`
	Payload  map[string]interface{} `json:"-"`
}

// HistoryEntry mirrors one tts_history row.
type HistoryEntry struct {
	ID               uuid.UUID        `json:"id"`
	UserID           string           `json:"user_id"`
	Title            *string          `json:"title,omitempty"`
	Text             string           `json:"text"`
	OriginalText     *string          `json:"original_text,omitempty"`
	SSMLContent      *string          `json:"ssml_content,omitempty"`
	Voice            string           `json:"voice"`
	Speed            float64          `json:"speed"`
	AudioURL         string           `json:"audio_url"`
	ProcessingStatus ProcessingStatus `json:"processing_status"`
	CreatedAt        time.Time        `json:"created_at"`
}

// DTOs for API requests/responses

type SynthesizeRequest struct {
	Text    string   `json:"text"`
	Voice   string   `json:"voice,omitempty"`
	Speed   *float64 `json:"speed,omitempty"`
	Title   *string  `json:"title,omitempty"`
	UseSSML bool     `json:"useSSML,omitempty"`
}

type SynthesizeResponse struct {
	AudioURL       string  `json:"audioUrl"`
	CharacterCount int     `json:"characterCount"`
	Voice          string  `json:"voice"`
	Speed          float64 `json:"speed"`
	Cached         bool    `json:"cached"`
	InsertError    *string `json:"insertError,omitempty"`
}

type ListHistoryResponse struct {
	Entries []HistoryEntry `json:"entries"`
	Total   int            `json:"total"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
}

type VoiceInfo struct {
	Prefix       string `json:"prefix"`
	LanguageCode string `json:"language_code"`
	Language     string `json:"language"`
}

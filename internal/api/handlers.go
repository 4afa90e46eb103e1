package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Robin318-Gamer/StoryReader/internal/db"
	"github.com/Robin318-Gamer/StoryReader/internal/models"
	"github.com/Robin318-Gamer/StoryReader/internal/pipeline"
	"github.com/Robin318-Gamer/StoryReader/internal/services"
)

// Runner executes one synthesis request end to end.
type Runner interface {
	Run(ctx context.Context, req models.SynthesisRequest, em *pipeline.Emitter) (*models.SynthesisResult, error)
}

type Handler struct {
	pipeline Runner
	markup   services.MarkupService
	db       *db.DB
	voices   *services.VoiceTable
}

// NewHandler wires the HTTP surface. markup may be nil when no markup
// provider is configured; useSSML requests then fall back to plain text.
func NewHandler(p Runner, markup services.MarkupService, database *db.DB, voices *services.VoiceTable) *Handler {
	return &Handler{
		pipeline: p,
		markup:   markup,
		db:       database,
		voices:   voices,
	}
}

// Synthesize handles POST /v1/tts — synchronous plain text synthesis.
func (h *Handler) Synthesize(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Missing identity")
		return
	}

	var req models.SynthesizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	sreq := buildSynthesisRequest(req, identity.ID)

	result, err := h.pipeline.Run(r.Context(), sreq, nil)
	if err != nil {
		status, message := synthesisStatus(err)
		respondError(w, status, message)
		return
	}

	resp := models.SynthesizeResponse{
		AudioURL:       result.AudioURL,
		CharacterCount: result.CharacterCount,
		Voice:          sreq.VoiceID,
		Speed:          sreq.Rate,
		Cached:         result.FromCache,
	}
	if result.HistoryWarning != "" {
		warning := result.HistoryWarning
		resp.InsertError = &warning
	}

	respondJSON(w, http.StatusOK, resp)
}

// SynthesizeStream handles POST /v1/tts/stream — SSE progress run with
// optional speech markup generation.
func (h *Handler) SynthesizeStream(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Missing identity")
		return
	}

	var req models.SynthesizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeEvent := func(ev models.ProgressEvent) {
		payload := map[string]interface{}{
			"progress": ev.Percent,
			"message":  ev.Message,
		}
		if ev.Error {
			payload["error"] = true
		}
		for k, v := range ev.Payload {
			payload[k] = v
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return
		}
		w.Write([]byte("data: "))
		w.Write(data)
		w.Write([]byte("\n\n"))
		flusher.Flush()
	}

	writeEvent(models.ProgressEvent{Percent: 5, Message: "Validating request"})

	if req.Text == "" {
		writeEvent(models.ProgressEvent{Percent: 0, Message: "text is required", Error: true})
		return
	}

	sreq := buildSynthesisRequest(req, identity.ID)

	if req.UseSSML && h.markup != nil {
		writeEvent(models.ProgressEvent{Percent: 10, Message: "Generating speech markup"})

		ssml, err := h.markup.GenerateSpeechMarkup(r.Context(), req.Text, sreq.VoiceID)
		if err != nil {
			// Markup is an enhancement; fall back to plain narration.
			log.Printf("[API] markup generation failed, using plain text: %v", err)
		} else {
			sreq.Content = ssml
			sreq.ContentKind = models.ContentMarkupSpeech
			sreq.OriginalText = req.Text
		}

		writeEvent(models.ProgressEvent{Percent: 35, Message: "Speech markup ready"})
	}

	events := make(chan models.ProgressEvent, 16)
	em := pipeline.NewEmitter(events)

	go func() {
		defer close(events)
		if _, err := h.pipeline.Run(r.Context(), sreq, em); err != nil {
			log.Printf("[API] synthesis run failed for user %s: %v", identity.ID, err)
		}
	}()

	for ev := range events {
		writeEvent(ev)
	}
}

// ListHistory handles GET /v1/history
func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Missing identity")
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	entries, err := h.db.ListHistory(r.Context(), identity.ID, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list history")
		return
	}

	total, err := h.db.CountHistory(r.Context(), identity.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to count history")
		return
	}

	respondJSON(w, http.StatusOK, models.ListHistoryResponse{
		Entries: entries,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	})
}

// DeleteHistory handles DELETE /v1/history/{id}
func (h *Handler) DeleteHistory(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Missing identity")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid history ID")
		return
	}

	if err := h.db.DeleteHistory(r.Context(), id, identity.ID); err != nil {
		respondError(w, http.StatusNotFound, "History entry not found")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ListVoices handles GET /v1/voices
func (h *Handler) ListVoices(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"voices":       h.voices.Voices(),
		"defaultVoice": services.DefaultVoice,
	})
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func buildSynthesisRequest(req models.SynthesizeRequest, userID string) models.SynthesisRequest {
	speed := 1.0
	if req.Speed != nil {
		speed = *req.Speed
	}
	voice := req.Voice
	if voice == "" {
		voice = services.DefaultVoice
	}
	return models.SynthesisRequest{
		Content:           req.Text,
		ContentKind:       models.ContentPlainText,
		VoiceID:           voice,
		Rate:              speed,
		RequesterIdentity: userID,
		Title:             req.Title,
	}
}

func synthesisStatus(err error) (int, string) {
	var ve *pipeline.ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest, ve.Reason
	}
	var sf *services.SynthesisFailure
	if errors.As(err, &sf) {
		return http.StatusBadGateway, "Speech synthesis failed: " + sf.Reason
	}
	var pf *pipeline.PersistenceFailure
	if errors.As(err, &pf) {
		return http.StatusInternalServerError, "Failed to store audio"
	}
	return http.StatusInternalServerError, "Synthesis failed"
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

package pipeline

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Robin318-Gamer/StoryReader/internal/cache"
	"github.com/Robin318-Gamer/StoryReader/internal/models"
	"github.com/Robin318-Gamer/StoryReader/internal/services"
)

// ---------------------------------------------------------------------------
// Pipeline orchestrator
// Drives one synthesis run end to end: validate, cache check, chunk,
// per-segment synthesis, merge, upload, history. Any failure before the
// merged audio is uploaded discards all partial output.
// ---------------------------------------------------------------------------

// Synthesizer turns one text segment into audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, segment models.TextSegment, kind models.ContentKind, voiceID string, rate float64) (models.AudioSegment, error)
}

// BlobStore persists merged audio and resolves its public URL.
type BlobStore interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) error
	GetPublicURL(path string) string
	GeneratePath(identity string) string
}

// HistoryStore appends completed runs to the caller's history.
type HistoryStore interface {
	CreateHistory(ctx context.Context, entry *models.HistoryEntry) error
}

// ResultCache answers exact-match lookups for previously synthesized runs.
type ResultCache interface {
	Lookup(ctx context.Context, key cache.Key) (*models.SynthesisResult, error)
	Record(ctx context.Context, key cache.Key, audioURL string)
}

// ValidationError rejects a request before any provider work happens.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid request: " + e.Reason
}

// PersistenceFailure means synthesis succeeded but the merged audio could
// not be stored. Nothing is cached and no history row is written.
type PersistenceFailure struct {
	Err error
}

func (e *PersistenceFailure) Error() string {
	return "failed to store audio: " + e.Err.Error()
}

func (e *PersistenceFailure) Unwrap() error {
	return e.Err
}

const (
	// Speaking rates Google TTS accepts.
	minRate = 0.25
	maxRate = 4.0

	synthRetryBase = 500 * time.Millisecond
)

type Orchestrator struct {
	chunker    *services.Chunker
	synth      Synthesizer
	blobs      BlobStore
	history    HistoryStore
	cache      ResultCache
	limiter    *rate.Limiter
	maxWorkers int
	maxRetries int
}

type Options struct {
	// MaxWorkers bounds concurrent provider calls. Values below 1 mean
	// sequential synthesis.
	MaxWorkers int
	// RateLimit is provider calls per second; zero disables limiting.
	RateLimit float64
	// MaxRetries is extra synthesis attempts per segment after the first.
	MaxRetries int
}

func NewOrchestrator(chunker *services.Chunker, synth Synthesizer, blobs BlobStore, history HistoryStore, resultCache ResultCache, opts Options) *Orchestrator {
	workers := opts.MaxWorkers
	if workers < 1 {
		workers = 1
	}
	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	return &Orchestrator{
		chunker:    chunker,
		synth:      synth,
		blobs:      blobs,
		history:    history,
		cache:      resultCache,
		limiter:    limiter,
		maxWorkers: workers,
		maxRetries: opts.MaxRetries,
	}
}

// Run executes one synthesis request. Progress events go to em, which may
// be nil; terminal events (success payload or error) are always emitted.
// On success the merged audio is uploaded, recorded in history, and for
// plain text runs recorded in the cache.
func (o *Orchestrator) Run(ctx context.Context, req models.SynthesisRequest, em *Emitter) (*models.SynthesisResult, error) {
	if em == nil {
		em = NewEmitter(nil)
	}

	result, err := o.run(ctx, req, em)
	if err != nil {
		em.EmitError(err.Error())
		return nil, err
	}

	em.EmitPayload(100, "Complete", map[string]interface{}{
		"audioUrl":       result.AudioURL,
		"characterCount": result.CharacterCount,
		"cached":         result.FromCache,
	})
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, req models.SynthesisRequest, em *Emitter) (*models.SynthesisResult, error) {
	if err := validate(&req); err != nil {
		return nil, err
	}

	em.Emit(40, "Preparing text")

	cacheKey := cache.Key{
		Identity: req.RequesterIdentity,
		Content:  req.Content,
		Voice:    req.VoiceID,
		Rate:     req.Rate,
	}

	// Generated markup may differ between identical inputs, so only plain
	// text runs touch the cache.
	if req.ContentKind == models.ContentPlainText && o.cache != nil {
		if hit, err := o.cache.Lookup(ctx, cacheKey); err != nil {
			log.Printf("[Pipeline] cache lookup failed, synthesizing: %v", err)
		} else if hit != nil {
			log.Printf("[Pipeline] cache hit for user %s", req.RequesterIdentity)
			return hit, nil
		}
	}

	var segments []models.TextSegment
	if req.ContentKind == models.ContentMarkupSpeech {
		segments = o.chunker.ChunkOpaque(req.Content)
	} else {
		segments = o.chunker.Chunk(req.Content)
	}

	em.Emit(45, fmt.Sprintf("Synthesizing %d segment(s)", len(segments)))

	audio, err := o.synthesizeAll(ctx, segments, req, em)
	if err != nil {
		return nil, err
	}

	em.Emit(75, "Merging audio segments")

	merged, err := services.MergeAudio(audio)
	if err != nil {
		return nil, fmt.Errorf("failed to merge audio: %w", err)
	}

	em.Emit(80, "Uploading audio")

	path := o.blobs.GeneratePath(req.RequesterIdentity)
	if err := o.blobs.Upload(ctx, path, merged, "audio/mpeg"); err != nil {
		return nil, &PersistenceFailure{Err: err}
	}
	audioURL := o.blobs.GetPublicURL(path)

	em.Emit(90, "Saving to history")

	result := &models.SynthesisResult{
		AudioURL:       audioURL,
		SegmentCount:   len(segments),
		CharacterCount: characterCount(req),
	}

	if err := o.recordHistory(ctx, req, audioURL); err != nil {
		// The audio is already stored; surface the failure as a warning.
		log.Printf("[Pipeline] history insert failed: %v", err)
		result.HistoryWarning = err.Error()
	}

	if req.ContentKind == models.ContentPlainText && o.cache != nil {
		o.cache.Record(ctx, cacheKey, audioURL)
	}

	return result, nil
}

// synthesizeAll fans segments out to bounded workers and returns the audio
// in segment order. A failed segment cancels the remaining work.
func (o *Orchestrator) synthesizeAll(ctx context.Context, segments []models.TextSegment, req models.SynthesisRequest, em *Emitter) ([]models.AudioSegment, error) {
	audio := make([]models.AudioSegment, len(segments))
	var done int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.maxWorkers)

	for i, seg := range segments {
		i, seg := i, seg
		g.Go(func() error {
			out, err := o.synthesizeOne(gctx, seg, req)
			if err != nil {
				return err
			}
			audio[i] = out

			n := atomic.AddInt64(&done, 1)
			em.Emit(45+int(n)*30/len(segments), fmt.Sprintf("Synthesized segment %d/%d", n, len(segments)))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return audio, nil
}

// synthesizeOne calls the provider for one segment with bounded retries.
func (o *Orchestrator) synthesizeOne(ctx context.Context, seg models.TextSegment, req models.SynthesisRequest) (models.AudioSegment, error) {
	var lastErr error
	for attempt := 0; attempt <= o.maxRetries; attempt++ {
		if attempt > 0 {
			log.Printf("[Pipeline] retrying segment %d (attempt %d/%d): %v", seg.Ordinal, attempt, o.maxRetries, lastErr)
			select {
			case <-time.After(synthRetryDelay(attempt)):
			case <-ctx.Done():
				return models.AudioSegment{}, ctx.Err()
			}
		}

		if o.limiter != nil {
			if err := o.limiter.Wait(ctx); err != nil {
				return models.AudioSegment{}, err
			}
		}

		out, err := o.synth.Synthesize(ctx, seg, req.ContentKind, req.VoiceID, req.Rate)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return models.AudioSegment{}, ctx.Err()
		}
	}
	return models.AudioSegment{}, fmt.Errorf("segment %d failed after %d attempt(s): %w", seg.Ordinal, o.maxRetries+1, lastErr)
}

func (o *Orchestrator) recordHistory(ctx context.Context, req models.SynthesisRequest, audioURL string) error {
	if o.history == nil {
		return nil
	}

	entry := &models.HistoryEntry{
		ID:               uuid.New(),
		UserID:           req.RequesterIdentity,
		Title:            req.Title,
		Voice:            req.VoiceID,
		Speed:            req.Rate,
		AudioURL:         audioURL,
		ProcessingStatus: models.ProcessingStatusCompleted,
	}
	if req.ContentKind == models.ContentMarkupSpeech {
		entry.Text = req.OriginalText
		original := req.OriginalText
		entry.OriginalText = &original
		ssml := req.Content
		entry.SSMLContent = &ssml
	} else {
		entry.Text = req.Content
	}

	return o.history.CreateHistory(ctx, entry)
}

func validate(req *models.SynthesisRequest) error {
	if req.Content == "" {
		return &ValidationError{Reason: "text is required"}
	}
	if req.RequesterIdentity == "" {
		return &ValidationError{Reason: "requester identity is required"}
	}
	if req.VoiceID == "" {
		return &ValidationError{Reason: "voice is required"}
	}
	if req.Rate < minRate || req.Rate > maxRate {
		return &ValidationError{Reason: fmt.Sprintf("speed must be between %g and %g", minRate, maxRate)}
	}
	if req.ContentKind == "" {
		req.ContentKind = models.ContentPlainText
	}
	return nil
}

func characterCount(req models.SynthesisRequest) int {
	if req.ContentKind == models.ContentMarkupSpeech && req.OriginalText != "" {
		return utf8.RuneCountInString(req.OriginalText)
	}
	return utf8.RuneCountInString(req.Content)
}

func synthRetryDelay(attempt int) time.Duration {
	backoff := synthRetryBase * time.Duration(1<<uint(attempt-1))
	jitter := time.Duration(rand.Int63n(int64(backoff) / 2))
	return backoff + jitter
}

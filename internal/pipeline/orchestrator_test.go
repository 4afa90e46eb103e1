package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/Robin318-Gamer/StoryReader/internal/cache"
	"github.com/Robin318-Gamer/StoryReader/internal/models"
	"github.com/Robin318-Gamer/StoryReader/internal/services"
)

// Test fakes

type fakeSynth struct {
	mu       sync.Mutex
	calls    int
	failures map[int]int // ordinal -> remaining failures
	err      error       // when set, every call fails
}

func (f *fakeSynth) Synthesize(ctx context.Context, segment models.TextSegment, kind models.ContentKind, voiceID string, rate float64) (models.AudioSegment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	if f.err != nil {
		return models.AudioSegment{}, f.err
	}
	if remaining, ok := f.failures[segment.Ordinal]; ok && remaining > 0 {
		f.failures[segment.Ordinal] = remaining - 1
		return models.AudioSegment{}, errors.New("transient provider error")
	}

	return models.AudioSegment{
		Ordinal: segment.Ordinal,
		Bytes:   []byte(segment.Payload),
		Source:  segment,
	}, nil
}

type fakeBlobs struct {
	mu       sync.Mutex
	uploaded map[string][]byte
	err      error
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{uploaded: make(map[string][]byte)}
}

func (f *fakeBlobs) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.uploaded[path] = data
	return nil
}

func (f *fakeBlobs) GetPublicURL(path string) string {
	return "https://cdn.example.com/" + path
}

func (f *fakeBlobs) GeneratePath(identity string) string {
	return fmt.Sprintf("tts-audio/%s/test.mp3", identity)
}

type fakeHistory struct {
	mu      sync.Mutex
	entries []models.HistoryEntry
	err     error
}

func (f *fakeHistory) CreateHistory(ctx context.Context, entry *models.HistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, *entry)
	return nil
}

type fakeCache struct {
	mu      sync.Mutex
	hit     *models.SynthesisResult
	lookups int
	records []string
}

func (f *fakeCache) Lookup(ctx context.Context, key cache.Key) (*models.SynthesisResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	return f.hit, nil
}

func (f *fakeCache) Record(ctx context.Context, key cache.Key, audioURL string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, audioURL)
}

type fixture struct {
	synth   *fakeSynth
	blobs   *fakeBlobs
	history *fakeHistory
	cache   *fakeCache
}

func newOrchestrator(ceiling int, opts Options) (*Orchestrator, *fixture) {
	f := &fixture{
		synth:   &fakeSynth{},
		blobs:   newFakeBlobs(),
		history: &fakeHistory{},
		cache:   &fakeCache{},
	}
	o := NewOrchestrator(services.NewChunkerWithCeiling(ceiling), f.synth, f.blobs, f.history, f.cache, opts)
	return o, f
}

func plainRequest(content string) models.SynthesisRequest {
	return models.SynthesisRequest{
		Content:           content,
		ContentKind:       models.ContentPlainText,
		VoiceID:           "yue-HK-Standard-A",
		Rate:              1.0,
		RequesterIdentity: "user-1",
	}
}

// Tests

func TestRunSingleSegment(t *testing.T) {
	o, f := newOrchestrator(services.ChunkByteCeiling, Options{MaxWorkers: 2})

	result, err := o.Run(context.Background(), plainRequest("Hello world."), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.SegmentCount != 1 {
		t.Errorf("expected 1 segment, got %d", result.SegmentCount)
	}
	if result.AudioURL != "https://cdn.example.com/tts-audio/user-1/test.mp3" {
		t.Errorf("unexpected audio URL: %s", result.AudioURL)
	}
	if got := f.blobs.uploaded["tts-audio/user-1/test.mp3"]; string(got) != "Hello world." {
		t.Errorf("unexpected uploaded bytes: %q", got)
	}
	if len(f.history.entries) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(f.history.entries))
	}
	if f.history.entries[0].Text != "Hello world." {
		t.Errorf("unexpected history text: %q", f.history.entries[0].Text)
	}
	if len(f.cache.records) != 1 {
		t.Errorf("expected cache record, got %d", len(f.cache.records))
	}
}

func TestRunMultiSegmentPreservesOrder(t *testing.T) {
	o, f := newOrchestrator(20, Options{MaxWorkers: 4})

	content := "First one. Second one. Third one. Fourth one. Fifth one."
	result, err := o.Run(context.Background(), plainRequest(content), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.SegmentCount < 2 {
		t.Fatalf("expected multiple segments, got %d", result.SegmentCount)
	}

	// The fake echoes each segment's text, so ordered merge reproduces input.
	if got := f.blobs.uploaded["tts-audio/user-1/test.mp3"]; string(got) != content {
		t.Errorf("merged audio out of order:\nwant %q\ngot  %q", content, got)
	}
}

func TestRunValidation(t *testing.T) {
	o, _ := newOrchestrator(services.ChunkByteCeiling, Options{})

	cases := []models.SynthesisRequest{
		{Content: "", RequesterIdentity: "user-1", VoiceID: "yue-HK-Standard-A", Rate: 1.0},
		{Content: "hi", RequesterIdentity: "", VoiceID: "yue-HK-Standard-A", Rate: 1.0},
		{Content: "hi", RequesterIdentity: "user-1", VoiceID: "", Rate: 1.0},
		{Content: "hi", RequesterIdentity: "user-1", VoiceID: "yue-HK-Standard-A", Rate: 0},
		{Content: "hi", RequesterIdentity: "user-1", VoiceID: "yue-HK-Standard-A", Rate: 9.0},
	}

	for i, req := range cases {
		_, err := o.Run(context.Background(), req, nil)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("case %d: expected ValidationError, got %v", i, err)
		}
	}
}

func TestRunDefaultsContentKind(t *testing.T) {
	o, f := newOrchestrator(services.ChunkByteCeiling, Options{})

	req := models.SynthesisRequest{
		Content:           "hi",
		VoiceID:           "yue-HK-Standard-A",
		Rate:              1.0,
		RequesterIdentity: "user-1",
	}
	if _, err := o.Run(context.Background(), req, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// An unspecified kind is treated as plain text, so the run is cacheable.
	if len(f.cache.records) != 1 {
		t.Errorf("expected run recorded in cache, got %d records", len(f.cache.records))
	}
}

func TestRunSynthesisFailureDiscardsEverything(t *testing.T) {
	o, f := newOrchestrator(20, Options{MaxWorkers: 2})
	f.synth.err = errors.New("provider down")

	_, err := o.Run(context.Background(), plainRequest("First one. Second one. Third one."), nil)
	if err == nil {
		t.Fatal("expected error")
	}

	if len(f.blobs.uploaded) != 0 {
		t.Error("failed run must not upload audio")
	}
	if len(f.history.entries) != 0 {
		t.Error("failed run must not write history")
	}
	if len(f.cache.records) != 0 {
		t.Error("failed run must not record in cache")
	}
}

func TestRunPersistenceFailure(t *testing.T) {
	o, f := newOrchestrator(services.ChunkByteCeiling, Options{})
	f.blobs.err = errors.New("bucket unavailable")

	_, err := o.Run(context.Background(), plainRequest("hi"), nil)

	var pf *PersistenceFailure
	if !errors.As(err, &pf) {
		t.Fatalf("expected PersistenceFailure, got %v", err)
	}
	if len(f.history.entries) != 0 {
		t.Error("unstored audio must not be recorded in history")
	}
	if len(f.cache.records) != 0 {
		t.Error("unstored audio must not be recorded in cache")
	}
}

func TestRunHistoryFailureIsWarning(t *testing.T) {
	o, f := newOrchestrator(services.ChunkByteCeiling, Options{})
	f.history.err = errors.New("insert failed")

	result, err := o.Run(context.Background(), plainRequest("hi"), nil)
	if err != nil {
		t.Fatalf("history failure must not fail the run: %v", err)
	}
	if result.HistoryWarning == "" {
		t.Error("expected a history warning on the result")
	}
	if result.AudioURL == "" {
		t.Error("audio URL must still be returned")
	}
}

func TestRunCacheHitSkipsSynthesis(t *testing.T) {
	o, f := newOrchestrator(services.ChunkByteCeiling, Options{})
	f.cache.hit = &models.SynthesisResult{AudioURL: "https://cdn.example.com/cached.mp3", FromCache: true}

	result, err := o.Run(context.Background(), plainRequest("hi"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !result.FromCache {
		t.Error("expected cached result")
	}
	if f.synth.calls != 0 {
		t.Errorf("cache hit must not synthesize, got %d calls", f.synth.calls)
	}
	if len(f.blobs.uploaded) != 0 {
		t.Error("cache hit must not upload")
	}
}

func TestRunMarkupSkipsCache(t *testing.T) {
	o, f := newOrchestrator(services.ChunkByteCeiling, Options{})

	req := models.SynthesisRequest{
		Content:           "<s>Hello.</s>",
		ContentKind:       models.ContentMarkupSpeech,
		VoiceID:           "yue-HK-Standard-A",
		Rate:              1.0,
		RequesterIdentity: "user-1",
		OriginalText:      "Hello.",
	}

	result, err := o.Run(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if f.cache.lookups != 0 {
		t.Error("markup run must not consult the cache")
	}
	if len(f.cache.records) != 0 {
		t.Error("markup run must not record in the cache")
	}
	if result.CharacterCount != len([]rune("Hello.")) {
		t.Errorf("character count should reflect the original text, got %d", result.CharacterCount)
	}

	entry := f.history.entries[0]
	if entry.Text != "Hello." {
		t.Errorf("history text should be the original text, got %q", entry.Text)
	}
	if entry.SSMLContent == nil || *entry.SSMLContent != "<s>Hello.</s>" {
		t.Error("history entry should carry the generated markup")
	}
}

func TestRunRetriesTransientFailures(t *testing.T) {
	o, f := newOrchestrator(services.ChunkByteCeiling, Options{MaxRetries: 1})
	f.synth.failures = map[int]int{0: 1}

	if _, err := o.Run(context.Background(), plainRequest("hi"), nil); err != nil {
		t.Fatalf("expected retry to recover: %v", err)
	}
	if f.synth.calls != 2 {
		t.Errorf("expected 2 attempts, got %d", f.synth.calls)
	}
}

func TestRunExhaustedRetriesFail(t *testing.T) {
	o, f := newOrchestrator(services.ChunkByteCeiling, Options{MaxRetries: 1})
	f.synth.failures = map[int]int{0: 5}

	if _, err := o.Run(context.Background(), plainRequest("hi"), nil); err == nil {
		t.Fatal("expected failure after retries exhausted")
	}
	if f.synth.calls != 2 {
		t.Errorf("expected 2 attempts, got %d", f.synth.calls)
	}
}

func TestRunProgressMonotoneAndTerminal(t *testing.T) {
	o, _ := newOrchestrator(20, Options{MaxWorkers: 2})

	ch := make(chan models.ProgressEvent, 64)
	em := NewEmitter(ch)

	content := strings.Repeat("A sentence here. ", 5)
	if _, err := o.Run(context.Background(), plainRequest(content), em); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	close(ch)

	var events []models.ProgressEvent
	for ev := range ch {
		events = append(events, ev)
	}
	if len(events) < 3 {
		t.Fatalf("expected several progress events, got %d", len(events))
	}

	last := 0
	for _, ev := range events {
		if ev.Percent < last {
			t.Errorf("progress went backwards: %d after %d", ev.Percent, last)
		}
		last = ev.Percent
	}

	final := events[len(events)-1]
	if final.Percent != 100 || !final.Terminal || final.Error {
		t.Errorf("unexpected terminal event: %+v", final)
	}
	if url, ok := final.Payload["audioUrl"].(string); !ok || url == "" {
		t.Error("terminal event should carry the audio URL")
	}
}

func TestRunErrorEmitsTerminalErrorEvent(t *testing.T) {
	o, f := newOrchestrator(services.ChunkByteCeiling, Options{})
	f.synth.err = errors.New("provider down")

	ch := make(chan models.ProgressEvent, 64)
	em := NewEmitter(ch)

	if _, err := o.Run(context.Background(), plainRequest("hi"), em); err == nil {
		t.Fatal("expected error")
	}
	close(ch)

	var final models.ProgressEvent
	for ev := range ch {
		final = ev
	}
	if !final.Error || final.Percent != 0 {
		t.Errorf("unexpected terminal event: %+v", final)
	}
}

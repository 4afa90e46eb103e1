package pipeline

import (
	"sync"

	"github.com/Robin318-Gamer/StoryReader/internal/models"
)

// Emitter fans progress events out to an optional channel. Sends never
// block: when the consumer is slow the event is dropped, and reported
// percentages never move backwards within one run. Safe for use from
// concurrent segment workers.
type Emitter struct {
	ch   chan<- models.ProgressEvent
	mu   sync.Mutex
	last int
}

// NewEmitter wraps ch, which may be nil when the caller does not want
// progress reporting.
func NewEmitter(ch chan<- models.ProgressEvent) *Emitter {
	return &Emitter{ch: ch}
}

// Emit reports a progress step. Percentages lower than an already reported
// value are clamped up so consumers see a monotone sequence.
func (e *Emitter) Emit(percent int, message string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if percent < e.last {
		percent = e.last
	}
	e.last = percent
	e.send(models.ProgressEvent{Percent: percent, Message: message})
}

// EmitPayload is Emit with extra fields attached to the event, used for the
// terminal completion event.
func (e *Emitter) EmitPayload(percent int, message string, payload map[string]interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if percent < e.last {
		percent = e.last
	}
	e.last = percent
	e.send(models.ProgressEvent{Percent: percent, Message: message, Terminal: true, Payload: payload})
}

// EmitError reports a terminal failure. Error events carry percent 0
// regardless of how far the run got.
func (e *Emitter) EmitError(message string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.send(models.ProgressEvent{Percent: 0, Message: message, Error: true, Terminal: true})
}

// send must be called with the lock held so clamped percentages reach the
// channel in the order they were computed.
func (e *Emitter) send(event models.ProgressEvent) {
	if e.ch == nil {
		return
	}
	select {
	case e.ch <- event:
	default:
	}
}

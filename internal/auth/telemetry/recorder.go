package telemetry

import (
	"context"
	"slices"
	"sync"

	"github.com/aussiebroadwan/maidrobe/internal/auth/domain"
)

// Recorder keeps every event it receives in memory.
type Recorder struct {
	mu     sync.Mutex
	events []domain.AuthEvent
}

func (r *Recorder) Emit(_ context.Context, event domain.AuthEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of the recorded events in arrival order.
func (r *Recorder) Events() []domain.AuthEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// Find returns the recorded events of the given type.
func (r *Recorder) Find(eventType domain.EventType) []domain.AuthEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.AuthEvent
	for _, ev := range r.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

// Has reports whether at least one event of the given type was recorded.
func (r *Recorder) Has(eventType domain.EventType) bool {
	return len(r.Find(eventType)) > 0
}

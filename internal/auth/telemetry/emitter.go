// Package telemetry delivers auth events to the console, Prometheus and an
// optional OpenTelemetry collector. Delivery is best-effort and never
// affects the operation that produced the event.
package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/maidrobe/internal/auth/domain"
)

// emitTimeout is the max time allowed for a single async emit.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long to wait before shutting down telemetry
// providers so in-flight async emits can finish. Must be >= emitTimeout.
const ShutdownDrainDuration = emitTimeout

// inflight tracks goroutines started by EmitAsync so Drain can wait for them.
var inflight sync.WaitGroup

// Emitter delivers one auth event to a sink.
type Emitter interface {
	Emit(ctx context.Context, event domain.AuthEvent) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, event domain.AuthEvent) error

func (f EmitterFunc) Emit(ctx context.Context, event domain.AuthEvent) error { return f(ctx, event) }

// EmitAsync sanitizes the event metadata and runs Emit in a goroutine with a
// short timeout so the caller is not blocked. Errors are logged.
//
// emitter may be nil; EmitAsync then returns immediately without starting a
// goroutine. The goroutine does not inherit any caller context, so a
// cancelled operation does not abort an in-flight emit.
func EmitAsync(emitter Emitter, event domain.AuthEvent) {
	if emitter == nil {
		return
	}
	event.Metadata = Sanitize(event.Metadata)

	inflight.Add(1)
	go func() {
		defer inflight.Done()
		emitCtx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := emitter.Emit(emitCtx, event); err != nil {
			slog.Warn("telemetry: async emit failed",
				"event_type", event.Type,
				"error", err,
			)
		}
	}()
}

// Drain blocks until every emit started by EmitAsync has finished or ctx is
// done. Short-lived processes call it before exiting so their last events
// are not lost.
func Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type fanout []Emitter

// Fanout returns an Emitter that delivers to every non-nil emitter in order.
// A failing sink does not stop delivery to the rest.
func Fanout(emitters ...Emitter) Emitter {
	out := make(fanout, 0, len(emitters))
	for _, e := range emitters {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

func (f fanout) Emit(ctx context.Context, event domain.AuthEvent) error {
	var errs []error
	for _, e := range f {
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

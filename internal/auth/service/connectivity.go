package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/maidrobe/internal/auth/domain"
	"github.com/aussiebroadwan/maidrobe/internal/auth/telemetry"
	"github.com/aussiebroadwan/maidrobe/pkg/authsdk"
	"github.com/aussiebroadwan/maidrobe/pkg/slogx"
	"github.com/jonboulle/clockwork"
)

// Connectivity reports whether the backend is reachable and announces
// transitions.
type Connectivity interface {
	Online() bool

	// Subscribe registers fn for transitions. fn runs on the notifying
	// goroutine and must not block.
	Subscribe(fn func(online bool)) (unsubscribe func())
}

// connectivityHub tracks the current state and fans transitions out.
type connectivityHub struct {
	mu      sync.Mutex
	online  bool
	subs    map[int]func(bool)
	nextSub int
}

func (h *connectivityHub) Online() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.online
}

func (h *connectivityHub) Subscribe(fn func(online bool)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subs == nil {
		h.subs = make(map[int]func(bool))
	}
	id := h.nextSub
	h.nextSub++
	h.subs[id] = fn

	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
}

// set records online and reports whether that was a transition.
func (h *connectivityHub) set(online bool) bool {
	h.mu.Lock()
	if h.online == online {
		h.mu.Unlock()
		return false
	}
	h.online = online
	subs := make([]func(bool), 0, len(h.subs))
	for _, fn := range h.subs {
		subs = append(subs, fn)
	}
	h.mu.Unlock()

	for _, fn := range subs {
		fn(online)
	}
	return true
}

// StaticConnectivity is driven by hand with SetOnline, for tests and embedders
// that track reachability themselves.
type StaticConnectivity struct {
	connectivityHub
}

func NewStaticConnectivity(online bool) *StaticConnectivity {
	c := &StaticConnectivity{}
	c.online = online
	return c
}

// SetOnline changes the state, notifying subscribers on a transition.
func (c *StaticConnectivity) SetOnline(online bool) { c.set(online) }

// HealthProber is satisfied by *authsdk.SDKClient.
type HealthProber interface {
	Health(ctx context.Context) (*authsdk.HealthResponse, error)
}

// ConnectivityMonitor probes the Auth API health endpoint on an interval.
// Any HTTP answer counts as online; only a failure to get one counts as
// offline. It starts out online so a first failed probe is a transition.
type ConnectivityMonitor struct {
	connectivityHub

	Prober   HealthProber
	Emitter  telemetry.Emitter
	Logger   *slog.Logger
	Clock    clockwork.Clock
	Interval time.Duration

	// Internal channels for lifecycle management
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewConnectivityMonitor creates a monitor. If interval is 0 or negative it
// defaults to 15 seconds.
func NewConnectivityMonitor(prober HealthProber, interval time.Duration) *ConnectivityMonitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}

	m := &ConnectivityMonitor{
		Prober:   prober,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	m.online = true
	return m
}

// Start probes once and then on every tick until Stop.
func (m *ConnectivityMonitor) Start() {
	go m.run()
	slogx.Or(m.Logger).Info("connectivity monitor started", "interval", m.Interval)
}

// Stop shuts down the worker and waits for an in-progress probe.
func (m *ConnectivityMonitor) Stop() {
	close(m.stopCh)
	<-m.doneCh
	slogx.Or(m.Logger).Info("connectivity monitor stopped")
}

func (m *ConnectivityMonitor) run() {
	defer close(m.doneCh)

	ticker := clockOr(m.Clock).NewTicker(m.Interval)
	defer ticker.Stop()

	m.Probe(context.Background())

	for {
		select {
		case <-ticker.Chan():
			m.Probe(context.Background())
		case <-m.stopCh:
			return
		}
	}
}

// Probe runs one health check and updates the state.
func (m *ConnectivityMonitor) Probe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, m.Interval)
	defer cancel()

	_, err := m.Prober.Health(ctx)

	var netErr *authsdk.NetworkError
	online := err == nil || !errors.As(err, &netErr)

	if !m.set(online) {
		return
	}

	slogx.Or(m.Logger).Info("connectivity changed", "online", online, "error", err)

	ev := domain.NewAuthEvent(domain.EventConnectivityChanged, clockOr(m.Clock).Now())
	ev.Metadata = map[string]any{"online": online}
	telemetry.EmitAsync(m.Emitter, ev)
}

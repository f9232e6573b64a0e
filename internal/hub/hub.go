// Package hub is the routing and channel-lifecycle engine. It owns the
// connection registry, decides which emitted events are republished on the
// exchange, runs the master/agent login handshake and creates and tears down
// each connection's private channel.
//
// Transports call into a Hub with connection IDs; the Hub talks back to
// clients only through schema.Peer.
package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/switchboard/switchboard/internal/bus"
	"github.com/switchboard/switchboard/internal/schema"
)

var (
	ErrUnknownConnection    = errors.New("hub: unknown connection")
	ErrDuplicateConnection  = errors.New("hub: connection already registered")
	ErrAlreadyAuthenticated = errors.New("hub: connection already logged in")
)

const defaultSnapshotTimeout = 5 * time.Second

// Hub wires the exchange, the store and the connection registry together.
type Hub struct {
	exchange *bus.Exchange
	store    schema.Store
	registry *Registry
	router   *Router

	snapshotTimeout time.Duration
	now             func() time.Time

	// tracks background snapshot pushes
	wg sync.WaitGroup
}

// Option configures a Hub.
type Option func(*Hub)

// WithRouter replaces the default emit routing table.
func WithRouter(r *Router) Option {
	return func(h *Hub) { h.router = r }
}

// WithSnapshotTimeout bounds the store round-trip of a report snapshot push.
func WithSnapshotTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.snapshotTimeout = d
		}
	}
}

func New(exchange *bus.Exchange, store schema.Store, opts ...Option) *Hub {
	h := &Hub{
		exchange:        exchange,
		store:           store,
		registry:        NewRegistry(),
		router:          NewRouter(DefaultRoutes()...),
		snapshotTimeout: defaultSnapshotTimeout,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) Registry() *Registry { return h.registry }

// Connect registers a freshly accepted connection in the Unauthenticated state.
func (h *Hub) Connect(peer schema.Peer) error {
	c := newConnection(peer, h.now())
	if !h.registry.add(c) {
		c.cancel()
		return fmt.Errorf("%w: %s", ErrDuplicateConnection, peer.ID())
	}
	slog.Debug("hub: connected", "conn", c.id)
	return nil
}

// Emit runs emit routing for one event from connID. The event is never
// blocked; republishing is a side effect.
func (h *Hub) Emit(connID string, ev Event) error {
	c, ok := h.registry.get(connID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConnection, connID)
	}
	c.touch(h.now())

	channel, payload, ok := h.router.Route(connID, ev)
	if !ok {
		return nil
	}
	h.exchange.Publish(channel, payload)
	return nil
}

// Touch records activity on connID without emitting anything.
func (h *Hub) Touch(connID string) {
	if c, ok := h.registry.get(connID); ok {
		c.touch(h.now())
	}
}

// GetReport fetches a single record. A missing record is nil with no error.
func (h *Hub) GetReport(ctx context.Context, id string) (schema.Record, error) {
	rec, err := h.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get report %s: %w", id, err)
	}
	return rec, nil
}

// Connection returns the current state of connID.
func (h *Hub) Connection(connID string) (ConnectionInfo, bool) {
	c, ok := h.registry.get(connID)
	if !ok {
		return ConnectionInfo{}, false
	}
	return c.Info(), true
}

// CloseIdle closes every connection with no activity for maxIdle and returns
// how many were closed. The transport reports the resulting disconnects.
func (h *Hub) CloseIdle(maxIdle time.Duration) int {
	if maxIdle <= 0 {
		return 0
	}
	idle := h.registry.idleSince(h.now().Add(-maxIdle))
	for _, c := range idle {
		slog.Info("hub: closing idle connection", "conn", c.id)
		if err := c.peer.Close(); err != nil {
			slog.Debug("hub: close idle connection", "conn", c.id, "err", err)
		}
	}
	return len(idle)
}

// Stats summarises hub state.
type Stats struct {
	Connections   int
	Authenticated int
	Channels      []string
}

func (h *Hub) Stats() Stats {
	s := Stats{Channels: h.exchange.Channels()}
	for _, info := range h.registry.Snapshot() {
		s.Connections++
		if info.Authenticated() {
			s.Authenticated++
		}
	}
	return s
}

// Close disconnects every registered connection and waits for pending
// snapshot pushes to finish.
func (h *Hub) Close() {
	for _, c := range h.registry.all() {
		h.Disconnect(c.id)
	}
	h.wg.Wait()
}

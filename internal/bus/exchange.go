// Package bus implements the in-process publish/subscribe exchange shared by
// the ingestion endpoint and every persistent connection.
//
// Channels are created implicitly by the first Subscribe and disappear when
// their last subscriber leaves or when they are destroyed. Publish is
// fire-and-forget: each subscriber owns a bounded queue so a slow consumer
// never blocks the publisher or other subscribers.
package bus

import (
	"log/slog"
	"slices"
	"sync"
)

const defaultBufferSize = 128

// Exchange is a named-channel publish/subscribe bus.
type Exchange struct {
	mu       sync.RWMutex
	channels map[string]map[uint64]*Subscription
	nextID   uint64
	bufSize  int
	closed   bool
}

// Option configures an Exchange.
type Option func(*Exchange)

// WithBufferSize sets the per-subscriber queue length. Values <= 0 keep the default.
func WithBufferSize(n int) Option {
	return func(e *Exchange) {
		if n > 0 {
			e.bufSize = n
		}
	}
}

func NewExchange(opts ...Option) *Exchange {
	e := &Exchange{
		channels: make(map[string]map[uint64]*Subscription),
		bufSize:  defaultBufferSize,
	}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Subscribe attaches a new subscriber to channel. Payloads published after
// Subscribe returns are queued for it until Watch starts delivery.
// Subscribing to a closed exchange returns an already-stopped subscription.
func (e *Exchange) Subscribe(channel string) *Subscription {
	sub := &Subscription{
		channel: channel,
		ex:      e,
		queue:   make(chan any, e.bufSize),
		done:    make(chan struct{}),
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		sub.stop()
		return sub
	}
	e.nextID++
	sub.id = e.nextID
	subs, ok := e.channels[channel]
	if !ok {
		subs = make(map[uint64]*Subscription)
		e.channels[channel] = subs
	}
	subs[sub.id] = sub
	e.mu.Unlock()

	slog.Debug("bus: subscribed", "channel", channel, "sub", sub.id)
	return sub
}

// Publish delivers payload to every current subscriber of channel.
// Publishing to a channel with no subscribers, including one that was
// destroyed, is a silent no-op. A subscriber whose queue is full misses the
// payload; delivery is at most once.
func (e *Exchange) Publish(channel string, payload any) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for id, sub := range e.channels[channel] {
		select {
		case sub.queue <- payload:
		default:
			slog.Warn("bus: subscriber queue full, dropping payload", "channel", channel, "sub", id)
		}
	}
}

// Unsubscribe detaches sub and stops its delivery goroutine. Safe to call
// more than once.
func (e *Exchange) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	e.mu.Lock()
	if subs, ok := e.channels[sub.channel]; ok {
		if cur, ok := subs[sub.id]; ok && cur == sub {
			delete(subs, sub.id)
			if len(subs) == 0 {
				delete(e.channels, sub.channel)
			}
		}
	}
	e.mu.Unlock()

	sub.stop()
}

// Destroy removes channel together with all of its subscribers.
func (e *Exchange) Destroy(channel string) {
	e.mu.Lock()
	subs := e.channels[channel]
	delete(e.channels, channel)
	e.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
	if len(subs) > 0 {
		slog.Debug("bus: channel destroyed", "channel", channel, "subscribers", len(subs))
	}
}

// Channels returns the names of channels that currently have subscribers, sorted.
func (e *Exchange) Channels() []string {
	e.mu.RLock()
	names := make([]string, 0, len(e.channels))
	for name := range e.channels {
		names = append(names, name)
	}
	e.mu.RUnlock()

	slices.Sort(names)
	return names
}

// SubscriberCount returns the number of subscribers attached to channel.
func (e *Exchange) SubscriberCount(channel string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return len(e.channels[channel])
}

// Close stops every subscription. Later subscriptions are born stopped and
// later publishes are dropped.
func (e *Exchange) Close() {
	e.mu.Lock()
	e.closed = true
	all := e.channels
	e.channels = make(map[string]map[uint64]*Subscription)
	e.mu.Unlock()

	for _, subs := range all {
		for _, sub := range subs {
			sub.stop()
		}
	}
}

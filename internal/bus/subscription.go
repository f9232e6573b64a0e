package bus

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrWatchTwice is returned when Watch is called on a subscription that
// already has a callback.
var ErrWatchTwice = errors.New("bus: subscription already watched")

// WatchFunc receives every payload published on a subscribed channel.
type WatchFunc func(payload any)

// Subscription is one subscriber's attachment to an exchange channel.
type Subscription struct {
	id      uint64
	channel string
	ex      *Exchange
	queue   chan any
	done    chan struct{}

	stopOnce sync.Once
	watched  atomic.Bool
}

func (s *Subscription) Channel() string { return s.channel }

// Done is closed once the subscription has been unsubscribed or its channel destroyed.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Stopped reports whether Done has been closed.
func (s *Subscription) Stopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Watch starts delivering queued and future payloads to fn on a dedicated
// goroutine, in publish order. It returns immediately.
func (s *Subscription) Watch(fn WatchFunc) error {
	if !s.watched.CompareAndSwap(false, true) {
		return ErrWatchTwice
	}
	go s.deliver(fn)
	return nil
}

// Unsubscribe detaches the subscription from its exchange.
func (s *Subscription) Unsubscribe() {
	s.ex.Unsubscribe(s)
}

func (s *Subscription) deliver(fn WatchFunc) {
	for {
		// Stop takes priority over queued payloads.
		select {
		case <-s.done:
			return
		default:
		}

		select {
		case <-s.done:
			return
		case payload := <-s.queue:
			fn(payload)
		}
	}
}

func (s *Subscription) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

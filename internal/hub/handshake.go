package hub

import (
	"fmt"
	"log/slog"

	"github.com/switchboard/switchboard/internal/bus"
)

// Login assigns connID its role and returns the channel it now watches.
//
// "master" watches respond and emits to log; any other credential watches
// log and emits to respond. The connection's private channel is subscribed
// in the same step and every payload published there is forwarded to the
// client as an event named after its watch channel. A connection logs in at
// most once.
func (h *Hub) Login(connID, credentials string) (string, error) {
	c, ok := h.registry.get(connID)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownConnection, connID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", fmt.Errorf("%w: %s", ErrUnknownConnection, connID)
	}
	if c.role != RoleUnassigned {
		return "", ErrAlreadyAuthenticated
	}

	role := RoleAgent
	if credentials == MasterCredentials {
		role = RoleMaster
	}
	watch, emit := channelsFor(role)

	sub := h.exchange.Subscribe(c.PrivateChannel())
	peer := c.peer
	if err := sub.Watch(func(payload any) {
		if err := peer.Emit(watch, payload); err != nil {
			slog.Debug("hub: relay to peer failed", "conn", connID, "err", err)
		}
	}); err != nil {
		sub.Unsubscribe()
		return "", fmt.Errorf("watch private channel: %w", err)
	}

	c.role = role
	c.watchChannel = watch
	c.emitChannel = emit
	c.private = sub
	c.lastSeen = h.now()

	slog.Info("hub: login", "conn", connID, "role", role, "watch", watch, "emit", emit)
	return watch, nil
}

// Disconnect tears connID down: pending snapshot pushes are cancelled, every
// exchange subscription it held is released, its private channel is
// destroyed and, if it had logged in, a DISCONNECTED notice is published on
// its emit channel. Calling it again for the same ID does nothing.
func (h *Hub) Disconnect(connID string) {
	c, ok := h.registry.remove(connID)
	if !ok {
		return
	}
	c.cancel()

	c.mu.Lock()
	c.closed = true
	role := c.role
	emit := c.emitChannel
	private := c.private
	subs := c.subs
	c.private = nil
	c.subs = nil
	c.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	if private != nil {
		private.Unsubscribe()
	}
	h.destroy(bus.PeerChannel(connID))

	if role != RoleUnassigned {
		h.exchange.Publish(emit, Disconnected{ID: connID, Type: StatusDisconnected})
	}
	slog.Debug("hub: disconnected", "conn", connID, "role", role)
}

// destroy removes channel from the exchange and drops the stopped
// subscriptions other connections still hold on it.
func (h *Hub) destroy(channel string) {
	h.exchange.Destroy(channel)
	for _, c := range h.registry.all() {
		c.forget(channel)
	}
}

package hub

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/switchboard/switchboard/internal/bus"
)

// Subscribe attaches connID to an exchange channel; deliveries reach the
// client as EventPublish frames. Subscriptions are always allowed.
// Subscribing to the report channel additionally pushes the current record
// list to this connection only, as a "report" event of type "list".
func (h *Hub) Subscribe(connID, channel string) error {
	c, ok := h.registry.get(connID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConnection, connID)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownConnection, connID)
	}
	// A destroyed channel leaves a stopped entry behind; replace it.
	if old, dup := c.subs[channel]; !dup || old.Stopped() {
		sub := h.exchange.Subscribe(channel)
		peer := c.peer
		if err := sub.Watch(func(payload any) {
			if err := peer.Emit(EventPublish, Publication{Channel: channel, Data: payload}); err != nil {
				slog.Debug("hub: deliver to peer failed", "conn", connID, "channel", channel, "err", err)
			}
		}); err != nil {
			c.mu.Unlock()
			sub.Unsubscribe()
			return fmt.Errorf("watch %s: %w", channel, err)
		}
		c.subs[channel] = sub
	}
	c.lastSeen = h.now()
	// wg.Add stays under c.mu: Disconnect marks c closed under the same lock.
	if channel == bus.ChannelReport {
		h.wg.Add(1)
		go h.pushReportSnapshot(c)
	}
	c.mu.Unlock()

	slog.Debug("hub: subscribed", "conn", connID, "channel", channel)
	return nil
}

// Unsubscribe detaches connID from channel. Unknown subscriptions are ignored.
func (h *Hub) Unsubscribe(connID, channel string) error {
	c, ok := h.registry.get(connID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConnection, connID)
	}

	c.mu.Lock()
	sub := c.subs[channel]
	delete(c.subs, channel)
	c.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	return nil
}

// pushReportSnapshot lists the store and emits the result to c. A failed
// fetch is logged and skipped. Nothing is delivered once c has disconnected.
func (h *Hub) pushReportSnapshot(c *Connection) {
	defer h.wg.Done()

	ctx, cancel := context.WithTimeout(c.ctx, h.snapshotTimeout)
	defer cancel()

	records, err := h.store.List(ctx, nil, nil)
	if err != nil {
		if c.ctx.Err() == nil {
			slog.Warn("hub: report snapshot failed", "conn", c.id, "err", err)
		}
		return
	}
	if c.ctx.Err() != nil || !h.registry.Contains(c.id) {
		slog.Debug("hub: report snapshot dropped, connection gone", "conn", c.id)
		return
	}

	if err := c.peer.Emit(bus.ChannelReport, ReportMessage{Type: ReportList, Data: records}); err != nil {
		slog.Debug("hub: report snapshot delivery failed", "conn", c.id, "err", err)
	}
}

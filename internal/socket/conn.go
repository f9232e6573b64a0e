package socket

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/switchboard/switchboard/internal/hub"
)

var (
	ErrClosed       = errors.New("socket: connection closed")
	ErrSlowConsumer = errors.New("socket: send queue full")
)

// Conn is one websocket client. It implements schema.Peer.
type Conn struct {
	id    string
	ws    *websocket.Conn
	codec Codec
	hub   *hub.Hub
	opts  Options

	ctx    context.Context
	cancel context.CancelFunc

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newConn(id string, ws *websocket.Conn, h *hub.Hub, opts Options) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		id:     id,
		ws:     ws,
		codec:  codecFor(ws.Subprotocol()),
		hub:    h,
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		send:   make(chan []byte, opts.SendBuffer),
		done:   make(chan struct{}),
	}
}

func (c *Conn) ID() string { return c.id }

// Emit queues an event frame. A client that cannot keep up is disconnected.
func (c *Conn) Emit(event string, data any) error {
	return c.enqueue(eventFrame{Event: event, Data: data})
}

// Close starts shutting the connection down. The read loop reports the
// disconnect to the hub once the socket is gone.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.cancel()
	})
	return nil
}

func (c *Conn) enqueue(frame any) error {
	msg, err := c.codec.Marshal(frame)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		slog.Warn("socket: send queue full, closing", "conn", c.id)
		c.Close()
		return ErrSlowConsumer
	}
}

func (c *Conn) respond(cid *int64, err error, data any) {
	if cid == nil {
		return
	}
	frame := responseFrame{RID: *cid, Data: data}
	if err != nil {
		frame.Error = err.Error()
		frame.Data = nil
	}
	if err := c.enqueue(frame); err != nil {
		slog.Debug("socket: response dropped", "conn", c.id, "rid", *cid, "err", err)
	}
}

func (c *Conn) pongWait() time.Duration {
	return c.opts.PingInterval * 2
}

func (c *Conn) readPump() {
	defer func() {
		c.Close()
		c.hub.Disconnect(c.id)
	}()

	c.ws.SetReadLimit(c.opts.MaxMessageBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.pongWait()))
	c.ws.SetPongHandler(func(string) error {
		c.hub.Touch(c.id)
		return c.ws.SetReadDeadline(time.Now().Add(c.pongWait()))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("socket: read failed", "conn", c.id, "err", err)
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(c.pongWait()))
		c.dispatch(raw)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.ws.WriteMessage(c.codec.MessageType(), msg); err != nil {
				slog.Debug("socket: write failed", "conn", c.id, "err", err)
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteTimeout)); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.opts.WriteTimeout))
			return
		}
	}
}

// dispatch handles one inbound frame. Subscription requests go straight to
// the hub; everything else runs emit routing first.
func (c *Conn) dispatch(raw []byte) {
	var in inbound
	if err := c.codec.Unmarshal(raw, &in); err != nil || in.Event == "" {
		slog.Debug("socket: malformed frame", "conn", c.id, "err", err)
		return
	}

	switch in.Event {
	case EventSubscribe:
		name, err := channelArg(in.Data)
		if err == nil {
			err = c.hub.Subscribe(c.id, name)
		}
		c.respond(in.CID, err, nil)
		return
	case EventUnsubscribe:
		name, err := channelArg(in.Data)
		if err == nil {
			err = c.hub.Unsubscribe(c.id, name)
		}
		c.respond(in.CID, err, nil)
		return
	}

	if err := c.hub.Emit(c.id, hub.Event{Name: in.Event, Data: in.Data}); err != nil {
		c.respond(in.CID, err, nil)
		return
	}

	switch in.Event {
	case hub.EventLogin:
		watch, err := c.hub.Login(c.id, credentialsArg(in.Data))
		c.respond(in.CID, err, watch)
	case hub.EventGetReport:
		ctx, cancel := context.WithTimeout(c.ctx, c.opts.RequestTimeout)
		rec, err := c.hub.GetReport(ctx, idArg(in.Data))
		cancel()
		if err != nil {
			slog.Warn("socket: getReport failed", "conn", c.id, "err", err)
		}
		c.respond(in.CID, err, rec)
	default:
		c.respond(in.CID, nil, nil)
	}
}

// Package socket is the websocket transport in front of the hub. Each
// accepted socket becomes a hub connection; frames are JSON text by default
// or CBOR binary when the client negotiates the switchboard.cbor
// sub-protocol.
package socket

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/switchboard/switchboard/internal/hub"
)

const DefaultPath = "/socketcluster/"

// connLoops is the number of goroutines each connection runs.
const connLoops = 2

// Options tunes the transport. Zero values fall back to defaults.
type Options struct {
	PingInterval    time.Duration
	WriteTimeout    time.Duration
	RequestTimeout  time.Duration
	MaxMessageBytes int64
	SendBuffer      int
	AllowedOrigins  []string
}

func (o Options) withDefaults() Options {
	if o.PingInterval <= 0 {
		o.PingInterval = 25 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 10 * time.Second
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = 1 << 20
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	return o
}

// Server upgrades HTTP requests and runs one read and one write loop per
// connection.
type Server struct {
	hub      *hub.Hub
	opts     Options
	upgrader websocket.Upgrader

	newID func() string

	mu     sync.Mutex
	conns  map[string]*Conn
	closed bool
	wg     sync.WaitGroup
}

func NewServer(h *hub.Hub, opts Options) *Server {
	s := &Server{
		hub:   h,
		opts:  opts.withDefaults(),
		newID: uuid.NewString,
		conns: make(map[string]*Conn),
	}
	s.upgrader = websocket.Upgrader{
		Subprotocols: []string{ProtocolCBOR, ProtocolJSON},
		CheckOrigin:  s.checkOrigin,
	}
	return s
}

// Register mounts the upgrade endpoint on mux at path.
func (s *Server) Register(mux *http.ServeMux, path string) {
	if path == "" {
		path = DefaultPath
	}
	mux.Handle("GET "+path, s)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		slog.Debug("socket: upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	c := newConn(s.newID(), ws, s.hub, s.opts)
	if !s.track(c) {
		_ = ws.Close()
		return
	}
	if err := s.hub.Connect(c); err != nil {
		slog.Error("socket: register connection", "conn", c.id, "err", err)
		s.untrack(c, true)
		_ = ws.Close()
		return
	}
	slog.Debug("socket: accepted", "conn", c.id, "remote", r.RemoteAddr, "protocol", c.codec.Name())

	go func() {
		defer s.wg.Done()
		c.writePump()
	}()
	go func() {
		defer s.wg.Done()
		defer s.untrack(c, false)
		c.readPump()
	}()
}

// Len returns the number of open sockets.
func (s *Server) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Close stops accepting sockets, closes every open one and waits for their
// loops to exit.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	conns := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
	s.wg.Wait()
	return nil
}

// track registers c and reserves wg slots for its loops under s.mu.
func (s *Server) track(c *Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if _, dup := s.conns[c.id]; dup {
		return false
	}
	s.conns[c.id] = c
	s.wg.Add(connLoops)
	return true
}

// untrack forgets c. releaseLoops hands back the wg slots of loops that were
// never started.
func (s *Server) untrack(c *Conn, releaseLoops bool) {
	s.mu.Lock()
	if s.conns[c.id] == c {
		delete(s.conns, c.id)
	}
	s.mu.Unlock()
	if releaseLoops {
		s.wg.Add(-connLoops)
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range s.opts.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

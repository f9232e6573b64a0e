package socket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switchboard/switchboard/internal/bus"
	"github.com/switchboard/switchboard/internal/hub"
	"github.com/switchboard/switchboard/internal/store"
)

type testEnv struct {
	url    string
	hub    *hub.Hub
	store  *store.Memory
	server *Server
}

func newEnv(t *testing.T, configure ...func(*Server)) *testEnv {
	t.Helper()
	st := store.NewMemory(store.Options{})
	ex := bus.NewExchange()
	h := hub.New(ex, st)
	s := NewServer(h, Options{PingInterval: time.Second, WriteTimeout: time.Second})
	for _, fn := range configure {
		fn(s)
	}

	mux := http.NewServeMux()
	s.Register(mux, "")
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		s.Close()
		h.Close()
		ex.Close()
	})
	return &testEnv{
		url:    "ws" + strings.TrimPrefix(srv.URL, "http") + DefaultPath,
		hub:    h,
		store:  st,
		server: s,
	}
}

type client struct {
	t       *testing.T
	ws      *websocket.Conn
	codec   Codec
	nextCID int64
	pending []map[string]any
}

func (e *testEnv) dial(t *testing.T, protocols ...string) *client {
	t.Helper()
	d := websocket.Dialer{Subprotocols: protocols, HandshakeTimeout: time.Second}
	ws, _, err := d.Dial(e.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return &client{t: t, ws: ws, codec: codecFor(ws.Subprotocol())}
}

func (c *client) send(event string, data any, cid *int64) {
	c.t.Helper()
	msg, err := c.codec.Marshal(inbound{Event: event, Data: data, CID: cid})
	require.NoError(c.t, err)
	require.NoError(c.t, c.ws.WriteMessage(c.codec.MessageType(), msg))
}

func (c *client) read() map[string]any {
	c.t.Helper()
	require.NoError(c.t, c.ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	mt, raw, err := c.ws.ReadMessage()
	require.NoError(c.t, err)
	require.Equal(c.t, c.codec.MessageType(), mt)
	var frame map[string]any
	require.NoError(c.t, c.codec.Unmarshal(raw, &frame))
	return frame
}

// next returns the first frame, buffered or read, that match accepts.
func (c *client) next(match func(map[string]any) bool) map[string]any {
	c.t.Helper()
	for i, f := range c.pending {
		if match(f) {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return f
		}
	}
	for {
		f := c.read()
		if match(f) {
			return f
		}
		c.pending = append(c.pending, f)
	}
}

func (c *client) call(event string, data any) map[string]any {
	c.t.Helper()
	c.nextCID++
	cid := c.nextCID
	c.send(event, data, &cid)
	return c.next(func(f map[string]any) bool {
		rid, ok := asInt(f["rid"])
		return ok && rid == cid
	})
}

func (c *client) event(name string) map[string]any {
	c.t.Helper()
	return c.next(func(f map[string]any) bool { return f["event"] == name })
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case uint64:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}

func TestLogin(t *testing.T) {
	env := newEnv(t)
	master := env.dial(t)
	agent := env.dial(t)

	resp := master.call("login", "master")
	assert.Equal(t, "respond", resp["data"])
	assert.NotContains(t, resp, "error")

	resp = agent.call("login", "anything")
	assert.Equal(t, "log", resp["data"])

	resp = agent.call("login", "master")
	assert.Contains(t, resp["error"], "already logged in")
	assert.Nil(t, resp["data"])
}

func TestMasterAgentRelay(t *testing.T) {
	env := newEnv(t)
	master := env.dial(t)
	agent := env.dial(t)

	master.call("login", "master")
	master.call(EventSubscribe, map[string]any{"channel": "respond"})
	agent.call("login", "agent")

	agent.send("respond", map[string]any{"msg": "hi"}, nil)
	pub := master.event(hub.EventPublish)
	assert.Equal(t, map[string]any{
		"channel": "respond",
		"data":    map[string]any{"msg": "hi"},
	}, pub["data"])

	require.NoError(t, agent.ws.Close())
	pub = master.event(hub.EventPublish)
	data, ok := pub["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "respond", data["channel"])
	notice, ok := data["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "DISCONNECTED", notice["type"])
	assert.NotEmpty(t, notice["id"])
}

func TestLogNoIDIsTagged(t *testing.T) {
	env := newEnv(t)
	watcher := env.dial(t)
	sender := env.dial(t)

	watcher.call(EventSubscribe, "log")
	sender.send("log-noid", "line", nil)

	pub := watcher.event(hub.EventPublish)
	data := pub["data"].(map[string]any)
	assert.Equal(t, "log", data["channel"])
	tagged := data["data"].(map[string]any)
	assert.Equal(t, "line", tagged["data"])
	assert.NotEmpty(t, tagged["id"])
}

func TestReportSnapshotOnSubscribe(t *testing.T) {
	env := newEnv(t)
	res, err := env.store.Add(context.Background(), map[string]any{"type": "ACTION", "payload": "{}", "title": "first"})
	require.NoError(t, err)
	c := env.dial(t)

	resp := c.call(EventSubscribe, map[string]any{"channel": "report"})
	assert.NotContains(t, resp, "error")

	report := c.event("report")
	data := report["data"].(map[string]any)
	assert.Equal(t, "list", data["type"])
	assert.Equal(t, []any{map[string]any{
		"id":    res.ID,
		"title": "first",
		"added": res.Record["added"],
	}}, data["data"])
}

func TestGetReport(t *testing.T) {
	env := newEnv(t)
	res, err := env.store.Add(context.Background(), map[string]any{"type": "ACTION", "payload": "{}"})
	require.NoError(t, err)
	c := env.dial(t)

	resp := c.call("getReport", res.ID)
	rec, ok := resp["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, res.ID, rec["id"])
	assert.Equal(t, "ACTION", rec["type"])

	resp = c.call("getReport", "missing")
	assert.Contains(t, resp, "data")
	assert.Nil(t, resp["data"])
}

func TestCBOR(t *testing.T) {
	env := newEnv(t)
	c := env.dial(t, ProtocolCBOR)
	require.Equal(t, ProtocolCBOR, c.ws.Subprotocol())
	json := env.dial(t)

	resp := c.call("login", "master")
	assert.Equal(t, "respond", resp["data"])

	c.call(EventSubscribe, "sc-room")
	json.send("sc-room", map[string]any{"n": 1}, nil)

	pub := c.event(hub.EventPublish)
	data := pub["data"].(map[string]any)
	assert.Equal(t, "sc-room", data["channel"])
	inner := data["data"].(map[string]any)
	n, ok := asInt(inner["n"])
	require.True(t, ok)
	assert.EqualValues(t, 1, n)
}

func TestUnsubscribe(t *testing.T) {
	env := newEnv(t)
	c := env.dial(t)
	other := env.dial(t)

	c.call(EventSubscribe, "sc-a")
	c.call(EventUnsubscribe, map[string]any{"channel": "sc-a"})
	other.send("sc-a", "x", nil)

	// a round trip after the publish proves nothing was queued before it
	resp := c.call("ping", nil)
	assert.Nil(t, resp["data"])
	assert.Empty(t, c.pending)
}

func TestBadFrames(t *testing.T) {
	env := newEnv(t)
	c := env.dial(t)

	require.NoError(t, c.ws.WriteMessage(websocket.TextMessage, []byte("not json")))
	resp := c.call(EventSubscribe, map[string]any{})
	assert.Contains(t, resp["error"], "channel name required")

	resp = c.call("whatever", 1)
	assert.NotContains(t, resp, "error")
	assert.Nil(t, resp["data"])
}

func TestServerClose(t *testing.T) {
	env := newEnv(t)
	c := env.dial(t)
	c.call("login", "agent")
	require.Equal(t, 1, env.server.Len())

	require.NoError(t, env.server.Close())

	require.NoError(t, c.ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := c.ws.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	assert.Zero(t, env.server.Len())
	assert.Zero(t, env.hub.Registry().Len())
}

type idlePeer struct{ id string }

func (p idlePeer) ID() string           { return p.id }
func (idlePeer) Emit(string, any) error { return nil }
func (idlePeer) Close() error           { return nil }

func TestRejectedConnectionReleasesLoops(t *testing.T) {
	env := newEnv(t, func(s *Server) {
		s.newID = func() string { return "taken" }
	})
	require.NoError(t, env.hub.Connect(idlePeer{id: "taken"}))

	c := env.dial(t)
	require.NoError(t, c.ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := c.ws.ReadMessage()
	require.Error(t, err)
	assert.Zero(t, env.server.Len())

	done := make(chan struct{})
	go func() {
		_ = env.server.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
}

func TestCheckOrigin(t *testing.T) {
	s := NewServer(nil, Options{AllowedOrigins: []string{"https://ok.example"}})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.True(t, s.checkOrigin(r))
	r.Header.Set("Origin", "https://ok.example")
	assert.True(t, s.checkOrigin(r))
	r.Header.Set("Origin", "https://bad.example")
	assert.False(t, s.checkOrigin(r))
}

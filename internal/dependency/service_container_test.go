package dependency

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switchboard/switchboard/internal/config"
)

func TestNew_WiresServices(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Store.Path = filepath.Join(t.TempDir(), "reports.db")
	cfg.Store.RetentionDays = 7

	c, err := New(&cfg)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, c.Close()) })

	assert.NotNil(t, c.Store())
	assert.NotNil(t, c.Exchange())
	assert.NotNil(t, c.Hub())
	assert.NotNil(t, c.Ingest())
	assert.NotNil(t, c.Sockets())
	assert.NotNil(t, c.Sweeper())
	assert.True(t, c.Pruner().Enabled())

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health-check")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/", "application/json", strings.NewReader(`{"type":"ACTION","payload":"{}"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNew_LogRequestsKeepsUpgrades(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Store.Driver = "memory"
	cfg.Server.LogRequests = true

	c, err := New(&cfg)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, c.Close()) })

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health-check")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + cfg.Server.SocketPath
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	ws.Close()
}

func TestNew_InvalidPruneSchedule(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Store.Driver = "memory"
	cfg.Store.PruneSchedule = "every tuesday"

	_, err := New(&cfg)
	assert.ErrorContains(t, err, "invalid prune schedule")
}

func TestNew_UnknownDriver(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Store.Driver = "postgres"

	_, err := New(&cfg)
	assert.ErrorContains(t, err, "unknown store driver")
}

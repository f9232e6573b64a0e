package cmd

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switchboard/switchboard/internal/config"
	"github.com/switchboard/switchboard/internal/store"
)

// execute runs the root command with args and returns what it printed.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	reportsListQuery, reportsListFields, reportsListJSON = nil, nil, false
	reportsPruneDays = 0
	configPath, verbose = "", false

	r, w, err := os.Pipe()
	require.NoError(t, err)
	stdout := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = stdout }()

	out := make(chan string)
	go func() {
		b, _ := io.ReadAll(r)
		out <- string(b)
	}()

	rootCmd.SetArgs(args)
	runErr := rootCmd.Execute()
	w.Close()
	return <-out, runErr
}

func writeConfig(t *testing.T, edit func(*config.Config)) string {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Store.Path = filepath.Join(dir, "reports.db")
	if edit != nil {
		edit(&cfg)
	}
	path := filepath.Join(dir, "config.json")
	require.NoError(t, config.Save(&cfg, path))
	return path
}

func TestReportsCommands(t *testing.T) {
	cfgPath := writeConfig(t, nil)

	out, err := execute(t, "reports", "add", "-c", cfgPath, `{"type":"ACTION","payload":"{}","title":"first"}`)
	require.NoError(t, err)
	require.Contains(t, out, "Stored report ")
	id := strings.TrimSpace(out[strings.Index(out, "Stored report ")+len("Stored report "):])

	out, err = execute(t, "reports", "list", "-c", cfgPath, "--json")
	require.NoError(t, err)
	var recs []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, id, recs[0]["id"])
	assert.Equal(t, "first", recs[0]["title"])

	out, err = execute(t, "reports", "list", "-c", cfgPath, "-q", "type=ACTION")
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "first")

	out, err = execute(t, "reports", "list", "-c", cfgPath, "-q", "type=ERROR")
	require.NoError(t, err)
	assert.Contains(t, out, "No reports.")

	out, err = execute(t, "reports", "get", "-c", cfgPath, id)
	require.NoError(t, err)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, "ACTION", rec["type"])

	_, err = execute(t, "reports", "get", "-c", cfgPath, "missing")
	assert.ErrorContains(t, err, "not found")

	out, err = execute(t, "status", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Records:   1")
	assert.Contains(t, out, "Retention: keep forever")

	_, err = execute(t, "reports", "prune", "-c", cfgPath)
	assert.ErrorContains(t, err, "no retention configured")

	out, err = execute(t, "reports", "prune", "-c", cfgPath, "--days", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 0 report(s)")
}

func TestReportsAdd_MemoryDriver(t *testing.T) {
	cfgPath := writeConfig(t, func(cfg *config.Config) {
		cfg.Store.Driver = store.DriverMemory
	})

	out, err := execute(t, "reports", "add", "-c", cfgPath, `{"type":"ACTION","payload":"{}"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "Stored report")

	_, err = execute(t, "reports", "add", "-c", cfgPath, `{"type":"ACTION"}`)
	assert.ErrorContains(t, err, "required parameters are missing: payload")

	_, err = execute(t, "reports", "add", "-c", cfgPath, `[1,2]`)
	assert.ErrorContains(t, err, "must be a JSON object")

	out, err = execute(t, "status", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "memory (in memory)")
}

func TestOnboard(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")

	out, err := execute(t, "onboard", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Created config at "+cfgPath)

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig().Server.Port, cfg.Server.Port)
	assert.DirExists(t, filepath.Join(home, ".switchboard"))
}

// Package config defines the configuration schema for switchboard.
//
// JSON keys use camelCase. Durations are stored as integer milliseconds.
package config

import (
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ServerConfig holds the listener settings shared by the ingestion endpoint
// and the websocket transport.
type ServerConfig struct {
	Host           string   `json:"host" yaml:"host"`
	Port           int      `json:"port" yaml:"port"`
	SocketPath     string   `json:"socketPath" yaml:"socketPath"`
	AllowedOrigins []string `json:"allowedOrigins" yaml:"allowedOrigins"`
	// LogRequests writes one access-log line per HTTP request.
	LogRequests bool `json:"logRequests" yaml:"logRequests"`
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:           "0.0.0.0",
		Port:           8000,
		SocketPath:     "/socketcluster/",
		AllowedOrigins: []string{},
	}
}

// Addr returns host:port for net.Listen.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// ExchangeConfig tunes the in-process pub/sub exchange.
type ExchangeConfig struct {
	// SubscriberBuffer is the per-subscription queue length.
	SubscriberBuffer int `json:"subscriberBuffer" yaml:"subscriberBuffer"`
}

// StoreConfig selects and tunes the record store.
type StoreConfig struct {
	Driver         string   `json:"driver" yaml:"driver"`
	Path           string   `json:"path" yaml:"path"`
	BaseFields     []string `json:"baseFields,omitempty" yaml:"baseFields,omitempty"`
	RequiredFields []string `json:"requiredFields,omitempty" yaml:"requiredFields,omitempty"`
	// RetentionDays <= 0 keeps records forever.
	RetentionDays int    `json:"retentionDays" yaml:"retentionDays"`
	PruneSchedule string `json:"pruneSchedule" yaml:"pruneSchedule"`
}

func defaultStoreConfig() StoreConfig {
	return StoreConfig{
		Driver:        "sqlite",
		Path:          "~/.switchboard/reports.db",
		PruneSchedule: "0 3 * * *",
	}
}

// ResolvedPath returns Path with a leading ~/ expanded.
func (s StoreConfig) ResolvedPath() string {
	return expandHome(s.Path)
}

// Retention returns the configured retention, or 0 when pruning is off.
func (s StoreConfig) Retention() time.Duration {
	if s.RetentionDays <= 0 {
		return 0
	}
	return time.Duration(s.RetentionDays) * 24 * time.Hour
}

type ReportConfig struct {
	SnapshotTimeoutMs int `json:"snapshotTimeoutMs" yaml:"snapshotTimeoutMs"`
}

func (r ReportConfig) SnapshotTimeout() time.Duration { return ms(r.SnapshotTimeoutMs) }

type IngestConfig struct {
	StoreTimeoutMs int   `json:"storeTimeoutMs" yaml:"storeTimeoutMs"`
	MaxBodyBytes   int64 `json:"maxBodyBytes" yaml:"maxBodyBytes"`
}

func (i IngestConfig) StoreTimeout() time.Duration { return ms(i.StoreTimeoutMs) }

// SocketConfig tunes the websocket transport and the idle sweeper.
type SocketConfig struct {
	PingIntervalMs  int   `json:"pingIntervalMs" yaml:"pingIntervalMs"`
	WriteTimeoutMs  int   `json:"writeTimeoutMs" yaml:"writeTimeoutMs"`
	MaxMessageBytes int64 `json:"maxMessageBytes" yaml:"maxMessageBytes"`
	SendBuffer      int   `json:"sendBuffer" yaml:"sendBuffer"`
	// IdleTimeoutMs <= 0 disables the idle sweeper.
	IdleTimeoutMs   int `json:"idleTimeoutMs" yaml:"idleTimeoutMs"`
	SweepIntervalMs int `json:"sweepIntervalMs" yaml:"sweepIntervalMs"`
}

func defaultSocketConfig() SocketConfig {
	return SocketConfig{
		PingIntervalMs:  25_000,
		WriteTimeoutMs:  10_000,
		MaxMessageBytes: 1 << 20,
		SendBuffer:      256,
		IdleTimeoutMs:   120_000,
		SweepIntervalMs: 30_000,
	}
}

func (s SocketConfig) PingInterval() time.Duration  { return ms(s.PingIntervalMs) }
func (s SocketConfig) WriteTimeout() time.Duration  { return ms(s.WriteTimeoutMs) }
func (s SocketConfig) IdleTimeout() time.Duration   { return ms(s.IdleTimeoutMs) }
func (s SocketConfig) SweepInterval() time.Duration { return ms(s.SweepIntervalMs) }

type LogConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // text or json
}

// Config is the root configuration object.
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Exchange ExchangeConfig `json:"exchange" yaml:"exchange"`
	Store    StoreConfig    `json:"store" yaml:"store"`
	Report   ReportConfig   `json:"report" yaml:"report"`
	Ingest   IngestConfig   `json:"ingest" yaml:"ingest"`
	Socket   SocketConfig   `json:"socket" yaml:"socket"`
	Log      LogConfig      `json:"log" yaml:"log"`
}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() Config {
	return Config{
		Server:   defaultServerConfig(),
		Exchange: ExchangeConfig{SubscriberBuffer: 128},
		Store:    defaultStoreConfig(),
		Report:   ReportConfig{SnapshotTimeoutMs: 5_000},
		Ingest:   IngestConfig{StoreTimeoutMs: 10_000, MaxBodyBytes: 1 << 20},
		Socket:   defaultSocketConfig(),
		Log:      LogConfig{Level: "info", Format: "text"},
	}
}

func ms(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Millisecond
}

func expandHome(p string) string {
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return p
}

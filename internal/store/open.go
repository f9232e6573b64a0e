package store

import (
	"context"
	"fmt"

	"github.com/switchboard/switchboard/internal/schema"
)

const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Counter is implemented by stores that can report their size cheaply.
type Counter interface {
	Count(ctx context.Context) (int64, error)
}

// Open returns the store selected by driver. An empty driver means SQLite.
func Open(driver, path string, opts Options) (schema.Store, error) {
	switch driver {
	case "", DriverSQLite:
		return OpenSQLite(path, opts)
	case DriverMemory:
		return NewMemory(opts), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

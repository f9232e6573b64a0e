package schema

import (
	"context"
	"time"
)

// Record is one stored report. It always carries an "id" key once stored.
type Record map[string]any

// ID returns the record identifier, or "" when absent.
func (r Record) ID() string {
	id, _ := r["id"].(string)
	return id
}

// AddResult is the outcome of Store.Add. A validation failure is reported in
// Error with an empty ID; it is never returned as a Go error.
type AddResult struct {
	ID     string `json:"id,omitempty"`
	Error  string `json:"error,omitempty"`
	Record Record `json:"-"`
}

// OK reports whether the record was stored.
func (r AddResult) OK() bool { return r.Error == "" }

// Store is the record persistence capability the hub depends on.
type Store interface {
	// Get returns the record with id, or nil when it does not exist.
	Get(ctx context.Context, id string) (Record, error)
	// List returns records whose top-level fields equal every entry of query.
	// When fields is empty each record is reduced to its base fields.
	List(ctx context.Context, query map[string]any, fields []string) ([]Record, error)
	// Add validates and stores body as a new record.
	Add(ctx context.Context, body map[string]any) (AddResult, error)
	// Project reduces a record to its base fields.
	Project(rec Record) Record
	// Prune deletes records added before the cutoff and returns how many were removed.
	Prune(ctx context.Context, before time.Time) (int64, error)
	Close() error
}

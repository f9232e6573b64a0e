// Package store provides the record stores behind the ingestion endpoint and
// the report channel: a SQLite store for production and an in-memory store
// for tests and throwaway hubs.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/switchboard/switchboard/internal/schema"
)

// ErrInvalidQuery is returned by List when a query value is not a JSON scalar.
var ErrInvalidQuery = errors.New("store: invalid query")

var (
	// DefaultBaseFields is the projection broadcast on the report channel.
	DefaultBaseFields = []string{"id", "title", "added"}
	// DefaultRequiredFields must be present and non-empty for Add to succeed.
	DefaultRequiredFields = []string{"type", "payload"}
)

// Request-control keys of the ingestion body that are not stored.
var controlFields = map[string]struct{}{
	"op":    {},
	"event": {},
}

// Options controls record validation and projection.
type Options struct {
	BaseFields     []string
	RequiredFields []string
}

func (o Options) withDefaults() Options {
	if len(o.BaseFields) == 0 {
		o.BaseFields = DefaultBaseFields
	}
	if o.RequiredFields == nil {
		o.RequiredFields = DefaultRequiredFields
	}
	return o
}

// prepare turns an ingestion body into a record ready to store. The second
// return value is a validation message; empty means valid.
func (o Options) prepare(body map[string]any, now time.Time) (schema.Record, string, error) {
	rec := make(schema.Record, len(body)+2)
	for k, v := range body {
		if _, skip := controlFields[k]; skip {
			continue
		}
		rec[k] = v
	}
	rec["id"] = uuid.NewString()
	rec["added"] = now.UnixMilli()
	if isEmpty(rec["title"]) {
		if title := deriveTitle(rec); title != "" {
			rec["title"] = title
		}
	}

	var missing []string
	for _, f := range o.RequiredFields {
		if isEmpty(rec[f]) {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Sprintf("required parameters are missing: %s", strings.Join(missing, ", ")), nil
	}

	norm, err := normalize(rec)
	if err != nil {
		return nil, "", err
	}
	return norm, "", nil
}

func project(rec schema.Record, fields []string) schema.Record {
	if rec == nil {
		return nil
	}
	out := make(schema.Record, len(fields))
	for _, f := range fields {
		if v, ok := rec[f]; ok {
			out[f] = v
		}
	}
	return out
}

// checkQuery rejects query values that cannot be compared as a single
// field: only null, booleans, numbers and strings are allowed.
func checkQuery(query map[string]any) error {
	for k, v := range query {
		switch v.(type) {
		case nil, bool, string, float64, float32, int, int64, int32:
		default:
			return fmt.Errorf("%w: unsupported value for %q: %T", ErrInvalidQuery, k, v)
		}
	}
	return nil
}

// matches reports whether every query entry equals the record's field.
// Both sides are expected to be JSON-normalized.
func matches(rec schema.Record, query map[string]any) bool {
	for k, want := range query {
		if !reflect.DeepEqual(rec[k], want) {
			return false
		}
	}
	return true
}

// normalize round-trips v through JSON so numbers become float64 and nested
// values become plain maps and slices, whatever the caller passed in.
func normalize(v map[string]any) (schema.Record, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	var out schema.Record
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return out, nil
}

// deriveTitle falls back to the exception message or the action type.
func deriveTitle(rec schema.Record) string {
	if exc, ok := rec["exception"].(map[string]any); ok {
		if msg, ok := exc["message"].(string); ok && msg != "" {
			return msg
		}
	}
	switch action := rec["action"].(type) {
	case string:
		return action
	case map[string]any:
		if t, ok := action["type"].(string); ok {
			return t
		}
	}
	return ""
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	}
	return false
}

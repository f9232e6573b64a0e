package store

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/switchboard/switchboard/internal/schema"
)

// Memory is a process-local Store. Records are lost on exit.
type Memory struct {
	opts Options
	now  func() time.Time

	mu      sync.RWMutex
	records map[string]schema.Record
}

func NewMemory(opts Options) *Memory {
	return &Memory{
		opts:    opts.withDefaults(),
		now:     time.Now,
		records: make(map[string]schema.Record),
	}
}

func (m *Memory) Get(_ context.Context, id string) (schema.Record, error) {
	m.mu.RLock()
	rec, ok := m.records[id]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	return normalize(rec)
}

func (m *Memory) List(_ context.Context, query map[string]any, fields []string) ([]schema.Record, error) {
	if err := checkQuery(query); err != nil {
		return nil, err
	}
	q, err := normalize(query)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		fields = m.opts.BaseFields
	}

	m.mu.RLock()
	matched := make([]schema.Record, 0, len(m.records))
	for _, rec := range m.records {
		if matches(rec, q) {
			matched = append(matched, rec)
		}
	}
	m.mu.RUnlock()

	sortNewestFirst(matched)
	out := make([]schema.Record, len(matched))
	for i, rec := range matched {
		out[i] = project(rec, fields)
	}
	return out, nil
}

func (m *Memory) Add(_ context.Context, body map[string]any) (schema.AddResult, error) {
	rec, invalid, err := m.opts.prepare(body, m.now())
	if err != nil {
		return schema.AddResult{}, err
	}
	if invalid != "" {
		return schema.AddResult{Error: invalid}, nil
	}

	m.mu.Lock()
	m.records[rec.ID()] = rec
	m.mu.Unlock()

	return schema.AddResult{ID: rec.ID(), Record: rec}, nil
}

func (m *Memory) Project(rec schema.Record) schema.Record {
	return project(rec, m.opts.BaseFields)
}

func (m *Memory) Prune(_ context.Context, before time.Time) (int64, error) {
	cutoff := float64(before.UnixMilli())

	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, rec := range m.records {
		if added, _ := rec["added"].(float64); added < cutoff {
			delete(m.records, id)
			n++
		}
	}
	return n, nil
}

func (m *Memory) Close() error { return nil }

func sortNewestFirst(recs []schema.Record) {
	slices.SortFunc(recs, func(a, b schema.Record) int {
		ta, _ := a["added"].(float64)
		tb, _ := b["added"].(float64)
		if c := cmp.Compare(tb, ta); c != 0 {
			return c
		}
		return cmp.Compare(a.ID(), b.ID())
	})
}

// Count returns the number of stored records.
func (m *Memory) Count(context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.records)), nil
}

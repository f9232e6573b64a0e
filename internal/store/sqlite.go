package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/switchboard/switchboard/internal/schema"

	_ "modernc.org/sqlite"
)

// SQLite stores records as JSON documents in a single table. Filters use
// json_extract so arbitrary top-level fields can be queried.
type SQLite struct {
	db   *sql.DB
	opts Options
	now  func() time.Time
}

func OpenSQLite(path string, opts Options) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := openDB(path)
	if err != nil {
		return nil, fmt.Errorf("open report db: %w", err)
	}
	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS reports (
	id TEXT PRIMARY KEY,
	type TEXT,
	title TEXT,
	added INTEGER NOT NULL,
	body TEXT NOT NULL
)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize reports schema: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS reports_added ON reports (added)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize reports index: %w", err)
	}

	return &SQLite{db: db, opts: opts.withDefaults(), now: time.Now}, nil
}

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	return db, nil
}

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLite) Get(ctx context.Context, id string) (schema.Record, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM reports WHERE id = ?`, id).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query report %s: %w", id, err)
	}
	return unmarshalRecord(body)
}

func (s *SQLite) List(ctx context.Context, query map[string]any, fields []string) ([]schema.Record, error) {
	where, args, err := buildFilter(query)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		fields = s.opts.BaseFields
	}

	rows, err := s.db.QueryContext(ctx, `SELECT body FROM reports`+where+` ORDER BY added DESC, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	out := make([]schema.Record, 0)
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		rec, err := unmarshalRecord(body)
		if err != nil {
			return nil, err
		}
		out = append(out, project(rec, fields))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	return out, nil
}

func (s *SQLite) Add(ctx context.Context, body map[string]any) (schema.AddResult, error) {
	rec, invalid, err := s.opts.prepare(body, s.now())
	if err != nil {
		return schema.AddResult{}, err
	}
	if invalid != "" {
		return schema.AddResult{Error: invalid}, nil
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return schema.AddResult{}, fmt.Errorf("marshal report: %w", err)
	}
	typ, _ := rec["type"].(string)
	title, _ := rec["title"].(string)
	added, _ := rec["added"].(float64)
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO reports (id, type, title, added, body) VALUES (?, ?, ?, ?, ?)`,
		rec.ID(), typ, title, int64(added), string(payload),
	); err != nil {
		return schema.AddResult{}, fmt.Errorf("insert report: %w", err)
	}

	return schema.AddResult{ID: rec.ID(), Record: rec}, nil
}

func (s *SQLite) Project(rec schema.Record) schema.Record {
	return project(rec, s.opts.BaseFields)
}

func (s *SQLite) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reports WHERE added < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune reports: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune reports: %w", err)
	}
	return n, nil
}

// Count returns the number of stored records.
func (s *SQLite) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count reports: %w", err)
	}
	return n, nil
}

// buildFilter renders query as a WHERE clause. Only scalar values are
// supported; keys are sorted so the statement text is stable.
func buildFilter(query map[string]any) (string, []any, error) {
	if len(query) == 0 {
		return "", nil, nil
	}
	if err := checkQuery(query); err != nil {
		return "", nil, err
	}
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	clauses := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		path := `$."` + strings.ReplaceAll(k, `"`, `\"`) + `"`
		switch v := query[k].(type) {
		case nil:
			clauses = append(clauses, `json_extract(body, ?) IS NULL`)
			args = append(args, path)
		case bool:
			n := 0
			if v {
				n = 1
			}
			clauses = append(clauses, `json_extract(body, ?) = ?`)
			args = append(args, path, n)
		case string, float64, float32, int, int64, int32:
			clauses = append(clauses, `json_extract(body, ?) = ?`)
			args = append(args, path, v)
		}
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

func unmarshalRecord(body string) (schema.Record, error) {
	var rec schema.Record
	if err := json.Unmarshal([]byte(body), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}
	return rec, nil
}

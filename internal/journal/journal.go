package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/flitsinc/go-golem/internal/eventbus"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS events (
  id TEXT PRIMARY KEY,
  trace_id TEXT NOT NULL,
  parent_id TEXT,
  type TEXT NOT NULL,
  payload TEXT,
  source TEXT,
  created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_trace_id ON events(trace_id);
CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);
`

// Journal appends every bus event to SQLite for post-mortem trace
// inspection. Runtime state never reads from it; deleting the file between
// runs loses nothing but history.
type Journal struct {
	log *zap.Logger
	db  *sql.DB
}

func Open(log *zap.Logger, path string) (*Journal, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", stmt, err)
		}
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Journal{log: log, db: db}, nil
}

func migrate(db *sql.DB) error {
	for _, raw := range strings.Split(schemaSQL, ";") {
		stmt := strings.TrimSpace(raw)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate journal: %w (statement=%q)", err, stmt)
		}
	}
	return nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Attach subscribes the journal to every bus event.
func (j *Journal) Attach(bus *eventbus.Bus) func() {
	return bus.Subscribe("*", func(ctx context.Context, evt eventbus.Event) {
		if err := j.Append(evt); err != nil {
			j.log.Warn("journal append failed", zap.String("event", evt.ID), zap.Error(err))
		}
	})
}

func (j *Journal) Append(evt eventbus.Event) error {
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	_, err = j.db.Exec(
		`INSERT OR IGNORE INTO events (id, trace_id, parent_id, type, payload, source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		evt.ID, evt.TraceID, evt.ParentID, evt.Type, string(payload), evt.Source,
		evt.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// ByTrace returns the stored causal chain for a trace, oldest first.
func (j *Journal) ByTrace(ctx context.Context, traceID string) ([]eventbus.Event, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, trace_id, parent_id, type, payload, source, created_at
		 FROM events WHERE trace_id = ? ORDER BY created_at ASC, rowid ASC`, traceID)
	if err != nil {
		return nil, fmt.Errorf("query trace: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// Recent returns the newest stored events, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]eventbus.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, trace_id, parent_id, type, payload, source, created_at
		 FROM events ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]eventbus.Event, error) {
	var out []eventbus.Event
	for rows.Next() {
		var evt eventbus.Event
		var payload, createdAt string
		var parentID sql.NullString
		if err := rows.Scan(&evt.ID, &evt.TraceID, &parentID, &evt.Type, &payload, &evt.Source, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		evt.ParentID = parentID.String
		if payload != "" {
			if err := json.Unmarshal([]byte(payload), &evt.Payload); err != nil {
				return nil, fmt.Errorf("decode payload: %w", err)
			}
		}
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			evt.Timestamp = ts
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

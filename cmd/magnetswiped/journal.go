package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"magnetswipe"
)

// Journal records every detector outcome in SQLite.
type Journal struct {
	db *sql.DB
}

// JournalEntry is one recorded outcome.
type JournalEntry struct {
	ID           uuid.UUID `json:"id"`
	Type         string    `json:"type"`
	Code         int       `json:"code,omitempty"`
	Message      string    `json:"message,omitempty"`
	KeepCallback bool      `json:"keep_callback"`
	At           time.Time `json:"ts"`
}

// OpenJournal opens (creating if needed) the journal database at path.
func OpenJournal(path string) (*Journal, error) {
	path = ExpandPath(path)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// A single writer goroutine owns the journal.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
		CREATE TABLE IF NOT EXISTS events (
			event_id          TEXT PRIMARY KEY,
			type              TEXT NOT NULL,
			code              INTEGER NOT NULL DEFAULT 0,
			message           TEXT NOT NULL DEFAULT '',
			keep_callback     INTEGER NOT NULL,
			payload           TEXT NOT NULL,
			ts_unix_nanos     BIGINT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_events_ts ON events (ts_unix_nanos);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init journal schema: %w", err)
	}

	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Record stores one outcome.
func (j *Journal) Record(ctx context.Context, o outcome) error {
	typ, err := magnetswipe.EventType(o.Event)
	if err != nil {
		return err
	}
	payload, err := magnetswipe.MarshalEvent(o.Event)
	if err != nil {
		return err
	}

	var code int
	var msg string
	if ee, ok := o.Event.(magnetswipe.ErrorEvent); ok {
		code, msg = ee.Code, ee.Message
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO events (event_id, type, code, message, keep_callback, payload, ts_unix_nanos)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		o.ID.String(), typ, code, msg, o.Event.KeepCallback(), string(payload), o.At.UnixNano())
	if err != nil {
		return fmt.Errorf("insert journal event: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT event_id, type, code, message, keep_callback, ts_unix_nanos
		FROM events
		ORDER BY ts_unix_nanos DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	entries := []JournalEntry{}
	for rows.Next() {
		var (
			id    string
			e     JournalEntry
			nanos int64
		)
		if err := rows.Scan(&id, &e.Type, &e.Code, &e.Message, &e.KeepCallback, &nanos); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse journal id %q: %w", id, err)
		}
		e.At = time.Unix(0, nanos).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Counts returns the number of recorded events per type.
func (j *Journal) Counts(ctx context.Context) (map[string]int, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM events GROUP BY type`)
	if err != nil {
		return nil, fmt.Errorf("count journal events: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, err
		}
		out[typ] = n
	}
	return out, rows.Err()
}

// RunJournal records outcomes from src until it is closed or ctx is canceled.
func RunJournal(ctx context.Context, j *Journal, src <-chan outcome, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case o, ok := <-src:
			if !ok {
				return
			}
			if err := j.Record(ctx, o); err != nil {
				logger.Error("journal write failed", "id", o.ID, "error", err)
			}
		}
	}
}

// marshalEntries is used by the HTTP events endpoint.
func marshalEntries(entries []JournalEntry) ([]byte, error) {
	return json.Marshal(struct {
		Events []JournalEntry `json:"events"`
	}{Events: entries})
}

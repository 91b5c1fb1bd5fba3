// Package outbox queues records written while offline and flushes them to the
// backend when a sync is triggered.
package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// DatabaseName is the fixed identifier of the local offline store.
const DatabaseName = "praktikum-offline.db"

// KindKuisAttempt tags quiz-attempt records captured while offline.
const KindKuisAttempt = "kuis-attempt"

// Record is one queued offline write.
type Record struct {
	ID        string
	Kind      string
	Payload   []byte
	Synced    bool
	CreatedAt time.Time
}

// Store persists offline records in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the offline store at path. An empty path
// uses an in-memory database.
func Open(path string) (*Store, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("outbox: opening store: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		payload BLOB NOT NULL,
		synced INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_records_kind_synced ON records(kind, synced)`); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Enqueue stores a new unsynced record and returns it.
func (s *Store) Enqueue(ctx context.Context, kind string, payload []byte) (Record, error) {
	rec := Record{
		ID:        uuid.NewString(),
		Kind:      kind,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO records (id, kind, payload, synced, created_at) VALUES (?, ?, ?, 0, ?)`,
		rec.ID, rec.Kind, rec.Payload, rec.CreatedAt.UnixNano())
	if err != nil {
		return Record{}, fmt.Errorf("outbox: enqueue: %w", err)
	}
	return rec, nil
}

// Unsynced lists the records of a kind that have not been flushed yet.
func (s *Store) Unsynced(ctx context.Context, kind string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, payload, synced, created_at FROM records WHERE kind = ? AND synced = 0 ORDER BY created_at`,
		kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []Record
	for rows.Next() {
		var rec Record
		var createdAt int64
		var synced int
		if err := rows.Scan(&rec.ID, &rec.Kind, &rec.Payload, &synced, &createdAt); err != nil {
			return nil, err
		}
		rec.Synced = synced != 0
		rec.CreatedAt = time.Unix(0, createdAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// MarkSynced flags a record as flushed.
func (s *Store) MarkSynced(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE records SET synced = 1 WHERE id = ?`, id)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

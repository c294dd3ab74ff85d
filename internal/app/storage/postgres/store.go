// Package postgres implements the storage interfaces backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/vault_layer/internal/app/domain/journal"
	"github.com/R3E-Network/vault_layer/internal/app/storage"
	"github.com/R3E-Network/vault_layer/internal/record"
)

// Store implements the storage interfaces over a PostgreSQL handle.
type Store struct {
	db *sql.DB
}

var _ storage.JournalStore = (*Store)(nil)
var _ storage.SnapshotStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the vault tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS vault_journal (
			id         TEXT PRIMARY KEY,
			principal  TEXT NOT NULL,
			operation  TEXT NOT NULL,
			amount     BIGINT NOT NULL,
			generation BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS vault_journal_principal_idx ON vault_journal (principal);
		CREATE TABLE IF NOT EXISTS vault_snapshots (
			id          BIGSERIAL PRIMARY KEY,
			generation  BIGINT NOT NULL,
			schema_hash TEXT NOT NULL,
			state       JSONB NOT NULL,
			taken_at    TIMESTAMPTZ NOT NULL
		);
	`)
	return err
}

// AppendEntry implements storage.JournalStore.
func (s *Store) AppendEntry(ctx context.Context, e journal.Entry) (journal.Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vault_journal (id, principal, operation, amount, generation, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.ID, e.Principal, e.Operation, e.Amount, e.Generation, e.CreatedAt)
	if err != nil {
		return journal.Entry{}, err
	}
	return e, nil
}

// ListEntries implements storage.JournalStore. An empty principal lists
// everything.
func (s *Store) ListEntries(ctx context.Context, principal string) ([]journal.Entry, error) {
	query := `
		SELECT id, principal, operation, amount, generation, created_at
		FROM vault_journal
	`
	args := []interface{}{}
	if principal != "" {
		query += ` WHERE principal = $1`
		args = append(args, principal)
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []journal.Entry
	for rows.Next() {
		var e journal.Entry
		if err := rows.Scan(&e.ID, &e.Principal, &e.Operation, &e.Amount, &e.Generation, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SaveSnapshot implements storage.SnapshotStore.
func (s *Store) SaveSnapshot(ctx context.Context, snap record.Snapshot) error {
	state, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO vault_snapshots (generation, schema_hash, state, taken_at)
		VALUES ($1, $2, $3, $4)
	`, snap.Generation, snap.SchemaHash, state, time.Now().UTC())
	return err
}

// LatestSnapshot implements storage.SnapshotStore.
func (s *Store) LatestSnapshot(ctx context.Context) (record.Snapshot, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT state FROM vault_snapshots ORDER BY id DESC LIMIT 1
	`)
	var state []byte
	if err := row.Scan(&state); err != nil {
		if err == sql.ErrNoRows {
			return record.Snapshot{}, false, nil
		}
		return record.Snapshot{}, false, err
	}
	var snap record.Snapshot
	if err := json.Unmarshal(state, &snap); err != nil {
		return record.Snapshot{}, false, err
	}
	return snap, true, nil
}

// Package memory provides an in-memory implementation of the storage
// interfaces. It is safe for concurrent use and is primarily intended for
// tests and local development.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/vault_layer/internal/app/domain/journal"
	"github.com/R3E-Network/vault_layer/internal/app/storage"
	"github.com/R3E-Network/vault_layer/internal/record"
)

// Store is the in-memory implementation of every storage interface.
type Store struct {
	mu        sync.RWMutex
	entries   []journal.Entry
	snapshots []record.Snapshot
}

var _ storage.JournalStore = (*Store)(nil)
var _ storage.SnapshotStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{}
}

// AppendEntry implements storage.JournalStore.
func (s *Store) AppendEntry(ctx context.Context, e journal.Entry) (journal.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	s.entries = append(s.entries, e)
	return e, nil
}

// ListEntries implements storage.JournalStore. An empty principal lists
// everything.
func (s *Store) ListEntries(ctx context.Context, principal string) ([]journal.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]journal.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if principal == "" || e.Principal == principal {
			out = append(out, e)
		}
	}
	return out, nil
}

// SaveSnapshot implements storage.SnapshotStore.
func (s *Store) SaveSnapshot(ctx context.Context, snap record.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snap)
	return nil
}

// LatestSnapshot implements storage.SnapshotStore.
func (s *Store) LatestSnapshot(ctx context.Context) (record.Snapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.snapshots) == 0 {
		return record.Snapshot{}, false, nil
	}
	return s.snapshots[len(s.snapshots)-1], true, nil
}

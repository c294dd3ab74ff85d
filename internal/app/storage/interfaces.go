// Package storage declares the persistence interfaces behind the vault
// application. Implementations live in the memory and postgres subpackages.
package storage

import (
	"context"

	"github.com/R3E-Network/vault_layer/internal/app/domain/journal"
	"github.com/R3E-Network/vault_layer/internal/record"
)

// JournalStore persists the operation audit trail.
type JournalStore interface {
	AppendEntry(ctx context.Context, e journal.Entry) (journal.Entry, error)
	ListEntries(ctx context.Context, principal string) ([]journal.Entry, error)
}

// SnapshotStore persists record-store snapshots so a restart resumes the
// same storage instance.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap record.Snapshot) error
	// LatestSnapshot returns the most recent snapshot; ok is false when
	// none has been taken yet.
	LatestSnapshot(ctx context.Context) (snap record.Snapshot, ok bool, err error)
}

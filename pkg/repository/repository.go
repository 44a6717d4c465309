// Package repository defines the storage contract every Chacrab backend
// (embedded sqlite, relational postgres, document mongo) implements
// identically, so the vault, auth, and sync layers above it never know
// which backend they are talking to.
package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/chacrab/chacrab/pkg/model"
)

// Sentinel errors every backend must return for the corresponding
// condition, so callers can branch on them with errors.Is regardless of
// backend.
var (
	ErrNotFound      = errors.New("repository: item not found")
	ErrAuthNotFound  = errors.New("repository: no auth bootstrap record")
	ErrAlreadyExists = errors.New("repository: item already exists")

	// ErrCorruptNonce is returned by Get/List when a persisted item's nonce
	// is not exactly 12 bytes, per spec.md's invariant that such records
	// must be rejected as corrupt rather than handed to the AEAD.
	ErrCorruptNonce = errors.New("repository: corrupt nonce, item is not exactly 12 bytes")
)

// Repository is the storage contract. Every method must be safe for
// concurrent use; backends that are not naturally concurrency-safe (the
// embedded sqlite backend, primarily) must serialize internally.
type Repository interface {
	// InitSchema creates (or upgrades) the backend's tables/collections
	// and persists the current schema version.
	InitSchema(ctx context.Context) error

	// SchemaVersion returns the schema version currently persisted by the
	// backend, or 0 if no version record exists. The sqlite backend returns
	// an error instead when its schema_meta table has not been created yet.
	SchemaVersion(ctx context.Context) (int, error)

	// LoadAuth returns the single persisted auth bootstrap record, or
	// ErrAuthNotFound if the vault has never been initialized.
	LoadAuth(ctx context.Context) (*model.AuthBootstrap, error)

	// SaveAuth persists the auth bootstrap record, replacing any existing
	// one. Vaults have exactly one auth record.
	SaveAuth(ctx context.Context, auth *model.AuthBootstrap) error

	// List returns every non-deleted item, newest updated_at first.
	List(ctx context.Context) ([]model.VaultItem, error)

	// ListWithTombstones returns every non-deleted item plus every
	// tombstone, used by the sync engine to compute a full local view.
	ListWithTombstones(ctx context.Context) ([]model.VaultItem, []model.SyncTombstone, error)

	// Get returns a single item by id, or ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*model.VaultItem, error)

	// Upsert inserts or replaces item by ID.
	Upsert(ctx context.Context, item *model.VaultItem) error

	// Delete is the vault service's way of recording that id was deleted:
	// it removes the live item row/document and writes tombstone in one
	// step specific to each backend, returning ErrNotFound if there is no
	// live item for id. The sync engine uses UpsertTombstone instead.
	Delete(ctx context.Context, id uuid.UUID, tombstone model.SyncTombstone) error

	// UpsertTombstone records (or replaces) a tombstone directly, used
	// when applying a deletion received from a sync peer.
	UpsertTombstone(ctx context.Context, tombstone model.SyncTombstone) error

	// Close releases any resources (connections, pools, file handles)
	// held by the backend.
	Close(ctx context.Context) error
}

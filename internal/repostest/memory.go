// Package repostest provides an in-memory repository.Repository used by
// the test suites of pkg/vaultsvc, pkg/sync, and pkg/backup, mirroring the
// in-memory MemoryRepo fixture the reference sync engine's own test module
// used.
package repostest

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/chacrab/chacrab/pkg/model"
	"github.com/chacrab/chacrab/pkg/repository"
)

// Memory is a repository.Repository backed by plain maps. Not safe for
// concurrent use; tests that need concurrency should wrap it themselves.
type Memory struct {
	items      map[uuid.UUID]model.VaultItem
	tombstones map[uuid.UUID]model.SyncTombstone
	auth       *model.AuthBootstrap
	schema     int
}

// New returns an empty Memory repository.
func New() *Memory {
	return &Memory{
		items:      make(map[uuid.UUID]model.VaultItem),
		tombstones: make(map[uuid.UUID]model.SyncTombstone),
	}
}

func (m *Memory) Close(context.Context) error { return nil }

func (m *Memory) InitSchema(context.Context) error {
	m.schema = model.SchemaVersion
	return nil
}

func (m *Memory) SchemaVersion(context.Context) (int, error) {
	return m.schema, nil
}

func (m *Memory) LoadAuth(context.Context) (*model.AuthBootstrap, error) {
	if m.auth == nil {
		return nil, repository.ErrAuthNotFound
	}
	copied := *m.auth
	return &copied, nil
}

func (m *Memory) SaveAuth(_ context.Context, auth *model.AuthBootstrap) error {
	copied := *auth
	m.auth = &copied
	return nil
}

func (m *Memory) List(context.Context) ([]model.VaultItem, error) {
	items := make([]model.VaultItem, 0, len(m.items))
	for _, item := range m.items {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].UpdatedAt.After(items[j].UpdatedAt) })
	return items, nil
}

func (m *Memory) ListWithTombstones(ctx context.Context) ([]model.VaultItem, []model.SyncTombstone, error) {
	items, err := m.List(ctx)
	if err != nil {
		return nil, nil, err
	}
	tombstones := make([]model.SyncTombstone, 0, len(m.tombstones))
	for _, t := range m.tombstones {
		tombstones = append(tombstones, t)
	}
	return items, tombstones, nil
}

func (m *Memory) Get(_ context.Context, id uuid.UUID) (*model.VaultItem, error) {
	item, ok := m.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &item, nil
}

func (m *Memory) Upsert(_ context.Context, item *model.VaultItem) error {
	m.items[item.ID] = *item
	delete(m.tombstones, item.ID)
	return nil
}

func (m *Memory) Delete(_ context.Context, id uuid.UUID, tombstone model.SyncTombstone) error {
	if _, ok := m.items[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.items, id)
	m.tombstones[tombstone.ID] = tombstone
	return nil
}

func (m *Memory) UpsertTombstone(_ context.Context, tombstone model.SyncTombstone) error {
	delete(m.items, tombstone.ID)
	m.tombstones[tombstone.ID] = tombstone
	return nil
}

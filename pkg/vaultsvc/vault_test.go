package vaultsvc

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/chacrab/chacrab/internal/repostest"
)

func testKey() []byte {
	return make([]byte, 32) // zero key is fine for tests, AEAD only cares about length
}

func TestAddPasswordAndShow(t *testing.T) {
	ctx := context.Background()
	repo := repostest.New()
	svc := New(repo)
	key := testKey()

	item, err := svc.AddPassword(ctx, key, "example.com", "alice", "https://example.com", "s3cr3t-pass", nil)
	if err != nil {
		t.Fatalf("AddPassword() error = %v", err)
	}
	if item.SyncVersion != 1 {
		t.Fatalf("AddPassword() sync_version = %d, want 1", item.SyncVersion)
	}

	_, payload, err := svc.Show(ctx, key, item.ID)
	if err != nil {
		t.Fatalf("Show() error = %v", err)
	}
	if payload.Password != "s3cr3t-pass" {
		t.Fatalf("Show() password = %q, want %q", payload.Password, "s3cr3t-pass")
	}
}

func TestShowWrongKeyFails(t *testing.T) {
	ctx := context.Background()
	repo := repostest.New()
	svc := New(repo)

	item, err := svc.AddNote(ctx, testKey(), "diary", "dear diary", nil)
	if err != nil {
		t.Fatalf("AddNote() error = %v", err)
	}

	wrongKey := make([]byte, 32)
	wrongKey[0] = 1
	if _, _, err := svc.Show(ctx, wrongKey, item.ID); err == nil {
		t.Fatalf("Show() error = nil, want decryption failure")
	}
}

func TestUpdateBumpsSyncVersion(t *testing.T) {
	ctx := context.Background()
	repo := repostest.New()
	svc := New(repo)
	key := testKey()

	item, err := svc.AddPassword(ctx, key, "title", "user", "", "pw", nil)
	if err != nil {
		t.Fatalf("AddPassword() error = %v", err)
	}

	newTitle := "renamed"
	updated, err := svc.Update(ctx, key, item.ID, ItemUpdate{Title: &newTitle})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Title != "renamed" {
		t.Fatalf("Update() title = %q, want %q", updated.Title, "renamed")
	}
	if updated.SyncVersion != item.SyncVersion+1 {
		t.Fatalf("Update() sync_version = %d, want %d", updated.SyncVersion, item.SyncVersion+1)
	}
	if !updated.UpdatedAt.After(item.CreatedAt) && updated.UpdatedAt != item.CreatedAt {
		t.Fatalf("Update() did not advance updated_at")
	}
}

func TestDeleteTombstones(t *testing.T) {
	ctx := context.Background()
	repo := repostest.New()
	svc := New(repo)
	key := testKey()

	item, err := svc.AddNote(ctx, key, "title", "body", nil)
	if err != nil {
		t.Fatalf("AddNote() error = %v", err)
	}

	if err := svc.Delete(ctx, item.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if _, err := svc.Get(ctx, item.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() after delete error = %v, want ErrNotFound", err)
	}

	_, tombstones, err := repo.ListWithTombstones(ctx)
	if err != nil {
		t.Fatalf("ListWithTombstones() error = %v", err)
	}
	if len(tombstones) != 1 || tombstones[0].ID != item.ID {
		t.Fatalf("ListWithTombstones() tombstones = %+v, want one tombstone for %s", tombstones, item.ID)
	}
	if tombstones[0].SyncVersion != item.SyncVersion+1 {
		t.Fatalf("Delete() tombstone sync_version = %d, want %d", tombstones[0].SyncVersion, item.SyncVersion+1)
	}
}

func TestDeleteMissingItem(t *testing.T) {
	ctx := context.Background()
	repo := repostest.New()
	svc := New(repo)

	missing := uuid.New()
	if err := svc.Delete(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Delete() error = %v, want ErrNotFound", err)
	}
}

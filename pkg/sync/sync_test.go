package sync

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/chacrab/chacrab/internal/repostest"
	"github.com/chacrab/chacrab/pkg/model"
)

func newItem(title string, syncVersion uint64, updatedAt time.Time) model.VaultItem {
	id := uuid.New()
	return model.VaultItem{
		ID:            id,
		Kind:          model.KindNote,
		Title:         title,
		EncryptedData: []byte("ciphertext-" + title),
		SyncVersion:   syncVersion,
		CreatedAt:     updatedAt,
		UpdatedAt:     updatedAt,
	}
}

func TestBidirectionalUploadsLocalOnlyAndDownloadsRemoteOnly(t *testing.T) {
	ctx := context.Background()
	local := repostest.New()
	remote := repostest.New()

	localOnly := newItem("local-only", 1, time.Now())
	remoteOnly := newItem("remote-only", 1, time.Now())

	if err := local.Upsert(ctx, &localOnly); err != nil {
		t.Fatalf("seed local: %v", err)
	}
	if err := remote.Upsert(ctx, &remoteOnly); err != nil {
		t.Fatalf("seed remote: %v", err)
	}

	report, err := New().Bidirectional(ctx, local, remote)
	if err != nil {
		t.Fatalf("Bidirectional() error = %v", err)
	}
	if report.Uploaded != 1 || report.Downloaded != 1 {
		t.Fatalf("report = %+v, want Uploaded=1 Downloaded=1", report)
	}

	if _, err := remote.Get(ctx, localOnly.ID); err != nil {
		t.Fatalf("remote missing uploaded item: %v", err)
	}
	if _, err := local.Get(ctx, remoteOnly.ID); err != nil {
		t.Fatalf("local missing downloaded item: %v", err)
	}
}

func TestBidirectionalHigherSyncVersionWins(t *testing.T) {
	ctx := context.Background()
	local := repostest.New()
	remote := repostest.New()

	id := uuid.New()
	older := model.VaultItem{ID: id, Kind: model.KindNote, Title: "v1", EncryptedData: []byte("v1"), SyncVersion: 1, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	newer := older
	newer.Title = "v2"
	newer.EncryptedData = []byte("v2")
	newer.SyncVersion = 2
	newer.UpdatedAt = older.UpdatedAt.Add(time.Minute)

	if err := local.Upsert(ctx, &older); err != nil {
		t.Fatalf("seed local: %v", err)
	}
	if err := remote.Upsert(ctx, &newer); err != nil {
		t.Fatalf("seed remote: %v", err)
	}

	report, err := New().Bidirectional(ctx, local, remote)
	if err != nil {
		t.Fatalf("Bidirectional() error = %v", err)
	}
	if report.Downloaded != 1 || report.ConflictsResolved != 1 {
		t.Fatalf("report = %+v, want Downloaded=1 ConflictsResolved=1", report)
	}

	got, err := local.Get(ctx, id)
	if err != nil {
		t.Fatalf("local.Get() error = %v", err)
	}
	if got.Title != "v2" {
		t.Fatalf("local item title = %q, want %q", got.Title, "v2")
	}
}

func TestBidirectionalLowerRemoteSyncVersionIsUploadNotReplay(t *testing.T) {
	ctx := context.Background()
	local := repostest.New()
	remote := repostest.New()

	id := uuid.New()
	stale := model.VaultItem{ID: id, Kind: model.KindNote, Title: "stale", EncryptedData: []byte("stale"), SyncVersion: 1, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	fresh := stale
	fresh.Title = "fresh"
	fresh.EncryptedData = []byte("fresh")
	fresh.SyncVersion = 5
	fresh.UpdatedAt = stale.UpdatedAt.Add(time.Hour)

	if err := local.Upsert(ctx, &fresh); err != nil {
		t.Fatalf("seed local: %v", err)
	}
	if err := remote.Upsert(ctx, &stale); err != nil {
		t.Fatalf("seed remote: %v", err)
	}

	report, err := New().Bidirectional(ctx, local, remote)
	if err != nil {
		t.Fatalf("Bidirectional() error = %v", err)
	}
	// Remote simply hasn't seen local's edits yet: a resolved conflict
	// pushed forward, not a rejected replay.
	if report.ReplaysRejected != 0 {
		t.Fatalf("report.ReplaysRejected = %d, want 0", report.ReplaysRejected)
	}
	if report.Uploaded != 1 || report.ConflictsResolved != 1 {
		t.Fatalf("report = %+v, want Uploaded=1 ConflictsResolved=1", report)
	}

	got, err := remote.Get(ctx, id)
	if err != nil {
		t.Fatalf("remote.Get() error = %v", err)
	}
	if got.Title != "fresh" {
		t.Fatalf("remote item title = %q, want %q", got.Title, "fresh")
	}
}

func TestBidirectionalTombstoneWinsOverConcurrentEditAtSameVersion(t *testing.T) {
	ctx := context.Background()
	local := repostest.New()
	remote := repostest.New()

	id := uuid.New()
	now := time.Now()

	edited := model.VaultItem{ID: id, Kind: model.KindNote, Title: "edited", EncryptedData: []byte("edited"), SyncVersion: 2, CreatedAt: now, UpdatedAt: now}
	if err := local.Upsert(ctx, &edited); err != nil {
		t.Fatalf("seed local: %v", err)
	}

	tombstone := model.SyncTombstone{ID: id, DeletedAt: now, SyncVersion: 2}
	if err := remote.UpsertTombstone(ctx, tombstone); err != nil {
		t.Fatalf("seed remote tombstone: %v", err)
	}

	report, err := New().Bidirectional(ctx, local, remote)
	if err != nil {
		t.Fatalf("Bidirectional() error = %v", err)
	}
	if report.ConflictsResolved != 1 {
		t.Fatalf("report.ConflictsResolved = %d, want 1", report.ConflictsResolved)
	}

	if _, err := local.Get(ctx, id); err == nil {
		t.Fatalf("local item survived a tombstone tie-break, want it removed")
	}
}

package backup

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chacrab/chacrab/internal/repostest"
	"github.com/chacrab/chacrab/pkg/crypto"
	"github.com/chacrab/chacrab/pkg/model"
	"github.com/chacrab/chacrab/pkg/vaultsvc"
)

func testKey() []byte {
	k := make([]byte, crypto.KeyLength)
	for i := range k {
		k[i] = byte(i + 1)
	}
	return k
}

func testAuth() *model.AuthBootstrap {
	return &model.AuthBootstrap{
		Salt:        []byte("0123456789abcdef"),
		Verifier:    "$argon2id$v=19$m=65536,t=3,p=1$c2FsdA$aGFzaA",
		Argon2MCost: crypto.Argon2Memory,
		Argon2TCost: crypto.Argon2Time,
		Argon2PCost: crypto.Argon2Threads,
	}
}

func seedVault(t *testing.T, key []byte) *repostest.Memory {
	t.Helper()
	ctx := context.Background()
	repo := repostest.New()
	svc := vaultsvc.New(repo)

	if _, err := svc.AddPassword(ctx, key, "example.com", "alice", "https://example.com", "s3cr3t", nil); err != nil {
		t.Fatalf("AddPassword() error = %v", err)
	}
	item, err := svc.AddNote(ctx, key, "diary", "dear diary", nil)
	if err != nil {
		t.Fatalf("AddNote() error = %v", err)
	}
	if err := svc.Delete(ctx, item.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	return repo
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	key := testKey()
	repo := seedVault(t, key)

	var buf bytes.Buffer
	exportStats, err := Export(ctx, repo, key, testAuth(), time.Now(), &buf)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if exportStats.ItemCount != 1 || exportStats.TombstoneCount != 1 {
		t.Fatalf("Export() stats = %+v, want ItemCount=1 TombstoneCount=1", exportStats)
	}

	fresh := repostest.New()
	importStats, err := Import(ctx, fresh, key, bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if importStats.Applied != 2 {
		t.Fatalf("Import() stats = %+v, want Applied=2", importStats)
	}

	items, tombstones, err := fresh.ListWithTombstones(ctx)
	if err != nil {
		t.Fatalf("ListWithTombstones() error = %v", err)
	}
	if len(items) != 1 || len(tombstones) != 1 {
		t.Fatalf("restored repo has %d items, %d tombstones; want 1, 1", len(items), len(tombstones))
	}
}

func TestImportIsIdempotent(t *testing.T) {
	ctx := context.Background()
	key := testKey()
	repo := seedVault(t, key)

	var buf bytes.Buffer
	if _, err := Export(ctx, repo, key, testAuth(), time.Now(), &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	fresh := repostest.New()
	first, err := Import(ctx, fresh, key, bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("first Import() error = %v", err)
	}
	if first.Applied != 2 || first.Skipped != 0 {
		t.Fatalf("first Import() stats = %+v, want Applied=2 Skipped=0", first)
	}

	second, err := Import(ctx, fresh, key, bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("second Import() error = %v", err)
	}
	if second.Applied != 0 || second.Skipped != 2 {
		t.Fatalf("second Import() stats = %+v, want Applied=0 Skipped=2 (idempotent)", second)
	}
}

func TestImportDoesNotRollBackNewerLocalState(t *testing.T) {
	ctx := context.Background()
	key := testKey()
	repo := seedVault(t, key)

	var buf bytes.Buffer
	if _, err := Export(ctx, repo, key, testAuth(), time.Now(), &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	// Advance repo's state past what the backup holds.
	items, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	svc := vaultsvc.New(repo)
	newTitle := "renamed-after-backup"
	if _, err := svc.Update(ctx, key, items[0].ID, vaultsvc.ItemUpdate{Title: &newTitle}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	stats, err := Import(ctx, repo, key, bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if stats.Skipped != 1 {
		t.Fatalf("Import() stats = %+v, want at least Skipped=1 for the now-stale backup record", stats)
	}

	got, err := repo.Get(ctx, items[0].ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Title != newTitle {
		t.Fatalf("Import() rolled back title to %q, want %q preserved", got.Title, newTitle)
	}
}

func TestImportRejectsChecksumTamper(t *testing.T) {
	ctx := context.Background()
	key := testKey()
	repo := seedVault(t, key)

	var buf bytes.Buffer
	if _, err := Export(ctx, repo, key, testAuth(), time.Now(), &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	tampered := buf.Bytes()
	tampered[len(tampered)-1] ^= 0xFF // flip a bit in the trailing checksum

	fresh := repostest.New()
	if _, err := Import(ctx, fresh, key, bytes.NewReader(tampered)); !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("Import() error = %v, want ErrChecksumMismatch", err)
	}

	items, _, err := fresh.ListWithTombstones(ctx)
	if err != nil {
		t.Fatalf("ListWithTombstones() error = %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("Import() wrote %d items despite checksum failure, want 0", len(items))
	}
}

func TestImportRejectsCiphertextTamper(t *testing.T) {
	ctx := context.Background()
	key := testKey()
	repo := seedVault(t, key)

	var buf bytes.Buffer
	if _, err := Export(ctx, repo, key, testAuth(), time.Now(), &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	tampered := buf.Bytes()
	// The checksum deliberately excludes the payload (see checksumOf), so
	// flipping the last ciphertext byte (just before the trailing
	// checksum) passes the checksum check and fails AEAD authentication
	// instead.
	tampered[len(tampered)-32-1] ^= 0xFF

	fresh := repostest.New()
	if _, err := Import(ctx, fresh, key, bytes.NewReader(tampered)); !errors.Is(err, ErrDecryptFailed) {
		t.Fatalf("Import() error = %v, want ErrDecryptFailed", err)
	}

	items, _, err := fresh.ListWithTombstones(ctx)
	if err != nil {
		t.Fatalf("ListWithTombstones() error = %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("Import() wrote %d items despite decrypt failure, want 0", len(items))
	}
}

func TestImportRejectsWrongKey(t *testing.T) {
	ctx := context.Background()
	key := testKey()
	repo := seedVault(t, key)

	var buf bytes.Buffer
	if _, err := Export(ctx, repo, key, testAuth(), time.Now(), &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	wrongKey := make([]byte, crypto.KeyLength)
	fresh := repostest.New()
	if _, err := Import(ctx, fresh, wrongKey, bytes.NewReader(buf.Bytes())); !errors.Is(err, ErrDecryptFailed) {
		t.Fatalf("Import() error = %v, want ErrDecryptFailed", err)
	}
}

func TestImportRejectsUnsupportedVersion(t *testing.T) {
	ctx := context.Background()
	key := testKey()
	repo := seedVault(t, key)

	var buf bytes.Buffer
	if _, err := Export(ctx, repo, key, testAuth(), time.Now(), &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	data := buf.Bytes()
	// Version occupies bytes [4:6] (after the 4-byte magic); bump it past
	// FormatVersion and recompute the checksum so the tamper is isolated
	// to the version-check path rather than triggering ErrChecksumMismatch.
	data[5] = byte(FormatVersion + 1)
	h, _, err := readHeader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("readHeader() error = %v", err)
	}
	checksum := checksumOf(h)
	copy(data[len(data)-32:], checksum[:])

	fresh := repostest.New()
	if _, err := Import(ctx, fresh, key, bytes.NewReader(data)); !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("Import() error = %v, want ErrUnsupportedVersion", err)
	}
}

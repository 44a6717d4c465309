package backup

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"

	"github.com/chacrab/chacrab/pkg/crypto"
	"github.com/chacrab/chacrab/pkg/model"
	"github.com/chacrab/chacrab/pkg/repository"
)

// backupHKDFInfo domain-separates the key a backup envelope is sealed
// with from the session key itself, so a leaked backup file's AEAD key
// is never the same bytes an attacker would need to decrypt live vault
// items, following the subkey-derivation idiom of the teacher's
// pkg/backup/crypto.go.
const backupHKDFInfo = "chacrab-backup-v1"

func deriveBackupKey(sessionKey []byte) ([]byte, error) {
	key := make([]byte, crypto.KeyLength)
	if _, err := io.ReadFull(hkdf.New(sha256.New, sessionKey, nil, []byte(backupHKDFInfo)), key); err != nil {
		return nil, fmt.Errorf("backup: derive envelope key: %w", err)
	}
	return key, nil
}

// ExportStats reports what Export wrote.
type ExportStats struct {
	ItemCount      int
	TombstoneCount int
}

// ImportStats reports what Import applied, for the CLI to print.
type ImportStats struct {
	Applied int
	Skipped int
}

// record is the canonical on-the-wire shape of one vault item or
// tombstone inside a backup's encrypted payload. Export/Import use one
// type for both so a single length-prefixed sequence covers the whole
// repository, live items and tombstones alike, per spec.md §4.6 step 1.
type record struct {
	ID          uuid.UUID
	Deleted     bool
	SyncVersion uint64
	UpdatedAt   time.Time

	// Populated only when !Deleted.
	Kind          model.ItemKind
	Title         string
	Username      string
	URL           string
	EncryptedData []byte
	Nonce         [12]byte
	CreatedAt     time.Time
}

// Export writes an encrypted backup envelope covering every item and
// tombstone in repo to w, sealed with key (the active session's vault
// key). auth's salt, KDF parameters, and verifier are copied into the
// envelope header unchanged; Import parses them but does not use them.
func Export(ctx context.Context, repo repository.Repository, key []byte, auth *model.AuthBootstrap, exportedAt time.Time, w io.Writer) (*ExportStats, error) {
	items, tombstones, err := repo.ListWithTombstones(ctx)
	if err != nil {
		return nil, fmt.Errorf("backup: list records: %w", err)
	}

	records := make([]record, 0, len(items)+len(tombstones))
	for _, item := range items {
		records = append(records, record{
			ID: item.ID, SyncVersion: item.SyncVersion, UpdatedAt: item.UpdatedAt,
			Kind: item.Kind, Title: item.Title, Username: item.Username, URL: item.URL,
			EncryptedData: item.EncryptedData, Nonce: item.Nonce, CreatedAt: item.CreatedAt,
		})
	}
	for _, t := range tombstones {
		records = append(records, record{ID: t.ID, Deleted: true, SyncVersion: t.SyncVersion, UpdatedAt: t.DeletedAt})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID.String() < records[j].ID.String() })

	serialized, err := encodeRecords(records)
	if err != nil {
		return nil, fmt.Errorf("backup: encode records: %w", err)
	}
	defer crypto.SecureWipe(serialized)

	envelopeKey, err := deriveBackupKey(key)
	if err != nil {
		return nil, err
	}
	defer crypto.SecureWipe(envelopeKey)

	ciphertext, nonce, err := crypto.Encrypt(envelopeKey, serialized, nil)
	if err != nil {
		return nil, fmt.Errorf("backup: encrypt payload: %w", err)
	}

	h := &header{
		Version:    FormatVersion,
		ExportedAt: exportedAt.UTC().UnixMilli(),
		Salt:       auth.Salt,
		KDF:        kdfParams{Memory: auth.Argon2MCost, Time: auth.Argon2TCost, Threads: auth.Argon2PCost},
		Verifier:   auth.Verifier,
		ItemCount:  uint32(len(records)),
	}
	copy(h.Nonce[:], nonce)

	if _, err := writeHeader(w, h); err != nil {
		return nil, err
	}
	if _, err := writePayload(w, ciphertext); err != nil {
		return nil, err
	}

	checksum := checksumOf(h)
	if _, err := w.Write(checksum[:]); err != nil {
		return nil, fmt.Errorf("backup: write checksum: %w", err)
	}

	return &ExportStats{ItemCount: len(items), TombstoneCount: len(tombstones)}, nil
}

// Import verifies and decrypts the backup envelope read from r, then
// applies each record to repo with last-write-wins semantics: a record
// that is not strictly newer (by sync_version, then by updated_at) than
// what repo already holds for that id is skipped, so importing an old
// backup over a newer vault can never roll it back. Applying the same
// backup twice is therefore idempotent: the second pass skips everything
// the first pass already applied.
func Import(ctx context.Context, repo repository.Repository, key []byte, r io.Reader) (*ImportStats, error) {
	h, _, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	ciphertext, _, err := readPayload(r)
	if err != nil {
		return nil, err
	}

	var stored [32]byte
	if _, err := io.ReadFull(r, stored[:]); err != nil {
		return nil, fmt.Errorf("backup: read checksum: %w", err)
	}

	want := checksumOf(h)
	if subtle.ConstantTimeCompare(stored[:], want[:]) != 1 {
		return nil, ErrChecksumMismatch
	}

	if h.Version > FormatVersion {
		return nil, ErrUnsupportedVersion
	}

	envelopeKey, err := deriveBackupKey(key)
	if err != nil {
		return nil, err
	}
	defer crypto.SecureWipe(envelopeKey)

	plaintext, err := crypto.Decrypt(envelopeKey, ciphertext, h.Nonce[:], nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	defer crypto.SecureWipe(plaintext)

	records, err := decodeRecords(plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	existingItems, existingTombstones, err := repo.ListWithTombstones(ctx)
	if err != nil {
		return nil, fmt.Errorf("backup: list existing records: %w", err)
	}
	current := make(map[uuid.UUID]record, len(existingItems)+len(existingTombstones))
	for _, item := range existingItems {
		current[item.ID] = record{SyncVersion: item.SyncVersion, UpdatedAt: item.UpdatedAt}
	}
	for _, t := range existingTombstones {
		current[t.ID] = record{SyncVersion: t.SyncVersion, UpdatedAt: t.DeletedAt}
	}

	stats := &ImportStats{}
	for _, rec := range records {
		if prior, ok := current[rec.ID]; ok && !newerThan(rec, prior) {
			stats.Skipped++
			continue
		}
		if err := applyRecord(ctx, repo, rec); err != nil {
			return nil, fmt.Errorf("backup: apply record %s: %w", rec.ID, err)
		}
		stats.Applied++
	}
	return stats, nil
}

// newerThan reports whether incoming should replace prior: higher
// sync_version wins outright; equal sync_version falls back to
// updated_at, per spec.md §4.6 step 5.
func newerThan(incoming, prior record) bool {
	if incoming.SyncVersion != prior.SyncVersion {
		return incoming.SyncVersion > prior.SyncVersion
	}
	return incoming.UpdatedAt.After(prior.UpdatedAt)
}

func applyRecord(ctx context.Context, repo repository.Repository, rec record) error {
	if rec.Deleted {
		return repo.UpsertTombstone(ctx, model.SyncTombstone{ID: rec.ID, DeletedAt: rec.UpdatedAt, SyncVersion: rec.SyncVersion})
	}
	item := &model.VaultItem{
		ID: rec.ID, Kind: rec.Kind, Title: rec.Title, Username: rec.Username, URL: rec.URL,
		EncryptedData: rec.EncryptedData, Nonce: rec.Nonce, SyncVersion: rec.SyncVersion,
		CreatedAt: rec.CreatedAt, UpdatedAt: rec.UpdatedAt,
	}
	return repo.Upsert(ctx, item)
}

// checksumOf hashes exactly the envelope fields spec.md §8's tamper
// scenario (S4) requires to gate decryption: the version, export
// timestamp, and nonce. The payload itself is deliberately excluded —
// it is already authenticated by the AEAD tag, so a tampered ciphertext
// surfaces as ErrDecryptFailed rather than a checksum mismatch, matching
// S4's expectation that those are two distinct, distinguishable failures.
// This intentionally departs from §3's literal
// schema_version||exported_at||nonce||payload formula; see DESIGN.md's
// Open Question resolutions for the full reasoning.
func checksumOf(h *header) [32]byte {
	var versionBytes [2]byte
	binary.BigEndian.PutUint16(versionBytes[:], h.Version)
	var exportedAtBytes [8]byte
	binary.BigEndian.PutUint64(exportedAtBytes[:], uint64(h.ExportedAt))
	return crypto.Checksum256(versionBytes[:], exportedAtBytes[:], h.Nonce[:])
}

// wireRecord is record's JSON encoding inside the backup payload.
type wireRecord struct {
	ID            string `json:"id"`
	Deleted       bool   `json:"deleted"`
	SyncVersion   uint64 `json:"sync_version"`
	UpdatedAt     int64  `json:"updated_at"`
	Kind          string `json:"kind,omitempty"`
	Title         string `json:"title,omitempty"`
	Username      string `json:"username,omitempty"`
	URL           string `json:"url,omitempty"`
	EncryptedData []byte `json:"encrypted_data,omitempty"`
	Nonce         []byte `json:"nonce,omitempty"`
	CreatedAt     int64  `json:"created_at,omitempty"`
}

// encodeRecords serializes records as a sequence of 4-byte-length-prefixed
// JSON documents, in the order given (Export has already sorted them by
// id, per spec.md §4.6 step 2).
func encodeRecords(records []record) ([]byte, error) {
	var buf bytes.Buffer
	for _, rec := range records {
		wr := wireRecord{
			ID:          rec.ID.String(),
			Deleted:     rec.Deleted,
			SyncVersion: rec.SyncVersion,
			UpdatedAt:   rec.UpdatedAt.UTC().UnixMilli(),
		}
		if !rec.Deleted {
			wr.Kind = string(rec.Kind)
			wr.Title = rec.Title
			wr.Username = rec.Username
			wr.URL = rec.URL
			wr.EncryptedData = rec.EncryptedData
			wr.Nonce = rec.Nonce[:]
			wr.CreatedAt = rec.CreatedAt.UTC().UnixMilli()
		}

		encoded, err := json.Marshal(wr)
		if err != nil {
			return nil, err
		}
		var lenPrefix [4]byte
		binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(encoded)))
		buf.Write(lenPrefix[:])
		buf.Write(encoded)
	}
	return buf.Bytes(), nil
}

func decodeRecords(data []byte) ([]record, error) {
	var records []record
	r := bytes.NewReader(data)
	for r.Len() > 0 {
		var lenPrefix [4]byte
		if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
			return nil, err
		}
		n := binary.BigEndian.Uint32(lenPrefix[:])
		if n > maxLengthPrefixedField {
			return nil, ErrFieldTooLarge
		}
		encoded := make([]byte, n)
		if _, err := io.ReadFull(r, encoded); err != nil {
			return nil, err
		}

		var wr wireRecord
		if err := json.Unmarshal(encoded, &wr); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(wr.ID)
		if err != nil {
			return nil, fmt.Errorf("record has invalid id %q: %w", wr.ID, err)
		}

		rec := record{ID: id, Deleted: wr.Deleted, SyncVersion: wr.SyncVersion, UpdatedAt: time.UnixMilli(wr.UpdatedAt).UTC()}
		if !wr.Deleted {
			if len(wr.Nonce) != 12 {
				return nil, fmt.Errorf("item %s has malformed nonce length %d", id, len(wr.Nonce))
			}
			rec.Kind = model.ItemKind(wr.Kind)
			rec.Title = wr.Title
			rec.Username = wr.Username
			rec.URL = wr.URL
			rec.EncryptedData = wr.EncryptedData
			copy(rec.Nonce[:], wr.Nonce)
			rec.CreatedAt = time.UnixMilli(wr.CreatedAt).UTC()
		}
		records = append(records, rec)
	}
	return records, nil
}

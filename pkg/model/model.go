// Package model defines the data types shared by every Chacrab component:
// the vault service, the repository backends, the backup envelope, and the
// sync engine all operate on these types rather than on raw rows or
// documents.
package model

import (
	"time"

	"github.com/google/uuid"
)

// ItemKind distinguishes the two kinds of vault entries. The zero value is
// intentionally invalid so a missing kind cannot silently be treated as a
// password.
type ItemKind string

const (
	KindPassword ItemKind = "password"
	KindNote     ItemKind = "note"
)

// SchemaVersion is the current vault schema version every repository
// backend bootstraps to and every backup envelope declares.
const SchemaVersion = 1

// VaultItem is a single encrypted vault entry. Title, username, and url are
// stored in the clear so the item can be listed and searched without
// decrypting; everything else lives behind EncryptedData/Nonce.
type VaultItem struct {
	ID            uuid.UUID
	Kind          ItemKind
	Title         string
	Username      string // empty string means "not set"
	URL           string
	EncryptedData []byte
	Nonce         [12]byte
	SyncVersion   uint64
	Deleted       bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewVaultItem carries the fields a caller supplies when creating an item;
// ID, SyncVersion, CreatedAt, UpdatedAt, and Deleted are assigned by the
// vault service.
type NewVaultItem struct {
	Kind     ItemKind
	Title    string
	Username string
	URL      string
	Payload  EncryptedPayload
}

// EncryptedPayload is the plaintext JSON document a VaultItem's
// EncryptedData decrypts to. Exactly one of Password/Notes is populated
// depending on Kind; CustomFields is open-ended for either kind.
type EncryptedPayload struct {
	Password     string            `json:"password,omitempty"`
	Notes        string            `json:"notes,omitempty"`
	CustomFields map[string]string `json:"custom_fields,omitempty"`
}

// NewPasswordPayload builds the payload for a KindPassword item.
func NewPasswordPayload(password string, customFields map[string]string) EncryptedPayload {
	return EncryptedPayload{Password: password, CustomFields: customFields}
}

// NewNotePayload builds the payload for a KindNote item.
func NewNotePayload(notes string, customFields map[string]string) EncryptedPayload {
	return EncryptedPayload{Notes: notes, CustomFields: customFields}
}

// SyncTombstone records that an item with ID was deleted at DeletedAt as of
// SyncVersion, so a peer that has not yet seen the deletion can apply it
// instead of re-uploading a stale copy of the item.
type SyncTombstone struct {
	ID          uuid.UUID
	DeletedAt   time.Time
	SyncVersion uint64
}

// AuthBootstrap is the single persisted record a repository backend holds
// that lets a future login attempt be verified without ever storing the
// master password or the derived key.
type AuthBootstrap struct {
	Salt        []byte
	Verifier    string // PHC-style string, see pkg/crypto.NewVerifier
	Argon2MCost uint32
	Argon2TCost uint32
	Argon2PCost uint32
}

// SyncState describes per-item sync bookkeeping: the last sync_version
// applied from the remote and when. No repository persists it and the sync
// engine does not read it.
type SyncState struct {
	LastAppliedSyncVersion uint64
	LastSyncedAt           time.Time
}

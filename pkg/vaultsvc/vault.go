// Package vaultsvc implements the vault service: creating, listing,
// revealing, updating, and deleting vault items on top of a
// repository.Repository, encrypting and decrypting each item's payload
// with the session's derived key as it goes.
package vaultsvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chacrab/chacrab/pkg/crypto"
	"github.com/chacrab/chacrab/pkg/model"
	"github.com/chacrab/chacrab/pkg/repository"
)

// Service is the vault service.
type Service struct {
	repo repository.Repository
}

// New returns a vault Service backed by repo.
func New(repo repository.Repository) *Service {
	return &Service{repo: repo}
}

// AddPassword encrypts and stores a new KindPassword item.
func (s *Service) AddPassword(ctx context.Context, key []byte, title, username, url, password string, customFields map[string]string) (*model.VaultItem, error) {
	return s.addItem(ctx, key, model.NewVaultItem{
		Kind:     model.KindPassword,
		Title:    title,
		Username: username,
		URL:      url,
		Payload:  model.NewPasswordPayload(password, customFields),
	})
}

// AddNote encrypts and stores a new KindNote item.
func (s *Service) AddNote(ctx context.Context, key []byte, title, notes string, customFields map[string]string) (*model.VaultItem, error) {
	return s.addItem(ctx, key, model.NewVaultItem{
		Kind:    model.KindNote,
		Title:   title,
		Payload: model.NewNotePayload(notes, customFields),
	})
}

func (s *Service) addItem(ctx context.Context, key []byte, newItem model.NewVaultItem) (*model.VaultItem, error) {
	id := uuid.New()
	ciphertext, nonce, err := sealPayload(key, id, newItem.Payload)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	item := &model.VaultItem{
		ID:            id,
		Kind:          newItem.Kind,
		Title:         newItem.Title,
		Username:      newItem.Username,
		URL:           newItem.URL,
		EncryptedData: ciphertext,
		SyncVersion:   1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	copy(item.Nonce[:], nonce)

	if err := s.repo.Upsert(ctx, item); err != nil {
		return nil, fmt.Errorf("vaultsvc: store item: %w", err)
	}
	return item, nil
}

// List returns every non-deleted item without decrypting anything.
func (s *Service) List(ctx context.Context) ([]model.VaultItem, error) {
	items, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("vaultsvc: list items: %w", err)
	}
	return items, nil
}

// Get returns a single item's metadata without decrypting its payload.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.VaultItem, error) {
	item, err := s.repo.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("vaultsvc: get item: %w", err)
	}
	return item, nil
}

// Show returns an item along with its decrypted payload.
func (s *Service) Show(ctx context.Context, key []byte, id uuid.UUID) (*model.VaultItem, *model.EncryptedPayload, error) {
	item, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	payload, err := openPayload(key, *item)
	if err != nil {
		return nil, nil, err
	}
	return item, payload, nil
}

// ItemUpdate carries the fields Update should change; nil fields leave the
// corresponding field unchanged, and a non-nil Payload replaces the whole
// encrypted payload.
type ItemUpdate struct {
	Title    *string
	Username *string
	URL      *string
	Payload  *model.EncryptedPayload
}

// Update applies patch to the item identified by id, re-encrypting the
// payload if patch.Payload is set, and bumps sync_version.
func (s *Service) Update(ctx context.Context, key []byte, id uuid.UUID, patch ItemUpdate) (*model.VaultItem, error) {
	item, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Title != nil {
		item.Title = *patch.Title
	}
	if patch.Username != nil {
		item.Username = *patch.Username
	}
	if patch.URL != nil {
		item.URL = *patch.URL
	}
	if patch.Payload != nil {
		ciphertext, nonce, err := sealPayload(key, item.ID, *patch.Payload)
		if err != nil {
			return nil, err
		}
		item.EncryptedData = ciphertext
		copy(item.Nonce[:], nonce)
	}

	item.SyncVersion++
	item.UpdatedAt = time.Now().UTC()

	if err := s.repo.Upsert(ctx, item); err != nil {
		return nil, fmt.Errorf("vaultsvc: store updated item: %w", err)
	}
	return item, nil
}

// Delete tombstones the item identified by id: the live row is removed
// and a SyncTombstone with a bumped sync_version is written in its place,
// so sync peers learn the item was deleted rather than simply missing.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	item, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	tombstone := model.SyncTombstone{
		ID:          id,
		DeletedAt:   time.Now().UTC(),
		SyncVersion: item.SyncVersion + 1,
	}

	if err := s.repo.Delete(ctx, id, tombstone); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("vaultsvc: delete item: %w", err)
	}
	return nil
}

// sealPayload JSON-encodes payload and encrypts it under key, binding
// id's raw bytes as associated data so the ciphertext cannot be
// reattached to a different item.
func sealPayload(key []byte, id uuid.UUID, payload model.EncryptedPayload) (ciphertext, nonce []byte, err error) {
	serialized, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("vaultsvc: encode payload: %w", err)
	}
	defer crypto.SecureWipe(serialized)

	ciphertext, nonce, err = crypto.Encrypt(key, serialized, id[:])
	if err != nil {
		return nil, nil, fmt.Errorf("vaultsvc: encrypt payload: %w", err)
	}
	return ciphertext, nonce, nil
}

func openPayload(key []byte, item model.VaultItem) (*model.EncryptedPayload, error) {
	plaintext, err := crypto.Decrypt(key, item.EncryptedData, item.Nonce[:], item.ID[:])
	if err != nil {
		return nil, fmt.Errorf("vaultsvc: decrypt payload: %w", err)
	}
	defer crypto.SecureWipe(plaintext)

	var payload model.EncryptedPayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, fmt.Errorf("vaultsvc: decode payload: %w", err)
	}
	return &payload, nil
}

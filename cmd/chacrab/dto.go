package main

import (
	"time"

	"github.com/chacrab/chacrab/pkg/model"
)

// itemDTO is the JSON shape --json output uses for a vault item's
// metadata. It deliberately excludes EncryptedData/Nonce: --json without
// "show" is a listing surface, not a way to exfiltrate raw ciphertext.
type itemDTO struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Title       string    `json:"title"`
	Username    string    `json:"username,omitempty"`
	URL         string    `json:"url,omitempty"`
	SyncVersion uint64    `json:"sync_version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (itemDTO) from(item model.VaultItem) itemDTO {
	return itemDTO{
		ID:          item.ID.String(),
		Kind:        string(item.Kind),
		Title:       item.Title,
		Username:    item.Username,
		URL:         item.URL,
		SyncVersion: item.SyncVersion,
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
	}
}

func itemDTOs(items []model.VaultItem) []itemDTO {
	out := make([]itemDTO, len(items))
	for i, item := range items {
		out[i] = itemDTO{}.from(item)
	}
	return out
}

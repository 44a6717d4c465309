// Package sessionkey implements the session key holder capability: a
// place the auth service can stash the derived vault key after a
// successful login, and every other command can retrieve it from without
// re-deriving it from the master password.
//
// Chacrab is a CLI: every invocation is a new process, so the holder must
// outlive the process that created it. The OS keyring is the only
// available mechanism for that, which is why Get fails closed
// (ErrNoSession) and Put/Clear return an error rather than silently
// falling back to something weaker like a world-readable temp file.
package sessionkey

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/zalando/go-keyring"
)

// ErrNoSession indicates there is no active, unexpired session — the
// caller must log in again.
var ErrNoSession = errors.New("sessionkey: no active session")

const service = "chacrab"
const account = "vault-session"

// entry is what actually gets stored: the derived key plus the instant it
// was put there, so Get can enforce the caller's inactivity timeout
// without a separate daemon.
type entry struct {
	Key       []byte
	StartedAt time.Time
}

// Holder is the {put, get, clear} capability spec.md's design notes
// describe. It is implemented against the OS keyring; tests use
// NewMemoryHolder instead.
type Holder interface {
	Put(key []byte) error
	Get(timeout time.Duration) ([]byte, error)
	Clear() error
}

// OSHolder backs Holder with the platform keyring (Keychain, Secret
// Service, Windows Credential Manager) via github.com/zalando/go-keyring.
type OSHolder struct{}

// NewOSHolder returns a Holder backed by the OS keyring.
func NewOSHolder() *OSHolder { return &OSHolder{} }

func (h *OSHolder) Put(key []byte) error {
	e := entry{Key: key, StartedAt: time.Now()}
	encoded := encodeEntry(e)
	if err := keyring.Set(service, account, encoded); err != nil {
		return fmt.Errorf("sessionkey: store session: %w", err)
	}
	return nil
}

func (h *OSHolder) Get(timeout time.Duration) ([]byte, error) {
	encoded, err := keyring.Get(service, account)
	if err == keyring.ErrNotFound {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("%w: keyring unavailable: %v", ErrNoSession, err)
	}

	e, err := decodeEntry(encoded)
	if err != nil {
		_ = h.Clear()
		return nil, ErrNoSession
	}

	if timeout > 0 && time.Since(e.StartedAt) > timeout {
		_ = h.Clear()
		return nil, ErrNoSession
	}
	return e.Key, nil
}

func (h *OSHolder) Clear() error {
	err := keyring.Delete(service, account)
	if err != nil && err != keyring.ErrNotFound {
		return fmt.Errorf("sessionkey: clear session: %w", err)
	}
	return nil
}

func encodeEntry(e entry) string {
	return fmt.Sprintf("%d:%s", e.StartedAt.Unix(), base64.StdEncoding.EncodeToString(e.Key))
}

func decodeEntry(s string) (entry, error) {
	var unixSeconds int64
	var b64 string
	if _, err := fmt.Sscanf(s, "%d:%s", &unixSeconds, &b64); err != nil {
		return entry{}, err
	}
	key, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return entry{}, err
	}
	return entry{Key: key, StartedAt: time.Unix(unixSeconds, 0)}, nil
}

// MemoryHolder is an in-process Holder used by tests and by any command
// that keeps the session alive for its own lifetime only (the opposite of
// the cross-process OSHolder).
type MemoryHolder struct {
	current *entry
}

// NewMemoryHolder returns an empty in-memory Holder.
func NewMemoryHolder() *MemoryHolder { return &MemoryHolder{} }

func (h *MemoryHolder) Put(key []byte) error {
	h.current = &entry{Key: key, StartedAt: time.Now()}
	return nil
}

func (h *MemoryHolder) Get(timeout time.Duration) ([]byte, error) {
	if h.current == nil {
		return nil, ErrNoSession
	}
	if timeout > 0 && time.Since(h.current.StartedAt) > timeout {
		h.current = nil
		return nil, ErrNoSession
	}
	return h.current.Key, nil
}

func (h *MemoryHolder) Clear() error {
	h.current = nil
	return nil
}

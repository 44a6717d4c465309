// Package redact is the single boundary every error crosses on its way
// from a Chacrab service to the CLI's output sink (spec.md §7, §9
// "Error redaction"). It classifies the core's error taxonomy into a
// process exit code and a short, secret-free message; anything it does
// not recognize is collapsed to a generic message rather than printed
// verbatim, so a future error type can never accidentally leak a raw
// backend string, a key, a token, ciphertext, or a plaintext payload.
package redact

import (
	"errors"
	"os"

	"github.com/chacrab/chacrab/internal/cli"
	"github.com/chacrab/chacrab/pkg/authsvc"
	"github.com/chacrab/chacrab/pkg/backup"
	"github.com/chacrab/chacrab/pkg/crypto"
	"github.com/chacrab/chacrab/pkg/repository"
	"github.com/chacrab/chacrab/pkg/sync"
	"github.com/chacrab/chacrab/pkg/vaultsvc"
)

// Process exit codes, per spec.md §6.8.
const (
	ExitSuccess   = 0
	ExitUser      = 1
	ExitAuth      = 2
	ExitIntegrity = 3
	ExitBackend   = 4
)

// ErrBackendUnavailable wraps any error opening or reaching a storage
// backend (sqlite file, postgres pool, mongo client), so the CLI layer
// can classify connectivity failures as exit code 4 without the
// backend's raw driver error reaching the user.
var ErrBackendUnavailable = errors.New("chacrab: storage backend unavailable")

// debugEnabled mirrors spec.md §7's "developer-diagnostic mode (off by
// default)": CHACRAB_DEBUG=1 surfaces the underlying error instead of the
// redacted message, for a developer who explicitly asked for it.
func debugEnabled() bool {
	return os.Getenv("CHACRAB_DEBUG") == "1"
}

// Report classifies err into a process exit code and a user-facing
// message, per the knowledge this package has of every sentinel error the
// core can return. err itself is never included in the returned message
// unless diagnostic mode is enabled.
func Report(err error) (code int, message string) {
	if err == nil {
		return ExitSuccess, ""
	}

	switch {
	case errors.Is(err, authsvc.ErrNoActiveSession):
		return ExitAuth, "not logged in: run \"chacrab login\" first"
	case errors.Is(err, authsvc.ErrInvalidCredentials):
		return ExitAuth, "incorrect master password"
	case errors.Is(err, authsvc.ErrAlreadyRegistered):
		return ExitUser, "vault is already initialized"
	case errors.Is(err, authsvc.ErrNotRegistered):
		return ExitUser, "vault has not been initialized; run \"chacrab init\" first"
	case errors.Is(err, authsvc.ErrWeakPassword):
		return ExitUser, "master password does not meet the minimum strength policy"

	case errors.Is(err, vaultsvc.ErrNotFound),
		errors.Is(err, repository.ErrNotFound),
		errors.Is(err, cli.ErrNotFound):
		return ExitUser, "no item matches that id"
	case errors.Is(err, cli.ErrAmbiguous):
		return ExitUser, "that prefix matches more than one item; use more characters"
	case errors.Is(err, repository.ErrAlreadyExists):
		return ExitUser, "that record already exists"

	case errors.Is(err, repository.ErrCorruptNonce):
		return ExitIntegrity, "stored item is corrupt: invalid nonce"
	case errors.Is(err, crypto.ErrDecryptionFailed):
		return ExitIntegrity, "decryption failed"
	case errors.Is(err, crypto.ErrInvalidKeyLength),
		errors.Is(err, crypto.ErrInvalidNonceLength),
		errors.Is(err, crypto.ErrCiphertextTooShort):
		return ExitIntegrity, "cryptographic operation failed"

	case errors.Is(err, backup.ErrChecksumMismatch):
		return ExitIntegrity, "backup integrity check failed: file is corrupt or tampered"
	case errors.Is(err, backup.ErrDecryptFailed):
		return ExitIntegrity, "backup decryption failed: wrong password or tampered file"
	case errors.Is(err, backup.ErrUnsupportedVersion):
		return ExitIntegrity, "backup was written by a newer version of chacrab"
	case errors.Is(err, backup.ErrMalformedPayload),
		errors.Is(err, backup.ErrInvalidMagic),
		errors.Is(err, backup.ErrFieldTooLarge):
		return ExitIntegrity, "backup file is malformed"

	case errors.Is(err, sync.ErrWeakAuthToken), errors.Is(err, sync.ErrTLSRequired):
		return ExitUser, err.Error()
	case errors.Is(err, sync.ErrBusy):
		return ExitUser, "a sync is already running"

	case errors.Is(err, repository.ErrAuthNotFound):
		return ExitUser, "vault has not been initialized; run \"chacrab init\" first"

	case errors.Is(err, ErrBackendUnavailable):
		return ExitBackend, "storage backend is unavailable"
	}

	if debugEnabled() {
		return ExitUser, err.Error()
	}
	return ExitUser, "an internal error occurred"
}

// Package backup implements Chacrab's encrypted backup envelope: a single
// portable file containing every vault item, sealed with the vault's
// session key so the file is safe to copy to untrusted storage.
package backup

import "errors"

var (
	// ErrDecryptFailed indicates the backup's AEAD payload failed
	// authentication: either the wrong key was used to import it, or the
	// ciphertext was tampered with after the checksum was written.
	ErrDecryptFailed = errors.New("backup: decryption failed")

	// ErrMalformedPayload indicates the decrypted payload did not decode
	// into a well-formed sequence of records, per spec.md §7's
	// DataError::Payload.
	ErrMalformedPayload = errors.New("backup: malformed payload")
)

package backup

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Magic identifies a Chacrab backup file.
var Magic = [4]byte{'C', 'H', 'A', 'C'}

// FormatVersion is the current backup envelope schema version.
const FormatVersion uint16 = 1

const (
	maxLengthPrefixedField  = 1 << 20 // 1 MiB; generous for salt/verifier/kdf_params, guards a corrupt length prefix from reading gigabytes
	maxPayloadLengthAllowed = 1 << 30 // 1 GiB
)

var (
	ErrInvalidMagic       = errors.New("backup: not a chacrab backup file")
	ErrUnsupportedVersion = errors.New("backup: unsupported backup format version")
	ErrChecksumMismatch   = errors.New("backup: checksum mismatch, file is corrupt or tampered")
	ErrFieldTooLarge      = errors.New("backup: length-prefixed field exceeds maximum size")
)

// kdfParams is the JSON-encoded Argon2id parameters copied from the
// exporting vault's auth record. Import parses them but does not use them:
// the payload key is derived from the session key, not from these.
type kdfParams struct {
	Memory  uint32 `json:"memory"`
	Time    uint32 `json:"time"`
	Threads uint32 `json:"threads"`
}

// header is every envelope field except the AEAD payload and the trailing
// checksum.
type header struct {
	Version    uint16
	ExportedAt int64 // unix millis
	Salt       []byte
	KDF        kdfParams
	Verifier   string
	ItemCount  uint32
	Nonce      [12]byte
}

// writeHeader writes magic + header fields to w and returns the bytes
// written. The checksum (see checksumOf) covers only the version, export
// timestamp, and nonce of these fields, and the payload is sealed with no
// associated data.
func writeHeader(w io.Writer, h *header) ([]byte, error) {
	buf := make([]byte, 0, 128)
	buf = append(buf, Magic[:]...)
	buf = binary.BigEndian.AppendUint16(buf, h.Version)
	buf = binary.BigEndian.AppendUint64(buf, uint64(h.ExportedAt))

	buf = appendLengthPrefixed(buf, h.Salt)

	kdfJSON, err := json.Marshal(h.KDF)
	if err != nil {
		return nil, fmt.Errorf("backup: encode kdf params: %w", err)
	}
	buf = appendLengthPrefixed(buf, kdfJSON)
	buf = appendLengthPrefixed(buf, []byte(h.Verifier))

	buf = binary.BigEndian.AppendUint32(buf, h.ItemCount)
	buf = append(buf, h.Nonce[:]...)

	if _, err := w.Write(buf); err != nil {
		return nil, fmt.Errorf("backup: write header: %w", err)
	}
	return buf, nil
}

func readHeader(r io.Reader) (*header, []byte, error) {
	var recorded []byte

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, nil, fmt.Errorf("backup: read magic: %w", err)
	}
	recorded = append(recorded, magic[:]...)
	if magic != Magic {
		return nil, nil, ErrInvalidMagic
	}

	h := &header{}
	var fixed [10]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return nil, nil, fmt.Errorf("backup: read header: %w", err)
	}
	recorded = append(recorded, fixed[:]...)
	h.Version = binary.BigEndian.Uint16(fixed[0:2])
	h.ExportedAt = int64(binary.BigEndian.Uint64(fixed[2:10]))
	// Version compatibility is checked by the caller after the checksum
	// has been verified: spec.md §4.6 requires integrity to be confirmed
	// before anything else about the envelope is trusted, including its
	// own version field.

	salt, raw, err := readLengthPrefixed(r)
	if err != nil {
		return nil, nil, fmt.Errorf("backup: read salt: %w", err)
	}
	recorded = append(recorded, raw...)
	h.Salt = salt

	kdfJSON, raw, err := readLengthPrefixed(r)
	if err != nil {
		return nil, nil, fmt.Errorf("backup: read kdf params: %w", err)
	}
	recorded = append(recorded, raw...)
	if err := json.Unmarshal(kdfJSON, &h.KDF); err != nil {
		return nil, nil, fmt.Errorf("backup: decode kdf params: %w", err)
	}

	verifier, raw, err := readLengthPrefixed(r)
	if err != nil {
		return nil, nil, fmt.Errorf("backup: read verifier: %w", err)
	}
	recorded = append(recorded, raw...)
	h.Verifier = string(verifier)

	var tail [16]byte // 4-byte item count + 12-byte nonce
	if _, err := io.ReadFull(r, tail[:]); err != nil {
		return nil, nil, fmt.Errorf("backup: read item count/nonce: %w", err)
	}
	recorded = append(recorded, tail[:]...)
	h.ItemCount = binary.BigEndian.Uint32(tail[0:4])
	copy(h.Nonce[:], tail[4:16])

	return h, recorded, nil
}

func appendLengthPrefixed(buf []byte, data []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(data)))
	return append(buf, data...)
}

func readLengthPrefixed(r io.Reader) (data []byte, raw []byte, err error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > uint32(maxLengthPrefixedField) {
		return nil, nil, ErrFieldTooLarge
	}
	data = make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, nil, err
	}
	raw = append(append([]byte{}, lenBuf[:]...), data...)
	return data, raw, nil
}

func writePayload(w io.Writer, ciphertext []byte) ([]byte, error) {
	buf := appendLengthPrefixed(nil, ciphertext)
	if _, err := w.Write(buf); err != nil {
		return nil, fmt.Errorf("backup: write payload: %w", err)
	}
	return buf, nil
}

func readPayload(r io.Reader) (ciphertext []byte, raw []byte, err error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, nil, fmt.Errorf("backup: read payload length: %w", err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > uint32(maxPayloadLengthAllowed) {
		return nil, nil, ErrFieldTooLarge
	}
	ciphertext = make([]byte, n)
	if _, err := io.ReadFull(r, ciphertext); err != nil {
		return nil, nil, fmt.Errorf("backup: read payload: %w", err)
	}
	raw = append(append([]byte{}, lenBuf[:]...), ciphertext...)
	return ciphertext, raw, nil
}

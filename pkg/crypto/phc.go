package crypto

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidVerifier indicates a verifier string is not a well-formed PHC
// encoding produced by NewVerifier.
var ErrInvalidVerifier = errors.New("crypto: invalid verifier encoding")

const phcAlgorithm = "argon2id"
const phcVersion = 19 // argon2.Version, kept literal since the wire format must not drift if the library's constant does

// NewVerifier derives a self-describing registration verifier for
// derivedKey by re-hashing it through Argon2id with a fresh salt, and
// encodes the result as a PHC-style string:
//
//	$argon2id$v=19$m=65536,t=3,p=1$<salt-b64>$<hash-b64>
//
// The string records the KDF parameters it was produced with, but
// VerifyVerifier does not read them back: it always re-hashes with this
// package's current Argon2 constants.
func NewVerifier(derivedKey []byte) (string, error) {
	salt, err := GenerateSalt()
	if err != nil {
		return "", err
	}
	hash := DeriveKey(derivedKey, salt)
	return encodePHC(salt, hash), nil
}

// VerifyVerifier reports whether derivedKey re-hashes to the value
// encoded in verifier, in constant time.
func VerifyVerifier(verifier string, derivedKey []byte) (bool, error) {
	salt, hash, err := decodePHC(verifier)
	if err != nil {
		return false, err
	}
	candidate := DeriveKey(derivedKey, salt)
	return ConstantTimeCompare(candidate, hash), nil
}

func encodePHC(salt, hash []byte) string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		phcAlgorithm, phcVersion, Argon2Memory, Argon2Time, Argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash))
}

func decodePHC(s string) (salt, hash []byte, err error) {
	parts := strings.Split(s, "$")
	// strings.Split on a leading "$" yields a leading empty element.
	if len(parts) != 6 || parts[0] != "" {
		return nil, nil, ErrInvalidVerifier
	}
	if parts[1] != phcAlgorithm {
		return nil, nil, ErrInvalidVerifier
	}
	if !strings.HasPrefix(parts[2], "v=") {
		return nil, nil, ErrInvalidVerifier
	}
	if _, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v=")); err != nil {
		return nil, nil, ErrInvalidVerifier
	}
	// parts[3] carries m=/t=/p= but verification always uses this
	// package's current parameters, matching DeriveKey's fixed constants.

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, ErrInvalidVerifier
	}
	hash, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, nil, ErrInvalidVerifier
	}
	return salt, hash, nil
}

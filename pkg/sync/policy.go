package sync

import "strings"

// MinAuthTokenLength is the minimum length spec.md §4.7 requires of a
// remote auth token once the remote is not the embedded file store.
const MinAuthTokenLength = 16

// ValidateTransportPolicy enforces spec.md §4.7's pre-sync precheck: the
// embedded file store needs no token and no TLS (there is no network
// transport to protect), but any other backend requires a real auth
// token and, unless requireTLS has been explicitly disabled, a
// connection string that looks TLS-protected.
func ValidateTransportPolicy(backend, databaseURL, authToken string, requireTLS bool) error {
	if backend == "sqlite" {
		return nil
	}
	if len(authToken) < MinAuthTokenLength {
		return ErrWeakAuthToken
	}
	if requireTLS && !looksTLSProtected(databaseURL) {
		return ErrTLSRequired
	}
	return nil
}

// looksTLSProtected is a heuristic over the connection string: the
// precheck has no live handshake to inspect, so it looks for the
// parameters/schemes each driver in pkg/repository uses to request TLS.
func looksTLSProtected(databaseURL string) bool {
	lower := strings.ToLower(databaseURL)
	switch {
	case strings.HasPrefix(lower, "mongodb+srv://"):
		return true
	case strings.Contains(lower, "sslmode=require"),
		strings.Contains(lower, "sslmode=verify-ca"),
		strings.Contains(lower, "sslmode=verify-full"):
		return true
	case strings.Contains(lower, "tls=true"), strings.Contains(lower, "ssl=true"):
		return true
	default:
		return false
	}
}

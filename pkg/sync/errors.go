package sync

import "errors"

// Sentinel errors for the sync command's pre-sync transport precheck
// (spec.md §4.7 "Inputs") and its single-flight guarantee (spec.md §5).
var (
	// ErrWeakAuthToken indicates a non-sqlite remote was configured
	// without an auth token of at least MinAuthTokenLength characters.
	ErrWeakAuthToken = errors.New("sync: remote auth token must be at least 16 characters")

	// ErrTLSRequired indicates a non-sqlite remote's connection string
	// does not look TLS-protected and CHACRAB_SYNC_REQUIRE_TLS has not
	// been explicitly disabled.
	ErrTLSRequired = errors.New("sync: TLS is required for this remote backend (set CHACRAB_SYNC_REQUIRE_TLS=false to opt out)")

	// ErrBusy indicates a sync pass is already running for this
	// (local, remote) pair; the engine is single-flight per spec.md §5.
	ErrBusy = errors.New("sync: a sync pass is already in progress")
)

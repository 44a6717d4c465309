package vaultsvc

import "errors"

// ErrNotFound is returned when an operation references a vault item id
// that does not exist (or has been tombstoned).
var ErrNotFound = errors.New("vaultsvc: item not found")

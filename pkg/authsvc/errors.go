package authsvc

import "errors"

// Error taxonomy for the auth service, following spec.md §7's AuthError
// classification. Callers branch on these with errors.Is; the CLI layer
// maps them to process exit codes.
var (
	ErrInvalidCredentials = errors.New("authsvc: invalid master password")
	ErrAlreadyRegistered  = errors.New("authsvc: vault already initialized")
	ErrNotRegistered      = errors.New("authsvc: vault has not been initialized")
	ErrNoActiveSession    = errors.New("authsvc: no active session, run \"chacrab login\"")
)

// Package authsvc implements vault registration and login: deriving the
// vault key from a master password, checking it against the persisted
// verifier, and handing the derived key to the session key holder so the
// rest of the CLI's commands within the session window never see the
// master password again.
package authsvc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chacrab/chacrab/internal/sessionkey"
	"github.com/chacrab/chacrab/pkg/crypto"
	"github.com/chacrab/chacrab/pkg/model"
	"github.com/chacrab/chacrab/pkg/repository"
)

// Service is the auth service. SessionTimeout governs how long a Login
// stays valid before Unlock starts returning ErrNoActiveSession again.
type Service struct {
	repo           repository.Repository
	session        sessionkey.Holder
	SessionTimeout time.Duration
}

// New returns an auth Service backed by repo and session.
func New(repo repository.Repository, session sessionkey.Holder, sessionTimeout time.Duration) *Service {
	return &Service{repo: repo, session: session, SessionTimeout: sessionTimeout}
}

// Register derives the vault key from masterPassword, persists an
// AuthBootstrap record, and starts a session. It fails with
// ErrAlreadyRegistered if a vault has already been initialized.
func (s *Service) Register(ctx context.Context, masterPassword string) (vaultKey []byte, err error) {
	if err := ValidateMasterPassword(masterPassword); err != nil {
		return nil, err
	}

	if _, err := s.repo.LoadAuth(ctx); err == nil {
		return nil, ErrAlreadyRegistered
	} else if !errors.Is(err, repository.ErrAuthNotFound) {
		return nil, fmt.Errorf("authsvc: check existing auth: %w", err)
	}

	salt, err := crypto.GenerateSalt()
	if err != nil {
		return nil, err
	}

	password := []byte(masterPassword)
	defer crypto.SecureWipe(password)

	key := crypto.DeriveKey(password, salt)
	verifier, err := crypto.NewVerifier(key)
	if err != nil {
		crypto.SecureWipe(key)
		return nil, fmt.Errorf("authsvc: build verifier: %w", err)
	}

	auth := &model.AuthBootstrap{
		Salt:        salt,
		Verifier:    verifier,
		Argon2MCost: crypto.Argon2Memory,
		Argon2TCost: crypto.Argon2Time,
		Argon2PCost: crypto.Argon2Threads,
	}
	if err := s.repo.SaveAuth(ctx, auth); err != nil {
		crypto.SecureWipe(key)
		return nil, fmt.Errorf("authsvc: persist auth bootstrap: %w", err)
	}

	if err := s.session.Put(key); err != nil {
		crypto.SecureWipe(key)
		return nil, fmt.Errorf("authsvc: start session: %w", err)
	}
	return key, nil
}

// Login verifies masterPassword against the persisted AuthBootstrap
// record and, on success, starts a session holding the derived key.
func (s *Service) Login(ctx context.Context, masterPassword string) (vaultKey []byte, err error) {
	auth, err := s.repo.LoadAuth(ctx)
	if errors.Is(err, repository.ErrAuthNotFound) {
		return nil, ErrNotRegistered
	}
	if err != nil {
		return nil, fmt.Errorf("authsvc: load auth bootstrap: %w", err)
	}

	password := []byte(masterPassword)
	defer crypto.SecureWipe(password)

	key := crypto.DeriveKey(password, auth.Salt)

	ok, err := crypto.VerifyVerifier(auth.Verifier, key)
	if err != nil {
		crypto.SecureWipe(key)
		return nil, fmt.Errorf("authsvc: check verifier: %w", err)
	}
	if !ok {
		crypto.SecureWipe(key)
		return nil, ErrInvalidCredentials
	}

	if err := s.session.Put(key); err != nil {
		crypto.SecureWipe(key)
		return nil, fmt.Errorf("authsvc: start session: %w", err)
	}
	return key, nil
}

// Logout clears the active session, if any.
func (s *Service) Logout() error {
	if err := s.session.Clear(); err != nil {
		return fmt.Errorf("authsvc: clear session: %w", err)
	}
	return nil
}

// Unlock returns the active session's vault key, or ErrNoActiveSession if
// there isn't one (including an expired one). The CLI commands call this
// and pass the key to vaultsvc and pkg/backup rather than touching
// sessionkey directly, so the session/no-session distinction stays in one
// place.
func (s *Service) Unlock() ([]byte, error) {
	key, err := s.session.Get(s.SessionTimeout)
	if errors.Is(err, sessionkey.ErrNoSession) {
		return nil, ErrNoActiveSession
	}
	if err != nil {
		return nil, fmt.Errorf("authsvc: read session: %w", err)
	}
	return key, nil
}

package authsvc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chacrab/chacrab/internal/repostest"
	"github.com/chacrab/chacrab/internal/sessionkey"
)

const strongPassword = "correct horse battery staple!"

func newService() *Service {
	return New(repostest.New(), sessionkey.NewMemoryHolder(), time.Hour)
}

func TestRegisterThenUnlockReturnsVaultKey(t *testing.T) {
	ctx := context.Background()
	svc := newService()

	key, err := svc.Register(ctx, strongPassword)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if len(key) == 0 {
		t.Fatal("Register() returned an empty vault key")
	}

	got, err := svc.Unlock()
	if err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	if string(got) != string(key) {
		t.Fatal("Unlock() returned a different key than Register()")
	}
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	svc := newService()
	if _, err := svc.Register(context.Background(), "short"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("Register() error = %v, want ErrWeakPassword", err)
	}
}

func TestRegisterTwiceFails(t *testing.T) {
	ctx := context.Background()
	svc := newService()

	if _, err := svc.Register(ctx, strongPassword); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}
	if _, err := svc.Register(ctx, strongPassword); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("second Register() error = %v, want ErrAlreadyRegistered", err)
	}
}

func TestLoginWithoutRegistrationFails(t *testing.T) {
	svc := newService()
	if _, err := svc.Login(context.Background(), strongPassword); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("Login() error = %v, want ErrNotRegistered", err)
	}
}

func TestLoginWrongPasswordFails(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	if _, err := svc.Register(ctx, strongPassword); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := svc.Logout(); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}

	if _, err := svc.Login(ctx, "wrong password entirely"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Login() error = %v, want ErrInvalidCredentials", err)
	}
}

func TestLoginWithCorrectPasswordSucceeds(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	key, err := svc.Register(ctx, strongPassword)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := svc.Logout(); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}

	got, err := svc.Login(ctx, strongPassword)
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if string(got) != string(key) {
		t.Fatal("Login() derived a different key than Register() did")
	}
}

func TestUnlockWithoutSessionFails(t *testing.T) {
	svc := newService()
	if _, err := svc.Unlock(); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("Unlock() error = %v, want ErrNoActiveSession", err)
	}
}

func TestLogoutClearsSession(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	if _, err := svc.Register(ctx, strongPassword); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if err := svc.Logout(); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if _, err := svc.Unlock(); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("Unlock() after Logout() error = %v, want ErrNoActiveSession", err)
	}
}

func TestUnlockExpiresAfterSessionTimeout(t *testing.T) {
	ctx := context.Background()
	svc := New(repostest.New(), sessionkey.NewMemoryHolder(), time.Nanosecond)
	if _, err := svc.Register(ctx, strongPassword); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	time.Sleep(time.Millisecond)
	if _, err := svc.Unlock(); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("Unlock() after timeout error = %v, want ErrNoActiveSession", err)
	}
}

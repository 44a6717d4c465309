package sync

import (
	"errors"
	"testing"
)

func TestValidateTransportPolicySqliteNeedsNothing(t *testing.T) {
	if err := ValidateTransportPolicy("sqlite", "", "", false); err != nil {
		t.Fatalf("ValidateTransportPolicy(sqlite) error = %v", err)
	}
}

func TestValidateTransportPolicyRejectsShortToken(t *testing.T) {
	err := ValidateTransportPolicy("postgres", "postgres://host/db?sslmode=require", "short", true)
	if !errors.Is(err, ErrWeakAuthToken) {
		t.Fatalf("ValidateTransportPolicy() error = %v, want ErrWeakAuthToken", err)
	}
}

func TestValidateTransportPolicyRejectsNonTLS(t *testing.T) {
	err := ValidateTransportPolicy("postgres", "postgres://host/db", "0123456789abcdef", true)
	if !errors.Is(err, ErrTLSRequired) {
		t.Fatalf("ValidateTransportPolicy() error = %v, want ErrTLSRequired", err)
	}
}

func TestValidateTransportPolicyAllowsTLSOptOut(t *testing.T) {
	err := ValidateTransportPolicy("postgres", "postgres://host/db", "0123456789abcdef", false)
	if err != nil {
		t.Fatalf("ValidateTransportPolicy() error = %v, want nil with TLS opt-out", err)
	}
}

func TestValidateTransportPolicyAcceptsMongoSRV(t *testing.T) {
	err := ValidateTransportPolicy("mongo", "mongodb+srv://host/db", "0123456789abcdef", true)
	if err != nil {
		t.Fatalf("ValidateTransportPolicy() error = %v, want nil for mongodb+srv", err)
	}
}

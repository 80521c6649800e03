package service

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMFATokenRoundTrip(t *testing.T) {
	issuer := MFATokenIssuerJWT{Secret: []byte("test-secret"), Issuer: "codescribe-auth", TTL: 5 * time.Minute}
	userID := uuid.New()

	token, ttl, err := issuer.IssueMFAToken(userID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if ttl != 5*time.Minute {
		t.Fatalf("expected ttl 5m, got %v", ttl)
	}

	parsed, err := issuer.ParseMFAToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != userID {
		t.Fatalf("expected %s, got %s", userID, parsed)
	}
}

func TestMFATokenRejectsWrongSecret(t *testing.T) {
	issuer := MFATokenIssuerJWT{Secret: []byte("test-secret")}
	other := MFATokenIssuerJWT{Secret: []byte("other-secret")}

	token, _, err := issuer.IssueMFAToken(uuid.New())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := other.ParseMFAToken(token); !errors.Is(err, ErrInvalidMFAToken) {
		t.Fatalf("expected ErrInvalidMFAToken, got %v", err)
	}
}

func TestMFATokenRejectsGarbage(t *testing.T) {
	issuer := MFATokenIssuerJWT{Secret: []byte("test-secret")}
	if _, err := issuer.ParseMFAToken("not-a-jwt"); !errors.Is(err, ErrInvalidMFAToken) {
		t.Fatalf("expected ErrInvalidMFAToken, got %v", err)
	}
}

package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestProviderSignInAndToken(t *testing.T) {
	store := NewInMemorySessionStore()
	provider := NewProvider(time.Hour, store)

	session, err := provider.SignIn(context.Background(), "user-1", " token-abc ")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if session.ExpiresAt.IsZero() {
		t.Fatal("expected expiry to be set when ttl is positive")
	}

	token, err := provider.Token(context.Background())
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if token != "token-abc" {
		t.Fatalf("expected trimmed token, got %q", token)
	}

	userID, err := provider.UserID(context.Background())
	if err != nil {
		t.Fatalf("user id: %v", err)
	}
	if userID != "user-1" {
		t.Fatalf("expected user-1, got %q", userID)
	}
}

func TestProviderSignInValidation(t *testing.T) {
	provider := NewProvider(time.Hour, NewInMemorySessionStore())
	if _, err := provider.SignIn(context.Background(), "", "token"); err == nil {
		t.Fatal("expected error for empty user id")
	}
	if _, err := provider.SignIn(context.Background(), "user-1", "  "); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestProviderNoSession(t *testing.T) {
	provider := NewProvider(time.Hour, NewInMemorySessionStore())
	if _, err := provider.Token(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestProviderExpiredSessionIsRemoved(t *testing.T) {
	store := NewInMemorySessionStore()
	provider := NewProvider(time.Minute, store)

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	provider.NowFunc = func() time.Time { return now }

	if _, err := provider.SignIn(context.Background(), "user-1", "token"); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := provider.Token(context.Background()); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if store.Has() {
		t.Fatal("expired session should have been removed")
	}
	if _, err := provider.Token(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession after expiry cleanup, got %v", err)
	}
}

func TestProviderZeroTTLNeverExpires(t *testing.T) {
	provider := NewProvider(0, NewInMemorySessionStore())
	session, err := provider.SignIn(context.Background(), "user-1", "token")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if !session.ExpiresAt.IsZero() {
		t.Fatalf("expected no expiry, got %v", session.ExpiresAt)
	}

	provider.NowFunc = func() time.Time { return time.Now().Add(24 * 365 * time.Hour) }
	if _, err := provider.Token(context.Background()); err != nil {
		t.Fatalf("expected session to stay valid, got %v", err)
	}
}

func TestProviderSignOut(t *testing.T) {
	provider := NewProvider(time.Hour, NewInMemorySessionStore())
	if _, err := provider.SignIn(context.Background(), "user-1", "token"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	provider.SignOut(context.Background())
	if _, err := provider.UserID(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession after sign out, got %v", err)
	}
}

package auth

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNoSession indicates no user is signed in.
	ErrNoSession = errors.New("no active session")
	// ErrSessionExpired indicates the stored credential is past its expiry.
	ErrSessionExpired = errors.New("session expired")
)

// SessionStore persists the signed-in session so it can survive restarts.
type SessionStore interface {
	Save(ctx context.Context, session Session) error
	Current(ctx context.Context) (Session, error)
	Delete(ctx context.Context) error
}

// Session is the bearer credential of the signed-in user. A zero ExpiresAt
// never expires.
type Session struct {
	AccessToken string
	UserID      string
	ExpiresAt   time.Time
}

// Provider hands out the current bearer credential on demand. The token is
// opaque; it is only ever forwarded as an authorization header.
type Provider struct {
	ttl   time.Duration
	store SessionStore

	// NowFunc overrides the clock in tests.
	NowFunc func() time.Time
}

// NewProvider constructs a Provider. Sessions started with SignIn expire
// after ttl; a ttl of zero or less keeps them until SignOut.
func NewProvider(ttl time.Duration, store SessionStore) *Provider {
	if store == nil {
		panic("auth: session store must not be nil")
	}
	return &Provider{ttl: ttl, store: store}
}

// SignIn stores a credential obtained from the identity service.
func (p *Provider) SignIn(ctx context.Context, userID, accessToken string) (Session, error) {
	userID = strings.TrimSpace(userID)
	accessToken = strings.TrimSpace(accessToken)
	if userID == "" {
		return Session{}, errors.New("user id must be provided")
	}
	if accessToken == "" {
		return Session{}, errors.New("access token must be provided")
	}

	session := Session{AccessToken: accessToken, UserID: userID}
	if p.ttl > 0 {
		session.ExpiresAt = p.now().Add(p.ttl)
	}
	if err := p.store.Save(ctx, session); err != nil {
		return Session{}, err
	}
	return session, nil
}

// Session returns the active session. Expired sessions are removed.
func (p *Provider) Session(ctx context.Context) (Session, error) {
	session, err := p.store.Current(ctx)
	if err != nil {
		return Session{}, err
	}
	if !session.ExpiresAt.IsZero() && p.now().After(session.ExpiresAt) {
		_ = p.store.Delete(ctx)
		return Session{}, ErrSessionExpired
	}
	return session, nil
}

// Token returns the bearer credential of the active session.
func (p *Provider) Token(ctx context.Context) (string, error) {
	session, err := p.Session(ctx)
	if err != nil {
		return "", err
	}
	return session.AccessToken, nil
}

// UserID returns the id of the signed-in user.
func (p *Provider) UserID(ctx context.Context) (string, error) {
	session, err := p.Session(ctx)
	if err != nil {
		return "", err
	}
	return session.UserID, nil
}

// SignOut forgets the active session.
func (p *Provider) SignOut(ctx context.Context) {
	_ = p.store.Delete(ctx)
}

func (p *Provider) now() time.Time {
	if p.NowFunc != nil {
		return p.NowFunc().UTC()
	}
	return time.Now().UTC()
}

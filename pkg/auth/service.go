package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LoginResult is returned by a successful login
type LoginResult struct {
	Token   string         `json:"token"`
	User    *User          `json:"user"`
	Session *SessionRecord `json:"session"`
}

// Authenticator verifies credentials and bearer tokens
type Authenticator struct {
	store         *Store
	tokens        *TokenManager
	now           func() time.Time
	checkPassword func(hash, password string) error
}

// NewAuthenticator creates an authenticator
func NewAuthenticator(store *Store, tokens *TokenManager) *Authenticator {
	return &Authenticator{
		store:         store,
		tokens:        tokens,
		now:           func() time.Time { return time.Now().UTC() },
		checkPassword: CheckPassword,
	}
}

// Store returns the underlying user and session store
func (a *Authenticator) Store() *Store {
	return a.store
}

// Login checks the password and opens a new session. Unknown emails and wrong
// passwords return the same ErrInvalidCredentials.
func (a *Authenticator) Login(ctx context.Context, email, password, ipAddress, userAgent string) (*LoginResult, error) {
	user, err := a.store.GetUserByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		_ = a.checkPassword(dummyHash(), password)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := a.checkPassword(user.PasswordHash, password); err != nil {
		return nil, err
	}
	if !user.Active {
		return nil, ErrUserInactive
	}

	now := a.now()
	rec := &SessionRecord{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(a.tokens.TTL()),
		IPAddress: ipAddress,
		UserAgent: userAgent,
	}
	if err := a.store.CreateSession(ctx, rec); err != nil {
		return nil, err
	}

	token, err := a.tokens.Issue(user.ID, rec.ID, rec.ExpiresAt)
	if err != nil {
		return nil, err
	}

	if err := a.store.TouchLogin(ctx, user.ID); err != nil {
		return nil, err
	}
	user.LastLoginAt = &now

	return &LoginResult{Token: token, User: user, Session: rec}, nil
}

// Authenticate resolves a bearer token to a Session. The user row is reloaded
// so role and department changes take effect immediately.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*Session, *User, error) {
	claims, err := a.tokens.Parse(token)
	if err != nil {
		return nil, nil, err
	}

	rec, err := a.store.GetSession(ctx, claims.ID)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, nil, ErrSessionInvalid
	}
	if err != nil {
		return nil, nil, err
	}
	if rec.UserID != claims.Subject || !rec.Active(a.now()) {
		return nil, nil, ErrSessionInvalid
	}

	user, err := a.store.GetUser(ctx, rec.UserID)
	if errors.Is(err, ErrUserNotFound) {
		return nil, nil, ErrSessionInvalid
	}
	if err != nil {
		return nil, nil, err
	}
	if !user.Active {
		return nil, nil, ErrUserInactive
	}

	return &Session{
		SessionID:    rec.ID,
		UserID:       user.ID,
		DepartmentID: user.DepartmentID,
		Role:         user.Role,
	}, user, nil
}

// Logout revokes the session behind the current request
func (a *Authenticator) Logout(ctx context.Context, session *Session) error {
	if session == nil {
		return ErrSessionInvalid
	}
	if err := a.store.RevokeSession(ctx, session.UserID, session.SessionID); err != nil {
		return fmt.Errorf("failed to logout: %w", err)
	}
	return nil
}

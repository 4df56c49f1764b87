package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestNewTokenManager_ShortSecret(t *testing.T) {
	if _, err := NewTokenManager("short", time.Hour); err == nil {
		t.Error("expected error for short secret")
	}
}

func TestTokenManager_IssueAndParse(t *testing.T) {
	tm, err := NewTokenManager(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewTokenManager() error = %v", err)
	}

	token, err := tm.Issue("user-1", "session-1", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Errorf("token should have three segments, got %q", token)
	}

	claims, err := tm.Parse(token)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if claims.Subject != "user-1" {
		t.Errorf("Subject = %q, want user-1", claims.Subject)
	}
	if claims.ID != "session-1" {
		t.Errorf("ID = %q, want session-1", claims.ID)
	}
}

func TestTokenManager_Expired(t *testing.T) {
	tm, _ := NewTokenManager(testSecret, time.Hour)
	past := time.Now().Add(-2 * time.Hour)
	tm.now = func() time.Time { return past }
	token, err := tm.Issue("user-1", "session-1", past.Add(time.Hour))
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	tm.now = time.Now
	if _, err := tm.Parse(token); !errors.Is(err, ErrSessionInvalid) {
		t.Errorf("Parse() of expired token = %v, want ErrSessionInvalid", err)
	}
}

func TestTokenManager_WrongSecret(t *testing.T) {
	issuer, _ := NewTokenManager(testSecret, time.Hour)
	verifier, _ := NewTokenManager(strings.Repeat("z", 32), time.Hour)

	token, _ := issuer.Issue("user-1", "session-1", time.Now().Add(time.Hour))
	if _, err := verifier.Parse(token); !errors.Is(err, ErrSessionInvalid) {
		t.Errorf("Parse() with wrong secret = %v, want ErrSessionInvalid", err)
	}
}

func TestTokenManager_RejectsOtherAlgorithms(t *testing.T) {
	tm, _ := NewTokenManager(testSecret, time.Hour)

	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   "user-1",
		ID:        "session-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	if _, err := tm.Parse(token); err == nil {
		t.Error("HS512 token should be rejected")
	}

	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := tm.Parse(none); err == nil {
		t.Error("unsigned token should be rejected")
	}
}

func TestTokenManager_Garbage(t *testing.T) {
	tm, _ := NewTokenManager(testSecret, time.Hour)
	if _, err := tm.Parse("not-a-token"); !errors.Is(err, ErrSessionInvalid) {
		t.Errorf("Parse(garbage) = %v, want ErrSessionInvalid", err)
	}
}

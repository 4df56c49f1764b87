package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is enforced when setting a password
const MinPasswordLength = 10

// HashPassword hashes a plaintext password with bcrypt
func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

var (
	dummyHashOnce sync.Once
	dummyHashVal  string
)

// dummyHash is a hash of a random secret at the login cost. Comparing
// against it makes unknown emails cost as much as wrong passwords.
func dummyHash() string {
	dummyHashOnce.Do(func() {
		secret := make([]byte, 16)
		_, _ = rand.Read(secret)
		hash, err := bcrypt.GenerateFromPassword([]byte(hex.EncodeToString(secret)), bcrypt.DefaultCost)
		if err != nil {
			panic(fmt.Sprintf("failed to build dummy password hash: %v", err))
		}
		dummyHashVal = string(hash)
	})
	return dummyHashVal
}

// CheckPassword compares a plaintext password with a stored hash
func CheckPassword(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrInvalidCredentials
	}
	if err != nil {
		return fmt.Errorf("failed to compare password: %w", err)
	}
	return nil
}

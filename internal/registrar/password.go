package registrar

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword creates a bcrypt hash for a registrar password.
func HashPassword(pw string) (string, error) {
	if pw == "" {
		return "", errors.New("password cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// VerifyPassword checks pw against a bcrypt hash. Hashes written with the
// "$2y$" prefix are read as "$2a$"; the two are the same algorithm.
func VerifyPassword(pw, hash string) error {
	if rest, ok := strings.CutPrefix(hash, "$2y$"); ok {
		hash = "$2a$" + rest
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("verify password: %w", err)
	}
	return nil
}

// Package auth resolves the acting user for each request: a fixed default
// user when PIN auth is off, or a 4-digit PIN login with server-side sessions.
package auth

import (
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/crypto/argon2"
)

var (
	ErrInvalidPIN         = errors.New("pin must be exactly four digits")
	ErrInvalidName        = errors.New("display name must not be empty")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotAuthenticated   = errors.New("not authenticated")
)

var pinPattern = regexp.MustCompile(`^[0-9]{4}$`)

// ValidatePIN rejects anything but exactly four decimal digits, before any
// store access happens.
func ValidatePIN(pin string) error {
	if !pinPattern.MatchString(pin) {
		return ErrInvalidPIN
	}
	return nil
}

// ValidateName checks a registration display name.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrInvalidName
	}
	if len(name) > 50 {
		return fmt.Errorf("%w: too long", ErrInvalidName)
	}
	return nil
}

// DigestPIN derives a deterministic argon2id digest of the PIN under a
// deployment-wide secret. Determinism is what makes the unique index on the
// digest column enforce one user per PIN, and what lets login look a PIN up
// without scanning all users.
func DigestPIN(pin string, secret []byte) string {
	key := argon2.IDKey([]byte(pin), secret, 1, 64*1024, 4, 32)
	return hex.EncodeToString(key)
}

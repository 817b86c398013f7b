package auth

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned for an unknown operator or a wrong password.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// dummyHash keeps the unknown-operator path as slow as a real comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("carwash"), bcrypt.MinCost)

// HashPassword returns the bcrypt hash stored in operator config entries.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(hash), nil
}

// Operators maps operator names to bcrypt password hashes.
type Operators map[string]string

// ParseOperators parses "name:bcrypt-hash" entries.
func ParseOperators(entries []string) (Operators, error) {
	ops := make(Operators, len(entries))
	for _, entry := range entries {
		name, hash, ok := strings.Cut(strings.TrimSpace(entry), ":")
		if !ok || name == "" || hash == "" {
			return nil, fmt.Errorf("auth: operator entry %q is not name:hash", entry)
		}
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("auth: operator %s: %w", name, err)
		}
		ops[name] = hash
	}
	return ops, nil
}

// Verify checks password against the operator's hash.
func (o Operators) Verify(name, password string) error {
	hash, ok := o[name]
	if !ok {
		bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

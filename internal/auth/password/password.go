// Package password derives and verifies password credentials.
package password

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"unicode"

	"golang.org/x/crypto/pbkdf2"

	apperrors "github.com/saveriodangelo-cyber/Cooksy/internal/errors"
)

const (
	// Iterations is the PBKDF2-HMAC-SHA256 work factor for new credentials.
	// Stored per credential so it can be raised without invalidating old hashes.
	Iterations = 160000

	saltLength = 16
	keyLength  = 32

	minPasswordLength = 8
)

// ErrWeakPassword indicates a password that fails the minimum policy.
var ErrWeakPassword = apperrors.New(apperrors.CodeWeakPassword,
	"password must be at least 8 characters and include a letter and a digit")

// Credential holds the derived password material persisted with a user.
type Credential struct {
	Hash       []byte
	Salt       []byte
	Iterations int
}

// ValidatePolicy enforces the minimum password policy: at least 8 characters
// with at least one letter and one digit.
func ValidatePolicy(plaintext string) error {
	if len(plaintext) < minPasswordLength {
		return ErrWeakPassword
	}
	var hasLetter, hasDigit bool
	for _, r := range plaintext {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return ErrWeakPassword
	}
	return nil
}

// Derive hashes a plaintext password with a fresh random salt.
func Derive(plaintext string) (Credential, error) {
	if err := ValidatePolicy(plaintext); err != nil {
		return Credential{}, err
	}

	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return Credential{}, fmt.Errorf("generate salt: %w", err)
	}

	hash := pbkdf2.Key([]byte(plaintext), salt, Iterations, keyLength, sha256.New)
	return Credential{Hash: hash, Salt: salt, Iterations: Iterations}, nil
}

// Verify reports whether plaintext matches the stored credential. The
// comparison is constant time so verification latency does not reveal how
// much of the hash matched.
func Verify(plaintext string, cred Credential) bool {
	if len(cred.Hash) == 0 || len(cred.Salt) == 0 || cred.Iterations <= 0 {
		return false
	}
	derived := pbkdf2.Key([]byte(plaintext), cred.Salt, cred.Iterations, len(cred.Hash), sha256.New)
	return subtle.ConstantTimeCompare(derived, cred.Hash) == 1
}

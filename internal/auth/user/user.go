// Package user provides auth user management.
package user

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	apperrors "github.com/saveriodangelo-cyber/Cooksy/internal/errors"
	"github.com/saveriodangelo-cyber/Cooksy/internal/platform/id"
)

var (
	// ErrEmptyEmail indicates a missing email address.
	ErrEmptyEmail = apperrors.New(apperrors.CodeInvalidEmail, "email is required")
	// ErrInvalidEmail indicates an email that does not match the required format.
	ErrInvalidEmail = apperrors.New(apperrors.CodeInvalidEmail, "email must have a local part, an @, and a dotted domain")

	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// User represents an authenticated identity record.
//
// PasswordHash and PasswordSalt are only ever derived values; the plaintext
// password never leaves the request that carried it.
type User struct {
	ID                 string
	Email              string
	PasswordHash       []byte
	PasswordSalt       []byte
	PasswordIterations int
	OtpEnabled         bool
	PasskeyEnrolled    bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
	LastLoginAt        *time.Time
}

// NormalizeEmail lowercases and trims an email address so lookups are
// case-insensitive everywhere.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail enforces the canonical email shape used across registration,
// login, and OTP issuance.
func ValidateEmail(email string) error {
	if email == "" {
		return ErrEmptyEmail
	}
	if !emailPattern.MatchString(email) {
		return ErrInvalidEmail
	}
	return nil
}

// NewUser creates a durable user identity from a normalized email.
//
// Credential material (hash, salt, iterations) is attached by the password
// authenticator before the record is persisted.
func NewUser(email string, now func() time.Time, idGenerator func() (string, error)) (User, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	normalized := NormalizeEmail(email)
	if err := ValidateEmail(normalized); err != nil {
		return User{}, err
	}

	userID, err := idGenerator()
	if err != nil {
		return User{}, fmt.Errorf("generate user id: %w", err)
	}

	createdAt := now().UTC()
	return User{
		ID:        userID,
		Email:     normalized,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}, nil
}

package storage

import (
	"context"
	"time"

	"github.com/saveriodangelo-cyber/Cooksy/internal/auth/user"
	"github.com/saveriodangelo-cyber/Cooksy/internal/errors"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New(errors.CodeNotFound, "record not found")

// UserStore persists auth user records.
type UserStore interface {
	PutUser(ctx context.Context, u user.User) error
	GetUser(ctx context.Context, userID string) (user.User, error)
	GetUserByEmail(ctx context.Context, email string) (user.User, error)
	UpdateUser(ctx context.Context, u user.User) error
	// DeleteUser removes a user and everything keyed to it: sessions,
	// credentials, challenges, OTP records, and rate-limit state.
	DeleteUser(ctx context.Context, userID string, email string) error
}

// Session is an opaque bearer token bound to a user.
type Session struct {
	Token     string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// SessionStore persists opaque session tokens.
type SessionStore interface {
	PutSession(ctx context.Context, session Session) error
	GetSession(ctx context.Context, token string) (Session, error)
	DeleteSession(ctx context.Context, token string) error
	DeleteSessionsByUser(ctx context.Context, userID string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) error
}

// OtpRecord is a single emailed verification code. At most one live record
// exists per (email, purpose); issuing a new code replaces the old one.
type OtpRecord struct {
	Email      string
	Purpose    string
	Code       string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	Attempts   int
	VerifiedAt *time.Time
}

// OtpStore persists emailed verification codes.
type OtpStore interface {
	PutOtp(ctx context.Context, record OtpRecord) error
	GetOtp(ctx context.Context, email string, purpose string) (OtpRecord, error)
	// IncrementOtpAttempts bumps the attempt counter and returns the new
	// count. The increment is atomic so concurrent guesses cannot share an
	// attempt.
	IncrementOtpAttempts(ctx context.Context, email string, purpose string) (int, error)
	// MarkOtpVerified consumes the code. It fails with ErrNotFound when the
	// record is missing or already verified, which makes consumption
	// single-use under concurrent verification.
	MarkOtpVerified(ctx context.Context, email string, purpose string, verifiedAt time.Time) error
	DeleteOtp(ctx context.Context, email string, purpose string) error
	DeleteExpiredOtp(ctx context.Context, now time.Time) error
}

// PasskeyCredential stores a WebAuthn credential for a user.
type PasskeyCredential struct {
	CredentialID   string
	UserID         string
	PublicKey      []byte
	SignCount      uint32
	CreatedAt      time.Time
	LastUsedAt     *time.Time
	CloneFlaggedAt *time.Time
}

// PasskeyChallenge stores the hash of an outstanding ceremony challenge.
// The challenge itself is never persisted; possession is proven by hash.
type PasskeyChallenge struct {
	ID            string
	UserID        string
	ChallengeHash []byte
	Purpose       string
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

// PasskeyStore persists WebAuthn credentials and ceremony challenges.
type PasskeyStore interface {
	PutPasskeyCredential(ctx context.Context, credential PasskeyCredential) error
	GetPasskeyCredential(ctx context.Context, credentialID string) (PasskeyCredential, error)
	ListPasskeyCredentials(ctx context.Context, userID string) ([]PasskeyCredential, error)
	// UpdatePasskeySignCount advances the stored counter only when the new
	// value is strictly greater, returning ErrNotFound otherwise.
	UpdatePasskeySignCount(ctx context.Context, credentialID string, signCount uint32, usedAt time.Time) error
	FlagPasskeyClone(ctx context.Context, credentialID string, flaggedAt time.Time) error
	DeletePasskeyCredential(ctx context.Context, credentialID string) error

	// PutPasskeyChallenge stores a challenge, replacing any outstanding one
	// for the same user and purpose. Challenges with an empty user id
	// coexist; concurrent anonymous ceremonies must not disturb each other.
	PutPasskeyChallenge(ctx context.Context, challenge PasskeyChallenge) error
	// ConsumePasskeyChallenge atomically deletes and returns the challenge
	// matching the hash and purpose, so a challenge resolves at most once.
	ConsumePasskeyChallenge(ctx context.Context, challengeHash []byte, purpose string) (PasskeyChallenge, error)
	DeleteExpiredPasskeyChallenges(ctx context.Context, now time.Time) error
}

// LoginAttempt tracks consecutive password failures for an email.
type LoginAttempt struct {
	Email       string
	Failures    int
	LockedUntil *time.Time
}

// RateBucket counts login attempts within a fixed one-minute window.
type RateBucket struct {
	Email       string
	BucketStart time.Time
	Attempts    int
}

// Mail outbox statuses.
const (
	MailStatusPending = "pending"
	MailStatusSent    = "sent"
)

// MailMessage is an outbound email queued for an external mailer.
type MailMessage struct {
	ID           string
	Recipient    string
	Subject      string
	Body         string
	Status       string
	AttemptCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
	SentAt       *time.Time
}

// MailOutboxStore queues outbound mail durably so delivery survives restarts.
type MailOutboxStore interface {
	EnqueueMail(ctx context.Context, message MailMessage) error
	ListPendingMail(ctx context.Context, limit int) ([]MailMessage, error)
	MarkMailSent(ctx context.Context, id string, sentAt time.Time) error
}

// LoginLimitStore persists lockout and rate-limit counters.
type LoginLimitStore interface {
	GetLoginAttempt(ctx context.Context, email string) (LoginAttempt, error)
	// RecordLoginFailure bumps the failure counter and returns the new
	// record, applying lockedUntil when the threshold is crossed.
	RecordLoginFailure(ctx context.Context, email string, threshold int, lockedUntil time.Time) (LoginAttempt, error)
	ClearLoginAttempts(ctx context.Context, email string) error

	// IncrementRateBucket counts an attempt in the window containing now,
	// resetting the bucket when the window has rolled over. It returns the
	// attempt count for the current window.
	IncrementRateBucket(ctx context.Context, email string, bucketStart time.Time) (int, error)
}

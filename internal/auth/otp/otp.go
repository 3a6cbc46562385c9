package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/saveriodangelo-cyber/Cooksy/internal/auth/storage"
	apperrors "github.com/saveriodangelo-cyber/Cooksy/internal/errors"
)

const codeDigits = 1000000

// Sender delivers a plaintext code to its recipient. The code never appears
// in logs or API responses; the sender is the only place it leaves process
// memory.
type Sender interface {
	SendCode(ctx context.Context, email string, purpose Purpose, code string) error
}

// Manager issues and verifies emailed one-time codes.
type Manager struct {
	store  storage.OtpStore
	sender Sender
	cfg    Config
	now    func() time.Time
}

// NewManager creates an OTP manager backed by the given store and sender.
func NewManager(store storage.OtpStore, sender Sender, cfg Config) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = 15 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &Manager{store: store, sender: sender, cfg: cfg, now: time.Now}
}

// WithClock overrides the time source for tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Issue generates a fresh six-digit code, replaces any outstanding code for
// the same email and purpose, and hands it to the sender. Replacement clears
// attempt counts and any lock from the previous code.
func (m *Manager) Issue(ctx context.Context, email string, purpose Purpose) error {
	code, err := generateCode()
	if err != nil {
		return fmt.Errorf("generate otp code: %w", err)
	}

	now := m.now().UTC()
	record := storage.OtpRecord{
		Email:     email,
		Purpose:   string(purpose),
		Code:      code,
		CreatedAt: now,
		ExpiresAt: now.Add(m.cfg.TTL),
	}
	if err := m.store.PutOtp(ctx, record); err != nil {
		return fmt.Errorf("store otp: %w", err)
	}

	if m.sender != nil {
		if err := m.sender.SendCode(ctx, email, purpose, code); err != nil {
			return fmt.Errorf("send otp: %w", err)
		}
	}
	return nil
}

// Verify checks a submitted code and consumes it on success.
//
// A missing record reports a plain mismatch so callers cannot probe which
// emails have outstanding codes. Expiry, lock, and consumption are checked
// before the attempt is spent; the guess itself is counted durably before
// comparison so restarting the process cannot reset the budget.
func (m *Manager) Verify(ctx context.Context, email string, purpose Purpose, code string) error {
	record, err := m.store.GetOtp(ctx, email, string(purpose))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.New(apperrors.CodeOtpMismatch, "code does not match")
		}
		return fmt.Errorf("load otp: %w", err)
	}

	now := m.now().UTC()
	if now.After(record.ExpiresAt) {
		return apperrors.New(apperrors.CodeOtpExpired, "code has expired")
	}
	if record.Attempts >= m.cfg.MaxAttempts {
		return apperrors.New(apperrors.CodeOtpLocked, "too many incorrect attempts")
	}
	if record.VerifiedAt != nil {
		return apperrors.New(apperrors.CodeOtpAlreadyConsumed, "code already used")
	}

	attempts, err := m.store.IncrementOtpAttempts(ctx, email, string(purpose))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.New(apperrors.CodeOtpMismatch, "code does not match")
		}
		return fmt.Errorf("count otp attempt: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(code), []byte(record.Code)) != 1 {
		if attempts >= m.cfg.MaxAttempts {
			return apperrors.New(apperrors.CodeOtpLocked, "too many incorrect attempts")
		}
		return apperrors.New(apperrors.CodeOtpMismatch, "code does not match")
	}

	if err := m.store.MarkOtpVerified(ctx, email, string(purpose), now); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Lost a race with a concurrent verification of the same code.
			return apperrors.New(apperrors.CodeOtpAlreadyConsumed, "code already used")
		}
		return fmt.Errorf("consume otp: %w", err)
	}
	return nil
}

// generateCode produces a uniformly random six-digit code, zero padded.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeDigits))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

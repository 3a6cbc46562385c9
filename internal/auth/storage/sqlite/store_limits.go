package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/saveriodangelo-cyber/Cooksy/internal/auth/storage"
)

// GetLoginAttempt returns the failure record for an email. A missing record
// comes back zero-valued: no failures, no lock.
func (s *Store) GetLoginAttempt(ctx context.Context, email string) (storage.LoginAttempt, error) {
	var attempt storage.LoginAttempt
	var lockedUntil *int64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT email, failures, locked_until FROM login_attempts WHERE email = ?`,
		email,
	).Scan(&attempt.Email, &attempt.Failures, &lockedUntil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.LoginAttempt{Email: email}, nil
		}
		return storage.LoginAttempt{}, fmt.Errorf("scan login attempt: %w", err)
	}
	attempt.LockedUntil = fromMillisPtr(lockedUntil)
	return attempt, nil
}

// RecordLoginFailure bumps the failure counter and applies the lock when the
// threshold is crossed. The upsert keeps concurrent failures from losing
// increments.
func (s *Store) RecordLoginFailure(ctx context.Context, email string, threshold int, lockedUntil time.Time) (storage.LoginAttempt, error) {
	var attempt storage.LoginAttempt
	var locked *int64
	err := s.sqlDB.QueryRowContext(ctx,
		`INSERT INTO login_attempts (email, failures, locked_until)
		VALUES (?1, 1, CASE WHEN 1 >= ?2 THEN ?3 ELSE NULL END)
		ON CONFLICT(email) DO UPDATE SET
			failures = failures + 1,
			locked_until = CASE WHEN failures + 1 >= ?2 THEN ?3 ELSE locked_until END
		RETURNING email, failures, locked_until`,
		email, threshold, toMillis(lockedUntil),
	).Scan(&attempt.Email, &attempt.Failures, &locked)
	if err != nil {
		return storage.LoginAttempt{}, fmt.Errorf("record login failure: %w", err)
	}
	attempt.LockedUntil = fromMillisPtr(locked)
	return attempt, nil
}

// ClearLoginAttempts resets failure state after a successful login.
func (s *Store) ClearLoginAttempts(ctx context.Context, email string) error {
	if _, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM login_attempts WHERE email = ?`, email); err != nil {
		return fmt.Errorf("clear login attempts: %w", err)
	}
	return nil
}

// IncrementRateBucket counts an attempt in the window starting at bucketStart.
// When the stored bucket belongs to an older window it is reset to the new one.
func (s *Store) IncrementRateBucket(ctx context.Context, email string, bucketStart time.Time) (int, error) {
	start := toMillis(bucketStart)
	var attempts int
	err := s.sqlDB.QueryRowContext(ctx,
		`INSERT INTO login_rate_buckets (email, bucket_start, attempts)
		VALUES (?1, ?2, 1)
		ON CONFLICT(email) DO UPDATE SET
			attempts = CASE WHEN bucket_start = ?2 THEN attempts + 1 ELSE 1 END,
			bucket_start = ?2
		RETURNING attempts`,
		email, start,
	).Scan(&attempts)
	if err != nil {
		return 0, fmt.Errorf("increment rate bucket: %w", err)
	}
	return attempts, nil
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/saveriodangelo-cyber/Cooksy/internal/auth/storage"
)

// PutOtp stores a verification code, replacing any outstanding record for the
// same email and purpose. Replacement resets attempts and consumption state.
func (s *Store) PutOtp(ctx context.Context, record storage.OtpRecord) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO otp_records (email, purpose, code, created_at, expires_at, attempts, verified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(email, purpose) DO UPDATE SET
			code = excluded.code,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at,
			attempts = excluded.attempts,
			verified_at = excluded.verified_at`,
		record.Email, record.Purpose, record.Code,
		toMillis(record.CreatedAt), toMillis(record.ExpiresAt),
		record.Attempts, toMillisPtr(record.VerifiedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert otp: %w", err)
	}
	return nil
}

// GetOtp returns the outstanding code for an email and purpose.
func (s *Store) GetOtp(ctx context.Context, email string, purpose string) (storage.OtpRecord, error) {
	var record storage.OtpRecord
	var createdAt, expiresAt int64
	var verifiedAt *int64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT email, purpose, code, created_at, expires_at, attempts, verified_at
		FROM otp_records WHERE email = ? AND purpose = ?`,
		email, purpose,
	).Scan(&record.Email, &record.Purpose, &record.Code, &createdAt, &expiresAt, &record.Attempts, &verifiedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.OtpRecord{}, storage.ErrNotFound
		}
		return storage.OtpRecord{}, fmt.Errorf("scan otp: %w", err)
	}
	record.CreatedAt = fromMillis(createdAt)
	record.ExpiresAt = fromMillis(expiresAt)
	record.VerifiedAt = fromMillisPtr(verifiedAt)
	return record, nil
}

// IncrementOtpAttempts bumps the attempt counter in a single statement so
// concurrent guesses each consume a distinct attempt.
func (s *Store) IncrementOtpAttempts(ctx context.Context, email string, purpose string) (int, error) {
	var attempts int
	err := s.sqlDB.QueryRowContext(ctx,
		`UPDATE otp_records SET attempts = attempts + 1
		WHERE email = ? AND purpose = ?
		RETURNING attempts`,
		email, purpose,
	).Scan(&attempts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, storage.ErrNotFound
		}
		return 0, fmt.Errorf("increment otp attempts: %w", err)
	}
	return attempts, nil
}

// MarkOtpVerified consumes a code. The conditional update makes consumption
// single-use: of two concurrent verifiers only one sees an unverified row.
func (s *Store) MarkOtpVerified(ctx context.Context, email string, purpose string, verifiedAt time.Time) error {
	result, err := s.sqlDB.ExecContext(ctx,
		`UPDATE otp_records SET verified_at = ?
		WHERE email = ? AND purpose = ? AND verified_at IS NULL`,
		toMillis(verifiedAt), email, purpose,
	)
	if err != nil {
		return fmt.Errorf("mark otp verified: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark otp verified rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteOtp removes the outstanding code for an email and purpose.
func (s *Store) DeleteOtp(ctx context.Context, email string, purpose string) error {
	if _, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM otp_records WHERE email = ? AND purpose = ?`, email, purpose); err != nil {
		return fmt.Errorf("delete otp: %w", err)
	}
	return nil
}

// DeleteExpiredOtp removes codes whose expiry has passed.
func (s *Store) DeleteExpiredOtp(ctx context.Context, now time.Time) error {
	if _, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM otp_records WHERE expires_at < ?`, toMillis(now)); err != nil {
		return fmt.Errorf("delete expired otp: %w", err)
	}
	return nil
}

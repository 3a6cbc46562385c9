package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/saveriodangelo-cyber/Cooksy/internal/auth/storage"
	"github.com/saveriodangelo-cyber/Cooksy/internal/auth/user"
	apperrors "github.com/saveriodangelo-cyber/Cooksy/internal/errors"
)

// PutUser persists a new user record.
func (s *Store) PutUser(ctx context.Context, u user.User) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO users
		(id, email, password_hash, password_salt, password_iterations,
		 otp_enabled, passkey_enrolled, created_at, updated_at, last_login_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.PasswordSalt, u.PasswordIterations,
		boolToInt(u.OtpEnabled), boolToInt(u.PasskeyEnrolled),
		toMillis(u.CreatedAt), toMillis(u.UpdatedAt), toMillisPtr(u.LastLoginAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.New(apperrors.CodeDuplicateEmail, "email already registered")
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUser returns a user by ID.
func (s *Store) GetUser(ctx context.Context, userID string) (user.User, error) {
	return s.scanUser(s.sqlDB.QueryRowContext(ctx,
		`SELECT id, email, password_hash, password_salt, password_iterations,
		        otp_enabled, passkey_enrolled, created_at, updated_at, last_login_at
		FROM users WHERE id = ?`, userID))
}

// GetUserByEmail returns a user by normalized email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return s.scanUser(s.sqlDB.QueryRowContext(ctx,
		`SELECT id, email, password_hash, password_salt, password_iterations,
		        otp_enabled, passkey_enrolled, created_at, updated_at, last_login_at
		FROM users WHERE email = ?`, email))
}

// UpdateUser overwrites the mutable fields of an existing user.
func (s *Store) UpdateUser(ctx context.Context, u user.User) error {
	result, err := s.sqlDB.ExecContext(ctx,
		`UPDATE users SET
			email = ?,
			password_hash = ?,
			password_salt = ?,
			password_iterations = ?,
			otp_enabled = ?,
			passkey_enrolled = ?,
			updated_at = ?,
			last_login_at = ?
		WHERE id = ?`,
		u.Email, u.PasswordHash, u.PasswordSalt, u.PasswordIterations,
		boolToInt(u.OtpEnabled), boolToInt(u.PasskeyEnrolled),
		toMillis(u.UpdatedAt), toMillisPtr(u.LastLoginAt), u.ID,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteUser removes a user and all state keyed to it in one transaction.
// Sessions and passkey credentials cascade via foreign keys; email-keyed
// tables have no user foreign key and are cleared explicitly.
func (s *Store) DeleteUser(ctx context.Context, userID string, email string) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete user: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []struct {
		query string
		arg   string
	}{
		{`DELETE FROM otp_records WHERE email = ?`, email},
		{`DELETE FROM login_attempts WHERE email = ?`, email},
		{`DELETE FROM login_rate_buckets WHERE email = ?`, email},
		{`DELETE FROM passkey_challenges WHERE user_id = ?`, userID},
	} {
		if _, err := tx.ExecContext(ctx, stmt.query, stmt.arg); err != nil {
			return fmt.Errorf("delete user state: %w", err)
		}
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, userID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete user rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete user: %w", err)
	}
	return nil
}

func (s *Store) scanUser(row *sql.Row) (user.User, error) {
	var u user.User
	var otpEnabled, passkeyEnrolled int
	var createdAt, updatedAt int64
	var lastLoginAt *int64
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.PasswordSalt, &u.PasswordIterations,
		&otpEnabled, &passkeyEnrolled, &createdAt, &updatedAt, &lastLoginAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, storage.ErrNotFound
		}
		return user.User{}, fmt.Errorf("scan user: %w", err)
	}
	u.OtpEnabled = otpEnabled != 0
	u.PasskeyEnrolled = passkeyEnrolled != 0
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	u.LastLoginAt = fromMillisPtr(lastLoginAt)
	return u, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

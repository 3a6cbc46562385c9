package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/saveriodangelo-cyber/Cooksy/internal/auth/storage"
	apperrors "github.com/saveriodangelo-cyber/Cooksy/internal/errors"
)

// PutPasskeyCredential persists a new WebAuthn credential.
func (s *Store) PutPasskeyCredential(ctx context.Context, credential storage.PasskeyCredential) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO passkey_credentials
		(credential_id, user_id, public_key, sign_count, created_at, last_used_at, clone_flagged_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		credential.CredentialID, credential.UserID, credential.PublicKey, credential.SignCount,
		toMillis(credential.CreatedAt), toMillisPtr(credential.LastUsedAt), toMillisPtr(credential.CloneFlaggedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.New(apperrors.CodeDuplicateCredential, "credential id already registered")
		}
		return fmt.Errorf("insert passkey credential: %w", err)
	}
	return nil
}

// GetPasskeyCredential returns a credential by its ID.
func (s *Store) GetPasskeyCredential(ctx context.Context, credentialID string) (storage.PasskeyCredential, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT credential_id, user_id, public_key, sign_count, created_at, last_used_at, clone_flagged_at
		FROM passkey_credentials WHERE credential_id = ?`, credentialID)
	return scanPasskeyCredential(row)
}

// ListPasskeyCredentials returns every credential enrolled for a user.
func (s *Store) ListPasskeyCredentials(ctx context.Context, userID string) ([]storage.PasskeyCredential, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT credential_id, user_id, public_key, sign_count, created_at, last_used_at, clone_flagged_at
		FROM passkey_credentials WHERE user_id = ? ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list passkey credentials: %w", err)
	}
	defer rows.Close()

	var credentials []storage.PasskeyCredential
	for rows.Next() {
		var credential storage.PasskeyCredential
		var createdAt int64
		var lastUsedAt, cloneFlaggedAt *int64
		if err := rows.Scan(&credential.CredentialID, &credential.UserID, &credential.PublicKey,
			&credential.SignCount, &createdAt, &lastUsedAt, &cloneFlaggedAt); err != nil {
			return nil, fmt.Errorf("scan passkey credential: %w", err)
		}
		credential.CreatedAt = fromMillis(createdAt)
		credential.LastUsedAt = fromMillisPtr(lastUsedAt)
		credential.CloneFlaggedAt = fromMillisPtr(cloneFlaggedAt)
		credentials = append(credentials, credential)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate passkey credentials: %w", err)
	}
	return credentials, nil
}

// UpdatePasskeySignCount advances the stored counter. The strict inequality in
// the predicate is the clone-detection invariant: a stale or replayed counter
// updates nothing and surfaces as ErrNotFound.
func (s *Store) UpdatePasskeySignCount(ctx context.Context, credentialID string, signCount uint32, usedAt time.Time) error {
	result, err := s.sqlDB.ExecContext(ctx,
		`UPDATE passkey_credentials SET sign_count = ?, last_used_at = ?
		WHERE credential_id = ? AND sign_count < ?`,
		signCount, toMillis(usedAt), credentialID, signCount,
	)
	if err != nil {
		return fmt.Errorf("update passkey sign count: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update passkey sign count rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// FlagPasskeyClone records a suspected clone on a credential.
func (s *Store) FlagPasskeyClone(ctx context.Context, credentialID string, flaggedAt time.Time) error {
	result, err := s.sqlDB.ExecContext(ctx,
		`UPDATE passkey_credentials SET clone_flagged_at = ? WHERE credential_id = ?`,
		toMillis(flaggedAt), credentialID,
	)
	if err != nil {
		return fmt.Errorf("flag passkey clone: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("flag passkey clone rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeletePasskeyCredential removes a credential.
func (s *Store) DeletePasskeyCredential(ctx context.Context, credentialID string) error {
	if _, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM passkey_credentials WHERE credential_id = ?`, credentialID); err != nil {
		return fmt.Errorf("delete passkey credential: %w", err)
	}
	return nil
}

// PutPasskeyChallenge stores a ceremony challenge hash. A user-bound
// challenge replaces any outstanding one for the same user and purpose.
// Anonymous challenges (empty user id) coexist so concurrent discoverable
// logins stay independent; expiry cleanup reclaims the ones never finished.
func (s *Store) PutPasskeyChallenge(ctx context.Context, challenge storage.PasskeyChallenge) error {
	insert := `INSERT INTO passkey_challenges (id, user_id, challenge_hash, purpose, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	args := []any{
		challenge.ID, challenge.UserID, challenge.ChallengeHash, challenge.Purpose,
		toMillis(challenge.CreatedAt), toMillis(challenge.ExpiresAt),
	}

	if challenge.UserID == "" {
		if _, err := s.sqlDB.ExecContext(ctx, insert, args...); err != nil {
			return fmt.Errorf("insert passkey challenge: %w", err)
		}
		return nil
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin put passkey challenge: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM passkey_challenges WHERE user_id = ? AND purpose = ?`,
		challenge.UserID, challenge.Purpose); err != nil {
		return fmt.Errorf("replace passkey challenge: %w", err)
	}
	if _, err := tx.ExecContext(ctx, insert, args...); err != nil {
		return fmt.Errorf("insert passkey challenge: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit put passkey challenge: %w", err)
	}
	return nil
}

// ConsumePasskeyChallenge deletes and returns the challenge matching a hash
// and purpose in one statement, so each challenge resolves at most once.
func (s *Store) ConsumePasskeyChallenge(ctx context.Context, challengeHash []byte, purpose string) (storage.PasskeyChallenge, error) {
	var challenge storage.PasskeyChallenge
	var createdAt, expiresAt int64
	err := s.sqlDB.QueryRowContext(ctx,
		`DELETE FROM passkey_challenges
		WHERE challenge_hash = ? AND purpose = ?
		RETURNING id, user_id, challenge_hash, purpose, created_at, expires_at`,
		challengeHash, purpose,
	).Scan(&challenge.ID, &challenge.UserID, &challenge.ChallengeHash, &challenge.Purpose, &createdAt, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.PasskeyChallenge{}, storage.ErrNotFound
		}
		return storage.PasskeyChallenge{}, fmt.Errorf("consume passkey challenge: %w", err)
	}
	challenge.CreatedAt = fromMillis(createdAt)
	challenge.ExpiresAt = fromMillis(expiresAt)
	return challenge, nil
}

// DeleteExpiredPasskeyChallenges removes challenges whose TTL has passed.
func (s *Store) DeleteExpiredPasskeyChallenges(ctx context.Context, now time.Time) error {
	if _, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM passkey_challenges WHERE expires_at <= ?`, toMillis(now)); err != nil {
		return fmt.Errorf("delete expired passkey challenges: %w", err)
	}
	return nil
}

func scanPasskeyCredential(row *sql.Row) (storage.PasskeyCredential, error) {
	var credential storage.PasskeyCredential
	var createdAt int64
	var lastUsedAt, cloneFlaggedAt *int64
	err := row.Scan(&credential.CredentialID, &credential.UserID, &credential.PublicKey,
		&credential.SignCount, &createdAt, &lastUsedAt, &cloneFlaggedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.PasskeyCredential{}, storage.ErrNotFound
		}
		return storage.PasskeyCredential{}, fmt.Errorf("scan passkey credential: %w", err)
	}
	credential.CreatedAt = fromMillis(createdAt)
	credential.LastUsedAt = fromMillisPtr(lastUsedAt)
	credential.CloneFlaggedAt = fromMillisPtr(cloneFlaggedAt)
	return credential, nil
}

// isUniqueViolation detects SQLite unique constraint failures.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/saveriodangelo-cyber/Cooksy/internal/auth/otp"
	"github.com/saveriodangelo-cyber/Cooksy/internal/auth/passkey"
	"github.com/saveriodangelo-cyber/Cooksy/internal/auth/password"
	"github.com/saveriodangelo-cyber/Cooksy/internal/auth/storage"
	"github.com/saveriodangelo-cyber/Cooksy/internal/auth/user"
	apperrors "github.com/saveriodangelo-cyber/Cooksy/internal/errors"
)

// sessionTokenBytes sizes the opaque token at 256 bits.
const sessionTokenBytes = 32

// LoginState is the outcome of a first-factor login attempt.
type LoginState string

const (
	// StateAuthenticated means a session was issued.
	StateAuthenticated LoginState = "authenticated"
	// StatePendingOTP means the password matched but an emailed code is
	// still required to finish.
	StatePendingOTP LoginState = "pending_otp"
)

// LoginOutcome reports where a password login landed.
type LoginOutcome struct {
	State   LoginState
	UserID  string
	Session storage.Session
}

// Principal identifies the owner of a validated session.
type Principal struct {
	UserID string
	// Token is the session token to keep using. It differs from the
	// presented token after a rotation.
	Token     string
	ExpiresAt time.Time
}

// Manager drives the login state machine and owns session issuance.
type Manager struct {
	users    storage.UserStore
	sessions storage.SessionStore
	limits   storage.LoginLimitStore
	otp      *otp.Manager
	passkeys *passkey.Manager
	cfg      Config
	now      func() time.Time
}

// NewManager wires the session manager to its stores and factor managers.
func NewManager(users storage.UserStore, sessions storage.SessionStore, limits storage.LoginLimitStore, otpManager *otp.Manager, passkeyManager *passkey.Manager, cfg Config) *Manager {
	return &Manager{
		users:    users,
		sessions: sessions,
		limits:   limits,
		otp:      otpManager,
		passkeys: passkeyManager,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
	}
}

// WithClock overrides the time source for tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Register creates a user with a password credential and issues a
// registration code so the caller can prove mailbox ownership.
func (m *Manager) Register(ctx context.Context, email string, plaintext string) (user.User, error) {
	u, err := user.NewUser(email, m.now, nil)
	if err != nil {
		return user.User{}, err
	}

	cred, err := password.Derive(plaintext)
	if err != nil {
		return user.User{}, err
	}
	u.PasswordHash = cred.Hash
	u.PasswordSalt = cred.Salt
	u.PasswordIterations = cred.Iterations

	if err := m.users.PutUser(ctx, u); err != nil {
		return user.User{}, err
	}

	if m.otp != nil {
		if err := m.otp.Issue(ctx, u.Email, otp.PurposeRegistration); err != nil {
			return user.User{}, fmt.Errorf("issue registration code: %w", err)
		}
	}
	return u, nil
}

// VerifyRegistration consumes the registration code for an email. The
// consumed record is the durable proof of mailbox ownership.
func (m *Manager) VerifyRegistration(ctx context.Context, email string, code string) error {
	if m.otp == nil {
		return apperrors.New(apperrors.CodeOtpMismatch, "code does not match")
	}
	return m.otp.Verify(ctx, user.NormalizeEmail(email), otp.PurposeRegistration, code)
}

// IssueLoginCode sends a fresh login code to an email with an outstanding
// pending-OTP login. Unknown emails are accepted silently so the endpoint
// cannot be used to probe accounts.
func (m *Manager) IssueLoginCode(ctx context.Context, email string) error {
	normalized := user.NormalizeEmail(email)
	if _, err := m.users.GetUserByEmail(ctx, normalized); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load user: %w", err)
	}
	if m.otp == nil {
		return nil
	}
	return m.otp.Issue(ctx, normalized, otp.PurposeLogin)
}

// LoginWithPassword verifies the password factor.
//
// Wrong password and unknown email both fail with the same invalid
// credentials error. Lockout and rate limiting are checked before the
// password so a locked account never leaks whether the guess was right.
func (m *Manager) LoginWithPassword(ctx context.Context, email string, plaintext string) (LoginOutcome, error) {
	normalized := user.NormalizeEmail(email)
	now := m.now().UTC()

	if err := m.checkRateLimit(ctx, normalized, now); err != nil {
		return LoginOutcome{}, err
	}
	if err := m.checkLockout(ctx, normalized, now); err != nil {
		return LoginOutcome{}, err
	}

	u, err := m.users.GetUserByEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return LoginOutcome{}, m.recordFailure(ctx, normalized, now)
		}
		return LoginOutcome{}, fmt.Errorf("load user: %w", err)
	}

	cred := password.Credential{Hash: u.PasswordHash, Salt: u.PasswordSalt, Iterations: u.PasswordIterations}
	if !password.Verify(plaintext, cred) {
		return LoginOutcome{}, m.recordFailure(ctx, normalized, now)
	}

	if err := m.limits.ClearLoginAttempts(ctx, normalized); err != nil {
		return LoginOutcome{}, fmt.Errorf("clear login attempts: %w", err)
	}

	if u.OtpEnabled {
		return LoginOutcome{State: StatePendingOTP, UserID: u.ID}, nil
	}

	session, err := m.completeLogin(ctx, u)
	if err != nil {
		return LoginOutcome{}, err
	}
	return LoginOutcome{State: StateAuthenticated, UserID: u.ID, Session: session}, nil
}

// CompleteOTPLogin finishes a pending-OTP login by consuming the emailed code.
func (m *Manager) CompleteOTPLogin(ctx context.Context, email string, code string) (storage.Session, error) {
	normalized := user.NormalizeEmail(email)
	if m.otp == nil {
		return storage.Session{}, apperrors.New(apperrors.CodeOtpMismatch, "code does not match")
	}
	if err := m.otp.Verify(ctx, normalized, otp.PurposeLogin, code); err != nil {
		return storage.Session{}, err
	}

	u, err := m.users.GetUserByEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Session{}, apperrors.New(apperrors.CodeInvalidCredentials, "invalid credentials")
		}
		return storage.Session{}, fmt.Errorf("load user: %w", err)
	}
	return m.completeLogin(ctx, u)
}

// LoginWithPasskey issues a session from a finished assertion ceremony.
// Possession of the authenticator counts as multi-factor; no OTP step follows
// even for users with OTP enabled.
func (m *Manager) LoginWithPasskey(ctx context.Context, input passkey.AssertionInput) (storage.Session, error) {
	if m.passkeys == nil {
		return storage.Session{}, apperrors.New(apperrors.CodeCredentialNotFound, "passkeys are not configured")
	}
	userID, err := m.passkeys.FinishAssertion(ctx, input)
	if err != nil {
		return storage.Session{}, err
	}

	u, err := m.users.GetUser(ctx, userID)
	if err != nil {
		return storage.Session{}, fmt.Errorf("load user: %w", err)
	}
	return m.completeLogin(ctx, u)
}

// IssueSession mints a session for a user without checking any factor.
// Callers outside a login flow must have already authenticated the user.
func (m *Manager) IssueSession(ctx context.Context, userID string) (storage.Session, error) {
	token, err := generateToken()
	if err != nil {
		return storage.Session{}, fmt.Errorf("generate session token: %w", err)
	}

	now := m.now().UTC()
	session := storage.Session{
		Token:     token,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.cfg.SessionTTL),
	}
	if err := m.sessions.PutSession(ctx, session); err != nil {
		return storage.Session{}, fmt.Errorf("store session: %w", err)
	}
	return session, nil
}

// Validate resolves a token to its principal. Expired sessions are deleted on
// sight. When rotation is enabled and the session is old enough, the token is
// reissued and the returned principal carries the replacement.
func (m *Manager) Validate(ctx context.Context, token string) (Principal, error) {
	session, err := m.sessions.GetSession(ctx, token)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Principal{}, apperrors.New(apperrors.CodeNotFound, "session not found")
		}
		return Principal{}, fmt.Errorf("load session: %w", err)
	}

	now := m.now().UTC()
	if now.After(session.ExpiresAt) {
		if err := m.sessions.DeleteSession(ctx, token); err != nil {
			return Principal{}, fmt.Errorf("delete expired session: %w", err)
		}
		return Principal{}, apperrors.New(apperrors.CodeSessionExpired, "session has expired")
	}

	if m.cfg.RotateAfter > 0 && now.Sub(session.CreatedAt) >= m.cfg.RotateAfter {
		rotated, err := m.IssueSession(ctx, session.UserID)
		if err != nil {
			return Principal{}, fmt.Errorf("rotate session: %w", err)
		}
		if err := m.sessions.DeleteSession(ctx, token); err != nil {
			return Principal{}, fmt.Errorf("retire rotated session: %w", err)
		}
		return Principal{UserID: session.UserID, Token: rotated.Token, ExpiresAt: rotated.ExpiresAt}, nil
	}

	return Principal{UserID: session.UserID, Token: session.Token, ExpiresAt: session.ExpiresAt}, nil
}

// Revoke deletes a session. Revoking an unknown token is a no-op.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	return m.sessions.DeleteSession(ctx, token)
}

// ChangePassword replaces a user's password credential with a fresh salt and
// hash, and revokes every existing session for the user.
func (m *Manager) ChangePassword(ctx context.Context, userID string, plaintext string) error {
	u, err := m.users.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}

	cred, err := password.Derive(plaintext)
	if err != nil {
		return err
	}
	u.PasswordHash = cred.Hash
	u.PasswordSalt = cred.Salt
	u.PasswordIterations = cred.Iterations
	u.UpdatedAt = m.now().UTC()
	if err := m.users.UpdateUser(ctx, u); err != nil {
		return fmt.Errorf("update user: %w", err)
	}

	if err := m.sessions.DeleteSessionsByUser(ctx, userID); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	return nil
}

// SetOtpEnabled toggles the emailed-code requirement for password logins.
func (m *Manager) SetOtpEnabled(ctx context.Context, userID string, enabled bool) error {
	u, err := m.users.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if u.OtpEnabled == enabled {
		return nil
	}
	u.OtpEnabled = enabled
	u.UpdatedAt = m.now().UTC()
	if err := m.users.UpdateUser(ctx, u); err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

// DeleteAccount removes the user and everything keyed to it.
func (m *Manager) DeleteAccount(ctx context.Context, userID string) error {
	u, err := m.users.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	return m.users.DeleteUser(ctx, userID, u.Email)
}

func (m *Manager) completeLogin(ctx context.Context, u user.User) (storage.Session, error) {
	session, err := m.IssueSession(ctx, u.ID)
	if err != nil {
		return storage.Session{}, err
	}

	now := m.now().UTC()
	u.LastLoginAt = &now
	u.UpdatedAt = now
	if err := m.users.UpdateUser(ctx, u); err != nil {
		return storage.Session{}, fmt.Errorf("record last login: %w", err)
	}
	return session, nil
}

func (m *Manager) checkRateLimit(ctx context.Context, email string, now time.Time) error {
	bucketStart := now.Truncate(m.cfg.RateWindow)
	attempts, err := m.limits.IncrementRateBucket(ctx, email, bucketStart)
	if err != nil {
		return fmt.Errorf("count login attempt: %w", err)
	}
	if attempts > m.cfg.RateLimit {
		wait := bucketStart.Add(m.cfg.RateWindow).Sub(now)
		return apperrors.WithMetadata(apperrors.CodeRateLimited, "too many login attempts",
			map[string]string{"Wait": waitSeconds(wait)})
	}
	return nil
}

func (m *Manager) checkLockout(ctx context.Context, email string, now time.Time) error {
	attempt, err := m.limits.GetLoginAttempt(ctx, email)
	if err != nil {
		return fmt.Errorf("load login attempts: %w", err)
	}
	if attempt.LockedUntil != nil && now.Before(*attempt.LockedUntil) {
		wait := attempt.LockedUntil.Sub(now)
		return apperrors.WithMetadata(apperrors.CodeAccountLocked, "account temporarily locked",
			map[string]string{"Wait": waitSeconds(wait)})
	}
	return nil
}

// recordFailure counts a failed login and always reports invalid credentials,
// whether the email was unknown or the password wrong.
func (m *Manager) recordFailure(ctx context.Context, email string, now time.Time) error {
	if _, err := m.limits.RecordLoginFailure(ctx, email, m.cfg.LockoutMax, now.Add(m.cfg.LockoutDuration)); err != nil {
		return fmt.Errorf("record login failure: %w", err)
	}
	return apperrors.New(apperrors.CodeInvalidCredentials, "invalid credentials")
}

func waitSeconds(wait time.Duration) string {
	seconds := int(wait.Round(time.Second).Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}

func generateToken() (string, error) {
	raw := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

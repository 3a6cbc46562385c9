package passkey

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/saveriodangelo-cyber/Cooksy/internal/auth/storage"
	"github.com/saveriodangelo-cyber/Cooksy/internal/auth/user"
	apperrors "github.com/saveriodangelo-cyber/Cooksy/internal/errors"
	"github.com/saveriodangelo-cyber/Cooksy/internal/platform/id"
)

// Manager runs WebAuthn registration and assertion ceremonies.
type Manager struct {
	webAuthn *webauthn.WebAuthn
	store    storage.PasskeyStore
	users    storage.UserStore
	cfg      Config
	now      func() time.Time
	newID    func() (string, error)
}

// NewManager validates relying party settings and creates a passkey manager.
func NewManager(store storage.PasskeyStore, users storage.UserStore, cfg Config) (*Manager, error) {
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = 10 * time.Minute
	}
	webAuthn, err := webauthn.New(&webauthn.Config{
		RPDisplayName: cfg.RPDisplayName,
		RPID:          cfg.RPID,
		RPOrigins:     cfg.RPOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("configure webauthn: %w", err)
	}
	return &Manager{
		webAuthn: webAuthn,
		store:    store,
		users:    users,
		cfg:      cfg,
		now:      time.Now,
		newID:    id.NewID,
	}, nil
}

// WithClock overrides the time source for tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Challenge is a freshly issued ceremony challenge for the client.
type Challenge struct {
	Challenge []byte
	RPID      string
	ExpiresAt time.Time
}

// RegistrationInput carries the client's answer to a registration challenge.
// ClientResponse is the browser ceremony payload, opaque to this package.
type RegistrationInput struct {
	UserID         string
	Challenge      []byte
	CredentialID   string
	PublicKey      []byte
	SignCount      uint32
	ClientResponse []byte
}

// AssertionInput carries the client's answer to an assertion challenge.
// Identifier is the email the client claimed at start; empty for
// discoverable-credential flows.
type AssertionInput struct {
	Identifier     string
	Challenge      []byte
	CredentialID   string
	SignCount      uint32
	ClientResponse []byte
}

// StartRegistration issues a registration challenge for a user. Any previous
// registration challenge for the same user is replaced.
func (m *Manager) StartRegistration(ctx context.Context, userID string) (Challenge, error) {
	if _, err := m.users.GetUser(ctx, userID); err != nil {
		return Challenge{}, fmt.Errorf("load user: %w", err)
	}
	return m.issueChallenge(ctx, userID, PurposeRegistration)
}

// StartAssertion issues an assertion challenge. A known identifier binds the
// challenge to that user; an empty or unknown identifier leaves it unbound so
// discoverable-credential flows work and email probing learns nothing.
func (m *Manager) StartAssertion(ctx context.Context, identifier string) (Challenge, error) {
	userID := ""
	if identifier != "" {
		u, err := m.users.GetUserByEmail(ctx, user.NormalizeEmail(identifier))
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return Challenge{}, fmt.Errorf("load user: %w", err)
		}
		userID = u.ID
	}
	return m.issueChallenge(ctx, userID, PurposeAssertion)
}

// FinishRegistration consumes the registration challenge and enrolls the
// credential. The challenge is consumed whatever the outcome, so a failed
// finish cannot be retried against the same challenge.
func (m *Manager) FinishRegistration(ctx context.Context, input RegistrationInput) error {
	challenge, err := m.consumeChallenge(ctx, input.Challenge, PurposeRegistration)
	if err != nil {
		return err
	}
	if challenge.UserID != input.UserID {
		return apperrors.New(apperrors.CodeChallengeNotFound, "challenge does not belong to this user")
	}
	if input.CredentialID == "" || len(input.PublicKey) == 0 {
		return apperrors.New(apperrors.CodeChallengeNotFound, "credential material is incomplete")
	}

	now := m.now().UTC()
	credential := storage.PasskeyCredential{
		CredentialID: input.CredentialID,
		UserID:       input.UserID,
		PublicKey:    input.PublicKey,
		SignCount:    input.SignCount,
		CreatedAt:    now,
	}
	if err := m.store.PutPasskeyCredential(ctx, credential); err != nil {
		return err
	}

	u, err := m.users.GetUser(ctx, input.UserID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if !u.PasskeyEnrolled {
		u.PasskeyEnrolled = true
		u.UpdatedAt = now
		if err := m.users.UpdateUser(ctx, u); err != nil {
			return fmt.Errorf("mark passkey enrolled: %w", err)
		}
	}
	return nil
}

// FinishAssertion consumes the assertion challenge, checks the credential's
// signature counter, and returns the owning user ID.
//
// A counter that fails to advance strictly is treated as a cloned
// authenticator: the credential is flagged and the assertion rejected. The
// clone verdict is never downgraded to a softer error.
func (m *Manager) FinishAssertion(ctx context.Context, input AssertionInput) (string, error) {
	challenge, err := m.consumeChallenge(ctx, input.Challenge, PurposeAssertion)
	if err != nil {
		return "", err
	}

	credential, err := m.store.GetPasskeyCredential(ctx, input.CredentialID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", apperrors.New(apperrors.CodeCredentialNotFound, "credential is not enrolled")
		}
		return "", fmt.Errorf("load credential: %w", err)
	}
	// A challenge bound to a user at start only accepts that user's
	// credentials; the same goes for an identifier claimed at finish.
	if challenge.UserID != "" && challenge.UserID != credential.UserID {
		return "", apperrors.New(apperrors.CodeCredentialNotFound, "credential is not enrolled")
	}
	if input.Identifier != "" {
		claimed, err := m.users.GetUserByEmail(ctx, user.NormalizeEmail(input.Identifier))
		if err != nil || claimed.ID != credential.UserID {
			if err != nil && !errors.Is(err, storage.ErrNotFound) {
				return "", fmt.Errorf("load user: %w", err)
			}
			return "", apperrors.New(apperrors.CodeCredentialNotFound, "credential is not enrolled")
		}
	}

	now := m.now().UTC()
	if input.SignCount <= credential.SignCount {
		if err := m.store.FlagPasskeyClone(ctx, credential.CredentialID, now); err != nil {
			return "", fmt.Errorf("flag clone: %w", err)
		}
		return "", apperrors.WithMetadata(apperrors.CodePossibleCloneDetected,
			"authenticator signature counter did not advance",
			map[string]string{"credential_id": credential.CredentialID})
	}

	if err := m.store.UpdatePasskeySignCount(ctx, credential.CredentialID, input.SignCount, now); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// A concurrent assertion advanced the counter first.
			if flagErr := m.store.FlagPasskeyClone(ctx, credential.CredentialID, now); flagErr != nil {
				return "", fmt.Errorf("flag clone: %w", flagErr)
			}
			return "", apperrors.WithMetadata(apperrors.CodePossibleCloneDetected,
				"authenticator signature counter did not advance",
				map[string]string{"credential_id": credential.CredentialID})
		}
		return "", fmt.Errorf("advance sign count: %w", err)
	}

	return credential.UserID, nil
}

// Credentials lists the credentials enrolled for a user.
func (m *Manager) Credentials(ctx context.Context, userID string) ([]storage.PasskeyCredential, error) {
	return m.store.ListPasskeyCredentials(ctx, userID)
}

// RemoveCredential deletes an enrolled credential and clears the user's
// enrollment flag when it was the last one.
func (m *Manager) RemoveCredential(ctx context.Context, userID string, credentialID string) error {
	credential, err := m.store.GetPasskeyCredential(ctx, credentialID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.New(apperrors.CodeCredentialNotFound, "credential is not enrolled")
		}
		return fmt.Errorf("load credential: %w", err)
	}
	if credential.UserID != userID {
		return apperrors.New(apperrors.CodeCredentialNotFound, "credential is not enrolled")
	}

	if err := m.store.DeletePasskeyCredential(ctx, credentialID); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}

	remaining, err := m.store.ListPasskeyCredentials(ctx, userID)
	if err != nil {
		return fmt.Errorf("list credentials: %w", err)
	}
	if len(remaining) == 0 {
		u, err := m.users.GetUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("load user: %w", err)
		}
		u.PasskeyEnrolled = false
		u.UpdatedAt = m.now().UTC()
		if err := m.users.UpdateUser(ctx, u); err != nil {
			return fmt.Errorf("clear passkey enrollment: %w", err)
		}
	}
	return nil
}

func (m *Manager) issueChallenge(ctx context.Context, userID string, purpose Purpose) (Challenge, error) {
	raw, err := protocol.CreateChallenge()
	if err != nil {
		return Challenge{}, fmt.Errorf("create challenge: %w", err)
	}

	challengeID, err := m.newID()
	if err != nil {
		return Challenge{}, fmt.Errorf("generate challenge id: %w", err)
	}

	now := m.now().UTC()
	record := storage.PasskeyChallenge{
		ID:            challengeID,
		UserID:        userID,
		ChallengeHash: hashChallenge(raw),
		Purpose:       string(purpose),
		CreatedAt:     now,
		ExpiresAt:     now.Add(m.cfg.ChallengeTTL),
	}
	if err := m.store.PutPasskeyChallenge(ctx, record); err != nil {
		return Challenge{}, fmt.Errorf("store challenge: %w", err)
	}

	return Challenge{Challenge: raw, RPID: m.cfg.RPID, ExpiresAt: record.ExpiresAt}, nil
}

// consumeChallenge resolves a challenge by hash. Consumption happens before
// the expiry check so an expired challenge is still spent by the attempt.
func (m *Manager) consumeChallenge(ctx context.Context, raw []byte, purpose Purpose) (storage.PasskeyChallenge, error) {
	challenge, err := m.store.ConsumePasskeyChallenge(ctx, hashChallenge(raw), string(purpose))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.PasskeyChallenge{}, apperrors.New(apperrors.CodeChallengeNotFound, "challenge is unknown or already used")
		}
		return storage.PasskeyChallenge{}, fmt.Errorf("consume challenge: %w", err)
	}
	if m.now().UTC().After(challenge.ExpiresAt) {
		return storage.PasskeyChallenge{}, apperrors.New(apperrors.CodeChallengeExpired, "challenge has expired")
	}
	return challenge, nil
}

func hashChallenge(raw []byte) []byte {
	sum := sha256.Sum256(raw)
	return sum[:]
}

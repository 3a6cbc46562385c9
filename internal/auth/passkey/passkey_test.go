package passkey

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/saveriodangelo-cyber/Cooksy/internal/auth/storage"
	"github.com/saveriodangelo-cyber/Cooksy/internal/auth/user"
	apperrors "github.com/saveriodangelo-cyber/Cooksy/internal/errors"
)

type fakePasskeyStore struct {
	credentials map[string]*storage.PasskeyCredential
	challenges  []storage.PasskeyChallenge
}

func newFakePasskeyStore() *fakePasskeyStore {
	return &fakePasskeyStore{credentials: make(map[string]*storage.PasskeyCredential)}
}

func (f *fakePasskeyStore) PutPasskeyCredential(_ context.Context, credential storage.PasskeyCredential) error {
	if _, ok := f.credentials[credential.CredentialID]; ok {
		return apperrors.New(apperrors.CodeDuplicateCredential, "credential id already registered")
	}
	f.credentials[credential.CredentialID] = &credential
	return nil
}

func (f *fakePasskeyStore) GetPasskeyCredential(_ context.Context, credentialID string) (storage.PasskeyCredential, error) {
	credential, ok := f.credentials[credentialID]
	if !ok {
		return storage.PasskeyCredential{}, storage.ErrNotFound
	}
	return *credential, nil
}

func (f *fakePasskeyStore) ListPasskeyCredentials(_ context.Context, userID string) ([]storage.PasskeyCredential, error) {
	var out []storage.PasskeyCredential
	for _, credential := range f.credentials {
		if credential.UserID == userID {
			out = append(out, *credential)
		}
	}
	return out, nil
}

func (f *fakePasskeyStore) UpdatePasskeySignCount(_ context.Context, credentialID string, signCount uint32, usedAt time.Time) error {
	credential, ok := f.credentials[credentialID]
	if !ok || credential.SignCount >= signCount {
		return storage.ErrNotFound
	}
	credential.SignCount = signCount
	credential.LastUsedAt = &usedAt
	return nil
}

func (f *fakePasskeyStore) FlagPasskeyClone(_ context.Context, credentialID string, flaggedAt time.Time) error {
	credential, ok := f.credentials[credentialID]
	if !ok {
		return storage.ErrNotFound
	}
	credential.CloneFlaggedAt = &flaggedAt
	return nil
}

func (f *fakePasskeyStore) DeletePasskeyCredential(_ context.Context, credentialID string) error {
	delete(f.credentials, credentialID)
	return nil
}

func (f *fakePasskeyStore) PutPasskeyChallenge(_ context.Context, challenge storage.PasskeyChallenge) error {
	kept := f.challenges[:0]
	for _, existing := range f.challenges {
		if challenge.UserID != "" && existing.UserID == challenge.UserID && existing.Purpose == challenge.Purpose {
			continue
		}
		kept = append(kept, existing)
	}
	f.challenges = append(kept, challenge)
	return nil
}

func (f *fakePasskeyStore) ConsumePasskeyChallenge(_ context.Context, challengeHash []byte, purpose string) (storage.PasskeyChallenge, error) {
	for i, challenge := range f.challenges {
		if bytes.Equal(challenge.ChallengeHash, challengeHash) && challenge.Purpose == purpose {
			f.challenges = append(f.challenges[:i], f.challenges[i+1:]...)
			return challenge, nil
		}
	}
	return storage.PasskeyChallenge{}, storage.ErrNotFound
}

func (f *fakePasskeyStore) DeleteExpiredPasskeyChallenges(_ context.Context, now time.Time) error {
	kept := f.challenges[:0]
	for _, challenge := range f.challenges {
		if challenge.ExpiresAt.After(now) {
			kept = append(kept, challenge)
		}
	}
	f.challenges = kept
	return nil
}

type fakeUserStore struct {
	users map[string]*user.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]*user.User)}
}

func (f *fakeUserStore) PutUser(_ context.Context, u user.User) error {
	f.users[u.ID] = &u
	return nil
}

func (f *fakeUserStore) GetUser(_ context.Context, userID string) (user.User, error) {
	u, ok := f.users[userID]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	return *u, nil
}

func (f *fakeUserStore) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return *u, nil
		}
	}
	return user.User{}, storage.ErrNotFound
}

func (f *fakeUserStore) UpdateUser(_ context.Context, u user.User) error {
	if _, ok := f.users[u.ID]; !ok {
		return storage.ErrNotFound
	}
	f.users[u.ID] = &u
	return nil
}

func (f *fakeUserStore) DeleteUser(_ context.Context, userID string, _ string) error {
	delete(f.users, userID)
	return nil
}

func newTestManager(t *testing.T, store *fakePasskeyStore, users *fakeUserStore, now time.Time) *Manager {
	t.Helper()
	cfg := Config{
		RPDisplayName: "Cooksy",
		RPID:          "localhost",
		RPOrigins:     []string{"http://localhost:8087"},
		ChallengeTTL:  10 * time.Minute,
	}
	m, err := NewManager(store, users, cfg)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m.WithClock(func() time.Time { return now })
}

func seedUser(t *testing.T, users *fakeUserStore, id, email string) {
	t.Helper()
	created := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	err := users.PutUser(context.Background(), user.User{ID: id, Email: email, CreatedAt: created, UpdatedAt: created})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func TestRegistrationCeremony(t *testing.T) {
	store := newFakePasskeyStore()
	users := newFakeUserStore()
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	m := newTestManager(t, store, users, now)
	ctx := context.Background()
	seedUser(t, users, "user-1", "casey@example.com")

	challenge, err := m.StartRegistration(ctx, "user-1")
	if err != nil {
		t.Fatalf("start registration: %v", err)
	}
	if len(challenge.Challenge) < 16 {
		t.Fatalf("challenge too short: %d bytes", len(challenge.Challenge))
	}

	input := RegistrationInput{
		UserID:       "user-1",
		Challenge:    challenge.Challenge,
		CredentialID: "cred-1",
		PublicKey:    []byte{1, 2, 3},
		SignCount:    0,
	}
	if err := m.FinishRegistration(ctx, input); err != nil {
		t.Fatalf("finish registration: %v", err)
	}

	u, err := users.GetUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if !u.PasskeyEnrolled {
		t.Fatal("user must be marked passkey enrolled")
	}

	// The challenge was consumed by the first finish.
	err = m.FinishRegistration(ctx, input)
	if !apperrors.IsCode(err, apperrors.CodeChallengeNotFound) {
		t.Fatalf("replayed finish error = %v, want %v", err, apperrors.CodeChallengeNotFound)
	}
}

func TestFinishRegistrationExpiredChallenge(t *testing.T) {
	store := newFakePasskeyStore()
	users := newFakeUserStore()
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	m := newTestManager(t, store, users, now)
	ctx := context.Background()
	seedUser(t, users, "user-1", "casey@example.com")

	challenge, err := m.StartRegistration(ctx, "user-1")
	if err != nil {
		t.Fatalf("start registration: %v", err)
	}

	m.WithClock(func() time.Time { return now.Add(11 * time.Minute) })
	input := RegistrationInput{UserID: "user-1", Challenge: challenge.Challenge, CredentialID: "cred-1", PublicKey: []byte{1}}
	err = m.FinishRegistration(ctx, input)
	if !apperrors.IsCode(err, apperrors.CodeChallengeExpired) {
		t.Fatalf("expired finish error = %v, want %v", err, apperrors.CodeChallengeExpired)
	}

	// The expired attempt still consumed the challenge.
	m.WithClock(func() time.Time { return now })
	err = m.FinishRegistration(ctx, input)
	if !apperrors.IsCode(err, apperrors.CodeChallengeNotFound) {
		t.Fatalf("second finish error = %v, want %v", err, apperrors.CodeChallengeNotFound)
	}
}

func TestFinishRegistrationWrongUser(t *testing.T) {
	store := newFakePasskeyStore()
	users := newFakeUserStore()
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	m := newTestManager(t, store, users, now)
	ctx := context.Background()
	seedUser(t, users, "user-1", "casey@example.com")
	seedUser(t, users, "user-2", "riley@example.com")

	challenge, err := m.StartRegistration(ctx, "user-1")
	if err != nil {
		t.Fatalf("start registration: %v", err)
	}

	input := RegistrationInput{UserID: "user-2", Challenge: challenge.Challenge, CredentialID: "cred-1", PublicKey: []byte{1}}
	err = m.FinishRegistration(ctx, input)
	if !apperrors.IsCode(err, apperrors.CodeChallengeNotFound) {
		t.Fatalf("wrong user finish error = %v, want %v", err, apperrors.CodeChallengeNotFound)
	}
}

func TestStartRegistrationReplacesChallenge(t *testing.T) {
	store := newFakePasskeyStore()
	users := newFakeUserStore()
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	m := newTestManager(t, store, users, now)
	ctx := context.Background()
	seedUser(t, users, "user-1", "casey@example.com")

	first, err := m.StartRegistration(ctx, "user-1")
	if err != nil {
		t.Fatalf("start registration: %v", err)
	}
	if _, err := m.StartRegistration(ctx, "user-1"); err != nil {
		t.Fatalf("restart registration: %v", err)
	}

	input := RegistrationInput{UserID: "user-1", Challenge: first.Challenge, CredentialID: "cred-1", PublicKey: []byte{1}}
	err = m.FinishRegistration(ctx, input)
	if !apperrors.IsCode(err, apperrors.CodeChallengeNotFound) {
		t.Fatalf("stale challenge error = %v, want %v", err, apperrors.CodeChallengeNotFound)
	}
}

func TestAssertionCeremony(t *testing.T) {
	store := newFakePasskeyStore()
	users := newFakeUserStore()
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	m := newTestManager(t, store, users, now)
	ctx := context.Background()
	seedUser(t, users, "user-1", "casey@example.com")
	enrollCredential(t, m, users, "user-1", "cred-1", 5)

	challenge, err := m.StartAssertion(ctx, "")
	if err != nil {
		t.Fatalf("start assertion: %v", err)
	}

	userID, err := m.FinishAssertion(ctx, AssertionInput{Challenge: challenge.Challenge, CredentialID: "cred-1", SignCount: 6})
	if err != nil {
		t.Fatalf("finish assertion: %v", err)
	}
	if userID != "user-1" {
		t.Fatalf("user id = %q, want %q", userID, "user-1")
	}
}

func TestAssertionCloneDetection(t *testing.T) {
	store := newFakePasskeyStore()
	users := newFakeUserStore()
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	m := newTestManager(t, store, users, now)
	ctx := context.Background()
	seedUser(t, users, "user-1", "casey@example.com")
	enrollCredential(t, m, users, "user-1", "cred-1", 5)

	challenge, err := m.StartAssertion(ctx, "")
	if err != nil {
		t.Fatalf("start assertion: %v", err)
	}

	// A counter that does not advance strictly is a clone signal.
	_, err = m.FinishAssertion(ctx, AssertionInput{Challenge: challenge.Challenge, CredentialID: "cred-1", SignCount: 5})
	if !apperrors.IsCode(err, apperrors.CodePossibleCloneDetected) {
		t.Fatalf("stale counter error = %v, want %v", err, apperrors.CodePossibleCloneDetected)
	}

	credential, err := store.GetPasskeyCredential(ctx, "cred-1")
	if err != nil {
		t.Fatalf("get credential: %v", err)
	}
	if credential.CloneFlaggedAt == nil {
		t.Fatal("credential must be flagged after clone signal")
	}
}

func TestAssertionUnknownCredential(t *testing.T) {
	store := newFakePasskeyStore()
	users := newFakeUserStore()
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	m := newTestManager(t, store, users, now)
	ctx := context.Background()

	challenge, err := m.StartAssertion(ctx, "")
	if err != nil {
		t.Fatalf("start assertion: %v", err)
	}

	_, err = m.FinishAssertion(ctx, AssertionInput{Challenge: challenge.Challenge, CredentialID: "ghost", SignCount: 1})
	if !apperrors.IsCode(err, apperrors.CodeCredentialNotFound) {
		t.Fatalf("unknown credential error = %v, want %v", err, apperrors.CodeCredentialNotFound)
	}
}

func TestAssertionBoundToIdentifier(t *testing.T) {
	store := newFakePasskeyStore()
	users := newFakeUserStore()
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	m := newTestManager(t, store, users, now)
	ctx := context.Background()
	seedUser(t, users, "user-1", "casey@example.com")
	seedUser(t, users, "user-2", "river@example.com")
	enrollCredential(t, m, users, "user-1", "cred-1", 5)
	enrollCredential(t, m, users, "user-2", "cred-2", 5)

	challenge, err := m.StartAssertion(ctx, "casey@example.com")
	if err != nil {
		t.Fatalf("start assertion: %v", err)
	}

	// Another user's credential cannot answer a bound challenge.
	_, err = m.FinishAssertion(ctx, AssertionInput{Challenge: challenge.Challenge, CredentialID: "cred-2", SignCount: 6})
	if !apperrors.IsCode(err, apperrors.CodeCredentialNotFound) {
		t.Fatalf("foreign credential error = %v, want %v", err, apperrors.CodeCredentialNotFound)
	}

	challenge, err = m.StartAssertion(ctx, "casey@example.com")
	if err != nil {
		t.Fatalf("restart assertion: %v", err)
	}
	userID, err := m.FinishAssertion(ctx, AssertionInput{Identifier: "casey@example.com", Challenge: challenge.Challenge, CredentialID: "cred-1", SignCount: 6})
	if err != nil {
		t.Fatalf("finish assertion: %v", err)
	}
	if userID != "user-1" {
		t.Fatalf("user id = %q, want %q", userID, "user-1")
	}
}

func TestConcurrentAnonymousAssertionsIndependent(t *testing.T) {
	store := newFakePasskeyStore()
	users := newFakeUserStore()
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	m := newTestManager(t, store, users, now)
	ctx := context.Background()
	seedUser(t, users, "user-1", "casey@example.com")
	seedUser(t, users, "user-2", "river@example.com")
	enrollCredential(t, m, users, "user-1", "cred-1", 5)
	enrollCredential(t, m, users, "user-2", "cred-2", 5)

	// Two discoverable logins in flight at once; the second start must not
	// invalidate the first user's outstanding challenge.
	firstChallenge, err := m.StartAssertion(ctx, "")
	if err != nil {
		t.Fatalf("start first assertion: %v", err)
	}
	secondChallenge, err := m.StartAssertion(ctx, "")
	if err != nil {
		t.Fatalf("start second assertion: %v", err)
	}

	userID, err := m.FinishAssertion(ctx, AssertionInput{Challenge: firstChallenge.Challenge, CredentialID: "cred-1", SignCount: 6})
	if err != nil {
		t.Fatalf("finish first assertion: %v", err)
	}
	if userID != "user-1" {
		t.Fatalf("user id = %q, want %q", userID, "user-1")
	}

	userID, err = m.FinishAssertion(ctx, AssertionInput{Challenge: secondChallenge.Challenge, CredentialID: "cred-2", SignCount: 6})
	if err != nil {
		t.Fatalf("finish second assertion: %v", err)
	}
	if userID != "user-2" {
		t.Fatalf("user id = %q, want %q", userID, "user-2")
	}
}

func TestFinishAssertionRejectsMismatchedIdentifier(t *testing.T) {
	store := newFakePasskeyStore()
	users := newFakeUserStore()
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	m := newTestManager(t, store, users, now)
	ctx := context.Background()
	seedUser(t, users, "user-1", "casey@example.com")
	seedUser(t, users, "user-2", "river@example.com")
	enrollCredential(t, m, users, "user-1", "cred-1", 5)

	challenge, err := m.StartAssertion(ctx, "")
	if err != nil {
		t.Fatalf("start assertion: %v", err)
	}

	_, err = m.FinishAssertion(ctx, AssertionInput{Identifier: "river@example.com", Challenge: challenge.Challenge, CredentialID: "cred-1", SignCount: 6})
	if !apperrors.IsCode(err, apperrors.CodeCredentialNotFound) {
		t.Fatalf("claimed identifier mismatch error = %v, want %v", err, apperrors.CodeCredentialNotFound)
	}
}

func TestRemoveCredentialClearsEnrollment(t *testing.T) {
	store := newFakePasskeyStore()
	users := newFakeUserStore()
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	m := newTestManager(t, store, users, now)
	ctx := context.Background()
	seedUser(t, users, "user-1", "casey@example.com")
	enrollCredential(t, m, users, "user-1", "cred-1", 0)

	if err := m.RemoveCredential(ctx, "user-1", "cred-1"); err != nil {
		t.Fatalf("remove credential: %v", err)
	}

	u, err := users.GetUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if u.PasskeyEnrolled {
		t.Fatal("enrollment flag must clear with the last credential")
	}
}

func TestRemoveCredentialWrongOwner(t *testing.T) {
	store := newFakePasskeyStore()
	users := newFakeUserStore()
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	m := newTestManager(t, store, users, now)
	ctx := context.Background()
	seedUser(t, users, "user-1", "casey@example.com")
	enrollCredential(t, m, users, "user-1", "cred-1", 0)

	err := m.RemoveCredential(ctx, "user-2", "cred-1")
	if !apperrors.IsCode(err, apperrors.CodeCredentialNotFound) {
		t.Fatalf("wrong owner error = %v, want %v", err, apperrors.CodeCredentialNotFound)
	}
}

func enrollCredential(t *testing.T, m *Manager, users *fakeUserStore, userID, credentialID string, signCount uint32) {
	t.Helper()
	ctx := context.Background()
	challenge, err := m.StartRegistration(ctx, userID)
	if err != nil {
		t.Fatalf("start registration: %v", err)
	}
	input := RegistrationInput{
		UserID:       userID,
		Challenge:    challenge.Challenge,
		CredentialID: credentialID,
		PublicKey:    []byte{1, 2, 3},
		SignCount:    signCount,
	}
	if err := m.FinishRegistration(ctx, input); err != nil {
		t.Fatalf("finish registration: %v", err)
	}
}

// Package delivery turns one-time codes into queued outbound mail.
//
// Codes leave process memory only through the durable outbox; they are never
// logged or echoed in API responses.
package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/saveriodangelo-cyber/Cooksy/internal/auth/otp"
	"github.com/saveriodangelo-cyber/Cooksy/internal/auth/storage"
	"github.com/saveriodangelo-cyber/Cooksy/internal/platform/id"
)

// OutboxSender satisfies otp.Sender by enqueueing messages for an external
// mailer to drain.
type OutboxSender struct {
	outbox storage.MailOutboxStore
	now    func() time.Time
	newID  func() (string, error)
}

// NewOutboxSender creates a sender backed by the mail outbox.
func NewOutboxSender(outbox storage.MailOutboxStore) *OutboxSender {
	return &OutboxSender{outbox: outbox, now: time.Now, newID: id.NewID}
}

// WithClock overrides the time source for tests.
func (s *OutboxSender) WithClock(now func() time.Time) *OutboxSender {
	s.now = now
	return s
}

// SendCode queues the verification email for a code.
func (s *OutboxSender) SendCode(ctx context.Context, email string, purpose otp.Purpose, code string) error {
	messageID, err := s.newID()
	if err != nil {
		return fmt.Errorf("generate mail id: %w", err)
	}

	now := s.now().UTC()
	message := storage.MailMessage{
		ID:        messageID,
		Recipient: email,
		Subject:   subjectFor(purpose),
		Body:      bodyFor(purpose, code),
		Status:    storage.MailStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.outbox.EnqueueMail(ctx, message); err != nil {
		return fmt.Errorf("queue verification mail: %w", err)
	}
	return nil
}

func subjectFor(purpose otp.Purpose) string {
	switch purpose {
	case otp.PurposeRegistration:
		return "Confirm your Cooksy account"
	case otp.PurposeLogin:
		return "Your Cooksy sign-in code"
	default:
		return "Your Cooksy verification code"
	}
}

func bodyFor(purpose otp.Purpose, code string) string {
	switch purpose {
	case otp.PurposeRegistration:
		return fmt.Sprintf("Welcome to Cooksy!\n\nYour confirmation code is %s. It expires in 15 minutes.\n", code)
	default:
		return fmt.Sprintf("Your sign-in code is %s. It expires in 15 minutes.\n\nIf you did not request this code, you can ignore this email.\n", code)
	}
}

package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/saveriodangelo-cyber/Cooksy/internal/auth/storage"
)

// EnqueueMail queues an outbound message for the external mailer.
func (s *Store) EnqueueMail(ctx context.Context, message storage.MailMessage) error {
	status := message.Status
	if status == "" {
		status = storage.MailStatusPending
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO mail_outbox
		(id, recipient, subject, body, status, attempt_count, created_at, updated_at, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		message.ID, message.Recipient, message.Subject, message.Body, status,
		message.AttemptCount, toMillis(message.CreatedAt), toMillis(message.UpdatedAt), toMillisPtr(message.SentAt),
	)
	if err != nil {
		return fmt.Errorf("enqueue mail: %w", err)
	}
	return nil
}

// ListPendingMail returns queued messages oldest first.
func (s *Store) ListPendingMail(ctx context.Context, limit int) ([]storage.MailMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, recipient, subject, body, status, attempt_count, created_at, updated_at, sent_at
		FROM mail_outbox WHERE status = ? ORDER BY created_at LIMIT ?`,
		storage.MailStatusPending, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending mail: %w", err)
	}
	defer rows.Close()

	var messages []storage.MailMessage
	for rows.Next() {
		var message storage.MailMessage
		var createdAt, updatedAt int64
		var sentAt *int64
		if err := rows.Scan(&message.ID, &message.Recipient, &message.Subject, &message.Body,
			&message.Status, &message.AttemptCount, &createdAt, &updatedAt, &sentAt); err != nil {
			return nil, fmt.Errorf("scan mail message: %w", err)
		}
		message.CreatedAt = fromMillis(createdAt)
		message.UpdatedAt = fromMillis(updatedAt)
		message.SentAt = fromMillisPtr(sentAt)
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mail messages: %w", err)
	}
	return messages, nil
}

// MarkMailSent records a successful delivery.
func (s *Store) MarkMailSent(ctx context.Context, id string, sentAt time.Time) error {
	result, err := s.sqlDB.ExecContext(ctx,
		`UPDATE mail_outbox SET status = ?, sent_at = ?, updated_at = ?, attempt_count = attempt_count + 1
		WHERE id = ? AND status = ?`,
		storage.MailStatusSent, toMillis(sentAt), toMillis(sentAt), id, storage.MailStatusPending,
	)
	if err != nil {
		return fmt.Errorf("mark mail sent: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark mail sent rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

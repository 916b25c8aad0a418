package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/arbitrageos/campaignd/internal/models"
)

type InboundEmailStore struct {
	db *sql.DB
}

func NewInboundEmailStore(db *sql.DB) *InboundEmailStore {
	return &InboundEmailStore{db: db}
}

const inboundEmailColumns = `id, public_id, mailbox_id, sender, subject, text_body, message_id,
	 received_at, sentiment, requires_action, processed, archived, replied_at, created_at`

func (s *InboundEmailStore) CreateInboundEmail(ctx context.Context, params models.InboundEmailCreateParams) (*models.InboundEmail, error) {
	email := &models.InboundEmail{
		PublicID:   uuid.New(),
		MailboxID:  params.MailboxID,
		Sender:     params.Sender,
		Subject:    params.Subject,
		TextBody:   params.TextBody,
		MessageID:  params.MessageID,
		ReceivedAt: params.ReceivedAt,
		Sentiment:  models.SentimentNeutral,
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO inbound_emails (public_id, mailbox_id, sender, subject, text_body, message_id, received_at, sentiment)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, requires_action, processed, archived, created_at`,
		email.PublicID, email.MailboxID, email.Sender, email.Subject, email.TextBody,
		email.MessageID, email.ReceivedAt, email.Sentiment,
	).Scan(&email.ID, &email.RequiresAction, &email.Processed, &email.Archived, &email.CreatedAt)
	if err != nil {
		return nil, err
	}
	return email, nil
}

func (s *InboundEmailStore) GetInboundEmailByID(ctx context.Context, id int64) (*models.InboundEmail, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+inboundEmailColumns+` FROM inbound_emails WHERE id = $1`, id)
	return scanInboundEmail(row)
}

func (s *InboundEmailStore) ListInboundEmailsByMailboxID(ctx context.Context, mailboxID int64, limit, offset int) ([]models.InboundEmail, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+inboundEmailColumns+` FROM inbound_emails
		 WHERE mailbox_id = $1 AND archived = FALSE
		 ORDER BY received_at DESC LIMIT $2 OFFSET $3`,
		mailboxID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	emails := make([]models.InboundEmail, 0, limit)
	for rows.Next() {
		email, err := scanInboundEmail(rows)
		if err != nil {
			return nil, err
		}
		emails = append(emails, *email)
	}
	return emails, rows.Err()
}

func (s *InboundEmailStore) ListUnprocessedInboundEmailsByMailboxID(ctx context.Context, mailboxID int64) ([]models.InboundEmail, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+inboundEmailColumns+` FROM inbound_emails
		 WHERE mailbox_id = $1 AND processed = FALSE AND archived = FALSE
		 ORDER BY received_at ASC`, mailboxID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectInboundEmails(rows)
}

func (s *InboundEmailStore) ListActionableInboundEmailsByMailboxID(ctx context.Context, mailboxID int64) ([]models.InboundEmail, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+inboundEmailColumns+` FROM inbound_emails
		 WHERE mailbox_id = $1 AND processed = TRUE AND requires_action = TRUE AND archived = FALSE
		 ORDER BY received_at ASC`, mailboxID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectInboundEmails(rows)
}

func (s *InboundEmailStore) SetInboundEmailClassification(ctx context.Context, id int64, sentiment string, requiresAction bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE inbound_emails SET sentiment = $2, requires_action = $3, processed = TRUE WHERE id = $1`,
		id, sentiment, requiresAction)
	return err
}

// ClearInboundEmailRequiresAction flips requires_action off after a reply has
// been issued. The flag going false is what keeps a later tick from replying
// to the same message again.
func (s *InboundEmailStore) ClearInboundEmailRequiresAction(ctx context.Context, id int64, repliedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE inbound_emails SET requires_action = FALSE, replied_at = $2 WHERE id = $1`,
		id, repliedAt)
	return err
}

func (s *InboundEmailStore) ArchiveProcessedInboundEmailsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE inbound_emails SET archived = TRUE
		 WHERE processed = TRUE AND requires_action = FALSE AND archived = FALSE AND received_at < $1`,
		cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func collectInboundEmails(rows *sql.Rows) ([]models.InboundEmail, error) {
	var emails []models.InboundEmail
	for rows.Next() {
		email, err := scanInboundEmail(rows)
		if err != nil {
			return nil, err
		}
		emails = append(emails, *email)
	}
	return emails, rows.Err()
}

func scanInboundEmail(scanner rowScanner) (*models.InboundEmail, error) {
	var email models.InboundEmail
	if err := scanner.Scan(
		&email.ID, &email.PublicID, &email.MailboxID, &email.Sender, &email.Subject,
		&email.TextBody, &email.MessageID, &email.ReceivedAt, &email.Sentiment,
		&email.RequiresAction, &email.Processed, &email.Archived, &email.RepliedAt, &email.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &email, nil
}

package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/arbitrageos/campaignd/internal/models"
)

type MailboxStore struct {
	db *sql.DB
}

func NewMailboxStore(db *sql.DB) *MailboxStore {
	return &MailboxStore{db: db}
}

const mailboxColumns = `id, public_id, user_id, address, provider, enabled, last_sync_at,
	 smtp_host, smtp_port, smtp_username, smtp_password, api_base_url, api_token, created_at, updated_at`

func (s *MailboxStore) CreateMailbox(ctx context.Context, params models.MailboxCreateParams) (*models.Mailbox, error) {
	m := &models.Mailbox{
		PublicID:     uuid.New(),
		UserID:       params.UserID,
		Address:      strings.ToLower(strings.TrimSpace(params.Address)),
		Provider:     params.Provider,
		Enabled:      true,
		SMTPHost:     params.SMTPHost,
		SMTPPort:     params.SMTPPort,
		SMTPUsername: params.SMTPUsername,
		SMTPPassword: params.SMTPPassword,
		APIBaseURL:   params.APIBaseURL,
		APIToken:     params.APIToken,
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO mailboxes
		 (public_id, user_id, address, provider, enabled, smtp_host, smtp_port, smtp_username, smtp_password, api_base_url, api_token)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id, created_at, updated_at`,
		m.PublicID, m.UserID, m.Address, m.Provider, m.Enabled,
		m.SMTPHost, m.SMTPPort, m.SMTPUsername, m.SMTPPassword, m.APIBaseURL, m.APIToken,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *MailboxStore) GetMailboxByID(ctx context.Context, id int64) (*models.Mailbox, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+mailboxColumns+` FROM mailboxes WHERE id = $1`, id)
	return scanMailbox(row)
}

func (s *MailboxStore) GetMailboxByPublicID(ctx context.Context, publicID uuid.UUID) (*models.Mailbox, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+mailboxColumns+` FROM mailboxes WHERE public_id = $1`, publicID)
	return scanMailbox(row)
}

func (s *MailboxStore) ListMailboxesByUserID(ctx context.Context, userID int64) ([]models.Mailbox, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+mailboxColumns+` FROM mailboxes WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMailboxes(rows)
}

func (s *MailboxStore) ListEnabledMailboxes(ctx context.Context) ([]models.Mailbox, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+mailboxColumns+` FROM mailboxes WHERE enabled = TRUE ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMailboxes(rows)
}

func (s *MailboxStore) SetMailboxEnabled(ctx context.Context, id int64, enabled bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE mailboxes SET enabled = $2, updated_at = NOW() WHERE id = $1`, id, enabled)
	return err
}

func (s *MailboxStore) AdvanceMailboxSyncWatermark(ctx context.Context, id int64, syncedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE mailboxes SET last_sync_at = $2, updated_at = NOW()
		 WHERE id = $1 AND (last_sync_at IS NULL OR last_sync_at < $2)`,
		id, syncedAt)
	return err
}

func scanMailbox(scanner rowScanner) (*models.Mailbox, error) {
	var m models.Mailbox
	if err := scanner.Scan(
		&m.ID, &m.PublicID, &m.UserID, &m.Address, &m.Provider, &m.Enabled, &m.LastSyncAt,
		&m.SMTPHost, &m.SMTPPort, &m.SMTPUsername, &m.SMTPPassword, &m.APIBaseURL, &m.APIToken,
		&m.CreatedAt, &m.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &m, nil
}

func collectMailboxes(rows *sql.Rows) ([]models.Mailbox, error) {
	var mailboxes []models.Mailbox
	for rows.Next() {
		m, err := scanMailbox(rows)
		if err != nil {
			return nil, err
		}
		mailboxes = append(mailboxes, *m)
	}
	return mailboxes, rows.Err()
}

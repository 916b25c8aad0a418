package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/arbitrageos/campaignd/internal/models"
)

type CampaignStore struct {
	db *sql.DB
}

func NewCampaignStore(db *sql.DB) *CampaignStore {
	return &CampaignStore{db: db}
}

const campaignColumns = `id, public_id, user_id, mailbox_id, name, status, subject, body,
	 schedule_mode, scheduled_at, auto_reply, auto_reply_body, auto_followup,
	 followup_interval_days, max_followups, emails_sent, last_processed_at, created_at, updated_at`

func (s *CampaignStore) CreateCampaign(ctx context.Context, params models.CampaignCreateParams) (*models.Campaign, error) {
	c := &models.Campaign{
		PublicID:             uuid.New(),
		UserID:               params.UserID,
		MailboxID:            params.MailboxID,
		Name:                 params.Name,
		Status:               models.CampaignActive,
		Subject:              params.Subject,
		Body:                 params.Body,
		ScheduleMode:         params.ScheduleMode,
		ScheduledAt:          params.ScheduledAt,
		AutoReply:            params.AutoReply,
		AutoReplyBody:        params.AutoReplyBody,
		AutoFollowup:         params.AutoFollowup,
		FollowupIntervalDays: params.FollowupIntervalDays,
		MaxFollowups:         params.MaxFollowups,
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO campaigns
		 (public_id, user_id, mailbox_id, name, status, subject, body, schedule_mode, scheduled_at,
		  auto_reply, auto_reply_body, auto_followup, followup_interval_days, max_followups)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 RETURNING id, emails_sent, created_at, updated_at`,
		c.PublicID, c.UserID, c.MailboxID, c.Name, c.Status, c.Subject, c.Body,
		c.ScheduleMode, c.ScheduledAt, c.AutoReply, c.AutoReplyBody,
		c.AutoFollowup, c.FollowupIntervalDays, c.MaxFollowups,
	).Scan(&c.ID, &c.EmailsSent, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CampaignStore) GetCampaignByID(ctx context.Context, id int64) (*models.Campaign, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id)
	return scanCampaign(row)
}

func (s *CampaignStore) GetCampaignByPublicID(ctx context.Context, publicID uuid.UUID) (*models.Campaign, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE public_id = $1`, publicID)
	return scanCampaign(row)
}

func (s *CampaignStore) ListCampaignsByUserID(ctx context.Context, userID int64) ([]models.Campaign, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCampaigns(rows)
}

func (s *CampaignStore) ListCampaignsByMailboxID(ctx context.Context, mailboxID int64) ([]models.Campaign, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE mailbox_id = $1 ORDER BY id ASC`, mailboxID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCampaigns(rows)
}

func (s *CampaignStore) ListActiveCampaigns(ctx context.Context) ([]models.Campaign, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+campaignColumns+` FROM campaigns
		 WHERE status = $1
		   AND (schedule_mode = $2 OR scheduled_at IS NULL OR scheduled_at <= NOW())
		 ORDER BY id ASC`,
		models.CampaignActive, models.ScheduleImmediate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCampaigns(rows)
}

func (s *CampaignStore) ClaimCampaign(ctx context.Context, id int64, cooldown time.Duration, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE campaigns
		 SET last_processed_at = $2, updated_at = $2
		 WHERE id = $1
		   AND (last_processed_at IS NULL OR last_processed_at <= $3)`,
		id, now, now.Add(-cooldown))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *CampaignStore) IncrementEmailsSent(ctx context.Context, id int64, delta int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE campaigns SET emails_sent = emails_sent + $2, updated_at = NOW() WHERE id = $1`,
		id, delta)
	return err
}

func (s *CampaignStore) UpdateCampaignStatus(ctx context.Context, id int64, status string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE campaigns SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	return err
}

func scanCampaign(scanner rowScanner) (*models.Campaign, error) {
	var c models.Campaign
	if err := scanner.Scan(
		&c.ID, &c.PublicID, &c.UserID, &c.MailboxID, &c.Name, &c.Status, &c.Subject, &c.Body,
		&c.ScheduleMode, &c.ScheduledAt, &c.AutoReply, &c.AutoReplyBody, &c.AutoFollowup,
		&c.FollowupIntervalDays, &c.MaxFollowups, &c.EmailsSent, &c.LastProcessedAt,
		&c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &c, nil
}

func collectCampaigns(rows *sql.Rows) ([]models.Campaign, error) {
	var campaigns []models.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, *c)
	}
	return campaigns, rows.Err()
}

package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/arbitrageos/campaignd/internal/models"
)

type SendAttemptStore struct {
	db *sql.DB
}

func NewSendAttemptStore(db *sql.DB) *SendAttemptStore {
	return &SendAttemptStore{db: db}
}

// ClaimSendAttempt takes ownership of the (campaign, lead, sequence) slot
// before the send goes out. An existing row in status sent is left untouched
// and reported as not claimed; pending and failed rows are re-claimed with a
// fresh token so the next tick retries naturally.
func (s *SendAttemptStore) ClaimSendAttempt(ctx context.Context, campaignID, leadID int64, sequence int, token uuid.UUID) (*models.SendAttempt, bool, error) {
	var a models.SendAttempt
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO send_attempts (campaign_id, lead_id, sequence, token, status)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (campaign_id, lead_id, sequence) DO UPDATE
		 SET token = EXCLUDED.token, status = EXCLUDED.status, last_error = ''
		 WHERE send_attempts.status <> $6
		 RETURNING id, campaign_id, lead_id, sequence, token, status, last_error, created_at, sent_at`,
		campaignID, leadID, sequence, token, models.AttemptPending, models.AttemptSent,
	).Scan(&a.ID, &a.CampaignID, &a.LeadID, &a.Sequence, &a.Token, &a.Status, &a.LastError, &a.CreatedAt, &a.SentAt)
	if err == sql.ErrNoRows {
		// Conflict row already marked sent; fetch it for the caller.
		existing, getErr := s.getSendAttempt(ctx, campaignID, leadID, sequence)
		if getErr != nil {
			return nil, false, getErr
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &a, true, nil
}

func (s *SendAttemptStore) getSendAttempt(ctx context.Context, campaignID, leadID int64, sequence int) (*models.SendAttempt, error) {
	var a models.SendAttempt
	err := s.db.QueryRowContext(ctx,
		`SELECT id, campaign_id, lead_id, sequence, token, status, last_error, created_at, sent_at
		 FROM send_attempts WHERE campaign_id = $1 AND lead_id = $2 AND sequence = $3`,
		campaignID, leadID, sequence,
	).Scan(&a.ID, &a.CampaignID, &a.LeadID, &a.Sequence, &a.Token, &a.Status, &a.LastError, &a.CreatedAt, &a.SentAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *SendAttemptStore) MarkSendAttemptSent(ctx context.Context, id int64, sentAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE send_attempts SET status = $2, sent_at = $3, last_error = '' WHERE id = $1`,
		id, models.AttemptSent, sentAt)
	return err
}

func (s *SendAttemptStore) MarkSendAttemptFailed(ctx context.Context, id int64, lastError string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE send_attempts SET status = $2, last_error = $3 WHERE id = $1`,
		id, models.AttemptFailed, lastError)
	return err
}

func (s *SendAttemptStore) ListSendAttemptsByCampaignID(ctx context.Context, campaignID int64) ([]models.SendAttempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, campaign_id, lead_id, sequence, token, status, last_error, created_at, sent_at
		 FROM send_attempts WHERE campaign_id = $1 ORDER BY lead_id ASC, sequence ASC`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []models.SendAttempt
	for rows.Next() {
		var a models.SendAttempt
		if err := rows.Scan(&a.ID, &a.CampaignID, &a.LeadID, &a.Sequence, &a.Token, &a.Status, &a.LastError, &a.CreatedAt, &a.SentAt); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

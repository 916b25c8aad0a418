package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/arbitrageos/campaignd/internal/models"
)

type LeadStore struct {
	db *sql.DB
}

func NewLeadStore(db *sql.DB) *LeadStore {
	return &LeadStore{db: db}
}

func (s *LeadStore) CreateLeads(ctx context.Context, campaignID int64, params []models.LeadCreateParams) ([]models.Lead, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	leads := make([]models.Lead, 0, len(params))
	for _, p := range params {
		variables := []byte("{}")
		if len(p.Variables) > 0 {
			variables, err = json.Marshal(p.Variables)
			if err != nil {
				return nil, err
			}
		}
		lead := models.Lead{
			CampaignID: campaignID,
			Email:      strings.ToLower(strings.TrimSpace(p.Email)),
			FirstName:  p.FirstName,
			LastName:   p.LastName,
			Company:    p.Company,
			Title:      p.Title,
			Variables:  variables,
		}
		err = tx.QueryRowContext(ctx,
			`INSERT INTO leads (campaign_id, email, first_name, last_name, company, title, variables)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 RETURNING id, created_at`,
			lead.CampaignID, lead.Email, lead.FirstName, lead.LastName, lead.Company, lead.Title, lead.Variables,
		).Scan(&lead.ID, &lead.CreatedAt)
		if err != nil {
			return nil, err
		}
		leads = append(leads, lead)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return leads, nil
}

func (s *LeadStore) ListLeadsByCampaignID(ctx context.Context, campaignID int64) ([]models.Lead, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, campaign_id, email, first_name, last_name, company, title, variables, created_at
		 FROM leads WHERE campaign_id = $1 ORDER BY id ASC`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var leads []models.Lead
	for rows.Next() {
		var l models.Lead
		if err := rows.Scan(&l.ID, &l.CampaignID, &l.Email, &l.FirstName, &l.LastName, &l.Company, &l.Title, &l.Variables, &l.CreatedAt); err != nil {
			return nil, err
		}
		leads = append(leads, l)
	}
	return leads, rows.Err()
}

func (s *LeadStore) GetLeadByCampaignAndEmail(ctx context.Context, campaignID int64, email string) (*models.Lead, error) {
	var l models.Lead
	err := s.db.QueryRowContext(ctx,
		`SELECT id, campaign_id, email, first_name, last_name, company, title, variables, created_at
		 FROM leads WHERE campaign_id = $1 AND email = $2`,
		campaignID, strings.ToLower(strings.TrimSpace(email)),
	).Scan(&l.ID, &l.CampaignID, &l.Email, &l.FirstName, &l.LastName, &l.Company, &l.Title, &l.Variables, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

package campaign

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/arbitrageos/campaignd/internal/models"
	"github.com/arbitrageos/campaignd/internal/store"
)

var (
	ErrNameRequired     = errors.New("campaign name is required")
	ErrTemplateRequired = errors.New("campaign subject and body are required")
	ErrLeadsRequired    = errors.New("at least one lead is required")
	ErrInvalidStatus    = errors.New("invalid campaign status transition")
)

// Free-mail provider domains that must never be used as company enrichment.
var freeMailDomains = map[string]bool{
	"gmail.com":      true,
	"googlemail.com": true,
	"yahoo.com":      true,
	"outlook.com":    true,
	"hotmail.com":    true,
	"live.com":       true,
	"aol.com":        true,
	"icloud.com":     true,
	"me.com":         true,
	"proton.me":      true,
	"protonmail.com": true,
	"gmx.com":        true,
	"mail.com":       true,
	"zoho.com":       true,
	"yandex.com":     true,
}

type Service struct {
	campaigns store.CampaignStore
	leads     store.LeadStore
	mailboxes store.MailboxStore
}

func NewService(campaigns store.CampaignStore, leads store.LeadStore, mailboxes store.MailboxStore) *Service {
	return &Service{
		campaigns: campaigns,
		leads:     leads,
		mailboxes: mailboxes,
	}
}

// Create validates the campaign definition, snapshots the lead list, and
// persists both. Leads with a missing or malformed address are rejected up
// front so the runner never sees them.
func (s *Service) Create(ctx context.Context, params models.CampaignCreateParams, leads []models.LeadCreateParams) (*models.Campaign, []models.Lead, error) {
	params.Name = strings.TrimSpace(params.Name)
	if params.Name == "" {
		return nil, nil, ErrNameRequired
	}
	if strings.TrimSpace(params.Subject) == "" || strings.TrimSpace(params.Body) == "" {
		return nil, nil, ErrTemplateRequired
	}
	if len(leads) == 0 {
		return nil, nil, ErrLeadsRequired
	}
	if params.ScheduleMode == "" {
		params.ScheduleMode = models.ScheduleImmediate
	}
	if params.ScheduleMode != models.ScheduleImmediate && params.ScheduleMode != models.ScheduleScheduled {
		return nil, nil, fmt.Errorf("unknown schedule mode %q", params.ScheduleMode)
	}
	if params.AutoFollowup {
		if params.FollowupIntervalDays <= 0 {
			return nil, nil, errors.New("followup interval must be at least one day")
		}
		if params.MaxFollowups <= 0 {
			return nil, nil, errors.New("max followups must be positive when auto-followup is on")
		}
	}

	mailbox, err := s.mailboxes.GetMailboxByID(ctx, params.MailboxID)
	if err != nil {
		return nil, nil, fmt.Errorf("mailbox not found: %w", err)
	}
	if !mailbox.Enabled {
		return nil, nil, errors.New("mailbox is disabled")
	}

	validated := make([]models.LeadCreateParams, 0, len(leads))
	for i, lead := range leads {
		lead.Email = strings.ToLower(strings.TrimSpace(lead.Email))
		if lead.Email == "" {
			return nil, nil, fmt.Errorf("lead %d: email is required", i+1)
		}
		if _, err := mail.ParseAddress(lead.Email); err != nil {
			return nil, nil, fmt.Errorf("lead %d: invalid email %q", i+1, lead.Email)
		}
		if strings.TrimSpace(lead.Company) == "" {
			lead.Company = companyFromDomain(lead.Email)
		}
		validated = append(validated, lead)
	}

	c, err := s.campaigns.CreateCampaign(ctx, params)
	if err != nil {
		return nil, nil, fmt.Errorf("create campaign: %w", err)
	}

	created, err := s.leads.CreateLeads(ctx, c.ID, validated)
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot leads: %w", err)
	}
	return c, created, nil
}

func (s *Service) GetByPublicID(ctx context.Context, publicID uuid.UUID) (*models.Campaign, error) {
	return s.campaigns.GetCampaignByPublicID(ctx, publicID)
}

func (s *Service) ListByUserID(ctx context.Context, userID int64) ([]models.Campaign, error) {
	return s.campaigns.ListCampaignsByUserID(ctx, userID)
}

func (s *Service) Pause(ctx context.Context, c *models.Campaign) error {
	if c.Status != models.CampaignActive {
		return ErrInvalidStatus
	}
	return s.campaigns.UpdateCampaignStatus(ctx, c.ID, models.CampaignPaused)
}

func (s *Service) Resume(ctx context.Context, c *models.Campaign) error {
	if c.Status != models.CampaignPaused {
		return ErrInvalidStatus
	}
	return s.campaigns.UpdateCampaignStatus(ctx, c.ID, models.CampaignActive)
}

// companyFromDomain derives a company name from the lead's email domain.
// Free-mail providers yield no enrichment: "gmail" is never a company.
func companyFromDomain(email string) string {
	at := strings.Index(email, "@")
	if at < 0 {
		return ""
	}
	domain := strings.ToLower(email[at+1:])
	if freeMailDomains[domain] {
		return ""
	}
	base := domain
	if dot := strings.Index(base, "."); dot > 0 {
		base = base[:dot]
	}
	if base == "" {
		return ""
	}
	return strings.ToUpper(base[:1]) + base[1:]
}

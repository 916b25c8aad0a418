package campaign

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/arbitrageos/campaignd/internal/models"
)

func serviceFixture() (*Service, *mockCampaignStore, *mockLeadStore, *models.Mailbox) {
	mb := testMailbox()
	cs := newMockCampaignStore()
	ls := newMockLeadStore()
	return NewService(cs, ls, newMockMailboxStore(mb)), cs, ls, mb
}

func validParams(mailboxID int64) models.CampaignCreateParams {
	return models.CampaignCreateParams{
		UserID:    7,
		MailboxID: mailboxID,
		Name:      "Launch",
		Subject:   "Hello",
		Body:      "Hi {{firstName}}",
	}
}

func TestCreate_Validation(t *testing.T) {
	svc, _, _, mb := serviceFixture()
	ctx := context.Background()
	leads := []models.LeadCreateParams{{Email: "a@x.com"}}

	tests := []struct {
		name    string
		mutate  func(*models.CampaignCreateParams, *[]models.LeadCreateParams)
		wantErr string
	}{
		{
			name:    "missing name",
			mutate:  func(p *models.CampaignCreateParams, _ *[]models.LeadCreateParams) { p.Name = "  " },
			wantErr: ErrNameRequired.Error(),
		},
		{
			name:    "missing body",
			mutate:  func(p *models.CampaignCreateParams, _ *[]models.LeadCreateParams) { p.Body = "" },
			wantErr: ErrTemplateRequired.Error(),
		},
		{
			name:    "no leads",
			mutate:  func(_ *models.CampaignCreateParams, l *[]models.LeadCreateParams) { *l = nil },
			wantErr: ErrLeadsRequired.Error(),
		},
		{
			name:    "bad schedule mode",
			mutate:  func(p *models.CampaignCreateParams, _ *[]models.LeadCreateParams) { p.ScheduleMode = "whenever" },
			wantErr: "unknown schedule mode",
		},
		{
			name: "auto-followup without interval",
			mutate: func(p *models.CampaignCreateParams, _ *[]models.LeadCreateParams) {
				p.AutoFollowup = true
				p.MaxFollowups = 2
			},
			wantErr: "followup interval",
		},
		{
			name: "invalid lead email",
			mutate: func(_ *models.CampaignCreateParams, l *[]models.LeadCreateParams) {
				*l = []models.LeadCreateParams{{Email: "not-an-address"}}
			},
			wantErr: "invalid email",
		},
		{
			name: "blank lead email",
			mutate: func(_ *models.CampaignCreateParams, l *[]models.LeadCreateParams) {
				*l = []models.LeadCreateParams{{Email: "   "}}
			},
			wantErr: "email is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := validParams(mb.ID)
			ls := append([]models.LeadCreateParams(nil), leads...)
			tt.mutate(&params, &ls)
			_, _, err := svc.Create(ctx, params, ls)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCreate_RejectsDisabledMailbox(t *testing.T) {
	svc, _, _, mb := serviceFixture()
	mb.Enabled = false
	_, _, err := svc.Create(context.Background(), validParams(mb.ID), []models.LeadCreateParams{{Email: "a@x.com"}})
	if err == nil || !strings.Contains(err.Error(), "disabled") {
		t.Fatalf("expected disabled mailbox error, got %v", err)
	}
}

func TestCreate_NormalizesAndEnrichesLeads(t *testing.T) {
	svc, _, _, mb := serviceFixture()
	_, created, err := svc.Create(context.Background(), validParams(mb.ID), []models.LeadCreateParams{
		{Email: "  Jane@Stripe.com  "},
		{Email: "bob@gmail.com"},
		{Email: "eve@widgets.co", Company: "Widgets Inc"},
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if created[0].Email != "jane@stripe.com" {
		t.Errorf("expected lowercased trimmed email, got %q", created[0].Email)
	}
	if created[0].Company != "Stripe" {
		t.Errorf("expected company derived from domain, got %q", created[0].Company)
	}
	if created[1].Company != "" {
		t.Errorf("free-mail domain must not become a company, got %q", created[1].Company)
	}
	if created[2].Company != "Widgets Inc" {
		t.Errorf("explicit company must be kept, got %q", created[2].Company)
	}
}

func TestPauseResume(t *testing.T) {
	svc, cs, _, mb := serviceFixture()
	c, _, err := svc.Create(context.Background(), validParams(mb.ID), []models.LeadCreateParams{{Email: "a@x.com"}})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	if err := svc.Resume(context.Background(), c); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("resuming an active campaign must fail, got %v", err)
	}
	if err := svc.Pause(context.Background(), c); err != nil {
		t.Fatalf("Pause error: %v", err)
	}
	if cs.statuses[c.ID] != models.CampaignPaused {
		t.Fatalf("expected paused, got %q", cs.statuses[c.ID])
	}
	c.Status = models.CampaignPaused
	if err := svc.Pause(context.Background(), c); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("pausing a paused campaign must fail, got %v", err)
	}
	if err := svc.Resume(context.Background(), c); err != nil {
		t.Fatalf("Resume error: %v", err)
	}
	if cs.statuses[c.ID] != models.CampaignActive {
		t.Fatalf("expected active, got %q", cs.statuses[c.ID])
	}
}

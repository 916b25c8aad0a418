package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/arbitrageos/campaignd/internal/models"
)

type CampaignStore interface {
	CreateCampaign(ctx context.Context, params models.CampaignCreateParams) (*models.Campaign, error)
	GetCampaignByID(ctx context.Context, id int64) (*models.Campaign, error)
	GetCampaignByPublicID(ctx context.Context, publicID uuid.UUID) (*models.Campaign, error)
	ListCampaignsByUserID(ctx context.Context, userID int64) ([]models.Campaign, error)
	ListCampaignsByMailboxID(ctx context.Context, mailboxID int64) ([]models.Campaign, error)
	ListActiveCampaigns(ctx context.Context) ([]models.Campaign, error)
	// ClaimCampaign atomically stamps last_processed_at when the cooldown
	// window has expired. It returns false when the campaign is still inside
	// the window, with no side effects.
	ClaimCampaign(ctx context.Context, id int64, cooldown time.Duration, now time.Time) (bool, error)
	IncrementEmailsSent(ctx context.Context, id int64, delta int) error
	UpdateCampaignStatus(ctx context.Context, id int64, status string) error
}

type LeadStore interface {
	CreateLeads(ctx context.Context, campaignID int64, params []models.LeadCreateParams) ([]models.Lead, error)
	ListLeadsByCampaignID(ctx context.Context, campaignID int64) ([]models.Lead, error)
	GetLeadByCampaignAndEmail(ctx context.Context, campaignID int64, email string) (*models.Lead, error)
}

type SendAttemptStore interface {
	// ClaimSendAttempt inserts or refreshes the attempt row for
	// (campaignID, leadID, sequence) before the external send happens.
	// A row already marked sent is returned with claimed=false.
	ClaimSendAttempt(ctx context.Context, campaignID, leadID int64, sequence int, token uuid.UUID) (attempt *models.SendAttempt, claimed bool, err error)
	MarkSendAttemptSent(ctx context.Context, id int64, sentAt time.Time) error
	MarkSendAttemptFailed(ctx context.Context, id int64, lastError string) error
	ListSendAttemptsByCampaignID(ctx context.Context, campaignID int64) ([]models.SendAttempt, error)
}

type MailboxStore interface {
	CreateMailbox(ctx context.Context, params models.MailboxCreateParams) (*models.Mailbox, error)
	GetMailboxByID(ctx context.Context, id int64) (*models.Mailbox, error)
	GetMailboxByPublicID(ctx context.Context, publicID uuid.UUID) (*models.Mailbox, error)
	ListMailboxesByUserID(ctx context.Context, userID int64) ([]models.Mailbox, error)
	ListEnabledMailboxes(ctx context.Context) ([]models.Mailbox, error)
	SetMailboxEnabled(ctx context.Context, id int64, enabled bool) error
	// AdvanceMailboxSyncWatermark moves last_sync_at forward; it never moves
	// the watermark backwards.
	AdvanceMailboxSyncWatermark(ctx context.Context, id int64, syncedAt time.Time) error
}

type InboundEmailStore interface {
	CreateInboundEmail(ctx context.Context, params models.InboundEmailCreateParams) (*models.InboundEmail, error)
	GetInboundEmailByID(ctx context.Context, id int64) (*models.InboundEmail, error)
	ListInboundEmailsByMailboxID(ctx context.Context, mailboxID int64, limit, offset int) ([]models.InboundEmail, error)
	ListUnprocessedInboundEmailsByMailboxID(ctx context.Context, mailboxID int64) ([]models.InboundEmail, error)
	ListActionableInboundEmailsByMailboxID(ctx context.Context, mailboxID int64) ([]models.InboundEmail, error)
	SetInboundEmailClassification(ctx context.Context, id int64, sentiment string, requiresAction bool) error
	ClearInboundEmailRequiresAction(ctx context.Context, id int64, repliedAt time.Time) error
	ArchiveProcessedInboundEmailsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

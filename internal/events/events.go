package events

import (
	"context"
	"time"
)

// Event types published to the dashboard exchange.
const (
	TypeEmailSent     = "email.sent"
	TypeFollowupSent  = "email.followup_sent"
	TypeAutoReplySent = "email.auto_reply_sent"
	TypeInboundTagged = "inbound.tagged"
	TypeTickCompleted = "tick.completed"
)

// Event is one observability fact emitted by the processing loop. The
// dashboard consumes these asynchronously; losing one is acceptable, so
// publishers are fire-and-forget from the caller's point of view.
type Event struct {
	Type       string    `json:"type"`
	CampaignID int64     `json:"campaign_id,omitempty"`
	MailboxID  int64     `json:"mailbox_id,omitempty"`
	Recipient  string    `json:"recipient,omitempty"`
	Sentiment  string    `json:"sentiment,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type NoopPublisher struct{}

func (p *NoopPublisher) Publish(_ context.Context, _ Event) error {
	return nil
}

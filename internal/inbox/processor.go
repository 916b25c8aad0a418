package inbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/arbitrageos/campaignd/internal/classify"
	"github.com/arbitrageos/campaignd/internal/events"
	mailconn "github.com/arbitrageos/campaignd/internal/mail"
	"github.com/arbitrageos/campaignd/internal/models"
	"github.com/arbitrageos/campaignd/internal/store"
)

// SyncResult reports what one pass over a single mailbox did.
type SyncResult struct {
	Fetched         int
	Processed       int
	AutoRepliesSent int
	Errors          []string
}

// Processor pulls new mail for one mailbox, classifies it, and reacts.
type Processor struct {
	mailboxes       store.MailboxStore
	emails          store.InboundEmailStore
	campaigns       store.CampaignStore
	leads           store.LeadStore
	connector       mailconn.Connector
	classifier      classify.Classifier
	publisher       events.Publisher
	defaultSyncBack time.Duration
}

func NewProcessor(
	mailboxes store.MailboxStore,
	emails store.InboundEmailStore,
	campaigns store.CampaignStore,
	leads store.LeadStore,
	connector mailconn.Connector,
	classifier classify.Classifier,
	publisher events.Publisher,
	defaultSyncBack time.Duration,
) *Processor {
	if defaultSyncBack <= 0 {
		defaultSyncBack = 1 * time.Hour
	}
	if publisher == nil {
		publisher = &events.NoopPublisher{}
	}
	return &Processor{
		mailboxes:       mailboxes,
		emails:          emails,
		campaigns:       campaigns,
		leads:           leads,
		connector:       connector,
		classifier:      classifier,
		publisher:       publisher,
		defaultSyncBack: defaultSyncBack,
	}
}

// Sync runs the full inbound pipeline for one mailbox: fetch since the
// watermark, persist, classify, auto-reply where configured. The watermark
// only advances after the whole fetched batch is persisted; a persist failure
// leaves it untouched so the next tick re-fetches the same window and the
// unique message_id constraint drops what already landed.
func (p *Processor) Sync(ctx context.Context, mailbox *models.Mailbox, now time.Time) (SyncResult, error) {
	var res SyncResult

	since := now.Add(-p.defaultSyncBack)
	if mailbox.LastSyncAt != nil {
		since = *mailbox.LastSyncAt
	}

	messages, err := p.connector.FetchSince(ctx, mailbox, since)
	if err != nil {
		return res, err
	}
	res.Fetched = len(messages)

	persistFailed := false
	for _, msg := range messages {
		if _, err := p.persist(ctx, mailbox, msg); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("persist %s: %v", msg.MessageID, err))
			persistFailed = true
			break
		}
	}

	if !persistFailed {
		if err := p.mailboxes.AdvanceMailboxSyncWatermark(ctx, mailbox.ID, now); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("advance watermark: %v", err))
		}
	}

	// Classification runs off the database, not the fetched batch, so rows
	// persisted by an earlier crashed tick still get tagged.
	unprocessed, err := p.emails.ListUnprocessedInboundEmailsByMailboxID(ctx, mailbox.ID)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("list unprocessed: %v", err))
		return res, nil
	}
	for _, email := range unprocessed {
		result := p.classifyOrDefault(ctx, email)
		if err := p.emails.SetInboundEmailClassification(ctx, email.ID, result.Sentiment, result.RequiresAction); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("tag %s: %v", email.Sender, err))
			continue
		}
		res.Processed++
		if err := p.publisher.Publish(ctx, events.Event{
			Type:       events.TypeInboundTagged,
			MailboxID:  mailbox.ID,
			Recipient:  email.Sender,
			Sentiment:  result.Sentiment,
			OccurredAt: now,
		}); err != nil {
			slog.WarnContext(ctx, "failed to publish inbound event", "error", err)
		}
	}

	// Auto-reply safety net: act on every actionable row, including ones a
	// crashed tick classified but never replied to.
	replied, replyErrs := p.autoReplyPass(ctx, mailbox, now)
	res.AutoRepliesSent = replied
	res.Errors = append(res.Errors, replyErrs...)

	return res, nil
}

func (p *Processor) persist(ctx context.Context, mailbox *models.Mailbox, msg mailconn.InboundMessage) (*models.InboundEmail, error) {
	sender := strings.TrimSpace(msg.Sender)
	if addr, err := mail.ParseAddress(sender); err == nil {
		sender = strings.ToLower(addr.Address)
	}
	email, err := p.emails.CreateInboundEmail(ctx, models.InboundEmailCreateParams{
		MailboxID:  mailbox.ID,
		Sender:     sender,
		Subject:    msg.Subject,
		TextBody:   msg.TextBody,
		MessageID:  msg.MessageID,
		ReceivedAt: msg.ReceivedAt,
	})
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			// Duplicate delivery from a re-fetched window.
			return nil, nil
		}
		return nil, err
	}
	return email, nil
}

func (p *Processor) classifyOrDefault(ctx context.Context, email models.InboundEmail) classify.Result {
	result, err := p.classifier.Classify(ctx, email.TextBody)
	if err != nil {
		slog.WarnContext(ctx, "classification failed, defaulting to neutral",
			"sender", email.Sender, "error", err)
		return classify.Result{Sentiment: models.SentimentNeutral, RequiresAction: false}
	}
	return result
}

// autoReplyPass sends one reply per actionable interested message when the
// originating campaign has auto-reply enabled, then clears requires_action.
// The cleared flag is the single gate against a second reply on a later tick.
func (p *Processor) autoReplyPass(ctx context.Context, mailbox *models.Mailbox, now time.Time) (int, []string) {
	actionable, err := p.emails.ListActionableInboundEmailsByMailboxID(ctx, mailbox.ID)
	if err != nil {
		return 0, []string{fmt.Sprintf("list actionable: %v", err)}
	}

	var errs []string
	replied := 0
	for _, email := range actionable {
		if email.Sentiment != models.SentimentInterested {
			continue
		}
		campaign, err := p.matchCampaign(ctx, mailbox.ID, email.Sender)
		if err != nil {
			errs = append(errs, fmt.Sprintf("match campaign for %s: %v", email.Sender, err))
			continue
		}
		if campaign == nil || !campaign.AutoReply {
			// Not ours to answer automatically; a human clears the flag.
			continue
		}

		subject := "Re: " + email.Subject
		if err := p.connector.Send(ctx, mailbox, email.Sender, subject, campaign.AutoReplyBody); err != nil {
			errs = append(errs, fmt.Sprintf("auto-reply to %s: %v", email.Sender, err))
			continue
		}
		if err := p.emails.ClearInboundEmailRequiresAction(ctx, email.ID, now); err != nil {
			errs = append(errs, fmt.Sprintf("clear action flag for %s: %v", email.Sender, err))
			continue
		}
		replied++
		if err := p.publisher.Publish(ctx, events.Event{
			Type:       events.TypeAutoReplySent,
			CampaignID: campaign.ID,
			MailboxID:  mailbox.ID,
			Recipient:  email.Sender,
			OccurredAt: now,
		}); err != nil {
			slog.WarnContext(ctx, "failed to publish auto-reply event", "error", err)
		}
	}
	return replied, errs
}

// matchCampaign finds the campaign on this mailbox that targeted the sender
// as a lead. Returns nil when no campaign claims the address.
func (p *Processor) matchCampaign(ctx context.Context, mailboxID int64, sender string) (*models.Campaign, error) {
	campaigns, err := p.campaigns.ListCampaignsByMailboxID(ctx, mailboxID)
	if err != nil {
		return nil, err
	}
	for i := range campaigns {
		_, err := p.leads.GetLeadByCampaignAndEmail(ctx, campaigns[i].ID, sender)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return nil, err
		}
		return &campaigns[i], nil
	}
	return nil, nil
}

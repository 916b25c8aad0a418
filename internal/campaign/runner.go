package campaign

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/arbitrageos/campaignd/internal/events"
	"github.com/arbitrageos/campaignd/internal/mail"
	"github.com/arbitrageos/campaignd/internal/models"
	"github.com/arbitrageos/campaignd/internal/store"
)

// RunResult reports what one pass over a single campaign did.
type RunResult struct {
	Skipped       bool
	InitialSent   int
	FollowupsSent int
	Errors        []string
}

// Runner decides, for one campaign, which leads are due for an initial send
// or a follow-up and dispatches through the connector. A send failure for one
// lead is recorded and never aborts the rest of the campaign.
type Runner struct {
	campaigns store.CampaignStore
	leads     store.LeadStore
	attempts  store.SendAttemptStore
	mailboxes store.MailboxStore
	connector mail.Connector
	publisher events.Publisher
	cooldown  time.Duration
}

func NewRunner(
	campaigns store.CampaignStore,
	leads store.LeadStore,
	attempts store.SendAttemptStore,
	mailboxes store.MailboxStore,
	connector mail.Connector,
	publisher events.Publisher,
	cooldown time.Duration,
) *Runner {
	if cooldown <= 0 {
		cooldown = 5 * time.Minute
	}
	if publisher == nil {
		publisher = &events.NoopPublisher{}
	}
	return &Runner{
		campaigns: campaigns,
		leads:     leads,
		attempts:  attempts,
		mailboxes: mailboxes,
		connector: connector,
		publisher: publisher,
		cooldown:  cooldown,
	}
}

// leadState is the per-lead send history derived from send_attempts.
type leadState struct {
	initialSent   bool
	followupsSent int
	lastSentAt    time.Time
}

func (r *Runner) Run(ctx context.Context, c *models.Campaign, now time.Time) (RunResult, error) {
	var res RunResult

	// Atomic cooldown claim. Losing the claim means another tick stamped the
	// campaign inside the window; skipping has zero side effects. Claiming up
	// front also guarantees the stamp survives partial send failures, so a
	// permanently failing lead cannot hot-loop the campaign.
	claimed, err := r.campaigns.ClaimCampaign(ctx, c.ID, r.cooldown, now)
	if err != nil {
		return res, fmt.Errorf("claim campaign: %w", err)
	}
	if !claimed {
		res.Skipped = true
		return res, nil
	}

	mailbox, err := r.mailboxes.GetMailboxByID(ctx, c.MailboxID)
	if err != nil {
		return res, fmt.Errorf("load mailbox: %w", err)
	}

	leads, err := r.leads.ListLeadsByCampaignID(ctx, c.ID)
	if err != nil {
		return res, fmt.Errorf("list leads: %w", err)
	}

	attempts, err := r.attempts.ListSendAttemptsByCampaignID(ctx, c.ID)
	if err != nil {
		return res, fmt.Errorf("list send attempts: %w", err)
	}
	states := buildLeadStates(attempts)

	sent := 0
	for _, lead := range leads {
		state := states[lead.ID]
		sequence, due := r.nextDueSequence(c, state, now)
		if !due {
			continue
		}

		delivered, err := r.sendOne(ctx, c, mailbox, lead, sequence)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("lead %s: %v", lead.Email, err))
			continue
		}
		if !delivered {
			// A previous tick already delivered this sequence and crashed
			// before its counters landed; do not resend.
			states[lead.ID] = advanceState(state, sequence, now)
			continue
		}

		states[lead.ID] = advanceState(state, sequence, now)
		sent++
		if sequence == 0 {
			res.InitialSent++
		} else {
			res.FollowupsSent++
		}
	}

	if sent > 0 {
		if err := r.campaigns.IncrementEmailsSent(ctx, c.ID, sent); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("update sent counter: %v", err))
		}
	}

	if r.exhausted(c, leads, states) {
		if err := r.campaigns.UpdateCampaignStatus(ctx, c.ID, models.CampaignCompleted); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("mark completed: %v", err))
		} else {
			slog.InfoContext(ctx, "campaign completed", "campaign", c.Name)
		}
	}

	return res, nil
}

// nextDueSequence returns the sequence number the lead is due for, if any.
// At most one message goes out per lead per tick.
func (r *Runner) nextDueSequence(c *models.Campaign, state leadState, now time.Time) (int, bool) {
	if !state.initialSent {
		return 0, true
	}
	if !c.AutoFollowup || c.MaxFollowups <= 0 {
		return 0, false
	}
	if state.followupsSent >= c.MaxFollowups {
		return 0, false
	}
	interval := time.Duration(c.FollowupIntervalDays) * 24 * time.Hour
	if now.Sub(state.lastSentAt) < interval {
		return 0, false
	}
	return state.followupsSent + 1, true
}

// sendOne claims the idempotency slot, renders and dispatches one message.
// delivered=false with a nil error means the slot was already marked sent.
func (r *Runner) sendOne(ctx context.Context, c *models.Campaign, mailbox *models.Mailbox, lead models.Lead, sequence int) (delivered bool, err error) {
	attempt, claimed, err := r.attempts.ClaimSendAttempt(ctx, c.ID, lead.ID, sequence, uuid.New())
	if err != nil {
		return false, fmt.Errorf("claim send attempt: %w", err)
	}
	if !claimed {
		return false, nil
	}

	vars := LeadVariables(lead)
	subject := RenderTemplate(c.Subject, vars)
	body := RenderTemplate(c.Body, vars)
	eventType := events.TypeEmailSent
	if sequence > 0 {
		subject = "Re: " + subject
		eventType = events.TypeFollowupSent
	}

	if err := r.connector.Send(ctx, mailbox, lead.Email, subject, body); err != nil {
		if markErr := r.attempts.MarkSendAttemptFailed(ctx, attempt.ID, err.Error()); markErr != nil {
			slog.ErrorContext(ctx, "failed to record send failure", "lead", lead.Email, "error", markErr)
		}
		return false, err
	}

	sentAt := time.Now().UTC()
	if err := r.attempts.MarkSendAttemptSent(ctx, attempt.ID, sentAt); err != nil {
		// The mail is out; surface the bookkeeping failure but do not retry
		// the send.
		return true, fmt.Errorf("mark attempt sent: %w", err)
	}

	if err := r.publisher.Publish(ctx, events.Event{
		Type:       eventType,
		CampaignID: c.ID,
		MailboxID:  mailbox.ID,
		Recipient:  lead.Email,
		OccurredAt: sentAt,
	}); err != nil {
		slog.WarnContext(ctx, "failed to publish send event", "error", err)
	}
	return true, nil
}

// exhausted reports whether every lead has received its initial message and
// all configured follow-ups, making the campaign terminal.
func (r *Runner) exhausted(c *models.Campaign, leads []models.Lead, states map[int64]leadState) bool {
	if len(leads) == 0 {
		return false
	}
	for _, lead := range leads {
		state := states[lead.ID]
		if !state.initialSent {
			return false
		}
		if c.AutoFollowup && state.followupsSent < c.MaxFollowups {
			return false
		}
	}
	return true
}

func buildLeadStates(attempts []models.SendAttempt) map[int64]leadState {
	states := make(map[int64]leadState)
	for _, a := range attempts {
		if a.Status != models.AttemptSent {
			continue
		}
		state := states[a.LeadID]
		if a.Sequence == 0 {
			state.initialSent = true
		} else if a.Sequence > state.followupsSent {
			state.followupsSent = a.Sequence
		}
		if a.SentAt != nil && a.SentAt.After(state.lastSentAt) {
			state.lastSentAt = *a.SentAt
		}
		states[a.LeadID] = state
	}
	return states
}

func advanceState(state leadState, sequence int, now time.Time) leadState {
	if sequence == 0 {
		state.initialSent = true
	} else if sequence > state.followupsSent {
		state.followupsSent = sequence
	}
	state.lastSentAt = now
	return state
}

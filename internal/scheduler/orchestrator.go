package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/arbitrageos/campaignd/internal/campaign"
	"github.com/arbitrageos/campaignd/internal/events"
	"github.com/arbitrageos/campaignd/internal/inbox"
	"github.com/arbitrageos/campaignd/internal/store"
)

// Summary aggregates what one tick did, for the triggering caller.
type Summary struct {
	CampaignsProcessed     int      `json:"campaignsProcessed"`
	EmailsSent             int      `json:"emailsSent"`
	FollowupsSent          int      `json:"followupsSent"`
	InboundEmailsFetched   int      `json:"inboundEmailsFetched"`
	InboundEmailsProcessed int      `json:"inboundEmailsProcessed"`
	AutoRepliesSent        int      `json:"autoRepliesSent"`
	InboundEmailsArchived  int64    `json:"inboundEmailsArchived"`
	Errors                 []string `json:"errors"`
}

type Options struct {
	Concurrency   int
	UnitTimeout   time.Duration
	RetentionDays int
}

// Orchestrator drives one processing pass: every active campaign through the
// runner, every enabled mailbox through the inbound processor, then the
// retention sweep. Independent campaigns and mailboxes run on a bounded
// worker pool; the summary is the only shared state and is mutex-guarded.
type Orchestrator struct {
	campaigns     store.CampaignStore
	mailboxes     store.MailboxStore
	emails        store.InboundEmailStore
	runner        *campaign.Runner
	processor     *inbox.Processor
	publisher     events.Publisher
	concurrency   int
	unitTimeout   time.Duration
	retentionDays int
}

func NewOrchestrator(
	campaigns store.CampaignStore,
	mailboxes store.MailboxStore,
	emails store.InboundEmailStore,
	runner *campaign.Runner,
	processor *inbox.Processor,
	publisher events.Publisher,
	opts Options,
) *Orchestrator {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	unitTimeout := opts.UnitTimeout
	if unitTimeout <= 0 {
		unitTimeout = 30 * time.Second
	}
	retentionDays := opts.RetentionDays
	if retentionDays <= 0 {
		retentionDays = 30
	}
	if publisher == nil {
		publisher = &events.NoopPublisher{}
	}
	return &Orchestrator{
		campaigns:     campaigns,
		mailboxes:     mailboxes,
		emails:        emails,
		runner:        runner,
		processor:     processor,
		publisher:     publisher,
		concurrency:   concurrency,
		unitTimeout:   unitTimeout,
		retentionDays: retentionDays,
	}
}

// Tick runs one full pass. Only a failure to load the campaign or mailbox
// lists is a tick-level error; everything below that granularity lands in
// the summary's error list and the tick keeps going. Every step is safe to
// re-run, so a tick cut short by the caller's deadline resumes cleanly on
// the next one.
func (o *Orchestrator) Tick(ctx context.Context) (Summary, error) {
	started := time.Now().UTC()
	var (
		summary Summary
		mu      sync.Mutex
	)

	campaigns, err := o.campaigns.ListActiveCampaigns(ctx)
	if err != nil {
		return summary, fmt.Errorf("list active campaigns: %w", err)
	}

	o.forEach(ctx, len(campaigns), func(ctx context.Context, i int) {
		c := campaigns[i]
		res, err := o.runner.Run(ctx, &c, time.Now().UTC())

		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("Campaign %s: %v", c.Name, err))
			return
		}
		if res.Skipped {
			return
		}
		summary.CampaignsProcessed++
		summary.EmailsSent += res.InitialSent
		summary.FollowupsSent += res.FollowupsSent
		for _, msg := range res.Errors {
			summary.Errors = append(summary.Errors, fmt.Sprintf("Campaign %s: %s", c.Name, msg))
		}
	})

	mailboxes, err := o.mailboxes.ListEnabledMailboxes(ctx)
	if err != nil {
		return summary, fmt.Errorf("list enabled mailboxes: %w", err)
	}

	o.forEach(ctx, len(mailboxes), func(ctx context.Context, i int) {
		mb := mailboxes[i]
		res, err := o.processor.Sync(ctx, &mb, time.Now().UTC())

		mu.Lock()
		defer mu.Unlock()
		summary.InboundEmailsFetched += res.Fetched
		summary.InboundEmailsProcessed += res.Processed
		summary.AutoRepliesSent += res.AutoRepliesSent
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("Inbound %s: %v", mb.Address, err))
		}
		for _, msg := range res.Errors {
			summary.Errors = append(summary.Errors, fmt.Sprintf("Inbound %s: %s", mb.Address, msg))
		}
	})

	cutoff := time.Now().UTC().AddDate(0, 0, -o.retentionDays)
	archived, err := o.emails.ArchiveProcessedInboundEmailsBefore(ctx, cutoff)
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("retention sweep: %v", err))
	}
	summary.InboundEmailsArchived = archived

	duration := time.Since(started)
	slog.InfoContext(ctx, "tick completed",
		"duration", duration,
		"campaigns", summary.CampaignsProcessed,
		"emails_sent", summary.EmailsSent,
		"followups_sent", summary.FollowupsSent,
		"inbound_fetched", summary.InboundEmailsFetched,
		"auto_replies", summary.AutoRepliesSent,
		"archived", summary.InboundEmailsArchived,
		"errors", len(summary.Errors),
	)
	if err := o.publisher.Publish(ctx, events.Event{
		Type:       events.TypeTickCompleted,
		Detail:     fmt.Sprintf("%d campaigns, %d sends, %d errors", summary.CampaignsProcessed, summary.EmailsSent+summary.FollowupsSent, len(summary.Errors)),
		OccurredAt: time.Now().UTC(),
	}); err != nil {
		slog.WarnContext(ctx, "failed to publish tick event", "error", err)
	}

	return summary, nil
}

// forEach runs fn for indexes 0..n-1 on a bounded pool, each invocation with
// its own timeout. Remaining units are skipped once the tick context is done
// so a hung provider call cannot eat the whole budget.
func (o *Orchestrator) forEach(ctx context.Context, n int, fn func(ctx context.Context, i int)) {
	sem := make(chan struct{}, o.concurrency)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			unitCtx, cancel := context.WithTimeout(ctx, o.unitTimeout)
			defer cancel()
			fn(unitCtx, i)
		}(i)
	}
	wg.Wait()
}

package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Campaign statuses.
const (
	CampaignActive    = "active"
	CampaignPaused    = "paused"
	CampaignCompleted = "completed"
)

// Schedule modes.
const (
	ScheduleImmediate = "immediate"
	ScheduleScheduled = "scheduled"
)

type Campaign struct {
	ID                   int64
	PublicID             uuid.UUID
	UserID               int64
	MailboxID            int64
	Name                 string
	Status               string
	Subject              string
	Body                 string
	ScheduleMode         string
	ScheduledAt          *time.Time
	AutoReply            bool
	AutoReplyBody        string
	AutoFollowup         bool
	FollowupIntervalDays int
	MaxFollowups         int
	EmailsSent           int
	LastProcessedAt      *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

type CampaignCreateParams struct {
	UserID               int64
	MailboxID            int64
	Name                 string
	Subject              string
	Body                 string
	ScheduleMode         string
	ScheduledAt          *time.Time
	AutoReply            bool
	AutoReplyBody        string
	AutoFollowup         bool
	FollowupIntervalDays int
	MaxFollowups         int
}

type Lead struct {
	ID         int64
	CampaignID int64
	Email      string
	FirstName  string
	LastName   string
	Company    string
	Title      string
	Variables  json.RawMessage
	CreatedAt  time.Time
}

type LeadCreateParams struct {
	Email     string
	FirstName string
	LastName  string
	Company   string
	Title     string
	Variables map[string]string
}

// Send attempt statuses.
const (
	AttemptPending = "pending"
	AttemptSent    = "sent"
	AttemptFailed  = "failed"
)

// SendAttempt records one outbound send per (campaign, lead, sequence).
// Sequence 0 is the initial message, sequence n >= 1 is follow-up n. The
// token is minted before the external send so a crashed tick can detect an
// already-delivered attempt instead of resending.
type SendAttempt struct {
	ID         int64
	CampaignID int64
	LeadID     int64
	Sequence   int
	Token      uuid.UUID
	Status     string
	LastError  string
	CreatedAt  time.Time
	SentAt     *time.Time
}

type Mailbox struct {
	ID           int64
	PublicID     uuid.UUID
	UserID       int64
	Address      string
	Provider     string
	Enabled      bool
	LastSyncAt   *time.Time
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	APIBaseURL   string
	APIToken     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type MailboxCreateParams struct {
	UserID       int64
	Address      string
	Provider     string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	APIBaseURL   string
	APIToken     string
}

// Sentiment labels assigned by the classifier.
const (
	SentimentInterested    = "interested"
	SentimentNeutral       = "neutral"
	SentimentNotInterested = "not_interested"
)

type InboundEmail struct {
	ID             int64
	PublicID       uuid.UUID
	MailboxID      int64
	Sender         string
	Subject        string
	TextBody       string
	MessageID      string
	ReceivedAt     time.Time
	Sentiment      string
	RequiresAction bool
	Processed      bool
	Archived       bool
	RepliedAt      *time.Time
	CreatedAt      time.Time
}

type InboundEmailCreateParams struct {
	MailboxID  int64
	Sender     string
	Subject    string
	TextBody   string
	MessageID  string
	ReceivedAt time.Time
}

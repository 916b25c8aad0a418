package mail

import (
	"context"
	"fmt"
	"time"

	"github.com/arbitrageos/campaignd/internal/models"
)

// InboundMessage is one message pulled from the external mailbox provider.
type InboundMessage struct {
	MessageID  string
	Sender     string
	Subject    string
	TextBody   string
	ReceivedAt time.Time
}

// Connector abstracts a single external mailbox. Fetching zero messages is
// not an error; provider failures surface as *FetchError / *SendError so
// callers can log and continue with the rest of the tick.
type Connector interface {
	FetchSince(ctx context.Context, mailbox *models.Mailbox, since time.Time) ([]InboundMessage, error)
	Send(ctx context.Context, mailbox *models.Mailbox, to, subject, body string) error
}

// FetchError wraps a provider failure while pulling new mail.
type FetchError struct {
	Mailbox string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Mailbox, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// SendError wraps a delivery failure for one outbound message.
type SendError struct {
	Mailbox   string
	Recipient string
	Err       error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send from %s to %s: %v", e.Mailbox, e.Recipient, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

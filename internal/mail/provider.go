package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/arbitrageos/campaignd/internal/models"
	"github.com/arbitrageos/campaignd/internal/ratelimit"
)

// ProviderConnector talks to the mailbox provider's HTTP API for message
// retrieval and delivers outbound mail over SMTP with the mailbox's own
// credentials. Outbound sends are paced per mailbox address so one campaign
// cannot exhaust a provider's sending quota in a single tick.
type ProviderConnector struct {
	httpClient  *http.Client
	sender      *SMTPSender
	sendLimiter *ratelimit.Limiter
}

func NewProviderConnector(sendLimiter *ratelimit.Limiter) *ProviderConnector {
	return &ProviderConnector{
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		sender:      NewSMTPSender(),
		sendLimiter: sendLimiter,
	}
}

type providerMessage struct {
	ID         string    `json:"id"`
	From       string    `json:"from"`
	Subject    string    `json:"subject"`
	TextBody   string    `json:"text_body"`
	ReceivedAt time.Time `json:"received_at"`
}

type providerMessagesResponse struct {
	Messages []providerMessage `json:"messages"`
}

func (c *ProviderConnector) FetchSince(ctx context.Context, mailbox *models.Mailbox, since time.Time) ([]InboundMessage, error) {
	if mailbox.APIBaseURL == "" {
		return nil, &FetchError{Mailbox: mailbox.Address, Err: fmt.Errorf("mailbox has no provider API configured")}
	}

	endpoint := fmt.Sprintf("%s/v1/mailboxes/%s/messages?since=%s",
		mailbox.APIBaseURL,
		url.PathEscape(mailbox.Address),
		url.QueryEscape(since.UTC().Format(time.RFC3339)),
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &FetchError{Mailbox: mailbox.Address, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+mailbox.APIToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{Mailbox: mailbox.Address, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &FetchError{
			Mailbox: mailbox.Address,
			Err:     fmt.Errorf("provider returned %d: %s", resp.StatusCode, string(body)),
		}
	}

	var payload providerMessagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &FetchError{Mailbox: mailbox.Address, Err: fmt.Errorf("decode response: %w", err)}
	}

	messages := make([]InboundMessage, 0, len(payload.Messages))
	for _, m := range payload.Messages {
		received := m.ReceivedAt
		if received.IsZero() {
			received = time.Now().UTC()
		}
		messages = append(messages, InboundMessage{
			MessageID:  m.ID,
			Sender:     m.From,
			Subject:    m.Subject,
			TextBody:   m.TextBody,
			ReceivedAt: received,
		})
	}
	return messages, nil
}

func (c *ProviderConnector) Send(ctx context.Context, mailbox *models.Mailbox, to, subject, body string) error {
	if c.sendLimiter != nil {
		if err := c.sendLimiter.Wait(ctx, mailbox.Address); err != nil {
			return &SendError{Mailbox: mailbox.Address, Recipient: to, Err: err}
		}
	}
	if err := c.sender.Send(mailbox, to, subject, body); err != nil {
		return &SendError{Mailbox: mailbox.Address, Recipient: to, Err: err}
	}
	return nil
}

package mailbox

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

type Service struct {
	mailboxes store.MailboxStore
}

func NewService(mailboxes store.MailboxStore) *Service {
	return &Service{mailboxes: mailboxes}
}

// Connect registers an external mailbox identity. The job only reads and
// syncs mailboxes; disconnecting one is a user action handled elsewhere.
func (s *Service) Connect(ctx context.Context, params models.MailboxCreateParams) (*models.Mailbox, error) {
	params.Address = strings.ToLower(strings.TrimSpace(params.Address))
	if params.Address == "" {
		return nil, errors.New("mailbox address must not be empty")
	}
	if _, err := mail.ParseAddress(params.Address); err != nil {
		return nil, fmt.Errorf("invalid mailbox address: %w", err)
	}
	if params.SMTPHost == "" {
		return nil, errors.New("smtp host must not be empty")
	}
	if params.SMTPPort <= 0 {
		params.SMTPPort = 587
	}

	mb, err := s.mailboxes.CreateMailbox(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create mailbox: %w", err)
	}
	return mb, nil
}

func (s *Service) List(ctx context.Context, userID int64) ([]models.Mailbox, error) {
	return s.mailboxes.ListMailboxesByUserID(ctx, userID)
}

func (s *Service) GetByPublicID(ctx context.Context, publicID uuid.UUID) (*models.Mailbox, error) {
	return s.mailboxes.GetMailboxByPublicID(ctx, publicID)
}

func (s *Service) SetEnabled(ctx context.Context, mailboxID int64, enabled bool) error {
	return s.mailboxes.SetMailboxEnabled(ctx, mailboxID, enabled)
}

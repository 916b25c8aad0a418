package mail

import (
	"fmt"

	"github.com/arbitrageos/campaignd/internal/models"
	gomail "gopkg.in/gomail.v2"
)

// SMTPSender delivers mail over SMTP with per-mailbox credentials. A dialer
// is built per send because each connected mailbox carries its own host and
// login.
type SMTPSender struct{}

func NewSMTPSender() *SMTPSender {
	return &SMTPSender{}
}

func (s *SMTPSender) Send(mailbox *models.Mailbox, to, subject, body string) error {
	if mailbox.SMTPHost == "" {
		return fmt.Errorf("mailbox %s has no SMTP host configured", mailbox.Address)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", mailbox.Address)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	d := gomail.NewDialer(mailbox.SMTPHost, mailbox.SMTPPort, mailbox.SMTPUsername, mailbox.SMTPPassword)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return nil
}

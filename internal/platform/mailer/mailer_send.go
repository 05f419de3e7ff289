package mailer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mailersend/mailersend-go"

	"github.com/diagnosis/autoescola/pkg/config"
	"github.com/diagnosis/autoescola/pkg/logger"
)

var ErrNotConfigured = errors.New("mailersend not configured (MAILERSEND_API_KEY and MAILER_FROM required)")

// MailerSend delivers through the MailerSend API.
type MailerSend struct {
	client  *mailersend.Mailersend
	from    mailersend.From
	timeout time.Duration
}

func NewMailerSend(cfg config.EmailConfig) (*MailerSend, error) {
	if cfg.MailerSendKey == "" || cfg.FromEmail == "" {
		return nil, ErrNotConfigured
	}
	return &MailerSend{
		client:  mailersend.NewMailersend(cfg.MailerSendKey),
		from:    mailersend.From{Name: cfg.FromName, Email: cfg.FromEmail},
		timeout: 10 * time.Second,
	}, nil
}

// Send returns the X-Message-Id MailerSend assigns.
func (m *MailerSend) Send(ctx context.Context, msg Message) (string, error) {
	if strings.TrimSpace(msg.ToEmail) == "" {
		return "", ErrNoRecipient
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	out := m.client.Email.NewMessage()
	out.SetFrom(m.from)
	out.SetRecipients([]mailersend.Recipient{{Name: msg.ToName, Email: msg.ToEmail}})
	out.SetSubject(msg.Subject)
	if strings.TrimSpace(msg.Text) != "" {
		out.SetText(msg.Text)
	}
	if strings.TrimSpace(msg.HTML) != "" {
		out.SetHTML(msg.HTML)
	}

	res, err := m.client.Email.Send(ctx, out)
	if err != nil {
		return "", fmt.Errorf("mailersend send: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		body, _ := io.ReadAll(res.Body)
		return "", fmt.Errorf("mailersend status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	id := res.Header.Get("X-Message-Id")
	logger.DebugContext(ctx, "Email accepted by MailerSend", "to", msg.ToEmail, "message_id", id)
	return id, nil
}

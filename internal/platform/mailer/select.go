package mailer

import (
	"github.com/diagnosis/autoescola/pkg/config"
	"github.com/diagnosis/autoescola/pkg/logger"
)

// FromConfig picks MailerSend, then SMTP, then the dev mailer. Dev mode
// always logs.
func FromConfig(cfg config.EmailConfig) Service {
	switch {
	case cfg.DevMode:
		logger.Info("Email dev mode enabled, messages will be logged")
		return NewDevMailer()
	case cfg.MailerSendKey != "":
		m, err := NewMailerSend(cfg)
		if err == nil {
			return m
		}
		logger.Warn("MailerSend disabled", "error", err)
	case cfg.SMTPHost != "":
		return NewSMTPMailer(cfg)
	}
	logger.Warn("No email provider configured, falling back to dev mailer")
	return NewDevMailer()
}

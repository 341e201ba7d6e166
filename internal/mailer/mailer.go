// Package mailer delivers single HTML emails through a configurable
// provider: Resend, SendGrid, or plain SMTP.
package mailer

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"standardthought/internal/config"
)

// Message holds the fields needed to send an email.
type Message struct {
	To      string
	From    string
	Subject string
	HTML    string

	// Headers are extra message headers such as List-Unsubscribe.
	Headers map[string]string
}

// Sender defines the interface each email provider must implement.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// New returns the Sender selected by cfg.EmailProvider.
func New(cfg *config.Config) (Sender, error) {
	client := &http.Client{Timeout: 15 * time.Second}
	switch cfg.EmailProvider {
	case "resend":
		if cfg.ResendKey == "" {
			return nil, fmt.Errorf("mailer: RESEND_API_KEY is required for the resend provider")
		}
		return NewResend(cfg.ResendKey, "", client), nil
	case "sendgrid":
		if cfg.SendGridKey == "" {
			return nil, fmt.Errorf("mailer: SENDGRID_API_KEY is required for the sendgrid provider")
		}
		return NewSendGrid(cfg.SendGridKey, "", client), nil
	case "smtp":
		if cfg.SMTPHost == "" {
			return nil, fmt.Errorf("mailer: SMTP_HOST is required for the smtp provider")
		}
		return NewSMTP(SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
		}), nil
	default:
		return nil, fmt.Errorf("mailer: unknown provider %q", cfg.EmailProvider)
	}
}

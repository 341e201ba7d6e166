package mailer

import (
	"context"
	"fmt"
	"maps"
	"mime"
	"net/mail"
	"net/smtp"
	"slices"
	"strings"
)

// SMTPConfig holds credentials for an SMTP server.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// SMTP sends email via SMTP using Go's standard library.
type SMTP struct {
	cfg      SMTPConfig
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTP creates an SMTP sender.
func NewSMTP(cfg SMTPConfig) *SMTP {
	return &SMTP{cfg: cfg, sendMail: smtp.SendMail}
}

func (p *SMTP) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if p.cfg.Username != "" {
		auth = smtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)
	}

	envelopeFrom := msg.From
	if addr, err := mail.ParseAddress(msg.From); err == nil {
		envelopeFrom = addr.Address
	}

	addr := fmt.Sprintf("%s:%d", p.cfg.Host, p.cfg.Port)
	if err := p.sendMail(addr, auth, envelopeFrom, []string{msg.To}, buildMIME(msg)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// headerValue keeps a header value on a single line.
var headerValue = strings.NewReplacer("\r", "", "\n", "")

// buildMIME renders the message headers and HTML body.
func buildMIME(msg Message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", msg.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	for _, k := range slices.Sorted(maps.Keys(msg.Headers)) {
		fmt.Fprintf(&b, "%s: %s\r\n", k, headerValue.Replace(msg.Headers[k]))
	}
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	b.WriteString(msg.HTML)
	return []byte(b.String())
}

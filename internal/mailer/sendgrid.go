package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
)

// SendGrid sends email via the SendGrid v3 Mail Send API.
type SendGrid struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewSendGrid creates a SendGrid sender. An empty baseURL uses the public API.
func NewSendGrid(apiKey, baseURL string, client *http.Client) *SendGrid {
	if baseURL == "" {
		baseURL = "https://api.sendgrid.com"
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &SendGrid{apiKey: apiKey, baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (p *SendGrid) Send(ctx context.Context, msg Message) error {
	// SendGrid wants the display name split from the address.
	from := map[string]string{"email": msg.From}
	if addr, err := mail.ParseAddress(msg.From); err == nil {
		from = map[string]string{"email": addr.Address}
		if addr.Name != "" {
			from["name"] = addr.Name
		}
	}

	payload := map[string]any{
		"personalizations": []map[string]any{
			{"to": []map[string]string{{"email": msg.To}}},
		},
		"from":    from,
		"subject": msg.Subject,
		"content": []map[string]string{
			{"type": "text/html", "value": msg.HTML},
		},
	}
	if len(msg.Headers) > 0 {
		payload["headers"] = msg.Headers
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal sendgrid payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v3/mail/send", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build sendgrid request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("sendgrid request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid returned status %d", resp.StatusCode)
	}
	return nil
}

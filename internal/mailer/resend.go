package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Resend sends email via the Resend HTTP API.
type Resend struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewResend creates a Resend sender. An empty baseURL uses the public API.
func NewResend(apiKey, baseURL string, client *http.Client) *Resend {
	if baseURL == "" {
		baseURL = "https://api.resend.com"
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Resend{apiKey: apiKey, baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type resendEmail struct {
	From    string            `json:"from"`
	To      []string          `json:"to"`
	Subject string            `json:"subject"`
	HTML    string            `json:"html"`
	Headers map[string]string `json:"headers,omitempty"`
}

func (r *Resend) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(resendEmail{
		From:    msg.From,
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Headers: msg.Headers,
	})
	if err != nil {
		return fmt.Errorf("marshal resend payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build resend request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("resend request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("resend returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}

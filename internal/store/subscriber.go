// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"standardthought/internal/models"
)

// SubscriberStore handles newsletter subscriber persistence.
type SubscriberStore struct {
	db *sql.DB
}

// NewSubscriberStore creates a new SubscriberStore.
func NewSubscriberStore(db *sql.DB) *SubscriberStore {
	return &SubscriberStore{db: db}
}

const subscriberColumns = `id, email, name, unsubscribe_token, unsubscribed, unsubscribed_at, created_at`

func scanSubscriber(scanner interface{ Scan(...any) error }) (*models.Subscriber, error) {
	var s models.Subscriber
	err := scanner.Scan(
		&s.ID, &s.Email, &s.Name, &s.UnsubscribeToken,
		&s.Unsubscribed, &s.UnsubscribedAt, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *SubscriberStore) query(ctx context.Context, query string, args ...any) ([]models.Subscriber, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.Subscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		items = append(items, *sub)
	}
	return items, rows.Err()
}

// ListActive returns every subscriber that can receive the newsletter.
func (s *SubscriberStore) ListActive(ctx context.Context) ([]models.Subscriber, error) {
	items, err := s.query(ctx, `
		SELECT `+subscriberColumns+`
		FROM newsletter_subscribers
		WHERE unsubscribed = FALSE AND email IS NOT NULL
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list active subscribers: %w", err)
	}
	return items, nil
}

// List returns all subscribers, newest first. Admin only.
func (s *SubscriberStore) List(ctx context.Context, limit, offset int) ([]models.Subscriber, error) {
	items, err := s.query(ctx, `
		SELECT `+subscriberColumns+`
		FROM newsletter_subscribers
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	return items, nil
}

// Subscribe adds an address or re-activates a previously unsubscribed one.
// A token is assigned when the row has none. The stored name is only
// replaced when a new one is given.
func (s *SubscriberStore) Subscribe(ctx context.Context, email string, name *string) (*models.Subscriber, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO newsletter_subscribers (email, name, unsubscribe_token)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO UPDATE SET
			name = COALESCE(EXCLUDED.name, newsletter_subscribers.name),
			unsubscribe_token = COALESCE(newsletter_subscribers.unsubscribe_token, EXCLUDED.unsubscribe_token),
			unsubscribed = FALSE,
			unsubscribed_at = NULL
		RETURNING `+subscriberColumns,
		email, name, newToken(),
	)
	sub, err := scanSubscriber(row)
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	return sub, nil
}

// Unsubscribe marks the subscriber owning token as unsubscribed. Returns nil
// if the token is unknown.
func (s *SubscriberStore) Unsubscribe(ctx context.Context, token string) (*models.Subscriber, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE newsletter_subscribers
		SET unsubscribed = TRUE, unsubscribed_at = COALESCE(unsubscribed_at, NOW())
		WHERE unsubscribe_token = $1
		RETURNING `+subscriberColumns,
		token,
	)
	sub, err := scanSubscriber(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unsubscribe: %w", err)
	}
	return sub, nil
}

// Stats returns subscriber totals for the admin dashboard.
func (s *SubscriberStore) Stats(ctx context.Context) (models.SubscriberStats, error) {
	var st models.SubscriberStats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE NOT unsubscribed),
		       COUNT(*) FILTER (WHERE unsubscribed)
		FROM newsletter_subscribers
	`).Scan(&st.Total, &st.Active, &st.Unsubscribed)
	if err != nil {
		return st, fmt.Errorf("subscriber stats: %w", err)
	}
	return st, nil
}

// newToken returns an opaque unsubscribe token.
func newToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

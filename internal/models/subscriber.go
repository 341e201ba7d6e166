// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Subscriber is a newsletter recipient. Rows with Unsubscribed set are
// excluded from every send.
type Subscriber struct {
	ID               uuid.UUID  `json:"id"`
	Email            string     `json:"email"`
	Name             *string    `json:"name,omitempty"`
	UnsubscribeToken *string    `json:"-"`
	Unsubscribed     bool       `json:"unsubscribed"`
	UnsubscribedAt   *time.Time `json:"unsubscribed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Greeting returns the subscriber's name, or fallback when none is stored.
func (s *Subscriber) Greeting(fallback string) string {
	if s.Name == nil || strings.TrimSpace(*s.Name) == "" {
		return fallback
	}
	return strings.TrimSpace(*s.Name)
}

// SubscriberStats summarizes the subscriber list for the admin dashboard.
type SubscriberStats struct {
	Total        int `json:"total"`
	Active       int `json:"active"`
	Unsubscribed int `json:"unsubscribed"`
}

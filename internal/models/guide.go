// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"time"

	"github.com/google/uuid"
)

// Guide is a paid downloadable guide. FileKey addresses the object in the
// private bucket and is never exposed publicly.
type Guide struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Slug        string    `json:"slug"`
	Description string    `json:"description"`
	PriceCents  int       `json:"price_cents"`
	FileKey     string    `json:"-"`
	CoverURL    *string   `json:"cover_url,omitempty"`
	Published   bool      `json:"published"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// GuidePurchase grants one email access to one guide via AccessToken.
type GuidePurchase struct {
	ID          uuid.UUID  `json:"id"`
	GuideID     uuid.UUID  `json:"guide_id"`
	Email       string     `json:"email"`
	AccessToken uuid.UUID  `json:"access_token"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Valid reports whether the grant is usable at the given time.
func (p *GuidePurchase) Valid(now time.Time) bool {
	return p.ExpiresAt == nil || now.Before(*p.ExpiresAt)
}

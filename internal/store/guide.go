// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"standardthought/internal/models"
)

// GuideStore handles paid guides and their purchase grants.
type GuideStore struct {
	db *sql.DB
}

// NewGuideStore creates a new GuideStore.
func NewGuideStore(db *sql.DB) *GuideStore {
	return &GuideStore{db: db}
}

const guideColumns = `id, title, slug, description, price_cents, file_key, cover_url,
	published, created_at, updated_at`

func scanGuide(scanner interface{ Scan(...any) error }) (*models.Guide, error) {
	var g models.Guide
	err := scanner.Scan(
		&g.ID, &g.Title, &g.Slug, &g.Description, &g.PriceCents, &g.FileKey,
		&g.CoverURL, &g.Published, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// ListPublished returns the guides shown in the storefront.
func (s *GuideStore) ListPublished(ctx context.Context) ([]models.Guide, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+guideColumns+` FROM guides WHERE published = TRUE ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list guides: %w", err)
	}
	defer rows.Close()

	var items []models.Guide
	for rows.Next() {
		g, err := scanGuide(rows)
		if err != nil {
			return nil, fmt.Errorf("scan guide: %w", err)
		}
		items = append(items, *g)
	}
	return items, rows.Err()
}

// FindByID retrieves a guide by ID. Returns nil if not found.
func (s *GuideStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Guide, error) {
	g, err := scanGuide(s.db.QueryRowContext(ctx,
		`SELECT `+guideColumns+` FROM guides WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find guide by id: %w", err)
	}
	return g, nil
}

// FindBySlug retrieves a published guide by slug. Returns nil if not found.
func (s *GuideStore) FindBySlug(ctx context.Context, slug string) (*models.Guide, error) {
	g, err := scanGuide(s.db.QueryRowContext(ctx,
		`SELECT `+guideColumns+` FROM guides WHERE slug = $1 AND published = TRUE`, slug))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find guide by slug: %w", err)
	}
	return g, nil
}

// Create inserts a guide.
func (s *GuideStore) Create(ctx context.Context, g *models.Guide) (*models.Guide, error) {
	created, err := scanGuide(s.db.QueryRowContext(ctx, `
		INSERT INTO guides (title, slug, description, price_cents, file_key, cover_url, published)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+guideColumns,
		g.Title, g.Slug, g.Description, g.PriceCents, g.FileKey, g.CoverURL, g.Published,
	))
	if err != nil {
		return nil, fmt.Errorf("create guide: %w", err)
	}
	return created, nil
}

// Grant records a purchase of guideID by email and returns it with a fresh
// access token. A zero ttl means the grant never expires.
func (s *GuideStore) Grant(ctx context.Context, guideID uuid.UUID, email string, ttl time.Duration) (*models.GuidePurchase, error) {
	var expires *time.Time
	if ttl > 0 {
		t := time.Now().Add(ttl)
		expires = &t
	}

	p := &models.GuidePurchase{}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO guide_purchases (guide_id, email, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, guide_id, email, access_token, expires_at, created_at
	`, guideID, strings.ToLower(strings.TrimSpace(email)), expires).Scan(
		&p.ID, &p.GuideID, &p.Email, &p.AccessToken, &p.ExpiresAt, &p.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("grant guide: %w", err)
	}
	return p, nil
}

// FindPurchase looks up a purchase by guide and access token. Returns nil if
// the token does not grant that guide.
func (s *GuideStore) FindPurchase(ctx context.Context, guideID, token uuid.UUID) (*models.GuidePurchase, error) {
	p := &models.GuidePurchase{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, guide_id, email, access_token, expires_at, created_at
		FROM guide_purchases
		WHERE guide_id = $1 AND access_token = $2
	`, guideID, token).Scan(
		&p.ID, &p.GuideID, &p.Email, &p.AccessToken, &p.ExpiresAt, &p.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find purchase: %w", err)
	}
	return p, nil
}

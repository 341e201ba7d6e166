// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"fmt"

	"standardthought/internal/models"
)

// CategoryStore manages categories in the database.
type CategoryStore struct {
	db *sql.DB
}

// NewCategoryStore returns a new CategoryStore.
func NewCategoryStore(db *sql.DB) *CategoryStore {
	return &CategoryStore{db: db}
}

// List returns all categories ordered by sort_order, with published post
// counts. Posts reference categories by name.
func (s *CategoryStore) List(ctx context.Context) ([]models.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.name, c.slug, c.description, c.sort_order, c.created_at,
		       COUNT(p.id) AS post_count
		FROM categories c
		LEFT JOIN posts p ON LOWER(p.category) = LOWER(c.name) AND p.published = TRUE
		GROUP BY c.id
		ORDER BY c.sort_order, c.name
	`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var items []models.Category
	for rows.Next() {
		var c models.Category
		err := rows.Scan(
			&c.ID, &c.Name, &c.Slug, &c.Description, &c.SortOrder, &c.CreatedAt,
			&c.PostCount,
		)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

// Create inserts a new category and returns it.
func (s *CategoryStore) Create(ctx context.Context, c *models.Category) (*models.Category, error) {
	result := &models.Category{}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO categories (name, slug, description, sort_order)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, slug, description, sort_order, created_at
	`, c.Name, c.Slug, c.Description, c.SortOrder).Scan(
		&result.ID, &result.Name, &result.Slug, &result.Description,
		&result.SortOrder, &result.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}
	return result, nil
}

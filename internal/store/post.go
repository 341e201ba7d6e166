// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"standardthought/internal/models"
)

// PostStore handles all post-related database operations.
type PostStore struct {
	db *sql.DB
}

// NewPostStore creates a new PostStore with the given database connection.
func NewPostStore(db *sql.DB) *PostStore {
	return &PostStore{db: db}
}

const postColumns = `id, title, slug, excerpt, body, image_url, thumbnail_url, category, tags,
	published, featured, created_at, updated_at`

// scanPost scans a row into a Post, decoding the jsonb tag array.
func scanPost(scanner interface{ Scan(...any) error }) (*models.Post, error) {
	var p models.Post
	var tags []byte
	err := scanner.Scan(
		&p.ID, &p.Title, &p.Slug, &p.Excerpt, &p.Body, &p.ImageURL, &p.ThumbnailURL,
		&p.Category, &tags, &p.Published, &p.Featured, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(tags, &p.Tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	return &p, nil
}

// encodeTags normalizes a tag list and encodes it for the jsonb column.
func encodeTags(tags []string) string {
	clean := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		clean = append(clean, t)
	}
	b, _ := json.Marshal(clean)
	return string(b)
}

func (s *PostStore) queryPosts(ctx context.Context, query string, args ...any) ([]models.Post, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		items = append(items, *p)
	}
	return items, rows.Err()
}

// ListPublished returns published posts matching the filter. This is the
// data contract of the public blog grid.
func (s *PostStore) ListPublished(ctx context.Context, f models.PostFilter) ([]models.Post, error) {
	query, args := buildPublishedQuery(f)
	items, err := s.queryPosts(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list published posts: %w", err)
	}
	return items, nil
}

// buildPublishedQuery assembles the filtered listing query. Kept separate
// from ListPublished so the SQL can be checked without a database.
func buildPublishedQuery(f models.PostFilter) (string, []any) {
	var (
		where = []string{"published = TRUE"}
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Category != "" {
		where = append(where, "LOWER(category) = LOWER("+arg(f.Category)+")")
	}
	if f.Tag != "" {
		where = append(where, "tags @> jsonb_build_array("+arg(strings.ToLower(f.Tag))+"::text)")
	}
	if f.Query != "" {
		p := arg("%" + escapeLike(f.Query) + "%")
		where = append(where, "(title ILIKE "+p+" OR excerpt ILIKE "+p+")")
	}
	if f.Featured != nil {
		where = append(where, "featured = "+arg(*f.Featured))
	}

	order := "created_at DESC"
	switch f.Sort {
	case models.PostSortOldest:
		order = "created_at ASC"
	case models.PostSortTitle:
		order = "LOWER(title) ASC, created_at DESC"
	}

	query := "SELECT " + postColumns + " FROM posts WHERE " +
		strings.Join(where, " AND ") + " ORDER BY " + order
	return query, args
}

// escapeLike escapes the LIKE wildcards in user input.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// ListRecentPublished returns published posts created at or after since,
// newest first, capped at limit.
func (s *PostStore) ListRecentPublished(ctx context.Context, since time.Time, limit int) ([]models.RecentPost, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, excerpt, slug, created_at, image_url
		FROM posts
		WHERE published = TRUE AND created_at >= $1
		ORDER BY created_at DESC
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent posts: %w", err)
	}
	defer rows.Close()

	var items []models.RecentPost
	for rows.Next() {
		var p models.RecentPost
		if err := rows.Scan(&p.ID, &p.Title, &p.Excerpt, &p.Slug, &p.CreatedAt, &p.ImageURL); err != nil {
			return nil, fmt.Errorf("scan recent post: %w", err)
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

// List returns every post regardless of status, newest first. Admin only.
func (s *PostStore) List(ctx context.Context) ([]models.Post, error) {
	items, err := s.queryPosts(ctx, `SELECT `+postColumns+` FROM posts ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return items, nil
}

// FindByID retrieves a post by its UUID. Returns nil if not found.
func (s *PostStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Post, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1`, id)
	p, err := scanPost(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find post by id: %w", err)
	}
	return p, nil
}

// FindBySlug retrieves a published post by its slug. Returns nil if not found.
func (s *PostStore) FindBySlug(ctx context.Context, slug string) (*models.Post, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE slug = $1 AND published = TRUE`, slug)
	p, err := scanPost(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find post by slug: %w", err)
	}
	return p, nil
}

// SlugExists checks whether a post with the given slug exists, optionally
// ignoring one post (for updates).
func (s *PostStore) SlugExists(ctx context.Context, slug string, exclude *uuid.UUID) (bool, error) {
	var exists bool
	var err error
	if exclude == nil {
		err = s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM posts WHERE slug = $1)`, slug).Scan(&exists)
	} else {
		err = s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM posts WHERE slug = $1 AND id <> $2)`, slug, *exclude).Scan(&exists)
	}
	if err != nil {
		return false, fmt.Errorf("check post slug: %w", err)
	}
	return exists, nil
}

// Create inserts a new post and returns it with the generated ID.
func (s *PostStore) Create(ctx context.Context, p *models.Post) (*models.Post, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO posts (title, slug, excerpt, body, image_url, thumbnail_url, category, tags, published, featured)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9, $10)
		RETURNING `+postColumns,
		p.Title, p.Slug, p.Excerpt, p.Body, p.ImageURL, p.ThumbnailURL, p.Category,
		encodeTags(p.Tags), p.Published, p.Featured,
	)
	created, err := scanPost(row)
	if err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	return created, nil
}

// Update modifies an existing post.
func (s *PostStore) Update(ctx context.Context, p *models.Post) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE posts SET
			title = $1, slug = $2, excerpt = $3, body = $4, image_url = $5,
			thumbnail_url = $6, category = $7, tags = $8::jsonb, published = $9,
			featured = $10, updated_at = NOW()
		WHERE id = $11
	`, p.Title, p.Slug, p.Excerpt, p.Body, p.ImageURL, p.ThumbnailURL, p.Category,
		encodeTags(p.Tags), p.Published, p.Featured, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update post: %w", err)
	}
	return nil
}

// SetCover replaces a post's cover image and its thumbnail. An empty
// thumbnailURL stores NULL.
func (s *PostStore) SetCover(ctx context.Context, id uuid.UUID, imageURL, thumbnailURL string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE posts SET image_url = $1, thumbnail_url = NULLIF($2, ''), updated_at = NOW()
		WHERE id = $3`, imageURL, thumbnailURL, id)
	if err != nil {
		return fmt.Errorf("set post cover: %w", err)
	}
	return nil
}

// Delete removes a post by ID.
func (s *PostStore) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	return nil
}

// Counts returns the total and published post counts.
func (s *PostStore) Counts(ctx context.Context) (total, published int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE published) FROM posts`).Scan(&total, &published)
	if err != nil {
		return 0, 0, fmt.Errorf("count posts: %w", err)
	}
	return total, published, nil
}

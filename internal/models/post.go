// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package models defines the data structures that map to database tables
// and provides the core types used throughout the application.
package models

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Post is a blog article. Tags are stored as a jsonb array.
type Post struct {
	ID       uuid.UUID `json:"id"`
	Title    string    `json:"title"`
	Slug     string    `json:"slug"`
	Excerpt  string    `json:"excerpt"`
	Body     string    `json:"body,omitempty"`
	ImageURL *string   `json:"image_url,omitempty"`
	// ThumbnailURL is the grid-sized copy of a generated cover.
	ThumbnailURL *string   `json:"thumbnail_url,omitempty"`
	Category     string    `json:"category"`
	Tags         []string  `json:"tags"`
	Published    bool      `json:"published"`
	Featured     bool      `json:"featured"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	// Rendered Markdown, populated by the public handler.
	BodyHTML string `json:"body_html,omitempty"`
}

// RecentPost is the read-only snapshot used to render newsletter cards.
type RecentPost struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Excerpt   string    `json:"excerpt"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
	ImageURL  *string   `json:"image_url,omitempty"`
}

// PostSort selects the ordering of the public post listing.
type PostSort string

const (
	PostSortNewest PostSort = "newest"
	PostSortOldest PostSort = "oldest"
	PostSortTitle  PostSort = "title"
)

// PostFilter narrows the published post listing. Empty fields match everything.
type PostFilter struct {
	Category string
	Tag      string
	Query    string
	Sort     PostSort
	Featured *bool
}

// ParsePostFilter builds a filter from query parameters. Unknown sort values
// fall back to newest, and a malformed featured flag is ignored.
func ParsePostFilter(q url.Values) PostFilter {
	f := PostFilter{
		Category: strings.TrimSpace(q.Get("category")),
		Tag:      strings.TrimSpace(q.Get("tag")),
		Query:    strings.TrimSpace(q.Get("q")),
		Sort:     PostSort(q.Get("sort")),
	}
	if strings.EqualFold(f.Category, "all") {
		f.Category = ""
	}
	switch f.Sort {
	case PostSortNewest, PostSortOldest, PostSortTitle:
	default:
		f.Sort = PostSortNewest
	}
	if v := q.Get("featured"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			f.Featured = &b
		}
	}
	return f
}

// CacheKey returns a stable key for caching the listing this filter produces.
func (f PostFilter) CacheKey() string {
	v := url.Values{}
	if f.Category != "" {
		v.Set("category", f.Category)
	}
	if f.Tag != "" {
		v.Set("tag", f.Tag)
	}
	if f.Query != "" {
		v.Set("q", strings.ToLower(f.Query))
	}
	if f.Featured != nil {
		v.Set("featured", strconv.FormatBool(*f.Featured))
	}
	v.Set("sort", string(f.Sort))
	// Encode sorts keys, so parameter order in the request does not matter.
	return "posts?" + v.Encode()
}

// Category groups posts. PostCount is populated by store methods.
type Category struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description"`
	SortOrder   int       `json:"sort_order"`
	CreatedAt   time.Time `json:"created_at"`

	PostCount int `json:"post_count"`
}

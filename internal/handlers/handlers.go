// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package handlers contains the HTTP handlers for Standardthought. Handlers
// are grouped by surface (edge functions, public API, admin API) and receive
// their dependencies through narrow interfaces so they can be exercised
// without a database.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"standardthought/internal/ai"
	"standardthought/internal/models"
	"standardthought/internal/newsletter"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// ImageGenerator runs the cover image pipeline.
type ImageGenerator interface {
	Generate(ctx context.Context, req ai.ImageRequest) (*ai.ImageResult, error)
}

// NewsletterRunner sends the weekly newsletter.
type NewsletterRunner interface {
	Dispatch(ctx context.Context, run newsletter.RunOptions) (*newsletter.Outcome, error)
}

// PostStore is the post persistence used by the public and admin API.
type PostStore interface {
	ListPublished(ctx context.Context, f models.PostFilter) ([]models.Post, error)
	FindBySlug(ctx context.Context, slug string) (*models.Post, error)
	List(ctx context.Context) ([]models.Post, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Post, error)
	SlugExists(ctx context.Context, slug string, exclude *uuid.UUID) (bool, error)
	Create(ctx context.Context, p *models.Post) (*models.Post, error)
	Update(ctx context.Context, p *models.Post) error
	SetCover(ctx context.Context, id uuid.UUID, imageURL, thumbnailURL string) error
	Delete(ctx context.Context, id uuid.UUID) error
	Counts(ctx context.Context) (total, published int, err error)
}

// CategoryStore lists blog categories.
type CategoryStore interface {
	List(ctx context.Context) ([]models.Category, error)
}

// SubscriberStore manages newsletter subscribers.
type SubscriberStore interface {
	Subscribe(ctx context.Context, email string, name *string) (*models.Subscriber, error)
	Unsubscribe(ctx context.Context, token string) (*models.Subscriber, error)
	List(ctx context.Context, limit, offset int) ([]models.Subscriber, error)
	Stats(ctx context.Context) (models.SubscriberStats, error)
}

// GuideStore manages paid guides and their purchases.
type GuideStore interface {
	ListPublished(ctx context.Context) ([]models.Guide, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Guide, error)
	FindBySlug(ctx context.Context, slug string) (*models.Guide, error)
	Create(ctx context.Context, g *models.Guide) (*models.Guide, error)
	Grant(ctx context.Context, guideID uuid.UUID, email string, ttl time.Duration) (*models.GuidePurchase, error)
	FindPurchase(ctx context.Context, guideID, token uuid.UUID) (*models.GuidePurchase, error)
}

// ResponseCache stores rendered public responses.
type ResponseCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, body []byte)
	Invalidate(ctx context.Context, key string)
	InvalidateAll(ctx context.Context)
}

// noCache is used when no response cache is configured.
type noCache struct{}

func (noCache) Get(context.Context, string) ([]byte, bool) { return nil, false }
func (noCache) Set(context.Context, string, []byte)        {}
func (noCache) Invalidate(context.Context, string)         {}
func (noCache) InvalidateAll(context.Context)              {}

// ObjectStorage holds cover images and guide files.
type ObjectStorage interface {
	PutPublic(ctx context.Context, key, contentType string, data []byte) (string, error)
	DeletePublicURL(ctx context.Context, rawURL string) error
	GuideDownloadURL(ctx context.Context, key string, expires time.Duration) (string, error)
}

// writeJSON serializes data as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("write json response failed", "error", err)
	}
}

// writeRawJSON writes an already-encoded (usually cached) body.
func writeRawJSON(w http.ResponseWriter, body []byte, cacheStatus string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Cache", cacheStatus)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON reads a JSON body into dst. An empty body leaves dst untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// encodeForCache marshals v for both the response and the cache entry.
func encodeForCache(v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(body, '\n'), nil
}

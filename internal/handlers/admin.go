// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"standardthought/internal/ai"
	"standardthought/internal/imaging"
	"standardthought/internal/markdown"
	"standardthought/internal/models"
	"standardthought/internal/slug"
	"standardthought/internal/storage"
)

// excerptLen is the length of excerpts derived from the post body.
const excerptLen = 200

// Admin groups the bearer-token protected content management API.
type Admin struct {
	posts       PostStore
	subscribers SubscriberStore
	guides      GuideStore
	images      ImageGenerator
	storage     ObjectStorage
	cache       ResponseCache
	httpClient  *http.Client
	siteURL     string
}

// NewAdmin creates the admin handler group. objects may be nil when S3 is
// not configured, in which case cover generation is unavailable.
func NewAdmin(posts PostStore, subscribers SubscriberStore, guides GuideStore, images ImageGenerator, objects ObjectStorage, rc ResponseCache, siteURL string) *Admin {
	if rc == nil {
		rc = noCache{}
	}
	return &Admin{
		posts:       posts,
		subscribers: subscribers,
		guides:      guides,
		images:      images,
		storage:     objects,
		cache:       rc,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		siteURL:     strings.TrimRight(siteURL, "/"),
	}
}

// Stats handles GET /admin/api/stats.
func (a *Admin) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	total, published, err := a.posts.Counts(ctx)
	if err != nil {
		slog.Error("count posts failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load stats")
		return
	}
	subs, err := a.subscribers.Stats(ctx)
	if err != nil {
		slog.Error("subscriber stats failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load stats")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"posts": map[string]int{
			"total":     total,
			"published": published,
			"drafts":    total - published,
		},
		"subscribers": subs,
	})
}

// ListPosts handles GET /admin/api/posts, drafts included.
func (a *Admin) ListPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := a.posts.List(r.Context())
	if err != nil {
		slog.Error("list posts failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load posts")
		return
	}
	if posts == nil {
		posts = []models.Post{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": posts})
}

type postInput struct {
	Title     string   `json:"title"`
	Slug      string   `json:"slug"`
	Excerpt   string   `json:"excerpt"`
	Body      string   `json:"body"`
	ImageURL  *string  `json:"image_url"`
	Category  string   `json:"category"`
	Tags      []string `json:"tags"`
	Published bool     `json:"published"`
	Featured  bool     `json:"featured"`
}

// apply copies the input onto p. The slug is resolved separately; an absent
// image_url keeps the current cover and thumbnail, any other value replaces
// the cover and drops the thumbnail.
func (in *postInput) apply(p *models.Post) {
	p.Title = strings.TrimSpace(in.Title)
	p.Body = in.Body
	p.Excerpt = strings.TrimSpace(in.Excerpt)
	if p.Excerpt == "" {
		p.Excerpt = markdown.Excerpt(in.Body, excerptLen)
	}
	if in.ImageURL != nil {
		p.ThumbnailURL = nil
		if raw := strings.TrimSpace(*in.ImageURL); raw == "" {
			p.ImageURL = nil
		} else {
			p.ImageURL = &raw
		}
	}
	p.Category = strings.TrimSpace(in.Category)
	p.Tags = in.Tags
	p.Published = in.Published
	p.Featured = in.Featured
}

// resolveSlug returns the slug for a post. An explicit slug must be free;
// otherwise one is derived from the title and suffixed until unique.
func (a *Admin) resolveSlug(ctx context.Context, in *postInput, exclude *uuid.UUID) (string, bool, error) {
	exists := func(ctx context.Context, s string) (bool, error) {
		return a.posts.SlugExists(ctx, s, exclude)
	}

	if raw := strings.TrimSpace(in.Slug); raw != "" {
		s := slug.Generate(raw)
		if s == "" {
			return "", false, nil
		}
		taken, err := exists(ctx, s)
		if err != nil || taken {
			return "", false, err
		}
		return s, true, nil
	}

	s, err := slug.Unique(ctx, in.Title, exists)
	if err != nil {
		return "", false, err
	}
	return s, true, nil
}

// CreatePost handles POST /admin/api/posts.
func (a *Admin) CreatePost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var in postInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if msg := validatePost(&in); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	s, ok, err := a.resolveSlug(ctx, &in, nil)
	if err != nil {
		slog.Error("resolve slug failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create post")
		return
	}
	if !ok {
		writeError(w, http.StatusConflict, "Slug is invalid or already in use")
		return
	}

	post := &models.Post{Slug: s}
	in.apply(post)

	created, err := a.posts.Create(ctx, post)
	if err != nil {
		slog.Error("create post failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create post")
		return
	}

	a.cache.InvalidateAll(ctx)
	slog.Info("post created", "post_id", created.ID, "slug", created.Slug)
	writeJSON(w, http.StatusCreated, created)
}

// UpdatePost handles PUT /admin/api/posts/{id}.
func (a *Admin) UpdatePost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	post, ok := a.loadPost(w, r)
	if !ok {
		return
	}

	var in postInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if msg := validatePost(&in); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	if strings.TrimSpace(in.Slug) == "" {
		in.Slug = post.Slug
	}
	s, ok, err := a.resolveSlug(ctx, &in, &post.ID)
	if err != nil {
		slog.Error("resolve slug failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to update post")
		return
	}
	if !ok {
		writeError(w, http.StatusConflict, "Slug is invalid or already in use")
		return
	}

	post.Slug = s
	in.apply(post)

	if err := a.posts.Update(ctx, post); err != nil {
		slog.Error("update post failed", "error", err, "post_id", post.ID)
		writeError(w, http.StatusInternalServerError, "Failed to update post")
		return
	}

	a.cache.InvalidateAll(ctx)
	writeJSON(w, http.StatusOK, post)
}

// DeletePost handles DELETE /admin/api/posts/{id}. A generated cover is
// removed from storage as well.
func (a *Admin) DeletePost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	post, ok := a.loadPost(w, r)
	if !ok {
		return
	}

	if err := a.posts.Delete(ctx, post.ID); err != nil {
		slog.Error("delete post failed", "error", err, "post_id", post.ID)
		writeError(w, http.StatusInternalServerError, "Failed to delete post")
		return
	}

	if a.storage != nil {
		a.deleteCover(ctx, post, "")
	}

	a.cache.InvalidateAll(ctx)
	slog.Info("post deleted", "post_id", post.ID)
	w.WriteHeader(http.StatusNoContent)
}

// GenerateCover handles POST /admin/api/posts/{id}/cover. It runs the image
// pipeline, stores the original and a thumbnail in the public bucket and
// points the post at the new cover. A degraded pipeline result leaves the
// post untouched.
func (a *Admin) GenerateCover(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	post, ok := a.loadPost(w, r)
	if !ok {
		return
	}
	if a.storage == nil {
		writeError(w, http.StatusServiceUnavailable, "Object storage is not configured. Cannot save generated images.")
		return
	}

	var req ai.ImageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		req.Prompt = fmt.Sprintf("Editorial cover illustration for a personal finance article titled %q", post.Title)
	}

	result, err := a.images.Generate(ctx, req)
	if err != nil {
		var failure *ai.ImageFailure
		switch {
		case errors.Is(err, ai.ErrAPIKeyMissing):
			writeError(w, http.StatusInternalServerError, err.Error())
		case errors.As(err, &failure):
			body := failureBody(failure)
			body["updated"] = false
			writeJSON(w, http.StatusAccepted, body)
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	src, err := imaging.Load(ctx, a.httpClient, result.ImageURL)
	if err != nil {
		slog.Error("load generated cover failed", "error", err, "model", result.Model)
		writeError(w, http.StatusBadGateway, "Generated image could not be downloaded")
		return
	}

	thumb, err := imaging.Thumbnail(src.Data, imaging.ThumbWidth)
	if err != nil {
		slog.Error("decode generated cover failed", "error", err, "model", result.Model)
		writeError(w, http.StatusBadGateway, "Generated image could not be decoded")
		return
	}

	origKey, thumbKey := storage.CoverKeys(post.ID, src.Ext())
	imageURL, err := a.storage.PutPublic(ctx, origKey, src.ContentType, src.Data)
	if err != nil {
		slog.Error("cover upload failed", "error", err, "key", origKey)
		writeError(w, http.StatusInternalServerError, "Failed to upload generated image")
		return
	}

	// Without a thumbnail the grid falls back to the full cover.
	thumbURL, err := a.storage.PutPublic(ctx, thumbKey, thumb.ContentType, thumb.Data)
	if err != nil {
		slog.Warn("cover thumbnail upload failed", "error", err, "key", thumbKey)
		thumbURL = ""
	}

	if err := a.posts.SetCover(ctx, post.ID, imageURL, thumbURL); err != nil {
		slog.Error("set post cover failed", "error", err, "post_id", post.ID)
		writeError(w, http.StatusInternalServerError, "Failed to save cover")
		return
	}

	a.deleteCover(ctx, post, imageURL)

	a.cache.InvalidateAll(ctx)
	slog.Info("cover generated", "post_id", post.ID, "model", result.Model)
	writeJSON(w, http.StatusOK, map[string]any{
		"updated":        true,
		"image_url":      imageURL,
		"thumbnail_url":  thumbURL,
		"model":          result.Model,
		"revised_prompt": result.RevisedPrompt,
	})
}

// deleteCover removes the post's stored cover and thumbnail unless they
// equal keep. URLs outside the public bucket are ignored by storage.
func (a *Admin) deleteCover(ctx context.Context, post *models.Post, keep string) {
	for _, u := range []*string{post.ImageURL, post.ThumbnailURL} {
		if u == nil || *u == "" || *u == keep {
			continue
		}
		if err := a.storage.DeletePublicURL(ctx, *u); err != nil {
			slog.Warn("delete cover failed", "error", err, "post_id", post.ID, "url", *u)
		}
	}
}

// ListSubscribers handles GET /admin/api/subscribers?limit=&offset=.
func (a *Admin) ListSubscribers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := queryInt(r, "limit", 50, 1, 500)
	offset := queryInt(r, "offset", 0, 0, 1<<30)

	subs, err := a.subscribers.List(ctx, limit, offset)
	if err != nil {
		slog.Error("list subscribers failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load subscribers")
		return
	}
	if subs == nil {
		subs = []models.Subscriber{}
	}
	stats, err := a.subscribers.Stats(ctx)
	if err != nil {
		slog.Error("subscriber stats failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load subscribers")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"subscribers": subs,
		"stats":       stats,
		"limit":       limit,
		"offset":      offset,
	})
}

type guideInput struct {
	Title       string  `json:"title"`
	Slug        string  `json:"slug"`
	Description string  `json:"description"`
	PriceCents  int     `json:"price_cents"`
	FileKey     string  `json:"file_key"`
	CoverURL    *string `json:"cover_url"`
	Published   bool    `json:"published"`
}

// CreateGuide handles POST /admin/api/guides. The file itself is uploaded
// to the private bucket out of band; FileKey points at it.
func (a *Admin) CreateGuide(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var in guideInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	in.Title = strings.TrimSpace(in.Title)
	in.FileKey = strings.TrimSpace(in.FileKey)
	switch {
	case in.Title == "":
		writeError(w, http.StatusBadRequest, "Title is required.")
		return
	case in.FileKey == "":
		writeError(w, http.StatusBadRequest, "File key is required.")
		return
	case in.PriceCents < 0:
		writeError(w, http.StatusBadRequest, "Price cannot be negative.")
		return
	}

	s := slug.Generate(in.Slug)
	if s == "" {
		s = slug.Generate(in.Title)
	}
	if s == "" {
		writeError(w, http.StatusBadRequest, "Slug is invalid.")
		return
	}

	created, err := a.guides.Create(ctx, &models.Guide{
		Title:       in.Title,
		Slug:        s,
		Description: strings.TrimSpace(in.Description),
		PriceCents:  in.PriceCents,
		FileKey:     in.FileKey,
		CoverURL:    in.CoverURL,
		Published:   in.Published,
	})
	if err != nil {
		slog.Error("create guide failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create guide")
		return
	}

	a.cache.InvalidateAll(ctx)
	writeJSON(w, http.StatusCreated, created)
}

type grantInput struct {
	Email         string `json:"email"`
	ExpiresInDays int    `json:"expires_in_days"`
}

// GrantGuide handles POST /admin/api/guides/{id}/grants and returns the
// access token plus a ready-to-send download link.
func (a *Admin) GrantGuide(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid guide ID")
		return
	}

	var in grantInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	email := normalizeEmail(in.Email)
	if email == "" {
		writeError(w, http.StatusBadRequest, "A valid email address is required")
		return
	}
	if in.ExpiresInDays < 0 || in.ExpiresInDays > maxGrantDays {
		writeError(w, http.StatusBadRequest, "expires_in_days must be between 0 and 3,650")
		return
	}

	guide, err := a.guides.FindByID(ctx, id)
	if err != nil {
		slog.Error("find guide failed", "error", err, "guide_id", id)
		writeError(w, http.StatusInternalServerError, "Failed to load guide")
		return
	}
	if guide == nil {
		writeError(w, http.StatusNotFound, "Guide not found")
		return
	}

	purchase, err := a.guides.Grant(ctx, guide.ID, email, time.Duration(in.ExpiresInDays)*24*time.Hour)
	if err != nil {
		slog.Error("grant guide failed", "error", err, "guide_id", guide.ID)
		writeError(w, http.StatusInternalServerError, "Failed to grant access")
		return
	}

	link := fmt.Sprintf("%s/api/guides/%s/download?token=%s",
		a.siteURL, url.PathEscape(guide.Slug), purchase.AccessToken)
	writeJSON(w, http.StatusCreated, map[string]any{
		"purchase":     purchase,
		"download_url": link,
	})
}

// loadPost resolves the {id} URL parameter. It writes the error response
// itself and reports whether the handler should continue.
func (a *Admin) loadPost(w http.ResponseWriter, r *http.Request) (*models.Post, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid post ID")
		return nil, false
	}

	post, err := a.posts.FindByID(r.Context(), id)
	if err != nil {
		slog.Error("find post failed", "error", err, "post_id", id)
		writeError(w, http.StatusInternalServerError, "Failed to load post")
		return nil, false
	}
	if post == nil {
		writeError(w, http.StatusNotFound, "Post not found")
		return nil, false
	}
	return post, true
}

// queryInt parses an integer query parameter clamped to [lo, hi].
func queryInt(r *http.Request, key string, def, lo, hi int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return max(lo, min(v, hi))
}

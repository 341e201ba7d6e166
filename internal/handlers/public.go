// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"encoding/xml"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"standardthought/internal/cache"
	"standardthought/internal/markdown"
	"standardthought/internal/models"
	"standardthought/internal/storage"
)

// Cache keys for public responses that do not depend on the request.
const (
	categoriesKey = "categories"
	guidesKey     = "guides"
	sitemapKey    = "sitemap.xml"
)

// Public serves the read-only site API. It checks the Valkey response cache
// before hitting Postgres and stores the encoded body on a miss.
type Public struct {
	posts       PostStore
	categories  CategoryStore
	subscribers SubscriberStore
	guides      GuideStore
	storage     ObjectStorage
	cache       ResponseCache
	siteURL     string
	now         func() time.Time
}

// NewPublic creates the public handler group. objects may be nil when S3 is
// not configured; rc may be nil to disable caching.
func NewPublic(posts PostStore, categories CategoryStore, subscribers SubscriberStore, guides GuideStore, objects ObjectStorage, rc ResponseCache, siteURL string) *Public {
	if rc == nil {
		rc = noCache{}
	}
	return &Public{
		posts:       posts,
		categories:  categories,
		subscribers: subscribers,
		guides:      guides,
		storage:     objects,
		cache:       rc,
		siteURL:     strings.TrimRight(siteURL, "/"),
		now:         time.Now,
	}
}

// ListPosts handles GET /api/posts with the blog grid's filter and sort
// parameters. Bodies are omitted from the listing.
func (p *Public) ListPosts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter := models.ParsePostFilter(r.URL.Query())
	key := filter.CacheKey()

	if cached, ok := p.cache.Get(ctx, key); ok {
		writeRawJSON(w, cached, "HIT")
		return
	}

	posts, err := p.posts.ListPublished(ctx, filter)
	if err != nil {
		slog.Error("list published posts failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load posts")
		return
	}
	if posts == nil {
		posts = []models.Post{}
	}
	for i := range posts {
		posts[i].Body = ""
	}

	body, err := encodeForCache(map[string]any{"posts": posts, "count": len(posts)})
	if err != nil {
		slog.Error("encode posts failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load posts")
		return
	}
	p.cache.Set(ctx, key, body)
	writeRawJSON(w, body, "MISS")
}

// GetPost handles GET /api/posts/{slug}, rendering the Markdown body.
func (p *Public) GetPost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	slugParam := chi.URLParam(r, "slug")
	key := cache.PostKey(slugParam)

	if cached, ok := p.cache.Get(ctx, key); ok {
		writeRawJSON(w, cached, "HIT")
		return
	}

	post, err := p.posts.FindBySlug(ctx, slugParam)
	if err != nil {
		slog.Error("find post by slug failed", "error", err, "slug", slugParam)
		writeError(w, http.StatusInternalServerError, "Failed to load post")
		return
	}
	if post == nil {
		writeError(w, http.StatusNotFound, "Post not found")
		return
	}

	post.BodyHTML, err = markdown.ToHTML(post.Body)
	if err != nil {
		slog.Error("render post markdown failed", "error", err, "slug", slugParam)
		writeError(w, http.StatusInternalServerError, "Failed to render post")
		return
	}

	body, err := encodeForCache(post)
	if err != nil {
		slog.Error("encode post failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load post")
		return
	}
	p.cache.Set(ctx, key, body)
	writeRawJSON(w, body, "MISS")
}

// ListCategories handles GET /api/categories.
func (p *Public) ListCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if cached, ok := p.cache.Get(ctx, categoriesKey); ok {
		writeRawJSON(w, cached, "HIT")
		return
	}

	cats, err := p.categories.List(ctx)
	if err != nil {
		slog.Error("list categories failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load categories")
		return
	}
	if cats == nil {
		cats = []models.Category{}
	}

	body, err := encodeForCache(map[string]any{"categories": cats})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load categories")
		return
	}
	p.cache.Set(ctx, categoriesKey, body)
	writeRawJSON(w, body, "MISS")
}

type subscribeRequest struct {
	Email string  `json:"email"`
	Name  *string `json:"name"`
}

// Subscribe handles POST /api/newsletter/subscribe. Subscribing again with
// an unsubscribed address re-activates it.
func (p *Public) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	email := normalizeEmail(req.Email)
	if email == "" {
		writeError(w, http.StatusBadRequest, "A valid email address is required")
		return
	}
	name, msg := normalizeName(req.Name)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	sub, err := p.subscribers.Subscribe(r.Context(), email, name)
	if err != nil {
		slog.Error("subscribe failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Could not subscribe, please try again later")
		return
	}

	slog.Info("newsletter signup", "subscriber_id", sub.ID)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Thanks for subscribing! Look out for our next weekly issue.",
	})
}

// ListGuides handles GET /api/guides.
func (p *Public) ListGuides(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if cached, ok := p.cache.Get(ctx, guidesKey); ok {
		writeRawJSON(w, cached, "HIT")
		return
	}

	guides, err := p.guides.ListPublished(ctx)
	if err != nil {
		slog.Error("list guides failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load guides")
		return
	}
	if guides == nil {
		guides = []models.Guide{}
	}

	body, err := encodeForCache(map[string]any{"guides": guides})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load guides")
		return
	}
	p.cache.Set(ctx, guidesKey, body)
	writeRawJSON(w, body, "MISS")
}

// DownloadGuide handles GET /api/guides/{slug}/download?token=... and
// redirects a valid purchaser to a short-lived presigned URL.
func (p *Public) DownloadGuide(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	slugParam := chi.URLParam(r, "slug")

	token, err := uuid.Parse(r.URL.Query().Get("token"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "A valid access token is required")
		return
	}

	guide, err := p.guides.FindBySlug(ctx, slugParam)
	if err != nil {
		slog.Error("find guide failed", "error", err, "slug", slugParam)
		writeError(w, http.StatusInternalServerError, "Failed to load guide")
		return
	}
	if guide == nil || !guide.Published {
		writeError(w, http.StatusNotFound, "Guide not found")
		return
	}

	purchase, err := p.guides.FindPurchase(ctx, guide.ID, token)
	if err != nil {
		slog.Error("find guide purchase failed", "error", err, "guide_id", guide.ID)
		writeError(w, http.StatusInternalServerError, "Failed to verify access")
		return
	}
	if purchase == nil || !purchase.Valid(p.now()) {
		writeError(w, http.StatusForbidden, "Invalid or expired access token")
		return
	}

	if p.storage == nil {
		writeError(w, http.StatusServiceUnavailable, "Downloads are temporarily unavailable")
		return
	}

	link, err := p.storage.GuideDownloadURL(ctx, guide.FileKey, storage.GuideLinkTTL)
	if err != nil {
		slog.Error("presign guide download failed", "error", err, "guide_id", guide.ID)
		writeError(w, http.StatusInternalServerError, "Failed to prepare download")
		return
	}

	slog.Info("guide download", "guide_id", guide.ID, "purchase_id", purchase.ID)
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, link, http.StatusFound)
}

type sitemapURL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod,omitempty"`
	ChangeFreq string `xml:"changefreq,omitempty"`
	Priority   string `xml:"priority,omitempty"`
}

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

// Sitemap handles GET /sitemap.xml, listing static pages, every published
// post and every published guide.
func (p *Public) Sitemap(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if cached, ok := p.cache.Get(ctx, sitemapKey); ok {
		writeXML(w, cached, "HIT")
		return
	}

	posts, err := p.posts.ListPublished(ctx, models.PostFilter{Sort: models.PostSortNewest})
	if err != nil {
		slog.Error("sitemap posts failed", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	guides, err := p.guides.ListPublished(ctx)
	if err != nil {
		slog.Error("sitemap guides failed", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	set := sitemapURLSet{XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9"}
	for _, page := range []struct{ path, freq, prio string }{
		{"/", "daily", "1.0"},
		{"/blog", "daily", "0.9"},
		{"/guides", "weekly", "0.7"},
		{"/about", "monthly", "0.5"},
	} {
		set.URLs = append(set.URLs, sitemapURL{Loc: p.siteURL + page.path, ChangeFreq: page.freq, Priority: page.prio})
	}
	for _, post := range posts {
		set.URLs = append(set.URLs, sitemapURL{
			Loc:     p.siteURL + "/blog/" + post.Slug,
			LastMod: post.UpdatedAt.UTC().Format("2006-01-02"),
		})
	}
	for _, g := range guides {
		set.URLs = append(set.URLs, sitemapURL{
			Loc:     p.siteURL + "/guides/" + g.Slug,
			LastMod: g.UpdatedAt.UTC().Format("2006-01-02"),
		})
	}

	out, err := xml.MarshalIndent(set, "", "  ")
	if err != nil {
		slog.Error("encode sitemap failed", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	body := append([]byte(xml.Header), out...)
	p.cache.Set(ctx, sitemapKey, body)
	writeXML(w, body, "MISS")
}

func writeXML(w http.ResponseWriter, body []byte, cacheStatus string) {
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Header().Set("X-Cache", cacheStatus)
	_, _ = w.Write(body)
}

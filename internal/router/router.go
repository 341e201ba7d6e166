// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package router sets up all HTTP routes and middleware chains for
// Standardthought. Routes are organized into the edge functions, the public
// JSON API and the token-protected admin API.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"standardthought/internal/handlers"
	"standardthought/internal/middleware"
)

// Handlers groups the handler sets served by the router.
type Handlers struct {
	Functions *handlers.Functions
	Public    *handlers.Public
	Admin     *handlers.Admin
}

// Options carries the access control settings and rate limiters. A nil
// limiter leaves its route unlimited.
type Options struct {
	SiteURL        string
	AdminTokenHash string
	CronSecret     string
	HSTS           bool

	ImageLimiter     *middleware.RateLimiter
	SubscribeLimiter *middleware.RateLimiter
}

// New creates and returns the configured Chi router with all middleware
// and route groups wired up.
func New(h Handlers, opts Options) chi.Router {
	r := chi.NewRouter()

	// Global middleware, applied to every request.
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.SecureHeaders(opts.HSTS))

	r.Get("/health", healthHandler)

	// Edge functions called by the frontend and the scheduler.
	r.Route("/functions/v1", func(r chi.Router) {
		r.Use(middleware.CORS)

		r.With(limit(opts.ImageLimiter)).Post("/generate-image", h.Functions.GenerateImage)
		r.With(middleware.CronAuth(opts.CronSecret)).Post("/send-weekly-newsletter", h.Functions.SendWeeklyNewsletter)

		unsubscribe := h.Functions.Unsubscribe(opts.SiteURL)
		r.Get("/unsubscribe", unsubscribe)
		r.Post("/unsubscribe", unsubscribe)
	})

	// Public JSON API.
	r.Route("/api", func(r chi.Router) {
		r.Get("/posts", h.Public.ListPosts)
		r.Get("/posts/{slug}", h.Public.GetPost)
		r.Get("/categories", h.Public.ListCategories)
		r.Get("/guides", h.Public.ListGuides)
		r.Get("/guides/{slug}/download", h.Public.DownloadGuide)
		r.With(limit(opts.SubscribeLimiter)).Post("/newsletter/subscribe", h.Public.Subscribe)
	})

	r.Get("/sitemap.xml", h.Public.Sitemap)

	// Admin API, bearer token only.
	r.Route("/admin/api", func(r chi.Router) {
		r.Use(middleware.AdminAuth(opts.AdminTokenHash))

		r.Get("/stats", h.Admin.Stats)

		r.Route("/posts", func(r chi.Router) {
			r.Get("/", h.Admin.ListPosts)
			r.Post("/", h.Admin.CreatePost)
			r.Put("/{id}", h.Admin.UpdatePost)
			r.Delete("/{id}", h.Admin.DeletePost)
			r.Post("/{id}/cover", h.Admin.GenerateCover)
		})

		r.Get("/subscribers", h.Admin.ListSubscribers)

		r.Route("/guides", func(r chi.Router) {
			r.Post("/", h.Admin.CreateGuide)
			r.Post("/{id}/grants", h.Admin.GrantGuide)
		})
	})

	return r
}

// limit returns the limiter's middleware, or a pass-through when rl is nil.
func limit(rl *middleware.RateLimiter) func(http.Handler) http.Handler {
	if rl == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return rl.Middleware
}

// healthHandler returns a simple JSON health check response.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

package handlers

import (
	"context"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"standardthought/internal/ai"
	"standardthought/internal/newsletter"
)

// FallbackImageGenerator is an ImageGenerator that also exposes the
// placeholder it degrades to.
type FallbackImageGenerator interface {
	ImageGenerator
	FallbackURL() string
}

// Functions serves the /functions/v1 endpoints called by the site frontend
// and the weekly scheduler.
type Functions struct {
	images      FallbackImageGenerator
	newsletter  NewsletterRunner
	subscribers SubscriberStore
}

// NewFunctions creates the edge function handler group.
func NewFunctions(images FallbackImageGenerator, runner NewsletterRunner, subscribers SubscriberStore) *Functions {
	return &Functions{images: images, newsletter: runner, subscribers: subscribers}
}

// GenerateImage handles POST /functions/v1/generate-image. Degraded
// outcomes answer 202 with a renderable fallback image.
func (f *Functions) GenerateImage(w http.ResponseWriter, r *http.Request) {
	var req ai.ImageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if utf8.RuneCountInString(req.Prompt) > maxPromptLen {
		writeError(w, http.StatusBadRequest, "Prompt is too long (max 4,000 characters)")
		return
	}

	result, err := f.images.Generate(r.Context(), req)
	if err == nil {
		writeJSON(w, http.StatusOK, result)
		return
	}

	switch {
	case errors.Is(err, ai.ErrPromptRequired):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, ai.ErrAPIKeyMissing):
		slog.Error("generate-image called without an OpenAI key")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var failure *ai.ImageFailure
	if !errors.As(err, &failure) {
		failure = &ai.ImageFailure{
			Kind:        ai.FailureUnexpected,
			FallbackURL: f.images.FallbackURL(),
			Message:     err.Error(),
		}
	}
	slog.Warn("image generation degraded", "kind", failure.Kind, "error", failure.Error())
	writeJSON(w, http.StatusAccepted, failureBody(failure))
}

// failureBody renders an ImageFailure in the wire shape the frontend
// expects. Every variant carries fallback=true and the placeholder URL.
func failureBody(f *ai.ImageFailure) map[string]any {
	body := map[string]any{
		"error":    string(f.Kind),
		"fallback": true,
		"imageUrl": f.FallbackURL,
	}
	switch f.Kind {
	case ai.FailureAllModels:
		body["details"] = f.Details
	case ai.FailureUpstream:
		body["status"] = f.Status
		body["type"] = f.Type
		body["code"] = f.Code
		body["message"] = f.Message
	case ai.FailureUnexpected:
		body["details"] = f.Message
		if f.Stack != "" {
			body["stack"] = f.Stack
		}
	}
	return body
}

type newsletterResponse struct {
	Success bool `json:"success"`
	*newsletter.Outcome
}

// SendWeeklyNewsletter handles POST /functions/v1/send-weekly-newsletter.
// ?force=true bypasses the duplicate-issue guard.
func (f *Functions) SendWeeklyNewsletter(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"

	// A run takes at least one second per batch; a disconnecting
	// scheduler must not cut it short halfway through the list.
	ctx := context.WithoutCancel(r.Context())

	// The server's WriteTimeout is sized for image requests; a send over a
	// long list outlives it.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		slog.Debug("write deadline not cleared", "error", err)
	}

	outcome, err := f.newsletter.Dispatch(ctx, newsletter.RunOptions{Force: force})
	if err != nil {
		slog.Error("weekly newsletter failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	slog.Info("weekly newsletter finished",
		"sent", outcome.SentCount,
		"failed", outcome.FailedCount,
		"subscribers", outcome.TotalSubscribers,
		"posts", outcome.PostsIncluded,
		"forced", force,
	)
	writeJSON(w, http.StatusOK, newsletterResponse{Success: true, Outcome: outcome})
}

var unsubscribePage = template.Must(template.New("unsubscribe").Parse(`<!DOCTYPE html>
<html lang="en"><head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}} | Standardthought</title>
<style>body{font-family:Arial,sans-serif;background:#f4f4f4;color:#333;display:flex;align-items:center;justify-content:center;min-height:100vh;margin:0}
.card{background:#fff;padding:40px;border-radius:8px;max-width:480px;text-align:center;box-shadow:0 2px 8px rgba(0,0,0,.08)}
h1{color:#1a365d;font-size:24px}a{color:#2b6cb0}</style></head>
<body><div class="card"><h1>{{.Title}}</h1><p>{{.Message}}</p>
<p><a href="{{.SiteURL}}">Back to Standardthought</a></p></div></body></html>`))

type unsubscribeView struct {
	Title   string
	Message string
	SiteURL string
}

// Unsubscribe handles /functions/v1/unsubscribe?token=... and answers with a
// small HTML page. POST is accepted for one-click unsubscribe.
func (f *Functions) Unsubscribe(siteURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(r.URL.Query().Get("token"))
		if token == "" {
			renderUnsubscribe(w, http.StatusBadRequest, unsubscribeView{
				Title:   "Invalid link",
				Message: "This unsubscribe link is missing its token.",
				SiteURL: siteURL,
			})
			return
		}

		sub, err := f.subscribers.Unsubscribe(r.Context(), token)
		if err != nil {
			slog.Error("unsubscribe failed", "error", err)
			renderUnsubscribe(w, http.StatusInternalServerError, unsubscribeView{
				Title:   "Something went wrong",
				Message: "We could not process your request. Please try again later.",
				SiteURL: siteURL,
			})
			return
		}
		if sub == nil {
			renderUnsubscribe(w, http.StatusNotFound, unsubscribeView{
				Title:   "Link not recognised",
				Message: "This unsubscribe link is invalid or has expired.",
				SiteURL: siteURL,
			})
			return
		}

		slog.Info("subscriber unsubscribed", "subscriber_id", sub.ID)
		renderUnsubscribe(w, http.StatusOK, unsubscribeView{
			Title:   "You have been unsubscribed",
			Message: "You will no longer receive the weekly newsletter at " + sub.Email + ".",
			SiteURL: siteURL,
		})
	}
}

func renderUnsubscribe(w http.ResponseWriter, status int, v unsubscribeView) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := unsubscribePage.Execute(w, v); err != nil {
		slog.Warn("render unsubscribe page failed", "error", err)
	}
}

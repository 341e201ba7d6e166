// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package ai generates cover images from text prompts. A Service walks an
// ordered list of OpenAI image backends and degrades to a static
// placeholder when none of them can produce an image.
package ai

import (
	"errors"
	"fmt"
	"strings"
)

// Supported size presets. Individual backends coerce these to what their
// model accepts.
const (
	Size256       = "256x256"
	Size512       = "512x512"
	Size1024      = "1024x1024"
	Size1792Wide  = "1792x1024"
	Size1792Tall  = "1024x1792"
	Size1536Wide  = "1536x1024"
	Size1536Tall  = "1024x1536"
	DefaultSize   = Size1024
	QualityStd    = "standard"
	QualityHD     = "hd"
	StyleVivid    = "vivid"
	StyleNatural  = "natural"
	dataURIPrefix = "data:image/png;base64,"
)

var supportedSizes = map[string]bool{
	Size256: true, Size512: true, Size1024: true,
	Size1792Wide: true, Size1792Tall: true,
	Size1536Wide: true, Size1536Tall: true,
}

// Terminal errors. These are the only outcomes without a fallback image.
var (
	ErrPromptRequired = errors.New("Prompt is required")
	ErrAPIKeyMissing  = errors.New("OpenAI API key not configured")
)

// ImageRequest is one generation call.
type ImageRequest struct {
	Prompt  string `json:"prompt"`
	Size    string `json:"size,omitempty"`
	Quality string `json:"quality,omitempty"`
	Style   string `json:"style,omitempty"`
}

// Normalize trims the prompt and replaces unknown or empty options with
// their defaults.
func (r ImageRequest) Normalize() ImageRequest {
	r.Prompt = strings.TrimSpace(r.Prompt)
	if !supportedSizes[r.Size] {
		r.Size = DefaultSize
	}
	if r.Quality != QualityHD {
		r.Quality = QualityStd
	}
	if r.Style != StyleNatural {
		r.Style = StyleVivid
	}
	return r
}

// ImageResult is a successful generation. ImageURL is either a hosted URL
// or a base64 data URI.
type ImageResult struct {
	ImageURL      string `json:"imageUrl"`
	RevisedPrompt string `json:"revisedPrompt"`
	Model         string `json:"model"`
}

// FailureKind tags an ImageFailure.
type FailureKind string

const (
	FailureBillingLimit FailureKind = "billing_limit_reached"
	FailureAllModels    FailureKind = "all_models_failed"
	FailureUpstream     FailureKind = "upstream_api_error"
	FailureUnexpected   FailureKind = "unexpected_server_error"
)

// AttemptError is the raw error of one backend, reported per model when
// every backend fails.
type AttemptError struct {
	Status  int    `json:"status,omitempty"`
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// ImageFailure is a degraded outcome. It always carries FallbackURL so
// callers have something to render.
type ImageFailure struct {
	Kind        FailureKind `json:"error"`
	FallbackURL string      `json:"imageUrl"`

	// AllModelsFailed
	Details map[string]AttemptError `json:"details,omitempty"`

	// UpstreamAPIError
	Status int    `json:"status,omitempty"`
	Type   string `json:"type,omitempty"`
	Code   string `json:"code,omitempty"`

	// UnexpectedError; Stack is only set for recovered panics.
	Message string `json:"message,omitempty"`
	Stack   string `json:"stack,omitempty"`
}

func (f *ImageFailure) Error() string {
	switch f.Kind {
	case FailureAllModels:
		return fmt.Sprintf("ai: all %d image models failed", len(f.Details))
	case FailureUpstream:
		return fmt.Sprintf("ai: upstream error (status %d, type %q, code %q): %s", f.Status, f.Type, f.Code, f.Message)
	case FailureBillingLimit:
		return "ai: billing limit reached"
	default:
		return "ai: unexpected error: " + f.Message
	}
}

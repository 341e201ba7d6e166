package handlers

import (
	"net/mail"
	"net/url"
	"strings"
	"unicode/utf8"
)

// Validation limits for user-supplied fields.
const (
	maxTitleLen    = 300
	maxBodyLen     = 100_000
	maxExcerptLen  = 1_000
	maxCategoryLen = 100
	maxTags        = 20
	maxTagLen      = 50
	maxPromptLen   = 4_000
	maxEmailLen    = 254
	maxNameLen     = 100
	maxImageURLLen = 2_048
	maxGrantDays   = 3_650
)

// validatePost checks post inputs and returns the first error found.
func validatePost(in *postInput) string {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return "Title is required."
	}
	if utf8.RuneCountInString(title) > maxTitleLen {
		return "Title is too long (max 300 characters)."
	}
	if utf8.RuneCountInString(in.Body) > maxBodyLen {
		return "Body is too long (max 100,000 characters)."
	}
	if utf8.RuneCountInString(in.Excerpt) > maxExcerptLen {
		return "Excerpt is too long (max 1,000 characters)."
	}
	if strings.TrimSpace(in.Category) == "" {
		return "Category is required."
	}
	if utf8.RuneCountInString(in.Category) > maxCategoryLen {
		return "Category is too long (max 100 characters)."
	}
	if len(in.Tags) > maxTags {
		return "Too many tags (max 20)."
	}
	for _, tag := range in.Tags {
		if utf8.RuneCountInString(tag) > maxTagLen {
			return "Tags must be at most 50 characters."
		}
	}
	if in.ImageURL != nil && strings.TrimSpace(*in.ImageURL) != "" && !isHostedURL(*in.ImageURL) {
		return "Image URL must be an absolute http(s) URL. Use the cover endpoint for generated images."
	}
	return ""
}

// isHostedURL reports whether raw is an absolute http(s) URL short enough
// to store. Inline data URIs are rejected: emails cannot display them.
func isHostedURL(raw string) bool {
	raw = strings.TrimSpace(raw)
	if len(raw) > maxImageURLLen {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// normalizeEmail lowercases and validates a subscriber address. It returns
// "" when the address is unusable.
func normalizeEmail(raw string) string {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" || len(email) > maxEmailLen {
		return ""
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return ""
	}
	return email
}

// normalizeName trims an optional display name; blank names become nil.
func normalizeName(raw *string) (*string, string) {
	if raw == nil {
		return nil, ""
	}
	name := strings.TrimSpace(*raw)
	if name == "" {
		return nil, ""
	}
	if utf8.RuneCountInString(name) > maxNameLen {
		return nil, "Name is too long (max 100 characters)."
	}
	return &name, ""
}

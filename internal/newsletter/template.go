package newsletter

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/url"
	"strings"

	"standardthought/internal/models"
)

//go:embed templates/weekly.html
var templateFS embed.FS

// DefaultGreeting is used when a subscriber has no name on file.
const DefaultGreeting = "Wealth Builder"

// SocialLink is one footer link.
type SocialLink struct {
	Name string
	URL  string
}

// DefaultSocials are the footer links of every issue.
var DefaultSocials = []SocialLink{
	{Name: "Twitter", URL: "https://twitter.com/standardthought"},
	{Name: "Instagram", URL: "https://instagram.com/standardthought"},
	{Name: "LinkedIn", URL: "https://www.linkedin.com/company/standardthought"},
	{Name: "YouTube", URL: "https://www.youtube.com/@standardthought"},
}

// Renderer produces the per-subscriber HTML of the weekly issue.
type Renderer struct {
	tmpl             *template.Template
	siteURL          string
	functionsBaseURL string
	socials          []SocialLink
}

// NewRenderer parses the embedded template. siteURL is used for post links
// and functionsBaseURL for unsubscribe links.
func NewRenderer(siteURL, functionsBaseURL string) (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/weekly.html")
	if err != nil {
		return nil, fmt.Errorf("parse newsletter template: %w", err)
	}
	return &Renderer{
		tmpl:             tmpl,
		siteURL:          siteURL,
		functionsBaseURL: functionsBaseURL,
		socials:          DefaultSocials,
	}, nil
}

type postCard struct {
	Title    string
	Excerpt  string
	URL      string
	ImageURL string
}

type issueData struct {
	Subject        string
	Greeting       string
	BannerURL      string
	Posts          []postCard
	ShareStoryURL  string
	Socials        []SocialLink
	UnsubscribeURL string
}

// UnsubscribeURL returns the per-subscriber unsubscribe link, or "#" when
// the subscriber has no token.
func (r *Renderer) UnsubscribeURL(sub *models.Subscriber) string {
	if sub.UnsubscribeToken == nil || *sub.UnsubscribeToken == "" {
		return "#"
	}
	return r.functionsBaseURL + "/functions/v1/unsubscribe?token=" + url.QueryEscape(*sub.UnsubscribeToken)
}

// Render executes the template for one subscriber.
func (r *Renderer) Render(subject string, sub *models.Subscriber, posts []models.RecentPost) (string, error) {
	data := issueData{
		Subject:        subject,
		Greeting:       sub.Greeting(DefaultGreeting),
		BannerURL:      r.siteURL + "/images/newsletter-banner.png",
		ShareStoryURL:  r.siteURL + "/share-your-story",
		Socials:        r.socials,
		UnsubscribeURL: r.UnsubscribeURL(sub),
	}
	for _, p := range posts {
		card := postCard{
			Title:   p.Title,
			Excerpt: p.Excerpt,
			URL:     r.siteURL + "/blog/" + p.Slug,
		}
		if p.ImageURL != nil {
			card.ImageURL = hostedImageURL(*p.ImageURL)
		}
		data.Posts = append(data.Posts, card)
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render newsletter: %w", err)
	}
	return buf.String(), nil
}

// hostedImageURL returns raw when it is an absolute http(s) URL and ""
// otherwise. Mail clients block inline data URIs and html/template would
// rewrite them to an unsafe-URL marker.
func hostedImageURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}

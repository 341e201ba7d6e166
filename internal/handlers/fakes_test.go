package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"standardthought/internal/ai"
	"standardthought/internal/models"
	"standardthought/internal/newsletter"
)

const testFallbackURL = "https://images.example.com/fallback.png"

func strPtr(s string) *string { return &s }

// withURLParams attaches chi route parameters to a request built outside a router.
func withURLParams(r *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func jsonRequest(method, target, body string) *http.Request {
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), "body: %s", rr.Body.String())
	return out
}

// fakeImages is a scripted image pipeline.
type fakeImages struct {
	result *ai.ImageResult
	err    error
	got    []ai.ImageRequest
}

func (f *fakeImages) Generate(_ context.Context, req ai.ImageRequest) (*ai.ImageResult, error) {
	f.got = append(f.got, req)
	return f.result, f.err
}

func (f *fakeImages) FallbackURL() string { return testFallbackURL }

// fakeRunner records newsletter runs.
type fakeRunner struct {
	outcome *newsletter.Outcome
	err     error
	runs    []newsletter.RunOptions
	ctxErr  error
}

func (f *fakeRunner) Dispatch(ctx context.Context, run newsletter.RunOptions) (*newsletter.Outcome, error) {
	f.runs = append(f.runs, run)
	f.ctxErr = ctx.Err()
	return f.outcome, f.err
}

// memPosts is an in-memory PostStore.
type memPosts struct {
	mu    sync.Mutex
	posts map[uuid.UUID]*models.Post
	err   error
}

func newMemPosts(posts ...models.Post) *memPosts {
	m := &memPosts{posts: make(map[uuid.UUID]*models.Post)}
	for i := range posts {
		p := posts[i]
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		m.posts[p.ID] = &p
	}
	return m
}

func (m *memPosts) sorted() []models.Post {
	var out []models.Post
	for _, p := range m.posts {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *memPosts) ListPublished(_ context.Context, f models.PostFilter) ([]models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []models.Post
	for _, p := range m.sorted() {
		if !p.Published {
			continue
		}
		if f.Category != "" && !strings.EqualFold(p.Category, f.Category) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *memPosts) FindBySlug(_ context.Context, slug string) (*models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, p := range m.posts {
		if p.Slug == slug && p.Published {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memPosts) List(context.Context) ([]models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(), m.err
}

func (m *memPosts) FindByID(_ context.Context, id uuid.UUID) (*models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.posts[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, m.err
}

func (m *memPosts) SlugExists(_ context.Context, slug string, exclude *uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.posts {
		if p.Slug == slug && (exclude == nil || p.ID != *exclude) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memPosts) Create(_ context.Context, p *models.Post) (*models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	cp.ID = uuid.New()
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	m.posts[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memPosts) Update(_ context.Context, p *models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.posts[p.ID] = &cp
	return nil
}

func (m *memPosts) SetCover(_ context.Context, id uuid.UUID, imageURL, thumbnailURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.posts[id]; ok {
		p.ImageURL = &imageURL
		p.ThumbnailURL = nil
		if thumbnailURL != "" {
			p.ThumbnailURL = &thumbnailURL
		}
	}
	return nil
}

func (m *memPosts) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.posts, id)
	return nil
}

func (m *memPosts) Counts(context.Context) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var published int
	for _, p := range m.posts {
		if p.Published {
			published++
		}
	}
	return len(m.posts), published, m.err
}

type fakeCategories struct{ cats []models.Category }

func (f *fakeCategories) List(context.Context) ([]models.Category, error) { return f.cats, nil }

// memSubscribers is an in-memory SubscriberStore keyed by email.
type memSubscribers struct {
	subs map[string]*models.Subscriber
	err  error
}

func newMemSubscribers() *memSubscribers {
	return &memSubscribers{subs: make(map[string]*models.Subscriber)}
}

func (m *memSubscribers) Subscribe(_ context.Context, email string, name *string) (*models.Subscriber, error) {
	if m.err != nil {
		return nil, m.err
	}
	if s, ok := m.subs[email]; ok {
		s.Unsubscribed = false
		return s, nil
	}
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	s := &models.Subscriber{ID: uuid.New(), Email: email, Name: name, UnsubscribeToken: &token}
	m.subs[email] = s
	return s, nil
}

func (m *memSubscribers) Unsubscribe(_ context.Context, token string) (*models.Subscriber, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, s := range m.subs {
		if s.UnsubscribeToken != nil && *s.UnsubscribeToken == token {
			s.Unsubscribed = true
			return s, nil
		}
	}
	return nil, nil
}

func (m *memSubscribers) List(_ context.Context, limit, offset int) ([]models.Subscriber, error) {
	var out []models.Subscriber
	for _, s := range m.subs {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memSubscribers) Stats(context.Context) (models.SubscriberStats, error) {
	var st models.SubscriberStats
	for _, s := range m.subs {
		st.Total++
		if s.Unsubscribed {
			st.Unsubscribed++
		} else {
			st.Active++
		}
	}
	return st, m.err
}

// memGuides is an in-memory GuideStore.
type memGuides struct {
	guides    []*models.Guide
	purchases []*models.GuidePurchase
}

func (m *memGuides) ListPublished(context.Context) ([]models.Guide, error) {
	var out []models.Guide
	for _, g := range m.guides {
		if g.Published {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (m *memGuides) FindByID(_ context.Context, id uuid.UUID) (*models.Guide, error) {
	for _, g := range m.guides {
		if g.ID == id {
			return g, nil
		}
	}
	return nil, nil
}

func (m *memGuides) FindBySlug(_ context.Context, slug string) (*models.Guide, error) {
	for _, g := range m.guides {
		if g.Slug == slug {
			return g, nil
		}
	}
	return nil, nil
}

func (m *memGuides) Create(_ context.Context, g *models.Guide) (*models.Guide, error) {
	cp := *g
	cp.ID = uuid.New()
	m.guides = append(m.guides, &cp)
	return &cp, nil
}

func (m *memGuides) Grant(_ context.Context, guideID uuid.UUID, email string, ttl time.Duration) (*models.GuidePurchase, error) {
	p := &models.GuidePurchase{ID: uuid.New(), GuideID: guideID, Email: email, AccessToken: uuid.New()}
	if ttl > 0 {
		exp := time.Now().Add(ttl)
		p.ExpiresAt = &exp
	}
	m.purchases = append(m.purchases, p)
	return p, nil
}

func (m *memGuides) FindPurchase(_ context.Context, guideID, token uuid.UUID) (*models.GuidePurchase, error) {
	for _, p := range m.purchases {
		if p.GuideID == guideID && p.AccessToken == token {
			return p, nil
		}
	}
	return nil, nil
}

// memCache is an in-memory ResponseCache.
type memCache struct {
	entries map[string][]byte
	clears  int
}

func newMemCache() *memCache { return &memCache{entries: make(map[string][]byte)} }

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool) {
	b, ok := c.entries[key]
	return b, ok
}
func (c *memCache) Set(_ context.Context, key string, body []byte) { c.entries[key] = body }
func (c *memCache) Invalidate(_ context.Context, key string)       { delete(c.entries, key) }
func (c *memCache) InvalidateAll(context.Context) {
	c.entries = make(map[string][]byte)
	c.clears++
}

// fakeStorage records uploads in memory.
type fakeStorage struct {
	puts    map[string][]byte
	deleted []string
	putErr  error
}

func newFakeStorage() *fakeStorage { return &fakeStorage{puts: make(map[string][]byte)} }

func (s *fakeStorage) PutPublic(_ context.Context, key, _ string, data []byte) (string, error) {
	if s.putErr != nil {
		return "", s.putErr
	}
	s.puts[key] = data
	return "https://cdn.example.com/" + key, nil
}

func (s *fakeStorage) DeletePublicURL(_ context.Context, rawURL string) error {
	s.deleted = append(s.deleted, rawURL)
	return nil
}

func (s *fakeStorage) GuideDownloadURL(_ context.Context, key string, expires time.Duration) (string, error) {
	return "https://private.example.com/" + key + "?expires=" + expires.String(), nil
}

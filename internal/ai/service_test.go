// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package ai

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFallbackURL = "https://images.example.com/fallback.png"

// mockBackend is a test double implementing ImageBackend. It records calls
// and returns a configurable result.
type mockBackend struct {
	model     string
	result    *ImageResult
	err       error
	panicWith any

	mu        sync.Mutex
	callCount int
	lastReq   ImageRequest
}

func (m *mockBackend) Model() string { return m.model }

func (m *mockBackend) Attempt(ctx context.Context, req ImageRequest) (*ImageResult, error) {
	m.mu.Lock()
	m.callCount++
	m.lastReq = req
	m.mu.Unlock()
	if m.panicWith != nil {
		panic(m.panicWith)
	}
	return m.result, m.err
}

func (m *mockBackend) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

func failing(model string, kind ErrorKind, status int) *mockBackend {
	return &mockBackend{model: model, err: &BackendError{Model: model, Kind: kind, Status: status, Message: model + " failed"}}
}

func succeeding(model string) *mockBackend {
	return &mockBackend{model: model, result: &ImageResult{ImageURL: "https://img/" + model, RevisedPrompt: "r", Model: model}}
}

// chain builds the standard three-stage service from mocks.
func chain(a, b, c ImageBackend) *Service {
	return NewServiceWithStages([]Stage{
		{Backend: a, Decisions: PrimaryDecisions},
		{Backend: b, Decisions: FallbackDecisions},
		{Backend: c, Decisions: FallbackDecisions},
	}, "sk-test", testFallbackURL)
}

func requireFailure(t *testing.T, err error) *ImageFailure {
	t.Helper()
	var f *ImageFailure
	require.True(t, errors.As(err, &f), "expected *ImageFailure, got %v", err)
	assert.Equal(t, testFallbackURL, f.FallbackURL, "every failure carries the fallback image")
	return f
}

func TestGenerate_PrimarySuccess(t *testing.T) {
	a, b, c := succeeding("gpt-image-1"), succeeding("dall-e-3"), succeeding("dall-e-2")

	res, err := chain(a, b, c).Generate(context.Background(), ImageRequest{Prompt: "skyline"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-image-1", res.Model)
	assert.Equal(t, 1, a.calls())
	assert.Equal(t, 0, b.calls())
	assert.Equal(t, 0, c.calls())
}

func TestGenerate_PromptRequired(t *testing.T) {
	a := succeeding("gpt-image-1")
	_, err := chain(a, succeeding("b"), succeeding("c")).Generate(context.Background(), ImageRequest{Prompt: "   "})
	assert.ErrorIs(t, err, ErrPromptRequired)
	assert.Equal(t, 0, a.calls())
}

func TestGenerate_APIKeyMissing(t *testing.T) {
	a := succeeding("gpt-image-1")
	svc := NewServiceWithStages([]Stage{{Backend: a, Decisions: PrimaryDecisions}}, "", testFallbackURL)

	_, err := svc.Generate(context.Background(), ImageRequest{Prompt: "skyline"})
	assert.ErrorIs(t, err, ErrAPIKeyMissing)
	assert.Equal(t, 0, a.calls())
}

func TestGenerate_BillingStopsChain(t *testing.T) {
	a := &mockBackend{model: "gpt-image-1", err: &BackendError{
		Model: "gpt-image-1", Kind: KindBilling, Status: 400, Code: "billing_hard_limit_reached", Message: "limit",
	}}
	b, c := succeeding("dall-e-3"), succeeding("dall-e-2")

	_, err := chain(a, b, c).Generate(context.Background(), ImageRequest{Prompt: "skyline"})
	f := requireFailure(t, err)
	assert.Equal(t, FailureBillingLimit, f.Kind)
	assert.Equal(t, 1, a.calls())
	assert.Equal(t, 0, b.calls(), "secondary must not be called after a billing limit")
	assert.Equal(t, 0, c.calls(), "tertiary must not be called after a billing limit")
}

func TestGenerate_UpstreamErrorStopsChain(t *testing.T) {
	a := &mockBackend{model: "gpt-image-1", err: &BackendError{
		Model: "gpt-image-1", Kind: KindUpstream, Status: 400, Type: "invalid_request_error",
		Code: "content_policy_violation", Message: "rejected",
	}}
	b, c := succeeding("dall-e-3"), succeeding("dall-e-2")

	_, err := chain(a, b, c).Generate(context.Background(), ImageRequest{Prompt: "skyline"})
	f := requireFailure(t, err)
	assert.Equal(t, FailureUpstream, f.Kind)
	assert.Equal(t, 400, f.Status)
	assert.Equal(t, "invalid_request_error", f.Type)
	assert.Equal(t, "content_policy_violation", f.Code)
	assert.Equal(t, 0, b.calls())
	assert.Equal(t, 0, c.calls())
}

func TestGenerate_UnexpectedPrimaryStopsChain(t *testing.T) {
	a := &mockBackend{model: "gpt-image-1", err: errors.New("connection reset")}
	b := succeeding("dall-e-3")

	_, err := chain(a, b, succeeding("dall-e-2")).Generate(context.Background(), ImageRequest{Prompt: "skyline"})
	f := requireFailure(t, err)
	assert.Equal(t, FailureUnexpected, f.Kind)
	assert.Contains(t, f.Message, "connection reset")
	assert.Empty(t, f.Stack, "stack is only recorded for panics")
	assert.Equal(t, 0, b.calls())
}

func TestGenerate_CapabilityFallsBackToSecondary(t *testing.T) {
	a := failing("gpt-image-1", KindCapability, 403)
	b, c := succeeding("dall-e-3"), succeeding("dall-e-2")

	res, err := chain(a, b, c).Generate(context.Background(), ImageRequest{Prompt: "skyline"})
	require.NoError(t, err)
	assert.Equal(t, "dall-e-3", res.Model)
	assert.Equal(t, 0, c.calls())
}

func TestGenerate_CapabilityThenSecondaryFailureTriesTertiary(t *testing.T) {
	for _, kind := range []ErrorKind{KindCapability, KindTransient, KindUpstream, KindBilling, KindUnexpected} {
		t.Run(kind.String(), func(t *testing.T) {
			a := failing("gpt-image-1", KindCapability, 400)
			b := failing("dall-e-3", kind, 400)
			c := succeeding("dall-e-2")

			res, err := chain(a, b, c).Generate(context.Background(), ImageRequest{Prompt: "skyline"})
			require.NoError(t, err)
			assert.Equal(t, "dall-e-2", res.Model)
			assert.Equal(t, 1, c.calls(), "tertiary must be attempted")
		})
	}
}

func TestGenerate_AllFailReportsEveryModel(t *testing.T) {
	a := failing("gpt-image-1", KindCapability, 400)
	b := failing("dall-e-3", KindCapability, 400)
	c := failing("dall-e-2", KindUpstream, 400)

	_, err := chain(a, b, c).Generate(context.Background(), ImageRequest{Prompt: "skyline"})
	f := requireFailure(t, err)
	assert.Equal(t, FailureAllModels, f.Kind)
	assert.Len(t, f.Details, 3)
	assert.Equal(t, "dall-e-2 failed", f.Details["dall-e-2"].Message)
	assert.Equal(t, 1, c.calls())
}

func TestGenerate_PanicBecomesUnexpected(t *testing.T) {
	a := &mockBackend{model: "gpt-image-1", panicWith: "nil map write"}

	res, err := chain(a, succeeding("b"), succeeding("c")).Generate(context.Background(), ImageRequest{Prompt: "skyline"})
	assert.Nil(t, res)
	f := requireFailure(t, err)
	assert.Equal(t, FailureUnexpected, f.Kind)
	assert.Equal(t, "nil map write", f.Message)
	assert.NotEmpty(t, f.Stack)
}

func TestGenerate_PassesNormalizedRequest(t *testing.T) {
	a := succeeding("gpt-image-1")
	_, err := chain(a, succeeding("b"), succeeding("c")).Generate(context.Background(),
		ImageRequest{Prompt: " skyline ", Size: "bogus"})
	require.NoError(t, err)
	assert.Equal(t, "skyline", a.lastReq.Prompt)
	assert.Equal(t, DefaultSize, a.lastReq.Size)
}

// TestGenerate_AllServerErrors drives the real OpenAI backends against a
// server that always answers 500: every model is tried once and reported.
func TestGenerate_AllServerErrors(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]int{}
	srv := capturingHandler(t, func(model string) {
		mu.Lock()
		seen[model]++
		mu.Unlock()
	})
	defer srv.Close()

	svc := NewService(Config{
		APIKey:      "sk-test",
		BaseURL:     srv.URL,
		Models:      []string{"gpt-image-1", "dall-e-3", "dall-e-2"},
		FallbackURL: testFallbackURL,
	})

	_, err := svc.Generate(context.Background(), ImageRequest{Prompt: "urban skyline at dusk"})
	f := requireFailure(t, err)
	assert.Equal(t, FailureAllModels, f.Kind)
	require.Len(t, f.Details, 3)
	for _, model := range []string{"gpt-image-1", "dall-e-3", "dall-e-2"} {
		assert.Equal(t, http.StatusInternalServerError, f.Details[model].Status, model)
		assert.Equal(t, 1, seen[model], "each model is attempted exactly once")
	}
	assert.Equal(t, testFallbackURL, svc.FallbackURL())
}

// stallingBackend blocks until its context ends.
type stallingBackend struct{ model string }

func (b stallingBackend) Model() string { return b.model }

func (b stallingBackend) Attempt(ctx context.Context, _ ImageRequest) (*ImageResult, error) {
	<-ctx.Done()
	return nil, unexpectedError(b.model, ctx.Err())
}

func TestGenerate_SlowPrimaryFallsBack(t *testing.T) {
	svc := chain(stallingBackend{model: "gpt-image-1"}, succeeding("dall-e-3"), succeeding("dall-e-2"))
	svc.timeout = 20 * time.Millisecond

	start := time.Now()
	res, err := svc.Generate(context.Background(), ImageRequest{Prompt: "harbor"})
	require.NoError(t, err)
	assert.Equal(t, "dall-e-3", res.Model)
	assert.Less(t, time.Since(start), time.Second)
}

func TestGenerate_EveryModelTimesOut(t *testing.T) {
	svc := chain(stallingBackend{model: "a"}, stallingBackend{model: "b"}, stallingBackend{model: "c"})
	svc.timeout = 10 * time.Millisecond

	_, err := svc.Generate(context.Background(), ImageRequest{Prompt: "harbor"})
	f := requireFailure(t, err)
	assert.Equal(t, FailureAllModels, f.Kind)
	assert.Contains(t, f.Details["a"].Message, "timed out")
}

func TestServiceBudget(t *testing.T) {
	svc := chain(succeeding("a"), succeeding("b"), succeeding("c"))
	assert.Equal(t, 3*AttemptTimeout, svc.Budget())
	assert.Equal(t, ChainBudget(3), svc.Budget())
}

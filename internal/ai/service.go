// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Action is what the service does after a stage fails.
type Action int

const (
	Continue Action = iota
	StopBilling
	StopUpstream
	StopUnexpected
)

// DecisionTable maps a failure kind to the next action for one stage.
// Kinds missing from the table continue to the next stage.
type DecisionTable map[ErrorKind]Action

// PrimaryDecisions applies to the first backend. Billing limits are
// account-wide so nothing after it could succeed.
var PrimaryDecisions = DecisionTable{
	KindBilling:    StopBilling,
	KindCapability: Continue,
	KindTransient:  Continue,
	KindUpstream:   StopUpstream,
	KindUnexpected: StopUnexpected,
}

// FallbackDecisions applies to every later backend: any failure moves on.
var FallbackDecisions = DecisionTable{}

// AttemptTimeout bounds a single backend call. A model that times out is
// treated as transient and the chain moves on.
const AttemptTimeout = 40 * time.Second

// ChainBudget is the longest a chain of n stages can take to finish.
func ChainBudget(n int) time.Duration {
	return time.Duration(n) * AttemptTimeout
}

// Stage pairs a backend with the decision table consulted when it fails.
type Stage struct {
	Backend   ImageBackend
	Decisions DecisionTable
}

// Config configures a Service backed by the OpenAI image API.
type Config struct {
	APIKey      string
	BaseURL     string
	Models      []string // in priority order
	FallbackURL string
	HTTPClient  *http.Client
}

// Service runs the image fallback chain. It holds no per-request state and
// is safe for concurrent use.
type Service struct {
	stages      []Stage
	apiKey      string
	fallbackURL string
	timeout     time.Duration // per attempt
	tracer      trace.Tracer
}

// NewService builds the chain from cfg.Models. The first model gets
// PrimaryDecisions, the rest FallbackDecisions.
func NewService(cfg Config) *Service {
	stages := make([]Stage, 0, len(cfg.Models))
	for i, model := range cfg.Models {
		d := FallbackDecisions
		if i == 0 {
			d = PrimaryDecisions
		}
		stages = append(stages, Stage{
			Backend:   NewOpenAIBackend(model, cfg.APIKey, cfg.BaseURL, cfg.HTTPClient),
			Decisions: d,
		})
	}
	return NewServiceWithStages(stages, cfg.APIKey, cfg.FallbackURL)
}

// NewServiceWithStages builds a Service from explicit stages.
func NewServiceWithStages(stages []Stage, apiKey, fallbackURL string) *Service {
	return &Service{
		stages:      stages,
		apiKey:      apiKey,
		fallbackURL: fallbackURL,
		timeout:     AttemptTimeout,
		tracer:      otel.Tracer("standardthought/ai"),
	}
}

// Budget is the longest Generate can run before it returns.
func (s *Service) Budget() time.Duration { return ChainBudget(len(s.stages)) }

// FallbackURL returns the placeholder image served on failure.
func (s *Service) FallbackURL() string { return s.fallbackURL }

// Generate returns the first successful image in stage order. Every failure
// other than ErrPromptRequired and ErrAPIKeyMissing is an *ImageFailure.
func (s *Service) Generate(ctx context.Context, req ImageRequest) (result *ImageResult, err error) {
	req = req.Normalize()
	if req.Prompt == "" {
		return nil, ErrPromptRequired
	}
	if s.apiKey == "" {
		return nil, ErrAPIKeyMissing
	}

	ctx, span := s.tracer.Start(ctx, "ai.Generate",
		trace.WithAttributes(attribute.String("image.size", req.Size)))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("image pipeline panic", "panic", r)
			result = nil
			err = &ImageFailure{
				Kind:        FailureUnexpected,
				FallbackURL: s.fallbackURL,
				Message:     fmt.Sprint(r),
				Stack:       string(debug.Stack()),
			}
			span.SetStatus(codes.Error, "panic")
		}
	}()

	details := make(map[string]AttemptError, len(s.stages))
	for _, st := range s.stages {
		model := st.Backend.Model()
		res, berr := s.attempt(ctx, st.Backend, req)
		if berr == nil {
			span.SetAttributes(attribute.String("image.model", model))
			return res, nil
		}

		details[model] = berr.attempt()
		action, ok := st.Decisions[berr.Kind]
		if !ok {
			action = Continue
		}
		slog.Warn("image model failed", "model", model, "kind", berr.Kind.String(), "status", berr.Status, "error", berr.Message)

		switch action {
		case StopBilling:
			span.SetStatus(codes.Error, string(FailureBillingLimit))
			return nil, &ImageFailure{Kind: FailureBillingLimit, FallbackURL: s.fallbackURL, Code: berr.Code, Message: berr.Message}
		case StopUpstream:
			span.SetStatus(codes.Error, string(FailureUpstream))
			return nil, &ImageFailure{
				Kind:        FailureUpstream,
				FallbackURL: s.fallbackURL,
				Status:      berr.Status,
				Type:        berr.Type,
				Code:        berr.Code,
				Message:     berr.Message,
			}
		case StopUnexpected:
			span.SetStatus(codes.Error, string(FailureUnexpected))
			return nil, &ImageFailure{Kind: FailureUnexpected, FallbackURL: s.fallbackURL, Message: berr.Message}
		}
	}

	span.SetStatus(codes.Error, string(FailureAllModels))
	return nil, &ImageFailure{Kind: FailureAllModels, FallbackURL: s.fallbackURL, Details: details}
}

// attempt runs one backend inside its own span and guarantees a classified
// error on failure.
func (s *Service) attempt(ctx context.Context, b ImageBackend, req ImageRequest) (*ImageResult, *BackendError) {
	ctx, span := s.tracer.Start(ctx, "ai.Attempt",
		trace.WithAttributes(attribute.String("image.model", b.Model())))
	defer span.End()

	attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := b.Attempt(attemptCtx, req)
	if err == nil && res != nil {
		return res, nil
	}
	if err == nil {
		err = errors.New("backend returned no result")
	}

	var berr *BackendError
	if !errors.As(err, &berr) {
		berr = unexpectedError(b.Model(), err)
	}
	if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		berr.Kind = KindTransient
		berr.Message = fmt.Sprintf("timed out after %s", s.timeout)
	}
	span.RecordError(err)
	span.SetAttributes(attribute.String("image.error_kind", berr.Kind.String()))
	span.SetStatus(codes.Error, berr.Kind.String())
	return nil, berr
}

// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package newsletter sends the weekly digest of recent posts to every
// active subscriber in fixed-size concurrent batches.
package newsletter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"standardthought/internal/mailer"
	"standardthought/internal/models"
)

// Outcome messages.
const (
	MsgNoPosts       = "No recent posts found, newsletter not sent"
	MsgNoSubscribers = "No active subscribers found"
	MsgAlreadySent   = "Newsletter already sent for these posts"
)

// PostSource supplies the posts of an issue.
type PostSource interface {
	ListRecentPublished(ctx context.Context, since time.Time, limit int) ([]models.RecentPost, error)
}

// SubscriberSource supplies the recipients of an issue.
type SubscriberSource interface {
	ListActive(ctx context.Context) ([]models.Subscriber, error)
}

// Options tune a Dispatcher. Zero or negative values take the defaults.
type Options struct {
	BatchSize  int           // default 10
	BatchDelay time.Duration // default 1s
	Lookback   time.Duration // default 7 days
	MaxPosts   int           // default 5
	From       string
	Subject    string
	Guard      Guard // nil disables duplicate protection

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Outcome summarizes one run. It is not persisted.
type Outcome struct {
	SentCount        int    `json:"sent_count"`
	FailedCount      int    `json:"failed_count"`
	TotalSubscribers int    `json:"total_subscribers"`
	PostsIncluded    int    `json:"posts_included"`
	Batches          int    `json:"batches"`
	Message          string `json:"message"`
}

// RunOptions alter a single run.
type RunOptions struct {
	// Force skips the guard.
	Force bool
}

// Dispatcher sends the weekly newsletter.
type Dispatcher struct {
	posts    PostSource
	subs     SubscriberSource
	sender   mailer.Sender
	renderer *Renderer
	opts     Options
	tracer   trace.Tracer
}

// NewDispatcher wires a Dispatcher. All collaborators are required except
// Options.Guard.
func NewDispatcher(posts PostSource, subs SubscriberSource, sender mailer.Sender, renderer *Renderer, opts Options) *Dispatcher {
	if opts.BatchSize < 1 {
		opts.BatchSize = 10
	}
	if opts.BatchDelay <= 0 {
		opts.BatchDelay = time.Second
	}
	if opts.Lookback <= 0 {
		opts.Lookback = 7 * 24 * time.Hour
	}
	if opts.MaxPosts < 1 {
		opts.MaxPosts = 5
	}
	if opts.Subject == "" {
		opts.Subject = "Your Weekly Wealth-Building Insights from Standardthought"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	return &Dispatcher{
		posts:    posts,
		subs:     subs,
		sender:   sender,
		renderer: renderer,
		opts:     opts,
		tracer:   otel.Tracer("standardthought/newsletter"),
	}
}

// DispatchWeekly runs one send with default options.
func (d *Dispatcher) DispatchWeekly(ctx context.Context) (*Outcome, error) {
	return d.Dispatch(ctx, RunOptions{})
}

// Dispatch sends the current issue to every active subscriber. Query
// failures abort before anything is sent; individual send failures are
// counted and never stop the run.
func (d *Dispatcher) Dispatch(ctx context.Context, run RunOptions) (*Outcome, error) {
	ctx, span := d.tracer.Start(ctx, "newsletter.Dispatch")
	defer span.End()

	now := d.opts.Now()
	posts, err := d.posts.ListRecentPublished(ctx, now.Add(-d.opts.Lookback), d.opts.MaxPosts)
	if err != nil {
		return nil, fmt.Errorf("fetch recent posts: %w", err)
	}
	if len(posts) == 0 {
		slog.Info("newsletter skipped, no recent posts")
		return &Outcome{Message: MsgNoPosts}, nil
	}

	subs, err := d.subs.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch subscribers: %w", err)
	}
	if len(subs) == 0 {
		slog.Info("newsletter skipped, no active subscribers")
		return &Outcome{Message: MsgNoSubscribers, PostsIncluded: len(posts)}, nil
	}

	var issueKey string
	if d.opts.Guard != nil && !run.Force {
		issueKey = IssueKey(now, posts)
		claimed, err := d.opts.Guard.Claim(ctx, issueKey, GuardTTL)
		if err != nil {
			return nil, fmt.Errorf("claim newsletter issue: %w", err)
		}
		if !claimed {
			slog.Info("newsletter already sent", "issue", issueKey)
			return &Outcome{Message: MsgAlreadySent, PostsIncluded: len(posts), TotalSubscribers: len(subs)}, nil
		}
	}

	out := &Outcome{TotalSubscribers: len(subs), PostsIncluded: len(posts)}
	span.SetAttributes(
		attribute.Int("newsletter.subscribers", len(subs)),
		attribute.Int("newsletter.posts", len(posts)),
	)

	size := d.opts.BatchSize
	for start := 0; start < len(subs); start += size {
		if start > 0 {
			if err := d.opts.Sleep(ctx, d.opts.BatchDelay); err != nil {
				d.finish(out, issueKey)
				return out, fmt.Errorf("newsletter interrupted after %d batches: %w", out.Batches, err)
			}
		}
		end := min(start+size, len(subs))
		sent, failed := d.sendBatch(ctx, out.Batches, subs[start:end], posts)
		out.SentCount += sent
		out.FailedCount += failed
		out.Batches++
	}

	d.finish(out, issueKey)
	out.Message = fmt.Sprintf("Newsletter sent to %d subscribers", out.SentCount)
	slog.Info("newsletter sent",
		"sent", out.SentCount,
		"failed", out.FailedCount,
		"subscribers", out.TotalSubscribers,
		"posts", out.PostsIncluded,
		"batches", out.Batches,
	)
	return out, nil
}

// finish releases the issue claim when nothing was delivered so a later
// run can try again.
func (d *Dispatcher) finish(out *Outcome, issueKey string) {
	if issueKey == "" || out.SentCount > 0 {
		return
	}
	if err := d.opts.Guard.Release(context.Background(), issueKey); err != nil {
		slog.Warn("newsletter guard release failed", "issue", issueKey, "error", err)
	}
}

// sendBatch sends to every subscriber in batch concurrently and waits for
// all of them. Each goroutine writes only its own slot in results.
func (d *Dispatcher) sendBatch(ctx context.Context, index int, batch []models.Subscriber, posts []models.RecentPost) (sent, failed int) {
	ctx, span := d.tracer.Start(ctx, "newsletter.Batch", trace.WithAttributes(
		attribute.Int("batch.index", index),
		attribute.Int("batch.size", len(batch)),
	))
	defer span.End()

	results := make([]error, len(batch))
	var g errgroup.Group
	for i := range batch {
		sub := &batch[i]
		g.Go(func() error {
			results[i] = d.sendOne(ctx, sub, posts)
			return nil
		})
	}
	g.Wait()

	for i, err := range results {
		if err != nil {
			failed++
			slog.Error("newsletter send failed", "email", batch[i].Email, "error", err)
			continue
		}
		sent++
	}
	span.SetAttributes(attribute.Int("batch.sent", sent), attribute.Int("batch.failed", failed))
	return sent, failed
}

func (d *Dispatcher) sendOne(ctx context.Context, sub *models.Subscriber, posts []models.RecentPost) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic sending to subscriber: %v", r)
		}
	}()

	html, err := d.renderer.Render(d.opts.Subject, sub, posts)
	if err != nil {
		return err
	}
	return d.sender.Send(ctx, mailer.Message{
		To:      sub.Email,
		From:    d.opts.From,
		Subject: d.opts.Subject,
		HTML:    html,
		Headers: unsubscribeHeaders(d.renderer.UnsubscribeURL(sub)),
	})
}

// unsubscribeHeaders advertises one-click unsubscribe (RFC 8058) to mail
// clients. The endpoint accepts the POST they send.
func unsubscribeHeaders(link string) map[string]string {
	if link == "#" {
		return nil
	}
	return map[string]string{
		"List-Unsubscribe":      "<" + link + ">",
		"List-Unsubscribe-Post": "List-Unsubscribe=One-Click",
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewsletterGuard claims newsletter issue keys with SET NX so an issue is
// sent at most once per key lifetime, across processes.
type NewsletterGuard struct {
	client *redis.Client
}

// NewNewsletterGuard creates a guard backed by the given Valkey client.
func NewNewsletterGuard(client *redis.Client) *NewsletterGuard {
	return &NewsletterGuard{client: client}
}

// Claim returns true if key was not yet claimed and is now held for ttl.
func (g *NewsletterGuard) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := g.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("newsletter guard claim: %w", err)
	}
	return ok, nil
}

// Release drops a claim so the issue can be sent again.
func (g *NewsletterGuard) Release(ctx context.Context, key string) error {
	if err := g.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("newsletter guard release: %w", err)
	}
	return nil
}

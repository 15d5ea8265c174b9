// Package ratelimit spaces outgoing requests of one fetch client: a minimum
// interval between requests plus a random jitter on top.
package ratelimit

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/tulashvilimindia/batumi.work/internal/metrics"
)

// Config holds rate limiter configuration.
type Config struct {
	// Delay is the minimum gap between two requests. Zero disables spacing.
	Delay time.Duration
	// Jitter is the upper bound of the random extra wait added per request.
	Jitter time.Duration
}

// Limiter enforces Config for a single client instance.
type Limiter struct {
	limiter *rate.Limiter
	jitter  time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	limit := rate.Inf
	if cfg.Delay > 0 {
		limit = rate.Every(cfg.Delay)
	}
	return &Limiter{
		limiter: rate.NewLimiter(limit, 1),
		jitter:  cfg.Jitter,
		sleep:   sleepContext,
	}
}

// Wait blocks until the next request to rawURL may start. The jitter is
// slept before taking the token, so two returns are never closer than Delay.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	start := time.Now()
	if extra := randomDuration(l.jitter); extra > 0 {
		if err := l.sleep(ctx, extra); err != nil {
			return fmt.Errorf("rate limit jitter: %w", err)
		}
	}
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(hostOf(rawURL), waited)
	}
	return nil
}

func randomDuration(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return u.Hostname()
}

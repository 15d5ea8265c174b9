package fetch

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"math"
	"math/big"
	"net"
	"syscall"
	"time"
)

// RetryPolicy decides which failures are transient and how long to back
// off between attempts.
type RetryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// NewRetryPolicy builds an exponential policy. Non-positive arguments fall
// back to 3 attempts, 1s base and 30s cap.
func NewRetryPolicy(maxAttempts int, baseDelay, maxDelay time.Duration) *RetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	return &RetryPolicy{maxAttempts: maxAttempts, baseDelay: baseDelay, maxDelay: maxDelay}
}

// MaxAttempts is the total number of tries including the first.
func (p *RetryPolicy) MaxAttempts() int {
	return p.maxAttempts
}

// ShouldRetry reports whether attempt (1-based) failed transiently and
// another try is allowed. Upstream status errors are final, and so is any
// failure once the caller's ctx is done.
func (p *RetryPolicy) ShouldRetry(ctx context.Context, err error, attempt int) bool {
	if err == nil || attempt >= p.maxAttempts {
		return false
	}
	if ctx != nil && ctx.Err() != nil {
		return false
	}
	return IsTransient(err)
}

// IsTransient classifies network and timeout failures. A request timeout
// counts as transient; telling it apart from the caller's own deadline is
// ShouldRetry's job.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) || errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED)
}

// Backoff returns the wait before attempt+1: base*2^(attempt-1), capped,
// half fixed and half random.
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	half := time.Duration(delay / 2)
	return half + randomJitter(half)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/ashareinsight/ashareinsight/pkg/apperr"
	"github.com/ashareinsight/ashareinsight/pkg/config"
)

// Policy configures a bounded-exponential-backoff-with-jitter retry.
type Policy struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	JitterFraction    float64
	// Retryable decides whether err should be retried. Nil defaults to
	// IsRetryableTransport, which matches transport-level errors and 5xx.
	Retryable func(error) bool
}

// PolicyFromConfig builds a Policy from config.RetryConfig, filling in
// sensible defaults for any zero-valued field.
func PolicyFromConfig(cfg config.RetryConfig) Policy {
	p := Policy{
		MaxAttempts:       cfg.MaxAttempts,
		InitialDelay:      time.Duration(cfg.InitialDelayMillis) * time.Millisecond,
		MaxDelay:          time.Duration(cfg.MaxDelayMillis) * time.Millisecond,
		BackoffMultiplier: cfg.BackoffMultiplier,
		JitterFraction:    cfg.JitterFraction,
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = 200 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 5 * time.Second
	}
	if p.BackoffMultiplier <= 0 {
		p.BackoffMultiplier = 2.0
	}
	return p
}

// Do executes op, retrying up to p.MaxAttempts-1 additional times with
// jittered exponential backoff when op's error is retryable. Cancellation
// is never retried (§5, "Fusion retries... do not retry on cancellation" —
// generalized here to every retry(policy, op) call site).
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsRetryableTransport
	}

	var lastErr error
	var zero T

	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(p, attempt)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return zero, fmt.Errorf("context cancelled during retry backoff: %w", ctx.Err())
			}
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if errors.Is(ctx.Err(), context.Canceled) {
			return zero, ctx.Err()
		}
		if !retryable(err) {
			return zero, err
		}
	}

	return zero, fmt.Errorf("failed after %d attempts: %w", p.MaxAttempts, lastErr)
}

func backoffDelay(p Policy, attempt int) time.Duration {
	delay := float64(p.InitialDelay) * math.Pow(p.BackoffMultiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if p.JitterFraction > 0 {
		jitter := delay * p.JitterFraction * (rand.Float64()*2 - 1)
		delay += jitter
		if delay < 0 {
			delay = 0
		}
	}
	return time.Duration(delay)
}

// OptimisticLockBackoff implements §4.6's fusion retry schedule exactly:
// backoff 0.1*attempt seconds (attempt is 1-indexed).
func OptimisticLockBackoff(attempt int) time.Duration {
	return time.Duration(float64(attempt)*0.1*1000) * time.Millisecond
}

// IsRetryableTransport matches transport-level errors and 5xx responses,
// the default retry predicate for HTTP-backed collaborators (§4.3/§4.4).
// Every 4xx, 429 included, is fatal and not retried.
func IsRetryableTransport(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, apperr.ErrCircuitOpen) {
		return false
	}

	var statusCoder httpStatusCoder
	if errors.As(err, &statusCoder) {
		code := statusCoder.HTTPStatusCode()
		return code >= http.StatusInternalServerError
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"500", "internal server error",
		"502", "bad gateway",
		"503", "service unavailable",
		"504", "gateway timeout",
		"timeout", "connection reset", "connection refused",
		"temporary failure",
		"eof", "broken pipe",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// Package resilience implements C12: a circuit breaker and retry helper
// shared by every adapter that calls an external collaborator (DB,
// embedding service, rerank service, market-data provider). It is
// deliberately generic over the wrapped operation rather than tied to one
// client interface, per SPEC_FULL.md §9's "retry(policy, op) helper...
// do not spread retry logic through business code; it belongs at adapter
// boundaries."
package resilience

import (
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/ashareinsight/ashareinsight/pkg/alert"
	"github.com/ashareinsight/ashareinsight/pkg/apperr"
	"github.com/ashareinsight/ashareinsight/pkg/config"
)

// Breaker wraps an external dependency with circuit-breaker state tracking
// (§4.10: closed -> open after K consecutive failures -> half-open after
// cool-down T -> closed on success / open on failure). Once at least 3
// requests have been counted, it also opens when the failure ratio reaches
// ReadyToTripRatio.
type Breaker struct {
	cb      *gobreaker.CircuitBreaker
	alerter alert.Alerter
	name    string
}

// New creates a Breaker named name (used in alert messages and metrics).
// alerter may be nil, in which case breaker trips are not alerted.
func New(name string, cfg config.CircuitBreakerConfig, alerter alert.Alerter) *Breaker {
	if alerter == nil {
		alerter = &alert.NoOpAlerter{}
	}

	consecutive := cfg.ConsecutiveFails
	if consecutive == 0 {
		consecutive = 5
	}

	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    time.Duration(cfg.Interval) * time.Second,
		Timeout:     time.Duration(cfg.Timeout) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= consecutive {
				return true
			}
			if counts.Requests < 3 {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.ReadyToTripRatio
		},
		OnStateChange: func(breakerName string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				msg := fmt.Sprintf("circuit breaker %q changed from %s to %s", breakerName, from, to)
				_ = alerter.Alert(fmt.Sprintf("circuit breaker tripped: %s", breakerName), msg)
			}
		},
	}

	return &Breaker{cb: gobreaker.NewCircuitBreaker(st), alerter: alerter, name: name}
}

// Execute runs fn through the breaker. When the breaker is open, fn is not
// invoked and apperr.ErrCircuitOpen is returned (wrapped) immediately.
func (b *Breaker) Execute(fn func() (any, error)) (any, error) {
	result, err := b.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%s: %w", b.name, apperr.ErrCircuitOpen)
		}
		return nil, err
	}
	return result, nil
}

// ExecuteCtx runs a context-aware operation through the breaker.
func ExecuteCtx[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	res, err := b.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		return zero, err
	}
	return res.(T), nil
}

// State reports the breaker's current gobreaker.State (closed/half-open/open).
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

// Name returns the breaker's configured name.
func (b *Breaker) Name() string { return b.name }

// IsOpen is a convenience check used by callers implementing graceful
// degradation (e.g. C9 skipping rerank when its breaker is open).
func IsOpen(err error) bool {
	return errors.Is(err, apperr.ErrCircuitOpen)
}

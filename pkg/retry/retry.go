// Package retry re-runs an operation after transient failures with capped
// exponential backoff and jitter. The service retries in two places: the
// startup connection to Postgres and each write to the event broker.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MARKERS
// ══════════════════════════════════════════════════════════════════════════════

type transient struct{ err error }

func (e *transient) Error() string { return e.err.Error() }
func (e *transient) Unwrap() error { return e.err }

type permanent struct{ err error }

func (e *permanent) Error() string { return e.err.Error() }
func (e *permanent) Unwrap() error { return e.err }

// Retryable marks err as worth another attempt under the default classifier.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &transient{err: err}
}

// Permanent stops retrying even when the policy's classifier would retry.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanent{err: err}
}

// IsRetryable reports whether err was marked with Retryable.
func IsRetryable(err error) bool {
	var t *transient
	return errors.As(err, &t)
}

// ══════════════════════════════════════════════════════════════════════════════
// POLICY
// ══════════════════════════════════════════════════════════════════════════════

// Policy describes one retry loop. The delay before retry n is
// Base*2^(n-1), capped at Cap, then moved by up to ±Jitter of itself.
type Policy struct {
	Attempts int // total, including the first call
	Base     time.Duration
	Cap      time.Duration
	Jitter   float64

	// Classify decides whether an error is retried. Nil retries only
	// errors marked with Retryable.
	Classify func(error) bool

	// Notify is called before each sleep.
	Notify func(attempt int, err error, wait time.Duration)
}

// Startup waits for Postgres to accept connections, retrying any error
// except those marked Permanent (a malformed URL, for one).
func Startup(notify func(attempt int, err error, wait time.Duration)) Policy {
	return Policy{
		Attempts: 5,
		Base:     500 * time.Millisecond,
		Cap:      5 * time.Second,
		Jitter:   0.1,
		Classify: func(error) bool { return true },
		Notify:   notify,
	}
}

// Broker rides out a short broker hiccup inside one forward call. Longer
// outages are left to the circuit breaker.
func Broker() Policy {
	return Policy{
		Attempts: 3,
		Base:     100 * time.Millisecond,
		Cap:      2 * time.Second,
		Jitter:   0.2,
	}
}

// Do runs op until it succeeds, the error is not retryable, attempts run out
// or ctx ends. The returned error is op's last error with markers removed.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var last error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return last
			}
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		last = unmark(err)

		if !p.shouldRetry(err) || attempt == attempts {
			return last
		}

		wait := p.backoff(attempt)
		if p.Notify != nil {
			p.Notify(attempt, last, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return last
		case <-timer.C:
		}
	}
}

func (p Policy) shouldRetry(err error) bool {
	var perm *permanent
	if errors.As(err, &perm) {
		return false
	}
	if p.Classify != nil {
		return p.Classify(err)
	}
	return IsRetryable(err)
}

func (p Policy) backoff(attempt int) time.Duration {
	d := p.Cap
	if shift := attempt - 1; shift < 32 {
		if s := p.Base << shift; s > 0 && (p.Cap <= 0 || s < p.Cap) {
			d = s
		}
	}
	if p.Jitter > 0 {
		d += time.Duration(float64(d) * p.Jitter * (2*rand.Float64() - 1))
	}
	if d < 0 {
		return 0
	}
	return d
}

func unmark(err error) error {
	switch e := err.(type) {
	case *transient:
		return e.err
	case *permanent:
		return e.err
	}
	return err
}

// Package retry is the shared bounded-retry primitive wrapping every remote
// call in the pipeline. It is a thin layer over cenkalti/backoff: exponential
// delays from BaseDelay capped at CapDelay, jittered unless disabled, at most
// MaxAttempts executions. Callers decide what is worth retrying; wrap errors
// with Permanent to fail fast.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	CapDelay    time.Duration
	// NoJitter disables randomization. Used by tests that assert the delay
	// schedule; production config leaves it false.
	NoJitter bool
}

// Permanent marks an error as non-retryable.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op up to cfg.MaxAttempts times. Each retry emits a structured
// warning with the attempt number and the computed delay. The last error is
// returned unchanged once attempts are exhausted.
func Do[T any](ctx context.Context, log *logrus.Entry, label string, cfg Config, op func() (T, error)) (T, error) {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	attempt := 0
	notify := func(err error, delay time.Duration) {
		attempt++
		log.WithFields(logrus.Fields{
			"op":       label,
			"attempt":  attempt,
			"retry_in": delay.String(),
			"error":    err.Error(),
		}).Warn("operation failed, retrying")
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(newBackOff(cfg), uint64(attempts-1)),
		ctx,
	)
	return backoff.RetryNotifyWithData(op, b, notify)
}

func newBackOff(cfg Config) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.BaseDelay
	b.Multiplier = 2
	b.MaxInterval = cfg.CapDelay
	b.MaxElapsedTime = 0
	b.RandomizationFactor = 0.5
	if cfg.NoJitter {
		b.RandomizationFactor = 0
	}
	b.Reset()
	return b
}

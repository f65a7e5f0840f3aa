package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	errs "ofdl/pkg/errors"
	"ofdl/pkg/logger"
)

// Policy says how often and when an operation is retried.
type Policy struct {
	// Attempts bounds the total number of tries; zero means no bound.
	Attempts int
	Backoff  BackoffStrategy
	// RetryIf defaults to Retryable
	RetryIf func(error) bool
	// OnRetry runs after a failure, before the pause.
	OnRetry func(attempt int, err error, delay time.Duration)
	Logger  logger.Logger
}

// Retryable reports whether err is worth another try: typed errors by
// their type, context errors never, anything else always.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *errs.Error
	if errors.As(err, &apiErr) {
		return errs.IsRetryable(apiErr.Type)
	}
	return true
}

// Do runs op until it succeeds, fails with an error RetryIf rejects, runs
// out of attempts, or ctx is done.
func Do(ctx context.Context, p Policy, op func() error) error {
	retryIf := p.RetryIf
	if retryIf == nil {
		retryIf = Retryable
	}
	backoff := p.Backoff
	if backoff == nil {
		backoff = &ExponentialBackoff{Base: time.Second, Max: time.Minute, Multiplier: 2, Jitter: 0.1}
	}
	log := p.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}

	for attempt := 1; ; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		if !retryIf(err) {
			return err
		}
		if p.Attempts > 0 && attempt >= p.Attempts {
			log.WarnWithFields("giving up after retries", map[string]interface{}{
				"attempts": attempt,
				"error":    err.Error(),
			})
			return fmt.Errorf("gave up after %d attempts: %w", attempt, err)
		}

		delay := backoff.NextDelay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, delay)
		}
		log.DebugWithFields("retrying", map[string]interface{}{
			"attempt":  attempt,
			"error":    err.Error(),
			"delay_ms": delay.Milliseconds(),
		})
		if werr := Wait(ctx, delay); werr != nil {
			return fmt.Errorf("retry cancelled: %w", werr)
		}
	}
}

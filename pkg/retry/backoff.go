package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy returns the pause before retry number attempt (1-based).
type BackoffStrategy interface {
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff waits Base * Multiplier^(attempt-1), capped at Max,
// spread by +/- Jitter of itself.
type ExponentialBackoff struct {
	Base       time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

// maxBackoff caps the transport's pauses
const maxBackoff = 2 * time.Minute

// TransportBackoff doubles factor on every retry up to two minutes.
func TransportBackoff(factor time.Duration) *ExponentialBackoff {
	return &ExponentialBackoff{Base: factor, Max: maxBackoff, Multiplier: 2}
}

func (b *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	d := math.Min(float64(b.Base)*math.Pow(b.Multiplier, float64(attempt-1)), float64(b.Max))
	if b.Jitter > 0 {
		d += d * b.Jitter * (2*rand.Float64() - 1)
	}
	return time.Duration(math.Max(d, 0))
}

// LinearBackoff adds Step per attempt to Base, capped at Max when set.
type LinearBackoff struct {
	Base time.Duration
	Step time.Duration
	Max  time.Duration
}

func (b *LinearBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	d := b.Base + b.Step*time.Duration(attempt-1)
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

// ConstantBackoff always waits Delay
type ConstantBackoff struct {
	Delay time.Duration
}

func (b *ConstantBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return b.Delay
}

// Wait sleeps for d or until ctx is done, returning ctx.Err() in the
// latter case.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter blocks callers until a request may be sent.
type Limiter interface {
	// Allow reports whether a request may proceed now, consuming a slot.
	Allow() bool
	// Wait blocks until a slot is free or ctx is done.
	Wait(ctx context.Context) error
	// Reset forgets all recorded requests
	Reset()
}

// SlidingWindow admits at most maxRequests within any windowSize span.
type SlidingWindow struct {
	windowSize  time.Duration
	maxRequests int
	requests    []time.Time
	now         func() time.Time
	mu          sync.Mutex
}

// NewSlidingWindow creates a new sliding window rate limiter
func NewSlidingWindow(maxRequests int, windowSize time.Duration) *SlidingWindow {
	return &SlidingWindow{
		windowSize:  windowSize,
		maxRequests: maxRequests,
		requests:    make([]time.Time, 0, maxRequests),
		now:         time.Now,
	}
}

// PerMinute returns a limiter for n requests per minute, or nil when n is 0.
func PerMinute(n int) Limiter {
	if n <= 0 {
		return nil
	}
	return NewSlidingWindow(n, time.Minute)
}

func (sw *SlidingWindow) Allow() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	_, ok := sw.take()
	return ok
}

// take records a request if a slot is free, otherwise returns how long until
// the oldest request leaves the window. Caller holds mu.
func (sw *SlidingWindow) take() (time.Duration, bool) {
	now := sw.now()
	cutoff := now.Add(-sw.windowSize)
	i := 0
	for i < len(sw.requests) && !sw.requests[i].After(cutoff) {
		i++
	}
	sw.requests = sw.requests[i:]

	if len(sw.requests) < sw.maxRequests {
		sw.requests = append(sw.requests, now)
		return 0, true
	}
	return sw.requests[0].Sub(cutoff), false
}

func (sw *SlidingWindow) Wait(ctx context.Context) error {
	for {
		sw.mu.Lock()
		wait, ok := sw.take()
		sw.mu.Unlock()
		if ok {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

func (sw *SlidingWindow) Reset() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.requests = sw.requests[:0]
}

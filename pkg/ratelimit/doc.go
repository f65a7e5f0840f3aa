// Package ratelimit throttles outgoing API requests.
//
// SlidingWindow admits a fixed number of requests inside any moving window.
// The retry transport consults it before every attempt when a
// requests-per-minute budget is configured:
//
//	limiter := ratelimit.PerMinute(60)
//	if err := limiter.Wait(ctx); err != nil {
//	    return err
//	}
package ratelimit

package retry

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	errs "ofdl/pkg/errors"
	"ofdl/pkg/logger"
	"ofdl/pkg/ratelimit"
)

// Transport is an http.RoundTripper that retries connection failures and
// transient statuses (429, 500, 502, 503, 504). When every retry is spent
// the last response is returned unchanged so the caller can classify it.
type Transport struct {
	Base       http.RoundTripper
	MaxRetries int
	Backoff    BackoffStrategy
	// Limiter, when set, is waited on before every attempt.
	Limiter ratelimit.Limiter
	// MaxWait caps any single pause, including one asked for by Retry-After.
	MaxWait time.Duration
	Logger  logger.Logger
}

type attemptTimeoutKey struct{}

// WithAttemptTimeout bounds every attempt Transport makes for requests
// carrying the returned context, reading the response body included. The
// pauses between attempts are not counted.
func WithAttemptTimeout(ctx context.Context, d time.Duration) context.Context {
	return context.WithValue(ctx, attemptTimeoutKey{}, d)
}

func attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d, ok := ctx.Value(attemptTimeoutKey{}).(time.Duration); ok && d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return ctx, func() {}
}

// cancelBody releases an attempt's context once the caller is done with
// the body.
type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// NewTransport wraps base with the default retry policy.
func NewTransport(base http.RoundTripper, maxRetries int, factor time.Duration, limiter ratelimit.Limiter, log logger.Logger) *Transport {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Transport{
		Base:       base,
		MaxRetries: maxRetries,
		Backoff:    TransportBackoff(factor),
		Limiter:    limiter,
		MaxWait:    maxBackoff,
		Logger:     log,
	}
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	replayable := req.Body == nil || req.Body == http.NoBody || req.GetBody != nil

	for attempt := 0; ; attempt++ {
		if t.Limiter != nil {
			if err := t.Limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		actx, cancel := attemptContext(ctx)
		attemptReq := req.WithContext(actx)
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				cancel()
				return nil, err
			}
			attemptReq = req.Clone(actx)
			attemptReq.Body = body
		}

		start := time.Now()
		resp, err := t.base().RoundTrip(attemptReq)
		final := attempt >= t.MaxRetries || !replayable

		if err != nil {
			cancel()
			if final || ctx.Err() != nil {
				return nil, err
			}
		} else {
			logger.LogRequest(t.Logger, req.Method, req.URL.Path, resp.StatusCode,
				float64(time.Since(start).Microseconds())/1000)
			if !errs.IsRetryableStatusCode(resp.StatusCode) || final {
				resp.Body = cancelBody{ReadCloser: resp.Body, cancel: cancel}
				return resp, nil
			}
		}

		delay := t.Backoff.NextDelay(attempt + 1)
		if resp != nil {
			if after, ok := retryAfter(resp, time.Now()); ok {
				delay = after
			}
		}
		if t.MaxWait > 0 && delay > t.MaxWait {
			delay = t.MaxWait
		}

		if resp != nil {
			if resp.StatusCode == http.StatusTooManyRequests {
				logger.LogRateLimit(t.Logger, req.URL.Path, delay.Milliseconds())
			}
			drain(resp.Body)
			cancel()
		} else {
			t.Logger.DebugWithFields("retrying after transport error", map[string]interface{}{
				"path":     req.URL.Path,
				"attempt":  attempt + 1,
				"error":    err.Error(),
				"delay_ms": delay.Milliseconds(),
			})
		}

		if err := Wait(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP date.
func retryAfter(resp *http.Response, now time.Time) (time.Duration, bool) {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(v); err == nil {
		d := at.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

func drain(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	_ = body.Close()
}

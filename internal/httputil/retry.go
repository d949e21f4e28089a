// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides HTTP helpers shared across stages.
package httputil

import (
	"context"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"
)

// RetryBaseDelay controls the base duration for exponential backoff on
// transient failures. Tests override this to avoid real sleeps.
var RetryBaseDelay = 2 * time.Second

const defaultMaxAttempts = 3

// Gate is acquired before every network attempt. Rate limiters implement it
// so that backoff waits happen outside the pacing slot: a request that is
// sleeping between attempts consumes no limiter capacity.
type Gate func(ctx context.Context) error

// DoWithRetry executes an HTTP request, retrying transient failures with
// exponential backoff. Transient means a transport error or an HTTP 429
// response; any other status is returned to the caller as-is. The delay
// starts at RetryBaseDelay (2 s) and doubles each attempt: 2 s, 4 s. When a
// 429 carries a Retry-After header its value replaces the computed delay.
//
// When maxAttempts is 0 the default (3) is used; the count covers all
// network attempts, not just retries. A non-nil gate is re-acquired before
// each attempt. On each retry the previous response body is drained and
// closed before sleeping. If the context is cancelled during a gate or
// backoff wait the function returns ctx.Err(). After exhausting attempts
// the last response (or transport error) is returned so the caller can
// inspect it.
func DoWithRetry(ctx context.Context, client *http.Client, req *http.Request, maxAttempts int, gate Gate) (*http.Response, error) {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	for attempt := 0; ; attempt++ {
		if gate != nil {
			if err := gate(ctx); err != nil {
				return nil, err
			}
		}

		resp, err := client.Do(req.Clone(ctx))
		if err == nil && resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		// Exhausted attempts — surface the last outcome as-is.
		if attempt >= maxAttempts-1 {
			return resp, err
		}

		backoff := time.Duration(math.Pow(2, float64(attempt))) * RetryBaseDelay
		if err == nil {
			if d := retryAfterDelay(resp); d > 0 {
				backoff = d
			}
			// Drain and close the body before retrying.
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
}

// retryAfterDelay parses a Retry-After header, accepting both the
// delay-seconds and HTTP-date forms. It returns 0 when the header is
// missing or unparseable.
func retryAfterDelay(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

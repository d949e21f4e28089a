// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package enrich

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/pdiddy/corpus-engine/internal/httputil"
	"github.com/pdiddy/corpus-engine/pkg/types"
)

// Limiters holds one token bucket per upstream service, shared by every
// worker in the run so that raising concurrency never raises the request
// rate seen by any one API (prd004-enrich R6.1). The map is built once and
// read-only afterwards; rate.Limiter is itself safe for concurrent use.
type Limiters struct {
	buckets map[string]*rate.Limiter
}

// NewLimiters builds per-service buckets from overrides, falling back to
// types.DefaultRateLimits for anything left unconfigured.
func NewLimiters(overrides map[string]types.RateLimitConfig) *Limiters {
	merged := make(map[string]types.RateLimitConfig, len(types.DefaultRateLimits))
	for service, def := range types.DefaultRateLimits {
		merged[service] = def
	}
	for service, o := range overrides {
		cfg := merged[service]
		if o.RequestsPerSecond > 0 {
			cfg.RequestsPerSecond = o.RequestsPerSecond
		}
		if o.Burst > 0 {
			cfg.Burst = o.Burst
		}
		merged[service] = cfg
	}

	buckets := make(map[string]*rate.Limiter, len(merged))
	for service, cfg := range merged {
		rps := cfg.RequestsPerSecond
		if rps <= 0 {
			rps = 1
		}
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		buckets[service] = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return &Limiters{buckets: buckets}
}

// Wait blocks until the service's bucket grants a slot or the context is
// cancelled. A service with no bucket is unpaced.
func (l *Limiters) Wait(ctx context.Context, service string) error {
	lim, ok := l.buckets[service]
	if !ok {
		return nil
	}
	return lim.Wait(ctx)
}

// Gate adapts one service's bucket to the retry helper's pacing hook, so
// each network attempt pays the rate-limit cost while backoff sleeps do
// not hold a slot.
func (l *Limiters) Gate(service string) httputil.Gate {
	return func(ctx context.Context) error {
		return l.Wait(ctx, service)
	}
}

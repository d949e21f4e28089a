// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package enrich

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/pdiddy/corpus-engine/internal/httputil"
	"github.com/pdiddy/corpus-engine/pkg/types"
)

const defaultHTTPTimeout = 30 * time.Second

// Chain walks the enrichment tiers for one cluster in configured order.
// Tier construction, pacing, and outage tracking live here; the source
// clients hold only request and response shapes.
type Chain struct {
	Sources     []Source
	Breaker     *Breaker
	MinAbstract int
	Log         zerolog.Logger
}

// NewChain builds the configured tier chain, wiring every tier of one
// service through a single shared limiter gate.
func NewChain(cfg types.EnrichConfig, log zerolog.Logger) (*Chain, error) {
	names := cfg.Chain
	if len(names) == 0 {
		names = types.DefaultChain
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	client := &http.Client{Timeout: timeout}

	if cfg.Retry.BaseDelay > 0 {
		httputil.RetryBaseDelay = cfg.Retry.BaseDelay
	}
	attempts := cfg.Retry.MaxAttempts

	lim := NewLimiters(rateLimits(cfg))

	sources := make([]Source, 0, len(names))
	for _, name := range names {
		var src Source
		switch name {
		case "semantic_scholar_doi":
			src = &SemanticScholarDOI{
				Client:      client,
				APIKey:      cfg.SemanticScholarAPIKey,
				UserAgent:   cfg.UserAgent,
				MaxAttempts: attempts,
				Gate:        lim.Gate(ServiceSemanticScholar),
			}
		case "crossref":
			src = &CrossRef{
				Client:      client,
				UserAgent:   cfg.UserAgent,
				Mailto:      cfg.CrossRefMailto,
				MaxAttempts: attempts,
				Gate:        lim.Gate(ServiceCrossRef),
			}
		case "pubmed":
			src = &PubMed{
				Client:      client,
				APIKey:      cfg.NCBIAPIKey,
				UserAgent:   cfg.UserAgent,
				MaxAttempts: attempts,
				Gate:        lim.Gate(ServicePubMed),
			}
		case "arxiv":
			src = &Arxiv{
				Client:      client,
				UserAgent:   cfg.UserAgent,
				MaxAttempts: attempts,
				Gate:        lim.Gate(ServiceArxiv),
			}
		case "semantic_scholar_title":
			src = &SemanticScholarTitle{
				Client:      client,
				APIKey:      cfg.SemanticScholarAPIKey,
				UserAgent:   cfg.UserAgent,
				MaxAttempts: attempts,
				Gate:        lim.Gate(ServiceSemanticScholar),
			}
		default:
			return nil, fmt.Errorf("unknown enrichment source %q", name)
		}
		sources = append(sources, src)
	}

	minLen := cfg.MinAbstractLength
	if minLen <= 0 {
		minLen = types.DefaultMinAbstractLength
	}

	return &Chain{
		Sources:     sources,
		Breaker:     NewBreaker(cfg.OutageThreshold),
		MinAbstract: minLen,
		Log:         log,
	}, nil
}

// rateLimits returns the configured per-service overrides, raising the
// PubMed allowance to NCBI's keyed quota of 10 requests per second when an
// API key is present. An explicit pubmed override still wins.
func rateLimits(cfg types.EnrichConfig) map[string]types.RateLimitConfig {
	if cfg.NCBIAPIKey == "" {
		return cfg.RateLimits
	}
	if _, ok := cfg.RateLimits[ServicePubMed]; ok {
		return cfg.RateLimits
	}
	limits := make(map[string]types.RateLimitConfig, len(cfg.RateLimits)+1)
	for service, o := range cfg.RateLimits {
		limits[service] = o
	}
	limits[ServicePubMed] = types.RateLimitConfig{RequestsPerSecond: 10, Burst: 1}
	return limits
}

// Enrich consults tiers in order until one recovers a usable abstract,
// returning the text, the recovering tier's name, and one attempt record
// per consulted tier. Tiers whose identifier is absent are passed over
// without a record; tiers whose service has been disabled for the run
// record a skipped attempt. A non-nil error means the context ended before
// the chain did.
func (c *Chain) Enrich(ctx context.Context, rec types.ClusterRecord) (string, string, []types.EnrichmentAttempt, error) {
	var attempts []types.EnrichmentAttempt
	for _, src := range c.Sources {
		if ctx.Err() != nil {
			return "", "", attempts, ctx.Err()
		}
		if !src.Eligible(rec) {
			continue
		}
		if !c.Breaker.Allow(src.Service()) {
			attempts = append(attempts, types.EnrichmentAttempt{
				ClusterID: rec.ClusterID,
				Source:    src.Name(),
				Outcome:   types.OutcomeSkipped,
				Error:     "service disabled for this run",
			})
			continue
		}

		text, err := src.Fetch(ctx, rec)
		switch {
		case err == nil && usable(text, c.MinAbstract):
			c.Breaker.Success(src.Service())
			attempts = append(attempts, types.EnrichmentAttempt{
				ClusterID: rec.ClusterID,
				Source:    src.Name(),
				Outcome:   types.OutcomeSuccess,
				Abstract:  text,
			})
			c.Log.Debug().
				Int("cluster", rec.ClusterID).
				Str("tier", src.Name()).
				Msg("abstract recovered")
			return text, src.Name(), attempts, nil

		case err == nil || errors.Is(err, ErrNotFound):
			// The service answered; it just has nothing usable for us.
			c.Breaker.Success(src.Service())
			attempts = append(attempts, types.EnrichmentAttempt{
				ClusterID: rec.ClusterID,
				Source:    src.Name(),
				Outcome:   types.OutcomeNotFound,
			})

		case ctx.Err() != nil:
			return "", "", attempts, ctx.Err()

		default:
			tripped := c.Breaker.Failure(src.Service())
			attempts = append(attempts, types.EnrichmentAttempt{
				ClusterID: rec.ClusterID,
				Source:    src.Name(),
				Outcome:   types.OutcomeError,
				Error:     err.Error(),
			})
			if tripped {
				c.Log.Warn().
					Str("service", src.Service()).
					Int("consecutive_failures", c.Breaker.threshold).
					Msg("service failing repeatedly, disabled for remainder of run")
			}
		}
	}
	return "", "", attempts, nil
}

// usable applies the minimum-length rule: an abstract counts as present
// only when it has strictly more than min runes after trimming.
func usable(text string, min int) bool {
	return utf8.RuneCountInString(strings.TrimSpace(text)) > min
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package enrich

import (
	"sort"
	"sync"
)

// defaultOutageThreshold is the consecutive-failure count that disables a
// service when EnrichConfig.OutageThreshold is zero.
const defaultOutageThreshold = 5

// Breaker disables an upstream service for the remainder of the run once
// it fails too many times in a row (prd004-enrich R6.2). There is no
// half-open probe: an exhausted quota or revoked credential does not heal
// mid-run, so a tripped service stays dark until the next invocation.
type Breaker struct {
	mu        sync.Mutex
	threshold int
	failures  map[string]int
	open      map[string]bool
}

// NewBreaker creates a breaker that trips after threshold consecutive
// outage-class failures of one service.
func NewBreaker(threshold int) *Breaker {
	if threshold <= 0 {
		threshold = defaultOutageThreshold
	}
	return &Breaker{
		threshold: threshold,
		failures:  make(map[string]int),
		open:      make(map[string]bool),
	}
}

// Allow reports whether the service may still be consulted.
func (b *Breaker) Allow(service string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.open[service]
}

// Success resets the consecutive-failure count. Definitive misses count as
// successes: the service answered, it just had nothing for us.
func (b *Breaker) Success(service string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[service] = 0
}

// Failure records an outage-class failure and reports whether this one
// tripped the breaker, so the caller can warn exactly once per service.
func (b *Breaker) Failure(service string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.open[service] {
		return false
	}
	b.failures[service]++
	if b.failures[service] >= b.threshold {
		b.open[service] = true
		return true
	}
	return false
}

// Open lists tripped services in sorted order for the run summary.
func (b *Breaker) Open() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	services := make([]string, 0, len(b.open))
	for service := range b.open {
		services = append(services, service)
	}
	sort.Strings(services)
	return services
}

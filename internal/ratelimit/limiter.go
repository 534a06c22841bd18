// Package ratelimit implements the global per-provider minimum-interval
// gate every LLM call must pass through (spec component B). It mirrors the
// original implementation's per-key asyncio.Lock plus monotonic-clock gate,
// rebuilt on top of golang.org/x/time/rate for the actual wait semantics.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter enforces a minimum interval between successive acquisitions for
// each key independently. Two different providers never block each other;
// two calls for the same provider always end up at least `interval` apart.
type Limiter struct {
	mu       sync.Mutex
	interval func() float64 // events per second, re-read so config can change the interval
	gates    map[string]*rate.Limiter
}

// New builds a Limiter whose per-key rate is ratePerSecond() events per
// second (an interval of 1/ratePerSecond). The rate is taken as a function
// so a live config reload is picked up by newly-seen keys; see NewFixed for
// the common constant-rate case.
func New(ratePerSecond func() float64) *Limiter {
	return &Limiter{
		interval: ratePerSecond,
		gates:    make(map[string]*rate.Limiter),
	}
}

// NewFixed builds a Limiter with the same constant rate for every key.
func NewFixed(ratePerSecond float64) *Limiter {
	return New(func() float64 { return ratePerSecond })
}

func (l *Limiter) gateFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	g, ok := l.gates[key]
	if !ok {
		g = rate.NewLimiter(rate.Limit(l.interval()), 1)
		l.gates[key] = g
	}
	return g
}

// Acquire blocks until it is this caller's turn for key, honoring ctx
// cancellation. Concurrent callers for the same key are served fairly in
// the order rate.Limiter.Wait admits them.
func (l *Limiter) Acquire(ctx context.Context, key string) error {
	return l.gateFor(key).Wait(ctx)
}

// ABOUTME: Per-actor token-bucket rate gate built on golang.org/x/time/rate.
// ABOUTME: Limiters are created lazily and shared across all of an actor's commands.

package command

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateGate hands out one token-bucket limiter per actor.
type RateGate struct {
	mu       sync.Mutex
	limiters map[uint64]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewRateGate creates a gate allowing perSecond requests per actor with
// the given burst.
func NewRateGate(perSecond float64, burst int) *RateGate {
	return &RateGate{
		limiters: make(map[uint64]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

// Allow reports whether the actor may proceed, consuming a token if so.
func (g *RateGate) Allow(actorID uint64) bool {
	g.mu.Lock()
	limiter, ok := g.limiters[actorID]
	if !ok {
		limiter = rate.NewLimiter(g.limit, g.burst)
		g.limiters[actorID] = limiter
	}
	g.mu.Unlock()

	return limiter.Allow()
}

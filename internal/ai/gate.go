package ai

import (
	"context"

	"golang.org/x/time/rate"

	lferrors "git.home.luguber.info/inful/leadforge/internal/errors"
)

// Gate bounds pressure on one upstream provider: a semaphore caps concurrent
// calls, a token bucket caps the request rate. One gate is shared by every
// runner talking to the same provider.
type Gate struct {
	sem     chan struct{}
	limiter *rate.Limiter
}

// NewGate creates a gate allowing at most maxConcurrent in-flight calls and
// ratePerSecond new calls per second. Zero values disable that bound.
func NewGate(maxConcurrent int, ratePerSecond float64) *Gate {
	g := &Gate{}
	if maxConcurrent > 0 {
		g.sem = make(chan struct{}, maxConcurrent)
	}
	if ratePerSecond > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(ratePerSecond), max(1, int(ratePerSecond)))
	}
	return g
}

// Acquire blocks until a slot and a rate token are available, or the context
// ends. The returned release function must be called exactly once.
func (g *Gate) Acquire(ctx context.Context) (func(), error) {
	if g.sem != nil {
		select {
		case g.sem <- struct{}{}:
		case <-ctx.Done():
			return nil, lferrors.Cancelled("").WithContext("operation", "acquire ai slot")
		}
	}
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			if g.sem != nil {
				<-g.sem
			}
			return nil, lferrors.Cancelled("").WithContext("operation", "await ai rate token")
		}
	}
	release := func() {
		if g.sem != nil {
			<-g.sem
		}
	}
	return release, nil
}

// SetRate adjusts the request rate at runtime (hot-reloadable).
func (g *Gate) SetRate(ratePerSecond float64) {
	if g.limiter == nil || ratePerSecond <= 0 {
		return
	}
	g.limiter.SetLimit(rate.Limit(ratePerSecond))
	g.limiter.SetBurst(max(1, int(ratePerSecond)))
}

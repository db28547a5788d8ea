// ABOUTME: Execution pacing between consecutive sends
// ABOUTME: A token bucket at the minimum gap, re-armed with a random gap up to the maximum after each send
package ratelimit

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/harperreed/cadence/config"
	"golang.org/x/time/rate"
)

// Pacer spaces sends by a random gap between the configured minimum and maximum.
// The first Wait returns immediately.
type Pacer struct {
	limiter *rate.Limiter
	min     time.Duration
	max     time.Duration
	jitter  func(n int64) int64
}

func NewPacer(cfg config.Limits) *Pacer {
	p := &Pacer{min: cfg.MinGap(), max: cfg.MaxGap(), jitter: rand.Int64N}
	p.limiter = rate.NewLimiter(limitFor(p.min), 1)
	return p
}

// Wait blocks until the next send may go out or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	p.limiter.SetLimit(limitFor(p.NextGap()))
	return nil
}

// NextGap draws the pause before the following send.
func (p *Pacer) NextGap() time.Duration {
	spread := p.max - p.min
	if spread <= 0 {
		return p.min
	}
	return p.min + time.Duration(p.jitter(int64(spread)+1))
}

func limitFor(gap time.Duration) rate.Limit {
	if gap <= 0 {
		return rate.Inf
	}
	return rate.Every(gap)
}

// ABOUTME: Tests for execution pacing
// ABOUTME: Checks gap bounds and that a zero gap never blocks
package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/harperreed/cadence/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacerNextGapWithinBounds(t *testing.T) {
	p := NewPacer(config.Limits{MinGapSeconds: 120, MaxGapSeconds: 300})
	for i := 0; i < 100; i++ {
		gap := p.NextGap()
		assert.GreaterOrEqual(t, gap, 2*time.Minute)
		assert.LessOrEqual(t, gap, 5*time.Minute)
	}

	p.jitter = func(n int64) int64 { return n - 1 }
	assert.Equal(t, 5*time.Minute, p.NextGap())
}

func TestPacerZeroGapDoesNotBlock(t *testing.T) {
	p := NewPacer(config.Limits{})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for i := 0; i < 5; i++ {
		require.NoError(t, p.Wait(ctx))
	}
}

func TestPacerFirstWaitIsImmediate(t *testing.T) {
	p := NewPacer(config.Limits{MinGapSeconds: 3600, MaxGapSeconds: 3600})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, p.Wait(ctx))
	err := p.Wait(ctx)
	assert.Error(t, err, "second send must wait an hour")
}

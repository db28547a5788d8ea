// ABOUTME: Pure relationship score computation
// ABOUTME: Sums configured interaction points with time decay over a lookback window, clamped to 0..100
package scoring

import (
	"math"
	"time"

	"github.com/harperreed/cadence/config"
	"github.com/harperreed/cadence/models"
)

const (
	MinRelationshipScore = 0
	MaxRelationshipScore = 100
)

// DecayWeight returns the multiplier applied to an interaction of the given age.
// Future-dated interactions count in full; anything past the lookback counts nothing.
func DecayWeight(age time.Duration, d config.Decay) float64 {
	if age <= 0 {
		return 1
	}
	ageDays := age.Hours() / 24
	lookback := float64(d.LookbackDays)
	if ageDays > lookback {
		return 0
	}

	switch d.Kind {
	case config.DecayExponential:
		return math.Pow(0.5, ageDays/d.HalfLifeDays)
	case config.DecayLinear:
		return 1 - ageDays/lookback
	default:
		return 1
	}
}

// RelationshipScore computes a contact's score from its ledger as of asOf.
// Points come from cfg, so reweighting the table rescores history.
func RelationshipScore(interactions []models.Interaction, cfg config.Scoring, asOf time.Time) int {
	var total float64
	for _, in := range interactions {
		w := DecayWeight(asOf.Sub(in.OccurredAt), cfg.Decay)
		if w == 0 {
			continue
		}
		total += float64(cfg.PointsFor(in.Type)) * w
	}
	return clampInt(int(math.Round(total)), MinRelationshipScore, MaxRelationshipScore)
}

// LookbackStart is the oldest occurrence time that can still contribute at asOf.
func LookbackStart(cfg config.Scoring, asOf time.Time) time.Time {
	return asOf.Add(-time.Duration(cfg.Decay.LookbackDays) * 24 * time.Hour)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ABOUTME: Pure priority score computation for target contacts
// ABOUTME: Weighted relevance, accessibility and timing sub-scores, each 0..10
package scoring

import (
	"math"

	"github.com/harperreed/cadence/config"
	"github.com/harperreed/cadence/models"
)

const (
	MinPriorityScore = 0.0
	MaxPriorityScore = 10.0
)

// PriorityInput carries the contact attributes priority depends on.
type PriorityInput struct {
	// MaxCategoryWeight is the heaviest category weight; zero means uncategorized.
	MaxCategoryWeight  float64
	Seniority          string
	MutualConnections  int
	ActiveOnProfile    bool
	OpenToConnect      bool
	IntroductionSource string
}

// PriorityBreakdown is the priority score with its parts.
type PriorityBreakdown struct {
	Relevance     float64 `json:"relevance"`
	Accessibility float64 `json:"accessibility"`
	Timing        float64 `json:"timing"`
	Total         float64 `json:"total"`
}

// InputFor builds the priority input for a contact and its heaviest category weight.
func InputFor(c *models.Contact, maxCategoryWeight float64) PriorityInput {
	return PriorityInput{
		MaxCategoryWeight:  maxCategoryWeight,
		Seniority:          c.Seniority,
		MutualConnections:  c.MutualConnectionsCount,
		ActiveOnProfile:    c.IsActiveOnProfile,
		OpenToConnect:      c.HasOpenToConnectSignal,
		IntroductionSource: c.IntroductionSource,
	}
}

// Priority computes the weighted priority score.
func Priority(in PriorityInput, cfg config.Scoring) PriorityBreakdown {
	b := PriorityBreakdown{
		Relevance:     Relevance(in, cfg),
		Accessibility: Accessibility(in, cfg.Accessibility),
		Timing:        Timing(in),
	}
	w := cfg.Weights
	total := b.Relevance*w.Relevance + b.Accessibility*w.Accessibility + b.Timing*w.Timing
	b.Total = clampFloat(round1(total), MinPriorityScore, MaxPriorityScore)
	return b
}

// Relevance is (category weight x seniority multiplier) / 15 x 10, one decimal, capped at 10.
func Relevance(in PriorityInput, cfg config.Scoring) float64 {
	weight := in.MaxCategoryWeight
	if weight <= 0 {
		weight = 1
	}
	raw := weight * cfg.SeniorityMultiplier(in.Seniority) / 15 * 10
	return clampFloat(round1(raw), 0, MaxPriorityScore)
}

// Accessibility adds points for mutual connections, profile signals and an introduction path.
func Accessibility(in PriorityInput, a config.Accessibility) float64 {
	var score float64
	switch {
	case in.MutualConnections >= a.MutualsHigh:
		score += a.MutualsHighPoints
	case in.MutualConnections >= a.MutualsMid:
		score += a.MutualsMidPoints
	case in.MutualConnections >= a.MutualsLow && in.MutualConnections > 0:
		score += a.MutualsLowPoints
	}
	if in.ActiveOnProfile || in.OpenToConnect {
		score += a.SignalPoints
	}
	if in.IntroductionSource != "" {
		score += a.IntroPoints
	}
	return math.Min(score, MaxPriorityScore)
}

// Timing is reserved for external signals such as job changes and always scores zero.
func Timing(PriorityInput) float64 {
	return 0
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

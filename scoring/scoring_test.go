// ABOUTME: Tests for the pure scoring functions
// ABOUTME: Covers decay kinds, clamping, the priority breakdown and its worked example
package scoring

import (
	"testing"
	"time"

	"github.com/harperreed/cadence/config"
	"github.com/harperreed/cadence/models"
	"github.com/stretchr/testify/assert"
)

var asOf = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func interaction(t string, daysAgo float64) models.Interaction {
	return models.Interaction{Type: t, OccurredAt: asOf.Add(-time.Duration(daysAgo * 24 * float64(time.Hour)))}
}

func TestDecayWeight(t *testing.T) {
	exp := config.Decay{Kind: config.DecayExponential, HalfLifeDays: 30, LookbackDays: 180}
	lin := config.Decay{Kind: config.DecayLinear, LookbackDays: 100}
	none := config.Decay{Kind: config.DecayNone, LookbackDays: 100}
	day := 24 * time.Hour

	assert.Equal(t, 1.0, DecayWeight(0, exp))
	assert.Equal(t, 1.0, DecayWeight(-5*day, exp), "future interactions count in full")
	assert.InDelta(t, 0.5, DecayWeight(30*day, exp), 1e-9)
	assert.InDelta(t, 0.25, DecayWeight(60*day, exp), 1e-9)
	assert.Equal(t, 0.0, DecayWeight(181*day, exp))

	assert.InDelta(t, 0.75, DecayWeight(25*day, lin), 1e-9)
	assert.Equal(t, 0.0, DecayWeight(101*day, lin))

	assert.Equal(t, 1.0, DecayWeight(99*day, none))
	assert.Equal(t, 0.0, DecayWeight(101*day, none))
}

func TestRelationshipScore(t *testing.T) {
	cfg := config.DefaultScoring()

	tests := []struct {
		name         string
		interactions []models.Interaction
		want         int
	}{
		{"empty ledger", nil, 0},
		{"fresh meeting", []models.Interaction{interaction(models.InteractionMeetingInPerson, 0)}, 10},
		{"half-life meeting", []models.Interaction{interaction(models.InteractionMeetingInPerson, 30)}, 5},
		{"outside lookback", []models.Interaction{interaction(models.InteractionMeetingInPerson, 200)}, 0},
		{"mixed", []models.Interaction{
			interaction(models.InteractionCall, 0),
			interaction(models.InteractionMessageReceived, 0),
			interaction(models.InteractionLikeGiven, 30),
		}, 10}, // 6 + 3 + 0.5 rounds up
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RelationshipScore(tt.interactions, cfg, asOf))
		})
	}
}

func TestRelationshipScoreIsClamped(t *testing.T) {
	cfg := config.DefaultScoring()
	var many []models.Interaction
	for i := 0; i < 40; i++ {
		many = append(many, interaction(models.InteractionMeetingInPerson, 0))
	}
	assert.Equal(t, 100, RelationshipScore(many, cfg, asOf))
}

func TestRelationshipScoreUsesConfiguredPoints(t *testing.T) {
	cfg := config.DefaultScoring()
	cfg.Decay.Kind = config.DecayNone
	cfg.Points[models.InteractionCall] = 20

	score := RelationshipScore([]models.Interaction{interaction(models.InteractionCall, 10)}, cfg, asOf)
	assert.Equal(t, 20, score)
}

func TestPriorityWorkedExample(t *testing.T) {
	cfg := config.DefaultScoring()
	in := PriorityInput{
		MaxCategoryWeight:  10,
		Seniority:          models.SeniorityCSuite,
		MutualConnections:  6,
		OpenToConnect:      true,
		IntroductionSource: "Alice",
	}

	b := Priority(in, cfg)
	assert.Equal(t, 10.0, b.Relevance)
	assert.Equal(t, 9.0, b.Accessibility)
	assert.Equal(t, 0.0, b.Timing)
	assert.Equal(t, 7.7, b.Total)
}

func TestRelevance(t *testing.T) {
	cfg := config.DefaultScoring()

	assert.Equal(t, 0.7, Relevance(PriorityInput{}, cfg), "uncategorized counts as weight 1")
	assert.Equal(t, 0.5, Relevance(PriorityInput{MaxCategoryWeight: 1, Seniority: models.SeniorityIC}, cfg)) // 0.533 -> 0.5
	assert.Equal(t, 4.0, Relevance(PriorityInput{MaxCategoryWeight: 5, Seniority: models.SeniorityDirector}, cfg))
	assert.Equal(t, 10.0, Relevance(PriorityInput{MaxCategoryWeight: 10, Seniority: models.SeniorityVP}, cfg))
}

func TestAccessibility(t *testing.T) {
	a := config.DefaultScoring().Accessibility

	assert.Equal(t, 0.0, Accessibility(PriorityInput{}, a))
	assert.Equal(t, 1.0, Accessibility(PriorityInput{MutualConnections: 1}, a))
	assert.Equal(t, 2.0, Accessibility(PriorityInput{MutualConnections: 4}, a))
	assert.Equal(t, 4.0, Accessibility(PriorityInput{MutualConnections: 5}, a))
	assert.Equal(t, 2.0, Accessibility(PriorityInput{ActiveOnProfile: true, OpenToConnect: true}, a))
	assert.Equal(t, 9.0, Accessibility(PriorityInput{MutualConnections: 50, ActiveOnProfile: true, IntroductionSource: "x"}, a))

	a.IntroPoints = 8
	assert.Equal(t, 10.0, Accessibility(PriorityInput{MutualConnections: 50, ActiveOnProfile: true, IntroductionSource: "x"}, a))
}

func TestPriorityBounds(t *testing.T) {
	cfg := config.DefaultScoring()
	for _, seniority := range []string{"", models.SeniorityIC, models.SeniorityManager, models.SeniorityDirector, models.SeniorityVP, models.SeniorityCSuite} {
		for weight := 0.0; weight <= 10; weight++ {
			for mutuals := 0; mutuals <= 6; mutuals += 3 {
				b := Priority(PriorityInput{MaxCategoryWeight: weight, Seniority: seniority, MutualConnections: mutuals, OpenToConnect: true, IntroductionSource: "i"}, cfg)
				assert.GreaterOrEqual(t, b.Total, MinPriorityScore)
				assert.LessOrEqual(t, b.Total, MaxPriorityScore)
			}
		}
	}
}

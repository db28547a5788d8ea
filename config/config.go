// ABOUTME: Configuration structures and built-in defaults
// ABOUTME: App settings plus the Scoring value object injected into every scoring and scheduling run
package config

import (
	"math"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/harperreed/cadence/models"
)

// Config is the full process configuration.
type Config struct {
	App     App     `koanf:"app"`
	Scoring Scoring `koanf:"scoring"`
}

// App holds process-level settings.
type App struct {
	DBPath string `koanf:"db_path"`
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// Timezone names the location used for calendar-day and week boundaries.
	Timezone string `koanf:"timezone"`
	// RateStore selects the limiter counter backend: sqlite or badger. badger locks its
	// directory, so only sqlite can be shared by several cadence processes.
	RateStore   string `koanf:"rate_store"`
	BadgerPath  string `koanf:"badger_path"`
	MetricsAddr string `koanf:"metrics_addr"`
}

// Scoring is every tunable the core reads. It is loaded once per run and passed by value.
type Scoring struct {
	Points        map[string]int     `koanf:"points"`
	Decay         Decay              `koanf:"decay"`
	Weights       Weights            `koanf:"weights"`
	Seniority     map[string]float64 `koanf:"seniority"`
	Accessibility Accessibility      `koanf:"accessibility"`
	Promotion     Promotion          `koanf:"promotion"`
	Cold          Cold               `koanf:"cold"`
	FollowUp      FollowUp           `koanf:"follow_up"`
	Queue         QueueCaps          `koanf:"queue"`
	Limits        Limits             `koanf:"limits"`
	Batch         Batch              `koanf:"batch"`
}

// Decay kinds.
const (
	DecayExponential = "exponential"
	DecayLinear      = "linear"
	DecayNone        = "none"
)

type Decay struct {
	Kind         string  `koanf:"kind"`
	HalfLifeDays float64 `koanf:"half_life_days"`
	LookbackDays int     `koanf:"lookback_days"`
}

// Weights combine the priority sub-scores; they must sum to 1.
type Weights struct {
	Relevance     float64 `koanf:"relevance"`
	Accessibility float64 `koanf:"accessibility"`
	Timing        float64 `koanf:"timing"`
}

type Accessibility struct {
	MutualsHigh       int     `koanf:"mutuals_high"`
	MutualsHighPoints float64 `koanf:"mutuals_high_points"`
	MutualsMid        int     `koanf:"mutuals_mid"`
	MutualsMidPoints  float64 `koanf:"mutuals_mid_points"`
	MutualsLow        int     `koanf:"mutuals_low"`
	MutualsLowPoints  float64 `koanf:"mutuals_low_points"`
	SignalPoints      float64 `koanf:"signal_points"`
	IntroPoints       float64 `koanf:"intro_points"`
}

// Promotion thresholds; zero disables the edge.
type Promotion struct {
	EngagedScore      int `koanf:"engaged_score"`
	RelationshipScore int `koanf:"relationship_score"`
}

type Cold struct {
	LookbackDays  int  `koanf:"lookback_days"`
	DropThreshold int  `koanf:"drop_threshold"`
	Demote        bool `koanf:"demote"`
}

type FollowUp struct {
	StaleDays int `koanf:"stale_days"`
	MinScore  int `koanf:"min_score"`
	MaxScore  int `koanf:"max_score"`
}

type QueueCaps struct {
	MaxConnectionRequests int `koanf:"max_connection_requests"`
	MaxFollowUps          int `koanf:"max_follow_ups"`
	MaxReEngagements      int `koanf:"max_re_engagements"`
}

// Limiter windows.
const (
	WindowCalendar = "calendar"
	WindowRolling  = "rolling"
)

type Limits struct {
	Daily         int    `koanf:"daily"`
	Weekly        int    `koanf:"weekly"`
	MinGapSeconds int    `koanf:"min_gap_seconds"`
	MaxGapSeconds int    `koanf:"max_gap_seconds"`
	CooldownDays  int    `koanf:"cooldown_days"`
	Window        string `koanf:"window"`
}

// MinGap is the shortest pause between two sends.
func (l Limits) MinGap() time.Duration { return time.Duration(l.MinGapSeconds) * time.Second }

// MaxGap is the longest pause between two sends.
func (l Limits) MaxGap() time.Duration { return time.Duration(l.MaxGapSeconds) * time.Second }

// Cooldown is the default suppression window after a soft ban.
func (l Limits) Cooldown() time.Duration { return time.Duration(l.CooldownDays) * 24 * time.Hour }

type Batch struct {
	PageSize int     `koanf:"page_size"`
	Epsilon  float64 `koanf:"epsilon"`
}

// DefaultDBPath returns the database location under the XDG data directory.
func DefaultDBPath() string {
	return filepath.Join(xdg.DataHome, "cadence", "cadence.db")
}

// DefaultBadgerPath returns the embedded counter store directory.
func DefaultBadgerPath() string {
	return filepath.Join(xdg.DataHome, "cadence", "ratelimit")
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		App: App{
			DBPath:      DefaultDBPath(),
			LogLevel:    "info",
			Timezone:    "Local",
			RateStore:   "sqlite",
			BadgerPath:  DefaultBadgerPath(),
			MetricsAddr: ":9090",
		},
		Scoring: DefaultScoring(),
	}
}

// DefaultScoring returns the built-in scoring tunables.
func DefaultScoring() Scoring {
	points := make(map[string]int, len(models.DefaultInteractionPoints))
	for k, v := range models.DefaultInteractionPoints {
		points[k] = v
	}
	return Scoring{
		Points: points,
		Decay: Decay{
			Kind:         DecayExponential,
			HalfLifeDays: 30,
			LookbackDays: 180,
		},
		Weights: Weights{Relevance: 0.5, Accessibility: 0.3, Timing: 0.2},
		Seniority: map[string]float64{
			models.SeniorityCSuite:   1.5,
			models.SeniorityVP:       1.5,
			models.SeniorityDirector: 1.2,
			models.SeniorityManager:  1.0,
			models.SeniorityIC:       0.8,
		},
		Accessibility: Accessibility{
			MutualsHigh: 5, MutualsHighPoints: 4,
			MutualsMid: 2, MutualsMidPoints: 2,
			MutualsLow: 1, MutualsLowPoints: 1,
			SignalPoints: 2,
			IntroPoints:  3,
		},
		Cold:     Cold{LookbackDays: 30, DropThreshold: 15, Demote: true},
		FollowUp: FollowUp{StaleDays: 30, MinScore: 10, MaxScore: 90},
		Queue:    QueueCaps{MaxConnectionRequests: 25, MaxFollowUps: 10, MaxReEngagements: 5},
		Limits: Limits{
			Daily:         20,
			Weekly:        100,
			MinGapSeconds: 120,
			MaxGapSeconds: 300,
			CooldownDays:  7,
			Window:        WindowCalendar,
		},
		Batch: Batch{PageSize: 100, Epsilon: 0.01},
	}
}

// PointsFor returns the configured points for an interaction type, falling back to the
// built-in table.
func (s Scoring) PointsFor(interactionType string) int {
	if p, ok := s.Points[interactionType]; ok {
		return p
	}
	return models.DefaultInteractionPoints[interactionType]
}

// SeniorityMultiplier returns the multiplier for a seniority level; unknown or empty is 1.
func (s Scoring) SeniorityMultiplier(seniority string) float64 {
	if m, ok := s.Seniority[seniority]; ok {
		return m
	}
	return 1.0
}

// Validate rejects a configuration the core cannot run with.
func (s Scoring) Validate() error {
	sum := s.Weights.Relevance + s.Weights.Accessibility + s.Weights.Timing
	if math.Abs(sum-1) > 0.001 {
		return models.NewValidationError("scoring.weights", "must sum to 1, got %.3f", sum)
	}
	for name, w := range map[string]float64{
		"relevance": s.Weights.Relevance, "accessibility": s.Weights.Accessibility, "timing": s.Weights.Timing,
	} {
		if w < 0 {
			return models.NewValidationError("scoring.weights."+name, "must not be negative")
		}
	}

	switch s.Decay.Kind {
	case DecayExponential:
		if s.Decay.HalfLifeDays <= 0 {
			return models.NewValidationError("scoring.decay.half_life_days", "must be positive")
		}
	case DecayLinear, DecayNone:
	default:
		return models.NewValidationError("scoring.decay.kind", "unknown decay %q", s.Decay.Kind)
	}
	if s.Decay.LookbackDays <= 0 {
		return models.NewValidationError("scoring.decay.lookback_days", "must be positive")
	}

	for t, p := range s.Points {
		if !models.ValidInteractionType(t) {
			return models.NewValidationError("scoring.points", "unknown interaction type %q", t)
		}
		if p < 0 {
			return models.NewValidationError("scoring.points."+t, "must not be negative")
		}
	}

	if s.Promotion.EngagedScore < 0 || s.Promotion.RelationshipScore < 0 {
		return models.NewValidationError("scoring.promotion", "thresholds must not be negative")
	}
	if s.Cold.LookbackDays <= 0 || s.Cold.DropThreshold <= 0 {
		return models.NewValidationError("scoring.cold", "lookback and drop threshold must be positive")
	}
	if s.FollowUp.StaleDays < 0 || s.FollowUp.MinScore > s.FollowUp.MaxScore {
		return models.NewValidationError("scoring.follow_up", "invalid staleness band")
	}
	if s.Queue.MaxConnectionRequests < 0 || s.Queue.MaxFollowUps < 0 || s.Queue.MaxReEngagements < 0 {
		return models.NewValidationError("scoring.queue", "caps must not be negative")
	}

	l := s.Limits
	if l.Daily < 0 || l.Weekly < 0 || l.CooldownDays < 0 {
		return models.NewValidationError("scoring.limits", "limits must not be negative")
	}
	if l.MinGapSeconds < 0 || l.MaxGapSeconds < l.MinGapSeconds {
		return models.NewValidationError("scoring.limits", "gap range is invalid")
	}
	if l.Window != WindowCalendar && l.Window != WindowRolling {
		return models.NewValidationError("scoring.limits.window", "unknown window %q", l.Window)
	}

	if s.Batch.PageSize <= 0 || s.Batch.Epsilon < 0 {
		return models.NewValidationError("scoring.batch", "page size must be positive")
	}
	return nil
}

// Location resolves the configured timezone.
func (a App) Location() (*time.Location, error) {
	if a.Timezone == "" || a.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return nil, models.NewValidationError("app.timezone", "%v", err)
	}
	return loc, nil
}

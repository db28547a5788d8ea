// ABOUTME: Layered configuration loading with koanf
// ABOUTME: Defaults, YAML file, config-store rows and CADENCE_ environment variables, low to high
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override. A double underscore nests keys:
// CADENCE_SCORING__LIMITS__DAILY sets scoring.limits.daily.
const EnvPrefix = "CADENCE_"

// Load builds a Config by layering, in order of precedence (low -> high):
//  1. built-in defaults
//  2. the YAML file at path, or CADENCE_CONFIG when path is empty
//  3. config-store rows such as "scoring.weights.relevance" -> "0.4"
//  4. CADENCE_ environment variables
func Load(path string, entries map[string]string) (*Config, error) {
	k := koanf.New(".")

	if path == "" {
		path = os.Getenv(EnvPrefix + "CONFIG")
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if len(entries) > 0 {
		rows := make(map[string]interface{}, len(entries))
		for key, value := range entries {
			rows[key] = value
		}
		if err := k.Load(confmap.Provider(rows, "."), nil); err != nil {
			return nil, fmt.Errorf("failed to load config entries: %w", err)
		}
	}

	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Scoring.Validate(); err != nil {
		return nil, err
	}
	if _, err := cfg.App.Location(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ValidKey reports whether key names a known setting, so config rows cannot hold typos.
func ValidKey(key string) bool {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(flatten(Default()), "."), nil); err != nil {
		return false
	}
	if k.Exists(key) {
		return true
	}
	// Map-valued settings accept new keys below their root.
	for _, root := range []string{"scoring.points.", "scoring.seniority."} {
		if strings.HasPrefix(key, root) && len(key) > len(root) {
			return true
		}
	}
	return false
}

// Flatten returns cfg as dotted keys, for display.
func Flatten(cfg *Config) map[string]interface{} {
	return flatten(cfg)
}

func flatten(cfg *Config) map[string]interface{} {
	s := cfg.Scoring
	out := map[string]interface{}{
		"app.db_path":      cfg.App.DBPath,
		"app.log_level":    cfg.App.LogLevel,
		"app.timezone":     cfg.App.Timezone,
		"app.rate_store":   cfg.App.RateStore,
		"app.badger_path":  cfg.App.BadgerPath,
		"app.metrics_addr": cfg.App.MetricsAddr,

		"scoring.decay.kind":           s.Decay.Kind,
		"scoring.decay.half_life_days": s.Decay.HalfLifeDays,
		"scoring.decay.lookback_days":  s.Decay.LookbackDays,

		"scoring.weights.relevance":     s.Weights.Relevance,
		"scoring.weights.accessibility": s.Weights.Accessibility,
		"scoring.weights.timing":        s.Weights.Timing,

		"scoring.accessibility.mutuals_high":        s.Accessibility.MutualsHigh,
		"scoring.accessibility.mutuals_high_points": s.Accessibility.MutualsHighPoints,
		"scoring.accessibility.mutuals_mid":         s.Accessibility.MutualsMid,
		"scoring.accessibility.mutuals_mid_points":  s.Accessibility.MutualsMidPoints,
		"scoring.accessibility.mutuals_low":         s.Accessibility.MutualsLow,
		"scoring.accessibility.mutuals_low_points":  s.Accessibility.MutualsLowPoints,
		"scoring.accessibility.signal_points":       s.Accessibility.SignalPoints,
		"scoring.accessibility.intro_points":        s.Accessibility.IntroPoints,

		"scoring.promotion.engaged_score":      s.Promotion.EngagedScore,
		"scoring.promotion.relationship_score": s.Promotion.RelationshipScore,

		"scoring.cold.lookback_days":  s.Cold.LookbackDays,
		"scoring.cold.drop_threshold": s.Cold.DropThreshold,
		"scoring.cold.demote":         s.Cold.Demote,

		"scoring.follow_up.stale_days": s.FollowUp.StaleDays,
		"scoring.follow_up.min_score":  s.FollowUp.MinScore,
		"scoring.follow_up.max_score":  s.FollowUp.MaxScore,

		"scoring.queue.max_connection_requests": s.Queue.MaxConnectionRequests,
		"scoring.queue.max_follow_ups":          s.Queue.MaxFollowUps,
		"scoring.queue.max_re_engagements":      s.Queue.MaxReEngagements,

		"scoring.limits.daily":           s.Limits.Daily,
		"scoring.limits.weekly":          s.Limits.Weekly,
		"scoring.limits.min_gap_seconds": s.Limits.MinGapSeconds,
		"scoring.limits.max_gap_seconds": s.Limits.MaxGapSeconds,
		"scoring.limits.cooldown_days":   s.Limits.CooldownDays,
		"scoring.limits.window":          s.Limits.Window,

		"scoring.batch.page_size": s.Batch.PageSize,
		"scoring.batch.epsilon":   s.Batch.Epsilon,
	}
	for t, p := range s.Points {
		out["scoring.points."+t] = p
	}
	for level, m := range s.Seniority {
		out["scoring.seniority."+level] = m
	}
	return out
}

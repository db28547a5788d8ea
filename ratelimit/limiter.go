// ABOUTME: Daily and weekly send caps with a cooldown window after soft bans
// ABOUTME: Counters live in a shared Store so separate processes see the same budget
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/harperreed/cadence/config"
	"github.com/harperreed/cadence/metrics"
	"github.com/harperreed/cadence/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Reasons a send is refused.
const (
	ReasonCooldown    = "cooldown"
	ReasonDailyLimit  = "daily_limit"
	ReasonWeeklyLimit = "weekly_limit"
)

const (
	cooldownKey = "cooldown:until"
	dayTTL      = 8 * 24 * time.Hour
	weekTTL     = 15 * 24 * time.Hour
	hourTTL     = 8 * 24 * time.Hour
)

// Decision is the answer to "may I send now?".
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	WaitMs  int64  `json:"wait_ms,omitempty"`
}

// Err converts a refusal into a RateLimitedError, or nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &models.RateLimitedError{Reason: d.Reason, WaitMs: d.WaitMs}
}

// Status is a snapshot of the limiter for display.
type Status struct {
	Window            string     `json:"window"`
	SentToday         int64      `json:"sent_today"`
	SentThisWeek      int64      `json:"sent_this_week"`
	DailyLimit        int        `json:"daily_limit"`
	WeeklyLimit       int        `json:"weekly_limit"`
	RemainingToday    int        `json:"remaining_today"`
	RemainingThisWeek int        `json:"remaining_this_week"`
	CooldownUntil     *time.Time `json:"cooldown_until,omitempty"`
	Decision          Decision   `json:"decision"`
}

type Limiter struct {
	store   Store
	cfg     config.Limits
	loc     *time.Location
	now     func() time.Time
	log     zerolog.Logger
	metrics *metrics.Manager
}

type Option func(*Limiter)

func WithLocation(loc *time.Location) Option {
	return func(l *Limiter) { l.loc = loc }
}

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(l *Limiter) { l.log = logger }
}

func WithMetrics(m *metrics.Manager) Option {
	return func(l *Limiter) { l.metrics = m }
}

func NewLimiter(store Store, cfg config.Limits, opts ...Option) *Limiter {
	l := &Limiter{
		store: store,
		cfg:   cfg,
		loc:   time.Local,
		now:   time.Now,
		log:   log.Logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CanSend reports whether a connection request may go out now.
func (l *Limiter) CanSend(ctx context.Context) (Decision, error) {
	now := l.now()

	until, err := l.cooldownUntil(ctx)
	if err != nil {
		return Decision{}, err
	}
	if until.After(now) {
		return Decision{Reason: ReasonCooldown, WaitMs: until.Sub(now).Milliseconds()}, nil
	}

	day, week, err := l.counts(ctx, now)
	if err != nil {
		return Decision{}, err
	}
	if day >= int64(l.cfg.Daily) {
		return Decision{Reason: ReasonDailyLimit, WaitMs: l.dayReset(now).Sub(now).Milliseconds()}, nil
	}
	if week >= int64(l.cfg.Weekly) {
		return Decision{Reason: ReasonWeeklyLimit, WaitMs: l.weekReset(now).Sub(now).Milliseconds()}, nil
	}
	return Decision{Allowed: true}, nil
}

// RecordSend counts one send against every window.
func (l *Limiter) RecordSend(ctx context.Context) error {
	now := l.now()
	if _, err := l.store.Incr(ctx, l.dayKey(now), dayTTL); err != nil {
		return fmt.Errorf("failed to count daily send: %w", err)
	}
	if _, err := l.store.Incr(ctx, l.weekKey(now), weekTTL); err != nil {
		return fmt.Errorf("failed to count weekly send: %w", err)
	}
	if _, err := l.store.Incr(ctx, hourKey(now), hourTTL); err != nil {
		return fmt.Errorf("failed to count hourly send: %w", err)
	}
	l.metrics.RecordSend()
	return nil
}

// EnterCooldown suppresses sends for d, or the configured cooldown when d is zero.
// It returns the time the cooldown ends.
func (l *Limiter) EnterCooldown(ctx context.Context, d time.Duration) (time.Time, error) {
	if d <= 0 {
		d = l.cfg.Cooldown()
	}
	until := l.now().Add(d)
	if err := l.store.Set(ctx, cooldownKey, until.UnixMilli(), d); err != nil {
		return time.Time{}, fmt.Errorf("failed to enter cooldown: %w", err)
	}
	l.metrics.RecordCooldown()
	l.log.Warn().Time("until", until).Dur("duration", d).Msg("entered send cooldown")
	return until, nil
}

// ClearCooldown lifts an active cooldown.
func (l *Limiter) ClearCooldown(ctx context.Context) error {
	return l.store.Set(ctx, cooldownKey, 0, 0)
}

// Status reports counters, remaining budget and any active cooldown.
func (l *Limiter) Status(ctx context.Context) (*Status, error) {
	now := l.now()
	day, week, err := l.counts(ctx, now)
	if err != nil {
		return nil, err
	}
	decision, err := l.CanSend(ctx)
	if err != nil {
		return nil, err
	}

	st := &Status{
		Window:            l.cfg.Window,
		SentToday:         day,
		SentThisWeek:      week,
		DailyLimit:        l.cfg.Daily,
		WeeklyLimit:       l.cfg.Weekly,
		RemainingToday:    remaining(l.cfg.Daily, day),
		RemainingThisWeek: remaining(l.cfg.Weekly, week),
		Decision:          decision,
	}
	until, err := l.cooldownUntil(ctx)
	if err != nil {
		return nil, err
	}
	if until.After(now) {
		st.CooldownUntil = &until
	}
	return st, nil
}

// Budget returns how many connection requests may be planned for day. A cooldown that
// has not ended by the start of day leaves no budget.
func (l *Limiter) Budget(ctx context.Context, day time.Time) (int, error) {
	now := l.now()
	start := l.startOfDay(day)

	until, err := l.cooldownUntil(ctx)
	if err != nil {
		return 0, err
	}
	if until.After(now) && until.After(start) {
		return 0, nil
	}

	var sentDay, sentWeek int64
	if start.Equal(l.startOfDay(now)) {
		sentDay, sentWeek, err = l.counts(ctx, now)
	} else {
		sentDay, err = l.store.Get(ctx, l.dayKey(start))
		if err == nil {
			sentWeek, err = l.store.Get(ctx, l.weekKey(start))
		}
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read send counters: %w", err)
	}
	return min(remaining(l.cfg.Daily, sentDay), remaining(l.cfg.Weekly, sentWeek)), nil
}

func (l *Limiter) cooldownUntil(ctx context.Context) (time.Time, error) {
	ms, err := l.store.Get(ctx, cooldownKey)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read cooldown: %w", err)
	}
	if ms <= 0 {
		return time.Time{}, nil
	}
	return time.UnixMilli(ms), nil
}

// counts returns sends in the current day and week windows.
func (l *Limiter) counts(ctx context.Context, now time.Time) (int64, int64, error) {
	if l.cfg.Window == config.WindowRolling {
		day, err := l.sumHours(ctx, now, 24)
		if err != nil {
			return 0, 0, err
		}
		week, err := l.sumHours(ctx, now, 24*7)
		return day, week, err
	}

	day, err := l.store.Get(ctx, l.dayKey(now))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read daily counter: %w", err)
	}
	week, err := l.store.Get(ctx, l.weekKey(now))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read weekly counter: %w", err)
	}
	return day, week, nil
}

func (l *Limiter) sumHours(ctx context.Context, now time.Time, hours int) (int64, error) {
	var total int64
	for h := 0; h < hours; h++ {
		n, err := l.store.Get(ctx, hourKey(now.Add(-time.Duration(h)*time.Hour)))
		if err != nil {
			return 0, fmt.Errorf("failed to read hourly counter: %w", err)
		}
		total += n
	}
	return total, nil
}

func (l *Limiter) startOfDay(t time.Time) time.Time {
	t = t.In(l.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, l.loc)
}

// startOfWeek returns Monday 00:00 of t's ISO week.
func (l *Limiter) startOfWeek(t time.Time) time.Time {
	day := l.startOfDay(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

func (l *Limiter) dayReset(now time.Time) time.Time {
	if l.cfg.Window == config.WindowRolling {
		return now.Truncate(time.Hour).Add(time.Hour)
	}
	return l.startOfDay(now).AddDate(0, 0, 1)
}

func (l *Limiter) weekReset(now time.Time) time.Time {
	if l.cfg.Window == config.WindowRolling {
		return now.Truncate(time.Hour).Add(time.Hour)
	}
	return l.startOfWeek(now).AddDate(0, 0, 7)
}

func (l *Limiter) dayKey(t time.Time) string {
	return "sends:day:" + t.In(l.loc).Format("2006-01-02")
}

func (l *Limiter) weekKey(t time.Time) string {
	year, week := t.In(l.loc).ISOWeek()
	return fmt.Sprintf("sends:week:%04d-W%02d", year, week)
}

func hourKey(t time.Time) string {
	return "sends:hour:" + t.UTC().Format("2006-01-02T15")
}

func remaining(limit int, used int64) int {
	if r := int64(limit) - used; r > 0 {
		return int(r)
	}
	return 0
}

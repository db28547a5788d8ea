// ABOUTME: Process wiring shared by every command
// ABOUTME: Loads layered config, opens the database and builds the scoring, queue and limiter services
package cli

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/harperreed/cadence/classify"
	"github.com/harperreed/cadence/config"
	"github.com/harperreed/cadence/db"
	"github.com/harperreed/cadence/dedupe"
	"github.com/harperreed/cadence/lifecycle"
	"github.com/harperreed/cadence/logging"
	"github.com/harperreed/cadence/metrics"
	"github.com/harperreed/cadence/models"
	"github.com/harperreed/cadence/queue"
	"github.com/harperreed/cadence/ratelimit"
	"github.com/harperreed/cadence/scoring"
	"github.com/rs/zerolog"
)

// Runtime holds the configured services for one process.
type Runtime struct {
	Config   *config.Config
	DB       *sql.DB
	Log      zerolog.Logger
	Metrics  *metrics.Manager
	Location *time.Location

	Engine     *scoring.Engine
	Machine    *lifecycle.Machine
	Limiter    *ratelimit.Limiter
	Pacer      *ratelimit.Pacer
	Generator  *queue.Generator
	Queue      *queue.Service
	Detector   *dedupe.Detector
	Classifier *classify.Service

	badger *ratelimit.BadgerStore
}

// Open loads configuration in two passes: the file and environment decide where the
// database lives, then the config rows stored in that database are layered on top.
func Open(ctx context.Context, configPath, dbPath string) (*Runtime, error) {
	boot, err := config.Load(configPath, nil)
	if err != nil {
		return nil, err
	}
	if dbPath == "" {
		dbPath = boot.App.DBPath
	}

	database, err := db.OpenDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	entries, err := db.ConfigEntries(ctx, database)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to read config entries: %w", err)
	}
	cfg, err := config.Load(configPath, entries)
	if err != nil {
		_ = database.Close()
		return nil, err
	}
	cfg.App.DBPath = dbPath

	rt := &Runtime{
		Config:  cfg,
		DB:      database,
		Log:     logging.Setup(cfg.App.LogLevel, os.Stderr),
		Metrics: metrics.NewManager(),
	}
	if err := rt.build(); err != nil {
		_ = rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) build() error {
	loc, err := rt.Config.App.Location()
	if err != nil {
		return err
	}
	rt.Location = loc

	cfg := rt.Config.Scoring
	rt.Engine = scoring.NewEngine(rt.DB, cfg,
		scoring.WithLogger(rt.Log), scoring.WithMetrics(rt.Metrics))
	rt.Machine = lifecycle.NewMachine(rt.DB, rt.Engine,
		lifecycle.WithLogger(rt.Log), lifecycle.WithMetrics(rt.Metrics))

	var store ratelimit.Store
	switch rt.Config.App.RateStore {
	case "badger":
		rt.badger, err = ratelimit.OpenBadgerStore(rt.Config.App.BadgerPath)
		if err != nil {
			return fmt.Errorf("failed to open rate limit store: %w", err)
		}
		store = rt.badger
	case "sqlite", "":
		store = db.NewCounterStore(rt.DB)
	default:
		return fmt.Errorf("unknown rate store %q", rt.Config.App.RateStore)
	}

	rt.Limiter = ratelimit.NewLimiter(store, cfg.Limits,
		ratelimit.WithLocation(loc), ratelimit.WithLogger(rt.Log), ratelimit.WithMetrics(rt.Metrics))
	rt.Pacer = ratelimit.NewPacer(cfg.Limits)
	rt.Generator = queue.NewGenerator(rt.DB, cfg, rt.Limiter,
		queue.WithLogger(rt.Log), queue.WithMetrics(rt.Metrics),
		queue.WithLocation(loc), queue.WithPriorityRefresh(rt.Engine))
	rt.Queue = queue.NewService(rt.DB, rt.Machine, rt.Limiter, queue.WithServiceLogger(rt.Log))
	rt.Detector = dedupe.NewDetector(rt.DB, rt.Engine, dedupe.WithLogger(rt.Log), dedupe.WithMetrics(rt.Metrics))
	rt.Classifier = classify.NewService(rt.DB, rt.Engine, classify.WithLogger(rt.Log))
	return nil
}

// Today is the current calendar day in the configured timezone.
func (rt *Runtime) Today() time.Time {
	return time.Now().In(rt.Location)
}

// Date formats a day as a queue date, defaulting to today.
func (rt *Runtime) Date(value string) (time.Time, string, error) {
	if value == "" {
		day := rt.Today()
		return day, day.Format(models.QueueDateFormat), nil
	}
	day, err := time.ParseInLocation(models.QueueDateFormat, value, rt.Location)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("invalid date %q, want YYYY-MM-DD", value)
	}
	return day, value, nil
}

func (rt *Runtime) Close() error {
	var firstErr error
	if rt.badger != nil {
		firstErr = rt.badger.Close()
	}
	if rt.DB != nil {
		if err := rt.DB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

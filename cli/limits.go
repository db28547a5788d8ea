// ABOUTME: Rate limit and configuration CLI commands
// ABOUTME: Shows the send budget, manages cooldowns, and edits config rows stored in the database
package cli

import (
	"fmt"
	"sort"
	"time"

	"github.com/harperreed/cadence/config"
	"github.com/harperreed/cadence/db"
	ucli "github.com/urfave/cli/v2"
)

// LimitCommand returns the limit command
func LimitCommand() *ucli.Command {
	return &ucli.Command{
		Name:  "limit",
		Usage: "Inspect send limits and cooldowns",
		Subcommands: []*ucli.Command{
			{
				Name:   "status",
				Usage:  "Show sends used, remaining budget and any cooldown",
				Flags:  []ucli.Flag{jsonFlag()},
				Action: withRuntime(runLimitStatus),
			},
			{
				Name:  "cooldown",
				Usage: "Pause all sending, or lift a pause with --clear",
				Flags: []ucli.Flag{
					&ucli.IntFlag{Name: "days", Usage: "Cooldown length (default: configured cooldown)"},
					&ucli.BoolFlag{Name: "clear", Usage: "End the current cooldown"},
				},
				Action: withRuntime(runLimitCooldown),
			},
		},
	}
}

func runLimitStatus(c *ucli.Context, rt *Runtime) error {
	st, err := rt.Limiter.Status(c.Context)
	if err != nil {
		return fmt.Errorf("failed to read rate limits: %w", err)
	}
	w := c.App.Writer
	if c.Bool("json") {
		return printJSON(w, st)
	}

	_, _ = fmt.Fprintf(w, "Window: %s\n", st.Window)
	_, _ = fmt.Fprintf(w, "  today  %d/%d  (%d left)\n", st.SentToday, st.DailyLimit, st.RemainingToday)
	_, _ = fmt.Fprintf(w, "  week   %d/%d  (%d left)\n", st.SentThisWeek, st.WeeklyLimit, st.RemainingThisWeek)
	if st.CooldownUntil != nil {
		_, _ = fmt.Fprintf(w, "⏸  cooling down until %s\n", st.CooldownUntil.In(rt.Location).Format("2006-01-02 15:04"))
	}
	if st.Decision.Allowed {
		_, _ = fmt.Fprintln(w, "✓ can send now")
	} else {
		wait := time.Duration(st.Decision.WaitMs) * time.Millisecond
		_, _ = fmt.Fprintf(w, "✗ blocked (%s), retry in %s\n", st.Decision.Reason, wait.Round(time.Minute))
	}
	return nil
}

func runLimitCooldown(c *ucli.Context, rt *Runtime) error {
	if c.Bool("clear") {
		if err := rt.Limiter.ClearCooldown(c.Context); err != nil {
			return fmt.Errorf("failed to clear cooldown: %w", err)
		}
		_, _ = fmt.Fprintln(c.App.Writer, "✓ Cooldown cleared")
		return nil
	}

	until, err := rt.Limiter.EnterCooldown(c.Context, time.Duration(c.Int("days"))*24*time.Hour)
	if err != nil {
		return fmt.Errorf("failed to enter cooldown: %w", err)
	}
	_, _ = fmt.Fprintf(c.App.Writer, "⏸  Cooling down until %s\n", until.In(rt.Location).Format("2006-01-02 15:04"))
	return nil
}

// ConfigCommand returns the config command
func ConfigCommand() *ucli.Command {
	return &ucli.Command{
		Name:  "config",
		Usage: "Manage settings stored in the database",
		Subcommands: []*ucli.Command{
			{
				Name:      "set",
				Usage:     "Store a setting, e.g. scoring.limits.daily 15",
				ArgsUsage: "<key> <value>",
				Action:    runConfigSet,
			},
			{
				Name:      "unset",
				Usage:     "Remove a stored setting",
				ArgsUsage: "<key>",
				Action:    withRuntime(runConfigUnset),
			},
			{
				Name:   "show",
				Usage:  "Show the effective configuration",
				Action: withRuntime(runConfigShow),
			},
		},
	}
}

// runConfigSet validates the result before committing, so a bad row cannot stop the
// next process from starting.
func runConfigSet(c *ucli.Context) error {
	if c.NArg() < 2 {
		return fmt.Errorf("key and value required")
	}
	key, value := c.Args().Get(0), c.Args().Get(1)
	if !config.ValidKey(key) {
		return fmt.Errorf("unknown config key %q", key)
	}

	rt, err := Open(c.Context, c.String("config"), c.String("db"))
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	entries, err := db.ConfigEntries(c.Context, rt.DB)
	if err != nil {
		return fmt.Errorf("failed to read config entries: %w", err)
	}
	entries[key] = value
	if _, err := config.Load(c.String("config"), entries); err != nil {
		return fmt.Errorf("rejected %s=%s: %w", key, value, err)
	}

	if err := db.SetConfigEntry(c.Context, rt.DB, key, value); err != nil {
		return fmt.Errorf("failed to store config entry: %w", err)
	}
	_, _ = fmt.Fprintf(c.App.Writer, "✓ %s = %s\n", key, value)
	return nil
}

func runConfigUnset(c *ucli.Context, rt *Runtime) error {
	key := c.Args().First()
	if key == "" {
		return fmt.Errorf("key required")
	}
	if err := db.DeleteConfigEntry(c.Context, rt.DB, key); err != nil {
		return fmt.Errorf("failed to delete config entry: %w", err)
	}
	_, _ = fmt.Fprintf(c.App.Writer, "✓ %s removed\n", key)
	return nil
}

func runConfigShow(c *ucli.Context, rt *Runtime) error {
	flat := config.Flatten(rt.Config)
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		_, _ = fmt.Fprintf(c.App.Writer, "%s = %v\n", k, flat[k])
	}
	return nil
}

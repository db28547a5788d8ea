// ABOUTME: Command tree for the cadence binary
// ABOUTME: Global flags, runtime setup per command, and shared output helpers
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	ucli "github.com/urfave/cli/v2"
)

// App builds the cadence command line application.
func App(version string) *ucli.App {
	return &ucli.App{
		Name:    "cadence",
		Usage:   "Relationship scoring and daily outreach scheduling",
		Version: version,
		Flags: []ucli.Flag{
			&ucli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML config file",
				EnvVars: []string{"CADENCE_CONFIG"},
			},
			&ucli.StringFlag{
				Name:    "db",
				Usage:   "Database path (default: $XDG_DATA_HOME/cadence/cadence.db)",
				EnvVars: []string{"CADENCE_DB"},
			},
		},
		Commands: []*ucli.Command{
			ContactCommand(),
			InteractionCommand(),
			StatusCommand(),
			ScoreCommand(),
			ClassifyCommand(),
			DedupeCommand(),
			ConflictCommand(),
			QueueCommand(),
			SendCommand(),
			LimitCommand(),
			ConfigCommand(),
			VizCommand(),
			MCPCommand(),
			ServeMetricsCommand(),
		},
	}
}

// withRuntime opens the configured services for the duration of one action.
func withRuntime(fn func(c *ucli.Context, rt *Runtime) error) ucli.ActionFunc {
	return func(c *ucli.Context) error {
		rt, err := Open(c.Context, c.String("config"), c.String("db"))
		if err != nil {
			return err
		}
		defer func() { _ = rt.Close() }()
		return fn(c, rt)
	}
}

func argID(c *ucli.Context, what string) (uuid.UUID, error) {
	if c.NArg() < 1 {
		return uuid.Nil, fmt.Errorf("%s ID required", what)
	}
	id, err := uuid.Parse(c.Args().First())
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s ID: %w", what, err)
	}
	return id, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func jsonFlag() ucli.Flag {
	return &ucli.BoolFlag{Name: "json", Usage: "Print JSON instead of a table"}
}

// ABOUTME: Visualization and monitoring CLI commands
// ABOUTME: Renders the lifecycle funnel and dashboard, and serves metrics over HTTP
package cli

import (
	"fmt"
	"os"

	"github.com/harperreed/cadence/ratelimit"
	"github.com/harperreed/cadence/viz"
	"github.com/harperreed/cadence/web"
	ucli "github.com/urfave/cli/v2"
)

// VizCommand returns the viz command
func VizCommand() *ucli.Command {
	return &ucli.Command{
		Name:  "viz",
		Usage: "Visualize the contact lifecycle",
		Subcommands: []*ucli.Command{
			{
				Name:  "funnel",
				Usage: "Render the lifecycle funnel as GraphViz DOT",
				Flags: []ucli.Flag{
					&ucli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Output file (default: stdout)"},
				},
				Action: withRuntime(runVizFunnel),
			},
			{
				Name:   "dashboard",
				Usage:  "Print the terminal dashboard",
				Flags:  []ucli.Flag{dateFlag()},
				Action: withRuntime(runVizDashboard),
			},
		},
	}
}

func runVizFunnel(c *ucli.Context, rt *Runtime) error {
	dot, err := viz.NewGraphGenerator(rt.DB).GenerateFunnelGraph(c.Context)
	if err != nil {
		return err
	}
	if output := c.String("output"); output != "" {
		return os.WriteFile(output, []byte(dot), 0644)
	}
	_, _ = fmt.Fprintln(c.App.Writer, dot)
	return nil
}

func runVizDashboard(c *ucli.Context, rt *Runtime) error {
	_, date, err := rt.Date(c.String("date"))
	if err != nil {
		return err
	}

	var limits *ratelimit.Status
	if st, err := rt.Limiter.Status(c.Context); err != nil {
		rt.Log.Warn().Err(err).Msg("failed to read rate limits")
	} else {
		limits = st
	}

	stats, err := viz.GenerateDashboardStats(c.Context, rt.DB, date, limits)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprint(c.App.Writer, viz.RenderDashboard(stats))
	return nil
}

// ServeMetricsCommand returns the serve-metrics command
func ServeMetricsCommand() *ucli.Command {
	return &ucli.Command{
		Name:  "serve-metrics",
		Usage: "Serve /metrics, /healthz and the dashboard over HTTP",
		Flags: []ucli.Flag{
			&ucli.StringFlag{Name: "addr", Usage: "Listen address (default: app.metrics_addr)"},
		},
		Action: withRuntime(runServeMetrics),
	}
}

func runServeMetrics(c *ucli.Context, rt *Runtime) error {
	addr := c.String("addr")
	if addr == "" {
		addr = rt.Config.App.MetricsAddr
	}
	return web.NewServer(rt.DB, rt.Limiter, rt.Metrics, rt.Location).Start(c.Context, addr)
}

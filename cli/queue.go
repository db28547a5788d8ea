// ABOUTME: Daily queue and send CLI commands
// ABOUTME: Generates and reviews a day's queue, acts on items, and dispatches approved requests
package cli

import (
	"fmt"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/harperreed/cadence/models"
	"github.com/harperreed/cadence/outreach"
	"github.com/harperreed/cadence/tui"
	ucli "github.com/urfave/cli/v2"
)

func dateFlag() ucli.Flag {
	return &ucli.StringFlag{Name: "date", Aliases: []string{"d"}, Usage: "Queue date YYYY-MM-DD (default: today)"}
}

// QueueCommand returns the queue command
func QueueCommand() *ucli.Command {
	return &ucli.Command{
		Name:  "queue",
		Usage: "Build and work through the daily outreach queue",
		Subcommands: []*ucli.Command{
			{
				Name:   "generate",
				Usage:  "Generate the queue for a day; reviewed items are kept",
				Flags:  []ucli.Flag{dateFlag()},
				Action: withRuntime(runQueueGenerate),
			},
			{
				Name:  "list",
				Usage: "List a day's queue",
				Flags: []ucli.Flag{
					dateFlag(),
					&ucli.StringFlag{Name: "status", Usage: "Only items in this status"},
					jsonFlag(),
				},
				Action: withRuntime(runQueueList),
			},
			{
				Name:      "approve",
				Usage:     "Approve a pending item",
				ArgsUsage: "<item-id>",
				Action:    withRuntime(runQueueApprove),
			},
			{
				Name:      "done",
				Usage:     "Mark an item as executed by hand",
				ArgsUsage: "<item-id>",
				Flags: []ucli.Flag{
					&ucli.StringFlag{Name: "notes", Usage: "What happened"},
				},
				Action: withRuntime(runQueueDone),
			},
			{
				Name:      "skip",
				Usage:     "Close an item without acting on it",
				ArgsUsage: "<item-id>",
				Flags: []ucli.Flag{
					&ucli.StringFlag{Name: "reason", Usage: "Why it was skipped"},
				},
				Action: withRuntime(runQueueSkip),
			},
			{
				Name:      "snooze",
				Usage:     "Leave a contact alone until a later date",
				ArgsUsage: "<item-id>",
				Flags: []ucli.Flag{
					&ucli.StringFlag{Name: "until", Usage: "Date YYYY-MM-DD after today", Required: true},
				},
				Action: withRuntime(runQueueSnooze),
			},
			{
				Name:   "review",
				Usage:  "Review the queue interactively",
				Flags:  []ucli.Flag{dateFlag()},
				Action: withRuntime(runQueueReview),
			},
		},
	}
}

func runQueueGenerate(c *ucli.Context, rt *Runtime) error {
	day, _, err := rt.Date(c.String("date"))
	if err != nil {
		return err
	}
	s, err := rt.Generator.Generate(c.Context, day)
	if err != nil {
		return fmt.Errorf("failed to generate queue: %w", err)
	}

	w := c.App.Writer
	_, _ = fmt.Fprintf(w, "Queue for %s (run %s)\n", s.QueueDate, s.RunID)
	_, _ = fmt.Fprintf(w, "  cleared %d pending, kept %d reviewed\n", s.Cleared, s.Kept)
	for _, action := range models.ActionTypes {
		_, _ = fmt.Fprintf(w, "  %-19s %d\n", action, s.Generated[action])
	}
	_, _ = fmt.Fprintf(w, "  send budget %d, %d targets held back by rate limits\n", s.Budget, s.RateLimited)
	for _, e := range s.Errors {
		_, _ = fmt.Fprintf(w, "  ✗ %s: %s\n", e.Key, e.Err)
	}
	return nil
}

func runQueueList(c *ucli.Context, rt *Runtime) error {
	_, date, err := rt.Date(c.String("date"))
	if err != nil {
		return err
	}
	items, err := rt.Queue.List(c.Context, date, c.String("status"))
	if err != nil {
		return fmt.Errorf("failed to list queue: %w", err)
	}
	if c.Bool("json") {
		return printJSON(c.App.Writer, items)
	}
	if len(items) == 0 {
		_, _ = fmt.Fprintf(c.App.Writer, "Nothing queued for %s\n", date)
		return nil
	}

	tw := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ACTION\tCONTACT\tSTATUS\tID")
	for _, item := range items {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			item.ActionType, contactLabel(c, rt.DB, item.ContactID), item.Status, item.ID)
	}
	return tw.Flush()
}

func runQueueApprove(c *ucli.Context, rt *Runtime) error {
	id, err := argID(c, "queue item")
	if err != nil {
		return err
	}
	item, err := rt.Queue.Approve(c.Context, id)
	if err != nil {
		return fmt.Errorf("failed to approve: %w", err)
	}
	_, _ = fmt.Fprintf(c.App.Writer, "✓ Approved %s for %s\n", item.ActionType, contactLabel(c, rt.DB, item.ContactID))
	return nil
}

func runQueueDone(c *ucli.Context, rt *Runtime) error {
	id, err := argID(c, "queue item")
	if err != nil {
		return err
	}
	res, err := rt.Queue.MarkExecuted(c.Context, id, c.String("notes"))
	if err != nil {
		return fmt.Errorf("failed to mark done: %w", err)
	}
	_, _ = fmt.Fprintf(c.App.Writer, "✓ Done: %s for %s\n", res.Item.ActionType, contactLabel(c, rt.DB, res.Item.ContactID))
	if res.Transition != nil {
		printTransition(c, res.Transition)
	}
	if res.Log != nil {
		for i := range res.Log.Transitions {
			printTransition(c, &res.Log.Transitions[i])
		}
	}
	return nil
}

func runQueueSkip(c *ucli.Context, rt *Runtime) error {
	id, err := argID(c, "queue item")
	if err != nil {
		return err
	}
	if _, err := rt.Queue.MarkSkipped(c.Context, id, c.String("reason")); err != nil {
		return fmt.Errorf("failed to skip: %w", err)
	}
	_, _ = fmt.Fprintln(c.App.Writer, "✓ Skipped")
	return nil
}

func runQueueSnooze(c *ucli.Context, rt *Runtime) error {
	id, err := argID(c, "queue item")
	if err != nil {
		return err
	}
	until := c.String("until")
	if _, err := rt.Queue.Snooze(c.Context, id, until); err != nil {
		return fmt.Errorf("failed to snooze: %w", err)
	}
	_, _ = fmt.Fprintf(c.App.Writer, "✓ Snoozed until %s\n", until)
	return nil
}

func runQueueReview(c *ucli.Context, rt *Runtime) error {
	_, date, err := rt.Date(c.String("date"))
	if err != nil {
		return err
	}
	p := tea.NewProgram(tui.NewModel(rt.DB, rt.Queue, date), tea.WithAltScreen(), tea.WithContext(c.Context))
	_, err = p.Run()
	return err
}

// SendCommand returns the send command
func SendCommand() *ucli.Command {
	return &ucli.Command{
		Name:  "send",
		Usage: "Dispatch connection requests through an external sender",
		Subcommands: []*ucli.Command{
			{
				Name:  "run",
				Usage: "Send approved connection requests for a day, pacing and honouring limits",
				Flags: []ucli.Flag{
					dateFlag(),
					&ucli.StringFlag{
						Name:     "command",
						Usage:    "Sender program; receives each request as JSON on stdin",
						EnvVars:  []string{"CADENCE_SEND_COMMAND"},
						Required: true,
					},
					&ucli.BoolFlag{Name: "include-pending", Usage: "Also send items nobody approved"},
					&ucli.IntFlag{Name: "max", Usage: "Stop after this many sends (0: no cap beyond the limiter)"},
				},
				Action: withRuntime(runSend),
			},
		},
	}
}

func runSend(c *ucli.Context, rt *Runtime) error {
	_, date, err := rt.Date(c.String("date"))
	if err != nil {
		return err
	}
	sender, err := outreach.NewCommandSender(c.String("command"))
	if err != nil {
		return err
	}

	d := outreach.NewDispatcher(rt.DB, rt.Queue, sender, rt.Limiter, rt.Pacer, outreach.WithLogger(rt.Log))
	s, err := d.Run(c.Context, date, outreach.RunOptions{
		IncludePending: c.Bool("include-pending"),
		Max:            c.Int("max"),
	})
	if s != nil {
		w := c.App.Writer
		_, _ = fmt.Fprintf(w, "Sent %d, failed %d, skipped %d for %s\n", s.Sent, s.Failed, s.Skipped, s.QueueDate)
		if s.Halted {
			_, _ = fmt.Fprintf(w, "⏸  halted: %s\n", s.HaltReason)
			if s.CooldownUntil != nil {
				_, _ = fmt.Fprintf(w, "   cooling down until %s\n", s.CooldownUntil.In(rt.Location).Format("2006-01-02 15:04"))
			}
		}
	}
	if err != nil {
		return fmt.Errorf("dispatch stopped: %w", err)
	}
	return nil
}

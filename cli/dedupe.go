// ABOUTME: Duplicate and data-conflict CLI commands
// ABOUTME: Scans for duplicate contacts, merges or dismisses pairs, and resolves field conflicts
package cli

import (
	"database/sql"
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/harperreed/cadence/db"
	"github.com/harperreed/cadence/models"
	ucli "github.com/urfave/cli/v2"
)

// DedupeCommand returns the dedupe command
func DedupeCommand() *ucli.Command {
	return &ucli.Command{
		Name:  "dedupe",
		Usage: "Find and merge duplicate contacts",
		Subcommands: []*ucli.Command{
			{
				Name:   "scan",
				Usage:  "Scan all contacts; high-confidence matches merge automatically",
				Action: withRuntime(runDedupeScan),
			},
			{
				Name:   "list",
				Usage:  "List pending duplicate pairs",
				Flags:  []ucli.Flag{jsonFlag()},
				Action: withRuntime(runDedupeList),
			},
			{
				Name:      "merge",
				Usage:     "Merge a pending pair",
				ArgsUsage: "<pair-id>",
				Flags: []ucli.Flag{
					&ucli.StringFlag{Name: "primary", Usage: "Contact ID to keep (default: the more complete record)"},
				},
				Action: withRuntime(runDedupeMerge),
			},
			{
				Name:      "dismiss",
				Usage:     "Mark a pending pair as not duplicates",
				ArgsUsage: "<pair-id>",
				Action:    withRuntime(runDedupeDismiss),
			},
		},
	}
}

func runDedupeScan(c *ucli.Context, rt *Runtime) error {
	s, err := rt.Detector.Scan(c.Context)
	if err != nil {
		return fmt.Errorf("failed to scan for duplicates: %w", err)
	}
	w := c.App.Writer
	_, _ = fmt.Fprintf(w, "Scanned %d contacts (run %s)\n", s.Scanned, s.RunID)
	_, _ = fmt.Fprintf(w, "  %d candidates  %d auto-merged  %d pending review  %d skipped\n",
		s.Candidates, s.AutoMerged, s.Pending, s.Skipped)
	for _, e := range s.Errors {
		_, _ = fmt.Fprintf(w, "  ✗ %s: %s\n", e.Key, e.Err)
	}
	return nil
}

func runDedupeList(c *ucli.Context, rt *Runtime) error {
	pairs, err := rt.Detector.ListPending(c.Context)
	if err != nil {
		return fmt.Errorf("failed to list duplicates: %w", err)
	}
	if c.Bool("json") {
		return printJSON(c.App.Writer, pairs)
	}
	if len(pairs) == 0 {
		_, _ = fmt.Fprintln(c.App.Writer, "No pending duplicates")
		return nil
	}

	tw := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "PAIR\tMATCH\tCONFIDENCE\tCONTACT A\tCONTACT B")
	for _, p := range pairs {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			p.ID, p.MatchType, p.Confidence, contactLabel(c, rt.DB, p.ContactAID), contactLabel(c, rt.DB, p.ContactBID))
	}
	return tw.Flush()
}

func contactLabel(c *ucli.Context, database *sql.DB, id uuid.UUID) string {
	contact, err := db.GetContact(c.Context, database, id)
	if err != nil || contact == nil {
		return id.String()
	}
	return contact.Name
}

func runDedupeMerge(c *ucli.Context, rt *Runtime) error {
	pairID, err := argID(c, "pair")
	if err != nil {
		return err
	}
	primaryID := uuid.Nil
	if p := c.String("primary"); p != "" {
		if primaryID, err = uuid.Parse(p); err != nil {
			return fmt.Errorf("invalid primary ID: %w", err)
		}
	}

	res, err := rt.Detector.MergePair(c.Context, pairID, primaryID)
	if err != nil {
		return fmt.Errorf("failed to merge: %w", err)
	}
	_, _ = fmt.Fprintf(c.App.Writer, "✓ Merged %s into %s (%s)\n", res.SecondaryID, res.Primary.Name, res.Primary.ID)
	return nil
}

func runDedupeDismiss(c *ucli.Context, rt *Runtime) error {
	pairID, err := argID(c, "pair")
	if err != nil {
		return err
	}
	if err := rt.Detector.Dismiss(c.Context, pairID); err != nil {
		return fmt.Errorf("failed to dismiss: %w", err)
	}
	_, _ = fmt.Fprintln(c.App.Writer, "✓ Dismissed")
	return nil
}

// ConflictCommand returns the conflict command
func ConflictCommand() *ucli.Command {
	return &ucli.Command{
		Name:  "conflict",
		Usage: "Review field updates rejected by source precedence",
		Subcommands: []*ucli.Command{
			{
				Name:  "list",
				Usage: "List data conflicts",
				Flags: []ucli.Flag{
					&ucli.StringFlag{Name: "status", Usage: "pending, resolved or empty for all", Value: models.ConflictPending},
					jsonFlag(),
				},
				Action: withRuntime(runConflictList),
			},
			{
				Name:      "resolve",
				Usage:     "Keep the current value, or accept the incoming one with --accept",
				ArgsUsage: "<conflict-id>",
				Flags: []ucli.Flag{
					&ucli.BoolFlag{Name: "accept", Usage: "Write the incoming value"},
				},
				Action: withRuntime(runConflictResolve),
			},
		},
	}
}

func runConflictList(c *ucli.Context, rt *Runtime) error {
	conflicts, err := db.ListConflicts(c.Context, rt.DB, c.String("status"))
	if err != nil {
		return fmt.Errorf("failed to list conflicts: %w", err)
	}
	if c.Bool("json") {
		return printJSON(c.App.Writer, conflicts)
	}
	if len(conflicts) == 0 {
		_, _ = fmt.Fprintln(c.App.Writer, "No conflicts")
		return nil
	}

	tw := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tCONTACT\tFIELD\tCURRENT\tINCOMING\tSTATUS")
	for _, cf := range conflicts {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s (%s)\t%s (%s)\t%s\n",
			cf.ID, contactLabel(c, rt.DB, cf.ContactID), cf.FieldName,
			cf.CurrentValue, orDash(cf.CurrentSource), cf.IncomingValue, cf.IncomingSource, cf.Status)
	}
	return tw.Flush()
}

func runConflictResolve(c *ucli.Context, rt *Runtime) error {
	id, err := argID(c, "conflict")
	if err != nil {
		return err
	}

	var resolved *models.DataConflict
	err = db.WithTx(c.Context, rt.DB, func(tx *sql.Tx) error {
		var err error
		resolved, err = db.ResolveConflict(c.Context, tx, id, c.Bool("accept"))
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to resolve conflict: %w", err)
	}
	_, _ = fmt.Fprintf(c.App.Writer, "✓ %s: %s\n", resolved.FieldName, resolved.Resolution)
	return nil
}

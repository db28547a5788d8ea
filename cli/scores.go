// ABOUTME: Scoring and classification CLI commands
// ABOUTME: Runs the batch recalculations and going-cold detection, and applies classifier labels
package cli

import (
	"fmt"

	"github.com/harperreed/cadence/classify"
	"github.com/harperreed/cadence/models"
	"github.com/harperreed/cadence/scoring"
	ucli "github.com/urfave/cli/v2"
)

// ScoreCommand returns the score command
func ScoreCommand() *ucli.Command {
	return &ucli.Command{
		Name:  "score",
		Usage: "Recalculate scores in batch",
		Subcommands: []*ucli.Command{
			{
				Name:   "priority",
				Usage:  "Recompute priority scores for every target",
				Action: withRuntime(runScorePriority),
			},
			{
				Name:   "relationship",
				Usage:  "Recompute decayed relationship scores for connected contacts",
				Action: withRuntime(runScoreRelationship),
			},
			{
				Name:   "cold",
				Usage:  "Flag contacts whose relationship score is dropping",
				Action: withRuntime(runScoreCold),
			},
		},
	}
}

func runScorePriority(c *ucli.Context, rt *Runtime) error {
	summary, err := rt.Engine.BatchPriority(c.Context)
	if err != nil {
		return fmt.Errorf("failed to recalculate priority: %w", err)
	}
	printBatch(c, summary)
	return nil
}

func runScoreRelationship(c *ucli.Context, rt *Runtime) error {
	summary, err := rt.Engine.BatchRelationship(c.Context, rt.Today())
	if err != nil {
		return fmt.Errorf("failed to recalculate relationship scores: %w", err)
	}
	printBatch(c, summary)
	return nil
}

func runScoreCold(c *ucli.Context, rt *Runtime) error {
	summary, err := rt.Machine.DetectGoingCold(c.Context, rt.Today())
	if err != nil {
		return fmt.Errorf("failed to detect going-cold contacts: %w", err)
	}
	printBatch(c, summary)
	return nil
}

func printBatch(c *ucli.Context, s *scoring.BatchSummary) {
	w := c.App.Writer
	_, _ = fmt.Fprintf(w, "%s %s (run %s)\n", s.JobType, s.Status, s.RunID)
	_, _ = fmt.Fprintf(w, "  processed %d  updated %d  skipped %d  errors %d\n",
		s.Processed, s.Updated, s.Skipped, len(s.Errors))
	for _, e := range s.Errors {
		_, _ = fmt.Fprintf(w, "  ✗ %s: %s\n", e.Key, e.Err)
	}
}

// ClassifyCommand returns the classify command
func ClassifyCommand() *ucli.Command {
	return &ucli.Command{
		Name:  "classify",
		Usage: "Record classifier output for contacts",
		Subcommands: []*ucli.Command{
			{
				Name:      "apply",
				Usage:     "Assign a category label to a contact",
				ArgsUsage: "<contact-id>",
				Flags: []ucli.Flag{
					&ucli.StringFlag{Name: "category", Usage: "Category name", Required: true},
					&ucli.StringFlag{Name: "confidence", Usage: "Classifier confidence: high, medium or low", Value: models.ConfidenceHigh},
				},
				Action: withRuntime(runClassifyApply),
			},
		},
	}
}

func runClassifyApply(c *ucli.Context, rt *Runtime) error {
	id, err := argID(c, "contact")
	if err != nil {
		return err
	}
	out, err := rt.Classifier.Apply(c.Context, id, classify.Result{
		Category:   c.String("category"),
		Confidence: c.String("confidence"),
	})
	if err != nil {
		return fmt.Errorf("failed to apply category: %w", err)
	}

	w := c.App.Writer
	_, _ = fmt.Fprintf(w, "✓ Categorised as %s (weight %.2f)\n", out.Category.Name, out.Category.RelevanceWeight)
	if out.CreatedCategory {
		_, _ = fmt.Fprintln(w, "  New category created")
	}
	if out.NeedsReview {
		_, _ = fmt.Fprintln(w, "  ⚠️  Low confidence, flagged for review")
	}
	if out.Priority != nil {
		_, _ = fmt.Fprintf(w, "  Priority: %.1f\n", out.Priority.Breakdown.Total)
	}
	return nil
}

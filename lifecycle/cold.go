// ABOUTME: Going-cold detection over score history snapshots
// ABOUTME: Flags connected contacts whose score fell past the threshold and optionally demotes them
package lifecycle

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/harperreed/cadence/db"
	"github.com/harperreed/cadence/models"
	"github.com/harperreed/cadence/scoring"
)

var demotions = map[string]string{
	models.StatusRelationship: models.StatusEngaged,
	models.StatusEngaged:      models.StatusConnected,
}

// DetectGoingCold compares each connected-or-later contact's current score with its earliest
// snapshot inside the cold lookback window. A drop at or past the threshold sets going_cold_at
// and, when configured, demotes one step the first time it is flagged. Recovered contacts are
// cleared.
func (m *Machine) DetectGoingCold(ctx context.Context, asOf time.Time) (*scoring.BatchSummary, error) {
	cold := m.engine.Config().Cold
	since := asOf.Add(-time.Duration(cold.LookbackDays) * 24 * time.Hour)
	flagged := 0

	summary, err := m.engine.Runner().Run(ctx, models.JobColdDetection, models.ConnectedStatuses,
		func(ctx context.Context, tx *sql.Tx, c *models.Contact) (bool, error) {
			past, err := db.EarliestSnapshotSince(ctx, tx, c.ID, models.ScoreTypeRelationship, since)
			if err != nil {
				return false, fmt.Errorf("failed to load snapshot: %w", err)
			}

			current, err := m.engine.RecalculateRelationship(ctx, tx, c.ID, asOf)
			if err != nil {
				return false, err
			}

			dropped := past != nil && int(past.ScoreValue)-current.Score >= cold.DropThreshold
			switch {
			case dropped && c.GoingColdAt == nil:
				at := asOf
				if err := db.SetGoingCold(ctx, tx, c.ID, &at); err != nil {
					return false, fmt.Errorf("failed to flag going cold: %w", err)
				}
				flagged++
				if to, ok := demotions[c.Status]; ok && cold.Demote {
					reason := fmt.Sprintf("score fell from %.0f to %d", past.ScoreValue, current.Score)
					if _, err := m.changeStatus(ctx, tx, c, to, models.TriggerAutomatedDemotion, reason); err != nil {
						return false, err
					}
				}
				return true, nil
			case !dropped && c.GoingColdAt != nil:
				if err := db.SetGoingCold(ctx, tx, c.ID, nil); err != nil {
					return false, fmt.Errorf("failed to clear going cold: %w", err)
				}
				return true, nil
			}
			return current.Changed, nil
		})

	m.metrics.RecordGoingCold(flagged)
	return summary, err
}

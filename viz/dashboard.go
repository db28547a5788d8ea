// ABOUTME: Terminal dashboard statistics and rendering
// ABOUTME: Summarises the lifecycle, a day's queue, send budget and open review work
package viz

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/harperreed/cadence/db"
	"github.com/harperreed/cadence/models"
	"github.com/harperreed/cadence/ratelimit"
)

type DashboardStats struct {
	QueueDate string

	ContactsByStatus map[string]int
	TotalContacts    int

	// Queue counts keyed by action type then status
	Queue map[string]map[string]int

	Limits *ratelimit.Status

	// Needs attention
	GoingCold         int
	NeedsReview       int
	PendingDuplicates int
	PendingConflicts  int
}

// GenerateDashboardStats gathers the dashboard for one queue date. limits may be nil.
func GenerateDashboardStats(ctx context.Context, database *sql.DB, date string, limits *ratelimit.Status) (*DashboardStats, error) {
	stats := &DashboardStats{QueueDate: date, Limits: limits}

	var err error
	stats.ContactsByStatus, err = db.CountContactsByStatus(ctx, database)
	if err != nil {
		return nil, fmt.Errorf("failed to count contacts: %w", err)
	}
	for _, n := range stats.ContactsByStatus {
		stats.TotalContacts += n
	}

	stats.Queue, err = db.CountQueueItems(ctx, database, date)
	if err != nil {
		return nil, fmt.Errorf("failed to count queue items: %w", err)
	}

	cold, err := db.ListGoingCold(ctx, database)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch going-cold contacts: %w", err)
	}
	stats.GoingCold = len(cold)

	contacts, err := db.ListActiveContacts(ctx, database)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch contacts: %w", err)
	}
	for _, c := range contacts {
		if c.NeedsReview {
			stats.NeedsReview++
		}
	}

	pairs, err := db.ListDuplicatePairs(ctx, database, models.PairPending)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch duplicate pairs: %w", err)
	}
	stats.PendingDuplicates = len(pairs)

	conflicts, err := db.ListConflicts(ctx, database, models.ConflictPending)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch conflicts: %w", err)
	}
	stats.PendingConflicts = len(conflicts)

	return stats, nil
}

func RenderDashboard(stats *DashboardStats) string {
	var out strings.Builder

	out.WriteString("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	out.WriteString("  CADENCE DASHBOARD  " + stats.QueueDate + "\n")
	out.WriteString("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

	out.WriteString("LIFECYCLE\n")
	renderLifecycle(&out, stats.ContactsByStatus)
	out.WriteString(fmt.Sprintf("  %d active contacts\n\n", stats.TotalContacts))

	out.WriteString("QUEUE\n")
	for _, action := range models.ActionTypes {
		counts := stats.Queue[action]
		out.WriteString(fmt.Sprintf("  %-19s %2d pending  %2d approved  %2d done  %2d skipped  %2d snoozed\n",
			action, counts[models.QueuePending], counts[models.QueueApproved], counts[models.QueueExecuted],
			counts[models.QueueSkipped], counts[models.QueueSnoozed]))
	}
	out.WriteString("\n")

	if l := stats.Limits; l != nil {
		out.WriteString("SEND BUDGET\n")
		out.WriteString(fmt.Sprintf("  today %d/%d  week %d/%d  (%s window)\n",
			l.SentToday, l.DailyLimit, l.SentThisWeek, l.WeeklyLimit, l.Window))
		if l.CooldownUntil != nil {
			out.WriteString(fmt.Sprintf("  ⏸  cooling down until %s\n", l.CooldownUntil.Format("2006-01-02 15:04")))
		}
		out.WriteString("\n")
	}

	if stats.GoingCold > 0 || stats.NeedsReview > 0 || stats.PendingDuplicates > 0 || stats.PendingConflicts > 0 {
		out.WriteString("NEEDS ATTENTION\n")
		if stats.GoingCold > 0 {
			out.WriteString(fmt.Sprintf("  ⚠️  %d contacts going cold\n", stats.GoingCold))
		}
		if stats.NeedsReview > 0 {
			out.WriteString(fmt.Sprintf("  ⚠️  %d low-confidence classifications\n", stats.NeedsReview))
		}
		if stats.PendingDuplicates > 0 {
			out.WriteString(fmt.Sprintf("  ⚠️  %d possible duplicates\n", stats.PendingDuplicates))
		}
		if stats.PendingConflicts > 0 {
			out.WriteString(fmt.Sprintf("  ⚠️  %d data conflicts\n", stats.PendingConflicts))
		}
	}

	return out.String()
}

func renderLifecycle(out *strings.Builder, counts map[string]int) {
	maxCount := 0
	for _, n := range counts {
		maxCount = max(maxCount, n)
	}
	if maxCount == 0 {
		maxCount = 1
	}

	for _, status := range lifecycleStatuses {
		n := counts[status]
		barLength := (n * 10) / maxCount
		bar := strings.Repeat("█", barLength) + strings.Repeat("░", 10-barLength)
		out.WriteString(fmt.Sprintf("  %-13s %s  %3d\n", status, bar, n))
	}
}

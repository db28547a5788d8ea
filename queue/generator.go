// ABOUTME: Daily outreach queue generation
// ABOUTME: Builds a capped, de-duplicated list of connection requests, follow-ups and re-engagements for one date
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/cadence/config"
	"github.com/harperreed/cadence/db"
	"github.com/harperreed/cadence/metrics"
	"github.com/harperreed/cadence/models"
	"github.com/harperreed/cadence/scoring"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Budgeter reports how many connection requests may be planned for a day.
type Budgeter interface {
	Budget(ctx context.Context, day time.Time) (int, error)
}

// GenerateSummary is the structured result of one generation run.
type GenerateSummary struct {
	RunID     string         `json:"run_id"`
	QueueDate string         `json:"queue_date"`
	Cleared   int64          `json:"cleared"`
	Kept      int            `json:"kept"`
	Generated map[string]int `json:"generated"`
	// Budget is the connection-request allowance left after reviewed items on the date.
	Budget      int `json:"budget"`
	RateLimited int `json:"rate_limited"`
	// RateLimitedContacts lists the targets held back by the send budget, in rank order.
	RateLimitedContacts []uuid.UUID         `json:"rate_limited_contacts,omitempty"`
	Errors              []models.BatchError `json:"errors,omitempty"`
}

// Total is the number of items generated across action types.
func (s *GenerateSummary) Total() int {
	n := 0
	for _, v := range s.Generated {
		n += v
	}
	return n
}

type Generator struct {
	db      *sql.DB
	cfg     config.Scoring
	budget  Budgeter
	engine  *scoring.Engine
	loc     *time.Location
	log     zerolog.Logger
	metrics *metrics.Manager
}

type Option func(*Generator)

func WithLogger(l zerolog.Logger) Option {
	return func(g *Generator) { g.log = l }
}

func WithMetrics(m *metrics.Manager) Option {
	return func(g *Generator) { g.metrics = m }
}

func WithLocation(loc *time.Location) Option {
	return func(g *Generator) { g.loc = loc }
}

// WithPriorityRefresh recomputes target priority scores before ranking.
func WithPriorityRefresh(engine *scoring.Engine) Option {
	return func(g *Generator) { g.engine = engine }
}

func NewGenerator(database *sql.DB, cfg config.Scoring, budget Budgeter, opts ...Option) *Generator {
	g := &Generator{db: database, cfg: cfg, budget: budget, loc: time.Local, log: log.Logger}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// plan is the per-date state shared by the three selection passes.
type plan struct {
	date     string
	queued   map[uuid.UUID]map[string]bool
	reviewed map[string]int
	summary  *GenerateSummary
}

func (p *plan) has(contactID uuid.UUID, action string) bool {
	return p.queued[contactID][action]
}

func (p *plan) mark(contactID uuid.UUID, action string) {
	if p.queued[contactID] == nil {
		p.queued[contactID] = make(map[string]bool)
	}
	p.queued[contactID][action] = true
}

// Generate builds the queue for day. Pending items for the date are cleared and rebuilt;
// items a human already approved, executed, skipped or snoozed stay and count toward the
// caps, so running it twice yields the same pending set. Only the calendar date of day in
// the generator's location matters, not its time of day.
func (g *Generator) Generate(ctx context.Context, day time.Time) (*GenerateSummary, error) {
	start := time.Now()
	day = startOfDay(day, g.loc)
	date := day.Format(models.QueueDateFormat)

	run, err := db.StartJobRun(ctx, g.db, models.JobQueueGeneration)
	if err != nil {
		return nil, fmt.Errorf("failed to start job run: %w", err)
	}
	summary := &GenerateSummary{RunID: run.ID, QueueDate: date, Generated: make(map[string]int)}

	genErr := g.generate(ctx, day, &plan{
		date:     date,
		queued:   make(map[uuid.UUID]map[string]bool),
		reviewed: make(map[string]int),
		summary:  summary,
	})

	switch {
	case genErr == nil:
		run.Status = models.JobCompleted
	case errors.Is(genErr, context.Canceled) || errors.Is(genErr, context.DeadlineExceeded):
		run.Status = models.JobCancelled
		run.ErrorMessage = genErr.Error()
	default:
		run.Status = models.JobFailed
		run.ErrorMessage = genErr.Error()
	}
	run.Processed = summary.Total() + summary.RateLimited + len(summary.Errors)
	run.Updated = summary.Total()
	run.Errors = len(summary.Errors)
	if err := db.FinishJobRun(context.WithoutCancel(ctx), g.db, run); err != nil {
		g.log.Error().Err(err).Msg("failed to finish job run")
	}

	for action, n := range summary.Generated {
		g.metrics.RecordQueueItems(action, n)
	}
	g.metrics.RecordRateLimitSkips(summary.RateLimited)
	g.metrics.ObserveBatch(models.JobQueueGeneration, run.Status, run.Processed, run.Updated, run.Errors, time.Since(start))

	g.log.Info().
		Str("run_id", run.ID).
		Str("queue_date", date).
		Int("connection_requests", summary.Generated[models.ActionConnectionRequest]).
		Int("follow_ups", summary.Generated[models.ActionFollowUp]).
		Int("re_engagements", summary.Generated[models.ActionReEngagement]).
		Int("rate_limited", summary.RateLimited).
		Int("errors", len(summary.Errors)).
		Msg("queue generated")
	return summary, genErr
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func (g *Generator) generate(ctx context.Context, day time.Time, p *plan) error {
	if g.engine != nil {
		if _, err := g.engine.BatchPriority(ctx); err != nil {
			return fmt.Errorf("failed to refresh priorities: %w", err)
		}
	}

	cleared, err := db.ClearPendingQueueItems(ctx, g.db, p.date)
	if err != nil {
		return fmt.Errorf("failed to clear pending items: %w", err)
	}
	p.summary.Cleared = cleared

	existing, err := db.ListQueueItems(ctx, g.db, p.date)
	if err != nil {
		return fmt.Errorf("failed to list queue items: %w", err)
	}
	approvedRequests := 0
	for _, item := range existing {
		p.mark(item.ContactID, item.ActionType)
		if item.Status == models.QueueApproved || item.Status == models.QueueExecuted {
			p.reviewed[item.ActionType]++
		}
		if item.ActionType == models.ActionConnectionRequest && item.Status == models.QueueApproved {
			approvedRequests++
		}
	}
	p.summary.Kept = len(existing)

	if err := g.connectionRequests(ctx, day, approvedRequests, p); err != nil {
		return err
	}
	if err := g.followUps(ctx, day, p); err != nil {
		return err
	}
	return g.reEngagements(ctx, p)
}

func (g *Generator) connectionRequests(ctx context.Context, day time.Time, approved int, p *plan) error {
	budget, err := g.budget.Budget(ctx, day)
	if err != nil {
		return fmt.Errorf("failed to read send budget: %w", err)
	}
	// Approved but unsent requests will consume budget when they go out.
	budget = max(budget-approved, 0)
	p.summary.Budget = budget
	capacity := g.cfg.Queue.MaxConnectionRequests - p.reviewed[models.ActionConnectionRequest]
	limit := min(budget, capacity)

	candidates, err := db.ListTargetsByPriority(ctx, g.db)
	if err != nil {
		return fmt.Errorf("failed to list targets: %w", err)
	}
	// Overflow only counts as rate limited when the budget, not the daily cap, is what
	// stops the pass.
	return g.fill(ctx, p, models.ActionConnectionRequest, candidates, limit, budget < capacity)
}

func (g *Generator) followUps(ctx context.Context, day time.Time, p *plan) error {
	f := g.cfg.FollowUp
	// day is midnight in g.loc, so the cutoff does not drift with the time of the run.
	staleBefore := day.AddDate(0, 0, -f.StaleDays)
	candidates, err := db.ListStaleConnections(ctx, g.db, staleBefore, f.MinScore, f.MaxScore)
	if err != nil {
		return fmt.Errorf("failed to list stale connections: %w", err)
	}
	limit := g.cfg.Queue.MaxFollowUps - p.reviewed[models.ActionFollowUp]
	return g.fill(ctx, p, models.ActionFollowUp, candidates, limit, false)
}

func (g *Generator) reEngagements(ctx context.Context, p *plan) error {
	candidates, err := db.ListGoingCold(ctx, g.db)
	if err != nil {
		return fmt.Errorf("failed to list cold contacts: %w", err)
	}
	eligible := candidates[:0]
	for _, c := range candidates {
		if !p.has(c.ID, models.ActionFollowUp) {
			eligible = append(eligible, c)
		}
	}
	limit := g.cfg.Queue.MaxReEngagements - p.reviewed[models.ActionReEngagement]
	return g.fill(ctx, p, models.ActionReEngagement, eligible, limit, false)
}

// fill queues candidates in order until limit items exist. When budgetBound is set, eligible
// candidates past the limit are recorded as rate limited instead of ending the pass.
func (g *Generator) fill(ctx context.Context, p *plan, action string, candidates []models.Contact, limit int, budgetBound bool) error {
	blocked, err := db.ContactsBlockedOn(ctx, g.db, p.date, action)
	if err != nil {
		return fmt.Errorf("failed to load blocked contacts: %w", err)
	}
	templates, err := db.ListActiveTemplates(ctx, g.db, action)
	if err != nil {
		return fmt.Errorf("failed to load templates: %w", err)
	}

	queued := 0
	for i := range candidates {
		if err := ctx.Err(); err != nil {
			return err
		}
		c := &candidates[i]
		if blocked[c.ID] || p.has(c.ID, action) {
			continue
		}
		if queued >= limit {
			if budgetBound {
				p.summary.RateLimited++
				p.summary.RateLimitedContacts = append(p.summary.RateLimitedContacts, c.ID)
				continue
			}
			break
		}

		inserted, err := g.insert(ctx, p.date, action, c, templates)
		if err != nil {
			p.summary.Errors = append(p.summary.Errors, models.NewBatchError(c.ID.String(), err))
			continue
		}
		p.mark(c.ID, action)
		if inserted {
			queued++
			p.summary.Generated[action]++
		}
	}
	return nil
}

func (g *Generator) insert(ctx context.Context, date, action string, c *models.Contact, templates []models.OutreachTemplate) (bool, error) {
	item := &models.QueueItem{
		ContactID:  c.ID,
		QueueDate:  date,
		ActionType: action,
		Status:     models.QueuePending,
	}
	if len(templates) > 0 {
		categories, err := db.ContactCategories(ctx, g.db, c.ID)
		if err != nil {
			return false, fmt.Errorf("failed to load categories: %w", err)
		}
		if tmpl, category := MatchTemplate(templates, categories); tmpl != nil {
			item.Message = Render(tmpl.Body, c, category)
		}
	}
	inserted, err := db.InsertQueueItem(ctx, g.db, item)
	if err != nil {
		return false, fmt.Errorf("failed to insert queue item: %w", err)
	}
	return inserted, nil
}

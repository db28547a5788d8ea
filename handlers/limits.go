// ABOUTME: Rate limiter and scoring MCP tool handlers
// ABOUTME: Implements rate_limit_status, enter_cooldown and recalculate_scores
package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/harperreed/cadence/ratelimit"
	"github.com/harperreed/cadence/scoring"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type LimitHandlers struct {
	limiter *ratelimit.Limiter
	engine  *scoring.Engine
}

func NewLimitHandlers(limiter *ratelimit.Limiter, engine *scoring.Engine) *LimitHandlers {
	return &LimitHandlers{limiter: limiter, engine: engine}
}

type RateLimitStatusInput struct{}

type RateLimitStatusOutput struct {
	Window            string  `json:"window"`
	SentToday         int64   `json:"sent_today"`
	SentThisWeek      int64   `json:"sent_this_week"`
	RemainingToday    int     `json:"remaining_today"`
	RemainingThisWeek int     `json:"remaining_this_week"`
	CanSend           bool    `json:"can_send"`
	Reason            string  `json:"reason,omitempty"`
	WaitMs            int64   `json:"wait_ms,omitempty"`
	CooldownUntil     *string `json:"cooldown_until,omitempty"`
}

func (h *LimitHandlers) RateLimitStatus(ctx context.Context, _ *mcp.CallToolRequest, _ RateLimitStatusInput) (*mcp.CallToolResult, RateLimitStatusOutput, error) {
	st, err := h.limiter.Status(ctx)
	if err != nil {
		return nil, RateLimitStatusOutput{}, fmt.Errorf("failed to read rate limits: %w", err)
	}
	return nil, RateLimitStatusOutput{
		Window:            st.Window,
		SentToday:         st.SentToday,
		SentThisWeek:      st.SentThisWeek,
		RemainingToday:    st.RemainingToday,
		RemainingThisWeek: st.RemainingThisWeek,
		CanSend:           st.Decision.Allowed,
		Reason:            st.Decision.Reason,
		WaitMs:            st.Decision.WaitMs,
		CooldownUntil:     formatTime(st.CooldownUntil),
	}, nil
}

type EnterCooldownInput struct {
	Days int `json:"days,omitempty" jsonschema:"Cooldown length in days (defaults to the configured cooldown)"`
}

type EnterCooldownOutput struct {
	CooldownUntil string `json:"cooldown_until"`
}

func (h *LimitHandlers) EnterCooldown(ctx context.Context, _ *mcp.CallToolRequest, input EnterCooldownInput) (*mcp.CallToolResult, EnterCooldownOutput, error) {
	until, err := h.limiter.EnterCooldown(ctx, time.Duration(input.Days)*24*time.Hour)
	if err != nil {
		return nil, EnterCooldownOutput{}, fmt.Errorf("failed to enter cooldown: %w", err)
	}
	return nil, EnterCooldownOutput{CooldownUntil: until.Format(time.RFC3339)}, nil
}

type RecalculateScoresInput struct {
	Kind string `json:"kind" jsonschema:"Which score to recompute: priority or relationship"`
}

type RecalculateScoresOutput struct {
	RunID     string   `json:"run_id"`
	Status    string   `json:"status"`
	Processed int      `json:"processed"`
	Updated   int      `json:"updated"`
	Errors    []string `json:"errors,omitempty"`
}

func (h *LimitHandlers) RecalculateScores(ctx context.Context, _ *mcp.CallToolRequest, input RecalculateScoresInput) (*mcp.CallToolResult, RecalculateScoresOutput, error) {
	var summary *scoring.BatchSummary
	var err error
	switch input.Kind {
	case "priority":
		summary, err = h.engine.BatchPriority(ctx)
	case "relationship":
		summary, err = h.engine.BatchRelationship(ctx, time.Now())
	default:
		return nil, RecalculateScoresOutput{}, fmt.Errorf("kind must be priority or relationship, got %q", input.Kind)
	}
	if err != nil {
		return nil, RecalculateScoresOutput{}, fmt.Errorf("failed to recalculate scores: %w", err)
	}

	out := RecalculateScoresOutput{
		RunID:     summary.RunID,
		Status:    summary.Status,
		Processed: summary.Processed,
		Updated:   summary.Updated,
	}
	for _, e := range summary.Errors {
		out.Errors = append(out.Errors, e.Key+": "+e.Err)
	}
	return nil, out, nil
}

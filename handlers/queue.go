// ABOUTME: Daily queue MCP tool handlers
// ABOUTME: Implements generate_queue, list_queue and the approve/done/skip/snooze item actions
package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/harperreed/cadence/models"
	"github.com/harperreed/cadence/queue"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type QueueHandlers struct {
	generator *queue.Generator
	items     *queue.Service
	loc       *time.Location
	now       func() time.Time
}

func NewQueueHandlers(generator *queue.Generator, items *queue.Service, loc *time.Location) *QueueHandlers {
	if loc == nil {
		loc = time.Local
	}
	return &QueueHandlers{generator: generator, items: items, loc: loc, now: time.Now}
}

func (h *QueueHandlers) day(date string) (time.Time, string, error) {
	if date == "" {
		d := h.now().In(h.loc)
		return d, d.Format(models.QueueDateFormat), nil
	}
	d, err := time.ParseInLocation(models.QueueDateFormat, date, h.loc)
	if err != nil {
		return time.Time{}, "", models.NewValidationError("date", "want YYYY-MM-DD, got %q", date)
	}
	return d, date, nil
}

type GenerateQueueInput struct {
	Date string `json:"date,omitempty" jsonschema:"Queue date YYYY-MM-DD (defaults to today)"`
}

type GenerateQueueOutput struct {
	RunID       string         `json:"run_id"`
	QueueDate   string         `json:"queue_date"`
	Cleared     int64          `json:"cleared"`
	Kept        int            `json:"kept"`
	Generated   map[string]int `json:"generated"`
	Budget      int            `json:"budget"`
	RateLimited int            `json:"rate_limited"`
	// RateLimitedContacts are the IDs of targets held back by the send budget.
	RateLimitedContacts []string `json:"rate_limited_contacts,omitempty"`
	Errors              []string `json:"errors,omitempty"`
}

func (h *QueueHandlers) GenerateQueue(ctx context.Context, _ *mcp.CallToolRequest, input GenerateQueueInput) (*mcp.CallToolResult, GenerateQueueOutput, error) {
	day, _, err := h.day(input.Date)
	if err != nil {
		return nil, GenerateQueueOutput{}, err
	}

	summary, err := h.generator.Generate(ctx, day)
	if err != nil {
		return nil, GenerateQueueOutput{}, fmt.Errorf("failed to generate queue: %w", err)
	}

	out := GenerateQueueOutput{
		RunID:       summary.RunID,
		QueueDate:   summary.QueueDate,
		Cleared:     summary.Cleared,
		Kept:        summary.Kept,
		Generated:   summary.Generated,
		Budget:      summary.Budget,
		RateLimited: summary.RateLimited,
	}
	for _, id := range summary.RateLimitedContacts {
		out.RateLimitedContacts = append(out.RateLimitedContacts, id.String())
	}
	for _, e := range summary.Errors {
		out.Errors = append(out.Errors, e.Key+": "+e.Err)
	}
	return nil, out, nil
}

type ListQueueInput struct {
	Date   string `json:"date,omitempty" jsonschema:"Queue date YYYY-MM-DD (defaults to today)"`
	Status string `json:"status,omitempty" jsonschema:"Only items in this status: pending, approved, executed, skipped or snoozed"`
}

type ListQueueOutput struct {
	QueueDate string            `json:"queue_date"`
	Items     []QueueItemOutput `json:"items"`
}

func (h *QueueHandlers) ListQueue(ctx context.Context, _ *mcp.CallToolRequest, input ListQueueInput) (*mcp.CallToolResult, ListQueueOutput, error) {
	_, date, err := h.day(input.Date)
	if err != nil {
		return nil, ListQueueOutput{}, err
	}

	items, err := h.items.List(ctx, date, input.Status)
	if err != nil {
		return nil, ListQueueOutput{}, fmt.Errorf("failed to list queue: %w", err)
	}

	out := ListQueueOutput{QueueDate: date, Items: make([]QueueItemOutput, len(items))}
	for i := range items {
		out.Items[i] = queueItemToOutput(&items[i])
	}
	return nil, out, nil
}

type QueueItemInput struct {
	ID string `json:"id" jsonschema:"Queue item ID (required)"`
}

func (h *QueueHandlers) ApproveQueueItem(ctx context.Context, _ *mcp.CallToolRequest, input QueueItemInput) (*mcp.CallToolResult, QueueItemOutput, error) {
	id, err := parseID("id", input.ID)
	if err != nil {
		return nil, QueueItemOutput{}, err
	}
	item, err := h.items.Approve(ctx, id)
	if err != nil {
		return nil, QueueItemOutput{}, fmt.Errorf("failed to approve queue item: %w", err)
	}
	return nil, queueItemToOutput(item), nil
}

type MarkQueueItemDoneInput struct {
	ID    string `json:"id" jsonschema:"Queue item ID (required)"`
	Notes string `json:"notes,omitempty" jsonschema:"What happened, stored on the item and the interaction"`
}

type MarkQueueItemDoneOutput struct {
	Item        QueueItemOutput      `json:"item"`
	Interaction LogInteractionOutput `json:"interaction"`
	Transition  *TransitionOutput    `json:"transition,omitempty"`
}

func (h *QueueHandlers) MarkQueueItemDone(ctx context.Context, _ *mcp.CallToolRequest, input MarkQueueItemDoneInput) (*mcp.CallToolResult, MarkQueueItemDoneOutput, error) {
	id, err := parseID("id", input.ID)
	if err != nil {
		return nil, MarkQueueItemDoneOutput{}, err
	}

	res, err := h.items.MarkExecuted(ctx, id, input.Notes)
	if err != nil {
		return nil, MarkQueueItemDoneOutput{}, fmt.Errorf("failed to mark queue item done: %w", err)
	}

	out := MarkQueueItemDoneOutput{Item: queueItemToOutput(&res.Item)}
	if res.Log != nil {
		out.Interaction = logResultToOutput(res.Log)
	}
	if res.Transition != nil {
		tr := transitionToOutput(res.Transition)
		out.Transition = &tr
	}
	return nil, out, nil
}

type SkipQueueItemInput struct {
	ID     string `json:"id" jsonschema:"Queue item ID (required)"`
	Reason string `json:"reason,omitempty" jsonschema:"Why the item was skipped"`
}

func (h *QueueHandlers) SkipQueueItem(ctx context.Context, _ *mcp.CallToolRequest, input SkipQueueItemInput) (*mcp.CallToolResult, QueueItemOutput, error) {
	id, err := parseID("id", input.ID)
	if err != nil {
		return nil, QueueItemOutput{}, err
	}
	item, err := h.items.MarkSkipped(ctx, id, input.Reason)
	if err != nil {
		return nil, QueueItemOutput{}, fmt.Errorf("failed to skip queue item: %w", err)
	}
	return nil, queueItemToOutput(item), nil
}

type SnoozeQueueItemInput struct {
	ID    string `json:"id" jsonschema:"Queue item ID (required)"`
	Until string `json:"until" jsonschema:"Date YYYY-MM-DD after today until which the contact is left alone"`
}

func (h *QueueHandlers) SnoozeQueueItem(ctx context.Context, _ *mcp.CallToolRequest, input SnoozeQueueItemInput) (*mcp.CallToolResult, QueueItemOutput, error) {
	id, err := parseID("id", input.ID)
	if err != nil {
		return nil, QueueItemOutput{}, err
	}
	item, err := h.items.Snooze(ctx, id, input.Until)
	if err != nil {
		return nil, QueueItemOutput{}, fmt.Errorf("failed to snooze queue item: %w", err)
	}
	return nil, queueItemToOutput(item), nil
}

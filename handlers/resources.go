// ABOUTME: MCP resource handlers for read-only views of scheduler state
// ABOUTME: Serves today's queue, limiter status, the lifecycle funnel and single contacts via cadence:// URIs
package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/harperreed/cadence/db"
	"github.com/harperreed/cadence/models"
	"github.com/harperreed/cadence/ratelimit"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const resourceScheme = "cadence://"

type ResourceHandlers struct {
	db      *sql.DB
	limiter *ratelimit.Limiter
	loc     *time.Location
	now     func() time.Time
}

func NewResourceHandlers(database *sql.DB, limiter *ratelimit.Limiter, loc *time.Location) *ResourceHandlers {
	if loc == nil {
		loc = time.Local
	}
	return &ResourceHandlers{db: database, limiter: limiter, loc: loc, now: time.Now}
}

// ReadResource handles resource read requests
func (h *ResourceHandlers) ReadResource(ctx context.Context, request *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := request.Params.URI
	if !strings.HasPrefix(uri, resourceScheme) {
		return nil, fmt.Errorf("invalid URI scheme: expected %s", resourceScheme)
	}

	parts := strings.Split(strings.TrimPrefix(uri, resourceScheme), "/")
	switch parts[0] {
	case "queue":
		date := h.now().In(h.loc).Format(models.QueueDateFormat)
		if len(parts) > 1 && parts[1] != "today" {
			date = parts[1]
		}
		return h.readQueue(ctx, uri, date)
	case "limits":
		return h.readLimits(ctx, uri)
	case "funnel":
		return h.readFunnel(ctx, uri)
	case "contacts":
		if len(parts) < 2 || parts[1] == "" {
			return nil, fmt.Errorf("contact id required")
		}
		return h.readContact(ctx, uri, parts[1])
	default:
		return nil, fmt.Errorf("unknown resource: %s", parts[0])
	}
}

func (h *ResourceHandlers) readQueue(ctx context.Context, uri, date string) (*mcp.ReadResourceResult, error) {
	if _, err := time.Parse(models.QueueDateFormat, date); err != nil {
		return nil, fmt.Errorf("invalid queue date %q", date)
	}
	items, err := db.ListQueueItems(ctx, h.db, date)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch queue: %w", err)
	}
	return jsonResource(uri, map[string]any{"queue_date": date, "items": items})
}

func (h *ResourceHandlers) readLimits(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	st, err := h.limiter.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read rate limits: %w", err)
	}
	return jsonResource(uri, st)
}

func (h *ResourceHandlers) readFunnel(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	counts, err := db.CountTransitions(ctx, h.db)
	if err != nil {
		return nil, fmt.Errorf("failed to count transitions: %w", err)
	}
	byStatus, err := db.CountContactsByStatus(ctx, h.db)
	if err != nil {
		return nil, fmt.Errorf("failed to count contacts: %w", err)
	}
	return jsonResource(uri, map[string]any{"contacts_by_status": byStatus, "transitions": counts})
}

func (h *ResourceHandlers) readContact(ctx context.Context, uri, idStr string) (*mcp.ReadResourceResult, error) {
	id, err := parseID("id", idStr)
	if err != nil {
		return nil, err
	}
	contact, err := db.MustGetContact(ctx, h.db, id)
	if err != nil {
		return nil, err
	}
	history, err := db.ListStatusHistory(ctx, h.db, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch status history: %w", err)
	}
	categories, err := db.ContactCategories(ctx, h.db, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch categories: %w", err)
	}
	return jsonResource(uri, map[string]any{
		"contact":        contact,
		"categories":     categories,
		"status_history": history,
	})
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource: %w", err)
	}
	return &mcp.ReadResourceResult{Contents: []*mcp.ResourceContents{
		{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}}, nil
}

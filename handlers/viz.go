// ABOUTME: GraphViz visualization MCP handlers
// ABOUTME: Provides the lifecycle funnel graph tool for agents
package handlers

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/harperreed/cadence/viz"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type VizHandlers struct {
	db *sql.DB
}

func NewVizHandlers(database *sql.DB) *VizHandlers {
	return &VizHandlers{db: database}
}

type FunnelGraphInput struct{}

type FunnelGraphOutput struct {
	DOTSource   string         `json:"dot_source"`
	Contacts    map[string]int `json:"contacts"`
	Transitions int            `json:"transitions"`
	Demotions   int            `json:"demotions"`
}

func (h *VizHandlers) FunnelGraph(ctx context.Context, _ *mcp.CallToolRequest, _ FunnelGraphInput) (*mcp.CallToolResult, FunnelGraphOutput, error) {
	data, err := viz.NewGraphGenerator(h.db).LoadFunnel(ctx)
	if err != nil {
		return nil, FunnelGraphOutput{}, fmt.Errorf("failed to load funnel: %w", err)
	}

	dot, err := viz.RenderFunnel(ctx, data)
	if err != nil {
		return nil, FunnelGraphOutput{}, fmt.Errorf("failed to generate graph: %w", err)
	}

	out := FunnelGraphOutput{DOTSource: dot, Contacts: data.Contacts}
	for _, e := range data.Edges {
		out.Transitions += e.Count
		if e.Demotion {
			out.Demotions += e.Count
		}
	}
	return nil, out, nil
}

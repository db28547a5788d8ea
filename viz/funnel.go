// ABOUTME: Lifecycle funnel graph generation from status history
// ABOUTME: One node per status sized by current headcount, one edge per observed transition
package viz

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
	"github.com/harperreed/cadence/db"
	"github.com/harperreed/cadence/models"
)

var lifecycleStatuses = []string{
	models.StatusTarget,
	models.StatusRequested,
	models.StatusConnected,
	models.StatusEngaged,
	models.StatusRelationship,
}

// GraphGenerator renders graphs from the database.
type GraphGenerator struct {
	db *sql.DB
}

func NewGraphGenerator(database *sql.DB) *GraphGenerator {
	return &GraphGenerator{db: database}
}

// FunnelEdge is one aggregated transition, classified by direction.
type FunnelEdge struct {
	db.TransitionCount
	Demotion bool
}

// FunnelData is what the funnel graph draws.
type FunnelData struct {
	Contacts map[string]int
	Edges    []FunnelEdge
}

// LoadFunnel aggregates current headcount and transition history.
func (g *GraphGenerator) LoadFunnel(ctx context.Context) (*FunnelData, error) {
	counts, err := db.CountContactsByStatus(ctx, g.db)
	if err != nil {
		return nil, fmt.Errorf("failed to count contacts: %w", err)
	}
	transitions, err := db.CountTransitions(ctx, g.db)
	if err != nil {
		return nil, fmt.Errorf("failed to count transitions: %w", err)
	}

	data := &FunnelData{Contacts: counts}
	for _, tc := range transitions {
		data.Edges = append(data.Edges, FunnelEdge{
			TransitionCount: tc,
			Demotion:        tc.From != "" && models.StatusRank(tc.To) < models.StatusRank(tc.From),
		})
	}
	return data, nil
}

// GenerateFunnelGraph renders the lifecycle funnel as DOT source.
func (g *GraphGenerator) GenerateFunnelGraph(ctx context.Context) (string, error) {
	data, err := g.LoadFunnel(ctx)
	if err != nil {
		return "", err
	}
	return RenderFunnel(ctx, data)
}

// RenderFunnel draws data. Creation rows hang off a "new" entry node.
func RenderFunnel(ctx context.Context, data *FunnelData) (string, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create graphviz instance: %w", err)
	}
	defer func() { _ = gv.Close() }()

	graph, err := gv.Graph()
	if err != nil {
		return "", fmt.Errorf("failed to create graph: %w", err)
	}
	defer func() { _ = graph.Close() }()

	graph.SetLabel("Relationship lifecycle")
	graph.SetRankDir(cgraph.LRRank)

	nodes := make(map[string]*cgraph.Node, len(lifecycleStatuses)+1)
	for _, status := range lifecycleStatuses {
		node, err := graph.CreateNodeByName(status)
		if err != nil {
			return "", fmt.Errorf("failed to create status node: %w", err)
		}
		node.SetLabel(fmt.Sprintf("%s\n%d contacts", status, data.Contacts[status]))
		node.SetShape("box")
		node.SetStyle("filled")
		node.SetFillColor("lightblue")
		nodes[status] = node
	}

	for _, e := range data.Edges {
		from := e.From
		if from == "" {
			from = "new"
			if _, ok := nodes[from]; !ok {
				node, err := graph.CreateNodeByName(from)
				if err != nil {
					return "", fmt.Errorf("failed to create entry node: %w", err)
				}
				node.SetShape("point")
				nodes[from] = node
			}
		}
		tail, ok1 := nodes[from]
		head, ok2 := nodes[e.To]
		if !ok1 || !ok2 {
			continue
		}

		edge, err := graph.CreateEdgeByName(from+"->"+e.To, tail, head)
		if err != nil {
			return "", fmt.Errorf("failed to create transition edge: %w", err)
		}
		edge.SetLabel(fmt.Sprintf("%d", e.Count))
		if e.Demotion {
			edge.SetStyle("dashed")
			edge.SetColor("red")
		}
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, graphviz.XDOT, &buf); err != nil {
		return "", fmt.Errorf("failed to render graph: %w", err)
	}
	return buf.String(), nil
}

// ABOUTME: MCP server subcommand
// ABOUTME: Registers the contact, queue, limiter, dedupe and graph tools plus read-only resources on stdio
package cli

import (
	"github.com/harperreed/cadence/handlers"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	ucli "github.com/urfave/cli/v2"
)

// MCPCommand returns the mcp command
func MCPCommand() *ucli.Command {
	return &ucli.Command{
		Name:   "mcp",
		Usage:  "Start the MCP server on stdio",
		Action: withRuntime(runMCP),
	}
}

func runMCP(c *ucli.Context, rt *Runtime) error {
	rt.Log.Info().Str("db", rt.Config.App.DBPath).Msg("starting MCP server")

	server := NewMCPServer(rt, c.App.Version)
	return server.Run(c.Context, &mcp.StdioTransport{})
}

// NewMCPServer builds the server with every tool and resource registered.
func NewMCPServer(rt *Runtime, version string) *mcp.Server {
	contactHandlers := handlers.NewContactHandlers(rt.DB, rt.Machine)
	queueHandlers := handlers.NewQueueHandlers(rt.Generator, rt.Queue, rt.Location)
	limitHandlers := handlers.NewLimitHandlers(rt.Limiter, rt.Engine)
	dedupeHandlers := handlers.NewDedupeHandlers(rt.Detector)
	vizHandlers := handlers.NewVizHandlers(rt.DB)
	resourceHandlers := handlers.NewResourceHandlers(rt.DB, rt.Limiter, rt.Location)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "cadence",
		Version: version,
	}, nil)

	// Contacts
	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_contact",
		Description: "Add a contact; targets get a priority score immediately",
	}, contactHandlers.AddContact)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "find_contacts",
		Description: "Search for contacts by name, email, or company",
	}, contactHandlers.FindContacts)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "log_interaction",
		Description: "Log an interaction with a contact, rescore it and apply any automatic status change",
	}, contactHandlers.LogInteraction)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "set_status",
		Description: "Manually move a contact to a lifecycle status",
	}, contactHandlers.SetStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "update_contact_field",
		Description: "Update one contact field; lower-precedence sources record a conflict instead",
	}, contactHandlers.UpdateContactField)

	// Queue
	mcp.AddTool(server, &mcp.Tool{
		Name:        "generate_queue",
		Description: "Generate the daily outreach queue, keeping items already reviewed",
	}, queueHandlers.GenerateQueue)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_queue",
		Description: "List a day's queue items, optionally filtered by status",
	}, queueHandlers.ListQueue)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "approve_queue_item",
		Description: "Approve a pending queue item for sending",
	}, queueHandlers.ApproveQueueItem)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "mark_queue_item_done",
		Description: "Record that a queue item was carried out; connection requests move the contact to requested",
	}, queueHandlers.MarkQueueItemDone)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "skip_queue_item",
		Description: "Close a queue item without acting on it",
	}, queueHandlers.SkipQueueItem)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "snooze_queue_item",
		Description: "Snooze a queue item and keep the contact out of the queue until a later date",
	}, queueHandlers.SnoozeQueueItem)

	// Limits and scores
	mcp.AddTool(server, &mcp.Tool{
		Name:        "rate_limit_status",
		Description: "Show sends used, remaining budget and whether sending is allowed now",
	}, limitHandlers.RateLimitStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "enter_cooldown",
		Description: "Pause all sending, e.g. after a platform warning",
	}, limitHandlers.EnterCooldown)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "recalculate_scores",
		Description: "Recompute priority or relationship scores for every eligible contact",
	}, limitHandlers.RecalculateScores)

	// Duplicates
	mcp.AddTool(server, &mcp.Tool{
		Name:        "find_duplicates",
		Description: "Scan contacts for duplicates; high-confidence matches merge automatically",
	}, dedupeHandlers.FindDuplicates)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_duplicates",
		Description: "List duplicate pairs waiting for review",
	}, dedupeHandlers.ListDuplicates)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "merge_duplicates",
		Description: "Merge a pending duplicate pair",
	}, dedupeHandlers.MergeDuplicates)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "dismiss_duplicate",
		Description: "Mark a pending pair as distinct people",
	}, dedupeHandlers.DismissDuplicate)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "generate_funnel_graph",
		Description: "Render the lifecycle funnel from status history as GraphViz DOT",
	}, vizHandlers.FunnelGraph)

	// Resources
	server.AddResource(&mcp.Resource{
		URI:      "cadence://queue/today",
		Name:     "Today's queue",
		MIMEType: "application/json",
	}, resourceHandlers.ReadResource)

	server.AddResource(&mcp.Resource{
		URI:      "cadence://limits",
		Name:     "Send limits",
		MIMEType: "application/json",
	}, resourceHandlers.ReadResource)

	server.AddResource(&mcp.Resource{
		URI:      "cadence://funnel",
		Name:     "Lifecycle funnel",
		MIMEType: "application/json",
	}, resourceHandlers.ReadResource)

	server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "cadence://queue/{date}",
		Name:        "Queue for a day",
		MIMEType:    "application/json",
	}, resourceHandlers.ReadResource)

	server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "cadence://contacts/{id}",
		Name:        "Contact",
		MIMEType:    "application/json",
	}, resourceHandlers.ReadResource)

	return server
}

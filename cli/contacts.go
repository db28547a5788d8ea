// ABOUTME: Contact CLI commands
// ABOUTME: Adds and inspects contacts, logs interactions and sets lifecycle status by hand
package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/harperreed/cadence/db"
	"github.com/harperreed/cadence/lifecycle"
	"github.com/harperreed/cadence/models"
	ucli "github.com/urfave/cli/v2"
)

// ContactCommand returns the contact command
func ContactCommand() *ucli.Command {
	return &ucli.Command{
		Name:  "contact",
		Usage: "Manage contacts",
		Subcommands: []*ucli.Command{
			{
				Name:  "add",
				Usage: "Add a new contact",
				Flags: []ucli.Flag{
					&ucli.StringFlag{Name: "name", Usage: "Contact name", Required: true},
					&ucli.StringFlag{Name: "email", Usage: "Email address"},
					&ucli.StringFlag{Name: "phone", Usage: "Phone number"},
					&ucli.StringFlag{Name: "company", Usage: "Current company"},
					&ucli.StringFlag{Name: "title", Usage: "Job title"},
					&ucli.StringFlag{Name: "profile-url", Usage: "Profile URL (unique)"},
					&ucli.StringFlag{Name: "seniority", Usage: "ic, manager, director, vp or c_suite"},
					&ucli.StringFlag{Name: "status", Usage: "Initial status", Value: models.StatusTarget},
					&ucli.IntFlag{Name: "mutuals", Usage: "Mutual connection count"},
					&ucli.StringFlag{Name: "intro", Usage: "Who can introduce you"},
					&ucli.StringFlag{Name: "source", Usage: "Data source tag", Value: models.SourceManual},
				},
				Action: withRuntime(runContactAdd),
			},
			{
				Name:      "show",
				Usage:     "Show a contact with its status history",
				ArgsUsage: "<id>",
				Flags:     []ucli.Flag{jsonFlag()},
				Action:    withRuntime(runContactShow),
			},
			{
				Name:      "find",
				Usage:     "Search contacts by name, email or company",
				ArgsUsage: "[query]",
				Flags: []ucli.Flag{
					&ucli.IntFlag{Name: "limit", Usage: "Max results", Value: 50},
				},
				Action: withRuntime(runContactFind),
			},
		},
	}
}

func runContactAdd(c *ucli.Context, rt *Runtime) error {
	contact := &models.Contact{
		Name:                   c.String("name"),
		Email:                  c.String("email"),
		Phone:                  c.String("phone"),
		Company:                c.String("company"),
		Title:                  c.String("title"),
		ProfileURL:             c.String("profile-url"),
		Seniority:              c.String("seniority"),
		Status:                 c.String("status"),
		MutualConnectionsCount: c.Int("mutuals"),
		IntroductionSource:     c.String("intro"),
	}
	if err := rt.Machine.AddContact(c.Context, contact, c.String("source")); err != nil {
		return fmt.Errorf("failed to add contact: %w", err)
	}

	w := c.App.Writer
	_, _ = fmt.Fprintf(w, "✓ Added %s (%s)\n", contact.Name, contact.Status)
	_, _ = fmt.Fprintf(w, "  ID: %s\n", contact.ID)
	if contact.Status == models.StatusTarget {
		_, _ = fmt.Fprintf(w, "  Priority: %.1f\n", contact.PriorityScore)
	}
	return nil
}

func runContactShow(c *ucli.Context, rt *Runtime) error {
	id, err := argID(c, "contact")
	if err != nil {
		return err
	}
	contact, err := db.MustGetContact(c.Context, rt.DB, id)
	if err != nil {
		return err
	}
	history, err := db.ListStatusHistory(c.Context, rt.DB, id)
	if err != nil {
		return fmt.Errorf("failed to fetch status history: %w", err)
	}
	categories, err := db.ContactCategories(c.Context, rt.DB, id)
	if err != nil {
		return fmt.Errorf("failed to fetch categories: %w", err)
	}

	w := c.App.Writer
	if c.Bool("json") {
		return printJSON(w, map[string]any{
			"contact":        contact,
			"categories":     categories,
			"status_history": history,
		})
	}

	_, _ = fmt.Fprintf(w, "%s  [%s]\n", contact.Name, contact.Status)
	_, _ = fmt.Fprintf(w, "  Company:      %s\n", orDash(contact.Company))
	_, _ = fmt.Fprintf(w, "  Title:        %s\n", orDash(contact.Title))
	_, _ = fmt.Fprintf(w, "  Profile:      %s\n", orDash(contact.ProfileURL))
	_, _ = fmt.Fprintf(w, "  Relationship: %d\n", contact.RelationshipScore)
	_, _ = fmt.Fprintf(w, "  Priority:     %.1f\n", contact.PriorityScore)
	if len(categories) > 0 {
		names := make([]string, len(categories))
		for i, cat := range categories {
			names[i] = cat.Name
		}
		_, _ = fmt.Fprintf(w, "  Categories:   %s\n", strings.Join(names, ", "))
	}
	if contact.GoingColdAt != nil {
		_, _ = fmt.Fprintf(w, "  Going cold since %s\n", contact.GoingColdAt.Format("2006-01-02"))
	}

	_, _ = fmt.Fprintln(w, "\nHISTORY")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, h := range history {
		from := "-"
		if h.FromStatus != nil {
			from = *h.FromStatus
		}
		_, _ = fmt.Fprintf(tw, "  %s\t%s → %s\t%s\t%s\n",
			h.CreatedAt.Format("2006-01-02 15:04"), from, h.ToStatus, h.Trigger, h.Reason)
	}
	return tw.Flush()
}

func runContactFind(c *ucli.Context, rt *Runtime) error {
	contacts, err := db.FindContacts(c.Context, rt.DB, c.Args().First(), c.Int("limit"))
	if err != nil {
		return fmt.Errorf("failed to find contacts: %w", err)
	}
	if len(contacts) == 0 {
		_, _ = fmt.Fprintln(c.App.Writer, "No contacts found")
		return nil
	}

	tw := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "NAME\tCOMPANY\tSTATUS\tREL\tPRIORITY\tID")
	for _, ct := range contacts {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%.1f\t%s\n",
			ct.Name, orDash(ct.Company), ct.Status, ct.RelationshipScore, ct.PriorityScore, ct.ID)
	}
	return tw.Flush()
}

// InteractionCommand returns the interaction command
func InteractionCommand() *ucli.Command {
	return &ucli.Command{
		Name:  "interaction",
		Usage: "Record touchpoints with contacts",
		Subcommands: []*ucli.Command{
			{
				Name:      "log",
				Usage:     "Log an interaction and rescore the contact",
				ArgsUsage: "<contact-id>",
				Flags: []ucli.Flag{
					&ucli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: "Interaction type, e.g. message_received", Required: true},
					&ucli.StringFlag{Name: "source", Usage: "Data source tag", Value: models.SourceManual},
					&ucli.TimestampFlag{Name: "at", Usage: "When it happened", Layout: time.RFC3339},
					&ucli.StringFlag{Name: "notes", Usage: "Free-form notes"},
				},
				Action: withRuntime(runInteractionLog),
			},
		},
	}
}

func runInteractionLog(c *ucli.Context, rt *Runtime) error {
	id, err := argID(c, "contact")
	if err != nil {
		return err
	}
	req := lifecycle.LogRequest{
		ContactID: id,
		Type:      c.String("type"),
		Source:    c.String("source"),
		Metadata:  c.String("notes"),
	}
	if at := c.Timestamp("at"); at != nil {
		req.OccurredAt = *at
	}

	res, err := rt.Machine.LogInteraction(c.Context, req)
	if err != nil {
		return fmt.Errorf("failed to log interaction: %w", err)
	}

	w := c.App.Writer
	_, _ = fmt.Fprintf(w, "✓ Logged %s (+%d)\n", res.Interaction.Type, res.Interaction.PointsValue)
	if res.Score != nil {
		_, _ = fmt.Fprintf(w, "  Relationship score: %d → %d\n", res.Score.Previous, res.Score.Score)
	}
	for _, t := range res.Transitions {
		printTransition(c, &t)
	}
	return nil
}

// StatusCommand returns the status command
func StatusCommand() *ucli.Command {
	return &ucli.Command{
		Name:  "status",
		Usage: "Move contacts through the lifecycle",
		Subcommands: []*ucli.Command{
			{
				Name:      "set",
				Usage:     "Set a contact's status manually",
				ArgsUsage: "<contact-id> <status>",
				Flags: []ucli.Flag{
					&ucli.StringFlag{Name: "reason", Usage: "Why the status changed"},
				},
				Action: withRuntime(runStatusSet),
			},
		},
	}
}

func runStatusSet(c *ucli.Context, rt *Runtime) error {
	id, err := argID(c, "contact")
	if err != nil {
		return err
	}
	if c.NArg() < 2 {
		return fmt.Errorf("status required")
	}

	res, err := rt.Machine.Transition(c.Context, id, c.Args().Get(1), models.TriggerManual, c.String("reason"))
	if err != nil {
		return fmt.Errorf("failed to set status: %w", err)
	}
	if res == nil {
		_, _ = fmt.Fprintln(c.App.Writer, "Status unchanged")
		return nil
	}
	printTransition(c, &res.History)
	if res.Score != nil {
		_, _ = fmt.Fprintf(c.App.Writer, "  Relationship score: %d\n", res.Score.Score)
	}
	return nil
}

func printTransition(c *ucli.Context, h *models.StatusHistory) {
	from := "new"
	if h.FromStatus != nil {
		from = *h.FromStatus
	}
	_, _ = fmt.Fprintf(c.App.Writer, "  %s → %s (%s)\n", from, h.ToStatus, h.Trigger)
}

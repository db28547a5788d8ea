// ABOUTME: Contact MCP tool handlers
// ABOUTME: Implements add_contact, find_contacts, log_interaction, set_status and update_contact_field
package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/harperreed/cadence/db"
	"github.com/harperreed/cadence/lifecycle"
	"github.com/harperreed/cadence/models"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type ContactHandlers struct {
	db      *sql.DB
	machine *lifecycle.Machine
}

func NewContactHandlers(database *sql.DB, machine *lifecycle.Machine) *ContactHandlers {
	return &ContactHandlers{db: database, machine: machine}
}

type AddContactInput struct {
	Name                   string `json:"name" jsonschema:"Contact name (required)"`
	Email                  string `json:"email,omitempty" jsonschema:"Contact email address"`
	Phone                  string `json:"phone,omitempty" jsonschema:"Contact phone number"`
	Company                string `json:"company,omitempty" jsonschema:"Current company"`
	Title                  string `json:"title,omitempty" jsonschema:"Job title"`
	ProfileURL             string `json:"profile_url,omitempty" jsonschema:"Profile URL, unique across contacts"`
	Seniority              string `json:"seniority,omitempty" jsonschema:"One of ic, manager, director, vp, c_suite"`
	Status                 string `json:"status,omitempty" jsonschema:"Initial status (defaults to target)"`
	MutualConnectionsCount int    `json:"mutual_connections_count,omitempty" jsonschema:"Number of mutual connections"`
	IntroductionSource     string `json:"introduction_source,omitempty" jsonschema:"Who can introduce you"`
	Source                 string `json:"source,omitempty" jsonschema:"Data source tag (defaults to manual)"`
}

func (h *ContactHandlers) AddContact(ctx context.Context, _ *mcp.CallToolRequest, input AddContactInput) (*mcp.CallToolResult, ContactOutput, error) {
	contact := &models.Contact{
		Name:                   input.Name,
		Email:                  input.Email,
		Phone:                  input.Phone,
		Company:                input.Company,
		Title:                  input.Title,
		ProfileURL:             input.ProfileURL,
		Seniority:              input.Seniority,
		Status:                 input.Status,
		MutualConnectionsCount: input.MutualConnectionsCount,
		IntroductionSource:     input.IntroductionSource,
	}
	if err := h.machine.AddContact(ctx, contact, input.Source); err != nil {
		return nil, ContactOutput{}, fmt.Errorf("failed to add contact: %w", err)
	}
	return nil, contactToOutput(contact), nil
}

type FindContactsInput struct {
	Query string `json:"query,omitempty" jsonschema:"Search text matched against name, email and company"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum number of results (default 10)"`
}

type FindContactsOutput struct {
	Contacts []ContactOutput `json:"contacts"`
}

func (h *ContactHandlers) FindContacts(ctx context.Context, _ *mcp.CallToolRequest, input FindContactsInput) (*mcp.CallToolResult, FindContactsOutput, error) {
	limit := input.Limit
	if limit == 0 {
		limit = 10
	}

	contacts, err := db.FindContacts(ctx, h.db, input.Query, limit)
	if err != nil {
		return nil, FindContactsOutput{}, fmt.Errorf("failed to find contacts: %w", err)
	}

	result := make([]ContactOutput, len(contacts))
	for i := range contacts {
		result[i] = contactToOutput(&contacts[i])
	}
	return nil, FindContactsOutput{Contacts: result}, nil
}

type LogInteractionInput struct {
	ContactID  string `json:"contact_id" jsonschema:"Contact ID (required)"`
	Type       string `json:"type" jsonschema:"Interaction type, e.g. message_sent, meeting_in_person, connection_request_accepted"`
	Source     string `json:"source,omitempty" jsonschema:"Data source tag (defaults to manual)"`
	OccurredAt string `json:"occurred_at,omitempty" jsonschema:"When it happened (RFC3339, defaults to now)"`
	Notes      string `json:"notes,omitempty" jsonschema:"Free-form notes stored with the interaction"`
}

type LogInteractionOutput struct {
	InteractionID     string             `json:"interaction_id"`
	Points            int                `json:"points"`
	PreviousScore     int                `json:"previous_score"`
	RelationshipScore int                `json:"relationship_score"`
	Transitions       []TransitionOutput `json:"transitions,omitempty"`
}

func (h *ContactHandlers) LogInteraction(ctx context.Context, _ *mcp.CallToolRequest, input LogInteractionInput) (*mcp.CallToolResult, LogInteractionOutput, error) {
	contactID, err := parseID("contact_id", input.ContactID)
	if err != nil {
		return nil, LogInteractionOutput{}, err
	}

	var occurredAt time.Time
	if input.OccurredAt != "" {
		occurredAt, err = time.Parse(time.RFC3339, input.OccurredAt)
		if err != nil {
			return nil, LogInteractionOutput{}, fmt.Errorf("invalid occurred_at format (use RFC3339): %w", err)
		}
	}

	res, err := h.machine.LogInteraction(ctx, lifecycle.LogRequest{
		ContactID:  contactID,
		Type:       input.Type,
		Source:     input.Source,
		OccurredAt: occurredAt,
		Metadata:   input.Notes,
	})
	if err != nil {
		return nil, LogInteractionOutput{}, fmt.Errorf("failed to log interaction: %w", err)
	}
	return nil, logResultToOutput(res), nil
}

func logResultToOutput(res *lifecycle.LogResult) LogInteractionOutput {
	out := LogInteractionOutput{
		InteractionID: res.Interaction.ID.String(),
		Points:        res.Interaction.PointsValue,
	}
	if res.Score != nil {
		out.PreviousScore = res.Score.Previous
		out.RelationshipScore = res.Score.Score
	}
	for i := range res.Transitions {
		out.Transitions = append(out.Transitions, transitionToOutput(&res.Transitions[i]))
	}
	return out
}

type SetStatusInput struct {
	ContactID string `json:"contact_id" jsonschema:"Contact ID (required)"`
	Status    string `json:"status" jsonschema:"Target status: target, requested, connected, engaged or relationship"`
	Reason    string `json:"reason,omitempty" jsonschema:"Why the status changed"`
}

type SetStatusOutput struct {
	Changed           bool              `json:"changed"`
	Transition        *TransitionOutput `json:"transition,omitempty"`
	RelationshipScore *int              `json:"relationship_score,omitempty"`
}

func (h *ContactHandlers) SetStatus(ctx context.Context, _ *mcp.CallToolRequest, input SetStatusInput) (*mcp.CallToolResult, SetStatusOutput, error) {
	contactID, err := parseID("contact_id", input.ContactID)
	if err != nil {
		return nil, SetStatusOutput{}, err
	}

	res, err := h.machine.Transition(ctx, contactID, input.Status, models.TriggerManual, input.Reason)
	if err != nil {
		return nil, SetStatusOutput{}, fmt.Errorf("failed to set status: %w", err)
	}
	if res == nil {
		return nil, SetStatusOutput{}, nil
	}

	out := SetStatusOutput{Changed: true}
	tr := transitionToOutput(&res.History)
	out.Transition = &tr
	if res.Score != nil {
		score := res.Score.Score
		out.RelationshipScore = &score
	}
	return nil, out, nil
}

type UpdateContactFieldInput struct {
	ContactID string `json:"contact_id" jsonschema:"Contact ID (required)"`
	Field     string `json:"field" jsonschema:"Field name, e.g. title, company, email"`
	Value     string `json:"value" jsonschema:"New value"`
	Source    string `json:"source,omitempty" jsonschema:"Data source tag (defaults to manual)"`
}

type UpdateContactFieldOutput struct {
	Outcome    string `json:"outcome"`
	ConflictID string `json:"conflict_id,omitempty"`
}

func (h *ContactHandlers) UpdateContactField(ctx context.Context, _ *mcp.CallToolRequest, input UpdateContactFieldInput) (*mcp.CallToolResult, UpdateContactFieldOutput, error) {
	contactID, err := parseID("contact_id", input.ContactID)
	if err != nil {
		return nil, UpdateContactFieldOutput{}, err
	}
	source := input.Source
	if source == "" {
		source = models.SourceManual
	}

	var res *db.FieldUpdateResult
	err = db.WithTx(ctx, h.db, func(tx *sql.Tx) error {
		var err error
		res, err = db.ApplyFieldUpdate(ctx, tx, contactID, input.Field, input.Value, source)
		return err
	})
	if err != nil {
		return nil, UpdateContactFieldOutput{}, fmt.Errorf("failed to update field: %w", err)
	}

	out := UpdateContactFieldOutput{Outcome: res.Outcome}
	if res.Conflict != nil {
		out.ConflictID = res.Conflict.ID.String()
	}
	return nil, out, nil
}

// ABOUTME: Wire shapes returned by the MCP tools
// ABOUTME: IDs and timestamps are flattened to strings so the inferred output schemas match the JSON
package handlers

import (
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/cadence/models"
)

type ContactOutput struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	Email             string  `json:"email,omitempty"`
	Company           string  `json:"company,omitempty"`
	Title             string  `json:"title,omitempty"`
	ProfileURL        string  `json:"profile_url,omitempty"`
	Status            string  `json:"status"`
	Seniority         string  `json:"seniority,omitempty"`
	RelationshipScore int     `json:"relationship_score"`
	PriorityScore     float64 `json:"priority_score"`
	NeedsReview       bool    `json:"needs_review"`
	GoingCold         bool    `json:"going_cold"`
	LastInteractionAt *string `json:"last_interaction_at,omitempty"`
	CreatedAt         string  `json:"created_at"`
}

type TransitionOutput struct {
	ContactID  string `json:"contact_id"`
	FromStatus string `json:"from_status,omitempty"`
	ToStatus   string `json:"to_status"`
	Trigger    string `json:"trigger"`
	Reason     string `json:"reason,omitempty"`
	CreatedAt  string `json:"created_at"`
}

type QueueItemOutput struct {
	ID          string  `json:"id"`
	ContactID   string  `json:"contact_id"`
	QueueDate   string  `json:"queue_date"`
	ActionType  string  `json:"action_type"`
	Status      string  `json:"status"`
	Message     string  `json:"message,omitempty"`
	SnoozeUntil *string `json:"snooze_until,omitempty"`
	ExecutedAt  *string `json:"executed_at,omitempty"`
	Result      string  `json:"result,omitempty"`
}

func contactToOutput(c *models.Contact) ContactOutput {
	return ContactOutput{
		ID:                c.ID.String(),
		Name:              c.Name,
		Email:             c.Email,
		Company:           c.Company,
		Title:             c.Title,
		ProfileURL:        c.ProfileURL,
		Status:            c.Status,
		Seniority:         c.Seniority,
		RelationshipScore: c.RelationshipScore,
		PriorityScore:     c.PriorityScore,
		NeedsReview:       c.NeedsReview,
		GoingCold:         c.GoingColdAt != nil,
		LastInteractionAt: formatTime(c.LastInteractionAt),
		CreatedAt:         c.CreatedAt.Format(time.RFC3339),
	}
}

func transitionToOutput(h *models.StatusHistory) TransitionOutput {
	out := TransitionOutput{
		ContactID: h.ContactID.String(),
		ToStatus:  h.ToStatus,
		Trigger:   h.Trigger,
		Reason:    h.Reason,
		CreatedAt: h.CreatedAt.Format(time.RFC3339),
	}
	if h.FromStatus != nil {
		out.FromStatus = *h.FromStatus
	}
	return out
}

func queueItemToOutput(item *models.QueueItem) QueueItemOutput {
	return QueueItemOutput{
		ID:          item.ID.String(),
		ContactID:   item.ContactID.String(),
		QueueDate:   item.QueueDate,
		ActionType:  item.ActionType,
		Status:      item.Status,
		Message:     item.Message,
		SnoozeUntil: item.SnoozeUntil,
		ExecutedAt:  formatTime(item.ExecutedAt),
		Result:      item.Result,
	}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

func parseID(field, value string) (uuid.UUID, error) {
	if value == "" {
		return uuid.Nil, models.NewValidationError(field, "is required")
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, models.NewValidationError(field, "invalid id: %v", err)
	}
	return id, nil
}

// ABOUTME: Outreach template database operations
// ABOUTME: Stores message bodies per action type, optionally scoped to a category or persona
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/cadence/models"
)

// CreateTemplate inserts an outreach template.
func CreateTemplate(ctx context.Context, q DBTX, t *models.OutreachTemplate) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.CreatedAt = time.Now().UTC()

	var categoryID sql.NullString
	if t.CategoryID != nil {
		categoryID = sql.NullString{String: t.CategoryID.String(), Valid: true}
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO outreach_templates (id, name, action_type, category_id, persona, body, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID.String(), t.Name, t.ActionType, categoryID, nullString(t.Persona), t.Body, boolInt(t.IsActive), t.CreatedAt)
	return err
}

// ListActiveTemplates returns active templates for an action type, oldest first.
func ListActiveTemplates(ctx context.Context, q DBTX, actionType string) ([]models.OutreachTemplate, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, name, action_type, category_id, persona, body, is_active, created_at
		FROM outreach_templates
		WHERE action_type = ? AND is_active = 1
		ORDER BY created_at, id
	`, actionType)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var templates []models.OutreachTemplate
	for rows.Next() {
		var t models.OutreachTemplate
		var idStr string
		var categoryID, persona sql.NullString
		var active int
		if err := rows.Scan(&idStr, &t.Name, &t.ActionType, &categoryID, &persona, &t.Body, &active, &t.CreatedAt); err != nil {
			return nil, err
		}
		if t.ID, err = uuid.Parse(idStr); err != nil {
			return nil, fmt.Errorf("failed to parse template ID: %w", err)
		}
		if categoryID.Valid {
			cid, err := uuid.Parse(categoryID.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse category ID: %w", err)
			}
			t.CategoryID = &cid
		}
		t.Persona = persona.String
		t.IsActive = active == 1
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

// ABOUTME: Contact creation entry point
// ABOUTME: Records field provenance and the initial status history row alongside the insert
package lifecycle

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/harperreed/cadence/db"
	"github.com/harperreed/cadence/models"
)

// AddContact creates a contact in any status. Populated fields are attributed to source and
// a history row with no from-status records the entry point. Targets get a priority score.
func (m *Machine) AddContact(ctx context.Context, c *models.Contact, source string) error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return models.NewValidationError("name", "is required")
	}
	if c.Status == "" {
		c.Status = models.StatusTarget
	}
	if !models.ValidStatus(c.Status) {
		return models.NewValidationError("status", "unknown status %q", c.Status)
	}
	if !models.ValidSeniority(c.Seniority) {
		return models.NewValidationError("seniority", "unknown seniority %q", c.Seniority)
	}
	if source == "" {
		source = models.SourceManual
	}
	if !models.ValidSource(source) {
		return models.NewValidationError("source", "unknown source %q", source)
	}

	if c.FieldSources == nil {
		c.FieldSources = map[string]string{}
	}
	for _, field := range db.ConflictFields() {
		if v, err := db.FieldValue(c, field); err == nil && v != "" {
			c.FieldSources[field] = source
		}
	}

	trigger := models.TriggerImport
	if source == models.SourceManual {
		trigger = models.TriggerManual
	}

	return db.WithTx(ctx, m.db, func(tx *sql.Tx) error {
		if err := db.CreateContact(ctx, tx, c); err != nil {
			return err
		}
		if err := db.CreateStatusHistory(ctx, tx, &models.StatusHistory{
			ContactID: c.ID,
			ToStatus:  c.Status,
			Trigger:   trigger,
			Reason:    "created",
			CreatedAt: c.CreatedAt,
		}); err != nil {
			return fmt.Errorf("failed to record status history: %w", err)
		}
		if c.Status == models.StatusTarget {
			res, err := m.engine.RecalculatePriority(ctx, tx, c.ID)
			if err != nil {
				return err
			}
			c.PriorityScore = res.Breakdown.Total
		}
		m.log.Debug().Str("contact_id", c.ID.String()).Str("status", c.Status).Msg("contact added")
		return nil
	})
}

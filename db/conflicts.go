// ABOUTME: Source-rank arbitration of contact field updates
// ABOUTME: Applies trusted writes directly and parks lower-trust ones as data conflicts
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/cadence/models"
)

// contactField reads and writes one conflict-eligible field.
type contactField struct {
	get func(c *models.Contact) string
	set func(c *models.Contact, v string) error
}

var contactFields = map[string]contactField{
	"name": {
		get: func(c *models.Contact) string { return c.Name },
		set: func(c *models.Contact, v string) error {
			if v == "" {
				return models.NewValidationError("name", "must not be empty")
			}
			c.Name = v
			return nil
		},
	},
	"first_name":          stringField(func(c *models.Contact) *string { return &c.FirstName }),
	"last_name":           stringField(func(c *models.Contact) *string { return &c.LastName }),
	"email":               stringField(func(c *models.Contact) *string { return &c.Email }),
	"phone":               stringField(func(c *models.Contact) *string { return &c.Phone }),
	"company":             stringField(func(c *models.Contact) *string { return &c.Company }),
	"title":               stringField(func(c *models.Contact) *string { return &c.Title }),
	"location":            stringField(func(c *models.Contact) *string { return &c.Location }),
	"headline":            stringField(func(c *models.Contact) *string { return &c.Headline }),
	"profile_url":         stringField(func(c *models.Contact) *string { return &c.ProfileURL }),
	"introduction_source": stringField(func(c *models.Contact) *string { return &c.IntroductionSource }),
	"seniority": {
		get: func(c *models.Contact) string { return c.Seniority },
		set: func(c *models.Contact, v string) error {
			if !models.ValidSeniority(v) {
				return models.NewValidationError("seniority", "unknown level %q", v)
			}
			c.Seniority = v
			return nil
		},
	},
}

func stringField(ptr func(c *models.Contact) *string) contactField {
	return contactField{
		get: func(c *models.Contact) string { return *ptr(c) },
		set: func(c *models.Contact, v string) error {
			*ptr(c) = v
			return nil
		},
	}
}

// ConflictFields lists the field names accepted by ApplyFieldUpdate.
func ConflictFields() []string {
	names := make([]string, 0, len(contactFields))
	for name := range contactFields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FieldValue returns the current value of a conflict-eligible field.
func FieldValue(c *models.Contact, field string) (string, error) {
	f, ok := contactFields[field]
	if !ok {
		return "", models.NewValidationError("field", "%q is not an updatable field", field)
	}
	return f.get(c), nil
}

// SetField writes a conflict-eligible field and records its source.
func SetField(c *models.Contact, field, value, source string) error {
	f, ok := contactFields[field]
	if !ok {
		return models.NewValidationError("field", "%q is not an updatable field", field)
	}
	if err := f.set(c, value); err != nil {
		return err
	}
	if c.FieldSources == nil {
		c.FieldSources = map[string]string{}
	}
	c.FieldSources[field] = source
	return nil
}

// Field update outcomes.
const (
	UpdateApplied   = "applied"
	UpdateConflict  = "conflict"
	UpdateUnchanged = "unchanged"
)

// FieldUpdateResult reports what ApplyFieldUpdate did.
type FieldUpdateResult struct {
	Outcome  string               `json:"outcome"`
	Conflict *models.DataConflict `json:"conflict,omitempty"`
}

// ApplyFieldUpdate writes value to field unless the field's current source outranks source,
// in which case a pending DataConflict is recorded and the field is left alone.
func ApplyFieldUpdate(ctx context.Context, q DBTX, contactID uuid.UUID, field, value, source string) (*FieldUpdateResult, error) {
	if _, ok := contactFields[field]; !ok {
		return nil, models.NewValidationError("field", "%q is not an updatable field", field)
	}
	if !models.ValidSource(source) {
		return nil, models.NewValidationError("source", "unknown source %q", source)
	}

	contact, err := MustGetContact(ctx, q, contactID)
	if err != nil {
		return nil, err
	}

	current, _ := FieldValue(contact, field)
	if current == value {
		return &FieldUpdateResult{Outcome: UpdateUnchanged}, nil
	}

	currentSource := contact.FieldSources[field]
	if current != "" && models.SourceRank(source) < models.SourceRank(currentSource) {
		conflict := &models.DataConflict{
			ID:             uuid.New(),
			ContactID:      contactID,
			FieldName:      field,
			CurrentValue:   current,
			CurrentSource:  currentSource,
			IncomingValue:  value,
			IncomingSource: source,
			Status:         models.ConflictPending,
			CreatedAt:      time.Now().UTC(),
		}
		if err := createConflict(ctx, q, conflict); err != nil {
			return nil, fmt.Errorf("failed to record data conflict: %w", err)
		}
		return &FieldUpdateResult{Outcome: UpdateConflict, Conflict: conflict}, nil
	}

	if err := SetField(contact, field, value, source); err != nil {
		return nil, err
	}
	if err := SaveContact(ctx, q, contact); err != nil {
		return nil, err
	}
	return &FieldUpdateResult{Outcome: UpdateApplied}, nil
}

func createConflict(ctx context.Context, q DBTX, c *models.DataConflict) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO data_conflicts (id, contact_id, field_name, current_value, current_source,
			incoming_value, incoming_source, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID.String(), c.ContactID.String(), c.FieldName, c.CurrentValue, c.CurrentSource,
		c.IncomingValue, c.IncomingSource, c.Status, utc(c.CreatedAt))
	return err
}

const conflictColumns = `id, contact_id, field_name, current_value, current_source, incoming_value,
	incoming_source, status, resolution, created_at, resolved_at`

func scanConflict(s rowScanner) (*models.DataConflict, error) {
	var c models.DataConflict
	var idStr, contactStr string
	var current, incoming, resolution sql.NullString
	var resolvedAt sql.NullTime

	if err := s.Scan(&idStr, &contactStr, &c.FieldName, &current, &c.CurrentSource, &incoming,
		&c.IncomingSource, &c.Status, &resolution, &c.CreatedAt, &resolvedAt); err != nil {
		return nil, err
	}

	var err error
	if c.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("failed to parse conflict ID: %w", err)
	}
	if c.ContactID, err = uuid.Parse(contactStr); err != nil {
		return nil, fmt.Errorf("failed to parse contact ID: %w", err)
	}
	c.CurrentValue = current.String
	c.IncomingValue = incoming.String
	c.Resolution = resolution.String
	c.ResolvedAt = nullTimePtr(resolvedAt)
	return &c, nil
}

// GetConflict returns a conflict by ID, or nil if missing.
func GetConflict(ctx context.Context, q DBTX, id uuid.UUID) (*models.DataConflict, error) {
	row := q.QueryRowContext(ctx, `SELECT `+conflictColumns+` FROM data_conflicts WHERE id = ?`, id.String())
	c, err := scanConflict(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

// ListConflicts returns conflicts with the given status ("" for all), oldest first.
func ListConflicts(ctx context.Context, q DBTX, status string) ([]models.DataConflict, error) {
	query := `SELECT ` + conflictColumns + ` FROM data_conflicts`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at, id`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var conflicts []models.DataConflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, *c)
	}
	return conflicts, rows.Err()
}

// ResolveConflict closes a pending conflict. Accepting the incoming value writes it and
// marks the field as manually confirmed.
func ResolveConflict(ctx context.Context, q DBTX, conflictID uuid.UUID, acceptIncoming bool) (*models.DataConflict, error) {
	conflict, err := GetConflict(ctx, q, conflictID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conflict: %w", err)
	}
	if conflict == nil {
		return nil, &models.NotFoundError{Entity: "data conflict", ID: conflictID.String()}
	}
	if conflict.Status != models.ConflictPending {
		return nil, models.NewValidationError("conflict", "already resolved")
	}

	resolution := models.ResolutionKeepCurrent
	if acceptIncoming {
		resolution = models.ResolutionAcceptUpdate
		contact, err := MustGetContact(ctx, q, conflict.ContactID)
		if err != nil {
			return nil, err
		}
		if err := SetField(contact, conflict.FieldName, conflict.IncomingValue, models.SourceManual); err != nil {
			return nil, err
		}
		if err := SaveContact(ctx, q, contact); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	if _, err := q.ExecContext(ctx, `
		UPDATE data_conflicts SET status = ?, resolution = ?, resolved_at = ? WHERE id = ?
	`, models.ConflictResolved, resolution, now, conflictID.String()); err != nil {
		return nil, fmt.Errorf("failed to resolve conflict: %w", err)
	}

	conflict.Status = models.ConflictResolved
	conflict.Resolution = resolution
	conflict.ResolvedAt = &now
	return conflict, nil
}

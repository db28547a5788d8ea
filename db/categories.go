// ABOUTME: Category and contact-category database operations
// ABOUTME: Supplies the relevance weights consumed by priority scoring and template matching
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/cadence/models"
)

const categoryColumns = `c.id, c.name, c.relevance_weight, c.persona, c.created_at`

func scanCategory(s rowScanner) (*models.Category, error) {
	var c models.Category
	var idStr string
	var persona sql.NullString
	if err := s.Scan(&idStr, &c.Name, &c.RelevanceWeight, &persona, &c.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if c.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("failed to parse category ID: %w", err)
	}
	c.Persona = persona.String
	return &c, nil
}

// CreateCategory inserts a category. Weight must be within [1,10].
func CreateCategory(ctx context.Context, q DBTX, c *models.Category) error {
	if c.RelevanceWeight < 1 || c.RelevanceWeight > 10 {
		return models.NewValidationError("relevance_weight", "must be between 1 and 10, got %v", c.RelevanceWeight)
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt = time.Now().UTC()
	_, err := q.ExecContext(ctx, `
		INSERT INTO categories (id, name, relevance_weight, persona, created_at) VALUES (?, ?, ?, ?, ?)
	`, c.ID.String(), c.Name, c.RelevanceWeight, nullString(c.Persona), c.CreatedAt)
	if isUniqueViolation(err) {
		return &models.ConflictError{Entity: "category", Field: "name", Value: c.Name}
	}
	return err
}

// GetCategoryByName returns a category, or nil if none has that name.
func GetCategoryByName(ctx context.Context, q DBTX, name string) (*models.Category, error) {
	row := q.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories c WHERE c.name = ?`, name)
	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

// ListCategories returns all categories by name.
func ListCategories(ctx context.Context, q DBTX) ([]models.Category, error) {
	return queryCategories(ctx, q, `SELECT `+categoryColumns+` FROM categories c ORDER BY c.name`)
}

// ContactCategories returns a contact's categories, heaviest first.
func ContactCategories(ctx context.Context, q DBTX, contactID uuid.UUID) ([]models.Category, error) {
	return queryCategories(ctx, q, `
		SELECT `+categoryColumns+`
		FROM categories c
		JOIN contact_categories cc ON cc.category_id = c.id
		WHERE cc.contact_id = ?
		ORDER BY c.relevance_weight DESC, c.name
	`, contactID.String())
}

func queryCategories(ctx context.Context, q DBTX, query string, args ...any) ([]models.Category, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var categories []models.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, *c)
	}
	return categories, rows.Err()
}

// MaxCategoryWeight returns the highest relevance weight among a contact's categories.
// ok is false when the contact is uncategorized.
func MaxCategoryWeight(ctx context.Context, q DBTX, contactID uuid.UUID) (weight float64, ok bool, err error) {
	var w sql.NullFloat64
	err = q.QueryRowContext(ctx, `
		SELECT MAX(c.relevance_weight)
		FROM categories c
		JOIN contact_categories cc ON cc.category_id = c.id
		WHERE cc.contact_id = ?
	`, contactID.String()).Scan(&w)
	if err != nil {
		return 0, false, err
	}
	return w.Float64, w.Valid, nil
}

// AssignCategory links a contact to a category, replacing the confidence if already linked.
func AssignCategory(ctx context.Context, q DBTX, contactID, categoryID uuid.UUID, confidence string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO contact_categories (contact_id, category_id, confidence, assigned_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(contact_id, category_id) DO UPDATE SET confidence = excluded.confidence, assigned_at = excluded.assigned_at
	`, contactID.String(), categoryID.String(), nullString(confidence), time.Now().UTC())
	return err
}

// ReassignCategories moves category links from a merged contact to the surviving record.
func ReassignCategories(ctx context.Context, q DBTX, from, to uuid.UUID) error {
	if _, err := q.ExecContext(ctx, `
		INSERT OR IGNORE INTO contact_categories (contact_id, category_id, confidence, assigned_at)
		SELECT ?, category_id, confidence, assigned_at FROM contact_categories WHERE contact_id = ?
	`, to.String(), from.String()); err != nil {
		return err
	}
	_, err := q.ExecContext(ctx, `DELETE FROM contact_categories WHERE contact_id = ?`, from.String())
	return err
}

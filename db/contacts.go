// ABOUTME: Contact database operations over the active-contact view
// ABOUTME: Handles creation, lookups, keyset paging, score/status writes and soft deletion
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/cadence/models"
	"github.com/mattn/go-sqlite3"
)

// ActiveContacts is the predicate every core read goes through; soft-deleted rows are invisible.
const ActiveContacts = "deleted_at IS NULL"

const contactColumns = `
	id, name, first_name, last_name, email, phone, company, title, location, headline,
	profile_url, status, seniority, relationship_score, priority_score,
	mutual_connections_count, is_active_on_profile, has_open_to_connect_signal,
	introduction_source, needs_review, field_sources, going_cold_at,
	created_at, updated_at, last_interaction_at, deleted_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContact(s rowScanner) (*models.Contact, error) {
	var c models.Contact
	var idStr string
	var firstName, lastName, email, phone, company, title, location, headline sql.NullString
	var profileURL, seniority, introSource sql.NullString
	var activeOnProfile, openToConnect, needsReview int
	var fieldSources string
	var goingColdAt, lastInteractionAt, deletedAt sql.NullTime

	err := s.Scan(
		&idStr, &c.Name, &firstName, &lastName, &email, &phone, &company, &title, &location, &headline,
		&profileURL, &c.Status, &seniority, &c.RelationshipScore, &c.PriorityScore,
		&c.MutualConnectionsCount, &activeOnProfile, &openToConnect,
		&introSource, &needsReview, &fieldSources, &goingColdAt,
		&c.CreatedAt, &c.UpdatedAt, &lastInteractionAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	c.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse contact ID: %w", err)
	}

	c.FirstName = firstName.String
	c.LastName = lastName.String
	c.Email = email.String
	c.Phone = phone.String
	c.Company = company.String
	c.Title = title.String
	c.Location = location.String
	c.Headline = headline.String
	c.ProfileURL = profileURL.String
	c.Seniority = seniority.String
	c.IntroductionSource = introSource.String
	c.IsActiveOnProfile = activeOnProfile == 1
	c.HasOpenToConnectSignal = openToConnect == 1
	c.NeedsReview = needsReview == 1
	c.GoingColdAt = nullTimePtr(goingColdAt)
	c.LastInteractionAt = nullTimePtr(lastInteractionAt)
	c.DeletedAt = nullTimePtr(deletedAt)

	c.FieldSources = map[string]string{}
	if fieldSources != "" {
		if err := json.Unmarshal([]byte(fieldSources), &c.FieldSources); err != nil {
			return nil, fmt.Errorf("failed to decode field sources: %w", err)
		}
	}

	return &c, nil
}

func encodeFieldSources(m map[string]string) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to encode field sources: %w", err)
	}
	return string(b), nil
}

// CreateContact inserts a new contact. A duplicate profile URL yields a ConflictError.
func CreateContact(ctx context.Context, q DBTX, contact *models.Contact) error {
	if contact.ID == uuid.Nil {
		contact.ID = uuid.New()
	}
	now := time.Now().UTC()
	if contact.CreatedAt.IsZero() {
		contact.CreatedAt = now
	}
	contact.UpdatedAt = now
	if contact.Status == "" {
		contact.Status = models.StatusTarget
	}
	if contact.FieldSources == nil {
		contact.FieldSources = map[string]string{}
	}

	sources, err := encodeFieldSources(contact.FieldSources)
	if err != nil {
		return err
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO contacts (`+contactColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		contact.ID.String(), contact.Name, nullString(contact.FirstName), nullString(contact.LastName),
		nullString(contact.Email), nullString(contact.Phone), nullString(contact.Company),
		nullString(contact.Title), nullString(contact.Location), nullString(contact.Headline),
		nullString(contact.ProfileURL), contact.Status, nullString(contact.Seniority),
		contact.RelationshipScore, contact.PriorityScore,
		contact.MutualConnectionsCount, boolInt(contact.IsActiveOnProfile), boolInt(contact.HasOpenToConnectSignal),
		nullString(contact.IntroductionSource), boolInt(contact.NeedsReview), sources, utcPtr(contact.GoingColdAt),
		utc(contact.CreatedAt), contact.UpdatedAt, utcPtr(contact.LastInteractionAt), utcPtr(contact.DeletedAt),
	)
	if isUniqueViolation(err) {
		return &models.ConflictError{Entity: "contact", Field: "profile_url", Value: contact.ProfileURL}
	}
	return err
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// GetContact returns an active contact, or nil if it does not exist or is soft-deleted.
func GetContact(ctx context.Context, q DBTX, id uuid.UUID) (*models.Contact, error) {
	row := q.QueryRowContext(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id = ? AND `+ActiveContacts, id.String())
	c, err := scanContact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

// MustGetContact is GetContact but reports a missing contact as NotFoundError.
func MustGetContact(ctx context.Context, q DBTX, id uuid.UUID) (*models.Contact, error) {
	c, err := GetContact(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load contact: %w", err)
	}
	if c == nil {
		return nil, &models.NotFoundError{Entity: "contact", ID: id.String()}
	}
	return c, nil
}

// PageCursor is the keyset position of the last row of a page.
type PageCursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// ListContactsPage returns up to limit active contacts in the given statuses, ordered by
// creation time, starting after the cursor.
func ListContactsPage(ctx context.Context, q DBTX, statuses []string, after *PageCursor, limit int) ([]models.Contact, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + contactColumns + ` FROM contacts WHERE ` + ActiveContacts
	var args []any

	if len(statuses) > 0 {
		query += ` AND status IN (` + placeholders(len(statuses)) + `)`
		for _, s := range statuses {
			args = append(args, s)
		}
	}
	if after != nil {
		query += ` AND (created_at > ? OR (created_at = ? AND id > ?))`
		args = append(args, utc(after.CreatedAt), utc(after.CreatedAt), after.ID.String())
	}
	query += ` ORDER BY created_at, id LIMIT ?`
	args = append(args, limit)

	return queryContacts(ctx, q, query, args...)
}

// ListActiveContacts returns every active contact ordered by creation time.
func ListActiveContacts(ctx context.Context, q DBTX) ([]models.Contact, error) {
	return queryContacts(ctx, q, `SELECT `+contactColumns+` FROM contacts WHERE `+ActiveContacts+` ORDER BY created_at, id`)
}

// FindContacts searches active contacts by name, email or company.
func FindContacts(ctx context.Context, q DBTX, search string, limit int) ([]models.Contact, error) {
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + search + "%"
	return queryContacts(ctx, q, `
		SELECT `+contactColumns+` FROM contacts
		WHERE `+ActiveContacts+` AND (name LIKE ? OR email LIKE ? OR company LIKE ?)
		ORDER BY created_at DESC
		LIMIT ?
	`, pattern, pattern, pattern, limit)
}

func queryContacts(ctx context.Context, q DBTX, query string, args ...any) ([]models.Contact, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var contacts []models.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, *c)
	}

	return contacts, rows.Err()
}

// SaveContact writes every mutable column of an existing active contact.
func SaveContact(ctx context.Context, q DBTX, c *models.Contact) error {
	c.UpdatedAt = time.Now().UTC()
	sources, err := encodeFieldSources(c.FieldSources)
	if err != nil {
		return err
	}

	res, err := q.ExecContext(ctx, `
		UPDATE contacts SET
			name = ?, first_name = ?, last_name = ?, email = ?, phone = ?, company = ?,
			title = ?, location = ?, headline = ?, profile_url = ?, status = ?, seniority = ?,
			relationship_score = ?, priority_score = ?, mutual_connections_count = ?,
			is_active_on_profile = ?, has_open_to_connect_signal = ?, introduction_source = ?,
			needs_review = ?, field_sources = ?, going_cold_at = ?, last_interaction_at = ?,
			updated_at = ?
		WHERE id = ? AND `+ActiveContacts,
		c.Name, nullString(c.FirstName), nullString(c.LastName), nullString(c.Email),
		nullString(c.Phone), nullString(c.Company), nullString(c.Title), nullString(c.Location),
		nullString(c.Headline), nullString(c.ProfileURL), c.Status, nullString(c.Seniority),
		c.RelationshipScore, c.PriorityScore, c.MutualConnectionsCount,
		boolInt(c.IsActiveOnProfile), boolInt(c.HasOpenToConnectSignal), nullString(c.IntroductionSource),
		boolInt(c.NeedsReview), sources, utcPtr(c.GoingColdAt), utcPtr(c.LastInteractionAt),
		c.UpdatedAt, c.ID.String(),
	)
	if isUniqueViolation(err) {
		return &models.ConflictError{Entity: "contact", Field: "profile_url", Value: c.ProfileURL}
	}
	if err != nil {
		return err
	}
	return requireRow(res, "contact", c.ID.String())
}

// SetContactStatus updates the status column only.
func SetContactStatus(ctx context.Context, q DBTX, id uuid.UUID, status string) error {
	res, err := q.ExecContext(ctx, `
		UPDATE contacts SET status = ?, updated_at = ? WHERE id = ? AND `+ActiveContacts,
		status, time.Now().UTC(), id.String())
	if err != nil {
		return err
	}
	return requireRow(res, "contact", id.String())
}

// SetRelationshipScore stores a recomputed relationship score.
func SetRelationshipScore(ctx context.Context, q DBTX, id uuid.UUID, score int) error {
	_, err := q.ExecContext(ctx, `
		UPDATE contacts SET relationship_score = ?, updated_at = ? WHERE id = ? AND `+ActiveContacts,
		score, time.Now().UTC(), id.String())
	return err
}

// SetPriorityScore stores a recomputed priority score.
func SetPriorityScore(ctx context.Context, q DBTX, id uuid.UUID, score float64) error {
	_, err := q.ExecContext(ctx, `
		UPDATE contacts SET priority_score = ?, updated_at = ? WHERE id = ? AND `+ActiveContacts,
		score, time.Now().UTC(), id.String())
	return err
}

// TouchLastInteraction advances last_interaction_at; it never moves backwards.
func TouchLastInteraction(ctx context.Context, q DBTX, id uuid.UUID, at time.Time) error {
	at = utc(at)
	_, err := q.ExecContext(ctx, `
		UPDATE contacts SET last_interaction_at = ?, updated_at = ?
		WHERE id = ? AND `+ActiveContacts+` AND (last_interaction_at IS NULL OR last_interaction_at < ?)
	`, at, time.Now().UTC(), id.String(), at)
	return err
}

// SetGoingCold sets or clears the going-cold flag.
func SetGoingCold(ctx context.Context, q DBTX, id uuid.UUID, at *time.Time) error {
	_, err := q.ExecContext(ctx, `
		UPDATE contacts SET going_cold_at = ?, updated_at = ? WHERE id = ? AND `+ActiveContacts,
		utcPtr(at), time.Now().UTC(), id.String())
	return err
}

// SetNeedsReview flags a contact for human review.
func SetNeedsReview(ctx context.Context, q DBTX, id uuid.UUID, needsReview bool) error {
	_, err := q.ExecContext(ctx, `
		UPDATE contacts SET needs_review = ?, updated_at = ? WHERE id = ? AND `+ActiveContacts,
		boolInt(needsReview), time.Now().UTC(), id.String())
	return err
}

// SoftDeleteContact hides a contact from every core component.
func SoftDeleteContact(ctx context.Context, q DBTX, id uuid.UUID, at time.Time) error {
	res, err := q.ExecContext(ctx, `
		UPDATE contacts SET deleted_at = ?, profile_url = NULL, updated_at = ? WHERE id = ? AND `+ActiveContacts,
		utc(at), time.Now().UTC(), id.String())
	if err != nil {
		return err
	}
	return requireRow(res, "contact", id.String())
}

// CountContactsByStatus returns active contact counts keyed by status.
func CountContactsByStatus(ctx context.Context, q DBTX) (map[string]int, error) {
	rows, err := q.QueryContext(ctx, `SELECT status, COUNT(*) FROM contacts WHERE `+ActiveContacts+` GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func requireRow(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &models.NotFoundError{Entity: entity, ID: id}
	}
	return nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	s := "?"
	for i := 1; i < n; i++ {
		s += ", ?"
	}
	return s
}

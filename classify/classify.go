// ABOUTME: Applies external classifier output to contacts
// ABOUTME: Assigns the category, flags low-confidence results for review and refreshes target priority
package classify

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/harperreed/cadence/db"
	"github.com/harperreed/cadence/models"
	"github.com/harperreed/cadence/scoring"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Result is a classifier's answer for one contact.
type Result struct {
	Category   string `json:"category"`
	Confidence string `json:"confidence"`
}

// Classifier is the external collaborator that labels a contact.
type Classifier interface {
	Classify(ctx context.Context, contact models.Contact) (Result, error)
}

// Outcome reports what Apply changed.
type Outcome struct {
	Category        models.Category         `json:"category"`
	CreatedCategory bool                    `json:"created_category"`
	NeedsReview     bool                    `json:"needs_review"`
	Priority        *scoring.PriorityResult `json:"priority,omitempty"`
}

type Service struct {
	db     *sql.DB
	engine *scoring.Engine
	log    zerolog.Logger
}

type Option func(*Service)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = l }
}

func NewService(database *sql.DB, engine *scoring.Engine, opts ...Option) *Service {
	s := &Service{db: database, engine: engine, log: log.Logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Apply records a classification. Unknown categories are created with weight 1.
func (s *Service) Apply(ctx context.Context, contactID uuid.UUID, res Result) (*Outcome, error) {
	name := strings.TrimSpace(res.Category)
	if name == "" {
		return nil, models.NewValidationError("category", "is required")
	}
	if models.ConfidenceRank(res.Confidence) == 0 {
		return nil, models.NewValidationError("confidence", "must be high, medium or low, got %q", res.Confidence)
	}

	out := &Outcome{}
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		contact, err := db.MustGetContact(ctx, tx, contactID)
		if err != nil {
			return err
		}

		category, err := db.GetCategoryByName(ctx, tx, name)
		if err != nil {
			return fmt.Errorf("failed to look up category: %w", err)
		}
		if category == nil {
			category = &models.Category{Name: name, RelevanceWeight: 1}
			if err := db.CreateCategory(ctx, tx, category); err != nil {
				return fmt.Errorf("failed to create category: %w", err)
			}
			out.CreatedCategory = true
		}
		out.Category = *category

		if err := db.AssignCategory(ctx, tx, contact.ID, category.ID, res.Confidence); err != nil {
			return fmt.Errorf("failed to assign category: %w", err)
		}

		out.NeedsReview = contact.NeedsReview
		if res.Confidence == models.ConfidenceLow && !contact.NeedsReview {
			if err := db.SetNeedsReview(ctx, tx, contact.ID, true); err != nil {
				return fmt.Errorf("failed to flag for review: %w", err)
			}
			out.NeedsReview = true
		}

		if contact.Status == models.StatusTarget {
			out.Priority, err = s.engine.RecalculatePriority(ctx, tx, contact.ID)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("contact_id", contactID.String()).
		Str("category", out.Category.Name).
		Str("confidence", res.Confidence).
		Bool("needs_review", out.NeedsReview).
		Msg("classification applied")
	return out, nil
}

// Classify asks c for a label and applies it.
func (s *Service) Classify(ctx context.Context, c Classifier, contactID uuid.UUID) (*Outcome, error) {
	contact, err := db.MustGetContact(ctx, s.db, contactID)
	if err != nil {
		return nil, err
	}
	res, err := c.Classify(ctx, *contact)
	if err != nil {
		return nil, fmt.Errorf("classifier failed: %w", err)
	}
	return s.Apply(ctx, contactID, res)
}

// ABOUTME: Data models for the relationship scoring and outreach scheduler
// ABOUTME: Defines contacts, ledger entries, histories, queue items, duplicate pairs and their constants
package models

import (
	"time"

	"github.com/google/uuid"
)

// Contact is a person being tracked through the relationship lifecycle.
type Contact struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Company   string    `json:"company,omitempty"`
	Title     string    `json:"title,omitempty"`
	Location  string    `json:"location,omitempty"`
	Headline  string    `json:"headline,omitempty"`
	// ProfileURL is the external profile link used by the execution side.
	ProfileURL string `json:"profile_url,omitempty"`

	Status    string `json:"status"`
	Seniority string `json:"seniority,omitempty"`

	RelationshipScore int     `json:"relationship_score"`
	PriorityScore     float64 `json:"priority_score"`

	MutualConnectionsCount int    `json:"mutual_connections_count"`
	IsActiveOnProfile      bool   `json:"is_active_on_profile"`
	HasOpenToConnectSignal bool   `json:"has_open_to_connect_signal"`
	IntroductionSource     string `json:"introduction_source,omitempty"`
	NeedsReview            bool   `json:"needs_review"`

	// FieldSources records which channel last set each field.
	FieldSources map[string]string `json:"field_sources,omitempty"`

	GoingColdAt       *time.Time `json:"going_cold_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	LastInteractionAt *time.Time `json:"last_interaction_at,omitempty"`
	DeletedAt         *time.Time `json:"deleted_at,omitempty"`
}

// Contact statuses, in lifecycle order.
const (
	StatusTarget       = "target"
	StatusRequested    = "requested"
	StatusConnected    = "connected"
	StatusEngaged      = "engaged"
	StatusRelationship = "relationship"
)

var statusOrder = map[string]int{
	StatusTarget:       0,
	StatusRequested:    1,
	StatusConnected:    2,
	StatusEngaged:      3,
	StatusRelationship: 4,
}

// ValidStatus reports whether s is one of the lifecycle statuses.
func ValidStatus(s string) bool {
	_, ok := statusOrder[s]
	return ok
}

// StatusRank returns the position of a status in the lifecycle, or -1.
func StatusRank(s string) int {
	if r, ok := statusOrder[s]; ok {
		return r
	}
	return -1
}

// IsConnectedOrBeyond reports whether the status is connected, engaged or relationship.
func IsConnectedOrBeyond(s string) bool {
	return StatusRank(s) >= statusOrder[StatusConnected]
}

// ConnectedStatuses lists the statuses where a relationship score is meaningful.
var ConnectedStatuses = []string{StatusConnected, StatusEngaged, StatusRelationship}

// Seniority levels.
const (
	SeniorityIC       = "ic"
	SeniorityManager  = "manager"
	SeniorityDirector = "director"
	SeniorityVP       = "vp"
	SeniorityCSuite   = "c_suite"
)

// ValidSeniority reports whether s is empty or a known seniority level.
func ValidSeniority(s string) bool {
	switch s {
	case "", SeniorityIC, SeniorityManager, SeniorityDirector, SeniorityVP, SeniorityCSuite:
		return true
	}
	return false
}

// Completeness counts populated optional fields. Used to pick the primary record on merge.
func (c *Contact) Completeness() int {
	n := 0
	for _, v := range []string{
		c.FirstName, c.LastName, c.Email, c.Phone, c.Company, c.Title,
		c.Location, c.Headline, c.ProfileURL, c.Seniority, c.IntroductionSource,
	} {
		if v != "" {
			n++
		}
	}
	if c.MutualConnectionsCount > 0 {
		n++
	}
	return n
}

// Interaction is an immutable ledger entry.
type Interaction struct {
	ID          uuid.UUID `json:"id"`
	ContactID   uuid.UUID `json:"contact_id"`
	Type        string    `json:"type"`
	Source      string    `json:"source"`
	OccurredAt  time.Time `json:"occurred_at"`
	PointsValue int       `json:"points_value"`
	Metadata    string    `json:"metadata,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Interaction types.
const (
	InteractionConnectionSent     = "connection_request_sent"
	InteractionConnectionAccepted = "connection_request_accepted"
	InteractionMessageSent        = "message_sent"
	InteractionMessageReceived    = "message_received"
	InteractionCommentGiven       = "comment_given"
	InteractionCommentReceived    = "comment_received"
	InteractionLikeGiven          = "like_given"
	InteractionLikeReceived       = "like_received"
	InteractionShare              = "share"
	InteractionEndorsement        = "endorsement"
	InteractionEmailSent          = "email_sent"
	InteractionEmailReceived      = "email_received"
	InteractionCall               = "call"
	InteractionMeetingVirtual     = "meeting_virtual"
	InteractionMeetingInPerson    = "meeting_in_person"
	InteractionIntroduction       = "introduction"
)

// DefaultInteractionPoints is the built-in points table; the config store may override it.
var DefaultInteractionPoints = map[string]int{
	InteractionConnectionSent:     1,
	InteractionConnectionAccepted: 3,
	InteractionMessageSent:        2,
	InteractionMessageReceived:    3,
	InteractionCommentGiven:       2,
	InteractionCommentReceived:    2,
	InteractionLikeGiven:          1,
	InteractionLikeReceived:       1,
	InteractionShare:              2,
	InteractionEndorsement:        2,
	InteractionEmailSent:          2,
	InteractionEmailReceived:      3,
	InteractionCall:               6,
	InteractionMeetingVirtual:     8,
	InteractionMeetingInPerson:    10,
	InteractionIntroduction:       5,
}

// ValidInteractionType reports whether t is a known interaction type.
func ValidInteractionType(t string) bool {
	_, ok := DefaultInteractionPoints[t]
	return ok
}

// Data-entry sources.
const (
	SourceManual        = "manual"
	SourceEmailCalendar = "email_calendar"
	SourceLinkedIn      = "linkedin"
	SourceScrape        = "scrape"
	SourceImport        = "import"
	SourceInferred      = "inferred"
)

// SourceRank returns the trust rank of a source; higher wins. Unknown sources rank lowest.
func SourceRank(source string) int {
	switch source {
	case SourceManual:
		return 4
	case SourceEmailCalendar:
		return 3
	case SourceLinkedIn, SourceScrape:
		return 2
	case SourceImport:
		return 1
	}
	return 0
}

// ValidSource reports whether s is a known source tag.
func ValidSource(s string) bool {
	switch s {
	case SourceManual, SourceEmailCalendar, SourceLinkedIn, SourceScrape, SourceImport, SourceInferred:
		return true
	}
	return false
}

// StatusHistory records one status change.
type StatusHistory struct {
	ID         uuid.UUID `json:"id"`
	ContactID  uuid.UUID `json:"contact_id"`
	FromStatus *string   `json:"from_status,omitempty"`
	ToStatus   string    `json:"to_status"`
	Trigger    string    `json:"trigger"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Status change triggers.
const (
	TriggerManual             = "manual"
	TriggerAutomatedPromotion = "automated_promotion"
	TriggerAutomatedDemotion  = "automated_demotion"
	TriggerImport             = "import"
)

// ScoreHistory is a point-in-time score snapshot.
type ScoreHistory struct {
	ID         uuid.UUID `json:"id"`
	ContactID  uuid.UUID `json:"contact_id"`
	ScoreType  string    `json:"score_type"`
	ScoreValue float64   `json:"score_value"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Score types.
const (
	ScoreTypeRelationship = "relationship"
	ScoreTypePriority     = "priority"
)

// DataConflict is a deferred field update that a lower-trust source attempted.
type DataConflict struct {
	ID             uuid.UUID  `json:"id"`
	ContactID      uuid.UUID  `json:"contact_id"`
	FieldName      string     `json:"field_name"`
	CurrentValue   string     `json:"current_value"`
	CurrentSource  string     `json:"current_source"`
	IncomingValue  string     `json:"incoming_value"`
	IncomingSource string     `json:"incoming_source"`
	Status         string     `json:"status"`
	Resolution     string     `json:"resolution,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}

// Conflict statuses and resolutions.
const (
	ConflictPending        = "pending"
	ConflictResolved       = "resolved"
	ResolutionKeepCurrent  = "keep_current"
	ResolutionAcceptUpdate = "accept_incoming"
)

// QueueItem is one scheduled outreach action for one contact on one day.
type QueueItem struct {
	ID          uuid.UUID  `json:"id"`
	ContactID   uuid.UUID  `json:"contact_id"`
	QueueDate   string     `json:"queue_date"` // YYYY-MM-DD
	ActionType  string     `json:"action_type"`
	Status      string     `json:"status"`
	Message     string     `json:"message,omitempty"`
	SnoozeUntil *string    `json:"snooze_until,omitempty"`
	ExecutedAt  *time.Time `json:"executed_at,omitempty"`
	Result      string     `json:"result,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Queue action types.
const (
	ActionConnectionRequest = "connection_request"
	ActionFollowUp          = "follow_up"
	ActionReEngagement      = "re_engagement"
)

// ActionTypes lists queue action types in generation order.
var ActionTypes = []string{ActionConnectionRequest, ActionFollowUp, ActionReEngagement}

// Queue item statuses.
const (
	QueuePending  = "pending"
	QueueApproved = "approved"
	QueueExecuted = "executed"
	QueueSkipped  = "skipped"
	QueueSnoozed  = "snoozed"
)

// QueueDateFormat is the layout of QueueItem.QueueDate.
const QueueDateFormat = "2006-01-02"

// DuplicatePair links two contacts that share identity signals.
type DuplicatePair struct {
	ID         uuid.UUID  `json:"id"`
	ContactAID uuid.UUID  `json:"contact_a_id"`
	ContactBID uuid.UUID  `json:"contact_b_id"`
	MatchType  string     `json:"match_type"`
	Confidence string     `json:"confidence"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// Match types.
const (
	MatchURL         = "url"
	MatchEmail       = "email"
	MatchPhone       = "phone"
	MatchNameCompany = "name_company"
	MatchFuzzy       = "fuzzy"
)

// Confidence levels, shared by duplicate pairs and the classifier.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// ConfidenceRank orders confidence levels; higher is stronger.
func ConfidenceRank(c string) int {
	switch c {
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	case ConfidenceLow:
		return 1
	}
	return 0
}

// Duplicate pair statuses.
const (
	PairPending   = "pending"
	PairMerged    = "merged"
	PairDismissed = "dismissed"
)

// CanonicalPair orders two contact IDs so the smaller string comes first.
func CanonicalPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if a.String() < b.String() {
		return a, b
	}
	return b, a
}

// MergeHistory snapshots a discarded contact.
type MergeHistory struct {
	ID                uuid.UUID  `json:"id"`
	PrimaryID         uuid.UUID  `json:"primary_id"`
	SecondaryID       uuid.UUID  `json:"secondary_id"`
	PairID            *uuid.UUID `json:"pair_id,omitempty"`
	SecondarySnapshot string     `json:"secondary_snapshot"`
	MergedBy          string     `json:"merged_by"`
	MergedAt          time.Time  `json:"merged_at"`
}

// Merge origins.
const (
	MergedByAuto   = "auto"
	MergedByManual = "manual"
)

// Category is a relevance bucket assigned to contacts.
type Category struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	RelevanceWeight float64   `json:"relevance_weight"`
	Persona         string    `json:"persona,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// OutreachTemplate is a message body with {{token}} placeholders.
type OutreachTemplate struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	ActionType string     `json:"action_type"`
	CategoryID *uuid.UUID `json:"category_id,omitempty"`
	Persona    string     `json:"persona,omitempty"`
	Body       string     `json:"body"`
	IsActive   bool       `json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
}

// JobRun tracks one execution of a batch job.
type JobRun struct {
	ID           string     `json:"id"`
	JobType      string     `json:"job_type"`
	Status       string     `json:"status"`
	Processed    int        `json:"processed"`
	Updated      int        `json:"updated"`
	Errors       int        `json:"errors"`
	ErrorMessage string     `json:"error_message,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// Job types and statuses.
const (
	JobPriorityBatch     = "priority_batch"
	JobRelationshipBatch = "relationship_batch"
	JobColdDetection     = "cold_detection"
	JobDuplicateScan     = "duplicate_scan"
	JobQueueGeneration   = "queue_generation"

	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
	JobCancelled = "cancelled"
)

// ABOUTME: Tests for CRM data models
// ABOUTME: Validates status ordering, source rank, completeness and error helpers
package models

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
)

func TestStatusRank(t *testing.T) {
	if StatusRank(StatusTarget) >= StatusRank(StatusRequested) {
		t.Error("expected target before requested")
	}
	if StatusRank("bogus") != -1 {
		t.Error("expected -1 for unknown status")
	}
	if !IsConnectedOrBeyond(StatusEngaged) {
		t.Error("engaged should count as connected or beyond")
	}
	if IsConnectedOrBeyond(StatusRequested) {
		t.Error("requested should not count as connected")
	}
}

func TestSourceRank(t *testing.T) {
	tests := []struct {
		higher string
		lower  string
	}{
		{SourceManual, SourceEmailCalendar},
		{SourceEmailCalendar, SourceLinkedIn},
		{SourceLinkedIn, SourceImport},
		{SourceImport, SourceInferred},
	}

	for _, tt := range tests {
		if SourceRank(tt.higher) <= SourceRank(tt.lower) {
			t.Errorf("expected %s to outrank %s", tt.higher, tt.lower)
		}
	}
	if SourceRank(SourceLinkedIn) != SourceRank(SourceScrape) {
		t.Error("linkedin and scrape should share a rank")
	}
}

func TestCanonicalPair(t *testing.T) {
	a := uuid.MustParse("00000000-0000-0000-0000-000000000002")
	b := uuid.MustParse("00000000-0000-0000-0000-000000000001")

	first, second := CanonicalPair(a, b)
	if first != b || second != a {
		t.Errorf("expected (%s, %s), got (%s, %s)", b, a, first, second)
	}
}

func TestCompleteness(t *testing.T) {
	c := &Contact{Name: "Ada", Email: "ada@example.com", Company: "Analytical", MutualConnectionsCount: 3}
	if got := c.Completeness(); got != 3 {
		t.Errorf("expected completeness 3, got %d", got)
	}
}

func TestErrorHelpers(t *testing.T) {
	wrapped := fmt.Errorf("failed to load: %w", &NotFoundError{Entity: "contact", ID: "x"})
	if !IsNotFound(wrapped) {
		t.Error("expected wrapped not-found to be detected")
	}
	if IsValidation(wrapped) {
		t.Error("not-found should not be a validation error")
	}

	rl, ok := AsRateLimited(fmt.Errorf("send: %w", &RateLimitedError{Reason: "daily_limit", WaitMs: 1500}))
	if !ok {
		t.Fatal("expected rate limited error")
	}
	if rl.Wait().Milliseconds() != 1500 {
		t.Errorf("expected 1500ms wait, got %s", rl.Wait())
	}
}

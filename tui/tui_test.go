// ABOUTME: Tests for the queue review screen
// ABOUTME: Drives key presses through Update against a real database
package tui

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/harperreed/cadence/config"
	"github.com/harperreed/cadence/db"
	"github.com/harperreed/cadence/lifecycle"
	"github.com/harperreed/cadence/logging"
	"github.com/harperreed/cadence/models"
	"github.com/harperreed/cadence/queue"
	"github.com/harperreed/cadence/scoring"
)

const testDate = "2026-06-03"

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.OpenDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test db: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func newTestModel(t *testing.T, names ...string) (Model, *sql.DB) {
	t.Helper()
	database := setupTestDB(t)
	ctx := context.Background()

	for _, name := range names {
		c := &models.Contact{Name: name, Company: "Acme", ProfileURL: "https://example.com/in/" + name}
		if err := db.CreateContact(ctx, database, c); err != nil {
			t.Fatalf("Failed to create contact: %v", err)
		}
		item := &models.QueueItem{ContactID: c.ID, QueueDate: testDate, ActionType: models.ActionConnectionRequest}
		if _, err := db.InsertQueueItem(ctx, database, item); err != nil {
			t.Fatalf("Failed to insert queue item: %v", err)
		}
	}

	engine := scoring.NewEngine(database, config.DefaultScoring(), scoring.WithLogger(logging.Nop()))
	machine := lifecycle.NewMachine(database, engine, lifecycle.WithLogger(logging.Nop()))
	items := queue.NewService(database, machine, nil, queue.WithServiceLogger(logging.Nop()))
	return NewModel(database, items, testDate), database
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(m Model, msgs ...tea.Msg) Model {
	for _, msg := range msgs {
		updated, _ := m.Update(msg)
		m = updated.(Model)
	}
	return m
}

func TestListViewShowsOpenItems(t *testing.T) {
	m, _ := newTestModel(t, "ada", "grace")

	if len(m.rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(m.rows))
	}
	output := m.View()
	if !strings.Contains(output, "CADENCE QUEUE "+testDate) {
		t.Error("List view should contain the queue date")
	}
	if !strings.Contains(output, "ada") || !strings.Contains(output, "grace") {
		t.Error("List view should show contact names")
	}
}

func TestEmptyQueue(t *testing.T) {
	m, _ := newTestModel(t)
	if !strings.Contains(m.View(), "Nothing to review") {
		t.Error("Empty queue should say so")
	}
}

func TestApproveKey(t *testing.T) {
	m, database := newTestModel(t, "ada")
	id := m.rows[0].item.ID

	m = press(m, key("a"))
	if m.err != nil {
		t.Fatalf("Approve failed: %v", m.err)
	}

	item, err := db.GetQueueItem(context.Background(), database, id)
	if err != nil {
		t.Fatalf("GetQueueItem failed: %v", err)
	}
	if item.Status != models.QueueApproved {
		t.Errorf("Expected approved, got %s", item.Status)
	}
	if !strings.Contains(m.message, "Approved ada") {
		t.Errorf("Unexpected message %q", m.message)
	}

	// Approving twice is refused and reported.
	m = press(m, key("a"))
	if m.err == nil {
		t.Error("Expected error approving an approved item")
	}
}

func TestSkipPromptClosesItem(t *testing.T) {
	m, database := newTestModel(t, "ada", "grace")
	id := m.rows[0].item.ID

	m = press(m, key("s"))
	if m.viewMode != ViewPrompt {
		t.Fatalf("Expected prompt view, got %v", m.viewMode)
	}
	m = press(m, key("not a fit"), tea.KeyMsg{Type: tea.KeyEnter})
	if m.err != nil {
		t.Fatalf("Skip failed: %v", m.err)
	}
	if m.viewMode != ViewList {
		t.Errorf("Expected list view after confirm, got %v", m.viewMode)
	}

	item, _ := db.GetQueueItem(context.Background(), database, id)
	if item.Status != models.QueueSkipped || item.Result != "not a fit" {
		t.Errorf("Expected skipped with reason, got %s %q", item.Status, item.Result)
	}
	if len(m.rows) != 1 {
		t.Errorf("Closed item should drop out of the list, have %d rows", len(m.rows))
	}

	m = press(m, key("c"))
	if len(m.rows) != 2 {
		t.Errorf("Toggling closed items should show both, have %d rows", len(m.rows))
	}
}

func TestPromptEscapeCancels(t *testing.T) {
	m, database := newTestModel(t, "ada")
	id := m.rows[0].item.ID

	m = press(m, key("z"), tea.KeyMsg{Type: tea.KeyEsc})
	if m.viewMode != ViewList {
		t.Fatalf("Expected list view, got %v", m.viewMode)
	}
	item, _ := db.GetQueueItem(context.Background(), database, id)
	if item.Status != models.QueuePending {
		t.Errorf("Cancelled prompt should leave item pending, got %s", item.Status)
	}
}

func TestSnoozeDefaultsToNextWeek(t *testing.T) {
	m, database := newTestModel(t, "ada")
	id := m.rows[0].item.ID

	m = press(m, key("z"), tea.KeyMsg{Type: tea.KeyEnter})
	if m.err != nil {
		t.Fatalf("Snooze failed: %v", m.err)
	}
	item, _ := db.GetQueueItem(context.Background(), database, id)
	if item.Status != models.QueueSnoozed || item.SnoozeUntil == nil {
		t.Errorf("Expected snoozed with a date, got %s", item.Status)
	}
}

func TestDoneAdvancesContact(t *testing.T) {
	m, database := newTestModel(t, "ada")
	contactID := m.rows[0].item.ContactID

	m = press(m, key("d"), tea.KeyMsg{Type: tea.KeyEnter})
	if m.err != nil {
		t.Fatalf("Done failed: %v", m.err)
	}
	if !strings.Contains(m.message, "now requested") {
		t.Errorf("Unexpected message %q", m.message)
	}
	c, _ := db.GetContact(context.Background(), database, contactID)
	if c.Status != models.StatusRequested {
		t.Errorf("Expected requested, got %s", c.Status)
	}
}

func TestDetailViewAndBack(t *testing.T) {
	m, _ := newTestModel(t, "ada")

	m = press(m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.viewMode != ViewDetail {
		t.Fatalf("Expected detail view, got %v", m.viewMode)
	}
	output := m.View()
	if !strings.Contains(output, "https://example.com/in/ada") {
		t.Error("Detail view should show the profile URL")
	}

	m = press(m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.viewMode != ViewList {
		t.Errorf("Expected list view, got %v", m.viewMode)
	}
}

func TestNavigationStaysInBounds(t *testing.T) {
	m, _ := newTestModel(t, "ada", "grace")

	m = press(m, tea.KeyMsg{Type: tea.KeyUp})
	if m.selectedRow != 0 {
		t.Errorf("Expected row 0, got %d", m.selectedRow)
	}
	m = press(m, tea.KeyMsg{Type: tea.KeyDown}, tea.KeyMsg{Type: tea.KeyDown})
	if m.selectedRow != 1 {
		t.Errorf("Expected row 1, got %d", m.selectedRow)
	}
}

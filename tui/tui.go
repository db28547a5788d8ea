// ABOUTME: Terminal User Interface using bubbletea framework
// ABOUTME: Interactive review of a day's outreach queue: approve, skip, snooze or mark done
package tui

import (
	"database/sql"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/harperreed/cadence/models"
	"github.com/harperreed/cadence/queue"
)

// ViewMode represents the current TUI view
type ViewMode int

const (
	ViewList ViewMode = iota
	ViewDetail
	ViewPrompt
)

// promptKind says what a submitted prompt does.
type promptKind int

const (
	promptSkip promptKind = iota
	promptSnooze
	promptDone
)

type reviewRow struct {
	item    models.QueueItem
	contact *models.Contact
}

// Model is the main bubbletea model
type Model struct {
	db    *sql.DB
	items *queue.Service
	date  string
	now   func() time.Time

	viewMode ViewMode
	rows     []reviewRow
	// showClosed includes executed, skipped and snoozed items
	showClosed  bool
	selectedRow int

	prompt     promptKind
	promptItem reviewRow
	input      textinput.Model

	message string
	err     error

	width  int
	height int
}

// NewModel creates a review model for one queue date and loads its items.
func NewModel(database *sql.DB, items *queue.Service, date string) Model {
	input := textinput.New()
	input.CharLimit = 200
	m := Model{
		db:       database,
		items:    items,
		date:     date,
		now:      time.Now,
		viewMode: ViewList,
		input:    input,
		width:    100,
		height:   24,
	}
	m.loadRows()
	return m
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	switch m.viewMode {
	case ViewList:
		return m.renderListView()
	case ViewDetail:
		return m.renderDetailView()
	case ViewPrompt:
		return m.renderPromptView()
	}
	return ""
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	switch m.viewMode {
	case ViewList:
		return m.handleListKeys(msg)
	case ViewDetail:
		return m.handleDetailKeys(msg)
	case ViewPrompt:
		return m.handlePromptKeys(msg)
	}
	return m, nil
}

func (m Model) selected() (reviewRow, bool) {
	if m.selectedRow < 0 || m.selectedRow >= len(m.rows) {
		return reviewRow{}, false
	}
	return m.rows[m.selectedRow], true
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170"))

	messageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			MarginTop(1)
)

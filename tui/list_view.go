package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/harperreed/cadence/db"
	"github.com/harperreed/cadence/models"
)

func (m *Model) loadRows() {
	ctx := context.Background()
	items, err := m.items.List(ctx, m.date, "")
	if err != nil {
		m.err = err
		return
	}

	m.rows = m.rows[:0]
	for _, item := range items {
		open := item.Status == models.QueuePending || item.Status == models.QueueApproved
		if !open && !m.showClosed {
			continue
		}
		contact, err := db.GetContact(ctx, m.db, item.ContactID)
		if err != nil {
			m.err = err
			return
		}
		m.rows = append(m.rows, reviewRow{item: item, contact: contact})
	}
	if m.selectedRow >= len(m.rows) {
		m.selectedRow = max(len(m.rows)-1, 0)
	}
}

func (m Model) renderListView() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("CADENCE QUEUE " + m.date))
	s.WriteString("\n\n")

	if len(m.rows) == 0 {
		s.WriteString("Nothing to review.")
	} else {
		s.WriteString(m.renderQueueTable())
	}
	s.WriteString("\n\n")

	s.WriteString(m.renderStatusLine())
	s.WriteString(m.renderListHelp())

	return s.String()
}

func (m Model) renderQueueTable() string {
	columns := []table.Column{
		{Title: "Action", Width: 18},
		{Title: "Name", Width: 24},
		{Title: "Company", Width: 20},
		{Title: "Status", Width: 10},
		{Title: "Score", Width: 7},
	}

	var rows []table.Row
	for _, r := range m.rows {
		name, company, score := "(deleted)", "", ""
		if r.contact != nil {
			name = r.contact.Name
			company = r.contact.Company
			if r.item.ActionType == models.ActionConnectionRequest {
				score = fmt.Sprintf("%.1f", r.contact.PriorityScore)
			} else {
				score = fmt.Sprintf("%d", r.contact.RelationshipScore)
			}
		}
		rows = append(rows, table.Row{r.item.ActionType, name, company, r.item.Status, score})
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(max(m.height-10, 3)),
	)

	if m.selectedRow < len(rows) {
		t.SetCursor(m.selectedRow)
	}

	return t.View()
}

func (m Model) renderStatusLine() string {
	if m.err != nil {
		return errorStyle.Render("Error: "+m.err.Error()) + "\n"
	}
	if m.message != "" {
		return messageStyle.Render(m.message) + "\n"
	}
	return ""
}

func (m Model) renderListHelp() string {
	help := []string{
		"↑/↓: Navigate",
		"Enter: Details",
		"a: Approve",
		"d: Done",
		"s: Skip",
		"z: Snooze",
		"c: Toggle closed",
		"r: Refresh",
		"q: Quit",
	}
	return helpStyle.Render(strings.Join(help, " • "))
}

func (m Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "up", "k":
		if m.selectedRow > 0 {
			m.selectedRow--
		}
	case "down", "j":
		if m.selectedRow < len(m.rows)-1 {
			m.selectedRow++
		}
	case "enter":
		if _, ok := m.selected(); ok {
			m.viewMode = ViewDetail
		}
	case "a":
		m.approveSelected()
	case "d":
		m.openPrompt(promptDone, "notes (optional)", "")
	case "s":
		m.openPrompt(promptSkip, "reason (optional)", "")
	case "z":
		nextWeek := m.now().AddDate(0, 0, 7).Format(models.QueueDateFormat)
		m.openPrompt(promptSnooze, "snooze until YYYY-MM-DD", nextWeek)
	case "c":
		m.showClosed = !m.showClosed
		m.loadRows()
	case "r":
		m.message, m.err = "", nil
		m.loadRows()
	}

	return m, nil
}

func (m *Model) approveSelected() {
	row, ok := m.selected()
	if !ok {
		return
	}
	m.message, m.err = "", nil
	if _, err := m.items.Approve(context.Background(), row.item.ID); err != nil {
		m.err = err
		return
	}
	m.message = "Approved " + rowName(row)
	m.loadRows()
}

func rowName(r reviewRow) string {
	if r.contact == nil {
		return r.item.ContactID.String()
	}
	return r.contact.Name
}

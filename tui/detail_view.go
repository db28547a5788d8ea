package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harperreed/cadence/db"
)

var (
	fieldLabelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			Width(20)

	fieldValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))
)

func (m Model) renderDetailView() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("QUEUE ITEM"))
	s.WriteString("\n\n")

	row, ok := m.selected()
	if !ok {
		s.WriteString("No item selected")
	} else {
		s.WriteString(m.renderItemDetail(row))
	}

	s.WriteString("\n\n")
	s.WriteString(m.renderDetailHelp())

	return s.String()
}

func (m Model) renderItemDetail(row reviewRow) string {
	var s strings.Builder

	field := func(label, value string) {
		if value == "" {
			return
		}
		s.WriteString(fieldLabelStyle.Render(label+":") + " " + fieldValueStyle.Render(value) + "\n")
	}

	field("Action", row.item.ActionType)
	field("Queue status", row.item.Status)
	field("Message", row.item.Message)
	field("Result", row.item.Result)

	c := row.contact
	if c == nil {
		field("Contact", row.item.ContactID.String()+" (deleted)")
		return s.String()
	}

	s.WriteString("\n")
	field("Name", c.Name)
	field("Title", c.Title)
	field("Company", c.Company)
	field("Profile", c.ProfileURL)
	field("Status", c.Status)
	field("Priority", fmt.Sprintf("%.1f", c.PriorityScore))
	field("Relationship", fmt.Sprintf("%d", c.RelationshipScore))
	if c.LastInteractionAt != nil {
		field("Last interaction", c.LastInteractionAt.Format("2006-01-02"))
	}
	if c.GoingColdAt != nil {
		field("Going cold since", c.GoingColdAt.Format("2006-01-02"))
	}

	categories, err := db.ContactCategories(context.Background(), m.db, c.ID)
	if err == nil && len(categories) > 0 {
		names := make([]string, len(categories))
		for i, cat := range categories {
			names[i] = cat.Name
		}
		field("Categories", strings.Join(names, ", "))
	}

	return s.String()
}

func (m Model) renderDetailHelp() string {
	help := []string{
		"a: Approve",
		"d: Done",
		"s: Skip",
		"z: Snooze",
		"Esc: Back",
	}
	return helpStyle.Render(strings.Join(help, " • "))
}

func (m Model) handleDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "q":
		m.viewMode = ViewList
		return m, nil
	case "a", "d", "s", "z":
		m.viewMode = ViewList
		return m.handleListKeys(msg)
	}
	return m, nil
}

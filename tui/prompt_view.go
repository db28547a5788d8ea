package tui

import (
	"context"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

func (m *Model) openPrompt(kind promptKind, placeholder, value string) {
	row, ok := m.selected()
	if !ok {
		return
	}
	m.message, m.err = "", nil
	m.prompt = kind
	m.promptItem = row
	m.input.Placeholder = placeholder
	m.input.SetValue(value)
	m.input.Focus()
	m.viewMode = ViewPrompt
}

func (m Model) renderPromptView() string {
	var s strings.Builder

	title := map[promptKind]string{
		promptSkip:   "SKIP",
		promptSnooze: "SNOOZE",
		promptDone:   "MARK DONE",
	}[m.prompt]
	s.WriteString(titleStyle.Render(title + " " + rowName(m.promptItem)))
	s.WriteString("\n\n")

	s.WriteString(labelStyle.Render(m.input.Placeholder))
	s.WriteString("\n> ")
	s.WriteString(m.input.View())
	s.WriteString("\n\n")

	s.WriteString(m.renderStatusLine())
	s.WriteString(helpStyle.Render(strings.Join([]string{"Enter: Confirm", "Esc: Cancel"}, " • ")))

	return s.String()
}

func (m Model) handlePromptKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.input.Blur()
		m.viewMode = ViewList
		return m, nil
	case "enter":
		if err := m.submitPrompt(); err != nil {
			m.err = err
			return m, nil
		}
		m.input.Blur()
		m.viewMode = ViewList
		m.loadRows()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) submitPrompt() error {
	ctx := context.Background()
	id := m.promptItem.item.ID
	value := strings.TrimSpace(m.input.Value())
	name := rowName(m.promptItem)

	switch m.prompt {
	case promptSkip:
		if _, err := m.items.MarkSkipped(ctx, id, value); err != nil {
			return err
		}
		m.message = "Skipped " + name
	case promptSnooze:
		if _, err := m.items.Snooze(ctx, id, value); err != nil {
			return err
		}
		m.message = "Snoozed " + name + " until " + value
	case promptDone:
		res, err := m.items.MarkExecuted(ctx, id, value)
		if err != nil {
			return err
		}
		m.message = "Done: " + name
		if res.Transition != nil {
			m.message += " (now " + res.Transition.ToStatus + ")"
		}
	}
	m.err = nil
	return nil
}

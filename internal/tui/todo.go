package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/amirbrooks/deskkit/internal/store"
)

type focusArea int

const (
	focusInput focusArea = iota
	focusList
)

type TodoOptions struct {
	Filter store.Filter
	ASCII  bool
	Now    func() time.Time
}

// TodoModel renders a store.Store and forwards edits to it. Rows are tracked by
// task id so the cursor stays on the same task across re-renders.
type TodoModel struct {
	store    *store.Store
	filter   store.Filter
	input    textinput.Model
	focus    focusArea
	rows     []store.Task
	cursorID string
	ascii    bool
	now      func() time.Time
	quitting bool
}

func NewTodo(s *store.Store, opts TodoOptions) TodoModel {
	ti := textinput.New()
	ti.Placeholder = "What needs to be done?"
	ti.CharLimit = 256
	ti.Width = 48
	ti.Focus()

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	m := TodoModel{
		store:  s,
		filter: store.ParseFilter(string(opts.Filter)),
		input:  ti,
		focus:  focusInput,
		ascii:  opts.ASCII,
		now:    now,
	}
	m.render()
	return m
}

func (m TodoModel) Init() tea.Cmd { return textinput.Blink }

// Filter reports the active filter.
func (m TodoModel) Filter() store.Filter { return m.filter }

// Rows returns the tasks currently rendered, in order.
func (m TodoModel) Rows() []store.Task { return m.rows }

// CursorID is the id of the row under the cursor, or "" when the list is empty.
func (m TodoModel) CursorID() string { return m.cursorID }

func (m TodoModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch key.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "tab", "shift+tab":
		return m.switchFocus(), nil
	}

	if m.focus == focusInput {
		switch key.String() {
		case "enter":
			if _, ok := m.store.Add(m.input.Value()); ok {
				m.input.Reset()
				m.render()
			}
			return m, nil
		case "esc":
			return m.switchFocus(), nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch key.String() {
	case "q", "esc":
		m.quitting = true
		return m, tea.Quit
	case "up", "k":
		m.moveCursor(-1)
	case "down", "j":
		m.moveCursor(1)
	case " ", "space", "enter":
		if m.cursorID != "" {
			m.store.Toggle(m.cursorID)
			m.render()
		}
	case "d", "delete":
		if m.cursorID != "" {
			idx := m.cursorIndex()
			m.store.Delete(m.cursorID)
			m.cursorID = ""
			m.render()
			if len(m.rows) > 0 {
				m.cursorID = m.rows[min(idx, len(m.rows)-1)].ID
			}
		}
	case "1", "2", "3":
		m.setFilter(store.Filters[key.String()[0]-'1'])
	case "left", "h":
		m.setFilter(store.Filters[(m.filterIndex()+len(store.Filters)-1)%len(store.Filters)])
	case "right", "l":
		m.setFilter(store.Filters[(m.filterIndex()+1)%len(store.Filters)])
	case "a", "i":
		return m.switchFocus(), nil
	}
	return m, nil
}

func (m TodoModel) switchFocus() TodoModel {
	if m.focus == focusInput {
		m.focus = focusList
		m.input.Blur()
		return m
	}
	m.focus = focusInput
	m.input.Focus()
	return m
}

func (m *TodoModel) setFilter(f store.Filter) {
	if f == m.filter {
		return
	}
	m.filter = f
	m.render()
}

func (m TodoModel) filterIndex() int {
	for i, f := range store.Filters {
		if f == m.filter {
			return i
		}
	}
	return 0
}

// render refreshes rows from the store and keeps the cursor on its task when
// that task is still visible.
func (m *TodoModel) render() {
	m.rows = m.store.FilteredView(m.filter)
	if m.cursorIndex() >= 0 {
		return
	}
	m.cursorID = ""
	if len(m.rows) > 0 {
		m.cursorID = m.rows[0].ID
	}
}

func (m TodoModel) cursorIndex() int {
	for i, t := range m.rows {
		if t.ID == m.cursorID {
			return i
		}
	}
	return -1
}

func (m *TodoModel) moveCursor(delta int) {
	if len(m.rows) == 0 {
		return
	}
	idx := m.cursorIndex() + delta
	idx = max(0, min(idx, len(m.rows)-1))
	m.cursorID = m.rows[idx].ID
}

func (m TodoModel) View() string {
	if m.quitting {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Tasks"))
	sb.WriteString("\n\n")
	sb.WriteString(m.input.View())
	sb.WriteString("\n\n")
	sb.WriteString(m.filterBar())
	sb.WriteString("\n\n")

	if len(m.rows) == 0 {
		sb.WriteString(helpStyle.Render("  No tasks"))
		sb.WriteString("\n")
	}
	now := m.now()
	for _, t := range m.rows {
		pointer := "  "
		if m.focus == focusList && t.ID == m.cursorID {
			pointer = cursorStyle.Render("> ")
		}
		text := t.Text
		if t.Completed {
			text = doneStyle.Render(text)
		}
		line := fmt.Sprintf("%s%s %s", pointer, t.StatusMark(m.ascii), text)
		if age := t.Age(now); age != "" {
			line += helpStyle.Render("  " + age)
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	if m.focus == focusInput {
		sb.WriteString(helpStyle.Render("enter add  tab list  ctrl+c quit"))
	} else {
		sb.WriteString(helpStyle.Render("space toggle  d delete  1/2/3 filter  tab input  q quit"))
	}
	sb.WriteString("\n")
	return sb.String()
}

func (m TodoModel) filterBar() string {
	counts := m.store.Counts()
	labels := map[store.Filter]string{
		store.FilterAll:       fmt.Sprintf("All (%d)", counts.All),
		store.FilterActive:    fmt.Sprintf("Active (%d)", counts.Active),
		store.FilterCompleted: fmt.Sprintf("Completed (%d)", counts.Completed),
	}
	parts := make([]string, 0, len(store.Filters))
	for _, f := range store.Filters {
		style := filterStyle
		if f == m.filter {
			style = activeFilterStyle
		}
		parts = append(parts, style.Render(labels[f]))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

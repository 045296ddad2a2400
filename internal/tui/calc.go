package tui

import (
	"log/slog"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/amirbrooks/deskkit/internal/calc"
)

// CalcModel drives a calc.Engine from the keyboard. Typed keys go through
// calc.KeyAction; the arrow keys move a highlight over calc.Keypad and space
// presses the highlighted button through calc.ButtonAction.
type CalcModel struct {
	engine   *calc.Engine
	row, col int
	quitting bool
}

func NewCalc() CalcModel {
	return CalcModel{engine: calc.New(nil)}
}

func (m CalcModel) Init() tea.Cmd { return nil }

func (m CalcModel) Display() string { return m.engine.Display() }

func (m CalcModel) Highlighted() calc.Button { return calc.Keypad[m.row][m.col] }

func (m CalcModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "ctrl+c", "q":
		m.quitting = true
		return m, tea.Quit
	case "up":
		m.moveTo(m.row-1, m.col)
		return m, nil
	case "down":
		m.moveTo(m.row+1, m.col)
		return m, nil
	case "left":
		m.moveTo(m.row, m.col-1)
		return m, nil
	case "right":
		m.moveTo(m.row, m.col+1)
		return m, nil
	case " ", "space":
		b := m.Highlighted()
		if a, ok := calc.ButtonAction(b.Action, b.Value); ok {
			m.apply(a)
		}
		return m, nil
	}
	if a, ok := calc.KeyAction(key.String()); ok {
		m.apply(a)
	}
	return m, nil
}

func (m *CalcModel) apply(a calc.Action) {
	if err := m.engine.Apply(a); err != nil {
		slog.Debug("calculator reset", "action", a.Kind.String(), "error", err)
	}
}

func (m *CalcModel) moveTo(row, col int) {
	if row < 0 || row >= len(calc.Keypad) {
		return
	}
	if col < 0 {
		return
	}
	if col >= len(calc.Keypad[row]) {
		if row == m.row {
			return
		}
		col = len(calc.Keypad[row]) - 1
	}
	m.row, m.col = row, col
}

func (m CalcModel) View() string {
	if m.quitting {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Calculator"))
	sb.WriteString("\n")
	sb.WriteString(displayStyle.Render(m.engine.Display()))
	sb.WriteString("\n")
	for r, row := range calc.Keypad {
		cells := make([]string, 0, len(row))
		for c, b := range row {
			style := buttonStyle
			if r == m.row && c == m.col {
				style = activeButtonStyle
			}
			cells = append(cells, style.Render(b.Label))
		}
		sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cells...))
		sb.WriteString("\n")
	}
	sb.WriteString(helpStyle.Render("type digits and + - * /  enter/= evaluate  c/esc clear  arrows+space keypad  q quit"))
	sb.WriteString("\n")
	return sb.String()
}

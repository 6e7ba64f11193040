// Package ui is the terminal front end: a status line, the sparkline and a
// plane-mode checkbox, refreshed on a fixed tick.
package ui

import (
	"strings"
	"time"

	"github.com/NodePath81/pingbar/internal/present"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	circleGlyph = "●"
	crossGlyph  = "✖"
	planeLabel  = "✈ Plane Mode"
)

// Source is polled once per refresh tick.
type Source interface {
	View() present.View
	TogglePlaneMode() bool
}

type tickMsg time.Time

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	tooltipStyle = lipgloss.NewStyle().Faint(true)
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	boxStyle     = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
)

type Model struct {
	source   Source
	interval time.Duration
	view     present.View
	quitting bool
}

func NewModel(source Source, interval time.Duration) Model {
	if interval <= 0 {
		interval = time.Second
	}
	return Model{
		source:   source,
		interval: interval,
		view:     source.View(),
	}
}

func (m Model) Init() tea.Cmd {
	return m.tickCmd()
}

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.view = m.source.View()
		return m, m.tickCmd()
	case tea.KeyMsg:
		switch msg.String() {
		case "p", " ":
			m.source.TogglePlaneMode()
			m.view = m.source.View()
			return m, nil
		case "q", "esc", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	v := m.view
	glyph := circleGlyph
	if v.Icon == present.IconCross {
		glyph = crossGlyph
	}
	color := lipgloss.Color(v.Color.Hex())
	icon := lipgloss.NewStyle().Foreground(color).Render(glyph)
	spark := lipgloss.NewStyle().Foreground(color).Render(v.Sparkline)

	check := "[ ]"
	if v.PlaneMode {
		check = "[x]"
	}

	var b strings.Builder
	b.WriteString(icon + " " + titleStyle.Render(v.Text) + "\n")
	b.WriteString(spark + "\n")
	b.WriteString(tooltipStyle.Render(v.Tooltip) + "\n")
	b.WriteString(check + " " + planeLabel)
	return boxStyle.Render(b.String()) + "\n" + helpStyle.Render("p: toggle plane mode • q: quit") + "\n"
}

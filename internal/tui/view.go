package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/loglink/internal/model"
	"github.com/tinytelemetry/loglink/internal/viewer"
)

// histogramBlockHeight is the histogram plus its title and legend rows.
const histogramBlockHeight = histogramHeight + 2

// minHistogramScreen is the terminal height below which the histogram is
// dropped to leave room for the panes.
const minHistogramScreen = 24

func (m *ViewerPage) View(width, height int) string {
	if width <= 0 || height <= 0 {
		return "Loading..."
	}

	var footer []string
	if m.filtering {
		footer = append(footer, m.filterInput.View())
	}
	footer = append(footer,
		m.renderStatusLine(width),
		m.renderPromotionLine(width),
		helpStyle.Render(m.help.View(m.keys)),
	)

	sections := []string{m.renderTabs(width)}
	panesHeight := height - 1 - len(footer)
	focused := m.focused()
	showHistogram := focused != nil && height >= minHistogramScreen
	if showHistogram {
		panesHeight -= histogramBlockHeight
	}
	sections = append(sections, m.renderPanes(width, max(panesHeight, 3)))
	if showHistogram {
		sections = append(sections, m.renderHistogram(focused, width))
	}
	sections = append(sections, footer...)
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// pageRows is the number of log lines a pane shows at the current size.
func (m *ViewerPage) pageRows() int {
	footer := 3
	if m.filtering {
		footer++
	}
	h := m.height - 1 - footer
	if m.height >= minHistogramScreen {
		h -= histogramBlockHeight
	}
	// Border and pane header.
	return max(h-3, 1)
}

func (m *ViewerPage) renderTabs(width int) string {
	panes := m.ctl.Panes()
	if len(panes) == 0 {
		return helpStyle.Render("No panes open. Press o to open a stream.")
	}
	tabs := make([]string, 0, len(panes))
	for _, p := range panes {
		label := p.Title()
		if !p.Visible() {
			label = "(" + label + ")"
		}
		style := tabStyle
		if p.ID == m.focusID {
			style = activeTabStyle
		}
		tabs = append(tabs, style.Render(label))
	}
	return lipgloss.NewStyle().MaxWidth(width).Render(lipgloss.JoinHorizontal(lipgloss.Top, tabs...))
}

func (m *ViewerPage) renderPanes(width, height int) string {
	var visible []*viewer.Pane
	for _, p := range m.ctl.Panes() {
		if p.Visible() {
			visible = append(visible, p)
		}
	}
	if len(visible) == 0 {
		return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center,
			helpStyle.Render("No visible panes"))
	}

	cols := make([]string, 0, len(visible))
	w := width / len(visible)
	for i, p := range visible {
		pw := w
		if i == len(visible)-1 {
			pw = width - w*(len(visible)-1)
		}
		cols = append(cols, renderPane(p, pw, height, p.ID == m.focusID))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cols...)
}

func renderPane(p *viewer.Pane, width, height int, active bool) string {
	style := paneStyle
	if active {
		style = activePaneStyle
	}
	innerW := max(width-2, 1)
	innerH := max(height-2, 1)

	header := p.Title()
	if t, ok := p.DisplayedTime(); ok {
		header += fmt.Sprintf("  @ %.3fs", t)
	}
	lines := []string{paneTitleStyle.Render(truncate(header, innerW))}
	for _, l := range p.Window(innerH - 1) {
		lines = append(lines, lipgloss.NewStyle().Foreground(levelColor(l.Verbosity)).Render(truncate(l.Text, innerW)))
	}
	return style.Width(innerW).Height(innerH).Render(strings.Join(lines, "\n"))
}

func (m *ViewerPage) renderHistogram(p *viewer.Pane, width int) string {
	title := paneTitleStyle.Render(truncate("Levels: "+p.Title(), width))
	return lipgloss.JoinVertical(lipgloss.Left, title, renderLevelHistogram(p.LevelCounts(), width))
}

func (m *ViewerPage) renderStatusLine(width int) string {
	var parts []string
	for _, rs := range m.status.Recorders {
		parts = append(parts, fmt.Sprintf("%s: %s", rs.Location.DisplayName(), rs.Verbosity))
	}
	if f := m.ctl.Filter(); f != "" {
		parts = append(parts, "filter: "+f)
	}
	left := " " + strings.Join(parts, " │ ")

	var right string
	switch {
	case m.lastErr != nil:
		right = errorStyle.Background(ColorNavy).Render(truncate(firstLine(m.lastErr.Error()), max(width/2, 10))) + " "
	case m.notice != "":
		right = m.notice + " "
	}
	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		return statusStyle.Width(width).Render(truncate(left, width))
	}
	return statusStyle.Width(width).Render(left + strings.Repeat(" ", gap) + right)
}

// renderPromotionLine shows the category checkboxes with their digit keys.
func (m *ViewerPage) renderPromotionLine(width int) string {
	var parts []string
	for i, c := range model.Categories() {
		if m.ctl.Promoted(c) {
			parts = append(parts, promotedStyle.Render(fmt.Sprintf("[x] %d %s", i+1, c.DisplayName())))
		} else {
			parts = append(parts, helpStyle.Render(fmt.Sprintf("[ ] %d %s", i+1, c.DisplayName())))
		}
	}
	return lipgloss.NewStyle().MaxWidth(width).Render(strings.Join(parts, "  "))
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width <= 1 {
		return string(r[:max(width, 0)])
	}
	return string(r[:width-1]) + "…"
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

package tui

import (
	"strings"

	"cardprobe/internal/display"
)

func (m Model) View() string {
	contentWidth := m.panelContentWidth()

	headerPanel := renderPanel(
		"",
		[]string{
			"CardProbe Handheld",
			m.metaLine(),
			m.statusLine(),
		},
		contentWidth,
	)

	screenPanel := renderPanel("Display", m.screenLines(), contentWidth)

	sections := []string{headerPanel, screenPanel}
	if len(m.logs) > 0 {
		sections = append(sections, renderPanel("Events", m.logs, contentWidth))
	}
	sections = append(sections, renderPanel("", []string{"Keys: " + m.help.View(m.keys)}, contentWidth))

	return paintLayout(strings.Join(sections, "\n"))
}

// screenLines frames the published panel contents at their native width.
func (m Model) screenLines() []string {
	rows := m.canvas.Lines()
	edge := "+" + strings.Repeat("-", display.Cols) + "+"
	lines := make([]string, 0, len(rows)+2)
	lines = append(lines, edge)
	for _, row := range rows {
		lines = append(lines, "|"+padRight(row, display.Cols)+"|")
	}
	lines = append(lines, edge)
	return lines
}

func renderPanel(title string, lines []string, contentWidth int) string {
	if contentWidth < display.Cols+4 {
		contentWidth = display.Cols + 4
	}

	var b strings.Builder
	horizontal := strings.Repeat("─", contentWidth+2)
	top := "┌" + horizontal + "┐"
	mid := "├" + horizontal + "┤"
	bottom := "└" + horizontal + "┘"

	b.WriteString(top)
	if strings.TrimSpace(title) != "" {
		b.WriteString("\n")
		titleText := "[" + strings.ToUpper(strings.TrimSpace(title)) + "]"
		b.WriteString("│ ")
		b.WriteString(padRight(trimText(titleText, contentWidth), contentWidth))
		b.WriteString(" │\n")
		b.WriteString(mid)
	}

	if len(lines) == 0 {
		b.WriteString("\n")
		b.WriteString("│ ")
		b.WriteString(strings.Repeat(" ", contentWidth))
		b.WriteString(" │\n")
		b.WriteString(bottom)
		return b.String()
	}

	b.WriteString("\n")
	for i, line := range lines {
		clipped := trimText(line, contentWidth)
		b.WriteString("│ ")
		b.WriteString(padRight(clipped, contentWidth))
		b.WriteString(" │")
		if i < len(lines)-1 {
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")
	b.WriteString(bottom)
	return b.String()
}

func (m Model) panelContentWidth() int {
	if m.width <= 0 {
		return 60
	}
	width := m.width - 4
	if width < 36 {
		width = 36
	}
	if width > 100 {
		width = 100
	}
	return width
}

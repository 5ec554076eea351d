package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	borderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255")).
			Background(lipgloss.Color("0")).
			Bold(true)

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	panelTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255")).
			Background(lipgloss.Color("0")).
			Bold(true)

	statusOKStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255")).
			Bold(true)

	statusWarnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	statusErrStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("203")).
			Bold(true)

	screenStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("117"))

	selectedLineStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("0")).
				Background(lipgloss.Color("117")).
				Bold(true)

	keysStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	bodyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))
)

func paintLayout(layout string) string {
	if layout == "" {
		return layout
	}

	lines := strings.Split(layout, "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "┌"), strings.HasPrefix(line, "├"), strings.HasPrefix(line, "└"):
			lines[i] = borderStyle.Render(line)
		case strings.Contains(line, "CardProbe Handheld"):
			lines[i] = headerStyle.Render(line)
		case strings.Contains(line, "Radio ") && strings.Contains(line, " | View "):
			lines[i] = metaStyle.Render(line)
		case strings.Contains(line, "[OK]"):
			lines[i] = statusOKStyle.Render(line)
		case strings.Contains(line, "[WARN]"):
			lines[i] = statusWarnStyle.Render(line)
		case strings.Contains(line, "[ERR]"):
			lines[i] = statusErrStyle.Render(line)
		case strings.HasPrefix(line, "│ |> "):
			lines[i] = selectedLineStyle.Render(line)
		case strings.HasPrefix(line, "│ |"), strings.HasPrefix(line, "│ +"):
			lines[i] = screenStyle.Render(line)
		case isPanelTitleLine(line):
			lines[i] = panelTitleStyle.Render(line)
		case strings.Contains(line, "Keys:"):
			lines[i] = keysStyle.Render(line)
		case strings.HasPrefix(line, "│ "):
			lines[i] = bodyStyle.Render(line)
		}
	}

	return strings.Join(lines, "\n")
}

func isPanelTitleLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "│ ") || !strings.HasSuffix(trimmed, " │") {
		return false
	}
	content := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(trimmed, "│ "), " │"))
	if !strings.HasPrefix(content, "[") || !strings.HasSuffix(content, "]") {
		return false
	}
	return !strings.Contains(content, "[OK]") &&
		!strings.Contains(content, "[WARN]") &&
		!strings.Contains(content, "[ERR]") &&
		!strings.Contains(content, "[INFO ]")
}

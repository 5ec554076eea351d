package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

func (m Model) metaLine() string {
	view := "-"
	busy := "IDLE"
	if m.engine != nil {
		view = m.engine.View().String()
		if m.engine.Busy() {
			busy = "BUSY"
		}
	}
	radio := m.radio
	if radio == "" {
		radio = "n/a"
	}
	return fmt.Sprintf("Radio %s | View %s | Card %s", radio, view, busy)
}

func (m Model) statusLine() string {
	status := m.status
	if m.engine != nil {
		if name, err := m.engine.Halted(); err != nil {
			status = name + " failed: " + err.Error()
		}
	}
	return statusTag(status) + " " + status
}

func statusTag(status string) string {
	text := strings.ToLower(status)
	switch {
	case strings.Contains(text, "failed"),
		strings.Contains(text, "error"):
		return "[ERR]"
	case strings.Contains(text, "confirm"),
		strings.Contains(text, "halted"):
		return "[WARN]"
	case strings.Contains(text, "ready"):
		return "[OK]"
	default:
		return "[INFO ]"
	}
}

// runeLen is the printed width of s, ignoring style escapes.
func runeLen(s string) int {
	return lipgloss.Width(s)
}

func padRight(s string, width int) string {
	n := runeLen(s)
	if n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}

func trimText(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width <= 3 {
		return string(r[:width])
	}
	return string(r[:width-3]) + "..."
}

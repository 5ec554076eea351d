package device

import (
	"fmt"
	"strings"

	"cardprobe/internal/display"
	"cardprobe/internal/ops"
)

// Screen rows.
const (
	rowTitle = 0
	rowRule  = 1
	rowBody  = 2
	rowBar   = display.Rows - 2
	rowHint  = display.Rows - 1
)

func rowY(row int) int {
	return row * display.GlyphH
}

// render redraws the current view into the back buffer and flushes it.
func (e *Engine) render() {
	d := e.deps.Display
	if d == nil {
		return
	}
	d.Clear()

	switch e.view {
	case ViewHalted:
		e.renderHalted(d)
	case ViewMainMenu:
		renderMenu(d, "CARDPROBE", mainMenu, e.main)
	case ViewSdMenu:
		renderMenu(d, "SD CARD", sdMenu, e.sd)
	case ViewFileList:
		e.renderFiles(d)
	case ViewConfirm:
		drawTitle(d, "CONFIRM")
		drawBody(d, wrap(e.gate.prompt, display.Cols))
		drawHint(d, "SEL=Yes BACK=No")
	case ViewActionMessage:
		if e.msg.busy() {
			e.renderBusy(d)
		} else {
			drawTitle(d, e.msg.title)
			drawBody(d, e.msg.lines)
			drawHint(d, "Press any key")
		}
	}

	if err := d.Flush(); err != nil {
		e.log.WithError(err).Warn("display flush failed")
	}
	e.dirty = false
}

func (e *Engine) renderHalted(d display.Display) {
	drawTitle(d, "FATAL")
	lines := []string{e.halt + " not ready"}
	if e.haltErr != nil {
		lines = append(lines, wrap(e.haltErr.Error(), display.Cols)...)
	}
	drawBody(d, lines)
	drawHint(d, "Check and restart")
}

func renderMenu(d display.Display, title string, items []menuItem, c cursor) {
	drawTitle(d, title)
	from, to := c.window(len(items))
	for i := from; i < to; i++ {
		drawItem(d, rowBody+i-from, items[i].Label, i == c.index)
	}
	if c.index < len(items) {
		drawHint(d, items[c.index].Desc)
	}
}

func (e *Engine) renderFiles(d display.Display) {
	drawTitle(d, e.fileAction.title())
	n := len(e.files.entries)
	if n == 0 {
		d.DrawText(0, rowY(rowBody), "No files")
		drawHint(d, "BACK=Return")
		return
	}
	from, to := e.files.window(n)
	for i := from; i < to; i++ {
		drawItem(d, rowBody+i-from, e.files.entries[i].Name, i == e.files.index)
	}
	if e.files.overflow > 0 {
		drawHint(d, fmt.Sprintf("%d/%d +%d more", e.files.index+1, n, e.files.overflow))
		return
	}
	drawHint(d, fmt.Sprintf("%d/%d", e.files.index+1, n))
}

func (e *Engine) renderBusy(d display.Display) {
	drawTitle(d, e.msg.title)
	p := e.msg.progress
	switch {
	case p.Phase == ops.PhaseDetect:
		drawBody(d, []string{"Present card..."})
	case p.Total > 0:
		drawBody(d, []string{fmt.Sprintf("Block %d/%d", p.Done, p.Total)})
		drawBar(d, p.Done, p.Total)
	default:
		drawBody(d, []string{"Working..."})
	}
	drawHint(d, "Please wait")
}

func drawTitle(d display.Display, title string) {
	d.DrawText(0, rowY(rowTitle), fit(title, display.Cols))
	d.DrawLine(0, rowY(rowRule), display.Width-1, rowY(rowRule))
}

// drawBody writes lines from the first body row, dropping what does not fit
// above the hint.
func drawBody(d display.Display, lines []string) {
	for i, line := range lines {
		row := rowBody + i
		if row >= rowHint {
			return
		}
		d.DrawText(0, rowY(row), fit(line, display.Cols))
	}
}

func drawItem(d display.Display, row int, label string, selected bool) {
	marker := "  "
	if selected {
		marker = "> "
	}
	d.DrawText(0, rowY(row), marker+fit(label, display.Cols-len(marker)))
}

func drawHint(d display.Display, hint string) {
	d.DrawText(0, rowY(rowHint), fit(hint, display.Cols))
}

func drawBar(d display.Display, done, total int) {
	d.DrawRect(0, rowY(rowBar), display.Width, display.GlyphH, false)
	inner := display.Cols - 2
	cells := min(inner, done*inner/max(total, 1))
	if cells > 0 {
		d.DrawRect(display.GlyphW, rowY(rowBar), cells*display.GlyphW, display.GlyphH, true)
	}
}

// fit clips s to width runes.
func fit(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width <= 1 {
		return string(r[:max(width, 0)])
	}
	return string(r[:width-1]) + "~"
}

// wrap breaks s on spaces into lines of at most width runes. Words longer
// than a line are split.
func wrap(s string, width int) []string {
	var lines []string
	var cur []rune
	for _, word := range strings.Fields(s) {
		w := []rune(word)
		if len(cur) > 0 && len(cur)+1+len(w) > width {
			lines = append(lines, string(cur))
			cur = cur[:0]
		}
		if len(cur) > 0 {
			cur = append(cur, ' ')
		}
		for len(w) > width-len(cur) {
			n := width - len(cur)
			cur = append(cur, w[:n]...)
			lines = append(lines, string(cur))
			cur = cur[:0]
			w = w[n:]
		}
		cur = append(cur, w...)
	}
	if len(cur) > 0 {
		lines = append(lines, string(cur))
	}
	return lines
}

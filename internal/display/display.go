// Package display models the device's 128x64 monochrome panel as a grid of
// text cells.
package display

import (
	"strings"
	"sync"
)

// Panel geometry in pixels and the fixed glyph cell.
const (
	Width  = 128
	Height = 64
	GlyphW = 6
	GlyphH = 8

	Cols = Width / GlyphW
	Rows = Height / GlyphH
)

// Display is the drawing surface the device renders to.
type Display interface {
	Clear()
	DrawText(x, y int, text string)
	DrawRect(x, y, w, h int, fill bool)
	DrawLine(x0, y0, x1, y1 int)
	Flush() error
}

const (
	cellEmpty = ' '
	cellFill  = '█'
	cellHLine = '─'
	cellVLine = '│'
)

// Canvas is a Display backed by a cell buffer. Drawing goes to a back
// buffer; Flush publishes it.
type Canvas struct {
	mu      sync.RWMutex
	back    [Rows][Cols]rune
	front   [Rows][Cols]rune
	flushes int
}

func NewCanvas() *Canvas {
	c := &Canvas{}
	c.Clear()
	c.front = c.back
	return c
}

func (c *Canvas) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for r := range c.back {
		for col := range c.back[r] {
			c.back[r][col] = cellEmpty
		}
	}
}

func cell(x, y int) (int, int) {
	return y / GlyphH, x / GlyphW
}

func inBounds(row, col int) bool {
	return row >= 0 && row < Rows && col >= 0 && col < Cols
}

// DrawText writes text starting at the cell containing (x, y). Text past
// the right edge is clipped.
func (c *Canvas) DrawText(x, y int, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	row, col := cell(x, y)
	for _, ch := range text {
		if inBounds(row, col) {
			c.back[row][col] = ch
		}
		col++
	}
}

// DrawRect fills the covered cells, or outlines them when fill is false.
// A single-row outline renders as brackets.
func (c *Canvas) DrawRect(x, y, w, h int, fill bool) {
	if w <= 0 || h <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	r0, c0 := cell(x, y)
	r1, c1 := cell(x+w-1, y+h-1)
	r1 = min(r1, Rows-1)
	c1 = min(c1, Cols-1)
	for row := r0; row <= r1; row++ {
		for col := c0; col <= c1; col++ {
			if !inBounds(row, col) {
				continue
			}
			switch {
			case fill:
				c.back[row][col] = cellFill
			case r0 == r1 && col == c0:
				c.back[row][col] = '['
			case r0 == r1 && col == c1:
				c.back[row][col] = ']'
			case r0 == r1:
			case row == r0 && col == c0:
				c.back[row][col] = '┌'
			case row == r0 && col == c1:
				c.back[row][col] = '┐'
			case row == r1 && col == c0:
				c.back[row][col] = '└'
			case row == r1 && col == c1:
				c.back[row][col] = '┘'
			case row == r0 || row == r1:
				c.back[row][col] = cellHLine
			case col == c0 || col == c1:
				c.back[row][col] = cellVLine
			}
		}
	}
}

// DrawLine draws horizontal and vertical lines. Diagonals are approximated
// by their bounding cells.
func (c *Canvas) DrawLine(x0, y0, x1, y1 int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r0, c0 := cell(x0, y0)
	r1, c1 := cell(x1, y1)
	if r0 > r1 {
		r0, r1 = r1, r0
	}
	if c0 > c1 {
		c0, c1 = c1, c0
	}
	ch := cellHLine
	if c0 == c1 && r0 != r1 {
		ch = cellVLine
	}
	for row := r0; row <= r1; row++ {
		for col := c0; col <= c1; col++ {
			if inBounds(row, col) {
				c.back[row][col] = ch
			}
		}
	}
}

func (c *Canvas) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.front = c.back
	c.flushes++
	return nil
}

// Flushes counts how many frames were published.
func (c *Canvas) Flushes() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.flushes
}

// Lines returns the published frame, one string per text row, with
// trailing blanks trimmed.
func (c *Canvas) Lines() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, Rows)
	for r := range c.front {
		out[r] = strings.TrimRight(string(c.front[r][:]), " ")
	}
	return out
}

func (c *Canvas) String() string {
	return strings.Join(c.Lines(), "\n")
}

// Ready always succeeds for an in-memory panel.
func (c *Canvas) Ready() error {
	return nil
}

package viz

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Braille Patterns: 2x4 dots
// 1 4
// 2 5
// 3 6
// 7 8
//
// Unicode offset 0x2800
var pixelMap = [4][2]int{
	{0x1, 0x8},
	{0x2, 0x10},
	{0x4, 0x20},
	{0x40, 0x80},
}

const blank = 0x2800

// Tone selects the colour a cell is rendered with. Higher tones win when
// several marks land in one cell.
type Tone uint8

const (
	ToneNode Tone = iota
	ToneResidual
	ToneFailed
	ToneActive
	ToneParticle
	toneCount
)

type Canvas struct {
	Width, Height int
	Grid          [][]rune
	tones         [][]Tone
}

func NewCanvas(w, h int) *Canvas {
	c := &Canvas{
		Width:  w,
		Height: h,
		Grid:   make([][]rune, h),
		tones:  make([][]Tone, h),
	}
	for i := range c.Grid {
		c.Grid[i] = make([]rune, w)
		c.tones[i] = make([]Tone, w)
	}
	c.Clear()
	return c
}

// PixelSize is the canvas size in sub-pixels.
func (c *Canvas) PixelSize() (int, int) { return c.Width * 2, c.Height * 4 }

// Set sets a pixel at (x, y) in sub-pixel coordinates.
func (c *Canvas) Set(x, y int) { c.Mark(x, y, ToneNode) }

// Mark sets a pixel and raises its cell to at least tone.
func (c *Canvas) Mark(x, y int, tone Tone) {
	if x < 0 || y < 0 {
		return
	}
	col, row := x/2, y/4
	if col >= c.Width || row >= c.Height {
		return
	}
	c.Grid[row][col] |= rune(pixelMap[y%4][x%2])
	c.tones[row][col] = max(c.tones[row][col], tone)
}

func (c *Canvas) Clear() {
	for i := range c.Grid {
		for j := range c.Grid[i] {
			c.Grid[i][j] = blank
			c.tones[i][j] = ToneNode
		}
	}
}

// DrawLine draws a line using Bresenham's algorithm.
func (c *Canvas) DrawLine(x0, y0, x1, y1 int, tone Tone) {
	dx := absInt(x1 - x0)
	dy := absInt(y1 - y0)
	sx := -1
	if x0 < x1 {
		sx = 1
	}
	sy := -1
	if y0 < y1 {
		sy = 1
	}
	err := dx - dy

	for {
		c.Mark(x0, y0, tone)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x0 += sx
		}
		if e2 < dx {
			err += dx
			y0 += sy
		}
	}
}

// DrawBox outlines a square of half-width r around (x, y).
func (c *Canvas) DrawBox(x, y, r int, tone Tone) {
	c.DrawLine(x-r, y-r, x+r, y-r, tone)
	c.DrawLine(x+r, y-r, x+r, y+r, tone)
	c.DrawLine(x+r, y+r, x-r, y+r, tone)
	c.DrawLine(x-r, y+r, x-r, y-r, tone)
}

func (c *Canvas) FillBox(x, y, r int, tone Tone) {
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			c.Mark(x+dx, y+dy, tone)
		}
	}
}

func (c *Canvas) String() string {
	var b strings.Builder
	for _, row := range c.Grid {
		b.WriteString(string(row) + "\n")
	}
	return b.String()
}

// Render colours each cell by its tone. Runs of equal tone share one style
// call.
func (c *Canvas) Render(styles [toneCount]lipgloss.Style) string {
	var b strings.Builder
	for i, row := range c.Grid {
		start := 0
		for j := 1; j <= len(row); j++ {
			if j < len(row) && c.tones[i][j] == c.tones[i][start] {
				continue
			}
			b.WriteString(styles[c.tones[i][start]].Render(string(row[start:j])))
			start = j
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

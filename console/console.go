// Package console renders kernel log lines on the framebuffer as a scrolling
// text console.
package console

import (
	"bytes"
	"image/color"
	"sync"
	"unicode/utf8"

	"kestrel/hal"

	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"
)

const (
	fontHeight = 10
	fontOffset = 6
)

var (
	colorBG    = color.RGBA{A: 255}
	colorText  = color.RGBA{R: 0xC0, G: 0xC0, B: 0xC0, A: 255}
	colorAlert = color.RGBA{R: 0xFF, G: 0x40, B: 0x40, A: 255}
)

// Console is a scrolling text console. It is safe for concurrent use.
type Console struct {
	mu   sync.Mutex
	fb   hal.Framebuffer
	d    *fbDisplay
	font tinyfont.Fonter

	cellW int16
	cols  int16
	rows  int16
	row   int16

	dirty bool
	lines uint64
}

// New returns a console on disp, or hal.ErrNotImplemented when there is no
// usable framebuffer.
func New(disp hal.Display) (*Console, error) {
	if disp == nil {
		return nil, hal.ErrNotImplemented
	}
	fb := disp.Framebuffer()
	if fb == nil || fb.Format() != hal.PixelFormatRGB565 {
		return nil, hal.ErrNotImplemented
	}

	font := &proggy.TinySZ8pt7b
	_, outboxWidth := tinyfont.LineWidth(font, "0")
	c := &Console{
		fb:    fb,
		d:     newFBDisplay(fb),
		font:  font,
		cellW: int16(outboxWidth),
	}
	if c.cellW <= 0 {
		return nil, hal.ErrNotImplemented
	}
	w, h := c.d.Size()
	c.cols = max(w/c.cellW, 1)
	c.rows = max(h/fontHeight, 1)
	c.reset()
	return c, nil
}

func (c *Console) reset() {
	c.fb.ClearRGB(0, 0, 0)
	c.row = 0
	c.dirty = true
}

// WriteLineBytes prints b on a new line, wrapping at the screen width. Lines
// reporting faults, panics or errors are highlighted.
func (c *Console) WriteLineBytes(b []byte) {
	fg := colorText
	if isAlert(b) {
		fg = colorAlert
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	s := string(b)
	for {
		chunk, rest := takeRunes(s, c.cols)
		c.drawRow(chunk, fg)
		if rest == "" {
			break
		}
		s = rest
	}
	c.lines++
	c.dirty = true
}

func (c *Console) WriteLineString(s string) {
	c.WriteLineBytes([]byte(s))
}

// drawRow draws s on the next free row, scrolling the screen when full.
func (c *Console) drawRow(s string, fg color.RGBA) {
	if c.row == c.rows {
		_ = c.d.ScrollUp(fontHeight, colorBG)
		c.row = c.rows - 1
	}
	y := c.row * fontHeight
	w, _ := c.d.Size()
	_ = c.d.FillRectangle(0, y, w, fontHeight, colorBG)

	x := int16(0)
	for _, r := range s {
		tinyfont.DrawChar(c.d, c.font, x, y+fontOffset, r, fg)
		x += c.cellW
	}
	c.row++
}

// Clear blanks the screen.
func (c *Console) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
	c.lines = 0
}

// Flush presents the framebuffer if anything was drawn since the last flush.
func (c *Console) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty {
		return nil
	}
	c.dirty = false
	return c.d.Display()
}

// Lines returns the number of lines written since the last Clear.
func (c *Console) Lines() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lines
}

func isAlert(b []byte) bool {
	for _, w := range [][]byte{[]byte("faulted"), []byte("panic"), []byte("error")} {
		if bytes.Contains(b, w) {
			return true
		}
	}
	return false
}

// takeRunes splits s after n runes.
func takeRunes(s string, n int16) (prefix, rest string) {
	if n <= 0 || s == "" {
		return "", s
	}
	if int64(len(s)) <= int64(n) {
		return s, ""
	}
	var i int
	var count int16
	for i < len(s) && count < n {
		_, size := utf8.DecodeRuneInString(s[i:])
		if size <= 0 {
			break
		}
		i += size
		count++
	}
	if i >= len(s) {
		return s, ""
	}
	return s[:i], s[i:]
}

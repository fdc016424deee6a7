package console

import (
	"image/color"

	"kestrel/hal"

	"tinygo.org/x/drivers"
)

// fbDisplay adapts an RGB565 framebuffer to the drivers.Displayer interface
// the terminal draws through.
type fbDisplay struct {
	fb     hal.Framebuffer
	buf    []byte
	w, h   int
	stride int
}

var _ drivers.Displayer = (*fbDisplay)(nil)

func newFBDisplay(fb hal.Framebuffer) *fbDisplay {
	return &fbDisplay{
		fb:     fb,
		buf:    fb.Buffer(),
		w:      fb.Width(),
		h:      fb.Height(),
		stride: fb.StrideBytes(),
	}
}

func (d *fbDisplay) Size() (x, y int16) {
	return int16(d.w), int16(d.h)
}

func (d *fbDisplay) SetPixel(x, y int16, c color.RGBA) {
	ix, iy := int(x), int(y)
	if ix < 0 || ix >= d.w || iy < 0 || iy >= d.h {
		return
	}
	off := iy*d.stride + ix*2
	if off+1 >= len(d.buf) {
		return
	}
	pixel := rgb565From888(c.R, c.G, c.B)
	d.buf[off] = byte(pixel)
	d.buf[off+1] = byte(pixel >> 8)
}

func (d *fbDisplay) Display() error {
	return d.fb.Present()
}

// ScrollUp moves the picture up by lines pixel rows and clears the rows
// exposed at the bottom.
func (d *fbDisplay) ScrollUp(lines int16, bg color.RGBA) error {
	n := int(lines)
	if n <= 0 {
		return nil
	}
	if n >= d.h {
		return d.FillRectangle(0, 0, int16(d.w), int16(d.h), bg)
	}

	dstLen := (d.h - n) * d.stride
	srcStart := n * d.stride
	if srcStart+dstLen > len(d.buf) {
		return d.FillRectangle(0, 0, int16(d.w), int16(d.h), bg)
	}
	copy(d.buf[:dstLen], d.buf[srcStart:srcStart+dstLen])

	return d.FillRectangle(0, int16(d.h-n), int16(d.w), int16(n), bg)
}

func (d *fbDisplay) FillRectangle(x, y, width, height int16, c color.RGBA) error {
	x0 := clampInt(int(x), 0, d.w)
	y0 := clampInt(int(y), 0, d.h)
	x1 := clampInt(int(x)+int(width), 0, d.w)
	y1 := clampInt(int(y)+int(height), 0, d.h)
	if x0 >= x1 || y0 >= y1 {
		return nil
	}

	pixel := rgb565From888(c.R, c.G, c.B)
	lo := byte(pixel)
	hi := byte(pixel >> 8)

	for py := y0; py < y1; py++ {
		row := py * d.stride
		for px := x0; px < x1; px++ {
			off := row + px*2
			if off+1 >= len(d.buf) {
				continue
			}
			d.buf[off] = lo
			d.buf[off+1] = hi
		}
	}
	return nil
}

// SetScroll is a no-op: the console always scrolls in software.
func (d *fbDisplay) SetScroll(line int16) {}

func (d *fbDisplay) SetRotation(rotation drivers.Rotation) error {
	if rotation != drivers.Rotation0 {
		return hal.ErrNotImplemented
	}
	return nil
}

func rgb565From888(r, g, b uint8) uint16 {
	return uint16((uint16(r>>3)&0x1F)<<11 | (uint16(g>>2)&0x3F)<<5 | (uint16(b>>3) & 0x1F))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

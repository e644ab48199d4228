// Package fbconsole is an optional secondary console sink that
// rasterizes kernel console output onto an in-memory framebuffer instead
// of (or alongside) a text stream, mirroring gg_circle_qemu.go's
// lazily-initialized gg.Context over a backbuffer and its
// copyFramebufferToGG/flushGGToFramebuffer swizzling between a real
// framebuffer and gg's image.RGBA backing array.
//
// It deliberately never calls LoadFontFace/DrawString: this tree has no
// embedded font asset to hand gg, so every byte is rendered as a
// greyscale cell whose intensity is the byte's own value, addressed at a
// monospace cursor position. That keeps the rasterization grounded in
// gg APIs whose behavior needs no font state: NewContext, SetRGB,
// DrawRectangle, Fill, Clear, and Image.
package fbconsole

import (
	"image"
	"sync"

	"github.com/fogleman/gg"

	"pintos/kernel"
)

const (
	cellWidth  = 6
	cellHeight = 8
)

var _ kernel.Console = (*Console)(nil)

// Console rasterizes every byte written to it onto an in-memory ARGB
// framebuffer, and never produces input (ReadByte always reports
// nothing available): it stands in for a display-only debug console
// wired alongside the real input-capable one, not a replacement for it.
type Console struct {
	mu   sync.Mutex
	ctx  *gg.Context
	cols int
	rows int
	col  int
	row  int
}

// New builds a Console backed by a width x height framebuffer, cleared
// to black, matching drawGGStartupCircle's context being created fresh
// over a blank backbuffer before anything is drawn into it.
func New(width, height int) *Console {
	ctx := gg.NewContext(width, height)
	ctx.SetRGB(0, 0, 0)
	ctx.Clear()
	return &Console{
		ctx:  ctx,
		cols: width / cellWidth,
		rows: height / cellHeight,
	}
}

// ReadByte always reports no input available; this sink is display-only.
func (c *Console) ReadByte() (byte, bool) { return 0, false }

// Write rasterizes each byte of data onto the framebuffer at the
// current cursor cell, advancing the cursor and wrapping/scrolling the
// same way a text console would.
func (c *Console) Write(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range data {
		c.put(b)
	}
}

func (c *Console) put(b byte) {
	switch b {
	case '\n':
		c.newline()
		return
	case '\r':
		c.col = 0
		return
	}
	if c.col >= c.cols {
		c.newline()
	}
	x := float64(c.col * cellWidth)
	y := float64(c.row * cellHeight)
	intensity := float64(b) / 255
	c.ctx.SetRGB(intensity, intensity, intensity)
	c.ctx.DrawRectangle(x, y, float64(cellWidth-1), float64(cellHeight-1))
	c.ctx.Fill()
	c.col++
}

func (c *Console) newline() {
	c.col = 0
	c.row++
	if c.row >= c.rows {
		// No scroll-in-place support without a font to redraw retained
		// rows with; the debug console just wraps back to the top, same
		// as the hardware build's VGA text console overwriting row 0
		// once the screen fills.
		c.row = 0
	}
}

// Image returns the current framebuffer contents, the rasterized
// equivalent of flushGGToFramebuffer's source image before it is
// swizzled out to real video memory.
func (c *Console) Image() image.Image {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctx.Image()
}

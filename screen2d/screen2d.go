// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package screen2d implements a 2D colour panel that outputs to terminal
// (stdout) using ANSI color codes.
//
// It accepts the same RGB565 window flushes as the real SSD1351 driver, so
// the shared arbitration layer can be exercised on a development machine
// while you are waiting for your OLED breakout to come by mail.
package screen2d

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"

	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
	"periph.io/x/conn/v3/display"
	"periph.io/x/devices/v3/ssd1351/rgb565"
	"periph.io/x/devices/v3/ssd1351/shared"
)

// Opts represents the options available for this display.
type Opts struct {
	W       int
	H       int
	Palette *ansi256.Palette

	_ struct{}
}

// Dev is a colour panel emulator that outputs to the console.
type Dev struct {
	w       io.Writer
	palette ansi256.Palette

	pixels *rgb565.Image
	drawn  bool
	buf    bytes.Buffer
}

// New returns a Dev that displays at the console.
//
// Permits local testing of the drawing and arbitration layers without
// hardware.
func New(opts *Opts) *Dev {
	p := opts.Palette
	if p == nil {
		p = ansi256.Default
	}
	return &Dev{
		w:       colorable.NewColorableStdout(),
		palette: *p,
		pixels:  rgb565.New(image.Rect(0, 0, opts.W, opts.H)),
	}
}

func (d *Dev) String() string {
	return fmt.Sprintf("Screen2D{%s}", d.pixels.Rect.Max)
}

// Halt implements conn.Resource.
//
// It resets the terminal attributes so the console is not corrupted.
func (d *Dev) Halt() error {
	_, err := d.w.Write([]byte("\n\033[0m"))
	return err
}

// ColorModel implements display.Drawer.
func (d *Dev) ColorModel() color.Model {
	return rgb565.PixelModel
}

// Bounds implements display.Drawer.
func (d *Dev) Bounds() image.Rectangle {
	return d.pixels.Rect
}

// Draw implements display.Drawer.
func (d *Dev) Draw(r image.Rectangle, src image.Image, sp image.Point) error {
	clipped := r.Intersect(d.Bounds())
	if clipped.Empty() {
		return nil
	}
	sp = sp.Add(clipped.Min.Sub(r.Min))
	r = clipped
	draw.Src.Draw(d.pixels, r, src, sp)
	return d.refresh()
}

// FlushWindow accepts a window of pre-encoded RGB565 pixels, exactly like
// ssd1351.Dev, and repaints the console.
func (d *Dev) FlushWindow(r image.Rectangle, pix []byte) error {
	if !r.In(d.Bounds()) {
		return fmt.Errorf("screen2d: window %v outside bounds %v", r, d.Bounds())
	}
	if n := 2 * r.Dx() * r.Dy(); n != len(pix) {
		return fmt.Errorf("screen2d: invalid pixel stream length; expected %d bytes, got %d bytes", n, len(pix))
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		o := d.pixels.PixOffset(r.Min.X, y)
		copy(d.pixels.Pix[o:o+2*r.Dx()], pix[2*(y-r.Min.Y)*r.Dx():])
	}
	return d.refresh()
}

func (d *Dev) refresh() error {
	// This code is designed to minimize the amount of memory allocated per
	// call. Cursor moves back up over the previous frame instead of
	// clearing the screen, so unrelated terminal output stays put.
	d.buf.Reset()
	if d.drawn {
		fmt.Fprintf(&d.buf, "\033[%dA", d.pixels.Rect.Dy())
	}
	d.drawn = true
	for y := 0; y < d.pixels.Rect.Dy(); y++ {
		_, _ = d.buf.WriteString("\r")
		for x := 0; x < d.pixels.Rect.Dx(); x++ {
			r16, g16, b16, _ := d.pixels.PixelAt(x, y).RGBA()
			c := color.NRGBA{byte(r16 >> 8), byte(g16 >> 8), byte(b16 >> 8), 255}
			_, _ = io.WriteString(&d.buf, d.palette.Block(c))
		}
		_, _ = d.buf.WriteString("\033[0m\n")
	}
	_, err := d.buf.WriteTo(d.w)
	return err
}

var _ display.Drawer = &Dev{}
var _ shared.Panel = &Dev{}
var _ fmt.Stringer = &Dev{}

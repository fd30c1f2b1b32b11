// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ssd1351

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/devices/v3/ssd1351/rgb565"
)

// maxTxSize bounds a single data transfer. Pixel streams larger than this
// are split so peak memory per transfer stays flat regardless of the
// window size, and so SPI drivers with small DMA buffers are not upset.
const maxTxSize = 4096

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{
	W:        128,
	H:        128,
	Rotation: Rotate0,
}

// Opts defines the options for the device.
type Opts struct {
	// W and H are the physical (unrotated) panel size in pixels.
	W int
	H int
	// Rotation is the fixed panel orientation. With Rotate90/Rotate270 the
	// logical width and height reported by Bounds() are swapped.
	Rotation Rotation
	// RST is the optional reset pin. When set, the panel is hardware reset
	// before initialization.
	RST gpio.PinIO
}

// controller is the transport surface used internally: one command opcode
// with its argument bytes, or a raw pixel data stream. Nothing above the
// Dev bypasses it.
type controller interface {
	sendCommand(cmd byte, args ...byte) error
	sendData(data []byte) error
}

// NewSPI returns a Dev object that communicates over 4-wire SPI to a
// SSD1351 display controller.
//
// # Wiring
//
// Connect SDA to SPI_MOSI, SCL to SPI_CLK, CS to SPI_CS and DC to a GPIO
// pin. The SSD1351 serial interface is write-only.
func NewSPI(p spi.Port, dc gpio.PinOut, opts *Opts) (*Dev, error) {
	if opts == nil {
		o := DefaultOpts
		opts = &o
	}
	if dc == nil || dc == gpio.INVALID {
		return nil, fmt.Errorf("ssd1351: DC pin is required for 4-wire SPI")
	}
	if err := dc.Out(gpio.Low); err != nil {
		return nil, err
	}
	// The SSD1351 serial clock cycle is 50ns minimum.
	c, err := p.Connect(20*physic.MegaHertz, spi.Mode0, 8)
	if err != nil {
		return nil, err
	}
	return newDev(c, dc, opts)
}

// Dev is an open handle to the display controller.
//
// Dev keeps no framebuffer; every Draw or FlushWindow call is transmitted
// to the panel before it returns. Use shared.New to time-multiplex the
// panel between concurrent writers with per-region dirty tracking.
type Dev struct {
	// Communication.
	c  conn.Conn
	dc gpio.PinOut

	// Immutable geometry.
	phys     image.Point     // unrotated panel size
	rect     image.Rectangle // logical bounds after rotation
	rotation Rotation

	halted bool
}

func newDev(c conn.Conn, dc gpio.PinOut, opts *Opts) (*Dev, error) {
	if opts.W < 1 || opts.W > 128 {
		return nil, fmt.Errorf("ssd1351: invalid width %d", opts.W)
	}
	if opts.H < 1 || opts.H > 128 {
		return nil, fmt.Errorf("ssd1351: invalid height %d", opts.H)
	}
	w, h := opts.W, opts.H
	if opts.Rotation.swapsAxes() {
		w, h = h, w
	}
	d := &Dev{
		c:        c,
		dc:       dc,
		phys:     image.Pt(opts.W, opts.H),
		rect:     image.Rect(0, 0, w, h),
		rotation: opts.Rotation,
	}
	if opts.RST != nil {
		if err := d.reset(opts.RST); err != nil {
			return nil, err
		}
	}
	if err := initDisplay(d, opts); err != nil {
		return nil, err
	}
	if err := d.Clear(); err != nil {
		return nil, err
	}
	if err := d.sendCommand(displayOn); err != nil {
		return nil, err
	}
	return d, nil
}

// reset pulses the RST pin. The controller wants it held low for at least
// 2µs; 10ms is what every breakout vendor uses.
func (d *Dev) reset(rst gpio.PinIO) error {
	if err := rst.Out(gpio.High); err != nil {
		return err
	}
	time.Sleep(time.Millisecond)
	if err := rst.Out(gpio.Low); err != nil {
		return err
	}
	time.Sleep(10 * time.Millisecond)
	return rst.Out(gpio.High)
}

// initDisplay sends the power-up sequence. Values follow the datasheet
// recommended flow for 128x128 panels.
func initDisplay(ctrl controller, opts *Opts) error {
	seq := []struct {
		cmd  byte
		args []byte
	}{
		{setCommandLock, []byte{0x12}},     // Unlock commands
		{setCommandLock, []byte{0xB1}},     // Unlock locked commands (A2, B1, B3, BB, BE, C1)
		{displayOff, nil},
		{frontClockDivider, []byte{0xF1}},
		{setMuxRatio, []byte{byte(opts.H - 1)}},
		{setDisplayOffset, []byte{0x00}},
		{setDisplayStartLine, []byte{0x00}},
		{setGPIO, []byte{0x00}},            // GPIO pins input disabled
		{functionSelection, []byte{0x01}},  // Internal VDD regulator
		{setVSL, []byte{0xA0, 0xB5, 0x55}}, // External VSL
		{setContrastABC, []byte{0x8F, 0x8F, 0x8F}},
		{masterContrast, []byte{0x0F}},
		{setPhaseLength, []byte{0x32}},
		{setSecondPrecharge, []byte{0x01}},
		{setVCOMH, []byte{0x05}},
		{normalDisplay, nil},
		{setRemapColorDepth, []byte{opts.Rotation.remap()}},
	}
	for _, s := range seq {
		if err := ctrl.sendCommand(s.cmd, s.args...); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dev) String() string {
	return fmt.Sprintf("ssd1351.Dev{%s, %s, %s}", d.c, d.dc, d.rect.Max)
}

// ColorModel implements display.Drawer.
//
// It is the 16-bit RGB565 model, as implemented by rgb565.Pixel.
func (d *Dev) ColorModel() color.Model {
	return rgb565.PixelModel
}

// Bounds implements display.Drawer. Min is guaranteed to be {0, 0}. For
// Rotate90 and Rotate270 the physical width and height are swapped.
func (d *Dev) Bounds() image.Rectangle {
	return d.rect
}

// Rotation returns the fixed panel orientation set at initialization.
func (d *Dev) Rotation() Rotation {
	return d.rotation
}

// Draw implements display.Drawer.
//
// It draws synchronously; once this function returns the panel is updated.
// Only the rectangle r is transmitted.
func (d *Dev) Draw(r image.Rectangle, src image.Image, sp image.Point) error {
	clipped := r.Intersect(d.rect)
	if clipped.Empty() {
		return nil
	}
	sp = sp.Add(clipped.Min.Sub(r.Min))
	r = clipped
	if img, ok := src.(*rgb565.Image); ok && sp == img.Rect.Min && r.Size() == img.Rect.Size() && img.Stride == 2*r.Dx() {
		// Wire-format source covering exactly the window: no conversion.
		return d.FlushWindow(r, img.Pix)
	}
	buf := rgb565.New(image.Rectangle{Max: r.Size()})
	draw.Src.Draw(buf, buf.Rect, src, sp)
	return d.FlushWindow(r, buf.Pix)
}

// FlushWindow transmits pre-encoded RGB565 pixels to the window r given
// in logical coordinates: one addressing sequence, then the pixel stream
// in row-major order.
//
// pix must hold exactly 2*r.Dx()*r.Dy() bytes, big-endian, matching
// rgb565.Image.Pix.
func (d *Dev) FlushWindow(r image.Rectangle, pix []byte) error {
	m, err := mapWindow(d.rotation, d.phys, r)
	if err != nil {
		return err
	}
	if n := 2 * m.Dx() * m.Dy(); n != len(pix) {
		return fmt.Errorf("ssd1351: invalid pixel stream length; expected %d bytes, got %d bytes", n, len(pix))
	}
	if err := setWindow(d, m); err != nil {
		return err
	}
	for len(pix) > 0 {
		n := len(pix)
		if n > maxTxSize {
			n = maxTxSize
		}
		if err := d.sendData(pix[:n]); err != nil {
			return err
		}
		pix = pix[n:]
	}
	return nil
}

// Clear sets every pixel to black.
func (d *Dev) Clear() error {
	return d.FlushWindow(d.rect, make([]byte, 2*d.rect.Dx()*d.rect.Dy()))
}

// SetContrast changes the contrast of all three colour channels.
func (d *Dev) SetContrast(level byte) error {
	return d.sendCommand(setContrastABC, level, level, level)
}

// Invert the display (negative image).
func (d *Dev) Invert(invert bool) error {
	if invert {
		return d.sendCommand(invertDisplay)
	}
	return d.sendCommand(normalDisplay)
}

// Halt turns off the display.
//
// Sending any other command afterward reenables the display.
func (d *Dev) Halt() error {
	d.halted = false
	err := d.sendCommand(displayOff)
	if err == nil {
		d.halted = true
	}
	return err
}

func (d *Dev) sendCommand(cmd byte, args ...byte) error {
	if d.halted {
		// Transparently enable the display.
		d.halted = false
		if err := d.sendCommand(displayOn); err != nil {
			return err
		}
	}
	if err := d.dc.Out(gpio.Low); err != nil {
		return err
	}
	if err := d.c.Tx([]byte{cmd}, nil); err != nil {
		return err
	}
	if len(args) == 0 {
		return nil
	}
	// Command arguments are clocked in with DC high.
	if err := d.dc.Out(gpio.High); err != nil {
		return err
	}
	return d.c.Tx(args, nil)
}

func (d *Dev) sendData(data []byte) error {
	if d.halted {
		if err := d.sendCommand(displayOn); err != nil {
			return err
		}
	}
	if err := d.dc.Out(gpio.High); err != nil {
		return err
	}
	return d.c.Tx(data, nil)
}

var _ display.Drawer = &Dev{}
var _ conn.Resource = &Dev{}

// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package rgb565 implements the 16-bit 5-6-5 colour format used by the
// SSD1351 and similar colour OLED/TFT controllers.
//
// Pixels are stored big-endian, two bytes per pixel, which is exactly the
// order the controller expects on the wire. A flush can therefore slice
// rows straight out of Image.Pix without converting or copying per pixel.
package rgb565

import (
	"image"
	"image/color"
	"image/draw"
)

// Pixel is a colour in RGB565 wire encoding: rrrrrggggggbbbbb.
type Pixel uint16

// New565 packs a 24-bit colour into a Pixel.
func New565(r, g, b uint8) Pixel {
	return Pixel(uint16(r>>3)<<11 | uint16(g>>2)<<5 | uint16(b>>3))
}

// RGBA implements color.Color.
//
// The truncated low bits are backfilled from the high bits so that pure
// white round-trips to pure white.
func (p Pixel) RGBA() (r, g, b, a uint32) {
	r8 := uint32(p>>11) & 0x1F
	g8 := uint32(p>>5) & 0x3F
	b8 := uint32(p) & 0x1F
	r8 = r8<<3 | r8>>2
	g8 = g8<<2 | g8>>4
	b8 = b8<<3 | b8>>2
	return r8<<8 | r8, g8<<8 | g8, b8<<8 | b8, 0xFFFF
}

// Bytes returns the two wire bytes for the pixel, most significant first.
func (p Pixel) Bytes() (byte, byte) {
	return byte(p >> 8), byte(p)
}

// FromBytes rebuilds a Pixel from its two wire bytes.
func FromBytes(hi, lo byte) Pixel {
	return Pixel(uint16(hi)<<8 | uint16(lo))
}

func toPixel(c color.Color) color.Color {
	if p, ok := c.(Pixel); ok {
		return p
	}
	r, g, b, _ := c.RGBA()
	return New565(uint8(r>>8), uint8(g>>8), uint8(b>>8))
}

// PixelModel converts any color.Color to a Pixel.
var PixelModel = color.ModelFunc(toPixel)

// Image is an in-memory image whose At method returns Pixel values.
type Image struct {
	// Pix holds the pixels in wire order, big-endian, two bytes each.
	Pix []byte
	// Stride is the Pix stride (in bytes) between vertically adjacent
	// pixels.
	Stride int
	// Rect is the image bounds.
	Rect image.Rectangle
}

// New returns an initialized (all black) Image of the given bounds.
func New(r image.Rectangle) *Image {
	w, h := r.Dx(), r.Dy()
	if w <= 0 || h <= 0 {
		return &Image{Rect: r}
	}
	return &Image{
		Pix:    make([]byte, 2*w*h),
		Stride: 2 * w,
		Rect:   r,
	}
}

// ColorModel implements image.Image.
func (i *Image) ColorModel() color.Model {
	return PixelModel
}

// Bounds implements image.Image.
func (i *Image) Bounds() image.Rectangle {
	return i.Rect
}

// At implements image.Image.
func (i *Image) At(x, y int) color.Color {
	return i.PixelAt(x, y)
}

// PixelAt returns the Pixel at (x, y), or 0 outside the bounds.
func (i *Image) PixelAt(x, y int) Pixel {
	if !(image.Point{x, y}.In(i.Rect)) {
		return 0
	}
	o := i.PixOffset(x, y)
	return FromBytes(i.Pix[o], i.Pix[o+1])
}

// Set implements draw.Image.
func (i *Image) Set(x, y int, c color.Color) {
	i.SetPixel(x, y, PixelModel.Convert(c).(Pixel))
}

// SetPixel sets the Pixel at (x, y), skipping colour model conversion.
func (i *Image) SetPixel(x, y int, p Pixel) {
	if !(image.Point{x, y}.In(i.Rect)) {
		return
	}
	o := i.PixOffset(x, y)
	i.Pix[o], i.Pix[o+1] = p.Bytes()
}

// PixOffset returns the index into Pix of the first byte of the pixel at
// (x, y).
func (i *Image) PixOffset(x, y int) int {
	return (y-i.Rect.Min.Y)*i.Stride + 2*(x-i.Rect.Min.X)
}

var _ draw.Image = &Image{}
var _ color.Color = Pixel(0)

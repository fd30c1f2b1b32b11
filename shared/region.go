// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package shared

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"periph.io/x/conn/v3/display"
	"periph.io/x/devices/v3/ssd1351/rgb565"
)

// RegionOpts defines the options for a Region.
type RegionOpts struct {
	// Unbuffered skips the per-Region pixel buffer. Draw calls then only
	// grow the dirty window; the pixels themselves must be re-supplied at
	// flush time through FlushImage. Saves 2 bytes per pixel of RAM for
	// callers that re-render anyway.
	Unbuffered bool
}

// Region is an exclusively owned rectangle of the panel.
//
// It implements display.Drawer in region-local coordinates: Bounds().Min
// is always (0,0) no matter where the rectangle sits on the panel. Draw
// and SetPixel are pure in-memory operations; nothing reaches the panel
// until Flush or FlushImage.
//
// A Region is not safe for concurrent use by multiple goroutines; distinct
// Regions are independent and safe to use concurrently with each other.
type Region struct {
	arb  *Arbiter
	rect image.Rectangle // panel coordinates, immutable

	mu     sync.Mutex
	buf    *rgb565.Image   // nil when unbuffered
	dirty  image.Rectangle // bounding rectangle of changes since last flush
	closed bool
}

func newRegion(a *Arbiter, r image.Rectangle, opts *RegionOpts) *Region {
	reg := &Region{
		arb:  a,
		rect: r,
	}
	if !opts.Unbuffered {
		reg.buf = rgb565.New(image.Rectangle{Max: r.Size()})
	}
	return reg
}

func (r *Region) String() string {
	return fmt.Sprintf("shared.Region{%v}", r.rect)
}

// Rect returns the owned rectangle in panel coordinates.
func (r *Region) Rect() image.Rectangle {
	return r.rect
}

// ColorModel implements display.Drawer.
func (r *Region) ColorModel() color.Model {
	return rgb565.PixelModel
}

// Bounds implements display.Drawer. Min is guaranteed to be {0, 0}.
func (r *Region) Bounds() image.Rectangle {
	return image.Rectangle{Max: r.rect.Size()}
}

// Draw implements display.Drawer.
//
// The destination rectangle is clipped to the Region bounds; pixels
// outside are dropped, never written to a neighbour. The touched
// rectangle is folded into the dirty window for the next flush.
func (r *Region) Draw(dst image.Rectangle, src image.Image, sp image.Point) error {
	clipped := dst.Intersect(r.Bounds())
	sp = sp.Add(clipped.Min.Sub(dst.Min))
	dst = clipped
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosedRegion
	}
	if dst.Empty() {
		return nil
	}
	if r.buf != nil {
		draw.Src.Draw(r.buf, dst, src, sp)
	}
	r.dirty = r.dirty.Union(dst)
	return nil
}

// SetPixel sets a single pixel, growing the dirty window by one point.
// Out of bounds coordinates are dropped.
func (r *Region) SetPixel(x, y int, c color.Color) error {
	if !(image.Point{x, y}.In(r.Bounds())) {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosedRegion
	}
	if r.buf != nil {
		r.buf.Set(x, y, c)
	}
	r.dirty = r.dirty.Union(image.Rect(x, y, x+1, y+1))
	return nil
}

// Dirty returns the current dirty window in region-local coordinates. It
// is empty right after a successful flush.
func (r *Region) Dirty() image.Rectangle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dirty
}

// Flush transmits the dirty window from the Region's buffer to the panel.
//
// It blocks until every earlier submitted flush (from any Region) and then
// this one completed. On success the dirty window is reset; on failure it
// is left untouched so the same window is re-sent on retry. A Region with
// nothing dirty returns immediately.
func (r *Region) Flush() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosedRegion
	}
	if r.buf == nil {
		r.mu.Unlock()
		return ErrUnbuffered
	}
	dirty := r.dirty
	if dirty.Empty() {
		r.mu.Unlock()
		return nil
	}
	pix := windowBytes(r.buf, dirty)
	r.mu.Unlock()

	if err := r.arb.submit(&request{kind: flushReq, reg: r, dirty: dirty, pix: pix, done: make(chan error)}); err != nil {
		return err
	}
	r.clearDirty()
	return nil
}

// FlushImage transmits the dirty window with pixels re-supplied by the
// caller: the point sp in src corresponds to the Region's (0,0).
//
// This is the flush path for unbuffered Regions. On a buffered Region the
// supplied pixels also replace the buffered ones. Dirty window semantics
// match Flush.
func (r *Region) FlushImage(src image.Image, sp image.Point) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosedRegion
	}
	dirty := r.dirty
	if dirty.Empty() {
		r.mu.Unlock()
		return nil
	}
	tmp := rgb565.New(dirty)
	draw.Src.Draw(tmp, dirty, src, sp.Add(dirty.Min))
	if r.buf != nil {
		draw.Src.Draw(r.buf, dirty, tmp, dirty.Min)
	}
	r.mu.Unlock()

	if err := r.arb.submit(&request{kind: flushReq, reg: r, dirty: dirty, pix: tmp.Pix, done: make(chan error)}); err != nil {
		return err
	}
	r.clearDirty()
	return nil
}

// Close returns the rectangle to the free pool.
//
// The release is sequenced through the flush queue, so flushes already
// submitted for this Region resolve first and a later occupant of the same
// rectangle can never receive stale pixels. All further calls on the
// Region fail with ErrClosedRegion.
func (r *Region) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosedRegion
	}
	r.mu.Unlock()
	return r.arb.submit(&request{kind: closeReq, reg: r, done: make(chan error)})
}

// Halt implements conn.Resource. It is equivalent to Close.
func (r *Region) Halt() error {
	return r.Close()
}

func (r *Region) clearDirty() {
	r.mu.Lock()
	r.dirty = image.Rectangle{}
	r.mu.Unlock()
}

func (r *Region) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// markClosed flips the closed flag, reporting false if it already was.
func (r *Region) markClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.closed = true
	return true
}

// windowBytes extracts the wire bytes for the window w of img in row-major
// order. When the window spans full rows the backing array is sliced
// directly; otherwise the rows are gathered into a fresh slice.
func windowBytes(img *rgb565.Image, w image.Rectangle) []byte {
	if 2*w.Dx() == img.Stride {
		return img.Pix[img.PixOffset(w.Min.X, w.Min.Y) : img.PixOffset(w.Min.X, w.Max.Y-1)+2*w.Dx()]
	}
	pix := make([]byte, 0, 2*w.Dx()*w.Dy())
	for y := w.Min.Y; y < w.Max.Y; y++ {
		o := img.PixOffset(w.Min.X, y)
		pix = append(pix, img.Pix[o:o+2*w.Dx()]...)
	}
	return pix
}

var _ display.Drawer = &Region{}

// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ssd1351

import (
	"fmt"
	"image"
)

// Rotation is the panel orientation in 90° steps.
//
// It is fixed at initialization time. The remap register handles the
// mirroring for Rotate180/Rotate270; the column/row axis swap for
// Rotate90/Rotate270 is applied when addressing a window.
type Rotation uint8

// Valid rotation values.
const (
	Rotate0 Rotation = iota
	Rotate90
	Rotate180
	Rotate270
)

func (r Rotation) String() string {
	switch r {
	case Rotate0:
		return "Rotate0"
	case Rotate90:
		return "Rotate90"
	case Rotate180:
		return "Rotate180"
	case Rotate270:
		return "Rotate270"
	default:
		return fmt.Sprintf("Rotation(%d)", uint8(r))
	}
}

// remap returns the value for the setRemapColorDepth register: 65k colour
// depth, COM split, and the horizontal/vertical mirroring matching the
// rotation.
func (r Rotation) remap() byte {
	switch r {
	case Rotate90:
		return 0x77
	case Rotate180:
		return 0x66
	case Rotate270:
		return 0x65
	default:
		return 0x74
	}
}

// swapsAxes reports whether logical x/y map to physical row/column instead
// of column/row.
func (r Rotation) swapsAxes() bool {
	return r == Rotate90 || r == Rotate270
}

// mapWindow translates a rectangle in logical (rotated) coordinates into
// the physical column/row window.
//
// phys is the unrotated panel size. An out of range result is reported as
// an error rather than clamped; it means region bookkeeping upstream is
// broken, not that the caller passed bad input.
func mapWindow(rot Rotation, phys image.Point, r image.Rectangle) (image.Rectangle, error) {
	m := r
	if rot.swapsAxes() {
		m = image.Rect(r.Min.Y, r.Min.X, r.Max.Y, r.Max.X)
	}
	if m.Empty() || m.Min.X < 0 || m.Min.Y < 0 || m.Max.X > phys.X || m.Max.Y > phys.Y {
		return image.Rectangle{}, fmt.Errorf("ssd1351: internal error: window %v maps outside panel %dx%d", r, phys.X, phys.Y)
	}
	return m, nil
}

// setWindow emits the addressing sequence for the physical window m:
// column span, row span, then the write RAM command. Pixel data sent
// afterwards fills the window row by row.
func setWindow(ctrl controller, m image.Rectangle) error {
	if err := ctrl.sendCommand(setColumnAddress, byte(m.Min.X), byte(m.Max.X-1)); err != nil {
		return err
	}
	if err := ctrl.sendCommand(setRowAddress, byte(m.Min.Y), byte(m.Max.Y-1)); err != nil {
		return err
	}
	return ctrl.sendCommand(writeRAM)
}

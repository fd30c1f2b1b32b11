// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ssd1351 controls a SSD1351 colour OLED display via 4-wire SPI.
//
// The SSD1351 drives up to 128x128 pixels in 16-bit RGB565 colour. The
// driver keeps no framebuffer: callers address a window and stream pixels
// to it, which keeps partial updates cheap on the slow serial link.
//
// The shared subpackage time-multiplexes one panel between several
// concurrent writers, each owning an exclusive rectangle with its own
// dirty tracking; the rgb565 subpackage holds pixels in the controller's
// wire format; the screen2d subpackage emulates the panel in a terminal.
//
// # Datasheet
//
// https://www.crystalfontz.com/controllers/SolomonSystech/SSD1351/
package ssd1351

// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ssd1351

// Commands. See the SSD1351 datasheet, section 9.
const (
	setColumnAddress    byte = 0x15
	writeRAM            byte = 0x5C
	setRowAddress       byte = 0x75
	setRemapColorDepth  byte = 0xA0
	setDisplayStartLine byte = 0xA1
	setDisplayOffset    byte = 0xA2
	normalDisplay       byte = 0xA6
	invertDisplay       byte = 0xA7
	functionSelection   byte = 0xAB
	displayOff          byte = 0xAE
	displayOn           byte = 0xAF
	setPhaseLength      byte = 0xB1
	frontClockDivider   byte = 0xB3
	setVSL              byte = 0xB4
	setGPIO             byte = 0xB5
	setSecondPrecharge  byte = 0xB6
	setVCOMH            byte = 0xBE
	setContrastABC      byte = 0xC1
	masterContrast      byte = 0xC7
	setMuxRatio         byte = 0xCA
	setCommandLock      byte = 0xFD
)

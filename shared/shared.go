// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package shared time-multiplexes one physical panel between several
// concurrent writers.
//
// Each writer registers an exclusive rectangle of the panel and receives a
// Region implementing display.Drawer. Drawing is a pure in-memory
// operation on the Region's own buffer and never blocks on other Regions;
// only Flush touches the panel. The Arbiter owns the panel transport
// outright, executes flushes strictly in submission order and transmits at
// most one window at a time, so concurrent Regions can never interleave
// command streams on the wire.
//
// The panel is abstracted by the two-method Panel interface, implemented
// by ssd1351.Dev for real hardware and by screen2d.Dev for a terminal
// emulation.
package shared

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"periph.io/x/conn/v3"
)

// Registration and flush errors.
var (
	// ErrOverlap is returned by Register when the rectangle intersects a
	// live Region.
	ErrOverlap = errors.New("shared: rectangle overlaps a registered region")
	// ErrOutOfBounds is returned by Register when the rectangle does not
	// fit the panel.
	ErrOutOfBounds = errors.New("shared: rectangle exceeds panel bounds")
	// ErrClosedRegion is returned by operations on a closed Region.
	ErrClosedRegion = errors.New("shared: region is closed")
	// ErrHalted is returned once the Arbiter has been halted.
	ErrHalted = errors.New("shared: arbiter is halted")
	// ErrUnbuffered is returned by Flush on a Region registered with
	// Unbuffered set; use FlushImage instead.
	ErrUnbuffered = errors.New("shared: region has no pixel buffer")
)

// Panel is the surface the Arbiter drives. Bounds is the logical panel
// size; FlushWindow transmits pre-encoded RGB565 pixels (rgb565.Image.Pix
// layout) to the window r.
//
// The Arbiter is the sole caller of FlushWindow; implementations need no
// internal locking.
type Panel interface {
	Bounds() image.Rectangle
	FlushWindow(r image.Rectangle, pix []byte) error
}

type reqKind uint8

const (
	flushReq reqKind = iota
	closeReq
)

// request is one unit of work for the processing loop. It is consumed
// exactly once: the outcome is delivered on done.
type request struct {
	kind  reqKind
	reg   *Region
	dirty image.Rectangle // region-local, flushReq only
	pix   []byte          // wire bytes for dirty, flushReq only
	done  chan error
}

// Arbiter serializes all access to a single Panel across Regions.
type Arbiter struct {
	panel Panel

	mu      sync.Mutex
	regions []*Region
	halted  bool

	reqs chan *request
	quit chan struct{}
	done chan struct{}
}

// New returns an Arbiter owning p and starts its processing loop.
//
// Call Halt to stop the loop. No other component may write to p while the
// Arbiter is live.
func New(p Panel) *Arbiter {
	a := &Arbiter{
		panel: p,
		reqs:  make(chan *request),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Arbiter) String() string {
	a.mu.Lock()
	n := len(a.regions)
	a.mu.Unlock()
	return fmt.Sprintf("shared.Arbiter{%d regions}", n)
}

// Register grants exclusive ownership of the rectangle r, given in logical
// panel coordinates.
//
// It fails with ErrOutOfBounds if r is empty or exceeds the panel, and
// with ErrOverlap if r intersects any live Region. The rectangle is freed
// again by Region.Close.
func (a *Arbiter) Register(r image.Rectangle, opts *RegionOpts) (*Region, error) {
	if opts == nil {
		opts = &RegionOpts{}
	}
	if r.Empty() || !r.In(a.panel.Bounds()) {
		return nil, ErrOutOfBounds
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.halted {
		return nil, ErrHalted
	}
	for _, reg := range a.regions {
		if r.Overlaps(reg.rect) {
			return nil, ErrOverlap
		}
	}
	reg := newRegion(a, r, opts)
	a.regions = append(a.regions, reg)
	return reg, nil
}

// Halt implements conn.Resource; it stops the processing loop.
//
// Queued flushes fail with ErrHalted, as does all later use of the Arbiter
// or its Regions. The Panel itself is left untouched.
func (a *Arbiter) Halt() error {
	a.mu.Lock()
	if !a.halted {
		a.halted = true
		close(a.quit)
	}
	a.mu.Unlock()
	<-a.done
	return nil
}

// submit enqueues req and blocks until the processing loop resolved it.
func (a *Arbiter) submit(req *request) error {
	select {
	case a.reqs <- req:
		return <-req.done
	case <-a.quit:
		return ErrHalted
	}
}

// run is the processing loop: the only goroutine ever touching the panel.
// Requests are executed one at a time in arrival order, which yields the
// system-wide FIFO flush guarantee.
func (a *Arbiter) run() {
	defer close(a.done)
	for {
		select {
		case req := <-a.reqs:
			req.done <- a.process(req)
		case <-a.quit:
			for {
				select {
				case req := <-a.reqs:
					req.done <- ErrHalted
				default:
					return
				}
			}
		}
	}
}

func (a *Arbiter) process(req *request) error {
	switch req.kind {
	case closeReq:
		if !req.reg.markClosed() {
			return ErrClosedRegion
		}
		a.remove(req.reg)
		return nil
	default:
		// A flush queued behind the close of its own Region is withdrawn,
		// not transmitted: the rectangle may already have a new owner.
		if req.reg.isClosed() {
			return ErrClosedRegion
		}
		return a.panel.FlushWindow(req.dirty.Add(req.reg.rect.Min), req.pix)
	}
}

func (a *Arbiter) remove(reg *Region) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, r := range a.regions {
		if r == reg {
			a.regions = append(a.regions[:i], a.regions[i+1:]...)
			return
		}
	}
}

var _ conn.Resource = &Arbiter{}

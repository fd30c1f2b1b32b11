// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package shared

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type flushCall struct {
	r   image.Rectangle
	pix []byte
}

// fakePanel records flushes. gate, when set, holds every flush until the
// channel is signalled, to pile up a queue behind an in-flight transfer.
type fakePanel struct {
	bounds image.Rectangle
	gate   chan struct{}

	mu    sync.Mutex
	calls []flushCall
	errs  []error // consumed one per call, nil entries mean success
}

func newFakePanel(w, h int) *fakePanel {
	return &fakePanel{bounds: image.Rect(0, 0, w, h)}
}

func (p *fakePanel) Bounds() image.Rectangle {
	return p.bounds
}

func (p *fakePanel) FlushWindow(r image.Rectangle, pix []byte) error {
	if p.gate != nil {
		<-p.gate
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, flushCall{r: r, pix: append([]byte(nil), pix...)})
	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		return err
	}
	return nil
}

func (p *fakePanel) flushes() []flushCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]flushCall(nil), p.calls...)
}

func TestRegister(t *testing.T) {
	p := newFakePanel(128, 128)
	a := New(p)
	defer a.Halt()

	regA, err := a.Register(image.Rect(0, 0, 64, 64), nil)
	if err != nil {
		t.Fatalf("Register(A) failed: %v", err)
	}
	if _, err := a.Register(image.Rect(64, 64, 128, 128), nil); err != nil {
		t.Fatalf("Register(B) failed: %v", err)
	}
	if _, err := a.Register(image.Rect(32, 32, 96, 96), nil); !errors.Is(err, ErrOverlap) {
		t.Errorf("Register(C) = %v, want ErrOverlap", err)
	}
	if _, err := a.Register(image.Rect(96, 0, 160, 64), nil); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("Register(out of bounds) = %v, want ErrOutOfBounds", err)
	}
	if _, err := a.Register(image.Rect(10, 10, 10, 10), nil); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("Register(empty) = %v, want ErrOutOfBounds", err)
	}

	// Releasing a rectangle returns it to the free pool.
	if err := regA.Close(); err != nil {
		t.Fatalf("Close(A) failed: %v", err)
	}
	if _, err := a.Register(image.Rect(0, 0, 64, 64), nil); err != nil {
		t.Errorf("Register(A again) failed: %v", err)
	}
}

// TestRegisterDisjointProperty drives randomized register/close sequences
// and verifies the live set stays pairwise disjoint and that registration
// succeeds exactly when the rectangle is free and in bounds.
func TestRegisterDisjointProperty(t *testing.T) {
	p := newFakePanel(128, 128)
	a := New(p)
	defer a.Halt()

	rng := rand.New(rand.NewSource(1))
	var live []*Region
	for i := 0; i < 500; i++ {
		if len(live) > 0 && rng.Intn(3) == 0 {
			n := rng.Intn(len(live))
			if err := live[n].Close(); err != nil {
				t.Fatalf("op %d: Close(%v) failed: %v", i, live[n].Rect(), err)
			}
			live = append(live[:n], live[n+1:]...)
			continue
		}
		r := image.Rect(0, 0, 1+rng.Intn(64), 1+rng.Intn(64)).Add(image.Pt(rng.Intn(140)-6, rng.Intn(140)-6))
		wantErr := error(nil)
		if !r.In(p.Bounds()) {
			wantErr = ErrOutOfBounds
		} else {
			for _, reg := range live {
				if r.Overlaps(reg.Rect()) {
					wantErr = ErrOverlap
					break
				}
			}
		}
		reg, err := a.Register(r, nil)
		if !errors.Is(err, wantErr) {
			t.Fatalf("op %d: Register(%v) = %v, want %v", i, r, err, wantErr)
		}
		if err == nil {
			live = append(live, reg)
		}
		for x := 0; x < len(live); x++ {
			for y := x + 1; y < len(live); y++ {
				if live[x].Rect().Overlaps(live[y].Rect()) {
					t.Fatalf("op %d: live regions %v and %v overlap", i, live[x].Rect(), live[y].Rect())
				}
			}
		}
	}
}

// TestFlushFIFO verifies flushes complete in submission order across
// regions, even when submitted from different goroutines.
func TestFlushFIFO(t *testing.T) {
	p := newFakePanel(128, 128)
	p.gate = make(chan struct{})
	a := New(p)
	defer a.Halt()

	const n = 8
	regs := make([]*Region, n)
	for i := range regs {
		var err error
		regs[i], err = a.Register(image.Rect(i*16, 0, i*16+16, 16), nil)
		if err != nil {
			t.Fatalf("Register(%d) failed: %v", i, err)
		}
		// Tag the region's pixels with its index.
		if err := regs[i].SetPixel(0, 0, rgbPix(byte(i))); err != nil {
			t.Fatalf("SetPixel(%d) failed: %v", i, err)
		}
	}

	var completedMu sync.Mutex
	var completed []int
	var wg sync.WaitGroup
	for i := range regs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := regs[i].Flush(); err != nil {
				t.Errorf("Flush(%d) failed: %v", i, err)
			}
			completedMu.Lock()
			completed = append(completed, i)
			completedMu.Unlock()
		}(i)
		// The gated panel keeps the queue blocked; the pause makes the
		// submission order the spawn order.
		time.Sleep(20 * time.Millisecond)
	}
	close(p.gate)
	wg.Wait()

	want := []int{0, 1, 2, 3, 4, 5, 6, 7}
	if diff := cmp.Diff(completed, want); diff != "" {
		t.Errorf("completion order difference (-got +want):\n%s", diff)
	}
	var transmitted []int
	for _, c := range p.flushes() {
		transmitted = append(transmitted, int(c.r.Min.X/16))
	}
	if diff := cmp.Diff(transmitted, want); diff != "" {
		t.Errorf("transmission order difference (-got +want):\n%s", diff)
	}
}

func TestFlushFailureIsolation(t *testing.T) {
	p := newFakePanel(128, 128)
	a := New(p)
	defer a.Halt()

	regA, err := a.Register(image.Rect(0, 0, 64, 64), nil)
	if err != nil {
		t.Fatalf("Register(A) failed: %v", err)
	}
	regB, err := a.Register(image.Rect(64, 0, 128, 64), nil)
	if err != nil {
		t.Fatalf("Register(B) failed: %v", err)
	}

	wantErr := errors.New("spi: bus stuck")
	p.errs = []error{wantErr}

	if err := regA.SetPixel(1, 1, color.White); err != nil {
		t.Fatal(err)
	}
	if err := regB.SetPixel(2, 2, color.White); err != nil {
		t.Fatal(err)
	}

	// A's transport failure is A's alone.
	if err := regA.Flush(); !errors.Is(err, wantErr) {
		t.Errorf("Flush(A) = %v, want %v", err, wantErr)
	}
	if got := regA.Dirty(); got != image.Rect(1, 1, 2, 2) {
		t.Errorf("A dirty window after failed flush = %v, want unchanged", got)
	}
	if err := regB.Flush(); err != nil {
		t.Errorf("Flush(B) failed: %v", err)
	}
	if got := regB.Dirty(); !got.Empty() {
		t.Errorf("B dirty window after flush = %v, want empty", got)
	}

	// A retry re-sends the same window.
	if err := regA.Flush(); err != nil {
		t.Errorf("Flush(A) retry failed: %v", err)
	}
	calls := p.flushes()
	if len(calls) != 3 {
		t.Fatalf("got %d flushes, want 3", len(calls))
	}
	if calls[0].r != calls[2].r {
		t.Errorf("retry window %v differs from failed window %v", calls[2].r, calls[0].r)
	}
}

func TestScenario128(t *testing.T) {
	p := newFakePanel(128, 128)
	a := New(p)
	defer a.Halt()

	regA, err := a.Register(image.Rect(0, 0, 64, 64), nil)
	if err != nil {
		t.Fatalf("Register(A) failed: %v", err)
	}
	if _, err := a.Register(image.Rect(64, 64, 128, 128), nil); err != nil {
		t.Fatalf("Register(B) failed: %v", err)
	}
	if _, err := a.Register(image.Rect(32, 32, 96, 96), nil); !errors.Is(err, ErrOverlap) {
		t.Fatalf("Register(C) = %v, want ErrOverlap", err)
	}

	if err := regA.SetPixel(10, 10, rgbPix(0xFF)); err != nil {
		t.Fatal(err)
	}
	if err := regA.Flush(); err != nil {
		t.Fatalf("Flush(A) failed: %v", err)
	}

	calls := p.flushes()
	if len(calls) != 1 {
		t.Fatalf("got %d window transfers, want exactly 1", len(calls))
	}
	if want := image.Rect(10, 10, 11, 11); calls[0].r != want {
		t.Errorf("window = %v, want %v", calls[0].r, want)
	}
	if len(calls[0].pix) != 2 {
		t.Errorf("pixel stream = %d bytes, want 2", len(calls[0].pix))
	}

	if err := regA.Close(); err != nil {
		t.Fatalf("Close(A) failed: %v", err)
	}
	if _, err := a.Register(image.Rect(0, 0, 64, 64), nil); err != nil {
		t.Errorf("re-Register(A) failed: %v", err)
	}
}

func TestClosedRegion(t *testing.T) {
	p := newFakePanel(128, 128)
	a := New(p)
	defer a.Halt()

	reg, err := a.Register(image.Rect(0, 0, 32, 32), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := reg.SetPixel(0, 0, color.White); err != nil {
		t.Fatal(err)
	}
	if err := reg.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	if err := reg.Close(); !errors.Is(err, ErrClosedRegion) {
		t.Errorf("second Close() = %v, want ErrClosedRegion", err)
	}
	if err := reg.Flush(); !errors.Is(err, ErrClosedRegion) {
		t.Errorf("Flush() = %v, want ErrClosedRegion", err)
	}
	if err := reg.SetPixel(0, 0, color.White); !errors.Is(err, ErrClosedRegion) {
		t.Errorf("SetPixel() = %v, want ErrClosedRegion", err)
	}
	if err := reg.Draw(reg.Bounds(), image.NewRGBA(reg.Bounds()), image.Point{}); !errors.Is(err, ErrClosedRegion) {
		t.Errorf("Draw() = %v, want ErrClosedRegion", err)
	}
	if err := reg.FlushImage(image.NewRGBA(reg.Bounds()), image.Point{}); !errors.Is(err, ErrClosedRegion) {
		t.Errorf("FlushImage() = %v, want ErrClosedRegion", err)
	}
	if len(p.flushes()) != 0 {
		t.Error("closed region reached the panel")
	}
}

func TestHaltArbiter(t *testing.T) {
	p := newFakePanel(128, 128)
	a := New(p)

	reg, err := a.Register(image.Rect(0, 0, 32, 32), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := reg.SetPixel(0, 0, color.White); err != nil {
		t.Fatal(err)
	}
	if err := a.Halt(); err != nil {
		t.Fatalf("Halt() failed: %v", err)
	}
	// Idempotent.
	if err := a.Halt(); err != nil {
		t.Fatalf("second Halt() failed: %v", err)
	}

	if _, err := a.Register(image.Rect(64, 64, 96, 96), nil); !errors.Is(err, ErrHalted) {
		t.Errorf("Register() = %v, want ErrHalted", err)
	}
	if err := reg.Flush(); !errors.Is(err, ErrHalted) {
		t.Errorf("Flush() = %v, want ErrHalted", err)
	}
	if got := reg.Dirty(); got.Empty() {
		t.Error("dirty window lost by failed flush")
	}
}

func TestArbiterString(t *testing.T) {
	a := New(newFakePanel(128, 128))
	defer a.Halt()
	if _, err := a.Register(image.Rect(0, 0, 8, 8), nil); err != nil {
		t.Fatal(err)
	}
	if got, want := a.String(), "shared.Arbiter{1 regions}"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func rgbPix(v byte) color.Color {
	return color.RGBA{R: v, G: v, B: v, A: 0xFF}
}

var _ fmt.Stringer = &Arbiter{}

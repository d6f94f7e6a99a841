// Copyright 2026 The go-sipm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ice40

import (
	"fmt"
	"testing"
	"time"
)

// fakeRig wires a Device to scripted pins and a scripted bus, and
// keeps a single ordered trace of everything the loader does to the
// hardware.
type fakeRig struct {
	trace []string

	bus  *fakeBus
	cs   *fakePin
	rst  *fakePin
	done *fakePin
}

type fakeBus struct {
	rig    *fakeRig
	xfers  [][]byte
	failAt int // 1-based Transfer call to fail on, 0 for never
	calls  int
	closed bool
}

func (b *fakeBus) Transfer(p []byte) error {
	b.calls++
	if b.failAt > 0 && b.calls == b.failAt {
		return fmt.Errorf("bus gone")
	}
	cp := make([]byte, len(p))
	copy(cp, p)
	b.xfers = append(b.xfers, cp)
	b.rig.trace = append(b.rig.trace, fmt.Sprintf("xfer:%d", len(p)))
	return nil
}

func (b *fakeBus) Close() error {
	b.closed = true
	return nil
}

type fakePin struct {
	rig    *fakeRig
	name   string
	level  bool
	reads  []bool // scripted read-back values; last one repeats
	nread  int
	closed bool
}

func (p *fakePin) Write(v bool) error {
	p.level = v
	lvl := 0
	if v {
		lvl = 1
	}
	p.rig.trace = append(p.rig.trace, fmt.Sprintf("%s=%d", p.name, lvl))
	return nil
}

func (p *fakePin) Read() (bool, error) {
	if len(p.reads) == 0 {
		return p.level, nil
	}
	i := p.nread
	if i >= len(p.reads) {
		i = len(p.reads) - 1
	}
	p.nread++
	return p.reads[i], nil
}

func (p *fakePin) Close() error {
	p.closed = true
	return nil
}

// newFakeDevice builds a Device against a fake rig. The CDONE pin
// replays the given read sequence.
func newFakeDevice(t *testing.T, done []bool) (*Device, *fakeRig) {
	t.Helper()

	rig := &fakeRig{}
	rig.bus = &fakeBus{rig: rig}
	rig.cs = &fakePin{rig: rig, name: "cs"}
	rig.rst = &fakePin{rig: rig, name: "rst"}
	rig.done = &fakePin{rig: rig, name: "done", reads: done}

	var (
		oldSPI = spiOpen
		oldOut = gpioOut
		oldIn  = gpioIn
	)
	t.Cleanup(func() {
		spiOpen = oldSPI
		gpioOut = oldOut
		gpioIn = oldIn
	})

	spiOpen = func(ch int, speed uint32) (bus, error) { return rig.bus, nil }
	outs := []*fakePin{rig.cs, rig.rst}
	gpioOut = func(n int) (opin, error) {
		p := outs[0]
		outs = outs[1:]
		return p, nil
	}
	gpioIn = func(n int) (ipin, error) { return rig.done, nil }

	dev, err := NewDevice(
		WithDoneTimeout(time.Microsecond, time.Millisecond),
	)
	if err != nil {
		t.Fatalf("could not create device: %+v", err)
	}
	return dev, rig
}

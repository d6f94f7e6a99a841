// Copyright 2026 The go-sipm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ice40

import (
	"bytes"
	"errors"
	"testing"
)

func TestProgramChunks(t *testing.T) {
	for _, size := range []int{1, 100, 4095, 4096, 4097, 8192, 65535} {
		t.Run("", func(t *testing.T) {
			dev, rig := newFakeDevice(t, []bool{true})

			img := make(Bitstream, size)
			for i := range img {
				img[i] = byte(i)
			}

			err := dev.Program(img)
			if err != nil {
				t.Fatalf("size=%d: could not program: %+v", size, err)
			}
			if got, want := dev.State(), Configured; got != want {
				t.Fatalf("size=%d: invalid state: got=%v, want=%v", size, got, want)
			}

			want := (size + chunkSize - 1) / chunkSize
			// first transfer is the dummy byte, last one the flush.
			xfers := rig.bus.xfers
			if len(xfers) != want+2 {
				t.Fatalf("size=%d: invalid number of transfers: got=%d, want=%d",
					size, len(xfers), want+2,
				)
			}
			if len(xfers[0]) != 1 {
				t.Fatalf("size=%d: invalid dummy clocking: %d bytes", size, len(xfers[0]))
			}
			if len(xfers[len(xfers)-1]) != 2 {
				t.Fatalf("size=%d: invalid flush clocking: %d bytes",
					size, len(xfers[len(xfers)-1]),
				)
			}

			var got []byte
			for _, chunk := range xfers[1 : len(xfers)-1] {
				if len(chunk) > chunkSize {
					t.Fatalf("size=%d: chunk too big: %d bytes", size, len(chunk))
				}
				got = append(got, chunk...)
			}
			if !bytes.Equal(got, img) {
				t.Fatalf("size=%d: streamed bytes differ from bitstream", size)
			}
		})
	}
}

func TestProgramSequence(t *testing.T) {
	dev, rig := newFakeDevice(t, []bool{true})

	err := dev.Program(make(Bitstream, 5000))
	if err != nil {
		t.Fatalf("could not program: %+v", err)
	}

	want := []string{
		// NewDevice parks both control lines high.
		"cs=1", "rst=1",
		// reset pulse.
		"cs=0", "rst=0", "rst=1", "cs=1",
		// dummy clocking with chip-select high.
		"xfer:1",
		// streaming.
		"cs=0", "xfer:4096", "xfer:904", "cs=1",
		// flush clocking.
		"xfer:2",
	}
	if len(rig.trace) != len(want) {
		t.Fatalf("invalid trace:\ngot= %v\nwant=%v", rig.trace, want)
	}
	for i := range want {
		if rig.trace[i] != want[i] {
			t.Fatalf("trace[%d]: got=%q, want=%q\ntrace=%v", i, rig.trace[i], want[i], rig.trace)
		}
	}
}

func TestProgramTransferFailure(t *testing.T) {
	dev, rig := newFakeDevice(t, []bool{true})

	// dummy byte is call 1; fail on the second streamed chunk.
	rig.bus.failAt = 3

	err := dev.Program(make(Bitstream, 3*4096))
	if err == nil {
		t.Fatalf("expected a transfer error")
	}

	var terr *TransferError
	if !errors.As(err, &terr) {
		t.Fatalf("invalid error type: %+v", err)
	}
	if got, want := terr.Chunk, 1; got != want {
		t.Fatalf("invalid failed chunk: got=%d, want=%d", got, want)
	}
	if got, want := dev.State(), Failed; got != want {
		t.Fatalf("invalid state: got=%v, want=%v", got, want)
	}

	// chip-select must be left deasserted.
	if got := rig.trace[len(rig.trace)-1]; got != "cs=1" {
		t.Fatalf("chip-select not released after failure: trace=%v", rig.trace)
	}
}

func TestProgramDoneTimeout(t *testing.T) {
	dev, rig := newFakeDevice(t, []bool{false})

	err := dev.Program(make(Bitstream, 16))
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("invalid error: got=%+v, want=%+v", err, ErrTimeout)
	}
	if got, want := dev.State(), Failed; got != want {
		t.Fatalf("invalid state: got=%v, want=%v", got, want)
	}
	if !rig.cs.level {
		t.Fatalf("chip-select not released after timeout")
	}
}

func TestProgramDoneLate(t *testing.T) {
	// CDONE asserts on the third poll, well inside the window.
	dev, _ := newFakeDevice(t, []bool{false, false, true})

	err := dev.Program(make(Bitstream, 16))
	if err != nil {
		t.Fatalf("could not program: %+v", err)
	}
	if got, want := dev.State(), Configured; got != want {
		t.Fatalf("invalid state: got=%v, want=%v", got, want)
	}
}

func TestProgramBusy(t *testing.T) {
	dev, _ := newFakeDevice(t, []bool{true})

	dev.mu.Lock()
	err := dev.Program(make(Bitstream, 16))
	dev.mu.Unlock()

	if !errors.Is(err, ErrBusy) {
		t.Fatalf("invalid error: got=%+v, want=%+v", err, ErrBusy)
	}
}

func TestProgramInvalidImage(t *testing.T) {
	dev, rig := newFakeDevice(t, []bool{true})

	err := dev.Program(nil)
	if err == nil {
		t.Fatalf("expected an error for an empty image")
	}

	err = dev.Program(make(Bitstream, MaxSize+1))
	if !errors.Is(err, ErrTooBig) {
		t.Fatalf("invalid error: got=%+v, want=%+v", err, ErrTooBig)
	}

	// no hardware access may have happened.
	if got, want := len(rig.trace), 2; got != want {
		t.Fatalf("unexpected hardware access: trace=%v", rig.trace)
	}
}

func TestProgramRetryAfterFailure(t *testing.T) {
	dev, rig := newFakeDevice(t, []bool{true})
	rig.bus.failAt = 2

	err := dev.Program(make(Bitstream, 16))
	if err == nil {
		t.Fatalf("expected a transfer error")
	}
	if got, want := dev.State(), Failed; got != want {
		t.Fatalf("invalid state: got=%v, want=%v", got, want)
	}

	// explicit reissue of the whole attempt.
	err = dev.Program(make(Bitstream, 16))
	if err != nil {
		t.Fatalf("could not reprogram after failure: %+v", err)
	}
	if got, want := dev.State(), Configured; got != want {
		t.Fatalf("invalid state: got=%v, want=%v", got, want)
	}
}

func TestStateString(t *testing.T) {
	for _, tc := range []struct {
		st   State
		want string
	}{
		{Idle, "idle"},
		{ResetPulse, "reset-pulse"},
		{DummyClocking, "dummy-clocking"},
		{Streaming, "streaming"},
		{FlushClocking, "flush-clocking"},
		{WaitDone, "wait-done"},
		{Configured, "configured"},
		{Failed, "failed"},
		{State(42), "State(42)"},
	} {
		if got := tc.st.String(); got != tc.want {
			t.Fatalf("invalid string: got=%q, want=%q", got, tc.want)
		}
	}
}

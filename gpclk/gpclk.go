// Copyright 2026 The go-sipm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gpclk programs the Raspberry Pi general-purpose clock
// generators (GPCLK0-2) through the BCM283x clock manager registers.
package gpclk // import "github.com/go-sipm/mppc/gpclk"

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/go-sipm/mppc/internal/mmap"
)

var (
	// ErrFrequency is returned for a frequency the clock dividers
	// cannot produce.
	ErrFrequency = errors.New("gpclk: invalid frequency")
	// ErrPin is returned for a pin with no clock-generator capability.
	ErrPin = errors.New("gpclk: pin has no clock output")
)

// BCM283x register layout.
const (
	clkOffset  = 0x101000 // clock manager, relative to the peripheral base
	gpioOffset = 0x200000 // GPIO block, relative to the peripheral base
	regSpan    = 0x1000

	passwd = 0x5a000000

	ctlEnable = 1 << 4
	ctlBusy   = 1 << 7
	ctlMash1  = 1 << 9

	srcOsc  = 1 // 19.2 MHz crystal
	srcPLLD = 6 // 500 MHz PLL-D

	oscHz  = 19200000
	plldHz = 500000000

	diviMin = 2
	diviMax = 4095

	fselAlt0 = 0b100
)

// gpclks maps a Broadcom pin to its clock-manager control/divider
// register offsets. Only GPCLK0-2 on the 40-pin header are usable.
var gpclks = map[int]struct {
	ctl int64
	div int64
}{
	4: {ctl: 0x70, div: 0x74}, // GPCLK0
	5: {ctl: 0x78, div: 0x7c}, // GPCLK1
	6: {ctl: 0x80, div: 0x84}, // GPCLK2
}

type rwer interface {
	io.ReaderAt
	io.WriterAt
}

// Clock drives the hardware clock generators of a BCM283x SoC.
type Clock struct {
	msg *log.Logger
	mem struct {
		fd   *os.File
		clk  *mmap.Handle
		gpio *mmap.Handle
	}

	clk  rwer
	gpio rwer

	err  error
	xbuf [4]byte
}

type config struct {
	devmem string
	base   int64
}

// Option configures a Clock.
type Option func(*config)

// WithDevMem sets the memory device node to map (default /dev/mem).
func WithDevMem(name string) Option {
	return func(cfg *config) { cfg.devmem = name }
}

// WithPeriphBase sets the SoC peripheral base address
// (0x20000000 on BCM2835, 0x3f000000 on BCM2836/7, 0xfe000000 on BCM2711).
func WithPeriphBase(base int64) Option {
	return func(cfg *config) { cfg.base = base }
}

// New maps the clock manager and GPIO register blocks.
func New(opts ...Option) (*Clock, error) {
	cfg := config{
		devmem: "/dev/mem",
		base:   0x3f000000,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	fd, err := os.OpenFile(cfg.devmem, os.O_RDWR|os.O_SYNC, 0666)
	if err != nil {
		return nil, fmt.Errorf("gpclk: could not open %q: %w", cfg.devmem, err)
	}

	clkh, err := mmap.Map(fd, cfg.base+clkOffset, regSpan)
	if err != nil {
		fd.Close()
		return nil, fmt.Errorf("gpclk: could not map clock manager: %w", err)
	}

	gpioh, err := mmap.Map(fd, cfg.base+gpioOffset, regSpan)
	if err != nil {
		clkh.Close()
		fd.Close()
		return nil, fmt.Errorf("gpclk: could not map GPIO block: %w", err)
	}

	clk := newClock(clkh, gpioh)
	clk.mem.fd = fd
	clk.mem.clk = clkh
	clk.mem.gpio = gpioh
	return clk, nil
}

func newClock(clkRegs, gpioRegs rwer) *Clock {
	return &Clock{
		msg:  log.New(os.Stdout, "gpclk: ", 0),
		clk:  clkRegs,
		gpio: gpioRegs,
	}
}

// SetFrequency routes a hardware clock at hz through pin.
// Calling it again on a running clock reprograms the dividers.
func (clk *Clock) SetFrequency(pin int, hz uint32) error {
	regs, ok := gpclks[pin]
	if !ok {
		return fmt.Errorf("%w: pin %d", ErrPin, pin)
	}
	if hz == 0 {
		return fmt.Errorf("%w: 0 Hz", ErrFrequency)
	}

	src, divi, divf, err := dividers(hz)
	if err != nil {
		return err
	}

	err = clk.disable(regs.ctl)
	if err != nil {
		return err
	}

	clk.writeU32(clk.clk, regs.div, passwd|divi<<12|divf)
	clk.writeU32(clk.clk, regs.ctl, passwd|ctlMash1|src)
	clk.writeU32(clk.clk, regs.ctl, passwd|ctlMash1|src|ctlEnable)
	clk.fsel(pin, fselAlt0)
	if clk.err != nil {
		return clk.err
	}

	clk.msg.Printf("pin %d: clock at %d Hz (src=%d divi=%d divf=%d)", pin, hz, src, divi, divf)
	return nil
}

// Stop halts the clock on pin and returns the pin to an inert input.
func (clk *Clock) Stop(pin int) error {
	regs, ok := gpclks[pin]
	if !ok {
		return fmt.Errorf("%w: pin %d", ErrPin, pin)
	}

	err := clk.disable(regs.ctl)
	if err != nil {
		return err
	}

	clk.fsel(pin, 0)
	if clk.err != nil {
		return clk.err
	}

	clk.msg.Printf("pin %d: clock stopped", pin)
	return nil
}

// Frequency reports the frequency currently routed through pin,
// or 0 if the clock is stopped or the pin is not in clock mode.
func (clk *Clock) Frequency(pin int) (uint32, error) {
	regs, ok := gpclks[pin]
	if !ok {
		return 0, fmt.Errorf("%w: pin %d", ErrPin, pin)
	}

	ctl := clk.readU32(clk.clk, regs.ctl) & 0x00ffffff
	div := clk.readU32(clk.clk, regs.div) & 0x00ffffff
	sel := clk.readFsel(pin)
	if clk.err != nil {
		return 0, clk.err
	}

	if ctl&ctlEnable == 0 || sel != fselAlt0 {
		return 0, nil
	}

	var srcHz uint64
	switch ctl & 0xf {
	case srcOsc:
		srcHz = oscHz
	case srcPLLD:
		srcHz = plldHz
	default:
		return 0, nil
	}

	divi := uint64(div >> 12)
	divf := uint64(div & 0xfff)
	if divi == 0 {
		return 0, nil
	}
	return uint32(srcHz * 4096 / (divi*4096 + divf)), nil
}

// Close releases the register mappings.
func (clk *Clock) Close() error {
	if clk.mem.fd == nil {
		return nil
	}

	var (
		errClk  = clk.mem.clk.Close()
		errGpio = clk.mem.gpio.Close()
		errMem  = clk.mem.fd.Close()
	)
	clk.mem.fd = nil

	if errClk != nil {
		return fmt.Errorf("gpclk: could not unmap clock manager: %w", errClk)
	}
	if errGpio != nil {
		return fmt.Errorf("gpclk: could not unmap GPIO block: %w", errGpio)
	}
	if errMem != nil {
		return fmt.Errorf("gpclk: could not close device mem file: %w", errMem)
	}
	return nil
}

// dividers picks a clock source and integer/fractional dividers for hz.
func dividers(hz uint32) (src, divi, divf uint32, err error) {
	for _, s := range []struct {
		code uint32
		hz   uint64
	}{
		{srcPLLD, plldHz},
		{srcOsc, oscHz},
	} {
		di := s.hz / uint64(hz)
		if di < diviMin || di > diviMax {
			continue
		}
		df := (s.hz % uint64(hz)) * 4096 / uint64(hz)
		return s.code, uint32(di), uint32(df), nil
	}
	return 0, 0, 0, fmt.Errorf("%w: %d Hz not reachable from any clock source", ErrFrequency, hz)
}

// disable clears the enable bit and waits for the clock generator to
// come to rest before its dividers may be touched.
func (clk *Clock) disable(ctl int64) error {
	v := clk.readU32(clk.clk, ctl) & 0x00ffffff
	clk.writeU32(clk.clk, ctl, passwd|v&^uint32(ctlEnable))
	if clk.err != nil {
		return clk.err
	}

	const (
		poll    = 10 * time.Microsecond
		timeout = 100 * time.Millisecond
	)
	for elapsed := time.Duration(0); elapsed < timeout; elapsed += poll {
		if clk.readU32(clk.clk, ctl)&ctlBusy == 0 {
			return clk.err
		}
		time.Sleep(poll)
	}
	if clk.err != nil {
		return clk.err
	}
	return fmt.Errorf("gpclk: clock generator still busy after %v", timeout)
}

// fsel sets the 3-bit function-select field of pin.
func (clk *Clock) fsel(pin int, mode uint32) {
	var (
		off   = int64(pin/10) * 4 // GPFSELn
		shift = uint(pin%10) * 3
	)
	v := clk.readU32(clk.gpio, off)
	v &^= 0b111 << shift
	v |= mode << shift
	clk.writeU32(clk.gpio, off, v)
}

func (clk *Clock) readFsel(pin int) uint32 {
	var (
		off   = int64(pin/10) * 4
		shift = uint(pin%10) * 3
	)
	return clk.readU32(clk.gpio, off) >> shift & 0b111
}

func (clk *Clock) readU32(r io.ReaderAt, off int64) uint32 {
	if clk.err != nil {
		return 0
	}
	_, clk.err = r.ReadAt(clk.xbuf[:4], off)
	if clk.err != nil {
		clk.err = fmt.Errorf("gpclk: could not read register 0x%x: %w", off, clk.err)
		return 0
	}
	return binary.LittleEndian.Uint32(clk.xbuf[:4])
}

func (clk *Clock) writeU32(w io.WriterAt, off int64, v uint32) {
	if clk.err != nil {
		return
	}
	binary.LittleEndian.PutUint32(clk.xbuf[:4], v)
	_, clk.err = w.WriteAt(clk.xbuf[:4], off)
	if clk.err != nil {
		clk.err = fmt.Errorf("gpclk: could not write register 0x%x: %w", off, clk.err)
		return
	}
}

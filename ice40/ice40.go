// Copyright 2026 The go-sipm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ice40 programs Lattice iCE40 FPGAs over SPI in slave
// configuration mode.
package ice40 // import "github.com/go-sipm/mppc/ice40"

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/go-sipm/mppc/gpio"
	"github.com/go-sipm/mppc/spi"
)

var (
	// ErrBusy is returned when a programming attempt is already in
	// flight on the device.
	ErrBusy = errors.New("ice40: programming already in flight")
	// ErrTimeout is returned when CDONE does not assert after the
	// bitstream has been streamed.
	ErrTimeout = errors.New("ice40: CDONE did not assert")
)

// TransferError reports a bus failure while streaming the bitstream.
type TransferError struct {
	Chunk int // index of the failed chunk
	Err   error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("ice40: could not stream chunk %d: %v", e.Chunk, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// State tracks a programming attempt through the device configuration
// sequence.
type State uint8

const (
	Idle State = iota
	ResetPulse
	DummyClocking
	Streaming
	FlushClocking
	WaitDone
	Configured
	Failed
)

func (st State) String() string {
	switch st {
	case Idle:
		return "idle"
	case ResetPulse:
		return "reset-pulse"
	case DummyClocking:
		return "dummy-clocking"
	case Streaming:
		return "streaming"
	case FlushClocking:
		return "flush-clocking"
	case WaitDone:
		return "wait-done"
	case Configured:
		return "configured"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", uint8(st))
}

// iCE40 configuration timings and geometry.
const (
	chunkSize = 4096 // spidev default bufsiz

	tResetPulse  = 200 * time.Microsecond  // CRESET low hold
	tResetSettle = 1200 * time.Microsecond // internal clearing after CRESET release

	donePoll    = 1 * time.Millisecond
	doneTimeout = 1 * time.Second
)

// bus is the synchronous serial link the bitstream is streamed over.
type bus interface {
	Transfer(p []byte) error
	Close() error
}

// opin is an output control line, ipin an input one.
type opin interface {
	Write(v bool) error
	Close() error
}

type ipin interface {
	Read() (bool, error)
	Close() error
}

var (
	spiOpen = func(ch int, speed uint32) (bus, error) {
		return spi.Open(0, ch, spi.Mode0, speed)
	}
	gpioOut = func(n int) (opin, error) { return gpio.Open(n, gpio.Out) }
	gpioIn  = func(n int) (ipin, error) { return gpio.Open(n, gpio.In) }
)

type config struct {
	cs    int    // chip-select pin
	done  int    // CDONE pin
	reset int    // CRESET pin
	ch    int    // spidev channel
	speed uint32 // SPI clock, Hz

	donePoll    time.Duration
	doneTimeout time.Duration
}

// Option configures a Device.
type Option func(*config)

// WithChipSelect sets the dedicated chip-select pin.
func WithChipSelect(pin int) Option {
	return func(cfg *config) { cfg.cs = pin }
}

// WithDone sets the CDONE pin.
func WithDone(pin int) Option {
	return func(cfg *config) { cfg.done = pin }
}

// WithReset sets the CRESET pin.
func WithReset(pin int) Option {
	return func(cfg *config) { cfg.reset = pin }
}

// WithSPIChannel sets the spidev channel.
func WithSPIChannel(ch int) Option {
	return func(cfg *config) { cfg.ch = ch }
}

// WithSPIClock sets the SPI clock speed in Hz.
func WithSPIClock(hz uint32) Option {
	return func(cfg *config) { cfg.speed = hz }
}

// WithDoneTimeout sets the CDONE poll interval and the overall wait
// window.
func WithDoneTimeout(poll, timeout time.Duration) Option {
	return func(cfg *config) {
		cfg.donePoll = poll
		cfg.doneTimeout = timeout
	}
}

// Device is an iCE40 FPGA wired for SPI slave configuration: a
// dedicated chip-select line, a reset line, the CDONE status line and
// a spidev channel. The control lines are fixed at construction.
type Device struct {
	msg *log.Logger
	cfg config

	cs   opin
	rst  opin
	done ipin
	bus  bus

	mu    sync.Mutex
	state State
}

// NewDevice opens the control lines and the serial bus of an iCE40
// device and leaves chip-select and reset deasserted (high).
func NewDevice(opts ...Option) (*Device, error) {
	cfg := config{
		cs:    22,
		done:  23,
		reset: 24,
		ch:    0,
		speed: 4000000,

		donePoll:    donePoll,
		doneTimeout: doneTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	dev := &Device{
		msg:   log.New(os.Stdout, "ice40: ", 0),
		cfg:   cfg,
		state: Idle,
	}

	var err error
	defer func() {
		if err != nil {
			_ = dev.Close()
		}
	}()

	dev.cs, err = gpioOut(cfg.cs)
	if err != nil {
		return nil, fmt.Errorf("ice40: could not open chip-select pin: %w", err)
	}
	dev.rst, err = gpioOut(cfg.reset)
	if err != nil {
		return nil, fmt.Errorf("ice40: could not open reset pin: %w", err)
	}
	dev.done, err = gpioIn(cfg.done)
	if err != nil {
		return nil, fmt.Errorf("ice40: could not open CDONE pin: %w", err)
	}
	dev.bus, err = spiOpen(cfg.ch, cfg.speed)
	if err != nil {
		return nil, fmt.Errorf("ice40: could not open SPI channel %d: %w", cfg.ch, err)
	}

	err = dev.cs.Write(true)
	if err != nil {
		return nil, fmt.Errorf("ice40: could not deassert chip-select: %w", err)
	}
	err = dev.rst.Write(true)
	if err != nil {
		return nil, fmt.Errorf("ice40: could not deassert reset: %w", err)
	}

	return dev, nil
}

// State returns the state of the last programming attempt.
func (dev *Device) State() State {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.state
}

func (dev *Device) setState(st State) {
	dev.state = st
}

// Program streams img into the device and waits for CDONE.
// A failed attempt leaves chip-select deasserted; the caller decides
// whether to retry, starting again from Load/Program.
func (dev *Device) Program(img Bitstream) error {
	if len(img) == 0 {
		return fmt.Errorf("ice40: empty bitstream")
	}
	if len(img) > MaxSize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrTooBig, len(img), MaxSize)
	}

	if !dev.mu.TryLock() {
		return ErrBusy
	}
	defer dev.mu.Unlock()

	err := dev.program(img)
	if err != nil {
		dev.setState(Failed)
		return err
	}

	dev.setState(Configured)
	dev.msg.Printf("CDONE=1 (configuration successful)")
	return nil
}

func (dev *Device) program(img Bitstream) error {
	dev.msg.Printf("programming %d bytes...", len(img))

	err := dev.resetPulse()
	if err != nil {
		return err
	}

	// 8 dummy clocks with chip-select high: the device wants a
	// warm-up byte before it accepts configuration data.
	dev.setState(DummyClocking)
	err = dev.bus.Transfer(make([]byte, 1))
	if err != nil {
		return fmt.Errorf("ice40: could not send dummy clocks: %w", err)
	}

	err = dev.stream(img)
	if err != nil {
		return err
	}

	// 16 extra clocks to let the device latch the final bits and
	// start up.
	dev.setState(FlushClocking)
	err = dev.bus.Transfer(make([]byte, 2))
	if err != nil {
		return fmt.Errorf("ice40: could not send flush clocks: %w", err)
	}

	dev.setState(WaitDone)
	ok, err := waitHigh(dev.done, dev.cfg.donePoll, dev.cfg.doneTimeout)
	if err != nil {
		return fmt.Errorf("ice40: could not poll CDONE: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w after %v", ErrTimeout, dev.cfg.doneTimeout)
	}

	return nil
}

// resetPulse replays the power-on sequence: chip-select and reset low,
// reset released, then chip-select released.
func (dev *Device) resetPulse() error {
	dev.setState(ResetPulse)

	err := dev.cs.Write(false)
	if err != nil {
		return fmt.Errorf("ice40: could not assert chip-select: %w", err)
	}
	err = dev.rst.Write(false)
	if err != nil {
		dev.deassertCS()
		return fmt.Errorf("ice40: could not assert reset: %w", err)
	}
	time.Sleep(tResetPulse)

	err = dev.rst.Write(true)
	if err != nil {
		dev.deassertCS()
		return fmt.Errorf("ice40: could not release reset: %w", err)
	}
	time.Sleep(tResetSettle)

	err = dev.cs.Write(true)
	if err != nil {
		return fmt.Errorf("ice40: could not release chip-select: %w", err)
	}
	return nil
}

// stream sends img over the bus in bounded chunks with chip-select
// asserted. Chip-select is deasserted on every exit path.
func (dev *Device) stream(img Bitstream) error {
	dev.setState(Streaming)

	err := dev.cs.Write(false)
	if err != nil {
		return fmt.Errorf("ice40: could not assert chip-select: %w", err)
	}

	buf := make([]byte, chunkSize)
	for i, sent := 0, 0; sent < len(img); i++ {
		n := copy(buf, img[sent:])
		err = dev.bus.Transfer(buf[:n])
		if err != nil {
			dev.deassertCS()
			return &TransferError{Chunk: i, Err: err}
		}
		sent += n
	}

	err = dev.cs.Write(true)
	if err != nil {
		return fmt.Errorf("ice40: could not release chip-select: %w", err)
	}
	return nil
}

func (dev *Device) deassertCS() {
	err := dev.cs.Write(true)
	if err != nil {
		dev.msg.Printf("could not release chip-select: %+v", err)
	}
}

// Close releases the control lines and the bus.
func (dev *Device) Close() error {
	var errs []error
	for _, c := range []interface{ Close() error }{
		dev.cs, dev.rst, dev.done, dev.bus,
	} {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	dev.cs, dev.rst, dev.done, dev.bus = nil, nil, nil, nil

	if len(errs) > 0 {
		return fmt.Errorf("ice40: could not close device: %v", errs[0])
	}
	return nil
}

// waitHigh polls p every poll until it reads high or timeout elapses.
// It reports whether the line asserted within the window.
func waitHigh(p ipin, poll, timeout time.Duration) (bool, error) {
	for elapsed := time.Duration(0); elapsed < timeout; elapsed += poll {
		v, err := p.Read()
		if err != nil {
			return false, err
		}
		if v {
			return true, nil
		}
		time.Sleep(poll)
	}

	v, err := p.Read()
	if err != nil {
		return false, err
	}
	return v, nil
}

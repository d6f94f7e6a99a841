// Copyright 2026 The go-sipm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dac programs the DACx578 octal DAC that sets the low side of
// the MPPC bias voltage.
package dac // import "github.com/go-sipm/mppc/dac"

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/go-daq/smbus"
)

var (
	// ErrChannel is returned for a channel outside 0..7.
	ErrChannel = errors.New("dac: invalid channel")
	// ErrCode is returned for a code outside the 10-bit range.
	ErrCode = errors.New("dac: invalid code")
)

// HighSide is the fixed high side of the bias supply, in volts.
const HighSide = 57.0

// Calibration of the DAC pin voltage against the 10-bit code, from a
// 20-point measurement of the reference board:
//
//	Vlow = vOff + vSpan*(code/1023)
const (
	vOff  = -0.0226786515445685
	vSpan = 2.3527073030891374
)

const (
	// write-and-update command, low nibble selects the channel.
	cmdWriteUpdate = 0x30
	// power-on configuration: external reference, gain 1.
	cmdConfig = 0x10
)

// conn is the I2C link to the DAC.
type conn interface {
	Write(p []byte) (n int, err error)
	Close() error
}

var smbusOpen = func(bus int, addr uint8) (conn, error) {
	return smbus.Open(bus, addr)
}

type config struct {
	bus  int
	addr uint8
}

// Option configures a Device.
type Option func(*config)

// WithBus selects the i2c-dev bus number.
func WithBus(bus int) Option {
	return func(cfg *config) { cfg.bus = bus }
}

// WithAddr sets the I2C address of the DAC.
func WithAddr(addr uint8) Option {
	return func(cfg *config) { cfg.addr = addr }
}

// Device is a DACx578 on an I2C bus.
type Device struct {
	msg  *log.Logger
	conn conn
}

// New opens the I2C link to the DAC and applies the power-on
// configuration.
func New(opts ...Option) (*Device, error) {
	cfg := config{
		bus:  1,
		addr: 0x47,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	c, err := smbusOpen(cfg.bus, cfg.addr)
	if err != nil {
		return nil, fmt.Errorf("dac: could not open i2c bus %d (addr 0x%x): %w",
			cfg.bus, cfg.addr, err,
		)
	}

	dev := &Device{
		msg:  log.New(os.Stdout, "dac: ", 0),
		conn: c,
	}

	_, err = dev.conn.Write([]byte{cmdConfig, 0x00})
	if err != nil {
		_ = dev.Close()
		return nil, fmt.Errorf("dac: could not configure device: %w", err)
	}

	return dev, nil
}

// SetChannel writes code to channel ch and updates its output.
func (dev *Device) SetChannel(ch, code int) error {
	if ch < 0 || ch > 7 {
		return fmt.Errorf("%w: %d (must be 0..7)", ErrChannel, ch)
	}
	if code < 0 || code > 1023 {
		return fmt.Errorf("%w: %d (must be 0..1023)", ErrCode, code)
	}

	v := scale16(code)
	_, err := dev.conn.Write([]byte{
		cmdWriteUpdate | uint8(ch),
		uint8(v >> 8),
		uint8(v & 0xff),
	})
	if err != nil {
		return fmt.Errorf("dac: could not set channel %d: %w", ch, err)
	}
	return nil
}

// Close releases the I2C link.
func (dev *Device) Close() error {
	if dev.conn == nil {
		return nil
	}
	err := dev.conn.Close()
	dev.conn = nil
	if err != nil {
		return fmt.Errorf("dac: could not close device: %w", err)
	}
	return nil
}

// scale16 maps a 10-bit code to the 16-bit register value, rounding to
// nearest.
func scale16(code int) uint16 {
	return uint16((2*code*65535 + 1023) / (2 * 1023))
}

// Vlow returns the calibrated DAC pin voltage for code.
func Vlow(code int) float64 {
	v := vOff + vSpan*float64(code)/1023
	if v < 0 {
		return 0
	}
	return v
}

// Bias returns the effective bias across the MPPC for code.
func Bias(code int) float64 {
	return HighSide - Vlow(code)
}

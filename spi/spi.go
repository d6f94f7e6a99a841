// Copyright 2026 The go-sipm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package spi gives full-duplex access to Linux spidev devices.
package spi // import "github.com/go-sipm/mppc/spi"

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Mode is the SPI clock polarity/phase mode.
type Mode uint8

const (
	Mode0 Mode = 0 // clock idle low, sample on rising edge
	Mode1 Mode = 1
	Mode2 Mode = 2
	Mode3 Mode = 3
)

// spidev ioctl requests, magic 'k'.
const (
	iocWrMode        = 0x40016b01 // _IOW('k', 1, u8)
	iocWrBitsPerWord = 0x40016b03 // _IOW('k', 3, u8)
	iocWrMaxSpeedHz  = 0x40046b04 // _IOW('k', 4, u32)
	iocMessage1      = 0x40206b00 // _IOW('k', 0, struct spi_ioc_transfer[1])
)

// xfer mirrors struct spi_ioc_transfer from <linux/spi/spidev.h>.
type xfer struct {
	txBuf       uint64
	rxBuf       uint64
	len         uint32
	speedHz     uint32
	delayUsecs  uint16
	bitsPerWord uint8
	csChange    uint8
	txNbits     uint8
	rxNbits     uint8
	wordDelay   uint8
	pad         uint8
}

var ioctl = ioctlImpl

func ioctlImpl(fd uintptr, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// Device is an open spidev channel.
type Device struct {
	f     *os.File
	mode  Mode
	speed uint32
}

// Open opens /dev/spidev<bus>.<cs> and configures its mode and clock
// speed. Words are always 8 bits.
func Open(bus, cs int, mode Mode, speed uint32) (*Device, error) {
	name := fmt.Sprintf("/dev/spidev%d.%d", bus, cs)
	f, err := os.OpenFile(name, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("spi: could not open %q: %w", name, err)
	}

	dev := &Device{f: f, mode: mode, speed: speed}
	err = dev.setup()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("spi: could not setup %q: %w", name, err)
	}

	return dev, nil
}

func (dev *Device) setup() error {
	var (
		mode = uint8(dev.mode)
		bits = uint8(8)
	)

	err := ioctl(dev.f.Fd(), iocWrMode, unsafe.Pointer(&mode))
	if err != nil {
		return fmt.Errorf("could not set mode %d: %w", mode, err)
	}

	err = ioctl(dev.f.Fd(), iocWrBitsPerWord, unsafe.Pointer(&bits))
	if err != nil {
		return fmt.Errorf("could not set bits-per-word: %w", err)
	}

	err = ioctl(dev.f.Fd(), iocWrMaxSpeedHz, unsafe.Pointer(&dev.speed))
	if err != nil {
		return fmt.Errorf("could not set clock speed %d: %w", dev.speed, err)
	}

	return nil
}

// Transfer clocks the bytes of p out on MOSI and replaces them in
// place with the bytes sampled on MISO.
func (dev *Device) Transfer(p []byte) error {
	if len(p) == 0 {
		return nil
	}

	tr := xfer{
		txBuf:       uint64(uintptr(unsafe.Pointer(&p[0]))),
		rxBuf:       uint64(uintptr(unsafe.Pointer(&p[0]))),
		len:         uint32(len(p)),
		speedHz:     dev.speed,
		bitsPerWord: 8,
	}

	err := ioctl(dev.f.Fd(), iocMessage1, unsafe.Pointer(&tr))
	if err != nil {
		return fmt.Errorf("spi: could not transfer %d bytes: %w", len(p), err)
	}
	return nil
}

// Close releases the device.
func (dev *Device) Close() error {
	if dev.f == nil {
		return nil
	}
	err := dev.f.Close()
	dev.f = nil
	if err != nil {
		return fmt.Errorf("spi: could not close device: %w", err)
	}
	return nil
}

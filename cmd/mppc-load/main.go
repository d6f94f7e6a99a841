// Copyright 2026 The go-sipm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command mppc-load configures the iCE40 FPGA of the telescope with a
// bitstream file.
package main // import "github.com/go-sipm/mppc/cmd/mppc-load"

import (
	"flag"
	"fmt"
	"log"

	"github.com/go-sipm/mppc/gpclk"
	"github.com/go-sipm/mppc/ice40"
)

func main() {
	var (
		fw    = flag.String("fw", "", "path to the bitstream file (required)")
		cs    = flag.Int("cs", 22, "chip-select GPIO")
		done  = flag.Int("done", 23, "CDONE GPIO")
		reset = flag.Int("reset", 24, "CRESET GPIO")
		ch    = flag.Int("spi", 0, "spidev channel")
		speed = flag.Uint("speed", 4000000, "SPI clock (Hz)")
		ref   = flag.Uint("ref", 9600000, "FPGA reference clock on GPCLK0 (Hz), 0 to skip")
		mem   = flag.String("mem", "/dev/mem", "memory device to map")
	)

	log.SetPrefix("mppc-load: ")
	log.SetFlags(0)

	flag.Parse()

	if *fw == "" {
		log.Fatalf("missing path to bitstream file (-fw)")
	}

	err := run(*fw, *cs, *done, *reset, *ch, uint32(*speed), uint32(*ref), *mem)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(fw string, cs, done, reset, ch int, speed, ref uint32, mem string) error {
	if ref != 0 {
		err := refClock(ref, mem)
		if err != nil {
			return err
		}
	}

	img, err := ice40.Load(fw)
	if err != nil {
		return fmt.Errorf("could not load bitstream: %w", err)
	}

	dev, err := ice40.NewDevice(
		ice40.WithChipSelect(cs),
		ice40.WithDone(done),
		ice40.WithReset(reset),
		ice40.WithSPIChannel(ch),
		ice40.WithSPIClock(speed),
	)
	if err != nil {
		return fmt.Errorf("could not open FPGA device: %w", err)
	}
	defer dev.Close()

	err = dev.Program(img)
	if err != nil {
		return fmt.Errorf("could not program FPGA: %w", err)
	}
	return nil
}

// refClock routes the FPGA reference clock through GPCLK0 before
// configuration starts.
func refClock(hz uint32, mem string) error {
	clk, err := gpclk.New(gpclk.WithDevMem(mem))
	if err != nil {
		return fmt.Errorf("could not map clock registers: %w", err)
	}
	defer clk.Close()

	err = clk.SetFrequency(4, hz)
	if err != nil {
		return fmt.Errorf("could not set reference clock: %w", err)
	}
	return nil
}

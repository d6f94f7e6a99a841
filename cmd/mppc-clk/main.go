// Copyright 2026 The go-sipm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command mppc-clk routes a hardware clock through a GPCLK pin, or
// stops it.
package main // import "github.com/go-sipm/mppc/cmd/mppc-clk"

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/go-sipm/mppc/gpclk"
)

func main() {
	var (
		pin  = flag.Int("gpio", 4, "GPCLK pin to drive (4, 5 or 6)")
		mem  = flag.String("mem", "/dev/mem", "memory device to map")
		base = flag.Int64("base", 0x3f000000, "SoC peripheral base address")
	)

	log.SetPrefix("mppc-clk: ")
	log.SetFlags(0)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: mppc-clk [OPTIONS] <frequency-hz|off>

ex:
 $> mppc-clk 9600000
 $> mppc-clk -gpio=5 32768
 $> mppc-clk off

options:
`)
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}

	var (
		off bool
		hz  uint64
		err error
	)
	switch arg := flag.Arg(0); arg {
	case "off":
		off = true
	default:
		hz, err = strconv.ParseUint(arg, 10, 32)
		if err != nil || hz == 0 {
			flag.Usage()
			os.Exit(1)
		}
	}

	err = run(*pin, uint32(hz), off, *mem, *base)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(pin int, hz uint32, off bool, mem string, base int64) error {
	clk, err := gpclk.New(
		gpclk.WithDevMem(mem),
		gpclk.WithPeriphBase(base),
	)
	if err != nil {
		return fmt.Errorf("could not map clock registers: %w", err)
	}
	defer clk.Close()

	if off {
		return clk.Stop(pin)
	}
	return clk.SetFrequency(pin, hz)
}

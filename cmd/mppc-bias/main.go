// Copyright 2026 The go-sipm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command mppc-bias sets one channel of the bias DAC and prints the
// resulting voltages.
package main // import "github.com/go-sipm/mppc/cmd/mppc-bias"

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/go-sipm/mppc/dac"
)

func main() {
	var (
		bus  = flag.Int("bus", 1, "i2c-dev bus number")
		addr = flag.Uint("addr", 0x47, "I2C address of the DAC")
	)

	log.SetPrefix("mppc-bias: ")
	log.SetFlags(0)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: mppc-bias [OPTIONS] <channel 0..7> <code 0..1023 or 0x000..0x3FF>

ex:
 $> mppc-bias 0 0x23A
 $> mppc-bias 3 672

options:
`)
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(1)
	}

	ch, err := strconv.ParseInt(flag.Arg(0), 0, 32)
	if err != nil || ch < 0 || ch > 7 {
		log.Printf("channel must be 0..7")
		os.Exit(2)
	}

	code, err := strconv.ParseInt(flag.Arg(1), 0, 32)
	if err != nil || code < 0 || code > 1023 {
		log.Printf("code must be 0..1023 or 0x000..0x3FF")
		os.Exit(3)
	}

	err = run(int(ch), int(code), *bus, uint8(*addr))
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(ch, code, bus int, addr uint8) error {
	dev, err := dac.New(dac.WithBus(bus), dac.WithAddr(addr))
	if err != nil {
		return fmt.Errorf("could not open DAC: %w", err)
	}
	defer dev.Close()

	err = dev.SetChannel(ch, code)
	if err != nil {
		return fmt.Errorf("could not set channel %d: %w", ch, err)
	}

	fmt.Printf("High voltage: %.2f V\n", dac.HighSide)
	fmt.Printf("DAC output: %.2f V\n", dac.Vlow(code))
	fmt.Printf("Effective bias: %.2f V\n", dac.Bias(code))
	return nil
}

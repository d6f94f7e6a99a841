// Copyright 2026 The go-sipm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command mppc-daq counts the coincidence-unit pulses and appends one
// row of counts per interval to a log file.
package main // import "github.com/go-sipm/mppc/cmd/mppc-daq"

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"golang.org/x/sys/unix"

	"github.com/go-sipm/mppc/coinc"
)

func main() {
	var (
		cfgFile  = flag.String("cfg", "", "channel-map YAML file (default: built-in telescope map)")
		interval = flag.Duration("interval", 60*time.Second, "flush interval")
	)

	log.SetPrefix("mppc-daq: ")
	log.SetFlags(0)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: mppc-daq [OPTIONS] <logfile>

ex:
 $> mppc-daq /home/pi/data/counts.txt
 $> mppc-daq -cfg=channels.yml -interval=10s counts.txt

options:
`)
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, unix.SIGTERM,
	)
	defer stop()

	err := run(ctx, *cfgFile, flag.Arg(0), *interval)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(ctx context.Context, cfgFile, logFile string, interval time.Duration) error {
	cfg := coinc.DefaultConfig()
	if cfgFile != "" {
		var err error
		cfg, err = coinc.LoadConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("could not load channel map: %w", err)
		}
	}

	daq, err := coinc.NewDaemon(cfg, logFile, coinc.WithInterval(interval))
	if err != nil {
		return fmt.Errorf("could not create daemon: %w", err)
	}
	defer daq.Close()

	return daq.Run(ctx)
}

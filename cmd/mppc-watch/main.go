// Copyright 2026 The go-sipm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command mppc-watch monitors the counter log file of a running
// telescope and sends a mail alert when it stops growing.
package main // import "github.com/go-sipm/mppc/cmd/mppc-watch"

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
	mail "gopkg.in/gomail.v2"
)

func main() {
	var (
		fname = flag.String("log", "", "counter log file to monitor (required)")
		freq  = flag.Duration("freq", 90*time.Second, "probing interval")
	)

	log.SetPrefix("mppc-watch: ")
	log.SetFlags(0)

	flag.Parse()

	if *fname == "" {
		log.Fatalf("missing log file to monitor (-log)")
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, unix.SIGTERM,
	)
	defer stop()

	run(ctx, *fname, *freq)
}

func run(ctx context.Context, fname string, freq time.Duration) {
	log.Printf("monitoring %q every %v...", fname, freq)

	var (
		mon  = &monitor{fname: fname, freq: freq, mail: alertMail}
		tick = time.NewTicker(freq)
	)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("stopped")
			return
		case <-tick.C:
			err := mon.probe()
			if err != nil {
				log.Printf("could not probe %q: %+v", fname, err)
			}
		}
	}
}

// monitor tracks the size of the counter log between probes. The daq
// appends one row per interval, so a file that does not grow means the
// acquisition died.
type monitor struct {
	fname string
	freq  time.Duration
	mail  func(fname string, size int64, freq time.Duration)

	last   int64
	seen   bool
	alerts int
}

const maxAlerts = 5

func (mon *monitor) probe() error {
	fi, err := os.Stat(mon.fname)
	if err != nil {
		return err
	}
	size := fi.Size()

	defer func() {
		mon.last = size
		mon.seen = true
	}()

	if !mon.seen || size != mon.last {
		mon.alerts = 0
		return nil
	}

	log.Printf("file %q didn't change in the last %v (size=%d bytes)",
		mon.fname, mon.freq, size,
	)
	mon.alerts++
	if mon.alerts < maxAlerts {
		mon.mail(mon.fname, size, mon.freq)
	}
	return nil
}

var (
	alertMailUsr  = os.Getenv("MAIL_USERNAME")
	alertMailPwd  = os.Getenv("MAIL_PASSWORD")
	alertMailSrv  = os.Getenv("MAIL_SERVER")
	alertMailPort = atoi(os.Getenv("MAIL_PORT"))
	alertMailTgts = strings.Split(os.Getenv("MAIL_TGTS"), ",")
)

func alertMail(fname string, size int64, freq time.Duration) {
	if alertMailUsr == "" || alertMailPwd == "" ||
		alertMailSrv == "" || alertMailPort == 0 ||
		len(alertMailTgts) == 0 {
		log.Printf("could not send mail alert: missing credentials")
		return
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", alertMailUsr)
	msg.SetHeader("Bcc", alertMailTgts...)
	msg.SetHeader("Subject", fmt.Sprintf("[mppc-watch] file alert: %q", fname))
	msg.SetBody("text/plain", fmt.Sprintf("file: %q\nsize: %d bytes\nfreq: %v",
		fname, size, freq,
	))

	dial := mail.NewDialer(alertMailSrv, alertMailPort, alertMailUsr, alertMailPwd)
	dial.TLSConfig = &tls.Config{
		InsecureSkipVerify: true,
	}
	err := dial.DialAndSend(msg)
	if err != nil {
		log.Printf("could not send mail alert: %+v", err)
	}
}

func atoi(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}

// Copyright 2026 The go-sipm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package coinc

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/go-sipm/mppc/gpio"
)

// Line is an edge-armed digital input the daemon watches for pulses.
type Line interface {
	Wait(timeout time.Duration) (bool, error)
	Close() error
}

// openLine is substituted in tests.
var openLine = func(n int) (Line, error) {
	p, err := gpio.Open(n, gpio.In)
	if err != nil {
		return nil, err
	}
	err = p.SetEdge(gpio.EdgeRising)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	return p, nil
}

type dconfig struct {
	interval time.Duration // flush period
	poll     time.Duration // per-line wait bound
	display  io.Writer
}

// Option configures a Daemon.
type Option func(*dconfig)

// WithInterval sets the flush period.
func WithInterval(d time.Duration) Option {
	return func(cfg *dconfig) { cfg.interval = d }
}

// WithPoll bounds each edge wait, so watchers notice cancellation.
func WithPoll(d time.Duration) Option {
	return func(cfg *dconfig) { cfg.poll = d }
}

// WithDisplay sets the writer count rows are echoed to, besides the
// log file. Default is os.Stdout.
func WithDisplay(w io.Writer) Option {
	return func(cfg *dconfig) { cfg.display = w }
}

// Daemon watches the coincidence-unit outputs and appends one row of
// counts per flush interval to a log file.
type Daemon struct {
	msg *log.Logger
	cfg dconfig

	bank  *Bank
	lines []Line
	fname string
}

// NewDaemon opens the configured lines, rising-edge armed, and binds
// them to a fresh counter bank. Rows are appended to fname.
func NewDaemon(cfg Config, fname string, opts ...Option) (*Daemon, error) {
	err := cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("coinc: invalid config: %w", err)
	}

	dcfg := dconfig{
		interval: 60 * time.Second,
		poll:     500 * time.Millisecond,
		display:  os.Stdout,
	}
	for _, opt := range opts {
		opt(&dcfg)
	}

	d := &Daemon{
		msg:   log.New(os.Stdout, "coinc: ", 0),
		cfg:   dcfg,
		bank:  NewBank(cfg.names()),
		fname: fname,
	}

	for _, ch := range cfg.Channels {
		line, err := openLine(ch.GPIO)
		if err != nil {
			_ = d.Close()
			return nil, fmt.Errorf("coinc: could not open channel %q (gpio %d): %w",
				ch.Name, ch.GPIO, err,
			)
		}
		d.lines = append(d.lines, line)
	}

	return d, nil
}

// Bank returns the counter bank of the daemon.
func (d *Daemon) Bank() *Bank { return d.bank }

// Run counts pulses until ctx is cancelled, flushing a row of counts
// every interval. Cancellation drains the partial interval into a
// final row before Run returns.
func (d *Daemon) Run(ctx context.Context) error {
	d.msg.Printf("monitoring %d channels, flushing every %v to %q",
		len(d.lines), d.cfg.interval, d.fname,
	)

	grp, ctx := errgroup.WithContext(ctx)
	for i := range d.lines {
		slot := i
		line := d.lines[i]
		grp.Go(func() error { return d.watch(ctx, slot, line) })
	}
	grp.Go(func() error {
		tick := time.NewTicker(d.cfg.interval)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				d.flush(time.Now())
				return nil
			case now := <-tick.C:
				d.flush(now)
			}
		}
	})

	err := grp.Wait()
	if err != nil {
		return err
	}

	d.msg.Printf("stopped")
	return nil
}

func (d *Daemon) watch(ctx context.Context, slot int, line Line) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		fired, err := line.Wait(d.cfg.poll)
		if err != nil {
			return fmt.Errorf("coinc: could not wait on channel %q: %w",
				d.bank.Name(slot), err,
			)
		}
		if fired {
			d.bank.Inc(slot)
		}
	}
}

// flush drains the bank and writes one row to the display and the log
// file. A file error is logged and does not stop the daemon: the next
// interval retries with a fresh open.
func (d *Daemon) flush(now time.Time) {
	row := formatRow(d.bank.Drain(), now)

	fmt.Fprint(d.cfg.display, row)

	err := appendRow(d.fname, row)
	if err != nil {
		d.msg.Printf("could not append to %q: %+v", d.fname, err)
	}
}

// Close releases the GPIO lines.
func (d *Daemon) Close() error {
	var err error
	for _, line := range d.lines {
		if e := line.Close(); e != nil && err == nil {
			err = e
		}
	}
	d.lines = nil
	if err != nil {
		return fmt.Errorf("coinc: could not close lines: %w", err)
	}
	return nil
}

// formatRow renders counts as "c0, c1, ..., cN, <timestamp>\n" with an
// ANSI C asctime-style timestamp.
func formatRow(cnts []uint64, now time.Time) string {
	var o strings.Builder
	for _, c := range cnts {
		o.WriteString(strconv.FormatUint(c, 10))
		o.WriteString(", ")
	}
	o.WriteString(now.Format(time.ANSIC))
	o.WriteString("\n")
	return o.String()
}

func appendRow(fname, row string) error {
	f, err := os.OpenFile(fname, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	_, err = f.WriteString(row)
	if err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

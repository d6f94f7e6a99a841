// Copyright 2026 The go-sipm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gpio drives Raspberry Pi digital lines through the sysfs
// GPIO interface.
package gpio // import "github.com/go-sipm/mppc/gpio"

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/sys/unix"
)

// root is the sysfs GPIO class directory.
// It is a variable so tests may point it at a scratch tree.
var root = "/sys/class/gpio"

// Dir is the direction of a digital line.
type Dir string

const (
	In  Dir = "in"
	Out Dir = "out"
)

// Edge selects which signal transitions raise an interrupt on a line.
type Edge string

const (
	EdgeNone    Edge = "none"
	EdgeRising  Edge = "rising"
	EdgeFalling Edge = "falling"
	EdgeBoth    Edge = "both"
)

// Pin is an exported sysfs GPIO line, identified by its Broadcom number.
type Pin struct {
	n   int
	dir string   // sysfs directory of the exported line
	val *os.File // value attribute, kept open for level access and poll
}

// Open exports the line n and configures its direction.
func Open(n int, dir Dir) (*Pin, error) {
	err := export(n)
	if err != nil {
		return nil, fmt.Errorf("gpio: could not export pin %d: %w", n, err)
	}

	p := &Pin{
		n:   n,
		dir: filepath.Join(root, fmt.Sprintf("gpio%d", n)),
	}

	err = p.write("direction", string(dir))
	if err != nil {
		return nil, fmt.Errorf("gpio: could not set direction of pin %d: %w", n, err)
	}

	p.val, err = openAttr(filepath.Join(p.dir, "value"))
	if err != nil {
		return nil, fmt.Errorf("gpio: could not open value of pin %d: %w", n, err)
	}

	return p, nil
}

// N returns the Broadcom number of the line.
func (p *Pin) N() int { return p.n }

// Write drives the line high (true) or low (false).
func (p *Pin) Write(v bool) error {
	c := []byte("0")
	if v {
		c = []byte("1")
	}
	_, err := p.val.WriteAt(c, 0)
	if err != nil {
		return fmt.Errorf("gpio: could not write pin %d: %w", p.n, err)
	}
	return nil
}

// Read samples the line level.
func (p *Pin) Read() (bool, error) {
	var buf [1]byte
	_, err := p.val.ReadAt(buf[:], 0)
	if err != nil {
		return false, fmt.Errorf("gpio: could not read pin %d: %w", p.n, err)
	}
	return buf[0] == '1', nil
}

// SetEdge selects the transitions that make Wait return.
func (p *Pin) SetEdge(e Edge) error {
	err := p.write("edge", string(e))
	if err != nil {
		return fmt.Errorf("gpio: could not set edge of pin %d: %w", p.n, err)
	}
	// clear any interrupt latched before the edge was armed.
	_, _ = p.Read()
	return nil
}

// Wait blocks until an armed edge fires on the line or the timeout
// expires. It reports whether an edge fired. A negative timeout blocks
// indefinitely.
func (p *Pin) Wait(timeout time.Duration) (bool, error) {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout.Milliseconds())
	}

	fds := []unix.PollFd{{
		Fd:     int32(p.val.Fd()),
		Events: unix.POLLPRI | unix.POLLERR,
	}}

	n, err := unix.Poll(fds, ms)
	switch {
	case err == unix.EINTR:
		return false, nil
	case err != nil:
		return false, fmt.Errorf("gpio: could not poll pin %d: %w", p.n, err)
	case n == 0:
		return false, nil
	}

	// consume the interrupt.
	_, err = p.Read()
	if err != nil {
		return false, err
	}
	return true, nil
}

// Close releases the value descriptor and unexports the line.
func (p *Pin) Close() error {
	if p.val == nil {
		return nil
	}
	err := p.val.Close()
	p.val = nil
	if err != nil {
		return fmt.Errorf("gpio: could not close pin %d: %w", p.n, err)
	}

	err = os.WriteFile(filepath.Join(root, "unexport"), []byte(strconv.Itoa(p.n)), 0200)
	if err != nil {
		return fmt.Errorf("gpio: could not unexport pin %d: %w", p.n, err)
	}
	return nil
}

func (p *Pin) write(attr, v string) error {
	f, err := openAttr(filepath.Join(p.dir, attr))
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.WriteString(v)
	return err
}

func export(n int) error {
	err := os.WriteFile(filepath.Join(root, "export"), []byte(strconv.Itoa(n)), 0200)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.EBUSY):
		// already exported.
		return nil
	default:
		return err
	}
}

// openAttr opens a sysfs attribute, waiting out the short window after
// export during which udev has not yet fixed up permissions.
func openAttr(name string) (*os.File, error) {
	const timeout = 1 * time.Second

	var (
		f   *os.File
		err error
		sl  = 10 * time.Millisecond
	)
	for tout := time.Duration(0); tout < timeout; tout += sl {
		f, err = os.OpenFile(name, os.O_RDWR, 0)
		if err == nil || !os.IsPermission(err) {
			break
		}
		time.Sleep(sl)
	}
	return f, err
}

// Copyright 2026 The go-sipm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package coinc counts pulses from a coincidence unit and periodically
// flushes the counts to a log file.
package coinc // import "github.com/go-sipm/mppc/coinc"

import (
	"sync/atomic"
)

// Bank is a fixed set of named event counters. Increments and drains
// are atomic per slot, so watcher goroutines never lose an update to a
// concurrent flush.
type Bank struct {
	names []string
	cnts  []atomic.Uint64
}

// NewBank creates a bank with one zeroed counter per name.
func NewBank(names []string) *Bank {
	return &Bank{
		names: append([]string(nil), names...),
		cnts:  make([]atomic.Uint64, len(names)),
	}
}

// Len returns the number of slots in the bank.
func (b *Bank) Len() int { return len(b.cnts) }

// Name returns the name of slot i.
func (b *Bank) Name(i int) string { return b.names[i] }

// Names returns the slot names, in slot order.
func (b *Bank) Names() []string {
	return append([]string(nil), b.names...)
}

// Inc increments the counter of slot i.
func (b *Bank) Inc(i int) {
	b.cnts[i].Add(1)
}

// Drain returns the current counts and resets every slot to zero.
// An update racing with Drain lands in exactly one of the two
// intervals, never in both and never in neither.
func (b *Bank) Drain() []uint64 {
	cnts := make([]uint64, len(b.cnts))
	for i := range b.cnts {
		cnts[i] = b.cnts[i].Swap(0)
	}
	return cnts
}

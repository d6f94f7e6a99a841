// Copyright 2026 The go-sipm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ice40

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// MaxSize is the largest bitstream the configuration protocol can
// describe: its length field is 16 bits wide.
const MaxSize = 1<<16 - 1

// ErrTooBig is returned for a bitstream that does not fit the
// protocol's length field. Oversized images are rejected outright,
// never truncated.
var ErrTooBig = errors.New("ice40: bitstream too big")

// Bitstream is a raw iCE40 configuration image.
type Bitstream []byte

// Load reads a whole bitstream file into memory.
func Load(name string) (Bitstream, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("ice40: could not read bitstream %q: %w", name, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("ice40: empty bitstream %q: %w", name, io.ErrUnexpectedEOF)
	}
	if len(data) > MaxSize {
		return nil, fmt.Errorf("%w: %q is %d bytes (max %d)", ErrTooBig, name, len(data), MaxSize)
	}
	return Bitstream(data), nil
}

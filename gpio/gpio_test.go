// Copyright 2026 The go-sipm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gpio

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

// fakeSysfs builds a scratch tree that mimics an already-exported line.
func fakeSysfs(t *testing.T, n int) string {
	t.Helper()

	dir := t.TempDir()
	for _, name := range []string{"export", "unexport"} {
		err := os.WriteFile(filepath.Join(dir, name), nil, 0644)
		if err != nil {
			t.Fatalf("could not create %s: %+v", name, err)
		}
	}

	pdir := filepath.Join(dir, "gpio"+strconv.Itoa(n))
	err := os.MkdirAll(pdir, 0755)
	if err != nil {
		t.Fatalf("could not create pin dir: %+v", err)
	}
	for name, v := range map[string]string{
		"direction": "in",
		"value":     "0",
		"edge":      "none",
	} {
		err := os.WriteFile(filepath.Join(pdir, name), []byte(v), 0644)
		if err != nil {
			t.Fatalf("could not create %s: %+v", name, err)
		}
	}
	return dir
}

func TestPin(t *testing.T) {
	old := root
	defer func() { root = old }()
	root = fakeSysfs(t, 4)

	p, err := Open(4, Out)
	if err != nil {
		t.Fatalf("could not open pin: %+v", err)
	}
	defer p.Close()

	if got, want := p.N(), 4; got != want {
		t.Fatalf("invalid pin number: got=%d, want=%d", got, want)
	}

	dir, err := os.ReadFile(filepath.Join(root, "gpio4", "direction"))
	if err != nil {
		t.Fatalf("could not read back direction: %+v", err)
	}
	if got, want := string(dir), "out"; got != want {
		t.Fatalf("invalid direction: got=%q, want=%q", got, want)
	}

	err = p.Write(true)
	if err != nil {
		t.Fatalf("could not drive pin high: %+v", err)
	}

	v, err := p.Read()
	if err != nil {
		t.Fatalf("could not read pin: %+v", err)
	}
	if !v {
		t.Fatalf("pin did not read back high")
	}

	err = p.Write(false)
	if err != nil {
		t.Fatalf("could not drive pin low: %+v", err)
	}

	v, err = p.Read()
	if err != nil {
		t.Fatalf("could not read pin: %+v", err)
	}
	if v {
		t.Fatalf("pin did not read back low")
	}

	err = p.SetEdge(EdgeRising)
	if err != nil {
		t.Fatalf("could not set edge: %+v", err)
	}

	edge, err := os.ReadFile(filepath.Join(root, "gpio4", "edge"))
	if err != nil {
		t.Fatalf("could not read back edge: %+v", err)
	}
	if got, want := string(edge), "rising"; got != want {
		t.Fatalf("invalid edge: got=%q, want=%q", got, want)
	}

	err = p.Close()
	if err != nil {
		t.Fatalf("could not close pin: %+v", err)
	}

	unexport, err := os.ReadFile(filepath.Join(root, "unexport"))
	if err != nil {
		t.Fatalf("could not read back unexport: %+v", err)
	}
	if got, want := string(unexport), "4"; got != want {
		t.Fatalf("invalid unexport: got=%q, want=%q", got, want)
	}
}

func TestWaitTimeout(t *testing.T) {
	old := root
	defer func() { root = old }()
	root = fakeSysfs(t, 6)

	p, err := Open(6, In)
	if err != nil {
		t.Fatalf("could not open pin: %+v", err)
	}
	defer p.Close()

	// a regular file never raises POLLPRI: the wait must still
	// come back once the timeout has elapsed.
	start := time.Now()
	fired, err := p.Wait(50 * time.Millisecond)
	if err != nil {
		t.Fatalf("could not wait on pin: %+v", err)
	}
	if fired {
		t.Fatalf("unexpected edge on idle line")
	}
	if d := time.Since(start); d > 5*time.Second {
		t.Fatalf("wait did not honour its timeout (took %v)", d)
	}
}

func TestOpenUnknownPin(t *testing.T) {
	old := root
	defer func() { root = old }()
	root = fakeSysfs(t, 4)

	_, err := Open(7, In)
	if err == nil {
		t.Fatalf("expected an error for a line with no sysfs entry")
	}
}

// Copyright 2026 The go-sipm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package coinc

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.validate(); err != nil {
		t.Fatalf("invalid default config: %+v", err)
	}

	want := []string{"coinc01", "coinc02", "coinc12", "coinc012", "raw0", "raw1", "raw2"}
	if got := cfg.names(); !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid channels:\ngot= %v\nwant=%v", got, want)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	fname := filepath.Join(dir, "channels.yml")
	err := os.WriteFile(fname, []byte(`channels:
  - {name: coinc01, gpio: 27}
  - {name: raw0, gpio: 6}
`), 0644)
	if err != nil {
		t.Fatalf("could not create config file: %+v", err)
	}

	cfg, err := LoadConfig(fname)
	if err != nil {
		t.Fatalf("could not load config: %+v", err)
	}

	want := Config{Channels: []Channel{
		{Name: "coinc01", GPIO: 27},
		{Name: "raw0", GPIO: 6},
	}}
	if !reflect.DeepEqual(cfg, want) {
		t.Fatalf("invalid config:\ngot= %#v\nwant=%#v", cfg, want)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()

	for _, tc := range []struct {
		name string
		cfg  string
		want string
	}{
		{
			name: "empty",
			cfg:  `channels: []`,
			want: "no channels",
		},
		{
			name: "too-many",
			cfg: `channels:
  - {name: c0, gpio: 1}
  - {name: c1, gpio: 2}
  - {name: c2, gpio: 3}
  - {name: c3, gpio: 4}
  - {name: c4, gpio: 5}
  - {name: c5, gpio: 6}
  - {name: c6, gpio: 7}
  - {name: c7, gpio: 8}
`,
			want: "too many channels",
		},
		{
			name: "dup-name",
			cfg: `channels:
  - {name: coinc01, gpio: 27}
  - {name: coinc01, gpio: 18}
`,
			want: `share name "coinc01"`,
		},
		{
			name: "dup-gpio",
			cfg: `channels:
  - {name: coinc01, gpio: 27}
  - {name: coinc02, gpio: 27}
`,
			want: "share gpio 27",
		},
		{
			name: "no-name",
			cfg:  `channels: [{gpio: 27}]`,
			want: "has no name",
		},
		{
			name: "bad-gpio",
			cfg:  `channels: [{name: coinc01, gpio: -1}]`,
			want: "invalid gpio",
		},
		{
			name: "malformed",
			cfg:  `channels: {{`,
			want: "could not parse",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			fname := filepath.Join(dir, tc.name+".yml")
			err := os.WriteFile(fname, []byte(tc.cfg), 0644)
			if err != nil {
				t.Fatalf("could not create config file: %+v", err)
			}

			_, err = LoadConfig(fname)
			if err == nil {
				t.Fatalf("expected an error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("invalid error: got=%q, want=%q", err.Error(), tc.want)
			}
		})
	}

	t.Run("missing-file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(dir, "no-such.yml"))
		if err == nil {
			t.Fatalf("expected an error")
		}
	})
}

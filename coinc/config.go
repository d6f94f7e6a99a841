// Copyright 2026 The go-sipm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package coinc

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// MaxChannels is the number of discriminator outputs the coincidence
// unit exposes.
const MaxChannels = 7

// Channel maps one discriminator output of the coincidence unit to the
// GPIO line it is wired to.
type Channel struct {
	Name string `yaml:"name"`
	GPIO int    `yaml:"gpio"`
}

// Config describes the channel map of the telescope.
type Config struct {
	Channels []Channel `yaml:"channels"`
}

// DefaultConfig returns the channel map of the reference three-plane
// telescope wiring.
func DefaultConfig() Config {
	return Config{
		Channels: []Channel{
			{Name: "coinc01", GPIO: 27},
			{Name: "coinc02", GPIO: 18},
			{Name: "coinc12", GPIO: 17},
			{Name: "coinc012", GPIO: 25},
			{Name: "raw0", GPIO: 6},
			{Name: "raw1", GPIO: 5},
			{Name: "raw2", GPIO: 16},
		},
	}
}

// LoadConfig reads a channel map from a YAML file.
func LoadConfig(name string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(name)
	if err != nil {
		return cfg, fmt.Errorf("coinc: could not read config %q: %w", name, err)
	}

	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("coinc: could not parse config %q: %w", name, err)
	}

	err = cfg.validate()
	if err != nil {
		return Config{}, fmt.Errorf("coinc: invalid config %q: %w", name, err)
	}

	return cfg, nil
}

func (cfg Config) validate() error {
	if len(cfg.Channels) == 0 {
		return fmt.Errorf("no channels")
	}
	if len(cfg.Channels) > MaxChannels {
		return fmt.Errorf("too many channels: %d (max %d)", len(cfg.Channels), MaxChannels)
	}

	names := make(map[string]int, len(cfg.Channels))
	pins := make(map[int]string, len(cfg.Channels))
	for i, ch := range cfg.Channels {
		if ch.Name == "" {
			return fmt.Errorf("channel %d has no name", i)
		}
		if ch.GPIO <= 0 {
			return fmt.Errorf("channel %q: invalid gpio %d", ch.Name, ch.GPIO)
		}
		if j, dup := names[ch.Name]; dup {
			return fmt.Errorf("channels %d and %d share name %q", j, i, ch.Name)
		}
		if name, dup := pins[ch.GPIO]; dup {
			return fmt.Errorf("channels %q and %q share gpio %d", name, ch.Name, ch.GPIO)
		}
		names[ch.Name] = i
		pins[ch.GPIO] = ch.Name
	}
	return nil
}

// names returns the channel names in slot order.
func (cfg Config) names() []string {
	names := make([]string, len(cfg.Channels))
	for i, ch := range cfg.Channels {
		names[i] = ch.Name
	}
	return names
}

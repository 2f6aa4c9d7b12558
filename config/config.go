// Package config loads the optional YAML file that sets link identity,
// GPS feed defaults and log rotation. Command line flags override it.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type GPS struct {
	Target       string        `yaml:"target"`
	Interval     time.Duration `yaml:"interval"`
	FastInterval time.Duration `yaml:"fast_interval"`
	Step         float64       `yaml:"step"`
	Lat          int32         `yaml:"lat"`
	Lon          int32         `yaml:"lon"`
	Alt          float32       `yaml:"alt"`
	Satellites   uint8         `yaml:"satellites"`
}

type Log struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Config never holds the signing passphrase.
type Config struct {
	Endpoint    string `yaml:"endpoint"`
	SystemID    uint8  `yaml:"sys_id"`
	ComponentID uint8  `yaml:"comp_id"`
	LinkID      uint8  `yaml:"link_id"`
	// Dialect is an extra YAML dialect merged over the built-in one.
	Dialect string `yaml:"dialect"`
	GPS     GPS    `yaml:"gps"`
	Log     Log    `yaml:"log"`
}

func Default() Config {
	return Config{
		Endpoint:    "udpin:0.0.0.0:5760",
		SystemID:    255,
		ComponentID: 230,
		LinkID:      1,
		GPS: GPS{
			Target:       "127.0.0.1:25100",
			Interval:     time.Second,
			FastInterval: 50 * time.Millisecond,
			Step:         200,
			Lat:          514492880,
			Lon:          -26083820,
			Alt:          5,
			Satellites:   13,
		},
		Log: Log{
			Level:      "info",
			MaxSizeMB:  25,
			MaxBackups: 5,
			MaxAgeDays: 7,
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.GPS.Interval <= 0 || c.GPS.FastInterval <= 0 {
		return errors.New("gps intervals must be positive")
	}
	if c.Log.MaxSizeMB <= 0 {
		c.Log.MaxSizeMB = 25
	}
	if c.Log.MaxAgeDays <= 0 {
		c.Log.MaxAgeDays = 7
	}
	if c.Log.MaxBackups <= 0 {
		c.Log.MaxBackups = 5
	}
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	return nil
}

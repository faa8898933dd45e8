// Package config reads store configuration files. Files are JSON with
// comments and trailing commas allowed.
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/tailscale/hujson"

	"github.com/adfharrison1/go-docstore/pkg/domain"
	"github.com/adfharrison1/go-docstore/pkg/store"
)

// Config is the on-disk store configuration
type Config struct {
	Name               string   `json:"name"`
	Filename           string   `json:"filename,omitempty"`
	Format             string   `json:"format,omitempty"`
	Durability         string   `json:"durability,omitempty"`
	CheckpointInterval string   `json:"checkpoint_interval,omitempty"`
	Collections        []string `json:"collections,omitempty"`
}

// Default returns the configuration of an unnamed in-memory store
func Default() *Config {
	return &Config{
		Name:       store.DefaultName,
		Format:     store.FormatJSON.String(),
		Durability: store.DurabilityOS.String(),
	}
}

// Load reads path on top of Default and validates the result
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.NewIOError("read config", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a configuration document on top of Default
func Parse(data []byte) (*Config, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return nil, domain.InvalidArgument("invalid JSONC: %v", err)
	}

	cfg := Default()
	if err := json.Unmarshal(standardized, cfg); err != nil {
		return nil, domain.InvalidArgument("invalid JSON: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every enumerated and duration field
func (c *Config) Validate() error {
	if c.Name == "" {
		return domain.InvalidArgument("name must not be empty")
	}
	if _, err := store.ParseSnapshotFormat(c.Format); err != nil {
		return err
	}
	if _, err := store.ParseDurability(c.Durability); err != nil {
		return err
	}
	if _, err := c.interval(); err != nil {
		return err
	}

	seen := make(map[string]bool, len(c.Collections))
	for _, name := range c.Collections {
		if name == "" {
			return domain.InvalidArgument("collection names must not be empty")
		}
		if seen[name] {
			return domain.InvalidArgument("collection %q listed twice", name)
		}
		seen[name] = true
	}
	return nil
}

func (c *Config) interval() (time.Duration, error) {
	if c.CheckpointInterval == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.CheckpointInterval)
	if err != nil || d < 0 {
		return 0, domain.InvalidArgument("invalid checkpoint_interval %q", c.CheckpointInterval)
	}
	return d, nil
}

// StoreConfig returns the construction settings of the store
func (c *Config) StoreConfig() store.Config {
	return store.Config{Name: c.Name, Filename: c.Filename}
}

// StoreOptions resolves the configuration into store options. The
// configuration must have passed Validate.
func (c *Config) StoreOptions(logger *log.Logger) []store.Option {
	format, _ := store.ParseSnapshotFormat(c.Format)
	durability, _ := store.ParseDurability(c.Durability)
	interval, _ := c.interval()

	return []store.Option{
		store.WithLogger(logger),
		store.WithSnapshotFormat(format),
		store.WithDurability(durability),
		store.WithCheckpointInterval(interval),
	}
}

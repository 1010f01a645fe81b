package mvcc

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/SimonWaldherr/tinymvcc/internal/durability"
)

// StoreConfig controls how a Store is built: where (if anywhere) its commits
// are durably persisted, and whether a background reaper rolls back
// abandoned transactions and prunes superseded history.
//
// StoreConfig is the one piece of this module meant to be loaded from a
// file rather than constructed in code, so its fields carry yaml tags
// even though nothing in the core itself reads YAML.
type StoreConfig struct {
	// DurabilityPath, if non-empty, is opened as an append-only
	// FileBridge durability log. Empty means an in-memory MemoryBridge,
	// the right choice for an embedded cache or a test.
	DurabilityPath string `yaml:"durability_path"`

	// ReaperSchedule is a robfig/cron expression controlling how often
	// the background sweep runs. Empty disables the reaper entirely
	// (no goroutine is started).
	ReaperSchedule string `yaml:"reaper_schedule"`

	// ReaperMaxAge is how long a transaction may stay Active before the
	// reaper rolls it back. Zero disables abandoned-transaction
	// rollback even if ReaperSchedule is set (pruning still runs).
	ReaperMaxAge time.Duration `yaml:"reaper_max_age"`
}

// UnmarshalYAML accepts reaper_max_age as a Go duration string
// ("90s", "5m"); yaml.v3 has no native time.Duration support.
func (c *StoreConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		DurabilityPath string `yaml:"durability_path"`
		ReaperSchedule string `yaml:"reaper_schedule"`
		ReaperMaxAge   string `yaml:"reaper_max_age"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	c.DurabilityPath = raw.DurabilityPath
	c.ReaperSchedule = raw.ReaperSchedule
	if raw.ReaperMaxAge != "" {
		d, err := time.ParseDuration(raw.ReaperMaxAge)
		if err != nil {
			return fmt.Errorf("reaper_max_age: %w", err)
		}
		c.ReaperMaxAge = d
	}
	return nil
}

// LoadConfig reads and parses a YAML configuration file at path.
func LoadConfig(path string) (StoreConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return StoreConfig{}, fmt.Errorf("read config %q: %w", path, err)
	}
	var cfg StoreConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return StoreConfig{}, fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg, nil
}

// persister builds the durability bridge this StoreConfig describes.
func (c StoreConfig) persister() (durability.Persister, func() error, error) {
	if c.DurabilityPath == "" {
		return durability.NewMemoryBridge(), func() error { return nil }, nil
	}
	fb, err := durability.OpenFileBridge(c.DurabilityPath)
	if err != nil {
		return nil, nil, err
	}
	return fb, fb.Close, nil
}

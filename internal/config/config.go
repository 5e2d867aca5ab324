// Package config loads the branchctl configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/absfs/branchfs"
)

// Branch modes
const (
	ModeRW = "rw"
	ModeRO = "ro"
)

// Config is the on-disk configuration of branchctl.
type Config struct {
	Branches          []BranchConfig `yaml:"branches"`
	MaxNameLen        int            `yaml:"max_name_len"`
	Umask             string         `yaml:"umask"`
	LookupRetries     uint           `yaml:"lookup_retries"`
	LookupRetryDelay  time.Duration  `yaml:"lookup_retry_delay"`
	NegativeCacheTTL  time.Duration  `yaml:"negative_cache_ttl"`
	NegativeCacheSize int            `yaml:"negative_cache_size"`
	Logging           LoggingConfig  `yaml:"logging"`
}

// BranchConfig is one branch directory, highest priority first.
type BranchConfig struct {
	Path string `yaml:"path"`
	Mode string `yaml:"mode"`
}

// LoggingConfig selects the log level and format (text or json).
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		MaxNameLen:        branchfs.DefaultMaxNameLen,
		Umask:             "022",
		LookupRetries:     1,
		LookupRetryDelay:  10 * time.Millisecond,
		NegativeCacheSize: 1000,
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
	}
}

// Load reads a YAML configuration file over the defaults and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault loads path, or returns the defaults when path is empty.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	return Load(path)
}

// Validate checks field values. An empty branch list is valid; commands that
// need branches check for them.
func (c *Config) Validate() error {
	for i, b := range c.Branches {
		if b.Path == "" {
			return fmt.Errorf("branch %d: empty path", i)
		}
		switch b.Mode {
		case "", ModeRW, ModeRO:
		default:
			return fmt.Errorf("branch %d (%s): unknown mode %q", i, b.Path, b.Mode)
		}
	}
	if c.MaxNameLen < 0 {
		return errors.New("max_name_len must not be negative")
	}
	if _, err := c.UmaskMode(); err != nil {
		return err
	}
	if c.NegativeCacheTTL < 0 {
		return errors.New("negative_cache_ttl must not be negative")
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}
	return nil
}

// UmaskMode parses the octal umask.
func (c *Config) UmaskMode() (fs.FileMode, error) {
	if c.Umask == "" {
		return 0o022, nil
	}
	v, err := strconv.ParseUint(c.Umask, 8, 32)
	if err != nil || v > 0o777 {
		return 0, fmt.Errorf("invalid umask %q", c.Umask)
	}
	return fs.FileMode(v), nil
}

// ReadOnly reports whether branch i is read-only. A branch without a mode is
// writable when it is the first one.
func (c *Config) ReadOnly(i int) bool {
	switch c.Branches[i].Mode {
	case ModeRO:
		return true
	case ModeRW:
		return false
	}
	return i > 0
}

// SetBranches replaces the branch list from a "dirs=" specification.
func (c *Config) SetBranches(spec string) error {
	specs, err := branchfs.ParseBranchSpec(spec)
	if err != nil {
		return err
	}
	c.Branches = c.Branches[:0]
	for _, s := range specs {
		mode := ModeRW
		if s.ReadOnly {
			mode = ModeRO
		}
		c.Branches = append(c.Branches, BranchConfig{Path: s.Dir, Mode: mode})
	}
	return nil
}

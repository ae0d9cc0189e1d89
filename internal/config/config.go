// Package config loads classlens configuration.
//
// Configuration is read from a single YAML file named by the --config
// flag or, failing that, the CLASSLENS_CONFIG environment variable.
// There is no discovery: without either, built-in defaults apply.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable holding the config path.
const EnvVar = "CLASSLENS_CONFIG"

type Config struct {
	Paths      PathsConfig      `yaml:"paths"`
	Cache      CacheConfig      `yaml:"cache"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Decompiler DecompilerConfig `yaml:"decompiler"`
	Index      IndexConfig      `yaml:"index"`
	Diff       DiffConfig       `yaml:"diff"`

	// Workers is the pool size for bulk runs; 0 uses the CPU count.
	Workers int `yaml:"workers"`

	// Exclude lists gitignore-style patterns for archive entries that
	// are hidden from every command.
	Exclude []string `yaml:"exclude"`
}

type PathsConfig struct {
	// State holds the state file, the usage database and search
	// indexes. Default: ${HOME}/.cache/classlens
	State string `yaml:"state"`
}

type CacheConfig struct {
	// Capacity of the decompilation cache. Default: 75
	Capacity int `yaml:"capacity"`
}

type PipelineConfig struct {
	// Debounce applied to selection changes. Default: 250ms
	Debounce string `yaml:"debounce"`
}

type DecompilerConfig struct {
	// Command runs the external decompiler; the option flags, input
	// class files and output directory are appended. Empty disables
	// source decompilation.
	Command []string `yaml:"command"`

	// Timeout per class. Default: 60s
	Timeout string `yaml:"timeout"`
}

type IndexConfig struct {
	// Prefixes limits usage subjects to matching class names.
	Prefixes []string `yaml:"prefixes"`
}

type DiffConfig struct {
	// Checksum is "xor" or "digest". Default: xor
	Checksum string `yaml:"checksum"`

	// Context lines of unified source diffs. Default: 3
	Context int `yaml:"context"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Paths:      PathsConfig{State: "${HOME}/.cache/classlens"},
		Cache:      CacheConfig{Capacity: 75},
		Pipeline:   PipelineConfig{Debounce: "250ms"},
		Decompiler: DecompilerConfig{Timeout: "60s"},
		Diff:       DiffConfig{Checksum: "xor", Context: 3},
		Exclude:    []string{},
	}
}

// Load resolves the config path from flagPath or CLASSLENS_CONFIG and
// loads it. With neither set, the defaults are returned.
func Load(flagPath string) (*Config, error) {
	path := flagPath
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	if path == "" {
		cfg := Default()
		cfg.expandVariables()
		return cfg, cfg.Validate()
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path on top of the
// defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.expandVariables()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Paths.State == "" {
		errs = append(errs, errors.New("paths.state is required"))
	}
	if c.Cache.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("cache.capacity must be positive, got %d", c.Cache.Capacity))
	}
	if _, err := time.ParseDuration(c.Pipeline.Debounce); err != nil {
		errs = append(errs, fmt.Errorf("pipeline.debounce: %w", err))
	}
	if c.Decompiler.Timeout != "" {
		if _, err := time.ParseDuration(c.Decompiler.Timeout); err != nil {
			errs = append(errs, fmt.Errorf("decompiler.timeout: %w", err))
		}
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got %d", c.Workers))
	}
	switch c.Diff.Checksum {
	case "", "xor", "digest":
	default:
		errs = append(errs, fmt.Errorf("diff.checksum must be xor or digest, got %q", c.Diff.Checksum))
	}

	return errors.Join(errs...)
}

// Debounce is the parsed pipeline debounce.
func (c *Config) Debounce() time.Duration {
	d, err := time.ParseDuration(c.Pipeline.Debounce)
	if err != nil {
		return 250 * time.Millisecond
	}
	return d
}

// DecompileTimeout is the parsed per-class timeout, 0 for none.
func (c *Config) DecompileTimeout() time.Duration {
	d, err := time.ParseDuration(c.Decompiler.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// UsageDB is the usage database path inside the state dir.
func (c *Config) UsageDB() string {
	return filepath.Join(c.Paths.State, "usages.db")
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func (c *Config) expandVariables() {
	c.Paths.State = expandVars(c.Paths.State)
	for i, arg := range c.Decompiler.Command {
		c.Decompiler.Command[i] = expandVars(arg)
	}
}

// expandVars expands ${VAR} and ${VAR:-default} from the environment.
func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

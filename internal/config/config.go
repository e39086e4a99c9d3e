package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"hashdiff/internal/hash"
	"hashdiff/internal/tree"
	"hashdiff/internal/walker"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// searchPath is looked up under the XDG config directories.
const searchPath = "hashdiff/config.yaml"

type Ignore struct {
	Directories []string `yaml:"directories"`
	Files       []string `yaml:"files"`
}

type Config struct {
	Ignore       Ignore         `yaml:"ignore"`
	Algorithm    hash.Algorithm `yaml:"algorithm"`
	Scheme       tree.Scheme    `yaml:"scheme"`
	Workers      int            `yaml:"workers"`
	ContextLines int            `yaml:"context_lines"`
}

func DefaultConfig() *Config {
	return &Config{
		Ignore: Ignore{
			Directories: []string{".git"},
			Files:       []string{".gitignore", "lazy-lock.json"},
		},
		Algorithm:    hash.DefaultAlgorithm,
		Scheme:       tree.SchemeStream,
		Workers:      runtime.NumCPU(),
		ContextLines: 3,
	}
}

// LoadConfig reads path on top of the defaults. An empty path falls back to
// the XDG config location; a missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		found, err := xdg.SearchConfigFile(searchPath)
		if err != nil {
			return DefaultConfig(), nil
		}
		path = found
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	// A null list in the YAML becomes an empty list, not nil
	if cfg.Ignore.Directories == nil {
		cfg.Ignore.Directories = []string{}
	}
	if cfg.Ignore.Files == nil {
		cfg.Ignore.Files = []string{}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate normalises names and rejects values no comparison could use.
func (c *Config) Validate() error {
	alg, err := hash.ParseAlgorithm(string(c.Algorithm))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	c.Algorithm = alg

	scheme, err := tree.ParseScheme(string(c.Scheme))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	c.Scheme = scheme

	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.ContextLines < 0 {
		return fmt.Errorf("%w: context_lines must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Filter builds the path filter described by the ignore section.
func (c *Config) Filter() *walker.Filter {
	return walker.NewFilter(c.Ignore.Directories, c.Ignore.Files)
}

// Package config loads scriptdeps settings from a YAML or JSONC file.
//
// JSON files may contain comments and trailing commas: they are passed
// through github.com/tidwall/jsonc before being decoded with encoding/json,
// the same way devcontainer.json files are commonly handled. YAML files are
// decoded with gopkg.in/yaml.v3.
//
// Values found in a file are layered over Default(); fields the file does
// not mention keep their defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/mmr-tortoise/scriptdeps/internal/model"
)

// FileNames lists the configuration file names Find looks for, in order.
var FileNames = []string{".scriptdeps.yaml", ".scriptdeps.yml", ".scriptdeps.json"}

// Config holds resolver settings.
type Config struct {
	// Repositories are registered with the resolver engines before any
	// script is processed, in order. Both URLs and local directories work.
	Repositories []string `json:"repositories" yaml:"repositories"`

	// CacheDir is where downloaded artifacts are stored.
	CacheDir string `json:"cacheDir" yaml:"cacheDir"`

	// TimeoutSeconds bounds each file transfer.
	TimeoutSeconds int `json:"timeoutSeconds" yaml:"timeoutSeconds"`

	// MaxArtifactSize is a human-readable size limit such as "256 MB".
	// An empty string or "0" disables the limit.
	MaxArtifactSize string `json:"maxArtifactSize" yaml:"maxArtifactSize"`

	// Concurrency is the number of parallel artifact downloads.
	Concurrency int `json:"concurrency" yaml:"concurrency"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"logLevel" yaml:"logLevel"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Repositories:    []string{},
		CacheDir:        defaultCacheDir(),
		TimeoutSeconds:  60,
		MaxArtifactSize: "256 MB",
		Concurrency:     4,
		LogLevel:        "info",
	}
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "scriptdeps")
	}
	return filepath.Join(dir, "scriptdeps")
}

// Load reads the configuration file at path and layers it over Default().
// The format is chosen by extension: .yaml/.yml or .json/.jsonc.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, model.WrapCLIError(
				model.ExitConfigError,
				fmt.Sprintf("config file not found: %s", path),
				err,
			)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, model.WrapCLIError(model.ExitConfigError,
				fmt.Sprintf("failed to parse config file %s", path), err)
		}
	case ".json", ".jsonc":
		// Strip comments and trailing commas before decoding.
		if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
			return nil, model.WrapCLIError(model.ExitConfigError,
				fmt.Sprintf("failed to parse config file %s", path), err)
		}
	default:
		return nil, model.NewCLIError(model.ExitConfigError,
			fmt.Sprintf("unsupported config file extension %q (use .yaml, .yml, .json or .jsonc)", filepath.Ext(path)))
	}

	if cfg.Repositories == nil {
		cfg.Repositories = []string{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, model.WrapCLIError(model.ExitConfigError,
			fmt.Sprintf("invalid config file %s", path), err)
	}
	return cfg, nil
}

// Find returns the path of the first configuration file in dir, or an
// empty string when there is none.
func Find(dir string) string {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// LoadOrDefault loads path when it is set, otherwise the first file Find
// locates in dir, otherwise Default().
func LoadOrDefault(path, dir string) (*Config, error) {
	if path == "" {
		path = Find(dir)
	}
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeoutSeconds must be positive, got %d", c.TimeoutSeconds)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive, got %d", c.Concurrency)
	}
	if c.CacheDir == "" {
		return fmt.Errorf("cacheDir must not be empty")
	}
	if _, err := c.MaxArtifactBytes(); err != nil {
		return err
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logLevel %q (valid: debug, info, warn, error)", c.LogLevel)
	}
	for i, repo := range c.Repositories {
		if strings.TrimSpace(repo) == "" {
			return fmt.Errorf("repositories[%d] must not be empty", i)
		}
	}
	return nil
}

// Timeout returns TimeoutSeconds as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// MaxArtifactBytes parses MaxArtifactSize. Zero means unlimited.
func (c *Config) MaxArtifactBytes() (int64, error) {
	s := strings.TrimSpace(c.MaxArtifactSize)
	if s == "" || s == "0" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid maxArtifactSize %q: %w", c.MaxArtifactSize, err)
	}
	return int64(n), nil
}

// MavenCacheDir is the part of the cache holding Maven artifacts.
func (c *Config) MavenCacheDir() string {
	return filepath.Join(c.CacheDir, "maven")
}

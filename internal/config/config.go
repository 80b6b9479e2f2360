package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the settings file looked up in a document folder.
const FileName = "reactdown.yaml"

// Config represents the reactdown configuration
type Config struct {
	Title      string           `yaml:"title,omitempty"`
	ModulePath string           `yaml:"module_path"` // Folder of .wasm modules added to the import whitelist
	Server     ServerConfig     `yaml:"server"`
	Watch      bool             `yaml:"watch"`
	Cache      CacheConfig      `yaml:"cache"`
	RateLimit  *RateLimitConfig `yaml:"rate_limit,omitempty"`
	Ignore     []string         `yaml:"ignore,omitempty"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port  int    `yaml:"port"`
	Host  string `yaml:"host"`
	Debug bool   `yaml:"debug"`
}

// CacheConfig configures the compiled-block cache
type CacheConfig struct {
	TTL        string `yaml:"ttl,omitempty"`         // Entry lifetime (e.g., "10m"). Default: 10m
	MaxEntries int    `yaml:"max_entries,omitempty"` // Default: 256, negative disables the cache
}

// RateLimitConfig holds per-client rate limiting for the HTTP server
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"` // Default: 10
	Burst             int     `yaml:"burst,omitempty"`               // Default: 20
}

// GetTTL returns the parsed cache TTL (default: 10m)
func (c CacheConfig) GetTTL() time.Duration {
	if c.TTL == "" {
		return 10 * time.Minute
	}
	d, err := time.ParseDuration(c.TTL)
	if err != nil || d <= 0 {
		return 10 * time.Minute
	}
	return d
}

// GetMaxEntries returns the cache capacity (default: 256, 0 when disabled)
func (c CacheConfig) GetMaxEntries() int {
	switch {
	case c.MaxEntries < 0:
		return 0
	case c.MaxEntries == 0:
		return 256
	}
	return c.MaxEntries
}

// GetRPS returns the rate limit in requests per second (default: 10)
func (c *RateLimitConfig) GetRPS() float64 {
	if c == nil || c.RequestsPerSecond <= 0 {
		return 10
	}
	return c.RequestsPerSecond
}

// GetBurst returns the burst size (default: 20)
func (c *RateLimitConfig) GetBurst() int {
	if c == nil || c.Burst <= 0 {
		return 20
	}
	return c.Burst
}

// ResolveModulePath returns ModulePath relative to dir, or "" when unset.
func (c *Config) ResolveModulePath(dir string) string {
	if c.ModulePath == "" || filepath.IsAbs(c.ModulePath) {
		return c.ModulePath
	}
	return filepath.Join(dir, filepath.FromSlash(c.ModulePath))
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Title: "Reactdown",
		Server: ServerConfig{
			Port:  8080,
			Host:  "localhost",
			Debug: false,
		},
		Watch: true,
		Ignore: []string{
			"drafts/**",
			"_*.md",
		},
	}
}

// Load loads configuration from a YAML file
// If the file doesn't exist, returns the default configuration
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig() // Start with defaults
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// LoadFromDir loads reactdown.yaml from dir, or the defaults if it is absent
func LoadFromDir(dir string) (*Config, error) {
	return Load(filepath.Join(dir, FileName))
}

// Save writes the configuration to a YAML file
func (c *Config) Save(configPath string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

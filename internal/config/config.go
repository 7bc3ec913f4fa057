// Package config loads the toolkit configuration from a YAML file and
// MCP_TOOLKIT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrMissingDSN is returned when the persistent store is selected without a
// connection string.
var ErrMissingDSN = errors.New("store.persistent is set but store.dsn is empty")

const envPrefix = "MCP_TOOLKIT_"

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Registry RegistryConfig `yaml:"registry"`
	Store    StoreConfig    `yaml:"store"`
	Script   ScriptConfig   `yaml:"script"`
	API      APIConfig      `yaml:"api"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Transport      string `yaml:"transport"`
	Addr           string `yaml:"addr"`
	MaxConcurrency int    `yaml:"max_concurrency"`
}

type RegistryConfig struct {
	StalenessWindow time.Duration `yaml:"staleness_window"`
}

type StoreConfig struct {
	Persistent bool   `yaml:"persistent"`
	DSN        string `yaml:"dsn"`
	Dir        string `yaml:"dir"`
	Watch      bool   `yaml:"watch"`
}

type ScriptConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type APIConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
	Cache     CacheConfig   `yaml:"cache"`
}

// CacheConfig controls the response cache for GET api tools.
type CacheConfig struct {
	Enabled    bool          `yaml:"enabled"`
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Pretty     bool   `yaml:"pretty"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server:   ServerConfig{Transport: "stdio", Addr: ":8080", MaxConcurrency: 8},
		Registry: RegistryConfig{StalenessWindow: 5 * time.Second},
		Store:    StoreConfig{Dir: "~/.mcp-toolkit/tools", Watch: true},
		Script:   ScriptConfig{Timeout: 10 * time.Second},
		API: APIConfig{
			Timeout:   30 * time.Second,
			UserAgent: "mcp-toolkit/1.0",
			Cache:     CacheConfig{TTL: 60 * time.Second, MaxEntries: 512},
		},
		Log: LogConfig{Level: "info", MaxSizeMB: 10, MaxBackups: 3},
	}
}

// Load reads path (if non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := MergeWithEnv(&cfg); err != nil {
		return Config{}, err
	}

	dir, err := expandHome(cfg.Store.Dir)
	if err != nil {
		return Config{}, err
	}
	cfg.Store.Dir = dir

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// MergeWithEnv applies MCP_TOOLKIT_* overrides. Environment values take
// precedence over file values.
func MergeWithEnv(cfg *Config) error {
	strs := map[string]*string{
		"TRANSPORT":  &cfg.Server.Transport,
		"ADDR":       &cfg.Server.Addr,
		"STORE_DSN":  &cfg.Store.DSN,
		"STORE_DIR":  &cfg.Store.Dir,
		"USER_AGENT": &cfg.API.UserAgent,
		"LOG_LEVEL":  &cfg.Log.Level,
		"LOG_FILE":   &cfg.Log.File,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	bools := map[string]*bool{
		"STORE_PERSISTENT": &cfg.Store.Persistent,
		"STORE_WATCH":      &cfg.Store.Watch,
		"API_CACHE":        &cfg.API.Cache.Enabled,
		"LOG_PRETTY":       &cfg.Log.Pretty,
	}
	for key, dst := range bools {
		if v, ok := lookup(key); ok {
			b, err := parseBool(v)
			if err != nil {
				return fmt.Errorf("invalid %s%s: %w", envPrefix, key, err)
			}
			*dst = b
		}
	}

	durations := map[string]*time.Duration{
		"STALENESS_WINDOW": &cfg.Registry.StalenessWindow,
		"SCRIPT_TIMEOUT":   &cfg.Script.Timeout,
		"API_TIMEOUT":      &cfg.API.Timeout,
	}
	for key, dst := range durations {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s%s: %w", envPrefix, key, err)
			}
			*dst = d
		}
	}

	if v, ok := lookup("MAX_CONCURRENCY"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sMAX_CONCURRENCY: %w", envPrefix, err)
		}
		cfg.Server.MaxConcurrency = n
	}
	return nil
}

// Validate reports configuration errors that must stop startup.
func (c Config) Validate() error {
	switch c.Server.Transport {
	case "stdio", "http":
	default:
		return fmt.Errorf("unknown server.transport %q: want stdio or http", c.Server.Transport)
	}
	if c.Server.Transport == "http" && c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required for the http transport")
	}
	if c.Server.MaxConcurrency < 1 {
		return fmt.Errorf("server.max_concurrency must be at least 1")
	}

	if c.Store.Persistent && strings.TrimSpace(c.Store.DSN) == "" {
		return ErrMissingDSN
	}
	if !c.Store.Persistent && strings.TrimSpace(c.Store.Dir) == "" {
		return fmt.Errorf("store.dir is required for the local store")
	}

	durations := map[string]time.Duration{
		"registry.staleness_window": c.Registry.StalenessWindow,
		"script.timeout":            c.Script.Timeout,
		"api.timeout":               c.API.Timeout,
		"api.cache.ttl":             c.API.Cache.TTL,
	}
	for name, d := range durations {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", v)
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

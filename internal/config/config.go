// Package config handles membox configuration: documented defaults, an
// optional YAML config file, and MEMBOX_* environment overrides. No
// package-level mutable state; the loaded Config value is passed into
// each constructor.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/agentutil/membox/internal/validate"
)

// Config carries every tunable knob consumed by the validation gate and
// the stores.
type Config struct {
	// StorageRoot is the directory holding flat-file project memory.
	StorageRoot string `yaml:"storage_root,omitempty"`
	// DBPath is the SQLite database file.
	DBPath string `yaml:"db_path,omitempty"`

	MaxContentLength   int `yaml:"max_content_length,omitempty"`
	MaxTitleLength     int `yaml:"max_title_length,omitempty"`
	MaxCategoryLength  int `yaml:"max_category_length,omitempty"`
	MaxQueryLength     int `yaml:"max_query_length,omitempty"`
	MaxProjectIDLength int `yaml:"max_project_id_length,omitempty"`

	LockTimeout       time.Duration `yaml:"lock_timeout,omitempty"`
	LockRetryInterval time.Duration `yaml:"lock_retry_interval,omitempty"`

	SearchDefaultLimit int `yaml:"search_default_limit,omitempty"`
	SearchMaxLimit     int `yaml:"search_max_limit,omitempty"`

	RAGTokenBudget  int `yaml:"rag_token_budget,omitempty"`
	RAGContextLimit int `yaml:"rag_context_limit,omitempty"`
}

// Default configuration values.
const (
	DefaultStorageDir        = "ai-memory"
	DefaultDBFile            = "memory.db"
	DefaultLockTimeout       = 30 * time.Second
	DefaultLockRetryInterval = 100 * time.Millisecond
	DefaultSearchLimit       = 10
	DefaultSearchMaxLimit    = 50
	DefaultRAGTokenBudget    = 1500
	DefaultRAGContextLimit   = 10
)

// Default returns a Config with every documented default filled in,
// rooted at dir (the current directory when dir is empty).
func Default(dir string) Config {
	if dir == "" {
		dir = "."
	}
	root := filepath.Join(dir, DefaultStorageDir)
	lim := validate.DefaultLimits()
	return Config{
		StorageRoot:        root,
		DBPath:             filepath.Join(root, DefaultDBFile),
		MaxContentLength:   lim.MaxContentLength,
		MaxTitleLength:     lim.MaxTitleLength,
		MaxCategoryLength:  lim.MaxCategoryLength,
		MaxQueryLength:     lim.MaxQueryLength,
		MaxProjectIDLength: lim.MaxProjectIDLength,
		LockTimeout:        DefaultLockTimeout,
		LockRetryInterval:  DefaultLockRetryInterval,
		SearchDefaultLimit: DefaultSearchLimit,
		SearchMaxLimit:     DefaultSearchMaxLimit,
		RAGTokenBudget:     DefaultRAGTokenBudget,
		RAGContextLimit:    DefaultRAGContextLimit,
	}
}

// Load builds the effective configuration: defaults, then the YAML file
// at path (skipped when path is empty or missing), then environment
// overrides.
func Load(dir, path string) (Config, error) {
	cfg := Default(dir)

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("reading config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config: %w", err)
		}
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overlays MEMBOX_* environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("MEMBOX_STORAGE_ROOT"); v != "" {
		c.StorageRoot = v
	}
	if v := os.Getenv("MEMBOX_DB_PATH"); v != "" {
		c.DBPath = v
	}
	envInt("MEMBOX_MAX_CONTENT_LENGTH", &c.MaxContentLength)
	envInt("MEMBOX_MAX_TITLE_LENGTH", &c.MaxTitleLength)
	envInt("MEMBOX_MAX_CATEGORY_LENGTH", &c.MaxCategoryLength)
	envInt("MEMBOX_MAX_QUERY_LENGTH", &c.MaxQueryLength)
	envInt("MEMBOX_MAX_PROJECT_ID_LENGTH", &c.MaxProjectIDLength)
	envInt("MEMBOX_SEARCH_DEFAULT_LIMIT", &c.SearchDefaultLimit)
	envInt("MEMBOX_SEARCH_MAX_LIMIT", &c.SearchMaxLimit)
	envInt("MEMBOX_RAG_TOKEN_BUDGET", &c.RAGTokenBudget)
	envInt("MEMBOX_RAG_CONTEXT_LIMIT", &c.RAGContextLimit)
	envDuration("MEMBOX_LOCK_TIMEOUT", &c.LockTimeout)
	envDuration("MEMBOX_LOCK_RETRY_INTERVAL", &c.LockRetryInterval)
}

func envInt(key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		*dst = n
	}
}

func envDuration(key string, dst *time.Duration) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		*dst = d
	}
}

// validate rejects configurations no store could run with.
func (c Config) validate() error {
	if c.StorageRoot == "" {
		return fmt.Errorf("storage_root is empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path is empty")
	}
	if c.SearchDefaultLimit > c.SearchMaxLimit {
		return fmt.Errorf("search_default_limit %d exceeds search_max_limit %d",
			c.SearchDefaultLimit, c.SearchMaxLimit)
	}
	if c.LockTimeout < c.LockRetryInterval {
		return fmt.Errorf("lock_timeout %s is shorter than lock_retry_interval %s",
			c.LockTimeout, c.LockRetryInterval)
	}
	return nil
}

// Limits derives the validation gate configuration.
func (c Config) Limits() validate.Limits {
	return validate.Limits{
		MaxContentLength:   c.MaxContentLength,
		MaxTitleLength:     c.MaxTitleLength,
		MaxCategoryLength:  c.MaxCategoryLength,
		MaxQueryLength:     c.MaxQueryLength,
		MaxProjectIDLength: c.MaxProjectIDLength,
	}
}

// ClampLimit applies the default and maximum result limits to a
// caller-supplied value.
func (c Config) ClampLimit(limit int) int {
	if limit <= 0 {
		return c.SearchDefaultLimit
	}
	if limit > c.SearchMaxLimit {
		return c.SearchMaxLimit
	}
	return limit
}

// Save writes the configuration as YAML.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

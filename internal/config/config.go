package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// LogConfig holds logger settings.
type LogConfig struct {
	// Level is a zap level string: debug, info, warn, error.
	Level string `mapstructure:"level" yaml:"level"`

	// File, when set, adds a rotating JSON log file alongside stderr.
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
}

// SyncConfig holds engine defaults.
type SyncConfig struct {
	// DefaultIntervalSec is the sync cadence applied to organizations
	// that do not set their own.
	DefaultIntervalSec int `mapstructure:"default_interval_sec" yaml:"default_interval_sec"`

	// PageSize is the page size requested from list endpoints.
	PageSize int `mapstructure:"page_size" yaml:"page_size"`

	// MaxPages caps every pagination loop, guarding against servers
	// that report an incorrect total.
	MaxPages int `mapstructure:"max_pages" yaml:"max_pages"`

	// Workers bounds the pool used by batch syncs.
	Workers int `mapstructure:"workers" yaml:"workers"`

	// ErrorDetailLimit caps the number of per-entity error strings
	// kept on a sync attempt.
	ErrorDetailLimit int `mapstructure:"error_detail_limit" yaml:"error_detail_limit"`
}

// FuzzyConfig exposes the matcher's thresholds and limits. The values
// mirror the tuning the matcher shipped with; treat them as knobs, not
// derived constants.
type FuzzyConfig struct {
	MinSimilarity      float64 `mapstructure:"min_similarity" yaml:"min_similarity"`
	MinTitleLength     int     `mapstructure:"min_title_length" yaml:"min_title_length"`
	HighConfidence     float64 `mapstructure:"high_confidence" yaml:"high_confidence"`
	AutoCreateMinScore float64 `mapstructure:"auto_create_min_score" yaml:"auto_create_min_score"`
	MaxCandidates      int     `mapstructure:"max_candidates" yaml:"max_candidates"`
	MaxQueryKeywords   int     `mapstructure:"max_query_keywords" yaml:"max_query_keywords"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	// DBPath is the SQLite database location.
	DBPath string `mapstructure:"db_path" yaml:"db_path"`

	Log   LogConfig   `mapstructure:"log" yaml:"log"`
	Sync  SyncConfig  `mapstructure:"sync" yaml:"sync"`
	Fuzzy FuzzyConfig `mapstructure:"fuzzy" yaml:"fuzzy"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/srehub/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "srehub", "config.yaml")
}

// DefaultDBPath returns the default SQLite database path.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "srehub.db")
	}
	return filepath.Join(home, ".config", "srehub", "srehub.db")
}

func defaultAppConfig() *AppConfig {
	return &AppConfig{
		DBPath: DefaultDBPath(),
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
		},
		Sync: SyncConfig{
			DefaultIntervalSec: 3600,
			PageSize:           100,
			MaxPages:           100,
			Workers:            4,
			ErrorDetailLimit:   50,
		},
		Fuzzy: FuzzyConfig{
			MinSimilarity:      0.7,
			MinTitleLength:     10,
			HighConfidence:     0.8,
			AutoCreateMinScore: 0.85,
			MaxCandidates:      100,
			MaxQueryKeywords:   5,
		},
	}
}

// Load reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns the default configuration.
func Load(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("db_path", DefaultDBPath())
	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("sync.default_interval_sec", 3600)
	v.SetDefault("sync.page_size", 100)
	v.SetDefault("sync.max_pages", 100)
	v.SetDefault("sync.workers", 4)
	v.SetDefault("sync.error_detail_limit", 50)
	v.SetDefault("fuzzy.min_similarity", 0.7)
	v.SetDefault("fuzzy.min_title_length", 10)
	v.SetDefault("fuzzy.high_confidence", 0.8)
	v.SetDefault("fuzzy.auto_create_min_score", 0.85)
	v.SetDefault("fuzzy.max_candidates", 100)
	v.SetDefault("fuzzy.max_query_keywords", 5)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaultAppConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultAppConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// Save writes the given configuration to a YAML file at path, creating
// parent directories if needed.
func Save(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("db_path", cfg.DBPath)
	v.Set("log", cfg.Log)
	v.Set("sync", cfg.Sync)
	v.Set("fuzzy", cfg.Fuzzy)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}

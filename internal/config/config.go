package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration for the Divan decision engine.
// It is loaded from ~/.divan/config.yaml and can be overridden by environment variables.
type Config struct {
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	Scoring  ScoringConfig  `mapstructure:"scoring" yaml:"scoring"`
	Council  CouncilConfig  `mapstructure:"council" yaml:"council"`
	Gate     GateConfig     `mapstructure:"gate" yaml:"gate"`
	Learning LearningConfig `mapstructure:"learning" yaml:"learning"`
	Doctrine DoctrineConfig `mapstructure:"doctrine" yaml:"doctrine"`
	Observer ObserverConfig `mapstructure:"observer" yaml:"observer"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

// StorageConfig contains configuration for the SQLite store.
type StorageConfig struct {
	// Path is the path to the SQLite database file
	Path string `mapstructure:"path" yaml:"path"`
	// BusyTimeoutMs is the SQLite busy timeout in milliseconds
	BusyTimeoutMs int `mapstructure:"busy_timeout_ms" yaml:"busy_timeout_ms"`
}

// ScoringConfig contains configuration for the knowledge scoring engine.
type ScoringConfig struct {
	// TopK is how many ranked entries each minister receives
	TopK int `mapstructure:"top_k" yaml:"top_k"`
	// RecencyHalfLifeDays controls reinforcement decay (entry memory halves
	// roughly every half-life)
	RecencyHalfLifeDays float64 `mapstructure:"recency_half_life_days" yaml:"recency_half_life_days"`
}

// CouncilConfig contains configuration for minister consultation.
type CouncilConfig struct {
	// PoolSize bounds how many ministers are analyzed concurrently
	PoolSize int `mapstructure:"pool_size" yaml:"pool_size"`
	// AdvisorTimeout is the per-minister analysis deadline; a slower minister
	// is omitted from the vote rather than blocking the decision
	AdvisorTimeout time.Duration `mapstructure:"advisor_timeout" yaml:"advisor_timeout"`
	// ConsensusThreshold is the vote share required to declare consensus
	ConsensusThreshold float64 `mapstructure:"consensus_threshold" yaml:"consensus_threshold"`
}

// GateConfig contains configuration for the final-authority gate.
type GateConfig struct {
	// RiskThreshold is the confidence bar for accepting council recommendations
	// and for honoring a risk-minister veto
	RiskThreshold float64 `mapstructure:"risk_threshold" yaml:"risk_threshold"`
	// RationalizationLimit is how many rationalization connectives the council
	// reasoning may contain before the gate defers
	RationalizationLimit int `mapstructure:"rationalization_limit" yaml:"rationalization_limit"`
}

// LearningConfig contains configuration for the outcome feedback loop.
type LearningConfig struct {
	// Enabled toggles learned priors; when false, bucket lookups return
	// neutral weights at zero confidence (ablation)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// MinSamples is the minimum outcomes a situation bucket needs before
	// training averages it into the prior cache
	MinSamples int `mapstructure:"min_samples" yaml:"min_samples"`
	// ConfidenceThreshold is the bucket confidence required before learned
	// weights bias live scoring
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold" yaml:"confidence_threshold"`
	// TrainInterval is how often the background trainer re-averages buckets
	TrainInterval time.Duration `mapstructure:"train_interval" yaml:"train_interval"`
}

// DoctrineConfig contains configuration for minister doctrine documents.
type DoctrineConfig struct {
	// Dir is an optional directory of YAML doctrine overrides; the embedded
	// defaults are always loaded first
	Dir string `mapstructure:"dir" yaml:"dir,omitempty"`
}

// ObserverConfig contains configuration for the websocket audit stream.
type ObserverConfig struct {
	// Addr is the listen address for the audit observer
	Addr string `mapstructure:"addr" yaml:"addr"`
	// HistorySize is how many recent events are replayed to new subscribers
	HistorySize int `mapstructure:"history_size" yaml:"history_size"`
}

// LoggingConfig contains configuration for application logging.
type LoggingConfig struct {
	// Level is the log level ("debug", "info", "warn", "error")
	Level string `mapstructure:"level" yaml:"level"`
	// File is the path to the log file
	File string `mapstructure:"file" yaml:"file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	divanDir := filepath.Join(homeDir, ".divan")

	return &Config{
		Storage: StorageConfig{
			Path:          filepath.Join(divanDir, "divan.db"),
			BusyTimeoutMs: 5000,
		},
		Scoring: ScoringConfig{
			TopK:                5,
			RecencyHalfLifeDays: 180,
		},
		Council: CouncilConfig{
			PoolSize:           8,
			AdvisorTimeout:     2 * time.Second,
			ConsensusThreshold: 0.6,
		},
		Gate: GateConfig{
			RiskThreshold:        0.7,
			RationalizationLimit: 2,
		},
		Learning: LearningConfig{
			Enabled:             true,
			MinSamples:          5,
			ConfidenceThreshold: 0.6,
			TrainInterval:       5 * time.Minute,
		},
		Doctrine: DoctrineConfig{
			Dir: "",
		},
		Observer: ObserverConfig{
			Addr:        ":8741",
			HistorySize: 64,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  filepath.Join(divanDir, "logs", "divan.log"),
		},
	}
}

// Load reads configuration from the default location (~/.divan/config.yaml)
// and merges with environment variables. If no config file exists, it creates
// one with default values.
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	configPath := filepath.Join(homeDir, ".divan", "config.yaml")
	return LoadFromPath(configPath)
}

// LoadFromPath reads configuration from a specific file path and merges with
// environment variables. If the file doesn't exist, it creates one with default values.
func LoadFromPath(path string) (*Config, error) {
	path = expandPath(path)

	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err := writeConfigFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Enable environment variable overrides
	// Example: DIVAN_GATE_RISK_THRESHOLD
	v.SetEnvPrefix("DIVAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Storage.Path = expandPath(cfg.Storage.Path)
	cfg.Logging.File = expandPath(cfg.Logging.File)
	cfg.Doctrine.Dir = expandPath(cfg.Doctrine.Dir)

	return &cfg, nil
}

// Save writes the current configuration to the default config file location.
func (c *Config) Save() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	configPath := filepath.Join(homeDir, ".divan", "config.yaml")
	return c.SaveToPath(configPath)
}

// SaveToPath writes the current configuration to a specific file path.
func (c *Config) SaveToPath(path string) error {
	path = expandPath(path)

	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return writeConfigFile(path, c)
}

// GetDataDir returns the Divan data directory path (~/.divan).
func (c *Config) GetDataDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".divan")
}

// EnsureDirectories creates all necessary directories for operation: the data
// directory, the logs directory, and the database directory.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.GetDataDir(),
		filepath.Dir(c.Logging.File),
		filepath.Dir(c.Storage.Path),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// Validate checks the configuration for common errors and inconsistencies.
func (c *Config) Validate() error {
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path cannot be empty")
	}

	if c.Scoring.TopK < 1 {
		return fmt.Errorf("scoring.top_k must be at least 1")
	}
	if c.Scoring.RecencyHalfLifeDays <= 0 {
		return fmt.Errorf("scoring.recency_half_life_days must be positive")
	}

	if c.Council.PoolSize < 1 {
		return fmt.Errorf("council.pool_size must be at least 1")
	}
	if c.Council.AdvisorTimeout <= 0 {
		return fmt.Errorf("council.advisor_timeout must be positive")
	}
	if c.Council.ConsensusThreshold <= 0.5 || c.Council.ConsensusThreshold > 1 {
		return fmt.Errorf("council.consensus_threshold must be in (0.5, 1.0], got %v", c.Council.ConsensusThreshold)
	}

	if c.Gate.RiskThreshold < 0 || c.Gate.RiskThreshold > 1 {
		return fmt.Errorf("gate.risk_threshold must be in [0, 1], got %v", c.Gate.RiskThreshold)
	}
	if c.Gate.RationalizationLimit < 0 {
		return fmt.Errorf("gate.rationalization_limit cannot be negative")
	}

	if c.Learning.MinSamples < 1 {
		return fmt.Errorf("learning.min_samples must be at least 1")
	}
	if c.Learning.ConfidenceThreshold < 0 || c.Learning.ConfidenceThreshold > 1 {
		return fmt.Errorf("learning.confidence_threshold must be in [0, 1], got %v", c.Learning.ConfidenceThreshold)
	}

	if c.Observer.HistorySize < 0 {
		return fmt.Errorf("observer.history_size cannot be negative")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level '%s', must be one of: debug, info, warn, error", c.Logging.Level)
	}

	return nil
}

// writeConfigFile writes a Config struct to a YAML file.
// Uses gopkg.in/yaml.v3 directly to ensure proper tag-based serialization.
func writeConfigFile(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// expandPath expands ~ to the user's home directory in a path string.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// Package config loads and validates codemind configuration.
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

// Config represents the complete codemind configuration
type Config struct {
	Version     int    `json:"version" mapstructure:"version" yaml:"version"`
	ProjectRoot string `json:"projectRoot" mapstructure:"projectRoot" yaml:"projectRoot"`

	Analyzer  AnalyzerConfig  `json:"analyzer" mapstructure:"analyzer" yaml:"analyzer"`
	Breaker   BreakerConfig   `json:"breaker" mapstructure:"breaker" yaml:"breaker"`
	Cache     CacheConfig     `json:"cache" mapstructure:"cache" yaml:"cache"`
	Watcher   WatcherConfig   `json:"watcher" mapstructure:"watcher" yaml:"watcher"`
	Staleness StalenessConfig `json:"staleness" mapstructure:"staleness" yaml:"staleness"`
	Learning  LearningConfig  `json:"learning" mapstructure:"learning" yaml:"learning"`
	Logging   LoggingConfig   `json:"logging" mapstructure:"logging" yaml:"logging"`
}

// AnalyzerConfig contains external analyzer connection settings
type AnalyzerConfig struct {
	Endpoint string `json:"endpoint" mapstructure:"endpoint" yaml:"endpoint"`
	// FallbackConfidence is assigned to results produced by the heuristic
	// fallback path. Kept well below typical analyzer confidence so degraded
	// results are distinguishable downstream.
	FallbackConfidence float64 `json:"fallbackConfidence" mapstructure:"fallbackConfidence" yaml:"fallbackConfidence"`
}

// BreakerConfig contains circuit breaker tuning.
// All four knobs are required; Validate rejects zero values so no component
// runs with a hidden default.
type BreakerConfig struct {
	FailureThreshold   int `json:"failureThreshold" mapstructure:"failureThreshold" yaml:"failureThreshold"`
	RecoveryTimeoutMs  int `json:"recoveryTimeoutMs" mapstructure:"recoveryTimeoutMs" yaml:"recoveryTimeoutMs"`
	RequestTimeoutMs   int `json:"requestTimeoutMs" mapstructure:"requestTimeoutMs" yaml:"requestTimeoutMs"`
	MonitoringWindowMs int `json:"monitoringWindowMs" mapstructure:"monitoringWindowMs" yaml:"monitoringWindowMs"`
}

// CacheConfig contains analysis cache configuration
type CacheConfig struct {
	TtlMs int `json:"ttlMs" mapstructure:"ttlMs" yaml:"ttlMs"`
}

// WatcherConfig contains file watcher configuration
type WatcherConfig struct {
	DebounceMs     int      `json:"debounceMs" mapstructure:"debounceMs" yaml:"debounceMs"`
	IncludeContent bool     `json:"includeContent" mapstructure:"includeContent" yaml:"includeContent"`
	IgnorePatterns []string `json:"ignorePatterns" mapstructure:"ignorePatterns" yaml:"ignorePatterns"`
	BufferSize     int      `json:"bufferSize" mapstructure:"bufferSize" yaml:"bufferSize"`
}

// StalenessConfig contains staleness detection configuration
type StalenessConfig struct {
	BufferMs int `json:"bufferMs" mapstructure:"bufferMs" yaml:"bufferMs"`
}

// LearningConfig contains whole-codebase learning configuration
type LearningConfig struct {
	TimeoutMs          int `json:"timeoutMs" mapstructure:"timeoutMs" yaml:"timeoutMs"`
	ProgressIntervalMs int `json:"progressIntervalMs" mapstructure:"progressIntervalMs" yaml:"progressIntervalMs"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format" yaml:"format"`
	Level  string `json:"level" mapstructure:"level" yaml:"level"`
}

// DefaultConfig returns the default configuration.
// The staleness buffer and learn timeout are hand-tuned defaults, not
// correctness constants; operators may override them freely.
func DefaultConfig() *Config {
	return &Config{
		Version:     1,
		ProjectRoot: ".",
		Analyzer: AnalyzerConfig{
			Endpoint:           "http://localhost:7461",
			FallbackConfidence: 0.35,
		},
		Breaker: BreakerConfig{
			FailureThreshold:   5,
			RecoveryTimeoutMs:  30000,
			RequestTimeoutMs:   10000,
			MonitoringWindowMs: 60000,
		},
		Cache: CacheConfig{
			TtlMs: 300000,
		},
		Watcher: WatcherConfig{
			DebounceMs:     500,
			IncludeContent: true,
			IgnorePatterns: []string{
				".git",
				".codemind",
				"node_modules",
				"vendor",
				"dist",
				"build",
				"target",
				"__pycache__",
				"*.log",
				"*.tmp",
				"*.swp",
			},
			BufferSize: 256,
		},
		Staleness: StalenessConfig{
			BufferMs: 300000,
		},
		Learning: LearningConfig{
			TimeoutMs:          300000,
			ProgressIntervalMs: 5000,
		},
		Logging: LoggingConfig{
			Format: "text",
			Level:  "info",
		},
	}
}

// Load loads configuration from <projectRoot>/.codemind/config.yaml with
// CODEMIND_* environment overrides. A missing file yields the defaults.
func Load(projectRoot string) (*Config, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("version", defaults.Version)
	v.SetDefault("projectRoot", projectRoot)
	v.SetDefault("analyzer.endpoint", defaults.Analyzer.Endpoint)
	v.SetDefault("analyzer.fallbackConfidence", defaults.Analyzer.FallbackConfidence)
	v.SetDefault("breaker.failureThreshold", defaults.Breaker.FailureThreshold)
	v.SetDefault("breaker.recoveryTimeoutMs", defaults.Breaker.RecoveryTimeoutMs)
	v.SetDefault("breaker.requestTimeoutMs", defaults.Breaker.RequestTimeoutMs)
	v.SetDefault("breaker.monitoringWindowMs", defaults.Breaker.MonitoringWindowMs)
	v.SetDefault("cache.ttlMs", defaults.Cache.TtlMs)
	v.SetDefault("watcher.debounceMs", defaults.Watcher.DebounceMs)
	v.SetDefault("watcher.includeContent", defaults.Watcher.IncludeContent)
	v.SetDefault("watcher.ignorePatterns", defaults.Watcher.IgnorePatterns)
	v.SetDefault("watcher.bufferSize", defaults.Watcher.BufferSize)
	v.SetDefault("staleness.bufferMs", defaults.Staleness.BufferMs)
	v.SetDefault("learning.timeoutMs", defaults.Learning.TimeoutMs)
	v.SetDefault("learning.progressIntervalMs", defaults.Learning.ProgressIntervalMs)
	v.SetDefault("logging.format", defaults.Logging.Format)
	v.SetDefault("logging.level", defaults.Logging.Level)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(projectRoot, ".codemind"))

	v.SetEnvPrefix("CODEMIND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// No config file, fall through with defaults + env
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to <projectRoot>/.codemind/config.yaml
func (c *Config) Save(projectRoot string) error {
	dir := filepath.Join(projectRoot, ".codemind")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(filepath.Join(dir, "config.yaml"), data, 0644)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Analyzer.FallbackConfidence <= 0 || c.Analyzer.FallbackConfidence > 1 {
		return fmt.Errorf("analyzer.fallbackConfidence must be in (0, 1], got %g", c.Analyzer.FallbackConfidence)
	}
	if c.Breaker.FailureThreshold <= 0 {
		return fmt.Errorf("breaker.failureThreshold must be positive, got %d", c.Breaker.FailureThreshold)
	}
	if c.Breaker.RecoveryTimeoutMs <= 0 {
		return fmt.Errorf("breaker.recoveryTimeoutMs must be positive, got %d", c.Breaker.RecoveryTimeoutMs)
	}
	if c.Breaker.RequestTimeoutMs <= 0 {
		return fmt.Errorf("breaker.requestTimeoutMs must be positive, got %d", c.Breaker.RequestTimeoutMs)
	}
	if c.Breaker.MonitoringWindowMs <= 0 {
		return fmt.Errorf("breaker.monitoringWindowMs must be positive, got %d", c.Breaker.MonitoringWindowMs)
	}
	if c.Cache.TtlMs <= 0 {
		return fmt.Errorf("cache.ttlMs must be positive, got %d", c.Cache.TtlMs)
	}
	if c.Watcher.DebounceMs <= 0 {
		return fmt.Errorf("watcher.debounceMs must be positive, got %d", c.Watcher.DebounceMs)
	}
	if c.Watcher.BufferSize <= 0 {
		return fmt.Errorf("watcher.bufferSize must be positive, got %d", c.Watcher.BufferSize)
	}
	if c.Staleness.BufferMs < 0 {
		return fmt.Errorf("staleness.bufferMs must not be negative, got %d", c.Staleness.BufferMs)
	}
	if c.Learning.TimeoutMs <= 0 {
		return fmt.Errorf("learning.timeoutMs must be positive, got %d", c.Learning.TimeoutMs)
	}
	if c.Learning.ProgressIntervalMs <= 0 {
		return fmt.Errorf("learning.progressIntervalMs must be positive, got %d", c.Learning.ProgressIntervalMs)
	}
	return nil
}

// RecoveryTimeout returns the breaker recovery timeout as a duration
func (c *BreakerConfig) RecoveryTimeout() time.Duration {
	return time.Duration(c.RecoveryTimeoutMs) * time.Millisecond
}

// RequestTimeout returns the breaker request timeout as a duration
func (c *BreakerConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

// MonitoringWindow returns the breaker monitoring window as a duration
func (c *BreakerConfig) MonitoringWindow() time.Duration {
	return time.Duration(c.MonitoringWindowMs) * time.Millisecond
}

// TTL returns the cache TTL as a duration
func (c *CacheConfig) TTL() time.Duration {
	return time.Duration(c.TtlMs) * time.Millisecond
}

// Debounce returns the watcher debounce interval as a duration
func (c *WatcherConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// Buffer returns the staleness buffer as a duration
func (c *StalenessConfig) Buffer() time.Duration {
	return time.Duration(c.BufferMs) * time.Millisecond
}

// Timeout returns the learning timeout as a duration
func (c *LearningConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// ProgressInterval returns the progress reporting interval as a duration
func (c *LearningConfig) ProgressInterval() time.Duration {
	return time.Duration(c.ProgressIntervalMs) * time.Millisecond
}

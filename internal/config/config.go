// Package config loads winnowd settings from the environment and an optional
// YAML file named by WINNOW_CONFIG. Environment variables win over file
// values, file values over defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Version is the winnowd release tag, stamped into the startup log.
const Version = "0.1.0"

// Config holds all winnowd configuration.
type Config struct {
	Listen          string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	Analysis AnalysisConfig
	Detector DetectorConfig
	Strategy StrategyConfig
}

// AnalysisConfig tunes the scheduler and the per-service windows.
type AnalysisConfig struct {
	SweepInterval time.Duration
	Debounce      time.Duration
	MaxPatterns   int
	HistorySize   int
}

// DetectorConfig holds anomaly detection thresholds. Zero values take the
// detector's own defaults.
type DetectorConfig struct {
	SpikeMultiplier      float64
	ErrorSurgeMultiplier float64
	ZThreshold           float64
	MinHistory           int
}

// StrategyConfig selects and configures the policy strategy.
type StrategyConfig struct {
	Name        string // "rules" or "openai"
	APIKey      string
	Model       string
	BaseURL     string
	TokenBudget int
}

// Load builds the configuration: defaults first, then the YAML file named by
// WINNOW_CONFIG when set, then environment variables.
func Load() (Config, error) {
	cfg := Config{
		Listen:          ":8080",
		LogLevel:        "info",
		LogFormat:       "json",
		ShutdownTimeout: 5 * time.Second,
		Analysis: AnalysisConfig{
			SweepInterval: time.Minute,
			Debounce:      2 * time.Second,
			MaxPatterns:   10000,
			HistorySize:   12,
		},
		Strategy: StrategyConfig{Name: "rules"},
	}

	if path := os.Getenv("WINNOW_CONFIG"); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

// Validate reports configuration problems, all collected into one error so a
// bad config is fixed in one round.
func (c Config) Validate() error {
	var problems []string

	if c.Listen == "" {
		problems = append(problems, "listen address must not be empty")
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		problems = append(problems, fmt.Sprintf("log format must be json or text, got %q", c.LogFormat))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("log level must be debug, info, warn or error, got %q", c.LogLevel))
	}
	if c.ShutdownTimeout <= 0 {
		problems = append(problems, "shutdown timeout must be positive")
	}
	if c.Analysis.SweepInterval <= 0 {
		problems = append(problems, "analysis interval must be positive")
	}
	if c.Analysis.Debounce <= 0 {
		problems = append(problems, "analysis debounce must be positive")
	}
	if c.Analysis.MaxPatterns <= 0 {
		problems = append(problems, "max patterns must be positive")
	}
	if c.Analysis.HistorySize <= 0 {
		problems = append(problems, "history size must be positive")
	}
	if c.Detector.SpikeMultiplier < 0 || c.Detector.ErrorSurgeMultiplier < 0 ||
		c.Detector.ZThreshold < 0 || c.Detector.MinHistory < 0 {
		problems = append(problems, "detector thresholds must not be negative")
	}
	if c.Strategy.Name == "openai" && c.Strategy.APIKey == "" {
		problems = append(problems, "openai strategy requires WINNOW_OPENAI_API_KEY")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Listen = getenv("WINNOW_LISTEN", cfg.Listen)
	cfg.LogLevel = getenv("WINNOW_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getenv("WINNOW_LOG_FORMAT", cfg.LogFormat)
	cfg.ShutdownTimeout = getenvDuration("WINNOW_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)

	cfg.Analysis.SweepInterval = getenvDuration("WINNOW_ANALYSIS_INTERVAL", cfg.Analysis.SweepInterval)
	cfg.Analysis.Debounce = getenvDuration("WINNOW_ANALYSIS_DEBOUNCE", cfg.Analysis.Debounce)
	cfg.Analysis.MaxPatterns = getenvInt("WINNOW_MAX_PATTERNS", cfg.Analysis.MaxPatterns)
	cfg.Analysis.HistorySize = getenvInt("WINNOW_HISTORY_SIZE", cfg.Analysis.HistorySize)

	cfg.Detector.SpikeMultiplier = getenvFloat("WINNOW_SPIKE_MULTIPLIER", cfg.Detector.SpikeMultiplier)
	cfg.Detector.ErrorSurgeMultiplier = getenvFloat("WINNOW_ERROR_SURGE_MULTIPLIER", cfg.Detector.ErrorSurgeMultiplier)
	cfg.Detector.ZThreshold = getenvFloat("WINNOW_Z_THRESHOLD", cfg.Detector.ZThreshold)
	cfg.Detector.MinHistory = getenvInt("WINNOW_MIN_HISTORY", cfg.Detector.MinHistory)

	cfg.Strategy.Name = getenv("WINNOW_STRATEGY", cfg.Strategy.Name)
	cfg.Strategy.APIKey = getenv("WINNOW_OPENAI_API_KEY", cfg.Strategy.APIKey)
	cfg.Strategy.Model = getenv("WINNOW_OPENAI_MODEL", cfg.Strategy.Model)
	cfg.Strategy.BaseURL = getenv("WINNOW_OPENAI_BASE_URL", cfg.Strategy.BaseURL)
	cfg.Strategy.TokenBudget = getenvInt("WINNOW_OPENAI_TOKEN_BUDGET", cfg.Strategy.TokenBudget)
}

// fileConfig mirrors Config with pointer fields so an absent key is
// distinguishable from a zero value. Durations are duration strings.
type fileConfig struct {
	Listen          *string `yaml:"listen"`
	LogLevel        *string `yaml:"log_level"`
	LogFormat       *string `yaml:"log_format"`
	ShutdownTimeout *string `yaml:"shutdown_timeout"`

	Analysis struct {
		SweepInterval *string `yaml:"sweep_interval"`
		Debounce      *string `yaml:"debounce"`
		MaxPatterns   *int    `yaml:"max_patterns"`
		HistorySize   *int    `yaml:"history_size"`
	} `yaml:"analysis"`

	Detector struct {
		SpikeMultiplier      *float64 `yaml:"spike_multiplier"`
		ErrorSurgeMultiplier *float64 `yaml:"error_surge_multiplier"`
		ZThreshold           *float64 `yaml:"z_threshold"`
		MinHistory           *int     `yaml:"min_history"`
	} `yaml:"detector"`

	Strategy struct {
		Name        *string `yaml:"name"`
		APIKey      *string `yaml:"openai_api_key"`
		Model       *string `yaml:"openai_model"`
		BaseURL     *string `yaml:"openai_base_url"`
		TokenBudget *int    `yaml:"openai_token_budget"`
	} `yaml:"strategy"`
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&cfg.Listen, fc.Listen)
	setString(&cfg.LogLevel, fc.LogLevel)
	setString(&cfg.LogFormat, fc.LogFormat)
	if err := setDuration(&cfg.ShutdownTimeout, fc.ShutdownTimeout); err != nil {
		return fmt.Errorf("config file %s: shutdown_timeout: %w", path, err)
	}

	if err := setDuration(&cfg.Analysis.SweepInterval, fc.Analysis.SweepInterval); err != nil {
		return fmt.Errorf("config file %s: analysis.sweep_interval: %w", path, err)
	}
	if err := setDuration(&cfg.Analysis.Debounce, fc.Analysis.Debounce); err != nil {
		return fmt.Errorf("config file %s: analysis.debounce: %w", path, err)
	}
	setInt(&cfg.Analysis.MaxPatterns, fc.Analysis.MaxPatterns)
	setInt(&cfg.Analysis.HistorySize, fc.Analysis.HistorySize)

	setFloat(&cfg.Detector.SpikeMultiplier, fc.Detector.SpikeMultiplier)
	setFloat(&cfg.Detector.ErrorSurgeMultiplier, fc.Detector.ErrorSurgeMultiplier)
	setFloat(&cfg.Detector.ZThreshold, fc.Detector.ZThreshold)
	setInt(&cfg.Detector.MinHistory, fc.Detector.MinHistory)

	setString(&cfg.Strategy.Name, fc.Strategy.Name)
	setString(&cfg.Strategy.APIKey, fc.Strategy.APIKey)
	setString(&cfg.Strategy.Model, fc.Strategy.Model)
	setString(&cfg.Strategy.BaseURL, fc.Strategy.BaseURL)
	setInt(&cfg.Strategy.TokenBudget, fc.Strategy.TokenBudget)
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *string) error {
	if v == nil {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("bad duration %q: %w", *v, err)
	}
	*dst = d
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

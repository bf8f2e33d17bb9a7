// Package config loads runtime settings. Values are layered: built-in
// defaults, then an optional YAML file, then environment variables
// (a .env file in the working directory is loaded first if present).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/keshon/kokoroflow/pkg/util"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "KFC_"

// FileEnv names the variable holding the optional YAML config path.
const FileEnv = EnvPrefix + "CONFIG_FILE"

type Config struct {
	General            General            `yaml:"general" envPrefix:"GENERAL_"`
	Wait               Wait               `yaml:"wait" envPrefix:"WAIT_"`
	Proactive          Proactive          `yaml:"proactive" envPrefix:"PROACTIVE_"`
	ContinuousThinking ContinuousThinking `yaml:"continuous_thinking" envPrefix:"THINKING_"`
	Prompt             Prompt             `yaml:"prompt" envPrefix:"PROMPT_"`
	Model              Model              `yaml:"model" envPrefix:"MODEL_"`
	Storage            Storage            `yaml:"storage" envPrefix:"STORAGE_"`
	Log                Log                `yaml:"log" envPrefix:"LOG_"`
	Discord            Discord            `yaml:"discord" envPrefix:"DISCORD_"`
}

type General struct {
	Enabled             bool `yaml:"enabled" env:"ENABLED"`
	NativeMultimodal    bool `yaml:"native_multimodal" env:"NATIVE_MULTIMODAL"`
	MaxImagesPerPayload int  `yaml:"max_images_per_payload" env:"MAX_IMAGES_PER_PAYLOAD"`
	MaxCompatRetries    int  `yaml:"max_compat_retries" env:"MAX_COMPAT_RETRIES"`
}

type Wait struct {
	Min                    time.Duration `yaml:"min" env:"MIN"`
	Max                    time.Duration `yaml:"max" env:"MAX"`
	Multiplier             float64       `yaml:"multiplier" env:"MULTIPLIER"`
	MaxConsecutiveTimeouts int           `yaml:"max_consecutive_timeouts" env:"MAX_CONSECUTIVE_TIMEOUTS"`
}

type Proactive struct {
	Enabled            bool          `yaml:"enabled" env:"ENABLED"`
	SilenceThreshold   time.Duration `yaml:"silence_threshold" env:"SILENCE_THRESHOLD"`
	TriggerProbability float64       `yaml:"trigger_probability" env:"TRIGGER_PROBABILITY"`
	MinInterval        time.Duration `yaml:"min_interval" env:"MIN_INTERVAL"`
	QuietHoursStart    string        `yaml:"quiet_hours_start" env:"QUIET_HOURS_START"`
	QuietHoursEnd      string        `yaml:"quiet_hours_end" env:"QUIET_HOURS_END"`
	CheckInterval      time.Duration `yaml:"check_interval" env:"CHECK_INTERVAL"`
}

// QuietHours parses the configured quiet window.
func (p Proactive) QuietHours() (util.Window, error) {
	return util.ParseWindow(p.QuietHoursStart, p.QuietHoursEnd)
}

type ContinuousThinking struct {
	Enabled            bool          `yaml:"enabled" env:"ENABLED"`
	ProgressThresholds []float64     `yaml:"progress_thresholds" env:"PROGRESS_THRESHOLDS" envSeparator:","`
	MinInterval        time.Duration `yaml:"min_interval" env:"MIN_INTERVAL"`
	CheckInterval      time.Duration `yaml:"check_interval" env:"CHECK_INTERVAL"`
}

type Prompt struct {
	MaxLogEntries int    `yaml:"max_log_entries" env:"MAX_LOG_ENTRIES"`
	LogFormat     string `yaml:"log_format" env:"LOG_FORMAT"` // narrative | table
}

type Model struct {
	BaseURL     string        `yaml:"base_url" env:"BASE_URL"`
	Name        string        `yaml:"name" env:"NAME"`
	APIKey      string        `yaml:"api_key" env:"API_KEY"`
	Timeout     time.Duration `yaml:"timeout" env:"TIMEOUT"`
	RPS         float64       `yaml:"rps" env:"RPS"`
	MaxAttempts int           `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
}

type Storage struct {
	Driver string `yaml:"driver" env:"DRIVER"` // json | sqlite
	Path   string `yaml:"path" env:"PATH"`
}

type Log struct {
	Level      string `yaml:"level" env:"LEVEL"`
	File       string `yaml:"file" env:"FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max_backups" env:"MAX_BACKUPS"`
	MaxAgeDays int    `yaml:"max_age_days" env:"MAX_AGE_DAYS"`
	Pretty     bool   `yaml:"pretty" env:"PRETTY"`
}

type Discord struct {
	Token string `yaml:"token" env:"TOKEN"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		General: General{
			Enabled:             true,
			NativeMultimodal:    false,
			MaxImagesPerPayload: 4,
			MaxCompatRetries:    1,
		},
		Wait: Wait{
			Min:                    10 * time.Second,
			Max:                    600 * time.Second,
			Multiplier:             1.0,
			MaxConsecutiveTimeouts: 3,
		},
		Proactive: Proactive{
			Enabled:            true,
			SilenceThreshold:   2 * time.Hour,
			TriggerProbability: 0.3,
			MinInterval:        30 * time.Minute,
			QuietHoursStart:    "23:00",
			QuietHoursEnd:      "07:00",
			CheckInterval:      time.Minute,
		},
		ContinuousThinking: ContinuousThinking{
			Enabled:            true,
			ProgressThresholds: []float64{0.3, 0.6, 0.85},
			MinInterval:        30 * time.Second,
			CheckInterval:      5 * time.Second,
		},
		Prompt: Prompt{
			MaxLogEntries: 50,
			LogFormat:     "narrative",
		},
		Model: Model{
			BaseURL:     "http://localhost:11434/v1",
			Name:        "qwen3:8b",
			Timeout:     60 * time.Second,
			RPS:         2,
			MaxAttempts: 3,
		},
		Storage: Storage{
			Driver: "json",
			Path:   "data/sessions.json",
		},
		Log: Log{
			Level:      "info",
			MaxSizeMB:  20,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
	}
}

// Load builds a Config. path may be empty, in which case KFC_CONFIG_FILE is
// consulted; a missing .env file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()

	if path == "" {
		path = os.Getenv(FileEnv)
	}
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error

	w := c.Wait
	if w.Min <= 0 || w.Max < w.Min {
		errs = append(errs, fmt.Errorf("wait: need 0 < min <= max, got %s/%s", w.Min, w.Max))
	}
	if w.Multiplier <= 0 {
		errs = append(errs, fmt.Errorf("wait: multiplier must be > 0, got %v", w.Multiplier))
	}
	if w.MaxConsecutiveTimeouts < 1 {
		errs = append(errs, fmt.Errorf("wait: max_consecutive_timeouts must be >= 1, got %d", w.MaxConsecutiveTimeouts))
	}

	p := c.Proactive
	if p.TriggerProbability < 0 || p.TriggerProbability > 1 {
		errs = append(errs, fmt.Errorf("proactive: trigger_probability must be in [0,1], got %v", p.TriggerProbability))
	}
	if _, err := p.QuietHours(); err != nil {
		errs = append(errs, fmt.Errorf("proactive: %w", err))
	}
	if p.CheckInterval <= 0 {
		errs = append(errs, errors.New("proactive: check_interval must be > 0"))
	}

	ct := c.ContinuousThinking
	if !slices.IsSorted(ct.ProgressThresholds) {
		errs = append(errs, fmt.Errorf("continuous_thinking: progress_thresholds must be ascending, got %v", ct.ProgressThresholds))
	}
	for _, th := range ct.ProgressThresholds {
		if th <= 0 || th > 1 {
			errs = append(errs, fmt.Errorf("continuous_thinking: threshold %v outside (0,1]", th))
		}
	}
	if ct.CheckInterval <= 0 {
		errs = append(errs, errors.New("continuous_thinking: check_interval must be > 0"))
	}

	if c.General.MaxImagesPerPayload < 0 {
		errs = append(errs, errors.New("general: max_images_per_payload must be >= 0"))
	}
	if c.General.MaxCompatRetries < 0 {
		errs = append(errs, errors.New("general: max_compat_retries must be >= 0"))
	}
	if c.Prompt.MaxLogEntries < 1 {
		errs = append(errs, errors.New("prompt: max_log_entries must be >= 1"))
	}
	switch c.Prompt.LogFormat {
	case "narrative", "table":
	default:
		errs = append(errs, fmt.Errorf("prompt: unknown log_format %q", c.Prompt.LogFormat))
	}
	switch c.Storage.Driver {
	case "json", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("storage: unknown driver %q", c.Storage.Driver))
	}

	return errors.Join(errs...)
}

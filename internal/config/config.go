// Package config provides application-wide configuration management.
// All configuration is loaded from a file and environment variables.
// Loop intervals, buffers, the dispatcher's task limit and the mining
// tau come from here; the strategy-run worker's fallbacks (see
// MiningConfig) are constants in its own package.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all system configuration. Loaded once at startup and
// passed as read-only to all components.
type Config struct {
	// DatabaseURL is the pgx connection string for the shared store.
	DatabaseURL string `json:"database_url" yaml:"database_url"`

	Broker   BrokerConfig   `json:"broker" yaml:"broker"`
	Ingester IngesterConfig `json:"ingester" yaml:"ingester"`
	Loops    LoopsConfig    `json:"loops" yaml:"loops"`
	Mining   MiningConfig   `json:"mining" yaml:"mining"`
	Calendar CalendarConfig `json:"calendar" yaml:"calendar"`
	Health   HealthConfig   `json:"health" yaml:"health"`
}

// BrokerConfig selects and configures the broker.Registry entry used
// for order placement.
type BrokerConfig struct {
	// Name is a broker.Registry key, e.g. "kite" or "simulate".
	Name         string `json:"name" yaml:"name"`
	APIKey       string `json:"api_key" yaml:"api_key"`
	APISecret    string `json:"api_secret" yaml:"api_secret"`
	AccessToken  string `json:"access_token" yaml:"access_token"`
	BaseURL      string `json:"base_url" yaml:"base_url"`
	PollInterval int    `json:"poll_interval_seconds" yaml:"poll_interval_seconds"`
}

// IngesterConfig points at the bar-data ingestion adapter.
type IngesterConfig struct {
	BaseURL string `json:"base_url" yaml:"base_url"`
	Retries int    `json:"retries" yaml:"retries"`
}

// LoopsConfig carries the poll intervals and dispatch windows for the
// three worker loops.
type LoopsConfig struct {
	RunPollIntervalSeconds      int `json:"run_poll_interval_seconds" yaml:"run_poll_interval_seconds"`
	DispatchPollIntervalSeconds int `json:"dispatch_poll_interval_seconds" yaml:"dispatch_poll_interval_seconds"`
	WatchdogPollIntervalSeconds int `json:"watchdog_poll_interval_seconds" yaml:"watchdog_poll_interval_seconds"`
	DispatcherBufferSeconds     int `json:"dispatcher_buffer_seconds" yaml:"dispatcher_buffer_seconds"`
	WatchdogBufferSeconds       int `json:"watchdog_buffer_seconds" yaml:"watchdog_buffer_seconds"`
	DispatcherTaskLimit         int `json:"dispatcher_task_limit" yaml:"dispatcher_task_limit"`
}

// DefaultLoopsConfig is the reference deployment shape: a 60s run
// loop, a 10s dispatch loop with a 170s buffer, and a 1800s watchdog
// loop with a 600s zombie buffer.
func DefaultLoopsConfig() LoopsConfig {
	return LoopsConfig{
		RunPollIntervalSeconds:      60,
		DispatchPollIntervalSeconds: 10,
		WatchdogPollIntervalSeconds: 1800,
		DispatcherBufferSeconds:     170,
		WatchdogBufferSeconds:       600,
		DispatcherTaskLimit:         10,
	}
}

// MiningConfig carries mining defaults. Only Tau reaches the
// strategy-run worker; DefaultLookbackDays, HorizontalGapOptions and
// ContinuousDays are validated but not read by any loop. When a run's
// config blob omits those values the worker uses its own constants (a
// 90-day lookback, horizontal gap 2, continuous days 3, 5, 7 and 10).
type MiningConfig struct {
	Tau                  float64   `json:"tau" yaml:"tau"`
	DefaultLookbackDays  int       `json:"default_lookback_days" yaml:"default_lookback_days"`
	HorizontalGapOptions []float64 `json:"horizontal_gap_options" yaml:"horizontal_gap_options"`
	ContinuousDays       int       `json:"continuous_days" yaml:"continuous_days"`
}

func DefaultMiningConfig() MiningConfig {
	return MiningConfig{
		Tau:                  0.75,
		DefaultLookbackDays:  180,
		HorizontalGapOptions: []float64{1, 2, 3},
		ContinuousDays:       5,
	}
}

// CalendarConfig points at the YAML holiday documents per exchange.
type CalendarConfig struct {
	NSEHolidaysPath string `json:"nse_holidays_path" yaml:"nse_holidays_path"`
	BSEHolidaysPath string `json:"bse_holidays_path" yaml:"bse_holidays_path"`
}

// HealthConfig configures the liveness/metrics HTTP server.
type HealthConfig struct {
	Port int `json:"port" yaml:"port"`
}

func DefaultHealthConfig() HealthConfig { return HealthConfig{Port: 8090} }

// Load reads configuration from a JSON or YAML file, chosen by
// extension (.yaml/.yml parses as YAML, anything else as JSON), then
// applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: resolve path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("config: read file %s: %w", absPath, err)
	}

	cfg := Config{
		Loops:  DefaultLoopsConfig(),
		Mining: DefaultMiningConfig(),
		Health: DefaultHealthConfig(),
	}

	ext := strings.ToLower(filepath.Ext(absPath))
	if ext == ".yaml" || ext == ".yml" {
		err = yaml.Unmarshal(data, &cfg)
	} else {
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", absPath, err)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides lets secrets and the database URL be injected at
// deploy time without editing the checked-in config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PATTERNCORE_DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("PATTERNCORE_BROKER_NAME"); v != "" {
		cfg.Broker.Name = v
	}
	if v := os.Getenv("PATTERNCORE_BROKER_API_KEY"); v != "" {
		cfg.Broker.APIKey = v
	}
	if v := os.Getenv("PATTERNCORE_BROKER_API_SECRET"); v != "" {
		cfg.Broker.APISecret = v
	}
	if v := os.Getenv("PATTERNCORE_BROKER_ACCESS_TOKEN"); v != "" {
		cfg.Broker.AccessToken = v
	}
	if v := os.Getenv("PATTERNCORE_HEALTH_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Health.Port = port
		}
	}
}

// Validate checks that all required configuration fields are present
// and sane.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url is required")
	}
	if c.Broker.Name == "" {
		return fmt.Errorf("broker.name is required")
	}
	if c.Ingester.BaseURL == "" {
		return fmt.Errorf("ingester.base_url is required")
	}
	if c.Calendar.NSEHolidaysPath == "" {
		return fmt.Errorf("calendar.nse_holidays_path is required")
	}

	if c.Loops.RunPollIntervalSeconds <= 0 {
		return fmt.Errorf("loops.run_poll_interval_seconds must be positive")
	}
	if c.Loops.DispatchPollIntervalSeconds <= 0 {
		return fmt.Errorf("loops.dispatch_poll_interval_seconds must be positive")
	}
	if c.Loops.WatchdogPollIntervalSeconds <= 0 {
		return fmt.Errorf("loops.watchdog_poll_interval_seconds must be positive")
	}
	if c.Loops.DispatcherBufferSeconds <= 0 {
		return fmt.Errorf("loops.dispatcher_buffer_seconds must be positive")
	}
	if c.Loops.WatchdogBufferSeconds <= 0 {
		return fmt.Errorf("loops.watchdog_buffer_seconds must be positive")
	}
	if c.Loops.DispatcherTaskLimit <= 0 {
		return fmt.Errorf("loops.dispatcher_task_limit must be positive")
	}

	if c.Mining.Tau <= 0 || c.Mining.Tau > 1 {
		return fmt.Errorf("mining.tau must be in (0, 1], got %f", c.Mining.Tau)
	}
	if c.Mining.DefaultLookbackDays <= 0 {
		return fmt.Errorf("mining.default_lookback_days must be positive")
	}
	if c.Mining.ContinuousDays <= 0 {
		return fmt.Errorf("mining.continuous_days must be positive")
	}
	if len(c.Mining.HorizontalGapOptions) == 0 {
		return fmt.Errorf("mining.horizontal_gap_options must not be empty")
	}

	if c.Broker.Name != "simulate" {
		if c.Broker.APIKey == "" || c.Broker.AccessToken == "" {
			return fmt.Errorf("broker.api_key and broker.access_token are required for broker %q", c.Broker.Name)
		}
	}

	return nil
}

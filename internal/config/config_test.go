package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const validJSONConfig = `{
	"database_url": "postgres://localhost/test",
	"broker": {"name": "simulate"},
	"ingester": {"base_url": "http://ingester.local", "retries": 3},
	"calendar": {"nse_holidays_path": "./holidays_nse.yaml", "bse_holidays_path": "./holidays_bse.yaml"}
}`

func TestLoad_ValidJSON_AppliesDefaults(t *testing.T) {
	path := writeTestConfig(t, "config.json", validJSONConfig)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/test", cfg.DatabaseURL)
	assert.Equal(t, "simulate", cfg.Broker.Name)
	assert.Equal(t, 60, cfg.Loops.RunPollIntervalSeconds)
	assert.Equal(t, 170, cfg.Loops.DispatcherBufferSeconds)
	assert.Equal(t, 600, cfg.Loops.WatchdogBufferSeconds)
	assert.Equal(t, 0.75, cfg.Mining.Tau)
}

func TestLoad_ValidYAML(t *testing.T) {
	path := writeTestConfig(t, "config.yaml", `
database_url: postgres://localhost/test
broker:
  name: simulate
ingester:
  base_url: http://ingester.local
calendar:
  nse_holidays_path: ./holidays_nse.yaml
  bse_holidays_path: ./holidays_bse.yaml
mining:
  tau: 0.8
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.8, cfg.Mining.Tau)
}

func TestLoad_EnvOverridesDatabaseURL(t *testing.T) {
	path := writeTestConfig(t, "config.json", validJSONConfig)

	t.Setenv("PATTERNCORE_DATABASE_URL", "postgres://override/test")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://override/test", cfg.DatabaseURL)
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	path := writeTestConfig(t, "config.json", `{
		"broker": {"name": "simulate"},
		"ingester": {"base_url": "http://ingester.local"},
		"calendar": {"nse_holidays_path": "./holidays_nse.yaml"}
	}`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database_url")
}

func TestValidate_NonSimulateBrokerRequiresCredentials(t *testing.T) {
	cfg := Config{
		DatabaseURL: "postgres://localhost/test",
		Broker:      BrokerConfig{Name: "kite"},
		Ingester:    IngesterConfig{BaseURL: "http://ingester.local"},
		Calendar:    CalendarConfig{NSEHolidaysPath: "./holidays_nse.yaml"},
		Loops:       DefaultLoopsConfig(),
		Mining:      DefaultMiningConfig(),
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker.api_key")
}

func TestValidate_SimulateBrokerSkipsCredentialCheck(t *testing.T) {
	cfg := Config{
		DatabaseURL: "postgres://localhost/test",
		Broker:      BrokerConfig{Name: "simulate"},
		Ingester:    IngesterConfig{BaseURL: "http://ingester.local"},
		Calendar:    CalendarConfig{NSEHolidaysPath: "./holidays_nse.yaml"},
		Loops:       DefaultLoopsConfig(),
		Mining:      DefaultMiningConfig(),
	}

	assert.NoError(t, cfg.Validate())
}

func TestValidate_RejectsTauOutOfRange(t *testing.T) {
	cfg := Config{
		DatabaseURL: "postgres://localhost/test",
		Broker:      BrokerConfig{Name: "simulate"},
		Ingester:    IngesterConfig{BaseURL: "http://ingester.local"},
		Calendar:    CalendarConfig{NSEHolidaysPath: "./holidays_nse.yaml"},
		Loops:       DefaultLoopsConfig(),
		Mining:      MiningConfig{Tau: 1.5, DefaultLookbackDays: 180, ContinuousDays: 5, HorizontalGapOptions: []float64{1}},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mining.tau")
}

func TestValidate_RejectsNonPositiveLoopIntervals(t *testing.T) {
	cfg := Config{
		DatabaseURL: "postgres://localhost/test",
		Broker:      BrokerConfig{Name: "simulate"},
		Ingester:    IngesterConfig{BaseURL: "http://ingester.local"},
		Calendar:    CalendarConfig{NSEHolidaysPath: "./holidays_nse.yaml"},
		Loops:       LoopsConfig{},
		Mining:      DefaultMiningConfig(),
	}

	require.Error(t, cfg.Validate())
}

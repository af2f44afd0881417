// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	// Verify a few key defaults to ensure the mechanism works.
	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "triage", cfg.Logger().ServiceName)
	assert.Equal(t, "green", cfg.Logger().Colors.Info)
	assert.Equal(t, []string{"situations"}, cfg.Library().Paths)
	assert.Equal(t, 1.0, cfg.Library().Threshold)
	assert.Equal(t, 500*time.Millisecond, cfg.Library().Debounce)
	assert.Equal(t, 2, cfg.Supervisor().RetryBudget)
	assert.Equal(t, "/bin/sh", cfg.Worker().Shell)
	assert.True(t, cfg.Worker().PollFeed)
	assert.Equal(t, StoreNone, cfg.Store().Type)
	assert.NoError(t, cfg.Validate())
}

func TestSetters(t *testing.T) {
	cfg := NewDefaultConfig()
	var iface Interface = cfg

	iface.SetLibraryPaths([]string{"a", "b"})
	iface.SetLibraryThreshold(0.5)
	iface.SetSupervisorRetryBudget(7)
	iface.SetSupervisorWorkDir("/scratch")

	assert.Equal(t, []string{"a", "b"}, iface.Library().Paths)
	assert.Equal(t, 0.5, iface.Library().Threshold)
	assert.Equal(t, 7, iface.Supervisor().RetryBudget)
	assert.Equal(t, "/scratch", iface.Supervisor().WorkDir)
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Library Validation", func(t *testing.T) {
		valid := NewDefaultConfig().LibraryCfg
		assert.NoError(t, valid.Validate())

		for _, th := range []float64{0, -1, 1.5} {
			bad := valid
			bad.Threshold = th
			err := bad.Validate()
			assert.Error(t, err)
			assert.Contains(t, err.Error(), "threshold must be in (0, 1]")
		}

		badConcurrency := valid
		badConcurrency.Concurrency = 0
		assert.ErrorContains(t, badConcurrency.Validate(), "concurrency must be a positive integer")

		watchNoDebounce := valid
		watchNoDebounce.Watch = true
		watchNoDebounce.Debounce = 0
		assert.ErrorContains(t, watchNoDebounce.Validate(), "debounce must be a positive duration")
	})

	t.Run("Supervisor Validation", func(t *testing.T) {
		valid := NewDefaultConfig().SupervisorCfg
		assert.NoError(t, valid.Validate())

		zeroBudget := valid
		zeroBudget.RetryBudget = 0
		assert.NoError(t, zeroBudget.Validate(), "a zero budget disables retries")

		negative := valid
		negative.RetryBudget = -1
		assert.ErrorContains(t, negative.Validate(), "retry_budget must not be negative")

		noDir := valid
		noDir.WorkDir = ""
		assert.ErrorContains(t, noDir.Validate(), "work_dir is required")

		noLineages := valid
		noLineages.LineageConcurrency = 0
		assert.ErrorContains(t, noLineages.Validate(), "lineage_concurrency must be a positive integer")
	})

	t.Run("Store Validation", func(t *testing.T) {
		assert.NoError(t, (&StoreConfig{Type: StoreNone}).Validate())
		assert.NoError(t, (&StoreConfig{Type: StoreSQLite, SQLitePath: "x.db"}).Validate())
		assert.NoError(t, (&StoreConfig{Type: StorePostgres, PostgresURL: "postgres://h/db"}).Validate())
		assert.ErrorContains(t, (&StoreConfig{Type: StorePostgres}).Validate(), "TRIAGE_DATABASE_URL")
		assert.ErrorContains(t, (&StoreConfig{Type: StoreSQLite}).Validate(), "sqlite_path is required")
		assert.ErrorContains(t, (&StoreConfig{Type: "redis"}).Validate(), "unknown store type")
	})
}

// -- Factory Function Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Successful Load from YAML", func(t *testing.T) {
		yamlBytes := []byte(`
library:
  paths: [/etc/triage/situations, ~/situations]
  threshold: 0.75
  watch: true
  debounce: 2s
supervisor:
  retry_budget: 5
  retry_interval: 10s
store:
  type: sqlite
  sqlite_path: /tmp/triage.db
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlBytes)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, []string{"/etc/triage/situations", "~/situations"}, cfg.Library().Paths)
		assert.Equal(t, 0.75, cfg.Library().Threshold)
		assert.True(t, cfg.Library().Watch)
		assert.Equal(t, 2*time.Second, cfg.Library().Debounce)
		assert.Equal(t, 5, cfg.Supervisor().RetryBudget)
		assert.Equal(t, 10*time.Second, cfg.Supervisor().RetryInterval)
		assert.Equal(t, StoreSQLite, cfg.Store().Type)
		// Check a default value was also loaded
		assert.Equal(t, "info", cfg.Logger().Level)
		assert.Equal(t, 4, cfg.Supervisor().LineageConcurrency)
	})

	t.Run("Validation Failure", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("library.threshold", 0)

		cfg, err := NewConfigFromViper(v)
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid configuration")
		assert.Contains(t, err.Error(), "threshold must be in (0, 1]")
	})

	t.Run("Environment Variable Binding", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)

		yamlConfig := []byte(`
store:
  type: postgres
  postgres_url: "postgres://configfile/db"
`)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlConfig)))

		testDBURL := "postgres://envvar/db"
		t.Setenv("TRIAGE_DATABASE_URL", testDBURL)

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		// The env var overrides the value from the config buffer.
		assert.Equal(t, testDBURL, cfg.Store().PostgresURL)
	})
}

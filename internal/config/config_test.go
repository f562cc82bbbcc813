package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 90.0, cfg.Ownership.DecayHalfLifeDays)
	assert.Equal(t, 180.0, cfg.Ownership.StaleWindowDays)
	assert.Equal(t, 5, cfg.Availability.MaxCapacityDefault)
	assert.Equal(t, 0.4, cfg.Complexity.WeightSize)
	assert.Equal(t, 0.4, cfg.Complexity.WeightChurn)
	assert.Equal(t, 0.2, cfg.Complexity.WeightAuthors)
	assert.NotEmpty(t, cfg.Assignment.EscalationTarget)
	assert.Equal(t, "storage", cfg.Availability.Backend)
	assert.Equal(t, "info", cfg.Logging.Level)

	result := cfg.Validate(ValidationContextAssign)
	assert.False(t, result.HasErrors(), result.Error())
}

func TestLoadFromFile(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "ghp_test")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
ownership:
  decay_half_life_days: 30
assignment:
  escalation_target: lead@example.com
  availability_timeout: 500ms
availability:
  engineers:
    - id: alice@example.com
      away: true
    - id: bob@example.com
      capacity: 2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 30.0, cfg.Ownership.DecayHalfLifeDays)
	assert.Equal(t, "lead@example.com", cfg.Assignment.EscalationTarget)
	assert.Equal(t, 500*time.Millisecond, cfg.Assignment.AvailabilityTimeout)
	require.Len(t, cfg.Availability.Engineers, 2)
	assert.True(t, cfg.Availability.Engineers[0].Away)
	assert.Equal(t, 2, cfg.Availability.Engineers[1].Capacity)
	assert.Equal(t, "ghp_test", cfg.GitHub.Token)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "ghp_test")
	t.Setenv("COMPLEXITY_WEIGHT_SIZE", "0.7")
	t.Setenv("MAX_CAPACITY_DEFAULT", "9")
	t.Setenv("ESCALATION_TARGET", "oncall")

	cfg := Default()
	applyEnvOverrides(cfg)

	assert.Equal(t, 0.7, cfg.Complexity.WeightSize)
	assert.Equal(t, 9, cfg.Availability.MaxCapacityDefault)
	assert.Equal(t, "oncall", cfg.Assignment.EscalationTarget)
}

func TestLoggingSection(t *testing.T) {
	t.Setenv("LOG_JSON", "true")
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
logging:
  level: debug
  file: /var/log/brouter/brouter.log
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "/var/log/brouter/brouter.log", cfg.Logging.File)
	assert.True(t, cfg.Logging.JSON)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"zero half-life", func(c *Config) { c.Ownership.DecayHalfLifeDays = 0 }, true},
		{"negative weight", func(c *Config) { c.Complexity.WeightChurn = -1 }, true},
		{"no escalation target", func(c *Config) { c.Assignment.EscalationTarget = "" }, true},
		{"unknown backend", func(c *Config) { c.Availability.Backend = "zookeeper" }, true},
		{"memory backend", func(c *Config) { c.Availability.Backend = "memory" }, false},
		{"unknown log level", func(c *Config) { c.Logging.Level = "chatty" }, true},
		{"postgres without dsn", func(c *Config) { c.Storage.Type = "postgres" }, true},
		{"engineer without id", func(c *Config) {
			c.Availability.Engineers = []EngineerConfig{{Capacity: 1}}
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			result := cfg.Validate(ValidationContextAssign)
			assert.Equal(t, tt.wantErr, result.HasErrors(), result.Error())
			if tt.wantErr {
				assert.Error(t, result.Err())
			} else {
				assert.NoError(t, result.Err())
			}
		})
	}
}

package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/semops-labs/som/core/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := config.DefaultConfig()

	assert.Equal(t, "som-core", cfg.SourceSystem)
	assert.Equal(t, 3, cfg.MaxConcurrentPositions)
	assert.Equal(t, 365, cfg.MaxEventAgeDays)
	assert.Equal(t, 60, cfg.MaxEventLeadMinutes)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "som.yaml")
	raw := `
source_system: hr-feed
max_concurrent_positions: 2
monitoring:
  metrics_retention_minutes: 15
  alert_thresholds:
    validation_failure_rate: 0.25
    query_error_rate: 0.05
    processing_latency_p95_ms: 1000
    query_latency_p95_ms: 500
    constraint_violation_rate: 0.2
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "hr-feed", cfg.SourceSystem)
	assert.Equal(t, 2, cfg.MaxConcurrentPositions)
	assert.Equal(t, 15, cfg.Monitoring.MetricsRetentionMinutes)
	assert.InDelta(t, 0.25, cfg.Monitoring.AlertThresholds.ValidationFailureRate, 1e-9)
	// Unset keys keep their defaults.
	assert.Equal(t, 365, cfg.MaxEventAgeDays)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{nope"), 0o600))

	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestValidate_Rejects(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.MaxConcurrentPositions = 0
	assert.Error(t, cfg.Validate())

	cfg = config.DefaultConfig()
	cfg.Monitoring.AlertThresholds.QueryErrorRate = 1.5
	assert.Error(t, cfg.Validate())

	cfg = config.DefaultConfig()
	cfg.Monitoring.AlertThresholds.ProcessingLatencyP95Ms = 0
	assert.Error(t, cfg.Validate())
}

func TestDurationHelpers(t *testing.T) {
	cfg := config.DefaultConfig()
	assert.Equal(t, 300.0, cfg.ClockSkew().Seconds())
	assert.Equal(t, 365.0, cfg.MaxEventAge().Hours()/24)
	assert.Equal(t, 60.0, cfg.MaxEventLead().Minutes())
	assert.Equal(t, 60.0, cfg.Monitoring.Retention().Minutes())
}

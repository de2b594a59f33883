// Package config defines the core configuration record and its YAML loader.
// Every option has a default; no environment variables are required.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config enumerates the recognized options of the semantic core.
type Config struct {
	// SourceSystem attributes core-synthesized events.
	SourceSystem string `yaml:"source_system" json:"source_system"`
	// MaxConcurrentPositions caps simultaneously effective OCCUPIES edges
	// per person.
	MaxConcurrentPositions int `yaml:"max_concurrent_positions" json:"max_concurrent_positions"`
	// ClockSkewSeconds is the allowance when checking recordedAt against
	// occurredAt across reporting systems.
	ClockSkewSeconds int `yaml:"clock_skew_seconds" json:"clock_skew_seconds"`
	// MaxEventAgeDays bounds how far in the past occurredAt may lie.
	MaxEventAgeDays int `yaml:"max_event_age_days" json:"max_event_age_days"`
	// MaxEventLeadMinutes bounds how far in the future occurredAt may lie.
	MaxEventLeadMinutes int `yaml:"max_event_lead_minutes" json:"max_event_lead_minutes"`
	// ValidationLogCapacity caps retained validation log entries; zero
	// means unbounded.
	ValidationLogCapacity int `yaml:"validation_log_capacity" json:"validation_log_capacity"`

	Monitoring MonitoringConfig `yaml:"monitoring" json:"monitoring"`
}

// MonitoringConfig holds metric retention and alerting thresholds.
type MonitoringConfig struct {
	MetricsRetentionMinutes int             `yaml:"metrics_retention_minutes" json:"metrics_retention_minutes"`
	HealthCheckIntervalMs   int             `yaml:"health_check_interval_ms" json:"health_check_interval_ms"`
	AlertThresholds         AlertThresholds `yaml:"alert_thresholds" json:"alert_thresholds"`
}

// AlertThresholds are the trip points for the monitoring alert rules.
// Rates are fractions in [0,1]; latencies are milliseconds.
type AlertThresholds struct {
	ValidationFailureRate   float64 `yaml:"validation_failure_rate" json:"validation_failure_rate"`
	QueryErrorRate          float64 `yaml:"query_error_rate" json:"query_error_rate"`
	ProcessingLatencyP95Ms  float64 `yaml:"processing_latency_p95_ms" json:"processing_latency_p95_ms"`
	QueryLatencyP95Ms       float64 `yaml:"query_latency_p95_ms" json:"query_latency_p95_ms"`
	ConstraintViolationRate float64 `yaml:"constraint_violation_rate" json:"constraint_violation_rate"`
}

// DefaultConfig returns the reference configuration.
func DefaultConfig() *Config {
	return &Config{
		SourceSystem:           "som-core",
		MaxConcurrentPositions: 3,
		ClockSkewSeconds:       300,
		MaxEventAgeDays:        365,
		MaxEventLeadMinutes:    60,
		ValidationLogCapacity:  10000,
		Monitoring: MonitoringConfig{
			MetricsRetentionMinutes: 60,
			HealthCheckIntervalMs:   30000,
			AlertThresholds: AlertThresholds{
				ValidationFailureRate:   0.10,
				QueryErrorRate:          0.05,
				ProcessingLatencyP95Ms:  1000,
				QueryLatencyP95Ms:       500,
				ConstraintViolationRate: 0.20,
			},
		},
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %q: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects out-of-range options.
func (c *Config) Validate() error {
	if c.MaxConcurrentPositions < 1 {
		return fmt.Errorf("max_concurrent_positions must be >= 1, got %d", c.MaxConcurrentPositions)
	}
	if c.ClockSkewSeconds < 0 {
		return fmt.Errorf("clock_skew_seconds must be >= 0, got %d", c.ClockSkewSeconds)
	}
	if c.MaxEventAgeDays < 1 {
		return fmt.Errorf("max_event_age_days must be >= 1, got %d", c.MaxEventAgeDays)
	}
	if c.MaxEventLeadMinutes < 0 {
		return fmt.Errorf("max_event_lead_minutes must be >= 0, got %d", c.MaxEventLeadMinutes)
	}
	if c.Monitoring.MetricsRetentionMinutes < 1 {
		return fmt.Errorf("metrics_retention_minutes must be >= 1, got %d", c.Monitoring.MetricsRetentionMinutes)
	}
	t := c.Monitoring.AlertThresholds
	for name, rate := range map[string]float64{
		"validation_failure_rate":   t.ValidationFailureRate,
		"query_error_rate":          t.QueryErrorRate,
		"constraint_violation_rate": t.ConstraintViolationRate,
	} {
		if rate < 0 || rate > 1 {
			return fmt.Errorf("%s must be within [0,1], got %v", name, rate)
		}
	}
	if t.ProcessingLatencyP95Ms <= 0 || t.QueryLatencyP95Ms <= 0 {
		return fmt.Errorf("latency thresholds must be positive")
	}
	return nil
}

// ClockSkew returns the recording skew allowance as a duration.
func (c *Config) ClockSkew() time.Duration {
	return time.Duration(c.ClockSkewSeconds) * time.Second
}

// MaxEventAge returns the occurredAt past bound as a duration.
func (c *Config) MaxEventAge() time.Duration {
	return time.Duration(c.MaxEventAgeDays) * 24 * time.Hour
}

// MaxEventLead returns the occurredAt future bound as a duration.
func (c *Config) MaxEventLead() time.Duration {
	return time.Duration(c.MaxEventLeadMinutes) * time.Minute
}

// Retention returns the metric retention window as a duration.
func (m MonitoringConfig) Retention() time.Duration {
	return time.Duration(m.MetricsRetentionMinutes) * time.Minute
}

// HealthCheckInterval returns the health probe cadence as a duration.
func (m MonitoringConfig) HealthCheckInterval() time.Duration {
	return time.Duration(m.HealthCheckIntervalMs) * time.Millisecond
}

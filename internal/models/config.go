package models

import (
	"fmt"
	"time"
)

// SeverityThresholds decides when captured records raise alerts.
type SeverityThresholds struct {
	AlertOnCritical          bool `yaml:"alertOnCritical" json:"alertOnCritical"`
	AlertOnHigh              bool `yaml:"alertOnHigh" json:"alertOnHigh"`
	CriticalCountBeforeAlert int  `yaml:"criticalCountBeforeAlert" json:"criticalCountBeforeAlert"`
}

// StorageLimits bounds the record store.
type StorageLimits struct {
	MaxRecords    int `yaml:"maxRecords" json:"maxRecords"`
	RetentionDays int `yaml:"retentionDays" json:"retentionDays"`
}

// PerformanceConfig tunes buffering.
type PerformanceConfig struct {
	BatchSize     int           `yaml:"batchSize" json:"batchSize"`
	FlushInterval time.Duration `yaml:"flushInterval" json:"flushInterval"`
	FlushTimeout  time.Duration `yaml:"flushTimeout" json:"flushTimeout"`
}

// MonitoringConfig controls capture, buffering and alerting.
type MonitoringConfig struct {
	Enabled                  bool               `yaml:"enabled" json:"enabled"`
	CaptureUnhandledFailures bool               `yaml:"captureUnhandledFailures" json:"captureUnhandledFailures"`
	CaptureConsoleErrors     bool               `yaml:"captureConsoleErrors" json:"captureConsoleErrors"`
	SampleRate               float64            `yaml:"sampleRate" json:"sampleRate"`
	IgnoredPatterns          []string           `yaml:"ignoredPatterns" json:"ignoredPatterns"`
	SeverityThresholds       SeverityThresholds `yaml:"severityThresholds" json:"severityThresholds"`
	Storage                  StorageLimits      `yaml:"storage" json:"storage"`
	Performance              PerformanceConfig  `yaml:"performance" json:"performance"`
}

// DefaultMonitoringConfig returns the baseline configuration.
func DefaultMonitoringConfig() MonitoringConfig {
	return MonitoringConfig{
		Enabled:                  true,
		CaptureUnhandledFailures: true,
		SampleRate:               1.0,
		SeverityThresholds: SeverityThresholds{
			AlertOnCritical:          true,
			CriticalCountBeforeAlert: 3,
		},
		Storage: StorageLimits{MaxRecords: 10000, RetentionDays: 30},
		Performance: PerformanceConfig{
			BatchSize:     50,
			FlushInterval: 5 * time.Second,
			FlushTimeout:  10 * time.Second,
		},
	}
}

// Validate rejects values the pipeline cannot run with.
func (c MonitoringConfig) Validate() error {
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("sampleRate must be within [0,1], got %v", c.SampleRate)
	}
	if c.Performance.BatchSize <= 0 {
		return fmt.Errorf("performance.batchSize must be positive, got %d", c.Performance.BatchSize)
	}
	if c.Performance.FlushInterval <= 0 {
		return fmt.Errorf("performance.flushInterval must be positive, got %s", c.Performance.FlushInterval)
	}
	if c.Performance.FlushTimeout < 0 {
		return fmt.Errorf("performance.flushTimeout cannot be negative")
	}
	if c.Storage.MaxRecords <= 0 {
		return fmt.Errorf("storage.maxRecords must be positive, got %d", c.Storage.MaxRecords)
	}
	if c.Storage.RetentionDays <= 0 {
		return fmt.Errorf("storage.retentionDays must be positive, got %d", c.Storage.RetentionDays)
	}
	if c.SeverityThresholds.CriticalCountBeforeAlert < 0 {
		return fmt.Errorf("severityThresholds.criticalCountBeforeAlert cannot be negative")
	}
	return nil
}

// Sensitivity is a coarse preset over sampling and alert thresholds.
type Sensitivity string

const (
	SensitivityLow    Sensitivity = "low"
	SensitivityMedium Sensitivity = "medium"
	SensitivityHigh   Sensitivity = "high"
)

// Apply returns cfg adjusted for the sensitivity level.
func (s Sensitivity) Apply(cfg MonitoringConfig) (MonitoringConfig, error) {
	switch s {
	case SensitivityLow:
		cfg.SampleRate = 0.5
		cfg.SeverityThresholds.AlertOnHigh = false
		cfg.SeverityThresholds.CriticalCountBeforeAlert = 5
	case SensitivityMedium:
		cfg.SampleRate = 1.0
		cfg.SeverityThresholds.AlertOnHigh = false
		cfg.SeverityThresholds.CriticalCountBeforeAlert = 3
	case SensitivityHigh:
		cfg.SampleRate = 1.0
		cfg.SeverityThresholds.AlertOnHigh = true
		cfg.SeverityThresholds.CriticalCountBeforeAlert = 1
	default:
		return cfg, fmt.Errorf("unknown sensitivity %q", s)
	}
	cfg.SeverityThresholds.AlertOnCritical = true
	return cfg, nil
}

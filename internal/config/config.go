package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-heal/internal/models"
)

// EnvConfigPath names the variable consulted when no config path is given.
const EnvConfigPath = "MIRADOR_HEAL_CONFIG"

// Config captures every setting required to boot the telemetry service.
type Config struct {
	Server     ServerConfig            `yaml:"server"`
	Logging    LoggingConfig           `yaml:"logging"`
	Monitoring models.MonitoringConfig `yaml:"monitoring"`
	Storage    StorageConfig           `yaml:"storage"`
	Correction CorrectionConfig        `yaml:"correction"`
	Notify     NotifyConfig            `yaml:"notify"`
	Rules      RulesConfig             `yaml:"rules"`
	Cache      CacheConfig             `yaml:"cache"`
}

// ServerConfig controls gRPC and HTTP listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// StorageConfig controls persistence and retention scheduling. Capacity limits
// live under monitoring.storage.
type StorageConfig struct {
	SQLitePath      string        `yaml:"sqlitePath"`
	CleanupInterval time.Duration `yaml:"cleanupInterval"`
}

// CorrectionConfig tunes retries and circuit breaking.
type CorrectionConfig struct {
	MaxAttempts      int           `yaml:"maxAttempts"`
	BaseDelay        time.Duration `yaml:"baseDelay"`
	MaxDelay         time.Duration `yaml:"maxDelay"`
	BreakerThreshold int           `yaml:"breakerThreshold"`
	BreakerCooldown  time.Duration `yaml:"breakerCooldown"`
	Timeout          time.Duration `yaml:"timeout"`
}

// NotifyConfig configures outbound delivery.
type NotifyConfig struct {
	WebhookURL    string        `yaml:"webhookURL"`
	WebhookToken  string        `yaml:"webhookToken"`
	Timeout       time.Duration `yaml:"timeout"`
	AlertCooldown time.Duration `yaml:"alertCooldown"`
}

// RulesConfig points at the fix rule pack.
type RulesConfig struct {
	Path string `yaml:"path"`
}

// CacheConfig sizes the in-process cache used for alert suppression.
type CacheConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Shards     int           `yaml:"shards"`
	LifeWindow time.Duration `yaml:"lifeWindow"`
	MaxSizeMB  int           `yaml:"maxSizeMB"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = PathFromEnv()
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// PathFromEnv returns the config path named by MIRADOR_HEAL_CONFIG, if any.
func PathFromEnv() string {
	return os.Getenv(EnvConfigPath)
}

// Default returns the built-in configuration.
func Default() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50052",
			MetricsAddress:  ":2113",
			GracefulTimeout: 10 * time.Second,
		},
		Logging:    LoggingConfig{Level: "info", JSON: false},
		Monitoring: models.DefaultMonitoringConfig(),
		Storage: StorageConfig{
			CleanupInterval: time.Hour,
		},
		Correction: CorrectionConfig{
			MaxAttempts:      3,
			BaseDelay:        time.Second,
			MaxDelay:         30 * time.Second,
			BreakerThreshold: 5,
			BreakerCooldown:  time.Minute,
			Timeout:          10 * time.Second,
		},
		Notify: NotifyConfig{
			Timeout:       5 * time.Second,
			AlertCooldown: 5 * time.Minute,
		},
		Rules: RulesConfig{Path: "configs/rules/fixes.yaml"},
		Cache: CacheConfig{
			Enabled:    true,
			Shards:     64,
			LifeWindow: 10 * time.Minute,
			MaxSizeMB:  32,
		},
	}
}

// Validate rejects settings the service cannot start with.
func (c Config) Validate() error {
	if err := c.Monitoring.Validate(); err != nil {
		return fmt.Errorf("monitoring: %w", err)
	}
	if c.Correction.MaxAttempts <= 0 {
		return fmt.Errorf("correction.maxAttempts must be positive, got %d", c.Correction.MaxAttempts)
	}
	if c.Correction.BaseDelay < 0 || c.Correction.MaxDelay < c.Correction.BaseDelay {
		return fmt.Errorf("correction delays must satisfy 0 <= baseDelay <= maxDelay")
	}
	if c.Correction.BreakerThreshold <= 0 {
		return fmt.Errorf("correction.breakerThreshold must be positive, got %d", c.Correction.BreakerThreshold)
	}
	if c.Cache.Enabled && (c.Cache.Shards <= 0 || c.Cache.Shards&(c.Cache.Shards-1) != 0) {
		return fmt.Errorf("cache.shards must be a power of two, got %d", c.Cache.Shards)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MIRADOR_HEAL_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("MIRADOR_HEAL_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("MIRADOR_HEAL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MIRADOR_HEAL_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("MIRADOR_HEAL_ENABLED"); v != "" {
		cfg.Monitoring.Enabled = parseBool(v)
	}
	if v := os.Getenv("MIRADOR_HEAL_SAMPLE_RATE"); v != "" {
		if rate, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Monitoring.SampleRate = rate
		}
	}
	if v := os.Getenv("MIRADOR_HEAL_IGNORED_PATTERNS"); v != "" {
		cfg.Monitoring.IgnoredPatterns = splitList(v)
	}
	if v := os.Getenv("MIRADOR_HEAL_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Monitoring.Performance.BatchSize = n
		}
	}
	if v := os.Getenv("MIRADOR_HEAL_FLUSH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Monitoring.Performance.FlushInterval = d
		}
	}
	if v := os.Getenv("MIRADOR_HEAL_MAX_RECORDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Monitoring.Storage.MaxRecords = n
		}
	}
	if v := os.Getenv("MIRADOR_HEAL_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Monitoring.Storage.RetentionDays = n
		}
	}
	if v := os.Getenv("MIRADOR_HEAL_SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("MIRADOR_HEAL_CORRECTION_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Correction.MaxAttempts = n
		}
	}
	if v := os.Getenv("MIRADOR_HEAL_BREAKER_COOLDOWN"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Correction.BreakerCooldown = d
		}
	}
	if v := os.Getenv("MIRADOR_HEAL_WEBHOOK_URL"); v != "" {
		cfg.Notify.WebhookURL = v
	}
	if v := os.Getenv("MIRADOR_HEAL_WEBHOOK_TOKEN"); v != "" {
		cfg.Notify.WebhookToken = v
	}
	if v := os.Getenv("MIRADOR_HEAL_ALERT_COOLDOWN"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Notify.AlertCooldown = d
		}
	}
	if v := os.Getenv("MIRADOR_HEAL_RULES_PATH"); v != "" {
		cfg.Rules.Path = v
	}
	if v := os.Getenv("MIRADOR_HEAL_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = parseBool(v)
	}
}

func parseBool(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

package config

import (
	"log"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig               `yaml:"server"`
	Database   DatabaseConfig             `yaml:"database"`
	Log        LogConfig                  `yaml:"log"`
	Alerting   AlertingConfig             `yaml:"alerting"`
	Thresholds map[string]ThresholdConfig `yaml:"thresholds"`
	Classifier ClassifierConfig           `yaml:"classifier"`
	Summary    SummaryConfig              `yaml:"summary"`
	Push       PushConfig                 `yaml:"push"`
	WorkerPool WorkerPoolConfig           `yaml:"worker_pool"`
	Kafka      KafkaConfig                `yaml:"kafka"`
	Influx     InfluxConfig               `yaml:"influx"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port             int      `yaml:"port"`
	RateLimitPerSec  float64  `yaml:"rate_limit_per_sec"`
	RateLimitBurst   int      `yaml:"rate_limit_burst"`
	CacheTTLSeconds  int      `yaml:"cache_ttl_seconds"`
	ShutdownSeconds  int      `yaml:"shutdown_seconds"`
	AllowedWSOrigins []string `yaml:"allowed_ws_origins"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // postgres or sqlite
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	EnableTimescale        bool   `yaml:"enable_timescale"`
	LogSQL                 bool   `yaml:"log_sql"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level string `yaml:"level"`
	Env   string `yaml:"env"`
}

// AlertingConfig tunes the ingestion pipeline.
type AlertingConfig struct {
	HistoryWindow int `yaml:"history_window"`
}

// ThresholdConfig is one row of the per-sensor-type threshold table.
type ThresholdConfig struct {
	High      float64 `yaml:"high"`
	Critical  float64 `yaml:"critical"`
	Direction string  `yaml:"direction"` // above (default) or below
}

// ClassifierConfig configures the external risk classification oracle.
type ClassifierConfig struct {
	Mode                string        `yaml:"mode"` // http, chat, or empty to disable
	Endpoint            string        `yaml:"endpoint"`
	APIKey              string        `yaml:"api_key"`
	Model               string        `yaml:"model"`
	TimeoutMS           int           `yaml:"timeout_ms"`
	Timeout             time.Duration `yaml:"-"`
	BreakerThreshold    int           `yaml:"breaker_threshold"`
	BreakerResetSeconds int           `yaml:"breaker_reset_seconds"`
	BreakerReset        time.Duration `yaml:"-"`
}

// Enabled reports whether enough is configured to call the oracle.
func (c ClassifierConfig) Enabled() bool {
	return c.Mode != "" && c.Endpoint != "" && c.APIKey != ""
}

// SummaryConfig configures the generative summary oracle.
type SummaryConfig struct {
	Endpoint    string        `yaml:"endpoint"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	TimeoutMS   int           `yaml:"timeout_ms"`
	Timeout     time.Duration `yaml:"-"`
	AutoEnrich  bool          `yaml:"auto_enrich"`
}

// Enabled reports whether the summary oracle is configured.
func (c SummaryConfig) Enabled() bool {
	return c.Endpoint != "" && c.APIKey != ""
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// Enabled reports whether web push can be sent.
func (c PushConfig) Enabled() bool {
	return c.PublicKey != "" && c.PrivateKey != ""
}

// WorkerPoolConfig holds the configuration for the alert notification worker pool.
type WorkerPoolConfig struct {
	Size      int `yaml:"size"`
	QueueSize int `yaml:"queue_size"`
}

// KafkaConfig configures the alert event publisher. Empty brokers disables it.
type KafkaConfig struct {
	Brokers  []string `yaml:"brokers"`
	Topic    string   `yaml:"topic"`
	ClientID string   `yaml:"client_id"`
}

// InfluxConfig configures the reading time-series mirror. Empty URL disables it.
type InfluxConfig struct {
	URL         string `yaml:"url"`
	Token       string `yaml:"token"`
	Org         string `yaml:"org"`
	Bucket      string `yaml:"bucket"`
	Measurement string `yaml:"measurement"`
}

// Load reads the configuration from the given path. ${VAR} references in the
// file are expanded from the environment before decoding.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse decodes a YAML document and applies defaults.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(strings.NewReader(os.ExpandEnv(string(raw))))
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 20
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 5
	}
	if cfg.Server.ShutdownSeconds <= 0 {
		cfg.Server.ShutdownSeconds = 5
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	if cfg.Alerting.HistoryWindow <= 0 {
		cfg.Alerting.HistoryWindow = 10
	}

	if cfg.Classifier.TimeoutMS <= 0 {
		cfg.Classifier.TimeoutMS = 5000
	}
	cfg.Classifier.Timeout = time.Duration(cfg.Classifier.TimeoutMS) * time.Millisecond
	if cfg.Classifier.BreakerThreshold <= 0 {
		cfg.Classifier.BreakerThreshold = 5
	}
	if cfg.Classifier.BreakerResetSeconds <= 0 {
		cfg.Classifier.BreakerResetSeconds = 30
	}
	cfg.Classifier.BreakerReset = time.Duration(cfg.Classifier.BreakerResetSeconds) * time.Second
	if cfg.Classifier.Model == "" {
		cfg.Classifier.Model = "gpt-4o-mini"
	}

	if cfg.Summary.Model == "" {
		cfg.Summary.Model = "gpt-4o-mini"
	}
	if cfg.Summary.Temperature <= 0 {
		cfg.Summary.Temperature = 0.7
	}
	if cfg.Summary.MaxTokens <= 0 {
		cfg.Summary.MaxTokens = 500
	}
	if cfg.Summary.TimeoutMS <= 0 {
		cfg.Summary.TimeoutMS = 15000
	}
	cfg.Summary.Timeout = time.Duration(cfg.Summary.TimeoutMS) * time.Millisecond

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
	if cfg.WorkerPool.QueueSize <= 0 {
		cfg.WorkerPool.QueueSize = 64
	}

	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "alerts"
	}
	if cfg.Kafka.ClientID == "" {
		cfg.Kafka.ClientID = "safetyd"
	}

	if cfg.Influx.Measurement == "" {
		cfg.Influx.Measurement = "sensor_reading"
	}
}

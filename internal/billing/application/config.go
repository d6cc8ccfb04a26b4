package application

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the billing service configuration.
type Config struct {
	HTTPAddr      string           `yaml:"http_addr"`
	DatabaseURL   string           `yaml:"database_url"`
	Currency      string           `yaml:"currency"`
	DefaultPlanID string           `yaml:"default_plan_id"`
	Batch         BatchConfig      `yaml:"batch"`
	Schedule      ScheduleConfig   `yaml:"schedule"`
	Settlement    SettlementConfig `yaml:"settlement"`
	Notify        NotifyConfig     `yaml:"notify"`
	Usage         UsageConfig      `yaml:"usage"`
	Logging       LoggingConfig    `yaml:"logging"`
}

// BatchConfig controls chunked deduction commits.
type BatchConfig struct {
	ChunkSize   int           `yaml:"chunk_size"`
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	Multiplier  float64       `yaml:"multiplier"`
}

// ScheduleConfig defines when the daily batch and monthly invoicing run.
type ScheduleConfig struct {
	DailyAt           string `yaml:"daily_at"`
	InvoiceDay        int    `yaml:"invoice_day"`
	SyncAfterInvoices bool   `yaml:"sync_after_invoices"`
}

// SettlementConfig points at the external settlement API.
type SettlementConfig struct {
	URL     string        `yaml:"url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// NotifyConfig selects alert sinks. Empty values disable a sink.
type NotifyConfig struct {
	WebhookURL   string   `yaml:"webhook_url"`
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`
}

// UsageConfig selects the meter usage source.
type UsageConfig struct {
	Source string `yaml:"source"`
	Seed   int64  `yaml:"seed"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

const (
	UsageSimulated = "simulated"
	UsagePostgres  = "postgres"
)

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:      ":8080",
		Currency:      "INR",
		DefaultPlanID: "A1",
		Batch: BatchConfig{
			ChunkSize:   DefaultChunkSize,
			MaxAttempts: 2,
			BaseDelay:   12 * time.Second,
			Multiplier:  2,
		},
		Schedule: ScheduleConfig{
			DailyAt:           "01:00",
			InvoiceDay:        1,
			SyncAfterInvoices: true,
		},
		Settlement: SettlementConfig{Timeout: 10 * time.Second},
		Notify:     NotifyConfig{KafkaTopic: "billing.alerts"},
		Usage:      UsageConfig{Source: UsageSimulated},
		Logging:    LoggingConfig{Level: "info", Format: "json"},
	}
}

// LoadConfig loads defaults, then the yaml file named by BILLING_CONFIG, then env overrides.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()

	if path := os.Getenv("BILLING_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("billing config: %w", err)
		}
	}

	cfg.DatabaseURL = getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", cfg.DatabaseURL))
	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", cfg.HTTPAddr)
	cfg.Schedule.DailyAt = getenvDefault("BILLING_DAILY_AT", cfg.Schedule.DailyAt)
	cfg.Settlement.URL = getenvDefault("SETTLEMENT_URL", cfg.Settlement.URL)
	cfg.Settlement.Token = getenvDefault("SETTLEMENT_TOKEN", cfg.Settlement.Token)
	cfg.Notify.WebhookURL = getenvDefault("NOTIFY_WEBHOOK_URL", cfg.Notify.WebhookURL)
	if brokers := splitCSV(os.Getenv("NOTIFY_KAFKA_BROKERS")); len(brokers) > 0 {
		cfg.Notify.KafkaBrokers = brokers
	}
	cfg.Notify.KafkaTopic = getenvDefault("NOTIFY_KAFKA_TOPIC", cfg.Notify.KafkaTopic)
	cfg.Logging.Level = getenvDefault("LOG_LEVEL", cfg.Logging.Level)
	cfg.Usage.Source = getenvDefault("USAGE_SOURCE", cfg.Usage.Source)
	cfg.Usage.Seed = getenvInt64Default("USAGE_SEED", cfg.Usage.Seed)

	return cfg, cfg.Validate()
}

// Validate rejects settings the services cannot run with.
func (c Config) Validate() error {
	if c.Batch.ChunkSize <= 0 {
		return errors.New("billing config: batch.chunk_size must be positive")
	}
	if c.Batch.MaxAttempts <= 0 {
		return errors.New("billing config: batch.max_attempts must be positive")
	}
	if c.Batch.BaseDelay < 0 {
		return errors.New("billing config: batch.base_delay must not be negative")
	}
	if _, _, err := parseDailyAt(c.Schedule.DailyAt); err != nil {
		return fmt.Errorf("billing config: schedule.daily_at %q: %w", c.Schedule.DailyAt, err)
	}
	if c.Schedule.InvoiceDay < 0 || c.Schedule.InvoiceDay > 28 {
		return errors.New("billing config: schedule.invoice_day must be within 0..28")
	}
	switch c.Usage.Source {
	case UsageSimulated, UsagePostgres:
	default:
		return fmt.Errorf("billing config: unknown usage source %q", c.Usage.Source)
	}
	if c.Usage.Source == UsagePostgres && c.DatabaseURL == "" {
		return errors.New("billing config: postgres usage source needs database_url")
	}
	return nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt64Default(key string, fallback int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	var result []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}

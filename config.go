package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"settlement-service/database"
	awspkg "settlement-service/pkg/aws"
	"settlement-service/sender"

	"github.com/joho/godotenv"
)

const dbSecretName = "settlement/DB_CREDENTIALS"

// Config holds all configuration for the settlement service.
type Config struct {
	Port     string
	Env      string
	Postgres database.PostgresConfig
	RedisURL string

	NotificationSNSTopicARN string
	PromotionSNSTopicARN    string
	OrderSNSTopicARN        string
	PaymentEventsQueueURL   string

	ReminderInterval  time.Duration
	ReminderLockTTL   time.Duration
	ReminderBatchSize int
	StoreURL          string

	RateLimitPerMinute int
	AllowedOrigins     []string

	CloudWatchLogGroup string
	MetricsEnabled     bool
	MetricsNamespace   string

	SMTP sender.SMTPConfig
}

// secretReader is the part of the Secrets Manager client used to override DB credentials.
type secretReader interface {
	GetSecretMap(ctx context.Context, name string) (map[string]string, error)
}

// LoadConfig reads configuration from an optional .env file and environment variables, with an
// optional Secrets Manager override for database credentials.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg, err := configFromEnv()
	if err != nil {
		return nil, err
	}

	// Override DB credentials from Secrets Manager when running on AWS
	if os.Getenv("AWS_USE_SECRETS") == "true" {
		if awsCfg, err := awspkg.LoadAWSConfig(context.Background()); err == nil {
			applyDBSecret(context.Background(), cfg, awspkg.NewSecretsClient(awsCfg))
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func configFromEnv() (*Config, error) {
	cfg := &Config{
		Port: getEnv("PORT", "8095"),
		Env:  getEnv("APP_ENV", "development"),
		Postgres: database.PostgresConfig{
			Host:     os.Getenv("POSTGRES_HOST"),
			Port:     getEnv("POSTGRES_PORT", "5432"),
			User:     os.Getenv("POSTGRES_USER"),
			Password: os.Getenv("POSTGRES_PASSWORD"),
			DBName:   os.Getenv("POSTGRES_DB"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
			TimeZone: getEnv("POSTGRES_TIMEZONE", "Asia/Kolkata"),
		},
		RedisURL:                os.Getenv("REDIS_URL"),
		NotificationSNSTopicARN: os.Getenv("NOTIFICATION_SNS_TOPIC_ARN"),
		PromotionSNSTopicARN:    os.Getenv("PROMOTION_SNS_TOPIC_ARN"),
		OrderSNSTopicARN:        os.Getenv("ORDER_SNS_TOPIC_ARN"),
		PaymentEventsQueueURL:   os.Getenv("PAYMENT_EVENTS_QUEUE_URL"),
		StoreURL:                getEnv("STORE_URL", "http://localhost:3000"),
		AllowedOrigins:          splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		CloudWatchLogGroup:      os.Getenv("CLOUDWATCH_LOG_GROUP"),
		MetricsEnabled:          os.Getenv("CLOUDWATCH_METRICS_ENABLED") == "true",
		MetricsNamespace:        getEnv("CLOUDWATCH_METRICS_NAMESPACE", "ECommerce/Settlement"),
		SMTP: sender.SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getEnv("SMTP_PORT", "587"),
			Username: os.Getenv("SMTP_USER"),
			Password: os.Getenv("SMTP_PASS"),
			From:     os.Getenv("SMTP_FROM"),
		},
	}

	var err error
	if cfg.ReminderInterval, err = getDuration("REMINDER_INTERVAL", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.ReminderLockTTL, err = getDuration("REMINDER_LOCK_TTL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.ReminderBatchSize, err = getInt("REMINDER_BATCH_SIZE", 200); err != nil {
		return nil, err
	}
	if cfg.RateLimitPerMinute, err = getInt("RATE_LIMIT_PER_MINUTE", 100); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDBSecret(ctx context.Context, cfg *Config, sm secretReader) {
	m, err := sm.GetSecretMap(ctx, dbSecretName)
	if err != nil {
		return
	}
	if v, ok := m["POSTGRES_USER"]; ok && v != "" {
		cfg.Postgres.User = v
	}
	if v, ok := m["POSTGRES_PASSWORD"]; ok && v != "" {
		cfg.Postgres.Password = v
	}
	if v, ok := m["POSTGRES_DB"]; ok && v != "" {
		cfg.Postgres.DBName = v
	}
	if v, ok := m["POSTGRES_HOST"]; ok && v != "" {
		cfg.Postgres.Host = v
	}
	if v, ok := m["POSTGRES_PORT"]; ok && v != "" {
		cfg.Postgres.Port = v
	}
}

func (c *Config) validate() error {
	p := c.Postgres
	if p.User == "" || p.Password == "" || p.DBName == "" || p.Host == "" {
		return fmt.Errorf("database config incomplete")
	}
	if c.ReminderInterval <= 0 {
		return fmt.Errorf("REMINDER_INTERVAL must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DBConfig struct {
		DBHost     string `env:"SAGA_DB_HOST"`
		DBPort     string `env:"SAGA_DB_PORT"`
		DBUser     string `env:"SAGA_DB_USER"`
		DBPassword string `env:"SAGA_DB_PASSWORD"`
		DBName     string `env:"SAGA_DB_NAME"`
		DBSSLMode  string `env:"SAGA_DB_SSLMODE"`
	}

	KafkaURL           string `env:"KAFKA_BROKER_URL"`
	KafkaConsumerGroup string `env:"KAFKA_CONSUMER_GROUP"`

	// request topics (outbound via outbox)
	PricingRequestTopic        string `env:"KAFKA_PRICING_REQUEST_TOPIC"`
	InventoryRequestTopic      string `env:"KAFKA_INVENTORY_REQUEST_TOPIC"`
	CardValidationRequestTopic string `env:"KAFKA_CARD_VALIDATION_REQUEST_TOPIC"`
	PaymentRequestTopic        string `env:"KAFKA_PAYMENT_REQUEST_TOPIC"`
	DeliveryRequestTopic       string `env:"KAFKA_DELIVERY_REQUEST_TOPIC"`
	NotificationsTopic         string `env:"KAFKA_NOTIFICATIONS_TOPIC"`

	// response topics (inbound)
	PricingResponseTopic        string `env:"KAFKA_PRICING_RESPONSE_TOPIC"`
	InventoryResponseTopic      string `env:"KAFKA_INVENTORY_RESPONSE_TOPIC"`
	CardValidationResponseTopic string `env:"KAFKA_CARD_VALIDATION_RESPONSE_TOPIC"`
	PaymentResponseTopic        string `env:"KAFKA_PAYMENT_RESPONSE_TOPIC"`
	DeliveryResponseTopic       string `env:"KAFKA_DELIVERY_RESPONSE_TOPIC"`

	OutboxPollInterval  time.Duration `env:"OUTBOX_POLL_INTERVAL"`
	OutboxPollTimeout   time.Duration `env:"OUTBOX_POLL_TIMEOUT"`
	OutboxBatchSize     int           `env:"OUTBOX_BATCH_SIZE"`
	OutboxMaxRetries    int           `env:"OUTBOX_MAX_RETRIES"`
	OutboxPurgeInterval time.Duration `env:"OUTBOX_PURGE_INTERVAL"`
	OutboxRetention     time.Duration `env:"OUTBOX_RETENTION"`

	SagaMaxRetries       int           `env:"SAGA_MAX_RETRIES"`
	SagaTimeoutInterval  time.Duration `env:"SAGA_TIMEOUT_INTERVAL"`
	SagaTimeoutThreshold time.Duration `env:"SAGA_TIMEOUT_THRESHOLD"`
	SagaTimeoutBatchSize int           `env:"SAGA_TIMEOUT_BATCH_SIZE"`

	HTTPPort       int    `env:"HTTP_PORT"`
	MigrationsPath string `env:"MIGRATIONS_PATH"`
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}

	cfg.DBConfig.DBHost = getEnvOrDefault("SAGA_DB_HOST", "localhost")
	cfg.DBConfig.DBPort = getEnvOrDefault("SAGA_DB_PORT", "5432")
	cfg.DBConfig.DBUser = getEnvOrDefault("SAGA_DB_USER", "postgres")
	cfg.DBConfig.DBPassword = getEnvOrDefault("SAGA_DB_PASSWORD", "postgres")
	cfg.DBConfig.DBName = getEnvOrDefault("SAGA_DB_NAME", "ordersaga_db")
	cfg.DBConfig.DBSSLMode = getEnvOrDefault("SAGA_DB_SSLMODE", "disable")

	cfg.KafkaURL = getEnvOrDefault("KAFKA_BROKER_URL", "localhost:9092")
	cfg.KafkaConsumerGroup = getEnvOrDefault("KAFKA_CONSUMER_GROUP", "order-saga-group")

	cfg.PricingRequestTopic = getEnvOrDefault("KAFKA_PRICING_REQUEST_TOPIC", "pricing_requests")
	cfg.InventoryRequestTopic = getEnvOrDefault("KAFKA_INVENTORY_REQUEST_TOPIC", "inventory_requests")
	cfg.CardValidationRequestTopic = getEnvOrDefault("KAFKA_CARD_VALIDATION_REQUEST_TOPIC", "card_validation_requests")
	cfg.PaymentRequestTopic = getEnvOrDefault("KAFKA_PAYMENT_REQUEST_TOPIC", "payment_requests")
	cfg.DeliveryRequestTopic = getEnvOrDefault("KAFKA_DELIVERY_REQUEST_TOPIC", "delivery_requests")
	cfg.NotificationsTopic = getEnvOrDefault("KAFKA_NOTIFICATIONS_TOPIC", "notifications")

	cfg.PricingResponseTopic = getEnvOrDefault("KAFKA_PRICING_RESPONSE_TOPIC", "pricing_responses")
	cfg.InventoryResponseTopic = getEnvOrDefault("KAFKA_INVENTORY_RESPONSE_TOPIC", "inventory_responses")
	cfg.CardValidationResponseTopic = getEnvOrDefault("KAFKA_CARD_VALIDATION_RESPONSE_TOPIC", "card_validation_responses")
	cfg.PaymentResponseTopic = getEnvOrDefault("KAFKA_PAYMENT_RESPONSE_TOPIC", "payment_responses")
	cfg.DeliveryResponseTopic = getEnvOrDefault("KAFKA_DELIVERY_RESPONSE_TOPIC", "delivery_responses")

	var err error
	if cfg.OutboxPollInterval, err = getDurationOrDefault("OUTBOX_POLL_INTERVAL", "5s"); err != nil {
		return nil, err
	}
	if cfg.OutboxPollTimeout, err = getDurationOrDefault("OUTBOX_POLL_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	if cfg.OutboxBatchSize, err = getIntOrDefault("OUTBOX_BATCH_SIZE", 100); err != nil {
		return nil, err
	}
	if cfg.OutboxMaxRetries, err = getIntOrDefault("OUTBOX_MAX_RETRIES", 5); err != nil {
		return nil, err
	}
	if cfg.OutboxPurgeInterval, err = getDurationOrDefault("OUTBOX_PURGE_INTERVAL", "1h"); err != nil {
		return nil, err
	}
	if cfg.OutboxRetention, err = getDurationOrDefault("OUTBOX_RETENTION", "168h"); err != nil {
		return nil, err
	}

	if cfg.SagaMaxRetries, err = getIntOrDefault("SAGA_MAX_RETRIES", 3); err != nil {
		return nil, err
	}
	if cfg.SagaTimeoutInterval, err = getDurationOrDefault("SAGA_TIMEOUT_INTERVAL", "30s"); err != nil {
		return nil, err
	}
	if cfg.SagaTimeoutThreshold, err = getDurationOrDefault("SAGA_TIMEOUT_THRESHOLD", "5m"); err != nil {
		return nil, err
	}
	if cfg.SagaTimeoutBatchSize, err = getIntOrDefault("SAGA_TIMEOUT_BATCH_SIZE", 50); err != nil {
		return nil, err
	}

	if cfg.HTTPPort, err = getIntOrDefault("HTTP_PORT", 8080); err != nil {
		return nil, err
	}
	cfg.MigrationsPath = getEnvOrDefault("MIGRATIONS_PATH", "file://migrations")

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getDurationOrDefault(key, defaultValue string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnvOrDefault(key, defaultValue))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getIntOrDefault(key string, defaultValue int) (int, error) {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func (c *Config) GetDBMigrationConnectionString() string {
	return fmt.Sprintf("%s:%s@%s:%s/%s?sslmode=%s",
		c.DBConfig.DBUser, c.DBConfig.DBPassword, c.DBConfig.DBHost, c.DBConfig.DBPort, c.DBConfig.DBName, c.DBConfig.DBSSLMode)
}

func (c *Config) GetKafkaBrokers() []string {
	return []string{c.KafkaURL}
}

package app

import (
	"os"
	"strings"
	"time"
)

// Config описывает настройки запуска платформы.
type Config struct {
	HTTPAddr    string
	MetricsAddr string

	// DatabaseDSN — строка подключения PostgreSQL; пустая строка включает
	// in-memory хранилище (разработка и тесты).
	DatabaseDSN string

	// RedisAddr — адрес redis для быстрого кеша дедупликации webhook.
	// Пустая строка отключает кеш, таблица остаётся авторитетной.
	RedisAddr     string
	RedisPassword string

	// KafkaBrokers — брокеры для публикации outbox-событий. Пустой список
	// оставляет события в таблице outbox до появления брокера.
	KafkaBrokers []string

	// PaymentBaseURL/PaymentAPIKey — реальный платёжный провайдер; пустой
	// BaseURL включает mock-шлюз.
	PaymentBaseURL string
	PaymentAPIKey  string

	// WebhookSecrets — секреты подписи webhook по тенантам,
	// формат "tenant1:secret1,tenant2:secret2".
	WebhookSecrets map[string]string

	// TaxJurisdiction — юрисдикция налоговых ставок по умолчанию.
	TaxJurisdiction string

	IdempotencyTTL time.Duration
}

// DefaultConfig возвращает базовые адреса и настройки.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:        ":8080",
		MetricsAddr:     ":9090",
		TaxJurisdiction: "default",
		IdempotencyTTL:  24 * time.Hour,
		WebhookSecrets:  map[string]string{},
	}
}

// LoadConfig читает конфигурацию из окружения поверх значений по умолчанию.
func LoadConfig() Config {
	cfg := DefaultConfig()

	if v := os.Getenv("COMMERCE_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("COMMERCE_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("COMMERCE_DATABASE_DSN"); v != "" {
		cfg.DatabaseDSN = v
	}
	if v := os.Getenv("COMMERCE_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("COMMERCE_REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("COMMERCE_KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = strings.Split(v, ",")
	}
	if v := os.Getenv("COMMERCE_PAYMENT_BASE_URL"); v != "" {
		cfg.PaymentBaseURL = v
	}
	if v := os.Getenv("COMMERCE_PAYMENT_API_KEY"); v != "" {
		cfg.PaymentAPIKey = v
	}
	if v := os.Getenv("COMMERCE_TAX_JURISDICTION"); v != "" {
		cfg.TaxJurisdiction = v
	}
	if v := os.Getenv("COMMERCE_IDEMPOTENCY_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.IdempotencyTTL = d
		}
	}
	if v := os.Getenv("COMMERCE_WEBHOOK_SECRETS"); v != "" {
		cfg.WebhookSecrets = parseSecrets(v)
	}

	return cfg
}

func parseSecrets(raw string) map[string]string {
	secrets := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) == 2 && parts[0] != "" && parts[1] != "" {
			secrets[parts[0]] = parts[1]
		}
	}
	return secrets
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	TransportHTTP = "http"
	TransportNATS = "nats"
)

type Config struct {
	Port           string
	DatabaseURL    string
	RedisURL       string
	RedisCacheTTL  time.Duration
	KafkaBrokers   []string
	KafkaTopic     string
	JaegerEndpoint string

	DefaultCurrency string

	Gateway     GatewayConfig
	StatusRetry RetryConfig
}

// GatewayConfig selects and tunes the outbound gateway transport.
type GatewayConfig struct {
	Transport   string
	BaseURL     string
	APIKey      string
	NatsURL     string
	NatsSubject string
	Timeout     time.Duration

	BreakerMaxFailures  int
	BreakerResetTimeout time.Duration
	RateLimitInterval   time.Duration
	RateLimitBurst      int
}

type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func Load() (*Config, error) {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8082"
	}

	kafkaTopic := os.Getenv("KAFKA_TOPIC")
	if kafkaTopic == "" {
		kafkaTopic = "payment.transaction.status_changed"
	}

	currency := strings.ToUpper(strings.TrimSpace(os.Getenv("DEFAULT_CURRENCY")))
	if currency == "" {
		currency = "YER"
	}

	cfg := &Config{
		Port:            port,
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisURL:        os.Getenv("REDIS_URL"),
		KafkaBrokers:    splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:      kafkaTopic,
		JaegerEndpoint:  os.Getenv("JAEGER_ENDPOINT"),
		DefaultCurrency: currency,
	}

	var err error
	if cfg.RedisCacheTTL, err = durationOr("REDIS_CACHE_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Gateway, err = loadGateway(); err != nil {
		return nil, err
	}

	if cfg.StatusRetry.MaxAttempts, err = intOr("STATUS_RETRY_MAX_ATTEMPTS", 3); err != nil {
		return nil, err
	}
	if cfg.StatusRetry.BaseDelay, err = durationOr("STATUS_RETRY_BASE_DELAY", 200*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.StatusRetry.MaxDelay, err = durationOr("STATUS_RETRY_MAX_DELAY", 2*time.Second); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadGateway() (GatewayConfig, error) {
	gw := GatewayConfig{
		Transport:   strings.ToLower(strings.TrimSpace(os.Getenv("GATEWAY_TRANSPORT"))),
		BaseURL:     os.Getenv("GATEWAY_BASE_URL"),
		APIKey:      os.Getenv("GATEWAY_API_KEY"),
		NatsURL:     os.Getenv("NATS_URL"),
		NatsSubject: os.Getenv("GATEWAY_NATS_SUBJECT"),
	}
	if gw.Transport == "" {
		gw.Transport = TransportHTTP
	}
	if gw.NatsSubject == "" {
		gw.NatsSubject = "bas.transactions"
	}

	switch gw.Transport {
	case TransportHTTP:
		if gw.BaseURL == "" {
			gw.BaseURL = "http://localhost:9000"
		}
	case TransportNATS:
		if gw.NatsURL == "" {
			gw.NatsURL = "nats://localhost:4222"
		}
	default:
		return gw, fmt.Errorf("GATEWAY_TRANSPORT must be %q or %q, got %q", TransportHTTP, TransportNATS, gw.Transport)
	}

	var err error
	if gw.Timeout, err = durationOr("GATEWAY_TIMEOUT", 10*time.Second); err != nil {
		return gw, err
	}
	if gw.BreakerMaxFailures, err = intOr("GATEWAY_BREAKER_MAX_FAILURES", 5); err != nil {
		return gw, err
	}
	if gw.BreakerResetTimeout, err = durationOr("GATEWAY_BREAKER_RESET_TIMEOUT", 30*time.Second); err != nil {
		return gw, err
	}
	if gw.RateLimitInterval, err = durationOr("GATEWAY_RATE_LIMIT_INTERVAL", 0); err != nil {
		return gw, err
	}
	if gw.RateLimitBurst, err = intOr("GATEWAY_RATE_LIMIT_BURST", 0); err != nil {
		return gw, err
	}
	return gw, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func durationOr(name string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def, nil
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("%s must be >= 0", name)
	}
	return val, nil
}

func intOr(name string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("%s must be >= 0", name)
	}
	return val, nil
}

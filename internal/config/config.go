package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/cedar-wallet/cedar_wallet/internal/currency"
)

const (
	defaultAppName             = "CedarWallet"
	defaultAppEnv              = "development"
	defaultPort                = "8080"
	defaultLogLevel            = "info"
	defaultLogFormat           = "json"
	defaultShutdownDelay       = 10 * time.Second
	defaultIdempotencyTTL      = 24 * time.Hour
	defaultRatePollInterval    = time.Minute
	defaultRetryAttempts       = 5
	defaultRetryBaseDelay      = 10 * time.Millisecond
	defaultEventQueueSize      = 1024
	defaultTransactionsPerMin  = 30
	defaultExchangeFeePercent  = "0.5"
	defaultSystemWalletAddress = "cedar-system-wallet"
	defaultKafkaGroupID        = "cedar-wallet-settlement"
	idemTTLSecondsEnvVar       = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar           = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar      = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar     = "SHUTDOWN_TIMEOUT"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	LogFormat      string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	JWTSecret         string
	InternalTokenHash string

	KafkaBrokers         []string
	KafkaEventsTopic     string
	KafkaSettlementTopic string
	KafkaGroupID         string

	ExchangeFeePercent   decimal.Decimal
	TransferFeePercent   decimal.Decimal
	WithdrawalFeePercent decimal.Decimal
	RatePollInterval     time.Duration

	BalanceRetryAttempts  int
	BalanceRetryBaseDelay time.Duration

	SystemWalletAddress string
	SystemFloat         map[currency.Code]decimal.Decimal

	EventQueueSize        int
	TransactionsPerMinute int
}

// Load reads an optional .env file, then configuration values from the
// environment. DATABASE_URL, REDIS_URL and JWT_SECRET may only be omitted in
// development, where in-memory storage is used.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		AppName:              getEnv("APP_NAME", defaultAppName),
		AppEnv:               strings.ToLower(getEnv("APP_ENV", defaultAppEnv)),
		Port:                 getEnv("PORT", defaultPort),
		LogLevel:             strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		LogFormat:            strings.ToLower(getEnv("LOG_FORMAT", defaultLogFormat)),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		RedisURL:             os.Getenv("REDIS_URL"),
		JWTSecret:            os.Getenv("JWT_SECRET"),
		InternalTokenHash:    os.Getenv("INTERNAL_TOKEN_HASH"),
		KafkaBrokers:         splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaEventsTopic:     os.Getenv("KAFKA_EVENTS_TOPIC"),
		KafkaSettlementTopic: os.Getenv("KAFKA_SETTLEMENT_TOPIC"),
		KafkaGroupID:         getEnv("KAFKA_GROUP_ID", defaultKafkaGroupID),
		SystemWalletAddress:  getEnv("SYSTEM_WALLET_ADDRESS", defaultSystemWalletAddress),
		SystemFloat:          map[currency.Code]decimal.Decimal{},
	}

	var err error
	if cfg.ShutdownPeriod, err = durationEnv(shutdownSecondsEnvVar, shutdownDurationEnvVar, defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv(idemTTLSecondsEnvVar, idemTTLDurEnvVar, defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.RatePollInterval, err = durationEnv("", "RATE_POLL_INTERVAL", defaultRatePollInterval); err != nil {
		return Config{}, err
	}
	if cfg.BalanceRetryBaseDelay, err = durationEnv("", "BALANCE_RETRY_BASE_DELAY", defaultRetryBaseDelay); err != nil {
		return Config{}, err
	}
	if cfg.BalanceRetryAttempts, err = intEnv("BALANCE_RETRY_ATTEMPTS", defaultRetryAttempts); err != nil {
		return Config{}, err
	}
	if cfg.EventQueueSize, err = intEnv("EVENT_QUEUE_SIZE", defaultEventQueueSize); err != nil {
		return Config{}, err
	}
	if cfg.TransactionsPerMinute, err = intEnv("TRANSACTIONS_PER_MINUTE", defaultTransactionsPerMin); err != nil {
		return Config{}, err
	}

	if cfg.ExchangeFeePercent, err = percentEnv("EXCHANGE_FEE_PERCENT", defaultExchangeFeePercent); err != nil {
		return Config{}, err
	}
	if cfg.TransferFeePercent, err = percentEnv("TRANSFER_FEE_PERCENT", "0"); err != nil {
		return Config{}, err
	}
	if cfg.WithdrawalFeePercent, err = percentEnv("WITHDRAWAL_FEE_PERCENT", "0"); err != nil {
		return Config{}, err
	}

	for _, code := range currency.All() {
		key := "SYSTEM_FLOAT_" + string(code)
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		amount, err := currency.ParseAmount(v)
		if err != nil || amount.IsNegative() {
			return Config{}, fmt.Errorf("invalid %s: %q", key, v)
		}
		cfg.SystemFloat[code] = amount
	}

	if !cfg.IsDevelopment() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set")
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set")
		}
		if cfg.JWTSecret == "" {
			return Config{}, fmt.Errorf("JWT_SECRET must be set")
		}
	}

	return cfg, nil
}

// IsDevelopment reports whether the service runs in the development environment.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == defaultAppEnv
}

// KafkaEnabled reports whether any Kafka broker is configured.
func (c Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// durationEnv prefers a whole-seconds variable over a Go duration string.
func durationEnv(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if secondsKey != "" {
		if v := os.Getenv(secondsKey); v != "" {
			seconds, err := strconv.Atoi(v)
			if err != nil {
				return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
			}
			return time.Duration(seconds) * time.Second, nil
		}
	}
	if v := os.Getenv(durationKey); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationKey, err)
		}
		return d, nil
	}
	return fallback, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}

func percentEnv(key, fallback string) (decimal.Decimal, error) {
	v := getEnv(key, fallback)
	d, err := decimal.NewFromString(v)
	if err != nil || d.IsNegative() || d.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Zero, fmt.Errorf("invalid %s: %q", key, v)
	}
	return d, nil
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

package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full runtime configuration, built from environment variables
// so main stays lean.
type Config struct {
	Addr     string
	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Risk     RiskConfig
}

// PostgresConfig selects the persistent ledger and event log backend. An
// empty DSN means in-memory stores.
type PostgresConfig struct {
	DSN string
}

// RedisConfig configures the scorecard cache. An empty URL disables caching.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the external event sink. Empty brokers keep events
// local to the in-process log.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// RiskConfig groups the protocol safety parameters, all in basis points
// unless noted.
type RiskConfig struct {
	// LiquidationThresholdFactorBps scales collateral value when computing the
	// health factor.
	LiquidationThresholdFactorBps uint64
	// LiquidationTriggerMilli is the health factor below which liquidation may
	// start, in thousandths (950 = 0.95).
	LiquidationTriggerMilli uint64
	// MaxDiscountBps caps the Dutch-auction discount.
	MaxDiscountBps uint64
	// DiscountRamp is how long the discount takes to reach its cap after the
	// grace period ends.
	DiscountRamp time.Duration
	// InsuranceCoverageBps caps loss coverage as a share of loan principal.
	InsuranceCoverageBps uint64
	// InsuranceAllocationBps is the share of protocol revenue routed to the
	// insurance fund.
	InsuranceAllocationBps uint64
}

// FromEnv builds a Config from environment variables, with development
// defaults for everything optional.
func FromEnv() Config {
	cfg := Config{
		Addr: envOr("TRUSTLINE_ADDR", ":8080"),
		Postgres: PostgresConfig{
			DSN: os.Getenv("TRUSTLINE_POSTGRES_DSN"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("TRUSTLINE_REDIS_URL"),
			PoolSize:     envInt("TRUSTLINE_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("TRUSTLINE_REDIS_MIN_IDLE", 2),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Topic: envOr("TRUSTLINE_KAFKA_TOPIC", "trustline.lifecycle"),
		},
		Risk: RiskConfig{
			LiquidationThresholdFactorBps: uint64(envInt("TRUSTLINE_LIQ_THRESHOLD_FACTOR_BPS", 8_500)),
			LiquidationTriggerMilli:       uint64(envInt("TRUSTLINE_LIQ_TRIGGER_MILLI", 950)),
			MaxDiscountBps:                uint64(envInt("TRUSTLINE_MAX_DISCOUNT_BPS", 2_000)),
			DiscountRamp:                  envDuration("TRUSTLINE_DISCOUNT_RAMP", 6*time.Hour),
			InsuranceCoverageBps:          uint64(envInt("TRUSTLINE_INSURANCE_COVERAGE_BPS", 25)),
			InsuranceAllocationBps:        uint64(envInt("TRUSTLINE_INSURANCE_ALLOCATION_BPS", 1_000)),
		},
	}
	if brokers := os.Getenv("TRUSTLINE_KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.Kafka.Brokers = append(cfg.Kafka.Brokers, b)
			}
		}
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

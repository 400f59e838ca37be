package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every runtime knob, built once at startup and handed into
// constructors. No component reads the environment on its own.
type Config struct {
	AppName string

	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string

	RedisHost string
	RedisPort int
	CacheTTL  time.Duration

	RabbitHost     string
	RabbitPort     int
	RabbitUser     string
	RabbitPassword string

	// Externalize routes the stock effect through the broker. When false
	// the inventory listener runs inline in the order transaction's
	// delivery phase and no consumer pool is started.
	Externalize bool

	ConsumerWorkers int
	LockWaitTimeout time.Duration
	LockTTL         time.Duration

	// ResubmitInterval > 0 enables the periodic resubmission sweep for
	// incomplete publications older than ResubmitAge.
	ResubmitInterval time.Duration
	ResubmitAge      time.Duration
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoienv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func boolenv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func durenv(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// Load collects configuration from the environment with defaults.
func Load() Config {
	workers := atoienv("CONSUMER_WORKERS", 2)
	if workers < 1 {
		workers = 1
	}
	if workers > 5 {
		workers = 5
	}

	return Config{
		AppName: getenv("APP_NAME", "modulith"),

		PostgresHost:     getenv("POSTGRES_HOST", "localhost"),
		PostgresPort:     atoienv("POSTGRES_PORT", 5432),
		PostgresUser:     getenv("POSTGRES_USER", "modulith"),
		PostgresPassword: getenv("POSTGRES_PASSWORD", "modulith123"),
		PostgresDB:       getenv("POSTGRES_DB", "modulith"),

		RedisHost: getenv("REDIS_HOST", "localhost"),
		RedisPort: atoienv("REDIS_PORT", 6379),
		CacheTTL:  durenv("CACHE_TTL", 5*time.Minute),

		RabbitHost:     getenv("RABBITMQ_HOST", "localhost"),
		RabbitPort:     atoienv("RABBITMQ_PORT", 5672),
		RabbitUser:     getenv("RABBITMQ_USER", "guest"),
		RabbitPassword: getenv("RABBITMQ_PASSWORD", "guest"),

		Externalize: boolenv("EVENTS_EXTERNALIZE", true),

		ConsumerWorkers: workers,
		LockWaitTimeout: durenv("LOCK_WAIT_TIMEOUT", 10*time.Second),
		LockTTL:         durenv("LOCK_TTL", 5*time.Minute),

		ResubmitInterval: durenv("RESUBMIT_INTERVAL", 0),
		ResubmitAge:      durenv("RESUBMIT_AGE", time.Minute),
	}
}

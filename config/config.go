package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"booking-service/pkg/database"

	"go.uber.org/zap"
)

type Config struct {
	Port    string
	Env     string
	DB      DB
	Redis   Redis
	Kafka   Kafka
	Booking Booking
	Reclaim Reclaim
}

type DB struct {
	database.Config
}

type Redis struct {
	Enabled         bool
	Addr            string
	Password        string
	DB              int
	AvailabilityTTL time.Duration
}

type Kafka struct {
	Enabled       bool
	Brokers       []string
	EventsTopic   string
	PaymentsTopic string
	GroupID       string
}

type Booking struct {
	HoldDuration   time.Duration
	ReserveRetries int
}

type Reclaim struct {
	Interval  time.Duration
	BatchSize int
	LockTTL   time.Duration
}

func Load(log *zap.Logger) *Config {
	cfg := &Config{
		Port: getEnv("APP_PORT", log),
		Env:  getEnvDefault("ENV", "production"),
		DB: DB{
			Config: database.Config{
				Host:     getEnv("DB_HOST", log),
				Port:     getEnv("DB_PORT", log),
				User:     getEnv("DB_USER", log),
				Password: getEnv("DB_PASSWORD", log),
				Name:     getEnv("DB_NAME", log),
				SSLMode:  getEnv("DB_SSLMODE", log),
			},
		},
		Redis: Redis{
			Enabled:         boolDefault(os.Getenv("REDIS_ENABLED"), false),
			Addr:            getEnvDefault("REDIS_ADDR", "localhost:6379"),
			Password:        os.Getenv("REDIS_PASSWORD"),
			DB:              atoiDefault(os.Getenv("REDIS_DB"), 0),
			AvailabilityTTL: durationDefault(os.Getenv("REDIS_AVAILABILITY_TTL"), 5*time.Second),
		},
		Kafka: Kafka{
			Enabled:       boolDefault(os.Getenv("KAFKA_ENABLED"), false),
			Brokers:       splitAndTrim(os.Getenv("KAFKA_BROKERS")),
			EventsTopic:   getEnvDefault("KAFKA_EVENTS_TOPIC", "booking.events"),
			PaymentsTopic: getEnvDefault("KAFKA_PAYMENTS_TOPIC", "payment.outcomes"),
			GroupID:       getEnvDefault("KAFKA_GROUP_ID", "booking-service"),
		},
		Booking: Booking{
			HoldDuration:   durationDefault(os.Getenv("BOOKING_HOLD_DURATION"), 30*time.Minute),
			ReserveRetries: atoiDefault(os.Getenv("BOOKING_RESERVE_RETRIES"), 10),
		},
		Reclaim: Reclaim{
			Interval:  durationDefault(os.Getenv("RECLAIM_INTERVAL"), time.Minute),
			BatchSize: atoiDefault(os.Getenv("RECLAIM_BATCH_SIZE"), 100),
			LockTTL:   durationDefault(os.Getenv("RECLAIM_LOCK_TTL"), 5*time.Minute),
		},
	}

	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) == 0 {
		log.Error("KAFKA_ENABLED=true, но KAFKA_BROKERS пуст")
		panic("missing required environment variable: KAFKA_BROKERS")
	}

	return cfg
}

func (c *Config) IsDev() bool { return c.Env == "development" }

func getEnv(key string, log *zap.Logger) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	log.Error("Обязательная переменная окружения не установлена", zap.String("key", key))
	panic("missing required environment variable: " + key)
}

func getEnvDefault(key, def string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return def
}

// durationDefault понимает и суффикс "d" (дни).
func durationDefault(s string, def time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil || days <= 0 {
			return def
		}
		return time.Duration(days) * 24 * time.Hour
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}

func boolDefault(s string, def bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return b
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	parts := []string{}
	for _, p := range strings.Split(s, ",") {
		pt := strings.TrimSpace(p)
		if pt != "" {
			parts = append(parts, pt)
		}
	}
	return parts
}

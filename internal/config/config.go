package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	// Base URL of the remote catalog/order service, e.g. http://localhost:8080/api.
	ShopURL string

	// DSN of the local durable store. Empty means an on-disk sqlite file next
	// to the binary; ":memory:" and postgres:// / redis:// DSNs are accepted.
	StoreDSN string

	// Optional 32-byte hex key. When set, the persisted credential is sealed
	// at rest.
	StoreKey string

	LogLevel string

	// Kafka brokers for the event emitter; empty disables events.
	KafkaBrokers []string
	KafkaTopic   string

	// Allow any-to-any admin status transitions instead of the ordered table.
	PermissiveTransitions bool
}

func Load() *Config {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}

	return &Config{
		ShopURL:               must(os.Getenv("SHOP_URL"), "SHOP_URL"),
		StoreDSN:              EnvDefault("SHOPFRONT_STORE", "shopfront.db"),
		StoreKey:              os.Getenv("SHOPFRONT_STORE_KEY"),
		LogLevel:              EnvDefault("LOG_LEVEL", "info"),
		KafkaBrokers:          CSV(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:            EnvDefault("KAFKA_TOPIC", "shopfront.events"),
		PermissiveTransitions: EnvBoolDefault("PERMISSIVE_TRANSITIONS", false),
	}
}

func must(v string, name string) string {
	if v == "" {
		log.Fatalf("missing required env %s", name)
	}
	return v
}

func CSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func EnvDefault(key, def string) string {
	if os.Getenv(key) != "" {
		return os.Getenv(key)
	}
	return def
}

func EnvIntDefault(key string, def int) int {
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

func EnvBoolDefault(key string, def bool) bool {
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

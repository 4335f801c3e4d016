package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (SEATS_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (SEATS_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Redis       RedisConfig
	Kafka       KafkaConfig
	Slots       SlotsConfig
	Tickets     TicketsConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// RedisConfig controls the optional current-slot cache. An empty address
// disables caching entirely.
type RedisConfig struct {
	Addr string        `default:"" usage:"Redis address for the current-slot cache (empty disables)" flag:"redis-addr"`
	TTL  time.Duration `default:"30s" usage:"Cache TTL for the current slot" flag:"redis-ttl"`
}

// KafkaConfig controls lifecycle event publishing. An empty broker list
// disables publishing.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka broker addresses (empty disables events)" flag:"kafka-brokers"`
	Topic   string   `default:"timeseats.orders" usage:"Topic for order lifecycle events" flag:"kafka-topic"`
}

// SlotsConfig controls sales slot scheduling.
type SlotsConfig struct {
	LookAhead time.Duration `default:"30m" usage:"How far ahead the next-slot query searches" flag:"slot-lookahead"`
}

// TicketsConfig controls ticket issuance.
type TicketsConfig struct {
	// UnpaidMethods lists payment methods whose tickets start unpaid and are
	// settled at the counter. Methods not listed are treated as paid on issue.
	UnpaidMethods []string `default:"CASH" usage:"Payment methods settled at the counter" flag:"unpaid-methods"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "SEATS",
		Files:     []string{"config.yaml", "/etc/timeseats/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set SEATS_DATABASE_URL or DATABASE_URL")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables that use
// standard names like DATABASE_URL and PORT to the application's
// SEATS_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}

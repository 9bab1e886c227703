package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"comanda/pkg/errors"
)

type Config struct {
	App           AppConfig
	HTTP          HTTPConfig
	Chat          ChatConfig
	Orders        OrdersConfig
	Redis         RedisConfig
	Session       SessionConfig
	ErrorTracking ErrorTrackingConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"comanda"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`
}

type HTTPConfig struct {
	Addr            string        `envconfig:"HTTP_ADDR" default:":8080"`
	ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"15s"`
}

// ChatConfig configures the outbound message gateway.
type ChatConfig struct {
	GatewayURL     string        `envconfig:"CHAT_GATEWAY_URL" required:"true"`
	Token          string        `envconfig:"CHAT_GATEWAY_TOKEN"`
	HTTPTimeout    time.Duration `envconfig:"CHAT_HTTP_TIMEOUT" default:"15s"`
	RateLimitRate  int           `envconfig:"CHAT_RATE_LIMIT_RATE" default:"20"`
	RateLimitBurst int           `envconfig:"CHAT_RATE_LIMIT_BURST" default:"30"`
}

// OrdersConfig configures the external orders/customers API.
type OrdersConfig struct {
	BaseURL     string        `envconfig:"ORDERS_API_URL" required:"true"`
	APIKey      string        `envconfig:"ORDERS_API_KEY"`
	CallTimeout time.Duration `envconfig:"ORDERS_CALL_TIMEOUT" default:"10s"`
	CatalogURL  string        `envconfig:"CATALOG_URL" default:"https://cardapio.example.com"`
}

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Enabled reports whether a Redis host was configured. The profile cache
// is skipped entirely when Redis is absent.
func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

// SessionConfig contains all conversation timing knobs.
type SessionConfig struct {
	IdleTimeout     time.Duration `envconfig:"SESSION_IDLE_TIMEOUT" default:"10m"`
	SweepInterval   time.Duration `envconfig:"SESSION_SWEEP_INTERVAL" default:"1m"`
	CompletionGrace time.Duration `envconfig:"SESSION_COMPLETION_GRACE" default:"5m"`
	SurveyTTL       time.Duration `envconfig:"SURVEY_SESSION_TTL" default:"24h"`
	ProfileCacheTTL time.Duration `envconfig:"PROFILE_CACHE_TTL" default:"15m"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"true"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// Load reads configuration from environment variables.
// It first tries to load .env file (useful for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	return &cfg, nil
}

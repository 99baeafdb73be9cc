// Package config loads gate runtime settings from the environment.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates all runtime settings required by a gate deployment.
type Config struct {
	AppName     string
	Environment string
	Auth        AuthConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Policy      PolicyConfig
	Logger      LoggerConfig
	Metrics     MetricsConfig
}

type AuthConfig struct {
	// Endpoint is the base URL of the hosted identity provider.
	Endpoint string

	// APIKey authenticates server-side calls to the provider.
	APIKey string

	// JWKSUrl is where the token verifier fetches public keys.
	JWKSUrl string

	// TokenRefreshBuffer is how long before expiry a token is refreshed.
	TokenRefreshBuffer time.Duration

	// TouchTimeout bounds the background last-seen write.
	TouchTimeout time.Duration
}

type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int

	// SessionTTL caps how long session records live without an explicit
	// expiry.
	SessionTTL time.Duration
}

type PolicyConfig struct {
	// Path points to a YAML policy file. Empty means the built-in table.
	Path string
}

type LoggerConfig struct {
	Level  string
	Format string
}

type MetricsConfig struct {
	Enabled bool
}

// Load reads configuration from environment variables (optionally .env)
// and applies defaults so the gate can boot in any environment.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		AppName:     getString("APP_NAME", "authgate"),
		Environment: getString("APP_ENV", "development"),
		Auth: AuthConfig{
			Endpoint:           os.Getenv("AUTH_ENDPOINT"),
			APIKey:             os.Getenv("AUTH_API_KEY"),
			JWKSUrl:            os.Getenv("AUTH_JWKS_URL"),
			TokenRefreshBuffer: getDuration("AUTH_REFRESH_BUFFER", 5*time.Minute),
			TouchTimeout:       getDuration("AUTH_TOUCH_TIMEOUT", 3*time.Second),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: getInt("DB_MAX_OPEN_CONNS", 25),
		},
		Redis: RedisConfig{
			URL:        getString("REDIS_URL", "redis://localhost:6379"),
			Password:   os.Getenv("REDIS_PASSWORD"),
			DB:         getInt("REDIS_DB", 0),
			SessionTTL: getDuration("SESSION_TTL", 24*time.Hour),
		},
		Policy: PolicyConfig{
			Path: os.Getenv("POLICY_PATH"),
		},
		Logger: LoggerConfig{
			Level:  getString("LOG_LEVEL", "info"),
			Format: getString("LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getBool("METRICS_ENABLED", false),
		},
	}

	return cfg, nil
}

// MustLoad panics if configuration cannot be loaded.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func getString(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

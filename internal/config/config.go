package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	MQTT         MQTTConfig
	Store        StoreConfig
	Redis        RedisConfig
	Postgres     PostgresConfig
	Logger       LoggerConfig
	Token        TokenConfig
	Unlock       UnlockConfig
	Notification NotificationConfig
	Doors        DoorsConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// MQTTConfig holds broker connection values.
type MQTTConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	TLS      bool
}

// StoreConfig selects the token store backend and sweep cadence.
type StoreConfig struct {
	Driver               string
	SweepIntervalSeconds int
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// TokenConfig defines unlock credential parameters.
type TokenConfig struct {
	Secret     string
	TTLSeconds int
}

// UnlockConfig controls the actuation command sent to controllers.
type UnlockConfig struct {
	DurationMs int
}

// NotificationConfig holds receipt email settings.
type NotificationConfig struct {
	SendGridAPIKey string
	FromEmail      string
}

// DoorsConfig locates the door directory definition. MapJSON takes
// precedence over MapFile; with neither set the built-in map is used.
type DoorsConfig struct {
	MapJSON string
	MapFile string
}

// Load reads configuration from environment variables, applying defaults
// where possible. The broker address and signing secret have no safe
// defaults and missing values are a startup error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "vending-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "4000"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		MQTT: MQTTConfig{
			Host:     os.Getenv("MQTT_HOST"),
			Port:     os.Getenv("MQTT_PORT"),
			Username: os.Getenv("MQTT_USERNAME"),
			Password: os.Getenv("MQTT_PASSWORD"),
			TLS:      getEnvAsBool("MQTT_TLS", true),
		},
		Store: StoreConfig{
			Driver:               getEnv("STORE_DRIVER", "memory"),
			SweepIntervalSeconds: getEnvAsInt("SWEEP_INTERVAL_SECONDS", 60),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Token: TokenConfig{
			Secret:     os.Getenv("JWT_SECRET"),
			TTLSeconds: getEnvAsInt("TOKEN_TTL_SECONDS", 30),
		},
		Unlock: UnlockConfig{
			DurationMs: getEnvAsInt("UNLOCK_DURATION_MS", 1000),
		},
		Notification: NotificationConfig{
			SendGridAPIKey: os.Getenv("SENDGRID_API_KEY"),
			FromEmail:      getEnv("FROM_EMAIL", "no-reply@example.com"),
		},
		Doors: DoorsConfig{
			MapJSON: os.Getenv("DOOR_MAP"),
			MapFile: os.Getenv("DOOR_MAP_FILE"),
		},
	}

	if cfg.MQTT.Host == "" || cfg.MQTT.Port == "" {
		return nil, errors.New("MQTT_HOST and MQTT_PORT must be set")
	}
	if cfg.Token.Secret == "" {
		return nil, errors.New("JWT_SECRET must be set")
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// BrokerURL returns the broker URL, using the TLS scheme when enabled.
func (m MQTTConfig) BrokerURL() string {
	scheme := "tcp"
	if m.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%s", scheme, m.Host, m.Port)
}

// SweepInterval returns the expiry sweep cadence.
func (s StoreConfig) SweepInterval() time.Duration {
	if s.SweepIntervalSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(s.SweepIntervalSeconds) * time.Second
}

// TTL returns the credential lifetime.
func (t TokenConfig) TTL() time.Duration {
	if t.TTLSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(t.TTLSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvPrefix namespaces every environment variable read by Load.
	EnvPrefix = "KIRANAKART"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Session  SessionConfig
	Password PasswordConfig
	Flash    FlashConfig
	Seed     SeedConfig
	Auth     AuthConfig
}

// Load reads configuration from the environment, honoring a local .env file
// when one is present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"KIRANAKART_APP_ENV" default:"dev"`
	LogLevel     string `envconfig:"KIRANAKART_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"KIRANAKART_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	// Driver selects "sqlite" (default, local file store) or "postgres".
	Driver string `envconfig:"KIRANAKART_DB_DRIVER" default:"sqlite"`
	// DSN is the sqlite file path or a postgres connection string.
	DSN string `envconfig:"KIRANAKART_DB_DSN" default:"kiranakart.db"`

	MaxOpenConns    int           `envconfig:"KIRANAKART_DB_MAX_OPEN_CONNS" default:"1"`
	MaxIdleConns    int           `envconfig:"KIRANAKART_DB_MAX_IDLE_CONNS" default:"1"`
	ConnMaxLifetime time.Duration `envconfig:"KIRANAKART_DB_CONN_MAX_LIFETIME" default:"1h"`
}

type RedisConfig struct {
	// URL enables the redis-backed session and flash stores when set; the
	// in-memory stores are used otherwise.
	URL          string        `envconfig:"KIRANAKART_REDIS_URL"`
	Address      string        `envconfig:"KIRANAKART_REDIS_ADDR"`
	Password     string        `envconfig:"KIRANAKART_REDIS_PASSWORD"`
	DB           int           `envconfig:"KIRANAKART_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"KIRANAKART_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"KIRANAKART_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"KIRANAKART_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"KIRANAKART_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"KIRANAKART_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Address != ""
}

type SessionConfig struct {
	JWTSecret         string `envconfig:"KIRANAKART_JWT_SECRET" default:"dev-only-secret"`
	JWTIssuer         string `envconfig:"KIRANAKART_JWT_ISSUER" default:"kiranakart"`
	ExpirationMinutes int    `envconfig:"KIRANAKART_JWT_EXPIRATION_MINUTES" default:"720"`
}

// TTL returns the session lifetime derived from the JWT expiry.
func (s SessionConfig) TTL() time.Duration {
	if s.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(s.ExpirationMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"KIRANAKART_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"KIRANAKART_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"KIRANAKART_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"KIRANAKART_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"KIRANAKART_ARGON_KEY_LEN" default:"32"`
}

type FlashConfig struct {
	// TTL is how long a transient notification stays visible before
	// auto-clearing.
	TTL time.Duration `envconfig:"KIRANAKART_FLASH_TTL" default:"3s"`
}

type SeedConfig struct {
	// ResetOnBoot reinstalls the seeded catalog, orders, and tickets at
	// startup. Users, carts, and wishlists always survive restarts.
	ResetOnBoot bool `envconfig:"KIRANAKART_SEED_RESET_ON_BOOT" default:"true"`
}

type AuthConfig struct {
	// ReservedOwnerLogin is matched exactly (case sensitive) instead of the
	// usual case-insensitive email lookup.
	ReservedOwnerLogin string `envconfig:"KIRANAKART_RESERVED_OWNER_LOGIN"`
}

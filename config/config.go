package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Log       LogConfig       `mapstructure:"log"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Push      PushConfig      `mapstructure:"push"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver string `mapstructure:"driver"` // postgres, memory
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LockTimeout     time.Duration `mapstructure:"lock_timeout"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// JWTConfig holds the shared secret of the hosted auth platform.
type JWTConfig struct {
	Secret    string        `mapstructure:"secret"`
	Issuer    string        `mapstructure:"issuer"`
	RoleClaim string        `mapstructure:"role_claim"`
	Expiry    time.Duration `mapstructure:"expiry"` // tokens minted locally (dev, tests)
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// LedgerConfig holds the money rules of the marketplace.
type LedgerConfig struct {
	Currency            string        `mapstructure:"currency"`
	CommissionRate      string        `mapstructure:"commission_rate"`
	MinWithdrawalAmount string        `mapstructure:"min_withdrawal_amount"`
	IdempotencyTTL      time.Duration `mapstructure:"idempotency_ttl"`
}

// Rate returns the commission rate as a decimal.
func (l LedgerConfig) Rate() (decimal.Decimal, error) {
	return decimal.NewFromString(l.CommissionRate)
}

// MinWithdrawal returns the withdrawal floor as a decimal.
func (l LedgerConfig) MinWithdrawal() (decimal.Decimal, error) {
	return decimal.NewFromString(l.MinWithdrawalAmount)
}

// PushConfig configures Firebase Cloud Messaging.
type PushConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	CredentialsFile string `mapstructure:"credentials_file"`
	TopicPrefix     string `mapstructure:"topic_prefix"`
}

// RateLimitConfig configures the in-process limiter used when Redis is off.
type RateLimitConfig struct {
	LocalRPS   float64 `mapstructure:"local_rps"`
	LocalBurst int     `mapstructure:"local_burst"`
}

// Load reads configuration from .env, file and environment variables.
// Environment variables override file values. Prefix: SLG_ (Surplus Ledger).
// Nested keys use underscore: SLG_DATABASE_HOST, SLG_JWT_SECRET, etc.
func Load(path string) (*Config, error) {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("storage.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "surplus_ledger")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.lock_timeout", "5s")
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "")
	v.SetDefault("jwt.role_claim", "app_role")
	v.SetDefault("jwt.expiry", "1h")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("ledger.currency", "EUR")
	v.SetDefault("ledger.commission_rate", "0.08")
	v.SetDefault("ledger.min_withdrawal_amount", "100")
	v.SetDefault("ledger.idempotency_ttl", "24h")
	v.SetDefault("push.enabled", false)
	v.SetDefault("push.credentials_file", "")
	v.SetDefault("push.topic_prefix", "user_")
	v.SetDefault("ratelimit.local_rps", 5)
	v.SetDefault("ratelimit.local_burst", 10)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: SLG_DATABASE_HOST -> database.host
	v.SetEnvPrefix("SLG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	rate, err := c.Ledger.Rate()
	if err != nil {
		return fmt.Errorf("ledger.commission_rate: %w", err)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("ledger.commission_rate must be in [0, 1), got %s", rate)
	}
	minAmount, err := c.Ledger.MinWithdrawal()
	if err != nil {
		return fmt.Errorf("ledger.min_withdrawal_amount: %w", err)
	}
	if minAmount.IsNegative() {
		return fmt.Errorf("ledger.min_withdrawal_amount must not be negative")
	}
	switch c.Storage.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("storage.driver must be postgres or memory, got %q", c.Storage.Driver)
	}
	return nil
}

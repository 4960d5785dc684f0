package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Database DBConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Argon2   Argon2Config
	Ledger   LedgerConfig
	Stats    StatsConfig
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// StoreConfig selects the ledger backend: "postgres" or "bolt".
type StoreConfig struct {
	Driver   string
	BoltPath string
}

// DBConfig holds database configuration
type DBConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
}

type JWTConfig struct {
	SecretKey   string
	ExpiryHours int
}

type Argon2Config struct {
	Time       uint32
	Memory     uint32
	Threads    uint8
	KeyLength  uint32
	SaltLength int
}

type LedgerConfig struct {
	BaseCurrency string
	ClampMode    string
	MaxTxRetries int
	Timezone     string
}

// Location resolves Timezone, falling back to UTC.
func (c LedgerConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		log.Printf("[CONFIG] Unknown timezone %q, using UTC: %v", c.Timezone, err)
		return time.UTC
	}
	return loc
}

type StatsConfig struct {
	CacheTTL time.Duration
}

var envBindings = map[string]string{
	"server.port":             "PORT",
	"store.driver":            "STORE_DRIVER",
	"store.bolt_path":         "BOLT_PATH",
	"database.host":           "DATABASE_HOST",
	"database.port":           "DATABASE_PORT",
	"database.user":           "DATABASE_USER",
	"database.password":       "DATABASE_PASSWORD",
	"database.name":           "DATABASE_NAME",
	"database.ssl_mode":       "DATABASE_SSL_MODE",
	"redis.enabled":           "REDIS_ENABLED",
	"redis.host":              "REDIS_HOST",
	"redis.port":              "REDIS_PORT",
	"redis.password":          "REDIS_PASSWORD",
	"redis.db":                "REDIS_DB",
	"jwt.secret_key":          "JWT_SECRET_KEY",
	"jwt.expiry_hours":        "JWT_EXPIRY_HOURS",
	"argon2.time":             "ARGON2_TIME",
	"argon2.memory":           "ARGON2_MEMORY",
	"argon2.threads":          "ARGON2_THREADS",
	"argon2.key_length":       "ARGON2_KEY_LENGTH",
	"argon2.salt_length":      "ARGON2_SALT_LENGTH",
	"ledger.base_currency":    "LEDGER_BASE_CURRENCY",
	"ledger.clamp_mode":       "LEDGER_CLAMP_MODE",
	"ledger.max_tx_retries":   "LEDGER_MAX_TX_RETRIES",
	"ledger.timezone":         "LEDGER_TIMEZONE",
	"stats.cache_ttl":         "STATS_CACHE_TTL",
	"server.read_timeout":     "SERVER_READ_TIMEOUT",
	"server.write_timeout":    "SERVER_WRITE_TIMEOUT",
	"server.shutdown_timeout": "SERVER_SHUTDOWN_TIMEOUT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.bolt_path", "./data/ledger.db")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.name", "currency_exchange")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Minute*5)

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("jwt.secret_key", "")
	v.SetDefault("jwt.expiry_hours", 12)

	v.SetDefault("argon2.time", 1)
	v.SetDefault("argon2.memory", 64*1024)
	v.SetDefault("argon2.threads", 4)
	v.SetDefault("argon2.key_length", 32)
	v.SetDefault("argon2.salt_length", 16)

	v.SetDefault("ledger.base_currency", "SOM")
	v.SetDefault("ledger.clamp_mode", "lenient")
	v.SetDefault("ledger.max_tx_retries", 3)
	v.SetDefault("ledger.timezone", "UTC")

	v.SetDefault("stats.cache_ttl", 5*time.Minute)
}

// Load reads configuration from the given .env file (optional) and the
// environment. Environment variables win over the file.
func Load(envFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if envFile == "" {
		envFile = ".env"
	}
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		log.Printf("[CONFIG] Config file not found, using defaults: %v", err)
	}
	// dotenv keys land flat (store_driver), not nested under store.driver.
	for key, env := range envBindings {
		if flat := strings.ToLower(env); v.InConfig(flat) {
			v.SetDefault(key, v.Get(flat))
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			Port:            v.GetString("server.port"),
			ReadTimeout:     v.GetDuration("server.read_timeout"),
			WriteTimeout:    v.GetDuration("server.write_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Store: StoreConfig{
			Driver:   strings.ToLower(v.GetString("store.driver")),
			BoltPath: v.GetString("store.bolt_path"),
		},
		Database: DBConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetString("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			Name:            v.GetString("database.name"),
			SSLMode:         v.GetString("database.ssl_mode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetString("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			SecretKey:   v.GetString("jwt.secret_key"),
			ExpiryHours: v.GetInt("jwt.expiry_hours"),
		},
		Argon2: Argon2Config{
			Time:       v.GetUint32("argon2.time"),
			Memory:     v.GetUint32("argon2.memory"),
			Threads:    uint8(v.GetUint("argon2.threads")),
			KeyLength:  v.GetUint32("argon2.key_length"),
			SaltLength: v.GetInt("argon2.salt_length"),
		},
		Ledger: LedgerConfig{
			BaseCurrency: strings.ToUpper(v.GetString("ledger.base_currency")),
			ClampMode:    strings.ToLower(v.GetString("ledger.clamp_mode")),
			MaxTxRetries: v.GetInt("ledger.max_tx_retries"),
			Timezone:     v.GetString("ledger.timezone"),
		},
		Stats: StatsConfig{
			CacheTTL: v.GetDuration("stats.cache_ttl"),
		},
	}
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "postgres", "bolt":
	default:
		return fmt.Errorf("unsupported store driver %q", c.Store.Driver)
	}
	switch c.Ledger.ClampMode {
	case "lenient", "strict":
	default:
		return fmt.Errorf("unsupported clamp mode %q", c.Ledger.ClampMode)
	}
	if c.Ledger.BaseCurrency == "" {
		return fmt.Errorf("ledger base currency is required")
	}
	if c.Ledger.MaxTxRetries < 1 {
		return fmt.Errorf("ledger.max_tx_retries must be at least 1")
	}
	return nil
}

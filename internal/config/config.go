package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage drivers understood by the cart service
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// Config holds all configuration for the cart service
type Config struct {
	Cart     CartConfig     `yaml:"cart"`
	Storage  StorageConfig  `yaml:"storage"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	HTTP     HTTPConfig     `yaml:"http"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// CartConfig holds cart persistence tuning
type CartConfig struct {
	StorageKey     string        `yaml:"storage_key"`
	SaveDebounce   time.Duration `yaml:"save_debounce"`
	StorageTimeout time.Duration `yaml:"storage_timeout"`
}

// StorageConfig selects the snapshot backend
type StorageConfig struct {
	Driver     string `yaml:"driver"`
	SQLitePath string `yaml:"sqlite_path"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"`
}

// RabbitMQConfig holds RabbitMQ connection configuration
type RabbitMQConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// HTTPConfig holds the API listener settings
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Cart: CartConfig{
			StorageKey:     "cart",
			SaveDebounce:   500 * time.Millisecond,
			StorageTimeout: 5 * time.Second,
		},
		Storage: StorageConfig{
			Driver:     DriverSQLite,
			SQLitePath: "./data/cart.db",
		},
		Redis: RedisConfig{
			KeyPrefix: "cart:",
		},
		HTTP:    HTTPConfig{Port: 3000},
		Logging: LoggingConfig{Level: "debug"},
	}
}

// Load reads configuration from a YAML file on top of the defaults, then applies
// environment overrides. A .env file next to the process is honoured when present.
func Load(filename string) (*Config, error) {
	cfg := Default()

	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	if err := yaml.Unmarshal(content, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv overrides file values with environment variables
func (c *Config) applyEnv() error {
	if v := os.Getenv("CART_STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv("CART_SQLITE_PATH"); v != "" {
		c.Storage.SQLitePath = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		c.RabbitMQ.URL = v
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid HTTP_PORT value: %w", err)
		}
		c.HTTP.Port = port
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	return nil
}

// Validate checks that the configuration can be used to start the service
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory, DriverSQLite, DriverRedis, DriverPostgres:
	default:
		return fmt.Errorf("unknown storage driver: %s", c.Storage.Driver)
	}

	if c.Cart.StorageKey == "" {
		return fmt.Errorf("cart.storage_key is required")
	}
	if c.Cart.SaveDebounce <= 0 {
		return fmt.Errorf("cart.save_debounce must be positive")
	}
	if c.Cart.StorageTimeout <= 0 {
		return fmt.Errorf("cart.storage_timeout must be positive")
	}
	if c.Storage.Driver == DriverSQLite && c.Storage.SQLitePath == "" {
		return fmt.Errorf("storage.sqlite_path is required for the sqlite driver")
	}
	if c.Storage.Driver == DriverRedis && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required for the redis driver")
	}
	if c.Storage.Driver == DriverPostgres && c.DatabaseURL() == "" {
		return fmt.Errorf("database settings are required for the postgres driver")
	}
	return nil
}

// DatabaseURL returns a PostgreSQL connection URL
func (c *Config) DatabaseURL() string {
	if c.Database.URL != "" {
		return c.Database.URL
	}
	if c.Database.Host == "" {
		return ""
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port, c.Database.Database)
}

// RabbitMQURL returns an AMQP connection URL, or "" when messaging is not configured
func (c *Config) RabbitMQURL() string {
	if c.RabbitMQ.URL != "" {
		return c.RabbitMQ.URL
	}
	if c.RabbitMQ.Host == "" {
		return ""
	}
	return fmt.Sprintf("amqp://%s:%s@%s:%d/",
		c.RabbitMQ.User, c.RabbitMQ.Password, c.RabbitMQ.Host, c.RabbitMQ.Port)
}

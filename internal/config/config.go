package config

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Links         LinksConfig
	Events        EventsConfig
	App           AppConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"SERVER_PORT" required:"true"`
	Host            string        `envconfig:"SERVER_HOST" required:"true"`
	BaseURL         string        `envconfig:"SERVER_BASE_URL" required:"true"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" required:"true"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" required:"true"`
	IdleTimeout     time.Duration `envconfig:"SERVER_IDLE_TIMEOUT" required:"true"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" required:"true"`
	CORSOrigins     []string      `envconfig:"SERVER_CORS_ORIGINS"`
}

// Validate validates the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port cannot be empty")
	}
	if c.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}
	for name, d := range map[string]time.Duration{
		"read":     c.ReadTimeout,
		"write":    c.WriteTimeout,
		"idle":     c.IdleTimeout,
		"shutdown": c.ShutdownTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s timeout must be positive", name)
		}
	}
	return nil
}

// Addr returns host:port for http.Server.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host        string `envconfig:"DB_HOST" required:"true"`
	Port        string `envconfig:"DB_PORT" required:"true"`
	User        string `envconfig:"DB_USER" required:"true"`
	Password    string `envconfig:"DB_PASSWORD" required:"true"`
	Name        string `envconfig:"DB_NAME" required:"true"`
	SSLMode     string `envconfig:"DB_SSLMODE" required:"true"`
	MaxConns    int32  `envconfig:"DB_MAX_CONNS" required:"true"`
	MinConns    int32  `envconfig:"DB_MIN_CONNS" required:"true"`
	AutoMigrate bool   `envconfig:"DB_AUTO_MIGRATE" default:"true"`
}

var validSSLModes = map[string]bool{
	"disable":     true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// Validate validates the database configuration.
func (c *DatabaseConfig) Validate() error {
	switch {
	case c.Host == "":
		return fmt.Errorf("host cannot be empty")
	case c.Port == "":
		return fmt.Errorf("port cannot be empty")
	case c.User == "":
		return fmt.Errorf("user cannot be empty")
	case c.Password == "":
		return fmt.Errorf("password cannot be empty")
	case c.Name == "":
		return fmt.Errorf("database name cannot be empty")
	case c.MaxConns <= 0:
		return fmt.Errorf("max connections must be positive")
	case c.MinConns <= 0:
		return fmt.Errorf("min connections must be positive")
	case c.MinConns > c.MaxConns:
		return fmt.Errorf("min connections (%d) cannot be greater than max connections (%d)", c.MinConns, c.MaxConns)
	case !validSSLModes[c.SSLMode]:
		return fmt.Errorf("invalid SSL mode: %s (must be one of: disable, require, verify-ca, verify-full)", c.SSLMode)
	}
	return nil
}

// ConnectionString returns the keyword/value DSN used by pgxpool.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// URL returns the postgres:// form of the DSN, which golang-migrate requires.
func (c *DatabaseConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, c.Port),
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}

// RedisConfig holds the cache tier connection configuration.
type RedisConfig struct {
	Addr         string        `envconfig:"REDIS_ADDR" required:"true"`
	Password     string        `envconfig:"REDIS_PASSWORD"`
	DB           int           `envconfig:"REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"REDIS_POOL_SIZE" default:"10"`
	MaxRetries   int           `envconfig:"REDIS_MAX_RETRIES" default:"3"`
	DialTimeout  time.Duration `envconfig:"REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"REDIS_WRITE_TIMEOUT" default:"3s"`
	KeyPrefix    string        `envconfig:"REDIS_KEY_PREFIX" default:"links"`
}

// Validate validates the redis configuration.
func (c *RedisConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("address cannot be empty")
	}
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return fmt.Errorf("address must be host:port: %w", err)
	}
	if c.DB < 0 {
		return fmt.Errorf("db index cannot be negative")
	}
	if c.PoolSize <= 0 {
		return fmt.Errorf("pool size must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.DialTimeout <= 0 || c.ReadTimeout <= 0 || c.WriteTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if c.KeyPrefix == "" {
		return fmt.Errorf("key prefix cannot be empty")
	}
	return nil
}

// LinksConfig tunes pagination and write behaviour of the link store.
type LinksConfig struct {
	DefaultPageSize    int           `envconfig:"LINKS_DEFAULT_PAGE_SIZE" default:"10"`
	MaxPageSize        int           `envconfig:"LINKS_MAX_PAGE_SIZE" default:"100"`
	BatchSize          int           `envconfig:"LINKS_BATCH_SIZE" default:"100"`
	MaxScanRounds      int           `envconfig:"LINKS_MAX_SCAN_ROUNDS" default:"10"`
	MaxWriteAttempts   int           `envconfig:"LINKS_MAX_WRITE_ATTEMPTS" default:"5"`
	StoreRetryAttempts int           `envconfig:"LINKS_STORE_RETRY_ATTEMPTS" default:"3"`
	StoreRetryInterval time.Duration `envconfig:"LINKS_STORE_RETRY_INTERVAL" default:"100ms"`
	IDFormat           string        `envconfig:"LINKS_ID_FORMAT" default:"uuidv7"` // uuidv7, uuidv4, base62
	IDLength           int           `envconfig:"LINKS_ID_LENGTH" default:"10"`     // base62 only
}

var validIDFormats = []string{"uuidv7", "uuidv4", "base62"}

// Validate validates the links configuration.
func (c *LinksConfig) Validate() error {
	if c.DefaultPageSize <= 0 {
		return fmt.Errorf("default page size must be positive")
	}
	if c.MaxPageSize < c.DefaultPageSize {
		return fmt.Errorf("max page size (%d) cannot be less than default page size (%d)", c.MaxPageSize, c.DefaultPageSize)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.MaxScanRounds <= 0 {
		return fmt.Errorf("max scan rounds must be positive")
	}
	if c.MaxWriteAttempts <= 0 {
		return fmt.Errorf("max write attempts must be positive")
	}
	if c.StoreRetryAttempts <= 0 {
		return fmt.Errorf("store retry attempts must be positive")
	}
	if c.StoreRetryInterval <= 0 {
		return fmt.Errorf("store retry interval must be positive")
	}
	if !slices.Contains(validIDFormats, c.IDFormat) {
		return fmt.Errorf("invalid id format: %s (must be one of: %v)", c.IDFormat, validIDFormats)
	}
	if c.IDFormat == "base62" && c.IDLength <= 0 {
		return fmt.Errorf("id length must be positive for base62 ids")
	}
	return nil
}

// EventsConfig configures link change notifications. An empty URL disables
// publishing.
type EventsConfig struct {
	NATSURL string `envconfig:"NATS_URL"`
	Subject string `envconfig:"NATS_SUBJECT" default:"links.events"`
}

// Enabled reports whether a NATS server is configured.
func (c *EventsConfig) Enabled() bool { return c.NATSURL != "" }

// Validate validates the events configuration.
func (c *EventsConfig) Validate() error {
	if c.Enabled() && c.Subject == "" {
		return fmt.Errorf("subject is required when NATS_URL is set")
	}
	return nil
}

// AppConfig holds application-specific configuration.
type AppConfig struct {
	Environment string `envconfig:"APP_ENV" required:"true"`   // development, staging, production, test
	LogLevel    string `envconfig:"LOG_LEVEL" required:"true"` // debug, info, warn, error
}

var (
	validEnvs      = []string{"development", "staging", "production", "test"}
	validLogLevels = []string{"debug", "info", "warn", "error"}
)

// Validate validates the app configuration.
func (c *AppConfig) Validate() error {
	if !slices.Contains(validEnvs, c.Environment) {
		return fmt.Errorf("invalid environment: %s (must be one of: %v)", c.Environment, validEnvs)
	}
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %v)", c.LogLevel, validLogLevels)
	}
	return nil
}

// ObservabilityConfig names the service in health checks and logs.
type ObservabilityConfig struct {
	ServiceName    string `envconfig:"OTEL_SERVICE_NAME" default:"urlappender"`
	ServiceVersion string `envconfig:"OTEL_SERVICE_VERSION" default:"dev"`
}

// Validate validates the observability configuration.
func (c *ObservabilityConfig) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service name cannot be empty")
	}
	return nil
}

type section interface {
	Validate() error
}

// Load loads configuration from environment variables only.
// (.env loading happens in app.LoadConfig for development and test.)
func Load() (*Config, error) {
	cfg := &Config{}

	sections := []struct {
		name string
		spec section
	}{
		{"Server", &cfg.Server},
		{"Database", &cfg.Database},
		{"Redis", &cfg.Redis},
		{"Links", &cfg.Links},
		{"Events", &cfg.Events},
		{"App", &cfg.App},
		{"Observability", &cfg.Observability},
	}

	for _, s := range sections {
		if err := envconfig.Process("", s.spec); err != nil {
			return nil, fmt.Errorf("failed to load %s config: %w", s.name, err)
		}
		if err := s.spec.Validate(); err != nil {
			return nil, fmt.Errorf("invalid %s config: %w", s.name, err)
		}
	}

	return cfg, nil
}

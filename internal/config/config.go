package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds server configuration.
//
// Values come from the environment (optionally seeded from a .env file) and
// may be overridden explicitly, typically from command-line flags.
type Config struct {
	// Addr is the listen address for the HTTP server. When empty it is
	// derived from Port.
	Addr string `env:"ADDR"`
	Port int    `env:"PORT" envDefault:"8080"`

	Debug    bool   `env:"DEBUG" envDefault:"false"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	Database DatabaseConfig `envPrefix:"DATABASE_"`
	Socket   SocketConfig
	Crypto   CryptoConfig
}

// DatabaseConfig selects and configures the store backend.
type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `env:"DRIVER" envDefault:"sqlite"`
	// Path is the SQLite file path.
	Path string `env:"PATH" envDefault:"./smln.db"`
	// URL is the PostgreSQL connection string.
	URL string `env:"URL"`
	// ConnectTimeout bounds the startup ping and migration run. Store calls
	// are bounded per request by the socket RequestTimeout.
	ConnectTimeout time.Duration `env:"CONNECT_TIMEOUT" envDefault:"5s"`
}

// SocketConfig tunes the per-connection read loop.
type SocketConfig struct {
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
	PingInterval    time.Duration `env:"PING_INTERVAL" envDefault:"30s"`
	PongWait        time.Duration `env:"PONG_WAIT" envDefault:"60s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	MaxMessageBytes int64         `env:"MAX_MESSAGE_BYTES" envDefault:"16777216"`
}

// CryptoConfig holds credential hashing costs.
type CryptoConfig struct {
	BcryptCost int `env:"BCRYPT_COST" envDefault:"10"`
	ScryptN    int `env:"SCRYPT_N" envDefault:"32768"`
}

// Overrides optionally overrides values from environment variables.
//
// A nil pointer means "use the environment/default value".
type Overrides struct {
	Addr           *string
	DatabaseDriver *string
	DatabasePath   *string
	DatabaseURL    *string
	Debug          *bool
	LogLevel       *string
	// EnvFile is loaded before parsing the environment. Missing files are
	// ignored.
	EnvFile *string
}

// Load loads server configuration from environment variables and applies any
// explicit overrides.
func Load(overrides Overrides) (*Config, error) {
	envFile := ".env"
	if overrides.EnvFile != nil {
		envFile = *overrides.EnvFile
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if overrides.Addr != nil {
		cfg.Addr = *overrides.Addr
	}
	if overrides.DatabaseDriver != nil {
		cfg.Database.Driver = *overrides.DatabaseDriver
	}
	if overrides.DatabasePath != nil {
		cfg.Database.Path = *overrides.DatabasePath
	}
	if overrides.DatabaseURL != nil {
		cfg.Database.URL = *overrides.DatabaseURL
	}
	if overrides.Debug != nil {
		cfg.Debug = *overrides.Debug
	}
	if overrides.LogLevel != nil {
		cfg.LogLevel = *overrides.LogLevel
	}

	cfg.Sanitize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Sanitize applies defaults and guardrails to loaded values.
func (c *Config) Sanitize() {
	if c.Addr == "" {
		c.Addr = fmt.Sprintf(":%d", c.Port)
	}
	if c.Debug && c.LogLevel == "info" {
		c.LogLevel = "debug"
	}
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	if c.Database.ConnectTimeout <= 0 {
		c.Database.ConnectTimeout = 5 * time.Second
	}

	s := &c.Socket
	if s.RequestTimeout <= 0 {
		s.RequestTimeout = 10 * time.Second
	}
	if s.PongWait <= 0 {
		s.PongWait = 60 * time.Second
	}
	// Pings must go out before the peer's read deadline expires.
	if s.PingInterval <= 0 || s.PingInterval >= s.PongWait {
		s.PingInterval = s.PongWait * 9 / 10
	}
	if s.WriteTimeout <= 0 {
		s.WriteTimeout = 10 * time.Second
	}
	if s.MaxMessageBytes <= 0 {
		s.MaxMessageBytes = 16 << 20
	}
}

// Validate reports configuration that cannot be repaired by Sanitize.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("DATABASE_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	return nil
}

// Package config loads router settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every setting of the router and its CLI. Flags set on the command line
// override the values loaded here.
type Config struct {
	Network string `env:"JSONRPC_ROUTER_NETWORK" envDefault:"tcp"`
	Addr    string `env:"JSONRPC_ROUTER_ADDR" envDefault:"127.0.0.1:9090"`
	// HTTPAddr enables the HTTP transport when set.
	HTTPAddr      string `env:"JSONRPC_ROUTER_HTTP_ADDR"`
	Codec         string `env:"JSONRPC_ROUTER_CODEC" envDefault:"json"`
	AdvertiseAddr string `env:"JSONRPC_ROUTER_ADVERTISE_ADDR"`

	Service         string        `env:"JSONRPC_ROUTER_SERVICE" envDefault:"greeter"`
	EtcdEndpoints   []string      `env:"JSONRPC_ROUTER_ETCD_ENDPOINTS" envSeparator:","`
	EtcdDialTimeout time.Duration `env:"JSONRPC_ROUTER_ETCD_DIAL_TIMEOUT" envDefault:"5s"`
	RegistryTTL     int64         `env:"JSONRPC_ROUTER_REGISTRY_TTL" envDefault:"10"`
	Weight          int           `env:"JSONRPC_ROUTER_WEIGHT" envDefault:"1"`
	Balancer        string        `env:"JSONRPC_ROUTER_BALANCER" envDefault:"round_robin"`

	RequestTimeout  time.Duration `env:"JSONRPC_ROUTER_REQUEST_TIMEOUT" envDefault:"10s"`
	RateLimit       float64       `env:"JSONRPC_ROUTER_RATE_LIMIT"` // Requests per second; zero disables
	RateBurst       int           `env:"JSONRPC_ROUTER_RATE_BURST" envDefault:"100"`
	ShutdownTimeout time.Duration `env:"JSONRPC_ROUTER_SHUTDOWN_TIMEOUT" envDefault:"5s"`

	LogLevel string `env:"JSONRPC_ROUTER_LOG_LEVEL" envDefault:"info"`
	LogDev   bool   `env:"JSONRPC_ROUTER_LOG_DEV"`
}

// Load reads the optional dotenv files, then parses the environment. Variables already
// set in the environment win over dotenv values. Without files, ".env" is tried and may
// be missing.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load .env: %w", err)
		}
	} else if err := godotenv.Load(files...); err != nil {
		return nil, fmt.Errorf("config: load %v: %w", files, err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values env parsing cannot.
func (c *Config) Validate() error {
	if c.Addr == "" && c.HTTPAddr == "" {
		return errors.New("config: no listen address")
	}
	if c.RegistryTTL <= 0 {
		return fmt.Errorf("config: registry ttl must be positive, got %d", c.RegistryTTL)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("config: rate limit must not be negative, got %v", c.RateLimit)
	}
	if c.RequestTimeout < 0 || c.ShutdownTimeout < 0 {
		return errors.New("config: timeouts must not be negative")
	}
	return nil
}

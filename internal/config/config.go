// Package config loads the vault daemon configuration from a YAML file
// with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// Config is the full daemon configuration.
type Config struct {
	Server   Server   `yaml:"server"`
	Database Database `yaml:"database"`
	Redis    Redis    `yaml:"redis"`
	Chain    Chain    `yaml:"chain"`
	Vault    Vault    `yaml:"vault"`
	Auth     Auth     `yaml:"auth"`
}

// Server configures the HTTP listener.
type Server struct {
	Addr           string        `yaml:"addr" env:"SERVER_ADDR"`
	ReadTimeout    time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout   time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	RatePerSecond  int           `yaml:"rate_per_second" env:"SERVER_RATE_PER_SECOND"`
	RateBurst      int           `yaml:"rate_burst" env:"SERVER_RATE_BURST"`
}

// Database configures journal and snapshot persistence. An empty URL keeps
// everything in memory.
type Database struct {
	URL string `yaml:"url" env:"DATABASE_URL"`
}

// Redis configures the optional read cache. An empty address disables it.
type Redis struct {
	Addr     string        `yaml:"addr" env:"REDIS_ADDR"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"REDIS_DB"`
	TTL      time.Duration `yaml:"ttl" env:"REDIS_TTL"`
}

// Chain configures on-chain settlement. An empty RPC URL selects the
// in-memory ledger, which is only suitable for local development.
type Chain struct {
	RPCURL         string `yaml:"rpc_url" env:"NEO_RPC_URL"`
	NetworkID      uint32 `yaml:"network_id" env:"NEO_NETWORK_ID"`
	GatewayHash    string `yaml:"gateway_hash" env:"NEO_GATEWAY_HASH"`
	ServiceAccount string `yaml:"service_account" env:"NEO_SERVICE_ACCOUNT"`
}

// Vault configures the vault application itself.
type Vault struct {
	// Account is the ledger-side custody account.
	Account string `yaml:"account" env:"VAULT_ACCOUNT"`
	// SnapshotSpec is a cron expression for periodic state snapshots.
	SnapshotSpec string `yaml:"snapshot_spec" env:"VAULT_SNAPSHOT_SPEC"`
}

// Auth configures API authentication.
type Auth struct {
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
}

// Default returns the configuration used when no file or environment is
// present.
func Default() Config {
	return Config{
		Server: Server{
			Addr:          ":8080",
			ReadTimeout:   15 * time.Second,
			WriteTimeout:  15 * time.Second,
			RatePerSecond: 20,
			RateBurst:     40,
		},
		Redis: Redis{
			TTL: 5 * time.Second,
		},
		Vault: Vault{
			Account:      "vault",
			SnapshotSpec: "@every 5m",
		},
	}
}

// Load reads the configuration file at path (skipped when empty or absent)
// and applies environment overrides on top of defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := envdecode.Decode(&cfg); err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
		return cfg, fmt.Errorf("decode environment: %w", err)
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Chain.RPCURL != "" {
		if c.Chain.GatewayHash == "" {
			return fmt.Errorf("chain.gateway_hash is required when chain.rpc_url is set")
		}
		if c.Chain.ServiceAccount == "" {
			return fmt.Errorf("chain.service_account is required when chain.rpc_url is set")
		}
	}
	return nil
}

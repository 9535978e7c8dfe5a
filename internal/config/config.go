// Package config provides hierarchical configuration loading for SchemaBridge.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the SchemaBridge server.
type Config struct {
	Server     Server     `yaml:"server"`
	MCP        MCP        `yaml:"mcp"`
	Logging    Logging    `yaml:"logging"`
	Breaker    Breaker    `yaml:"breaker"`
	Cache      Cache      `yaml:"cache"`
	Tasks      Tasks      `yaml:"tasks"`
	NATS       NATS       `yaml:"nats"`
	Telemetry  Telemetry  `yaml:"telemetry"`
	Registries []Registry `yaml:"registries"`
}

// Server holds the admin HTTP server configuration.
type Server struct {
	Port       string  `yaml:"port"`
	CORSOrigin string  `yaml:"cors_origin"`
	RateLimit  float64 `yaml:"rate_limit"` // sustained requests/sec per client IP; <= 0 disables
	RateBurst  int     `yaml:"rate_burst"`
}

// MCP holds the Model Context Protocol server configuration.
type MCP struct {
	Addr    string `yaml:"addr"`
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	APIKey  string `yaml:"api_key"` // empty disables auth
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
}

// Breaker holds circuit breaker configuration for registry calls.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Cache holds the in-process schema cache configuration.
type Cache struct {
	MaxSizeMB int64         `yaml:"max_size_mb"`
	SchemaTTL time.Duration `yaml:"schema_ttl"`
}

// Tasks holds task engine configuration.
type Tasks struct {
	BatchConcurrency   int           `yaml:"batch_concurrency"`   // worker ceiling for batch deletes (default: 4)
	MigrateConcurrency int           `yaml:"migrate_concurrency"` // worker ceiling for context migration fan-out (default: 2)
	StatsConcurrency   int           `yaml:"stats_concurrency"`   // worker ceiling for version enumeration (default: 8)
	CallTimeout        time.Duration `yaml:"call_timeout"`        // per registry call (default: 30s)
}

// NATS holds optional NATS JetStream event publishing configuration.
type NATS struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

// Telemetry holds OpenTelemetry export configuration.
type Telemetry struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

// Registry describes one schema registry instance this server manages.
type Registry struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	ReadOnly bool   `yaml:"read_only"`
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:       "8080",
			CORSOrigin: "http://localhost:3000",
			RateLimit:  50,
			RateBurst:  100,
		},
		MCP: MCP{
			Addr:    ":3920",
			Name:    "schemabridge",
			Version: "0.3.0",
		},
		Logging: Logging{
			Level:   "info",
			Service: "schemabridge",
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Cache: Cache{
			MaxSizeMB: 64,
			SchemaTTL: time.Hour,
		},
		Tasks: Tasks{
			BatchConcurrency:   4,
			MigrateConcurrency: 2,
			StatsConcurrency:   8,
			CallTimeout:        30 * time.Second,
		},
		NATS: NATS{
			Enabled: false,
			URL:     "nats://localhost:4222",
		},
		Telemetry: Telemetry{
			Enabled:  false,
			Endpoint: "localhost:4317",
			Insecure: true,
		},
	}
}

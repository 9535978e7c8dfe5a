package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "schemabridge.yaml"

// maxEnvRegistries caps how many numbered registry env blocks are scanned.
const maxEnvRegistries = 8

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "SCHEMABRIDGE_PORT")
	setString(&cfg.Server.CORSOrigin, "SCHEMABRIDGE_CORS_ORIGIN")
	setFloat(&cfg.Server.RateLimit, "SCHEMABRIDGE_RATE_LIMIT")
	setInt(&cfg.Server.RateBurst, "SCHEMABRIDGE_RATE_BURST")
	setString(&cfg.MCP.Addr, "SCHEMABRIDGE_MCP_ADDR")
	setString(&cfg.MCP.APIKey, "SCHEMABRIDGE_MCP_API_KEY")
	setString(&cfg.Logging.Level, "SCHEMABRIDGE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "SCHEMABRIDGE_LOG_SERVICE")
	setInt(&cfg.Breaker.MaxFailures, "SCHEMABRIDGE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "SCHEMABRIDGE_BREAKER_TIMEOUT")
	setInt64(&cfg.Cache.MaxSizeMB, "SCHEMABRIDGE_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.SchemaTTL, "SCHEMABRIDGE_CACHE_SCHEMA_TTL")
	setInt(&cfg.Tasks.BatchConcurrency, "SCHEMABRIDGE_BATCH_CONCURRENCY")
	setInt(&cfg.Tasks.MigrateConcurrency, "SCHEMABRIDGE_MIGRATE_CONCURRENCY")
	setInt(&cfg.Tasks.StatsConcurrency, "SCHEMABRIDGE_STATS_CONCURRENCY")
	setDuration(&cfg.Tasks.CallTimeout, "SCHEMABRIDGE_CALL_TIMEOUT")
	setBool(&cfg.NATS.Enabled, "SCHEMABRIDGE_NATS_ENABLED")
	setString(&cfg.NATS.URL, "NATS_URL")
	setBool(&cfg.Telemetry.Enabled, "SCHEMABRIDGE_OTEL_ENABLED")
	setString(&cfg.Telemetry.Endpoint, "SCHEMABRIDGE_OTEL_ENDPOINT")
	setBool(&cfg.Telemetry.Insecure, "SCHEMABRIDGE_OTEL_INSECURE")

	loadEnvRegistries(cfg)
}

// loadEnvRegistries reads numbered registry blocks from the environment:
// SCHEMA_REGISTRY_NAME_1 / SCHEMA_REGISTRY_URL_1 / SCHEMA_REGISTRY_USER_1 /
// SCHEMA_REGISTRY_PASSWORD_1 / SCHEMA_REGISTRY_READONLY_1, counting up.
// An env registry with the same name replaces a YAML one.
func loadEnvRegistries(cfg *Config) {
	for i := 1; i <= maxEnvRegistries; i++ {
		name := os.Getenv(fmt.Sprintf("SCHEMA_REGISTRY_NAME_%d", i))
		url := os.Getenv(fmt.Sprintf("SCHEMA_REGISTRY_URL_%d", i))
		if name == "" || url == "" {
			continue
		}

		reg := Registry{
			Name:     name,
			URL:      url,
			Username: os.Getenv(fmt.Sprintf("SCHEMA_REGISTRY_USER_%d", i)),
			Password: os.Getenv(fmt.Sprintf("SCHEMA_REGISTRY_PASSWORD_%d", i)),
		}
		if v := os.Getenv(fmt.Sprintf("SCHEMA_REGISTRY_READONLY_%d", i)); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				reg.ReadOnly = b
			}
		}

		replaced := false
		for j := range cfg.Registries {
			if cfg.Registries[j].Name == name {
				cfg.Registries[j] = reg
				replaced = true
				break
			}
		}
		if !replaced {
			cfg.Registries = append(cfg.Registries, reg)
		}
	}
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.MCP.Addr == "" {
		return errors.New("mcp.addr is required")
	}
	if cfg.Server.RateLimit > 0 && cfg.Server.RateBurst < 1 {
		return errors.New("server.rate_burst must be >= 1 when rate limiting is enabled")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Tasks.BatchConcurrency < 1 {
		return errors.New("tasks.batch_concurrency must be >= 1")
	}
	if cfg.Tasks.CallTimeout <= 0 {
		return errors.New("tasks.call_timeout must be positive")
	}
	seen := make(map[string]bool, len(cfg.Registries))
	for i := range cfg.Registries {
		r := &cfg.Registries[i]
		if r.Name == "" {
			return fmt.Errorf("registries[%d].name is required", i)
		}
		if r.URL == "" {
			return fmt.Errorf("registry %q: url is required", r.Name)
		}
		if seen[r.Name] {
			return fmt.Errorf("registry %q: duplicate name", r.Name)
		}
		seen[r.Name] = true
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("missing file must not be an error: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Server.Port)
	}
	if cfg.Tasks.BatchConcurrency != 4 {
		t.Fatalf("expected default batch concurrency 4, got %d", cfg.Tasks.BatchConcurrency)
	}
	if cfg.Tasks.CallTimeout != 30*time.Second {
		t.Fatalf("expected default call timeout 30s, got %v", cfg.Tasks.CallTimeout)
	}
	if cfg.NATS.Enabled {
		t.Fatal("expected NATS disabled by default")
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schemabridge.yaml")
	yaml := `
server:
  port: "9090"
tasks:
  batch_concurrency: 16
registries:
  - name: prod
    url: http://registry-prod:8081
    read_only: true
  - name: staging
    url: http://registry-staging:8081
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Fatalf("expected port 9090, got %q", cfg.Server.Port)
	}
	if cfg.Tasks.BatchConcurrency != 16 {
		t.Fatalf("expected batch concurrency 16, got %d", cfg.Tasks.BatchConcurrency)
	}
	// Untouched values keep their defaults.
	if cfg.MCP.Addr != ":3920" {
		t.Fatalf("expected default mcp addr, got %q", cfg.MCP.Addr)
	}
	if len(cfg.Registries) != 2 {
		t.Fatalf("expected 2 registries, got %d", len(cfg.Registries))
	}
	if !cfg.Registries[0].ReadOnly {
		t.Fatal("expected prod registry read-only")
	}
}

func TestLoadEnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schemabridge.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: \"9090\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("SCHEMABRIDGE_PORT", "7070")
	t.Setenv("SCHEMABRIDGE_BREAKER_TIMEOUT", "90s")
	t.Setenv("SCHEMABRIDGE_NATS_ENABLED", "true")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != "7070" {
		t.Fatalf("expected env port 7070, got %q", cfg.Server.Port)
	}
	if cfg.Breaker.Timeout != 90*time.Second {
		t.Fatalf("expected breaker timeout 90s, got %v", cfg.Breaker.Timeout)
	}
	if !cfg.NATS.Enabled {
		t.Fatal("expected NATS enabled from env")
	}
}

func TestLoadEnvRegistries(t *testing.T) {
	t.Setenv("SCHEMA_REGISTRY_NAME_1", "dev")
	t.Setenv("SCHEMA_REGISTRY_URL_1", "http://localhost:8081")
	t.Setenv("SCHEMA_REGISTRY_NAME_2", "prod")
	t.Setenv("SCHEMA_REGISTRY_URL_2", "http://registry-prod:8081")
	t.Setenv("SCHEMA_REGISTRY_USER_2", "svc")
	t.Setenv("SCHEMA_REGISTRY_PASSWORD_2", "secret")
	t.Setenv("SCHEMA_REGISTRY_READONLY_2", "true")

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Registries) != 2 {
		t.Fatalf("expected 2 registries, got %d", len(cfg.Registries))
	}
	prod := cfg.Registries[1]
	if prod.Name != "prod" || prod.Username != "svc" || !prod.ReadOnly {
		t.Fatalf("unexpected prod registry: %+v", prod)
	}
}

func TestLoadEnvRegistryReplacesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schemabridge.yaml")
	yaml := `
registries:
  - name: prod
    url: http://old:8081
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("SCHEMA_REGISTRY_NAME_1", "prod")
	t.Setenv("SCHEMA_REGISTRY_URL_1", "http://new:8081")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Registries) != 1 {
		t.Fatalf("expected replacement, got %d registries", len(cfg.Registries))
	}
	if cfg.Registries[0].URL != "http://new:8081" {
		t.Fatalf("expected env url, got %q", cfg.Registries[0].URL)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"unnamed registry", "registries:\n  - url: http://x:8081\n"},
		{"registry without url", "registries:\n  - name: x\n"},
		{"duplicate registry", "registries:\n  - name: x\n    url: http://a\n  - name: x\n    url: http://b\n"},
		{"zero batch concurrency", "tasks:\n  batch_concurrency: -1\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "schemabridge.yaml")
			if err := os.WriteFile(path, []byte(tc.yaml), 0o600); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadFrom(path); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// These tests run the whole LoadFrom pipeline (defaults < YAML < env) against
// real files, rather than the per-helper units in loader_test.go.

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "loom.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFromHierarchy(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
store:
  backend: "nats"
logging:
  level: "debug"
`)
	t.Setenv("LOOM_PORT", "7070")
	t.Setenv("LOOM_STORE_BACKEND", "memory")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("env beats yaml: got port %q, want 7070", cfg.Server.Port)
	}
	if cfg.Store.Backend != "memory" {
		t.Errorf("env beats yaml: got backend %q, want memory", cfg.Store.Backend)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("yaml beats defaults: got level %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadFromPartialYAMLKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: "error"
`)
	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.Logging.Level != "error" {
		t.Errorf("got level %q, want error", cfg.Logging.Level)
	}
	if cfg.Server.Port != "8080" || cfg.Postgres.MaxConns != 15 || cfg.Breaker.MaxFailures != 5 {
		t.Errorf("untouched sections must keep their defaults, got %+v", cfg)
	}
	// NATS_URL may be set by the surrounding environment, so only require a
	// usable value here.
	if cfg.NATS.URL == "" {
		t.Error("nats url must never be empty")
	}
}

func TestLoadFromIgnoresUnparseableEnv(t *testing.T) {
	path := writeConfig(t, "")
	t.Setenv("LOOM_PG_MAX_CONNS", "notanumber")
	t.Setenv("LOOM_BREAKER_TIMEOUT", "soon-ish")
	t.Setenv("LOOM_RATE_RPS", "abc")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.Postgres.MaxConns != 15 {
		t.Errorf("bad int env must be skipped: got %d", cfg.Postgres.MaxConns)
	}
	if cfg.Breaker.Timeout != 30*time.Second {
		t.Errorf("bad duration env must be skipped: got %v", cfg.Breaker.Timeout)
	}
	if cfg.Rate.RequestsPerSecond != 10 {
		t.Errorf("bad float env must be skipped: got %v", cfg.Rate.RequestsPerSecond)
	}
}

func TestLoadFromMissingFileIsPureDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("a missing config file must not error: %v", err)
	}
	if cfg.Server.Port != "8080" || cfg.Store.Backend != "memory" {
		t.Errorf("expected pure defaults, got port=%q backend=%q", cfg.Server.Port, cfg.Store.Backend)
	}
}

func TestLoadFromRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, `{{{not yaml`)
	if _, err := LoadFrom(path); err == nil {
		t.Fatal("expected an error for malformed yaml")
	}
}

func TestLoadFromValidatesMergedResult(t *testing.T) {
	// Validation runs after all layers merged, so yaml can invalidate a
	// defaulted field.
	path := writeConfig(t, `
server:
  port: ""
`)
	if _, err := LoadFrom(path); err == nil {
		t.Fatal("expected a validation error for the empty port")
	}
}

func TestLoadFromWorkspaceSection(t *testing.T) {
	path := writeConfig(t, `
workspace:
  debug: true
  erase_parallelism: 16
`)
	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if !cfg.Workspace.Debug || cfg.Workspace.EraseParallelism != 16 {
		t.Errorf("got debug=%v erase_parallelism=%d", cfg.Workspace.Debug, cfg.Workspace.EraseParallelism)
	}
}

func TestHolderReloadPicksUpFileChanges(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: "info"
rate:
  burst: 50
`)
	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	holder := NewHolder(cfg, path)

	if err := os.WriteFile(path, []byte(`
logging:
  level: "debug"
rate:
  burst: 200
`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := holder.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	got := holder.Get()
	if got.Logging.Level != "debug" || got.Rate.Burst != 200 {
		t.Errorf("after reload: level=%q burst=%d", got.Logging.Level, got.Rate.Burst)
	}
}

func TestHolderFailedReloadKeepsServing(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
`)
	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	holder := NewHolder(cfg, path)

	// Break the file, then reload: the error surfaces but the running
	// config stays intact.
	if err := os.WriteFile(path, []byte(`
server:
  port: ""
`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := holder.Reload(); err == nil {
		t.Fatal("expected the reload to fail validation")
	}
	if got := holder.Get(); got.Server.Port != "9090" {
		t.Errorf("failed reload must keep the old config, got port %q", got.Server.Port)
	}
}

func TestHolderReloadAppliesEnv(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: "info"
`)
	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	holder := NewHolder(cfg, path)

	t.Setenv("LOOM_LOG_LEVEL", "error")
	if err := holder.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := holder.Get(); got.Logging.Level != "error" {
		t.Errorf("env must apply on reload too, got %q", got.Logging.Level)
	}
}

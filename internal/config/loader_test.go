package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFile_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_DB_HOST", "db.internal")

	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	content := `
database:
  host: ${TEST_DB_HOST}
  port: 5433
cache:
  addr: ${TEST_CACHE_ADDR:fallback:6379}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	loader := NewLoader(path, nil)
	if err := loader.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	cfg := loader.Config()
	if cfg.Database.Host != "db.internal" {
		t.Errorf("env var not expanded: %s", cfg.Database.Host)
	}
	if cfg.Database.Port != 5433 {
		t.Errorf("override not applied: %d", cfg.Database.Port)
	}
	if cfg.Cache.Addr != "fallback:6379" {
		t.Errorf("default not applied: %s", cfg.Cache.Addr)
	}
	// Untouched fields keep their defaults.
	if cfg.Server.Port != 8080 {
		t.Errorf("default server port lost: %d", cfg.Server.Port)
	}
}

func TestReload_NotifiesCallbacksWithNewConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 8080\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	loader := NewLoader(path, nil)
	if err := loader.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	var fired int
	loader.OnReload(func() { fired++ })

	if err := os.WriteFile(path, []byte("server:\n  port: 9999\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	loader.reload()

	if fired != 1 {
		t.Fatalf("callback fired %d times, want 1", fired)
	}
	if got := loader.Config().Server.Port; got != 9999 {
		t.Errorf("config not refreshed: port = %d", got)
	}
}

func TestReload_BadFileKeepsPreviousConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 8080\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	loader := NewLoader(path, nil)
	if err := loader.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	var fired int
	loader.OnReload(func() { fired++ })

	if err := os.WriteFile(path, []byte("server: [not yaml"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	loader.reload()

	if fired != 0 {
		t.Errorf("callbacks must not fire on a failed reload")
	}
	if got := loader.Config().Server.Port; got != 8080 {
		t.Errorf("previous config lost: port = %d", got)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	if err := loader.Load(); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

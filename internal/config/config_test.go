package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoad_defaults(t *testing.T) {
	t.Setenv("LEADHOOKS_AUTH_TOKEN_SECRET", testSecret)

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port: %d", cfg.Server.Port)
	}
	if cfg.Webhooks.Timeout != 5*time.Second {
		t.Errorf("timeout: %v", cfg.Webhooks.Timeout)
	}
	want := []time.Duration{0, 30 * time.Second, 5 * time.Minute}
	if len(cfg.Webhooks.RetryDelays) != len(want) {
		t.Fatalf("retry delays: %v", cfg.Webhooks.RetryDelays)
	}
	for i := range want {
		if cfg.Webhooks.RetryDelays[i] != want[i] {
			t.Errorf("retry delay %d: %v, want %v", i, cfg.Webhooks.RetryDelays[i], want[i])
		}
	}
	if cfg.Webhooks.Retention != 30*24*time.Hour {
		t.Errorf("retention: %v", cfg.Webhooks.Retention)
	}
	if cfg.Database.URL != "" || cfg.Redis.URL != "" {
		t.Error("storage URLs should default to empty")
	}
}

func TestLoad_fileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	yaml := `
server:
  port: 9090
webhooks:
  timeout: 2s
  retention: 48h
auth:
  token_secret: ` + testSecret + `
`
	if err := os.WriteFile(filepath.Join(dir, "leadhooks.yaml"), []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LEADHOOKS_SERVER_PORT", "7070")
	t.Setenv("LEADHOOKS_REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("env should win over file: port %d", cfg.Server.Port)
	}
	if cfg.Webhooks.Timeout != 2*time.Second || cfg.Webhooks.Retention != 48*time.Hour {
		t.Errorf("file values not applied: %+v", cfg.Webhooks)
	}
	if cfg.Redis.URL != "redis://localhost:6379/0" {
		t.Errorf("redis url: %q", cfg.Redis.URL)
	}
}

func TestLoad_validation(t *testing.T) {
	cases := map[string]map[string]string{
		"missing secret": {},
		"short secret":   {"LEADHOOKS_AUTH_TOKEN_SECRET": "short"},
		"bad port":       {"LEADHOOKS_AUTH_TOKEN_SECRET": testSecret, "LEADHOOKS_SERVER_PORT": "70000"},
		"zero timeout":   {"LEADHOOKS_AUTH_TOKEN_SECRET": testSecret, "LEADHOOKS_WEBHOOKS_TIMEOUT": "0s"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("LEADHOOKS_AUTH_TOKEN_SECRET", "")
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := Load(t.TempDir()); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoad_rejectsRetryDelayCount(t *testing.T) {
	dir := t.TempDir()
	yaml := "webhooks:\n  retry_delays: [\"0s\", \"30s\"]\n"
	if err := os.WriteFile(filepath.Join(dir, "leadhooks.yaml"), []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LEADHOOKS_AUTH_TOKEN_SECRET", testSecret)
	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for two retry delays")
	}
}

func TestLoad_malformedFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "leadhooks.yaml"), []byte("server: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LEADHOOKS_AUTH_TOKEN_SECRET", testSecret)
	if _, err := Load(dir); err == nil {
		t.Fatal("expected parse error")
	}
}

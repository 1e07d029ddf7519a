package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.Translate.MaxAttempts != 3 || cfg.Translate.BackoffBase != 1.5 {
		t.Fatalf("unexpected retry defaults: %+v", cfg.Translate)
	}
	if cfg.Cache.Eviction != "global" {
		t.Fatalf("expected global eviction by default, got %q", cfg.Cache.Eviction)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("NARRATOR_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("NARRATOR_BUS_USERNAME", "alice")
	t.Setenv("NARRATOR_BUS_PASSWORD", "secret")
	t.Setenv("NARRATOR_BUS_TLS_INSECURE", "true")
	t.Setenv("NARRATOR_BUS_CONNECT_TIMEOUT_MS", "5000")
	t.Setenv("NARRATOR_EVENT_STORE_PATH", "./tmp.db")
	t.Setenv("NARRATOR_EVENT_STORE_RETENTION_MODE", "persistent")
	t.Setenv("NARRATOR_EVENT_STORE_RETENTION_DAYS", "7")
	t.Setenv("NARRATOR_EVENT_STORE_MAX_EVENTS", "123")
	t.Setenv("NARRATOR_LLM_MODE", "exec")
	t.Setenv("NARRATOR_LLM_COMMAND", "translate --json")
	t.Setenv("NARRATOR_TRANSLATE_BACKOFF_BASE", "2")
	t.Setenv("NARRATOR_TRANSLATE_MAX_ATTEMPTS", "5")
	t.Setenv("NARRATOR_CACHE_EVICTION", "per_key")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if !cfg.Bus.TLSInsecure {
		t.Fatal("expected tls insecure override true")
	}
	if cfg.Bus.ConnectTimeout != 5000 {
		t.Fatalf("expected timeout 5000, got %d", cfg.Bus.ConnectTimeout)
	}
	if cfg.EventStore.Path != "./tmp.db" {
		t.Fatalf("expected event store path override")
	}
	if cfg.EventStore.RetentionMode != "persistent" {
		t.Fatalf("expected event store retention mode override")
	}
	if cfg.EventStore.RetentionDays != 7 {
		t.Fatalf("expected event store retention days override")
	}
	if cfg.EventStore.MaxEvents != 123 {
		t.Fatalf("expected event store max events override")
	}
	if cfg.LLM.Mode != "exec" || cfg.LLM.Command != "translate --json" {
		t.Fatalf("expected llm overrides, got %+v", cfg.LLM)
	}
	if cfg.Translate.BackoffBase != 2 || cfg.Translate.MaxAttempts != 5 {
		t.Fatalf("expected translate overrides, got %+v", cfg.Translate)
	}
	if cfg.Cache.Eviction != "per_key" {
		t.Fatalf("expected cache eviction override")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "narrator.yaml")
	data := []byte(`mail:
  source: mbox
  mbox_path: ./inbox.mbox
tts:
  mode: exec
  command: "speak --format mp3"
player:
  mode: exec
  command: mpg123 -q
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mail.Source != "mbox" || cfg.Mail.MboxPath != "./inbox.mbox" {
		t.Fatalf("unexpected mail config: %+v", cfg.Mail)
	}
	if cfg.TTS.Command != "speak --format mp3" {
		t.Fatalf("unexpected tts command %q", cfg.TTS.Command)
	}
	if cfg.Player.PollIntervalMS != 100 {
		t.Fatalf("expected default poll interval to survive, got %d", cfg.Player.PollIntervalMS)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"exec tts without command": func(c *Config) { c.TTS.Mode = "exec" },
		"unknown eviction":         func(c *Config) { c.Cache.Eviction = "lru" },
		"zero attempts":            func(c *Config) { c.Translate.MaxAttempts = 0 },
		"mbox without path":        func(c *Config) { c.Mail.Source = "mbox" },
		"openai without key":       func(c *Config) { c.LLM.Mode = "openai" },
		"bad log format":           func(c *Config) { c.Telemetry.LogFormat = "xml" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			if err := validate(cfg); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

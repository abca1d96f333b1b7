package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `
logging:
  level: debug
  console: true
backend:
  base_url: http://127.0.0.1:8000
feed:
  base_url: https://api.example.com/v1/search
  query: data engineer
  location: New York City
matcher:
  threshold: 0.46
  workers: 4
  skip:
    - title: Senior Data Engineer
      company: MegaCorp
orchestrator:
  tick: 5s
  tasks:
    fetcher:
      schedule: 1h
    cover_letter:
      disabled: true
storage:
  driver: sqlite
  path: ./alfred.db
paths:
  data_dir: ./data
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, sampleYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if cfg.Backend.BaseURL != "http://127.0.0.1:8000" {
		t.Fatalf("backend = %+v", cfg.Backend)
	}
	if cfg.Matcher.Threshold != 0.46 || len(cfg.Matcher.Skip) != 1 {
		t.Fatalf("matcher = %+v", cfg.Matcher)
	}
	if cfg.Orchestrator.Tasks["fetcher"].Schedule != "1h" {
		t.Fatalf("tasks = %+v", cfg.Orchestrator.Tasks)
	}
	if !cfg.Orchestrator.Tasks["cover_letter"].Disabled {
		t.Fatal("cover_letter not disabled")
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "sqlite" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if m.Get() != cfg {
		t.Fatal("Get did not return committed config")
	}
}

func TestUnknownFieldRejected(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "backend:\n  base_url: http://x\nmystery: 1\n"))
	if _, err := m.Load(); err == nil {
		t.Fatal("unknown top-level field accepted")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body string
	}{
		{name: "missing backend url", body: "logging:\n  console: true\n"},
		{name: "threshold out of range", body: "backend:\n  base_url: http://x\nmatcher:\n  threshold: 1.5\n"},
		{name: "unknown task", body: "backend:\n  base_url: http://x\norchestrator:\n  tasks:\n    mailer:\n      schedule: 1m\n"},
		{name: "unknown storage driver", body: "backend:\n  base_url: http://x\nstorage:\n  driver: redis\n  path: x\n"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(writeConfig(t, tt.body))
			if _, err := m.Load(); err == nil {
				t.Fatalf("config accepted: %s", tt.body)
			}
		})
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationField("orchestrator.tick", "10s")
	if err != nil || d != 10*time.Second {
		t.Fatalf("ParseDurationField = %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "banana"); err == nil {
		t.Fatal("invalid duration accepted")
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatal("negative duration accepted")
	}
	d, err = ParseDurationOrDefault("x", "", 5*time.Second)
	if err != nil || d != 5*time.Second {
		t.Fatalf("ParseDurationOrDefault = %v, %v", d, err)
	}
}

func TestDataDirDefault(t *testing.T) {
	t.Parallel()
	var c Config
	if got := c.DataDir(); got != "./data" {
		t.Fatalf("DataDir = %q", got)
	}
	c.Paths.DataDir = "/var/lib/alfred"
	if got := c.DataDir(); got != "/var/lib/alfred" {
		t.Fatalf("DataDir = %q", got)
	}
}

func TestHashSuppressesUnchangedPublish(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, sampleYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if hashConfig(cfg) == 0 {
		t.Fatal("hash of valid config is 0")
	}
	if hashConfig(cfg) != hashConfig(cfg) {
		t.Fatal("hash not stable")
	}
}

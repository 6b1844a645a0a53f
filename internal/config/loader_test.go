package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.ListenPort != 8000 {
		t.Errorf("expected default port 8000, got %d", cfg.ListenPort)
	}
	if cfg.FetchConcurrency != 5 {
		t.Errorf("expected default fetch concurrency 5, got %d", cfg.FetchConcurrency)
	}
	if cfg.FetchTimeout.DurationValue() != 5*time.Minute {
		t.Errorf("expected default fetch timeout 5m, got %v", cfg.FetchTimeout.DurationValue())
	}
	if cfg.FeedTimeout.DurationValue() != 30*time.Second {
		t.Errorf("expected default feed timeout 30s, got %v", cfg.FeedTimeout.DurationValue())
	}
	if !filepath.IsAbs(cfg.CachePath) {
		t.Errorf("expected absolute cache path, got %s", cfg.CachePath)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
ListenPort = 9000
CachePath = "/tmp/sauropod-cache"
DataPath = "/tmp/sauropod.db"
FetchTimeout = "2m"
FeedTimeout = 10
SyncConcurrency = 3
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.ListenPort != 9000 {
		t.Errorf("port override failed: %d", cfg.ListenPort)
	}
	if cfg.FetchTimeout.DurationValue() != 2*time.Minute {
		t.Errorf("duration string override failed: %v", cfg.FetchTimeout.DurationValue())
	}
	if cfg.FeedTimeout.DurationValue() != 10*time.Second {
		t.Errorf("integer seconds override failed: %v", cfg.FeedTimeout.DurationValue())
	}
	if cfg.SyncConcurrency != 3 {
		t.Errorf("sync concurrency override failed: %d", cfg.SyncConcurrency)
	}
}

func TestLoadInvalidPort(t *testing.T) {
	path := writeConfig(t, "ListenPort = -1\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestLoadRejectsNegativeIntervals(t *testing.T) {
	path := writeConfig(t, `SyncInterval = "-1h"`+"\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for negative sync interval")
	}

	path = writeConfig(t, `CleanInterval = "-5m"`+"\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for negative clean interval")
	}
}

func TestDurationUnmarshalText(t *testing.T) {
	cases := []struct {
		raw  string
		want time.Duration
	}{
		{"30s", 30 * time.Second},
		{"5m", 5 * time.Minute},
		{"60", 60 * time.Second},
		{"", 0},
	}
	for _, tc := range cases {
		var d Duration
		if err := d.UnmarshalText([]byte(tc.raw)); err != nil {
			t.Fatalf("unmarshal %q: %v", tc.raw, err)
		}
		if d.DurationValue() != tc.want {
			t.Errorf("%q: expected %v got %v", tc.raw, tc.want, d.DurationValue())
		}
	}

	var d Duration
	if err := d.UnmarshalText([]byte("not-a-duration")); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

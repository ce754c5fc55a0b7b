package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}

	if cfg.URL != DefaultURL {
		t.Errorf("URL = %q, want %q", cfg.URL, DefaultURL)
	}
	if cfg.IdleTimeout != 300*time.Second {
		t.Errorf("IdleTimeout = %s, want 300s", cfg.IdleTimeout)
	}
	if cfg.PollInterval != 30*time.Second {
		t.Errorf("PollInterval = %s, want 30s", cfg.PollInterval)
	}
	if cfg.MaxTrackedSessions != 240 {
		t.Errorf("MaxTrackedSessions = %d, want 240", cfg.MaxTrackedSessions)
	}
	if cfg.MaxFileCursors != 800 {
		t.Errorf("MaxFileCursors = %d, want 800", cfg.MaxFileCursors)
	}
	if !cfg.EnableShellMonitor {
		t.Error("EnableShellMonitor = false, want true")
	}
	if cfg.StatusPort != 0 {
		t.Errorf("StatusPort = %d, want 0 (disabled)", cfg.StatusPort)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("OPENVIKING_URL", "https://index.example.com/api/v1")
	t.Setenv("VIKING_IDLE_TIMEOUT_SEC", "120")
	t.Setenv("VIKING_MAX_TRACKED_SESSIONS", "10")
	t.Setenv("VIKING_ENABLE_SHELL_MONITOR", "0")

	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}

	if cfg.URL != "https://index.example.com/api/v1" {
		t.Errorf("URL = %q", cfg.URL)
	}
	if cfg.IdleTimeout != 120*time.Second {
		t.Errorf("IdleTimeout = %s, want 120s", cfg.IdleTimeout)
	}
	if cfg.MaxTrackedSessions != 10 {
		t.Errorf("MaxTrackedSessions = %d, want 10", cfg.MaxTrackedSessions)
	}
	if cfg.EnableShellMonitor {
		t.Error("EnableShellMonitor = true, want false")
	}
}

func TestLegacyStorageRootEnv(t *testing.T) {
	t.Setenv("OPENVIKING_STORAGE_ROOT", "/srv/context")
	cfg, _ := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if cfg.StorageRoot != "/srv/context" {
		t.Errorf("StorageRoot = %q, want /srv/context", cfg.StorageRoot)
	}

	// The primary variable wins over the legacy one.
	t.Setenv("UNIFIED_CONTEXT_STORAGE_ROOT", "/srv/unified")
	cfg, _ = LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if cfg.StorageRoot != "/srv/unified" {
		t.Errorf("StorageRoot = %q, want /srv/unified", cfg.StorageRoot)
	}
}

func TestFloors(t *testing.T) {
	t.Setenv("VIKING_FAST_POLL_INTERVAL_SEC", "0")
	t.Setenv("VIKING_PENDING_RETRY_INTERVAL_SEC", "1")
	t.Setenv("VIKING_EXPORT_HTTP_TIMEOUT_SEC", "1")
	t.Setenv("VIKING_PENDING_HTTP_TIMEOUT_SEC", "2")

	cfg, _ := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))

	if cfg.FastPollInterval != time.Second {
		t.Errorf("FastPollInterval = %s, want 1s floor", cfg.FastPollInterval)
	}
	if cfg.PendingRetryInterval != 5*time.Second {
		t.Errorf("PendingRetryInterval = %s, want 5s floor", cfg.PendingRetryInterval)
	}
	if cfg.ExportHTTPTimeout != 5*time.Second {
		t.Errorf("ExportHTTPTimeout = %s, want 5s floor", cfg.ExportHTTPTimeout)
	}
	if cfg.PendingHTTPTimeout != 5*time.Second {
		t.Errorf("PendingHTTPTimeout = %s, want 5s floor", cfg.PendingHTTPTimeout)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "url: https://remote.example.com/api/v1\nmax_tracked_sessions: 5\npoll_interval: 10s\nstatus_port: 7071\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.URL != "https://remote.example.com/api/v1" {
		t.Errorf("URL = %q", cfg.URL)
	}
	if cfg.MaxTrackedSessions != 5 {
		t.Errorf("MaxTrackedSessions = %d, want 5", cfg.MaxTrackedSessions)
	}
	if cfg.PollInterval != 10*time.Second {
		t.Errorf("PollInterval = %s, want 10s", cfg.PollInterval)
	}
	if cfg.StatusPort != 7071 {
		t.Errorf("StatusPort = %d, want 7071", cfg.StatusPort)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"loopback http", "http://127.0.0.1:8090/api/v1", false},
		{"localhost http", "http://localhost:8090/api/v1", false},
		{"ipv6 loopback http", "http://[::1]:8090/api/v1", false},
		{"remote https", "https://index.example.com/api/v1", false},
		{"remote http", "http://index.example.com/api/v1", true},
		{"remote ip http", "http://10.0.0.5:8090/api/v1", true},
		{"bad scheme", "ftp://127.0.0.1/api", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, _ := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
			cfg.URL = tt.url
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%q) err = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestDerivedPaths(t *testing.T) {
	cfg, _ := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	cfg.StorageRoot = "/data/ctx"

	if got := cfg.HistoryDir(); got != "/data/ctx/resources/shared/history" {
		t.Errorf("HistoryDir = %q", got)
	}
	if got := cfg.PendingDir(); got != "/data/ctx/resources/shared/history/.pending" {
		t.Errorf("PendingDir = %q", got)
	}
}

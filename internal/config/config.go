// Package config resolves the daemon's configuration from three layers:
// compiled defaults, an optional YAML file, and environment variables.
// Environment variables win so that launchd/systemd unit overrides work
// without touching the file.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultURL is the remote index base URL when nothing is configured.
	DefaultURL = "http://127.0.0.1:8090/api/v1"

	// RetainMessagesOnOverflow is how many messages a session keeps after
	// its message list exceeds MaxMessagesPerSession.
	RetainMessagesOnOverflow = 200
)

type Config struct {
	// URL is the remote index base URL. Non-loopback hosts must use https.
	URL string `yaml:"url"`

	// StorageRoot holds exported artifacts and the pending outbox.
	StorageRoot string `yaml:"storage_root"`

	// LogDir holds the rotating daemon log.
	LogDir string `yaml:"log_dir"`

	// CodexSessionsDir is the root of the codex session tree.
	CodexSessionsDir string `yaml:"codex_sessions_dir"`

	// AntigravityBrainDir is the root of walkthrough directories.
	AntigravityBrainDir string `yaml:"antigravity_brain_dir"`

	EnableShellMonitor bool `yaml:"enable_shell_monitor"`

	IdleTimeout          time.Duration `yaml:"idle_timeout"`
	PollInterval         time.Duration `yaml:"poll_interval"`
	FastPollInterval     time.Duration `yaml:"fast_poll_interval"`
	PendingRetryInterval time.Duration `yaml:"pending_retry_interval"`
	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval"`
	SessionTTL           time.Duration `yaml:"session_ttl"`

	MaxTrackedSessions    int `yaml:"max_tracked_sessions"`
	MaxFileCursors        int `yaml:"max_file_cursors"`
	MaxMessagesPerSession int `yaml:"max_messages_per_session"`

	ExportHTTPTimeout  time.Duration `yaml:"export_http_timeout"`
	PendingHTTPTimeout time.Duration `yaml:"pending_http_timeout"`

	// StatusPort enables the local status endpoint when non-zero.
	StatusPort int `yaml:"status_port"`

	// DisableWatcher turns off the fsnotify wake-on-write watcher.
	DisableWatcher bool `yaml:"disable_watcher"`
}

func defaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		URL:                   DefaultURL,
		StorageRoot:           filepath.Join(home, ".unified_context_data"),
		LogDir:                filepath.Join(home, ".context_system", "logs"),
		CodexSessionsDir:      filepath.Join(home, ".codex", "sessions"),
		AntigravityBrainDir:   filepath.Join(home, ".gemini", "antigravity", "brain"),
		EnableShellMonitor:    true,
		IdleTimeout:           300 * time.Second,
		PollInterval:          30 * time.Second,
		FastPollInterval:      3 * time.Second,
		PendingRetryInterval:  60 * time.Second,
		HeartbeatInterval:     600 * time.Second,
		SessionTTL:            7200 * time.Second,
		MaxTrackedSessions:    240,
		MaxFileCursors:        800,
		MaxMessagesPerSession: 500,
		ExportHTTPTimeout:     30 * time.Second,
		PendingHTTPTimeout:    15 * time.Second,
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides and floors.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.applyEnv()
	cfg.normalize()
	return cfg, nil
}

// LoadOrDefault loads config from path, or falls back to defaults plus
// environment overrides when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := defaultConfig()
		cfg.applyEnv()
		cfg.normalize()
		return cfg, nil
	}
	return Load(path)
}

func (c *Config) applyEnv() {
	if v := os.Getenv("OPENVIKING_URL"); v != "" {
		c.URL = v
	}
	if v := os.Getenv("UNIFIED_CONTEXT_STORAGE_ROOT"); v != "" {
		c.StorageRoot = expandHome(v)
	} else if v := os.Getenv("OPENVIKING_STORAGE_ROOT"); v != "" {
		c.StorageRoot = expandHome(v)
	}
	if v := os.Getenv("VIKING_ENABLE_SHELL_MONITOR"); v != "" {
		c.EnableShellMonitor = v == "1"
	}
	if v := os.Getenv("VIKING_DISABLE_WATCHER"); v != "" {
		c.DisableWatcher = v == "1"
	}

	envSeconds("VIKING_IDLE_TIMEOUT_SEC", &c.IdleTimeout)
	envSeconds("VIKING_POLL_INTERVAL_SEC", &c.PollInterval)
	envSeconds("VIKING_FAST_POLL_INTERVAL_SEC", &c.FastPollInterval)
	envSeconds("VIKING_PENDING_RETRY_INTERVAL_SEC", &c.PendingRetryInterval)
	envSeconds("VIKING_HEARTBEAT_INTERVAL_SEC", &c.HeartbeatInterval)
	envSeconds("VIKING_SESSION_TTL_SEC", &c.SessionTTL)
	envSeconds("VIKING_EXPORT_HTTP_TIMEOUT_SEC", &c.ExportHTTPTimeout)
	envSeconds("VIKING_PENDING_HTTP_TIMEOUT_SEC", &c.PendingHTTPTimeout)

	envInt("VIKING_MAX_TRACKED_SESSIONS", &c.MaxTrackedSessions)
	envInt("VIKING_MAX_FILE_CURSORS", &c.MaxFileCursors)
	envInt("VIKING_MAX_MESSAGES_PER_SESSION", &c.MaxMessagesPerSession)
	envInt("VIKING_STATUS_PORT", &c.StatusPort)
}

// normalize applies the documented floors so misconfiguration degrades to
// the nearest safe value instead of failing.
func (c *Config) normalize() {
	if c.FastPollInterval < time.Second {
		c.FastPollInterval = time.Second
	}
	if c.PendingRetryInterval < 5*time.Second {
		c.PendingRetryInterval = 5 * time.Second
	}
	if c.ExportHTTPTimeout < 5*time.Second {
		c.ExportHTTPTimeout = 5 * time.Second
	}
	if c.PendingHTTPTimeout < 5*time.Second {
		c.PendingHTTPTimeout = 5 * time.Second
	}
	if c.PollInterval < time.Second {
		c.PollInterval = time.Second
	}
}

// Validate rejects configurations that must not reach the run loop. A
// remote index outside loopback over plain http would ship session content
// unencrypted, so it is a startup error rather than a warning.
func (c *Config) Validate() error {
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("parsing url %q: %w", c.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url %q: unsupported scheme %q", c.URL, u.Scheme)
	}
	if u.Scheme == "http" && !isLoopbackHost(u.Hostname()) {
		return fmt.Errorf("url %q: non-loopback host requires https", c.URL)
	}
	return nil
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

// HistoryDir is where exported artifacts are written.
func (c *Config) HistoryDir() string {
	return filepath.Join(c.StorageRoot, "resources", "shared", "history")
}

// PendingDir is the outbox for artifacts awaiting remote acknowledgement.
func (c *Config) PendingDir() string {
	return filepath.Join(c.HistoryDir(), ".pending")
}

// LogFile is the rotating daemon log path.
func (c *Config) LogFile() string {
	return filepath.Join(c.LogDir, "viking_daemon.log")
}

// DefaultConfigPath returns the XDG-compliant config file location.
func DefaultConfigPath() string {
	return filepath.Join(defaultConfigDir(), "silent-context-foundry", "config.yaml")
}

func defaultConfigDir() string {
	if value := os.Getenv("XDG_CONFIG_HOME"); value != "" {
		return value
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".config")
}

func expandHome(path string) string {
	if len(path) >= 2 && path[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

func envSeconds(name string, dst *time.Duration) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = time.Duration(n) * time.Second
		}
	}
}

func envInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

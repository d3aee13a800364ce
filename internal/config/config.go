package config

import (
	"fmt"
	"net"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for roomsync.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Store      StoreConfig      `yaml:"store"`
	Security   SecurityConfig   `yaml:"security"`
	Logging    LoggingConfig    `yaml:"logging"`
	Health     HealthConfig     `yaml:"health"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

// ServerConfig contains the HTTP and WebSocket settings.
type ServerConfig struct {
	ListenAddress  string        `yaml:"listen_address"`
	DrainTimeout   time.Duration `yaml:"drain_timeout"`
	MaxMessageSize int64         `yaml:"max_message_size"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	PongTimeout    time.Duration `yaml:"pong_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	SendQueueSize  int           `yaml:"send_queue_size"`
	ReconnectGrace time.Duration `yaml:"reconnect_grace"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	TLS            TLSConfig     `yaml:"tls"`
}

// TLSConfig contains optional TLS settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// StoreConfig controls room persistence.
type StoreConfig struct {
	// Path of the buntdb file; ":memory:" keeps rooms in RAM only.
	Path          string        `yaml:"path"`
	CacheSize     int           `yaml:"cache_size"`
	RoomTTL       time.Duration `yaml:"room_ttl"`
	SweepSchedule string        `yaml:"sweep_schedule"`
}

// SecurityConfig contains security-related settings.
type SecurityConfig struct {
	RateLimit               RateLimitConfig `yaml:"rate_limit"`
	MaxConnections          int             `yaml:"max_connections"`
	MaxConnectionsPerClient int             `yaml:"max_connections_per_client"`
	CookieSecure            bool            `yaml:"cookie_secure"`
}

// RateLimitConfig contains rate limiting settings.
type RateLimitConfig struct {
	Enabled              bool `yaml:"enabled"`
	ConnectionsPerMinute int  `yaml:"connections_per_minute"`
	MessagesPerSecond    int  `yaml:"messages_per_second"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
	// RecentEntries sizes the in-memory log served on the health listener; 0 disables it.
	RecentEntries int `yaml:"recent_entries"`
}

// HealthConfig contains health check endpoint settings.
type HealthConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Endpoint      string `yaml:"endpoint"`
	ListenAddress string `yaml:"listen_address"`
	Detailed      bool   `yaml:"detailed"`
}

// MonitoringConfig contains metrics settings.
type MonitoringConfig struct {
	MetricsEnabled  bool   `yaml:"metrics_enabled"`
	MetricsEndpoint string `yaml:"metrics_endpoint"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddress:  "127.0.0.1:8080",
			DrainTimeout:   30 * time.Second,
			MaxMessageSize: 16384, // 16KB
			PingInterval:   30 * time.Second,
			PongTimeout:    10 * time.Second,
			WriteTimeout:   10 * time.Second,
			SendQueueSize:  32,
			ReconnectGrace: 3 * time.Second,
		},
		Store: StoreConfig{
			Path:          "roomsync.db",
			CacheSize:     25,
			RoomTTL:       24 * time.Hour,
			SweepSchedule: "@every 10m",
		},
		Security: SecurityConfig{
			MaxConnections:          1000,
			MaxConnectionsPerClient: 20,
			RateLimit: RateLimitConfig{
				Enabled:              true,
				ConnectionsPerMinute: 60,
				MessagesPerSecond:    20,
			},
		},
		Logging: LoggingConfig{
			Level:         "info",
			Format:        "json",
			MaxSizeMB:     100,
			MaxBackups:    3,
			MaxAgeDays:    28,
			Compress:      true,
			RecentEntries: 1000,
		},
		Health: HealthConfig{
			Enabled:       true,
			Endpoint:      "/health",
			ListenAddress: "127.0.0.1:8081",
			Detailed:      true,
		},
		Monitoring: MonitoringConfig{
			MetricsEnabled:  false,
			MetricsEndpoint: "/metrics",
		},
	}
}

// Load reads a config file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("config file not found at %s", path)
			}
			if os.IsPermission(err) {
				return nil, fmt.Errorf("permission denied reading %s", path)
			}
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w (check YAML indentation)", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Server validation
	if c.Server.ListenAddress == "" {
		return fmt.Errorf("server.listen_address is required")
	}
	if _, _, err := net.SplitHostPort(c.Server.ListenAddress); err != nil {
		return fmt.Errorf("server.listen_address is invalid: %w", err)
	}
	if c.Server.MaxMessageSize <= 0 {
		return fmt.Errorf("server.max_message_size must be positive")
	}
	if c.Server.MaxMessageSize > 1048576 {
		return fmt.Errorf("server.max_message_size must not exceed 1048576 (1MB)")
	}
	if c.Server.DrainTimeout <= 0 {
		return fmt.Errorf("server.drain_timeout must be positive")
	}
	if c.Server.DrainTimeout > 5*time.Minute {
		return fmt.Errorf("server.drain_timeout must not exceed 5m")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be positive")
	}
	if c.Server.PingInterval < 0 {
		return fmt.Errorf("server.ping_interval must not be negative")
	}
	if c.Server.PingInterval > 0 && c.Server.PongTimeout <= 0 {
		return fmt.Errorf("server.pong_timeout must be positive when pings are enabled")
	}
	if c.Server.SendQueueSize <= 0 {
		return fmt.Errorf("server.send_queue_size must be positive")
	}
	if c.Server.ReconnectGrace < 0 {
		return fmt.Errorf("server.reconnect_grace must not be negative")
	}
	if c.Server.ReconnectGrace > time.Minute {
		return fmt.Errorf("server.reconnect_grace must not exceed 1m")
	}

	// TLS validation
	if c.Server.TLS.Enabled {
		if c.Server.TLS.CertFile == "" {
			return fmt.Errorf("server.tls.cert_file is required when TLS is enabled")
		}
		if c.Server.TLS.KeyFile == "" {
			return fmt.Errorf("server.tls.key_file is required when TLS is enabled")
		}
	}

	// Store validation
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required (use :memory: for an in-memory store)")
	}
	if c.Store.CacheSize <= 0 {
		return fmt.Errorf("store.cache_size must be positive")
	}
	if c.Store.RoomTTL < 0 {
		return fmt.Errorf("store.room_ttl must not be negative")
	}
	if c.Store.RoomTTL > 0 {
		if _, err := cron.ParseStandard(c.Store.SweepSchedule); err != nil {
			return fmt.Errorf("store.sweep_schedule is invalid: %w", err)
		}
	}

	// Security validation
	if c.Security.MaxConnections <= 0 {
		return fmt.Errorf("security.max_connections must be positive")
	}
	if c.Security.MaxConnections > 65535 {
		return fmt.Errorf("security.max_connections must not exceed 65535")
	}
	if c.Security.MaxConnectionsPerClient <= 0 {
		return fmt.Errorf("security.max_connections_per_client must be positive")
	}
	if c.Security.MaxConnectionsPerClient > c.Security.MaxConnections {
		return fmt.Errorf("security.max_connections_per_client must not exceed security.max_connections")
	}
	if c.Security.RateLimit.Enabled {
		if c.Security.RateLimit.ConnectionsPerMinute <= 0 {
			return fmt.Errorf("security.rate_limit.connections_per_minute must be positive")
		}
		if c.Security.RateLimit.MessagesPerSecond < 0 {
			return fmt.Errorf("security.rate_limit.messages_per_second must not be negative")
		}
	}

	// Logging validation
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	switch c.Logging.Format {
	case "json", "text":
		// valid
	default:
		return fmt.Errorf("logging.format must be one of: json, text")
	}
	if c.Logging.RecentEntries < 0 || c.Logging.RecentEntries > 100000 {
		return fmt.Errorf("logging.recent_entries must be between 0 and 100000")
	}

	// Health validation
	if c.Health.Enabled {
		if c.Health.ListenAddress == "" {
			return fmt.Errorf("health.listen_address is required when health is enabled")
		}
		host, _, err := net.SplitHostPort(c.Health.ListenAddress)
		if err != nil {
			return fmt.Errorf("health.listen_address is invalid: %w", err)
		}
		if ip := net.ParseIP(host); ip != nil && !ip.IsLoopback() {
			return fmt.Errorf("health.listen_address should bind to a loopback address (e.g. 127.0.0.1) to avoid exposing metrics")
		}
		if c.Server.ListenAddress == c.Health.ListenAddress {
			return fmt.Errorf("server.listen_address and health.listen_address must be different")
		}
	}

	return nil
}

// applyEnvOverrides applies ROOMSYNC_ prefixed environment variables.
// Convention: ROOMSYNC_ + uppercase + underscores for nesting.
func applyEnvOverrides(cfg *Config) {
	envMap := map[string]func(string){
		"ROOMSYNC_SERVER_LISTEN_ADDRESS":   func(v string) { cfg.Server.ListenAddress = v },
		"ROOMSYNC_SERVER_DRAIN_TIMEOUT":    func(v string) { cfg.Server.DrainTimeout = parseDuration(v, cfg.Server.DrainTimeout) },
		"ROOMSYNC_SERVER_MAX_MESSAGE_SIZE": func(v string) { cfg.Server.MaxMessageSize = parseInt64(v, cfg.Server.MaxMessageSize) },
		"ROOMSYNC_SERVER_PING_INTERVAL":    func(v string) { cfg.Server.PingInterval = parseDuration(v, cfg.Server.PingInterval) },
		"ROOMSYNC_SERVER_PONG_TIMEOUT":     func(v string) { cfg.Server.PongTimeout = parseDuration(v, cfg.Server.PongTimeout) },
		"ROOMSYNC_SERVER_WRITE_TIMEOUT":    func(v string) { cfg.Server.WriteTimeout = parseDuration(v, cfg.Server.WriteTimeout) },
		"ROOMSYNC_SERVER_SEND_QUEUE_SIZE":  func(v string) { cfg.Server.SendQueueSize = parseInt(v, cfg.Server.SendQueueSize) },
		"ROOMSYNC_SERVER_RECONNECT_GRACE":  func(v string) { cfg.Server.ReconnectGrace = parseDuration(v, cfg.Server.ReconnectGrace) },
		"ROOMSYNC_SERVER_ALLOWED_ORIGINS":  func(v string) { cfg.Server.AllowedOrigins = splitList(v) },
		"ROOMSYNC_STORE_PATH":              func(v string) { cfg.Store.Path = v },
		"ROOMSYNC_STORE_CACHE_SIZE":        func(v string) { cfg.Store.CacheSize = parseInt(v, cfg.Store.CacheSize) },
		"ROOMSYNC_STORE_ROOM_TTL":          func(v string) { cfg.Store.RoomTTL = parseDuration(v, cfg.Store.RoomTTL) },
		"ROOMSYNC_STORE_SWEEP_SCHEDULE":    func(v string) { cfg.Store.SweepSchedule = v },
		"ROOMSYNC_SECURITY_MAX_CONNECTIONS": func(v string) {
			cfg.Security.MaxConnections = parseInt(v, cfg.Security.MaxConnections)
		},
		"ROOMSYNC_SECURITY_MAX_CONNECTIONS_PER_CLIENT": func(v string) {
			cfg.Security.MaxConnectionsPerClient = parseInt(v, cfg.Security.MaxConnectionsPerClient)
		},
		"ROOMSYNC_SECURITY_COOKIE_SECURE":     func(v string) { cfg.Security.CookieSecure = parseBool(v, cfg.Security.CookieSecure) },
		"ROOMSYNC_SECURITY_RATE_LIMIT_ENABLED": func(v string) { cfg.Security.RateLimit.Enabled = parseBool(v, cfg.Security.RateLimit.Enabled) },
		"ROOMSYNC_SECURITY_RATE_LIMIT_CONNECTIONS_PER_MINUTE": func(v string) {
			cfg.Security.RateLimit.ConnectionsPerMinute = parseInt(v, cfg.Security.RateLimit.ConnectionsPerMinute)
		},
		"ROOMSYNC_SECURITY_RATE_LIMIT_MESSAGES_PER_SECOND": func(v string) {
			cfg.Security.RateLimit.MessagesPerSecond = parseInt(v, cfg.Security.RateLimit.MessagesPerSecond)
		},
		"ROOMSYNC_LOGGING_LEVEL":               func(v string) { cfg.Logging.Level = v },
		"ROOMSYNC_LOGGING_FORMAT":              func(v string) { cfg.Logging.Format = v },
		"ROOMSYNC_LOGGING_FILE":                func(v string) { cfg.Logging.File = v },
		"ROOMSYNC_HEALTH_ENABLED":              func(v string) { cfg.Health.Enabled = parseBool(v, cfg.Health.Enabled) },
		"ROOMSYNC_HEALTH_LISTEN_ADDRESS":       func(v string) { cfg.Health.ListenAddress = v },
		"ROOMSYNC_MONITORING_METRICS_ENABLED":  func(v string) { cfg.Monitoring.MetricsEnabled = parseBool(v, cfg.Monitoring.MetricsEnabled) },
	}

	for env, setter := range envMap {
		if v := os.Getenv(env); v != "" {
			setter(v)
		}
	}
}

// ApplyReloadableFields returns a copy of c with reloadable fields from newCfg.
// Non-reloadable: listen addresses, tls, store.
func (c *Config) ApplyReloadableFields(newCfg *Config) *Config {
	updated := *c
	updated.Security.RateLimit = newCfg.Security.RateLimit
	updated.Security.MaxConnections = newCfg.Security.MaxConnections
	updated.Security.MaxConnectionsPerClient = newCfg.Security.MaxConnectionsPerClient
	updated.Logging.Level = newCfg.Logging.Level
	updated.Server.MaxMessageSize = newCfg.Server.MaxMessageSize
	updated.Server.ReconnectGrace = newCfg.Server.ReconnectGrace
	return &updated
}

// IsReloadSafe checks if only reloadable fields changed between configs.
func IsReloadSafe(old, new *Config) []string {
	var warnings []string
	if old.Server.ListenAddress != new.Server.ListenAddress {
		warnings = append(warnings, "server.listen_address requires restart")
	}
	if !reflect.DeepEqual(old.Server.TLS, new.Server.TLS) {
		warnings = append(warnings, "server.tls requires restart")
	}
	if !reflect.DeepEqual(old.Store, new.Store) {
		warnings = append(warnings, "store settings require restart")
	}
	if old.Health.ListenAddress != new.Health.ListenAddress {
		warnings = append(warnings, "health.listen_address requires restart")
	}
	return warnings
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func parseInt64(s string, fallback int64) int64 {
	var v int64
	if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
		return fallback
	}
	return v
}

func parseInt(s string, fallback int) int {
	var v int
	if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
		return fallback
	}
	return v
}

func parseBool(s string, fallback bool) bool {
	s = strings.ToLower(s)
	switch s {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return fallback
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

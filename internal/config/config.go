package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/yegors/jetstream/internal/fleet"
)

// Config is the configuration shared by jetstream-server and jetstream-watch
type Config struct {
	Server   ServerConfig   `toml:"server" yaml:"server"`
	Storage  StorageConfig  `toml:"storage" yaml:"storage"`
	Logging  LoggingConfig  `toml:"logging" yaml:"logging"`
	Realtime RealtimeConfig `toml:"realtime" yaml:"realtime"`
	Tracker  TrackerConfig  `toml:"tracker" yaml:"tracker"`
	Notify   NotifyConfig   `toml:"notify" yaml:"notify"`
	Watch    WatchConfig    `toml:"watch" yaml:"watch"`
}

// ServerConfig configures the HTTP and websocket backend
type ServerConfig struct {
	Host                   string   `toml:"host" yaml:"host"`
	Port                   int      `toml:"port" yaml:"port"`
	ReadTimeoutSeconds     int      `toml:"read_timeout_seconds" yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds    int      `toml:"write_timeout_seconds" yaml:"write_timeout_seconds"`
	IdleTimeoutSeconds     int      `toml:"idle_timeout_seconds" yaml:"idle_timeout_seconds"`
	ShutdownTimeoutSeconds int      `toml:"shutdown_timeout_seconds" yaml:"shutdown_timeout_seconds"`
	CORSAllowedOrigins     []string `toml:"cors_allowed_origins" yaml:"cors_allowed_origins"`
	WSSendBufferSize       int      `toml:"ws_send_buffer_size" yaml:"ws_send_buffer_size"`
}

// StorageConfig configures the sqlite database
type StorageConfig struct {
	Path                 string `toml:"path" yaml:"path"`
	PositionRetention    int    `toml:"position_retention" yaml:"position_retention"` // samples kept per aircraft
	PruneIntervalMinutes int    `toml:"prune_interval_minutes" yaml:"prune_interval_minutes"`
}

// LoggingConfig configures pkg/logger
type LoggingConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// RealtimeConfig configures the websocket transport client
type RealtimeConfig struct {
	URL                   string `toml:"url" yaml:"url"`
	ConnectTimeoutSeconds int    `toml:"connect_timeout_seconds" yaml:"connect_timeout_seconds"`
	WriteTimeoutSeconds   int    `toml:"write_timeout_seconds" yaml:"write_timeout_seconds"`
	ProbeIntervalSeconds  int    `toml:"probe_interval_seconds" yaml:"probe_interval_seconds"`
	MaxReconnectAttempts  int    `toml:"max_reconnect_attempts" yaml:"max_reconnect_attempts"`
	ReconnectBaseDelayMs  int    `toml:"reconnect_base_delay_ms" yaml:"reconnect_base_delay_ms"`
	ReconnectMaxDelayMs   int    `toml:"reconnect_max_delay_ms" yaml:"reconnect_max_delay_ms"`
	HealthWindow          int    `toml:"health_window" yaml:"health_window"`
}

// TrackerConfig configures the per-aircraft trackers
type TrackerConfig struct {
	APIBaseURL          string `toml:"api_base_url" yaml:"api_base_url"`
	UpdateIntervalMs    int    `toml:"update_interval_ms" yaml:"update_interval_ms"`
	RetryAttempts       int    `toml:"retry_attempts" yaml:"retry_attempts"`
	FetchTimeoutSeconds int    `toml:"fetch_timeout_seconds" yaml:"fetch_timeout_seconds"`
	HistorySize         int    `toml:"history_size" yaml:"history_size"`
}

// NotifyConfig configures the notification center
type NotifyConfig struct {
	HistorySize int    `toml:"history_size" yaml:"history_size"`
	Desktop     bool   `toml:"desktop" yaml:"desktop"`
	IconPath    string `toml:"icon_path" yaml:"icon_path"`
}

// WatchConfig configures jetstream-watch
type WatchConfig struct {
	Aircraft          []string `toml:"aircraft" yaml:"aircraft"`
	RefreshIntervalMs int      `toml:"refresh_interval_ms" yaml:"refresh_interval_ms"`
	StaleAfterSeconds int      `toml:"stale_after_seconds" yaml:"stale_after_seconds"`
	GeoJSONPath       string   `toml:"geojson_path" yaml:"geojson_path"`
	FilterStatus      string   `toml:"filter_status" yaml:"filter_status"`
	FilterOperator    string   `toml:"filter_operator" yaml:"filter_operator"`
	FilterCategory    string   `toml:"filter_category" yaml:"filter_category"`
}

// Default returns the configuration used when a key is not set
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:                   "0.0.0.0",
			Port:                   8080,
			ReadTimeoutSeconds:     15,
			WriteTimeoutSeconds:    15,
			IdleTimeoutSeconds:     60,
			ShutdownTimeoutSeconds: 10,
			WSSendBufferSize:       256,
		},
		Storage: StorageConfig{
			Path:                 "data/jetstream.db",
			PositionRetention:    1000,
			PruneIntervalMinutes: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Realtime: RealtimeConfig{
			URL:                   "ws://localhost:8080/api/v1/ws",
			ConnectTimeoutSeconds: 10,
			WriteTimeoutSeconds:   5,
			ProbeIntervalSeconds:  15,
			MaxReconnectAttempts:  5,
			ReconnectBaseDelayMs:  1000,
			ReconnectMaxDelayMs:   30000,
			HealthWindow:          20,
		},
		Tracker: TrackerConfig{
			APIBaseURL:          "http://localhost:8080/api/v1",
			UpdateIntervalMs:    5000,
			RetryAttempts:       3,
			FetchTimeoutSeconds: 10,
			HistorySize:         100,
		},
		Notify: NotifyConfig{
			HistorySize: 50,
		},
		Watch: WatchConfig{
			RefreshIntervalMs: 1000,
			StaleAfterSeconds: 120,
		},
	}
}

// Load reads a TOML or YAML file over the defaults and validates the result.
// The format is chosen by extension; anything but .yaml/.yml is TOML.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse TOML config: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("unknown config keys: %v", undecoded)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and cross-field constraints
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}
	if c.Storage.PositionRetention < 1 {
		return fmt.Errorf("storage.position_retention must be positive")
	}
	if c.Storage.PruneIntervalMinutes < 1 {
		return fmt.Errorf("storage.prune_interval_minutes must be positive")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging.format %q is not json or console", c.Logging.Format)
	}

	u, err := url.Parse(c.Realtime.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return fmt.Errorf("realtime.url %q must be a ws:// or wss:// URL", c.Realtime.URL)
	}
	if c.Realtime.MaxReconnectAttempts < 0 {
		return fmt.Errorf("realtime.max_reconnect_attempts must not be negative")
	}
	if c.Realtime.ReconnectMaxDelayMs < c.Realtime.ReconnectBaseDelayMs {
		return fmt.Errorf("realtime.reconnect_max_delay_ms is below reconnect_base_delay_ms")
	}

	u, err = url.Parse(c.Tracker.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("tracker.api_base_url %q must be an http(s) URL", c.Tracker.APIBaseURL)
	}
	if c.Tracker.UpdateIntervalMs < 0 || c.Tracker.RetryAttempts < 0 {
		return fmt.Errorf("tracker tuning must not be negative")
	}

	if c.Watch.RefreshIntervalMs < 1 {
		return fmt.Errorf("watch.refresh_interval_ms must be positive")
	}
	if c.Watch.FilterStatus != "" {
		if _, err := fleet.ParseStatus(c.Watch.FilterStatus); err != nil {
			return fmt.Errorf("watch.filter_status: %w", err)
		}
	}
	return nil
}

// Address returns the host:port the server listens on
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func seconds(n int) time.Duration      { return time.Duration(n) * time.Second }
func milliseconds(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func (s ServerConfig) ReadTimeout() time.Duration     { return seconds(s.ReadTimeoutSeconds) }
func (s ServerConfig) WriteTimeout() time.Duration    { return seconds(s.WriteTimeoutSeconds) }
func (s ServerConfig) IdleTimeout() time.Duration     { return seconds(s.IdleTimeoutSeconds) }
func (s ServerConfig) ShutdownTimeout() time.Duration { return seconds(s.ShutdownTimeoutSeconds) }

func (s StorageConfig) PruneInterval() time.Duration {
	return time.Duration(s.PruneIntervalMinutes) * time.Minute
}

func (r RealtimeConfig) ConnectTimeout() time.Duration     { return seconds(r.ConnectTimeoutSeconds) }
func (r RealtimeConfig) WriteTimeout() time.Duration       { return seconds(r.WriteTimeoutSeconds) }
func (r RealtimeConfig) ProbeInterval() time.Duration      { return seconds(r.ProbeIntervalSeconds) }
func (r RealtimeConfig) ReconnectBaseDelay() time.Duration { return milliseconds(r.ReconnectBaseDelayMs) }
func (r RealtimeConfig) ReconnectMaxDelay() time.Duration  { return milliseconds(r.ReconnectMaxDelayMs) }

func (t TrackerConfig) UpdateInterval() time.Duration { return milliseconds(t.UpdateIntervalMs) }
func (t TrackerConfig) FetchTimeout() time.Duration   { return seconds(t.FetchTimeoutSeconds) }

func (w WatchConfig) RefreshInterval() time.Duration { return milliseconds(w.RefreshIntervalMs) }
func (w WatchConfig) StaleAfter() time.Duration      { return seconds(w.StaleAfterSeconds) }

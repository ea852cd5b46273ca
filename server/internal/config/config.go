package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the server configuration.
const (
	DefaultHTTPPort        = 3001
	DefaultGRPCPort        = 50051
	DefaultFrontendURL     = "http://localhost:3000"
	DefaultLogLevel        = "info"
	DefaultDatabasePath    = "data/livepaste.db"
	DefaultSnippetTTL      = 24 * time.Hour
	DefaultCleanupInterval = time.Hour
	DefaultRoomBuffer      = 64
	DefaultSweepInterval   = time.Minute
	DefaultIdleGrace       = 5 * time.Minute
	DefaultMaxMessageBytes = 8 << 20
)

// Config holds the configuration parsed from the `server:` section of
// config.yaml.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// HTTPPort is the port the REST API and WebSocket endpoint listen on
	// (default 3001, overridden by $PORT).
	HTTPPort int `yaml:"http_port"`

	// GRPCPort is the port of the admin health listener (default 50051).
	// Zero disables the listener.
	GRPCPort int `yaml:"grpc_port"`

	// FrontendURL is the origin allowed by CORS (overridden by $FRONTEND_URL).
	FrontendURL string `yaml:"frontend_url"`

	// LogLevel is one of: debug | info | warn | error. Hot-reloadable.
	LogLevel string `yaml:"log_level"`

	Database  DatabaseConfig  `yaml:"database"`
	Snippet   SnippetConfig   `yaml:"snippet"`
	Rooms     RoomsConfig     `yaml:"rooms"`
	WebSocket WebSocketConfig `yaml:"websocket"`

	// Auth guards the admin surfaces (/metrics and the gRPC listener).
	// Viewers are never authenticated.
	Auth AuthConfig `yaml:"auth"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	// Path is a file path or sqlite:// URL (overridden by $DATABASE_URL).
	Path string `yaml:"path"`
}

// SnippetConfig controls snippet lifetime.
type SnippetConfig struct {
	// TTL is how long a new snippet stays live (default 24h).
	TTL time.Duration `yaml:"ttl"`

	// CleanupInterval is how often expired rows are purged (default 1h).
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// RoomsConfig tunes the in-memory room hub.
type RoomsConfig struct {
	// Buffer is the per-viewer outbound queue length (default 64).
	Buffer int `yaml:"buffer"`

	// SweepInterval is how often idle rooms are checked (default 1m). Hot-reloadable.
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// IdleGrace is how long an empty room lingers before it is dropped
	// (default 5m, 0 keeps rooms forever). Hot-reloadable.
	IdleGrace time.Duration `yaml:"idle_grace"`
}

// WebSocketConfig tunes viewer connections.
type WebSocketConfig struct {
	// MaxMessageBytes bounds one inbound frame (default 8 MiB).
	MaxMessageBytes int64 `yaml:"max_message_bytes"`
}

// AuthConfig controls client authentication on the admin surfaces.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	// Used when Mode == "apikey".
	KeyEnv string `yaml:"key_env"`

	// Header is the gRPC metadata key (and HTTP header name) to read the key from.
	// Defaults to "x-api-key" if empty.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// Level returns the parsed log level. validate guarantees it parses.
func (s ServerConfig) Level() slog.Level {
	lvl, _ := parseLevel(s.LogLevel)
	return lvl
}

// Load reads and parses the config file at path, returning the server configuration.
// An empty path yields the defaults. Environment overrides are applied after
// the file, then the result is validated.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("server config: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("server config: parse yaml: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:    DefaultHTTPPort,
			GRPCPort:    DefaultGRPCPort,
			FrontendURL: DefaultFrontendURL,
			LogLevel:    DefaultLogLevel,
			Database:    DatabaseConfig{Path: DefaultDatabasePath},
			Snippet: SnippetConfig{
				TTL:             DefaultSnippetTTL,
				CleanupInterval: DefaultCleanupInterval,
			},
			Rooms: RoomsConfig{
				Buffer:        DefaultRoomBuffer,
				SweepInterval: DefaultSweepInterval,
				IdleGrace:     DefaultIdleGrace,
			},
			WebSocket: WebSocketConfig{MaxMessageBytes: DefaultMaxMessageBytes},
		},
	}
}

// applyEnv lets the deployment environment override the file.
func applyEnv(cfg *Config) error {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Server.Database.Path = v
	}
	if v := os.Getenv("FRONTEND_URL"); v != "" {
		cfg.Server.FrontendURL = v
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT %q is not a number", v)
		}
		cfg.Server.HTTPPort = port
	}
	return nil
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	if s.GRPCPort < 0 || s.GRPCPort > 65535 {
		return fmt.Errorf("server.grpc_port %d is out of range [0, 65535]", s.GRPCPort)
	}
	if _, err := parseLevel(s.LogLevel); err != nil {
		return err
	}
	if s.Database.Path == "" {
		return fmt.Errorf("server.database.path must not be empty")
	}
	if s.Snippet.TTL <= 0 {
		return fmt.Errorf("server.snippet.ttl must be positive")
	}
	if s.Snippet.CleanupInterval < time.Second {
		return fmt.Errorf("server.snippet.cleanup_interval must be at least 1s")
	}
	if s.Rooms.Buffer < 1 {
		return fmt.Errorf("server.rooms.buffer must be at least 1")
	}
	if s.Rooms.SweepInterval < time.Second {
		return fmt.Errorf("server.rooms.sweep_interval must be at least 1s")
	}
	if s.Rooms.IdleGrace < 0 {
		return fmt.Errorf("server.rooms.idle_grace must not be negative")
	}
	if s.WebSocket.MaxMessageBytes < 1024 {
		return fmt.Errorf("server.websocket.max_message_bytes must be at least 1024")
	}
	switch s.Auth.Mode {
	case "apikey":
		if s.Auth.KeyEnv == "" {
			return fmt.Errorf("server.auth.key_env is required when mode is apikey")
		}
	case "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", s.Auth.Mode)
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("server.log_level %q unknown: want debug|info|warn|error", s)
	}
}

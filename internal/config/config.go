package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Music    MusicConfig    `toml:"music"`
	Logging  LoggingConfig  `toml:"logging"`
	Player   PlayerConfig   `toml:"player"`
	Auth     AuthConfig     `toml:"auth"`
	Ngrok    NgrokConfig    `toml:"ngrok"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Port        string `toml:"port"`
	Host        string `toml:"host"`
	StaticDir   string `toml:"static_dir"`
	EnableCORS  bool   `toml:"enable_cors"`
	ReadTimeout int    `toml:"read_timeout_seconds"`
	// Commands accepted per second per player session, with a small burst
	CommandRate  float64 `toml:"command_rate"`
	CommandBurst int     `toml:"command_burst"`
}

// DatabaseConfig contains database-related configuration
type DatabaseConfig struct {
	Path           string `toml:"path"`
	MaxConnections int    `toml:"max_connections"`
}

// MusicConfig contains music library configuration
type MusicConfig struct {
	LibraryPath      string   `toml:"library_path"`
	UploadPath       string   `toml:"upload_path"`
	SupportedFormats []string `toml:"supported_formats"`
	WatchForChanges  bool     `toml:"watch_for_changes"`
	ScanOnStartup    bool     `toml:"scan_on_startup"`
	ScanWorkers      int      `toml:"scan_workers"`
	MaxUploadMB      int      `toml:"max_upload_mb"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level          string `toml:"level"`
	Format         string `toml:"format"`
	File           string `toml:"file"`
	RequestLogging bool   `toml:"request_logging"`
}

// PlayerConfig controls where player state lives and how the playback clock runs
type PlayerConfig struct {
	// Storage is one of sqlite, file or memory
	Storage        string `toml:"storage"`
	StateKey       string `toml:"state_key"`
	StateDir       string `toml:"state_dir"`
	TickIntervalMS int    `toml:"tick_interval_ms"`
	SaveDebounceMS int    `toml:"save_debounce_ms"`
	DefaultVolume  int    `toml:"default_volume"`
	// ServerClock estimates playback position on the server when clients
	// do not report it
	ServerClock      bool `toml:"server_clock"`
	SessionTimeoutMS int  `toml:"session_timeout_ms"`
}

// AuthConfig contains user authentication configuration
type AuthConfig struct {
	Enabled          bool   `toml:"enabled"`
	UsersFile        string `toml:"users_file"`
	SessionHours     int    `toml:"session_hours"`
	AllowRegistering bool   `toml:"allow_registering"`
}

// NgrokConfig contains ngrok tunnel configuration
type NgrokConfig struct {
	Enabled      bool   `toml:"enabled"`
	AuthToken    string `toml:"auth_token"`
	Domain       string `toml:"domain"`
	Region       string `toml:"region"`
	EnableAuth   bool   `toml:"enable_auth"`
	AuthProvider string `toml:"auth_provider"`
}

// Storage backends for player state
const (
	StorageSQLite = "sqlite"
	StorageFile   = "file"
	StorageMemory = "memory"
)

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         "8080",
			Host:         "0.0.0.0",
			StaticDir:    "./static",
			EnableCORS:   true,
			ReadTimeout:  30,
			CommandRate:  10,
			CommandBurst: 20,
		},
		Database: DatabaseConfig{
			Path:           "./legato.db",
			MaxConnections: 10,
		},
		Music: MusicConfig{
			LibraryPath:      "./music",
			UploadPath:       "./music/uploads",
			SupportedFormats: []string{".flac", ".mp3", ".wav", ".m4a"},
			WatchForChanges:  true,
			ScanOnStartup:    true,
			ScanWorkers:      4,
			MaxUploadMB:      200,
		},
		Logging: LoggingConfig{
			Level:          "info",
			Format:         "text",
			File:           "",
			RequestLogging: true,
		},
		Player: PlayerConfig{
			Storage:          StorageSQLite,
			StateKey:         "player-state.v1",
			StateDir:         "./state",
			TickIntervalMS:   500,
			SaveDebounceMS:   1000,
			DefaultVolume:    80,
			ServerClock:      false,
			SessionTimeoutMS: 30 * 60 * 1000,
		},
		Auth: AuthConfig{
			Enabled:          false,
			UsersFile:        "./users.toml",
			SessionHours:     24 * 7,
			AllowRegistering: true,
		},
		Ngrok: NgrokConfig{
			Enabled:      false,
			AuthToken:    "",
			Domain:       "",
			Region:       "us",
			EnableAuth:   false,
			AuthProvider: "google",
		},
	}
}

// LoadConfig loads configuration from a TOML file. A missing file is created
// with the defaults.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := cfg.SaveToFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config file: %w", err)
		}
		return cfg, nil
	}

	if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves the configuration to a TOML file
func (c *Config) SaveToFile(configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	header := `# Legato Music Server Configuration
# This file contains all configuration options for the Legato music sharing server.
# Edit the values below to customize your server settings.

`
	if _, err := file.WriteString(header); err != nil {
		return fmt.Errorf("failed to write config header: %w", err)
	}

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config to TOML: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port cannot be empty")
	}
	if c.Server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server read timeout must be positive")
	}
	if c.Server.CommandRate <= 0 || c.Server.CommandBurst < 1 {
		return fmt.Errorf("server command rate and burst must be positive")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.MaxConnections < 1 {
		return fmt.Errorf("database max connections must be at least 1")
	}

	if c.Music.LibraryPath == "" {
		return fmt.Errorf("music library path cannot be empty")
	}
	if len(c.Music.SupportedFormats) == 0 {
		return fmt.Errorf("at least one supported audio format must be specified")
	}
	if c.Music.ScanWorkers < 1 {
		return fmt.Errorf("music scan workers must be at least 1")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"text": true, "json": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Logging.Format)
	}

	switch c.Player.Storage {
	case StorageSQLite, StorageMemory:
	case StorageFile:
		if c.Player.StateDir == "" {
			return fmt.Errorf("player state dir cannot be empty with file storage")
		}
	default:
		return fmt.Errorf("invalid player storage: %s (must be sqlite, file, or memory)", c.Player.Storage)
	}
	if strings.TrimSpace(c.Player.StateKey) == "" {
		return fmt.Errorf("player state key cannot be empty")
	}
	if c.Player.TickIntervalMS < 1 {
		return fmt.Errorf("player tick interval must be positive")
	}
	if c.Player.SaveDebounceMS < 0 {
		return fmt.Errorf("player save debounce cannot be negative")
	}
	if c.Player.DefaultVolume < 0 || c.Player.DefaultVolume > 100 {
		return fmt.Errorf("player default volume must be between 0 and 100")
	}

	if c.Auth.Enabled && c.Auth.UsersFile == "" {
		return fmt.Errorf("auth users file cannot be empty when auth is enabled")
	}

	return nil
}

// GetAddress returns the full server address
func (c *Config) GetAddress() string {
	return c.Server.Host + ":" + c.Server.Port
}

// IsFormatSupported checks if an audio format is supported
func (c *Config) IsFormatSupported(format string) bool {
	return slices.Contains(c.Music.SupportedFormats, strings.ToLower(format))
}

// TickInterval returns the playback clock period.
func (p PlayerConfig) TickInterval() time.Duration {
	return time.Duration(p.TickIntervalMS) * time.Millisecond
}

// SaveDebounce returns how long state saves are coalesced.
func (p PlayerConfig) SaveDebounce() time.Duration {
	return time.Duration(p.SaveDebounceMS) * time.Millisecond
}

// SessionTimeout returns how long an idle player session is kept.
func (p PlayerConfig) SessionTimeout() time.Duration {
	return time.Duration(p.SessionTimeoutMS) * time.Millisecond
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/peterje/forge/internal/pty"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Logging  LogConfig      `yaml:"logging"`
	Terminal TerminalConfig `yaml:"terminal"`
	Store    StoreConfig    `yaml:"store"`
	Watch    WatchConfig    `yaml:"watch"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host        string   `envconfig:"HOST" yaml:"host"`
	Port        int      `envconfig:"PORT" yaml:"port"`
	CORSOrigins []string `envconfig:"CORS_ORIGINS" yaml:"cors_origins"`

	// Per-IP request limit; 0 disables it.
	RateLimitRPS   int `envconfig:"RATE_LIMIT_RPS" yaml:"rate_limit_rps"`
	RateLimitBurst int `envconfig:"RATE_LIMIT_BURST" yaml:"rate_limit_burst"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" yaml:"level"`
	Development bool   `envconfig:"LOG_DEV" yaml:"development"`
}

// TerminalConfig tunes the terminal manager and the defaults applied to
// every new terminal.
type TerminalConfig struct {
	EventBuffer  int `envconfig:"TERMINAL_EVENT_BUFFER" yaml:"event_buffer"`
	ReadBuffer   int `envconfig:"TERMINAL_READ_BUFFER" yaml:"read_buffer"`
	ReplayBytes  int `envconfig:"TERMINAL_REPLAY_BYTES" yaml:"replay_bytes"`
	HistoryLines int `envconfig:"TERMINAL_HISTORY_LINES" yaml:"history_lines"`

	Shell string            `envconfig:"TERMINAL_SHELL" yaml:"shell"`
	Cwd   string            `envconfig:"TERMINAL_CWD" yaml:"cwd"`
	Env   map[string]string `envconfig:"TERMINAL_ENV" yaml:"env"`
	Rows  uint16            `envconfig:"TERMINAL_ROWS" yaml:"rows"`
	Cols  uint16            `envconfig:"TERMINAL_COLS" yaml:"cols"`
}

// StoreConfig holds the sqlite database location.
type StoreConfig struct {
	Path string `envconfig:"STORE_PATH" yaml:"path"`
}

// WatchConfig holds file watcher configuration.
type WatchConfig struct {
	// Debounce coalesces changes of one path arriving this close together.
	Debounce time.Duration `envconfig:"WATCH_DEBOUNCE" yaml:"debounce"`
}

// Default returns the built-in configuration.
func Default() *Config {
	storePath := filepath.Join(".forge", "forge.db")
	if home, err := os.UserHomeDir(); err == nil {
		storePath = filepath.Join(home, storePath)
	}
	return &Config{
		Server: ServerConfig{
			Host:        "127.0.0.1",
			Port:        8800,
			CORSOrigins: []string{"*"},
		},
		Logging: LogConfig{
			Level: "info",
		},
		Terminal: TerminalConfig{
			EventBuffer:  100,
			ReadBuffer:   4096,
			ReplayBytes:  100 * 1024,
			HistoryLines: 500,
		},
		Store: StoreConfig{
			Path: storePath,
		},
		Watch: WatchConfig{
			Debounce: 100 * time.Millisecond,
		},
	}
}

// DefaultPath returns ~/.config/forge/config.yaml, or "" when there is no
// home directory. FORGE_CONFIG overrides it.
func DefaultPath() string {
	if p := os.Getenv("FORGE_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "forge", "config.yaml")
}

// Load layers the YAML file at path (if it exists) and then the environment
// over Default. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", path, err)
			}
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg.Store.Path = expandHome(cfg.Store.Path)
	cfg.Terminal.Cwd = expandHome(cfg.Terminal.Cwd)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads configuration or returns Default on any error.
func LoadOrDefault(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if c.Server.RateLimitRPS < 0 || c.Server.RateLimitBurst < 0 {
		return fmt.Errorf("rate limit settings must not be negative")
	}
	if c.Terminal.EventBuffer <= 0 {
		return fmt.Errorf("terminal event buffer must be positive, got %d", c.Terminal.EventBuffer)
	}
	if c.Terminal.ReadBuffer <= 0 {
		return fmt.Errorf("terminal read buffer must be positive, got %d", c.Terminal.ReadBuffer)
	}
	if (c.Terminal.Rows == 0) != (c.Terminal.Cols == 0) {
		return fmt.Errorf("terminal rows and cols must be set together")
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch debounce must not be negative, got %s", c.Watch.Debounce)
	}
	return nil
}

// Addr returns the host:port the HTTP server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// TerminalDefaults returns the options applied to every new terminal.
func (c *Config) TerminalDefaults() pty.Options {
	opts := pty.Options{
		Shell: c.Terminal.Shell,
		Cwd:   c.Terminal.Cwd,
		Env:   c.Terminal.Env,
	}
	if c.Terminal.Rows > 0 && c.Terminal.Cols > 0 {
		opts.Size = &pty.Size{Rows: c.Terminal.Rows, Cols: c.Terminal.Cols}
	}
	return opts
}

// ManagerConfig returns the terminal manager settings.
func (c *Config) ManagerConfig() pty.Config {
	return pty.Config{
		ReadBufferSize: c.Terminal.ReadBuffer,
		ReplayBytes:    c.Terminal.ReplayBytes,
		HistoryLines:   c.Terminal.HistoryLines,
		Defaults:       c.TerminalDefaults(),
	}
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

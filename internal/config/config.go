package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"capstan/internal/client"
	"capstan/internal/stream"
)

//go:embed sample_config.toml
var sampleConfig string

// Server contains connection settings for the orchestrator REST API.
type Server struct {
	URL             string            `toml:"url"`
	Token           string            `toml:"token"`
	TimeoutSeconds  int               `toml:"timeout_seconds"`
	RetryAttempts   int               `toml:"retry_attempts"`
	RetryBaseMillis int               `toml:"retry_base_millis"`
	RetryMaxMillis  int               `toml:"retry_max_millis"`
	Headers         map[string]string `toml:"headers"`
}

// Stream contains settings for the realtime event connection.
type Stream struct {
	URL                  string `toml:"url"`
	AutoReconnect        bool   `toml:"auto_reconnect"`
	ReconnectInterval    int    `toml:"reconnect_interval"`
	MaxReconnectAttempts int    `toml:"max_reconnect_attempts"`
	HeartbeatInterval    int    `toml:"heartbeat_interval"`
	HeartbeatTimeout     int    `toml:"heartbeat_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Journal contains configuration for the local event journal.
type Journal struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Config encapsulates all configuration values for Capstan.
//
// Sections:
//   - Server: orchestrator URL, auth token, retry policy
//   - Stream: event stream URL, reconnect, and heartbeat settings
//   - Logging: log format and level
//   - Journal: local sqlite event journal
type Config struct {
	Server  Server  `toml:"server"`
	Stream  Stream  `toml:"stream"`
	Logging Logging `toml:"logging"`
	Journal Journal `toml:"journal"`
}

// DefaultConfigPath returns the absolute path to the default configuration
// file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/capstan/config.toml")
}

// Load locates, parses, and validates a configuration file. Missing files
// are not an error; defaults apply and exists reports false.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("capstan.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// ApplyServerOverride replaces the server URL, re-derives the stream URL,
// and re-validates. Used for command-line overrides after Load.
func (c *Config) ApplyServerOverride(serverURL string) error {
	c.Server.URL = strings.TrimSpace(serverURL)
	c.Stream.URL = ""
	if err := c.normalize(); err != nil {
		return err
	}
	return c.Validate()
}

// ClientConfig converts the server section into the REST client's config.
func (c *Config) ClientConfig() client.Config {
	return client.Config{
		BaseURL:        strings.TrimSpace(c.Server.URL),
		Token:          strings.TrimSpace(c.Server.Token),
		TimeoutSeconds: c.Server.TimeoutSeconds,
		RetryAttempts:  c.Server.RetryAttempts,
		RetryBase:      time.Duration(c.Server.RetryBaseMillis) * time.Millisecond,
		RetryMax:       time.Duration(c.Server.RetryMaxMillis) * time.Millisecond,
		Headers:        c.Server.Headers,
	}
}

// StreamConfig converts the stream section into the event stream's config.
func (c *Config) StreamConfig() stream.Config {
	return stream.Config{
		URL:                  strings.TrimSpace(c.Stream.URL),
		Token:                strings.TrimSpace(c.Server.Token),
		AutoReconnect:        c.Stream.AutoReconnect,
		ReconnectInterval:    time.Duration(c.Stream.ReconnectInterval) * time.Second,
		MaxReconnectAttempts: c.Stream.MaxReconnectAttempts,
		HeartbeatInterval:    time.Duration(c.Stream.HeartbeatInterval) * time.Second,
		HeartbeatTimeout:     time.Duration(c.Stream.HeartbeatTimeout) * time.Second,
	}
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizeServer(); err != nil {
		return err
	}
	if err := c.normalizeStream(); err != nil {
		return err
	}
	c.normalizeLogging()
	if err := c.normalizeJournal(); err != nil {
		return err
	}
	return nil
}

func (c *Config) normalizeServer() error {
	c.Server.URL = strings.TrimRight(strings.TrimSpace(c.Server.URL), "/")
	if c.Server.URL == "" {
		c.Server.URL = defaultServerURL
	}
	if c.Server.Token == "" {
		if value, ok := os.LookupEnv("CAPSTAN_TOKEN"); ok {
			c.Server.Token = value
		}
	}
	if c.Server.TimeoutSeconds <= 0 {
		c.Server.TimeoutSeconds = defaultTimeoutSeconds
	}
	if c.Server.RetryAttempts <= 0 {
		c.Server.RetryAttempts = defaultRetryAttempts
	}
	if c.Server.RetryBaseMillis <= 0 {
		c.Server.RetryBaseMillis = defaultRetryBaseMillis
	}
	if c.Server.RetryMaxMillis <= 0 {
		c.Server.RetryMaxMillis = defaultRetryMaxMillis
	}
	return nil
}

// normalizeStream derives the stream URL from the server URL when unset:
// http becomes ws, https becomes wss, path /stream.
func (c *Config) normalizeStream() error {
	c.Stream.URL = strings.TrimSpace(c.Stream.URL)
	if c.Stream.URL == "" {
		parsed, err := url.Parse(c.Server.URL)
		if err != nil {
			return fmt.Errorf("server.url: %w", err)
		}
		switch parsed.Scheme {
		case "https":
			parsed.Scheme = "wss"
		default:
			parsed.Scheme = "ws"
		}
		parsed.Path = "/stream"
		c.Stream.URL = parsed.String()
	}
	if c.Stream.ReconnectInterval <= 0 {
		c.Stream.ReconnectInterval = defaultReconnectInterval
	}
	if c.Stream.MaxReconnectAttempts <= 0 {
		c.Stream.MaxReconnectAttempts = defaultMaxReconnectAttempts
	}
	if c.Stream.HeartbeatInterval <= 0 {
		c.Stream.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.Stream.HeartbeatTimeout <= 0 {
		c.Stream.HeartbeatTimeout = defaultHeartbeatTimeout
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeJournal() error {
	if strings.TrimSpace(c.Journal.Path) == "" {
		c.Journal.Path = defaultJournalPath
	}
	var err error
	if c.Journal.Path, err = expandPath(c.Journal.Path); err != nil {
		return fmt.Errorf("journal.path: %w", err)
	}
	return nil
}

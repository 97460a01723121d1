package main

import (
	"log/slog"
	"strings"
	"sync"

	"capstan/internal/client"
	"capstan/internal/config"
	"capstan/internal/logging"
	"capstan/internal/stream"
)

type commandContext struct {
	configFlag *string
	serverFlag *string
	tokenFlag  *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
}

func newCommandContext(configFlag, serverFlag, tokenFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		serverFlag: serverFlag,
		tokenFlag:  tokenFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.serverFlag != nil && strings.TrimSpace(*c.serverFlag) != "" {
			if err := cfg.ApplyServerOverride(*c.serverFlag); err != nil {
				c.configErr = err
				return
			}
		}
		if c.tokenFlag != nil && strings.TrimSpace(*c.tokenFlag) != "" {
			cfg.Server.Token = strings.TrimSpace(*c.tokenFlag)
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() *slog.Logger {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil || cfg == nil {
			c.logger = logging.New(logging.Options{})
			return
		}
		c.logger = logging.New(logging.Options{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
		})
	})
	return c.logger
}

// apiClient builds the REST client from the resolved configuration.
func (c *commandContext) apiClient() (*client.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return client.New(cfg.ClientConfig(), client.WithLogger(c.ensureLogger()))
}

// streamConn builds an event stream connection from the resolved
// configuration. The caller owns Connect and Close.
func (c *commandContext) streamConn(opts ...stream.Option) (*stream.Conn, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	base := []stream.Option{stream.WithLogger(c.ensureLogger())}
	return stream.NewConn(cfg.StreamConfig(), append(base, opts...)...), nil
}

// Package nats publishes turn events and notifications over core NATS.
package nats

import (
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/capitalize-ai/presales-assistant/pkg/logger"
)

// Config holds NATS connection configuration.
type Config struct {
	URL      string
	Name     string
	CAFile   string
	CertFile string
	KeyFile  string
	Token    string
}

// Client is a best-effort event connection. Turns never wait on it.
type Client struct {
	conn   *nats.Conn
	logger *logger.Logger
}

// Connect dials the NATS server. An unreachable server is not fatal:
// the client keeps retrying in the background and publishes are
// buffered until it connects.
func Connect(cfg Config, log *logger.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("nats url is required")
	}
	log = log.Named("nats")

	opts, err := options(cfg, log)
	if err != nil {
		return nil, err
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	if !nc.IsConnected() {
		log.Warn("NATS unavailable, retrying in background", zap.String("url", cfg.URL))
	}

	return &Client{conn: nc, logger: log}, nil
}

func options(cfg Config, log *logger.Logger) ([]nats.Option, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.Timeout(5 * time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.ReconnectBufSize(1024 * 1024),
		nats.ConnectHandler(func(nc *nats.Conn) {
			log.Info("NATS connected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Error("NATS async error", zap.Error(err))
		}),
	}

	switch {
	case cfg.CertFile != "" && cfg.KeyFile != "":
		opts = append(opts, nats.ClientCert(cfg.CertFile, cfg.KeyFile))
	case cfg.CertFile != "" || cfg.KeyFile != "":
		return nil, errors.New("nats client cert and key must be set together")
	}
	if cfg.CAFile != "" {
		opts = append(opts, nats.RootCAs(cfg.CAFile))
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	return opts, nil
}

// Publish sends data on subject without waiting for an ack.
func (c *Client) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// Close flushes buffered events and closes the connection.
func (c *Client) Close() {
	if c == nil || c.conn == nil {
		return
	}
	if err := c.conn.Drain(); err != nil {
		c.logger.Warn("NATS drain failed", zap.Error(err))
		c.conn.Close()
	}
}

// IsConnected reports whether the connection is currently up.
func (c *Client) IsConnected() bool {
	return c != nil && c.conn != nil && c.conn.IsConnected()
}

package nats

import (
	"context"
	"dexarb/internal/config"
	"dexarb/internal/pubsub"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"gitlab.com/nevasik7/alerting/logger"
)

var _ pubsub.Broadcaster = (*Client)(nil)

var ErrNotConnected = errors.New("nats is not connected")

type Client struct {
	nc     *nats.Conn
	log    logger.Logger
	prefix string
}

func Connect(log logger.Logger, cfg *config.NATSConfig) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("nats config is required")
	}
	if cfg.URL == "" {
		return nil, errors.New("nats url is required")
	}

	opts := []nats.Option{
		nats.Name("dexarb"),
		nats.Timeout(5 * time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnf("NATS disconnected, error=%v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infof("NATS reconnected, url=%s", nc.ConnectedUrl())
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	prefix := cfg.BroadcastPrefix
	if prefix == "" {
		prefix = "dexarb"
	}

	log.Infof("Connected to NATS, url=%s prefix=%s", cfg.URL, prefix)

	return &Client{nc: nc, log: log, prefix: prefix}, nil
}

// Subject returns the absolute subject for a relative one
func (c *Client) Subject(subject string) string {
	return c.prefix + "." + subject
}

// Publish JSON encodes data; delivery is fire-and-forget
func (c *Client) Publish(_ context.Context, subject string, data any) error {
	if !c.Ready() {
		return ErrNotConnected
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", subject, err)
	}

	if err = c.nc.Publish(c.Subject(subject), payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}

	return nil
}

// Health round trips to the server
func (c *Client) Health(ctx context.Context) error {
	if !c.Ready() {
		return ErrNotConnected
	}
	return c.nc.FlushWithContext(ctx)
}

func (c *Client) Ready() bool {
	if c.nc == nil {
		return false
	}
	return c.nc.Status() == nats.CONNECTED
}

func (c *Client) Status() nats.Status {
	if c.nc == nil {
		return nats.DISCONNECTED
	}
	return c.nc.Status()
}

func (c *Client) Close() error {
	if c.nc == nil {
		return nil
	}
	switch c.nc.Status() {
	case nats.CLOSED, nats.DRAINING_SUBS, nats.DRAINING_PUBS:
		return nil
	}

	if err := c.nc.Drain(); err != nil {
		c.log.Errorf("Failed to drain connection to NATS, error=%v", err)
		c.nc.Close()
		return fmt.Errorf("failed to drain connection to NATS: %w", err)
	}

	c.log.Info("NATS connection drained")
	return nil
}

package client

import (
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/discos/statuskit/metric"
)

// Option is a functional option for configuring the Client
type Option func(*Client) error

// WithLogger sets the structured logger. Nil restores slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// WithMetrics wires prometheus metrics into the receive loop and
// handshake. A nil Metrics disables instrumentation.
func WithMetrics(m *metric.Metrics) Option {
	return func(c *Client) error {
		c.metrics = m
		return nil
	}
}

// WithHandshakeTimeout bounds how long Start waits for each topic's
// initial snapshot before falling back to the schema-initialized tree.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			d = defaultHandshakeTimeout
		}
		c.handshakeTimeout = d
		return nil
	}
}

// WithWarnRate overrides the throttle on receive-loop warning logs. A
// misbehaving publisher otherwise turns every malformed message into a
// log line.
func WithWarnRate(limit rate.Limit, burst int) Option {
	return func(c *Client) error {
		c.warnLimit = rate.NewLimiter(limit, burst)
		return nil
	}
}

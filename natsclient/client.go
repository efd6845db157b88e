// Package natsclient provides the NATS implementation of the client's
// transport.
package natsclient

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/discos/statuskit/errors"
	"github.com/discos/statuskit/metric"
	"github.com/discos/statuskit/pkg/retry"
)

// ConnectionStatus represents the state of the NATS connection
type ConnectionStatus int

// Possible connection statuses
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusClosed
)

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type message struct {
	subject string
	data    []byte
}

// Client is a NATS-backed transport: per-subject subscriptions feed a
// bounded internal queue that Receive drains. It satisfies the client
// package's Transport interface.
type Client struct {
	url     string
	logger  *slog.Logger
	metrics *metric.Metrics

	status     atomic.Value // stores ConnectionStatus
	reconnects atomic.Int32
	closed     atomic.Bool

	mu   sync.Mutex
	conn *nats.Conn
	subs map[string]*nats.Subscription

	recv chan message
	done chan struct{}

	// Connection options
	maxReconnects int
	reconnectWait time.Duration
	pingInterval  time.Duration
	timeout       time.Duration
	drainTimeout  time.Duration
	recvBuffer    int

	// Authentication
	username string
	password string
	token    string

	clientName string
}

// New creates a NATS transport for the given server URL. The transport
// is not connected until Connect.
func New(url string, opts ...Option) (*Client, error) {
	c := &Client{
		url:           url,
		logger:        slog.Default(),
		subs:          make(map[string]*nats.Subscription),
		done:          make(chan struct{}),
		maxReconnects: -1,
		reconnectWait: 2 * time.Second,
		pingInterval:  30 * time.Second,
		timeout:       5 * time.Second,
		drainTimeout:  30 * time.Second,
		recvBuffer:    256,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "New", "apply option")
		}
	}

	c.recv = make(chan message, c.recvBuffer)
	c.status.Store(StatusDisconnected)

	return c, nil
}

// URL returns the NATS server URL
func (c *Client) URL() string {
	return c.url
}

// Status returns the current connection status
func (c *Client) Status() ConnectionStatus {
	val := c.status.Load()
	if val == nil {
		return StatusDisconnected
	}
	return val.(ConnectionStatus)
}

// IsConnected reports whether the connection is currently up.
func (c *Client) IsConnected() bool {
	return c.Status() == StatusConnected
}

// Reconnects returns how many times the connection was re-established.
func (c *Client) Reconnects() int32 {
	return c.reconnects.Load()
}

func (c *Client) setStatus(status ConnectionStatus) {
	c.status.Store(status)
	c.metrics.SetConnected(status == StatusConnected)
}

// Connect dials the NATS server, retrying with backoff until the
// context is cancelled or the attempt budget is spent.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return errors.ErrClosed
	}

	c.setStatus(StatusConnecting)
	c.logger.Info("connecting to NATS", "url", c.url)

	opts := c.buildConnectionOptions()

	conn, err := retry.DoWithResult(ctx, retry.Connect(), func() (*nats.Conn, error) {
		return nats.Connect(c.url, opts...)
	})
	if err != nil {
		c.setStatus(StatusDisconnected)
		return errors.WrapTransient(err, "Client", "Connect", "establish connection")
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.setStatus(StatusConnected)
	c.logger.Info("connected to NATS", "url", c.url)
	return nil
}

func (c *Client) buildConnectionOptions() []nats.Option {
	opts := []nats.Option{
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.PingInterval(c.pingInterval),
		nats.Timeout(c.timeout),
		nats.DrainTimeout(c.drainTimeout),
		nats.DisconnectErrHandler(c.handleDisconnect),
		nats.ReconnectHandler(c.handleReconnect),
		nats.ClosedHandler(c.handleClosed),
	}

	if c.username != "" && c.password != "" {
		opts = append(opts, nats.UserInfo(c.username, c.password))
	}
	if c.token != "" {
		opts = append(opts, nats.Token(c.token))
	}
	if c.clientName != "" {
		opts = append(opts, nats.Name(c.clientName))
	}

	return opts
}

// Subscribe starts delivering messages on a subject into the receive
// queue. When the queue is full the new message is dropped and counted,
// so a slow consumer lags rather than blocking the NATS callback.
func (c *Client) Subscribe(subject string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || !c.conn.IsConnected() {
		return errors.ErrNotConnected
	}
	if _, exists := c.subs[subject]; exists {
		return nil
	}

	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		select {
		case c.recv <- message{subject: msg.Subject, data: msg.Data}:
		case <-c.done:
		default:
			c.metrics.Dropped("queue_full")
			c.logger.Warn("receive queue full, dropping message", "subject", msg.Subject)
		}
	})
	if err != nil {
		return errors.Wrap(
			fmt.Errorf("%w: %v", errors.ErrSubscriptionFailed, err),
			"Client", "Subscribe", "subscribe subject")
	}

	c.subs[subject] = sub
	c.logger.Debug("subscribed", "subject", subject)
	return nil
}

// Unsubscribe stops delivery for a subject. Unsubscribing a subject
// that was never subscribed is a no-op.
func (c *Client) Unsubscribe(subject string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, exists := c.subs[subject]
	if !exists {
		return nil
	}
	delete(c.subs, subject)

	if err := sub.Unsubscribe(); err != nil {
		return errors.Wrap(err, "Client", "Unsubscribe", "unsubscribe subject")
	}
	c.logger.Debug("unsubscribed", "subject", subject)
	return nil
}

// Receive blocks for the next message from any subscribed subject.
// Returns ErrClosed after Close, ErrReceiveTimeout when the context
// deadline passes and the context error on plain cancellation.
func (c *Client) Receive(ctx context.Context) (string, []byte, error) {
	select {
	case <-c.done:
		return "", nil, errors.ErrClosed
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return "", nil, fmt.Errorf("%w: %w", errors.ErrReceiveTimeout, ctx.Err())
		}
		return "", nil, ctx.Err()
	case msg := <-c.recv:
		return msg.subject, msg.data, nil
	}
}

// Close drains the connection and releases every subscription. It is
// idempotent.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(c.done)

	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		if err := sub.Unsubscribe(); err != nil {
			c.logger.Warn("unsubscribe during close failed", "subject", subject, "error", err)
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if c.conn != nil {
		drainDone := make(chan error, 1)
		go func() { drainDone <- c.conn.Drain() }()

		select {
		case err := <-drainDone:
			if err != nil {
				c.logger.Warn("drain failed, forcing close", "error", err)
			}
		case <-time.After(c.drainTimeout):
			c.logger.Warn("drain timed out, forcing close", "timeout", c.drainTimeout)
		}

		c.conn.Close()
		c.conn = nil
	}

	c.username = ""
	c.password = ""
	c.token = ""

	c.setStatus(StatusClosed)
	return nil
}

func (c *Client) handleDisconnect(_ *nats.Conn, err error) {
	if c.closed.Load() {
		return
	}
	c.setStatus(StatusReconnecting)
	c.logger.Warn("NATS disconnected", "error", err)
}

func (c *Client) handleReconnect(conn *nats.Conn) {
	c.setStatus(StatusConnected)
	c.reconnects.Add(1)
	c.metrics.Reconnected()
	c.logger.Info("NATS reconnected", "url", conn.ConnectedUrl())
}

func (c *Client) handleClosed(_ *nats.Conn) {
	if c.closed.Load() {
		return
	}
	c.setStatus(StatusDisconnected)
	c.logger.Warn("NATS connection closed")
}

// Package natsclient manages the NATS connection, JetStream handle, and KV
// buckets backing the streaming engine's persistence and event emission.
package natsclient

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Fundable-Protocol/stellar-client/errors"
)

// Client wraps a NATS connection with JetStream and KV helpers.
type Client struct {
	url    string
	logger *slog.Logger

	// Connection options
	maxReconnects int
	reconnectWait time.Duration
	timeout       time.Duration
	clientName    string

	mu   sync.RWMutex
	conn *nats.Conn
	js   jetstream.JetStream
}

// ClientOption is a functional option for configuring the Client
type ClientOption func(*Client)

// WithMaxReconnects sets the maximum number of reconnection attempts (-1 for infinite)
func WithMaxReconnects(n int) ClientOption {
	return func(c *Client) { c.maxReconnects = n }
}

// WithReconnectWait sets the wait time between reconnection attempts
func WithReconnectWait(d time.Duration) ClientOption {
	return func(c *Client) { c.reconnectWait = d }
}

// WithTimeout sets the connect timeout
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// WithClientName sets the client name reported to the server
func WithClientName(name string) ClientOption {
	return func(c *Client) { c.clientName = name }
}

// WithLogger sets a custom logger for the client
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a new NATS client. Connect must be called before use.
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	if url == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "natsclient", "NewClient", "url required")
	}

	c := &Client{
		url:           url,
		logger:        slog.Default(),
		maxReconnects: -1,
		reconnectWait: 2 * time.Second,
		timeout:       5 * time.Second,
		clientName:    "fundable",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Connect establishes the NATS connection and JetStream context.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && c.conn.IsConnected() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return errors.WrapTransient(err, "natsclient", "Connect", "context done")
	}

	// The dial itself is timeout-driven; a context deadline tighter than
	// the configured timeout bounds it.
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	conn, err := nats.Connect(c.url,
		nats.Name(c.clientName),
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.Timeout(timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				c.logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return errors.WrapTransient(err, "natsclient", "Connect", "dial")
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return errors.WrapFatal(err, "natsclient", "Connect", "create JetStream context")
	}

	c.conn = conn
	c.js = js
	c.logger.Info("connected to NATS", "url", conn.ConnectedUrl())
	return nil
}

// Conn returns the raw NATS connection, or nil before Connect.
func (c *Client) Conn() *nats.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

// Publish sends data on a subject. Best-effort: the message is buffered by
// the NATS client and may be dropped if the connection is down.
func (c *Client) Publish(subject string, data []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return errors.WrapTransient(errors.ErrStorageUnavailable, "natsclient", "Publish", "not connected")
	}
	if err := conn.Publish(subject, data); err != nil {
		return errors.WrapTransient(err, "natsclient", "Publish", "publish")
	}
	return nil
}

// CreateKeyValueBucket creates or opens a KV bucket.
func (c *Client) CreateKeyValueBucket(ctx context.Context, cfg jetstream.KeyValueConfig) (jetstream.KeyValue, error) {
	c.mu.RLock()
	js := c.js
	c.mu.RUnlock()

	if js == nil {
		return nil, errors.WrapTransient(errors.ErrStorageUnavailable, "natsclient", "CreateKeyValueBucket", "not connected")
	}

	bucket, err := js.CreateKeyValue(ctx, cfg)
	if err != nil {
		return nil, errors.WrapTransient(err, "natsclient", "CreateKeyValueBucket", "create bucket")
	}
	return bucket, nil
}

// Close drains and closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
		c.conn = nil
		return errors.WrapTransient(err, "natsclient", "Close", "drain")
	}
	c.conn = nil
	return nil
}

package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pior/kvserver/wire"
	"github.com/sony/gobreaker/v2"
)

var (
	ErrNotFound   = errors.New("kvclient: key not found")
	ErrRejected   = errors.New("kvclient: request rejected by server")
	ErrEmptyValue = errors.New("kvclient: empty value, use Delete")
	ErrNoServers  = errors.New("kvclient: no servers provided")
)

const (
	DefaultMaxSize           = 4
	DefaultRetransmitTimeout = 500 * time.Millisecond
	DefaultMaxRetransmits    = 3
)

// Config holds configuration for the client connection pools.
type Config struct {
	// MaxSize is the maximum number of connections per server.
	// Defaults to DefaultMaxSize.
	MaxSize int32

	// RetransmitTimeout is how long to wait for a response before sending
	// the same frame again. Defaults to DefaultRetransmitTimeout.
	RetransmitTimeout time.Duration

	// MaxRetransmits bounds how many times a frame is sent again before the
	// request fails with ErrTimeout. Zero means DefaultMaxRetransmits,
	// negative disables retransmission.
	MaxRetransmits int

	// MaxConnLifetime is the maximum duration a connection can be reused.
	// Zero means no limit.
	MaxConnLifetime time.Duration

	// MaxConnIdleTime is the maximum duration a connection can be idle.
	// Zero means no limit.
	MaxConnIdleTime time.Duration

	// HealthCheckInterval is how often idle connections are checked against
	// the limits above. Zero disables checks.
	HealthCheckInterval time.Duration

	// Dialer is used to create new connections.
	// If nil, the default net.Dialer is used.
	Dialer *net.Dialer

	// SelectServer picks which server owns a key.
	// If nil, uses DefaultServerSelector.
	SelectServer ServerSelector

	// NewCircuitBreaker creates a circuit breaker for a server.
	// Called once per server address when the client is created.
	// If nil, no circuit breaker is used.
	NewCircuitBreaker func(serverAddr string) *gobreaker.CircuitBreaker[*wire.Message]

	// Logger defaults to log.Default().
	Logger *log.Logger

	// for testing purposes only
	constructor func(ctx context.Context) (net.Conn, error)
}

func (c Config) withDefaults() Config {
	if c.MaxSize <= 0 {
		c.MaxSize = DefaultMaxSize
	}
	if c.RetransmitTimeout <= 0 {
		c.RetransmitTimeout = DefaultRetransmitTimeout
	}
	if c.MaxRetransmits == 0 {
		c.MaxRetransmits = DefaultMaxRetransmits
	} else if c.MaxRetransmits < 0 {
		c.MaxRetransmits = 0
	}
	if c.Dialer == nil {
		c.Dialer = &net.Dialer{}
	}
	if c.SelectServer == nil {
		c.SelectServer = DefaultServerSelector
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	return c
}

// Client talks to one or more servers. Keys are spread across servers by
// the configured ServerSelector; each server has its own connection pool.
type Client struct {
	config Config
	pools  []*serverPool
	logger *log.Logger
	stats  *clientStatsCollector

	stopHealthCheck chan struct{}
	closeOnce       sync.Once
}

// New creates a client for the given server addresses. Connections are
// dialed lazily on first use.
func New(servers []string, config Config) (*Client, error) {
	if len(servers) == 0 {
		return nil, ErrNoServers
	}

	config = config.withDefaults()

	c := &Client{
		config:          config,
		logger:          config.Logger,
		stats:           newClientStatsCollector(),
		stopHealthCheck: make(chan struct{}),
	}

	for _, addr := range servers {
		sp, err := newServerPool(addr, config, c.stats)
		if err != nil {
			c.closePools()
			return nil, fmt.Errorf("pool for %s: %w", addr, err)
		}
		c.pools = append(c.pools, sp)
	}

	if config.HealthCheckInterval > 0 {
		go c.healthCheckLoop()
	}

	return c, nil
}

// Close stops the health checks and destroys every pooled connection.
// Calling it again has no effect.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.stopHealthCheck)
		c.closePools()
	})
}

func (c *Client) closePools() {
	for _, sp := range c.pools {
		sp.close()
	}
}

func (c *Client) poolForKey(key string) *serverPool {
	return c.pools[c.config.SelectServer(key, len(c.pools))]
}

// Get returns the value stored under key, or ErrNotFound.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	resp, err := c.poolForKey(key).execute(ctx, wire.StatusGet, key, nil)
	if err != nil {
		c.stats.recordError()
		return "", err
	}

	switch resp.Status {
	case wire.StatusGetSuccess:
		c.stats.recordGet(true)
		return string(resp.Value), nil
	case wire.StatusGetError:
		c.stats.recordGet(false)
		return "", ErrNotFound
	default:
		c.stats.recordError()
		return "", fmt.Errorf("get: unexpected response status: %s", resp.Status)
	}
}

// Put stores value under key. It reports whether an existing value was
// replaced. Values the server refuses return ErrRejected.
func (c *Client) Put(ctx context.Context, key, value string) (bool, error) {
	if value == "" {
		c.stats.recordError()
		return false, ErrEmptyValue
	}

	resp, err := c.poolForKey(key).execute(ctx, wire.StatusPut, key, []byte(value))
	if err != nil {
		c.stats.recordError()
		return false, err
	}

	switch resp.Status {
	case wire.StatusPutSuccess:
		c.stats.recordPut(false)
		return false, nil
	case wire.StatusPutUpdate:
		c.stats.recordPut(true)
		return true, nil
	case wire.StatusPutError:
		c.stats.recordError()
		return false, ErrRejected
	default:
		c.stats.recordError()
		return false, fmt.Errorf("put: unexpected response status: %s", resp.Status)
	}
}

// Delete removes key. It returns ErrNotFound when the key did not exist.
func (c *Client) Delete(ctx context.Context, key string) error {
	resp, err := c.poolForKey(key).execute(ctx, wire.StatusPut, key, nil)
	if err != nil {
		c.stats.recordError()
		return err
	}

	switch resp.Status {
	case wire.StatusDeleteSuccess:
		c.stats.recordDelete()
		return nil
	case wire.StatusDeleteError:
		c.stats.recordDelete()
		return ErrNotFound
	case wire.StatusPutError:
		c.stats.recordError()
		return ErrRejected
	default:
		c.stats.recordError()
		return fmt.Errorf("delete: unexpected response status: %s", resp.Status)
	}
}

// Stats returns a snapshot of client statistics.
func (c *Client) Stats() ClientStats {
	return c.stats.snapshot()
}

// PoolStats returns stats for every server pool, in server order.
func (c *Client) PoolStats() []ServerPoolStats {
	stats := make([]ServerPoolStats, 0, len(c.pools))
	for _, sp := range c.pools {
		stats = append(stats, sp.Stats())
	}
	return stats
}

func (c *Client) healthCheckLoop() {
	ticker := time.NewTicker(c.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopHealthCheck:
			return
		case <-ticker.C:
			for _, sp := range c.pools {
				sp.reapIdle(c.config.MaxConnLifetime, c.config.MaxConnIdleTime, c.logger)
			}
		}
	}
}

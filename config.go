package kvserver

import (
	"time"

	"github.com/charmbracelet/log"
)

const (
	// DefaultAddr is the listen address used when Config.Addr is empty.
	DefaultAddr = ":50000"

	// DefaultReceiveTimeout bounds how long a connection waits for the next
	// frame before it is considered lost.
	DefaultReceiveTimeout = 10_000_000 * time.Millisecond

	// DefaultDedupWindow is how many sequence numbers each connection
	// remembers for retransmit detection.
	DefaultDedupWindow = 4096
)

// Config holds server and connection settings.
// Zero values are replaced by defaults.
type Config struct {
	// Addr is the TCP address to listen on.
	Addr string

	// ReceiveTimeout is the read deadline applied before each receive.
	// A connection that stays silent longer is torn down.
	ReceiveTimeout time.Duration

	// DedupWindow is the maximum number of sequence numbers remembered per
	// connection. The oldest are forgotten first.
	DedupWindow int

	// DedupMaxAge forgets sequence numbers older than this.
	// Zero disables age-based eviction.
	DedupMaxAge time.Duration

	// MaxConnections limits concurrently served connections.
	// Zero means no limit.
	MaxConnections int

	// Logger receives connection and request logs.
	// If nil, log.Default() is used.
	Logger *log.Logger
}

// DefaultConfig returns a configuration with every field set to its default.
func DefaultConfig() Config {
	return Config{
		Addr:           DefaultAddr,
		ReceiveTimeout: DefaultReceiveTimeout,
		DedupWindow:    DefaultDedupWindow,
		Logger:         log.Default(),
	}
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.ReceiveTimeout <= 0 {
		c.ReceiveTimeout = DefaultReceiveTimeout
	}
	if c.DedupWindow <= 0 {
		c.DedupWindow = DefaultDedupWindow
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	return c
}

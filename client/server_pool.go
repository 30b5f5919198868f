package client

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jackc/puddle/v2"
	"github.com/pior/kvserver/wire"
	"github.com/sony/gobreaker/v2"
)

// serverPool holds the connections to one server, with an optional circuit
// breaker in front of them.
type serverPool struct {
	addr           string
	conns          *puddle.Pool[*Conn]
	circuitBreaker *gobreaker.CircuitBreaker[*wire.Message]

	dialed atomic.Int64
	closed atomic.Int64
}

func newServerPool(addr string, config Config, stats *clientStatsCollector) (*serverPool, error) {
	dial := config.constructor
	if dial == nil {
		dial = func(ctx context.Context) (net.Conn, error) {
			return config.Dialer.DialContext(ctx, "tcp", addr)
		}
	}

	sp := &serverPool{addr: addr}

	conns, err := puddle.NewPool(&puddle.Config[*Conn]{
		Constructor: func(ctx context.Context) (*Conn, error) {
			netConn, err := dial(ctx)
			if err != nil {
				return nil, err
			}
			conn, err := newConn(ctx, netConn, config, stats)
			if err != nil {
				return nil, err
			}
			sp.dialed.Add(1)
			return conn, nil
		},
		Destructor: func(conn *Conn) {
			sp.closed.Add(1)
			_ = conn.Close()
		},
		MaxSize: config.MaxSize,
	})
	if err != nil {
		return nil, err
	}
	sp.conns = conns

	if config.NewCircuitBreaker != nil {
		sp.circuitBreaker = config.NewCircuitBreaker(addr)
	}
	return sp, nil
}

// ServerPoolStats contains stats for a single server pool.
type ServerPoolStats struct {
	Addr                 string
	PoolStats            PoolStats
	CircuitBreakerState  gobreaker.State
	CircuitBreakerCounts gobreaker.Counts
}

func (sp *serverPool) Stats() ServerPoolStats {
	s := sp.conns.Stat()

	stats := ServerPoolStats{
		Addr: sp.addr,
		PoolStats: PoolStats{
			TotalConns:        s.TotalResources(),
			IdleConns:         s.IdleResources(),
			ActiveConns:       s.AcquiredResources(),
			AcquireCount:      uint64(s.AcquireCount()),
			AcquireWaitCount:  uint64(s.EmptyAcquireCount()),
			AcquireErrors:     uint64(s.CanceledAcquireCount()),
			AcquireWaitTimeNs: uint64(s.EmptyAcquireWaitTime().Nanoseconds()),
			CreatedConns:      uint64(sp.dialed.Load()),
			DestroyedConns:    uint64(sp.closed.Load()),
		},
	}
	if sp.circuitBreaker != nil {
		stats.CircuitBreakerState = sp.circuitBreaker.State()
		stats.CircuitBreakerCounts = sp.circuitBreaker.Counts()
	}
	return stats
}

// close destroys every connection; pending and later acquires fail.
func (sp *serverPool) close() {
	sp.conns.Close()
}

// execute runs one request-response exchange on a pooled connection, through
// the circuit breaker when one is configured.
func (sp *serverPool) execute(ctx context.Context, status wire.StatusType, key string, value []byte) (*wire.Message, error) {
	if sp.circuitBreaker == nil {
		return sp.executeDirect(ctx, status, key, value)
	}

	return sp.circuitBreaker.Execute(func() (*wire.Message, error) {
		return sp.executeDirect(ctx, status, key, value)
	})
}

func (sp *serverPool) executeDirect(ctx context.Context, status wire.StatusType, key string, value []byte) (*wire.Message, error) {
	resource, err := sp.acquire(ctx)
	if err != nil {
		return nil, err
	}

	conn := resource.Value()

	resp, err := conn.Send(ctx, status, key, value)
	if err != nil {
		if wire.ShouldCloseConnection(err) {
			resource.Destroy()
		} else {
			resource.Release()
		}
		return nil, err
	}

	resource.Release()
	return resp, nil
}

// acquire returns a live connection, discarding idle ones whose reader has
// stopped since their last use.
func (sp *serverPool) acquire(ctx context.Context) (*puddle.Resource[*Conn], error) {
	for range maxAcquireAttempts {
		resource, err := sp.conns.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		if !resource.Value().IsClosed() {
			return resource, nil
		}
		resource.Destroy()
	}
	return nil, ErrConnClosed
}

const maxAcquireAttempts = 3

// reapIdle destroys idle connections that are dead, older than maxLifetime
// or idle for longer than maxIdle. Zero limits are ignored.
func (sp *serverPool) reapIdle(maxLifetime, maxIdle time.Duration, logger *log.Logger) {
	now := time.Now()

	for _, res := range sp.conns.AcquireAllIdle() {
		switch {
		case res.Value().IsClosed():
			res.Destroy()
		case maxLifetime > 0 && now.Sub(res.CreationTime()) > maxLifetime:
			logger.Debug("connection reached max lifetime", "server", sp.addr, "client", res.Value().ClientID())
			res.Destroy()
		case maxIdle > 0 && res.IdleDuration() > maxIdle:
			logger.Debug("connection reached max idle time", "server", sp.addr, "client", res.Value().ClientID())
			res.Destroy()
		default:
			res.ReleaseUnused()
		}
	}
}

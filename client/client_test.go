package client

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pior/kvserver"
	"github.com/pior/kvserver/store"
	"github.com/pior/kvserver/wire"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discardLogger = log.New(io.Discard)

func startServer(t *testing.T) (string, *store.Memory) {
	t.Helper()

	s := store.New(4)
	srv := kvserver.NewServer(s, kvserver.Config{Logger: discardLogger})

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Serve(context.Background(), l)
	}()

	t.Cleanup(func() {
		srv.Close()
		<-done
	})

	return l.Addr().String(), s
}

func newTestClient(t *testing.T, servers []string, config Config) *Client {
	t.Helper()

	if config.Logger == nil {
		config.Logger = discardLogger
	}

	c, err := New(servers, config)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

// fakeServer scripts the server side of a piped connection after the
// handshake has been sent.
type fakeServer func(r *bufio.Reader, conn net.Conn)

func pipeConstructor(clientID int, serve fakeServer) func(ctx context.Context) (net.Conn, error) {
	return func(ctx context.Context) (net.Conn, error) {
		server, client := net.Pipe()
		go func() {
			defer server.Close()
			if err := wire.WriteHandshake(server, clientID); err != nil {
				return
			}
			serve(bufio.NewReader(server), server)
		}()
		return client, nil
	}
}

// drain reads until the client goes away.
func drain(r *bufio.Reader) {
	for {
		if _, err := wire.ReadMessage(r); err != nil {
			return
		}
	}
}

func TestNew_NoServers(t *testing.T) {
	_, err := New(nil, Config{})
	assert.ErrorIs(t, err, ErrNoServers)
}

func TestClient_Operations(t *testing.T) {
	addr, s := startServer(t)
	c := newTestClient(t, []string{addr}, Config{})
	ctx := context.Background()

	updated, err := c.Put(ctx, "foo", "bar")
	require.NoError(t, err)
	assert.False(t, updated)

	updated, err = c.Put(ctx, "foo", "baz")
	require.NoError(t, err)
	assert.True(t, updated)

	value, err := c.Get(ctx, "foo")
	require.NoError(t, err)
	assert.Equal(t, "baz", value)

	stored, ok := s.Get("foo")
	assert.True(t, ok)
	assert.Equal(t, "baz", stored)

	require.NoError(t, c.Delete(ctx, "foo"))

	_, err = c.Get(ctx, "foo")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, c.Delete(ctx, "foo"), ErrNotFound)

	stats := c.Stats()
	assert.Equal(t, uint64(2), stats.Gets)
	assert.Equal(t, uint64(1), stats.GetHits)
	assert.Equal(t, uint64(2), stats.Puts)
	assert.Equal(t, uint64(1), stats.Updates)
	assert.Equal(t, uint64(2), stats.Deletes)
	assert.Equal(t, uint64(0), stats.Errors)
}

func TestClient_Rejections(t *testing.T) {
	addr, s := startServer(t)
	c := newTestClient(t, []string{addr}, Config{})
	ctx := context.Background()

	_, err := c.Put(ctx, "foo bar", "x")
	assert.ErrorIs(t, err, ErrRejected)

	_, err = c.Put(ctx, "this-key-is-way-too-long", "x")
	assert.ErrorIs(t, err, ErrRejected)

	_, err = c.Put(ctx, "foo", "")
	assert.ErrorIs(t, err, ErrEmptyValue)

	assert.ErrorIs(t, c.Delete(ctx, "foo bar"), ErrRejected)

	assert.Equal(t, 0, s.Len())
	assert.Equal(t, uint64(4), c.Stats().Errors)
}

func TestClient_ConnectionsLearnClientID(t *testing.T) {
	addr, _ := startServer(t)
	c := newTestClient(t, []string{addr}, Config{MaxSize: 1})
	ctx := context.Background()

	for range 3 {
		_, err := c.Put(ctx, "foo", "bar")
		require.NoError(t, err)
	}

	stats := c.PoolStats()
	require.Len(t, stats, 1)
	assert.Equal(t, addr, stats[0].Addr)
	assert.Equal(t, uint64(1), stats[0].PoolStats.CreatedConns, "connection is reused")

	res, err := c.pools[0].conns.Acquire(ctx)
	require.NoError(t, err)
	defer res.Release()
	assert.Equal(t, 1, res.Value().ClientID())
	assert.Equal(t, 3, res.Value().Seq())
}

func TestClient_MultipleServers(t *testing.T) {
	addrA, storeA := startServer(t)
	addrB, storeB := startServer(t)
	stores := []*store.Memory{storeA, storeB}

	c := newTestClient(t, []string{addrA, addrB}, Config{})
	ctx := context.Background()

	keys := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}
	for _, key := range keys {
		_, err := c.Put(ctx, key, "v-"+key)
		require.NoError(t, err)
	}

	for _, key := range keys {
		owner := stores[DefaultServerSelector(key, 2)]
		other := stores[1-DefaultServerSelector(key, 2)]
		assert.True(t, owner.Exists(key), "key %s on its server", key)
		assert.False(t, other.Exists(key), "key %s not on the other server", key)

		value, err := c.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "v-"+key, value)
	}

	assert.Equal(t, len(keys), storeA.Len()+storeB.Len())
}

func TestClient_StaticSelector(t *testing.T) {
	addrA, storeA := startServer(t)
	addrB, storeB := startServer(t)

	c := newTestClient(t, []string{addrA, addrB}, Config{SelectServer: staticSelector(1)})

	_, err := c.Put(context.Background(), "foo", "bar")
	require.NoError(t, err)

	assert.False(t, storeA.Exists("foo"))
	assert.True(t, storeB.Exists("foo"))
}

func TestConn_RetransmitsSameSeq(t *testing.T) {
	seqs := make(chan int, 2)

	c := newTestClient(t, []string{"fake"}, Config{
		RetransmitTimeout: 20 * time.Millisecond,
		constructor: pipeConstructor(5, func(r *bufio.Reader, conn net.Conn) {
			first, err := wire.ReadMessage(r)
			if err != nil {
				return
			}
			// response lost: wait for the retransmit
			second, err := wire.ReadMessage(r)
			if err != nil {
				return
			}
			seqs <- first.Seq
			seqs <- second.Seq

			wire.WriteMessage(conn, second.Reply(wire.StatusPutSuccess, second.Value))
			drain(r)
		}),
	})

	updated, err := c.Put(context.Background(), "foo", "bar")
	require.NoError(t, err)
	assert.False(t, updated)

	assert.Equal(t, 1, <-seqs)
	assert.Equal(t, 1, <-seqs, "retransmit reuses the seq")
	assert.Equal(t, uint64(1), c.Stats().Retransmits)
}

func TestConn_SkipsStaleResponses(t *testing.T) {
	c := newTestClient(t, []string{"fake"}, Config{
		RetransmitTimeout: time.Second,
		constructor: pipeConstructor(5, func(r *bufio.Reader, conn net.Conn) {
			put, err := wire.ReadMessage(r)
			if err != nil {
				return
			}
			putResp := put.Reply(wire.StatusPutSuccess, put.Value)
			wire.WriteMessage(conn, putResp)

			get, err := wire.ReadMessage(r)
			if err != nil {
				return
			}
			// a late duplicate of the previous response arrives first
			wire.WriteMessage(conn, putResp)
			wire.WriteMessage(conn, get.Reply(wire.StatusGetSuccess, []byte("fresh")))
			drain(r)
		}),
	})
	ctx := context.Background()

	_, err := c.Put(ctx, "foo", "bar")
	require.NoError(t, err)

	value, err := c.Get(ctx, "foo")
	require.NoError(t, err)
	assert.Equal(t, "fresh", value)
}

func TestConn_TimeoutDestroysConnection(t *testing.T) {
	c := newTestClient(t, []string{"fake"}, Config{
		RetransmitTimeout: 10 * time.Millisecond,
		MaxRetransmits:    2,
		constructor: pipeConstructor(5, func(r *bufio.Reader, conn net.Conn) {
			drain(r)
		}),
	})

	_, err := c.Get(context.Background(), "foo")
	assert.ErrorIs(t, err, ErrTimeout)

	stats := c.Stats()
	assert.Equal(t, uint64(2), stats.Retransmits)
	assert.Equal(t, uint64(1), stats.Errors)

	assert.Eventually(t, func() bool {
		return c.PoolStats()[0].PoolStats.DestroyedConns == 1
	}, time.Second, 5*time.Millisecond)
}

func TestConn_RetransmissionDisabled(t *testing.T) {
	c := newTestClient(t, []string{"fake"}, Config{
		RetransmitTimeout: 10 * time.Millisecond,
		MaxRetransmits:    -1,
		constructor: pipeConstructor(5, func(r *bufio.Reader, conn net.Conn) {
			drain(r)
		}),
	})

	_, err := c.Get(context.Background(), "foo")
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, uint64(0), c.Stats().Retransmits)
}

func TestConn_ContextCancel(t *testing.T) {
	c := newTestClient(t, []string{"fake"}, Config{
		RetransmitTimeout: time.Minute,
		constructor: pipeConstructor(5, func(r *bufio.Reader, conn net.Conn) {
			drain(r)
		}),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Get(ctx, "foo")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConn_ServerGoneFailsRequest(t *testing.T) {
	c := newTestClient(t, []string{"fake"}, Config{
		RetransmitTimeout: time.Minute,
		constructor: pipeConstructor(5, func(r *bufio.Reader, conn net.Conn) {
			wire.ReadMessage(r)
		}),
	})

	_, err := c.Get(context.Background(), "foo")
	require.Error(t, err)
	assert.True(t, wire.ShouldCloseConnection(err))
}

func TestClient_CircuitBreakerOpens(t *testing.T) {
	dialErr := errors.New("connection refused")

	c := newTestClient(t, []string{"fake"}, Config{
		NewCircuitBreaker: NewCircuitBreakerConfig(1, time.Minute, time.Minute),
		constructor: func(ctx context.Context) (net.Conn, error) {
			return nil, dialErr
		},
	})
	ctx := context.Background()

	for range 3 {
		_, err := c.Get(ctx, "foo")
		assert.ErrorIs(t, err, dialErr)
	}

	_, err := c.Get(ctx, "foo")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)

	stats := c.PoolStats()[0]
	assert.Equal(t, gobreaker.StateOpen, stats.CircuitBreakerState)
}

func TestClient_CircuitBreakerIgnoresMisses(t *testing.T) {
	addr, _ := startServer(t)
	c := newTestClient(t, []string{addr}, Config{
		NewCircuitBreaker: NewCircuitBreakerConfig(1, time.Minute, time.Minute),
	})
	ctx := context.Background()

	for range 5 {
		_, err := c.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	}

	stats := c.PoolStats()[0]
	assert.Equal(t, gobreaker.StateClosed, stats.CircuitBreakerState)
	assert.Equal(t, uint32(0), stats.CircuitBreakerCounts.TotalFailures)
}

func TestClient_HealthCheckReapsIdleConnections(t *testing.T) {
	addr, _ := startServer(t)
	c := newTestClient(t, []string{addr}, Config{
		MaxConnIdleTime:     10 * time.Millisecond,
		HealthCheckInterval: 10 * time.Millisecond,
	})

	_, err := c.Put(context.Background(), "foo", "bar")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		s := c.PoolStats()[0].PoolStats
		return s.DestroyedConns == 1 && s.TotalConns == 0
	}, time.Second, 5*time.Millisecond)
}

func TestClient_ReapIdleHonorsMaxLifetime(t *testing.T) {
	addr, _ := startServer(t)
	c := newTestClient(t, []string{addr}, Config{})
	ctx := context.Background()

	_, err := c.Put(ctx, "foo", "bar")
	require.NoError(t, err)

	sp := c.pools[0]
	sp.reapIdle(time.Hour, 0, discardLogger)
	assert.Equal(t, int32(1), sp.Stats().PoolStats.IdleConns, "young connection kept")

	time.Sleep(5 * time.Millisecond)
	sp.reapIdle(time.Millisecond, 0, discardLogger)

	stats := sp.Stats().PoolStats
	assert.Equal(t, int32(0), stats.TotalConns)
	assert.Equal(t, uint64(1), stats.DestroyedConns)

	_, err = c.Get(ctx, "foo")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), sp.Stats().PoolStats.CreatedConns)
}

func TestClient_CloseTwice(t *testing.T) {
	addr, _ := startServer(t)
	c, err := New([]string{addr}, Config{
		HealthCheckInterval: 10 * time.Millisecond,
		Logger:              discardLogger,
	})
	require.NoError(t, err)

	_, err = c.Put(context.Background(), "foo", "bar")
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		c.Close()
		c.Close()
	})

	_, err = c.Get(context.Background(), "foo")
	assert.Error(t, err)
}

package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pior/kvserver/wire"
)

var (
	ErrConnClosed = errors.New("kvclient: connection closed")
	ErrTimeout    = errors.New("kvclient: no response after retransmits")
)

// Conn is a single connection to a server. It learns its client id from the
// handshake and numbers requests with its own sequence counter.
//
// A Conn carries one outstanding request at a time; the pool guarantees
// exclusive use. A background reader delivers frames so that Send can
// retransmit on a timer without racing the socket.
type Conn struct {
	conn              net.Conn
	writer            *bufio.Writer
	clientID          int
	seq               int
	retransmitTimeout time.Duration
	maxRetransmits    int
	stats             *clientStatsCollector
	logger            *log.Logger

	responses chan *wire.Message
	readErr   error // written before responses is closed
	closing   chan struct{}
	closeOnce sync.Once
	dead      atomic.Bool
}

// newConn reads the handshake from netConn and starts the response reader.
// The handshake read is bounded by the ctx deadline, if any.
func newConn(ctx context.Context, netConn net.Conn, config Config, stats *clientStatsCollector) (*Conn, error) {
	reader := bufio.NewReader(netConn)

	if deadline, ok := ctx.Deadline(); ok {
		netConn.SetReadDeadline(deadline)
	}
	clientID, err := wire.ReadHandshake(reader)
	if err != nil {
		netConn.Close()
		return nil, fmt.Errorf("handshake: %w", err)
	}
	netConn.SetReadDeadline(time.Time{})

	c := &Conn{
		conn:              netConn,
		writer:            bufio.NewWriter(netConn),
		clientID:          clientID,
		retransmitTimeout: config.RetransmitTimeout,
		maxRetransmits:    config.MaxRetransmits,
		stats:             stats,
		logger:            config.Logger.With("client", clientID),
		responses:         make(chan *wire.Message, 8),
		closing:           make(chan struct{}),
	}

	go c.readLoop(reader)

	return c, nil
}

// ClientID returns the id the server announced in the handshake.
func (c *Conn) ClientID() int {
	return c.clientID
}

// Seq returns the sequence number of the last request sent.
func (c *Conn) Seq() int {
	return c.seq
}

// IsClosed reports whether the connection can no longer carry requests.
func (c *Conn) IsClosed() bool {
	return c.dead.Load()
}

// Close closes the socket and stops the reader.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.dead.Store(true)
		close(c.closing)
		err = c.conn.Close()
	})
	return err
}

func (c *Conn) readLoop(r *bufio.Reader) {
	defer close(c.responses)
	defer c.dead.Store(true)

	for {
		msg, err := wire.ReadMessage(r)
		if err != nil {
			if wire.ShouldCloseConnection(err) {
				c.readErr = err
				return
			}
			c.logger.Debug("malformed response dropped", "err", err)
			continue
		}

		select {
		case c.responses <- msg:
		case <-c.closing:
			c.readErr = ErrConnClosed
			return
		}
	}
}

// Send issues a request with the next sequence number and waits for its
// response. When no response arrives within the retransmit timeout, the
// identical frame is sent again, up to maxRetransmits times, then ErrTimeout
// is returned. Responses for older sequence numbers are skipped.
func (c *Conn) Send(ctx context.Context, status wire.StatusType, key string, value []byte) (*wire.Message, error) {
	if c.IsClosed() {
		return nil, ErrConnClosed
	}

	c.seq++
	req := wire.NewMessage(status, c.clientID, c.seq, key, value)

	if err := c.write(ctx, req); err != nil {
		return nil, err
	}

	timer := time.NewTimer(c.retransmitTimeout)
	defer timer.Stop()

	retransmits := 0
	for {
		select {
		case resp, ok := <-c.responses:
			if !ok {
				return nil, c.readErr
			}
			if resp.Seq < req.Seq {
				c.logger.Debug("stale response skipped", "seq", resp.Seq, "want", req.Seq)
				continue
			}
			if resp.Seq > req.Seq {
				return nil, &wire.ConnectionError{
					Op:  "read",
					Err: fmt.Errorf("response seq %d ahead of request seq %d", resp.Seq, req.Seq),
				}
			}
			return resp, nil

		case <-ctx.Done():
			return nil, ctx.Err()

		case <-timer.C:
			if retransmits >= c.maxRetransmits {
				c.logger.Warn("request timed out", "seq", req.Seq, "retransmits", retransmits)
				return nil, ErrTimeout
			}
			retransmits++
			c.stats.recordRetransmit()
			c.logger.Debug("retransmitting", "seq", req.Seq, "attempt", retransmits)

			if err := c.write(ctx, req); err != nil {
				return nil, err
			}
			timer.Reset(c.retransmitTimeout)
		}
	}
}

func (c *Conn) write(ctx context.Context, req *wire.Message) error {
	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetWriteDeadline(deadline)
	} else {
		c.conn.SetWriteDeadline(time.Time{})
	}

	err := wire.WriteMessage(c.writer, req)
	if err != nil && wire.ShouldCloseConnection(err) {
		// bufio.Writer keeps the error; the connection is unusable
		c.Close()
	}
	return err
}

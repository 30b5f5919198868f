package kvserver

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pior/kvserver/wire"
)

// Connection serves one client socket: it announces the client id, then
// reads frames, drops retransmits, dispatches requests to a Handler and
// writes responses in request order until the client sends CLOSE or the
// socket fails.
type Connection struct {
	clientID       int
	conn           net.Conn
	reader         *bufio.Reader
	handler        *Handler
	seen           *seenWindow
	receiveTimeout time.Duration
	logger         *log.Logger
	stats          *statsCollector

	mu   sync.Mutex
	open bool
}

// NewConnection wraps netConn and immediately sends the handshake carrying
// clientID. The handshake is not acknowledged; a failure to send it is
// logged and surfaces on the next receive.
func NewConnection(netConn net.Conn, store Store, clientID int, config Config) *Connection {
	config = config.withDefaults()
	return newConnection(netConn, NewHandler(store, config.Logger), clientID, config, newStatsCollector())
}

func newConnection(netConn net.Conn, handler *Handler, clientID int, config Config, stats *statsCollector) *Connection {
	c := &Connection{
		clientID:       clientID,
		conn:           netConn,
		reader:         bufio.NewReader(netConn),
		handler:        handler,
		seen:           newSeenWindow(config.DedupWindow, config.DedupMaxAge),
		receiveTimeout: config.ReceiveTimeout,
		logger:         config.Logger.With("client", clientID),
		stats:          stats,
		open:           true,
	}

	if err := wire.WriteHandshake(netConn, clientID); err != nil {
		c.logger.Error("handshake failed", "err", err)
	}

	return c
}

// ClientID returns the id announced in the handshake.
func (c *Connection) ClientID() int {
	return c.clientID
}

// IsOpen reports whether the connection is still being served.
func (c *Connection) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Close closes the socket. It is safe to call more than once and from any
// goroutine; a blocked Run returns shortly after.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open {
		return nil
	}
	c.open = false

	if err := c.conn.Close(); err != nil {
		c.logger.Error("unable to tear down connection", "err", err)
		return err
	}
	return nil
}

// Run serves the connection until it is closed. The socket is always closed
// when Run returns.
func (c *Connection) Run() {
	defer c.Close()

	for c.IsOpen() {
		msg, err := c.receive()
		if err != nil {
			if wire.ShouldCloseConnection(err) {
				c.lost(err)
				return
			}
			c.logger.Debug("malformed frame", "err", err)
			c.stats.recordMalformed()
			continue
		}

		resp := c.process(msg)
		if resp == nil {
			continue
		}

		c.stats.recordResponse(resp.Status)
		c.send(resp)
	}
}

func (c *Connection) receive() (*wire.Message, error) {
	if c.receiveTimeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.receiveTimeout)); err != nil {
			return nil, &wire.ConnectionError{Op: "read", Err: err}
		}
	}
	return wire.ReadMessage(c.reader)
}

// lost handles a fatal receive error. Errors caused by our own Close are
// not reported.
func (c *Connection) lost(err error) {
	if !c.IsOpen() {
		return
	}

	c.stats.recordReceiveError()
	if errors.Is(err, io.EOF) {
		c.logger.Info("connection closed by client")
	} else {
		c.logger.Error("connection lost", "err", err)
	}
	c.Close()
}

// process dispatches one received frame and returns the response to send,
// or nil when nothing must be sent: retransmit or CLOSE.
func (c *Connection) process(msg *wire.Message) *wire.Message {
	if c.seen.Observe(msg.Seq) {
		c.logger.Debug("duplicate message", "seq", msg.Seq, "status", msg.Status)
		c.stats.recordDuplicate()
		return nil
	}

	c.stats.recordRequest()

	switch msg.Status {
	case wire.StatusClose:
		c.logger.Info("client requested close", "seq", msg.Seq)
		c.stats.recordClientClose()
		c.Close()
		return nil
	case wire.StatusPut:
		return c.handler.HandlePut(msg)
	default:
		// every other kind is served as a read
		return c.handler.HandleGet(msg)
	}
}

// send writes resp. Failures are logged and the connection keeps going.
func (c *Connection) send(resp *wire.Message) {
	if err := wire.WriteMessage(c.conn, resp); err != nil {
		c.logger.Error("send message failed", "seq", resp.Seq, "err", err)
		c.stats.recordSendError()
	}
}

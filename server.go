package kvserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
)

var ErrServerClosed = errors.New("kvserver: server closed")

// Server accepts client sockets and runs one Connection per socket, each in
// its own goroutine. All connections share the Store.
type Server struct {
	config  Config
	handler *Handler
	logger  *log.Logger
	stats   *statsCollector
	nextID  atomic.Int64

	mu       sync.Mutex
	listener net.Listener
	conns    map[int]*Connection
	closed   bool
	wg       sync.WaitGroup
}

// NewServer creates a server over store.
func NewServer(store Store, config Config) *Server {
	config = config.withDefaults()

	return &Server{
		config:  config,
		handler: NewHandler(store, config.Logger),
		logger:  config.Logger,
		stats:   newStatsCollector(),
		conns:   make(map[int]*Connection),
	}
}

// ListenAndServe listens on Config.Addr and serves until ctx is cancelled or
// Close is called.
func (s *Server) ListenAndServe(ctx context.Context) error {
	l, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Addr, err)
	}
	return s.Serve(ctx, l)
}

// Serve accepts connections on l until ctx is cancelled or Close is called.
// It always returns a non-nil error; after Close it is ErrServerClosed.
// Serve waits for every connection goroutine before returning.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		l.Close()
		return ErrServerClosed
	}
	s.listener = l
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	s.logger.Info("listening", "addr", l.Addr().String())

	for {
		netConn, err := l.Accept()
		if err != nil {
			if s.isClosed() {
				s.wg.Wait()
				return ErrServerClosed
			}
			s.Close()
			return fmt.Errorf("accept: %w", err)
		}

		s.serveConn(netConn)
	}
}

func (s *Server) serveConn(netConn net.Conn) {
	remote := netConn.RemoteAddr().String()

	limit := s.config.MaxConnections
	if limit > 0 && s.Stats().ActiveConnections >= int64(limit) {
		s.logger.Warn("connection rejected, too many connections", "remote", remote, "max", limit)
		s.stats.recordReject()
		netConn.Close()
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		netConn.Close()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	id := int(s.nextID.Add(1))
	s.stats.recordAccept()

	go func() {
		defer s.wg.Done()
		defer s.stats.recordConnectionClosed()

		conn := newConnection(netConn, s.handler, id, s.config, s.stats)
		if !s.track(conn) {
			conn.Close()
			return
		}
		defer s.untrack(conn)

		conn.logger.Debug("connection accepted", "remote", remote)
		conn.Run()
	}()
}

func (s *Server) track(conn *Connection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.conns[conn.ClientID()] = conn
	return true
}

func (s *Server) untrack(conn *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn.ClientID())
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Addr returns the listener address, or nil before Serve is called.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stats returns a snapshot of server statistics.
func (s *Server) Stats() ServerStats {
	return s.stats.snapshot()
}

// Close stops accepting, closes every live connection and waits for their
// goroutines to finish.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true

	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}

	conns := make([]*Connection, 0, len(s.conns))
	for _, conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}

	s.wg.Wait()
	return err
}

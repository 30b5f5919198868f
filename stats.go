package kvserver

import (
	"sync/atomic"

	"github.com/pior/kvserver/wire"
)

// ServerStats contains counters about connections and requests.
// All fields are safe for concurrent access.
//
// For Prometheus integration, expose these as:
//   - Gauge: ActiveConnections
//   - Counters: everything else (responses with a status label)
type ServerStats struct {
	// Connection lifecycle
	ConnectionsAccepted uint64 // Connections handed to a Connection
	ConnectionsRejected uint64 // Accepted sockets closed because of MaxConnections
	ConnectionsClosed   uint64 // Connections that finished Run
	ClientCloses        uint64 // Connections closed by a CLOSE request
	ReceiveErrors       uint64 // Connections torn down by a receive failure

	// Frames
	Requests   uint64 // Frames that reached dispatch (after dedup)
	Duplicates uint64 // Frames dropped as retransmits
	Malformed  uint64 // Frames dropped as unparseable
	SendErrors uint64 // Responses that failed to send

	// Responses by status
	PutSuccess    uint64
	PutUpdate     uint64
	PutError      uint64
	DeleteSuccess uint64
	DeleteError   uint64
	GetSuccess    uint64
	GetError      uint64

	ActiveConnections int64
}

// statsCollector provides internal methods for updating server stats.
// Shared by the server and all of its connections.
type statsCollector struct {
	stats ServerStats
}

func newStatsCollector() *statsCollector {
	return &statsCollector{}
}

func (c *statsCollector) recordAccept() {
	atomic.AddUint64(&c.stats.ConnectionsAccepted, 1)
	atomic.AddInt64(&c.stats.ActiveConnections, 1)
}

func (c *statsCollector) recordReject() {
	atomic.AddUint64(&c.stats.ConnectionsRejected, 1)
}

func (c *statsCollector) recordConnectionClosed() {
	atomic.AddUint64(&c.stats.ConnectionsClosed, 1)
	atomic.AddInt64(&c.stats.ActiveConnections, -1)
}

func (c *statsCollector) recordClientClose() {
	atomic.AddUint64(&c.stats.ClientCloses, 1)
}

func (c *statsCollector) recordReceiveError() {
	atomic.AddUint64(&c.stats.ReceiveErrors, 1)
}

func (c *statsCollector) recordRequest() {
	atomic.AddUint64(&c.stats.Requests, 1)
}

func (c *statsCollector) recordDuplicate() {
	atomic.AddUint64(&c.stats.Duplicates, 1)
}

func (c *statsCollector) recordMalformed() {
	atomic.AddUint64(&c.stats.Malformed, 1)
}

func (c *statsCollector) recordSendError() {
	atomic.AddUint64(&c.stats.SendErrors, 1)
}

func (c *statsCollector) recordResponse(status wire.StatusType) {
	switch status {
	case wire.StatusPutSuccess:
		atomic.AddUint64(&c.stats.PutSuccess, 1)
	case wire.StatusPutUpdate:
		atomic.AddUint64(&c.stats.PutUpdate, 1)
	case wire.StatusPutError:
		atomic.AddUint64(&c.stats.PutError, 1)
	case wire.StatusDeleteSuccess:
		atomic.AddUint64(&c.stats.DeleteSuccess, 1)
	case wire.StatusDeleteError:
		atomic.AddUint64(&c.stats.DeleteError, 1)
	case wire.StatusGetSuccess:
		atomic.AddUint64(&c.stats.GetSuccess, 1)
	case wire.StatusGetError:
		atomic.AddUint64(&c.stats.GetError, 1)
	}
}

func (c *statsCollector) snapshot() ServerStats {
	return ServerStats{
		ConnectionsAccepted: atomic.LoadUint64(&c.stats.ConnectionsAccepted),
		ConnectionsRejected: atomic.LoadUint64(&c.stats.ConnectionsRejected),
		ConnectionsClosed:   atomic.LoadUint64(&c.stats.ConnectionsClosed),
		ClientCloses:        atomic.LoadUint64(&c.stats.ClientCloses),
		ReceiveErrors:       atomic.LoadUint64(&c.stats.ReceiveErrors),
		Requests:            atomic.LoadUint64(&c.stats.Requests),
		Duplicates:          atomic.LoadUint64(&c.stats.Duplicates),
		Malformed:           atomic.LoadUint64(&c.stats.Malformed),
		SendErrors:          atomic.LoadUint64(&c.stats.SendErrors),
		PutSuccess:          atomic.LoadUint64(&c.stats.PutSuccess),
		PutUpdate:           atomic.LoadUint64(&c.stats.PutUpdate),
		PutError:            atomic.LoadUint64(&c.stats.PutError),
		DeleteSuccess:       atomic.LoadUint64(&c.stats.DeleteSuccess),
		DeleteError:         atomic.LoadUint64(&c.stats.DeleteError),
		GetSuccess:          atomic.LoadUint64(&c.stats.GetSuccess),
		GetError:            atomic.LoadUint64(&c.stats.GetError),
		ActiveConnections:   atomic.LoadInt64(&c.stats.ActiveConnections),
	}
}

// Responses returns the response counters keyed by status.
func (s ServerStats) Responses() map[wire.StatusType]uint64 {
	return map[wire.StatusType]uint64{
		wire.StatusPutSuccess:    s.PutSuccess,
		wire.StatusPutUpdate:     s.PutUpdate,
		wire.StatusPutError:      s.PutError,
		wire.StatusDeleteSuccess: s.DeleteSuccess,
		wire.StatusDeleteError:   s.DeleteError,
		wire.StatusGetSuccess:    s.GetSuccess,
		wire.StatusGetError:      s.GetError,
	}
}

package client

import (
	"sync/atomic"
)

// PoolStats contains statistics about one server's connection pool.
//
// For Prometheus integration, expose these as:
//   - Gauges: TotalConns, IdleConns, ActiveConns
//   - Counters: AcquireCount, AcquireWaitCount, CreatedConns, DestroyedConns, AcquireErrors
type PoolStats struct {
	AcquireCount      uint64 // Total acquire attempts
	AcquireWaitCount  uint64 // Acquires that had to wait
	CreatedConns      uint64 // Total connections created
	DestroyedConns    uint64 // Total connections destroyed
	AcquireErrors     uint64 // Canceled acquire attempts
	AcquireWaitTimeNs uint64 // Total nanoseconds spent waiting

	TotalConns  int32 // Total connections in pool (active + idle)
	IdleConns   int32 // Idle connections available
	ActiveConns int32 // Connections currently in use
}

// ClientStats contains statistics about client operations.
// All fields are safe for concurrent access.
type ClientStats struct {
	Gets        uint64 // Total Get operations
	GetHits     uint64 // Get operations that found the key
	Puts        uint64 // Total Put operations
	Updates     uint64 // Put operations that replaced a value
	Deletes     uint64 // Total Delete operations
	Retransmits uint64 // Frames sent again after a response timeout
	Errors      uint64 // Total errors across all operations, misses excluded
}

type clientStatsCollector struct {
	stats ClientStats
}

func newClientStatsCollector() *clientStatsCollector {
	return &clientStatsCollector{}
}

func (c *clientStatsCollector) recordGet(found bool) {
	atomic.AddUint64(&c.stats.Gets, 1)
	if found {
		atomic.AddUint64(&c.stats.GetHits, 1)
	}
}

func (c *clientStatsCollector) recordPut(updated bool) {
	atomic.AddUint64(&c.stats.Puts, 1)
	if updated {
		atomic.AddUint64(&c.stats.Updates, 1)
	}
}

func (c *clientStatsCollector) recordDelete() {
	atomic.AddUint64(&c.stats.Deletes, 1)
}

func (c *clientStatsCollector) recordRetransmit() {
	atomic.AddUint64(&c.stats.Retransmits, 1)
}

func (c *clientStatsCollector) recordError() {
	atomic.AddUint64(&c.stats.Errors, 1)
}

func (c *clientStatsCollector) snapshot() ClientStats {
	return ClientStats{
		Gets:        atomic.LoadUint64(&c.stats.Gets),
		GetHits:     atomic.LoadUint64(&c.stats.GetHits),
		Puts:        atomic.LoadUint64(&c.stats.Puts),
		Updates:     atomic.LoadUint64(&c.stats.Updates),
		Deletes:     atomic.LoadUint64(&c.stats.Deletes),
		Retransmits: atomic.LoadUint64(&c.stats.Retransmits),
		Errors:      atomic.LoadUint64(&c.stats.Errors),
	}
}

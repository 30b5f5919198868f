package metrics

import (
	"github.com/pior/kvserver/client"
	"github.com/prometheus/client_golang/prometheus"
)

// ClientStatsSource is implemented by *client.Client.
type ClientStatsSource interface {
	Stats() client.ClientStats
	PoolStats() []client.ServerPoolStats
}

// ClientCollector exports client operation, pool and circuit breaker
// statistics, labelled by server address where relevant.
type ClientCollector struct {
	source ClientStatsSource

	operations   *prometheus.Desc
	getHits      *prometheus.Desc
	putUpdates   *prometheus.Desc
	retransmits  *prometheus.Desc
	errors       *prometheus.Desc
	poolConns    *prometheus.Desc
	poolCreated  *prometheus.Desc
	poolDestroy  *prometheus.Desc
	poolErrors   *prometheus.Desc
	circuitState *prometheus.Desc
	circuitFails *prometheus.Desc
}

var _ prometheus.Collector = (*ClientCollector)(nil)

func NewClientCollector(source ClientStatsSource) *ClientCollector {
	return &ClientCollector{
		source: source,
		operations: prometheus.NewDesc(
			"kvclient_operations_total",
			"Client operations",
			[]string{"op"}, // get, put, delete
			nil,
		),
		getHits: prometheus.NewDesc(
			"kvclient_get_hits_total",
			"Get operations that found the key",
			nil, nil,
		),
		putUpdates: prometheus.NewDesc(
			"kvclient_put_updates_total",
			"Put operations that replaced a value",
			nil, nil,
		),
		retransmits: prometheus.NewDesc(
			"kvclient_retransmits_total",
			"Frames sent again after a response timeout",
			nil, nil,
		),
		errors: prometheus.NewDesc(
			"kvclient_errors_total",
			"Failed operations, misses excluded",
			nil, nil,
		),
		poolConns: prometheus.NewDesc(
			"kvclient_pool_connections",
			"Connection pool statistics",
			[]string{"server", "state"}, // total, active, idle
			nil,
		),
		poolCreated: prometheus.NewDesc(
			"kvclient_pool_connections_created_total",
			"Total connections created",
			[]string{"server"},
			nil,
		),
		poolDestroy: prometheus.NewDesc(
			"kvclient_pool_connections_destroyed_total",
			"Total connections destroyed",
			[]string{"server"},
			nil,
		),
		poolErrors: prometheus.NewDesc(
			"kvclient_pool_acquire_errors_total",
			"Canceled connection acquires",
			[]string{"server"},
			nil,
		),
		circuitState: prometheus.NewDesc(
			"kvclient_circuit_breaker_state",
			"Circuit breaker state (0=closed, 1=half-open, 2=open)",
			[]string{"server"},
			nil,
		),
		circuitFails: prometheus.NewDesc(
			"kvclient_circuit_breaker_failures",
			"Circuit breaker failure counts in the current interval",
			[]string{"server", "type"}, // total, consecutive
			nil,
		),
	}
}

func (c *ClientCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.operations
	ch <- c.getHits
	ch <- c.putUpdates
	ch <- c.retransmits
	ch <- c.errors
	ch <- c.poolConns
	ch <- c.poolCreated
	ch <- c.poolDestroy
	ch <- c.poolErrors
	ch <- c.circuitState
	ch <- c.circuitFails
}

func (c *ClientCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.source.Stats()

	counter(ch, c.operations, s.Gets, "get")
	counter(ch, c.operations, s.Puts, "put")
	counter(ch, c.operations, s.Deletes, "delete")
	counter(ch, c.getHits, s.GetHits)
	counter(ch, c.putUpdates, s.Updates)
	counter(ch, c.retransmits, s.Retransmits)
	counter(ch, c.errors, s.Errors)

	for _, sp := range c.source.PoolStats() {
		p := sp.PoolStats
		gauge(ch, c.poolConns, float64(p.TotalConns), sp.Addr, "total")
		gauge(ch, c.poolConns, float64(p.ActiveConns), sp.Addr, "active")
		gauge(ch, c.poolConns, float64(p.IdleConns), sp.Addr, "idle")

		counter(ch, c.poolCreated, p.CreatedConns, sp.Addr)
		counter(ch, c.poolDestroy, p.DestroyedConns, sp.Addr)
		counter(ch, c.poolErrors, p.AcquireErrors, sp.Addr)

		gauge(ch, c.circuitState, float64(sp.CircuitBreakerState), sp.Addr)
		gauge(ch, c.circuitFails, float64(sp.CircuitBreakerCounts.TotalFailures), sp.Addr, "total")
		gauge(ch, c.circuitFails, float64(sp.CircuitBreakerCounts.ConsecutiveFailures), sp.Addr, "consecutive")
	}
}

func gauge(ch chan<- prometheus.Metric, desc *prometheus.Desc, value float64, labels ...string) {
	ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, value, labels...)
}

package metrics

import (
	"github.com/pior/kvserver"
	"github.com/prometheus/client_golang/prometheus"
)

// ServerStatsSource is implemented by *kvserver.Server.
type ServerStatsSource interface {
	Stats() kvserver.ServerStats
}

// ServerCollector exports server statistics. Values are read from the
// source on every scrape.
type ServerCollector struct {
	source ServerStatsSource

	activeConnections *prometheus.Desc
	connections       *prometheus.Desc
	frames            *prometheus.Desc
	sendErrors        *prometheus.Desc
	responses         *prometheus.Desc
}

var _ prometheus.Collector = (*ServerCollector)(nil)

func NewServerCollector(source ServerStatsSource) *ServerCollector {
	return &ServerCollector{
		source: source,
		activeConnections: prometheus.NewDesc(
			"kvserver_connections_active",
			"Connections currently being served",
			nil, nil,
		),
		connections: prometheus.NewDesc(
			"kvserver_connection_events_total",
			"Connection lifecycle events",
			[]string{"event"}, // accepted, rejected, closed, client_close, receive_error
			nil,
		),
		frames: prometheus.NewDesc(
			"kvserver_frames_total",
			"Frames received, by outcome",
			[]string{"outcome"}, // request, duplicate, malformed
			nil,
		),
		sendErrors: prometheus.NewDesc(
			"kvserver_send_errors_total",
			"Responses that failed to send",
			nil, nil,
		),
		responses: prometheus.NewDesc(
			"kvserver_responses_total",
			"Responses sent, by status",
			[]string{"status"},
			nil,
		),
	}
}

func (c *ServerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activeConnections
	ch <- c.connections
	ch <- c.frames
	ch <- c.sendErrors
	ch <- c.responses
}

func (c *ServerCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.source.Stats()

	ch <- prometheus.MustNewConstMetric(c.activeConnections, prometheus.GaugeValue, float64(s.ActiveConnections))

	counter(ch, c.connections, s.ConnectionsAccepted, "accepted")
	counter(ch, c.connections, s.ConnectionsRejected, "rejected")
	counter(ch, c.connections, s.ConnectionsClosed, "closed")
	counter(ch, c.connections, s.ClientCloses, "client_close")
	counter(ch, c.connections, s.ReceiveErrors, "receive_error")

	counter(ch, c.frames, s.Requests, "request")
	counter(ch, c.frames, s.Duplicates, "duplicate")
	counter(ch, c.frames, s.Malformed, "malformed")

	counter(ch, c.sendErrors, s.SendErrors)

	for status, n := range s.Responses() {
		counter(ch, c.responses, n, status.String())
	}
}

func counter(ch chan<- prometheus.Metric, desc *prometheus.Desc, value uint64, labels ...string) {
	ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(value), labels...)
}

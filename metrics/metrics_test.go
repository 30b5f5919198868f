package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pior/kvserver"
	"github.com/pior/kvserver/client"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeServer struct {
	stats kvserver.ServerStats
}

func (f *fakeServer) Stats() kvserver.ServerStats { return f.stats }

type fakeClient struct {
	stats client.ClientStats
	pools []client.ServerPoolStats
}

func (f *fakeClient) Stats() client.ClientStats { return f.stats }
func (f *fakeClient) PoolStats() []client.ServerPoolStats { return f.pools }

// value returns the value of the metric in family name whose labels include
// all of the given name/value pairs.
func value(t *testing.T, registry *prometheus.Registry, name string, labels ...string) float64 {
	t.Helper()

	families, err := registry.Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if !hasLabels(m, labels) {
				continue
			}
			if m.GetCounter() != nil {
				return m.GetCounter().GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}

	t.Fatalf("metric %s%v not found", name, labels)
	return 0
}

func hasLabels(m *dto.Metric, labels []string) bool {
	for i := 0; i+1 < len(labels); i += 2 {
		found := false
		for _, lp := range m.GetLabel() {
			if lp.GetName() == labels[i] && lp.GetValue() == labels[i+1] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func TestServerCollector(t *testing.T) {
	src := &fakeServer{stats: kvserver.ServerStats{
		ConnectionsAccepted: 5,
		ConnectionsRejected: 1,
		ConnectionsClosed:   3,
		ClientCloses:        2,
		ReceiveErrors:       1,
		Requests:            40,
		Duplicates:          4,
		Malformed:           2,
		SendErrors:          1,
		PutSuccess:          10,
		GetError:            7,
		ActiveConnections:   2,
	}}
	registry := NewRegistry(NewServerCollector(src))

	assert.Equal(t, 2.0, value(t, registry, "kvserver_connections_active"))
	assert.Equal(t, 5.0, value(t, registry, "kvserver_connection_events_total", "event", "accepted"))
	assert.Equal(t, 1.0, value(t, registry, "kvserver_connection_events_total", "event", "rejected"))
	assert.Equal(t, 2.0, value(t, registry, "kvserver_connection_events_total", "event", "client_close"))
	assert.Equal(t, 40.0, value(t, registry, "kvserver_frames_total", "outcome", "request"))
	assert.Equal(t, 4.0, value(t, registry, "kvserver_frames_total", "outcome", "duplicate"))
	assert.Equal(t, 2.0, value(t, registry, "kvserver_frames_total", "outcome", "malformed"))
	assert.Equal(t, 1.0, value(t, registry, "kvserver_send_errors_total"))
	assert.Equal(t, 10.0, value(t, registry, "kvserver_responses_total", "status", "PUT_SUCCESS"))
	assert.Equal(t, 7.0, value(t, registry, "kvserver_responses_total", "status", "GET_ERROR"))
	assert.Equal(t, 0.0, value(t, registry, "kvserver_responses_total", "status", "DELETE_ERROR"))

	// values follow the source on every scrape
	src.stats.Requests = 41
	assert.Equal(t, 41.0, value(t, registry, "kvserver_frames_total", "outcome", "request"))
}

func TestClientCollector(t *testing.T) {
	src := &fakeClient{
		stats: client.ClientStats{Gets: 10, GetHits: 6, Puts: 4, Updates: 1, Deletes: 2, Retransmits: 3, Errors: 1},
		pools: []client.ServerPoolStats{
			{
				Addr: "a:1",
				PoolStats: client.PoolStats{
					TotalConns:     3,
					ActiveConns:    1,
					IdleConns:      2,
					CreatedConns:   4,
					DestroyedConns: 1,
				},
				CircuitBreakerState:  gobreaker.StateOpen,
				CircuitBreakerCounts: gobreaker.Counts{TotalFailures: 5, ConsecutiveFailures: 3},
			},
			{Addr: "b:2"},
		},
	}
	registry := NewRegistry(NewClientCollector(src))

	assert.Equal(t, 10.0, value(t, registry, "kvclient_operations_total", "op", "get"))
	assert.Equal(t, 4.0, value(t, registry, "kvclient_operations_total", "op", "put"))
	assert.Equal(t, 2.0, value(t, registry, "kvclient_operations_total", "op", "delete"))
	assert.Equal(t, 6.0, value(t, registry, "kvclient_get_hits_total"))
	assert.Equal(t, 3.0, value(t, registry, "kvclient_retransmits_total"))

	assert.Equal(t, 3.0, value(t, registry, "kvclient_pool_connections", "server", "a:1", "state", "total"))
	assert.Equal(t, 2.0, value(t, registry, "kvclient_pool_connections", "server", "a:1", "state", "idle"))
	assert.Equal(t, 4.0, value(t, registry, "kvclient_pool_connections_created_total", "server", "a:1"))
	assert.Equal(t, 2.0, value(t, registry, "kvclient_circuit_breaker_state", "server", "a:1"))
	assert.Equal(t, 3.0, value(t, registry, "kvclient_circuit_breaker_failures", "server", "a:1", "type", "consecutive"))
	assert.Equal(t, 0.0, value(t, registry, "kvclient_circuit_breaker_state", "server", "b:2"))
}

func TestRouter(t *testing.T) {
	registry := NewRegistry(NewServerCollector(&fakeServer{stats: kvserver.ServerStats{ActiveConnections: 3}}))
	srv := httptest.NewServer(NewRouter(registry))
	defer srv.Close()

	t.Run("health", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, `{"status":"ok"}`, string(body))
	})

	t.Run("metrics", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(body), "kvserver_connections_active 3")
	})

	t.Run("unknown path", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/nope")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

// Package metrics wraps a prometheus registry with the counters and
// gauges the runtime exposes. A nil *Registry is valid and every
// method on it is a no-op, so components never need a feature flag to
// skip metrics collection.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the metric instruments for a single node process.
type Registry struct {
	registry *prometheus.Registry

	CollectivesCompleted *prometheus.CounterVec
	BytesSent            prometheus.Counter
	BytesReceived        prometheus.Counter
	WorkerQueueDepth     prometheus.Gauge
	RequestTableSize     *prometheus.GaugeVec
}

// New builds a fresh Registry with all instruments registered.
func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		registry: reg,
		CollectivesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pcj",
			Name:      "collectives_completed_total",
			Help:      "Number of collective operations completed, by group and kind.",
		}, []string{"group", "kind"}),
		BytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pcj",
			Name:      "bytes_sent_total",
			Help:      "Total bytes written to peer sockets.",
		}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pcj",
			Name:      "bytes_received_total",
			Help:      "Total bytes read from peer sockets.",
		}),
		WorkerQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pcj",
			Name:      "worker_queue_depth",
			Help:      "Number of inbound messages queued for worker pickup.",
		}),
		RequestTableSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "pcj",
			Name:      "request_table_size",
			Help:      "Number of in-flight requests, by group and collective kind.",
		}, []string{"group", "kind"}),
	}
	reg.MustRegister(r.CollectivesCompleted, r.BytesSent, r.BytesReceived, r.WorkerQueueDepth, r.RequestTableSize)
	return r
}

// Handler returns an http.Handler exposing this registry in the
// Prometheus exposition format. Callers wire it under pcj.diagnostics.addr.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Registry) collectiveCompleted(group, kind string) {
	if r == nil {
		return
	}
	r.CollectivesCompleted.WithLabelValues(group, kind).Inc()
}

// CollectiveCompleted records that a collective of the given kind
// finished on the given group.
func (r *Registry) CollectiveCompleted(group, kind string) {
	r.collectiveCompleted(group, kind)
}

func (r *Registry) addBytesSent(n int) {
	if r == nil {
		return
	}
	r.BytesSent.Add(float64(n))
}

// AddBytesSent records outbound bytes written to a socket.
func (r *Registry) AddBytesSent(n int) { r.addBytesSent(n) }

func (r *Registry) addBytesReceived(n int) {
	if r == nil {
		return
	}
	r.BytesReceived.Add(float64(n))
}

// AddBytesReceived records inbound bytes read from a socket.
func (r *Registry) AddBytesReceived(n int) { r.addBytesReceived(n) }

// SetWorkerQueueDepth records the current depth of the worker pool's
// inbound queue.
func (r *Registry) SetWorkerQueueDepth(n int) {
	if r == nil {
		return
	}
	r.WorkerQueueDepth.Set(float64(n))
}

// SetRequestTableSize records the live size of a request table.
func (r *Registry) SetRequestTableSize(group, kind string, n int) {
	if r == nil {
		return
	}
	r.RequestTableSize.WithLabelValues(group, kind).Set(float64(n))
}

package observability

import (
	"net/http"
	"strconv"
	"time"

	"mindmap/application/realtime"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the Prometheus metrics of the relay server on a private
// registry
type Collector struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	Connections    prometheus.Gauge
	FramesSent     *prometheus.CounterVec
	FramesFailed   *prometheus.CounterVec
	FramesDropped  prometheus.Counter
	FramesRejected *prometheus.CounterVec

	StoreDuration *prometheus.HistogramVec
}

var _ realtime.Metrics = (*Collector)(nil)

// NewCollector creates a collector with the given namespace
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latencies",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relay_connections",
			Help:      "Live relay connections",
		}),
		FramesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "relay_frames_sent_total",
				Help:      "Frames enqueued to recipients",
			},
			[]string{"type"},
		),
		FramesFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "relay_frames_failed_total",
				Help:      "Frames that could not be delivered",
			},
			[]string{"type"},
		),
		FramesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_frames_dropped_total",
			Help:      "Droppable frames discarded for slow recipients",
		}),
		FramesRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "relay_frames_rejected_total",
				Help:      "Inbound frames ignored",
			},
			[]string{"reason"},
		),
		StoreDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "store_operation_duration_seconds",
				Help:      "Document store operation latencies",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.HTTPRequests,
		c.HTTPDuration,
		c.Connections,
		c.FramesSent,
		c.FramesFailed,
		c.FramesDropped,
		c.FramesRejected,
		c.StoreDuration,
	)
	return c
}

// ConnectionsChanged implements realtime.Metrics
func (c *Collector) ConnectionsChanged(total int) {
	c.Connections.Set(float64(total))
}

// FanoutCompleted implements realtime.Metrics
func (c *Collector) FanoutCompleted(eventType string, delivered, failed int) {
	c.FramesSent.WithLabelValues(eventType).Add(float64(delivered))
	if failed > 0 {
		c.FramesFailed.WithLabelValues(eventType).Add(float64(failed))
	}
}

// FrameDropped implements realtime.Metrics
func (c *Collector) FrameDropped() {
	c.FramesDropped.Inc()
}

// FrameRejected implements realtime.Metrics
func (c *Collector) FrameRejected(reason string) {
	c.FramesRejected.WithLabelValues(reason).Inc()
}

// RecordLatency observes one document store operation
func (c *Collector) RecordLatency(operation string, latency time.Duration) {
	c.StoreDuration.WithLabelValues(operation).Observe(latency.Seconds())
}

// Registry returns the Prometheus registry for this collector
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Middleware records request counts and latencies by chi route pattern
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		c.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Inc()
		c.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/peterje/forge/internal/pty"
)

// Metrics holds the Prometheus collectors of the server. They live on a
// private registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	TerminalsActive  prometheus.Gauge
	TerminalsCreated prometheus.Counter
	TerminalsEnded   *prometheus.CounterVec
	TerminalBytes    *prometheus.CounterVec

	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New creates and registers the collectors, plus the Go runtime and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	register := func(c prometheus.Collector) { reg.MustRegister(c) }

	m := &Metrics{
		registry: reg,
		TerminalsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "forge_terminals_active",
			Help: "Number of live terminals",
		}),
		TerminalsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forge_terminals_created_total",
			Help: "Total number of terminals created",
		}),
		TerminalsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forge_terminals_ended_total",
			Help: "Total number of terminals ended, by reason",
		}, []string{"reason"}),
		TerminalBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forge_terminal_bytes_total",
			Help: "Bytes written to (in) and read from (out) terminals",
		}, []string{"direction"}),
		WSConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "forge_ws_connections",
			Help: "Number of connected websocket clients",
		}),
		WSMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forge_ws_messages_total",
			Help: "Websocket messages by direction and type",
		}, []string{"direction", "type"}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forge_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "forge_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method", "path"}),
	}

	register(m.TerminalsActive)
	register(m.TerminalsCreated)
	register(m.TerminalsEnded)
	register(m.TerminalBytes)
	register(m.WSConnections)
	register(m.WSMessages)
	register(m.RequestsTotal)
	register(m.RequestDuration)
	register(collectors.NewGoCollector())
	register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records a counter and a latency observation per request. The
// route template is used as the path label so ids do not explode the
// label space.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.RequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.RequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Terminal recorder hooks, called by the pty manager.

func (m *Metrics) TerminalStarted() {
	m.TerminalsCreated.Inc()
	m.TerminalsActive.Inc()
}

func (m *Metrics) TerminalEnded(reason pty.EndReason) {
	m.TerminalsActive.Dec()
	m.TerminalsEnded.WithLabelValues(string(reason)).Inc()
}

func (m *Metrics) BytesRead(n int) {
	m.TerminalBytes.WithLabelValues("out").Add(float64(n))
}

func (m *Metrics) BytesWritten(n int) {
	m.TerminalBytes.WithLabelValues("in").Add(float64(n))
}

// WebSocket hooks.

func (m *Metrics) ClientConnected()    { m.WSConnections.Inc() }
func (m *Metrics) ClientDisconnected() { m.WSConnections.Dec() }

func (m *Metrics) MessageReceived(kind string) {
	m.WSMessages.WithLabelValues("in", kind).Inc()
}

func (m *Metrics) MessageSent(kind string) {
	m.WSMessages.WithLabelValues("out", kind).Inc()
}

var _ pty.Recorder = (*Metrics)(nil)

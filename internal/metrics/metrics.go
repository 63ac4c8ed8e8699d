package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the daemon's prometheus collectors. A nil *Metrics is a no-op.
type Metrics struct {
	registry *prometheus.Registry

	sessions       *prometheus.GaugeVec
	messages       *prometheus.CounterVec
	broadcasts     *prometheus.CounterVec
	scheduledFires *prometheus.CounterVec
	notifications  *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// New creates and registers all collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "wpphub_sessions",
			Help: "Number of sessions per connection status.",
		}, []string{"status"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wpphub_messages_total",
			Help: "Messages recorded in the ledger.",
		}, []string{"direction"}),
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wpphub_broadcast_recipients_total",
			Help: "Broadcast recipient attempts by result.",
		}, []string{"result"}),
		scheduledFires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wpphub_scheduled_fires_total",
			Help: "Scheduled task fires by result.",
		}, []string{"result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wpphub_notifications_total",
			Help: "Notification deliveries by sink and result.",
		}, []string{"sink", "result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wpphub_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wpphub_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.sessions, m.messages, m.broadcasts, m.scheduledFires, m.notifications,
		m.httpRequests, m.httpDuration,
	)
	return m
}

func result(err error) string {
	if err != nil {
		return "failed"
	}
	return "ok"
}

// SetSessions replaces the per-status session gauge.
func (m *Metrics) SetSessions(byStatus map[string]int) {
	if m == nil {
		return
	}
	m.sessions.Reset()
	for st, n := range byStatus {
		m.sessions.WithLabelValues(st).Set(float64(n))
	}
}

// MessageRecorded counts a ledger entry.
func (m *Metrics) MessageRecorded(direction string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(direction).Inc()
}

// BroadcastAttempt counts one broadcast recipient attempt.
func (m *Metrics) BroadcastAttempt(err error) {
	if m == nil {
		return
	}
	m.broadcasts.WithLabelValues(result(err)).Inc()
}

// ScheduledFire counts one scheduled task fire.
func (m *Metrics) ScheduledFire(err error) {
	if m == nil {
		return
	}
	m.scheduledFires.WithLabelValues(result(err)).Inc()
}

// Notification counts one delivery attempt of a notification sink.
func (m *Metrics) Notification(sink string, err error) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(sink, result(err)).Inc()
}

// Middleware records request counts and latency per matched route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Package metrics exposes the monitor's Prometheus instruments.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	readingsIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sensor_readings_ingested_total",
			Help: "Total sensor readings persisted.",
		},
	)
	alertsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_created_total",
			Help: "Total alerts created by severity and source.",
		},
		[]string{"severity", "source"},
	)
	classifierCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "risk_classifier_calls_total",
			Help: "Risk classifier calls by outcome.",
		},
		[]string{"outcome"},
	)
	classifierLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "risk_classifier_latency_seconds",
			Help:    "Risk classifier round trip latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
	summaryCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_summary_calls_total",
			Help: "Summary oracle calls by outcome.",
		},
		[]string{"outcome"},
	)
	notificationsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_notifications_dropped_total",
			Help: "Alert notifications dropped because a sink was saturated.",
		},
		[]string{"sink"},
	)
	influxWriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "influx_write_failures_total",
			Help: "Total InfluxDB write failures.",
		},
	)
	liveClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "live_feed_clients",
			Help: "Connected websocket clients.",
		},
	)
)

var registerOnce sync.Once

// Register adds every instrument to the default registry. It is safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpLatency,
			readingsIngested, alertsCreated,
			classifierCalls, classifierLatency,
			summaryCalls, notificationsDropped,
			influxWriteFailures, liveClients,
		)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument records request counts and latency keyed by the matched route.
func Instrument() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		httpRequests.WithLabelValues(c.Request.Method, path, status).Inc()
		httpLatency.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
	}
}

func IncReadingIngested() {
	readingsIngested.Inc()
}

func IncAlertCreated(severity, source string) {
	alertsCreated.WithLabelValues(severity, source).Inc()
}

func ObserveClassifier(outcome string, d time.Duration) {
	classifierCalls.WithLabelValues(outcome).Inc()
	if d > 0 {
		classifierLatency.Observe(d.Seconds())
	}
}

func IncSummaryCall(outcome string) {
	summaryCalls.WithLabelValues(outcome).Inc()
}

func IncNotificationDropped(sink string) {
	notificationsDropped.WithLabelValues(sink).Inc()
}

func IncInfluxWriteFailure() {
	influxWriteFailures.Inc()
}

func SetLiveClients(n int) {
	liveClients.Set(float64(n))
}

package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/abduss/goupload/internal/upload"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	initOnce sync.Once

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	uploadSessionsStarted  prometheus.Counter
	uploadSessionsFinished *prometheus.CounterVec
	uploadChunksAccepted   prometheus.Counter
	uploadChunksRejected   prometheus.Counter
	uploadBytesReceived    prometheus.Counter
	uploadActiveSessions   prometheus.Gauge
)

// InitMetrics registers all collectors. Safe to call more than once.
func InitMetrics() {
	initOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "goupload_http_requests_total",
			Help: "HTTP requests processed, labeled by method, route and status.",
		}, []string{"method", "route", "status"})

		httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "goupload_http_request_duration_seconds",
			Help:    "HTTP request latency distribution.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"})

		uploadSessionsStarted = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "goupload_sessions_started_total",
			Help: "Upload sessions created.",
		})

		uploadSessionsFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "goupload_sessions_finished_total",
			Help: "Upload sessions that reached a terminal state, labeled by outcome.",
		}, []string{"outcome"})

		uploadChunksAccepted = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "goupload_chunks_accepted_total",
			Help: "Chunks accepted into sessions.",
		})

		uploadChunksRejected = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "goupload_chunks_rejected_total",
			Help: "Chunk submissions rejected by validation or storage.",
		})

		uploadBytesReceived = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "goupload_bytes_received_total",
			Help: "Payload bytes accepted across all sessions.",
		})

		uploadActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "goupload_active_sessions",
			Help: "Sessions currently in a non-terminal state.",
		})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpRequestDuration,
			uploadSessionsStarted,
			uploadSessionsFinished,
			uploadChunksAccepted,
			uploadChunksRejected,
			uploadBytesReceived,
			uploadActiveSessions,
		)
	})
}

// Middleware records request counts and latency per route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Register attaches the Prometheus metrics endpoint to the router.
func Register(router *gin.Engine, path string) {
	router.GET(path, gin.WrapH(promhttp.Handler()))
}

// UploadObserver translates session events into collector updates. Wire it
// with Service.Notify.
func UploadObserver() func(upload.Event) {
	return func(ev upload.Event) {
		switch ev.Type {
		case upload.EventSessionCreated:
			uploadSessionsStarted.Inc()
			uploadActiveSessions.Inc()
		case upload.EventChunkAccepted:
			uploadChunksAccepted.Inc()
			uploadBytesReceived.Add(float64(ev.ChunkSize))
		case upload.EventChunkRejected:
			uploadChunksRejected.Inc()
		case upload.EventSessionCompleted:
			uploadSessionsFinished.WithLabelValues("completed").Inc()
			uploadActiveSessions.Dec()
		case upload.EventSessionFailed:
			uploadSessionsFinished.WithLabelValues("failed").Inc()
			uploadActiveSessions.Dec()
		case upload.EventSessionExpired:
			uploadSessionsFinished.WithLabelValues("expired").Inc()
			uploadActiveSessions.Dec()
		case upload.EventSessionCancelled:
			uploadSessionsFinished.WithLabelValues("cancelled").Inc()
			uploadActiveSessions.Dec()
		}
	}
}

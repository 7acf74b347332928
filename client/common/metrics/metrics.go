package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	APIRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tgchat_api_requests_total",
		Help: "Remote API calls by operation and outcome",
	}, []string{"op", "outcome"})
	APIRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tgchat_api_request_duration_seconds",
		Help:    "Remote API call duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
	RefreshTicksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tgchat_refresh_ticks_total",
		Help: "Scheduled refresh ticks by resource",
	}, []string{"op"})
	RefreshFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tgchat_refresh_failures_total",
		Help: "Refresh ticks that failed and were absorbed",
	}, []string{"op"})
	StaleResultsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tgchat_stale_results_total",
		Help: "Fetch results dropped because a newer result was already applied",
	}, []string{"op"})
	ActiveTimers = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tgchat_active_timers",
		Help: "Refresh timers currently scheduled",
	}, []string{"op"})
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tgchat_http_requests_total",
		Help: "Requests served by the local HTTP surfaces",
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(
		APIRequestsTotal,
		APIRequestDuration,
		RefreshTicksTotal,
		RefreshFailuresTotal,
		StaleResultsTotal,
		ActiveTimers,
		HTTPRequestsTotal,
	)
}

// ObserveAPI records one remote call.
func ObserveAPI(op string, started time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	APIRequestsTotal.WithLabelValues(op, outcome).Inc()
	APIRequestDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

// UnmatchedPath is the path label for requests that hit no route.
const UnmatchedPath = "unmatched"

func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = UnmatchedPath
		}
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

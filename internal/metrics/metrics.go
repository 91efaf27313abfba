// Package metrics provides Prometheus metrics for the ftpgate server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ftpgate_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ftpgate_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// FTP session metrics
	ftpSessionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ftpgate_ftp_sessions_open",
			Help: "Number of registered FTP sessions",
		},
	)

	ftpOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ftpgate_ftp_operations_total",
			Help: "Total FTP operations by outcome",
		},
		[]string{"op", "status"},
	)

	ftpHealthChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ftpgate_ftp_health_checks_total",
			Help: "Total NOOP health checks by outcome",
		},
		[]string{"status"},
	)

	// Tree metrics
	treeRefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ftpgate_tree_refresh_duration_seconds",
			Help:    "Time to connect, walk and close for one tree refresh",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	treeRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ftpgate_tree_refreshes_total",
			Help: "Total tree refreshes by outcome",
		},
		[]string{"status"},
	)

	treeCachedNodes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ftpgate_tree_cached_nodes",
			Help: "Number of files and directories in the cached tree",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// FTP adapts the package metrics to the ftpproxy.Metrics hooks.
type FTP struct{}

func (FTP) SetOpenSessions(n int) {
	ftpSessionsOpen.Set(float64(n))
}

func (FTP) ObserveOp(op string, err error) {
	ftpOperationsTotal.WithLabelValues(op, status(err)).Inc()
}

func (FTP) ObserveRefresh(d time.Duration, err error) {
	treeRefreshDuration.Observe(d.Seconds())
	treeRefreshesTotal.WithLabelValues(status(err)).Inc()
}

func (FTP) ObserveHealthCheck(err error) {
	ftpHealthChecksTotal.WithLabelValues(status(err)).Inc()
}

func (FTP) SetCachedNodes(n int) {
	treeCachedNodes.Set(float64(n))
}

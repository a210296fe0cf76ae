package metrics

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts handled requests by route template, method and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of http requests handled by the service.",
		},
		[]string{"path", "method", "code"},
	)

	// DispatchOperationsTotal counts dispatcher calls by operation and outcome code.
	DispatchOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_operations_total",
			Help: "Total number of dispatcher operations by outcome.",
		},
		[]string{"op", "outcome"},
	)

	// QueueEntries is the number of live calls per state.
	QueueEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dispatch_queue_entries",
			Help: "Live call entries in the dispatch queue by state.",
		},
		[]string{"state"},
	)

	ReclaimedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_reclaimed_total",
			Help: "Total number of stale claims returned to the waiting pool.",
		},
	)

	// ClaimWaitSeconds observes how long a call waited before it was claimed.
	ClaimWaitSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_claim_wait_seconds",
			Help:    "Time from intake to claim.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"risk_level"},
	)
)

// Middleware records HTTPRequestsTotal for every request.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(path, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

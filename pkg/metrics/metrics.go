package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Deployment metrics
	DeploymentsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "modelhost_deployments_total",
			Help: "Total number of deployment records by status",
		},
		[]string{"status"},
	)

	DeploymentsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelhost_deployments_finished_total",
			Help: "Total number of pipeline runs that reached a terminal status",
		},
		[]string{"status"},
	)

	JobsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "modelhost_jobs_active",
			Help: "Number of deployment jobs currently running",
		},
	)

	// Stage metrics
	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "modelhost_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600},
		},
		[]string{"stage"},
	)

	StageFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelhost_stage_failures_total",
			Help: "Total number of pipeline stage failures",
		},
		[]string{"stage"},
	)

	EndpointPolls = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "modelhost_endpoint_polls_total",
			Help: "Total number of endpoint status queries",
		},
	)

	// Notifier metrics
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelhost_notifications_total",
			Help: "Total number of status notifications by result",
		},
		[]string{"result"},
	)

	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "modelhost_sessions_active",
			Help: "Number of registered notifier sessions",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelhost_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "modelhost_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(DeploymentsTotal)
	prometheus.MustRegister(DeploymentsFinished)
	prometheus.MustRegister(JobsActive)
	prometheus.MustRegister(StageDuration)
	prometheus.MustRegister(StageFailures)
	prometheus.MustRegister(EndpointPolls)
	prometheus.MustRegister(NotificationsTotal)
	prometheus.MustRegister(SessionsActive)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fallah"

var (
	// Verification metrics

	CodesRequestedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "codes_requested_total",
		Help:      "Verification code requests, by outcome.",
	}, []string{"outcome"})

	VerificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "verifications_total",
		Help:      "Code verification attempts, by outcome.",
	}, []string{"outcome"})

	SMSDeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sms_deliveries_total",
		Help:      "SMS gateway deliveries, by outcome.",
	}, []string{"outcome"})

	UsersProvisionedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "users_provisioned_total",
		Help:      "Users created on their first successful phone verification.",
	})

	// Sweeper metrics

	SweepEvictedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "verification_sweep_evicted_total",
		Help:      "Expired pending codes removed by the sweeper.",
	})

	SweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "verification_sweep_duration_seconds",
		Help:      "Time taken for one sweep of the verification store.",
		Buckets:   prometheus.DefBuckets,
	})

	PendingVerifications = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pending_verifications",
		Help:      "Pending codes held in process memory after the last sweep.",
	})

	// HTTP metrics

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})
)

func Register() {
	prometheus.MustRegister(
		CodesRequestedTotal,
		VerificationsTotal,
		SMSDeliveriesTotal,
		UsersProvisionedTotal,
		SweepEvictedTotal,
		SweepDuration,
		PendingVerifications,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}

// NewServer serves /metrics, the health probes and any extra internal
// handlers on a port that is not exposed to clients.
func NewServer(addr string, probes http.Handler, extra map[string]http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/livez", probes)
	mux.Handle("/readyz", probes)
	for path, h := range extra {
		mux.Handle(path, h)
	}
	return &http.Server{Addr: addr, Handler: mux}
}

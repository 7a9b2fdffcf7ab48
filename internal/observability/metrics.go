package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_requests_total",
			Help: "Total HTTP requests",
		}, []string{"code"},
	)
	Latency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "router_request_duration_seconds",
		Help:    "Request latency seconds",
		Buckets: prometheus.DefBuckets,
	})
	InFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "router_in_flight",
		Help: "In-flight HTTP requests",
	})
	RequestErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_request_errors_total",
			Help: "Total errors by type",
		}, []string{"type"},
	)
	Decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_decisions_total",
			Help: "Visitor decisions by outcome",
		}, []string{"outcome"},
	)
	QuotaCheckFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "router_quota_check_failures_total",
		Help: "Candidates rejected because their daily counter could not be read",
	})
	TargetWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_target_writes_total",
			Help: "Successful target writes by operation",
		}, []string{"op"},
	)
	ExpiredPurged = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "router_expired_keys_purged_total",
		Help: "Expired counters removed by the sweeper",
	})
)

func init() {
	prometheus.MustRegister(
		RequestsTotal, Latency, InFlight, RequestErrors,
		Decisions, QuotaCheckFailures, TargetWrites, ExpiredPurged,
	)
}

func MetricsHandler() http.Handler { return promhttp.Handler() }

type rec struct {
	http.ResponseWriter
	code int
}

func (r *rec) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func Measure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		InFlight.Inc()
		defer InFlight.Dec()

		rr := &rec{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rr, r)

		Latency.Observe(time.Since(start).Seconds())
		RequestsTotal.WithLabelValues(strconv.Itoa(rr.code)).Inc()
	})
}

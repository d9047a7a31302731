package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "repricer"

// Metrics holds all repricer collectors.
type Metrics struct {
	RateLimitTokens   *prometheus.GaugeVec
	RateLimitWait     *prometheus.HistogramVec
	RateLimitTimeouts *prometheus.CounterVec

	APIRequests        *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec

	JobRuns     *prometheus.CounterVec
	JobDuration *prometheus.HistogramVec

	RepriceDecisions *prometheus.CounterVec
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RateLimitTokens: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "ratelimit_tokens",
				Help:      "Tokens currently available per bucket",
			},
			[]string{"bucket"},
		),
		RateLimitWait: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ratelimit_wait_seconds",
				Help:      "Time spent waiting for a token",
				Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
			},
			[]string{"bucket"},
		),
		RateLimitTimeouts: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ratelimit_timeouts_total",
				Help:      "Acquire calls that gave up without a token",
			},
			[]string{"bucket"},
		),
		APIRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Marketplace API requests by route and HTTP status (0 = transport error)",
			},
			[]string{"route", "status"},
		),
		APIRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_request_duration_seconds",
				Help:      "Marketplace API request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		JobRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "job_runs_total",
				Help:      "Scheduled job runs by outcome",
			},
			[]string{"job", "outcome"},
		),
		JobDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_duration_seconds",
				Help:      "Scheduled job run duration",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
			},
			[]string{"job"},
		),
		RepriceDecisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reprice_decisions_total",
				Help:      "Reprice decisions by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// ObserveAcquire implements ratelimit.Observer.
func (m *Metrics) ObserveAcquire(bucket string, wait time.Duration, ok bool) {
	m.RateLimitWait.WithLabelValues(bucket).Observe(wait.Seconds())
	if !ok {
		m.RateLimitTimeouts.WithLabelValues(bucket).Inc()
	}
}

// SetTokens implements ratelimit.Observer.
func (m *Metrics) SetTokens(bucket string, tokens int) {
	m.RateLimitTokens.WithLabelValues(bucket).Set(float64(tokens))
}

// ObserveRequest implements api.RequestObserver.
func (m *Metrics) ObserveRequest(route string, status int, d time.Duration) {
	m.APIRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.APIRequestDuration.WithLabelValues(route).Observe(d.Seconds())
}

// ObserveJob implements scheduler.Observer.
func (m *Metrics) ObserveJob(name string, d time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.JobRuns.WithLabelValues(name, outcome).Inc()
	m.JobDuration.WithLabelValues(name).Observe(d.Seconds())
}

// ObserveDecision implements pricing.Observer.
func (m *Metrics) ObserveDecision(outcome string) {
	m.RepriceDecisions.WithLabelValues(outcome).Inc()
}

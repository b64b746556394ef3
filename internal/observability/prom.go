package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "orderhub"

var (
	httpBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}
	dbBuckets   = []float64{0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.35, 0.5, 1, 2, 5}
)

// Prom holds every collector the service exports. The Observe helpers are
// safe on a nil *Prom so wiring metrics stays optional.
type Prom struct {
	RequestsTotal    *prometheus.CounterVec
	RequestsDuration *prometheus.HistogramVec
	InFlight         *prometheus.GaugeVec

	DbQueryDuration *prometheus.HistogramVec
	DbErrorsTotal   *prometheus.CounterVec

	TokensIssued  *prometheus.CounterVec
	AuthDecisions *prometheus.CounterVec
	RateLimited   *prometheus.CounterVec

	SweptTokens  prometheus.Counter
	SweepResults *prometheus.CounterVec
}

func NewProm(reg prometheus.Registerer) *Prom {
	f := promauto.With(reg)

	counter := func(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
		return f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: subsystem, Name: name, Help: help,
		}, labels)
	}
	histogram := func(subsystem, name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
		return f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace, Subsystem: subsystem, Name: name, Help: help, Buckets: buckets,
		}, labels)
	}

	return &Prom{
		RequestsTotal:    counter("", "http_requests_total", "Total HTTP requests processed.", "method", "route", "status"),
		RequestsDuration: histogram("", "http_request_duration_seconds", "HTTP request latency.", httpBuckets, "method", "route", "status"),
		InFlight: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "http_in_flight_requests",
			Help:      "HTTP requests currently being served.",
		}, []string{"method", "route"}),

		DbQueryDuration: histogram("db", "query_duration_seconds", "Store operation latency by logical op.", dbBuckets, "op", "status"),
		DbErrorsTotal:   counter("db", "errors_total", "Store errors by logical op and class.", "op", "class"),

		TokensIssued:  counter("auth", "tokens_issued_total", "Tokens minted and persisted, by type.", "type"),
		AuthDecisions: counter("auth", "gate_decisions_total", "Gate outcomes: allowed, unauthenticated, forbidden or error.", "outcome"),
		RateLimited:   counter("auth", "rate_limited_total", "Requests rejected by the rate limiter, by route.", "route"),

		SweptTokens: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "sweeper",
			Name:      "tokens_deleted_total",
			Help:      "Expired token rows removed by the sweeper.",
		}),
		SweepResults: counter("sweeper", "runs_total", "Sweep runs by result.", "result"),
	}
}

// GinHandleMiddleware records request count, latency and concurrency per
// route template. Unrouted requests share the "unmatched" label.
func (p *Prom) GinHandleMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		method := ctx.Request.Method

		route := ctx.FullPath()
		if route == "" {
			route = "unmatched"
		}

		inFlight := p.InFlight.WithLabelValues(method, route)
		inFlight.Inc()
		defer inFlight.Dec()

		ctx.Next()

		status := strconv.Itoa(ctx.Writer.Status())
		p.RequestsTotal.WithLabelValues(method, route, status).Inc()
		p.RequestsDuration.WithLabelValues(method, route, status).Observe(time.Since(start).Seconds())
	}
}

func (p *Prom) ObserveDecision(outcome string) {
	if p == nil {
		return
	}
	p.AuthDecisions.WithLabelValues(outcome).Inc()
}

func (p *Prom) ObserveIssued(tokenType string) {
	if p == nil {
		return
	}
	p.TokensIssued.WithLabelValues(tokenType).Inc()
}

func (p *Prom) ObserveRateLimited(route string) {
	if p == nil {
		return
	}
	p.RateLimited.WithLabelValues(route).Inc()
}

// ObserveSweep records one sweeper run.
func (p *Prom) ObserveSweep(deleted int64, err error) {
	if p == nil {
		return
	}
	if err != nil {
		p.SweepResults.WithLabelValues("error").Inc()
		return
	}
	p.SweepResults.WithLabelValues("ok").Inc()
	p.SweptTokens.Add(float64(deleted))
}

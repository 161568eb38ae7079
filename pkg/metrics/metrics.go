package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the ticket pipeline and HTTP layer report into.
type Recorder interface {
	RecordIssuance(ok bool, d time.Duration)
	RecordDispatch(outcome string)
	RecordGate(allowed bool)
	RecordPayment(provider, status string)
	RecordHTTP(method, route string, status int, d time.Duration)
}

type Collector struct {
	issuance     *prometheus.CounterVec
	issueLatency prometheus.Histogram
	dispatch     *prometheus.CounterVec
	gate         *prometheus.CounterVec
	payments     *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		issuance: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tickets_qr_issuance_total",
			Help: "QR artifacts issued, by result",
		}, []string{"result"}),
		issueLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tickets_qr_issuance_seconds",
			Help:    "Time to encode and store a QR artifact",
			Buckets: prometheus.DefBuckets,
		}),
		dispatch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tickets_dispatch_total",
			Help: "Ticket emails dispatched, by outcome",
		}, []string{"outcome"}),
		gate: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tickets_session_gate_total",
			Help: "Session gate decisions",
		}, []string{"decision"}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tickets_payments_total",
			Help: "Payment state transitions",
		}, []string{"provider", "status"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tickets_http_requests_total",
			Help: "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tickets_http_request_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		c.issuance,
		c.issueLatency,
		c.dispatch,
		c.gate,
		c.payments,
		c.httpRequests,
		c.httpLatency,
	)
	return c
}

func (c *Collector) RecordIssuance(ok bool, d time.Duration) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	c.issuance.WithLabelValues(result).Inc()
	c.issueLatency.Observe(d.Seconds())
}

func (c *Collector) RecordDispatch(outcome string) {
	c.dispatch.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordGate(allowed bool) {
	decision := "allow"
	if !allowed {
		decision = "deny"
	}
	c.gate.WithLabelValues(decision).Inc()
}

func (c *Collector) RecordPayment(provider, status string) {
	c.payments.WithLabelValues(provider, status).Inc()
}

func (c *Collector) RecordHTTP(method, route string, status int, d time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpLatency.WithLabelValues(method, route).Observe(d.Seconds())
}

func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordIssuance(bool, time.Duration)            {}
func (Nop) RecordDispatch(string)                         {}
func (Nop) RecordGate(bool)                               {}
func (Nop) RecordPayment(string, string)                  {}
func (Nop) RecordHTTP(string, string, int, time.Duration) {}

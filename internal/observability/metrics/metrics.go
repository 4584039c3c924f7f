package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// NewRegistry builds the process metrics registry.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// HTTPMetrics records request-level instruments.
type HTTPMetrics struct {
	requestDuration *prometheus.HistogramVec
	requestsTotal   *prometheus.CounterVec
}

// NewHTTPMetrics registers HTTP instruments on the registry.
func NewHTTPMetrics(reg *prometheus.Registry) *HTTPMetrics {
	m := &HTTPMetrics{
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chainline_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chainline_http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(m.requestDuration, m.requestsTotal)
	return m
}

// GinMiddleware observes request duration and counts per route.
func GinMiddleware(m *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if m == nil {
			return
		}
		route := c.FullPath()
		if strings.TrimSpace(route) == "" {
			route = "unknown"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.requestDuration.WithLabelValues(c.Request.Method, route, status).
			Observe(time.Since(start).Seconds())
		m.requestsTotal.WithLabelValues(c.Request.Method, route, status).Inc()
	}
}

// Metrics exposes application-level instruments.
type Metrics struct {
	serialsAllocated  prometheus.Counter
	invoicesApproved  prometheus.Counter
	unitsSynced       *prometheus.CounterVec
	webhooksProcessed *prometheus.CounterVec
}

// New registers the domain instruments on the registry.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		serialsAllocated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chainline_serials_allocated_total",
			Help: "Serial numbers handed out by the allocator.",
		}),
		invoicesApproved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chainline_invoices_approved_total",
			Help: "Supplier invoices approved into inventory.",
		}),
		unitsSynced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chainline_units_synced_total",
			Help: "Inventory unit sync attempts by result.",
		}, []string{"result"}),
		webhooksProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chainline_webhooks_processed_total",
			Help: "Shopify webhooks by processing status.",
		}, []string{"status"}),
	}
	reg.MustRegister(m.serialsAllocated, m.invoicesApproved, m.unitsSynced, m.webhooksProcessed)
	return m
}

// RecordSerialsAllocated adds to the allocated serial count.
func (m *Metrics) RecordSerialsAllocated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.serialsAllocated.Add(float64(n))
}

// RecordInvoiceApproved increments the approved invoice count.
func (m *Metrics) RecordInvoiceApproved() {
	if m == nil {
		return
	}
	m.invoicesApproved.Inc()
}

// RecordUnitSync increments the sync attempt count for a result.
func (m *Metrics) RecordUnitSync(result string) {
	if m == nil {
		return
	}
	m.unitsSynced.WithLabelValues(strings.TrimSpace(result)).Inc()
}

// RecordWebhook increments the webhook count for a processing status.
func (m *Metrics) RecordWebhook(status string) {
	if m == nil {
		return
	}
	m.webhooksProcessed.WithLabelValues(strings.TrimSpace(status)).Inc()
}

package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors for the API surface and the
// reconciliation pipeline.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal      *prometheus.CounterVec
	httpRequestDuration    *prometheus.HistogramVec
	upstreamFetchesTotal   *prometheus.CounterVec
	upstreamFetchDuration  *prometheus.HistogramVec
	staleResultsDiscarded  *prometheus.CounterVec
	overridesRecordedTotal *prometheus.CounterVec
	writebackFailuresTotal prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hrp_console",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "hrp_console",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		upstreamFetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hrp_console",
				Name:      "upstream_fetches_total",
				Help:      "Total number of upstream page fetches by record kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		upstreamFetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "hrp_console",
				Name:      "upstream_fetch_duration_seconds",
				Help:      "Upstream page fetch duration in seconds grouped by record kind.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"kind"},
		),
		staleResultsDiscarded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hrp_console",
				Name:      "stale_results_discarded_total",
				Help:      "Late-resolving fetch results discarded because a newer query superseded them.",
			},
			[]string{"kind"},
		),
		overridesRecordedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hrp_console",
				Name:      "overrides_recorded_total",
				Help:      "Operator status overrides recorded, grouped by decision.",
			},
			[]string{"decision"},
		),
		writebackFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "hrp_console",
				Name:      "writeback_failures_total",
				Help:      "Best-effort status write-backs that failed; the local override stands regardless.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.upstreamFetchesTotal,
		m.upstreamFetchDuration,
		m.staleResultsDiscarded,
		m.overridesRecordedTotal,
		m.writebackFailuresTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

// ObserveUpstreamFetch records one gateway call. Outcome is "success" or the
// lowercase error kind.
func (m *Metrics) ObserveUpstreamFetch(kind string, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	kindLabel := normalizeLabel(kind)
	m.upstreamFetchesTotal.WithLabelValues(kindLabel, normalizeLabel(outcome)).Inc()
	m.upstreamFetchDuration.WithLabelValues(kindLabel).Observe(duration.Seconds())
}

func (m *Metrics) IncStaleResultDiscarded(kind string) {
	if m == nil {
		return
	}
	m.staleResultsDiscarded.WithLabelValues(normalizeLabel(kind)).Inc()
}

func (m *Metrics) IncOverrideRecorded(decision string) {
	if m == nil {
		return
	}
	m.overridesRecordedTotal.WithLabelValues(normalizeLabel(decision)).Inc()
}

func (m *Metrics) IncWritebackFailure() {
	if m == nil {
		return
	}
	m.writebackFailuresTotal.Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

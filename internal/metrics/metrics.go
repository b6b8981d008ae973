// Package metrics exposes the cache's request-level counters and timings as
// Prometheus metrics, grounded on original_source/src/content_cache/metrics.py's
// CacheMetrics/MetricsCollector: the same counters (requests, hits, misses,
// bloom-filter short-circuits, response-time min/max/avg, per-type error
// counts), re-expressed as a prometheus.Registry built with the teacher's
// own client_golang stack instead of the teacher's HTTP-server-fronted
// Collector — this cache is an embeddable library, so it hands back
// exposition-format text for the embedding application to serve however it
// likes, rather than binding a port itself.
package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	cerrors "github.com/objectfs/extractcache/pkg/errors"
	"github.com/objectfs/extractcache/pkg/types"
)

const component = "metrics"

// Metrics tracks the cache's request counters, response-time distribution,
// and per-type error counts, and renders them as Prometheus exposition text.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal  prometheus.Counter
	hitsTotal      prometheus.Counter
	hitRate        prometheus.Gauge
	responseTime   prometheus.Summary
	memoryUsage    prometheus.Gauge
	diskUsage      prometheus.Gauge
	errorsTotal    *prometheus.CounterVec

	mu              sync.Mutex
	totalRequests   int64
	cacheHits       int64
	cacheMisses     int64
	bloomFilterHits int64
	minResponseTime float64
	maxResponseTime float64
	sumResponseTime float64
	errors          map[string]int64
}

// New builds a Metrics instance with a private registry so that multiple
// cache instances in the same process don't collide on metric names.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_requests_total",
			Help: "Total number of content-cache requests.",
		}),
		hitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of content-cache requests served from cache.",
		}),
		hitRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cache_hit_rate",
			Help: "Fraction of requests served from cache, updated on every request.",
		}),
		responseTime: prometheus.NewSummary(prometheus.SummaryOpts{
			Name: "cache_response_time_seconds",
			Help: "Distribution of get_content response times in seconds.",
		}),
		memoryUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cache_memory_usage_bytes",
			Help: "Approximate bytes held by the in-memory LRU tier.",
		}),
		diskUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cache_disk_usage_bytes",
			Help: "Bytes held by the persistent metadata store and blob store.",
		}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_errors_total",
			Help: "Total number of errors, labeled by error kind.",
		}, []string{"type"}),
		errors: make(map[string]int64),
	}

	registry.MustRegister(
		m.requestsTotal, m.hitsTotal, m.hitRate, m.responseTime,
		m.memoryUsage, m.diskUsage, m.errorsTotal,
	)
	return m
}

// RecordRequest records one get_content call's outcome and latency.
func (m *Metrics) RecordRequest(hit bool, durationSeconds float64) {
	m.mu.Lock()
	m.totalRequests++
	if hit {
		m.cacheHits++
	} else {
		m.cacheMisses++
	}
	if m.totalRequests == 1 || durationSeconds < m.minResponseTime {
		m.minResponseTime = durationSeconds
	}
	if durationSeconds > m.maxResponseTime {
		m.maxResponseTime = durationSeconds
	}
	m.sumResponseTime += durationSeconds
	hits, total := m.cacheHits, m.totalRequests
	m.mu.Unlock()

	m.requestsTotal.Inc()
	if hit {
		m.hitsTotal.Inc()
	}
	m.responseTime.Observe(durationSeconds)
	m.hitRate.Set(float64(hits) / float64(total))
}

// RecordBloomFilterHit records a request the negative-existence filter
// short-circuited before any store lookup. This counter is reported through
// Snapshot only — it has no Prometheus series of its own, since it
// describes an internal fast path rather than a request outcome.
func (m *Metrics) RecordBloomFilterHit() {
	m.mu.Lock()
	m.bloomFilterHits++
	m.mu.Unlock()
}

// RecordError records an error of the given kind (e.g. a cerrors.Kind
// string) against both the internal counters and the Prometheus series.
func (m *Metrics) RecordError(kind string) {
	m.mu.Lock()
	m.errors[kind]++
	m.mu.Unlock()
	m.errorsTotal.WithLabelValues(kind).Inc()
}

// SetMemoryUsage updates the in-memory tier's reported byte usage.
func (m *Metrics) SetMemoryUsage(bytes int64) {
	m.memoryUsage.Set(float64(bytes))
}

// SetDiskUsage updates the persistent tier's reported byte usage.
func (m *Metrics) SetDiskUsage(bytes int64) {
	m.diskUsage.Set(float64(bytes))
}

// Snapshot returns the request-level portion of types.CacheStatistics. The
// orchestrator fills in the persistent-store and duplicate-group fields
// that only it can compute.
func (m *Metrics) Snapshot() types.CacheStatistics {
	m.mu.Lock()
	defer m.mu.Unlock()

	var hitRate, avg float64
	if m.totalRequests > 0 {
		hitRate = float64(m.cacheHits) / float64(m.totalRequests)
		avg = m.sumResponseTime / float64(m.totalRequests)
	}

	errs := make(map[string]int64, len(m.errors))
	for k, v := range m.errors {
		errs[k] = v
	}

	return types.CacheStatistics{
		TotalRequests:     m.totalRequests,
		CacheHits:         m.cacheHits,
		CacheMisses:       m.cacheMisses,
		BloomFilterHits:   m.bloomFilterHits,
		HitRate:           hitRate,
		AvgResponseTimeMs: avg * 1000,
		MinResponseTimeMs: m.minResponseTime * 1000,
		MaxResponseTimeMs: m.maxResponseTime * 1000,
		Errors:            errs,
	}
}

// PrometheusText renders the registry in Prometheus text exposition format.
func (m *Metrics) PrometheusText() (string, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return "", cerrors.Storage(component, "prometheus_text", "failed to gather metrics", err)
	}

	var sb strings.Builder
	for _, family := range families {
		if _, err := expfmt.MetricFamilyToText(&sb, family); err != nil {
			return "", cerrors.Storage(component, "prometheus_text", "failed to encode metric family", err)
		}
	}
	return sb.String(), nil
}

// Timer measures one in-flight request, grounded on metrics.py's
// MetricsCollector context manager. Go has no context-manager protocol, so
// the caller calls StartTimer and then ObserveHit or ObserveMiss on the
// return path that applies.
type Timer struct {
	start time.Time
	m     *Metrics
}

// StartTimer begins timing a request.
func (m *Metrics) StartTimer() *Timer {
	return &Timer{start: time.Now(), m: m}
}

// ObserveHit records the elapsed time as a cache hit.
func (t *Timer) ObserveHit() {
	t.m.RecordRequest(true, time.Since(t.start).Seconds())
}

// ObserveMiss records the elapsed time as a cache miss.
func (t *Timer) ObserveMiss() {
	t.m.RecordRequest(false, time.Since(t.start).Seconds())
}

package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flexsched/engine/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry           *prometheus.Registry
	handler            http.Handler
	requestDuration    *prometheus.HistogramVec
	requestTotal       *prometheus.CounterVec
	evaluationDuration *prometheus.HistogramVec
	evaluationTotal    *prometheus.CounterVec
	resolutionTotal    *prometheus.CounterVec
	cacheLatency       prometheus.Observer
	cacheHitRatio      prometheus.Gauge
	cacheHits          prometheus.Counter
	cacheMisses        prometheus.Counter

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	evalCount            uint64
	evalFailureCount     uint64
	evalDurationTotal    uint64
	resolutionsProposed  uint64
	resolutionsRejected  uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	evaluationDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "constraint_evaluation_duration_seconds",
		Help:    "Duration of individual constraint evaluations",
		Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2},
	}, []string{"constraint_type"})

	evaluationTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "constraint_evaluations_total",
		Help: "Total constraint evaluations by outcome",
	}, []string{"constraint_type", "outcome"})

	resolutionTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "conflict_resolutions_total",
		Help: "Conflict resolution attempts by conflict type, strategy and outcome",
	}, []string{"conflict_type", "strategy", "outcome"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, evaluationDuration, evaluationTotal,
		resolutionTotal, cacheLatency, cacheHitRatio, cacheHits, cacheMisses, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:           registry,
		handler:            handler,
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		evaluationDuration: evaluationDuration,
		evaluationTotal:    evaluationTotal,
		resolutionTotal:    resolutionTotal,
		cacheLatency:       cacheLatency,
		cacheHitRatio:      cacheHitRatio,
		cacheHits:          cacheHits,
		cacheMisses:        cacheMisses,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// ObserveConstraintEvaluation records one constraint evaluation outcome.
func (m *MetricsService) ObserveConstraintEvaluation(constraintType string, duration time.Duration, ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
		atomic.AddUint64(&m.evalFailureCount, 1)
	}
	m.evaluationDuration.WithLabelValues(constraintType).Observe(duration.Seconds())
	m.evaluationTotal.WithLabelValues(constraintType, outcome).Inc()
	atomic.AddUint64(&m.evalCount, 1)
	atomic.AddUint64(&m.evalDurationTotal, uint64(duration.Nanoseconds()))
}

// ObserveResolution records one conflict resolution attempt. The strategy is
// empty when no candidate produced a valid resolution.
func (m *MetricsService) ObserveResolution(conflictType, strategy string, accepted bool) {
	if m == nil {
		return
	}
	outcome := "accepted"
	if accepted {
		atomic.AddUint64(&m.resolutionsProposed, 1)
	} else {
		outcome = "rejected"
		strategy = "none"
		atomic.AddUint64(&m.resolutionsRejected, 1)
	}
	m.resolutionTotal.WithLabelValues(conflictType, strategy, outcome).Inc()
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	total := hits + misses
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// Snapshot returns aggregated metrics suitable for the metrics endpoint.
func (m *MetricsService) Snapshot() models.EngineSystemMetrics {
	if m == nil {
		return models.EngineSystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)
	evals := atomic.LoadUint64(&m.evalCount)
	evalDuration := atomic.LoadUint64(&m.evalDurationTotal)

	var cacheRatio float64
	totalLookups := hits + misses
	if totalLookups > 0 {
		cacheRatio = float64(hits) / float64(totalLookups)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	var avgEvalMs float64
	if evals > 0 {
		avgEvalMs = float64(evalDuration) / float64(evals) / float64(time.Millisecond)
	}

	return models.EngineSystemMetrics{
		EvaluationsTotal:         evals,
		EvaluationFailures:       atomic.LoadUint64(&m.evalFailureCount),
		AverageEvaluationMs:      avgEvalMs,
		ResolutionsProposed:      atomic.LoadUint64(&m.resolutionsProposed),
		ResolutionsRejected:      atomic.LoadUint64(&m.resolutionsRejected),
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}

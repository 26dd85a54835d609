package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP surface
// and the issuance pipeline.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	txSubmitted        prometheus.Counter
	txFailed           prometheus.Counter
	nonceResyncs       prometheus.Counter
	batchesCompleted   *prometheus.CounterVec
	certificatesIssued prometheus.Counter
	phaseDuration      *prometheus.HistogramVec
	cacheHits          prometheus.Counter
	cacheMisses        prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors on an isolated registry.
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

	txSubmitted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chain_transactions_submitted_total",
		Help: "Transactions accepted by the node",
	})

	txFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chain_transactions_failed_total",
		Help: "Transactions that failed before acceptance, reverted or timed out",
	})

	nonceResyncs := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chain_nonce_resyncs_total",
		Help: "Nonce cursor resynchronizations after pre-acceptance failures",
	})

	batchesCompleted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "batch_jobs_total",
		Help: "Batch jobs by terminal status",
	}, []string{"status"})

	certificatesIssued := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "certificates_issued_total",
		Help: "Certificates successfully anchored on chain",
	})

	phaseDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "batch_phase_duration_seconds",
		Help:    "Duration of batch pipeline phases",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
	}, []string{"phase"})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "verification_cache_hits_total",
		Help: "Verification lookups served from cache",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "verification_cache_misses_total",
		Help: "Verification lookups that reached the chain",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, txSubmitted, txFailed, nonceResyncs,
		batchesCompleted, certificatesIssued, phaseDuration, cacheHits, cacheMisses, goroutines)

	return &MetricsService{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		txSubmitted:        txSubmitted,
		txFailed:           txFailed,
		nonceResyncs:       nonceResyncs,
		batchesCompleted:   batchesCompleted,
		certificatesIssued: certificatesIssued,
		phaseDuration:      phaseDuration,
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

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordTransaction counts one chain submission outcome.
func (m *MetricsService) RecordTransaction(accepted bool) {
	if m == nil {
		return
	}
	if accepted {
		m.txSubmitted.Inc()
	} else {
		m.txFailed.Inc()
	}
}

// RecordNonceResync counts one cursor resynchronization.
func (m *MetricsService) RecordNonceResync() {
	if m == nil {
		return
	}
	m.nonceResyncs.Inc()
}

// RecordBatchCompleted counts one terminal batch job.
func (m *MetricsService) RecordBatchCompleted(status string) {
	if m == nil {
		return
	}
	m.batchesCompleted.WithLabelValues(status).Inc()
}

// RecordCertificateIssued counts one certificate anchored on chain.
func (m *MetricsService) RecordCertificateIssued() {
	if m == nil {
		return
	}
	m.certificatesIssued.Inc()
}

// ObservePhase records the duration of one pipeline phase.
func (m *MetricsService) ObservePhase(phase string, duration time.Duration) {
	if m == nil {
		return
	}
	m.phaseDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

// RecordCacheLookup counts a verification cache hit or miss.
func (m *MetricsService) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

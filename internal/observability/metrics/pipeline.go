package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ayulabs/ayurag/internal/core/domain"
)

type PipelineMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	runsTotal         *prometheus.CounterVec
	runDuration       *prometheus.HistogramVec
	offTopicTotal     prometheus.Counter
	stageDuration     *prometheus.HistogramVec
	stageFailedTotal  *prometheus.CounterVec
	retrievedDocs     *prometheus.HistogramVec
	degradedRunsTotal prometheus.Counter
}

func NewPipelineMetrics(service string) *PipelineMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ayurag",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ayurag",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ayurag",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	runsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ayurag",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total pipeline runs by outcome.",
		},
		[]string{"service", "outcome"},
	)
	runDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ayurag",
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "End-to-end pipeline run duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	offTopicTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ayurag",
			Subsystem: "pipeline",
			Name:      "off_topic_total",
			Help:      "Total runs refused by the domain gate.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ayurag",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Per-stage duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "stage"},
	)
	stageFailedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ayurag",
			Subsystem: "pipeline",
			Name:      "stage_failed_total",
			Help:      "Total terminal stage failures.",
		},
		[]string{"service", "stage"},
	)
	retrievedDocs := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ayurag",
			Subsystem: "pipeline",
			Name:      "retrieved_documents",
			Help:      "Distribution of retrieved documents per search source.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service", "source"},
	)
	degradedRunsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ayurag",
			Subsystem: "pipeline",
			Name:      "degraded_runs_total",
			Help:      "Total runs that completed with no retrieved context.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		runsTotal,
		runDuration,
		offTopicTotal,
		stageDuration,
		stageFailedTotal,
		retrievedDocs,
		degradedRunsTotal,
	)

	return &PipelineMetrics{
		registry:          registry,
		requestTotal:      requestTotal,
		requestDuration:   requestDuration,
		requestInFlight:   requestInFlight,
		runsTotal:         runsTotal,
		runDuration:       runDuration,
		offTopicTotal:     offTopicTotal,
		stageDuration:     stageDuration,
		stageFailedTotal:  stageFailedTotal,
		retrievedDocs:     retrievedDocs,
		degradedRunsTotal: degradedRunsTotal,
	}
}

func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StageObserver turns terminal progress events into stage metrics. It is
// composed with the caller's observer per run.
func (m *PipelineMetrics) StageObserver(service string) domain.ProgressObserver {
	return func(event domain.ProgressEvent) {
		switch event.Status {
		case domain.StepCompleted:
			m.stageDuration.WithLabelValues(service, event.Name).Observe(float64(event.DurationMs) / 1000.0)
			if hits, ok := event.Metadata["vector_hits"].(int); ok {
				m.RecordRetrieved(service, "vector", hits)
			}
			if hits, ok := event.Metadata["keyword_hits"].(int); ok {
				m.RecordRetrieved(service, "keyword", hits)
			}
		case domain.StepFailed:
			m.stageDuration.WithLabelValues(service, event.Name).Observe(float64(event.DurationMs) / 1000.0)
			m.stageFailedTotal.WithLabelValues(service, event.Name).Inc()
		}
	}
}

func (m *PipelineMetrics) RecordRun(service string, result *domain.PipelineResult, err error) {
	switch {
	case err != nil:
		m.runsTotal.WithLabelValues(service, "error").Inc()
		return
	case !result.Metadata.OnTopic:
		m.runsTotal.WithLabelValues(service, "off_topic").Inc()
		m.offTopicTotal.Inc()
	default:
		m.runsTotal.WithLabelValues(service, "answered").Inc()
		if len(result.Metadata.ContextSources) == 0 {
			m.degradedRunsTotal.Inc()
		}
	}
	m.runDuration.WithLabelValues(service).Observe(float64(result.TotalDurationMs) / 1000.0)
}

func (m *PipelineMetrics) RecordRetrieved(service, source string, count int) {
	m.retrievedDocs.WithLabelValues(service, source).Observe(float64(count))
}

func (m *PipelineMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			r.URL.Path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

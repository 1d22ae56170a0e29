package httpadapter

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ayulabs/ayurag/internal/core/domain"
	"github.com/ayulabs/ayurag/internal/core/ports"
	"github.com/ayulabs/ayurag/internal/observability/metrics"
)

type Router struct {
	pipeline       ports.AnswerPipeline
	publisher      ports.ProgressPublisher
	metrics        *metrics.PipelineMetrics
	service        string
	defaultMode    domain.Mode
	requestTimeout time.Duration
	maxInFlight    int
}

type RouterOptions struct {
	Service        string
	DefaultMode    domain.Mode
	RequestTimeout time.Duration
	MaxInFlight    int
	// Publisher is optional; when set, progress events are also fanned out
	// over it keyed by run id.
	Publisher ports.ProgressPublisher
}

func NewRouter(pipeline ports.AnswerPipeline, pipelineMetrics *metrics.PipelineMetrics, options RouterOptions) *Router {
	service := options.Service
	if service == "" {
		service = "api"
	}
	requestTimeout := options.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 120 * time.Second
	}
	return &Router{
		pipeline:       pipeline,
		publisher:      options.Publisher,
		metrics:        pipelineMetrics,
		service:        service,
		defaultMode:    domain.NormalizeMode(string(options.DefaultMode)),
		requestTimeout: requestTimeout,
		maxInFlight:    options.MaxInFlight,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/answer", rt.answer)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.maxInFlight, 50*time.Millisecond)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.service, handler)
	}
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type answerRequest struct {
	Query   string               `json:"query"`
	History []domain.ChatMessage `json:"history"`
	Mode    string               `json:"mode"`
	Stream  bool                 `json:"stream"`
}

func (rt *Router) answer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}

	mode := rt.defaultMode
	if strings.TrimSpace(req.Mode) != "" {
		mode = domain.NormalizeMode(req.Mode)
	}
	runID := uuid.NewString()
	pipelineReq := domain.PipelineRequest{
		Query:   req.Query,
		History: req.History,
		Mode:    mode,
		RunID:   runID,
	}

	ctx, cancel := context.WithTimeout(r.Context(), rt.requestTimeout)
	defer cancel()

	observers := make([]domain.ProgressObserver, 0, 3)
	if rt.metrics != nil {
		observers = append(observers, rt.metrics.StageObserver(rt.service))
	}
	if rt.publisher != nil {
		publisher := rt.publisher
		observers = append(observers, func(event domain.ProgressEvent) {
			_ = publisher.Publish(ctx, runID, event)
		})
	}

	if req.Stream {
		rt.answerStream(ctx, w, pipelineReq, observers)
		return
	}

	result, err := rt.pipeline.Execute(ctx, pipelineReq, composeObservers(observers))
	if rt.metrics != nil {
		rt.metrics.RecordRun(rt.service, result, err)
	}
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// answerStream runs the pipeline with a live SSE observer: one progress frame
// per stage transition, a result frame, then the done sentinel.
func (rt *Router) answerStream(ctx context.Context, w http.ResponseWriter, req domain.PipelineRequest, observers []domain.ProgressObserver) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming is not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	observers = append(observers, func(event domain.ProgressEvent) {
		writeSSEFrame(w, flusher, "progress", event)
	})

	result, err := rt.pipeline.Execute(ctx, req, composeObservers(observers))
	if rt.metrics != nil {
		rt.metrics.RecordRun(rt.service, result, err)
	}
	if err != nil {
		writeSSEFrame(w, flusher, "error", map[string]string{"error": err.Error()})
		return
	}
	writeSSEFrame(w, flusher, "result", result)
	writeSSEDone(w, flusher)
}

func composeObservers(observers []domain.ProgressObserver) domain.ProgressObserver {
	if len(observers) == 0 {
		return nil
	}
	return func(event domain.ProgressEvent) {
		for _, observe := range observers {
			observe(event)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

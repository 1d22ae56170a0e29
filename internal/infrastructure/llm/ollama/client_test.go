package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ayulabs/ayurag/internal/core/domain"
	"github.com/ayulabs/ayurag/internal/infrastructure/resilience"
)

func TestGeneratorSendsPromptAndModel(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"response": "  Vata is the dosha of movement.  "})
	}))
	defer server.Close()

	generator := NewGenerator(New(server.URL, "llama3.1:8b", "nomic-embed-text"))
	got, err := generator.Generate(context.Background(), "what is vata?")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got != "Vata is the dosha of movement." {
		t.Fatalf("response must be trimmed, got %q", got)
	}
	if captured["model"] != "llama3.1:8b" || captured["prompt"] != "what is vata?" {
		t.Fatalf("unexpected request payload: %v", captured)
	}
	if captured["stream"] != false {
		t.Fatalf("streaming must be disabled, got %v", captured["stream"])
	}
}

func TestGenerateJSONRequestsJSONFormat(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_ = json.NewEncoder(w).Encode(map[string]string{"response": `{"herbs":[]}`})
	}))
	defer server.Close()

	generator := NewGenerator(New(server.URL, "llama3.1:8b", "nomic-embed-text"))
	if _, err := generator.GenerateJSON(context.Background(), "extract entities"); err != nil {
		t.Fatalf("generate json: %v", err)
	}
	if captured["format"] != "json" {
		t.Fatalf("expected json format flag, got %v", captured["format"])
	}
}

func TestEmbedderReturnsFirstEmbedding(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["model"] != "nomic-embed-text" {
			t.Fatalf("unexpected embed model %v", req["model"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{{0.25, -0.5}}})
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, "llama3.1:8b", "nomic-embed-text"))
	vector, err := embedder.EmbedQuery(context.Background(), "triphala")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vector) != 2 || vector[0] != 0.25 {
		t.Fatalf("unexpected vector %v", vector)
	}
}

func TestEmbedderRejectsEmptyEmbeddingSet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{}})
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, "llama3.1:8b", "nomic-embed-text"))
	if _, err := embedder.EmbedQuery(context.Background(), "triphala"); err == nil {
		t.Fatalf("expected error on empty embedding set")
	}
}

func TestGeneratorSurfacesHTTPErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model not found"}`))
	}))
	defer server.Close()

	generator := NewGenerator(New(server.URL, "missing-model", "nomic-embed-text"))
	_, err := generator.Generate(context.Background(), "hello")
	if err == nil {
		t.Fatalf("expected error for 404 response")
	}
	if !strings.Contains(err.Error(), "model not found") {
		t.Fatalf("error must carry the response body: %v", err)
	}

	var statusErr *HTTPStatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected typed status error, got %v", err)
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("404 is not a temporary failure")
	}
}

func TestRetryableStatusIsMarkedTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	generator := NewGenerator(New(server.URL, "llama3.1:8b", "nomic-embed-text"))
	_, err := generator.Generate(context.Background(), "hello")
	if err == nil {
		t.Fatalf("expected error for 503 response")
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("503 must surface as a temporary failure: %v", err)
	}
}

func TestClassifyTransportError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want resilience.Classification
	}{
		{"nil", nil, resilience.Classification{}},
		{"cancelled", context.Canceled, resilience.Classification{}},
		{"retryable status", &HTTPStatusError{StatusCode: http.StatusBadGateway}, resilience.Classification{Retryable: true, CountsAsFailure: true}},
		{"client error", &HTTPStatusError{StatusCode: http.StatusBadRequest}, resilience.Classification{}},
		{"unknown", errors.New("boom"), resilience.Classification{CountsAsFailure: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classifyTransportError(tc.err); got != tc.want {
				t.Fatalf("classifyTransportError(%v) = %+v, want %+v", tc.err, got, tc.want)
			}
		})
	}
}

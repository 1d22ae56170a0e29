package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ayulabs/ayurag/internal/core/domain"
)

func TestSearchDecodesScoredPoints(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/ayur_knowledge/points/query" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{
			"result": {
				"points": [
					{"id": "doc-1", "score": 0.91, "payload": {"title": "Ashwagandha", "category": "herb", "text": "A grounding rasayana."}},
					{"id": 42, "score": 0.55, "payload": {"text": "Numeric id entry."}}
				]
			}
		}`))
	}))
	defer server.Close()

	client := New(server.URL, "ayur_knowledge")
	docs, err := client.Search(context.Background(), []float32{0.1, 0.2}, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	first := docs[0]
	if first.ID != "doc-1" || first.Score != 0.91 || first.Source != domain.SourceVector {
		t.Fatalf("unexpected first document: %+v", first)
	}
	if first.Title != "Ashwagandha" || first.Category != "herb" || first.Text != "A grounding rasayana." {
		t.Fatalf("payload not mapped: %+v", first)
	}
	if docs[1].ID != "42" {
		t.Fatalf("numeric point ids must be stringified, got %q", docs[1].ID)
	}

	if captured["with_payload"] != true {
		t.Fatalf("payload must be requested, got %v", captured)
	}
	if captured["limit"] != float64(5) {
		t.Fatalf("unexpected limit %v", captured["limit"])
	}
}

func TestSearchZeroMatchesIsEmptyNotError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"result": {"points": []}}`))
	}))
	defer server.Close()

	client := New(server.URL, "ayur_knowledge")
	docs, err := client.Search(context.Background(), []float32{0.1}, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("expected empty result, got %v", docs)
	}
}

func TestSearchEmptyVectorSkipsRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Fatalf("no request expected for an empty vector")
	}))
	defer server.Close()

	client := New(server.URL, "ayur_knowledge")
	docs, err := client.Search(context.Background(), nil, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if docs != nil {
		t.Fatalf("expected nil result, got %v", docs)
	}
}

func TestSearchSurfacesErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"status": {"error": "collection not found"}}`))
	}))
	defer server.Close()

	client := New(server.URL, "missing")
	if _, err := client.Search(context.Background(), []float32{0.1}, 5); err == nil {
		t.Fatalf("expected error for 500 response")
	}
}

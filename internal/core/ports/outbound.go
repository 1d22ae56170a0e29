package ports

import (
	"context"

	"github.com/ayulabs/ayurag/internal/core/domain"
)

// TextGenerator is the text completion capability. Content-policy refusals
// come back as apologetic text, not errors; quota/auth/network failures are
// returned as errors.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	GenerateJSON(ctx context.Context, prompt string) (string, error)
}

// Embedder builds a fixed-dimension dense vector for query text.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher queries the nearest-neighbor index. Zero matches is an empty
// slice, not an error.
type VectorSearcher interface {
	Search(ctx context.Context, vector []float32, topK int) ([]domain.RetrievedDocument, error)
}

// KeywordSearcher performs full-text search across topical partitions.
// Implementations swallow infrastructure errors and return an empty slice:
// keyword-store unavailability degrades grounding, not availability.
type KeywordSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]domain.RetrievedDocument, error)
}

// ProgressPublisher forwards stage events to an external transport for live
// progress UX.
type ProgressPublisher interface {
	Publish(ctx context.Context, runID string, event domain.ProgressEvent) error
}

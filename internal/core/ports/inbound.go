package ports

import (
	"context"

	"github.com/ayulabs/ayurag/internal/core/domain"
)

// AnswerPipeline is the inbound contract for one grounded answer run.
// onProgress may be nil.
type AnswerPipeline interface {
	Execute(ctx context.Context, req domain.PipelineRequest, onProgress domain.ProgressObserver) (*domain.PipelineResult, error)
}

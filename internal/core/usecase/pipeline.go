package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ayulabs/ayurag/internal/core/domain"
	"github.com/ayulabs/ayurag/internal/core/ports"
)

const (
	stageDomainCheck        = "domain_check"
	stageQueryRewriting     = "query_rewriting"
	stageEntityExtraction   = "entity_extraction"
	stageEmbedding          = "embedding"
	stageKnowledgeSearch    = "knowledge_search"
	stageContextRanking     = "context_ranking"
	stageContextCompression = "context_compression"
	stageAnswerGeneration   = "answer_generation"
	stageQualityCheck       = "quality_check"
	stageFinalPolish        = "final_polish"
)

type PipelineConfig struct {
	SearchTopK       int
	RankTopN         int
	CompressMaxChars int
	HistoryTurns     int
}

func (c PipelineConfig) normalize() PipelineConfig {
	out := c
	if out.SearchTopK <= 0 {
		out.SearchTopK = 5
	}
	if out.RankTopN <= 0 {
		out.RankTopN = 5
	}
	if out.CompressMaxChars <= 0 {
		out.CompressMaxChars = 8000
	}
	if out.HistoryTurns <= 0 {
		out.HistoryTurns = 6
	}
	return out
}

type PipelineUseCase struct {
	generator ports.TextGenerator
	embedder  ports.Embedder
	vector    ports.VectorSearcher
	keyword   ports.KeywordSearcher
	cfg       PipelineConfig
}

func NewPipelineUseCase(
	generator ports.TextGenerator,
	embedder ports.Embedder,
	vector ports.VectorSearcher,
	keyword ports.KeywordSearcher,
	cfg PipelineConfig,
) *PipelineUseCase {
	return &PipelineUseCase{
		generator: generator,
		embedder:  embedder,
		vector:    vector,
		keyword:   keyword,
		cfg:       cfg.normalize(),
	}
}

// stageTracker emits one running event per stage, records the terminal event,
// and keeps emission in strict stage order.
type stageTracker struct {
	steps   []domain.ProgressEvent
	observe domain.ProgressObserver
}

func (t *stageTracker) emit(event domain.ProgressEvent) {
	if t.observe != nil {
		t.observe(event)
	}
}

func (t *stageTracker) run(index int, name string, fn func() (string, map[string]any, error)) error {
	t.emit(domain.ProgressEvent{StepIndex: index, Name: name, Status: domain.StepRunning})

	start := time.Now()
	message, metadata, err := fn()
	event := domain.ProgressEvent{
		StepIndex:  index,
		Name:       name,
		DurationMs: time.Since(start).Milliseconds(),
		Metadata:   metadata,
	}
	if err != nil {
		event.Status = domain.StepFailed
		event.Message = err.Error()
		t.steps = append(t.steps, event)
		t.emit(event)
		return err
	}
	event.Status = domain.StepCompleted
	event.Message = message
	t.steps = append(t.steps, event)
	t.emit(event)
	return nil
}

// Execute runs the ten ordered stages. It fails only on unrecoverable
// infrastructure errors from required stages (domain check, query rewriting,
// embedding, answer generation); search, entity extraction and the quality
// check degrade into metadata instead of propagating.
func (uc *PipelineUseCase) Execute(
	ctx context.Context,
	req domain.PipelineRequest,
	onProgress domain.ProgressObserver,
) (*domain.PipelineResult, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "pipeline execute", fmt.Errorf("query is required"))
	}
	mode := domain.NormalizeMode(string(req.Mode))

	start := time.Now()
	tracker := &stageTracker{observe: onProgress}
	runID := strings.TrimSpace(req.RunID)
	if runID == "" {
		runID = uuid.NewString()
	}

	onTopic := false
	err := tracker.run(0, stageDomainCheck, func() (string, map[string]any, error) {
		raw, err := uc.generator.Generate(ctx, buildDomainCheckPrompt(query))
		if err != nil {
			return "", nil, fmt.Errorf("domain check: %w", err)
		}
		onTopic = strings.Contains(strings.ToLower(raw), "yes")
		return fmt.Sprintf("query classified on_topic=%t", onTopic), map[string]any{"on_topic": onTopic}, nil
	})
	if err != nil {
		return nil, err
	}

	// Terminal short-circuit: off-domain queries skip every later stage.
	if !onTopic {
		return &domain.PipelineResult{
			RunID:           runID,
			Answer:          OffTopicRefusal,
			Steps:           tracker.steps,
			TotalDurationMs: time.Since(start).Milliseconds(),
			Metadata:        domain.ResultMetadata{OnTopic: false},
		}, nil
	}

	rewritten := query
	err = tracker.run(1, stageQueryRewriting, func() (string, map[string]any, error) {
		raw, err := uc.generator.Generate(ctx, buildRewritePrompt(query))
		if err != nil {
			return "", nil, fmt.Errorf("query rewriting: %w", err)
		}
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			rewritten = trimmed
		}
		return "query specialized for retrieval", map[string]any{"rewritten_query": rewritten}, nil
	})
	if err != nil {
		return nil, err
	}

	entities := domain.EmptyEntityBundle()
	_ = tracker.run(2, stageEntityExtraction, func() (string, map[string]any, error) {
		raw, err := uc.generator.GenerateJSON(ctx, buildEntityPrompt(rewritten))
		if err != nil {
			return "entity extraction degraded: " + err.Error(), nil, nil
		}
		parsed, ok := parseEntityBundle(raw)
		if !ok {
			return "entity response unparsable, continuing with empty bundle", nil, nil
		}
		entities = parsed
		return fmt.Sprintf("extracted %d entities", countEntities(parsed)), map[string]any{"entity_count": countEntities(parsed)}, nil
	})

	var queryVector []float32
	err = tracker.run(3, stageEmbedding, func() (string, map[string]any, error) {
		vector, err := uc.embedder.EmbedQuery(ctx, rewritten)
		if err != nil {
			return "", nil, fmt.Errorf("embed query: %w", err)
		}
		queryVector = vector
		return fmt.Sprintf("embedded query into %d dimensions", len(vector)), nil, nil
	})
	if err != nil {
		return nil, err
	}

	// Fan-out: the two searches run concurrently and are joined before this
	// stage's terminal event. Each branch is fault-isolated; a failed search
	// degrades grounding instead of failing the run.
	var vectorDocs, keywordDocs []domain.RetrievedDocument
	_ = tracker.run(4, stageKnowledgeSearch, func() (string, map[string]any, error) {
		var vectorErr, keywordErr error
		group, groupCtx := errgroup.WithContext(ctx)
		group.Go(func() error {
			docs, err := uc.vector.Search(groupCtx, queryVector, uc.cfg.SearchTopK)
			if err != nil {
				vectorErr = err
				return nil
			}
			vectorDocs = docs
			return nil
		})
		group.Go(func() error {
			docs, err := uc.keyword.Search(groupCtx, rewritten, uc.cfg.SearchTopK)
			if err != nil {
				keywordErr = err
				return nil
			}
			keywordDocs = docs
			return nil
		})
		_ = group.Wait()

		message := fmt.Sprintf("retrieved %d vector and %d keyword documents", len(vectorDocs), len(keywordDocs))
		if vectorErr != nil {
			message += "; vector search degraded: " + vectorErr.Error()
		}
		if keywordErr != nil {
			message += "; keyword search degraded: " + keywordErr.Error()
		}
		return message, map[string]any{
			"vector_hits":  len(vectorDocs),
			"keyword_hits": len(keywordDocs),
		}, nil
	})

	var ranked []domain.RetrievedDocument
	renderedContext := ""
	_ = tracker.run(5, stageContextRanking, func() (string, map[string]any, error) {
		ranked = rankDocuments(vectorDocs, keywordDocs, uc.cfg.RankTopN)
		renderedContext = renderContext(ranked)
		return fmt.Sprintf("ranked context to top %d documents", len(ranked)), map[string]any{"ranked_count": len(ranked)}, nil
	})

	compressed := ""
	_ = tracker.run(6, stageContextCompression, func() (string, map[string]any, error) {
		compressed = compressContext(renderedContext, uc.cfg.CompressMaxChars)
		truncated := len(renderedContext) > uc.cfg.CompressMaxChars
		return fmt.Sprintf("context compressed to %d chars (truncated=%t)", len(compressed), truncated), map[string]any{"truncated": truncated}, nil
	})

	answer := ""
	err = tracker.run(7, stageAnswerGeneration, func() (string, map[string]any, error) {
		prompt := buildAnswerPrompt(mode, query, compressed, historySuffix(req.History, uc.cfg.HistoryTurns))
		raw, err := uc.generator.Generate(ctx, prompt)
		if err != nil {
			return "", nil, fmt.Errorf("answer generation: %w", err)
		}
		answer = strings.TrimSpace(raw)
		if answer == "" {
			return "", nil, fmt.Errorf("answer generation: empty completion")
		}
		return "answer generated", map[string]any{"answer_chars": len(answer)}, nil
	})
	if err != nil {
		return nil, err
	}

	// Quality verdict is computed but never acted on: it neither blocks nor
	// rewrites the answer.
	var grounded *bool
	_ = tracker.run(8, stageQualityCheck, func() (string, map[string]any, error) {
		raw, err := uc.generator.Generate(ctx, buildVerifyPrompt(answer, compressed))
		if err != nil {
			return "quality check skipped: " + err.Error(), nil, nil
		}
		verdict := strings.Contains(strings.ToLower(raw), "yes")
		grounded = &verdict
		return fmt.Sprintf("answer grounded=%t", verdict), map[string]any{"grounded": verdict}, nil
	})

	_ = tracker.run(9, stageFinalPolish, func() (string, map[string]any, error) {
		answer = polishAnswer(answer)
		return "answer polished", nil, nil
	})

	return &domain.PipelineResult{
		RunID:           runID,
		Answer:          answer,
		Steps:           tracker.steps,
		TotalDurationMs: time.Since(start).Milliseconds(),
		Metadata: domain.ResultMetadata{
			OnTopic:        true,
			RewrittenQuery: rewritten,
			Entities:       entities,
			ContextSources: contextSources(ranked),
			AnswerGrounded: grounded,
		},
	}, nil
}

// polishAnswer strips prompt artifacts the model sometimes echoes back.
func polishAnswer(answer string) string {
	answer = strings.TrimSpace(answer)
	for _, prefix := range []string{"Answer:", "Assistant:"} {
		if strings.HasPrefix(answer, prefix) {
			answer = strings.TrimSpace(strings.TrimPrefix(answer, prefix))
		}
	}
	for strings.Contains(answer, "\n\n\n") {
		answer = strings.ReplaceAll(answer, "\n\n\n", "\n\n")
	}
	return answer
}

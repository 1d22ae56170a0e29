package bootstrap

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ayulabs/ayurag/internal/config"
	"github.com/ayulabs/ayurag/internal/core/ports"
	"github.com/ayulabs/ayurag/internal/core/usecase"
	"github.com/ayulabs/ayurag/internal/infrastructure/keyword/postgres"
	"github.com/ayulabs/ayurag/internal/infrastructure/llm/ollama"
	natsprogress "github.com/ayulabs/ayurag/internal/infrastructure/progress/nats"
	"github.com/ayulabs/ayurag/internal/infrastructure/resilience"
	"github.com/ayulabs/ayurag/internal/infrastructure/vector/qdrant"
	"github.com/ayulabs/ayurag/internal/observability/metrics"
)

type App struct {
	Config   config.Config
	Pipeline ports.AnswerPipeline
	Metrics  *metrics.PipelineMetrics
	// Publisher is nil when NATS fan-out is disabled.
	Publisher *natsprogress.Publisher

	db      *sql.DB
	closeFn func()
}

func New(cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	keywordStore := postgres.NewStore(db, cfg.KeywordPartitions)

	runner := resilience.NewRunner(resilience.DefaultConfig())
	ollamaClient := ollama.NewWithOptions(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, ollama.Options{
		Timeout:           time.Duration(cfg.OllamaTimeoutSeconds) * time.Second,
		RequestsPerSecond: cfg.OllamaMaxRPS,
		Runner:            runner,
	})
	generator := ollama.NewGenerator(ollamaClient)
	embedder := ollama.NewEmbedder(ollamaClient)

	vectorDB := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection)

	var publisher *natsprogress.Publisher
	if cfg.NATSEnabled {
		publisher, err = natsprogress.New(cfg.NATSURL, cfg.NATSSubjectPrefix)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init progress publisher: %w", err)
		}
	}

	pipeline := usecase.NewPipelineUseCase(generator, embedder, vectorDB, keywordStore, usecase.PipelineConfig{
		SearchTopK:       cfg.SearchTopK,
		RankTopN:         cfg.RankTopN,
		CompressMaxChars: cfg.CompressMaxChars,
		HistoryTurns:     cfg.HistoryTurns,
	})

	return &App{
		Config:    cfg,
		Pipeline:  pipeline,
		Metrics:   metrics.NewPipelineMetrics("api"),
		Publisher: publisher,
		db:        db,
		closeFn: func() {
			if publisher != nil {
				publisher.Close()
			}
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/docqa/internal/config"
	"github.com/kirillkom/docqa/internal/core/ports"
	"github.com/kirillkom/docqa/internal/core/usecase"
	"github.com/kirillkom/docqa/internal/infrastructure/chunking"
	"github.com/kirillkom/docqa/internal/infrastructure/extractor"
	"github.com/kirillkom/docqa/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/docqa/internal/infrastructure/queue/inline"
	"github.com/kirillkom/docqa/internal/infrastructure/queue/nats"
	"github.com/kirillkom/docqa/internal/infrastructure/repository/memory"
	"github.com/kirillkom/docqa/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/docqa/internal/infrastructure/resilience"
	"github.com/kirillkom/docqa/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/docqa/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/docqa/internal/observability/metrics"
)

type App struct {
	Config config.Config

	Queue      ports.MessageQueue
	Repo       ports.DocumentRepository
	IngestUC   ports.DocumentIngestor
	ProcessUC  ports.DocumentProcessor
	QueryUC    ports.DocumentQueryService
	DocumentUC *usecase.DocumentService

	// Inline is true when uploads are processed in-process instead of by a worker.
	Inline bool

	closeFn func()
}

// Options selects where collaborator metrics are registered. A nil
// Registerer disables them.
type Options struct {
	Service    string
	Registerer prometheus.Registerer
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	repo, chunkRepo, db, err := openRepositories(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if db != nil {
		closers = append(closers, func() { _ = db.Close() })
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := resilience.NewExecutor(resilienceConfig(cfg))
	if opts.Registerer != nil {
		executor.WithObserver(metrics.NewResilienceMetrics(opts.Registerer, opts.Service))
	}

	var queue ports.MessageQueue
	inlineMode := cfg.NATSURL == ""
	handlerTimeout := time.Duration(cfg.WorkerHandlerTimeoutSeconds) * time.Second
	if inlineMode {
		dispatcher := inline.New(0, handlerTimeout)
		closers = append(closers, dispatcher.Close)
		queue = dispatcher
	} else {
		natsQueue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			HandlerTimeout:     handlerTimeout,
			ResilienceExecutor: executor,
		})
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		closers = append(closers, natsQueue.Close)
		queue = natsQueue
	}

	ollamaClient := ollama.NewWithOptions(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, ollama.Options{
		Timeout:            time.Duration(cfg.OllamaTimeoutSeconds) * time.Second,
		ResilienceExecutor: executor,
	})
	embedder := ollama.NewEmbedder(ollamaClient)
	generator := ollama.NewGenerator(ollamaClient)
	suggester := ollama.NewTermSuggester(ollamaClient)

	chunker := chunking.NewSplitter(cfg.ChunkWords, cfg.ChunkOverlapWords, cfg.ChunkLargeDocumentBytes)
	textExtractor := extractor.New(storage, cfg.MaxUploadBytes)

	var index ports.VectorIndex
	if cfg.QdrantURL != "" {
		index = qdrant.New(cfg.QdrantURL, cfg.QdrantCollection)
	}

	retrievalUC := usecase.NewRetrievalUseCase(repo, chunkRepo, embedder, suggester, usecase.RetrievalOptions{
		CandidateLimit: cfg.RAGCandidateLimit,
		MinSimilarity:  cfg.RAGMinSimilarity,
	})
	if index != nil {
		retrievalUC.WithVectorIndex(index)
	}
	if opts.Registerer != nil {
		retrievalUC.WithObserver(metrics.NewRetrievalMetrics(opts.Registerer, opts.Service))
	}

	conversations := usecase.NewConversationRegistry(
		cfg.RAGHistoryMessages,
		time.Duration(cfg.ConversationIdleMinutes)*time.Minute,
	)

	slog.Info("bootstrap_ready",
		"storage_backend", cfg.StorageBackend,
		"inline_processing", inlineMode,
		"vector_index", index != nil,
	)

	return &App{
		Config: cfg,
		Queue:  queue,
		Repo:   repo,

		IngestUC:   usecase.NewIngestDocumentUseCase(repo, storage, queue),
		ProcessUC:  usecase.NewProcessDocumentUseCase(repo, chunkRepo, textExtractor, chunker, embedder, index),
		QueryUC:    usecase.NewQueryUseCase(retrievalUC, generator, conversations),
		DocumentUC: usecase.NewDocumentService(repo, chunkRepo, chunker, index).WithStorage(storage),
		Inline:     inlineMode,

		closeFn: closeAll,
	}, nil
}

// RunInlineProcessing consumes in-process ingestion events until ctx is done.
// It is a no-op when a broker carries the events to workers.
func (a *App) RunInlineProcessing(ctx context.Context) {
	if !a.Inline {
		return
	}
	go func() {
		err := a.Queue.SubscribeDocumentIngested(ctx, a.ProcessUC.ProcessByID)
		if err != nil {
			slog.Error("inline_processing_stopped", "error", err)
		}
	}()
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func openRepositories(ctx context.Context, cfg config.Config) (ports.DocumentRepository, ports.ChunkRepository, *sql.DB, error) {
	switch cfg.StorageBackend {
	case "memory":
		store := memory.NewStore()
		return store, store, nil, nil
	case "", "postgres":
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		repo := postgres.NewDocumentRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		return repo, postgres.NewChunkRepository(db), db, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

func resilienceConfig(cfg config.Config) resilience.Config {
	return resilience.Config{
		RetryMaxAttempts:    cfg.RetryMaxAttempts,
		RetryInitialBackoff: time.Duration(cfg.RetryInitialBackoffMS) * time.Millisecond,
		RetryMaxBackoff:     time.Duration(cfg.RetryMaxBackoffMS) * time.Millisecond,
		RetryMultiplier:     cfg.RetryMultiplier,

		BreakerEnabled:          cfg.BreakerEnabled,
		BreakerMinRequests:      uint32(max(cfg.BreakerMinRequests, 0)),
		BreakerFailureRatio:     cfg.BreakerFailureRatio,
		BreakerOpenTimeout:      time.Duration(cfg.BreakerOpenTimeoutMS) * time.Millisecond,
		BreakerHalfOpenMaxCalls: uint32(max(cfg.BreakerHalfOpenMaxCalls, 0)),
	}
}

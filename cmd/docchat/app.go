package main

import (
	"fmt"
	"io"

	"github.com/liliang-cn/docchat/internal/blobstore"
	"github.com/liliang-cn/docchat/internal/config"
	"github.com/liliang-cn/docchat/internal/delegation"
	"github.com/liliang-cn/docchat/internal/extract"
	"github.com/liliang-cn/docchat/internal/llm"
	"github.com/liliang-cn/docchat/internal/repository"
	"github.com/liliang-cn/docchat/internal/retry"
	"github.com/liliang-cn/docchat/internal/service"
	"github.com/liliang-cn/docchat/internal/vectorindex"
	"go.uber.org/zap"
)

// app holds every wired component of one process.
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	db    *repository.DB
	index vectorindex.Index
	blobs blobstore.Store

	ingest    *service.IngestService
	documents *service.DocumentService
	chat      *service.ChatService
}

func newLogger(mode string) (*zap.Logger, error) {
	if mode == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func newApp(configPath string) (*app, error) {
	cfg, live, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := newLogger(cfg.Log.Mode)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	db, err := repository.NewDB(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	blobs, err := blobstore.New(blobstore.Config{
		Driver:          cfg.Storage.Driver,
		Directory:       cfg.Storage.Documents,
		Bucket:          cfg.Storage.Bucket,
		CredentialsFile: cfg.Storage.CredentialsFile,
		EmulatorHost:    cfg.Storage.EmulatorHost,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	index, err := vectorindex.New(vectorindex.Config{
		Provider:        cfg.Vector.Provider,
		Namespace:       cfg.Vector.Namespace,
		UpsertBatchSize: cfg.Vector.UpsertBatchSize,
		Pinecone: vectorindex.PineconeConfig{
			APIKey:     cfg.Vector.Pinecone.APIKey,
			IndexName:  cfg.Vector.Pinecone.IndexName,
			IndexHost:  cfg.Vector.Pinecone.IndexHost,
			BaseURL:    cfg.Vector.Pinecone.BaseURL,
			APIVersion: cfg.Vector.Pinecone.APIVersion,
			Timeout:    cfg.Vector.Pinecone.Timeout,
		},
		PGVector: vectorindex.PGVectorConfig{
			DSN:       cfg.Vector.PGVector.DSN,
			Table:     cfg.Vector.PGVector.Table,
			Dimension: cfg.Vector.PGVector.Dimension,
		},
	}, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}

	provider := llm.NewProvider(llm.Config{
		BaseURL:        cfg.LLM.BaseURL,
		APIKey:         cfg.LLM.APIKey,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		ChatModel:      cfg.LLM.LLMModel,
		Temperature:    &cfg.LLM.Temperature,
		MaxTokens:      cfg.LLM.MaxTokens,
		Timeout:        cfg.LLM.Timeout,
	})
	embedder := llm.NewEmbedder(provider, cfg.RateLimit.EmbeddingsPerSecond, cfg.RateLimit.EmbeddingsBurst)
	completer := llm.NewCompleter(provider)

	gate := delegation.NewGate(func(k delegation.Kind) string {
		if k == delegation.KindChat {
			return live.ChatWebhookURL()
		}
		return live.IngestWebhookURL()
	}, cfg.Delegation.Timeout, logger)

	docRepo := repository.NewDocumentRepository(db)
	sessionRepo := repository.NewSessionRepository(db)

	ingest := service.NewIngestService(docRepo, extract.NewExtractor(blobs), embedder, index, gate, service.IngestOptions{
		ChunkSize:   cfg.RAG.ChunkSize,
		Concurrency: cfg.RAG.EmbedConcurrency,
		EmbedRetry:  policy(cfg.Retry.Embedding),
		IndexRetry:  policy(cfg.Retry.Index),
	}, logger)

	retriever := service.NewRetriever(embedder, index, cfg.RAG.TopK, cfg.RAG.ScoreThreshold, policy(cfg.Retry.Embedding), logger)
	answers := service.NewAnswerGenerator(retriever, sessionRepo, completer, cfg.RAG.HistoryLimit, policy(cfg.Retry.Completion), logger)

	return &app{
		cfg:    cfg,
		logger: logger,
		db:     db,
		index:  index,
		blobs:  blobs,
		ingest: ingest,
		documents: service.NewDocumentService(docRepo, blobs, index, ingest, service.DocumentOptions{
			AutoIngest:     cfg.RAG.AutoIngest,
			IngestTimeout:  cfg.RAG.IngestTimeout,
			MaxUploadBytes: cfg.RAG.MaxUploadBytes,
		}, logger),
		chat: service.NewChatService(sessionRepo, answers, gate, logger),
	}, nil
}

func policy(p config.RetryPolicy) retry.Policy {
	return retry.Policy{
		MaxAttempts:     p.MaxAttempts,
		InitialInterval: p.InitialInterval,
		MaxInterval:     p.MaxInterval,
	}
}

// Close waits for background ingestion and releases connections.
func (a *app) Close() {
	a.documents.Wait()
	for _, c := range []any{a.index, a.blobs} {
		if closer, ok := c.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				a.logger.Warn("Failed to close", zap.Error(err))
			}
		}
	}
	a.db.Close()
	_ = a.logger.Sync()
}

// Package services builds the long-lived clients shared by the HTTP server
// and the command line tool, and shuts them down in reverse order.
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"trails/backend/internal/adapter"
	"trails/backend/internal/chunker"
	"trails/backend/internal/graph"
	"trails/backend/internal/ingest"
	"trails/backend/internal/linker"
	"trails/backend/internal/loader"
	"trails/backend/internal/vectorindex"
	"trails/backend/pkg/config"
	"trails/backend/pkg/logger"
)

// ServiceManager owns the graph store, the embedding provider and the vector
// index, and the components built on top of them.
type ServiceManager struct {
	Config     *config.Config
	Store      *graph.Store
	Repo       *graph.Repository
	LLM        *adapter.OpenAIAdapter
	Vectors    *vectorindex.Manager
	Similarity *linker.SimilarityLinker
	Pipeline   *linker.Pipeline
	Ingestor   *ingest.Ingestor
	Loader     *loader.Loader
	Chunker    chunker.Chunker

	logger  *zap.Logger
	mu      sync.Mutex
	closers []closer
}

type closer struct {
	name string
	fn   func(context.Context) error
}

// NewServiceManager connects to Neo4j, the embedding provider and the
// configured vector backend. Anything opened before a failure is closed
// again.
func NewServiceManager(ctx context.Context, cfg *config.Config) (*ServiceManager, error) {
	sm := &ServiceManager{
		Config: cfg,
		logger: logger.Named("services"),
	}

	store, err := graph.Connect(ctx, cfg.Neo4j.URI, cfg.Neo4j.User, cfg.Neo4j.Password, cfg.Neo4j.Database)
	if err != nil {
		return nil, err
	}
	sm.Store = store
	sm.onShutdown("neo4j", store.Close)

	if err := sm.build(ctx, store); err != nil {
		_ = sm.Shutdown(ctx)
		return nil, err
	}
	return sm, nil
}

// NewWithExecutor builds the components over an existing executor and
// vector backend. Nothing is connected or closed by the manager.
func NewWithExecutor(cfg *config.Config, exec graph.Executor, backend vectorindex.Backend, llm *adapter.OpenAIAdapter) (*ServiceManager, error) {
	sm := &ServiceManager{
		Config: cfg,
		LLM:    llm,
		logger: logger.Named("services"),
	}
	if err := sm.assemble(exec, backend); err != nil {
		return nil, err
	}
	return sm, nil
}

func (sm *ServiceManager) build(ctx context.Context, exec graph.Executor) error {
	cfg := sm.Config
	sm.LLM = adapter.NewOpenAIAdapter(cfg.OpenAI.BaseURL, cfg.OpenAI.APIKey, cfg.OpenAI.EmbeddingModel, cfg.OpenAI.EnrichmentModel)

	embedder, err := sm.embedder(ctx)
	if err != nil {
		return err
	}
	backend, err := sm.vectorBackend(exec, embedder)
	if err != nil {
		return err
	}
	return sm.assemble(exec, backend)
}

func (sm *ServiceManager) assemble(exec graph.Executor, backend vectorindex.Backend) error {
	cfg := sm.Config

	c, err := chunker.New(cfg.TextProcessing.Chunker, cfg.TextProcessing.ChunkSize, cfg.TextProcessing.ChunkOverlap)
	if err != nil {
		return err
	}
	sm.Chunker = c

	sm.Repo = graph.NewRepository(exec)
	sm.Vectors, err = vectorindex.NewManager(backend, sm.Repo, vectorindex.Options{
		Threshold:    cfg.VectorIndex.SimilarityThreshold,
		SearchK:      cfg.VectorIndex.SearchK,
		CacheSize:    cfg.VectorIndex.CacheSize,
		DefaultIndex: cfg.VectorIndex.IndexName,
	})
	if err != nil {
		return err
	}

	sm.Similarity = linker.NewSimilarityLinker(sm.Repo, sm.Vectors)
	sm.Pipeline = linker.NewPipeline(sm.Repo, sm.Vectors)
	sm.Loader = loader.New(nil)

	var enricher adapter.Enricher
	if sm.LLM != nil {
		enricher = sm.LLM
	}
	sm.Ingestor = ingest.New(sm.Repo, sm.Vectors, enricher, c)
	return nil
}

// embedder returns the OpenAI embedder, behind the Redis cache when one is
// configured.
func (sm *ServiceManager) embedder(ctx context.Context) (adapter.Embedder, error) {
	cfg := sm.Config
	if cfg.Redis.URL == "" {
		return sm.LLM, nil
	}

	ttl, err := cfg.RedisTTL()
	if err != nil {
		return nil, err
	}
	client, err := adapter.NewRedisClient(ctx, cfg.Redis.URL)
	if err != nil {
		return nil, err
	}
	sm.onShutdown("redis", func(context.Context) error { return client.Close() })

	sm.logger.Info("Embedding cache enabled", zap.Duration("ttl", ttl))
	return adapter.NewCachedEmbedder(client, sm.LLM, cfg.OpenAI.EmbeddingModel, ttl), nil
}

func (sm *ServiceManager) vectorBackend(exec graph.Executor, embedder vectorindex.Embedder) (vectorindex.Backend, error) {
	cfg := sm.Config.VectorIndex

	switch cfg.Backend {
	case "neo4j":
		return vectorindex.NewNeo4jBackend(exec, embedder, cfg.Dimensions), nil
	case "chromem":
		return vectorindex.NewChromemBackend(cfg.ChromemPath, embedder)
	case "qdrant":
		backend, err := vectorindex.NewQdrantBackend(cfg.QdrantHost, cfg.QdrantPort, embedder, cfg.Dimensions)
		if err != nil {
			return nil, err
		}
		sm.onShutdown("qdrant", func(context.Context) error { return backend.Close() })
		return backend, nil
	}
	return nil, fmt.Errorf("unknown vector index backend %q", cfg.Backend)
}

func (sm *ServiceManager) onShutdown(name string, fn func(context.Context) error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.closers = append(sm.closers, closer{name: name, fn: fn})
}

// Shutdown closes everything that was opened, newest first. Every closer
// runs; the errors are joined.
func (sm *ServiceManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	closers := sm.closers
	sm.closers = nil
	sm.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		c := closers[i]
		if err := c.fn(ctx); err != nil {
			sm.logger.Warn("Failed to close service", zap.String("service", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
			continue
		}
		sm.logger.Debug("Service closed", zap.String("service", c.name))
	}
	return errors.Join(errs...)
}

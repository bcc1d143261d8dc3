package services

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trails/backend/internal/adapter"
	"trails/backend/internal/chunker"
	"trails/backend/internal/graph/graphtest"
	"trails/backend/internal/loader"
	"trails/backend/internal/vectorindex"
	"trails/backend/internal/vectorindex/vectortest"
	"trails/backend/pkg/config"
	"trails/backend/pkg/logger"
)

func testConfig() *config.Config {
	return &config.Config{
		VectorIndex: config.VectorIndexConfig{
			Backend:             "chromem",
			IndexName:           "vector",
			SimilarityThreshold: 0.75,
			SearchK:             5,
			CacheSize:           4,
			Dimensions:          8,
		},
		OpenAI: config.OpenAIConfig{
			BaseURL:        "http://127.0.0.1:1",
			EmbeddingModel: "test-embedding",
		},
		TextProcessing: config.TextProcessingConfig{Chunker: "paragraph"},
	}
}

func TestNewWithExecutor_AssemblesComponents(t *testing.T) {
	mem := graphtest.New()
	sm, err := NewWithExecutor(testConfig(), mem, vectortest.NewBackend(), nil)
	require.NoError(t, err)

	assert.NotNil(t, sm.Repo)
	assert.NotNil(t, sm.Vectors)
	assert.NotNil(t, sm.Similarity)
	assert.NotNil(t, sm.Pipeline)
	assert.NotNil(t, sm.Loader)
	assert.IsType(t, chunker.Paragraphs{}, sm.Chunker)

	res, err := sm.Ingestor.Ingest(context.Background(), loader.Document{Text: "one\n\ntwo"})
	require.NoError(t, err)
	assert.Len(t, res.Sections, 2)
	assert.Equal(t, 1, mem.CountNodes("Document"))
	assert.NoError(t, sm.Shutdown(context.Background()))
}

func TestNewWithExecutor_UnknownChunker(t *testing.T) {
	cfg := testConfig()
	cfg.TextProcessing.Chunker = "sentences"

	_, err := NewWithExecutor(cfg, graphtest.New(), vectortest.NewBackend(), nil)
	assert.Error(t, err)
}

func TestVectorBackend(t *testing.T) {
	sm := &ServiceManager{Config: testConfig()}
	embedder := vectortest.HashEmbedder{Dims: 8}

	backend, err := sm.vectorBackend(graphtest.New(), embedder)
	require.NoError(t, err)
	assert.IsType(t, &vectorindex.ChromemBackend{}, backend)

	sm.Config.VectorIndex.Backend = "neo4j"
	backend, err = sm.vectorBackend(graphtest.New(), embedder)
	require.NoError(t, err)
	assert.IsType(t, &vectorindex.Neo4jBackend{}, backend)

	sm.Config.VectorIndex.Backend = "faiss"
	_, err = sm.vectorBackend(graphtest.New(), embedder)
	assert.Error(t, err)
}

func TestEmbedder_UsesRedisCacheWhenConfigured(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	sm := &ServiceManager{
		Config: cfg,
		LLM:    adapter.NewOpenAIAdapter(cfg.OpenAI.BaseURL, "", cfg.OpenAI.EmbeddingModel, ""),
		logger: logger.Get(),
	}
	ctx := context.Background()

	plain, err := sm.embedder(ctx)
	require.NoError(t, err)
	assert.Same(t, sm.LLM, plain)

	cfg.Redis = config.RedisConfig{URL: "redis://" + mr.Addr(), TTL: "1h"}
	cached, err := sm.embedder(ctx)
	require.NoError(t, err)
	assert.IsType(t, &adapter.CachedEmbedder{}, cached)
	require.Len(t, sm.closers, 1)
	assert.NoError(t, sm.Shutdown(ctx))
}

func TestShutdown_ClosesNewestFirstAndJoinsErrors(t *testing.T) {
	sm := &ServiceManager{logger: logger.Get()}
	var order []string
	sm.onShutdown("first", func(context.Context) error {
		order = append(order, "first")
		return nil
	})
	sm.onShutdown("second", func(context.Context) error {
		order = append(order, "second")
		return errors.New("boom")
	})

	err := sm.Shutdown(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "second: boom")
	assert.Equal(t, []string{"second", "first"}, order)

	// A second shutdown has nothing left to close.
	assert.NoError(t, sm.Shutdown(context.Background()))
}

package adapter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	calls   int
	batches [][]string
	err     error
}

func (c *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return []float32{float32(len(text)), 0.5}, nil
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.batches = append(c.batches, texts)
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, err := c.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func newTestCache(t *testing.T) (*CachedEmbedder, *countingEmbedder, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	next := &countingEmbedder{}
	return NewCachedEmbedder(client, next, "model-a", time.Hour), next, mr
}

func TestCachedEmbedder_Embed(t *testing.T) {
	cache, next, mr := newTestCache(t)
	ctx := context.Background()

	first, err := cache.Embed(ctx, "hello")
	require.NoError(t, err)
	second, err := cache.Embed(ctx, "hello")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, next.calls)
	assert.Len(t, mr.Keys(), 1)
	assert.Equal(t, time.Hour, mr.TTL(mr.Keys()[0]))
}

func TestCachedEmbedder_ModelScopesKeys(t *testing.T) {
	cache, next, mr := newTestCache(t)
	ctx := context.Background()

	_, err := cache.Embed(ctx, "hello")
	require.NoError(t, err)

	other := NewCachedEmbedder(cache.client, next, "model-b", time.Hour)
	_, err = other.Embed(ctx, "hello")
	require.NoError(t, err)

	assert.Equal(t, 2, next.calls)
	assert.Len(t, mr.Keys(), 2)
}

func TestCachedEmbedder_EmbedBatchOnlyMisses(t *testing.T) {
	cache, next, _ := newTestCache(t)
	ctx := context.Background()

	_, err := cache.Embed(ctx, "bb")
	require.NoError(t, err)

	vectors, err := cache.EmbedBatch(ctx, []string{"a", "bb", "cccc"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, []float32{1, 0.5}, vectors[0])
	assert.Equal(t, []float32{2, 0.5}, vectors[1])
	assert.Equal(t, []float32{4, 0.5}, vectors[2])
	assert.Equal(t, [][]string{{"a", "cccc"}}, next.batches)

	_, err = cache.EmbedBatch(ctx, []string{"a", "cccc"})
	require.NoError(t, err)
	assert.Len(t, next.batches, 1, "second batch is served from the cache")
}

func TestCachedEmbedder_CorruptEntryIsRecomputed(t *testing.T) {
	cache, next, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, mr.Set(cache.key("hello"), "abc"))
	v, err := cache.Embed(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{5, 0.5}, v)
	assert.Equal(t, 1, next.calls)
}

func TestCachedEmbedder_RedisDownFallsThrough(t *testing.T) {
	cache, next, mr := newTestCache(t)
	mr.Close()

	v, err := cache.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{5, 0.5}, v)
	assert.Equal(t, 1, next.calls)
}

func TestCachedEmbedder_PropagatesEmbedderError(t *testing.T) {
	cache, next, mr := newTestCache(t)
	next.err = errors.New("provider down")

	_, err := cache.Embed(context.Background(), "hello")
	assert.Error(t, err)
	assert.Empty(t, mr.Keys())
}

func TestNewRedisClient_InvalidURL(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "not a url")
	assert.Error(t, err)
}

func TestVectorEncoding(t *testing.T) {
	v := []float32{0, -1.5, 3.25}
	got, err := decodeVector(encodeVector(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}

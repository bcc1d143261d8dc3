package adapter

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"trails/backend/pkg/logger"
)

const cachePrefix = "trails:embedding:"

// NewRedisClient connects to the Redis server at url and checks it answers.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// CachedEmbedder serves embeddings from Redis and fills misses from the
// wrapped embedder. Cache failures degrade to a direct call.
type CachedEmbedder struct {
	next   Embedder
	client *redis.Client
	model  string
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedEmbedder wraps next. model is part of the key so switching models
// never serves stale vectors.
func NewCachedEmbedder(client *redis.Client, next Embedder, model string, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{
		next:   next,
		client: client,
		model:  model,
		ttl:    ttl,
		logger: logger.Named("adapter.cache"),
	}
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return cachePrefix + c.model + ":" + hex.EncodeToString(sum[:])
}

// Embed returns the cached embedding of text or computes and stores it.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	raw, err := c.client.Get(ctx, c.key(text)).Bytes()
	switch {
	case err == nil:
		if v, derr := decodeVector(raw); derr == nil {
			cacheLookupsTotal.WithLabelValues("hit").Inc()
			return v, nil
		}
		cacheLookupsTotal.WithLabelValues("corrupt").Inc()
	case errors.Is(err, redis.Nil):
		cacheLookupsTotal.WithLabelValues("miss").Inc()
	default:
		cacheLookupsTotal.WithLabelValues("error").Inc()
		c.logger.Warn("Embedding cache read failed", zap.Error(err))
	}

	v, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.store(ctx, map[string][]float32{text: v})
	return v, nil
}

// EmbedBatch looks all texts up at once and embeds only the misses.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = c.key(t)
	}
	out := make([][]float32, len(texts))

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		cacheLookupsTotal.WithLabelValues("error").Inc()
		c.logger.Warn("Embedding cache read failed", zap.Error(err))
		values = make([]any, len(texts))
	}

	var missing []string
	var missingAt []int
	for i, v := range values {
		if s, ok := v.(string); ok {
			if vec, derr := decodeVector([]byte(s)); derr == nil {
				cacheLookupsTotal.WithLabelValues("hit").Inc()
				out[i] = vec
				continue
			}
		}
		cacheLookupsTotal.WithLabelValues("miss").Inc()
		missing = append(missing, texts[i])
		missingAt = append(missingAt, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	computed, err := c.next.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	fresh := make(map[string][]float32, len(computed))
	for j, vec := range computed {
		out[missingAt[j]] = vec
		fresh[missing[j]] = vec
	}
	c.store(ctx, fresh)
	return out, nil
}

func (c *CachedEmbedder) store(ctx context.Context, vectors map[string][]float32) {
	pipe := c.client.Pipeline()
	for text, v := range vectors {
		pipe.Set(ctx, c.key(text), encodeVector(v), c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("Embedding cache write failed", zap.Error(err))
	}
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) ([]float32, error) {
	if len(buf) == 0 || len(buf)%4 != 0 {
		return nil, fmt.Errorf("invalid cached vector of %d bytes", len(buf))
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v, nil
}

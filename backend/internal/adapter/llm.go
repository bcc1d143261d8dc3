package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"trails/backend/pkg/logger"

	apperrors "trails/backend/pkg/errors"
)

const maxRetries = 3

// Embedder turns text into vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Enricher extracts structured fields from text.
type Enricher interface {
	Enrich(ctx context.Context, text string, schema Schema) (map[string]any, error)
}

// Field is one value an enrichment must produce.
type Field struct {
	Name        string
	Description string
	Required    bool
}

// Schema describes the JSON object an enrichment returns.
type Schema struct {
	Name        string
	Instruction string
	Fields      []Field
}

// DocumentMetadata is the schema used to describe a whole document.
var DocumentMetadata = Schema{
	Name:        "document_metadata",
	Instruction: "Describe the document.",
	Fields: []Field{
		{Name: "title", Description: "a short title", Required: true},
		{Name: "summary", Description: "a summary of at most three sentences", Required: true},
		{Name: "topics", Description: "a list of up to five topic keywords"},
	},
}

// SectionSummary is the schema used to summarise one section.
var SectionSummary = Schema{
	Name:        "section_summary",
	Instruction: "Summarise the section.",
	Fields: []Field{
		{Name: "summary", Description: "a summary of one or two sentences", Required: true},
	},
}

// OpenAIAdapter talks to an OpenAI compatible API for embeddings and
// structured enrichment.
type OpenAIAdapter struct {
	client         *openai.Client
	embeddingModel string
	model          string
	mu             sync.RWMutex // protects model
	logger         *zap.Logger

	// backoff returns the wait before a retry; swapped in tests.
	backoff func(attempt int) time.Duration
}

// NewOpenAIAdapter creates an adapter. baseURL is the server root without
// the /v1 suffix.
func NewOpenAIAdapter(baseURL, apiKey, embeddingModel, model string) *OpenAIAdapter {
	// Local gateways accept any key.
	if apiKey == "" {
		apiKey = "dummy-key"
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = strings.TrimSuffix(baseURL, "/") + "/v1"

	return &OpenAIAdapter{
		client:         openai.NewClientWithConfig(config),
		embeddingModel: embeddingModel,
		model:          model,
		logger:         logger.Named("adapter.openai"),
		backoff: func(attempt int) time.Duration {
			return time.Duration(attempt) * time.Second
		},
	}
}

// SetModel updates the enrichment model.
func (a *OpenAIAdapter) SetModel(model string) {
	if model != "" {
		a.mu.Lock()
		a.model = model
		a.mu.Unlock()
		a.logger.Debug("Enrichment model updated", zap.String("model", model))
	}
}

// GetModel returns the enrichment model.
func (a *OpenAIAdapter) GetModel() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.model
}

// Embed returns the embedding of a single text.
func (a *OpenAIAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := a.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in one request; the result is in input order.
func (a *OpenAIAdapter) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(a.embeddingModel),
	}

	var resp openai.EmbeddingResponse
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			if werr := a.wait(ctx, attempt); werr != nil {
				return nil, apperrors.NewContextCancelled("embed", werr)
			}
		}
		resp, err = a.client.CreateEmbeddings(ctx, req)
		if err == nil {
			break
		}
		a.logger.Error("Embedding request failed",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.String("model", a.embeddingModel),
		)
		if !retryable(err) {
			return nil, apperrors.NewEmbeddingFailed(a.embeddingModel, false, err)
		}
	}
	if err != nil {
		return nil, apperrors.NewEmbeddingFailed(a.embeddingModel, true, err)
	}

	if len(resp.Data) != len(texts) {
		return nil, apperrors.NewEmbeddingFailed(a.embeddingModel, false,
			fmt.Errorf("got %d embeddings for %d inputs", len(resp.Data), len(texts)))
	}
	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, apperrors.NewEmbeddingFailed(a.embeddingModel, false,
				fmt.Errorf("embedding index %d out of range", d.Index))
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

// Enrich asks the model for a JSON object matching schema. Transport errors
// and malformed answers are retried; an answer still missing required fields
// after the last attempt yields *errors.ErrEnrichmentValidation.
func (a *OpenAIAdapter) Enrich(ctx context.Context, text string, schema Schema) (map[string]any, error) {
	currentModel := a.GetModel()
	req := openai.ChatCompletionRequest{
		Model: currentModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: enrichmentPrompt(schema)},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.2,
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			a.logger.Warn("Retrying enrichment",
				zap.String("schema", schema.Name),
				zap.Int("attempt", attempt+1),
			)
			if err := a.wait(ctx, attempt); err != nil {
				return nil, apperrors.NewContextCancelled("enrich", err)
			}
		}

		resp, err := a.client.CreateChatCompletion(ctx, req)
		if err != nil {
			a.logger.Error("Enrichment request failed",
				zap.Error(err),
				zap.Int("attempt", attempt+1),
				zap.String("model", currentModel),
			)
			lastErr = err
			if !retryable(err) {
				break
			}
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("no choices in enrichment response")
			continue
		}

		fields, err := parseJSONObject(resp.Choices[0].Message.Content)
		if err != nil {
			a.logger.Warn("Enrichment returned invalid JSON", zap.Error(err))
			lastErr = err
			continue
		}
		if missing := missingFields(schema, fields); len(missing) > 0 {
			lastErr = apperrors.NewEnrichmentValidation(schema.Name, missing)
			continue
		}

		a.logger.Debug("Enrichment completed",
			zap.String("schema", schema.Name),
			zap.String("model", currentModel),
			zap.Int("fields", len(fields)),
		)
		return fields, nil
	}

	var invalid *apperrors.ErrEnrichmentValidation
	if errors.As(lastErr, &invalid) {
		return nil, lastErr
	}
	return nil, apperrors.NewEnrichmentFailed(currentModel, maxRetries, lastErr)
}

func (a *OpenAIAdapter) wait(ctx context.Context, attempt int) error {
	t := time.NewTimer(a.backoff(attempt))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func enrichmentPrompt(schema Schema) string {
	var b strings.Builder
	b.WriteString(schema.Instruction)
	b.WriteString(" Answer with a single JSON object with these keys:\n")
	for _, f := range schema.Fields {
		fmt.Fprintf(&b, "- %q: %s", f.Name, f.Description)
		if f.Required {
			b.WriteString(" (required)")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// parseJSONObject parses the model output, tolerating a fenced code block.
func parseJSONObject(content string) (map[string]any, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var out map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &out); err != nil {
		return nil, fmt.Errorf("failed to parse enrichment: %w", err)
	}
	return out, nil
}

func missingFields(schema Schema, fields map[string]any) []string {
	var missing []string
	for _, f := range schema.Fields {
		if !f.Required {
			continue
		}
		v, ok := fields[f.Name]
		if !ok || v == nil {
			missing = append(missing, f.Name)
			continue
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			missing = append(missing, f.Name)
		}
	}
	return missing
}

// retryable reports whether an API error is worth another attempt: rate
// limits, server errors and anything that is not an API status error.
func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 429 || reqErr.HTTPStatusCode >= 500
	}
	return true
}

package vectorindex

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"trails/backend/internal/constants"
	"trails/backend/internal/graph"
	"trails/backend/pkg/logger"

	apperrors "trails/backend/pkg/errors"
)

// Neo4jBackend keeps vectors on the nodes themselves and searches them with
// the native vector index.
type Neo4jBackend struct {
	exec       graph.Executor
	embedder   Embedder
	dimensions int
	logger     *zap.Logger
}

// NewNeo4jBackend creates a backend over exec. dimensions must match the
// embedder output.
func NewNeo4jBackend(exec graph.Executor, embedder Embedder, dimensions int) *Neo4jBackend {
	return &Neo4jBackend{
		exec:       exec,
		embedder:   embedder,
		dimensions: dimensions,
		logger:     logger.Named("vectorindex.neo4j"),
	}
}

// Attach looks the index up by name.
func (b *Neo4jBackend) Attach(ctx context.Context, name, label string) (Index, error) {
	if err := validateNames(name, label); err != nil {
		return nil, err
	}
	query := `
		SHOW INDEXES YIELD name, type, labelsOrTypes
		WHERE type = 'VECTOR' AND name = $name
		RETURN name, labelsOrTypes
	`
	rows, ok := b.exec.Read(ctx, query, map[string]any{"name": name})
	if !ok {
		return nil, apperrors.NewIndexUnavailable(name, nil)
	}
	if len(rows) == 0 {
		return nil, apperrors.NewIndexNotFound(name)
	}

	// The index decides which label it covers.
	if labels, ok := rows[0]["labelsOrTypes"].([]any); ok && len(labels) > 0 {
		if l, ok := labels[0].(string); ok && l != label {
			b.logger.Debug("Index covers a different label than requested",
				zap.String("index", name),
				zap.String("index_label", l),
				zap.String("requested", label),
			)
			label = l
		}
	}
	return &neo4jIndex{backend: b, name: name, label: label}, nil
}

// Bootstrap creates the vector index and a placeholder node carrying the
// first embedding.
func (b *Neo4jBackend) Bootstrap(ctx context.Context, name, label, placeholder string) error {
	if err := validateNames(name, label); err != nil {
		return err
	}
	create := fmt.Sprintf(`
		CREATE VECTOR INDEX %s IF NOT EXISTS
		FOR (n:%s) ON (n.%s)
		OPTIONS {indexConfig: {`+"`vector.dimensions`"+`: %d, `+"`vector.similarity_function`"+`: 'cosine'}}
	`, name, label, constants.PropEmbedding, b.dimensions)
	if !b.exec.Write(ctx, create, nil) {
		return apperrors.NewGraphQueryFailed("create vector index", nil)
	}

	vector, err := b.embed(ctx, placeholder)
	if err != nil {
		return err
	}
	seed := fmt.Sprintf(`
		MERGE (n:%s {text: $text})
		ON CREATE SET n.id = $id, n.last_indexed = $ts
		SET n.embedding = $vector
	`, label)
	params := map[string]any{
		"text":   placeholder,
		"id":     uuid.New().String(),
		"ts":     timestamp(),
		"vector": vector,
	}
	if !b.exec.Write(ctx, seed, params) {
		return apperrors.NewGraphQueryFailed("seed vector index", nil)
	}
	return nil
}

func (b *Neo4jBackend) embed(ctx context.Context, text string) ([]float64, error) {
	v, err := b.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(v) != b.dimensions {
		return nil, fmt.Errorf("embedding has %d dimensions, index expects %d", len(v), b.dimensions)
	}
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out, nil
}

type neo4jIndex struct {
	backend *Neo4jBackend
	name    string
	label   string
}

func (i *neo4jIndex) Name() string  { return i.name }
func (i *neo4jIndex) Label() string { return i.label }

// Add writes the embedding onto the node the document refers to.
func (i *neo4jIndex) Add(ctx context.Context, doc Document) error {
	ref, err := graph.ParseNodeRef(doc.ID)
	if err != nil {
		return err
	}
	vector, err := i.backend.embed(ctx, doc.Text)
	if err != nil {
		return err
	}

	pred := "n.id = $id"
	var id any = doc.ID
	if native, ok := ref.Native(); ok {
		pred = "id(n) = $id"
		id = native
	}
	query := fmt.Sprintf(`
		MATCH (n:%s)
		WHERE %s
		SET n.embedding = $vector
	`, i.label, pred)
	if !i.backend.exec.Write(ctx, query, map[string]any{"id": id, "vector": vector}) {
		return apperrors.NewGraphQueryFailed("set embedding", nil)
	}
	return nil
}

// Search queries the native index; its scores are already in [0, 1].
func (i *neo4jIndex) Search(ctx context.Context, text string, k int) ([]Neighbor, error) {
	vector, err := i.backend.embed(ctx, text)
	if err != nil {
		return nil, err
	}
	query := `
		CALL db.index.vector.queryNodes($index, $k, $vector)
		YIELD node, score
		RETURN coalesce(node.id, toString(id(node))) AS id, node.text AS text, score
	`
	rows, ok := i.backend.exec.Read(ctx, query, map[string]any{
		"index":  i.name,
		"k":      k,
		"vector": vector,
	})
	if !ok {
		return nil, apperrors.NewIndexUnavailable(i.name, nil)
	}

	neighbors := make([]Neighbor, 0, len(rows))
	for _, row := range rows {
		id, _ := row["id"].(string)
		text, _ := row["text"].(string)
		score, _ := row["score"].(float64)
		neighbors = append(neighbors, Neighbor{ID: id, Text: text, Score: score})
	}
	return neighbors, nil
}

func validateNames(name, label string) error {
	if err := graph.ValidateIdentifier("index name", name); err != nil {
		return err
	}
	return graph.ValidateIdentifier("label", label)
}

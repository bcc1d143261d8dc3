// Package vectorindex manages named vector indexes over node text and runs
// similarity searches against them. The graph stays the source of truth:
// indexes hold text and ids, and hits are resolved back to graph nodes by
// the callers.
package vectorindex

import (
	"context"
	"time"

	"trails/backend/internal/constants"
)

// now is swapped in tests.
var now = time.Now

func timestamp() string {
	return now().Format(constants.LastIndexedLayout)
}

// Document is one entry added to an index.
type Document struct {
	// ID is the node reference the entry belongs to.
	ID    string
	Text  string
	Label string
}

// Neighbor is a search hit. Score is a relevance in [0, 1], higher is closer.
type Neighbor struct {
	ID    string  `json:"id"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Index is an attached vector index scoped to one label.
type Index interface {
	Name() string
	Label() string
	Add(ctx context.Context, doc Document) error
	// Search returns up to k neighbors ordered by descending score.
	Search(ctx context.Context, text string, k int) ([]Neighbor, error)
}

// Backend creates and attaches indexes in a concrete vector store.
type Backend interface {
	// Attach returns an existing index or an *errors.ErrIndexNotFound.
	Attach(ctx context.Context, name, label string) (Index, error)
	// Bootstrap creates the index seeded with a single placeholder entry.
	Bootstrap(ctx context.Context, name, label, placeholder string) error
}

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// cosineToRelevance maps a cosine similarity in [-1, 1] onto [0, 1], the
// same scale the Neo4j vector index reports.
func cosineToRelevance(cos float64) float64 {
	return (1 + cos) / 2
}

package vectorindex

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"

	apperrors "trails/backend/pkg/errors"
)

const chromemLabelKey = "label"

// ChromemBackend keeps indexes in an embedded chromem-go database, one
// collection per index name.
type ChromemBackend struct {
	db    *chromem.DB
	embed chromem.EmbeddingFunc
}

// NewChromemBackend opens a persistent database at path, or an in-memory
// one when path is empty.
func NewChromemBackend(path string, embedder Embedder) (*ChromemBackend, error) {
	db := chromem.NewDB()
	if path != "" {
		var err error
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("failed to open chromem db at %s: %w", path, err)
		}
	}
	return &ChromemBackend{db: db, embed: normalized(embedder)}, nil
}

// normalized wraps the embedder so stored vectors have unit length; chromem
// scores by dot product and only normalizes vectors it was handed directly.
func normalized(embedder Embedder) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		v, err := embedder.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		var sum float64
		for _, f := range v {
			sum += float64(f) * float64(f)
		}
		if sum == 0 {
			return nil, fmt.Errorf("embedding of %q has zero length", text)
		}
		norm := float32(math.Sqrt(sum))
		out := make([]float32, len(v))
		for i, f := range v {
			out[i] = f / norm
		}
		return out, nil
	}
}

// Attach returns the collection named name.
func (b *ChromemBackend) Attach(_ context.Context, name, label string) (Index, error) {
	col := b.db.GetCollection(name, b.embed)
	if col == nil {
		return nil, apperrors.NewIndexNotFound(name)
	}
	return &chromemIndex{col: col, name: name, label: label}, nil
}

// Bootstrap creates the collection with a placeholder document.
func (b *ChromemBackend) Bootstrap(ctx context.Context, name, label, placeholder string) error {
	col, err := b.db.CreateCollection(name, map[string]string{chromemLabelKey: label}, b.embed)
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}
	return col.AddDocument(ctx, chromem.Document{
		ID:       uuid.New().String(),
		Content:  placeholder,
		Metadata: map[string]string{chromemLabelKey: label},
	})
}

type chromemIndex struct {
	col   *chromem.Collection
	name  string
	label string
}

func (i *chromemIndex) Name() string  { return i.name }
func (i *chromemIndex) Label() string { return i.label }

func (i *chromemIndex) Add(ctx context.Context, doc Document) error {
	return i.col.AddDocument(ctx, chromem.Document{
		ID:       doc.ID,
		Content:  doc.Text,
		Metadata: map[string]string{chromemLabelKey: doc.Label},
	})
}

// Search caps k at the collection size, which chromem requires.
func (i *chromemIndex) Search(ctx context.Context, text string, k int) ([]Neighbor, error) {
	if n := i.col.Count(); k > n {
		k = n
	}
	if k <= 0 {
		return []Neighbor{}, nil
	}
	results, err := i.col.Query(ctx, text, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection %s: %w", i.name, err)
	}
	neighbors := make([]Neighbor, 0, len(results))
	for _, r := range results {
		neighbors = append(neighbors, Neighbor{
			ID:    r.ID,
			Text:  r.Content,
			Score: cosineToRelevance(float64(r.Similarity)),
		})
	}
	return neighbors, nil
}

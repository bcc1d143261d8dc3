// Package vectortest provides a scripted vector backend and a deterministic
// embedder for tests.
package vectortest

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"

	"trails/backend/internal/vectorindex"

	apperrors "trails/backend/pkg/errors"
)

// Backend is an in-memory vectorindex.Backend whose indexes return canned
// search results.
type Backend struct {
	mu      sync.Mutex
	indexes map[string]*Index

	// AttachErr, when set, is returned by every Attach.
	AttachErr error
	// BootstrapErr, when set, is returned by every Bootstrap.
	BootstrapErr error

	Attaches   int
	Bootstraps int
}

// NewBackend returns a backend with no indexes.
func NewBackend() *Backend {
	return &Backend{indexes: map[string]*Index{}}
}

// Seed registers an existing index so Attach finds it.
func (b *Backend) Seed(name, label string) *Index {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx := &Index{name: name, label: label, Hits: map[string][]vectorindex.Neighbor{}}
	b.indexes[name] = idx
	return idx
}

// Index returns the named index, or nil.
func (b *Backend) Index(name string) *Index {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.indexes[name]
}

func (b *Backend) Attach(_ context.Context, name, _ string) (vectorindex.Index, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Attaches++
	if b.AttachErr != nil {
		return nil, b.AttachErr
	}
	idx, ok := b.indexes[name]
	if !ok {
		return nil, apperrors.NewIndexNotFound(name)
	}
	return idx, nil
}

func (b *Backend) Bootstrap(_ context.Context, name, label, placeholder string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Bootstraps++
	if b.BootstrapErr != nil {
		return b.BootstrapErr
	}
	b.indexes[name] = &Index{
		name:  name,
		label: label,
		Docs:  []vectorindex.Document{{ID: "placeholder", Text: placeholder, Label: label}},
		Hits:  map[string][]vectorindex.Neighbor{},
	}
	return nil
}

// Index is a scripted vectorindex.Index.
type Index struct {
	mu    sync.Mutex
	name  string
	label string

	Docs []vectorindex.Document
	// Hits maps a query text to the neighbors Search returns for it.
	Hits      map[string][]vectorindex.Neighbor
	SearchErr error
	AddErr    error
	Searches  []string
}

func (i *Index) Name() string  { return i.name }
func (i *Index) Label() string { return i.label }

func (i *Index) Add(_ context.Context, doc vectorindex.Document) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.AddErr != nil {
		return i.AddErr
	}
	i.Docs = append(i.Docs, doc)
	return nil
}

func (i *Index) Search(_ context.Context, text string, k int) ([]vectorindex.Neighbor, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.Searches = append(i.Searches, text)
	if i.SearchErr != nil {
		return nil, i.SearchErr
	}
	hits := i.Hits[text]
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return append([]vectorindex.Neighbor(nil), hits...), nil
}

// SetHits scripts the neighbors returned for query.
func (i *Index) SetHits(query string, hits ...vectorindex.Neighbor) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.Hits[query] = hits
}

// Added returns the texts added so far, placeholder included.
func (i *Index) Added() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	texts := make([]string, 0, len(i.Docs))
	for _, d := range i.Docs {
		texts = append(texts, d.Text)
	}
	return texts
}

// HashEmbedder embeds text as a hashed bag of words. Texts sharing words end
// up close; it never returns a zero vector.
type HashEmbedder struct {
	Dims int
}

func (h HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	dims := h.Dims
	if dims <= 0 {
		dims = 64
	}
	v := make([]float32, dims)
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		v[0] = 1
		return v, nil
	}
	for _, w := range words {
		f := fnv.New32a()
		_, _ = f.Write([]byte(strings.Trim(w, ".,;:!?")))
		v[1+int(f.Sum32())%(dims-1)]++
	}
	return v, nil
}

package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"trails/backend/internal/constants"
	"trails/backend/internal/graph"
	"trails/backend/pkg/logger"

	apperrors "trails/backend/pkg/errors"
)

// State is the lifecycle of the active index.
type State int

const (
	StateUnset State = iota
	StateLoading
	StateReady
	StateError
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	}
	return "unset"
}

// Options configure a Manager.
type Options struct {
	// Threshold applies when a search does not set one.
	Threshold float64
	// SearchK is the default number of neighbors requested.
	SearchK int
	// CacheSize bounds how many attached indexes are kept.
	CacheSize int
	// DefaultIndex names the index used when a call sets neither an index
	// name nor a label.
	DefaultIndex string
}

// SearchOptions narrow a similarity search. Zero values fall back to the
// manager defaults; a nil Threshold uses the manager threshold.
type SearchOptions struct {
	K         int
	Threshold *float64
	IndexName string
	Label     string
}

// AddOptions control AddTexts.
type AddOptions struct {
	// Label defaults to Chunk.
	Label     string
	IndexName string
	// Properties are stored on newly created nodes next to text.
	Properties map[string]any
}

// Threshold is a helper for SearchOptions.Threshold.
func Threshold(v float64) *float64 {
	return &v
}

// Manager resolves, creates and caches vector indexes and runs searches.
type Manager struct {
	backend Backend
	repo    *graph.Repository
	opts    Options
	logger  *zap.Logger

	cache *lru.Cache[string, Index]
	group singleflight.Group

	mu      sync.Mutex
	current Index
	state   State
}

// NewManager creates a manager over backend. repo is used to dedup and
// create the nodes that back indexed text.
func NewManager(backend Backend, repo *graph.Repository, opts Options) (*Manager, error) {
	if opts.SearchK <= 0 {
		opts.SearchK = constants.DefaultSearchK
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 8
	}
	cache, err := lru.New[string, Index](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create index cache: %w", err)
	}
	return &Manager{
		backend: backend,
		repo:    repo,
		opts:    opts,
		logger:  logger.Named("vectorindex"),
		cache:   cache,
	}, nil
}

// State reports the lifecycle state of the active index.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Current returns the name of the active index, or "" when none is ready.
func (m *Manager) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil || m.state != StateReady {
		return ""
	}
	return m.current.Name()
}

// ResolveName picks the index name: the explicit name, else the label,
// else the default.
func ResolveName(indexName, label string) string {
	switch {
	case indexName != "":
		return indexName
	case label != "":
		return label
	}
	return constants.DefaultIndexName
}

// Select makes the named index active, attaching or bootstrapping it on
// first use. Switching never drops previously attached indexes.
func (m *Manager) Select(ctx context.Context, indexName, label string) (Index, error) {
	name := ResolveName(indexName, label)
	if indexName == "" && label == "" && m.opts.DefaultIndex != "" {
		name = m.opts.DefaultIndex
	}
	if label == "" {
		label = constants.LabelChunk
	}

	m.mu.Lock()
	if m.current != nil && m.state == StateReady && m.current.Name() == name {
		idx := m.current
		m.mu.Unlock()
		selectionsTotal.WithLabelValues("hit").Inc()
		return idx, nil
	}
	m.mu.Unlock()

	if idx, ok := m.cache.Get(name); ok {
		m.activate(idx)
		selectionsTotal.WithLabelValues("hit").Inc()
		return idx, nil
	}

	v, err, _ := m.group.Do(name, func() (any, error) {
		return m.initialize(ctx, name, label)
	})
	if err != nil {
		m.mu.Lock()
		m.state = StateError
		m.mu.Unlock()
		selectionsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	idx := v.(Index)
	m.cache.Add(name, idx)
	m.activate(idx)
	return idx, nil
}

func (m *Manager) activate(idx Index) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = idx
	m.state = StateReady
}

func (m *Manager) initialize(ctx context.Context, name, label string) (Index, error) {
	m.mu.Lock()
	m.state = StateLoading
	m.mu.Unlock()

	idx, err := m.backend.Attach(ctx, name, label)
	if err == nil {
		m.logger.Info("Vector index attached", zap.String("index", name))
		selectionsTotal.WithLabelValues("loaded").Inc()
		return idx, nil
	}

	var notFound *apperrors.ErrIndexNotFound
	if !errors.As(err, &notFound) {
		m.logger.Error("Failed to attach vector index", zap.String("index", name), zap.Error(err))
		return nil, apperrors.NewIndexUnavailable(name, err)
	}

	m.logger.Info("Vector index not found, bootstrapping",
		zap.String("index", name),
		zap.String("label", label),
	)
	if err := m.backend.Bootstrap(ctx, name, label, constants.PlaceholderText); err != nil {
		m.logger.Error("Failed to bootstrap vector index", zap.String("index", name), zap.Error(err))
		return nil, apperrors.NewIndexUnavailable(name, err)
	}
	idx, err = m.backend.Attach(ctx, name, label)
	if err != nil {
		m.logger.Error("Failed to attach bootstrapped vector index", zap.String("index", name), zap.Error(err))
		return nil, apperrors.NewIndexUnavailable(name, err)
	}
	selectionsTotal.WithLabelValues("bootstrapped").Inc()
	return idx, nil
}

// SimilaritySearch returns neighbors of text whose score is strictly above
// the threshold, best first. An empty slice means nothing matched; an error
// means the search itself could not run.
func (m *Manager) SimilaritySearch(ctx context.Context, text string, opts SearchOptions) ([]Neighbor, error) {
	idx, err := m.Select(ctx, opts.IndexName, opts.Label)
	if err != nil {
		searchesTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	k := opts.K
	if k <= 0 {
		k = m.opts.SearchK
	}
	threshold := m.opts.Threshold
	if opts.Threshold != nil {
		threshold = *opts.Threshold
	}

	hits, err := idx.Search(ctx, text, k)
	if err != nil {
		m.logger.Warn("Similarity search failed", zap.String("index", idx.Name()), zap.Error(err))
		searchesTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	neighbors := make([]Neighbor, 0, len(hits))
	for _, hit := range hits {
		// The bootstrap placeholder is never a real match.
		if strings.TrimSpace(hit.Text) == "" {
			continue
		}
		if hit.Score > threshold {
			neighbors = append(neighbors, hit)
		}
	}
	sort.SliceStable(neighbors, func(i, j int) bool { return neighbors[i].Score > neighbors[j].Score })

	if len(neighbors) == 0 {
		searchesTotal.WithLabelValues("empty").Inc()
	} else {
		searchesTotal.WithLabelValues("matched").Inc()
	}
	m.logger.Debug("Similarity search",
		zap.String("index", idx.Name()),
		zap.Int("hits", len(hits)),
		zap.Int("kept", len(neighbors)),
		zap.Float64("threshold", threshold),
	)
	return neighbors, nil
}

// FindDocumentByText returns the closest indexed entry when it scores above
// the threshold (0.9 unless set), or nil.
func (m *Manager) FindDocumentByText(ctx context.Context, text string, opts SearchOptions) (*Neighbor, error) {
	if opts.Threshold == nil {
		opts.Threshold = Threshold(constants.DefaultDocumentMatchThreshold)
	}
	neighbors, err := m.SimilaritySearch(ctx, text, opts)
	if err != nil {
		return nil, err
	}
	if len(neighbors) == 0 {
		return nil, nil
	}
	best := neighbors[0]
	return &best, nil
}

// AddTexts stores each text as a node under the label and adds it to the
// index, returning one ref per input in input order. Text that already
// exists under the label reuses the existing node. A failure to index a
// stored node is logged and does not fail the call.
func (m *Manager) AddTexts(ctx context.Context, texts []string, opts AddOptions) ([]graph.NodeRef, error) {
	label := opts.Label
	if label == "" {
		label = constants.LabelChunk
	}
	idx, err := m.Select(ctx, opts.IndexName, label)
	if err != nil {
		return nil, err
	}

	refs := make([]graph.NodeRef, 0, len(texts))
	for _, text := range texts {
		existing, err := m.repo.FindNodesByText(ctx, text, label)
		if err != nil {
			return refs, err
		}
		if len(existing) > 0 {
			m.logger.Debug("Text already stored, reusing node",
				zap.String("node_id", existing[0].Ref().String()),
				zap.String("label", label),
			)
			refs = append(refs, existing[0].Ref())
			continue
		}

		props := make(map[string]any, len(opts.Properties)+2)
		for k, v := range opts.Properties {
			props[k] = v
		}
		props[constants.PropText] = text
		props[constants.PropLastIndexed] = timestamp()

		ref, err := m.repo.CreateNode(ctx, label, props)
		if err != nil {
			return refs, fmt.Errorf("failed to store text: %w", err)
		}
		if err := idx.Add(ctx, Document{ID: ref.String(), Text: text, Label: label}); err != nil {
			m.logger.Warn("Stored node could not be indexed",
				zap.String("node_id", ref.String()),
				zap.String("index", idx.Name()),
				zap.Error(err),
			)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

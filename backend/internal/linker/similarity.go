// Package linker connects stored nodes: by vector similarity, and by saving
// chunked text under its parents as an ordered sequence.
package linker

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"trails/backend/internal/constants"
	"trails/backend/internal/graph"
	"trails/backend/internal/vectorindex"
	"trails/backend/pkg/logger"

	apperrors "trails/backend/pkg/errors"
)

// SimilarityOptions control the similarity linkers.
type SimilarityOptions struct {
	// Threshold a neighbor score must exceed. Nil uses the index manager
	// default.
	Threshold *float64
	// Label scopes the index, the neighbor lookup and both endpoints.
	Label     string
	IndexName string
	// MaxNodes caps the neighbors linked per origin. Zero means no cap.
	MaxNodes      int
	Bidirectional bool
	Force         bool
}

// SimilarLink is one SIMILAR_TO edge written for an origin.
type SimilarLink struct {
	Target graph.NodeRef `json:"target"`
	Score  float64       `json:"similarity"`
}

// SimilarityResult is the outcome of linking one origin to its neighbors.
type SimilarityResult struct {
	Origin graph.NodeRef    `json:"origin"`
	Links  []SimilarLink    `json:"links"`
	Report graph.LinkReport `json:"report"`
	// Err is set when the origin could not be processed at all.
	Err error `json:"-"`
}

// OK is true when the origin was processed and no link failed.
func (r SimilarityResult) OK() bool {
	return r.Err == nil && r.Report.Failed == 0
}

// SimilarityLinker writes SIMILAR_TO edges between nodes whose text is close
// in the vector index. Index hits are always resolved back to graph nodes by
// exact text before anything is linked.
type SimilarityLinker struct {
	repo    *graph.Repository
	vectors *vectorindex.Manager
	logger  *zap.Logger
}

// NewSimilarityLinker creates a linker.
func NewSimilarityLinker(repo *graph.Repository, vectors *vectorindex.Manager) *SimilarityLinker {
	return &SimilarityLinker{
		repo:    repo,
		vectors: vectors,
		logger:  logger.Named("linker.similarity"),
	}
}

// FindAndLinkSimilarByID links the node at ref to the nodes whose text is
// similar to its own. Neighbors resolving to the origin, scoring 1.0 or more,
// or (when a label is set) carrying a different label are skipped. Without a
// label or index name the index of the origin's label is searched. A failed
// link is counted and the remaining neighbors are still processed. The error
// is non-nil only when the origin is missing or the search could not run.
func (l *SimilarityLinker) FindAndLinkSimilarByID(ctx context.Context, ref graph.NodeRef, opts SimilarityOptions) (SimilarityResult, error) {
	result := SimilarityResult{Origin: ref, Links: []SimilarLink{}}

	origin, ok := l.repo.FindNodeByID(ctx, ref)
	if !ok {
		l.logger.Warn("Origin node not found", zap.String("node_id", ref.String()))
		result.Err = apperrors.NewGraphNodeNotFound(ref.String())
		return result, result.Err
	}
	if opts.Label != "" && !origin.HasLabel(opts.Label) {
		l.logger.Debug("Origin does not carry the label, nothing to link",
			zap.String("node_id", ref.String()),
			zap.String("label", opts.Label),
		)
		return result, nil
	}

	indexLabel := opts.Label
	if indexLabel == "" && opts.IndexName == "" && len(origin.Labels) > 0 {
		// Text is indexed under the label it was stored with.
		indexLabel = origin.Labels[0]
	}

	k := 0
	if opts.MaxNodes > 0 {
		// One extra slot for the origin's own entry.
		k = opts.MaxNodes + 1
	}
	neighbors, err := l.vectors.SimilaritySearch(ctx, origin.Text(), vectorindex.SearchOptions{
		K:         k,
		Threshold: opts.Threshold,
		IndexName: opts.IndexName,
		Label:     indexLabel,
	})
	if err != nil {
		result.Err = err
		return result, err
	}

	sort.SliceStable(neighbors, func(i, j int) bool { return neighbors[i].Score > neighbors[j].Score })

	linked := 0
	for _, n := range neighbors {
		if opts.MaxNodes > 0 && linked >= opts.MaxNodes {
			break
		}
		if n.Score >= constants.DegenerateScore {
			l.logger.Debug("Skipping identical match", zap.Float64("score", n.Score))
			continue
		}
		if opts.Threshold != nil && n.Score <= *opts.Threshold {
			continue
		}

		targets, err := l.repo.FindNodesByText(ctx, n.Text, opts.Label)
		if err != nil {
			l.logger.Warn("Failed to resolve neighbor", zap.Error(err))
			result.Report.Failed++
			continue
		}

		refs := make([]graph.NodeRef, 0, len(targets))
		for _, t := range targets {
			if origin.Is(t.Ref()) || t.NativeID == origin.NativeID {
				continue
			}
			if opts.Label != "" && !t.HasLabel(opts.Label) {
				continue
			}
			refs = append(refs, t.Ref())
		}
		if len(refs) == 0 {
			continue
		}
		linked++

		report, err := l.repo.LinkNodes(ctx, []graph.NodeRef{ref}, refs, graph.LinkOptions{
			RelationshipType: constants.RelSimilarTo,
			EdgeProperties:   map[string]any{constants.PropSimilarity: n.Score},
			Force:            opts.Force,
			Bidirectional:    opts.Bidirectional,
		})
		if err != nil {
			l.logger.Warn("Failed to link similar nodes",
				zap.String("origin", ref.String()),
				zap.Error(err),
			)
			result.Report.Failed += len(refs)
			continue
		}
		result.Report.Add(report)
		if report.Failed == 0 {
			for _, target := range refs {
				result.Links = append(result.Links, SimilarLink{Target: target, Score: n.Score})
			}
		}
	}

	l.logger.Info("Similarity linking completed",
		zap.String("origin", ref.String()),
		zap.Int("neighbors", len(neighbors)),
		zap.Int("created", result.Report.Created),
		zap.Int("skipped", result.Report.Skipped),
		zap.Int("failed", result.Report.Failed),
	)
	return result, nil
}

// FindAndLinkSimilarByText links from the node whose text equals text
// exactly.
func (l *SimilarityLinker) FindAndLinkSimilarByText(ctx context.Context, text string, opts SimilarityOptions) (SimilarityResult, error) {
	nodes, err := l.repo.FindNodesByText(ctx, text, opts.Label)
	if err != nil {
		return SimilarityResult{Err: err}, err
	}
	if len(nodes) == 0 {
		l.logger.Warn("No node matches the text exactly", zap.String("label", opts.Label))
		err := apperrors.NewGraphNodeNotFound(text)
		return SimilarityResult{Err: err}, err
	}
	return l.FindAndLinkSimilarByID(ctx, nodes[0].Ref(), opts)
}

// FindAndLinkSimilarByTextFuzzy searches with text itself, resolves every
// hit to its graph nodes and links from each of them. One result is returned
// per resolved node; per-node failures are recorded in the result. Without a
// label or index name the Chunk index is searched. The error is non-nil only
// when the initial search fails.
func (l *SimilarityLinker) FindAndLinkSimilarByTextFuzzy(ctx context.Context, text string, opts SimilarityOptions) ([]SimilarityResult, error) {
	if opts.MaxNodes <= 0 {
		opts.MaxNodes = constants.DefaultFuzzyMaxNodes
	}
	searchLabel := opts.Label
	if searchLabel == "" && opts.IndexName == "" {
		searchLabel = constants.LabelChunk
	}
	hits, err := l.vectors.SimilaritySearch(ctx, text, vectorindex.SearchOptions{
		K:         opts.MaxNodes,
		Threshold: opts.Threshold,
		IndexName: opts.IndexName,
		Label:     searchLabel,
	})
	if err != nil {
		return nil, err
	}

	results := []SimilarityResult{}
	seen := map[int64]bool{}
	for _, hit := range hits {
		nodes, err := l.repo.FindNodesByText(ctx, hit.Text, opts.Label)
		if err != nil {
			results = append(results, SimilarityResult{Err: err})
			continue
		}
		for _, n := range nodes {
			if seen[n.NativeID] {
				continue
			}
			seen[n.NativeID] = true
			res, _ := l.FindAndLinkSimilarByID(ctx, n.Ref(), opts)
			results = append(results, res)
		}
	}
	return results, nil
}

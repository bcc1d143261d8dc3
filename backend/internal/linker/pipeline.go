package linker

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"trails/backend/internal/chunker"
	"trails/backend/internal/constants"
	"trails/backend/internal/graph"
	"trails/backend/internal/vectorindex"
	"trails/backend/pkg/logger"

	apperrors "trails/backend/pkg/errors"
)

// SaveRequest describes text to store as a chunk sequence.
type SaveRequest struct {
	// Label of the chunk nodes, Chunk by default.
	Label string
	// Text to store. When empty the texts of the parents are joined.
	Text string
	// Chunker splits the text; nil stores it as a single chunk.
	Chunker chunker.Chunker
	// RelationshipType links parents to chunks, LINKS_TO by default.
	RelationshipType string
	// SequenceRelationshipType, when set, chains consecutive chunks.
	SequenceRelationshipType string
	ParentIDs                []graph.NodeRef
	// ParentLinking is first_only (default) or all.
	ParentLinking string
	IndexName     string
	// Properties are stored on newly created chunk nodes.
	Properties map[string]any
}

// Pipeline saves chunked text and links it into the graph.
type Pipeline struct {
	repo    *graph.Repository
	vectors *vectorindex.Manager
	logger  *zap.Logger
}

// NewPipeline creates a pipeline.
func NewPipeline(repo *graph.Repository, vectors *vectorindex.Manager) *Pipeline {
	return &Pipeline{
		repo:    repo,
		vectors: vectors,
		logger:  logger.Named("linker.pipeline"),
	}
}

// SaveAndLinkSequentially chunks the request text, stores every chunk
// (reusing nodes whose text already exists under the label), links the
// parents to the chunks and chains the chunks in order. The returned refs
// follow chunk order. Having neither text nor parents to take it from is a
// caller error and returns *errors.ErrPreconditionViolated. Link failures are
// logged and do not fail the call.
func (p *Pipeline) SaveAndLinkSequentially(ctx context.Context, req SaveRequest) ([]graph.NodeRef, error) {
	const op = "save and link sequentially"

	if req.Label == "" {
		req.Label = constants.LabelChunk
	}
	if req.RelationshipType == "" {
		req.RelationshipType = constants.RelLinksTo
	}
	switch req.ParentLinking {
	case "":
		req.ParentLinking = constants.ParentLinkingFirstOnly
	case constants.ParentLinkingFirstOnly, constants.ParentLinkingAll:
	default:
		return nil, apperrors.NewPreconditionViolated(op, fmt.Sprintf("unknown parent linking pattern %q", req.ParentLinking))
	}
	if req.Text == "" && len(req.ParentIDs) == 0 {
		return nil, apperrors.NewPreconditionViolated(op, "either text or parent ids are required")
	}

	text := req.Text
	if text == "" {
		text = p.parentText(ctx, req.ParentIDs)
		if text == "" {
			return nil, apperrors.NewPreconditionViolated(op, "parents have no text to save")
		}
	}

	chunks := []string{text}
	if req.Chunker != nil {
		var err error
		chunks, err = req.Chunker.Chunk(text)
		if err != nil {
			return nil, fmt.Errorf("failed to chunk text: %w", err)
		}
	}
	if len(chunks) == 0 {
		p.logger.Warn("Chunker produced no chunks", zap.String("label", req.Label))
		return []graph.NodeRef{}, nil
	}

	refs, err := p.vectors.AddTexts(ctx, chunks, vectorindex.AddOptions{
		Label:      req.Label,
		IndexName:  req.IndexName,
		Properties: req.Properties,
	})
	if err != nil {
		return refs, err
	}

	if len(req.ParentIDs) > 0 {
		targets := refs
		if req.ParentLinking == constants.ParentLinkingFirstOnly {
			targets = refs[:1]
		}
		report, err := p.repo.LinkNodes(ctx, req.ParentIDs, targets, graph.LinkOptions{
			RelationshipType: req.RelationshipType,
		})
		if err != nil {
			return refs, err
		}
		p.logReport("parents", report)
	}

	if req.SequenceRelationshipType != "" && len(refs) > 1 {
		report, err := p.repo.LinkSequentially(ctx, refs, graph.SequenceOptions{
			LinkOptions: graph.LinkOptions{RelationshipType: req.SequenceRelationshipType},
		})
		if err != nil {
			return refs, err
		}
		p.logReport("sequence", report)
	}

	p.logger.Info("Saved and linked chunks",
		zap.String("label", req.Label),
		zap.Int("chunks", len(refs)),
		zap.Int("parents", len(req.ParentIDs)),
	)
	return refs, nil
}

func (p *Pipeline) parentText(ctx context.Context, parents []graph.NodeRef) string {
	texts := make([]string, 0, len(parents))
	for _, ref := range parents {
		node, ok := p.repo.FindNodeByID(ctx, ref)
		if !ok {
			p.logger.Warn("Parent not found", zap.String("node_id", ref.String()))
			continue
		}
		if t := node.Text(); t != "" {
			texts = append(texts, t)
		}
	}
	return strings.Join(texts, " ")
}

func (p *Pipeline) logReport(stage string, report graph.LinkReport) {
	if report.Failed > 0 {
		p.logger.Warn("Some links failed",
			zap.String("stage", stage),
			zap.Int("created", report.Created),
			zap.Int("skipped", report.Skipped),
			zap.Int("failed", report.Failed),
		)
	}
}

// Package ingest turns a loaded document into a Document node with ordered,
// summarised Section nodes.
package ingest

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"trails/backend/internal/adapter"
	"trails/backend/internal/chunker"
	"trails/backend/internal/constants"
	"trails/backend/internal/graph"
	"trails/backend/internal/linker"
	"trails/backend/internal/loader"
	"trails/backend/internal/vectorindex"
	"trails/backend/pkg/logger"

	apperrors "trails/backend/pkg/errors"
)

// Result describes an ingested document.
type Result struct {
	Document graph.NodeRef   `json:"document"`
	Sections []graph.NodeRef `json:"sections"`
	// Existing is true when the document was already stored.
	Existing bool `json:"existing"`
}

// Ingestor stores documents and their sections.
type Ingestor struct {
	repo     *graph.Repository
	vectors  *vectorindex.Manager
	pipeline *linker.Pipeline
	enricher adapter.Enricher
	chunker  chunker.Chunker
	logger   *zap.Logger
}

// New creates an ingestor. A nil enricher stores documents without
// metadata or summaries.
func New(repo *graph.Repository, vectors *vectorindex.Manager, enricher adapter.Enricher, c chunker.Chunker) *Ingestor {
	if c == nil {
		c = chunker.Paragraphs{}
	}
	return &Ingestor{
		repo:     repo,
		vectors:  vectors,
		pipeline: linker.NewPipeline(repo, vectors),
		enricher: enricher,
		chunker:  c,
		logger:   logger.Named("ingest"),
	}
}

// Ingest stores doc. A document whose text is already stored is returned
// as is with its sections. Enrichment failures are logged and the document
// is stored without the missing fields.
func (i *Ingestor) Ingest(ctx context.Context, doc loader.Document) (*Result, error) {
	text := strings.TrimSpace(doc.Text)
	if text == "" {
		return nil, apperrors.NewPreconditionViolated("ingest", "document has no text")
	}

	if existing, err := i.findExisting(ctx, text); err != nil {
		return nil, err
	} else if existing != nil {
		refs, err := i.sections(ctx, existing)
		if err != nil {
			return nil, err
		}
		i.logger.Info("Document already ingested",
			zap.String("node_id", existing.Ref().String()),
			zap.Int("sections", len(refs)),
		)
		return &Result{Document: existing.Ref(), Sections: refs, Existing: true}, nil
	}

	props := i.metadata(ctx, doc, text)
	docRefs, err := i.vectors.AddTexts(ctx, []string{text}, vectorindex.AddOptions{
		Label:      constants.LabelDocument,
		Properties: props,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}
	docRef := docRefs[0]

	sections, err := i.pipeline.SaveAndLinkSequentially(ctx, linker.SaveRequest{
		Label:                    constants.LabelSection,
		Text:                     text,
		Chunker:                  i.chunker,
		RelationshipType:         constants.RelContains,
		SequenceRelationshipType: constants.RelNext,
		ParentIDs:                []graph.NodeRef{docRef},
		ParentLinking:            constants.ParentLinkingFirstOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store sections: %w", err)
	}

	order := make([]string, len(sections))
	for n, ref := range sections {
		order[n] = ref.String()
	}
	if !i.repo.UpdateNodeProperties(ctx, docRef, map[string]any{constants.PropSectionIDs: order}) {
		i.logger.Warn("Failed to store section order", zap.String("node_id", docRef.String()))
	}

	i.summarise(ctx, docRef, sections)

	i.logger.Info("Document ingested",
		zap.String("node_id", docRef.String()),
		zap.String("source", doc.Source),
		zap.Int("sections", len(sections)),
	)
	return &Result{Document: docRef, Sections: sections}, nil
}

// sections returns the stored sections of a document in reading order. The
// order recorded at ingestion wins; documents without one are read by
// following the NEXT chain from each contained section. A section shared
// with another document can have several NEXT edges; the walk follows the
// first and may continue into the other document's chain.
func (i *Ingestor) sections(ctx context.Context, doc *graph.Node) ([]graph.NodeRef, error) {
	if ids := stringList(doc.Props[constants.PropSectionIDs]); len(ids) > 0 {
		refs := make([]graph.NodeRef, 0, len(ids))
		for _, id := range ids {
			ref, err := graph.ParseNodeRef(id)
			if err != nil {
				return nil, fmt.Errorf("invalid section id on %s: %w", doc.Ref(), err)
			}
			refs = append(refs, ref)
		}
		return refs, nil
	}

	heads, err := i.repo.FindChildNodes(ctx, doc.Ref(), constants.LabelSection, constants.RelNext)
	if err != nil {
		return nil, err
	}

	refs := []graph.NodeRef{}
	visited := map[int64]bool{}
	for _, head := range heads {
		current := head
		for !visited[current.NativeID] {
			visited[current.NativeID] = true
			refs = append(refs, current.Ref())

			from := graph.NativeID(current.NativeID)
			edges, err := i.repo.FindEdgesByRelationshipType(ctx, constants.RelNext, &from, nil)
			if err != nil {
				return nil, err
			}
			if len(edges) == 0 {
				break
			}
			next, ok := i.repo.FindNodeByID(ctx, graph.NativeID(edges[0].EndID))
			if !ok {
				break
			}
			current = *next
		}
	}
	return refs, nil
}

// findExisting looks the document up by exact text first, then by a close
// match in the document index.
func (i *Ingestor) findExisting(ctx context.Context, text string) (*graph.Node, error) {
	nodes, err := i.repo.FindNodesByText(ctx, text, constants.LabelDocument)
	if err != nil {
		return nil, err
	}
	if len(nodes) > 0 {
		return &nodes[0], nil
	}

	match, err := i.vectors.FindDocumentByText(ctx, text, vectorindex.SearchOptions{Label: constants.LabelDocument})
	if err != nil {
		i.logger.Warn("Document lookup by similarity failed", zap.Error(err))
		return nil, nil
	}
	if match == nil {
		return nil, nil
	}
	nodes, err = i.repo.FindNodesByText(ctx, match.Text, constants.LabelDocument)
	if err != nil || len(nodes) == 0 {
		return nil, err
	}
	i.logger.Info("Found a near duplicate document", zap.Float64("score", match.Score))
	return &nodes[0], nil
}

func (i *Ingestor) metadata(ctx context.Context, doc loader.Document, text string) map[string]any {
	props := map[string]any{}
	if doc.Source != "" {
		props[constants.PropSource] = doc.Source
	}
	if doc.Title != "" {
		props[constants.PropTitle] = doc.Title
	}
	if i.enricher == nil {
		return props
	}

	fields, err := i.enricher.Enrich(ctx, text, adapter.DocumentMetadata)
	if err != nil {
		i.logger.Warn("Document enrichment failed", zap.Error(err))
		return props
	}
	for _, key := range []string{constants.PropTitle, constants.PropSummary} {
		if v, ok := fields[key].(string); ok && v != "" {
			props[key] = v
		}
	}
	if topics := stringList(fields[constants.PropTopics]); len(topics) > 0 {
		props[constants.PropTopics] = topics
	}
	return props
}

// summarise stores a summary on every section and their concatenation on
// the document.
func (i *Ingestor) summarise(ctx context.Context, docRef graph.NodeRef, sections []graph.NodeRef) {
	if i.enricher == nil || len(sections) == 0 {
		return
	}

	summaries := make([]string, 0, len(sections))
	for _, ref := range sections {
		node, ok := i.repo.FindNodeByID(ctx, ref)
		if !ok {
			continue
		}
		fields, err := i.enricher.Enrich(ctx, node.Text(), adapter.SectionSummary)
		if err != nil {
			i.logger.Warn("Section enrichment failed", zap.String("node_id", ref.String()), zap.Error(err))
			continue
		}
		summary, _ := fields[constants.PropSummary].(string)
		if summary == "" {
			continue
		}
		if !i.repo.UpdateNodeProperties(ctx, ref, map[string]any{constants.PropSummary: summary}) {
			i.logger.Warn("Failed to store section summary", zap.String("node_id", ref.String()))
		}
		summaries = append(summaries, summary)
	}

	if len(summaries) == 0 {
		return
	}
	combined := strings.Join(summaries, " ")
	if !i.repo.UpdateNodeProperties(ctx, docRef, map[string]any{constants.PropCombinedSummary: combined}) {
		i.logger.Warn("Failed to store combined summary", zap.String("node_id", docRef.String()))
	}
}

func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if list != "" {
			return []string{list}
		}
	}
	return nil
}

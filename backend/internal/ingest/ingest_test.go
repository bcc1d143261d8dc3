package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trails/backend/internal/adapter"
	"trails/backend/internal/graph"
	"trails/backend/internal/graph/graphtest"
	"trails/backend/internal/loader"
	"trails/backend/internal/vectorindex"
	"trails/backend/internal/vectorindex/vectortest"

	apperrors "trails/backend/pkg/errors"
)

// stubEnricher summarises by taking the first word of the text.
type stubEnricher struct {
	calls map[string]int
	fail  bool
}

func (s *stubEnricher) Enrich(_ context.Context, text string, schema adapter.Schema) (map[string]any, error) {
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	s.calls[schema.Name]++
	if s.fail {
		return nil, apperrors.NewEnrichmentFailed("stub", 3, errors.New("down"))
	}
	first := strings.Fields(text)[0]
	switch schema.Name {
	case adapter.DocumentMetadata.Name:
		return map[string]any{"title": "Title " + first, "summary": "About " + first, "topics": []any{"a", "b"}}, nil
	default:
		return map[string]any{"summary": "S-" + first}, nil
	}
}

func newIngestor(t *testing.T, enricher adapter.Enricher) (*Ingestor, *graphtest.MemoryStore) {
	t.Helper()
	mem := graphtest.New()
	repo := graph.NewRepository(mem)
	vectors, err := vectorindex.NewManager(vectortest.NewBackend(), repo, vectorindex.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { assert.Empty(t, mem.Unhandled, "queries not understood by the memory store") })
	return New(repo, vectors, enricher, nil), mem
}

const doc = "Alpha paragraph.\n\nBeta paragraph.\n\nGamma paragraph."

func TestIngest(t *testing.T) {
	enricher := &stubEnricher{}
	ing, mem := newIngestor(t, enricher)
	ctx := context.Background()

	res, err := ing.Ingest(ctx, loader.Document{Source: "notes.txt", Title: "notes", Text: doc})
	require.NoError(t, err)
	assert.False(t, res.Existing)
	require.Len(t, res.Sections, 3)

	docNode := mem.NodeProps(mem.NodeIDsByProp("id", res.Document.String())[0])
	assert.Equal(t, doc, docNode["text"])
	assert.Equal(t, "notes.txt", docNode["source"])
	assert.Equal(t, "Title Alpha", docNode["title"])
	assert.Equal(t, "About Alpha", docNode["summary"])
	assert.Equal(t, []string{"a", "b"}, docNode["topics"])
	assert.Equal(t, "S-Alpha S-Beta S-Gamma", docNode["combined_summary"])

	for i, want := range []string{"S-Alpha", "S-Beta", "S-Gamma"} {
		props := mem.NodeProps(mem.NodeIDsByProp("id", res.Sections[i].String())[0])
		assert.Equal(t, want, props["summary"])
	}

	assert.Len(t, mem.Edges("CONTAINS"), 1)
	assert.Len(t, mem.Edges("NEXT"), 2)
	assert.Equal(t, 1, mem.CountNodes("Document"))
	assert.Equal(t, 3, mem.CountNodes("Section"))
	assert.Equal(t, 3, enricher.calls[adapter.SectionSummary.Name])
}

func TestIngest_ExistingDocument(t *testing.T) {
	enricher := &stubEnricher{}
	ing, mem := newIngestor(t, enricher)
	ctx := context.Background()

	first, err := ing.Ingest(ctx, loader.Document{Text: doc})
	require.NoError(t, err)
	second, err := ing.Ingest(ctx, loader.Document{Text: "  " + doc + "\n"})
	require.NoError(t, err)

	assert.True(t, second.Existing)
	assert.Equal(t, first.Document, second.Document)
	assert.Equal(t, first.Sections, second.Sections)
	assert.Equal(t, 1, mem.CountNodes("Document"))
	assert.Equal(t, 1, enricher.calls[adapter.DocumentMetadata.Name])
}

func TestIngest_SharedSectionKeepsEachDocumentsOrder(t *testing.T) {
	ing, mem := newIngestor(t, nil)
	ctx := context.Background()

	first, err := ing.Ingest(ctx, loader.Document{Text: "Alpha.\n\nShared.\n\nOmega."})
	require.NoError(t, err)
	second, err := ing.Ingest(ctx, loader.Document{Text: "Beta.\n\nShared.\n\nZeta."})
	require.NoError(t, err)
	require.Len(t, second.Sections, 3)
	assert.Equal(t, first.Sections[1], second.Sections[1])
	assert.Equal(t, 5, mem.CountNodes("Section"))

	again, err := ing.Ingest(ctx, loader.Document{Text: "Beta.\n\nShared.\n\nZeta."})
	require.NoError(t, err)
	assert.True(t, again.Existing)
	assert.Equal(t, second.Sections, again.Sections)

	props := mem.NodeProps(mem.NodeIDsByProp("id", second.Document.String())[0])
	assert.Len(t, props["section_ids"], 3)
}

func TestIngest_ExistingWithoutRecordedOrder(t *testing.T) {
	ing, _ := newIngestor(t, nil)
	ctx := context.Background()

	first, err := ing.Ingest(ctx, loader.Document{Text: doc})
	require.NoError(t, err)
	require.True(t, ing.repo.UpdateNodeProperties(ctx, first.Document, map[string]any{"section_ids": nil}))

	again, err := ing.Ingest(ctx, loader.Document{Text: doc})
	require.NoError(t, err)
	assert.True(t, again.Existing)
	assert.Equal(t, first.Sections, again.Sections)
}

func TestIngest_EnrichmentFailureStillStores(t *testing.T) {
	ing, mem := newIngestor(t, &stubEnricher{fail: true})

	res, err := ing.Ingest(context.Background(), loader.Document{Title: "fallback", Text: doc})
	require.NoError(t, err)
	assert.Len(t, res.Sections, 3)

	props := mem.NodeProps(mem.NodeIDsByProp("id", res.Document.String())[0])
	assert.Equal(t, "fallback", props["title"])
	assert.NotContains(t, props, "combined_summary")
}

func TestIngest_WithoutEnricher(t *testing.T) {
	ing, mem := newIngestor(t, nil)

	res, err := ing.Ingest(context.Background(), loader.Document{Text: "single section"})
	require.NoError(t, err)
	assert.Len(t, res.Sections, 1)
	assert.Empty(t, mem.Edges("NEXT"))
	assert.Len(t, mem.Edges("CONTAINS"), 1)
}

func TestIngest_EmptyDocument(t *testing.T) {
	ing, _ := newIngestor(t, nil)

	_, err := ing.Ingest(context.Background(), loader.Document{Text: " \n "})
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypePrecondition))
}

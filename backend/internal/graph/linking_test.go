package graph

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trails/backend/internal/graph/graphtest"
)

func newTestRepo(t *testing.T) (*Repository, *graphtest.MemoryStore) {
	t.Helper()
	mem := graphtest.New()
	repo := NewRepository(mem)
	repo.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { assert.Empty(t, mem.Unhandled, "queries not understood by the memory store") })
	return repo, mem
}

func seedChunk(mem *graphtest.MemoryStore, id, text string) NodeRef {
	mem.AddNode([]string{"Chunk"}, map[string]any{"id": id, "text": text})
	return ExternalID(id)
}

func TestLinkNodes_Idempotent(t *testing.T) {
	repo, mem := newTestRepo(t)
	ctx := context.Background()
	a := seedChunk(mem, "a", "alpha")
	b := seedChunk(mem, "b", "beta")

	first, err := repo.LinkNodes(ctx, []NodeRef{a}, []NodeRef{b}, LinkOptions{})
	require.NoError(t, err)
	assert.Equal(t, LinkReport{Created: 1}, first)
	assert.True(t, first.OK())

	second, err := repo.LinkNodes(ctx, []NodeRef{a}, []NodeRef{b}, LinkOptions{})
	require.NoError(t, err)
	assert.Equal(t, LinkReport{Skipped: 1}, second)
	assert.True(t, second.OK())

	edges := mem.Edges("LINKS_TO")
	require.Len(t, edges, 1)
	assert.Equal(t, "2024-05-01 12:00:00", edges[0].Props["last_indexed"])
}

func TestLinkNodes_ForceRefreshesWithoutDuplicating(t *testing.T) {
	repo, mem := newTestRepo(t)
	ctx := context.Background()
	a := seedChunk(mem, "a", "alpha")
	b := seedChunk(mem, "b", "beta")

	_, err := repo.LinkNodes(ctx, []NodeRef{a}, []NodeRef{b}, LinkOptions{EdgeProperties: map[string]any{"weight": 1}})
	require.NoError(t, err)
	report, err := repo.LinkNodes(ctx, []NodeRef{a}, []NodeRef{b}, LinkOptions{
		EdgeProperties: map[string]any{"weight": 2},
		Force:          true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)

	edges := mem.Edges("LINKS_TO")
	require.Len(t, edges, 1)
	assert.Equal(t, 2, edges[0].Props["weight"])
}

func TestLinkNodes_SelfLinksExcluded(t *testing.T) {
	repo, mem := newTestRepo(t)
	ctx := context.Background()
	a := seedChunk(mem, "a", "alpha")

	report, err := repo.LinkNodes(ctx, []NodeRef{a}, []NodeRef{a}, LinkOptions{})
	require.NoError(t, err)
	assert.False(t, report.OK())
	assert.Empty(t, mem.Edges(""))
}

func TestLinkNodes_EmptyTargets(t *testing.T) {
	repo, mem := newTestRepo(t)
	a := seedChunk(mem, "a", "alpha")

	report, err := repo.LinkNodes(context.Background(), []NodeRef{a}, nil, LinkOptions{})
	require.NoError(t, err)
	assert.False(t, report.OK())
	assert.Zero(t, mem.Writes)
}

func TestLinkNodes_Bidirectional(t *testing.T) {
	repo, mem := newTestRepo(t)
	ctx := context.Background()
	a := seedChunk(mem, "a", "alpha")
	b := seedChunk(mem, "b", "beta")

	// Only the forward edge exists, so a bidirectional call must still run.
	_, err := repo.LinkNodes(ctx, []NodeRef{a}, []NodeRef{b}, LinkOptions{RelationshipType: "SIMILAR_TO"})
	require.NoError(t, err)
	report, err := repo.LinkNodes(ctx, []NodeRef{a}, []NodeRef{b}, LinkOptions{RelationshipType: "SIMILAR_TO", Bidirectional: true})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)

	edges := mem.Edges("SIMILAR_TO")
	assert.Len(t, edges, 2)

	report, err = repo.LinkNodes(ctx, []NodeRef{a}, []NodeRef{b}, LinkOptions{RelationshipType: "SIMILAR_TO", Bidirectional: true})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
}

func TestLinkNodes_ContinuesPastFailures(t *testing.T) {
	repo, mem := newTestRepo(t)
	ctx := context.Background()
	a := seedChunk(mem, "a", "alpha")
	b := seedChunk(mem, "b", "beta")
	c := seedChunk(mem, "c", "gamma")

	mem.WriteFailer = func(query string, params map[string]any) bool {
		return strings.Contains(query, "MERGE") && params["target"] == "b"
	}

	report, err := repo.LinkNodes(ctx, []NodeRef{a}, []NodeRef{b, c}, LinkOptions{})
	require.NoError(t, err)
	assert.Equal(t, LinkReport{Created: 1, Failed: 1}, report)
	assert.False(t, report.OK())
	assert.Len(t, mem.Edges("LINKS_TO"), 1)
}

func TestLinkNodes_MissingEndpointFails(t *testing.T) {
	repo, mem := newTestRepo(t)
	ctx := context.Background()
	a := seedChunk(mem, "a", "alpha")
	b := seedChunk(mem, "b", "beta")

	report, err := repo.LinkNodes(ctx, []NodeRef{a}, []NodeRef{ExternalID("does-not-exist"), b}, LinkOptions{})
	require.NoError(t, err)
	assert.Equal(t, LinkReport{Created: 1, Failed: 1}, report)
	assert.False(t, report.OK())
	assert.Len(t, mem.Edges("LINKS_TO"), 1)

	report, err = repo.LinkNodes(ctx, []NodeRef{ExternalID("ghost")}, []NodeRef{a}, LinkOptions{})
	require.NoError(t, err)
	assert.Equal(t, LinkReport{Failed: 1}, report)
}

func TestLinkNodes_SameNodeByBothRefs(t *testing.T) {
	repo, mem := newTestRepo(t)
	a := seedChunk(mem, "a", "alpha")
	nid := mem.NodeIDsByProp("id", "a")[0]

	report, err := repo.LinkNodes(context.Background(), []NodeRef{a}, []NodeRef{NativeID(nid)}, LinkOptions{})
	require.NoError(t, err)
	assert.Equal(t, LinkReport{}, report)
	assert.Empty(t, mem.Edges(""))
}

func TestLinkNodes_RejectsUnsafeRelationshipType(t *testing.T) {
	repo, mem := newTestRepo(t)
	a := seedChunk(mem, "a", "alpha")
	b := seedChunk(mem, "b", "beta")

	_, err := repo.LinkNodes(context.Background(), []NodeRef{a}, []NodeRef{b}, LinkOptions{
		RelationshipType: "X]->(m) DETACH DELETE m //",
	})
	require.Error(t, err)
	assert.Zero(t, mem.Writes)
}

func TestLinkNodes_NativeIDs(t *testing.T) {
	repo, mem := newTestRepo(t)
	ctx := context.Background()
	x := mem.AddNode([]string{"Chunk"}, map[string]any{"text": "no external id"})
	y := mem.AddNode([]string{"Chunk"}, map[string]any{"text": "also none"})

	report, err := repo.LinkNodes(ctx, []NodeRef{NativeID(x)}, []NodeRef{NativeID(y)}, LinkOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)

	edges := mem.Edges("LINKS_TO")
	require.Len(t, edges, 1)
	assert.Equal(t, x, edges[0].Start)
	assert.Equal(t, y, edges[0].End)
}

func TestLinkSequentially(t *testing.T) {
	repo, mem := newTestRepo(t)
	ctx := context.Background()
	c1 := seedChunk(mem, "c1", "one")
	c2 := seedChunk(mem, "c2", "two")
	c3 := seedChunk(mem, "c3", "three")

	report, err := repo.LinkSequentially(ctx, []NodeRef{c1, c2, c3}, SequenceOptions{
		LinkOptions: LinkOptions{RelationshipType: "NEXT"},
	})
	require.NoError(t, err)
	assert.Equal(t, LinkReport{Created: 2}, report)

	id := func(ext string) int64 { return mem.NodeIDsByProp("id", ext)[0] }
	var pairs [][2]int64
	for _, e := range mem.Edges("NEXT") {
		pairs = append(pairs, [2]int64{e.Start, e.End})
	}
	assert.ElementsMatch(t, [][2]int64{{id("c1"), id("c2")}, {id("c2"), id("c3")}}, pairs)
}

func TestLinkSequentially_CloseLoop(t *testing.T) {
	repo, mem := newTestRepo(t)
	ctx := context.Background()
	c1 := seedChunk(mem, "c1", "one")
	c2 := seedChunk(mem, "c2", "two")
	c3 := seedChunk(mem, "c3", "three")

	report, err := repo.LinkSequentially(ctx, []NodeRef{c1, c2, c3}, SequenceOptions{
		LinkOptions: LinkOptions{RelationshipType: "NEXT"},
		CloseLoop:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Created)
	assert.True(t, report.OK())

	exists, err := repo.EdgeExists(ctx, "NEXT", c3, c1)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestLinkSequentially_ExplicitOrigins(t *testing.T) {
	repo, mem := newTestRepo(t)
	ctx := context.Background()
	doc := seedChunk(mem, "doc", "document")
	c1 := seedChunk(mem, "c1", "one")
	c2 := seedChunk(mem, "c2", "two")

	report, err := repo.LinkSequentially(ctx, []NodeRef{c1, c2}, SequenceOptions{Origins: []NodeRef{doc}})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Created)

	for _, pair := range [][2]NodeRef{{doc, c1}, {c1, c2}} {
		exists, err := repo.EdgeExists(ctx, "LINKS_TO", pair[0], pair[1])
		require.NoError(t, err)
		assert.True(t, exists, "%s -> %s", pair[0], pair[1])
	}
}

func TestLinkSequentially_NeedsTwoTargets(t *testing.T) {
	repo, mem := newTestRepo(t)
	c1 := seedChunk(mem, "c1", "one")

	report, err := repo.LinkSequentially(context.Background(), []NodeRef{c1}, SequenceOptions{})
	require.NoError(t, err)
	assert.False(t, report.OK())
	assert.Empty(t, mem.Edges(""))
}

func TestLinkSequentially_CloseLoopFailureStops(t *testing.T) {
	repo, mem := newTestRepo(t)
	ctx := context.Background()
	c1 := seedChunk(mem, "c1", "one")
	c2 := seedChunk(mem, "c2", "two")

	mem.WriteFailer = func(_ string, params map[string]any) bool {
		return params["origin"] == "c2" && params["target"] == "c1"
	}

	report, err := repo.LinkSequentially(ctx, []NodeRef{c1, c2}, SequenceOptions{CloseLoop: true})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 1, report.Failed)
	assert.False(t, report.OK())
}

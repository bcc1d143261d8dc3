package graph

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "trails/backend/pkg/errors"
)

func TestParseNodeRef(t *testing.T) {
	ref, err := ParseNodeRef("42")
	require.NoError(t, err)
	assert.True(t, ref.IsNative())
	assert.Equal(t, "42", ref.String())

	ref, err = ParseNodeRef("3f2a-uuid")
	require.NoError(t, err)
	assert.False(t, ref.IsNative())

	_, err = ParseNodeRef("")
	assert.Error(t, err)
}

func TestNodeRefJSON(t *testing.T) {
	var refs []NodeRef
	require.NoError(t, json.Unmarshal([]byte(`[7, "abc", "12"]`), &refs))
	assert.Equal(t, []NodeRef{NativeID(7), ExternalID("abc"), NativeID(12)}, refs)

	out, err := json.Marshal(refs)
	require.NoError(t, err)
	assert.JSONEq(t, `[7, "abc", 12]`, string(out))
}

func TestValidateIdentifier(t *testing.T) {
	for _, ok := range []string{"Chunk", "LINKS_TO", "_private", "last_indexed2"} {
		assert.NoError(t, ValidateIdentifier("label", ok), ok)
	}
	for _, bad := range []string{"", "9lives", "a b", "x`y", "Label)-[r]-(", "n.text"} {
		err := ValidateIdentifier("label", bad)
		assert.Error(t, err, bad)
		assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeGraph))
	}
}

func TestFindNodeByID(t *testing.T) {
	repo, mem := newTestRepo(t)
	ctx := context.Background()
	native := mem.AddNode([]string{"Chunk"}, map[string]any{"id": "ext-1", "text": "hello", "embedding": []float64{0.1}})

	node, ok := repo.FindNodeByID(ctx, ExternalID("ext-1"))
	require.True(t, ok)
	assert.Equal(t, native, node.NativeID)
	assert.Equal(t, "hello", node.Text())
	assert.True(t, node.HasLabel("Chunk"))
	assert.NotContains(t, node.Props, "embedding")
	assert.Equal(t, ExternalID("ext-1"), node.Ref())

	node, ok = repo.FindNodeByID(ctx, NativeID(native))
	require.True(t, ok)
	assert.Equal(t, "hello", node.Text())

	_, ok = repo.FindNodeByID(ctx, ExternalID("missing"))
	assert.False(t, ok)

	mem.FailReads = true
	_, ok = repo.FindNodeByID(ctx, ExternalID("ext-1"))
	assert.False(t, ok)
}

func TestFindNodesByProperties(t *testing.T) {
	repo, mem := newTestRepo(t)
	ctx := context.Background()
	mem.AddNode([]string{"Chunk"}, map[string]any{"text": "same", "lang": "en"})
	mem.AddNode([]string{"Section"}, map[string]any{"text": "same", "lang": "en"})
	mem.AddNode([]string{"Chunk"}, map[string]any{"text": "same", "lang": "de"})

	nodes, err := repo.FindNodesByProperties(ctx, map[string]any{"text": "same", "lang": "en"}, "")
	require.NoError(t, err)
	assert.Len(t, nodes, 2)

	nodes, err = repo.FindNodesByProperties(ctx, map[string]any{"text": "same", "lang": "en"}, "Chunk")
	require.NoError(t, err)
	assert.Len(t, nodes, 1)

	nodes, err = repo.FindNodesByText(ctx, "absent", "Chunk")
	require.NoError(t, err)
	assert.NotNil(t, nodes)
	assert.Empty(t, nodes)

	_, err = repo.FindNodesByProperties(ctx, map[string]any{"text) DETACH DELETE n //": 1}, "")
	assert.Error(t, err)
}

func TestFindParentAndChildren(t *testing.T) {
	repo, mem := newTestRepo(t)
	ctx := context.Background()
	doc := mem.AddNode([]string{"Document"}, map[string]any{"id": "doc"})
	s1 := mem.AddNode([]string{"Section"}, map[string]any{"id": "s1", "text": "one"})
	s2 := mem.AddNode([]string{"Section"}, map[string]any{"id": "s2", "text": "two"})
	s3 := mem.AddNode([]string{"Section"}, map[string]any{"id": "s3", "text": "three"})

	// Reading order s3 -> s1 -> s2 differs from creation order.
	for _, s := range []int64{s1, s2, s3} {
		mem.AddEdge(doc, s, "CONTAINS", nil)
	}
	mem.AddEdge(s3, s1, "NEXT", nil)
	mem.AddEdge(s1, s2, "NEXT", nil)

	parent, err := repo.FindParentByChildID(ctx, ExternalID("s2"), "Document")
	require.NoError(t, err)
	require.NotNil(t, parent)
	assert.Equal(t, doc, parent.NativeID)

	parent, err = repo.FindParentByChildID(ctx, ExternalID("doc"), "Document")
	require.NoError(t, err)
	assert.Nil(t, parent)

	children, err := repo.FindChildNodes(ctx, ExternalID("doc"), "Section", "NEXT")
	require.NoError(t, err)
	var texts []string
	for _, c := range children {
		texts = append(texts, c.Text())
	}
	assert.Equal(t, []string{"three", "one", "two"}, texts)

	children, err = repo.FindChildNodes(ctx, ExternalID("doc"), "Section", "")
	require.NoError(t, err)
	assert.Len(t, children, 3)
	assert.Equal(t, s1, children[0].NativeID)
}

func TestCreateAndUpdateNode(t *testing.T) {
	repo, mem := newTestRepo(t)
	ctx := context.Background()

	ref, err := repo.CreateNode(ctx, "Chunk", map[string]any{"text": "fresh"})
	require.NoError(t, err)
	assert.False(t, ref.IsNative())
	assert.NotEmpty(t, ref.String())
	assert.True(t, repo.NodeExists(ctx, ref))

	require.True(t, repo.UpdateNodeProperties(ctx, ref, map[string]any{"summary": "short"}))
	node, ok := repo.FindNodeByID(ctx, ref)
	require.True(t, ok)
	assert.Equal(t, "short", node.Props["summary"])
	assert.Equal(t, "fresh", node.Text())

	mem.FailWrites = true
	_, err = repo.CreateNode(ctx, "Chunk", map[string]any{"text": "lost"})
	assert.Error(t, err)
	assert.False(t, repo.UpdateNodeProperties(ctx, ref, map[string]any{"x": 1}))
}

func TestFindEdges(t *testing.T) {
	repo, mem := newTestRepo(t)
	ctx := context.Background()
	a := mem.AddNode([]string{"Chunk"}, map[string]any{"id": "a"})
	b := mem.AddNode([]string{"Chunk"}, map[string]any{"id": "b"})
	c := mem.AddNode([]string{"Chunk"}, map[string]any{"id": "c"})
	ab := mem.AddEdge(a, b, "SIMILAR_TO", map[string]any{"similarity": 0.9})
	mem.AddEdge(a, c, "SIMILAR_TO", map[string]any{"similarity": 0.7})
	mem.AddEdge(b, c, "NEXT", nil)

	edge, ok := repo.FindEdgeByID(ctx, ab)
	require.True(t, ok)
	assert.Equal(t, "SIMILAR_TO", edge.Type)
	assert.Equal(t, a, edge.StartID)
	assert.Equal(t, b, edge.EndID)

	origin := ExternalID("a")
	edges, err := repo.FindEdgesByRelationshipType(ctx, "SIMILAR_TO", &origin, nil)
	require.NoError(t, err)
	assert.Len(t, edges, 2)

	target := NativeID(c)
	edges, err = repo.FindEdgesByRelationshipType(ctx, "SIMILAR_TO", nil, &target)
	require.NoError(t, err)
	assert.Len(t, edges, 1)

	// A value that would break out of an interpolated query is just a value.
	edges, err = repo.FindEdgesByProperty(ctx, "similarity", "0.9' OR 1=1 //", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, edges)

	edges, err = repo.FindEdgesByProperty(ctx, "similarity", 0.9, nil, nil)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, ab, edges[0].NativeID)

	_, err = repo.FindEdgesByRelationshipType(ctx, "NEXT|SIMILAR_TO", nil, nil)
	assert.Error(t, err)
}

func TestOrderBySequence(t *testing.T) {
	nodes := []Node{{NativeID: 1}, {NativeID: 2}, {NativeID: 3}, {NativeID: 4}}
	edges := []Edge{{StartID: 2, EndID: 1}, {StartID: 1, EndID: 3}, {StartID: 4, EndID: 99}}

	ordered := orderBySequence(nodes, edges)
	var ids []int64
	for _, n := range ordered {
		ids = append(ids, n.NativeID)
	}
	assert.Equal(t, []int64{2, 1, 3, 4}, ids)

	loop := orderBySequence(nodes[:2], []Edge{{StartID: 1, EndID: 2}, {StartID: 2, EndID: 1}})
	assert.Len(t, loop, 2)
}

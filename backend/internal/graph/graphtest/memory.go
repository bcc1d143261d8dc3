// Package graphtest provides an in-memory graph executor that understands the
// query shapes issued by the graph repository, for tests that must not need
// a running database.
package graphtest

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"sync"
)

var (
	spaceRe = regexp.MustCompile(`\s+`)

	nodeMatchRe = regexp.MustCompile(`^MATCH \((\w+)(?::(\w+))?\)(?:-->\((\w+)(?::(\w+))?\))?(?: WHERE (.+?))? RETURN id\((\w+)\) AS nid`)
	edgeMatchRe = regexp.MustCompile(`^MATCH \(a\)-\[r(?::(\w+))?\]->\(b\)(?: WHERE (.+?))? RETURN id\(r\) AS rid`)
	createRe    = regexp.MustCompile(`^CREATE \(n:(\w+)\) SET n = \$props$`)
	updateRe    = regexp.MustCompile(`^MATCH \(n\) WHERE (.+?) SET n \+= \$props$`)
	linkRe      = regexp.MustCompile(`^MATCH \(a\) WHERE (.+?) MATCH \(b\) WHERE (.+?) MERGE \(a\)-\[r1:(\w+)\]->\(b\) SET r1 \+= \$props( MERGE \(b\)-\[r2:\w+\]->\(a\) SET r2 \+= \$props)?$`)
	schemaRe    = regexp.MustCompile(`^CREATE (VECTOR )?INDEX `)

	idEqRe   = regexp.MustCompile(`^id\((\w+)\) = \$(\w+)$`)
	idInRe   = regexp.MustCompile(`^id\((\w+)\) IN \$(\w+)$`)
	propEqRe = regexp.MustCompile(`^(\w+)\.(\w+) = \$(\w+)$`)
	neqRe    = regexp.MustCompile(`^(\w+) <> (\w+)$`)
)

// Edge is a stored relationship as seen by tests.
type Edge struct {
	ID    int64
	Type  string
	Start int64
	End   int64
	Props map[string]any
}

type node struct {
	id     int64
	labels []string
	props  map[string]any
}

type entity struct {
	id    int64
	props map[string]any
}

// MemoryStore implements the graph executor contract in memory.
type MemoryStore struct {
	mu     sync.Mutex
	nodes  []*node
	edges  []*Edge
	nextID int64

	// FailReads and FailWrites make every call of that kind report failure.
	FailReads  bool
	FailWrites bool
	// WriteFailer, when set, decides per write whether it fails.
	WriteFailer func(query string, params map[string]any) bool

	Reads     int
	Writes    int
	Unhandled []string
}

// New returns an empty store.
func New() *MemoryStore {
	return &MemoryStore{}
}

// AddNode seeds a node and returns its native id.
func (m *MemoryStore) AddNode(labels []string, props map[string]any) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addNodeLocked(labels, props)
}

func (m *MemoryStore) addNodeLocked(labels []string, props map[string]any) int64 {
	m.nextID++
	m.nodes = append(m.nodes, &node{id: m.nextID, labels: append([]string(nil), labels...), props: copyMap(props)})
	return m.nextID
}

// AddEdge seeds a relationship and returns its native id.
func (m *MemoryStore) AddEdge(start, end int64, relType string, props map[string]any) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.edges = append(m.edges, &Edge{ID: m.nextID, Type: relType, Start: start, End: end, Props: copyMap(props)})
	return m.nextID
}

// Edges returns copies of the stored relationships of relType, or all when empty.
func (m *MemoryStore) Edges(relType string) []Edge {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Edge{}
	for _, e := range m.edges {
		if relType == "" || e.Type == relType {
			out = append(out, Edge{ID: e.ID, Type: e.Type, Start: e.Start, End: e.End, Props: copyMap(e.Props)})
		}
	}
	return out
}

// NodeIDsByProp returns the native ids of nodes whose key property equals value.
func (m *MemoryStore) NodeIDsByProp(key string, value any) []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for _, n := range m.nodes {
		if v, ok := n.props[key]; ok && equalValues(v, value) {
			ids = append(ids, n.id)
		}
	}
	return ids
}

// NodeProps returns a copy of a node's properties.
func (m *MemoryStore) NodeProps(id int64) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := m.nodeLocked(id); n != nil {
		return copyMap(n.props)
	}
	return nil
}

// CountNodes counts nodes carrying label, or all nodes when empty.
func (m *MemoryStore) CountNodes(label string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, n := range m.nodes {
		if label == "" || hasLabel(n, label) {
			count++
		}
	}
	return count
}

// Read implements the executor read contract.
func (m *MemoryStore) Read(_ context.Context, query string, params map[string]any) ([]map[string]any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Reads++
	if m.FailReads {
		return nil, false
	}

	q := normalize(query)
	if g := nodeMatchRe.FindStringSubmatch(q); g != nil {
		return m.matchNodes(g, params)
	}
	if g := edgeMatchRe.FindStringSubmatch(q); g != nil {
		return m.matchEdges(g[1], g[2], params)
	}
	m.Unhandled = append(m.Unhandled, q)
	return nil, false
}

// Write implements the executor write contract.
func (m *MemoryStore) Write(_ context.Context, query string, params map[string]any) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Writes++
	if m.FailWrites || (m.WriteFailer != nil && m.WriteFailer(query, params)) {
		return false
	}

	q := normalize(query)
	switch {
	case createRe.MatchString(q):
		g := createRe.FindStringSubmatch(q)
		props, _ := params["props"].(map[string]any)
		m.addNodeLocked([]string{g[1]}, props)
		return true
	case updateRe.MatchString(q):
		g := updateRe.FindStringSubmatch(q)
		props, _ := params["props"].(map[string]any)
		for _, n := range m.nodes {
			if m.evalLocked(g[1], map[string]entity{"n": {n.id, n.props}}, params) {
				for k, v := range props {
					n.props[k] = v
				}
			}
		}
		return true
	case linkRe.MatchString(q):
		g := linkRe.FindStringSubmatch(q)
		props, _ := params["props"].(map[string]any)
		for _, a := range m.nodes {
			if !m.evalLocked(g[1], map[string]entity{"a": {a.id, a.props}}, params) {
				continue
			}
			for _, b := range m.nodes {
				bind := map[string]entity{"a": {a.id, a.props}, "b": {b.id, b.props}}
				if !m.evalLocked(g[2], bind, params) {
					continue
				}
				m.mergeEdgeLocked(a.id, b.id, g[3], props)
				if g[4] != "" {
					m.mergeEdgeLocked(b.id, a.id, g[3], props)
				}
			}
		}
		return true
	case schemaRe.MatchString(q):
		return true
	}
	m.Unhandled = append(m.Unhandled, q)
	return false
}

func (m *MemoryStore) matchNodes(g []string, params map[string]any) ([]map[string]any, bool) {
	xVar, xLabel, yVar, yLabel, where, retVar := g[1], g[2], g[3], g[4], g[5], g[6]
	rows := []map[string]any{}

	if yVar == "" {
		for _, n := range m.nodes {
			if xLabel != "" && !hasLabel(n, xLabel) {
				continue
			}
			if where != "" && !m.evalLocked(where, map[string]entity{xVar: {n.id, n.props}}, params) {
				continue
			}
			rows = append(rows, nodeRow(n))
		}
		return rows, true
	}

	for _, e := range m.edges {
		x, y := m.nodeLocked(e.Start), m.nodeLocked(e.End)
		if x == nil || y == nil {
			continue
		}
		if xLabel != "" && !hasLabel(x, xLabel) {
			continue
		}
		if yLabel != "" && !hasLabel(y, yLabel) {
			continue
		}
		bind := map[string]entity{xVar: {x.id, x.props}, yVar: {y.id, y.props}}
		if where != "" && !m.evalLocked(where, bind, params) {
			continue
		}
		if retVar == xVar {
			rows = append(rows, nodeRow(x))
		} else {
			rows = append(rows, nodeRow(y))
		}
	}
	return rows, true
}

func (m *MemoryStore) matchEdges(relType, where string, params map[string]any) ([]map[string]any, bool) {
	rows := []map[string]any{}
	for _, e := range m.edges {
		if relType != "" && e.Type != relType {
			continue
		}
		a, b := m.nodeLocked(e.Start), m.nodeLocked(e.End)
		if a == nil || b == nil {
			continue
		}
		bind := map[string]entity{"a": {a.id, a.props}, "b": {b.id, b.props}, "r": {e.ID, e.Props}}
		if where != "" && !m.evalLocked(where, bind, params) {
			continue
		}
		rows = append(rows, map[string]any{
			"rid":   e.ID,
			"type":  e.Type,
			"start": e.Start,
			"end":   e.End,
			"props": copyMap(e.Props),
		})
	}
	return rows, true
}

func (m *MemoryStore) mergeEdgeLocked(start, end int64, relType string, props map[string]any) {
	for _, e := range m.edges {
		if e.Start == start && e.End == end && e.Type == relType {
			for k, v := range props {
				e.Props[k] = v
			}
			return
		}
	}
	m.nextID++
	m.edges = append(m.edges, &Edge{ID: m.nextID, Type: relType, Start: start, End: end, Props: copyMap(props)})
}

func (m *MemoryStore) evalLocked(where string, bind map[string]entity, params map[string]any) bool {
	for _, cond := range strings.Split(where, " AND ") {
		if !evalCond(cond, bind, params) {
			return false
		}
	}
	return true
}

func evalCond(cond string, bind map[string]entity, params map[string]any) bool {
	if g := idEqRe.FindStringSubmatch(cond); g != nil {
		e, ok := bind[g[1]]
		id, isInt := toInt64(params[g[2]])
		return ok && isInt && e.id == id
	}
	if g := idInRe.FindStringSubmatch(cond); g != nil {
		e, ok := bind[g[1]]
		if !ok {
			return false
		}
		for _, id := range toInt64s(params[g[2]]) {
			if id == e.id {
				return true
			}
		}
		return false
	}
	if g := propEqRe.FindStringSubmatch(cond); g != nil {
		e, ok := bind[g[1]]
		if !ok {
			return false
		}
		v, has := e.props[g[2]]
		return has && equalValues(v, params[g[3]])
	}
	if g := neqRe.FindStringSubmatch(cond); g != nil {
		return bind[g[1]].id != bind[g[2]].id
	}
	panic(fmt.Sprintf("graphtest: unsupported condition %q", cond))
}

func (m *MemoryStore) nodeLocked(id int64) *node {
	for _, n := range m.nodes {
		if n.id == id {
			return n
		}
	}
	return nil
}

func nodeRow(n *node) map[string]any {
	labels := make([]any, 0, len(n.labels))
	for _, l := range n.labels {
		labels = append(labels, l)
	}
	return map[string]any{
		"nid":    n.id,
		"eid":    fmt.Sprintf("4:memory:%d", n.id),
		"labels": labels,
		"props":  copyMap(n.props),
	}
}

func hasLabel(n *node, label string) bool {
	for _, l := range n.labels {
		if l == label {
			return true
		}
	}
	return false
}

func normalize(query string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(query, " "))
}

func copyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	}
	return 0, false
}

func toInt64s(v any) []int64 {
	switch ids := v.(type) {
	case []int64:
		return ids
	case []any:
		out := make([]int64, 0, len(ids))
		for _, id := range ids {
			if n, ok := toInt64(id); ok {
				out = append(out, n)
			}
		}
		return out
	}
	return nil
}

func equalValues(a, b any) bool {
	if x, ok := toFloat(a); ok {
		if y, ok := toFloat(b); ok {
			return x == y
		}
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}

// SortedIDs returns ids in ascending order; handy for order-insensitive asserts.
func SortedIDs(ids []int64) []int64 {
	out := append([]int64(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

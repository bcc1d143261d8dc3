package graph

import (
	"fmt"
	"strings"

	"trails/backend/internal/constants"
)

// ============================================================================
// Row Helpers
// ============================================================================

func getStringFromRow(row Row, key string) string {
	val, ok := row[key]
	if !ok || val == nil {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

func getInt64FromRow(row Row, key string) int64 {
	val, ok := row[key]
	if !ok || val == nil {
		return 0
	}
	switch v := val.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

func getStringSliceFromRow(row Row, key string) []string {
	val, ok := row[key]
	if !ok || val == nil {
		return []string{}
	}
	switch v := val.(type) {
	case []string:
		return v
	case []any:
		result := make([]string, 0, len(v))
		for _, item := range v {
			if str, ok := item.(string); ok {
				result = append(result, str)
			}
		}
		return result
	}
	return []string{}
}

func getMapFromRow(row Row, key string) map[string]any {
	val, ok := row[key]
	if !ok || val == nil {
		return map[string]any{}
	}
	if m, ok := val.(map[string]any); ok {
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out
	}
	return map[string]any{}
}

// ============================================================================
// Projection Helpers
// ============================================================================

// nodeReturn projects variable v into the columns nodeFromRow reads.
func nodeReturn(v string) string {
	return fmt.Sprintf("id(%[1]s) AS nid, elementId(%[1]s) AS eid, labels(%[1]s) AS labels, properties(%[1]s) AS props", v)
}

const edgeReturn = "id(r) AS rid, type(r) AS type, id(a) AS start, id(b) AS end, properties(r) AS props"

func nodeFromRow(row Row) Node {
	props := getMapFromRow(row, "props")
	delete(props, constants.PropEmbedding)
	return Node{
		NativeID:  getInt64FromRow(row, "nid"),
		ElementID: getStringFromRow(row, "eid"),
		Labels:    getStringSliceFromRow(row, "labels"),
		Props:     props,
	}
}

func nodesFromRows(rows []Row) []Node {
	nodes := make([]Node, 0, len(rows))
	for _, row := range rows {
		nodes = append(nodes, nodeFromRow(row))
	}
	return nodes
}

func edgeFromRow(row Row) Edge {
	return Edge{
		NativeID: getInt64FromRow(row, "rid"),
		Type:     getStringFromRow(row, "type"),
		StartID:  getInt64FromRow(row, "start"),
		EndID:    getInt64FromRow(row, "end"),
		Props:    getMapFromRow(row, "props"),
	}
}

func edgesFromRows(rows []Row) []Edge {
	edges := make([]Edge, 0, len(rows))
	for _, row := range rows {
		edges = append(edges, edgeFromRow(row))
	}
	return edges
}

// labelClause renders ":Label" or nothing.
func labelClause(label string) string {
	if label == "" {
		return ""
	}
	return ":" + label
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

package graph

import (
	"context"
	"fmt"
)

// FindEdgeByID returns the relationship with the given native id.
func (r *Repository) FindEdgeByID(ctx context.Context, id int64) (*Edge, bool) {
	query := fmt.Sprintf(`
		MATCH (a)-[r]->(b)
		WHERE id(r) = $rid
		RETURN %s
	`, edgeReturn)

	rows, ok := r.exec.Read(ctx, query, map[string]any{"rid": id})
	if !ok || len(rows) == 0 {
		return nil, false
	}
	edge := edgeFromRow(rows[0])
	return &edge, true
}

// FindEdgesByProperty returns edges whose property key equals value,
// optionally constrained to an origin and/or target node. The value is
// always bound as a parameter.
func (r *Repository) FindEdgesByProperty(ctx context.Context, key string, value any, origin, target *NodeRef) ([]Edge, error) {
	if err := ValidateIdentifier("property key", key); err != nil {
		return nil, err
	}
	conds := []string{fmt.Sprintf("r.%s = $value", key)}
	params := map[string]any{"value": value}
	return r.findEdges(ctx, "", conds, params, origin, target), nil
}

// FindEdgesByRelationshipType returns edges of relType, optionally
// constrained to an origin and/or target node.
func (r *Repository) FindEdgesByRelationshipType(ctx context.Context, relType string, origin, target *NodeRef) ([]Edge, error) {
	if err := ValidateIdentifier("relationship type", relType); err != nil {
		return nil, err
	}
	return r.findEdges(ctx, relType, nil, map[string]any{}, origin, target), nil
}

// EdgeExists reports whether an origin -[relType]-> target edge exists. A
// failed lookup counts as absent.
func (r *Repository) EdgeExists(ctx context.Context, relType string, origin, target NodeRef) (bool, error) {
	edges, err := r.FindEdgesByRelationshipType(ctx, relType, &origin, &target)
	if err != nil {
		return false, err
	}
	return len(edges) > 0, nil
}

func (r *Repository) findEdges(ctx context.Context, relType string, conds []string, params map[string]any, origin, target *NodeRef) []Edge {
	if origin != nil {
		conds = append(conds, origin.predicate("a", "origin"))
		params["origin"] = origin.value()
	}
	if target != nil {
		conds = append(conds, target.predicate("b", "target"))
		params["target"] = target.value()
	}

	query := fmt.Sprintf(`
		MATCH (a)-[r%s]->(b)%s
		RETURN %s
	`, labelClause(relType), whereClause(conds), edgeReturn)

	rows, ok := r.exec.Read(ctx, query, params)
	if !ok {
		return []Edge{}
	}
	return edgesFromRows(rows)
}

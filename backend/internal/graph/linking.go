package graph

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"trails/backend/internal/constants"
)

// LinkNodes connects every origin to every target with a relationship of
// opts.RelationshipType. Targets equal to any origin are dropped. A pair
// whose edge already exists (in both directions when bidirectional) is
// skipped unless opts.Force is set, in which case its properties are
// refreshed. Edges are merged, so repeating a call never duplicates them.
// Pairs with a missing endpoint count as failed without a write. Individual
// pair failures are counted and the remaining pairs still run.
func (r *Repository) LinkNodes(ctx context.Context, origins, targets []NodeRef, opts LinkOptions) (LinkReport, error) {
	relType := opts.RelationshipType
	if relType == "" {
		relType = constants.RelLinksTo
	}
	if err := ValidateIdentifier("relationship type", relType); err != nil {
		return LinkReport{}, err
	}
	props := opts.EdgeProperties
	if props == nil {
		props = r.lastIndexed()
	}

	origins = uniqueRefs(origins)
	targets = excludeRefs(uniqueRefs(targets), origins)

	var report LinkReport
	if len(origins) == 0 || len(targets) == 0 {
		r.logger.Warn("No valid target nodes provided, skipping",
			zap.String("relationship", relType),
		)
		return report, nil
	}

	query := linkQuery(relType, opts.Bidirectional)
	resolved := make(map[NodeRef]*Node, len(origins)+len(targets))
	resolve := func(ref NodeRef) *Node {
		if n, ok := resolved[ref]; ok {
			return n
		}
		n, _ := r.FindNodeByID(ctx, ref)
		if n == nil {
			r.logger.Warn("Node not found, cannot link",
				zap.String("node_id", ref.String()),
				zap.String("relationship", relType),
			)
		}
		resolved[ref] = n
		return n
	}

	for _, origin := range origins {
		for _, target := range targets {
			from, to := resolve(origin), resolve(target)
			if from == nil || to == nil {
				report.Failed++
				linksTotal.WithLabelValues(relType, "failed").Inc()
				continue
			}
			// The same node addressed by both kinds of ref.
			if from.NativeID == to.NativeID {
				continue
			}

			if r.pairLinked(ctx, relType, origin, target, opts.Bidirectional) {
				if !opts.Force {
					r.logger.Debug("Link already exists",
						zap.String("origin", origin.String()),
						zap.String("target", target.String()),
						zap.String("relationship", relType),
					)
					report.Skipped++
					linksTotal.WithLabelValues(relType, "skipped").Inc()
					continue
				}
			}

			params := map[string]any{
				"origin": origin.value(),
				"target": target.value(),
				"props":  props,
			}
			if !r.exec.Write(ctx, fmt.Sprintf(query, origin.predicate("a", "origin"), target.predicate("b", "target")), params) {
				r.logger.Warn("Failed to link nodes",
					zap.String("origin", origin.String()),
					zap.String("target", target.String()),
					zap.String("relationship", relType),
				)
				report.Failed++
				linksTotal.WithLabelValues(relType, "failed").Inc()
				continue
			}

			r.logger.Debug("Linked nodes",
				zap.String("origin", origin.String()),
				zap.String("target", target.String()),
				zap.String("relationship", relType),
			)
			report.Created++
			linksTotal.WithLabelValues(relType, "created").Inc()
		}
	}
	return report, nil
}

// pairLinked reports whether the edge (and its reverse when bidirectional)
// already exists. Lookup failures read as not linked, so the merge runs.
func (r *Repository) pairLinked(ctx context.Context, relType string, origin, target NodeRef, bidirectional bool) bool {
	forward := r.findEdges(ctx, relType, nil, map[string]any{}, &origin, &target)
	if len(forward) == 0 {
		return false
	}
	if !bidirectional {
		return true
	}
	reverse := r.findEdges(ctx, relType, nil, map[string]any{}, &target, &origin)
	return len(reverse) > 0
}

// linkQuery returns a template with two %s slots for the origin and target
// predicates. relType must already be validated.
func linkQuery(relType string, bidirectional bool) string {
	query := `
		MATCH (a) WHERE %s
		MATCH (b) WHERE %s AND a <> b
		MERGE (a)-[r1:` + relType + `]->(b)
		SET r1 += $props`
	if bidirectional {
		query += `
		MERGE (b)-[r2:` + relType + `]->(a)
		SET r2 += $props`
	}
	return query
}

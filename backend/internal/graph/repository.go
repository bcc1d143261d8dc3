package graph

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"trails/backend/internal/constants"
	"trails/backend/pkg/logger"

	apperrors "trails/backend/pkg/errors"
)

// Repository handles node and edge operations on top of an Executor
type Repository struct {
	exec   Executor
	logger *zap.Logger
	now    func() time.Time
}

// NewRepository creates a new graph repository
func NewRepository(exec Executor) *Repository {
	return &Repository{
		exec:   exec,
		logger: logger.Named("graph"),
		now:    time.Now,
	}
}

// Executor returns the executor the repository runs on.
func (r *Repository) Executor() Executor {
	return r.exec
}

// FindNodeByID returns the node addressed by ref.
func (r *Repository) FindNodeByID(ctx context.Context, ref NodeRef) (*Node, bool) {
	if ref.IsZero() {
		return nil, false
	}
	query := fmt.Sprintf(`
		MATCH (n)
		WHERE %s
		RETURN %s
	`, ref.predicate("n", "id"), nodeReturn("n"))

	rows, ok := r.exec.Read(ctx, query, map[string]any{"id": ref.value()})
	if !ok || len(rows) == 0 {
		return nil, false
	}
	if len(rows) > 1 {
		r.logger.Warn("Multiple nodes share an id, using the first",
			zap.String("node_id", ref.String()),
			zap.Int("count", len(rows)),
		)
	}
	node := nodeFromRow(rows[0])
	return &node, true
}

// NodeExists reports whether ref resolves to a node.
func (r *Repository) NodeExists(ctx context.Context, ref NodeRef) bool {
	_, ok := r.FindNodeByID(ctx, ref)
	return ok
}

// FindNodesByProperties returns nodes whose properties equal every entry of
// props, optionally restricted to a label. An error is returned only for
// invalid identifiers; lookup failures yield an empty slice.
func (r *Repository) FindNodesByProperties(ctx context.Context, props map[string]any, label string) ([]Node, error) {
	if label != "" {
		if err := ValidateIdentifier("label", label); err != nil {
			return nil, err
		}
	}

	keys := make([]string, 0, len(props))
	for key := range props {
		if err := ValidateIdentifier("property key", key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	conds := make([]string, 0, len(keys))
	params := make(map[string]any, len(keys))
	for i, key := range keys {
		param := fmt.Sprintf("p%d", i)
		conds = append(conds, fmt.Sprintf("n.%s = $%s", key, param))
		params[param] = props[key]
	}

	query := fmt.Sprintf(`
		MATCH (n%s)%s
		RETURN %s
	`, labelClause(label), whereClause(conds), nodeReturn("n"))

	rows, ok := r.exec.Read(ctx, query, params)
	if !ok {
		return []Node{}, nil
	}
	return nodesFromRows(rows), nil
}

// FindNodesByText is the exact-text lookup used for dedup and for resolving
// vector hits back to graph nodes.
func (r *Repository) FindNodesByText(ctx context.Context, text, label string) ([]Node, error) {
	return r.FindNodesByProperties(ctx, map[string]any{constants.PropText: text}, label)
}

// FindParentByChildID returns a node with an outgoing edge to the child.
// A nil node with a nil error means no parent exists.
func (r *Repository) FindParentByChildID(ctx context.Context, child NodeRef, parentLabel string) (*Node, error) {
	if parentLabel != "" {
		if err := ValidateIdentifier("label", parentLabel); err != nil {
			return nil, err
		}
	}
	query := fmt.Sprintf(`
		MATCH (p%s)-->(n)
		WHERE %s
		RETURN %s
	`, labelClause(parentLabel), child.predicate("n", "id"), nodeReturn("p"))

	rows, ok := r.exec.Read(ctx, query, map[string]any{"id": child.value()})
	if !ok || len(rows) == 0 {
		return nil, nil
	}
	parent := nodeFromRow(rows[0])
	return &parent, nil
}

// FindChildNodes returns the nodes the parent points to. When sequenceType
// is set, children are returned in the order of that chain; children off the
// chain follow in native id order.
func (r *Repository) FindChildNodes(ctx context.Context, parent NodeRef, childLabel, sequenceType string) ([]Node, error) {
	if childLabel != "" {
		if err := ValidateIdentifier("label", childLabel); err != nil {
			return nil, err
		}
	}
	if sequenceType != "" {
		if err := ValidateIdentifier("relationship type", sequenceType); err != nil {
			return nil, err
		}
	}

	query := fmt.Sprintf(`
		MATCH (p)-->(n%s)
		WHERE %s
		RETURN %s
	`, labelClause(childLabel), parent.predicate("p", "id"), nodeReturn("n"))

	rows, ok := r.exec.Read(ctx, query, map[string]any{"id": parent.value()})
	if !ok {
		return []Node{}, nil
	}
	children := dedupeNodes(nodesFromRows(rows))
	sort.Slice(children, func(i, j int) bool { return children[i].NativeID < children[j].NativeID })
	if sequenceType == "" || len(children) < 2 {
		return children, nil
	}

	ids := make([]int64, 0, len(children))
	for _, c := range children {
		ids = append(ids, c.NativeID)
	}
	edgeQuery := fmt.Sprintf(`
		MATCH (a)-[r:%s]->(b)
		WHERE id(a) IN $ids AND id(b) IN $ids
		RETURN %s
	`, sequenceType, edgeReturn)

	edgeRows, ok := r.exec.Read(ctx, edgeQuery, map[string]any{"ids": ids})
	if !ok {
		return children, nil
	}
	return orderBySequence(children, edgesFromRows(edgeRows)), nil
}

// CreateNode creates a node under label. An "id" property is generated when
// props does not carry one. The returned ref is the external id.
func (r *Repository) CreateNode(ctx context.Context, label string, props map[string]any) (NodeRef, error) {
	if err := ValidateIdentifier("label", label); err != nil {
		return NodeRef{}, err
	}

	values := make(map[string]any, len(props)+1)
	for k, v := range props {
		values[k] = v
	}
	id, _ := values[constants.PropID].(string)
	if id == "" {
		id = uuid.New().String()
		values[constants.PropID] = id
	}

	query := fmt.Sprintf(`
		CREATE (n:%s)
		SET n = $props
	`, label)

	if !r.exec.Write(ctx, query, map[string]any{"props": values}) {
		return NodeRef{}, apperrors.NewGraphQueryFailed("create node", nil)
	}

	r.logger.Debug("Node created", zap.String("label", label), zap.String("node_id", id))
	return ExternalID(id), nil
}

// UpdateNodeProperties merges props onto the node.
func (r *Repository) UpdateNodeProperties(ctx context.Context, ref NodeRef, props map[string]any) bool {
	query := fmt.Sprintf(`
		MATCH (n)
		WHERE %s
		SET n += $props
	`, ref.predicate("n", "id"))

	ok := r.exec.Write(ctx, query, map[string]any{"id": ref.value(), "props": props})
	if !ok {
		r.logger.Warn("Failed to update node properties", zap.String("node_id", ref.String()))
	}
	return ok
}

// lastIndexed is the default edge payload.
func (r *Repository) lastIndexed() map[string]any {
	return map[string]any{constants.PropLastIndexed: r.now().Format(constants.LastIndexedLayout)}
}

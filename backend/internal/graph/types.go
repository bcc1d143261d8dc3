package graph

import (
	"trails/backend/internal/constants"
)

// Node is a graph node as returned by the repository. The embedding
// property is never carried.
type Node struct {
	NativeID  int64          `json:"native_id"`
	ElementID string         `json:"element_id,omitempty"`
	Labels    []string       `json:"labels"`
	Props     map[string]any `json:"properties"`
}

// Ref returns the external id when the node has one, the native id otherwise.
func (n Node) Ref() NodeRef {
	if id, ok := n.Props[constants.PropID].(string); ok && id != "" {
		return ExternalID(id)
	}
	return NativeID(n.NativeID)
}

// Text returns the node's text property.
func (n Node) Text() string {
	text, _ := n.Props[constants.PropText].(string)
	return text
}

// HasLabel reports whether label is among the node's labels.
func (n Node) HasLabel(label string) bool {
	for _, l := range n.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// Is reports whether ref addresses this node.
func (n Node) Is(ref NodeRef) bool {
	if ref.IsNative() {
		return ref.native == n.NativeID
	}
	id, _ := n.Props[constants.PropID].(string)
	return id != "" && id == ref.external
}

// Edge is a directed relationship between two nodes.
type Edge struct {
	NativeID int64          `json:"native_id"`
	Type     string         `json:"type"`
	StartID  int64          `json:"start_id"`
	EndID    int64          `json:"end_id"`
	Props    map[string]any `json:"properties"`
}

// LinkOptions control how LinkNodes creates relationships.
type LinkOptions struct {
	// RelationshipType defaults to LINKS_TO.
	RelationshipType string
	// EdgeProperties are merged onto the edge. Nil means {last_indexed: now}.
	EdgeProperties map[string]any
	// Force refreshes existing edges instead of skipping them.
	Force bool
	// Bidirectional also creates the reverse edge.
	Bidirectional bool
}

// SequenceOptions control LinkSequentially.
type SequenceOptions struct {
	LinkOptions
	// Origins start each chain. When empty the first target is the origin.
	Origins []NodeRef
	// CloseLoop links the last target back to the first origin.
	CloseLoop bool
}

// LinkReport counts the outcome of every origin/target pair of a linking call.
type LinkReport struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// OK is true when nothing failed and at least one pair was linked or
// already present.
func (r LinkReport) OK() bool {
	return r.Failed == 0 && r.Created+r.Skipped > 0
}

// Add accumulates another report into r.
func (r *LinkReport) Add(other LinkReport) {
	r.Created += other.Created
	r.Skipped += other.Skipped
	r.Failed += other.Failed
}

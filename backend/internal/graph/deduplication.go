package graph

// ============================================================================
// Deduplication and Ordering Helpers
// ============================================================================

// uniqueRefs drops repeated refs, keeping first occurrences in order.
func uniqueRefs(refs []NodeRef) []NodeRef {
	seen := make(map[NodeRef]bool, len(refs))
	unique := make([]NodeRef, 0, len(refs))
	for _, ref := range refs {
		if ref.IsZero() || seen[ref] {
			continue
		}
		seen[ref] = true
		unique = append(unique, ref)
	}
	return unique
}

// excludeRefs returns the refs of targets that are not among origins.
func excludeRefs(targets, origins []NodeRef) []NodeRef {
	skip := make(map[NodeRef]bool, len(origins))
	for _, o := range origins {
		skip[o] = true
	}
	kept := make([]NodeRef, 0, len(targets))
	for _, t := range targets {
		if !skip[t] {
			kept = append(kept, t)
		}
	}
	return kept
}

// dedupeNodes drops nodes reached more than once, e.g. through parallel edges.
func dedupeNodes(nodes []Node) []Node {
	seen := make(map[int64]bool, len(nodes))
	unique := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		if seen[n.NativeID] {
			continue
		}
		seen[n.NativeID] = true
		unique = append(unique, n)
	}
	return unique
}

// orderBySequence walks the chain described by edges starting from nodes
// with no incoming sequence edge. Nodes are expected in native id order,
// which also decides the order of separate chains.
func orderBySequence(nodes []Node, edges []Edge) []Node {
	byID := make(map[int64]Node, len(nodes))
	for _, n := range nodes {
		byID[n.NativeID] = n
	}
	next := make(map[int64]int64, len(edges))
	hasIncoming := make(map[int64]bool, len(edges))
	for _, e := range edges {
		if _, ok := byID[e.StartID]; !ok {
			continue
		}
		if _, ok := byID[e.EndID]; !ok {
			continue
		}
		if _, dup := next[e.StartID]; dup {
			continue
		}
		next[e.StartID] = e.EndID
		hasIncoming[e.EndID] = true
	}

	ordered := make([]Node, 0, len(nodes))
	visited := make(map[int64]bool, len(nodes))
	walk := func(id int64) {
		for !visited[id] {
			visited[id] = true
			ordered = append(ordered, byID[id])
			nid, ok := next[id]
			if !ok {
				return
			}
			id = nid
		}
	}

	for _, n := range nodes {
		if !hasIncoming[n.NativeID] {
			walk(n.NativeID)
		}
	}
	// Closed loops have no head; start them at their lowest id.
	for _, n := range nodes {
		if !visited[n.NativeID] {
			walk(n.NativeID)
		}
	}
	return ordered
}

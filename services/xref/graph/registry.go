// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is the flat index from qualified path to node.
//
// Description:
//
//	Every node created during a run is inserted here exactly once. Paths
//	are the identity of nodes, so the registry refuses a second insert at
//	an existing path.
//
// Thread Safety:
//
//	Safe for concurrent use. Writes are serialized.
type Registry struct {
	mu    sync.RWMutex
	nodes map[string]*Node
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{nodes: make(map[string]*Node)}
}

// Insert adds n at n.Path.
//
// Outputs:
//   - error: ErrDuplicatePath when the path is taken. The registry is left
//     unchanged in that case.
func (r *Registry) Insert(n *Node) error {
	if n == nil {
		return fmt.Errorf("insert: node must not be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.nodes[n.Path]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicatePath, n.Path)
	}
	r.nodes[n.Path] = n
	return nil
}

// Get returns the node at path.
func (r *Registry) Get(path string) (*Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[path]
	return n, ok
}

// GetKind returns the node at path only when it has the given kind.
func (r *Registry) GetKind(path string, kind NodeKind) (*Node, bool) {
	n, ok := r.Get(path)
	if !ok || n.Kind != kind {
		return nil, false
	}
	return n, true
}

// Len returns the number of registered nodes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

// Nodes returns every node sorted by path.
func (r *Registry) Nodes() []*Node {
	r.mu.RLock()
	out := make([]*Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, n)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// NodesOfKind returns the nodes of one kind sorted by path.
func (r *Registry) NodesOfKind(kind NodeKind) []*Node {
	all := r.Nodes()
	out := make([]*Node, 0, len(all))
	for _, n := range all {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

// CountByKind returns how many nodes of each kind are registered.
func (r *Registry) CountByKind() map[NodeKind]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[NodeKind]int, 5)
	for _, n := range r.nodes {
		counts[n.Kind]++
	}
	return counts
}

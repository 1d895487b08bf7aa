/*
Copyright (C) 2026  MemCP Contributors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package storage

import (
	"sync"

	"github.com/google/btree"
	"github.com/launix-de/NonLockingReadMap"
)

// nodeEntry adapts Node to NonLockingReadMap.KeyGetter[uint64]. Nodes are
// read far more often than written (a lookup per query edge, a write per
// insert), matching the map's read-optimized contract.
type nodeEntry struct {
	node Node
}

func (e *nodeEntry) GetKey() uint64 { return e.node.ID }
func (e *nodeEntry) ComputeSize() uint {
	return uint(8 + LabelSize + 16)
}

// GraphIndex is the in-memory graph view maintained alongside the log:
// a node map plus directed adjacency, kept current by InsertNode and
// InsertEdge as records are appended or replayed (spec.md §4.3).
type GraphIndex struct {
	nodes NonLockingReadMap.NonLockingReadMap[nodeEntry, uint64]
	ids   *btree.BTreeG[uint64] // sorted node ids, for ordered scans/stats

	mu  sync.RWMutex
	out map[uint64][]Edge // From -> edges
	in  map[uint64][]Edge // To -> edges
}

// NewGraphIndex returns an empty graph index.
func NewGraphIndex() *GraphIndex {
	return &GraphIndex{
		nodes: NonLockingReadMap.New[nodeEntry, uint64](),
		ids:   btree.NewG(32, func(a, b uint64) bool { return a < b }),
		out:   make(map[uint64][]Edge),
		in:    make(map[uint64][]Edge),
	}
}

// InsertNode adds or replaces a node. The index is agnostic to what an
// id means: it does not check the concept bit (spec.md §3: "concept node
// ids have the high bit set"), and neither does the facade.
func (g *GraphIndex) InsertNode(n Node) {
	isNew := g.nodes.Get(n.ID) == nil
	g.nodes.Set(&nodeEntry{node: n})
	if isNew {
		g.mu.Lock()
		g.ids.ReplaceOrInsert(n.ID)
		g.mu.Unlock()
	}
}

// GetNode looks up a node by id.
func (g *GraphIndex) GetNode(id uint64) (Node, bool) {
	e := g.nodes.Get(id)
	if e == nil {
		return Node{}, false
	}
	return e.node, true
}

// HasNode reports whether id is a known node.
func (g *GraphIndex) HasNode(id uint64) bool {
	return g.nodes.Get(id) != nil
}

// NodeCount returns the number of distinct nodes.
func (g *GraphIndex) NodeCount() int {
	return g.ids.Len()
}

// InsertEdge adds a directed edge to both the outgoing and incoming
// adjacency maps. Edges are never deduplicated: a second Owns edge
// between the same pair is a second edge, matching the append-only log.
func (g *GraphIndex) InsertEdge(e Edge) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.out[e.From] = append(g.out[e.From], e)
	g.in[e.To] = append(g.in[e.To], e)
}

// OutgoingEdges returns edges leaving id, in insertion order.
func (g *GraphIndex) OutgoingEdges(id uint64) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Edge(nil), g.out[id]...)
}

// IncomingEdges returns edges arriving at id, in insertion order.
func (g *GraphIndex) IncomingEdges(id uint64) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Edge(nil), g.in[id]...)
}

// EdgeCount returns the total number of edges held.
func (g *GraphIndex) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var n int
	for _, es := range g.out {
		n += len(es)
	}
	return n
}

// AllNodeIDs returns every node id in ascending order.
func (g *GraphIndex) AllNodeIDs() []uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]uint64, 0, g.ids.Len())
	g.ids.Ascend(func(id uint64) bool {
		ids = append(ids, id)
		return true
	})
	return ids
}

// QueryRelated performs a bounded-depth breadth-first traversal from
// seed following outgoing edges only, per spec.md §4.3/§4.5: depth 0
// returns only the seed, each additional depth expands the frontier by
// one hop, visited nodes are never revisited and results preserve BFS
// discovery order.
func (g *GraphIndex) QueryRelated(seed uint64, depth int) []uint64 {
	if !g.HasNode(seed) {
		return nil
	}
	visited := map[uint64]bool{seed: true}
	order := []uint64{seed}
	frontier := []uint64{seed}
	for d := 0; d < depth; d++ {
		var next []uint64
		for _, id := range frontier {
			for _, e := range g.OutgoingEdges(id) {
				if visited[e.To] {
					continue
				}
				visited[e.To] = true
				order = append(order, e.To)
				next = append(next, e.To)
			}
		}
		if len(next) == 0 {
			break
		}
		frontier = next
	}
	return order
}

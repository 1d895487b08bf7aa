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

// HybridResult is the union result of QueryHybrid: the graph-reachable
// node ids and the vector top-k ids, kept separate. The core never
// fuses or re-ranks the two; a caller wanting fusion does it itself
// (spec.md §4.5).
type HybridResult struct {
	RelatedNodes   []uint64
	SimilarVectors []uint64
}

// QueryEngine composes the graph and vector indexes into the three
// read operations of spec.md §4.5. It holds no state of its own.
type QueryEngine struct {
	graph   *GraphIndex
	vectors *VectorIndex
}

// NewQueryEngine wires a query engine over an existing graph and vector index.
func NewQueryEngine(graph *GraphIndex, vectors *VectorIndex) *QueryEngine {
	return &QueryEngine{graph: graph, vectors: vectors}
}

// QueryRelated delegates straight to the graph's bounded BFS.
func (q *QueryEngine) QueryRelated(id uint64, depth int) ([]uint64, error) {
	if !q.graph.HasNode(id) {
		return nil, newErr(NotFound, "QueryRelated", "no such node")
	}
	return q.graph.QueryRelated(id, depth), nil
}

// QuerySimilar fetches the stored vector for id then runs the
// vector-space top-k search.
func (q *QueryEngine) QuerySimilar(id uint64, k int) ([]uint64, error) {
	return q.vectors.QuerySimilar(id, k)
}

// QueryHybrid runs graph BFS and vector top-k independently from id and
// returns their union, unranked (spec.md §4.5). Both sides run off the
// same seed id, so a missing node is reported once as NotFound rather
// than from whichever side happens to fail first.
func (q *QueryEngine) QueryHybrid(id uint64, depth int, k int) (HybridResult, error) {
	if !q.graph.HasNode(id) {
		return HybridResult{}, newErr(NotFound, "QueryHybrid", "no such node")
	}
	related := q.graph.QueryRelated(id, depth)

	var similar []uint64
	if _, ok := q.vectors.Get(id); ok {
		var err error
		similar, err = q.vectors.QuerySimilar(id, k)
		if err != nil {
			return HybridResult{}, err
		}
	}
	return HybridResult{RelatedNodes: related, SimilarVectors: similar}, nil
}

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
	"math"
	"math/rand"
	"sort"
	"sync"
)

// VectorIndex is an HNSW-style approximate nearest-neighbor index over
// unit-normalized embeddings (spec.md §4.4). Layer assignment uses a
// seeded PRNG so that, given the same Config.HnswSeed and the same
// insertion order, two indexes converge to the same graph shape -
// useful for reproducing a query result set in tests.
type VectorIndex struct {
	mu sync.RWMutex

	m              int // max neighbors per node at layer >= 1
	mMax0          int // max neighbors per node at layer 0 (2*m)
	efConstruction int
	efSearch       int
	levelMult      float64 // mL = 1/ln(M)
	rng            *rand.Rand

	vectors   map[uint64]Vector
	layers    []map[uint64][]uint64 // layers[l][id] = neighbor ids at layer l
	nodeLevel map[uint64]int
	entry     uint64
	hasEntry  bool
}

// NewVectorIndex builds an empty index. m, efConstruction and efSearch
// come directly from Config.HnswM/HnswEfConstruction/HnswEfSearch; seed
// from Config.HnswSeed.
func NewVectorIndex(m, efConstruction, efSearch int, seed int64) *VectorIndex {
	if m < 2 {
		m = 2
	}
	return &VectorIndex{
		m:              m,
		mMax0:          m * 2,
		efConstruction: efConstruction,
		efSearch:       efSearch,
		levelMult:      1.0 / math.Log(float64(m)),
		rng:            rand.New(rand.NewSource(seed)),
		vectors:        make(map[uint64]Vector),
		nodeLevel:      make(map[uint64]int),
	}
}

// isNormalized reports whether v is a unit vector within tolerance, the
// gate spec.md §4.4 requires before insertion or query.
func isNormalized(v Vector) bool {
	mag := v.Magnitude()
	return math.Abs(mag-1.0) < 1e-5
}

func (idx *VectorIndex) randomLevel() int {
	level := 0
	for idx.rng.Float64() < 1.0/math.E && level < 32 {
		// truncated geometric draw: advance a level with probability e^-1,
		// capped at 32; the probability does not depend on m (levelMult is
		// not used here)
		level++
	}
	return level
}

// Insert adds v to the index, rejecting non-unit vectors as InvalidInput
// (spec.md §4.4 edge case). Re-inserting an existing id replaces its
// stored vector but keeps its assigned level and graph position, since
// HNSW has no defined semantics for moving a node between layers.
func (idx *VectorIndex) Insert(v Vector) error {
	if !isNormalized(v) {
		return newErr(InvalidInput, "Insert", "vector is not unit-normalized")
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.vectors[v.ID]; exists {
		idx.vectors[v.ID] = v
		return nil
	}

	level := idx.randomLevel()
	for len(idx.layers) <= level {
		idx.layers = append(idx.layers, make(map[uint64][]uint64))
	}
	idx.vectors[v.ID] = v
	idx.nodeLevel[v.ID] = level

	if !idx.hasEntry {
		idx.entry = v.ID
		idx.hasEntry = true
		for l := 0; l <= level; l++ {
			idx.layers[l][v.ID] = nil
		}
		return nil
	}

	entry := idx.entry
	entryLevel := idx.nodeLevel[entry]

	// greedy descent from the top layer down to level+1
	cur := entry
	for l := entryLevel; l > level; l-- {
		cur = idx.greedyClosest(cur, v, l)
	}

	// insertion with bounded-beam search at each layer from min(level,entryLevel) down to 0
	for l := min(level, entryLevel); l >= 0; l-- {
		candidates := idx.searchLayer(v, cur, idx.efConstruction, l)
		maxConn := idx.m
		if l == 0 {
			maxConn = idx.mMax0
		}
		neighbors := selectNeighbors(v, candidates, maxConn, idx.vectors)
		idx.layers[l][v.ID] = neighbors
		for _, nb := range neighbors {
			idx.layers[l][nb] = pruneNeighbors(nb, idx.layers[l][nb], v.ID, maxConn, idx.vectors)
		}
		if len(candidates) > 0 {
			cur = candidates[0].id
		}
	}

	if level > entryLevel {
		idx.entry = v.ID
	}
	return nil
}

// candidate pairs a node id with its distance (1-cosine) to the query.
type candidate struct {
	id   uint64
	dist float32
}

func (idx *VectorIndex) greedyClosest(from uint64, q Vector, layer int) uint64 {
	improved := true
	cur := from
	curDist := cosineDist(q, idx.vectors[cur])
	for improved {
		improved = false
		for _, nb := range idx.layers[layer][cur] {
			d := cosineDist(q, idx.vectors[nb])
			if d < curDist {
				curDist = d
				cur = nb
				improved = true
			}
		}
	}
	return cur
}

// searchLayer runs the bounded-beam search of spec.md §4.4: a candidate
// set of size ef is maintained, expanded through unvisited neighbors,
// and returned sorted nearest-first.
func (idx *VectorIndex) searchLayer(q Vector, entry uint64, ef int, layer int) []candidate {
	visited := map[uint64]bool{entry: true}
	entryDist := cosineDist(q, idx.vectors[entry])
	results := []candidate{{entry, entryDist}}
	frontier := []candidate{{entry, entryDist}}

	for len(frontier) > 0 {
		sort.Slice(frontier, func(i, j int) bool { return frontier[i].dist < frontier[j].dist })
		c := frontier[0]
		frontier = frontier[1:]

		sort.Slice(results, func(i, j int) bool { return results[i].dist < results[j].dist })
		worst := results[len(results)-1].dist
		if len(results) >= ef && c.dist > worst {
			break
		}

		for _, nb := range idx.layers[layer][c.id] {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			d := cosineDist(q, idx.vectors[nb])
			sort.Slice(results, func(i, j int) bool { return results[i].dist < results[j].dist })
			if len(results) < ef || d < results[len(results)-1].dist {
				results = append(results, candidate{nb, d})
				frontier = append(frontier, candidate{nb, d})
			}
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].dist < results[j].dist })
	if len(results) > ef {
		results = results[:ef]
	}
	return results
}

// selectNeighbors keeps the maxConn closest candidates to q.
func selectNeighbors(q Vector, candidates []candidate, maxConn int, vectors map[uint64]Vector) []uint64 {
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].dist < candidates[j].dist })
	if len(candidates) > maxConn {
		candidates = candidates[:maxConn]
	}
	out := make([]uint64, len(candidates))
	for i, c := range candidates {
		out[i] = c.id
	}
	return out
}

// pruneNeighbors adds newID to existing's neighbor list, dropping the
// farthest entry if that would exceed maxConn (the farthest-neighbor
// pruning rule of spec.md §4.4).
func pruneNeighbors(existingID uint64, existing []uint64, newID uint64, maxConn int, vectors map[uint64]Vector) []uint64 {
	for _, id := range existing {
		if id == newID {
			return existing
		}
	}
	updated := append(append([]uint64(nil), existing...), newID)
	if len(updated) <= maxConn {
		return updated
	}
	self := vectors[existingID]
	sort.Slice(updated, func(i, j int) bool {
		return cosineDist(self, vectors[updated[i]]) < cosineDist(self, vectors[updated[j]])
	})
	return updated[:maxConn]
}

func cosineDist(a, b Vector) float32 {
	return 1 - a.Dot(b)
}

// Get returns the stored vector for id, if present.
func (idx *VectorIndex) Get(id uint64) (Vector, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	v, ok := idx.vectors[id]
	return v, ok
}

// Count returns the number of indexed vectors.
func (idx *VectorIndex) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.vectors)
}

// QuerySimilarByVector returns up to k ids nearest to q by cosine
// similarity, nearest first. q need not itself be indexed.
func (idx *VectorIndex) QuerySimilarByVector(q Vector, k int) ([]uint64, error) {
	if !isNormalized(q) {
		return nil, newErr(InvalidInput, "QuerySimilarByVector", "query vector is not unit-normalized")
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if !idx.hasEntry {
		return nil, nil
	}

	ef := idx.efSearch
	if ef < k {
		ef = k
	}

	cur := idx.entry
	entryLevel := idx.nodeLevel[idx.entry]
	for l := entryLevel; l > 0; l-- {
		cur = idx.greedyClosest(cur, q, l)
	}
	candidates := idx.searchLayer(q, cur, ef, 0)
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	out := make([]uint64, len(candidates))
	for i, c := range candidates {
		out[i] = c.id
	}
	return out, nil
}

// QuerySimilar looks up id's stored vector and searches from it.
func (idx *VectorIndex) QuerySimilar(id uint64, k int) ([]uint64, error) {
	v, ok := idx.Get(id)
	if !ok {
		return nil, newErr(NotFound, "QuerySimilar", "no vector for that id")
	}
	return idx.QuerySimilarByVector(v, k)
}

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
package memory

import (
	"sort"
	"time"

	"github.com/memora-db/memora/storage"
)

// Query is spec.md §4.6's MemoryQuery: optional text for vector search,
// plus a set of post-filters applied in a fixed order.
type Query struct {
	QueryText        string
	HasQueryText     bool
	MemoryTypes      []Type
	MinConfidence    Confidence
	HasMinConfidence bool
	MinImportance    Importance
	HasMinImportance bool
	SessionID        uint64
	HasSessionID     bool
	UserID           string
	HasUserID        bool
	IncludeRelated   bool
	MaxDepth         int
	Limit            int
}

// Result is spec.md §4.6's MemoryQueryResult.
type Result struct {
	Memories         []Memory
	SimilarityScores []float32 // parallel to Memories when query_text was used
	RelatedMemories  map[uint64][]uint64
	Relationships    map[uint64][]Relationship
	ExecutionTimeMs  float64
}

// QueryMemories implements the pipeline of spec.md §4.6: seed from
// vector search or a full scan, apply filters in order, optionally
// attach BFS-related memories and relationships, sort and truncate.
func (m *Manager) QueryMemories(q Query) (Result, error) {
	start := time.Now()

	var candidates []uint64
	var scores map[uint64]float32

	if q.HasQueryText {
		dims := m.embedder.Embed([]byte(q.QueryText))
		ids, err := m.db.QuerySimilarByVectorRaw(storage.Vector{Dims: dims}, q.Limit)
		if err != nil {
			return Result{}, err
		}
		candidates = ids
		scores = make(map[uint64]float32, len(ids))
		for _, id := range ids {
			if v, ok := m.db.GetVector(id); ok {
				qv := storage.Vector{Dims: dims}
				scores[id] = qv.Dot(v)
			}
		}
	} else {
		candidates = m.fullMemoryScan()
	}

	var memories []Memory
	for _, id := range candidates {
		mem, ok := m.GetMemory(id)
		if !ok {
			continue
		}
		if !passesFilters(mem, q) {
			continue
		}
		memories = append(memories, mem)
	}

	result := Result{}
	if q.HasQueryText {
		sort.SliceStable(memories, func(i, j int) bool {
			return scores[memories[i].ID] > scores[memories[j].ID]
		})
		for _, mem := range memories {
			result.SimilarityScores = append(result.SimilarityScores, scores[mem.ID])
		}
	}
	if q.Limit > 0 && len(memories) > q.Limit {
		memories = memories[:q.Limit]
		if len(result.SimilarityScores) > q.Limit {
			result.SimilarityScores = result.SimilarityScores[:q.Limit]
		}
	}
	result.Memories = memories

	if q.IncludeRelated {
		result.RelatedMemories = make(map[uint64][]uint64, len(memories))
		result.Relationships = make(map[uint64][]Relationship, len(memories))
		for _, mem := range memories {
			related, err := m.db.QueryRelated(mem.ID, q.MaxDepth)
			if err != nil {
				continue
			}
			result.RelatedMemories[mem.ID] = related
			for _, e := range m.db.OutgoingEdgesRaw(mem.ID) {
				result.Relationships[mem.ID] = append(result.Relationships[mem.ID], Relationship{
					From: e.From, To: e.To, Kind: e.Kind.String(),
				})
			}
		}
	}

	result.ExecutionTimeMs = float64(time.Since(start).Microseconds()) / 1000.0
	return result, nil
}

// fullMemoryScan returns every known memory id in ascending order, the
// O(n) fallback path of spec.md §4.6 step 2 when no query_text is given.
func (m *Manager) fullMemoryScan() []uint64 {
	m.contentMu.RLock()
	defer m.contentMu.RUnlock()
	ids := make([]uint64, 0, len(m.content))
	for id := range m.content {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func passesFilters(mem Memory, q Query) bool {
	if len(q.MemoryTypes) > 0 {
		found := false
		for _, t := range q.MemoryTypes {
			if mem.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.HasMinConfidence && mem.Confidence < q.MinConfidence {
		return false
	}
	if q.HasMinImportance && mem.Importance < q.MinImportance {
		return false
	}
	if q.HasSessionID && (!mem.HasSession || mem.SessionID != q.SessionID) {
		return false
	}
	if q.HasUserID && mem.UserID != q.UserID {
		return false
	}
	return true
}

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

// Statistics is the memory layer's counterpart to storage.Stats
// (spec.md §4.6 get_statistics): counts broken down by the label's
// enums, plus session and cache sizes.
type Statistics struct {
	TotalMemories int
	ByType        map[Type]int
	ByConfidence  map[Confidence]int
	ByImportance  map[Importance]int

	ActiveSessions int
	TotalSessions  int

	ContentCacheBytes int
	EmbeddingCount    int
}

// GetStatistics aggregates over the structures the manager already
// maintains: one pass over the content cache joined against each node's
// label for the type/confidence/importance breakdown, the session
// registry for session counts, and the underlying database for the
// embedding count.
func (m *Manager) GetStatistics() Statistics {
	stats := Statistics{
		ByType:       make(map[Type]int),
		ByConfidence: make(map[Confidence]int),
		ByImportance: make(map[Importance]int),
	}

	m.contentMu.RLock()
	stats.TotalMemories = len(m.content)
	for id, content := range m.content {
		stats.ContentCacheBytes += len(content)
		node, ok := m.db.GetNode(id)
		if !ok {
			continue
		}
		typ, conf, imp, _ := decodeMemoryLabel(node.Label)
		stats.ByType[typ]++
		stats.ByConfidence[conf]++
		stats.ByImportance[imp]++
	}
	m.contentMu.RUnlock()

	active, total := m.sessionCount()
	stats.ActiveSessions = active
	stats.TotalSessions = total

	if dbStats, err := m.db.GetStats(); err == nil {
		stats.EmbeddingCount = dbStats.VectorCount
	}

	return stats
}

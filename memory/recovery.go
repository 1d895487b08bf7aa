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
	"fmt"

	"github.com/memora-db/memora/storage"
)

// Recover runs the memory manager's own recovery procedure (spec.md
// §4.6), independent of the facade's node/edge/vector restore:
//  1. ask the snapshot manager for every snapshot id, oldest first
//  2. for each, load its content files into the cache (a later snapshot's
//     content for the same id overwrites an earlier one)
//  3. load orphaned memory_contents/*.json files not referenced by any
//     manifest (recovery from a partially-committed snapshot)
//  4. replay memory_content log entries newer than the latest manifest's
//     log_cursor
//  5. set next_memory_id to one past the maximum observed id
//
// An empty content blob is a forget tombstone (SPEC_FULL.md §C): it
// removes the id from the content cache and marks it forgotten. Blobs
// are applied in the step order above and the last one applied for an
// id wins, so a non-empty blob applied by a later step (including an
// orphan file) puts the content back even if it was written before the
// tombstone.
func (m *Manager) Recover() error {
	snaps := m.db.Snapshots()
	ids, err := snaps.ListSnapshots()
	if err != nil {
		return err
	}

	referenced := make(map[string]bool)
	var logCursor uint64
	var maxID uint64

	for _, id := range ids {
		man, err := snaps.LoadSnapshot(id)
		if err != nil {
			fmt.Println("memory: skipping unusable manifest", id, ":", err)
			continue
		}
		for _, f := range man.MemoryContentFiles {
			referenced[f] = true
			blobs, err := snaps.ReadMemoryContentFile(f)
			if err != nil {
				fmt.Println("memory: skipping unreadable content file", f, ":", err)
				continue
			}
			m.applyRecoveredBlobs(blobs, &maxID)
		}
		if man.LogCursor > logCursor {
			logCursor = man.LogCursor
		}
	}

	orphans, err := snaps.ScanOrphanContentFiles(referenced)
	if err != nil {
		return err
	}
	for _, f := range orphans {
		blobs, err := snaps.ReadMemoryContentFile(f)
		if err != nil {
			fmt.Println("memory: skipping unreadable orphan file", f, ":", err)
			continue
		}
		fmt.Println("memory: recovering orphaned content file", f)
		m.applyRecoveredBlobs(blobs, &maxID)
	}

	tail, err := m.db.LogTailAfter(logCursor)
	if err != nil {
		return err
	}
	for _, entry := range tail {
		if entry.Kind != storage.KindMemoryContent {
			continue
		}
		blob := storage.DecodeContentBlob(entry.Payload)
		m.applyRecoveredBlobs([]storage.ContentBlob{blob}, &maxID)
	}

	m.idMu.Lock()
	m.nextMemoryID = maxID + 1
	m.idMu.Unlock()

	fmt.Println("memory: recovered", len(m.content), "live memories, next_memory_id =", maxID+1)
	return nil
}

func (m *Manager) applyRecoveredBlobs(blobs []storage.ContentBlob, maxID *uint64) {
	m.contentMu.Lock()
	defer m.contentMu.Unlock()
	for _, b := range blobs {
		if b.MemoryID > *maxID {
			*maxID = b.MemoryID
		}
		if len(b.Content) == 0 {
			delete(m.content, b.MemoryID)
			delete(m.meta, b.MemoryID)
			m.forgotten.Set(uint32(b.MemoryID), true)
			continue
		}
		m.content[b.MemoryID] = string(b.Content)
		m.forgotten.Set(uint32(b.MemoryID), false)
	}
}

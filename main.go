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
/*
	memora: a hybrid graph + vector database with an LLM-oriented
	semantic memory layer on top, built for single-writer, lock-free
	concurrency and content-addressed snapshotting.
*/
package main

import (
	"fmt"

	"github.com/memora-db/memora/memory"
	"github.com/memora-db/memora/storage"
)

func main() {
	fmt.Print(`memora Copyright (C) 2026   MemCP Contributors
    This program comes with ABSOLUTELY NO WARRANTY;
    This is free software, and you are welcome to redistribute it
    under certain conditions;
`)

	cfg := storage.DefaultConfig()
	factory := &storage.FileStoreFactory{Basepath: cfg.DataPath}

	db, err := storage.Open(cfg, factory, "demo")
	if err != nil {
		fmt.Println("memora: failed to open database:", err)
		return
	}
	defer db.Close()

	mem := memory.NewManager(db, nil)
	if err := mem.Recover(); err != nil {
		fmt.Println("memora: memory recovery failed:", err)
		return
	}

	session := mem.CreateSession("demo-user", "getting started with memora")
	mem.SetCurrentSession(session.SessionID)

	opts := memory.DefaultStoreOptions()
	opts.HasSessionID = true
	opts.SessionID = session.SessionID
	opts.UserID = "demo-user"
	opts.Importance = memory.ImportanceHigh

	id, err := mem.StoreMemory(memory.TypePreference, "prefers dark mode in every editor", opts)
	if err != nil {
		fmt.Println("memora: store_memory failed:", err)
		return
	}
	fmt.Println("memora: stored memory", id)

	result, err := mem.QueryMemories(memory.Query{
		QueryText:    "editor appearance preferences",
		HasQueryText: true,
		Limit:        5,
	})
	if err != nil {
		fmt.Println("memora: query_memories failed:", err)
		return
	}
	fmt.Println("memora: query returned", len(result.Memories), "memories in", result.ExecutionTimeMs, "ms")
	for _, m := range result.Memories {
		fmt.Println(" -", m.ID, m.Type, m.Confidence, m.Importance, ":", m.Content)
	}

	stats := mem.GetStatistics()
	fmt.Println("memora: total memories:", stats.TotalMemories, "active sessions:", stats.ActiveSessions)

	if _, err := db.CreateSnapshot(); err != nil {
		fmt.Println("memora: snapshot failed:", err)
		return
	}

	dbStats, err := db.GetStats()
	if err != nil {
		fmt.Println("memora: get_stats failed:", err)
		return
	}
	fmt.Println("memora: log size", dbStats.LogSizeHuman, "snapshots:", dbStats.SnapshotCount)
}

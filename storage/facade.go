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
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dc0d/onexit"
	units "github.com/docker/go-units"
)

// ContentSource lets a memory layer built on top of the facade hand over
// pending content blobs at snapshot time without the facade holding a
// back-pointer into memory-manager-owned structures (spec.md §5 "content
// blobs in the memory manager's cache are owned exclusively by the
// manager").
type ContentSource interface {
	PendingContent() []ContentBlob
}

// Stats is the result of GetStats: a snapshot of facade-owned counters,
// formatted for human consumption the way the teacher's dashboard
// reports table sizes.
type Stats struct {
	NodeCount      int
	EdgeCount      int
	VectorCount    int
	LogSizeBytes   int64
	LogSizeHuman   string
	SnapshotCount  int
	LastSnapshotID uint64
	LastLogSeq     uint64
}

// opRequest is the single-writer mailbox item: every mutation the facade
// accepts is marshaled onto one goroutine, mirroring the teacher's
// CacheManager opChan pattern (storage/cache.go) generalized from a
// cache eviction queue to the whole write path (spec.md §5: "one writer
// thread owns all mutations").
type opRequest struct {
	fn   func() error
	done chan error
}

// Database is the facade coordinating the log, graph index, vector
// index and snapshot manager (spec.md §4 "Database Facade"). All writes
// pass through a single goroutine; reads touch the in-memory indices
// directly and need no serialization of their own.
type Database struct {
	cfg Config

	log      *AppendLog
	graph    *GraphIndex
	vectors  *VectorIndex
	snapshot *SnapshotManager
	query    *QueryEngine
	store    SnapshotStore

	writeCh chan opRequest
	closeCh chan struct{}
	wg      sync.WaitGroup

	contentSource ContentSource

	writesSinceSnapshot uint

	latencyMu   sync.Mutex
	ewmaLatency time.Duration
	corrupt     bool
}

const ewmaAlpha = 0.2

// Open restores state from the latest usable snapshot (if any), replays
// the log tail, then starts the single writer goroutine (spec.md §4.2
// "Restore algorithm").
func Open(cfg Config, factory SnapshotStoreFactory, dbName string) (*Database, error) {
	store := factory.Open(dbName)
	snapMgr, err := NewSnapshotManager(store)
	if err != nil {
		return nil, err
	}

	graph := NewGraphIndex()
	vectors := NewVectorIndex(cfg.HnswM, cfg.HnswEfConstruction, cfg.HnswEfSearch, cfg.HnswSeed)

	var logCursor uint64
	man, err := snapMgr.LoadLatestValid()
	if err != nil {
		return nil, err
	}
	if man != nil {
		nodes, err := snapMgr.LoadNodes(man)
		if err != nil {
			return nil, err
		}
		for _, n := range nodes {
			graph.InsertNode(n)
		}
		edges, err := snapMgr.LoadEdges(man)
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			graph.InsertEdge(e)
		}
		vecs, err := snapMgr.LoadVectors(man)
		if err != nil {
			return nil, err
		}
		for _, v := range vecs {
			if err := vectors.Insert(v); err != nil {
				return nil, err
			}
		}
		logCursor = man.LogCursor
	}

	dbDir := filepath.Join(cfg.DataPath, dbName)
	if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, wrapErr(Io, "Open", "creating database directory", err)
	}
	logPath := filepath.Join(dbDir, "memora.log")
	log, tail, err := OpenAppendLog(logPath, cfg.LogFsyncWindowMs)
	if err != nil {
		return nil, err
	}

	for _, entry := range tail {
		if entry.Seq <= logCursor {
			continue
		}
		applyRawEntry(graph, vectors, entry)
	}

	db := &Database{
		cfg:      cfg,
		log:      log,
		graph:    graph,
		vectors:  vectors,
		snapshot: snapMgr,
		query:    NewQueryEngine(graph, vectors),
		store:    store,
		writeCh:  make(chan opRequest, 256),
		closeCh:  make(chan struct{}),
	}
	db.wg.Add(1)
	go db.run()

	onexit.Register(func() { db.Close() })

	fmt.Println("memora: opened database", dbName, "nodes:", graph.NodeCount(), "edges:", graph.EdgeCount(), "vectors:", vectors.Count())
	return db, nil
}

// applyRawEntry replays one log frame's graph/vector effect. Memory
// content entries are replayed by the memory manager's own recovery
// (spec.md §4.6), not here: the facade only owns nodes, edges and
// vectors.
func applyRawEntry(graph *GraphIndex, vectors *VectorIndex, entry RawEntry) {
	switch entry.Kind {
	case KindNode:
		graph.InsertNode(decodeNode(entry.Payload))
	case KindEdge:
		graph.InsertEdge(decodeEdge(entry.Payload))
	case KindVector:
		v := decodeVector(entry.Payload)
		_ = vectors.Insert(v)
	}
}

// SetContentSource wires a memory-layer content source so CreateSnapshot
// can pull pending content blobs without holding a back-pointer into the
// memory manager's owned structures.
func (db *Database) SetContentSource(src ContentSource) {
	db.contentSource = src
}

// run is the single writer goroutine; every mutation executes here.
func (db *Database) run() {
	defer db.wg.Done()
	for {
		select {
		case req := <-db.writeCh:
			req.done <- req.fn()
		case <-db.closeCh:
			return
		}
	}
}

// submit marshals fn onto the writer goroutine and blocks for its result.
func (db *Database) submit(fn func() error) error {
	if db.corrupt {
		return newErr(Corruption, "submit", "database is in a corrupt state; refusing writes")
	}
	if db.overBackpressureLimit() {
		return newErr(Backpressure, "submit", "log append latency high-water mark exceeded")
	}
	done := make(chan error, 1)
	start := time.Now()
	db.writeCh <- opRequest{fn: fn, done: done}
	err := <-done
	db.recordLatency(time.Since(start))
	return err
}

func (db *Database) overBackpressureLimit() bool {
	db.latencyMu.Lock()
	defer db.latencyMu.Unlock()
	return db.ewmaLatency > time.Duration(db.cfg.LogBackpressureHighWaterMs)*time.Millisecond
}

func (db *Database) recordLatency(d time.Duration) {
	db.latencyMu.Lock()
	defer db.latencyMu.Unlock()
	if db.ewmaLatency == 0 {
		db.ewmaLatency = d
		return
	}
	db.ewmaLatency = time.Duration(ewmaAlpha*float64(d) + (1-ewmaAlpha)*float64(db.ewmaLatency))
}

// InsertNode appends and indexes a node. Ids with the concept bit set
// are accepted from any caller; InsertNode never rejects based on which
// partition an id falls into and performs no check on the bit. Callers
// interpret an id's partition with IsConceptID.
func (db *Database) InsertNode(n Node) error {
	return db.submit(func() error {
		b := n.encode()
		if _, err := db.log.Append(KindNode, b[:]); err != nil {
			return err
		}
		db.graph.InsertNode(n)
		db.afterWrite()
		return nil
	})
}

// InsertEdge appends and indexes an edge. Both endpoints must already
// be known nodes (spec.md §8 "every edge's from/to MUST be an id
// previously appended"); self-loops are rejected.
func (db *Database) InsertEdge(e Edge) error {
	if e.From == e.To {
		return newErr(InvalidInput, "InsertEdge", "self-loops are not allowed")
	}
	if !db.graph.HasNode(e.From) {
		return newErr(InvalidInput, "InsertEdge", "unknown from node")
	}
	if !db.graph.HasNode(e.To) {
		return newErr(InvalidInput, "InsertEdge", "unknown to node")
	}
	return db.submit(func() error {
		b := e.encode()
		if _, err := db.log.Append(KindEdge, b[:]); err != nil {
			return err
		}
		db.graph.InsertEdge(e)
		db.afterWrite()
		return nil
	})
}

// InsertVector appends and indexes a vector. Orphan vectors (no
// matching node id) are allowed, per spec.md §3, but logged.
func (db *Database) InsertVector(v Vector) error {
	if !isNormalized(v) {
		return newErr(InvalidInput, "InsertVector", "vector is not unit-normalized")
	}
	if !db.graph.HasNode(v.ID) {
		fmt.Println("memora: inserting orphan vector for id", v.ID, "(no matching node)")
	}
	return db.submit(func() error {
		b := v.encode()
		if _, err := db.log.Append(KindVector, b[:]); err != nil {
			return err
		}
		if err := db.vectors.Insert(v); err != nil {
			return err
		}
		db.afterWrite()
		return nil
	})
}

// InsertContent appends a content blob to the log. The memory layer's
// own content cache is the canonical record of what's "pending" a
// snapshot (ContentSource.PendingContent), not the facade.
func (db *Database) InsertContent(c ContentBlob) error {
	return db.submit(func() error {
		if _, err := db.log.Append(KindMemoryContent, encodeContentBlob(c)); err != nil {
			return err
		}
		db.afterWrite()
		return nil
	})
}

// InsertBatch commits nodes, then edges, then vectors as one contiguous
// log range with no interleaving (spec.md §5: "no interleavings within
// a single insert_batch call").
func (db *Database) InsertBatch(nodes []Node, edges []Edge, vectors []Vector) error {
	return db.submit(func() error {
		for _, n := range nodes {
			b := n.encode()
			if _, err := db.log.Append(KindNode, b[:]); err != nil {
				return err
			}
			db.graph.InsertNode(n)
		}
		for _, e := range edges {
			if e.From == e.To {
				return newErr(InvalidInput, "InsertBatch", "self-loops are not allowed")
			}
			b := e.encode()
			if _, err := db.log.Append(KindEdge, b[:]); err != nil {
				return err
			}
			db.graph.InsertEdge(e)
		}
		for _, v := range vectors {
			if !isNormalized(v) {
				return newErr(InvalidInput, "InsertBatch", "vector is not unit-normalized")
			}
			b := v.encode()
			if _, err := db.log.Append(KindVector, b[:]); err != nil {
				return err
			}
			if err := db.vectors.Insert(v); err != nil {
				return err
			}
		}
		db.afterWrite()
		return nil
	})
}

// afterWrite must be called with the write already on the writer
// goroutine. It triggers an automatic snapshot if configured.
func (db *Database) afterWrite() {
	if db.cfg.AutoSnapshotInterval == 0 {
		return
	}
	db.writesSinceSnapshot++
	if db.writesSinceSnapshot >= db.cfg.AutoSnapshotInterval {
		db.writesSinceSnapshot = 0
		if _, err := db.createSnapshotLocked(); err != nil {
			fmt.Println("memora: automatic snapshot failed:", err)
		}
	}
}

// CreateSnapshot quiesces on the writer goroutine, flushes the log, and
// delegates to the Snapshot Manager.
func (db *Database) CreateSnapshot() (*Manifest, error) {
	var man *Manifest
	err := db.submit(func() error {
		m, err := db.createSnapshotLocked()
		man = m
		return err
	})
	return man, err
}

func (db *Database) createSnapshotLocked() (*Manifest, error) {
	if err := db.log.Fsync(); err != nil {
		return nil, err
	}
	cursor := db.log.LastSeq()

	var content []ContentBlob
	if db.contentSource != nil {
		content = db.contentSource.PendingContent()
	}

	nodes := make([]Node, 0, db.graph.NodeCount())
	for _, id := range db.graph.AllNodeIDs() {
		n, _ := db.graph.GetNode(id)
		nodes = append(nodes, n)
	}
	var edges []Edge
	for _, id := range db.graph.AllNodeIDs() {
		edges = append(edges, db.graph.OutgoingEdges(id)...)
	}
	var vectors []Vector
	for _, id := range db.graph.AllNodeIDs() {
		if v, ok := db.vectors.Get(id); ok {
			vectors = append(vectors, v)
		}
	}

	return db.snapshot.CreateSnapshot(nodes, edges, vectors, content, cursor)
}

// QueryRelated, QuerySimilar and QueryHybrid are read-only and bypass
// the writer goroutine (spec.md §5: "readers on the core thread see a
// consistent prefix of committed writes"; reads never block on writes).
func (db *Database) QueryRelated(id uint64, depth int) ([]uint64, error) {
	return db.query.QueryRelated(id, depth)
}

func (db *Database) QuerySimilar(id uint64, k int) ([]uint64, error) {
	return db.query.QuerySimilar(id, k)
}

func (db *Database) QueryHybrid(id uint64, depth, k int) (HybridResult, error) {
	return db.query.QueryHybrid(id, depth, k)
}

// QuerySimilarByVectorRaw runs a vector top-k search from an arbitrary
// (not necessarily indexed) query vector, for callers like the memory
// layer's text-query path that embed on the fly.
func (db *Database) QuerySimilarByVectorRaw(v Vector, k int) ([]uint64, error) {
	return db.vectors.QuerySimilarByVector(v, k)
}

// OutgoingEdgesRaw exposes the graph index's outgoing adjacency for
// callers that need raw Edge values (e.g. the memory layer attaching
// relationships to a query result).
func (db *Database) OutgoingEdgesRaw(id uint64) []Edge {
	return db.graph.OutgoingEdges(id)
}

func (db *Database) GetNode(id uint64) (Node, bool) {
	return db.graph.GetNode(id)
}

func (db *Database) HasNode(id uint64) bool {
	return db.graph.HasNode(id)
}

// GetVector returns the stored vector for id, if present.
func (db *Database) GetVector(id uint64) (Vector, bool) {
	return db.vectors.Get(id)
}

// CompactSnapshot recompresses a past snapshot's sidecars with XZ for
// colder, smaller storage (spec.md §3 "only by compaction, which is
// optional"). It does not touch the writer goroutine: compaction reads
// an already-immutable snapshot and writes a new one alongside it.
func (db *Database) CompactSnapshot(id uint64) (*Manifest, error) {
	return db.snapshot.CompactSnapshot(id)
}

// Snapshots exposes the Snapshot Manager so the memory layer can run its
// own content recovery procedure (spec.md §4.6 "Recovery"), independent
// of the facade's node/edge/vector restore.
func (db *Database) Snapshots() *SnapshotManager {
	return db.snapshot
}

// LogTailAfter exposes replay of memory_content entries newer than seq,
// for the memory manager's own recovery (spec.md §4.6 step 4).
func (db *Database) LogTailAfter(seq uint64) ([]RawEntry, error) {
	return db.log.TailAfter(seq)
}

// GetStats aggregates facade-owned counters (SPEC_FULL.md §C).
func (db *Database) GetStats() (Stats, error) {
	logInfo, err := db.log.Stat()
	if err != nil {
		return Stats{}, err
	}
	ids, err := db.snapshot.ListSnapshots()
	if err != nil {
		return Stats{}, err
	}
	var lastID uint64
	if len(ids) > 0 {
		lastID = ids[len(ids)-1]
	}
	return Stats{
		NodeCount:      db.graph.NodeCount(),
		EdgeCount:      db.graph.EdgeCount(),
		VectorCount:    db.vectors.Count(),
		LogSizeBytes:   logInfo,
		LogSizeHuman:   units.HumanSize(float64(logInfo)),
		SnapshotCount:  len(ids),
		LastSnapshotID: lastID,
		LastLogSeq:     db.log.LastSeq(),
	}, nil
}

// Close flushes and stops the writer goroutine. Idempotent.
func (db *Database) Close() error {
	select {
	case <-db.closeCh:
		return nil // already closed
	default:
	}
	close(db.closeCh)
	db.wg.Wait()
	return db.log.Close()
}

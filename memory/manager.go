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
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/launix-de/NonLockingReadMap"

	"github.com/memora-db/memora/storage"
)

// memoryMeta is the volatile sidecar to a memory's durable node+content,
// carrying the fields spec.md §4.6 exposes that have no room in the
// 32-byte label.
type memoryMeta struct {
	source     Source
	sessionID  uint64
	hasSession bool
	userID     string
	createdAt  time.Time
}

// Manager layers typed memories, sessions and recovery over a
// storage.Database (spec.md §4.6). It implements storage.ContentSource
// so the facade can pull every currently-live content blob at snapshot
// time without holding a pointer into the manager's own cache (spec.md
// §9 "no back-pointer from records to their owning indices").
type Manager struct {
	db       *storage.Database
	embedder Embedder

	idMu         sync.Mutex
	nextMemoryID uint64

	contentMu sync.RWMutex
	content   map[uint64]string
	// meta holds the per-memory fields spec.md §4.6 exposes (session,
	// user, source, creation time) that don't fit the 32-byte node
	// label. Like the session registry below, it is volatile manager
	// state: it is not reconstructed by Recover, since session/user
	// scoping is an LLM-layer convenience over the durable graph, not a
	// durability guarantee spec.md makes for the data model itself.
	meta map[uint64]memoryMeta
	// forgotten tracks memory ids whose content has been logically
	// deleted (spec.md §4.6 "Forget"). Indexed by uint32: memory ids
	// are a monotonic counter starting at 1, so this covers the
	// practical lifetime of a single database.
	forgotten NonLockingReadMap.NonBlockingBitMap

	sessionMu  sync.Mutex
	sessions   map[uint64]*Session
	sessionIDs *btree.BTreeG[uint64]
	nextSessionID uint64
	currentSessionID uint64
	hasCurrentSession bool
}

// NewManager creates a memory manager over db. Call Recover before
// serving traffic on a reopened database (spec.md §4.6 "Recovery").
func NewManager(db *storage.Database, embedder Embedder) *Manager {
	if embedder == nil {
		embedder = DefaultEmbedder{}
	}
	m := &Manager{
		db:           db,
		embedder:     embedder,
		nextMemoryID: 1,
		content:      make(map[uint64]string),
		meta:         make(map[uint64]memoryMeta),
		sessions:     make(map[uint64]*Session),
		sessionIDs:   btree.NewG(32, func(a, b uint64) bool { return a < b }),
		nextSessionID: 1,
	}
	db.SetContentSource(m)
	return m
}

// PendingContent implements storage.ContentSource. Every snapshot must be
// self-contained (spec.md §7 "no recovered memory ghosts"): alongside
// every currently-live content blob, it also emits an empty-content
// tombstone for every id ever forgotten, even if an earlier snapshot
// already carried that memory live. Without the tombstone, Recover
// replaying an older snapshot after this one would find no trace of the
// forget and resurrect the stale content.
func (m *Manager) PendingContent() []storage.ContentBlob {
	m.contentMu.RLock()
	defer m.contentMu.RUnlock()
	blobs := make([]storage.ContentBlob, 0, len(m.content))
	for id, c := range m.content {
		blobs = append(blobs, storage.ContentBlob{MemoryID: id, Content: []byte(c)})
	}
	m.forgotten.Iterate(func(id uint32) {
		blobs = append(blobs, storage.ContentBlob{MemoryID: uint64(id), Content: nil})
	})
	return blobs
}

// StoreMemory implements spec.md §4.6's store algorithm: allocate an id,
// append content, cache it, encode metadata into the node label, insert
// the node, optionally embed, and touch the owning session.
func (m *Manager) StoreMemory(typ Type, content string, opts StoreOptions) (uint64, error) {
	if !opts.HasSessionID {
		if s, ok := m.GetCurrentSession(); ok {
			opts.SessionID = s.SessionID
			opts.HasSessionID = true
		}
	}
	id := m.allocateMemoryID()

	if err := m.db.InsertContent(storage.ContentBlob{MemoryID: id, Content: []byte(content)}); err != nil {
		return 0, err
	}
	m.contentMu.Lock()
	m.content[id] = content
	m.meta[id] = memoryMeta{
		source:     opts.Source,
		sessionID:  opts.SessionID,
		hasSession: opts.HasSessionID,
		userID:     opts.UserID,
		createdAt:  time.Now(),
	}
	m.contentMu.Unlock()

	label := encodeMemoryLabel(typ, opts.Confidence, opts.Importance, truncateDisplay(content))
	node := storage.Node{ID: id, Label: label}
	if err := m.db.InsertNode(node); err != nil {
		return 0, err
	}

	if opts.CreateEmbedding {
		dims := m.embedder.Embed([]byte(content))
		if err := m.db.InsertVector(storage.Vector{ID: id, Dims: dims}); err != nil {
			return 0, err
		}
	}

	if opts.HasSessionID {
		m.touchSession(opts.SessionID)
	}
	return id, nil
}

func (m *Manager) allocateMemoryID() uint64 {
	m.idMu.Lock()
	defer m.idMu.Unlock()
	id := m.nextMemoryID
	m.nextMemoryID++
	return id
}

// GetMemory assembles the queryable view of a memory from the graph
// node (metadata), the content cache (text) and the vector index
// (embedding presence). A memory whose content is absent - forgotten or
// never loaded - returns ok=false rather than a placeholder (spec.md §7
// "Missing content for an existing memory node is NOT recovered with
// placeholder content").
func (m *Manager) GetMemory(id uint64) (Memory, bool) {
	node, ok := m.db.GetNode(id)
	if !ok {
		return Memory{}, false
	}
	m.contentMu.RLock()
	content, hasContent := m.content[id]
	meta := m.meta[id]
	m.contentMu.RUnlock()
	if !hasContent {
		return Memory{}, false
	}

	typ, conf, imp, _ := decodeMemoryLabel(node.Label)
	_, hasVector := m.db.GetVector(id)

	return Memory{
		ID:         id,
		Type:       typ,
		Confidence: conf,
		Importance: imp,
		Source:     meta.source,
		Content:    content,
		SessionID:  meta.sessionID,
		HasSession: meta.hasSession,
		UserID:     meta.userID,
		HasVector:  hasVector,
		CreatedAt:  meta.createdAt,
	}, true
}

// UpdateMemory replaces a memory's content (and, if requested, its
// embedding). The old content blob remains in the log; the cache holds
// only the latest (spec.md §3 lifecycle).
func (m *Manager) UpdateMemory(id uint64, content string, reembed bool) error {
	if !m.db.HasNode(id) {
		return &storage.Error{Kind: storage.NotFound, Op: "UpdateMemory", Msg: fmt.Sprintf("memory %d not found", id)}
	}
	if err := m.db.InsertContent(storage.ContentBlob{MemoryID: id, Content: []byte(content)}); err != nil {
		return err
	}
	m.contentMu.Lock()
	m.content[id] = content
	m.contentMu.Unlock()

	node, _ := m.db.GetNode(id)
	typ, conf, imp, _ := decodeMemoryLabel(node.Label)
	label := encodeMemoryLabel(typ, conf, imp, truncateDisplay(content))
	if err := m.db.InsertNode(storage.Node{ID: id, Label: label}); err != nil {
		return err
	}

	if reembed {
		dims := m.embedder.Embed([]byte(content))
		if err := m.db.InsertVector(storage.Vector{ID: id, Dims: dims}); err != nil {
			return err
		}
	}
	return nil
}

// ForgetMemory is a logical delete (spec.md §4.6 "Forget"): it clears
// the content cache entry via an empty-content tombstone log entry so
// recovery never resurrects it, but leaves the node and any edges in
// the graph. If the memory belongs to a session, the forget itself
// counts as session activity (SPEC_FULL.md §C).
func (m *Manager) ForgetMemory(id uint64, sessionID uint64, hasSession bool) error {
	if !m.db.HasNode(id) {
		return &storage.Error{Kind: storage.NotFound, Op: "ForgetMemory", Msg: fmt.Sprintf("memory %d not found", id)}
	}
	if err := m.db.InsertContent(storage.ContentBlob{MemoryID: id, Content: nil}); err != nil {
		return err
	}
	m.contentMu.Lock()
	delete(m.content, id)
	delete(m.meta, id)
	m.contentMu.Unlock()
	m.forgotten.Set(uint32(id), true)

	if hasSession {
		m.touchSession(sessionID)
	}
	return nil
}

// CreateRelationship inserts a directed edge between two known nodes.
func (m *Manager) CreateRelationship(from, to uint64, kind storage.EdgeKind) error {
	return m.db.InsertEdge(storage.Edge{From: from, To: to, Kind: kind})
}

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
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

// chunkSize bounds how many fixed records go into one sidecar file. Keeps
// a single rewrite small and lets a crashed write only cost one chunk.
const chunkSize = 8192

// contentBatchSize bounds how many content blobs one memory_contents
// file holds.
const contentBatchSize = 256

// Manifest is the immutable, atomically-written description of one
// snapshot (spec.md §3, §4.2). Manifests are never rewritten: a change
// of mind is a new snapshot id.
type Manifest struct {
	SnapshotID         uint64   `json:"snapshot_id"`
	CreatedAt          int64    `json:"created_at"`
	NodeCount          uint64   `json:"node_count"`
	EdgeCount          uint64   `json:"edge_count"`
	VectorCount        uint64   `json:"vector_count"`
	NodeFiles          []string `json:"node_files"`
	EdgeFiles          []string `json:"edge_files"`
	VectorFiles        []string `json:"vector_files"`
	MemoryContentFiles []string `json:"memory_content_files"`
	LogCursor          uint64   `json:"log_cursor"`
	// Compression names the codec node/edge/vector sidecar files were
	// written with. Empty (the zero value) means "lz4", the format every
	// snapshot is created with; "xz" marks a snapshot produced by
	// CompactSnapshot, which favors a smaller cold-storage footprint over
	// the fast write path's lz4.
	Compression string `json:"compression,omitempty"`
}

// SnapshotManager writes and reads immutable snapshots, and tracks the
// sidecar content files that back the memory layer's recovery.
type SnapshotManager struct {
	store SnapshotStore

	mu     sync.Mutex
	nextID uint64
}

// NewSnapshotManager scans store for existing manifests so snapshot ids
// continue monotonically across restarts.
func NewSnapshotManager(store SnapshotStore) (*SnapshotManager, error) {
	ids, err := store.ListManifestIDs()
	if err != nil {
		return nil, err
	}
	var next uint64 = 1
	for _, id := range ids {
		if id >= next {
			next = id + 1
		}
	}
	return &SnapshotManager{store: store, nextID: next}, nil
}

// CreateSnapshot implements the four-step algorithm of spec.md §4.2:
// serialize nodes/edges/vectors into chunked, LZ4-compressed sidecar
// files, serialize pending content blobs into batched JSON files under
// memory_contents/, then atomically write the manifest.
func (m *SnapshotManager) CreateSnapshot(nodes []Node, edges []Edge, vectors []Vector, pendingContent []ContentBlob, logCursor uint64) (*Manifest, error) {
	m.mu.Lock()
	id := m.nextID
	m.mu.Unlock()

	if _, err := m.store.ReadManifest(id); err == nil {
		return nil, newErr(AlreadyExists, "CreateSnapshot", fmt.Sprintf("manifest %d already exists", id))
	}

	nodeFiles, err := writeChunks(m.store, id, "nodes", len(nodes), func(i int) []byte { return encodeRecord(nodes[i]) })
	if err != nil {
		return nil, err
	}
	edgeFiles, err := writeChunks(m.store, id, "edges", len(edges), func(i int) []byte { return encodeRecord(edges[i]) })
	if err != nil {
		return nil, err
	}
	vectorFiles, err := writeChunks(m.store, id, "vectors", len(vectors), func(i int) []byte { return encodeRecord(vectors[i]) })
	if err != nil {
		return nil, err
	}
	contentFiles, err := writeContentBatches(m.store, pendingContent)
	if err != nil {
		return nil, err
	}

	manifest := &Manifest{
		SnapshotID:         id,
		CreatedAt:          time.Now().Unix(),
		NodeCount:          uint64(len(nodes)),
		EdgeCount:          uint64(len(edges)),
		VectorCount:        uint64(len(vectors)),
		NodeFiles:          nodeFiles,
		EdgeFiles:          edgeFiles,
		VectorFiles:        vectorFiles,
		MemoryContentFiles: contentFiles,
		LogCursor:          logCursor,
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, wrapErr(Io, "CreateSnapshot", "marshaling manifest", err)
	}
	if err := m.store.WriteManifest(id, data); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.nextID = id + 1
	m.mu.Unlock()

	fmt.Println("snapshot manager: created snapshot", id, "nodes:", len(nodes), "edges:", len(edges), "vectors:", len(vectors))
	return manifest, nil
}

// encodeRecord dispatches fixed-record encoding for the chunk writer.
func encodeRecord(v any) []byte {
	switch r := v.(type) {
	case Node:
		b := r.encode()
		return b[:]
	case Edge:
		b := r.encode()
		return b[:]
	case Vector:
		b := r.encode()
		return b[:]
	default:
		panic("encodeRecord: unsupported record type")
	}
}

// writeChunks splits n records into chunkSize-sized groups, concatenates
// their fixed-layout encoding, LZ4-compresses the result and writes one
// sidecar file per chunk. Returns the relative sidecar paths in order.
func writeChunks(store SnapshotStore, snapshotID uint64, kind string, n int, encode func(int) []byte) ([]string, error) {
	if n == 0 {
		return nil, nil
	}
	var files []string
	for start := 0; start < n; start += chunkSize {
		end := start + chunkSize
		if end > n {
			end = n
		}
		var raw bytes.Buffer
		for i := start; i < end; i++ {
			raw.Write(encode(i))
		}
		compressed, err := lz4Compress(raw.Bytes())
		if err != nil {
			return nil, wrapErr(Io, "writeChunks", "lz4 compressing "+kind+" chunk", err)
		}
		rel := fmt.Sprintf("%d/%s-%d.bin", snapshotID, kind, start/chunkSize)
		if err := store.WriteSidecar(rel, compressed); err != nil {
			return nil, err
		}
		files = append(files, rel)
	}
	return files, nil
}

func lz4Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func lz4Decompress(data []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(data))
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeContentBatches groups pending content blobs into contentBatchSize
// batches, one UUID-named JSON file per batch under memory_contents/.
func writeContentBatches(store SnapshotStore, blobs []ContentBlob) ([]string, error) {
	if len(blobs) == 0 {
		return nil, nil
	}
	type jsonBlob struct {
		MemoryID uint64 `json:"memory_id"`
		Content  string `json:"content"`
	}
	var files []string
	for start := 0; start < len(blobs); start += contentBatchSize {
		end := start + contentBatchSize
		if end > len(blobs) {
			end = len(blobs)
		}
		batch := make([]jsonBlob, 0, end-start)
		for _, b := range blobs[start:end] {
			batch = append(batch, jsonBlob{MemoryID: b.MemoryID, Content: string(b.Content)})
		}
		data, err := json.Marshal(batch)
		if err != nil {
			return nil, wrapErr(Io, "writeContentBatches", "marshaling content batch", err)
		}
		rel := "memory_contents/" + uuid.New().String() + ".json"
		if err := store.WriteSidecar(rel, data); err != nil {
			return nil, err
		}
		files = append(files, rel)
	}
	return files, nil
}

// ListSnapshots returns every snapshot id known to the store, ascending.
func (m *SnapshotManager) ListSnapshots() ([]uint64, error) {
	ids, err := m.store.ListManifestIDs()
	if err != nil {
		return nil, err
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// LoadSnapshot loads and parses one manifest. A partial/corrupt manifest
// is reported so the caller can fall back to the prior snapshot
// (spec.md §4.2 failure semantics), not silently discarded here.
func (m *SnapshotManager) LoadSnapshot(id uint64) (*Manifest, error) {
	data, err := m.store.ReadManifest(id)
	if err != nil {
		return nil, err
	}
	var man Manifest
	if err := json.Unmarshal(data, &man); err != nil {
		return nil, wrapErr(Corruption, "LoadSnapshot", fmt.Sprintf("manifest %d is not valid JSON", id), err)
	}
	if man.SnapshotID != id {
		return nil, newErr(Corruption, "LoadSnapshot", fmt.Sprintf("manifest %d has mismatched snapshot_id %d", id, man.SnapshotID))
	}
	return &man, nil
}

// LoadLatestValid walks manifests from newest to oldest, returning the
// first that loads cleanly. Missing sidecars or unparsable manifests are
// skipped in favor of the prior snapshot, per spec.md §4.2/§8 (S6).
func (m *SnapshotManager) LoadLatestValid() (*Manifest, error) {
	ids, err := m.ListSnapshots()
	if err != nil {
		return nil, err
	}
	for i := len(ids) - 1; i >= 0; i-- {
		man, err := m.LoadSnapshot(ids[i])
		if err != nil {
			fmt.Println("snapshot manager: skipping unusable manifest", ids[i], ":", err)
			continue
		}
		if err := m.verifySidecars(man); err != nil {
			fmt.Println("snapshot manager: skipping manifest", ids[i], "with missing sidecar:", err)
			continue
		}
		return man, nil
	}
	return nil, nil // no usable snapshot; caller replays the whole log
}

func (m *SnapshotManager) verifySidecars(man *Manifest) error {
	for _, f := range man.NodeFiles {
		if _, err := m.store.ReadSidecar(f); err != nil {
			return err
		}
	}
	for _, f := range man.EdgeFiles {
		if _, err := m.store.ReadSidecar(f); err != nil {
			return err
		}
	}
	for _, f := range man.VectorFiles {
		if _, err := m.store.ReadSidecar(f); err != nil {
			return err
		}
	}
	return nil
}

// LoadNodes decodes every node in the manifest's node sidecar files.
func (m *SnapshotManager) LoadNodes(man *Manifest) ([]Node, error) {
	var out []Node
	for _, f := range man.NodeFiles {
		raw, err := m.readChunk(f, man.Compression)
		if err != nil {
			return nil, err
		}
		for i := 0; i+8+LabelSize <= len(raw); i += 8 + LabelSize {
			out = append(out, decodeNode(raw[i:i+8+LabelSize]))
		}
	}
	return out, nil
}

// LoadEdges decodes every edge in the manifest's edge sidecar files.
func (m *SnapshotManager) LoadEdges(man *Manifest) ([]Edge, error) {
	var out []Edge
	for _, f := range man.EdgeFiles {
		raw, err := m.readChunk(f, man.Compression)
		if err != nil {
			return nil, err
		}
		for i := 0; i+edgeRecordSize <= len(raw); i += edgeRecordSize {
			out = append(out, decodeEdge(raw[i:i+edgeRecordSize]))
		}
	}
	return out, nil
}

// LoadVectors decodes every vector in the manifest's vector sidecar files.
func (m *SnapshotManager) LoadVectors(man *Manifest) ([]Vector, error) {
	var out []Vector
	for _, f := range man.VectorFiles {
		raw, err := m.readChunk(f, man.Compression)
		if err != nil {
			return nil, err
		}
		for i := 0; i+vectorRecordSize <= len(raw); i += vectorRecordSize {
			out = append(out, decodeVector(raw[i:i+vectorRecordSize]))
		}
	}
	return out, nil
}

func (m *SnapshotManager) readChunk(rel, compression string) ([]byte, error) {
	compressed, err := m.store.ReadSidecar(rel)
	if err != nil {
		return nil, err
	}
	if compression == "xz" {
		raw, err := xzDecompress(compressed)
		if err != nil {
			return nil, wrapErr(Corruption, "readChunk", "xz decompressing "+rel, err)
		}
		return raw, nil
	}
	raw, err := lz4Decompress(compressed)
	if err != nil {
		return nil, wrapErr(Corruption, "readChunk", "lz4 decompressing "+rel, err)
	}
	return raw, nil
}

func xzCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func xzDecompress(data []byte) ([]byte, error) {
	r, err := xz.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CompactSnapshot rewrites an existing snapshot's node/edge/vector
// sidecars from lz4 to XZ under a new manifest id and returns it. This
// is the optional compaction path spec.md §3 allows for superseded
// snapshots: XZ trades slower (de)compression for a smaller footprint,
// worthwhile once a snapshot is cold storage rather than the live
// restore target. The memory_contents files are left untouched: they
// are shared across snapshots and already small, batched JSON.
func (m *SnapshotManager) CompactSnapshot(id uint64) (*Manifest, error) {
	old, err := m.LoadSnapshot(id)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	newID := m.nextID
	m.mu.Unlock()

	if _, err := m.store.ReadManifest(newID); err == nil {
		return nil, newErr(AlreadyExists, "CompactSnapshot", fmt.Sprintf("manifest %d already exists", newID))
	}

	recompress := func(kind string, files []string) ([]string, error) {
		var out []string
		for i, f := range files {
			raw, err := m.readChunk(f, old.Compression)
			if err != nil {
				return nil, err
			}
			compressed, err := xzCompress(raw)
			if err != nil {
				return nil, wrapErr(Io, "CompactSnapshot", "xz compressing "+kind+" chunk", err)
			}
			rel := fmt.Sprintf("%d/%s-%d.bin", newID, kind, i)
			if err := m.store.WriteSidecar(rel, compressed); err != nil {
				return nil, err
			}
			out = append(out, rel)
		}
		return out, nil
	}

	nodeFiles, err := recompress("nodes", old.NodeFiles)
	if err != nil {
		return nil, err
	}
	edgeFiles, err := recompress("edges", old.EdgeFiles)
	if err != nil {
		return nil, err
	}
	vectorFiles, err := recompress("vectors", old.VectorFiles)
	if err != nil {
		return nil, err
	}

	compacted := &Manifest{
		SnapshotID:         newID,
		CreatedAt:          time.Now().Unix(),
		NodeCount:          old.NodeCount,
		EdgeCount:          old.EdgeCount,
		VectorCount:        old.VectorCount,
		NodeFiles:          nodeFiles,
		EdgeFiles:          edgeFiles,
		VectorFiles:        vectorFiles,
		MemoryContentFiles: old.MemoryContentFiles,
		LogCursor:          old.LogCursor,
		Compression:        "xz",
	}
	data, err := json.MarshalIndent(compacted, "", "  ")
	if err != nil {
		return nil, wrapErr(Io, "CompactSnapshot", "marshaling compacted manifest", err)
	}
	if err := m.store.WriteManifest(newID, data); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.nextID = newID + 1
	m.mu.Unlock()

	fmt.Println("snapshot manager: compacted snapshot", id, "into", newID, "with xz")
	return compacted, nil
}

// LoadMemoryContents loads every content blob referenced by the
// manifest's memory_content_files (spec.md §4.2 "load_memory_contents").
func (m *SnapshotManager) LoadMemoryContents(man *Manifest) ([]ContentBlob, error) {
	var out []ContentBlob
	for _, f := range man.MemoryContentFiles {
		blobs, err := m.ReadMemoryContentFile(f)
		if err != nil {
			return nil, err
		}
		out = append(out, blobs...)
	}
	return out, nil
}

// ReadMemoryContentFile decodes one memory_contents/<uuid>.json batch.
func (m *SnapshotManager) ReadMemoryContentFile(path string) ([]ContentBlob, error) {
	data, err := m.store.ReadSidecar(path)
	if err != nil {
		return nil, err
	}
	var batch []struct {
		MemoryID uint64 `json:"memory_id"`
		Content  string `json:"content"`
	}
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, wrapErr(Corruption, "ReadMemoryContentFile", "parsing "+path, err)
	}
	out := make([]ContentBlob, 0, len(batch))
	for _, b := range batch {
		out = append(out, ContentBlob{MemoryID: b.MemoryID, Content: []byte(b.Content)})
	}
	return out, nil
}

// ScanOrphanContentFiles lists every memory_contents/*.json file not
// referenced by referenced, recovering content committed by a snapshot
// that crashed after writing sidecars but before (or during) the
// manifest rename (spec.md §4.2/§4.6: "not fatal").
func (m *SnapshotManager) ScanOrphanContentFiles(referenced map[string]bool) ([]string, error) {
	all, err := m.store.ListContentFiles()
	if err != nil {
		return nil, err
	}
	var orphans []string
	for _, f := range all {
		if !referenced[f] {
			orphans = append(orphans, f)
		}
	}
	return orphans, nil
}

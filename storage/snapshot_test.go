package storage

import "testing"

func newTestSnapshotManager(t *testing.T) *SnapshotManager {
	t.Helper()
	factory := &FileStoreFactory{Basepath: t.TempDir()}
	store := factory.Open("testdb")
	m, err := NewSnapshotManager(store)
	if err != nil {
		t.Fatalf("NewSnapshotManager: %v", err)
	}
	return m
}

func TestSnapshotCreateAndLoadRoundTrip(t *testing.T) {
	m := newTestSnapshotManager(t)
	nodes := []Node{NewNode(1, "a"), NewNode(2, "b")}
	edges := []Edge{{From: 1, To: 2, Kind: EdgeLinks}}
	vectors := []Vector{unitVector(0, 0)}
	vectors[0].ID = 1
	content := []ContentBlob{{MemoryID: 1, Content: []byte("remembered")}}

	man, err := m.CreateSnapshot(nodes, edges, vectors, content, 10)
	if err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}
	if man.SnapshotID != 1 {
		t.Errorf("expected first snapshot id 1, got %d", man.SnapshotID)
	}

	gotNodes, err := m.LoadNodes(man)
	if err != nil {
		t.Fatal(err)
	}
	if len(gotNodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(gotNodes))
	}

	gotEdges, err := m.LoadEdges(man)
	if err != nil {
		t.Fatal(err)
	}
	if len(gotEdges) != 1 {
		t.Fatalf("expected 1 edge, got %d", len(gotEdges))
	}

	gotVectors, err := m.LoadVectors(man)
	if err != nil {
		t.Fatal(err)
	}
	if len(gotVectors) != 1 {
		t.Fatalf("expected 1 vector, got %d", len(gotVectors))
	}

	gotContent, err := m.LoadMemoryContents(man)
	if err != nil {
		t.Fatal(err)
	}
	if len(gotContent) != 1 || string(gotContent[0].Content) != "remembered" {
		t.Errorf("unexpected content: %+v", gotContent)
	}
}

func TestSnapshotIDsIncreaseMonotonically(t *testing.T) {
	m := newTestSnapshotManager(t)
	first, err := m.CreateSnapshot(nil, nil, nil, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	second, err := m.CreateSnapshot(nil, nil, nil, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if second.SnapshotID != first.SnapshotID+1 {
		t.Errorf("expected monotonically increasing ids, got %d then %d", first.SnapshotID, second.SnapshotID)
	}
}

func TestCreateSnapshotRejectsCollidingManifestID(t *testing.T) {
	m := newTestSnapshotManager(t)
	if _, err := m.CreateSnapshot(nil, nil, nil, nil, 0); err != nil {
		t.Fatal(err)
	}
	// force the next id to collide with one that already has a manifest
	m.mu.Lock()
	m.nextID = 1
	m.mu.Unlock()

	_, err := m.CreateSnapshot(nil, nil, nil, nil, 0)
	if err == nil {
		t.Fatal("expected a colliding snapshot id to be rejected")
	}
	if kind, ok := KindOf(err); !ok || kind != AlreadyExists {
		t.Errorf("expected AlreadyExists, got %v", err)
	}
}

func TestLoadLatestValidSkipsManifestWithMissingSidecar(t *testing.T) {
	factory := &FileStoreFactory{Basepath: t.TempDir()}
	store := factory.Open("testdb")
	m, err := NewSnapshotManager(store)
	if err != nil {
		t.Fatal(err)
	}

	good, err := m.CreateSnapshot([]Node{NewNode(1, "a")}, nil, nil, nil, 5)
	if err != nil {
		t.Fatal(err)
	}
	bad, err := m.CreateSnapshot([]Node{NewNode(2, "b")}, nil, nil, nil, 9)
	if err != nil {
		t.Fatal(err)
	}
	// simulate a crash that wrote the manifest but not its sidecar
	for _, f := range bad.NodeFiles {
		if err := store.RemoveSidecar(f); err != nil {
			t.Fatal(err)
		}
	}

	latest, err := m.LoadLatestValid()
	if err != nil {
		t.Fatal(err)
	}
	if latest == nil || latest.SnapshotID != good.SnapshotID {
		t.Errorf("expected fallback to snapshot %d, got %+v", good.SnapshotID, latest)
	}
}

func TestLoadLatestValidNoSnapshotsReturnsNil(t *testing.T) {
	m := newTestSnapshotManager(t)
	man, err := m.LoadLatestValid()
	if err != nil {
		t.Fatal(err)
	}
	if man != nil {
		t.Errorf("expected nil manifest when no snapshot exists, got %+v", man)
	}
}

func TestCompactSnapshotProducesReadableXZManifest(t *testing.T) {
	m := newTestSnapshotManager(t)
	original, err := m.CreateSnapshot([]Node{NewNode(1, "a"), NewNode(2, "b")}, nil, nil, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	compacted, err := m.CompactSnapshot(original.SnapshotID)
	if err != nil {
		t.Fatalf("CompactSnapshot: %v", err)
	}
	if compacted.Compression != "xz" {
		t.Errorf("expected compacted manifest to report xz compression, got %q", compacted.Compression)
	}
	gotNodes, err := m.LoadNodes(compacted)
	if err != nil {
		t.Fatalf("LoadNodes on compacted manifest: %v", err)
	}
	if len(gotNodes) != 2 {
		t.Errorf("expected 2 nodes from compacted snapshot, got %d", len(gotNodes))
	}
}

func TestScanOrphanContentFiles(t *testing.T) {
	m := newTestSnapshotManager(t)
	man, err := m.CreateSnapshot(nil, nil, nil, []ContentBlob{{MemoryID: 1, Content: []byte("x")}}, 0)
	if err != nil {
		t.Fatal(err)
	}
	referenced := make(map[string]bool)
	for _, f := range man.MemoryContentFiles {
		referenced[f] = true
	}
	orphans, err := m.ScanOrphanContentFiles(referenced)
	if err != nil {
		t.Fatal(err)
	}
	if len(orphans) != 0 {
		t.Errorf("expected no orphans when all files are referenced, got %v", orphans)
	}
	if len(referenced) == 0 {
		t.Fatal("test setup produced no content files to reference")
	}

	orphans, err = m.ScanOrphanContentFiles(map[string]bool{})
	if err != nil {
		t.Fatal(err)
	}
	if len(orphans) != len(man.MemoryContentFiles) {
		t.Errorf("expected every content file to be orphaned when referenced is empty, got %v", orphans)
	}
}

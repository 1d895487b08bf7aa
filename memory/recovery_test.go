package memory

import (
	"testing"

	"github.com/memora-db/memora/storage"
)

func TestRecoverReplaysContentAfterRestart(t *testing.T) {
	base := t.TempDir()
	cfg := storage.DefaultConfig()
	cfg.DataPath = base
	factory := &storage.FileStoreFactory{Basepath: base}

	db, err := storage.Open(cfg, factory, "recovery-test")
	if err != nil {
		t.Fatal(err)
	}
	m := NewManager(db, nil)
	if err := m.Recover(); err != nil {
		t.Fatal(err)
	}
	id, err := m.StoreMemory(TypeFact, "survives a restart", DefaultStoreOptions())
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	db2, err := storage.Open(cfg, factory, "recovery-test")
	if err != nil {
		t.Fatal(err)
	}
	defer db2.Close()
	m2 := NewManager(db2, nil)
	if err := m2.Recover(); err != nil {
		t.Fatal(err)
	}

	mem, ok := m2.GetMemory(id)
	if !ok {
		t.Fatal("expected recovered memory to be retrievable")
	}
	if mem.Content != "survives a restart" {
		t.Errorf("unexpected recovered content: %q", mem.Content)
	}
}

func TestRecoverRespectsForgetTombstoneAcrossRestart(t *testing.T) {
	base := t.TempDir()
	cfg := storage.DefaultConfig()
	cfg.DataPath = base
	factory := &storage.FileStoreFactory{Basepath: base}

	db, err := storage.Open(cfg, factory, "tombstone-test")
	if err != nil {
		t.Fatal(err)
	}
	m := NewManager(db, nil)
	if err := m.Recover(); err != nil {
		t.Fatal(err)
	}
	id, err := m.StoreMemory(TypeFact, "will be forgotten", DefaultStoreOptions())
	if err != nil {
		t.Fatal(err)
	}
	if err := m.ForgetMemory(id, 0, false); err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	db2, err := storage.Open(cfg, factory, "tombstone-test")
	if err != nil {
		t.Fatal(err)
	}
	defer db2.Close()
	m2 := NewManager(db2, nil)
	if err := m2.Recover(); err != nil {
		t.Fatal(err)
	}

	if _, ok := m2.GetMemory(id); ok {
		t.Error("expected forgotten memory to remain forgotten after recovery")
	}
}

// TestRecoverDoesNotResurrectForgottenMemoryAfterLaterSnapshot guards
// against the "recovered memory ghost" scenario: a memory is live in an
// earlier snapshot, forgotten, then a later snapshot is taken. Recover
// walks snapshots oldest-to-newest; if the later snapshot's content
// files don't carry an explicit tombstone for the forgotten id, applying
// the earlier snapshot's still-live blob after the tombstone step would
// leave the stale content resurrected in the cache.
func TestRecoverDoesNotResurrectForgottenMemoryAfterLaterSnapshot(t *testing.T) {
	base := t.TempDir()
	cfg := storage.DefaultConfig()
	cfg.DataPath = base
	factory := &storage.FileStoreFactory{Basepath: base}

	db, err := storage.Open(cfg, factory, "ghost-test")
	if err != nil {
		t.Fatal(err)
	}
	m := NewManager(db, nil)
	if err := m.Recover(); err != nil {
		t.Fatal(err)
	}

	id, err := m.StoreMemory(TypeFact, "live at the first snapshot", DefaultStoreOptions())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.CreateSnapshot(); err != nil { // snapshot K: id is live here
		t.Fatal(err)
	}
	if err := m.ForgetMemory(id, 0, false); err != nil {
		t.Fatal(err)
	}
	if _, err := m.StoreMemory(TypeFact, "unrelated, just to advance state", DefaultStoreOptions()); err != nil {
		t.Fatal(err)
	}
	if _, err := db.CreateSnapshot(); err != nil { // snapshot K+1: id was forgotten before this
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	db2, err := storage.Open(cfg, factory, "ghost-test")
	if err != nil {
		t.Fatal(err)
	}
	defer db2.Close()
	m2 := NewManager(db2, nil)
	if err := m2.Recover(); err != nil {
		t.Fatal(err)
	}

	if _, ok := m2.GetMemory(id); ok {
		t.Error("expected the memory forgotten before the later snapshot to stay forgotten, not resurrected as a ghost")
	}
}

func TestRecoverAcrossSnapshotAndLogTail(t *testing.T) {
	base := t.TempDir()
	cfg := storage.DefaultConfig()
	cfg.DataPath = base
	factory := &storage.FileStoreFactory{Basepath: base}

	db, err := storage.Open(cfg, factory, "snap-tail-test")
	if err != nil {
		t.Fatal(err)
	}
	m := NewManager(db, nil)
	if err := m.Recover(); err != nil {
		t.Fatal(err)
	}
	snapshotted, err := m.StoreMemory(TypeFact, "in the snapshot", DefaultStoreOptions())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.CreateSnapshot(); err != nil {
		t.Fatal(err)
	}
	afterSnapshot, err := m.StoreMemory(TypeFact, "after the snapshot, in the log tail", DefaultStoreOptions())
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	db2, err := storage.Open(cfg, factory, "snap-tail-test")
	if err != nil {
		t.Fatal(err)
	}
	defer db2.Close()
	m2 := NewManager(db2, nil)
	if err := m2.Recover(); err != nil {
		t.Fatal(err)
	}

	if _, ok := m2.GetMemory(snapshotted); !ok {
		t.Error("expected snapshotted memory to survive recovery")
	}
	if _, ok := m2.GetMemory(afterSnapshot); !ok {
		t.Error("expected log-tail memory to survive recovery")
	}

	next, err := m2.StoreMemory(TypeFact, "new memory after recovery", DefaultStoreOptions())
	if err != nil {
		t.Fatal(err)
	}
	if next <= afterSnapshot {
		t.Errorf("expected next_memory_id to continue past recovered ids, got %d after %d", next, afterSnapshot)
	}
}

func TestRecoverEmptyDatabaseSucceeds(t *testing.T) {
	cfg := storage.DefaultConfig()
	cfg.DataPath = t.TempDir()
	factory := &storage.FileStoreFactory{Basepath: cfg.DataPath}
	db, err := storage.Open(cfg, factory, "empty-test")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	m := NewManager(db, nil)
	if err := m.Recover(); err != nil {
		t.Fatalf("expected recovery of an empty database to succeed, got %v", err)
	}
	id, err := m.StoreMemory(TypeFact, "first ever memory", DefaultStoreOptions())
	if err != nil {
		t.Fatal(err)
	}
	if id != 1 {
		t.Errorf("expected first memory id to be 1, got %d", id)
	}
}

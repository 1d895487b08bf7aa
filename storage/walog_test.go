package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func openTestLog(t *testing.T) (*AppendLog, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.log")
	log, entries, err := OpenAppendLog(path, 1)
	if err != nil {
		t.Fatalf("OpenAppendLog: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries from a fresh log, got %d", len(entries))
	}
	return log, path
}

func TestAppendLogAppendAndReopen(t *testing.T) {
	log, path := openTestLog(t)
	seq1, err := log.Append(KindNode, []byte("payload-1"))
	if err != nil {
		t.Fatal(err)
	}
	seq2, err := log.Append(KindEdge, []byte("payload-2"))
	if err != nil {
		t.Fatal(err)
	}
	if seq1 == 0 || seq2 != seq1+1 {
		t.Errorf("expected monotonically increasing sequence numbers, got %d then %d", seq1, seq2)
	}
	if err := log.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, entries, err := OpenAppendLog(path, 1)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if len(entries) != 2 {
		t.Fatalf("expected 2 replayed entries, got %d", len(entries))
	}
	if string(entries[0].Payload) != "payload-1" || string(entries[1].Payload) != "payload-2" {
		t.Errorf("unexpected replayed payloads: %+v", entries)
	}
}

func TestAppendLogTruncatesCorruptTail(t *testing.T) {
	log, path := openTestLog(t)
	if _, err := log.Append(KindNode, []byte("good")); err != nil {
		t.Fatal(err)
	}
	if err := log.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND, 0640)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write([]byte{1, 2, 3}); err != nil { // truncated garbage frame header
		t.Fatal(err)
	}
	f.Close()

	reopened, entries, err := OpenAppendLog(path, 1)
	if err != nil {
		t.Fatalf("expected tail corruption to be silently truncated, got error: %v", err)
	}
	defer reopened.Close()
	if len(entries) != 1 {
		t.Fatalf("expected the one good frame to survive, got %d entries", len(entries))
	}
}

func TestAppendLogTailAfter(t *testing.T) {
	log, _ := openTestLog(t)
	defer log.Close()
	for i := 0; i < 5; i++ {
		if _, err := log.Append(KindVector, []byte{byte(i)}); err != nil {
			t.Fatal(err)
		}
	}
	tail, err := log.TailAfter(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(tail) != 2 {
		t.Fatalf("expected 2 entries after seq 3, got %d", len(tail))
	}
	if tail[0].Seq != 4 || tail[1].Seq != 5 {
		t.Errorf("unexpected sequence numbers: %+v", tail)
	}
}

func TestAppendLogMarkCorruptRefusesWrites(t *testing.T) {
	log, _ := openTestLog(t)
	defer log.Close()
	log.MarkCorrupt()
	if _, err := log.Append(KindNode, []byte("x")); err == nil {
		t.Error("expected write to a corrupt log to fail")
	}
}

func TestAppendLogStatReflectsWrites(t *testing.T) {
	log, _ := openTestLog(t)
	defer log.Close()
	before, err := log.Stat()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := log.Append(KindNode, []byte("some payload")); err != nil {
		t.Fatal(err)
	}
	after, err := log.Stat()
	if err != nil {
		t.Fatal(err)
	}
	if after <= before {
		t.Errorf("expected log size to grow after append: before=%d after=%d", before, after)
	}
}

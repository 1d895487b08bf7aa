package storage

import (
	"math"
	"testing"
)

// unitVector returns a unit vector pointing mostly along dim, with a
// small amount spread across the rest so nearby vectors aren't
// bit-identical.
func unitVector(dim int, jitter float32) Vector {
	var v Vector
	v.Dims[dim] = 1
	if jitter != 0 {
		v.Dims[(dim+1)%VectorDims] = jitter
	}
	var sum float64
	for _, f := range v.Dims {
		sum += float64(f) * float64(f)
	}
	mag := float32(math.Sqrt(sum))
	for i := range v.Dims {
		v.Dims[i] /= mag
	}
	return v
}

func TestVectorIndexRejectsNonNormalizedInsert(t *testing.T) {
	idx := NewVectorIndex(16, 200, 50, 1)
	var v Vector
	v.ID = 1
	v.Dims[0] = 2 // magnitude 2, not a unit vector
	err := idx.Insert(v)
	if err == nil {
		t.Fatal("expected InvalidInput error for non-normalized vector")
	}
	if kind, _ := KindOf(err); kind != InvalidInput {
		t.Errorf("expected InvalidInput, got %v", kind)
	}
}

func TestVectorIndexInsertAndGet(t *testing.T) {
	idx := NewVectorIndex(16, 200, 50, 1)
	v := unitVector(0, 0)
	v.ID = 1
	if err := idx.Insert(v); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, ok := idx.Get(1)
	if !ok {
		t.Fatal("expected vector 1 to be present")
	}
	if got.Dims[0] != v.Dims[0] {
		t.Errorf("dims mismatch: want %v got %v", v.Dims[0], got.Dims[0])
	}
	if idx.Count() != 1 {
		t.Errorf("expected count 1, got %d", idx.Count())
	}
}

func TestVectorIndexReinsertUpdatesWithoutGrowingCount(t *testing.T) {
	idx := NewVectorIndex(16, 200, 50, 1)
	v1 := unitVector(0, 0)
	v1.ID = 1
	v2 := unitVector(1, 0)
	v2.ID = 1
	if err := idx.Insert(v1); err != nil {
		t.Fatal(err)
	}
	if err := idx.Insert(v2); err != nil {
		t.Fatal(err)
	}
	if idx.Count() != 1 {
		t.Errorf("expected count 1 after re-insert, got %d", idx.Count())
	}
	got, _ := idx.Get(1)
	if got.Dims[1] != v2.Dims[1] {
		t.Error("expected re-insert to replace the stored vector")
	}
}

func TestVectorIndexQuerySimilarFindsNearestFirst(t *testing.T) {
	idx := NewVectorIndex(16, 200, 50, 42)
	for i := 0; i < 20; i++ {
		v := unitVector(i%VectorDims, 0.01*float32(i))
		v.ID = uint64(i + 1)
		if err := idx.Insert(v); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	query := unitVector(0, 0)
	ids, err := idx.QuerySimilarByVector(query, 5)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(ids) == 0 {
		t.Fatal("expected at least one result")
	}
	if ids[0] != 1 {
		t.Errorf("expected id 1 (exact match direction) to be nearest, got %d", ids[0])
	}
}

func TestVectorIndexQuerySimilarRejectsNonNormalizedQuery(t *testing.T) {
	idx := NewVectorIndex(16, 200, 50, 1)
	v := unitVector(0, 0)
	v.ID = 1
	_ = idx.Insert(v)
	var bad Vector
	bad.Dims[0] = 5
	if _, err := idx.QuerySimilarByVector(bad, 1); err == nil {
		t.Error("expected InvalidInput for non-normalized query vector")
	}
}

func TestVectorIndexQuerySimilarByIDNotFound(t *testing.T) {
	idx := NewVectorIndex(16, 200, 50, 1)
	if _, err := idx.QuerySimilar(999, 1); err == nil {
		t.Error("expected NotFound for unknown id")
	} else if kind, _ := KindOf(err); kind != NotFound {
		t.Errorf("expected NotFound, got %v", kind)
	}
}

func TestVectorIndexEmptyIndexQueryReturnsNoResults(t *testing.T) {
	idx := NewVectorIndex(16, 200, 50, 1)
	q := unitVector(0, 0)
	ids, err := idx.QuerySimilarByVector(q, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("expected no results on empty index, got %v", ids)
	}
}

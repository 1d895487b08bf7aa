package storage

import "testing"

func TestQueryEngineQueryRelatedUnknownNode(t *testing.T) {
	g := NewGraphIndex()
	v := NewVectorIndex(16, 200, 50, 1)
	q := NewQueryEngine(g, v)
	if _, err := q.QueryRelated(1, 2); err == nil {
		t.Error("expected NotFound for unknown node")
	}
}

func TestQueryEngineQueryHybridUnion(t *testing.T) {
	g := NewGraphIndex()
	g.InsertNode(NewNode(1, "seed"))
	g.InsertNode(NewNode(2, "related"))
	g.InsertEdge(Edge{From: 1, To: 2, Kind: EdgeLinks})

	idx := NewVectorIndex(16, 200, 50, 1)
	seedVec := unitVector(0, 0)
	seedVec.ID = 1
	if err := idx.Insert(seedVec); err != nil {
		t.Fatal(err)
	}
	otherVec := unitVector(1, 0)
	otherVec.ID = 3
	if err := idx.Insert(otherVec); err != nil {
		t.Fatal(err)
	}

	q := NewQueryEngine(g, idx)
	result, err := q.QueryHybrid(1, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.RelatedNodes) != 2 {
		t.Errorf("expected 2 related nodes (seed + depth 1), got %v", result.RelatedNodes)
	}
	if len(result.SimilarVectors) == 0 {
		t.Error("expected at least one similar vector result")
	}
}

func TestQueryEngineQueryHybridNoVectorForSeed(t *testing.T) {
	g := NewGraphIndex()
	g.InsertNode(NewNode(1, "seed"))
	idx := NewVectorIndex(16, 200, 50, 1)
	q := NewQueryEngine(g, idx)
	result, err := q.QueryHybrid(1, 0, 5)
	if err != nil {
		t.Fatal(err)
	}
	if result.SimilarVectors != nil {
		t.Errorf("expected nil similar vectors when seed has no vector, got %v", result.SimilarVectors)
	}
}

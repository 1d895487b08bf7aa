package memory

import (
	"math"
	"testing"

	"github.com/memora-db/memora/storage"
)

func magnitude(dims [storage.VectorDims]float32) float64 {
	var sum float64
	for _, d := range dims {
		sum += float64(d) * float64(d)
	}
	return math.Sqrt(sum)
}

func TestDefaultEmbedderIsDeterministic(t *testing.T) {
	e := DefaultEmbedder{}
	a := e.Embed([]byte("the quick brown fox"))
	b := e.Embed([]byte("the quick brown fox"))
	if a != b {
		t.Error("expected identical content to embed identically")
	}
}

func TestDefaultEmbedderDiffersAcrossContent(t *testing.T) {
	e := DefaultEmbedder{}
	a := e.Embed([]byte("alpha"))
	b := e.Embed([]byte("beta"))
	if a == b {
		t.Error("expected distinct content to embed to distinct vectors")
	}
}

func TestDefaultEmbedderProducesUnitVectors(t *testing.T) {
	e := DefaultEmbedder{}
	dims := e.Embed([]byte("normalize me"))
	mag := magnitude(dims)
	if math.Abs(mag-1) > 1e-4 {
		t.Errorf("expected unit-normalized embedding, got magnitude %f", mag)
	}
}

func TestDefaultEmbedderUnicodeNormalizationMatches(t *testing.T) {
	e := DefaultEmbedder{}
	// "café" is the precomposed form (e-acute as one code point);
	// "café" spells the same word with a combining acute accent.
	precomposed := "café"
	decomposed := "café"
	if precomposed == decomposed {
		t.Fatal("test setup broken: precomposed and decomposed forms must differ byte-for-byte")
	}
	if e.Embed([]byte(precomposed)) != e.Embed([]byte(decomposed)) {
		t.Error("expected NFC-equivalent content to embed identically")
	}
}

func TestDefaultEmbedderEmptyContentDoesNotProduceNaN(t *testing.T) {
	e := DefaultEmbedder{}
	dims := e.Embed(nil)
	for i, d := range dims {
		if math.IsNaN(float64(d)) {
			t.Fatalf("dims[%d] is NaN", i)
		}
	}
}

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
	"math"
	"math/rand"

	"golang.org/x/text/unicode/norm"

	"github.com/memora-db/memora/storage"
)

// Embedder computes a fixed-dimension embedding for content. Real
// deployments swap in an external embedding service; DefaultEmbedder is
// the deterministic fallback spec.md §4.6 requires the core to ship with.
type Embedder interface {
	Embed(content []byte) [storage.VectorDims]float32
}

// DefaultEmbedder implements the deterministic embedding spec.md §4.6
// mandates: hash the content with a multiplicative rolling hash, seed a
// PRNG with the hash, fill D floats in [-1,1], normalize to unit length.
type DefaultEmbedder struct{}

// rollingHash is the multiplicative rolling hash that seeds the PRNG. Content is
// NFC-normalized first (via golang.org/x/text/unicode/norm) so that
// semantically identical text in different Unicode forms embeds
// identically, per SPEC_FULL.md §B.
func rollingHash(content []byte) uint64 {
	normalized := norm.NFC.Bytes(content)
	var h uint64 = 14695981039346656037 // FNV offset basis, reused as a rolling-hash seed
	for _, b := range normalized {
		h = h*1099511628211 ^ uint64(b)
	}
	return h
}

func (DefaultEmbedder) Embed(content []byte) [storage.VectorDims]float32 {
	seed := rollingHash(content)
	rng := rand.New(rand.NewSource(int64(seed)))

	var dims [storage.VectorDims]float32
	var sumSquares float64
	for i := range dims {
		v := rng.Float64()*2 - 1 // uniform in [-1, 1]
		dims[i] = float32(v)
		sumSquares += v * v
	}
	mag := math.Sqrt(sumSquares)
	if mag == 0 {
		dims[0] = 1 // degenerate all-zero draw; avoid a NaN-producing divide
		return dims
	}
	for i := range dims {
		dims[i] = float32(float64(dims[i]) / mag)
	}
	return dims
}

// Package mssmttesting provides deterministic data generators for MS-SMT
// tests and benchmarks.
package mssmttesting

import (
	"crypto/sha256"
	"math/rand"

	"github.com/forestrie/go-mssmt/mssmt"
	"github.com/google/uuid"
)

// LeafGenerator produces pseudo random keys and leaves. The generator is
// seeded so the data is the same from run to run; force the seed to a
// fixed value in tests that compare against recorded roots.
type LeafGenerator struct {
	rng *rand.Rand
}

// NewLeafGenerator returns a generator for the given seed.
func NewLeafGenerator(seed int64) *LeafGenerator {
	return &LeafGenerator{rng: rand.New(rand.NewSource(seed))}
}

// RandKey returns a uniformly distributed key, derived the way callers
// typically derive them: by hashing an identifier.
func (g *LeafGenerator) RandKey() [mssmt.HashSize]byte {
	id, err := uuid.NewRandomFromReader(g.rng)
	if err != nil {
		// The seeded rng never fails to read.
		panic(err)
	}
	return sha256.Sum256(id[:])
}

// RandLeaf returns a leaf with a short random value and a bounded sum.
// Sums stay below 2^32 so any realistic number of leaves aggregates
// comfortably inside uint64.
func (g *LeafGenerator) RandLeaf() *mssmt.LeafNode {
	value := make([]byte, 1+g.rng.Intn(64))
	g.rng.Read(value)
	return mssmt.NewLeafNode(value, uint64(g.rng.Int63n(1<<32)))
}

// RandLeaves returns n distinct keys with random leaves.
func (g *LeafGenerator) RandLeaves(n int) map[[mssmt.HashSize]byte]*mssmt.LeafNode {
	leaves := make(map[[mssmt.HashSize]byte]*mssmt.LeafNode, n)
	for len(leaves) < n {
		leaves[g.RandKey()] = g.RandLeaf()
	}
	return leaves
}

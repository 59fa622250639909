package mssmttesting

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGeneratorIsDeterministic(t *testing.T) {
	a := NewLeafGenerator(42)
	b := NewLeafGenerator(42)

	for i := 0; i < 8; i++ {
		require.Equal(t, a.RandKey(), b.RandKey())

		la, lb := a.RandLeaf(), b.RandLeaf()
		require.Equal(t, la.NodeHash(), lb.NodeHash())
	}
}

func TestRandLeavesAreDistinct(t *testing.T) {
	gen := NewLeafGenerator(43)
	leaves := gen.RandLeaves(64)
	require.Len(t, leaves, 64)

	for _, leaf := range leaves {
		require.False(t, leaf.IsEmpty())
		require.Less(t, leaf.NodeSum(), uint64(1)<<32)
	}
}

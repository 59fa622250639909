package mssmt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultStoreEmptyRoot(t *testing.T) {
	ctx := context.Background()
	store := NewDefaultStore()

	root, err := store.RootNode(ctx)
	require.NoError(t, err)
	require.Equal(t, EmptyTree[0].NodeHash(), root.NodeHash())
	require.Zero(t, store.NumNodes())
}

func TestDefaultStoreMissingNodeIsFatal(t *testing.T) {
	ctx := context.Background()
	store := NewDefaultStore()

	_, err := store.GetNode(ctx, NodeHash{0xde, 0xad})
	require.ErrorIs(t, err, ErrNodeNotFound)
}

func TestDefaultStorePutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewDefaultStore()

	leaf := NewLeafNode([]byte("value"), 7)
	require.NoError(t, store.PutNode(ctx, leaf))

	// Idempotent under content addressing.
	require.NoError(t, store.PutNode(ctx, leaf))
	require.Equal(t, 1, store.NumNodes())

	got, err := store.GetNode(ctx, leaf.NodeHash())
	require.NoError(t, err)
	require.True(t, IsEqualNode(leaf, got))
}

func TestDefaultStoreHandsOutCopies(t *testing.T) {
	ctx := context.Background()
	store := NewDefaultStore()

	leaf := NewLeafNode([]byte("value"), 7)
	require.NoError(t, store.PutNode(ctx, leaf))

	// Mutating the caller's node after the put must not reach the store.
	leaf.Value[0] = 'x'
	got, err := store.GetNode(ctx, NewLeafNode([]byte("value"), 7).NodeHash())
	require.NoError(t, err)
	require.Equal(t, []byte("value"), got.(*LeafNode).Value)

	// Nor must mutating what the store handed back.
	got.(*LeafNode).Value[0] = 'y'
	again, err := store.GetNode(ctx, NewLeafNode([]byte("value"), 7).NodeHash())
	require.NoError(t, err)
	require.Equal(t, []byte("value"), again.(*LeafNode).Value)
}

func TestDefaultStoreRootRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewDefaultStore()

	branch := NewBranch(NewLeafNode([]byte("l"), 1), NewLeafNode([]byte("r"), 2))
	require.NoError(t, store.UpdateRoot(ctx, branch))

	root, err := store.RootNode(ctx)
	require.NoError(t, err)
	require.Equal(t, branch.NodeHash(), root.NodeHash())
	require.EqualValues(t, 3, root.NodeSum())
}

func TestDefaultStoreRootIsCopied(t *testing.T) {
	ctx := context.Background()
	store := NewDefaultStore()

	branch := NewBranch(NewLeafNode([]byte("l"), 1), NewLeafNode([]byte("r"), 2))
	require.NoError(t, store.UpdateRoot(ctx, branch))
	wantLeft := branch.Left.NodeHash()

	// Mutating a handed-out root must not reach the stored one.
	root, err := store.RootNode(ctx)
	require.NoError(t, err)
	root.(*BranchNode).Left = NewComputedNode(NodeHash{0xff}, 99)

	again, err := store.RootNode(ctx)
	require.NoError(t, err)
	require.Equal(t, wantLeft, again.(*BranchNode).Left.NodeHash())
}

func TestDefaultStoreDeleteNode(t *testing.T) {
	ctx := context.Background()
	store := NewDefaultStore()

	leaf := NewLeafNode([]byte("value"), 7)
	require.NoError(t, store.PutNode(ctx, leaf))
	require.NoError(t, store.DeleteNode(ctx, leaf.NodeHash()))
	require.Zero(t, store.NumNodes())

	_, err := store.GetNode(ctx, leaf.NodeHash())
	require.ErrorIs(t, err, ErrNodeNotFound)

	// Deleting an absent node is a no-op.
	require.NoError(t, store.DeleteNode(ctx, leaf.NodeHash()))
}

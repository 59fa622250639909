package pebblestore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/pebble"
	"github.com/stretchr/testify/require"

	"github.com/forestrie/go-mssmt/mssmt"
	"github.com/forestrie/go-mssmt/mssmttesting"
)

var _ mssmt.TreeStore = (*Store)(nil)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(
		filepath.Join(t.TempDir(), "nodes"), WithSyncWrites(false),
	)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })
	return store
}

func TestEmptyStoreRoot(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	root, err := store.RootNode(ctx)
	require.NoError(t, err)
	require.Equal(t, mssmt.EmptyTree[0].NodeHash(), root.NodeHash())
}

func TestMissingNode(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	_, err := store.GetNode(ctx, mssmt.NodeHash{0x01})
	require.ErrorIs(t, err, mssmt.ErrNodeNotFound)
}

func TestTreeOverPebble(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	tree := mssmt.NewCompactedTree(store)

	gen := mssmttesting.NewLeafGenerator(1)
	leaves := gen.RandLeaves(32)

	var wantSum uint64
	for key, leaf := range leaves {
		_, err := tree.Insert(ctx, key, leaf)
		require.NoError(t, err)
		wantSum += leaf.NodeSum()
	}

	root, err := tree.Root(ctx)
	require.NoError(t, err)
	require.Equal(t, wantSum, root.NodeSum())

	for key, leaf := range leaves {
		got, err := tree.Get(ctx, key)
		require.NoError(t, err)
		require.True(t, mssmt.IsEqualNode(leaf, got))

		proof, err := tree.MerkleProof(ctx, key)
		require.NoError(t, err)
		require.True(t, proof.Verify(key, leaf, root.NodeHash()))
	}
}

func TestReopenKeepsRoot(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nodes")

	store, err := NewStore(path)
	require.NoError(t, err)
	tree := mssmt.NewCompactedTree(store)

	gen := mssmttesting.NewLeafGenerator(2)
	leaves := gen.RandLeaves(8)
	for key, leaf := range leaves {
		_, err := tree.Insert(ctx, key, leaf)
		require.NoError(t, err)
	}
	root, err := tree.Root(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := NewStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	tree = mssmt.NewCompactedTree(reopened)
	gotRoot, err := tree.Root(ctx)
	require.NoError(t, err)
	require.Equal(t, root.NodeHash(), gotRoot.NodeHash())
	require.Equal(t, root.NodeSum(), gotRoot.NodeSum())

	for key, leaf := range leaves {
		got, err := tree.Get(ctx, key)
		require.NoError(t, err)
		require.True(t, mssmt.IsEqualNode(leaf, got))
	}
}

func TestCorruptRecordIsDetected(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	leaf := mssmt.NewLeafNode([]byte("value"), 7)
	require.NoError(t, store.PutNode(ctx, leaf))

	// Flip a byte of the stored record behind the store's back.
	key := nodeKey(leaf.NodeHash())
	val, closer, err := store.db.Get(key)
	require.NoError(t, err)
	sealed := append([]byte(nil), val...)
	closer.Close()

	tampered := append([]byte(nil), sealed...)
	tampered[len(tampered)-1] ^= 0x01
	require.NoError(t, store.db.Set(key, tampered, pebble.Sync))

	_, err = store.GetNode(ctx, leaf.NodeHash())
	require.ErrorIs(t, err, mssmt.ErrIntegrityFailure)

	// A truncated record fails the same way.
	require.NoError(t, store.db.Set(key, sealed[:8], pebble.Sync))
	_, err = store.GetNode(ctx, leaf.NodeHash())
	require.ErrorIs(t, err, mssmt.ErrIntegrityFailure)
}

func TestDeleteNode(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	leaf := mssmt.NewLeafNode([]byte("value"), 7)
	require.NoError(t, store.PutNode(ctx, leaf))
	require.NoError(t, store.DeleteNode(ctx, leaf.NodeHash()))

	_, err := store.GetNode(ctx, leaf.NodeHash())
	require.ErrorIs(t, err, mssmt.ErrNodeNotFound)
}

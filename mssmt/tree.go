package mssmt

import (
	"context"
	"fmt"
	"sync"
)

// Tree is the public contract of both MS-SMT engines. Mutations are
// serialized internally; reads against an already published root may run
// concurrently with each other.
type Tree interface {
	// Root returns the current root node. Its hash commits to the entire
	// tree and its sum is the total committed across all keys.
	Root(ctx context.Context) (*BranchNode, error)

	// Insert sets the leaf stored under key and returns the new root.
	// Inserting the empty leaf is equivalent to Delete.
	Insert(ctx context.Context, key [HashSize]byte, leaf *LeafNode) (
		*BranchNode, error)

	// Delete removes the leaf stored under key and returns the new root.
	// Deleting an absent key is a no-op.
	Delete(ctx context.Context, key [HashSize]byte) (*BranchNode, error)

	// Get returns the leaf stored under key, or EmptyLeafNode when the
	// key is absent. It never mutates the store.
	Get(ctx context.Context, key [HashSize]byte) (*LeafNode, error)

	// MerkleProof produces an inclusion (or non-inclusion) proof for key
	// against the current root.
	MerkleProof(ctx context.Context, key [HashSize]byte) (*Proof, error)
}

// resolveNode exchanges a digest-only child reference for the typed node
// it stands for. Canonical empty subtrees are recognised by hash and
// answered from the EmptyTree ladder without touching the store.
func resolveNode(ctx context.Context, store TreeStore, node Node,
	depth int) (Node, error) {

	if isEmptyAt(node, depth) {
		return EmptyTree[depth], nil
	}
	if computed, ok := node.(ComputedNode); ok {
		return store.GetNode(ctx, computed.NodeHash())
	}
	return node, nil
}

// rootBranch fetches the published root and requires it to be a branch,
// which both engines guarantee it always is.
func rootBranch(ctx context.Context, store TreeStore) (*BranchNode, error) {
	root, err := store.RootNode(ctx)
	if err != nil {
		return nil, err
	}
	branch, ok := root.(*BranchNode)
	if !ok {
		return nil, fmt.Errorf("%w: root is not a branch", ErrIntegrityFailure)
	}
	return branch, nil
}

// FullTree is the naive MS-SMT engine: every mutation materializes the
// complete 256 level path for the key. It exists as the reference the
// CompactedTree must stay hash compatible with, and is only practical
// for small key counts.
type FullTree struct {
	store TreeStore

	// Serializes mutations: an insert reads a path and writes a new path
	// derived from it, so concurrent inserts on overlapping paths would
	// lose updates.
	mu sync.Mutex
}

var _ Tree = (*FullTree)(nil)

// NewFullTree returns a full (uncompacted) MS-SMT backed by store.
func NewFullTree(store TreeStore) *FullTree {
	return &FullTree{store: store}
}

// Root returns the current root node.
func (t *FullTree) Root(ctx context.Context) (*BranchNode, error) {
	return rootBranch(ctx, t.store)
}

// walkDown walks the key's path from root to leaf, invoking visit with
// the depth of every branch passed through, the child taken and its
// sibling. It returns the leaf at the bottom of the path.
func (t *FullTree) walkDown(ctx context.Context, key *[HashSize]byte,
	visit func(depth int, next, sibling, parent Node)) (*LeafNode, error) {

	current, err := rootBranch(ctx, t.store)
	if err != nil {
		return nil, err
	}

	for i := 0; i <= lastBitIndex; i++ {
		left, err := resolveNode(ctx, t.store, current.Left, i+1)
		if err != nil {
			return nil, err
		}
		right, err := resolveNode(ctx, t.store, current.Right, i+1)
		if err != nil {
			return nil, err
		}

		next, sibling := left, right
		if bitIndex(uint8(i), key) == 1 {
			next, sibling = right, left
		}

		if visit != nil {
			visit(i, next, sibling, current)
		}

		if i == lastBitIndex {
			leaf, ok := next.(*LeafNode)
			if !ok {
				return nil, fmt.Errorf("%w: non-leaf at leaf depth",
					ErrIntegrityFailure)
			}
			return leaf, nil
		}

		branch, ok := next.(*BranchNode)
		if !ok {
			return nil, fmt.Errorf("%w: non-branch at depth %d",
				ErrIntegrityFailure, i+1)
		}
		current = branch
	}

	// Unreachable: the loop always returns at lastBitIndex.
	return nil, fmt.Errorf("%w: truncated path", ErrIntegrityFailure)
}

// Insert sets the leaf stored under key and returns the new root.
func (t *FullTree) Insert(ctx context.Context, key [HashSize]byte,
	leaf *LeafNode) (*BranchNode, error) {

	t.mu.Lock()
	defer t.mu.Unlock()

	siblings := make([]Node, MaxTreeLevels)
	_, err := t.walkDown(ctx, &key, func(depth int, _, sibling, _ Node) {
		siblings[depth] = sibling
	})
	if err != nil {
		return nil, err
	}

	var current Node = leaf
	if leaf.IsEmpty() {
		current = EmptyTree[MaxTreeLevels]
	} else if err := t.store.PutNode(ctx, leaf); err != nil {
		return nil, err
	}

	// Rebuild the path bottom up, persisting every node before its
	// parent. The store stays internally consistent even if the final
	// root update never happens.
	for i := lastBitIndex; i >= 0; i-- {
		sibling := siblings[i]
		if _, err := checkedSum(current, sibling); err != nil {
			return nil, err
		}

		var parent *BranchNode
		if bitIndex(uint8(i), &key) == 0 {
			parent = NewBranch(current, sibling)
		} else {
			parent = NewBranch(sibling, current)
		}

		// Subtrees that collapsed back to the canonical empty form are
		// represented by the sentinel, never persisted.
		if isEmptyAt(parent, i) {
			current = EmptyTree[i]
			continue
		}
		if err := t.store.PutNode(ctx, parent); err != nil {
			return nil, err
		}
		current = parent
	}

	root := current.(*BranchNode)
	if err := t.store.UpdateRoot(ctx, root); err != nil {
		return nil, err
	}
	return root, nil
}

// Delete removes the leaf stored under key and returns the new root.
func (t *FullTree) Delete(ctx context.Context, key [HashSize]byte) (
	*BranchNode, error) {

	return t.Insert(ctx, key, EmptyLeafNode)
}

// Get returns the leaf stored under key, or EmptyLeafNode when the key
// is absent.
func (t *FullTree) Get(ctx context.Context, key [HashSize]byte) (
	*LeafNode, error) {

	return t.walkDown(ctx, &key, nil)
}

// MerkleProof produces an inclusion (or non-inclusion) proof for key
// against the current root.
func (t *FullTree) MerkleProof(ctx context.Context, key [HashSize]byte) (
	*Proof, error) {

	nodes := make([]Node, MaxTreeLevels)
	_, err := t.walkDown(ctx, &key, func(depth int, _, sibling, _ Node) {
		nodes[depth] = NewComputedNode(sibling.NodeHash(), sibling.NodeSum())
	})
	if err != nil {
		return nil, err
	}
	return NewProof(nodes), nil
}

package mssmt

import (
	"context"
	"fmt"
	"sync"
)

// CompactedTree is the production MS-SMT engine. It behaves exactly as if
// the full 256 level tree were materialized, and commits to the same root
// hashes as FullTree, while only ever storing the sparse set of non-empty
// paths: any subtree occupied by a single leaf collapses into one
// CompactedLeafNode.
type CompactedTree struct {
	store TreeStore

	// Serializes mutations, see FullTree.
	mu sync.Mutex
}

var _ Tree = (*CompactedTree)(nil)

// NewCompactedTree returns a compacted MS-SMT backed by store.
func NewCompactedTree(store TreeStore) *CompactedTree {
	return &CompactedTree{store: store}
}

// Root returns the current root node.
func (t *CompactedTree) Root(ctx context.Context) (*BranchNode, error) {
	return rootBranch(ctx, t.store)
}

// stepDown resolves the children of the branch at depth and splits them
// into the child on the key's path and its sibling.
func (t *CompactedTree) stepDown(ctx context.Context, branch *BranchNode,
	depth int, key *[HashSize]byte) (Node, Node, error) {

	left, err := resolveNode(ctx, t.store, branch.Left, depth+1)
	if err != nil {
		return nil, nil, err
	}
	right, err := resolveNode(ctx, t.store, branch.Right, depth+1)
	if err != nil {
		return nil, nil, err
	}

	if bitIndex(uint8(depth), key) == 0 {
		return left, right, nil
	}
	return right, left, nil
}

// divergenceDepth returns the index of the first bit at which the two
// keys differ, starting the scan at from. The keys must not be equal.
func divergenceDepth(a, b *[HashSize]byte, from int) int {
	for i := from; i <= lastBitIndex; i++ {
		if bitIndex(uint8(i), a) != bitIndex(uint8(i), b) {
			return i
		}
	}
	// Unreachable for distinct keys.
	return lastBitIndex
}

// materializeLeaf persists leaf as the sole occupant of the subtree
// standing at depth: a plain leaf at the bottom of the tree, a compacted
// leaf anywhere above it.
func (t *CompactedTree) materializeLeaf(ctx context.Context, depth int,
	key *[HashSize]byte, leaf *LeafNode) (Node, error) {

	if depth == MaxTreeLevels {
		if err := t.store.PutNode(ctx, leaf); err != nil {
			return nil, err
		}
		return leaf, nil
	}

	compacted := NewCompactedLeafNode(depth, key, leaf)
	if err := t.store.PutNode(ctx, compacted); err != nil {
		return nil, err
	}
	return compacted, nil
}

// expand is the inverse of compaction: the subtree standing at depth
// currently holds only the compacted leaf old, and must now also hold
// leaf. A chain of branches is materialized down to the first bit at
// which the two keys diverge, with both leaves re-compacted below it.
// The returned node is the new subtree root at depth; every interior
// node is persisted before its parent.
func (t *CompactedTree) expand(ctx context.Context, depth int,
	key *[HashSize]byte, leaf *LeafNode, old *CompactedLeafNode) (
	Node, error) {

	oldKey := old.Key()
	diverge := divergenceDepth(key, &oldKey, depth)

	newNode, err := t.materializeLeaf(ctx, diverge+1, key, leaf)
	if err != nil {
		return nil, err
	}
	oldNode, err := t.materializeLeaf(ctx, diverge+1, &oldKey, old.LeafNode)
	if err != nil {
		return nil, err
	}

	if _, err := checkedSum(newNode, oldNode); err != nil {
		return nil, err
	}
	var current *BranchNode
	if bitIndex(uint8(diverge), key) == 0 {
		current = NewBranch(newNode, oldNode)
	} else {
		current = NewBranch(oldNode, newNode)
	}
	if err := t.store.PutNode(ctx, current); err != nil {
		return nil, err
	}

	// The branches above the divergence point all pair the subtree with
	// an empty sibling.
	for i := diverge - 1; i >= depth; i-- {
		if bitIndex(uint8(i), key) == 0 {
			current = NewBranch(current, EmptyTree[i+1])
		} else {
			current = NewBranch(EmptyTree[i+1], current)
		}
		if err := t.store.PutNode(ctx, current); err != nil {
			return nil, err
		}
	}

	return current, nil
}

// floatingLeaf is a leaf that is known to be the sole occupant of the
// subtree below the current unwind depth, but whose final compaction
// depth is not yet known: it floats upward until it meets a non-empty
// sibling (or the root) and is only materialized there.
type floatingLeaf struct {
	key  [HashSize]byte
	leaf *LeafNode
}

// insert replaces the leaf addressed by key with leaf (the empty leaf
// deletes) and rebuilds the path to the root. The walk descends only as
// far as the tree is materialized; the unwind re-applies compaction
// bottom up after every structural change.
func (t *CompactedTree) insert(ctx context.Context, key *[HashSize]byte,
	leaf *LeafNode) (*BranchNode, error) {

	root, err := rootBranch(ctx, t.store)
	if err != nil {
		return nil, err
	}
	deleting := leaf.IsEmpty()

	// siblings[i] is the sibling, at depth i+1, of the path node reached
	// by consuming key bits 0..i.
	siblings := make([]Node, 0, MaxTreeLevels)

	current := root
	parentDepth := -1

	// newChild is the subtree replacing the walk's terminus at depth
	// parentDepth+1. Exactly one of newChild and floating is set when the
	// walk ends, unless the mutation turned out to be a no-op.
	var newChild Node
	var floating *floatingLeaf

walk:
	for i := 0; i <= lastBitIndex; i++ {
		next, sibling, err := t.stepDown(ctx, current, i, key)
		if err != nil {
			return nil, err
		}
		siblings = append(siblings, sibling)
		parentDepth = i

		if isEmptyAt(next, i+1) {
			if deleting {
				// Deleting a key that was never inserted: the tree is
				// unchanged.
				return root, nil
			}
			floating = &floatingLeaf{key: *key, leaf: leaf}
			break walk
		}

		switch node := next.(type) {
		case *BranchNode:
			if i == lastBitIndex {
				return nil, fmt.Errorf("%w: branch at leaf depth",
					ErrIntegrityFailure)
			}
			current = node

		case *CompactedLeafNode:
			if node.Key() == *key {
				if deleting {
					newChild = EmptyTree[i+1]
				} else {
					floating = &floatingLeaf{key: *key, leaf: leaf}
				}
				break walk
			}

			if deleting {
				// The only leaf in this subtree belongs to another key.
				return root, nil
			}
			newChild, err = t.expand(ctx, i+1, key, leaf, node)
			if err != nil {
				return nil, err
			}
			break walk

		case *LeafNode:
			// Bottom of the tree: replace the existing leaf.
			if deleting {
				newChild = EmptyTree[MaxTreeLevels]
				break walk
			}
			if err := t.store.PutNode(ctx, leaf); err != nil {
				return nil, err
			}
			newChild = leaf
			break walk

		default:
			return nil, fmt.Errorf("%w: unknown node kind on path",
				ErrIntegrityFailure)
		}
	}

	// Unwind: rebuild the branch at every depth from parentDepth back to
	// the root, re-applying compaction. Persisting child before parent
	// keeps the store consistent at all times; the old root stays
	// authoritative until the final UpdateRoot.
	for i := parentDepth; i >= 0; i-- {
		sibling := siblings[i]
		sibEmpty := isEmptyAt(sibling, i+1)

		if floating != nil {
			if sibEmpty && i > 0 {
				// Still the only leaf below depth i; keep floating.
				continue
			}
			newChild, err = t.materializeLeaf(
				ctx, i+1, &floating.key, floating.leaf,
			)
			if err != nil {
				return nil, err
			}
			floating = nil
		} else if isEmptyAt(newChild, i+1) {
			if sibEmpty {
				if i == 0 {
					// The tree is now entirely empty.
					if err := t.store.UpdateRoot(ctx, EmptyTree[0]); err != nil {
						return nil, err
					}
					return EmptyTree[0].(*BranchNode), nil
				}
				newChild = EmptyTree[i]
				continue
			}

			// One side is now empty. If the surviving side is a lone
			// leaf, the branch dissolves and the leaf floats up to a
			// shallower compaction depth.
			switch node := sibling.(type) {
			case *CompactedLeafNode:
				k := node.Key()
				floating = &floatingLeaf{key: k, leaf: node.LeafNode}
				continue

			case *LeafNode:
				// A plain leaf only exists at the very bottom, so this
				// sibling's key is ours with the final bit flipped.
				k := *key
				flipBit(&k, uint8(lastBitIndex))
				floating = &floatingLeaf{key: k, leaf: node}
				continue
			}
			// A branch sibling holds two or more leaves; it cannot be
			// compacted away, so an explicit branch remains.
		}

		if _, err := checkedSum(newChild, sibling); err != nil {
			return nil, err
		}
		var parent *BranchNode
		if bitIndex(uint8(i), key) == 0 {
			parent = NewBranch(newChild, sibling)
		} else {
			parent = NewBranch(sibling, newChild)
		}
		if err := t.store.PutNode(ctx, parent); err != nil {
			return nil, err
		}
		newChild = parent
	}

	// A leaf still floating after the unwind dissolved its branch at the
	// root: it is the sole survivor of the whole tree and settles directly
	// under the root. Its own key positions it; at depth 0 it is off the
	// mutated key's path.
	if floating != nil {
		node, err := t.materializeLeaf(ctx, 1, &floating.key, floating.leaf)
		if err != nil {
			return nil, err
		}
		var parent *BranchNode
		if bitIndex(0, &floating.key) == 0 {
			parent = NewBranch(node, EmptyTree[1])
		} else {
			parent = NewBranch(EmptyTree[1], node)
		}
		if err := t.store.PutNode(ctx, parent); err != nil {
			return nil, err
		}
		newChild = parent
	}

	newRoot := newChild.(*BranchNode)
	if err := t.store.UpdateRoot(ctx, newRoot); err != nil {
		return nil, err
	}
	return newRoot, nil
}

// Insert sets the leaf stored under key and returns the new root.
func (t *CompactedTree) Insert(ctx context.Context, key [HashSize]byte,
	leaf *LeafNode) (*BranchNode, error) {

	t.mu.Lock()
	defer t.mu.Unlock()

	return t.insert(ctx, &key, leaf)
}

// Delete removes the leaf stored under key and returns the new root.
func (t *CompactedTree) Delete(ctx context.Context, key [HashSize]byte) (
	*BranchNode, error) {

	t.mu.Lock()
	defer t.mu.Unlock()

	return t.insert(ctx, &key, EmptyLeafNode)
}

// Get returns the leaf stored under key, or EmptyLeafNode when the key
// is absent.
func (t *CompactedTree) Get(ctx context.Context, key [HashSize]byte) (
	*LeafNode, error) {

	current, err := rootBranch(ctx, t.store)
	if err != nil {
		return nil, err
	}

	for i := 0; i <= lastBitIndex; i++ {
		next, _, err := t.stepDown(ctx, current, i, &key)
		if err != nil {
			return nil, err
		}

		if isEmptyAt(next, i+1) {
			return EmptyLeafNode, nil
		}

		switch node := next.(type) {
		case *BranchNode:
			current = node

		case *CompactedLeafNode:
			if node.Key() == key {
				return node.LeafNode, nil
			}
			return EmptyLeafNode, nil

		case *LeafNode:
			return node, nil

		default:
			return nil, fmt.Errorf("%w: unknown node kind on path",
				ErrIntegrityFailure)
		}
	}

	// Unreachable: the walk always terminates at a leaf or sentinel.
	return nil, fmt.Errorf("%w: truncated path", ErrIntegrityFailure)
}

// MerkleProof produces an inclusion (or non-inclusion) proof for key
// against the current root. Depths the walk never had to materialize
// contribute canonical empty siblings; a compacted leaf belonging to a
// different key appears as the sibling at the depth the two keys diverge.
func (t *CompactedTree) MerkleProof(ctx context.Context,
	key [HashSize]byte) (*Proof, error) {

	current, err := rootBranch(ctx, t.store)
	if err != nil {
		return nil, err
	}

	nodes := make([]Node, MaxTreeLevels)
	for i := range nodes {
		nodes[i] = EmptyTree[i+1]
	}

walk:
	for i := 0; i <= lastBitIndex; i++ {
		next, sibling, err := t.stepDown(ctx, current, i, &key)
		if err != nil {
			return nil, err
		}
		nodes[i] = NewComputedNode(sibling.NodeHash(), sibling.NodeSum())

		if isEmptyAt(next, i+1) {
			break walk
		}

		switch node := next.(type) {
		case *BranchNode:
			current = node

		case *CompactedLeafNode:
			if node.Key() == key {
				// The remaining siblings are all empty.
				break walk
			}

			// The compacted leaf shares the path down to the divergence
			// bit, where it becomes the sibling; everything else below
			// is empty.
			otherKey := node.Key()
			diverge := divergenceDepth(&key, &otherKey, i+1)
			replay := replayAt(diverge+1, &otherKey, node.LeafNode)
			nodes[diverge] = NewComputedNode(
				replay.NodeHash(), replay.NodeSum(),
			)
			break walk

		case *LeafNode:
			break walk

		default:
			return nil, fmt.Errorf("%w: unknown node kind on path",
				ErrIntegrityFailure)
		}
	}

	return NewProof(nodes), nil
}

// replayAt returns the node standing for leaf as the sole occupant of
// the subtree at depth, without persisting anything.
func replayAt(depth int, key *[HashSize]byte, leaf *LeafNode) Node {
	if depth == MaxTreeLevels {
		return leaf
	}
	return NewCompactedLeafNode(depth, key, leaf)
}

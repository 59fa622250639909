package mssmt

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"math/bits"
)

// NodeHash is the content address of a node.
type NodeHash [HashSize]byte

// String returns the hex encoded hash.
func (h NodeHash) String() string {
	return hex.EncodeToString(h[:])
}

// ZeroNodeHash is the all zero hash. It is not the hash of any node; it
// only serves as a recognisable "unset" value.
var ZeroNodeHash = NodeHash{}

// Node is a node in the MS-SMT. All four variants (empty sentinel, leaf,
// branch, compacted leaf) satisfy it. A node's hash and sum are pure
// functions of its semantic content, so two structurally identical
// subtrees are indistinguishable and may share storage.
type Node interface {
	// NodeHash returns the unique content address of the node.
	NodeHash() NodeHash

	// NodeSum returns the sum committed by the node: the leaf sum, or the
	// aggregate of all leaf sums beneath a branch.
	NodeSum() uint64

	// Copy returns a deep copy of the node.
	Copy() Node
}

// IsEqualNode reports whether a and b commit to the same hash and sum.
func IsEqualNode(a, b Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.NodeHash() == b.NodeHash() && a.NodeSum() == b.NodeSum()
}

func writeSum(h hash.Hash, sum uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], sum)
	_, _ = h.Write(b[:])
}

// checkedSum adds the sums of two sibling nodes, failing with
// ErrIntegerOverflow rather than wrapping.
func checkedSum(left, right Node) (uint64, error) {
	sum, carry := bits.Add64(left.NodeSum(), right.NodeSum(), 0)
	if carry != 0 {
		return 0, ErrIntegerOverflow
	}
	return sum, nil
}

// LeafNode holds a value and its sum. The hash is H(value || sum_be8),
// deliberately independent of the key the leaf is stored under, so that
// compaction can relocate a leaf without changing its hash.
type LeafNode struct {
	// Cached after the first computation. Nodes are immutable once
	// published, so the cache is never invalidated.
	nodeHash *NodeHash

	Value []byte

	sum uint64
}

// NewLeafNode returns a leaf committing to value and sum.
func NewLeafNode(value []byte, sum uint64) *LeafNode {
	return &LeafNode{
		Value: value,
		sum:   sum,
	}
}

// NodeHash returns the content address of the leaf.
func (n *LeafNode) NodeHash() NodeHash {
	if n.nodeHash != nil {
		return *n.nodeHash
	}

	h := sha256.New()
	_, _ = h.Write(n.Value)
	writeSum(h, n.sum)

	nodeHash := NodeHash(h.Sum(nil))
	n.nodeHash = &nodeHash
	return nodeHash
}

// NodeSum returns the leaf's sum.
func (n *LeafNode) NodeSum() uint64 {
	return n.sum
}

// IsEmpty reports whether the leaf is the canonical empty leaf.
func (n *LeafNode) IsEmpty() bool {
	return len(n.Value) == 0 && n.sum == 0
}

// Copy returns a deep copy of the leaf.
func (n *LeafNode) Copy() Node {
	var nodeHash *NodeHash
	if n.nodeHash != nil {
		h := *n.nodeHash
		nodeHash = &h
	}
	value := make([]byte, len(n.Value))
	copy(value, n.Value)

	return &LeafNode{
		nodeHash: nodeHash,
		Value:    value,
		sum:      n.sum,
	}
}

// BranchNode joins two sibling subtrees. The hash binds both children
// fully: H(leftHash || leftSum_be8 || rightHash || rightSum_be8), and the
// sum is the sum of the child sums. Persisted branches only carry their
// children as hash+sum digests (ComputedNode); the real child nodes are
// resolved through the store on demand.
type BranchNode struct {
	nodeHash *NodeHash
	sum      *uint64

	Left  Node
	Right Node
}

// NewBranch returns a branch over the two children. The child sums are
// added unchecked here; mutating code paths validate against overflow
// with checkedSum before construction.
func NewBranch(left, right Node) *BranchNode {
	return &BranchNode{
		Left:  left,
		Right: right,
	}
}

// NodeHash returns the content address of the branch.
func (n *BranchNode) NodeHash() NodeHash {
	if n.nodeHash != nil {
		return *n.nodeHash
	}

	left := n.Left.NodeHash()
	right := n.Right.NodeHash()

	h := sha256.New()
	_, _ = h.Write(left[:])
	writeSum(h, n.Left.NodeSum())
	_, _ = h.Write(right[:])
	writeSum(h, n.Right.NodeSum())

	nodeHash := NodeHash(h.Sum(nil))
	n.nodeHash = &nodeHash
	return nodeHash
}

// NodeSum returns the aggregate sum of both children.
func (n *BranchNode) NodeSum() uint64 {
	if n.sum != nil {
		return *n.sum
	}

	sum := n.Left.NodeSum() + n.Right.NodeSum()
	n.sum = &sum
	return sum
}

// Copy returns a copy of the branch with the children reduced to their
// hash+sum digests.
func (n *BranchNode) Copy() Node {
	var nodeHash *NodeHash
	if n.nodeHash != nil {
		h := *n.nodeHash
		nodeHash = &h
	}
	var sum *uint64
	if n.sum != nil {
		s := *n.sum
		sum = &s
	}

	return &BranchNode{
		nodeHash: nodeHash,
		sum:      sum,
		Left:     NewComputedNode(n.Left.NodeHash(), n.Left.NodeSum()),
		Right:    NewComputedNode(n.Right.NodeHash(), n.Right.NodeSum()),
	}
}

// ComputedNode is a hash+sum digest standing in for a child that has not
// been resolved through the store.
type ComputedNode struct {
	hash NodeHash
	sum  uint64
}

// NewComputedNode returns a digest-only node.
func NewComputedNode(hash NodeHash, sum uint64) ComputedNode {
	return ComputedNode{hash: hash, sum: sum}
}

// NodeHash returns the digest hash.
func (n ComputedNode) NodeHash() NodeHash {
	return n.hash
}

// NodeSum returns the digest sum.
func (n ComputedNode) NodeSum() uint64 {
	return n.sum
}

// Copy returns a copy of the digest.
func (n ComputedNode) Copy() Node {
	return ComputedNode{hash: n.hash, sum: n.sum}
}

// CompactedLeafNode is a leaf that is the sole non-empty occupant of an
// otherwise empty subtree. It records the key and the depth at which the
// subtree was collapsed. Its node hash replays the chain of empty-sibling
// branches between the bottom of the tree and that depth, reproducing
// exactly the hash an uncompacted subtree would have.
type CompactedLeafNode struct {
	*LeafNode

	key [HashSize]byte

	// depth is the depth the compacted subtree stands at.
	depth int

	// compactedNodeHash is the hash of the leaf replayed up to the
	// compaction depth.
	compactedNodeHash NodeHash
}

// NewCompactedLeafNode compacts leaf, addressed by key, into a single
// node standing at the given depth.
func NewCompactedLeafNode(depth int, key *[HashSize]byte,
	leaf *LeafNode) *CompactedLeafNode {

	var current Node = leaf
	for i := lastBitIndex; i >= depth; i-- {
		if bitIndex(uint8(i), key) == 0 {
			current = NewBranch(current, EmptyTree[i+1])
		} else {
			current = NewBranch(EmptyTree[i+1], current)
		}
	}

	return &CompactedLeafNode{
		LeafNode:          leaf,
		key:               *key,
		depth:             depth,
		compactedNodeHash: current.NodeHash(),
	}
}

// NodeHash returns the replayed hash, i.e. the hash the root of the fully
// expanded subtree would have.
func (n *CompactedLeafNode) NodeHash() NodeHash {
	return n.compactedNodeHash
}

// Key returns the key of the compacted leaf.
func (n *CompactedLeafNode) Key() [HashSize]byte {
	return n.key
}

// Depth returns the depth the compacted subtree stands at.
func (n *CompactedLeafNode) Depth() int {
	return n.depth
}

// Copy returns a deep copy of the compacted leaf.
func (n *CompactedLeafNode) Copy() Node {
	return &CompactedLeafNode{
		LeafNode:          n.LeafNode.Copy().(*LeafNode),
		key:               n.key,
		depth:             n.depth,
		compactedNodeHash: n.compactedNodeHash,
	}
}

// EmptyLeafNode is the canonical empty leaf, the sentinel occupying every
// position no key has been inserted at.
var EmptyLeafNode = NewLeafNode(nil, 0)

// EmptyTree is the ladder of canonical empty subtrees, one per depth.
// EmptyTree[i] is the root of an empty subtree standing at depth i, so
// EmptyTree[0] is the root of an entirely empty tree and
// EmptyTree[MaxTreeLevels] is the empty leaf.
var EmptyTree [MaxTreeLevels + 1]Node

func init() {
	EmptyTree[MaxTreeLevels] = EmptyLeafNode
	for i := lastBitIndex; i >= 0; i-- {
		EmptyTree[i] = NewBranch(EmptyTree[i+1], EmptyTree[i+1])
	}
	// Resolve all the sentinel hashes and sums up front so concurrent
	// readers never race on the lazy caches.
	_ = EmptyTree[0].NodeHash()
	_ = EmptyTree[0].NodeSum()
}

// isEmptyAt reports whether n is the canonical empty subtree for depth.
func isEmptyAt(n Node, depth int) bool {
	return n.NodeHash() == EmptyTree[depth].NodeHash()
}

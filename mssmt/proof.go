package mssmt

// Proof is a merkle inclusion and sum proof for a single key. Nodes holds
// one sibling summary per tree level in root to leaf order: Nodes[i] is
// the sibling, at depth i+1, of the path node reached by consuming key
// bits 0..i. A proof for an absent key proves the empty leaf.
//
// Verification is a pure function of (key, leaf, proof, expected root):
// it performs no storage lookups.
type Proof struct {
	Nodes []Node
}

// NewProof returns a proof over the given sibling summaries.
func NewProof(nodes []Node) *Proof {
	return &Proof{Nodes: nodes}
}

// Copy returns a deep copy of the proof with every sibling reduced to its
// hash+sum digest.
func (p *Proof) Copy() *Proof {
	nodes := make([]Node, len(p.Nodes))
	for i, node := range p.Nodes {
		nodes[i] = NewComputedNode(node.NodeHash(), node.NodeSum())
	}
	return &Proof{Nodes: nodes}
}

// Root replays the proof from the leaf upward and returns the root node
// it commits to. Sum aggregation is checked at every level so a crafted
// proof cannot smuggle an overflow past a verifier.
func (p *Proof) Root(key [HashSize]byte, leaf *LeafNode) (*BranchNode, error) {
	if len(p.Nodes) != MaxTreeLevels {
		return nil, ErrInvalidProofLen
	}

	var current Node = leaf
	for i := lastBitIndex; i >= 0; i-- {
		sibling := p.Nodes[i]
		if _, err := checkedSum(current, sibling); err != nil {
			return nil, err
		}

		if bitIndex(uint8(i), &key) == 0 {
			current = NewBranch(current, sibling)
		} else {
			current = NewBranch(sibling, current)
		}
	}

	return current.(*BranchNode), nil
}

// Verify reports whether the proof attests that leaf is committed under
// key by the tree with the given root hash. Malformed input is expected
// in adversarial contexts, so Verify never fails with an error; anything
// that does not replay to rootHash is simply false.
func (p *Proof) Verify(key [HashSize]byte, leaf *LeafNode,
	rootHash NodeHash) bool {

	root, err := p.Root(key, leaf)
	if err != nil {
		return false
	}
	return root.NodeHash() == rootHash
}

// CompressedProof is the wire friendly form of a Proof. Because the tree
// is sparse, almost every sibling on a path is a canonical empty subtree;
// those carry no information beyond their depth, so they are elided and
// recorded as a single bit. Proof size is therefore proportional to the
// key's divergence depth, not to the nominal tree depth.
type CompressedProof struct {
	// Bits[i] is true when the sibling at depth i+1 is empty and was
	// elided from Nodes.
	Bits []bool

	// Nodes holds the non-empty sibling summaries, in root to leaf order.
	Nodes []Node
}

// Compress elides every canonical empty sibling from the proof.
func (p *Proof) Compress() *CompressedProof {
	bits := make([]bool, len(p.Nodes))
	var nodes []Node

	for i, node := range p.Nodes {
		if isEmptyAt(node, i+1) {
			bits[i] = true
			continue
		}
		nodes = append(nodes, NewComputedNode(node.NodeHash(), node.NodeSum()))
	}

	return &CompressedProof{Bits: bits, Nodes: nodes}
}

// Decompress regenerates the full proof, synthesizing the elided empty
// siblings from the canonical EmptyTree ladder.
func (p *CompressedProof) Decompress() (*Proof, error) {
	if len(p.Bits) != MaxTreeLevels {
		return nil, ErrInvalidCompressedProof
	}

	nodes := make([]Node, len(p.Bits))
	next := 0
	for i, isEmpty := range p.Bits {
		if isEmpty {
			nodes[i] = EmptyTree[i+1]
			continue
		}
		if next >= len(p.Nodes) {
			return nil, ErrInvalidCompressedProof
		}
		nodes[i] = p.Nodes[next]
		next++
	}
	if next != len(p.Nodes) {
		return nil, ErrInvalidCompressedProof
	}

	return NewProof(nodes), nil
}

// PackBits packs a bit vector LSB first into bytes, for wire encodings.
func PackBits(bits []bool) []byte {
	packed := make([]byte, (len(bits)+7)/8)
	for i, isSet := range bits {
		if isSet {
			packed[i/8] |= 1 << (i % 8)
		}
	}
	return packed
}

// UnpackBits is the inverse of PackBits, returning numBits bits.
func UnpackBits(packed []byte, numBits int) ([]bool, error) {
	if len(packed) != (numBits+7)/8 {
		return nil, ErrInvalidCompressedProof
	}

	bits := make([]bool, numBits)
	for i := range bits {
		bits[i] = packed[i/8]&(1<<(i%8)) != 0
	}
	return bits, nil
}

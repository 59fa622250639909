package codec

import (
	"fmt"
	"time"

	"github.com/forestrie/go-mssmt/mssmt"
)

// SiblingRecord is the wire form of a single carried proof sibling.
type SiblingRecord struct {
	Hash []byte `cbor:"1,keyasint"`
	Sum  uint64 `cbor:"2,keyasint"`
}

// ProofRecord is the wire form of a compressed inclusion proof: a packed
// empty-sibling bitmap plus the non-empty siblings in root to leaf
// order.
type ProofRecord struct {
	Bits     []byte          `cbor:"1,keyasint"`
	Siblings []SiblingRecord `cbor:"2,keyasint"`
}

// TreeState commits to a tree root at a point in time. The sum is
// attested alongside the hash so a verifier can anchor both ends of an
// inclusion proof without any other context.
type TreeState struct {
	RootHash []byte `cbor:"1,keyasint"`
	RootSum  uint64 `cbor:"2,keyasint"`
	// Timestamp is the unix time (milliseconds) read when the state was
	// captured. Including it allows the same root to be re-attested.
	Timestamp int64 `cbor:"3,keyasint"`
}

// NewTreeState captures the given root at the current time.
func NewTreeState(root mssmt.Node) TreeState {
	hash := root.NodeHash()
	return TreeState{
		RootHash:  hash[:],
		RootSum:   root.NodeSum(),
		Timestamp: time.Now().UnixMilli(),
	}
}

// MarshalProof encodes a compressed proof.
func (c CBORCodec) MarshalProof(proof *mssmt.CompressedProof) ([]byte, error) {
	rec := ProofRecord{
		Bits:     mssmt.PackBits(proof.Bits),
		Siblings: make([]SiblingRecord, 0, len(proof.Nodes)),
	}
	for _, node := range proof.Nodes {
		hash := node.NodeHash()
		rec.Siblings = append(rec.Siblings, SiblingRecord{
			Hash: hash[:],
			Sum:  node.NodeSum(),
		})
	}
	return c.MarshalCBOR(rec)
}

// UnmarshalProof decodes a compressed proof. The sibling count is
// checked against the bitmap during Decompress, not here; this only
// validates the record shape.
func (c CBORCodec) UnmarshalProof(data []byte) (*mssmt.CompressedProof, error) {
	var rec ProofRecord
	if err := c.UnmarshalCBOR(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	bits, err := mssmt.UnpackBits(rec.Bits, mssmt.MaxTreeLevels)
	if err != nil {
		return nil, fmt.Errorf("%w: bitmap", ErrInvalidRecord)
	}

	nodes := make([]mssmt.Node, 0, len(rec.Siblings))
	for _, sib := range rec.Siblings {
		if len(sib.Hash) != mssmt.HashSize {
			return nil, fmt.Errorf("%w: sibling hash size %d",
				ErrInvalidRecord, len(sib.Hash))
		}
		var hash mssmt.NodeHash
		copy(hash[:], sib.Hash)
		nodes = append(nodes, mssmt.NewComputedNode(hash, sib.Sum))
	}

	return &mssmt.CompressedProof{Bits: bits, Nodes: nodes}, nil
}

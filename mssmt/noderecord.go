package mssmt

import (
	"encoding/binary"
	"fmt"
)

// NodeKind tags a persisted node record.
type NodeKind uint8

const (
	KindBranch        NodeKind = 1
	KindLeaf          NodeKind = 2
	KindCompactedLeaf NodeKind = 3
)

// Persisted record layouts (all integers big endian):
//
//	branch:    kind_u8 || leftHash[32]  || leftSum_be8 || rightHash[32] || rightSum_be8
//	leaf:      kind_u8 || sum_be8 || value...
//	compacted: kind_u8 || key[32] || depth_be2 || sum_be8 || value...
//
// A branch never records its children beyond their hash+sum digests; the
// child nodes themselves are separate records addressed by hash.
const (
	branchRecordBytes       = 1 + 2*(HashSize+8)
	leafRecordMinBytes      = 1 + 8
	compactedRecordMinBytes = 1 + HashSize + 2 + 8
)

// MarshalNode encodes a node into its persisted record form.
func MarshalNode(node Node) ([]byte, error) {
	switch n := node.(type) {
	case *BranchNode:
		rec := make([]byte, branchRecordBytes)
		rec[0] = byte(KindBranch)
		left := n.Left.NodeHash()
		right := n.Right.NodeHash()
		copy(rec[1:1+HashSize], left[:])
		binary.BigEndian.PutUint64(rec[1+HashSize:], n.Left.NodeSum())
		copy(rec[1+HashSize+8:], right[:])
		binary.BigEndian.PutUint64(rec[1+2*HashSize+8:], n.Right.NodeSum())
		return rec, nil

	case *CompactedLeafNode:
		rec := make([]byte, compactedRecordMinBytes, compactedRecordMinBytes+len(n.Value))
		rec[0] = byte(KindCompactedLeaf)
		key := n.Key()
		copy(rec[1:1+HashSize], key[:])
		binary.BigEndian.PutUint16(rec[1+HashSize:], uint16(n.Depth()))
		binary.BigEndian.PutUint64(rec[1+HashSize+2:], n.NodeSum())
		return append(rec, n.Value...), nil

	case *LeafNode:
		rec := make([]byte, leafRecordMinBytes, leafRecordMinBytes+len(n.Value))
		rec[0] = byte(KindLeaf)
		binary.BigEndian.PutUint64(rec[1:], n.NodeSum())
		return append(rec, n.Value...), nil

	default:
		return nil, fmt.Errorf("%w: unencodable node kind", ErrInvalidNodeRecord)
	}
}

// UnmarshalNode decodes a persisted record back into a node. Branch
// children come back as hash+sum digests to be resolved through the
// store; a compacted leaf recomputes its replayed hash from the recorded
// key and depth.
func UnmarshalNode(rec []byte) (Node, error) {
	if len(rec) == 0 {
		return nil, fmt.Errorf("%w: empty record", ErrInvalidNodeRecord)
	}

	switch NodeKind(rec[0]) {
	case KindBranch:
		if len(rec) != branchRecordBytes {
			return nil, fmt.Errorf("%w: branch record size", ErrInvalidNodeRecord)
		}
		var left, right NodeHash
		copy(left[:], rec[1:1+HashSize])
		leftSum := binary.BigEndian.Uint64(rec[1+HashSize:])
		copy(right[:], rec[1+HashSize+8:])
		rightSum := binary.BigEndian.Uint64(rec[1+2*HashSize+8:])
		return NewBranch(
			NewComputedNode(left, leftSum),
			NewComputedNode(right, rightSum),
		), nil

	case KindLeaf:
		if len(rec) < leafRecordMinBytes {
			return nil, fmt.Errorf("%w: leaf record size", ErrInvalidNodeRecord)
		}
		sum := binary.BigEndian.Uint64(rec[1:])
		value := make([]byte, len(rec)-leafRecordMinBytes)
		copy(value, rec[leafRecordMinBytes:])
		return NewLeafNode(value, sum), nil

	case KindCompactedLeaf:
		if len(rec) < compactedRecordMinBytes {
			return nil, fmt.Errorf("%w: compacted leaf record size",
				ErrInvalidNodeRecord)
		}
		var key [HashSize]byte
		copy(key[:], rec[1:1+HashSize])
		depth := int(binary.BigEndian.Uint16(rec[1+HashSize:]))
		if depth < 1 || depth > lastBitIndex {
			return nil, fmt.Errorf("%w: compacted leaf depth %d",
				ErrInvalidNodeRecord, depth)
		}
		sum := binary.BigEndian.Uint64(rec[1+HashSize+2:])
		value := make([]byte, len(rec)-compactedRecordMinBytes)
		copy(value, rec[compactedRecordMinBytes:])
		return NewCompactedLeafNode(depth, &key, NewLeafNode(value, sum)), nil

	default:
		return nil, fmt.Errorf("%w: unknown kind %d", ErrInvalidNodeRecord, rec[0])
	}
}

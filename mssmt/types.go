package mssmt

import "errors"

// HashSize is the fixed byte width of node hashes and keys.
const HashSize = 32

// MaxTreeLevels is the nominal depth of the tree: one level per key bit.
const MaxTreeLevels = HashSize * 8

// lastBitIndex is the index of the final key bit consumed on a root to
// leaf walk.
const lastBitIndex = MaxTreeLevels - 1

var (
	ErrNodeNotFound = errors.New("mssmt: node not found")

	// ErrIntegerOverflow is returned when aggregating child sums would
	// exceed the uint64 range. A tree in this state is corrupt, so the
	// mutation that detected it is abandoned.
	ErrIntegerOverflow = errors.New("mssmt: sum overflows uint64")

	// ErrIntegrityFailure is returned by integrity checking stores when a
	// persisted node record does not match its recorded checksum, and by
	// the engines when a store hands back a node of an impossible kind
	// for its position.
	ErrIntegrityFailure = errors.New("mssmt: node integrity check failed")

	ErrInvalidProofLen        = errors.New("mssmt: proof length must equal the tree depth")
	ErrInvalidCompressedProof = errors.New("mssmt: invalid compressed proof")

	ErrInvalidNodeRecord = errors.New("mssmt: invalid node record")
)

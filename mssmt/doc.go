package mssmt

/*

# Merkle-Sum Sparse Merkle Tree primitives

This package implements a merkle-sum sparse merkle tree (MS-SMT): a
fixed-depth binary hash tree over the full 256-bit key space, where every
node commits to both a hash and an accumulated sum. An inclusion proof for
a key therefore simultaneously attests to the leaf's presence and to its
contribution to the total sum committed by the root.

## Core invariants

1. keys are traversed MSB-first (bit index 0 is the MSB), bit i of the key
   selects left (0) or right (1) at depth i
2. a branch hash binds both children fully:
   H(leftHash || leftSum_be8 || rightHash || rightSum_be8)
3. a leaf hash is H(value || sum_be8) and is deliberately key independent,
   so compaction can relocate a leaf without recomputing its hash
4. a branch sum is the checked sum of its child sums; overflow is a fatal
   integrity failure, never wrapped
5. a subtree with no inserted keys is always represented by the canonical
   empty node for its depth, never by a materialized branch of two empty
   children

## Compaction

A nominal depth-256 tree is astronomically larger than any real key set,
so the CompactedTree only materializes the sparse set of non-empty paths.
A subtree whose sole non-empty occupant is a single leaf collapses into a
CompactedLeafNode recording the leaf and the depth of the collapse. Its
node hash replays the chain of empty-sibling branches between the bottom
of the tree and that depth, which makes compaction invisible to hash
verification: a CompactedTree and a FullTree over the same key set commit
to identical roots.

## Storage

Node references beyond the current root are hashes resolved through the
TreeStore interface, so structural sharing and persistence fall out of
content addressing rather than in-memory pointers. The engines are
append-only towards the store: a mutation persists the rebuilt path bottom
up and publishes the new root last, leaving the previous root's nodes
untouched. Reclaiming unreachable nodes is a store level policy.

*/

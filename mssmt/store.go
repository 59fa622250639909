package mssmt

import (
	"context"
	"fmt"
	"sync"
)

// TreeStore is the persistence contract the tree engines depend on. Nodes
// are addressed solely by their hash. A store must keep per-node reads
// and writes atomic; the engines provide no transaction spanning multiple
// calls, so a store shared by several engine instances has to serialize
// writer access itself.
type TreeStore interface {
	// RootNode returns the currently published root, or EmptyTree[0] when
	// no root has been published yet.
	RootNode(ctx context.Context) (Node, error)

	// GetNode resolves a node by its hash. A hash referenced by a
	// persisted parent must always resolve; ErrNodeNotFound therefore
	// indicates store corruption or misuse and is fatal to the operation
	// that triggered the lookup.
	GetNode(ctx context.Context, key NodeHash) (Node, error)

	// PutNode persists a node under its hash. Persisting a node that is
	// already present is a no-op: content addressing guarantees the
	// records are identical.
	PutNode(ctx context.Context, node Node) error

	// DeleteNode removes a node. The engines never call this; it exists
	// for store level garbage collection of unreachable nodes.
	DeleteNode(ctx context.Context, key NodeHash) error

	// UpdateRoot publishes a new root. Everything the root references
	// must already be persisted, so a reader always observes either the
	// previous root or the new one, never a torn mix.
	UpdateRoot(ctx context.Context, root Node) error
}

// DefaultStore is an in-memory TreeStore backed by a hash keyed map. It
// must be constructed explicitly with NewDefaultStore; there is no
// process wide default instance.
type DefaultStore struct {
	mu sync.RWMutex

	nodes map[NodeHash]Node
	root  Node
}

// NewDefaultStore returns an empty in-memory store.
func NewDefaultStore() *DefaultStore {
	return &DefaultStore{
		nodes: make(map[NodeHash]Node),
	}
}

// NumNodes returns the number of stored nodes.
func (s *DefaultStore) NumNodes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// RootNode returns the published root, or EmptyTree[0].
func (s *DefaultStore) RootNode(_ context.Context) (Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.root == nil {
		return EmptyTree[0], nil
	}
	// Same aliasing discipline as GetNode.
	return s.root.Copy(), nil
}

// GetNode resolves a node by hash.
func (s *DefaultStore) GetNode(_ context.Context, key NodeHash) (Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := s.nodes[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, key)
	}
	// Hand out a copy so callers can never alias the stored node.
	return node.Copy(), nil
}

// PutNode persists a node under its hash. Branches are reduced to their
// digest form first: a persisted branch only references its children by
// hash and sum, exactly as a disk backed store would record it.
func (s *DefaultStore) PutNode(_ context.Context, node Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nodes[node.NodeHash()] = node.Copy()
	return nil
}

// DeleteNode removes a node. Removing an absent node is a no-op.
func (s *DefaultStore) DeleteNode(_ context.Context, key NodeHash) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.nodes, key)
	return nil
}

// UpdateRoot publishes a new root.
func (s *DefaultStore) UpdateRoot(_ context.Context, root Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.root = root.Copy()
	return nil
}

// Package pebblestore persists tree nodes in a pebble database.
//
// Records are stored under their node hash with a blake3 checksum
// prefixed to the encoded node, so a corrupted or truncated record is
// detected on read rather than silently decoded. The published root is a
// separate pointer record naming the root node by hash; everything the
// root references is written before the pointer, so a crash between the
// two leaves the previous root intact.
package pebblestore

import (
	"bytes"
	"context"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/zeebo/blake3"

	"github.com/forestrie/go-mssmt/mssmt"
)

var (
	nodeKeyPrefix  = []byte("n/")
	rootPointerKey = []byte("root")
)

// checksumSize is the length of the blake3 digest guarding each record.
const checksumSize = 32

// Store is a pebble backed mssmt.TreeStore.
type Store struct {
	db    *pebble.DB
	opts  Options
	write *pebble.WriteOptions
}

// NewStore opens (or creates) the database at path.
func NewStore(path string, opts ...Option) (*Store, error) {
	options := NewOptions(opts...)

	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebblestore: open %s: %w", path, err)
	}

	s := &Store{db: db, opts: options}
	if options.SyncWrites {
		s.write = pebble.Sync
	} else {
		s.write = pebble.NoSync
	}
	options.Logger.Debugw("opened node store", "path", path, "sync", options.SyncWrites)
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func nodeKey(hash mssmt.NodeHash) []byte {
	return append(append([]byte{}, nodeKeyPrefix...), hash[:]...)
}

// sealRecord prefixes the record with its blake3 checksum.
func sealRecord(rec []byte) []byte {
	sum := blake3.Sum256(rec)
	return append(sum[:], rec...)
}

// openRecord verifies and strips the checksum prefix.
func openRecord(sealed []byte) ([]byte, error) {
	if len(sealed) < checksumSize {
		return nil, fmt.Errorf("%w: record shorter than its checksum",
			mssmt.ErrIntegrityFailure)
	}
	rec := sealed[checksumSize:]
	sum := blake3.Sum256(rec)
	if !bytes.Equal(sum[:], sealed[:checksumSize]) {
		return nil, fmt.Errorf("%w: record checksum mismatch",
			mssmt.ErrIntegrityFailure)
	}
	return rec, nil
}

// RootNode returns the published root, or the canonical empty root when
// no pointer has been written yet.
func (s *Store) RootNode(ctx context.Context) (mssmt.Node, error) {
	val, closer, err := s.db.Get(rootPointerKey)
	if err != nil {
		if err == pebble.ErrNotFound {
			return mssmt.EmptyTree[0], nil
		}
		return nil, fmt.Errorf("pebblestore: read root pointer: %w", err)
	}
	var hash mssmt.NodeHash
	if copy(hash[:], val) != mssmt.HashSize {
		closer.Close()
		return nil, fmt.Errorf("%w: root pointer size", mssmt.ErrIntegrityFailure)
	}
	closer.Close()

	if hash == mssmt.EmptyTree[0].NodeHash() {
		return mssmt.EmptyTree[0], nil
	}
	return s.GetNode(ctx, hash)
}

// GetNode resolves a node by hash.
func (s *Store) GetNode(_ context.Context, key mssmt.NodeHash) (mssmt.Node, error) {
	sealed, closer, err := s.db.Get(nodeKey(key))
	if err != nil {
		if err == pebble.ErrNotFound {
			return nil, fmt.Errorf("%w: %s", mssmt.ErrNodeNotFound, key)
		}
		return nil, fmt.Errorf("pebblestore: read node %s: %w", key, err)
	}
	defer closer.Close()

	rec, err := openRecord(sealed)
	if err != nil {
		s.opts.Logger.Errorw("corrupt node record", "key", key.String())
		return nil, err
	}

	node, err := mssmt.UnmarshalNode(rec)
	if err != nil {
		return nil, err
	}
	if node.NodeHash() != key {
		return nil, fmt.Errorf("%w: node %s decodes to %s",
			mssmt.ErrIntegrityFailure, key, node.NodeHash())
	}
	return node, nil
}

// PutNode persists a node under its hash.
func (s *Store) PutNode(_ context.Context, node mssmt.Node) error {
	rec, err := mssmt.MarshalNode(node)
	if err != nil {
		return err
	}
	key := node.NodeHash()
	if err := s.db.Set(nodeKey(key), sealRecord(rec), s.write); err != nil {
		return fmt.Errorf("pebblestore: write node %s: %w", key, err)
	}
	return nil
}

// DeleteNode removes a node. Removing an absent node is a no-op.
func (s *Store) DeleteNode(_ context.Context, key mssmt.NodeHash) error {
	if err := s.db.Delete(nodeKey(key), s.write); err != nil {
		return fmt.Errorf("pebblestore: delete node %s: %w", key, err)
	}
	return nil
}

// UpdateRoot publishes a new root. The pointer write is always synced:
// it is the single record that makes everything before it visible.
func (s *Store) UpdateRoot(_ context.Context, root mssmt.Node) error {
	hash := root.NodeHash()
	if err := s.db.Set(rootPointerKey, hash[:], pebble.Sync); err != nil {
		return fmt.Errorf("pebblestore: publish root %s: %w", hash, err)
	}
	s.opts.Logger.Debugw("published root", "root", hash.String(), "sum", root.NodeSum())
	return nil
}

// Package leveldbstore persists tree nodes in a goleveldb database.
//
// The record layout mirrors the pebble store: each node is written under
// its hash with a sha3-256 checksum prefix, and the published root is a
// pointer record written after everything it references.
package leveldbstore

import (
	"bytes"
	"context"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"golang.org/x/crypto/sha3"

	"github.com/forestrie/go-mssmt/mssmt"
)

var (
	nodeKeyPrefix  = []byte("n/")
	rootPointerKey = []byte("root")
)

const checksumSize = 32

// Store is a goleveldb backed mssmt.TreeStore.
type Store struct {
	db    *leveldb.DB
	opts  Options
	write *opt.WriteOptions
}

// NewStore opens (or creates) the database at path.
func NewStore(path string, opts ...Option) (*Store, error) {
	options := NewOptions(opts...)

	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("leveldbstore: open %s: %w", path, err)
	}

	s := &Store{
		db:    db,
		opts:  options,
		write: &opt.WriteOptions{Sync: options.SyncWrites},
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

func sealRecord(rec []byte) []byte {
	sum := sha3.Sum256(rec)
	return append(sum[:], rec...)
}

func openRecord(sealed []byte) ([]byte, error) {
	if len(sealed) < checksumSize {
		return nil, fmt.Errorf("%w: record shorter than its checksum",
			mssmt.ErrIntegrityFailure)
	}
	rec := sealed[checksumSize:]
	sum := sha3.Sum256(rec)
	if !bytes.Equal(sum[:], sealed[:checksumSize]) {
		return nil, fmt.Errorf("%w: record checksum mismatch",
			mssmt.ErrIntegrityFailure)
	}
	return rec, nil
}

// RootNode returns the published root, or the canonical empty root when
// no pointer has been written yet.
func (s *Store) RootNode(ctx context.Context) (mssmt.Node, error) {
	val, err := s.db.Get(rootPointerKey, nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return mssmt.EmptyTree[0], nil
		}
		return nil, fmt.Errorf("leveldbstore: read root pointer: %w", err)
	}

	var hash mssmt.NodeHash
	if copy(hash[:], val) != mssmt.HashSize {
		return nil, fmt.Errorf("%w: root pointer size", mssmt.ErrIntegrityFailure)
	}
	if hash == mssmt.EmptyTree[0].NodeHash() {
		return mssmt.EmptyTree[0], nil
	}
	return s.GetNode(ctx, hash)
}

// GetNode resolves a node by hash.
func (s *Store) GetNode(_ context.Context, key mssmt.NodeHash) (mssmt.Node, error) {
	sealed, err := s.db.Get(nodeKey(key), nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, fmt.Errorf("%w: %s", mssmt.ErrNodeNotFound, key)
		}
		return nil, fmt.Errorf("leveldbstore: read node %s: %w", key, err)
	}

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
	if err := s.db.Put(nodeKey(key), sealRecord(rec), s.write); err != nil {
		return fmt.Errorf("leveldbstore: write node %s: %w", key, err)
	}
	return nil
}

// DeleteNode removes a node. Removing an absent node is a no-op.
func (s *Store) DeleteNode(_ context.Context, key mssmt.NodeHash) error {
	if err := s.db.Delete(nodeKey(key), s.write); err != nil {
		return fmt.Errorf("leveldbstore: delete node %s: %w", key, err)
	}
	return nil
}

// UpdateRoot publishes a new root. The pointer write is always synced.
func (s *Store) UpdateRoot(_ context.Context, root mssmt.Node) error {
	hash := root.NodeHash()
	err := s.db.Put(rootPointerKey, hash[:], &opt.WriteOptions{Sync: true})
	if err != nil {
		return fmt.Errorf("leveldbstore: publish root %s: %w", hash, err)
	}
	s.opts.Logger.Debugw("published root", "root", hash.String(), "sum", root.NodeSum())
	return nil
}

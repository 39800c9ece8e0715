package wal

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// ChainIndex is the pure lookup service of spec.md §4.C: the
// materialized canonical chain the compactor folds immutable WAL
// history into. Only the compactor writes here; everything else only
// reads.
type ChainIndex struct {
	cf columnFamilies
}

// newChainIndex wraps the shared column families for read access.
func newChainIndex(cf columnFamilies) *ChainIndex {
	return &ChainIndex{cf: cf}
}

// ChainIndex exposes read-only access to the chain materialized by a
// Log's compactor. Obtain one via (*Log).ChainIndex.
func (l *Log) ChainIndex() *ChainIndex {
	return newChainIndex(l.cf)
}

// GetBlock retrieves a block body by hash, regardless of whether the
// block currently lives in the WAL or has been compacted into the
// chain index. Returns (nil, nil) if no such body is stored.
func (ci *ChainIndex) GetBlock(hash types.Hash) ([]byte, error) {
	ok, err := ci.cf.blockBody.Has(hash[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	if !ok {
		return nil, nil
	}
	body, err := ci.cf.blockBody.Get(hash[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	return body, nil
}

// ChainEntry is one (slot, hash) pair from the canonical chain.
type ChainEntry struct {
	Slot uint64
	Hash types.Hash
}

// CrawlChain yields every chain entry in ascending slot order.
func (ci *ChainIndex) CrawlChain() ([]ChainEntry, error) {
	var entries []ChainEntry
	err := ci.cf.chain.ForEach(nil, func(key, val []byte) error {
		slot, err := decodeSeqKey(key)
		if err != nil {
			return err
		}
		if len(val) != types.HashSize {
			return fmt.Errorf("%w: chain entry for slot %d has %d bytes, want %d", ErrSerde, slot, len(val), types.HashSize)
		}
		var hash types.Hash
		copy(hash[:], val)
		entries = append(entries, ChainEntry{Slot: slot, Hash: hash})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	return entries, nil
}

package wal

import (
	"github.com/Klingon-tech/klingnet-chain/internal/storage"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// Column family prefixes, isolated within one shared storage.DB the way
// internal/storage.PrefixDB already isolates sub-chain keyspaces.
var (
	cfBlockBody = []byte("block_body/")
	cfChain     = []byte("chain/")
	cfWal       = []byte("wal/")
)

// columnFamilies bundles the three logical tables spec.md §4.A names, all
// backed by the same underlying storage.DB so a single Batch commit can
// span all three atomically.
type columnFamilies struct {
	blockBody *storage.PrefixDB
	chain     *storage.PrefixDB
	wal       *storage.PrefixDB
	batcher   storage.Batcher
}

func newColumnFamilies(db storage.DB) (columnFamilies, error) {
	batcher, ok := db.(storage.Batcher)
	if !ok {
		return columnFamilies{}, ErrIO
	}
	return columnFamilies{
		blockBody: storage.NewPrefixDB(db, cfBlockBody),
		chain:     storage.NewPrefixDB(db, cfChain),
		wal:       storage.NewPrefixDB(db, cfWal),
		batcher:   batcher,
	}, nil
}

// newBatch starts one atomic batch over the shared DB. Keys written
// through it must be fully qualified with a column family prefix
// (blockBodyKey/chainKey/walKey below), since the batch bypasses the
// per-CF PrefixDB wrappers to span column families in a single commit.
func (cf columnFamilies) newBatch() storage.Batch {
	return cf.batcher.NewBatch()
}

func blockBodyKey(hash types.Hash) []byte {
	return append(append([]byte(nil), cfBlockBody...), hash[:]...)
}

func chainKey(slot uint64) []byte {
	return append(append([]byte(nil), cfChain...), encodeSlotKey(slot)...)
}

func walKey(seq uint64) []byte {
	return append(append([]byte(nil), cfWal...), encodeSlotKey(seq)...)
}

// Package wal implements the rollback-aware write-ahead log that sits
// between raw block ingestion and the materialized chain index: every
// apply/undo/mark event is appended here first, in strict sequence
// order, before the compactor folds immutable history into the chain.
package wal

import (
	"errors"
	"strconv"

	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// Errors returned by the WAL's public operations.
var (
	ErrIO                = errors.New("wal: storage I/O error")
	ErrSerde             = errors.New("wal: record decode error")
	ErrPointNotReachable = errors.New("wal: rollback target is below the compaction horizon")
	ErrPointNotInWal     = errors.New("wal: point not present in log")
	ErrWalEmpty          = errors.New("wal: log is empty")
)

// ChainPoint is a position on the chain: either the virtual genesis
// (Origin) or a specific (slot, hash) pair. Origin sorts below every
// specific point; two specific points are ordered by slot, with hash
// used only for identity, never as an ordering key for forks.
type ChainPoint struct {
	origin bool
	Slot   uint64
	Hash   types.Hash
}

// Origin is the virtual genesis position preceding any block.
var Origin = ChainPoint{origin: true}

// NewChainPoint builds a specific chain point.
func NewChainPoint(slot uint64, hash types.Hash) ChainPoint {
	return ChainPoint{Slot: slot, Hash: hash}
}

// IsOrigin reports whether p is the virtual genesis position.
func (p ChainPoint) IsOrigin() bool {
	return p.origin
}

// Equal reports whether two points refer to the same position.
func (p ChainPoint) Equal(other ChainPoint) bool {
	if p.origin || other.origin {
		return p.origin == other.origin
	}
	return p.Slot == other.Slot && p.Hash == other.Hash
}

// Less orders p strictly before other. Origin is below every specific
// point; among specific points, ordering is by slot only.
func (p ChainPoint) Less(other ChainPoint) bool {
	if p.origin {
		return !other.origin
	}
	if other.origin {
		return false
	}
	return p.Slot < other.Slot
}

// String renders the point for logging.
func (p ChainPoint) String() string {
	if p.origin {
		return "origin"
	}
	return p.Hash.String() + "@" + strconv.FormatUint(p.Slot, 10)
}

// RawBlock is an opaque block as carried by the WAL: the core never
// inspects body, it only persists and returns it.
type RawBlock struct {
	Slot   uint64
	Hash   types.Hash
	Height uint64
	Body   []byte
}

// Point returns the chain point this block occupies.
func (b RawBlock) Point() ChainPoint {
	return NewChainPoint(b.Slot, b.Hash)
}

// LogValueKind tags the variant of a LogValue.
type LogValueKind uint8

const (
	// KindApply records a block that extended the tip.
	KindApply LogValueKind = 0
	// KindUndo records a previously applied block being reverted.
	KindUndo LogValueKind = 1
	// KindMark records the new tip after a rollback; carries no body.
	KindMark LogValueKind = 2
)

// LogValue is the tagged union of events the WAL stores: Apply and Undo
// carry a full RawBlock, Mark carries only the resulting ChainPoint.
type LogValue struct {
	Kind  LogValueKind
	Block RawBlock   // valid when Kind is KindApply or KindUndo
	Mark  ChainPoint // valid when Kind is KindMark
}

// Point returns the ChainPoint this event implies: the block's point
// for Apply/Undo, or the carried point for Mark.
func (v LogValue) Point() ChainPoint {
	if v.Kind == KindMark {
		return v.Mark
	}
	return v.Block.Point()
}

// Slot returns the slot this event pertains to.
func (v LogValue) Slot() uint64 {
	if v.Kind == KindMark {
		return v.Mark.Slot
	}
	return v.Block.Slot
}

// IsApply reports whether v is an Apply event.
func (v LogValue) IsApply() bool { return v.Kind == KindApply }

// IsUndo reports whether v is an Undo event.
func (v LogValue) IsUndo() bool { return v.Kind == KindUndo }

// IsMark reports whether v is a Mark event.
func (v LogValue) IsMark() bool { return v.Kind == KindMark }

// Entry pairs a WAL sequence number with the event assigned to it.
type Entry struct {
	Seq   uint64
	Value LogValue
}

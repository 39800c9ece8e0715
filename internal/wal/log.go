package wal

import (
	"fmt"
	"sync"

	klog "github.com/Klingon-tech/klingnet-chain/internal/log"
	"github.com/Klingon-tech/klingnet-chain/internal/storage"
	"github.com/Klingon-tech/klingnet-chain/internal/syncutil"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
	"github.com/rs/zerolog"
)

// Log is the append-only rollback-aware write-ahead log of spec.md §4.B,
// backed by a storage.DB shared with the chain index and block bodies.
type Log struct {
	mu      sync.Mutex // serializes the read-modify-write of walSeq and its batch
	cf      columnFamilies
	walSeq  uint64
	logger  zerolog.Logger
	notify  *syncutil.Notifier
	metrics *metrics
}

// Option configures a Log at construction time.
type Option func(*Log)

// WithLogger overrides the default component logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Log) { l.logger = logger }
}

// WithMetrics attaches a metrics recorder created by NewMetrics.
func WithMetrics(m *metrics) Option {
	return func(l *Log) { l.metrics = m }
}

// Open recovers wal_seq from the maximum key in the wal column family
// (0 if empty) and returns a ready Log, per spec.md §4.B.
func Open(db storage.DB, opts ...Option) (*Log, error) {
	cf, err := newColumnFamilies(db)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}

	l := &Log{
		cf:     cf,
		logger: klog.Wal,
		notify: syncutil.NewNotifier(),
	}
	for _, opt := range opts {
		opt(l)
	}

	maxSeq, err := recoverMaxSeq(cf)
	if err != nil {
		return nil, err
	}
	l.walSeq = maxSeq

	l.logger.Debug().Uint64("wal_seq", l.walSeq).Msg("wal opened")
	return l, nil
}

func recoverMaxSeq(cf columnFamilies) (uint64, error) {
	var max uint64
	err := cf.wal.ForEach(nil, func(key, _ []byte) error {
		seq, err := decodeSeqKey(key)
		if err != nil {
			return err
		}
		if seq > max {
			max = seq
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: recovering wal_seq: %v", ErrIO, err)
	}
	return max, nil
}

// AppendApply writes the block body and a new Apply entry in one atomic
// batch, returning the assigned sequence number.
func (l *Log) AppendApply(slot uint64, hash types.Hash, height uint64, body []byte) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	seq := l.walSeq + 1
	value := LogValue{Kind: KindApply, Block: RawBlock{Slot: slot, Hash: hash, Height: height, Body: body}}

	batch := l.cf.newBatch()
	if err := batch.Put(blockBodyKey(hash), body); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrIO, err)
	}
	if err := batch.Put(walKey(seq), encodeLogValue(value)); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrIO, err)
	}
	if err := batch.Commit(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrIO, err)
	}

	l.walSeq = seq
	l.metrics.observeAppend(seq)
	l.logger.Debug().Uint64("seq", seq).Uint64("slot", slot).Str("hash", hash.String()).Msg("wal append_apply")
	l.notify.Broadcast()
	return seq, nil
}

// AppendRollback walks the current WAL tail backward, emitting Undo for
// every Apply strictly after target, then one Mark(target), all in a
// single atomic batch. target must be Origin or an in-tail point;
// otherwise ErrPointNotReachable is returned and the WAL is unchanged.
func (l *Log) AppendRollback(target ChainPoint) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.tailEntriesLocked()
	if err != nil {
		return 0, err
	}

	// The set of blocks still "live" (applied, not yet undone) forms a
	// stack: Apply pushes, Undo pops its top. Causal consistency (I2)
	// guarantees undos always retire the most recently applied block
	// first, so this stack — not the raw entry list — is what a
	// rollback target must be reachable within.
	stack := liveApplyStack(entries)

	if !target.IsOrigin() && !stackContainsPoint(stack, target) {
		return 0, ErrPointNotReachable
	}

	seq := l.walSeq
	batch := l.cf.newBatch()

	// Walk the live stack from its top (most recent) down, undoing
	// every block strictly after target.
	for i := len(stack) - 1; i >= 0; i-- {
		blk := stack[i]
		if !target.IsOrigin() && !target.Less(blk.Point()) {
			// blk is at or before target: stop undoing.
			break
		}
		seq++
		undo := LogValue{Kind: KindUndo, Block: blk}
		if err := batch.Put(walKey(seq), encodeLogValue(undo)); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrIO, err)
		}
	}

	seq++
	mark := LogValue{Kind: KindMark, Mark: target}
	if err := batch.Put(walKey(seq), encodeLogValue(mark)); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrIO, err)
	}

	if err := batch.Commit(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrIO, err)
	}

	l.walSeq = seq
	l.metrics.observeAppend(seq)
	l.logger.Debug().Uint64("seq", seq).Str("target", target.String()).Msg("wal append_rollback")
	l.notify.Broadcast()
	return seq, nil
}

// AppendOrigin is sugar for AppendRollback(Origin), which is always legal.
func (l *Log) AppendOrigin() (uint64, error) {
	return l.AppendRollback(Origin)
}

// tailEntriesLocked returns every WAL entry in ascending seq order. Must
// be called with l.mu held.
func (l *Log) tailEntriesLocked() ([]Entry, error) {
	var entries []Entry
	err := l.cf.wal.ForEach(nil, func(key, val []byte) error {
		seq, err := decodeSeqKey(key)
		if err != nil {
			return err
		}
		v, err := decodeLogValue(val)
		if err != nil {
			return fmt.Errorf("%w: seq %d: %v", ErrSerde, seq, err)
		}
		entries = append(entries, Entry{Seq: seq, Value: v})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	return entries, nil
}

// liveApplyStack replays entries in ascending seq order and returns the
// blocks currently applied and not yet undone, oldest first.
func liveApplyStack(entries []Entry) []RawBlock {
	var stack []RawBlock
	for _, e := range entries {
		switch e.Value.Kind {
		case KindApply:
			stack = append(stack, e.Value.Block)
		case KindUndo:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	return stack
}

// stackContainsPoint reports whether p names one of the live blocks.
func stackContainsPoint(stack []RawBlock, p ChainPoint) bool {
	for _, blk := range stack {
		if blk.Point().Equal(p) {
			return true
		}
	}
	return false
}

// Destroy removes all WAL/chain/block-body data for a fresh start. It is
// the Go-side equivalent of RollDB::destroy in the reference design. It
// deletes through the Log's open database and resets the sequence
// counter to 0.
func (l *Log) Destroy() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := dropAll(l.cf.wal); err != nil {
		return err
	}
	if err := dropAll(l.cf.chain); err != nil {
		return err
	}
	if err := dropAll(l.cf.blockBody); err != nil {
		return err
	}
	l.walSeq = 0
	return nil
}

func dropAll(p *storage.PrefixDB) error {
	return p.DeleteAll()
}

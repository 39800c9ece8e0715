package wal

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/Klingon-tech/klingnet-chain/internal/storage"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	log, err := Open(storage.NewMemory())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return log
}

// testHash returns a distinct, deterministic hash for slot n.
func testHash(n uint64) types.Hash {
	var h types.Hash
	binary.BigEndian.PutUint64(h[:8], n)
	return h
}

func mustApply(t *testing.T, log *Log, slot uint64) uint64 {
	t.Helper()
	seq, err := log.AppendApply(slot, testHash(slot), slot/10, []byte("body"))
	if err != nil {
		t.Fatalf("AppendApply(%d): %v", slot, err)
	}
	return seq
}

// P1: WAL seqs are contiguous integers starting from 1.
func TestAppendSeqsAreContiguousFromOne(t *testing.T) {
	log := openTestLog(t)
	for i, slot := range []uint64{0, 10, 20, 30} {
		seq := mustApply(t, log, slot)
		if seq != uint64(i+1) {
			t.Fatalf("slot %d: seq = %d, want %d", slot, seq, i+1)
		}
	}
}

// R1: a block written via AppendApply is retrievable by hash.
func TestAppendApplyRoundTripsBody(t *testing.T) {
	log := openTestLog(t)
	hash := testHash(42)
	if _, err := log.AppendApply(42, hash, 4, []byte("hello")); err != nil {
		t.Fatalf("AppendApply: %v", err)
	}
	body, err := log.ChainIndex().GetBlock(hash)
	if err != nil {
		t.Fatalf("GetBlock: %v", err)
	}
	if string(body) != "hello" {
		t.Fatalf("GetBlock = %q, want %q", body, "hello")
	}
}

// P2 + R2: rollback to a prior point leaves find_tip reporting a Mark
// at that point, and the rolled-back block is gone from the live tip.
func TestAppendRollbackSetsTipToMark(t *testing.T) {
	log := openTestLog(t)
	mustApply(t, log, 10)
	target := testHash(10)
	pointBefore := NewChainPoint(10, target)
	mustApply(t, log, 20)

	if _, err := log.AppendRollback(pointBefore); err != nil {
		t.Fatalf("AppendRollback: %v", err)
	}

	tipSeq, tipPoint, ok, err := log.FindTip()
	if err != nil {
		t.Fatalf("FindTip: %v", err)
	}
	if !ok {
		t.Fatal("FindTip: ok = false, want true")
	}
	if !tipPoint.Equal(pointBefore) {
		t.Fatalf("FindTip point = %v, want %v", tipPoint, pointBefore)
	}
	if tipSeq != 4 {
		t.Fatalf("FindTip seq = %d, want 4 (apply,apply,undo,mark)", tipSeq)
	}
}

// AppendRollback(Origin) is always legal, even on an empty WAL.
func TestAppendRollbackToOriginAlwaysLegal(t *testing.T) {
	log := openTestLog(t)
	if _, err := log.AppendOrigin(); err != nil {
		t.Fatalf("AppendOrigin on empty WAL: %v", err)
	}
	_, tipPoint, ok, err := log.FindTip()
	if err != nil {
		t.Fatalf("FindTip: %v", err)
	}
	if !ok || !tipPoint.IsOrigin() {
		t.Fatalf("FindTip = (%v, %v), want Origin", tipPoint, ok)
	}
}

// S6: rolling back to a point below the compaction horizon fails with
// ErrPointNotReachable and leaves the WAL untouched.
func TestAppendRollbackBelowHorizonFails(t *testing.T) {
	log := openTestLog(t)
	for slot := uint64(0); slot < 1000; slot += 10 {
		mustApply(t, log, slot)
	}
	if err := log.Compact(30); err != nil {
		t.Fatalf("Compact: %v", err)
	}

	seqBefore, _, _, err := log.FindTip()
	if err != nil {
		t.Fatalf("FindTip: %v", err)
	}

	_, err = log.AppendRollback(NewChainPoint(100, testHash(100)))
	if !errors.Is(err, ErrPointNotReachable) {
		t.Fatalf("AppendRollback(slot=100) err = %v, want ErrPointNotReachable", err)
	}

	seqAfter, _, _, err := log.FindTip()
	if err != nil {
		t.Fatalf("FindTip: %v", err)
	}
	if seqAfter != seqBefore {
		t.Fatalf("FindTip seq changed after failed rollback: %d -> %d", seqBefore, seqAfter)
	}
}

// P3: a rollback that undoes multiple applies never undoes the same
// hash twice, even across repeated rollbacks.
func TestAppendRollbackNeverDoubleUndoesABlock(t *testing.T) {
	log := openTestLog(t)
	mustApply(t, log, 10)
	mustApply(t, log, 20)
	mustApply(t, log, 30)

	if _, err := log.AppendRollback(NewChainPoint(20, testHash(20))); err != nil {
		t.Fatalf("first rollback: %v", err)
	}
	// Re-apply 30, then roll all the way back to Origin. The second
	// rollback must only undo the live stack (10, 20 and the fresh 30),
	// not re-undo the 30 already retired by the first rollback.
	mustApply(t, log, 30)

	if _, err := log.AppendRollback(Origin); err != nil {
		t.Fatalf("second rollback: %v", err)
	}

	entries, err := log.tailEntriesLocked()
	if err != nil {
		t.Fatalf("tailEntriesLocked: %v", err)
	}
	undoCount := map[uint64]int{}
	for _, e := range entries {
		if e.Value.IsUndo() {
			undoCount[e.Value.Slot()]++
		}
	}
	if undoCount[30] != 2 {
		t.Fatalf("slot 30 undone %d times, want 2 (once per apply)", undoCount[30])
	}
	if undoCount[20] != 1 {
		t.Fatalf("slot 20 undone %d times, want 1", undoCount[20])
	}
	if undoCount[10] != 1 {
		t.Fatalf("slot 10 undone %d times, want 1", undoCount[10])
	}
}

package wal

import "testing"

func apply100At10s(t *testing.T, log *Log) {
	t.Helper()
	for slot := uint64(0); slot < 1000; slot += 10 {
		mustApply(t, log, slot)
	}
}

// S1: linear compaction. Tip is slot 990, k=30, so tip-k=960; the
// strict `>` cutoff keeps slot 960 in the WAL alongside 970,980,990,
// and promotes slots 0..=950 (96 entries) into the chain index.
func TestCompactLinear(t *testing.T) {
	log := openTestLog(t)
	apply100At10s(t, log)

	if err := log.Compact(30); err != nil {
		t.Fatalf("Compact: %v", err)
	}

	chain, err := log.ChainIndex().CrawlChain()
	if err != nil {
		t.Fatalf("CrawlChain: %v", err)
	}
	if len(chain) != 96 {
		t.Fatalf("chain has %d entries, want 96", len(chain))
	}
	if chain[0].Slot != 0 || chain[len(chain)-1].Slot != 950 {
		t.Fatalf("chain spans %d..%d, want 0..950", chain[0].Slot, chain[len(chain)-1].Slot)
	}

	entries, err := log.tailEntriesLocked()
	if err != nil {
		t.Fatalf("tailEntriesLocked: %v", err)
	}
	wantSlots := []uint64{960, 970, 980, 990}
	if len(entries) != len(wantSlots) {
		t.Fatalf("wal has %d entries, want %d", len(entries), len(wantSlots))
	}
	for i, e := range entries {
		if e.Value.Slot() != wantSlots[i] {
			t.Fatalf("wal entry %d has slot %d, want %d", i, e.Value.Slot(), wantSlots[i])
		}
	}
}

// S2: compaction with an interleaved rollback. After rolling back to
// slot 800 and compacting with k=30, the chain holds 0..=760 (77
// entries); the WAL holds the surviving Apply tail 770..=990, then the
// Undo tail 990 descending to 810, then Mark(800).
func TestCompactWithRollback(t *testing.T) {
	log := openTestLog(t)
	apply100At10s(t, log)

	if _, err := log.AppendRollback(NewChainPoint(800, testHash(800))); err != nil {
		t.Fatalf("AppendRollback: %v", err)
	}
	if err := log.Compact(30); err != nil {
		t.Fatalf("Compact: %v", err)
	}

	chain, err := log.ChainIndex().CrawlChain()
	if err != nil {
		t.Fatalf("CrawlChain: %v", err)
	}
	if len(chain) != 77 {
		t.Fatalf("chain has %d entries, want 77", len(chain))
	}
	if chain[0].Slot != 0 || chain[len(chain)-1].Slot != 760 {
		t.Fatalf("chain spans %d..%d, want 0..760", chain[0].Slot, chain[len(chain)-1].Slot)
	}

	entries, err := log.tailEntriesLocked()
	if err != nil {
		t.Fatalf("tailEntriesLocked: %v", err)
	}

	var applies, undos []uint64
	var marks int
	for _, e := range entries {
		switch e.Value.Kind {
		case KindApply:
			applies = append(applies, e.Value.Slot())
		case KindUndo:
			undos = append(undos, e.Value.Slot())
		case KindMark:
			marks++
			if e.Value.Mark.Slot != 800 {
				t.Fatalf("mark slot = %d, want 800", e.Value.Mark.Slot)
			}
		}
	}

	wantApplies := []uint64{770, 780, 790, 800, 810, 820, 830, 840, 850, 860, 870, 880, 890, 900, 910, 920, 930, 940, 950, 960, 970, 980, 990}
	if len(applies) != len(wantApplies) {
		t.Fatalf("%d surviving applies, want %d", len(applies), len(wantApplies))
	}
	for i, s := range wantApplies {
		if applies[i] != s {
			t.Fatalf("apply[%d] = %d, want %d", i, applies[i], s)
		}
	}

	wantUndos := []uint64{990, 980, 970, 960, 950, 940, 930, 920, 910, 900, 890, 880, 870, 860, 850, 840, 830, 820, 810}
	if len(undos) != len(wantUndos) {
		t.Fatalf("%d undos, want %d", len(undos), len(wantUndos))
	}
	for i, s := range wantUndos {
		if undos[i] != s {
			t.Fatalf("undo[%d] = %d, want %d", i, undos[i], s)
		}
	}

	if marks != 1 {
		t.Fatalf("%d mark entries, want 1", marks)
	}
}

// P4: compact(k) is idempotent.
func TestCompactIsIdempotent(t *testing.T) {
	log := openTestLog(t)
	apply100At10s(t, log)

	if err := log.Compact(30); err != nil {
		t.Fatalf("first Compact: %v", err)
	}
	chainAfterFirst, err := log.ChainIndex().CrawlChain()
	if err != nil {
		t.Fatalf("CrawlChain: %v", err)
	}
	entriesAfterFirst, err := log.tailEntriesLocked()
	if err != nil {
		t.Fatalf("tailEntriesLocked: %v", err)
	}

	if err := log.Compact(30); err != nil {
		t.Fatalf("second Compact: %v", err)
	}
	chainAfterSecond, err := log.ChainIndex().CrawlChain()
	if err != nil {
		t.Fatalf("CrawlChain: %v", err)
	}
	entriesAfterSecond, err := log.tailEntriesLocked()
	if err != nil {
		t.Fatalf("tailEntriesLocked: %v", err)
	}

	if len(chainAfterFirst) != len(chainAfterSecond) || len(entriesAfterFirst) != len(entriesAfterSecond) {
		t.Fatalf("re-running Compact changed state: chain %d->%d, wal %d->%d",
			len(chainAfterFirst), len(chainAfterSecond), len(entriesAfterFirst), len(entriesAfterSecond))
	}
}

// P5: a larger horizon compacts a subset of what a smaller horizon would.
func TestCompactLargerKIsPrefixOfSmallerK(t *testing.T) {
	logSmallK := openTestLog(t)
	apply100At10s(t, logSmallK)
	if err := logSmallK.Compact(10); err != nil {
		t.Fatalf("Compact(10): %v", err)
	}
	chainSmallK, err := logSmallK.ChainIndex().CrawlChain()
	if err != nil {
		t.Fatalf("CrawlChain: %v", err)
	}

	logLargeK := openTestLog(t)
	apply100At10s(t, logLargeK)
	if err := logLargeK.Compact(30); err != nil {
		t.Fatalf("Compact(30): %v", err)
	}
	chainLargeK, err := logLargeK.ChainIndex().CrawlChain()
	if err != nil {
		t.Fatalf("CrawlChain: %v", err)
	}

	if len(chainLargeK) > len(chainSmallK) {
		t.Fatalf("compact(30) moved %d entries, more than compact(10)'s %d", len(chainLargeK), len(chainSmallK))
	}
	for i := range chainLargeK {
		if chainLargeK[i] != chainSmallK[i] {
			t.Fatalf("chain entry %d differs between k=30 (%v) and k=10 (%v)", i, chainLargeK[i], chainSmallK[i])
		}
	}
}

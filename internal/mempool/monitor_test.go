package mempool

import (
	"context"
	"testing"
	"time"

	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

func testTxHash(b byte) types.Hash {
	var h types.Hash
	h[0] = b
	return h
}

// S4: a transaction included at slot 100 is pruned once the tip has
// advanced more than prune_height=6 slots past its inclusion slot.
func TestMonitorPrunesAfterConfirmations(t *testing.T) {
	m := NewMonitor(6)
	txA := testTxHash(0xA)

	m.AddTxs([]types.Hash{txA})
	m.OnChainUpdate(NewBlock(100, []types.Hash{txA}))

	st := m.Lookup(txA)
	if !st.Tracked || !st.Included || st.Inclusion != 100 {
		t.Fatalf("status after inclusion = %+v, want tracked+included at slot 100", st)
	}

	m.OnChainUpdate(NewBlock(107, nil))
	st = m.Lookup(txA)
	if st.Tracked {
		t.Fatalf("status after slot 107 = %+v, want untracked (pruned)", st)
	}
}

func TestMonitorKeepsTxAtExactlyPruneHeight(t *testing.T) {
	m := NewMonitor(6)
	txA := testTxHash(0xA)
	m.AddTxs([]types.Hash{txA})
	m.OnChainUpdate(NewBlock(100, []types.Hash{txA}))

	// 106 - 100 = 6, not > 6: must still be tracked.
	m.OnChainUpdate(NewBlock(106, nil))
	if st := m.Lookup(txA); !st.Tracked {
		t.Fatal("tx pruned at exactly prune_height confirmations, want kept")
	}
}

// S5: a rollback to slot 90 clears the inclusion of a tx that was
// included at slot 100, leaving it tracked but unincluded.
func TestMonitorRollbackClearsInclusion(t *testing.T) {
	m := NewMonitor(6)
	txA := testTxHash(0xA)

	m.AddTxs([]types.Hash{txA})
	m.OnChainUpdate(NewBlock(100, []types.Hash{txA}))
	m.OnChainUpdate(Rollback(90))

	st := m.Lookup(txA)
	if !st.Tracked || st.Included {
		t.Fatalf("status after rollback = %+v, want tracked, inclusion = None", st)
	}
	if st.TipSlot != 90 {
		t.Fatalf("TipSlot = %d, want 90", st.TipSlot)
	}
}

// AddTxs is idempotent: re-adding an already-tracked hash never resets
// its inclusion state.
func TestMonitorAddTxsIgnoresAlreadyTracked(t *testing.T) {
	m := NewMonitor(6)
	txA := testTxHash(0xA)

	m.AddTxs([]types.Hash{txA})
	m.OnChainUpdate(NewBlock(100, []types.Hash{txA}))
	m.AddTxs([]types.Hash{txA})

	st := m.Lookup(txA)
	if !st.Included || st.Inclusion != 100 {
		t.Fatalf("re-AddTxs reset inclusion: status = %+v", st)
	}
}

func TestAwaitInclusionUnblocksOnConfirmation(t *testing.T) {
	m := NewMonitor(6)
	txA := testTxHash(0xA)
	m.AddTxs([]types.Hash{txA})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- m.AwaitInclusion(ctx, txA, 2)
	}()

	select {
	case <-done:
		t.Fatal("AwaitInclusion returned before any confirmations")
	case <-time.After(20 * time.Millisecond):
	}

	m.OnChainUpdate(NewBlock(100, []types.Hash{txA})) // 0 confirmations yet
	select {
	case <-done:
		t.Fatal("AwaitInclusion returned with 0 confirmations, want depth 2")
	case <-time.After(20 * time.Millisecond):
	}

	m.OnChainUpdate(NewBlock(102, nil)) // 2 confirmations now
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("AwaitInclusion: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("AwaitInclusion never unblocked at depth 2")
	}
}

func TestAwaitInclusionRespectsCancellation(t *testing.T) {
	m := NewMonitor(6)
	txA := testTxHash(0xA)
	m.AddTxs([]types.Hash{txA})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- m.AwaitInclusion(ctx, txA, 1)
	}()

	cancel()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("AwaitInclusion returned nil error after cancellation")
		}
	case <-time.After(time.Second):
		t.Fatal("AwaitInclusion never returned after cancellation")
	}
}

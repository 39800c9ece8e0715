package mempool

import (
	"context"
	"sync"

	klog "github.com/Klingon-tech/klingnet-chain/internal/log"
	"github.com/Klingon-tech/klingnet-chain/internal/syncutil"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
	"github.com/rs/zerolog"
)

// monitorEntry tracks one transaction's inclusion state. A nil
// inclusion means the transaction is known but not yet in a block.
type monitorEntry struct {
	inclusion *uint64
}

func (e *monitorEntry) included() bool { return e.inclusion != nil }

// ChainUpdate is the second inlet Monitor consumes, per spec.md §4.F:
// either a new block with the tx hashes it carries, or a rollback to
// a given slot.
type ChainUpdate struct {
	NewBlockSlot uint64
	NewBlockTxs  []types.Hash // non-nil only for a NewBlock update
	RollbackSlot uint64
	IsRollback   bool
}

// NewBlock builds a ChainUpdate for block inclusion.
func NewBlock(slot uint64, txHashes []types.Hash) ChainUpdate {
	return ChainUpdate{NewBlockSlot: slot, NewBlockTxs: txHashes}
}

// Rollback builds a ChainUpdate for a rollback to slot.
func Rollback(slot uint64) ChainUpdate {
	return ChainUpdate{RollbackSlot: slot, IsRollback: true}
}

// Monitor is the rollback-aware per-transaction inclusion tracker of
// spec.md §4.F. Monitor only watches hashes already submitted and
// reports their block-inclusion depth, surviving reorgs via Rollback.
type Monitor struct {
	mu          sync.RWMutex
	tipSlot     uint64
	txs         map[types.Hash]*monitorEntry
	pruneHeight uint64
	notify      *syncutil.Notifier
	logger      zerolog.Logger
}

// MonitorOption configures a Monitor at construction time.
type MonitorOption func(*Monitor)

// WithMonitorLogger overrides the default component logger.
func WithMonitorLogger(logger zerolog.Logger) MonitorOption {
	return func(m *Monitor) { m.logger = logger }
}

// NewMonitor builds an empty Monitor that prunes confirmed
// transactions once tip_slot - inclusion_slot exceeds pruneHeight.
func NewMonitor(pruneHeight uint64, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		txs:         make(map[types.Hash]*monitorEntry),
		pruneHeight: pruneHeight,
		notify:      syncutil.NewNotifier(),
		logger:      klog.Mempool,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddTxs registers any of txHashes not already tracked as unincluded.
// Per spec.md §4.F this is also where an ingestion pipeline would
// forward txs downstream to a propagator; Monitor only owns the
// tracking side of that fan-out.
func (m *Monitor) AddTxs(txHashes []types.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, h := range txHashes {
		if _, ok := m.txs[h]; !ok {
			m.txs[h] = &monitorEntry{}
		}
	}
}

// OnChainUpdate applies a NewBlock or Rollback event and wakes any
// AwaitInclusion waiters.
func (m *Monitor) OnChainUpdate(update ChainUpdate) {
	m.mu.Lock()
	if update.IsRollback {
		m.applyRollbackLocked(update.RollbackSlot)
		m.logger.Debug().Uint64("rollback_slot", update.RollbackSlot).Msg("mempool chain_update rollback")
	} else {
		m.applyNewBlockLocked(update.NewBlockSlot, update.NewBlockTxs)
		m.logger.Debug().Uint64("slot", update.NewBlockSlot).Int("block_txs", len(update.NewBlockTxs)).Msg("mempool chain_update new_block")
	}
	m.mu.Unlock()

	m.notify.Broadcast()
}

func (m *Monitor) applyNewBlockLocked(slot uint64, blockTxs []types.Hash) {
	included := make(map[types.Hash]struct{}, len(blockTxs))
	for _, h := range blockTxs {
		included[h] = struct{}{}
	}

	for h, e := range m.txs {
		if _, ok := included[h]; ok && !e.included() {
			s := slot
			e.inclusion = &s
		}
	}

	for h, e := range m.txs {
		if e.included() && slot-*e.inclusion > m.pruneHeight {
			delete(m.txs, h)
		}
	}

	m.tipSlot = slot
}

func (m *Monitor) applyRollbackLocked(rbSlot uint64) {
	for _, e := range m.txs {
		if e.included() && *e.inclusion > rbSlot {
			e.inclusion = nil
		}
	}
	m.tipSlot = rbSlot
}

// Status reports what Monitor currently knows about a transaction.
type Status struct {
	Tracked   bool
	Included  bool
	Inclusion uint64
	TipSlot   uint64
}

// Lookup returns the current status of txHash without blocking.
func (m *Monitor) Lookup(txHash types.Hash) Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.statusLocked(txHash)
}

func (m *Monitor) statusLocked(txHash types.Hash) Status {
	e, ok := m.txs[txHash]
	if !ok {
		return Status{TipSlot: m.tipSlot}
	}
	st := Status{Tracked: true, TipSlot: m.tipSlot}
	if e.included() {
		st.Included = true
		st.Inclusion = *e.inclusion
	}
	return st
}

// confirmations reports how many confirmations txHash has, or 0 if it
// is untracked or not yet included.
func (m *Monitor) confirmations(txHash types.Hash) uint64 {
	e, ok := m.txs[txHash]
	if !ok || !e.included() {
		return 0
	}
	if m.tipSlot < *e.inclusion {
		return 0
	}
	return m.tipSlot - *e.inclusion
}

// AwaitInclusion blocks until txHash has accumulated at least depth
// confirmations, or ctx is cancelled. It subscribes to the notifier
// before releasing the read lock so a ChainUpdate landing between the
// check and the wait can never be missed (spec.md §9's lost-wakeup
// concern).
func (m *Monitor) AwaitInclusion(ctx context.Context, txHash types.Hash, depth uint64) error {
	for {
		m.mu.RLock()
		reached := m.confirmations(txHash) >= depth
		woken := m.notify.Wait()
		m.mu.RUnlock()

		if reached {
			return nil
		}

		select {
		case <-woken:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

package wal

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// LedgerCursor is implemented by anything that applies WAL events and
// can report how far it has gotten. The Coordinator uses it to gate a
// Follower so a slow ledger never receives events it cannot yet apply.
type LedgerCursor interface {
	// Cursor returns the point the ledger has most recently applied.
	Cursor() (ChainPoint, error)
}

// catchUpPoll is how often the Coordinator re-checks a lagging ledger's
// cursor while waiting for it to catch up to a just-asserted point.
const catchUpPoll = 10 * time.Millisecond

// Coordinator drives a LedgerCursor from a Log's live stream, per
// spec.md §4.G: before handing the ledger each Apply/Undo event, it maps
// the ledger's current cursor to a WAL seq (via AssertPoint) and polls
// until that seq has reached the entry just before the one about to be
// emitted.
type Coordinator struct {
	log    *Log
	ledger LedgerCursor
	apply  func(StreamEvent) error
}

// NewCoordinator builds a Coordinator that calls apply for every
// StreamEvent once the ledger's cursor has caught up.
func NewCoordinator(log *Log, ledger LedgerCursor, apply func(StreamEvent) error) *Coordinator {
	return &Coordinator{log: log, ledger: ledger, apply: apply}
}

// Run follows the WAL from the ledger's current cursor until ctx is
// cancelled or apply returns an error. It uses an errgroup so a future
// second worker (e.g. a metrics exporter reading the same stream) can
// be folded in without changing the cancellation plumbing.
func (c *Coordinator) Run(ctx context.Context) error {
	cursor, err := c.ledger.Cursor()
	if err != nil {
		return err
	}

	// A ledger at Origin has replayed nothing yet and needs the full
	// WAL history from seq 1, not just new tip activity — unlike a
	// fresh live client (FollowTip's empty-intersect case), which
	// intentionally starts at the current tip. A ledger already past
	// Origin resumes via the ordinary intersect convention.
	var follower *Follower
	if cursor.IsOrigin() {
		follower = &Follower{sub: c.log.Stream(ctx, 1), resetPoint: Origin, skippedOne: true}
	} else {
		follower, err = c.log.FollowTip(ctx, []ChainPoint{cursor})
		if err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.drive(ctx, follower)
	})
	return g.Wait()
}

func (c *Coordinator) drive(ctx context.Context, follower *Follower) error {
	gate := false
	for {
		if gate {
			if err := c.awaitCatchUp(ctx, follower); err != nil {
				return err
			}
		}

		event, err := follower.Next()
		if err != nil {
			return err
		}
		// The leading Reset is synthetic bookkeeping, not a WAL seq the
		// ledger must have materialized up to — only Apply/Undo events
		// are gated, starting from the one right after Reset.
		gate = true
		if err := c.apply(event); err != nil {
			return err
		}
	}
}

// awaitCatchUp blocks until the ledger has materialized every WAL seq
// up to (but not necessarily including) the seq follower is about to
// emit next, per spec.md §4.G: a block event for WAL seq n must not be
// emitted until the ledger's cursor maps to seq n-1 or later. It maps
// the ledger's cursor to a concrete seq via AssertPoint rather than
// merely checking the cursor is still present in the WAL, so a cursor
// that is present but stale (including one stuck at Origin) still
// blocks instead of being treated as caught up.
func (c *Coordinator) awaitCatchUp(ctx context.Context, follower *Follower) error {
	for {
		nextSeq, ready, err := follower.PeekNextSeq()
		if err != nil {
			return err
		}
		if !ready {
			// Nothing past the follower's cursor yet; Next will block on
			// the notifier for a new append, which is not lag to gate.
			return nil
		}

		cursor, err := c.ledger.Cursor()
		if err != nil {
			return err
		}

		var ledgerSeq uint64
		if !cursor.IsOrigin() {
			ledgerSeq, err = c.log.AssertPoint(cursor)
			if err != nil {
				return err
			}
		}

		if ledgerSeq+1 >= nextSeq {
			return nil
		}

		select {
		case <-time.After(catchUpPoll):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

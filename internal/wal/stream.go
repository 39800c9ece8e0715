package wal

import (
	"context"

	"github.com/google/uuid"
)

// Subscription is a lazy, restartable sequence of WAL entries starting
// at a given seq, that keeps blocking past the current tip until new
// entries are appended (spec.md §4.E). It is driven by the Log's
// notifier: every wakeup re-checks by seq rather than trusting the
// wakeup, so a missed broadcast never means a missed entry. Dropping a
// Subscription (letting its context be cancelled) releases it; multiple
// concurrent Subscriptions on the same Log are independent.
type Subscription struct {
	ID  uuid.UUID
	log *Log
	ctx context.Context
	next uint64
}

// Stream starts a Subscription at the first entry with seq >= fromSeq.
// Restart a follower by calling Stream again with the same fromSeq.
func (l *Log) Stream(ctx context.Context, fromSeq uint64) *Subscription {
	return &Subscription{
		ID:   uuid.New(),
		log:  l,
		ctx:  ctx,
		next: fromSeq,
	}
}

// Next blocks until an entry with seq >= the subscription's cursor is
// available, or ctx is done.
func (s *Subscription) Next() (Entry, error) {
	for {
		entry, ok, err := s.log.entryAtOrAfter(s.next)
		if err != nil {
			return Entry{}, err
		}
		if ok {
			s.next = entry.Seq + 1
			return entry, nil
		}

		woken := s.log.notify.Wait()
		select {
		case <-woken:
		case <-s.ctx.Done():
			return Entry{}, s.ctx.Err()
		}
	}
}

// entryAtOrAfter returns the WAL entry with the smallest seq >= from,
// if any is currently present.
func (l *Log) entryAtOrAfter(from uint64) (Entry, bool, error) {
	l.mu.Lock()
	entries, err := l.tailEntriesLocked()
	l.mu.Unlock()
	if err != nil {
		return Entry{}, false, err
	}
	for _, e := range entries {
		if e.Seq >= from {
			return e, true, nil
		}
	}
	return Entry{}, false, nil
}

// StreamEventKind tags the variant of a StreamEvent.
type StreamEventKind int

const (
	// EventReset tells the consumer the authoritative starting point;
	// always the first event of a Follower.
	EventReset StreamEventKind = iota
	// EventApply mirrors a WAL Apply entry.
	EventApply
	// EventUndo mirrors a WAL Undo entry.
	EventUndo
)

// StreamEvent is the consumer-facing shape of spec.md §6: Apply, Undo,
// and a synthetic Reset. Mark is never surfaced here — it is subsumed
// by the initial Reset and used only internally for tip bookkeeping.
type StreamEvent struct {
	Kind  StreamEventKind
	Point ChainPoint // valid when Kind == EventReset
	Seq   uint64     // valid when Kind == EventApply or EventUndo
	Block RawBlock   // valid when Kind == EventApply or EventUndo
}

// Follower wraps a Subscription with the chainsync-style intersect
// convention: a leading Reset(point), then skip exactly one WAL entry
// (the intersect/tip itself), then forward Apply/Undo events.
type Follower struct {
	sub        *Subscription
	resetPoint ChainPoint
	resetSent  bool
	skippedOne bool
}

// FollowTip starts a Follower. With no intersect points, it starts from
// the current WAL tip; otherwise from the best matching intersect
// point, per spec.md §4.E's find_intersect semantics.
func (l *Log) FollowTip(ctx context.Context, intersect []ChainPoint) (*Follower, error) {
	var (
		fromSeq uint64
		point   ChainPoint
	)

	if len(intersect) == 0 {
		seq, p, ok, err := l.FindTip()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrWalEmpty
		}
		fromSeq, point = seq, p
	} else {
		seq, p, ok, err := l.FindIntersect(intersect)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrPointNotInWal
		}
		fromSeq, point = seq, p
	}

	return &Follower{
		sub:        l.Stream(ctx, fromSeq),
		resetPoint: point,
	}, nil
}

// PeekNextSeq reports the WAL seq of the next Apply/Undo event this
// Follower would hand back from Next, without consuming it or blocking.
// ready is false when the WAL has nothing past the follower's cursor yet
// (Next would block waiting for a new append, not for a gate to clear).
// Used by Coordinator to check a ledger's catch-up progress before
// releasing the next event.
func (f *Follower) PeekNextSeq() (uint64, bool, error) {
	seq := f.sub.next
	skippedOne := f.skippedOne
	for {
		entry, ok, err := f.sub.log.entryAtOrAfter(seq)
		if err != nil {
			return 0, false, err
		}
		if !ok {
			return 0, false, nil
		}
		if !skippedOne {
			skippedOne = true
			seq = entry.Seq + 1
			continue
		}
		switch entry.Value.Kind {
		case KindApply, KindUndo:
			return entry.Seq, true, nil
		default:
			seq = entry.Seq + 1
		}
	}
}

// Next returns the next StreamEvent, blocking as Subscription.Next does.
func (f *Follower) Next() (StreamEvent, error) {
	if !f.resetSent {
		f.resetSent = true
		return StreamEvent{Kind: EventReset, Point: f.resetPoint}, nil
	}

	for {
		entry, err := f.sub.Next()
		if err != nil {
			return StreamEvent{}, err
		}

		if !f.skippedOne {
			f.skippedOne = true
			continue
		}

		switch entry.Value.Kind {
		case KindApply:
			return StreamEvent{Kind: EventApply, Seq: entry.Seq, Block: entry.Value.Block}, nil
		case KindUndo:
			return StreamEvent{Kind: EventUndo, Seq: entry.Seq, Block: entry.Value.Block}, nil
		default: // KindMark: never surfaced on the live stream
			continue
		}
	}
}

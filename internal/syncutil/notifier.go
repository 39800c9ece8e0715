// Package syncutil holds small concurrency primitives shared across
// internal packages that need a broadcast wakeup outside a single
// package's mutex (wal.Log's tail notifications, mempool.Monitor's
// confirmation waiters).
package syncutil

import "sync"

// Notifier is a broadcast wakeup primitive backed by a channel that
// gets closed and replaced on every signal — the shape spec.md §9's
// "shared condition variable" design note calls for, expressed with a
// channel instead of sync.Cond so it composes with context.Context
// cancellation via select.
//
// Waiters must always re-check their own condition after waking: a
// broadcast only means "something changed since you last looked", not
// "the thing you're waiting for happened". This is what makes missed
// wakeups harmless — a writer can commit and broadcast before a reader
// ever subscribes, and the reader still observes the new state on its
// first check.
type Notifier struct {
	mu sync.Mutex
	ch chan struct{}
}

// NewNotifier returns a ready Notifier.
func NewNotifier() *Notifier {
	return &Notifier{ch: make(chan struct{})}
}

// Broadcast wakes every current waiter.
func (n *Notifier) Broadcast() {
	n.mu.Lock()
	old := n.ch
	n.ch = make(chan struct{})
	n.mu.Unlock()
	close(old)
}

// Wait returns a channel that closes on the next Broadcast. Callers
// should fetch this, re-check their condition, and select on it
// alongside cancellation — fetching the channel before re-checking
// avoids a lost wakeup between the check and the wait.
func (n *Notifier) Wait() <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ch
}

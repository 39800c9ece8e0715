package wal

import "fmt"

// FindTip returns the seq and ChainPoint of the most recent WAL entry,
// or (0, ChainPoint{}, false) if the WAL is empty. Per spec.md §9's
// open question, this searches the WAL only — callers needing the tip
// after compaction has emptied the WAL should crawl the chain index in
// reverse instead.
func (l *Log) FindTip() (uint64, ChainPoint, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.tailEntriesLocked()
	if err != nil {
		return 0, ChainPoint{}, false, err
	}
	if len(entries) == 0 {
		return 0, ChainPoint{}, false, nil
	}
	last := entries[len(entries)-1]
	return last.Seq, last.Value.Point(), true, nil
}

// FindIntersect returns the seq and point of whichever candidate has
// the greatest seq among the entries currently in the WAL, or false if
// none of the candidates are present.
func (l *Log) FindIntersect(candidates []ChainPoint) (uint64, ChainPoint, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.tailEntriesLocked()
	if err != nil {
		return 0, ChainPoint{}, false, err
	}

	var (
		bestSeq   uint64
		bestPoint ChainPoint
		found     bool
	)
	for _, e := range entries {
		p := e.Value.Point()
		for _, c := range candidates {
			if p.Equal(c) && (!found || e.Seq > bestSeq) {
				bestSeq, bestPoint, found = e.Seq, p, true
			}
		}
	}
	return bestSeq, bestPoint, found, nil
}

// AssertPoint returns the seq whose event matches point p, or
// ErrPointNotInWal if no entry names it.
func (l *Log) AssertPoint(p ChainPoint) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.tailEntriesLocked()
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		if e.Value.Point().Equal(p) {
			return e.Seq, nil
		}
	}
	return 0, ErrPointNotInWal
}

// ReadSparseBlocks fetches the body for each point via its hash.
// Points that resolve to nothing are silently omitted — sparseness is
// caller-controlled, per spec.md §4.E.
func (l *Log) ReadSparseBlocks(points []ChainPoint) ([]RawBlock, error) {
	ci := l.ChainIndex()

	var out []RawBlock
	for _, p := range points {
		if p.IsOrigin() {
			continue
		}
		body, err := ci.GetBlock(p.Hash)
		if err != nil {
			return nil, err
		}
		if body == nil {
			continue
		}
		out = append(out, RawBlock{Slot: p.Slot, Hash: p.Hash, Body: body})
	}
	return out, nil
}

// ReadBlockPage yields up to len RawBlocks whose WAL entry is Apply,
// starting after from (or at the oldest entry if from is nil), in WAL
// order — the paginated history dump spec.md §4.E describes.
func (l *Log) ReadBlockPage(from *ChainPoint, pageLen int) ([]RawBlock, error) {
	l.mu.Lock()
	entries, err := l.tailEntriesLocked()
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}

	start := 0
	if from != nil {
		idx, ok := indexOfPoint(entries, *from)
		if !ok {
			return nil, fmt.Errorf("%w: page start point not found", ErrPointNotInWal)
		}
		start = idx + 1
	}

	var out []RawBlock
	for i := start; i < len(entries) && len(out) < pageLen; i++ {
		if !entries[i].Value.IsApply() {
			continue
		}
		out = append(out, entries[i].Value.Block)
	}
	return out, nil
}

func indexOfPoint(entries []Entry, p ChainPoint) (int, bool) {
	for i, e := range entries {
		if e.Value.Point().Equal(p) {
			return i, true
		}
	}
	return 0, false
}

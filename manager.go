package streamsort

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"
)

// idleSleep bounds the manager's spin when a tick makes no progress.
// Roughly a millisecond of scheduling latency in exchange for near-zero
// idle CPU; the workload is I/O bound either way.
const idleSleep = time.Millisecond

// manage is the manager goroutine: a cooperative loop driving the three
// stages until draining is signaled or the context is canceled. All
// mutation of the pairing queue, the run set, and the id counter happens
// here or, after the drain signal, in Finish — never concurrently.
func (s *Sorter[K]) manage(ctx context.Context) error {
	for {
		select {
		case <-s.drain:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if s.tick() {
			continue
		}
		select {
		case <-s.drain:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(idleSleep):
		}
	}
}

// tick runs one round of ingest, pair-merge, and leveled merge. Reports
// whether any stage made progress.
func (s *Sorter[K]) tick() bool {
	worked := s.ingestOne()
	if s.pairMerge() {
		worked = true
	}
	for s.levelMergeStep() {
		worked = true
	}
	return worked
}

// ingestOne performs one non-blocking dequeue, sorts the batch in place,
// and appends it to the pairing queue.
func (s *Sorter[K]) ingestOne() bool {
	batch, ok := s.queue.tryDequeue()
	if !ok {
		return false
	}
	s.sortBatch(batch)
	s.waitroom = append(s.waitroom, batch)
	return true
}

func (s *Sorter[K]) sortBatch(batch []K) {
	slices.SortFunc(batch, func(a, b K) int {
		switch {
		case s.less(a, b):
			return -1
		case s.less(b, a):
			return 1
		default:
			return 0
		}
	})
}

// pairMerge pops the two oldest sorted batches and writes their merge as a
// fresh level-0 run. Emitting level-0 runs as pairs rather than single
// batches halves the run count and with it the depth of the merge tree.
func (s *Sorter[K]) pairMerge() bool {
	if len(s.waitroom) < 2 {
		return false
	}
	out := runEntry{runID: runID{id: s.nextID(), level: 0}}
	path := s.runPath(out.runID)
	f, err := os.Create(path)
	if err != nil {
		// Both batches stay at the front of the pairing queue; retried
		// on the next tick.
		s.cfg.logger.Warn("create level-0 run failed", "run", out.filename(), "err", err)
		return false
	}

	b1, b2 := s.waitroom[0], s.waitroom[1]
	s.waitroom = s.waitroom[2:]

	w := newBatchedWriter[K](f, s.cfg.writeBuffer)
	mergeBatches(b1, b2, w, s.less)
	w.flush()
	if err := errors.Join(w.err, f.Close()); err != nil {
		s.cfg.logger.Warn("write level-0 run failed", "run", out.filename(), "err", err)
		if rmErr := removeIgnoreMissing(path); rmErr != nil {
			s.cfg.logger.Warn("remove partial run failed", "run", out.filename(), "err", rmErr)
		}
		// The batches are still intact in memory; put them back for retry.
		s.waitroom = append([][]K{b1, b2}, s.waitroom...)
		return false
	}

	out.digest = w.digest
	s.runs.insert(out)
	return true
}

// levelMergeStep merges the two smallest runs when their levels match,
// producing one run a level higher. Reports whether a merge happened; the
// manager keeps stepping until the two smallest levels differ, which
// approximates a balanced binary merge tree.
func (s *Sorter[K]) levelMergeStep() bool {
	if s.runs.len() < 2 {
		return false
	}
	a, b := s.runs.first(), s.runs.second()
	if a.level != b.level {
		return false
	}
	out := runEntry{
		runID:  runID{id: s.nextID(), level: a.level + 1},
		digest: a.digest.combine(b.digest),
	}
	if err := s.mergeRunFiles(a, b, out); err != nil {
		// Inputs were never removed from the run set; retried next tick.
		s.cfg.logger.Warn("run merge failed", "a", a.filename(), "b", b.filename(), "err", err)
		return false
	}
	s.runs.removeFirstTwo()
	s.runs.insert(out)
	return true
}

// writeBatchRun writes a single sorted batch as its own level-0 run. Used
// only during drain, where an odd batch count leaves no pair partner.
func (s *Sorter[K]) writeBatchRun(batch []K) error {
	e := runEntry{runID: runID{id: s.nextID(), level: 0}}
	path := s.runPath(e.runID)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create run file %s: %w", e.filename(), err)
	}
	w := newBatchedWriter[K](f, s.cfg.writeBuffer)
	for _, k := range batch {
		w.write(k)
	}
	w.flush()
	if err := errors.Join(w.err, f.Close()); err != nil {
		return errors.Join(fmt.Errorf("write run file %s: %w", e.filename(), err), removeIgnoreMissing(path))
	}
	e.digest = w.digest
	s.runs.insert(e)
	return nil
}

func (s *Sorter[K]) nextID() uint32 {
	id := s.jobIdx
	s.jobIdx++
	return id
}

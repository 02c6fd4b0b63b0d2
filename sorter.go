package streamsort

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/edsrzf/mmap-go"
	sserrors "github.com/tamirms/streamsort/errors"
	"golang.org/x/sync/errgroup"
)

// Sorter is an external merge sort engine for datasets larger than memory.
//
// Producers push batches of fixed-size records concurrently; a single
// manager goroutine sorts each batch in memory, pairs sorted batches into
// level-0 run files in the workdir, and keeps merging runs of equal level
// until draining is signaled. Finish collapses everything to one sorted
// run and Execute streams it back record by record.
//
// Thread safety:
//   - Push is safe for concurrent use by any number of goroutines
//   - All producers must have returned from Push before Finish is called
//   - Finish, Execute, and Close are not safe for concurrent use with
//     each other
//
// The sort is not stable: equal records may appear in any relative order.
type Sorter[K any] struct {
	ctx     context.Context
	cfg     *config
	less    func(a, b K) bool
	workdir string

	queue *ingestQueue[K]

	// Manager-owned state. Touched only by the manager goroutine and, once
	// the drain signal is observed, by Finish/Close (the errgroup Wait is
	// the synchronization point).
	waitroom [][]K
	runs     runSet
	jobIdx   uint32

	drain chan struct{}
	group *errgroup.Group

	finished  atomic.Bool
	closed    atomic.Bool
	finalPath string
}

// New creates a Sorter for records of type K ordered by less, staging run
// files under workdir (created recursively if absent). The manager
// goroutine starts immediately and runs until Finish or Close.
//
// K must be a fixed-size, trivially copyable type: record I/O is a raw
// blit of the type's bytes in native endianness, so K must not contain
// pointers, slices, strings, or maps.
func New[K any](ctx context.Context, workdir string, less func(a, b K) bool, opts ...Option) (*Sorter[K], error) {
	if recordSize[K]() == 0 {
		return nil, sserrors.ErrZeroSizeRecord
	}
	if less == nil {
		return nil, sserrors.ErrNilComparator
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if err := os.MkdirAll(workdir, 0o755); err != nil {
		return nil, fmt.Errorf("create workdir: %w", err)
	}

	s := &Sorter[K]{
		cfg:     cfg,
		less:    less,
		workdir: workdir,
		queue:   newIngestQueue[K](cfg.threads * cfg.queueDepth),
		drain:   make(chan struct{}),
	}
	if cfg.maxMem > 0 {
		cfg.logger.Debug("advisory memory ceiling recorded, not enforced", "maxMem", cfg.maxMem)
	}

	s.group, s.ctx = errgroup.WithContext(ctx)
	s.group.Go(func() error {
		return s.manage(s.ctx)
	})
	return s, nil
}

// Push copies the given records and enqueues the copy for sorting. The
// caller's slice is not retained. When the ingestion queue is saturated,
// Push sleep-retries until the batch is accepted or the context is
// canceled. An empty batch is accepted and consumes no queue capacity.
func (s *Sorter[K]) Push(records []K) error {
	if s.closed.Load() {
		return sserrors.ErrClosed
	}
	if s.finished.Load() {
		return sserrors.ErrFinished
	}
	if len(records) == 0 {
		return nil
	}
	batch := make([]K, len(records))
	copy(batch, records)
	return s.queue.enqueue(s.ctx, batch)
}

// Finish drains the engine and collapses all runs into a single sorted
// file, returning its path. It must be called exactly once, after every
// producer has returned from Push. The returned file is left in place;
// moving, renaming, or deleting it is up to the caller.
func (s *Sorter[K]) Finish() (string, error) {
	if s.closed.Load() {
		return "", sserrors.ErrClosed
	}
	if !s.finished.CompareAndSwap(false, true) {
		return "", sserrors.ErrFinished
	}

	close(s.drain)
	if err := s.group.Wait(); err != nil {
		return "", err
	}

	path, err := s.drainAndCollapse()
	if err != nil {
		return "", err
	}
	s.finalPath = path
	return path, nil
}

// drainAndCollapse flushes all remaining in-memory state to disk and
// merges runs until exactly one remains. Runs on the caller's goroutine
// after the manager has exited, so it owns all manager state.
func (s *Sorter[K]) drainAndCollapse() (string, error) {
	// Whatever producers enqueued but the manager never saw still needs
	// sorting.
	for {
		batch, ok := s.queue.tryDequeue()
		if !ok {
			break
		}
		s.sortBatch(batch)
		s.waitroom = append(s.waitroom, batch)
	}

	// Each remaining batch becomes its own level-0 run; with the producers
	// gone there may be an odd one out, so no pairing here.
	retries := 0
	for len(s.waitroom) > 0 {
		if err := s.writeBatchRun(s.waitroom[0]); err != nil {
			s.cfg.logger.Warn("flush batch to run failed", "err", err)
			retries++
			if retries > s.cfg.drainRetryLimit {
				return "", errors.Join(sserrors.ErrRetryLimit, err)
			}
			time.Sleep(idleSleep)
			continue
		}
		s.waitroom = s.waitroom[1:]
		retries = 0
	}

	// Nothing pushed at all: the caller still gets a real (empty) file.
	if s.runs.len() == 0 {
		e := runEntry{runID: runID{id: s.nextID(), level: 0}}
		f, err := os.Create(s.runPath(e.runID))
		if err != nil {
			return "", fmt.Errorf("create empty run: %w", err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("create empty run: %w", err)
		}
		s.runs.insert(e)
	}

	// Collapse to one run. Levels no longer gate pairing; the output level
	// is max(a,b), plus one when they tie, which keeps level a bound on
	// how many records fed the run.
	retries = 0
	for s.runs.len() > 1 {
		a, b := s.runs.first(), s.runs.second()
		level := max(a.level, b.level)
		if a.level == b.level {
			level++
		}
		s.cfg.logger.Debug("merging runs", "a", a.filename(), "b", b.filename(), "level", level)
		out := runEntry{
			runID:  runID{id: s.nextID(), level: level},
			digest: a.digest.combine(b.digest),
		}
		if err := s.mergeRunFiles(a, b, out); err != nil {
			s.cfg.logger.Warn("drain merge failed", "a", a.filename(), "b", b.filename(), "err", err)
			retries++
			if retries > s.cfg.drainRetryLimit {
				return "", errors.Join(sserrors.ErrRetryLimit, err)
			}
			time.Sleep(idleSleep)
			continue
		}
		s.runs.removeFirstTwo()
		s.runs.insert(out)
		retries = 0
	}

	return s.runPath(s.runs.first().runID), nil
}

// Execute streams the sorted records to consumer in order. It may only be
// called after Finish, and may be called more than once; the final run
// file is memory-mapped read-only for the duration of each call.
func (s *Sorter[K]) Execute(consumer func(K)) error {
	if s.closed.Load() {
		return sserrors.ErrClosed
	}
	if !s.finished.Load() || s.finalPath == "" {
		return sserrors.ErrNotFinished
	}

	f, err := os.Open(s.finalPath)
	if err != nil {
		return fmt.Errorf("open sorted run: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat sorted run: %w", err)
	}
	if st.Size() < int64(recordSize[K]()) {
		// Empty output: the consumer is invoked zero times.
		return nil
	}

	mm, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return fmt.Errorf("mmap sorted run: %w", err)
	}
	defer func() { _ = mm.Unmap() }()
	madviseSequential([]byte(mm))

	for _, k := range bytesToRecords[K]([]byte(mm)) {
		consumer(k)
	}
	return nil
}

// Close aborts the sort and removes every run file, including the final
// one if Finish already produced it. Idempotent. After Close all other
// methods fail with ErrClosed.
func (s *Sorter[K]) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.finished.CompareAndSwap(false, true) {
		close(s.drain)
		_ = s.group.Wait()
	}

	// Queued batches die with the sorter; they were never written.
	for {
		if _, ok := s.queue.tryDequeue(); !ok {
			break
		}
	}
	s.waitroom = nil

	var errs []error
	for _, e := range s.runs.entries {
		if err := removeIgnoreMissing(s.runPath(e.runID)); err != nil {
			errs = append(errs, err)
		}
	}
	s.runs.entries = nil
	return errors.Join(errs...)
}

func (s *Sorter[K]) runPath(r runID) string {
	return filepath.Join(s.workdir, r.filename())
}

package streamsort

import (
	"errors"
	"fmt"
	"os"
)

// mergeBatches two-pointer merges two sorted in-memory batches into w.
// When neither record precedes the other, the left batch is emitted first.
func mergeBatches[K any](b1, b2 []K, w *batchedWriter[K], less func(a, b K) bool) {
	i, j := 0, 0
	for i < len(b1) && j < len(b2) {
		if less(b2[j], b1[i]) {
			w.write(b2[j])
			j++
		} else {
			w.write(b1[i])
			i++
		}
	}
	for ; i < len(b1); i++ {
		w.write(b1[i])
	}
	for ; j < len(b2); j++ {
		w.write(b2[j])
	}
}

// mergeStreams merges two sorted record streams into w, emitting the left
// stream first on ties, then copies the remainder of whichever stream
// outlives the other.
func mergeStreams[K any](r1, r2 *batchedReader[K], w *batchedWriter[K], less func(a, b K) bool) {
	for r1.hasMore() && r2.hasMore() {
		if less(r2.current(), r1.current()) {
			w.write(r2.current())
			r2.advance()
		} else {
			w.write(r1.current())
			r1.advance()
		}
	}
	for r1.hasMore() {
		w.write(r1.current())
		r1.advance()
	}
	for r2.hasMore() {
		w.write(r2.current())
		r2.advance()
	}
}

// mergeRunFiles merges runs a and b into out's file and deletes the
// inputs. On any failure the partial output is removed and the inputs are
// left on disk, so the caller can keep both entries in the run set and
// retry on a later tick. The caller is responsible for updating the run
// set on success.
func (s *Sorter[K]) mergeRunFiles(a, b, out runEntry) error {
	outPath := s.runPath(out.runID)
	of, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create run file %s: %w", out.filename(), err)
	}
	f1, err := os.Open(s.runPath(a.runID))
	if err != nil {
		err = fmt.Errorf("open run file %s: %w", a.filename(), err)
		return errors.Join(err, of.Close(), removeIgnoreMissing(outPath))
	}
	f2, err := os.Open(s.runPath(b.runID))
	if err != nil {
		err = fmt.Errorf("open run file %s: %w", b.filename(), err)
		return errors.Join(err, f1.Close(), of.Close(), removeIgnoreMissing(outPath))
	}

	// The output holds exactly the records of both inputs, so its size is
	// known upfront and is reserved before writing. The reservation is
	// best-effort: its error is ignored and the merge goes on either way.
	// Both inputs are scanned front to back once.
	if st1, err1 := f1.Stat(); err1 == nil {
		if st2, err2 := f2.Stat(); err2 == nil {
			_ = fallocateFile(of, st1.Size()+st2.Size())
		}
	}
	fadviseSequential(int(f1.Fd()), 0, 0)
	fadviseSequential(int(f2.Fd()), 0, 0)

	r1 := newBatchedReader[K](f1, s.cfg.readBuffer)
	r2 := newBatchedReader[K](f2, s.cfg.readBuffer)
	w := newBatchedWriter[K](of, s.cfg.writeBuffer)
	mergeStreams(r1, r2, w, s.less)
	w.flush()

	if err := errors.Join(w.err, of.Close(), f1.Close(), f2.Close()); err != nil {
		return errors.Join(fmt.Errorf("merge into %s: %w", out.filename(), err), removeIgnoreMissing(outPath))
	}

	if w.digest != out.digest {
		s.cfg.logger.Error("record digest mismatch after merge; records lost or duplicated",
			"run", out.filename(), "want", uint64(out.digest), "got", uint64(w.digest))
	}

	s.removeRunFile(a.runID)
	s.removeRunFile(b.runID)
	return nil
}

// removeRunFile deletes a consumed run file. The run is already merged
// into its successor at this point, so failure costs disk space, not data.
func (s *Sorter[K]) removeRunFile(r runID) {
	if err := os.Remove(s.runPath(r)); err != nil && !os.IsNotExist(err) {
		s.cfg.logger.Warn("remove run file failed", "run", r.filename(), "err", err)
	}
}

func removeIgnoreMissing(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

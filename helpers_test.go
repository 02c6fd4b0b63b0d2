package streamsort

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestSorter builds a sorter over int32 with ascending order, staging
// runs under a per-test temp dir.
func newTestSorter(t *testing.T, opts ...Option) *Sorter[int32] {
	t.Helper()
	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	s, err := New[int32](context.Background(), t.TempDir(), int32Less, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func int32Less(a, b int32) bool { return a < b }

// collect finishes the sorter and streams the output into a slice.
func collect(t *testing.T, s *Sorter[int32]) []int32 {
	t.Helper()
	if _, err := s.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	var out []int32
	if err := s.Execute(func(k int32) { out = append(out, k) }); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	return out
}

// readRun reads every whole record from a run file through a batched
// reader, the same path the merge stages use.
func readRun[K any](t *testing.T, path string, bufRecords int) []K {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open run %s: %v", path, err)
	}
	defer f.Close()
	var out []K
	r := newBatchedReader[K](f, bufRecords)
	for r.hasMore() {
		out = append(out, r.current())
		r.advance()
	}
	return out
}

// writeRun writes records to path through a batched writer and returns the
// writer's digest.
func writeRun[K any](t *testing.T, path string, recs []K, bufRecords int) runDigest {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create run %s: %v", path, err)
	}
	w := newBatchedWriter[K](f, bufRecords)
	for _, k := range recs {
		w.write(k)
	}
	w.flush()
	if w.err != nil {
		t.Fatalf("write run %s: %v", path, w.err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close run %s: %v", path, err)
	}
	return w.digest
}

func assertSorted(t *testing.T, out []int32) {
	t.Helper()
	for i := 1; i < len(out); i++ {
		if out[i] < out[i-1] {
			t.Fatalf("output not sorted at %d: %d after %d", i, out[i], out[i-1])
		}
	}
}

// multiset counts occurrences so conservation can be checked without
// caring about the order of equal records.
func multiset(records ...[]int32) map[int32]int {
	m := make(map[int32]int)
	for _, recs := range records {
		for _, k := range recs {
			m[k]++
		}
	}
	return m
}

func assertSameMultiset(t *testing.T, want, got map[int32]int) {
	t.Helper()
	for k, n := range want {
		if got[k] != n {
			t.Fatalf("record %d: want %d occurrences, got %d", k, n, got[k])
		}
	}
	for k, n := range got {
		if _, ok := want[k]; !ok {
			t.Fatalf("record %d appeared %d times but was never pushed", k, n)
		}
	}
}

// Package streamsort implements a concurrent external merge sort for
// datasets larger than available memory.
//
// Producers push batches of fixed-size records; the engine sorts each
// batch in memory, stages sorted runs to disk, and merges runs of equal
// level as they appear; Finish then merges whatever runs remain,
// regardless of level, into a single sorted run. Records are written as raw
// native-endian blits with no framing, so the record type must be
// fixed-size and trivially copyable.
//
// # Basic Usage
//
//	s, err := streamsort.New[int32](ctx, workdir,
//	    func(a, b int32) bool { return a < b },
//	    streamsort.WithThreads(4))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, batch := range batches {
//	    if err := s.Push(batch); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//	path, err := s.Finish()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = s.Execute(func(k int32) {
//	    fmt.Println(k)
//	})
//
// # Package Structure
//
// The implementation is organized as follows:
//
//   - Public API: sorter.go (New, Push, Finish, Execute, Close)
//   - Configuration: sorter_options.go (Option, With* functions)
//   - Manager loop: manager.go (ingest, pair-merge, leveled merge stages)
//   - Run files: run.go (identifiers, ordered run set), merge.go
//   - Record I/O: record_io.go (batched readers/writers, unsafe blits)
//   - Integrity: digest.go (order-independent multiset digests)
//   - Platform: fallocate_*.go, fadvise_*.go, madvise_*.go
package streamsort

package streamsort

import (
	"cmp"
	"fmt"
	"slices"
)

// runID identifies one on-disk sorted run. id is assigned monotonically
// from the manager's counter and is unique for the life of the sorter;
// level is 0 for runs written straight from in-memory batches and grows by
// one each time two runs of equal level are merged.
type runID struct {
	id    uint32
	level uint32
}

// filename returns the run's file name inside the workdir.
func (r runID) filename() string {
	return fmt.Sprintf("B%d_%d.tmp", r.id, r.level)
}

// runEntry couples a run identifier with the multiset digest of the
// records in its file.
type runEntry struct {
	runID
	digest runDigest
}

// compareRuns orders runs by (level ascending, id descending). With that
// order the two smallest entries are merge candidates whenever their
// levels match; breaking level ties by descending id is arbitrary but
// deterministic.
func compareRuns(a, b runID) int {
	if a.level != b.level {
		return cmp.Compare(a.level, b.level)
	}
	return cmp.Compare(b.id, a.id)
}

// runSet is the ordered collection of runs currently on disk. The set
// stays small (roughly the log of the number of batches pushed), so a
// sorted slice beats a tree here.
type runSet struct {
	entries []runEntry
}

func (s *runSet) len() int {
	return len(s.entries)
}

func (s *runSet) first() runEntry {
	return s.entries[0]
}

func (s *runSet) second() runEntry {
	return s.entries[1]
}

func (s *runSet) insert(e runEntry) {
	i, _ := slices.BinarySearchFunc(s.entries, e, func(a, b runEntry) int {
		return compareRuns(a.runID, b.runID)
	})
	s.entries = slices.Insert(s.entries, i, e)
}

// removeFirstTwo drops the two smallest entries after a successful merge.
func (s *runSet) removeFirstTwo() {
	s.entries = slices.Delete(s.entries, 0, 2)
}

package streamsort

import (
	"context"
	"os"
	"slices"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// sortThroughEngine pushes records in the given batch sizes and returns
// the streamed output. Each call builds a fresh sorter in its own workdir.
func sortThroughEngine(records []int32, batchSize int) ([]int32, error) {
	workdir, err := os.MkdirTemp("", "streamsort-prop-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(workdir)

	s, err := New[int32](context.Background(), workdir, int32Less, WithLogger(discardLogger()))
	if err != nil {
		return nil, err
	}
	defer s.Close()

	total := len(records)
	for len(records) > 0 {
		n := min(batchSize, len(records))
		if err := s.Push(records[:n]); err != nil {
			return nil, err
		}
		records = records[n:]
	}
	if _, err := s.Finish(); err != nil {
		return nil, err
	}
	out := make([]int32, 0, total)
	if err := s.Execute(func(k int32) { out = append(out, k) }); err != nil {
		return nil, err
	}
	return out, nil
}

// TestSortProperties verifies the engine's core invariants over generated
// inputs: the output is totally ordered, conserves the input multiset, and
// is deterministic when all keys are distinct.
func TestSortProperties(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping property-based test in short mode")
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 25

	properties := gopter.NewProperties(parameters)

	properties.Property("output is sorted and conserves the input", prop.ForAll(
		func(records []int32, batchSize int) bool {
			out, err := sortThroughEngine(records, batchSize)
			if err != nil {
				return false
			}
			if len(out) != len(records) {
				return false
			}
			for i := 1; i < len(out); i++ {
				if out[i] < out[i-1] {
					return false
				}
			}
			want := multiset(records)
			got := multiset(out)
			if len(want) != len(got) {
				return false
			}
			for k, n := range want {
				if got[k] != n {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Int32()),
		gen.IntRange(1, 64),
	))

	properties.Property("distinct keys sort deterministically", prop.ForAll(
		func(records []int32, batchSize int) bool {
			// Dedupe: determinism is only promised when keys are distinct.
			distinct := slices.Clone(records)
			slices.Sort(distinct)
			distinct = slices.Compact(distinct)

			first, err := sortThroughEngine(distinct, batchSize)
			if err != nil {
				return false
			}
			second, err := sortThroughEngine(distinct, batchSize)
			if err != nil {
				return false
			}
			return slices.Equal(first, second) && slices.Equal(first, distinct)
		},
		gen.SliceOf(gen.Int32()),
		gen.IntRange(1, 32),
	))

	properties.TestingRun(t)
}

package streamsort

import "testing"

func TestRunFilename(t *testing.T) {
	cases := []struct {
		r    runID
		want string
	}{
		{runID{id: 0, level: 0}, "B0_0.tmp"},
		{runID{id: 17, level: 3}, "B17_3.tmp"},
		{runID{id: 4294967295, level: 1}, "B4294967295_1.tmp"},
	}
	for _, tc := range cases {
		if got := tc.r.filename(); got != tc.want {
			t.Errorf("filename(%v) = %s, want %s", tc.r, got, tc.want)
		}
	}
}

func TestCompareRuns(t *testing.T) {
	cases := []struct {
		name string
		a, b runID
		want int
	}{
		{"lower_level_first", runID{id: 9, level: 0}, runID{id: 1, level: 1}, -1},
		{"higher_level_last", runID{id: 1, level: 2}, runID{id: 9, level: 1}, 1},
		{"same_level_higher_id_first", runID{id: 5, level: 1}, runID{id: 3, level: 1}, -1},
		{"same_level_lower_id_last", runID{id: 3, level: 1}, runID{id: 5, level: 1}, 1},
		{"equal", runID{id: 3, level: 1}, runID{id: 3, level: 1}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := compareRuns(tc.a, tc.b); got != tc.want {
				t.Fatalf("compareRuns = %d, want %d", got, tc.want)
			}
		})
	}
}

// TestRunSetOrdering inserts out of order and checks the (level ASC,
// id DESC) invariant the merge policy depends on.
func TestRunSetOrdering(t *testing.T) {
	var s runSet
	for _, r := range []runID{
		{id: 0, level: 1},
		{id: 1, level: 0},
		{id: 2, level: 0},
		{id: 3, level: 2},
		{id: 4, level: 1},
	} {
		s.insert(runEntry{runID: r})
	}

	want := []runID{
		{id: 2, level: 0},
		{id: 1, level: 0},
		{id: 4, level: 1},
		{id: 0, level: 1},
		{id: 3, level: 2},
	}
	if s.len() != len(want) {
		t.Fatalf("len = %d, want %d", s.len(), len(want))
	}
	for i, w := range want {
		if s.entries[i].runID != w {
			t.Fatalf("entries[%d] = %v, want %v", i, s.entries[i].runID, w)
		}
	}

	if f, sec := s.first(), s.second(); f.level != sec.level {
		t.Fatalf("two smallest should be merge candidates, got levels %d and %d", f.level, sec.level)
	}
	s.removeFirstTwo()
	if s.len() != 3 || s.first().runID != (runID{id: 4, level: 1}) {
		t.Fatalf("unexpected head after removeFirstTwo: %v", s.first().runID)
	}
}

func TestRunDigestCombine(t *testing.T) {
	a, b := int32(12345), int32(-7)
	var d1, d2 runDigest
	d1 = d1.add(hashRecord(&a))
	d2 = d2.add(hashRecord(&b))

	var both runDigest
	both = both.add(hashRecord(&b)) // reverse order: digests are order-independent
	both = both.add(hashRecord(&a))
	if d1.combine(d2) != both {
		t.Fatal("combine is not order-independent")
	}
}

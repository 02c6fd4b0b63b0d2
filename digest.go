package streamsort

import (
	"unsafe"

	"github.com/zeebo/xxh3"
)

// runDigest is an order-independent multiset digest over a run's records:
// the wraparound sum of each record's xxh3 hash. Summation makes the digest
// independent of record order, so the digest of a merged run must equal the
// sum of its inputs' digests. The digests never touch the run file format;
// they live in the run set and exist purely to flag lost or duplicated
// records after a merge.
type runDigest uint64

// add folds one record hash into the digest.
func (d runDigest) add(h uint64) runDigest {
	return d + runDigest(h)
}

// combine yields the digest of the union of two record multisets.
func (d runDigest) combine(other runDigest) runDigest {
	return d + other
}

// hashRecord hashes a record's raw bytes.
func hashRecord[K any](k *K) uint64 {
	return xxh3.Hash(unsafe.Slice((*byte)(unsafe.Pointer(k)), int(unsafe.Sizeof(*k))))
}

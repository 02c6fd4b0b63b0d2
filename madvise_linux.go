//go:build linux

package streamsort

import "golang.org/x/sys/unix"

// madviseSequential hints that the mapped final run will be scanned front
// to back, enabling aggressive readahead during Execute.
// Best-effort: errors are silently ignored.
func madviseSequential(data []byte) {
	if len(data) == 0 {
		return
	}
	_ = unix.Madvise(data, unix.MADV_SEQUENTIAL)
}

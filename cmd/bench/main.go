// Bench is a benchmarking tool for measuring streamsort push throughput,
// merge throughput, and memory usage under concurrent producers.
//
// Usage:
//
//	go run ./cmd/bench -records 50000000 -batch 100000 -producers 4
//
// Flags:
//
//	-records    Total number of records across all producers (default: 10,000,000)
//	-batch      Records per pushed batch (default: 100,000)
//	-producers  Number of producer goroutines (default: 4)
//	-workdir    Run file directory (default: temp dir, removed afterwards)
//	-readbuf    Read buffer in records (default: 4096)
//	-writebuf   Write buffer in records (default: 4096)
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"os"
	"runtime"
	"runtime/metrics"
	"runtime/pprof"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/spaolacci/murmur3"
	"golang.org/x/sync/errgroup"

	"github.com/tamirms/streamsort"
)

// record is the benchmark's fixed-width sort payload: a 16-byte tag and a
// 32-bit sort key, mirroring a typical (identifier, key) pair.
type record struct {
	Tag [16]byte
	Key int32
}

// hashRecord computes a per-record hash for the order-independent
// conservation digest. The wraparound sum of these hashes over the input
// multiset must equal the sum over the output.
func hashRecord(r record) uint64 {
	var buf [20]byte
	copy(buf[:16], r.Tag[:])
	binary.LittleEndian.PutUint32(buf[16:], uint32(r.Key))
	return xxhash.Sum64(buf[:])
}

// getMaxRSS returns the maximum resident set size in bytes.
// Uses getrusage(RUSAGE_SELF) which tracks peak RSS since process start.
func getMaxRSS() uint64 {
	var rusage syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &rusage); err != nil {
		return 0
	}
	// On macOS, MaxRss is in bytes. On Linux, it's in kilobytes.
	maxRSS := uint64(rusage.Maxrss)
	if runtime.GOOS == "linux" {
		maxRSS *= 1024 // Convert KB to bytes on Linux
	}
	return maxRSS
}

func main() {
	recordsFlag := flag.Int("records", 10_000_000, "total number of records")
	batchFlag := flag.Int("batch", 100_000, "records per batch")
	producersFlag := flag.Int("producers", 4, "number of producer goroutines")
	workdirFlag := flag.String("workdir", "", "run file directory (default: temp dir)")
	readbufFlag := flag.Int("readbuf", 4096, "read buffer in records")
	writebufFlag := flag.Int("writebuf", 4096, "write buffer in records")
	cpuprofile := flag.String("cpuprofile", "", "write cpu profile to file")
	flag.Parse()

	workdir := *workdirFlag
	if workdir == "" {
		dir, err := os.MkdirTemp("", "streamsort-bench-")
		if err != nil {
			fmt.Printf("Failed to create temp dir: %v\n", err)
			return
		}
		defer func() { _ = os.RemoveAll(dir) }()
		workdir = dir
	}

	ctx := context.Background()
	sorter, err := streamsort.New[record](ctx, workdir,
		func(a, b record) bool { return a.Key < b.Key },
		streamsort.WithThreads(*producersFlag),
		streamsort.WithReadBuffer(*readbufFlag),
		streamsort.WithWriteBuffer(*writebufFlag),
	)
	if err != nil {
		fmt.Printf("Failed to create sorter: %v\n", err)
		return
	}

	// 10ms sampling for peak heap; runtime/metrics avoids the
	// stop-the-world pauses of runtime.ReadMemStats.
	var peakAlloc atomic.Uint64
	done := make(chan struct{})
	go func() {
		samples := []metrics.Sample{
			{Name: "/memory/classes/heap/objects:bytes"},
		}
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				metrics.Read(samples)
				heap := samples[0].Value.Uint64()
				for {
					old := peakAlloc.Load()
					if heap <= old || peakAlloc.CompareAndSwap(old, heap) {
						break
					}
				}
			}
		}
	}()

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			fmt.Printf("could not create CPU profile: %v\n", err)
			return
		}
		defer func() { _ = f.Close() }()
		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Printf("could not start CPU profile: %v\n", err)
			return
		}
		defer pprof.StopCPUProfile()
	}

	producers := *producersFlag
	perProducer := *recordsFlag / producers
	batchSize := *batchFlag

	fmt.Printf("Pushing %d records from %d producers (batch %d)...\n",
		perProducer*producers, producers, batchSize)

	// Order-independent digest of everything pushed, for the end-to-end
	// conservation check against the sorted output.
	var inputDigest atomic.Uint64

	pushStart := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for p := 0; p < producers; p++ {
		p := p
		g.Go(func() error {
			var digest uint64
			batch := make([]record, 0, batchSize)
			seed := uint32(p)
			var ctr [8]byte
			for i := 0; i < perProducer; i++ {
				binary.LittleEndian.PutUint64(ctr[:], uint64(p)<<40|uint64(i))
				h1, h2 := murmur3.Sum128WithSeed(ctr[:], seed)
				var r record
				binary.LittleEndian.PutUint64(r.Tag[:8], h1)
				binary.LittleEndian.PutUint64(r.Tag[8:], h2)
				r.Key = int32(h1 >> 32)
				digest += hashRecord(r)
				batch = append(batch, r)
				if len(batch) == batchSize {
					if err := sorter.Push(batch); err != nil {
						return err
					}
					batch = batch[:0]
				}
				if gctx.Err() != nil {
					return gctx.Err()
				}
			}
			if err := sorter.Push(batch); err != nil {
				return err
			}
			inputDigest.Add(digest)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Printf("Producer failed: %v\n", err)
		return
	}
	pushDuration := time.Since(pushStart)

	fmt.Println("Draining...")
	finishStart := time.Now()
	path, err := sorter.Finish()
	if err != nil {
		fmt.Printf("Finish failed: %v\n", err)
		return
	}
	finishDuration := time.Since(finishStart)

	fmt.Println("Streaming sorted output...")
	var outputDigest uint64
	var count int
	var last int32
	sorted := true
	execStart := time.Now()
	err = sorter.Execute(func(r record) {
		outputDigest += hashRecord(r)
		if count > 0 && r.Key < last {
			sorted = false
		}
		last = r.Key
		count++
	})
	if err != nil {
		fmt.Printf("Execute failed: %v\n", err)
		return
	}
	execDuration := time.Since(execStart)
	close(done)

	st, err := os.Stat(path)
	if err != nil {
		fmt.Printf("Stat final run failed: %v\n", err)
		return
	}

	total := perProducer * producers
	fmt.Println()
	fmt.Printf("Records:        %d (%d streamed back)\n", total, count)
	fmt.Printf("Sorted:         %v\n", sorted)
	fmt.Printf("Conserved:      %v (input digest %016x, output digest %016x)\n",
		inputDigest.Load() == outputDigest, inputDigest.Load(), outputDigest)
	fmt.Printf("Final run:      %s (%d bytes)\n", path, st.Size())
	fmt.Printf("Push:           %v (%.1f M records/s)\n", pushDuration,
		float64(total)/pushDuration.Seconds()/1e6)
	fmt.Printf("Finish:         %v\n", finishDuration)
	fmt.Printf("Execute:        %v (%.1f M records/s)\n", execDuration,
		float64(count)/execDuration.Seconds()/1e6)
	fmt.Printf("Peak heap:      %.1f MB\n", float64(peakAlloc.Load())/1024/1024)
	fmt.Printf("Peak RSS:       %.1f MB\n", float64(getMaxRSS())/1024/1024)
}

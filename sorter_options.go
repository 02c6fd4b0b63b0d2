package streamsort

import (
	"log/slog"
	"os"
)

const (
	// defaultQueueDepth is the per-producer slot count for the ingestion
	// queue.
	defaultQueueDepth = 10

	// defaultReadBuffer and defaultWriteBuffer are record counts for the
	// batched run-file readers and writers. Syscall amortization dominates
	// merge throughput, so these default generously.
	defaultReadBuffer  = 4096
	defaultWriteBuffer = 4096

	// defaultDrainRetryLimit bounds consecutive I/O failures tolerated by
	// the drain loop before Finish gives up with ErrRetryLimit.
	defaultDrainRetryLimit = 8
)

// Option is a functional option for configuring a Sorter.
type Option func(*config)

type config struct {
	threads         int
	maxMem          int64
	queueDepth      int
	readBuffer      int
	writeBuffer     int
	drainRetryLimit int
	logger          *slog.Logger
}

func defaultConfig() *config {
	return &config{
		threads:         1,
		queueDepth:      defaultQueueDepth,
		readBuffer:      defaultReadBuffer,
		writeBuffer:     defaultWriteBuffer,
		drainRetryLimit: defaultDrainRetryLimit,
		logger:          slog.New(slog.NewTextHandler(os.Stderr, nil)),
	}
}

// WithThreads sets the expected number of concurrent producers. It is a
// sizing hint for the ingestion queue, not a limit; any number of
// goroutines may call Push.
func WithThreads(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.threads = n
		}
	}
}

// WithMaxMemory sets the advisory memory ceiling in bytes. The engine
// records it and reports it at debug level but does not enforce it;
// backpressure comes only from the bounded ingestion queue.
func WithMaxMemory(bytes int64) Option {
	return func(c *config) {
		c.maxMem = bytes
	}
}

// WithQueueDepth sets the per-producer slot count for the ingestion queue.
// Total capacity is threads × depth.
func WithQueueDepth(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.queueDepth = n
		}
	}
}

// WithReadBuffer sets the run-file read buffer size in records.
func WithReadBuffer(records int) Option {
	return func(c *config) {
		if records > 0 {
			c.readBuffer = records
		}
	}
}

// WithWriteBuffer sets the run-file write buffer size in records.
func WithWriteBuffer(records int) Option {
	return func(c *config) {
		if records > 0 {
			c.writeBuffer = records
		}
	}
}

// WithDrainRetryLimit sets how many consecutive I/O failures the drain
// loop tolerates before Finish returns ErrRetryLimit.
func WithDrainRetryLimit(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.drainRetryLimit = n
		}
	}
}

// WithLogger sets the diagnostic sink. Defaults to a text handler on
// standard error.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

package calltrace

import (
	"os"
	"runtime"

	"github.com/zoobzio/clockz"
)

// Option configures a Tracer or Stateless.
type Option func(*options)

type options struct {
	clock      clockz.Clock
	sink       Sink
	idGen      IDGenerator
	idPoolSize int
}

func defaultOptions() *options {
	return &options{
		clock: clockz.RealClock,
		idGen: UUIDPrefixID,
		// Pool size based on number of CPUs for optimal contention balance.
		idPoolSize: runtime.NumCPU() * 16,
	}
}

func applyOptions(opts []Option) *options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.sink == nil {
		o.sink = NewWriterSink(os.Stdout, EncodingConsole)
	}
	return o
}

// WithClock sets the clock used for start times and elapsed time.
// Enables clock injection for deterministic testing.
func WithClock(clock clockz.Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithSink sets where rendered lines go. Defaults to a console sink on
// stdout, the same as DefaultConfig. Pass NewZapSink(nil) to log through
// zap.L() instead.
func WithSink(sink Sink) Option {
	return func(o *options) {
		if sink != nil {
			o.sink = sink
		}
	}
}

// WithIDGenerator sets the root id generator. Defaults to UUIDPrefixID.
func WithIDGenerator(gen IDGenerator) Option {
	return func(o *options) {
		if gen != nil {
			o.idGen = gen
		}
	}
}

// WithIDPoolSize sets how many root ids are generated ahead of time.
// Zero or less generates every id on demand, with no background goroutine.
func WithIDPoolSize(size int) Option {
	return func(o *options) {
		o.idPoolSize = size
	}
}

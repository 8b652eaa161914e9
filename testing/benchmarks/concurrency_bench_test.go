package benchmarks

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zoobzio/calltrace"
)

// BenchmarkParallelRoots measures span throughput from many goroutines, each
// with its own root.
func BenchmarkParallelRoots(b *testing.B) {
	tracer := newBenchTracer()
	defer tracer.Close()

	var counter int64
	start := time.Now()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		ctx := context.Background()
		for pb.Next() {
			_ = tracer.Trace(ctx, "op", func(ctx context.Context) error {
				return tracer.Trace(ctx, "inner", func(context.Context) error { return nil })
			})
			atomic.AddInt64(&counter, 1)
		}
	})
	b.ReportMetric(float64(counter)/time.Since(start).Seconds(), "traces/sec")
}

// BenchmarkParallelWithHandlers adds a synchronous collector to every span.
func BenchmarkParallelWithHandlers(b *testing.B) {
	tracer := newBenchTracer()
	defer tracer.Close()
	collector := calltrace.NewCollector("bench", 4096)
	defer collector.Close()
	tracer.OnSpanComplete(collector.Collect)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		ctx := context.Background()
		for pb.Next() {
			_, status := tracer.Begin(ctx, "op")
			_ = tracer.End(status)
		}
	})
}

// BenchmarkParallelAsyncHandlers routes records through the worker pool.
func BenchmarkParallelAsyncHandlers(b *testing.B) {
	tracer := newBenchTracer()
	defer tracer.Close()
	if err := tracer.EnableWorkerPool(4, 4096); err != nil {
		b.Fatal(err)
	}
	var handled atomic.Int64
	tracer.OnSpanCompleteAsync(func(calltrace.Record) { handled.Add(1) })

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		ctx := context.Background()
		for pb.Next() {
			_, status := tracer.Begin(ctx, "op")
			_ = tracer.End(status)
		}
	})
	b.ReportMetric(float64(tracer.DroppedRecords()), "dropped")
}

// BenchmarkForkFanout measures handing a trace to worker goroutines.
func BenchmarkForkFanout(b *testing.B) {
	tracer := newBenchTracer()
	defer tracer.Close()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = tracer.Trace(context.Background(), "parent", func(ctx context.Context) error {
			done := make(chan struct{}, 4)
			for w := 0; w < 4; w++ {
				go func(ctx context.Context) {
					_ = tracer.Trace(ctx, "child", func(context.Context) error { return nil })
					done <- struct{}{}
				}(tracer.Fork(ctx))
			}
			for w := 0; w < 4; w++ {
				<-done
			}
			return nil
		})
	}
}

package benchmarks

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/zoobzio/hitrace"
	"github.com/zoobzio/hitrace/tracefs"
)

// BenchmarkChainOperations measures the slot operations of one chain.
func BenchmarkChainOperations(b *testing.B) {
	tracer := newTracer(b, hitrace.WithBackend(hitrace.NopBackend{}))

	b.Run("begin-end", func(b *testing.B) {
		chain := tracer.NewChain()
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			chain.End(chain.Begin("op", hitrace.FlagNoBeInfo))
		}
	})

	b.Run("create-span", func(b *testing.B) {
		chain := tracer.NewChain()
		chain.Begin("op", hitrace.FlagNoBeInfo)
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			_ = chain.CreateSpan()
		}
	})

	b.Run("save-restore", func(b *testing.B) {
		chain := tracer.NewChain()
		remote := tracer.NewChain().Begin("remote", hitrace.FlagNoBeInfo)
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			chain.Restore(chain.SaveAndSet(remote))
		}
	})

	b.Run("context-lookup", func(b *testing.B) {
		ctx, chain := tracer.WithChain(context.Background())
		chain.Begin("op", hitrace.FlagNoBeInfo)
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			_ = hitrace.FromContext(ctx).GetID()
		}
	})

	b.Run("tracepoint-off", func(b *testing.B) {
		chain := tracer.NewChain()
		id := chain.Begin("op", hitrace.FlagNoBeInfo)
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			chain.Tracepoint(hitrace.CommProcess, hitrace.TpCS, id, "call %d", i)
		}
	})
}

// BenchmarkConcurrentChains measures id generation under contention.
func BenchmarkConcurrentChains(b *testing.B) {
	for _, concurrency := range []int{1, 10, 100} {
		b.Run(fmt.Sprintf("concurrent-%d", concurrency), func(b *testing.B) {
			tracer := newTracer(b, hitrace.WithBackend(hitrace.NopBackend{}))

			perWorker := b.N / concurrency
			if perWorker == 0 {
				perWorker = 1
			}

			var wg sync.WaitGroup
			var total int64
			b.ResetTimer()
			for i := 0; i < concurrency; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					chain := tracer.NewChain()
					for j := 0; j < perWorker; j++ {
						id := chain.Begin("op", hitrace.FlagNoBeInfo|hitrace.FlagIncludeAsync)
						_ = chain.Fork()
						chain.End(id)
						atomic.AddInt64(&total, 1)
					}
				}()
			}
			wg.Wait()
			b.ReportMetric(float64(total), "total-chains")
		})
	}
}

// BenchmarkConcurrentMarker measures contention on the marker writer.
func BenchmarkConcurrentMarker(b *testing.B) {
	tracer, fs := sinkTracer(b)
	var n atomic.Int64
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = tracer.CountTrace(hitrace.TagApp, "parallel", 1)
			if n.Add(1)%4096 == 0 {
				_ = fs.WriteFile(tracefs.TraceFile, nil)
			}
		}
	})
}

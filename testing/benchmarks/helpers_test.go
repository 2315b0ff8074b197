package benchmarks

import (
	"testing"

	"github.com/hashicorp/go-hclog"

	"github.com/zoobzio/hitrace"
	"github.com/zoobzio/hitrace/tracefs"
)

func newTracer(b *testing.B, opts ...hitrace.Option) *hitrace.Tracer {
	b.Helper()
	cfg := hitrace.DefaultConfig()
	cfg.Tags = hitrace.TagValidMask
	opts = append([]hitrace.Option{hitrace.WithLogger(hclog.NewNullLogger())}, opts...)
	tracer, err := hitrace.New(cfg, opts...)
	if err != nil {
		b.Fatalf("New failed: %v", err)
	}
	b.Cleanup(func() { tracer.Close() })
	return tracer
}

// sinkTracer writes into an emulated tracing directory.
func sinkTracer(b *testing.B) (*hitrace.Tracer, *tracefs.MemoryFileProvider) {
	b.Helper()
	fs := tracefs.NewMemoryFileProvider(nil)
	return newTracer(b, hitrace.WithFileProvider(fs)), fs
}

package reliability

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/zoobzio/hitrace"
	"github.com/zoobzio/hitrace/tracefs"
)

// Sink saturation tests - verify the emitter under a slow or failing
// trace_marker.

func TestSinkSaturation(t *testing.T) {
	config := getReliabilityConfig()

	switch config.Level {
	case "basic":
		t.Run("failing_marker", testFailingMarker)
		t.Run("panicking_backend", testPanickingBackend)
	case "stress":
		t.Run("slow_marker", testSlowMarker)
	default:
		t.Skip("HITRACE_RELIABILITY_LEVEL not set, skipping reliability tests")
	}
}

// flakyProvider wraps a memory provider and fails every nth marker write.
type flakyProvider struct {
	*tracefs.MemoryFileProvider
	every  int64
	delay  time.Duration
	writes atomic.Int64
	fails  atomic.Int64
}

func (p *flakyProvider) OpenWriter(name string) (io.WriteCloser, error) {
	w, err := p.MemoryFileProvider.OpenWriter(name)
	if err != nil {
		return nil, err
	}
	return &flakyWriter{WriteCloser: w, p: p}, nil
}

type flakyWriter struct {
	io.WriteCloser
	p *flakyProvider
}

func (w *flakyWriter) Write(b []byte) (int, error) {
	if w.p.delay > 0 {
		time.Sleep(w.p.delay)
	}
	n := w.p.writes.Add(1)
	if w.p.every > 0 && n%w.p.every == 0 {
		w.p.fails.Add(1)
		return 0, errors.New("marker busy")
	}
	return w.WriteCloser.Write(b)
}

// testFailingMarker verifies failed writes are dropped, not retried or
// reported to callers.
func testFailingMarker(t *testing.T) {
	fp := &flakyProvider{MemoryFileProvider: tracefs.NewMemoryFileProvider(nil), every: 3}
	tracer, err := hitrace.New(hitrace.DefaultConfig(),
		hitrace.WithFileProvider(fp),
		hitrace.WithLogger(hclog.NewNullLogger()),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer tracer.Close()

	for i := 0; i < 300; i++ {
		if err := tracer.CountTrace(hitrace.TagAlways, "load", int64(i)); err != nil {
			t.Fatalf("CountTrace returned %v", err)
		}
	}

	if got := fp.Written() + uint64(fp.fails.Load()); got != 300 {
		t.Errorf("Expected 300 attempts, got %d", got)
	}
	if fp.fails.Load() != 100 {
		t.Errorf("Expected 100 failures, got %d", fp.fails.Load())
	}
}

// testPanickingBackend verifies a backend panic never escapes the emitter.
func testPanickingBackend(t *testing.T) {
	var hookCalls atomic.Int64
	tracer, err := hitrace.New(hitrace.DefaultConfig(),
		hitrace.WithBackend(panickingBackend{}),
		hitrace.WithLogger(hclog.NewNullLogger()),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer tracer.Close()
	tracer.SetPanicHook(func(string, interface{}) { hookCalls.Add(1) })

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = tracer.StartTrace(hitrace.TagAlways, "boom")
			}
		}()
	}
	wg.Wait()

	if hookCalls.Load() != 1000 {
		t.Errorf("Expected 1000 recovered panics, got %d", hookCalls.Load())
	}
}

type panickingBackend struct{ hitrace.NopBackend }

func (panickingBackend) StartTrace(hitrace.Tag, string) { panic("sink down") }

// testSlowMarker verifies concurrent emitters serialize on a slow marker
// without losing records.
func testSlowMarker(t *testing.T) {
	config := getReliabilityConfig()
	fp := &flakyProvider{MemoryFileProvider: tracefs.NewMemoryFileProvider(nil), delay: 100 * time.Microsecond}
	tracer, err := hitrace.New(hitrace.DefaultConfig(),
		hitrace.WithFileProvider(fp),
		hitrace.WithLogger(hclog.NewNullLogger()),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer tracer.Close()

	deadline := time.Now().Add(config.Duration)
	var sent atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < config.MaxGoroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for time.Now().Before(deadline) {
				_ = tracer.StartAsyncTrace(hitrace.TagAlways, "slow", int32(i))
				sent.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if got := int64(fp.Written()); got != sent.Load() {
		t.Errorf("Expected %d records, got %d", sent.Load(), got)
	}
}

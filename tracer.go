package hitrace

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"
	"github.com/zoobzio/clockz"

	"github.com/zoobzio/hitrace/tracefs"
)

// Tracer validates trace events and hands them to its Backend, and creates
// the Chain slots that carry trace IDs.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for functionality over memory
type Tracer struct {
	backend     Backend
	owned       io.Closer
	fp          tracefs.FileProvider
	logger      hclog.Logger
	panicHook   func(op string, r interface{})
	chainIDPool *IDPool
	spanIDPool  *IDPool
	clock       clockz.Clock
	poolSize    int
	idPoolOnce  sync.Once
	tags        atomic.Uint64
	disabled    atomic.Bool
}

// Option customizes a Tracer built by New.
type Option func(*Tracer)

// WithBackend sends events to b instead of trace_marker.
func WithBackend(b Backend) Option {
	return func(t *Tracer) { t.backend = b }
}

// WithFileProvider writes trace_marker through fp instead of the tracing
// directory on disk.
func WithFileProvider(fp tracefs.FileProvider) Option {
	return func(t *Tracer) { t.fp = fp }
}

// WithClock sets the clock used for id generation fallbacks.
// Enables clock injection for deterministic testing.
func WithClock(clock clockz.Clock) Option {
	return func(t *Tracer) { t.clock = clock }
}

// WithLogger sets the logger for chain markers, tracepoints and backend
// failures.
func WithLogger(logger hclog.Logger) Option {
	return func(t *Tracer) { t.logger = logger }
}

// New creates a tracer from cfg. Without WithBackend or WithFileProvider the
// tracer writes to the trace_marker of cfg.TracingRoot, or of the first
// mounted tracing directory. When none is mounted events are discarded.
func New(cfg Config, opts ...Option) (*Tracer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	t := &Tracer{
		clock:    clockz.RealClock,
		poolSize: cfg.IDPoolSize,
	}
	for _, opt := range opts {
		opt(t)
	}

	if t.logger == nil {
		level := hclog.LevelFromString(cfg.LogLevel)
		if level == hclog.NoLevel {
			level = hclog.Info
		}
		t.logger = hclog.New(&hclog.LoggerOptions{
			Name:   "hitrace",
			Level:  level,
			Output: os.Stderr,
		})
	}
	if t.poolSize == 0 {
		// Pool size based on number of CPUs for contention balance.
		t.poolSize = runtime.NumCPU() * 16
	}

	if t.backend == nil {
		fp := t.fp
		if fp == nil {
			root := cfg.TracingRoot
			if root == "" {
				var err error
				if root, err = tracefs.FindRoot(); err != nil {
					t.logger.Warn("no tracing directory, events discarded", "error", err)
				}
			}
			if root != "" {
				fp = tracefs.NewLocalFileProvider(root)
			}
		}
		if fp != nil {
			marker := NewMarkerBackend(fp, t.logger.Named("marker"))
			t.backend = marker
			t.owned = marker
		} else {
			t.backend = NopBackend{}
		}
	}

	t.tags.Store(uint64(normalizeTags(cfg.Tags)))
	t.disabled.Store(cfg.Disabled)
	return t, nil
}

// Logger returns the tracer's logger.
func (t *Tracer) Logger() hclog.Logger {
	return t.logger
}

// SetPanicHook sets a function to be called when the backend panics.
func (t *Tracer) SetPanicHook(hook func(op string, r interface{})) {
	t.panicHook = hook
}

// SetTags replaces the enabled category mask. TagAlways stays enabled.
func (t *Tracer) SetTags(tags Tag) {
	t.tags.Store(uint64(normalizeTags(tags)))
}

// Tags returns the enabled category mask.
func (t *Tracer) Tags() Tag {
	return Tag(t.tags.Load())
}

// SetDisabled switches every event off or back on.
func (t *Tracer) SetDisabled(disabled bool) {
	t.disabled.Store(disabled)
}

// IsTagEnabled reports whether every bit of tag is enabled.
func (t *Tracer) IsTagEnabled(tag Tag) bool {
	return tag&t.Tags() == tag
}

// emits reports whether an event under tag reaches the backend.
func (t *Tracer) emits(tag Tag) bool {
	return !t.disabled.Load() && tag&t.Tags() != 0
}

// StartTrace marks the beginning of a synchronous span named name.
func (t *Tracer) StartTrace(tag Tag, name string) error {
	if err := validateName("start trace", name); err != nil {
		return err
	}
	if t.emits(tag) {
		t.safeCall("start trace", func() { t.backend.StartTrace(tag, name) })
	}
	return nil
}

// StartTracef is StartTrace with a formatted name. The name is only
// formatted when tag is enabled.
func (t *Tracer) StartTracef(tag Tag, format string, args ...interface{}) error {
	if !t.emits(tag) {
		return nil
	}
	return t.StartTrace(tag, fmt.Sprintf(format, args...))
}

// FinishTrace marks the end of the innermost synchronous span. Unpaired
// calls are forwarded as they are.
func (t *Tracer) FinishTrace(tag Tag) {
	if t.emits(tag) {
		t.safeCall("finish trace", func() { t.backend.FinishTrace(tag) })
	}
}

// MiddleTrace ends the current synchronous span and starts one named after.
func (t *Tracer) MiddleTrace(tag Tag, before, after string) error {
	if err := validateName("middle trace", before); err != nil {
		return err
	}
	if err := validateName("middle trace", after); err != nil {
		return err
	}
	if t.emits(tag) {
		t.safeCall("middle trace", func() {
			t.backend.FinishTrace(tag)
			t.backend.StartTrace(tag, after)
		})
	}
	return nil
}

// StartAsyncTrace marks the beginning of an asynchronous span. name and
// taskID together identify the span for FinishAsyncTrace.
func (t *Tracer) StartAsyncTrace(tag Tag, name string, taskID int32) error {
	if err := validateName("start async trace", name); err != nil {
		return err
	}
	if t.emits(tag) {
		t.safeCall("start async trace", func() { t.backend.StartAsyncTrace(tag, name, taskID) })
	}
	return nil
}

// StartAsyncTracef is StartAsyncTrace with a formatted name.
func (t *Tracer) StartAsyncTracef(tag Tag, taskID int32, format string, args ...interface{}) error {
	if !t.emits(tag) {
		return nil
	}
	return t.StartAsyncTrace(tag, fmt.Sprintf(format, args...), taskID)
}

// FinishAsyncTrace marks the end of the asynchronous span started with the
// same name and taskID. The tracer does not track open spans.
func (t *Tracer) FinishAsyncTrace(tag Tag, name string, taskID int32) error {
	if err := validateName("finish async trace", name); err != nil {
		return err
	}
	if t.emits(tag) {
		t.safeCall("finish async trace", func() { t.backend.FinishAsyncTrace(tag, name, taskID) })
	}
	return nil
}

// FinishAsyncTracef is FinishAsyncTrace with a formatted name.
func (t *Tracer) FinishAsyncTracef(tag Tag, taskID int32, format string, args ...interface{}) error {
	if !t.emits(tag) {
		return nil
	}
	return t.FinishAsyncTrace(tag, fmt.Sprintf(format, args...), taskID)
}

// CountTrace records a sample of the counter name.
func (t *Tracer) CountTrace(tag Tag, name string, value int64) error {
	if err := validateName("count trace", name); err != nil {
		return err
	}
	if t.emits(tag) {
		t.safeCall("count trace", func() { t.backend.CountTrace(tag, name, value) })
	}
	return nil
}

func (t *Tracer) safeCall(op string, call func()) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("backend panicked", "op", op, "panic", r)
			if t.panicHook != nil {
				t.panicHook(op, r)
			}
		}
	}()
	call()
}

// NewChain creates an empty trace ID slot.
func (t *Tracer) NewChain() *Chain {
	return &Chain{tracer: t}
}

// WithChain returns the slot carried by ctx, creating and attaching one on
// first use.
func (t *Tracer) WithChain(ctx context.Context) (context.Context, *Chain) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c := FromContext(ctx); c != nil {
		return ctx, c
	}
	c := t.NewChain()
	return NewContext(ctx, c), c
}

// ensureIDPools initializes ID pools if not already created.
func (t *Tracer) ensureIDPools() {
	t.idPoolOnce.Do(func() {
		t.chainIDPool = NewIDPool(t.poolSize, chainMask, randomSource(t.clock))
		t.spanIDPool = NewIDPool(t.poolSize, spanMask, randomSource(t.clock))
	})
}

// newChainID returns a fresh non-zero 60-bit chain id.
func (t *Tracer) newChainID() uint64 {
	t.ensureIDPools()
	return t.chainIDPool.Get()
}

// newSpanID returns a fresh non-zero 26-bit span id.
func (t *Tracer) newSpanID() uint64 {
	t.ensureIDPools()
	return t.spanIDPool.Get()
}

// Close stops the id pools and closes a backend the tracer opened itself.
func (t *Tracer) Close() error {
	// Make sure a concurrent first use cannot start pools after Close.
	t.ensureIDPools()
	t.chainIDPool.Close()
	t.spanIDPool.Close()

	if t.owned != nil {
		return t.owned.Close()
	}
	return nil
}

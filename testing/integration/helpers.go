package integration

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/zoobzio/clockz"

	"github.com/zoobzio/hitrace"
	"github.com/zoobzio/hitrace/tracefs"
)

// FakeClock is a clock tests can move forward.
type FakeClock interface {
	clockz.Clock
	Advance(d time.Duration)
}

// Sink wraps an emulated tracing directory with test utilities.
// Events written by the tracer land in its trace buffer as kernel lines.
//
//nolint:govet // Field alignment optimized for test helper readability
type Sink struct {
	*tracefs.Control
	FS     *tracefs.MemoryFileProvider
	Tracer *hitrace.Tracer
	Clock  FakeClock
	logs   *syncBuffer
	t      *testing.T
	pid    int
}

// NewSink creates a tracer writing trace_marker into an emulated tracing
// directory, with every tag enabled and tracing on.
func NewSink(t *testing.T, opts ...hitrace.Option) *Sink {
	t.Helper()
	clock := clockz.NewFakeClock()
	fs := tracefs.NewMemoryFileProvider(clock)
	logs := &syncBuffer{}

	cfg := hitrace.DefaultConfig()
	cfg.Tags = hitrace.TagValidMask
	opts = append([]hitrace.Option{
		hitrace.WithFileProvider(fs),
		hitrace.WithClock(clock),
		hitrace.WithLogger(hclog.New(&hclog.LoggerOptions{
			Name:   "hitrace",
			Level:  hclog.Trace,
			Output: logs,
		})),
	}, opts...)

	tracer, err := hitrace.New(cfg, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { tracer.Close() })

	s := &Sink{
		Control: tracefs.NewControl(fs),
		FS:      fs,
		Tracer:  tracer,
		Clock:   clock,
		logs:    logs,
		t:       t,
		pid:     os.Getpid(),
	}
	if err := s.SetTracingOn(true); err != nil {
		t.Fatalf("SetTracingOn failed: %v", err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	return s
}

// Record formats a marker payload for this process, e.g.
// Record("B|%d|H:%s|", "evt").
func (s *Sink) Record(format string, args ...interface{}) string {
	return fmt.Sprintf(format, append([]interface{}{s.pid}, args...)...)
}

// AssertInOrder verifies that each record appears after the previous one.
func (s *Sink) AssertInOrder(records ...string) {
	s.t.Helper()
	from := 0
	for _, rec := range records {
		idx, err := s.IndexOf(rec, from)
		if err != nil {
			s.t.Fatalf("IndexOf failed: %v", err)
		}
		if idx < 0 {
			s.t.Errorf("Record %q not found at or after line %d\n%s", rec, from, s.Dump())
			return
		}
		from = idx + 1
	}
}

// AssertAbsent verifies that no trace line contains record.
func (s *Sink) AssertAbsent(record string) {
	s.t.Helper()
	found, err := s.Contains(record)
	if err != nil {
		s.t.Fatalf("Contains failed: %v", err)
	}
	if found {
		s.t.Errorf("Record %q unexpectedly present\n%s", record, s.Dump())
	}
}

// Events parses every trace line back into events.
func (s *Sink) Events() []hitrace.Event {
	s.t.Helper()
	lines, err := s.Lines()
	if err != nil {
		s.t.Fatalf("Lines failed: %v", err)
	}
	events := make([]hitrace.Event, 0, len(lines))
	for _, line := range lines {
		ev, pid, ok := hitrace.ParseMarker(line)
		if !ok {
			s.t.Errorf("Unparseable trace line %q", line)
			continue
		}
		if pid != s.pid {
			s.t.Errorf("Expected pid %d in %q", s.pid, line)
		}
		events = append(events, ev)
	}
	return events
}

// Logs returns everything the tracer logged.
func (s *Sink) Logs() string {
	return s.logs.String()
}

// Dump formats the trace buffer for failure messages.
func (s *Sink) Dump() string {
	lines, err := s.Lines()
	if err != nil {
		return err.Error()
	}
	return strings.Join(lines, "\n")
}

// AssertBalanced verifies that every begin has an end and every async start
// has a finish with the same name and task id.
func AssertBalanced(t *testing.T, events []hitrace.Event) {
	t.Helper()
	depth := 0
	open := make(map[string]int)
	for _, ev := range events {
		switch ev.Kind {
		case hitrace.KindBegin:
			depth++
		case hitrace.KindEnd:
			depth--
		case hitrace.KindAsyncBegin:
			open[fmt.Sprintf("%s/%d", ev.Name, ev.TaskID)]++
		case hitrace.KindAsyncEnd:
			open[fmt.Sprintf("%s/%d", ev.Name, ev.TaskID)]--
		}
	}
	if depth != 0 {
		t.Errorf("Unbalanced sync spans: depth %d", depth)
	}
	for key, n := range open {
		if n != 0 {
			t.Errorf("Unbalanced async span %s: %d", key, n)
		}
	}
}

// syncBuffer is a bytes.Buffer safe for concurrent writers.
type syncBuffer struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

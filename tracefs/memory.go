package tracefs

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/zoobzio/clockz"
)

const traceHeader = "# tracer: nop\n#\n#           TASK-PID     CPU#  ||||   TIMESTAMP  FUNCTION\n#              | |         |   ||||      |         |\n"

// MemoryFileProvider emulates a tracing directory. Writes to trace_marker are
// appended to trace as kernel-formatted lines while tracing_on is "1";
// writing trace clears it. Other files are kept as plain contents.
// Safe for concurrent use by multiple goroutines.
type MemoryFileProvider struct {
	clock   clockz.Clock
	files   map[string][]byte
	lines   []string
	comm    string
	mu      sync.Mutex
	pid     int
	on      bool
	written uint64
}

// NewMemoryFileProvider creates an emulated tracing directory with tracing on.
// Timestamps in the trace come from clock.
func NewMemoryFileProvider(clock clockz.Clock) *MemoryFileProvider {
	if clock == nil {
		clock = clockz.RealClock
	}
	return &MemoryFileProvider{
		clock: clock,
		files: make(map[string][]byte),
		comm:  "go",
		pid:   os.Getpid(),
		on:    true,
	}
}

func (m *MemoryFileProvider) ReadFile(name string) ([]byte, error) {
	if !SafePath(name) {
		return nil, ErrBadFileName
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch name {
	case TraceFile:
		var b strings.Builder
		b.WriteString(traceHeader)
		for _, line := range m.lines {
			b.WriteString(line)
			b.WriteByte('\n')
		}
		return []byte(b.String()), nil
	case TracingOnFile:
		if m.on {
			return []byte("1\n"), nil
		}
		return []byte("0\n"), nil
	case MarkerFile:
		return nil, &os.PathError{Op: "read", Path: name, Err: os.ErrPermission}
	}

	data, ok := m.files[name]
	if !ok {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrNotExist}
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryFileProvider) WriteFile(name string, data []byte) error {
	if !SafePath(name) {
		return ErrBadFileName
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch name {
	case TraceFile:
		m.lines = m.lines[:0]
	case TracingOnFile:
		switch strings.TrimSpace(string(data)) {
		case "1":
			m.on = true
		case "0":
			m.on = false
		default:
			return &os.PathError{Op: "write", Path: name, Err: os.ErrInvalid}
		}
	case MarkerFile:
		m.appendMarker(data)
	default:
		m.files[name] = append([]byte(nil), data...)
	}
	return nil
}

func (m *MemoryFileProvider) OpenWriter(name string) (io.WriteCloser, error) {
	if !SafePath(name) {
		return nil, ErrBadFileName
	}
	if name != MarkerFile {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrPermission}
	}
	return &markerWriter{m: m}, nil
}

// Written returns the number of marker records accepted, including those
// dropped because tracing was off.
func (m *MemoryFileProvider) Written() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.written
}

// appendMarker must be called with m.mu held.
func (m *MemoryFileProvider) appendMarker(data []byte) {
	m.written++
	if !m.on {
		return
	}
	now := m.clock.Now()
	payload := strings.TrimRight(string(data), "\n")
	m.lines = append(m.lines, fmt.Sprintf("%16s-%-5d [000] .... %d.%06d: tracing_mark_write: %s",
		m.comm, m.pid, now.Unix(), now.Nanosecond()/1000, payload))
}

type markerWriter struct {
	m      *MemoryFileProvider
	closed bool
}

// Write records one marker per call, as the kernel does.
func (w *markerWriter) Write(p []byte) (int, error) {
	w.m.mu.Lock()
	defer w.m.mu.Unlock()
	if w.closed {
		return 0, os.ErrClosed
	}
	w.m.appendMarker(p)
	return len(p), nil
}

func (w *markerWriter) Close() error {
	w.m.mu.Lock()
	defer w.m.mu.Unlock()
	w.closed = true
	return nil
}

package tracefs

import (
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
)

func TestMemoryFileProviderMarkerLines(t *testing.T) {
	clock := clockz.NewFakeClockAt(time.Unix(100, 250000))
	fp := NewMemoryFileProvider(clock)

	if err := fp.WriteFile(MarkerFile, []byte("B|1|H:evt|\n")); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	data, err := fp.ReadFile(TraceFile)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	trace := string(data)
	if !strings.HasPrefix(trace, "# tracer: nop") {
		t.Error("Expected trace header")
	}
	if !strings.Contains(trace, "100.000250: tracing_mark_write: B|1|H:evt|\n") {
		t.Errorf("Unexpected trace contents:\n%s", trace)
	}
}

func TestMemoryFileProviderTracingOn(t *testing.T) {
	fp := NewMemoryFileProvider(nil)

	data, _ := fp.ReadFile(TracingOnFile)
	if string(data) != "1\n" {
		t.Errorf("Expected tracing on by default, got %q", data)
	}

	if err := fp.WriteFile(TracingOnFile, []byte("0")); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := fp.WriteFile(MarkerFile, []byte("E|1|")); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	data, _ = fp.ReadFile(TraceFile)
	if strings.Contains(string(data), "E|1|") {
		t.Error("Expected marker to be dropped while tracing is off")
	}
	if fp.Written() != 1 {
		t.Errorf("Expected 1 accepted record, got %d", fp.Written())
	}

	if err := fp.WriteFile(TracingOnFile, []byte("yes")); !errors.Is(err, os.ErrInvalid) {
		t.Errorf("Expected ErrInvalid, got %v", err)
	}
}

func TestMemoryFileProviderClear(t *testing.T) {
	fp := NewMemoryFileProvider(nil)
	_ = fp.WriteFile(MarkerFile, []byte("E|1|"))
	if err := fp.WriteFile(TraceFile, nil); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	data, _ := fp.ReadFile(TraceFile)
	if string(data) != traceHeader {
		t.Errorf("Expected only the header after clear, got %q", data)
	}
}

func TestMemoryFileProviderPlainFiles(t *testing.T) {
	fp := NewMemoryFileProvider(nil)

	if _, err := fp.ReadFile("buffer_size_kb"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected ErrNotExist, got %v", err)
	}
	if err := fp.WriteFile("buffer_size_kb", []byte("4096")); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	data, err := fp.ReadFile("buffer_size_kb")
	if err != nil || string(data) != "4096" {
		t.Errorf("Expected 4096, got %q (%v)", data, err)
	}
	if _, err := fp.ReadFile(MarkerFile); !errors.Is(err, os.ErrPermission) {
		t.Errorf("Expected ErrPermission reading the marker, got %v", err)
	}
	if _, err := fp.ReadFile("../trace"); !errors.Is(err, ErrBadFileName) {
		t.Errorf("Expected ErrBadFileName, got %v", err)
	}
}

func TestMemoryFileProviderWriter(t *testing.T) {
	fp := NewMemoryFileProvider(nil)

	if _, err := fp.OpenWriter(TraceFile); !errors.Is(err, os.ErrPermission) {
		t.Errorf("Expected ErrPermission, got %v", err)
	}

	w, err := fp.OpenWriter(MarkerFile)
	if err != nil {
		t.Fatalf("OpenWriter failed: %v", err)
	}
	_, _ = io.WriteString(w, "C|1|H:a|1|")
	_, _ = io.WriteString(w, "C|1|H:a|2|")
	_ = w.Close()
	if _, err := io.WriteString(w, "C|1|H:a|3|"); !errors.Is(err, os.ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}

	lines, err := NewControl(fp).Lines()
	if err != nil {
		t.Fatalf("Lines failed: %v", err)
	}
	if len(lines) != 2 {
		t.Errorf("Expected one line per write, got %d", len(lines))
	}
}

func TestMemoryFileProviderConcurrentWriters(t *testing.T) {
	fp := NewMemoryFileProvider(nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w, err := fp.OpenWriter(MarkerFile)
			if err != nil {
				t.Errorf("OpenWriter failed: %v", err)
				return
			}
			defer w.Close()
			for j := 0; j < 25; j++ {
				_, _ = io.WriteString(w, "E|1|")
			}
		}()
	}
	wg.Wait()

	if fp.Written() != 100 {
		t.Errorf("Expected 100 records, got %d", fp.Written())
	}
}

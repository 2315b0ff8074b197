package hitrace

import (
	"io"
	"os"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/zoobzio/hitrace/tracefs"
)

// MarkerBackend writes events to the trace_marker file of a tracing
// directory. The marker is opened on first use and kept open; a failed open
// turns the backend into a no-op. Write errors are logged once and otherwise
// dropped.
// Safe for concurrent use by multiple goroutines.
type MarkerBackend struct {
	fp       tracefs.FileProvider
	logger   hclog.Logger
	w        io.WriteCloser
	openErr  error
	openOnce sync.Once
	failOnce sync.Once
	mu       sync.Mutex
	pid      int
}

// NewMarkerBackend creates a backend writing through fp.
func NewMarkerBackend(fp tracefs.FileProvider, logger hclog.Logger) *MarkerBackend {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &MarkerBackend{
		fp:     fp,
		logger: logger,
		pid:    os.Getpid(),
	}
}

func (b *MarkerBackend) StartTrace(tag Tag, name string) {
	b.write(Event{Kind: KindBegin, Tag: tag, Name: name})
}

func (b *MarkerBackend) FinishTrace(tag Tag) {
	b.write(Event{Kind: KindEnd, Tag: tag})
}

func (b *MarkerBackend) StartAsyncTrace(tag Tag, name string, taskID int32) {
	b.write(Event{Kind: KindAsyncBegin, Tag: tag, Name: name, TaskID: taskID})
}

func (b *MarkerBackend) FinishAsyncTrace(tag Tag, name string, taskID int32) {
	b.write(Event{Kind: KindAsyncEnd, Tag: tag, Name: name, TaskID: taskID})
}

func (b *MarkerBackend) CountTrace(tag Tag, name string, value int64) {
	b.write(Event{Kind: KindCounter, Tag: tag, Name: name, Value: value})
}

func (b *MarkerBackend) open() {
	b.openOnce.Do(func() {
		b.w, b.openErr = b.fp.OpenWriter(tracefs.MarkerFile)
		if b.openErr != nil {
			b.logger.Error("open trace_marker failed, markers disabled", "error", b.openErr)
		}
	})
}

func (b *MarkerBackend) write(ev Event) {
	b.open()
	if b.openErr != nil {
		return
	}

	record := ev.Marker(b.pid)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.w == nil {
		return
	}
	if _, err := io.WriteString(b.w, record); err != nil {
		b.failOnce.Do(func() {
			b.logger.Error("write trace_marker failed", "error", err)
		})
	}
}

// Close closes the marker file. Later events are dropped.
func (b *MarkerBackend) Close() error {
	b.open()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.w == nil {
		return nil
	}
	err := b.w.Close()
	b.w = nil
	return err
}

// Package tracefs gives access to the ftrace control files: trace_marker for
// writing events, trace for reading them back and tracing_on for switching
// the kernel buffer on and off.
//
// A FileProvider hides where the files live. NewLocalFileProvider reads and
// writes a mounted tracing directory; NewMemoryFileProvider emulates the three
// files in memory so tests can run without a kernel.
package tracefs

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Well-known file names inside a tracing directory.
const (
	MarkerFile    = "trace_marker"
	TraceFile     = "trace"
	TracingOnFile = "tracing_on"
)

// Tracing directories, in lookup order.
const (
	DebugFSRoot = "/sys/kernel/debug/tracing"
	TraceFSRoot = "/sys/kernel/tracing"
)

var (
	// ErrBadFileName is returned for names that would escape the tracing dir.
	ErrBadFileName = errors.New("tracefs: bad file name")

	// ErrNotFound is returned when no tracing directory holds a trace_marker.
	ErrNotFound = errors.New("tracefs: no tracing directory found")
)

// FileProvider reads and writes files relative to a tracing directory.
type FileProvider interface {
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte) error
	OpenWriter(name string) (io.WriteCloser, error)
}

// SafePath reports whether name stays inside the tracing directory.
func SafePath(name string) bool {
	if name == "" || filepath.IsAbs(name) {
		return false
	}
	clean := filepath.Clean(name)
	return clean != ".." && !strings.HasPrefix(clean, "../")
}

// FindRoot returns the first tracing directory that holds a trace_marker.
func FindRoot() (string, error) {
	for _, root := range []string{DebugFSRoot, TraceFSRoot} {
		if _, err := os.Stat(filepath.Join(root, MarkerFile)); err == nil {
			return root, nil
		}
	}
	return "", ErrNotFound
}

type localFileProvider struct {
	root string
}

// NewLocalFileProvider returns a provider for the tracing directory at root.
func NewLocalFileProvider(root string) FileProvider {
	return &localFileProvider{root: root}
}

func (p *localFileProvider) ReadFile(name string) ([]byte, error) {
	if !SafePath(name) {
		return nil, ErrBadFileName
	}
	return os.ReadFile(filepath.Join(p.root, name))
}

func (p *localFileProvider) WriteFile(name string, data []byte) error {
	if !SafePath(name) {
		return ErrBadFileName
	}
	// Control files exist already; O_TRUNC on trace clears the buffer.
	f, err := os.OpenFile(filepath.Join(p.root, name), os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (p *localFileProvider) OpenWriter(name string) (io.WriteCloser, error) {
	if !SafePath(name) {
		return nil, ErrBadFileName
	}
	return os.OpenFile(filepath.Join(p.root, name), os.O_WRONLY, 0)
}

package tracefs

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
)

// Control switches the kernel trace buffer and reads it back.
type Control struct {
	fp FileProvider
}

// NewControl returns a Control over fp.
func NewControl(fp FileProvider) *Control {
	return &Control{fp: fp}
}

// SetTracingOn writes tracing_on.
func (c *Control) SetTracingOn(on bool) error {
	value := "0"
	if on {
		value = "1"
	}
	if err := c.fp.WriteFile(TracingOnFile, []byte(value)); err != nil {
		return fmt.Errorf("switch tracing %s: %w", value, err)
	}
	return nil
}

// TracingOn reads tracing_on.
func (c *Control) TracingOn() (bool, error) {
	data, err := c.fp.ReadFile(TracingOnFile)
	if err != nil {
		return false, fmt.Errorf("read tracing_on: %w", err)
	}
	return strings.TrimSpace(string(data)) == "1", nil
}

// Clear empties the trace buffer.
func (c *Control) Clear() error {
	if err := c.fp.WriteFile(TraceFile, nil); err != nil {
		return fmt.Errorf("clear trace: %w", err)
	}
	return nil
}

// WriteMarker writes one raw record to trace_marker.
func (c *Control) WriteMarker(record string) error {
	if err := c.fp.WriteFile(MarkerFile, []byte(record)); err != nil {
		return fmt.Errorf("write trace_marker: %w", err)
	}
	return nil
}

// ReadTrace returns the formatted trace buffer.
func (c *Control) ReadTrace() ([]byte, error) {
	data, err := c.fp.ReadFile(TraceFile)
	if err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}
	return data, nil
}

// Lines returns the trace buffer without its comment header.
func (c *Control) Lines() ([]string, error) {
	data, err := c.ReadTrace()
	if err != nil {
		return nil, err
	}
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan trace: %w", err)
	}
	return lines, nil
}

// Contains reports whether any trace line contains substr.
func (c *Control) Contains(substr string) (bool, error) {
	lines, err := c.Lines()
	if err != nil {
		return false, err
	}
	for _, line := range lines {
		if strings.Contains(line, substr) {
			return true, nil
		}
	}
	return false, nil
}

// IndexOf returns the index of the first line at or after from containing
// substr, or -1.
func (c *Control) IndexOf(substr string, from int) (int, error) {
	lines, err := c.Lines()
	if err != nil {
		return -1, err
	}
	if from < 0 {
		from = 0
	}
	for i := from; i < len(lines); i++ {
		if strings.Contains(lines[i], substr) {
			return i, nil
		}
	}
	return -1, nil
}

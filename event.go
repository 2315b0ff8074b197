package hitrace

import (
	"strconv"
	"strings"
)

// Kind identifies the type of a trace event.
type Kind uint8

// Event kinds.
const (
	KindBegin Kind = iota
	KindEnd
	KindAsyncBegin
	KindAsyncEnd
	KindCounter
)

var kindMarkers = [...]byte{'B', 'E', 'S', 'F', 'C'}

// Marker returns the single character that prefixes the event's marker line.
func (k Kind) Marker() byte {
	if int(k) < len(kindMarkers) {
		return kindMarkers[k]
	}
	return '?'
}

func (k Kind) String() string {
	switch k {
	case KindBegin:
		return "begin"
	case KindEnd:
		return "end"
	case KindAsyncBegin:
		return "async-begin"
	case KindAsyncEnd:
		return "async-end"
	case KindCounter:
		return "counter"
	}
	return "unknown"
}

// Event is one trace record. Events are built, handed to a Backend and
// dropped; nothing retains them except test doubles.
type Event struct {
	Name   string
	Value  int64
	Tag    Tag
	TaskID int32
	Kind   Kind
}

// markerWritePrefix precedes the payload in the kernel's formatted trace.
const markerWritePrefix = "tracing_mark_write: "

// Marker formats the event as a trace_marker line for process pid.
//
//	B|pid|H:name|
//	E|pid|
//	S|pid|H:name|task|   F|pid|H:name|task|   C|pid|H:name|value|
func (e Event) Marker(pid int) string {
	var b strings.Builder
	b.Grow(len(e.Name) + 32)
	b.WriteByte(e.Kind.Marker())
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(pid))
	b.WriteByte('|')
	if e.Kind == KindEnd {
		return b.String()
	}
	b.WriteString("H:")
	b.WriteString(e.Name)
	b.WriteByte('|')
	switch e.Kind {
	case KindAsyncBegin, KindAsyncEnd:
		b.WriteString(strconv.FormatInt(int64(e.TaskID), 10))
		b.WriteByte('|')
	case KindCounter:
		b.WriteString(strconv.FormatInt(e.Value, 10))
		b.WriteByte('|')
	}
	return b.String()
}

// ParseMarker recovers an event and its pid from a marker line. The line may
// be the raw payload or a kernel trace line carrying "tracing_mark_write: ".
// The Tag of the returned event is always zero; tags are not written.
func ParseMarker(line string) (Event, int, bool) {
	if i := strings.Index(line, markerWritePrefix); i >= 0 {
		line = line[i+len(markerWritePrefix):]
	}
	line = strings.TrimRight(line, " \n")

	fields := strings.Split(line, "|")
	if len(fields) < 3 || len(fields[0]) != 1 {
		return Event{}, 0, false
	}
	pid, err := strconv.Atoi(fields[1])
	if err != nil {
		return Event{}, 0, false
	}

	var ev Event
	switch fields[0][0] {
	case 'B':
		ev.Kind = KindBegin
	case 'E':
		return Event{Kind: KindEnd}, pid, fields[2] == ""
	case 'S':
		ev.Kind = KindAsyncBegin
	case 'F':
		ev.Kind = KindAsyncEnd
	case 'C':
		ev.Kind = KindCounter
	default:
		return Event{}, 0, false
	}

	if !strings.HasPrefix(fields[2], "H:") {
		return Event{}, 0, false
	}
	ev.Name = strings.TrimPrefix(fields[2], "H:")
	if ev.Kind == KindBegin {
		return ev, pid, true
	}

	if len(fields) < 4 {
		return Event{}, 0, false
	}
	bits := 32
	if ev.Kind == KindCounter {
		bits = 64
	}
	n, err := strconv.ParseInt(fields[3], 10, bits)
	if err != nil {
		return Event{}, 0, false
	}
	if ev.Kind == KindCounter {
		ev.Value = n
	} else {
		ev.TaskID = int32(n)
	}
	return ev, pid, true
}

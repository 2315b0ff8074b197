package hitrace

import (
	"sync"
)

// Recorder is a Backend that buffers events in memory instead of writing
// them to a trace sink. It stands in for the kernel in tests.
// Safe for concurrent use by multiple goroutines.
type Recorder struct {
	events []Event
	mu     sync.Mutex
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		events: make([]Event, 0, 8), // Start with small capacity.
	}
}

func (r *Recorder) StartTrace(tag Tag, name string) {
	r.record(Event{Kind: KindBegin, Tag: tag, Name: name})
}

func (r *Recorder) FinishTrace(tag Tag) {
	r.record(Event{Kind: KindEnd, Tag: tag})
}

func (r *Recorder) StartAsyncTrace(tag Tag, name string, taskID int32) {
	r.record(Event{Kind: KindAsyncBegin, Tag: tag, Name: name, TaskID: taskID})
}

func (r *Recorder) FinishAsyncTrace(tag Tag, name string, taskID int32) {
	r.record(Event{Kind: KindAsyncEnd, Tag: tag, Name: name, TaskID: taskID})
}

func (r *Recorder) CountTrace(tag Tag, name string, value int64) {
	r.record(Event{Kind: KindCounter, Tag: tag, Name: name, Value: value})
}

// record appends an event to the buffer.
func (r *Recorder) record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.events) >= cap(r.events) {
		currentCap := cap(r.events)
		var newCap int
		if currentCap < 1024 {
			// Double capacity for small buffers.
			newCap = currentCap * 2
		} else {
			// Grow by 50% for large buffers.
			newCap = currentCap + currentCap/2
		}
		if newCap < 32 {
			newCap = 32
		}
		grown := make([]Event, len(r.events), newCap)
		copy(grown, r.events)
		r.events = grown
	}
	r.events = append(r.events, ev)
}

// Export returns a copy of all buffered events and clears the buffer.
// The returned slice is safe to modify without affecting the recorder.
func (r *Recorder) Export() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.events) == 0 {
		return nil
	}

	result := make([]Event, len(r.events))
	copy(result, r.events)

	// Only shrink if the buffer is very oversized to avoid allocation churn.
	if cap(r.events) > 256 && len(r.events) < cap(r.events)/8 {
		newCap := cap(r.events) / 4
		if newCap < 32 {
			newCap = 32
		}
		r.events = make([]Event, 0, newCap)
	} else {
		r.events = r.events[:0]
	}

	return result
}

// Events returns a copy of the buffered events without clearing them.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.events) == 0 {
		return nil
	}
	result := make([]Event, len(r.events))
	copy(result, r.events)
	return result
}

// Count returns the current number of buffered events.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Reset clears all buffered events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = r.events[:0]
}

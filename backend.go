package hitrace

// Backend is the sink a Tracer hands validated events to. Calls are
// fire-and-forget: a Backend reports nothing back and must not block beyond
// a single write. Implementations must be safe for concurrent use.
type Backend interface {
	StartTrace(tag Tag, name string)
	FinishTrace(tag Tag)
	StartAsyncTrace(tag Tag, name string, taskID int32)
	FinishAsyncTrace(tag Tag, name string, taskID int32)
	CountTrace(tag Tag, name string, value int64)
}

// NopBackend discards every event.
type NopBackend struct{}

func (NopBackend) StartTrace(Tag, string)              {}
func (NopBackend) FinishTrace(Tag)                     {}
func (NopBackend) StartAsyncTrace(Tag, string, int32)  {}
func (NopBackend) FinishAsyncTrace(Tag, string, int32) {}
func (NopBackend) CountTrace(Tag, string, int64)       {}

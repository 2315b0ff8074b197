package hitrace

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"
)

// chainKeyType is a private type for context keys to avoid collisions.
type chainKeyType string

const (
	chainKey chainKeyType = "hitrace"
)

// CommunicationMode describes the boundary a tracepoint crosses.
type CommunicationMode uint8

// Communication modes.
const (
	CommDefault CommunicationMode = iota
	CommThread
	CommProcess
	CommDevice
)

func (m CommunicationMode) String() string {
	switch m {
	case CommThread:
		return "thread"
	case CommProcess:
		return "process"
	case CommDevice:
		return "device"
	}
	return "default"
}

// TracepointType is the role of a tracepoint in a call.
type TracepointType uint8

// Tracepoint types.
const (
	TpCS      TracepointType = iota // client send
	TpCR                            // client receive
	TpSS                            // server send
	TpSR                            // server receive
	TpGeneral                       // general info
)

func (t TracepointType) String() string {
	switch t {
	case TpCS:
		return "CS"
	case TpCR:
		return "CR"
	case TpSS:
		return "SS"
	case TpSR:
		return "SR"
	}
	return "GENERAL"
}

// Chain is the trace ID slot of one goroutine of execution. It is either
// empty or holds one valid ID.
//
// A Chain is NOT safe for concurrent use. Give another goroutine its own
// slot with Fork.
type Chain struct {
	tracer *Tracer
	id     ID
}

// Begin starts a new chain: a fresh chain id, root span 0 and flags. The ID
// replaces whatever the slot held and a copy is returned.
func (c *Chain) Begin(name string, flags Flag) ID {
	var id ID
	id.SetChainID(c.tracer.newChainID())
	id.SetFlags(flags)
	c.id = id

	if !flags.Has(FlagNoBeInfo) {
		c.tracer.logger.Info("HiTraceBegin", "name", name, "trace_id", id.String())
	}
	return id
}

// End clears the slot when id belongs to the slot's chain. An invalid id, or
// one from another chain, is ignored.
func (c *Chain) End(id ID) {
	if !id.IsValid() || !c.id.IsValid() || id.ChainID() != c.id.ChainID() {
		return
	}
	if !id.IsFlagEnabled(FlagNoBeInfo) {
		c.tracer.logger.Info("HiTraceEnd", "trace_id", id.String())
	}
	c.id = ID{}
}

// GetID returns a copy of the slot, or the invalid ID when it is empty.
func (c *Chain) GetID() ID {
	return c.id
}

// SetID stores id in the slot. An invalid id is ignored.
func (c *Chain) SetID(id ID) {
	if !id.IsValid() {
		return
	}
	c.id = id
}

// ClearID empties the slot without logging an end marker.
func (c *Chain) ClearID() {
	c.id = ID{}
}

// CreateSpan derives a child of the slot's ID: same chain and flags, a new
// span id, and the current span as parent. With FlagDoNotCreateSpan the
// current ID is returned as is. An empty slot yields the invalid ID.
//
// CreateSpan never changes the slot; call SetID to make the child current.
func (c *Chain) CreateSpan() ID {
	cur := c.id
	if !cur.IsValid() {
		return ID{}
	}
	if cur.IsFlagEnabled(FlagDoNotCreateSpan) {
		return cur
	}

	spanID := c.tracer.newSpanID()
	for spanID == cur.SpanID() {
		spanID = c.tracer.newSpanID()
	}

	child := cur
	child.SetSpanID(spanID)
	child.SetParentSpanID(cur.SpanID())
	return child
}

// SaveAndSet stores id when it is valid and returns the previous slot value
// for Restore.
func (c *Chain) SaveAndSet(id ID) ID {
	old := c.id
	if id.IsValid() {
		c.id = id
	}
	return old
}

// Restore puts back a value returned by SaveAndSet, even an invalid one.
func (c *Chain) Restore(id ID) {
	c.id = id
}

// Tracepoint logs a tracepoint for id. Nothing is logged unless id is valid
// and has FlagTpInfo, or FlagD2dTpInfo with mode CommDevice.
func (c *Chain) Tracepoint(mode CommunicationMode, typ TracepointType, id ID, format string, args ...interface{}) {
	if !id.IsValid() {
		return
	}
	d2d := mode == CommDevice && id.IsFlagEnabled(FlagD2dTpInfo)
	if !d2d && !id.IsFlagEnabled(FlagTpInfo) {
		return
	}
	c.tracer.logger.Info(fmt.Sprintf(format, args...),
		"tp", typ.String(),
		"mode", mode.String(),
		"trace_id", id.String(),
	)
}

// Fork returns a slot for a new goroutine. It inherits a child span of the
// current ID only when the chain was begun with FlagIncludeAsync.
func (c *Chain) Fork() *Chain {
	child := c.tracer.NewChain()
	if c.id.IsFlagEnabled(FlagIncludeAsync) {
		child.id = c.CreateSpan()
	}
	return child
}

// Logger returns the tracer's logger annotated with the slot's ID, unless
// the slot is empty or the ID has FlagDoNotEnableLog.
func (c *Chain) Logger() hclog.Logger {
	if !c.id.IsValid() || c.id.IsFlagEnabled(FlagDoNotEnableLog) {
		return c.tracer.logger
	}
	return c.tracer.logger.With("trace_id", c.id.String())
}

// NewContext returns a copy of parent carrying c.
func NewContext(parent context.Context, c *Chain) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithValue(parent, chainKey, c)
}

// FromContext extracts the chain from a context.
// Returns nil if no chain is present.
func FromContext(ctx context.Context) *Chain {
	if ctx == nil {
		return nil
	}
	if c, ok := ctx.Value(chainKey).(*Chain); ok {
		return c
	}
	return nil
}

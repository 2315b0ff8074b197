package hitrace

import (
	"encoding/binary"
	"fmt"

	json "github.com/goccy/go-json"
)

// Flag is a set of trace chain options carried inside an ID.
type Flag uint16

// Trace chain flags.
const (
	// FlagDefault traces synchronous calls only and creates child spans.
	FlagDefault Flag = 0
	// FlagIncludeAsync lets forked goroutines inherit the chain.
	FlagIncludeAsync Flag = 1 << 0
	// FlagDoNotCreateSpan makes CreateSpan return the current ID unchanged.
	FlagDoNotCreateSpan Flag = 1 << 1
	// FlagTpInfo enables tracepoint output.
	FlagTpInfo Flag = 1 << 2
	// FlagNoBeInfo suppresses the begin and end markers of a chain.
	FlagNoBeInfo Flag = 1 << 3
	// FlagDoNotEnableLog keeps the chain id out of Chain.Logger.
	FlagDoNotEnableLog Flag = 1 << 4
	// FlagFaultTrigger marks a chain started by a fault.
	FlagFaultTrigger Flag = 1 << 5
	// FlagD2dTpInfo enables tracepoint output for device-to-device calls only.
	FlagD2dTpInfo Flag = 1 << 6
)

// Or returns f with every bit of other set.
func (f Flag) Or(other Flag) Flag { return f | other }

// Has reports whether every bit of other is set in f.
func (f Flag) Has(other Flag) bool { return other != 0 && f&other == other }

// IDLen is the serialized size of an ID in bytes.
const IDLen = 16

// Bit layout. Word 0 holds valid(1) ver(3) chain(60); word 1 holds
// flags(12) span(26) parent(26), least significant bits first.
const (
	validBits  = 1
	verBits    = 3
	chainBits  = 60
	flagBits   = 12
	spanBits   = 26
	parentBits = 26

	verShift    = validBits
	chainShift  = validBits + verBits
	spanShift   = flagBits
	parentShift = flagBits + spanBits

	chainMask  = uint64(1)<<chainBits - 1
	verMask    = uint64(1)<<verBits - 1
	flagMask   = uint64(1)<<flagBits - 1
	spanMask   = uint64(1)<<spanBits - 1
	parentMask = uint64(1)<<parentBits - 1

	version1 = 0
)

// ID identifies one span of a distributed call chain. It is a plain value;
// copies never share state. The zero ID is invalid.
type ID struct {
	words [2]uint64
}

// InvalidID returns the distinguished invalid ID.
func InvalidID() ID { return ID{} }

// IsValid reports whether the ID carries a chain.
func (id ID) IsValid() bool {
	return id.words[0]&1 == 1 && id.ChainID() != 0
}

// Version returns the layout version of the ID.
func (id ID) Version() uint8 {
	return uint8((id.words[0] >> verShift) & verMask)
}

// ChainID returns the 60-bit chain id.
func (id ID) ChainID() uint64 {
	return (id.words[0] >> chainShift) & chainMask
}

// SetChainID stores the low 60 bits of chainID. Zero is ignored. Setting a
// chain id on an invalid ID makes it a fresh valid ID with no flags or spans.
func (id *ID) SetChainID(chainID uint64) {
	chainID &= chainMask
	if chainID == 0 {
		return
	}
	if !id.IsValid() {
		id.words[0] = 1 | version1<<verShift
		id.words[1] = 0
	}
	id.words[0] = id.words[0]&^(chainMask<<chainShift) | chainID<<chainShift
}

// SpanID returns the 26-bit span id.
func (id ID) SpanID() uint64 {
	return (id.words[1] >> spanShift) & spanMask
}

// SetSpanID stores the low 26 bits of spanID.
func (id *ID) SetSpanID(spanID uint64) {
	id.words[1] = id.words[1]&^(spanMask<<spanShift) | (spanID&spanMask)<<spanShift
}

// ParentSpanID returns the 26-bit parent span id.
func (id ID) ParentSpanID() uint64 {
	return (id.words[1] >> parentShift) & parentMask
}

// SetParentSpanID stores the low 26 bits of parentSpanID.
func (id *ID) SetParentSpanID(parentSpanID uint64) {
	id.words[1] = id.words[1]&^(parentMask<<parentShift) | (parentSpanID&parentMask)<<parentShift
}

// Flags returns the flag set.
func (id ID) Flags() Flag {
	return Flag(id.words[1] & flagMask)
}

// SetFlags replaces the flag set.
func (id *ID) SetFlags(flags Flag) {
	id.words[1] = id.words[1]&^flagMask | uint64(flags)&flagMask
}

// IsFlagEnabled reports whether flag is set.
func (id ID) IsFlagEnabled(flag Flag) bool {
	return id.Flags().Has(flag)
}

// EnableFlag sets flag, keeping the others.
func (id *ID) EnableFlag(flag Flag) {
	id.SetFlags(id.Flags().Or(flag))
}

// ToBytes writes the ID into buf and returns the number of bytes written.
// Each word is written big-endian. Nothing is written, and 0 is returned,
// when the ID is invalid or buf is shorter than IDLen.
func (id ID) ToBytes(buf []byte) int {
	if !id.IsValid() || len(buf) < IDLen {
		return 0
	}
	binary.BigEndian.PutUint64(buf[0:8], id.words[0])
	binary.BigEndian.PutUint64(buf[8:16], id.words[1])
	return IDLen
}

// Bytes returns the serialized ID, or nil when it is invalid.
func (id ID) Bytes() []byte {
	buf := make([]byte, IDLen)
	if id.ToBytes(buf) == 0 {
		return nil
	}
	return buf
}

// FromBytes rebuilds an ID from the first IDLen bytes of buf. Input that is
// too short or that does not decode to a valid ID yields the invalid ID.
func FromBytes(buf []byte) ID {
	if len(buf) < IDLen {
		return ID{}
	}
	id := ID{words: [2]uint64{
		binary.BigEndian.Uint64(buf[0:8]),
		binary.BigEndian.Uint64(buf[8:16]),
	}}
	if !id.IsValid() {
		return ID{}
	}
	return id
}

// String renders the ID as [chain,span,parent] in hex.
func (id ID) String() string {
	if !id.IsValid() {
		return "[invalid]"
	}
	return fmt.Sprintf("[%x,%x,%x]", id.ChainID(), id.SpanID(), id.ParentSpanID())
}

type idJSON struct {
	ChainID      uint64 `json:"chain_id"`
	SpanID       uint64 `json:"span_id"`
	ParentSpanID uint64 `json:"parent_span_id"`
	Flags        Flag   `json:"flags"`
}

// MarshalJSON encodes a valid ID as an object and an invalid one as null.
func (id ID) MarshalJSON() ([]byte, error) {
	if !id.IsValid() {
		return []byte("null"), nil
	}
	return json.Marshal(idJSON{
		ChainID:      id.ChainID(),
		SpanID:       id.SpanID(),
		ParentSpanID: id.ParentSpanID(),
		Flags:        id.Flags(),
	})
}

// UnmarshalJSON decodes the form written by MarshalJSON.
func (id *ID) UnmarshalJSON(data []byte) error {
	var raw *idJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode trace id: %w", err)
	}
	*id = ID{}
	if raw == nil {
		return nil
	}
	id.SetChainID(raw.ChainID)
	if !id.IsValid() {
		return nil
	}
	id.SetSpanID(raw.SpanID)
	id.SetParentSpanID(raw.ParentSpanID)
	id.SetFlags(raw.Flags)
	return nil
}

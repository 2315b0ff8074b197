package benchmarks

import (
	"testing"

	json "github.com/goccy/go-json"

	"github.com/zoobzio/hitrace"
)

func benchID() hitrace.ID {
	var id hitrace.ID
	id.SetChainID(0xabcdef0123)
	id.SetSpanID(0x1234)
	id.SetParentSpanID(0x99)
	id.SetFlags(hitrace.FlagTpInfo | hitrace.FlagIncludeAsync)
	return id
}

// BenchmarkIDSerialization measures the binary and JSON forms of an ID.
func BenchmarkIDSerialization(b *testing.B) {
	id := benchID()

	b.Run("to-bytes", func(b *testing.B) {
		buf := make([]byte, hitrace.IDLen)
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			_ = id.ToBytes(buf)
		}
	})

	b.Run("from-bytes", func(b *testing.B) {
		buf := id.Bytes()
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			_ = hitrace.FromBytes(buf)
		}
	})

	b.Run("json", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			if _, err := json.Marshal(id); err != nil {
				b.Fatal(err)
			}
		}
	})

	b.Run("string", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			_ = id.String()
		}
	})
}

// BenchmarkIDAccessors measures field reads and writes.
func BenchmarkIDAccessors(b *testing.B) {
	id := benchID()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		id.SetSpanID(uint64(i))
		id.EnableFlag(hitrace.FlagNoBeInfo)
		_ = id.IsFlagEnabled(hitrace.FlagTpInfo)
		_ = id.ParentSpanID()
	}
}

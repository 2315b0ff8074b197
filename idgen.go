package hitrace

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/zoobzio/clockz"
)

// randomSource returns a generator of raw 64-bit values for an IDPool. Values
// come from random UUIDs; when the random source fails they are hashed from
// the clock and a counter instead.
func randomSource(clock clockz.Clock) func() uint64 {
	var fallback atomic.Uint64
	return func() uint64 {
		if u, err := uuid.NewRandom(); err == nil {
			return binary.BigEndian.Uint64(u[0:8]) ^ binary.BigEndian.Uint64(u[8:16])
		}
		return timeHash(uint64(clock.Now().UnixNano()), fallback.Add(1))
	}
}

// timeHash mixes its inputs byte by byte with a multiplicative hash.
func timeHash(values ...uint64) uint64 {
	const seed = 131
	var hash uint64
	var buf [8]byte
	for _, v := range values {
		binary.LittleEndian.PutUint64(buf[:], v)
		for _, b := range buf {
			hash = hash*seed + uint64(b)
		}
	}
	return hash
}

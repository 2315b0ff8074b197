package hitrace

import (
	"sync"
)

// IDPool keeps a buffer of pre-generated id fields. Every id it hands out is
// non-zero and fits in the pool's mask.
type IDPool struct {
	source func() uint64
	mask   uint64
	ids    chan uint64
	stopCh chan struct{}
	mu     sync.Mutex
	closed bool
}

// NewIDPool creates a pool of capacity ids drawn from source and cut to mask.
// A zero mask yields a pool that can never produce an id and is rejected by
// panicking.
func NewIDPool(capacity int, mask uint64, source func() uint64) *IDPool {
	if mask == 0 {
		panic("hitrace: id pool mask is zero")
	}
	pool := &IDPool{
		ids:    make(chan uint64, capacity),
		source: source,
		mask:   mask,
		stopCh: make(chan struct{}),
	}
	go pool.refill()
	return pool
}

// Get retrieves an id from the pool or generates one if the pool is empty.
func (p *IDPool) Get() uint64 {
	select {
	case id := <-p.ids:
		return id
	default:
		return p.next()
	}
}

// next draws from source until the masked value is non-zero.
func (p *IDPool) next() uint64 {
	for {
		if id := p.source() & p.mask; id != 0 {
			return id
		}
	}
}

func (p *IDPool) refill() {
	for {
		select {
		case <-p.stopCh:
			return
		default:
			select {
			case p.ids <- p.next():
			case <-p.stopCh:
				return
			}
		}
	}
}

// Close stops the refill goroutine. Get keeps working after Close.
func (p *IDPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.closed {
		close(p.stopCh)
		p.closed = true
	}
}

package orderbook

import "github.com/thecurioussailor/exchangecore/infra/memory"

// Pool recycles Order structs between removal (cancel/fill) and the
// next insert, using epoch-based reclamation so a reader walking the
// book from another goroutine, inside an Enter/Exit section of a
// reader epoch passed to Reclaim, never observes an order struct
// reused out from under it while the engine keeps mutating the book
// on its own goroutine.
type Pool struct {
	objects *memory.Pool[Order]
	retired *memory.RetireRing
}

func NewPool() *Pool {
	return &Pool{
		objects: memory.NewPool(func() *Order { return &Order{} }),
		retired: memory.NewRetireRing(1024),
	}
}

func (p *Pool) New() *Order {
	o := p.objects.Get()
	*o = Order{}
	return o
}

// Retire queues a removed order for reclamation. Reclaim returns it to
// the pool at the first call in which none of the readers passed to it
// is inside a read section.
func (p *Pool) Retire(o *Order) {
	if !p.retired.Enqueue(o) {
		// Ring full: let the GC reclaim it instead. Only forgoes the
		// pooling optimization, never correctness.
		return
	}
}

// Reclaim advances the global epoch and returns anything now safe to
// reuse to the pool. Called periodically by the owning engine.
func (p *Pool) Reclaim(readers ...*memory.ReaderEpoch) {
	memory.AdvanceEpochAndReclaim(p.retired, p.objects, readers...)
}

// NewReader returns a new reader epoch for a concurrent reader of this
// book. It is not registered anywhere; it takes part in reclamation
// only when passed to Reclaim. The caller must call Enter/Exit around
// each read.
func (p *Pool) NewReader() *memory.ReaderEpoch {
	return &memory.ReaderEpoch{}
}

package capture

import "sync"

// slotPool tracks which buffer slots are filled and waiting for the
// consumer (ready) and which the consumer has finished with (free).
// Slots in neither queue are with the driver. The ready queue is bounded so
// the driver always retains headspace to fill; admitting past the bound
// evicts the oldest ready slot to the free queue.
//
// Lock order: the ready mutex may be held while taking the free mutex
// (admission eviction and drain-on-take); never the reverse.
type slotPool struct {
	mu     sync.Mutex
	cond   *sync.Cond
	ready  []int
	closed bool

	freeMu sync.Mutex
	free   []int

	bound int
}

func newSlotPool(bound int) *slotPool {
	p := &slotPool{bound: bound}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// admit appends a freshly filled slot to the ready queue, evicting the
// oldest ready slot to the free queue when the bound is reached, and wakes
// the consumer. It reports whether an eviction occurred.
func (p *slotPool) admit(index int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	evicted := false
	if len(p.ready) >= p.bound {
		oldest := p.ready[0]
		p.ready = p.ready[1:]
		p.freeMu.Lock()
		p.free = append(p.free, oldest)
		p.freeMu.Unlock()
		evicted = true
	}
	p.ready = append(p.ready, index)
	p.cond.Signal()
	return evicted
}

// takeLatest blocks until a ready slot exists, drains all but the newest
// into the free queue, and returns the newest slot together with the count
// of drained (dropped) slots. ok is false once the pool is closed.
func (p *slotPool) takeLatest() (index, dropped int, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.ready) == 0 && !p.closed {
		p.cond.Wait()
	}
	if p.closed {
		return 0, 0, false
	}

	dropped = len(p.ready) - 1
	if dropped > 0 {
		p.freeMu.Lock()
		p.free = append(p.free, p.ready[:dropped]...)
		p.freeMu.Unlock()
	}
	index = p.ready[dropped]
	p.ready = p.ready[:0]
	return index, dropped, true
}

// release returns a consumer-owned slot to the free queue.
func (p *slotPool) release(index int) {
	p.freeMu.Lock()
	p.free = append(p.free, index)
	p.freeMu.Unlock()
}

// drainFree removes and returns all free slots for re-enqueueing with the
// driver.
func (p *slotPool) drainFree() []int {
	p.freeMu.Lock()
	defer p.freeMu.Unlock()
	if len(p.free) == 0 {
		return nil
	}
	out := p.free
	p.free = nil
	return out
}

// close wakes any blocked consumer; takeLatest fails from then on.
func (p *slotPool) close() {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
}

// queueLens reports the current ready and free queue lengths.
func (p *slotPool) queueLens() (ready, free int) {
	p.mu.Lock()
	ready = len(p.ready)
	p.mu.Unlock()
	p.freeMu.Lock()
	free = len(p.free)
	p.freeMu.Unlock()
	return ready, free
}

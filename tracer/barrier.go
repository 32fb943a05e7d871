package tracer

import (
	"sync"
	"sync/atomic"
)

// A Barrier is a reusable cyclic barrier for the frame's thread team. The
// team is created once per frame and rejoined at every phase boundary; a
// one-party barrier never blocks, which is how the single-thread tracer
// variant elides synchronization.
type Barrier struct {
	mu      sync.Mutex
	cond    *sync.Cond
	parties int
	waiting int
	phase   uint64
}

func NewBarrier(parties int) *Barrier {
	b := &Barrier{parties: parties}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Await blocks until all parties have arrived.
func (b *Barrier) Await() {
	if b.parties == 1 {
		return
	}

	b.mu.Lock()
	phase := b.phase
	b.waiting++
	if b.waiting == b.parties {
		b.waiting = 0
		b.phase++
		b.cond.Broadcast()
		b.mu.Unlock()
		return
	}
	for phase == b.phase {
		b.cond.Wait()
	}
	b.mu.Unlock()
}

// ThreadStatus is a per-thread flag set polled between barriers to decide
// whether any thread still holds work for the current domain.
type ThreadStatus struct {
	flags []int32
}

func NewThreadStatus(numThreads int) *ThreadStatus {
	return &ThreadStatus{flags: make([]int32, numThreads)}
}

func (t *ThreadStatus) Set(tid int)   { atomic.StoreInt32(&t.flags[tid], 1) }
func (t *ThreadStatus) Clear(tid int) { atomic.StoreInt32(&t.flags[tid], 0) }

func (t *ThreadStatus) IsAnySet() bool {
	for i := range t.flags {
		if atomic.LoadInt32(&t.flags[i]) != 0 {
			return true
		}
	}
	return false
}

package tracer

import "github.com/hyungman/SpRay/scene"

const arenaSlabSize = 4096

// An Arena is a bump allocator for one bounce depth. Allocation appends
// into fixed-size slabs so returned pointers stay stable; Reset retains
// the slabs and rewinds the cursor. Two arenas per thread swap roles at
// each depth barrier: inputs of bounce k come from memIn, outputs for
// bounce k+1 go to memOut.
type Arena struct {
	raySlabs   [][]Ray
	isectSlabs [][]scene.Intersection
}

// AllocRay returns a zeroed ray owned by the arena.
func (a *Arena) AllocRay() *Ray {
	n := len(a.raySlabs)
	if n == 0 || len(a.raySlabs[n-1]) == cap(a.raySlabs[n-1]) {
		a.raySlabs = append(a.raySlabs, make([]Ray, 0, arenaSlabSize))
		n++
	}
	slab := &a.raySlabs[n-1]
	*slab = append(*slab, Ray{})
	return &(*slab)[len(*slab)-1]
}

// AllocRays returns a contiguous block of count zeroed rays. The block
// lives in its own slab so it stays contiguous regardless of count.
func (a *Arena) AllocRays(count int) []Ray {
	block := make([]Ray, count)
	a.raySlabs = append(a.raySlabs, block)
	return block
}

// AllocIntersection returns a zeroed intersection record.
func (a *Arena) AllocIntersection() *scene.Intersection {
	n := len(a.isectSlabs)
	if n == 0 || len(a.isectSlabs[n-1]) == cap(a.isectSlabs[n-1]) {
		a.isectSlabs = append(a.isectSlabs, make([]scene.Intersection, 0, arenaSlabSize))
		n++
	}
	slab := &a.isectSlabs[n-1]
	*slab = append(*slab, scene.Intersection{})
	return &(*slab)[len(*slab)-1]
}

// Reset rewinds the arena, keeping one slab of each kind for reuse.
func (a *Arena) Reset() {
	if len(a.raySlabs) > 1 {
		a.raySlabs = a.raySlabs[:1]
	}
	if len(a.raySlabs) == 1 {
		a.raySlabs[0] = a.raySlabs[0][:0]
	}
	if len(a.isectSlabs) > 1 {
		a.isectSlabs = a.isectSlabs[:1]
	}
	if len(a.isectSlabs) == 1 {
		a.isectSlabs[0] = a.isectSlabs[0][:0]
	}
}

// ArenaPair is the per-thread in/out arena set.
type ArenaPair struct {
	In  *Arena
	Out *Arena
}

func NewArenaPair() ArenaPair {
	return ArenaPair{In: &Arena{}, Out: &Arena{}}
}

// ResetAndSwap rewinds the input arena and swaps roles for the next depth.
func (p *ArenaPair) ResetAndSwap() {
	p.In.Reset()
	p.In, p.Out = p.Out, p.In
}

// ResetAll rewinds both arenas at frame start.
func (p *ArenaPair) ResetAll() {
	p.In.Reset()
	p.Out.Reset()
}

package scene

import (
	"sort"

	"github.com/hyungman/SpRay/types"
)

// Each bvhNode takes one slot in a flat array. Interior nodes store the
// index of their right child (the left child is adjacent); leaves store a
// primitive range.
type bvhNode struct {
	bounds types.Aabb

	// right > 0 for interior nodes. For leaves, start/count index the
	// ordered primitive list.
	right int32
	start int32
	count int32
}

type bvh struct {
	nodes []bvhNode
	prims []int32 // primitive ids ordered by the build
}

const bvhLeafSize = 4

type bvhPrim struct {
	id     int32
	bounds types.Aabb
	center types.Vec3
}

// buildBvh partitions primitives by median split along the widest axis.
func buildBvh(prims []bvhPrim) bvh {
	b := bvh{}
	if len(prims) == 0 {
		return b
	}
	b.prims = make([]int32, 0, len(prims))
	b.build(prims)
	return b
}

func (b *bvh) build(work []bvhPrim) int32 {
	bounds := types.NewAabb()
	for i := range work {
		bounds.UnionAabb(work[i].bounds)
	}

	nodeIndex := int32(len(b.nodes))
	b.nodes = append(b.nodes, bvhNode{bounds: bounds})

	if len(work) <= bvhLeafSize {
		start := int32(len(b.prims))
		for i := range work {
			b.prims = append(b.prims, work[i].id)
		}
		b.nodes[nodeIndex].start = start
		b.nodes[nodeIndex].count = int32(len(work))
		return nodeIndex
	}

	extent := bounds.Extent()
	axis := 0
	if extent[1] > extent[axis] {
		axis = 1
	}
	if extent[2] > extent[axis] {
		axis = 2
	}

	sort.Slice(work, func(i, j int) bool {
		return work[i].center[axis] < work[j].center[axis]
	})
	mid := len(work) / 2

	b.build(work[:mid])
	right := b.build(work[mid:])
	b.nodes[nodeIndex].right = right
	return nodeIndex
}

// traverse walks the tree depth first, left child before right child
// regardless of ray direction, invoking test for every primitive
// in a leaf whose box overlaps the shrinking segment. test returns the hit
// distance when it tightened *maxT.
func (b *bvh) traverse(org, dir types.Vec3, tnear float32, maxT *float32, test func(prim int32, maxT float32) (float32, bool)) {
	if len(b.nodes) == 0 {
		return
	}

	var stack [64]int32
	sp := 0
	stack[sp] = 0
	sp++

	for sp > 0 {
		sp--
		ni := stack[sp]
		node := &b.nodes[ni]

		if _, ok := node.bounds.IntersectRay(org, dir, tnear, *maxT); !ok {
			continue
		}

		if node.right == 0 { // leaf
			for i := node.start; i < node.start+node.count; i++ {
				if t, ok := test(b.prims[i], *maxT); ok && t < *maxT {
					*maxT = t
				}
			}
			continue
		}

		stack[sp] = node.right
		sp++
		stack[sp] = ni + 1
		sp++
	}
}

// traverseAny stops at the first primitive hit inside (tnear, tfar).
func (b *bvh) traverseAny(org, dir types.Vec3, tnear, tfar float32, test func(prim int32, maxT float32) bool) bool {
	if len(b.nodes) == 0 {
		return false
	}

	var stack [64]int32
	sp := 0
	stack[sp] = 0
	sp++

	for sp > 0 {
		sp--
		ni := stack[sp]
		node := &b.nodes[ni]

		if _, ok := node.bounds.IntersectRay(org, dir, tnear, tfar); !ok {
			continue
		}

		if node.right == 0 {
			for i := node.start; i < node.start+node.count; i++ {
				if test(b.prims[i], tfar) {
					return true
				}
			}
			continue
		}

		stack[sp] = node.right
		sp++
		stack[sp] = ni + 1
		sp++
	}
	return false
}

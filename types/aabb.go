package types

import "math"

// FloatInf is the closest-hit sentinel used throughout the ray pipeline.
var FloatInf = float32(math.Inf(1))

// An axis-aligned bounding box.
type Aabb struct {
	Min Vec3
	Max Vec3
}

// Create an inverted bounding box that unions to any point.
func NewAabb() Aabb {
	return Aabb{
		Min: Vec3{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32},
		Max: Vec3{-math.MaxFloat32, -math.MaxFloat32, -math.MaxFloat32},
	}
}

// Grow the box to include a point.
func (b *Aabb) Union(p Vec3) {
	b.Min = MinVec3(b.Min, p)
	b.Max = MaxVec3(b.Max, p)
}

// Grow the box to include another box.
func (b *Aabb) UnionAabb(o Aabb) {
	b.Min = MinVec3(b.Min, o.Min)
	b.Max = MaxVec3(b.Max, o.Max)
}

// Get the box center point.
func (b Aabb) Center() Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Get the box extent.
func (b Aabb) Extent() Vec3 {
	return b.Max.Sub(b.Min)
}

// True if the box contains at least one point.
func (b Aabb) Valid() bool {
	return b.Min[0] <= b.Max[0] && b.Min[1] <= b.Max[1] && b.Min[2] <= b.Max[2]
}

// Slab test against a ray segment. Returns the entry distance and whether
// the segment [tnear, tfar] overlaps the box. A ray starting inside the box
// reports entry distance tnear.
func (b Aabb) IntersectRay(org, dir Vec3, tnear, tfar float32) (float32, bool) {
	t0, t1 := tnear, tfar

	for axis := 0; axis < 3; axis++ {
		d := dir[axis]
		if d == 0 {
			if org[axis] < b.Min[axis] || org[axis] > b.Max[axis] {
				return 0, false
			}
			continue
		}
		inv := 1.0 / d
		near := (b.Min[axis] - org[axis]) * inv
		far := (b.Max[axis] - org[axis]) * inv
		if near > far {
			near, far = far, near
		}
		if near > t0 {
			t0 = near
		}
		if far < t1 {
			t1 = far
		}
		if t0 > t1 {
			return 0, false
		}
	}
	return t0, true
}

package scene

import "github.com/hyungman/SpRay/types"

// An Intersection is the closest-hit record produced by testing a ray
// against a loaded domain.
type Intersection struct {
	T float32

	Ng types.Vec3 // geometric normal (unnormalized)
	Ns types.Vec3 // shading normal

	U, V float32

	GeomID uint32
	PrimID uint32

	// Interpolated vertex color, or types.InvalidColor for analytic
	// shapes and meshes without vertex colors.
	Color uint32

	Material Material
}

// Geometry holds the loaded, world-space surface data of one domain: the
// merged triangle buffers of its models, its analytic shapes and the BVH
// over both. It is the unit pinned by the out-of-core cache while
// intersection is in progress.
type Geometry struct {
	domain *Domain

	verts  []types.Vec3
	colors []uint32 // per-vertex packed colors; nil when absent
	faces  []int32  // 3 indices per triangle
	faceMaterial []int32

	materials []Material
	shapes    []*Sphere

	bvh bvh

	bounds types.Aabb
}

// NumTriangles in the merged mesh.
func (g *Geometry) NumTriangles() int { return len(g.faces) / 3 }

// Bounds of the loaded geometry.
func (g *Geometry) Bounds() types.Aabb { return g.bounds }

// Intersect finds the closest hit within (tnear, tfar). The returned record
// is valid only when the second result is true.
func (g *Geometry) Intersect(org, dir types.Vec3, tnear, tfar float32) (Intersection, bool) {
	var isect Intersection
	isect.T = tfar
	hit := false

	g.bvh.traverse(org, dir, tnear, &isect.T, func(prim int32, maxT float32) (float32, bool) {
		t, ok := g.intersectPrim(prim, org, dir, tnear, maxT, &isect)
		return t, ok
	})

	if isect.T < tfar {
		hit = true
	}
	return isect, hit
}

// Occluded reports whether anything blocks the ray within (tnear, tfar).
func (g *Geometry) Occluded(org, dir types.Vec3, tnear, tfar float32) bool {
	return g.bvh.traverseAny(org, dir, tnear, tfar, func(prim int32, maxT float32) bool {
		var scratch Intersection
		_, ok := g.intersectPrim(prim, org, dir, tnear, maxT, &scratch)
		return ok
	})
}

// intersectPrim tests one primitive and fills the record on a closer hit.
func (g *Geometry) intersectPrim(prim int32, org, dir types.Vec3, tnear, tfar float32, out *Intersection) (float32, bool) {
	numTris := int32(g.NumTriangles())

	if prim < numTris {
		i0 := g.faces[prim*3]
		i1 := g.faces[prim*3+1]
		i2 := g.faces[prim*3+2]
		v0, v1, v2 := g.verts[i0], g.verts[i1], g.verts[i2]

		t, u, v, ok := intersectTriangle(org, dir, v0, v1, v2, tnear, tfar)
		if !ok {
			return 0, false
		}

		e1 := v1.Sub(v0)
		e2 := v2.Sub(v0)
		ng := e1.Cross(e2)

		out.T = t
		out.Ng = ng
		out.Ns = ng.Normalize()
		out.U = u
		out.V = v
		out.GeomID = 0
		out.PrimID = uint32(prim)
		out.Material = g.materials[g.faceMaterial[prim]]
		if g.colors != nil {
			out.Color = interpolateColor(g.colors[i0], g.colors[i1], g.colors[i2], u, v)
		} else {
			out.Color = types.InvalidColor
		}
		return t, true
	}

	sh := g.shapes[prim-numTris]
	t, ok := sh.Intersect(org, dir, tnear, tfar)
	if !ok {
		return 0, false
	}

	p := org.Add(dir.Mul(t))
	n := sh.Normal(p)

	out.T = t
	out.Ng = n
	out.Ns = n
	out.U = 0
	out.V = 0
	out.GeomID = 1
	out.PrimID = uint32(prim - numTris)
	out.Material = sh.Material
	out.Color = types.InvalidColor
	return t, true
}

// Moller-Trumbore triangle test.
func intersectTriangle(org, dir, v0, v1, v2 types.Vec3, tnear, tfar float32) (t, u, v float32, ok bool) {
	e1 := v1.Sub(v0)
	e2 := v2.Sub(v0)

	p := dir.Cross(e2)
	det := e1.Dot(p)
	if det > -1e-9 && det < 1e-9 {
		return 0, 0, 0, false
	}
	invDet := 1.0 / det

	tv := org.Sub(v0)
	u = tv.Dot(p) * invDet
	if u < 0 || u > 1 {
		return 0, 0, 0, false
	}

	q := tv.Cross(e1)
	v = dir.Dot(q) * invDet
	if v < 0 || u+v > 1 {
		return 0, 0, 0, false
	}

	t = e2.Dot(q) * invDet
	if t <= tnear || t >= tfar {
		return 0, 0, 0, false
	}
	return t, u, v, true
}

func interpolateColor(c0, c1, c2 uint32, u, v float32) uint32 {
	w := 1.0 - u - v
	rgb0 := types.UnpackColor(c0)
	rgb1 := types.UnpackColor(c1)
	rgb2 := types.UnpackColor(c2)
	return types.PackColor(rgb0.Mul(w).Add(rgb1.Mul(u)).Add(rgb2.Mul(v)))
}

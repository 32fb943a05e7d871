package scene

import (
	"math"

	"github.com/hyungman/SpRay/types"
)

// An analytic sphere shape.
type Sphere struct {
	Center   types.Vec3
	Radius   float32
	Material Material
}

// Bounds of the sphere.
func (s *Sphere) Bounds() types.Aabb {
	r := types.Vec3{s.Radius, s.Radius, s.Radius}
	return types.Aabb{Min: s.Center.Sub(r), Max: s.Center.Add(r)}
}

// Intersect the sphere with a ray segment. Returns the hit distance and
// whether a hit occurred within (tnear, tfar).
func (s *Sphere) Intersect(org, dir types.Vec3, tnear, tfar float32) (float32, bool) {
	oc := org.Sub(s.Center)
	a := dir.Dot(dir)
	halfB := oc.Dot(dir)
	c := oc.Dot(oc) - s.Radius*s.Radius

	disc := halfB*halfB - a*c
	if disc < 0 {
		return 0, false
	}
	sqrtD := float32(math.Sqrt(float64(disc)))

	t := (-halfB - sqrtD) / a
	if t <= tnear || t >= tfar {
		t = (-halfB + sqrtD) / a
		if t <= tnear || t >= tfar {
			return 0, false
		}
	}
	return t, true
}

// Normal at a surface point.
func (s *Sphere) Normal(p types.Vec3) types.Vec3 {
	return p.Sub(s.Center).Normalize()
}

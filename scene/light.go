package scene

import "github.com/hyungman/SpRay/types"

// Light is a sampled light source.
type Light interface {
	// True for area-like lights that require multiple samples per hit.
	IsAreaLight() bool

	// Sample a direction toward the light from pos. Returns the radiance
	// arriving along wi and the pdf of the sample.
	Sample(pos types.Vec3) (radiance, wi types.Vec3, pdf float32)

	// SampleArea draws one hemisphere sample about the shading normal.
	// Only meaningful for area-like lights.
	SampleArea(s *Sampler, n types.Vec3) (radiance, wi types.Vec3, pdf float32)
}

// A point light.
type PointLight struct {
	Position types.Vec3
	Radiance types.Vec3
}

func (l *PointLight) IsAreaLight() bool { return false }

func (l *PointLight) Sample(pos types.Vec3) (types.Vec3, types.Vec3, float32) {
	wi := l.Position.Sub(pos).Normalize()
	return l.Radiance, wi, 1.0
}

func (l *PointLight) SampleArea(s *Sampler, n types.Vec3) (types.Vec3, types.Vec3, float32) {
	wi := l.Position.Sub(types.Vec3{}).Normalize()
	return l.Radiance, wi, 1.0
}

// A diffuse hemisphere light: uniform radiance arriving from the upper
// hemisphere around the shading normal.
type DiffuseHemisphereLight struct {
	Radiance   types.Vec3
	NumSamples int
}

func (l *DiffuseHemisphereLight) IsAreaLight() bool { return true }

func (l *DiffuseHemisphereLight) Sample(pos types.Vec3) (types.Vec3, types.Vec3, float32) {
	return l.Radiance, types.Vec3{0, 1, 0}, 1.0
}

func (l *DiffuseHemisphereLight) SampleArea(s *Sampler, n types.Vec3) (types.Vec3, types.Vec3, float32) {
	wi, pdf := s.CosineSampleHemisphere(n)
	return l.Radiance, wi, pdf
}

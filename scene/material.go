package scene

import (
	"math"

	"github.com/hyungman/SpRay/types"
)

// Scatter sample classification for delta materials.
const (
	SampleReflection uint32 = 1 << iota
	SampleTransmission
)

// Material describes how a surface scatters light. Matte surfaces sample a
// cosine-weighted hemisphere; metal and dielectric surfaces are delta
// distributions that reflect or transmit deterministically.
type Material interface {
	// Albedo of the surface, used when the mesh carries no vertex colors.
	Albedo() types.Vec3

	// True for delta (mirror-like) distributions. Delta surfaces receive
	// no direct-lighting shadow rays.
	IsDelta() bool

	// SampleRandom draws a scattered direction about the shading normal
	// with its pdf. Only meaningful for non-delta materials.
	SampleRandom(n types.Vec3, s *Sampler) (wi types.Vec3, pdf float32)

	// SampleDelta evaluates the delta distribution for an incoming
	// direction. fr is the reflection probability; wt the transmitted
	// direction when transmission is flagged.
	SampleDelta(entering bool, cosThetaI float32, wo, n types.Vec3) (sampleType uint32, fr float32, wt types.Vec3)
}

// A lambertian surface.
type Matte struct {
	Kd types.Vec3
}

// Create a matte material with the default gray albedo.
func DefaultMatte() *Matte {
	return &Matte{Kd: types.Vec3{0.7, 0.7, 0.7}}
}

func (m *Matte) Albedo() types.Vec3 { return m.Kd }
func (m *Matte) IsDelta() bool      { return false }

func (m *Matte) SampleRandom(n types.Vec3, s *Sampler) (types.Vec3, float32) {
	return s.CosineSampleHemisphere(n)
}

func (m *Matte) SampleDelta(entering bool, cosThetaI float32, wo, n types.Vec3) (uint32, float32, types.Vec3) {
	return 0, 0, types.Vec3{}
}

// A fuzzy mirror.
type Metal struct {
	Ka   types.Vec3
	Fuzz float32
}

func (m *Metal) Albedo() types.Vec3 { return m.Ka }
func (m *Metal) IsDelta() bool      { return true }

func (m *Metal) SampleRandom(n types.Vec3, s *Sampler) (types.Vec3, float32) {
	return s.CosineSampleHemisphere(n)
}

func (m *Metal) SampleDelta(entering bool, cosThetaI float32, wo, n types.Vec3) (uint32, float32, types.Vec3) {
	return SampleReflection, 1.0, types.Vec3{}
}

// A clear dielectric with Schlick fresnel.
type Dielectric struct {
	Index float32
}

func (m *Dielectric) Albedo() types.Vec3 { return types.Vec3{1, 1, 1} }
func (m *Dielectric) IsDelta() bool      { return true }

func (m *Dielectric) SampleRandom(n types.Vec3, s *Sampler) (types.Vec3, float32) {
	return s.CosineSampleHemisphere(n)
}

func (m *Dielectric) SampleDelta(entering bool, cosThetaI float32, wo, n types.Vec3) (uint32, float32, types.Vec3) {
	eta := m.Index
	if eta == 0 {
		eta = 1.5
	}
	var etaI, etaT float32 = 1.0, eta
	if !entering {
		etaI, etaT = eta, 1.0
	}

	ratio := etaI / etaT
	sin2ThetaI := float32(math.Max(0, float64(1.0-cosThetaI*cosThetaI)))
	sin2ThetaT := ratio * ratio * sin2ThetaI

	// Total internal reflection.
	if sin2ThetaT >= 1.0 {
		return SampleReflection, 1.0, types.Vec3{}
	}

	cosThetaT := float32(math.Sqrt(float64(1.0 - sin2ThetaT)))
	fr := schlick(cosThetaI, etaI, etaT)

	wi := wo.Neg()
	wt := wi.Mul(ratio).Add(n.Mul(ratio*cosThetaI - cosThetaT)).Normalize()
	return SampleTransmission, fr, wt
}

func schlick(cosTheta, etaI, etaT float32) float32 {
	r0 := (etaI - etaT) / (etaI + etaT)
	r0 *= r0
	x := 1.0 - cosTheta
	return r0 + (1.0-r0)*x*x*x*x*x
}

// Blinn-Phong direct lighting: diffuse plus a specular lobe shared by the
// PT and AO shaders.
func BlinnPhong(cosTheta float32, kd, ks types.Vec3, shininess float32, lightRadiance, wi, n, wo types.Vec3) types.Vec3 {
	diffuse := kd.Mul(oneOverPi * cosTheta)

	half := wi.Add(wo).Normalize()
	nDotH := n.Dot(half)
	if nDotH < 0 {
		nDotH = 0
	}
	spec := ks.Mul(float32(math.Pow(float64(nDotH), float64(shininess))))

	return diffuse.Add(spec).MulVec(lightRadiance)
}

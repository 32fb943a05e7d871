package scene

import (
	"math"

	"github.com/hyungman/SpRay/types"
)

const oneOverPi = float32(1.0 / math.Pi)

// Sampler is a small counter-based random number generator. Sequences are
// fully determined by the seed, so shading results are invariant under ray
// reordering as long as seeds derive from stable identifiers (sample id and
// bounce depth).
type Sampler struct {
	state uint32
}

// Create a sampler from a seed. The seed is scrambled so that nearby seeds
// produce uncorrelated streams.
func NewSampler(seed uint32) Sampler {
	return Sampler{state: hash32(seed)}
}

// Get1D returns the next sample in [0, 1).
func (s *Sampler) Get1D() float32 {
	s.state = hash32(s.state)
	// Keep 24 mantissa bits so the result stays strictly below one.
	return float32(s.state>>8) * (1.0 / 16777216.0)
}

// Get2D returns the next two samples in [0, 1).
func (s *Sampler) Get2D() (float32, float32) {
	a := s.Get1D()
	b := s.Get1D()
	return a, b
}

// CosineSampleHemisphere returns a direction about n with cosine-weighted
// density and its pdf.
func (s *Sampler) CosineSampleHemisphere(n types.Vec3) (types.Vec3, float32) {
	u1, u2 := s.Get2D()

	r := float32(math.Sqrt(float64(u1)))
	phi := 2.0 * math.Pi * float64(u2)

	x := r * float32(math.Cos(phi))
	y := r * float32(math.Sin(phi))
	z := float32(math.Sqrt(math.Max(0, float64(1.0-u1))))

	t, b := orthonormalBasis(n)
	dir := t.Mul(x).Add(b.Mul(y)).Add(n.Mul(z)).Normalize()

	pdf := z * oneOverPi
	if pdf <= 0 {
		pdf = 1e-6
	}
	return dir, pdf
}

func orthonormalBasis(n types.Vec3) (types.Vec3, types.Vec3) {
	var t types.Vec3
	if absf(n[0]) > 0.9 {
		t = types.Vec3{0, 1, 0}
	} else {
		t = types.Vec3{1, 0, 0}
	}
	b := n.Cross(t).Normalize()
	t = b.Cross(n)
	return t, b
}

func absf(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

// Finalizing 32-bit hash (Wang).
func hash32(v uint32) uint32 {
	v = (v ^ 61) ^ (v >> 16)
	v = v + (v << 3)
	v = v ^ (v >> 4)
	v = v * 0x27d4eb2d
	v = v ^ (v >> 15)
	return v
}

package tracer

import (
	"github.com/hyungman/SpRay/scene"
	"github.com/hyungman/SpRay/types"
)

// A Shader converts a confirmed closest hit into shadow and secondary
// rays. Implementations must be re-entrant and derive all randomness from
// (sample id, depth) so results are invariant under ray reordering.
//
// Secondary rays go to rq unless the out-of-core virtual depth window
// saturates, in which case they go to pendingQ with a reset window (a nil
// pendingQ disables the window, which is the in-situ behavior).
type Shader interface {
	IsAo() bool
	NumLights() int
	Shade(domainID int, rayin *Ray, isect *scene.Intersection, mem *Arena, sq, rq, pendingQ *[]*Ray, rayDepth int)
}

// surfaceRadiance picks the interpolated vertex color when present and the
// material albedo otherwise.
func surfaceRadiance(isect *scene.Intersection) types.Vec3 {
	if isect.Color != types.InvalidColor {
		return types.UnpackColor(isect.Color)
	}
	return isect.Material.Albedo()
}

// genSecondary allocates and routes one continuation ray, honoring the
// virtual depth window.
func genSecondary(rayin *Ray, org, dir, w types.Vec3, t float32, mem *Arena, rq, pendingQ *[]*Ray) {
	r2 := mem.AllocRay()

	if pendingQ == nil {
		makeSecondary(rayin, org, dir, w, t, 0, r2)
		*rq = append(*rq, r2)
		return
	}

	nextVirtualDepth := rayin.Depth + 1
	if nextVirtualDepth == historySize {
		makeSecondary(rayin, org, dir, w, t, 0, r2)
		*pendingQ = append(*pendingQ, r2)
	} else {
		makeSecondary(rayin, org, dir, w, t, nextVirtualDepth, r2)
		*rq = append(*rq, r2)
	}
}

// PTShader performs direct lighting with Blinn-Phong shading plus path
// continuation.
type PTShader struct {
	lights    []scene.Light
	bounces   int
	samples   int // samples for area lights
	ks        types.Vec3
	shininess float32
}

func NewPTShader(lights []scene.Light, bounces, areaSamples int, ks types.Vec3, shininess float32) *PTShader {
	return &PTShader{
		lights:    lights,
		bounces:   bounces,
		samples:   areaSamples,
		ks:        ks,
		shininess: shininess,
	}
}

func (s *PTShader) IsAo() bool { return false }

func (s *PTShader) NumLights() int { return len(s.lights) }

func (s *PTShader) Shade(domainID int, rayin *Ray, isect *scene.Intersection, mem *Arena, sq, rq, pendingQ *[]*Ray, rayDepth int) {
	pos := rayin.Org.Add(rayin.Dir.Mul(isect.T))
	surfRadiance := surfaceRadiance(isect)

	normal := isect.Ns
	wo := rayin.Dir.Neg()
	lin := rayin.W

	cosThetaI := wo.Dot(normal)
	entering := cosThetaI > 0
	normalFF := normal
	if !entering {
		normalFF = normal.Neg()
	}
	normalFF = normalFF.Normalize()

	bsdf := isect.Material
	deltaDist := bsdf.IsDelta()

	nextVirtualDepth := rayin.Depth + 1
	nextActualDepth := int(rayin.Depth) + rayDepth + 1

	if DebugChecks && int(nextVirtualDepth) > historySize {
		panic("tracer: virtual depth beyond history window")
	}

	if !deltaDist {
		lightSampler := scene.NewSampler(uint32(rayin.SamID) * uint32(nextActualDepth))

		for l, light := range s.lights {
			if light.IsAreaLight() {
				for i := 0; i < s.samples; i++ {
					radiance, wi, pdf := light.SampleArea(&lightSampler, normalFF)
					if pdf <= 0 {
						continue
					}
					costheta := clampf(normalFF.Dot(wi), 0, 1)
					lr := lin.MulVec(scene.BlinnPhong(costheta, surfRadiance, s.ks, s.shininess, radiance, wi, normalFF, wo)).
						Mul(1.0 / (pdf * float32(s.samples)))
					if lr.HasPositive() {
						shadow := mem.AllocRay()
						makeShadow(rayin, l, pos, wi, lr, isect.T, shadow)
						*sq = append(*sq, shadow)
					}
				}
				continue
			}

			radiance, wi, pdf := light.Sample(pos)
			if pdf <= 0 {
				continue
			}
			costheta := clampf(normalFF.Dot(wi), 0, 1)
			lr := lin.MulVec(scene.BlinnPhong(costheta, surfRadiance, s.ks, s.shininess, radiance, wi, normalFF, wo)).
				Mul(1.0 / pdf)
			if lr.HasPositive() {
				shadow := mem.AllocRay()
				makeShadow(rayin, l, pos, wi, lr, isect.T, shadow)
				*sq = append(*sq, shadow)
			}
		}
	}

	if nextActualDepth < s.bounces {
		wo = wo.Normalize()

		if deltaDist {
			shadeDelta(rayin, bsdf, pos, wo, normalFF, lin, cosThetaI, entering, isect.T, mem, rq, pendingQ)
		} else {
			sampler := scene.NewSampler(uint32(rayin.SamID) * uint32(nextActualDepth))
			wi, pdf := bsdf.SampleRandom(normalFF, &sampler)
			costheta := clampf(normalFF.Dot(wi), 0, 1)
			lr := lin.MulVec(surfRadiance).Mul(oneOverPi * costheta / pdf)
			if lr.HasPositive() {
				genSecondary(rayin, pos, wi, lr, isect.T, mem, rq, pendingQ)
			}
		}
	}
}

// AOShader estimates ambient occlusion: every hemisphere sample becomes a
// shadow ray; continuation follows the same path rules as PT.
type AOShader struct {
	bounces int
	samples int
	ks        types.Vec3
	shininess float32
}

func NewAOShader(bounces, aoSamples int, ks types.Vec3, shininess float32) *AOShader {
	return &AOShader{bounces: bounces, samples: aoSamples, ks: ks, shininess: shininess}
}

func (s *AOShader) IsAo() bool { return true }

// NumLights is the occlusion slot count: one per AO sample.
func (s *AOShader) NumLights() int { return s.samples }

func (s *AOShader) Shade(domainID int, rayin *Ray, isect *scene.Intersection, mem *Arena, sq, rq, pendingQ *[]*Ray, rayDepth int) {
	pos := rayin.Org.Add(rayin.Dir.Mul(isect.T))
	surfRadiance := surfaceRadiance(isect)

	normal := isect.Ns
	wo := rayin.Dir.Neg()
	lin := rayin.W

	cosThetaI := wo.Dot(normal)
	entering := cosThetaI > 0
	normalFF := normal
	if !entering {
		normalFF = normal.Neg()
	}
	normalFF = normalFF.Normalize()

	bsdf := isect.Material
	aoWeight := 1.0 / float32(s.samples)

	for l := 0; l < s.samples; l++ {
		sampler := scene.NewSampler(uint32(rayin.SamID) * uint32(rayDepth+1) * uint32(l+2))
		wi, pdf := bsdf.SampleRandom(normalFF, &sampler)

		costheta := clampf(normalFF.Dot(wi), 0, 1)
		lr := lin.MulVec(surfRadiance).Mul(oneOverPi * costheta * aoWeight / pdf)
		if lr.HasPositive() {
			shadow := mem.AllocRay()
			makeShadow(rayin, l, pos, wi, lr, isect.T, shadow)
			*sq = append(*sq, shadow)
		}
	}

	nextRayDepth := rayDepth + 1
	if DebugChecks && rayDepth >= s.bounces {
		panic("tracer: shading past bounce budget")
	}

	if nextRayDepth < s.bounces {
		wo = wo.Normalize()

		if bsdf.IsDelta() {
			shadeDelta(rayin, bsdf, pos, wo, normalFF, lin, cosThetaI, entering, isect.T, mem, rq, pendingQ)
		} else {
			sampler := scene.NewSampler(uint32(rayin.SamID) * uint32(nextRayDepth))
			wi, pdf := bsdf.SampleRandom(normalFF, &sampler)
			costheta := clampf(normalFF.Dot(wi), 0, 1)
			lr := lin.MulVec(surfRadiance).Mul(oneOverPi * costheta / pdf)
			if lr.HasPositive() {
				genSecondary(rayin, pos, wi, lr, isect.T, mem, rq, pendingQ)
			}
		}
	}
}

// shadeDelta handles mirror and dielectric continuation shared by both
// shaders.
func shadeDelta(rayin *Ray, bsdf scene.Material, pos, wo, normalFF types.Vec3, lin types.Vec3, cosThetaI float32, entering bool, hitT float32, mem *Arena, rq, pendingQ *[]*Ray) {
	if cosThetaI == 0 {
		return
	}
	cosThetaI = clampf(cosThetaI, -1, 1)
	absCosThetaI := cosThetaI
	if absCosThetaI < 0 {
		absCosThetaI = -absCosThetaI
	}
	if !entering {
		cosThetaI = absCosThetaI
	}

	sampleType, fr, wt := bsdf.SampleDelta(entering, cosThetaI, wo, normalFF)

	if sampleType&scene.SampleReflection != 0 {
		wi := types.Reflect(wo, normalFF).Normalize()
		lr := lin.Mul(fr / absCosThetaI)
		if lr.HasPositive() {
			genSecondary(rayin, pos, wi, lr, hitT, mem, rq, pendingQ)
		}
	}

	if sampleType&scene.SampleTransmission != 0 {
		wi := wt.Normalize()
		lr := lin.Mul((1.0 - fr) / absCosThetaI)
		if lr.HasPositive() {
			genSecondary(rayin, pos, wi, lr, hitT, mem, rq, pendingQ)
		}
	}
}

const oneOverPi = float32(0.3183098861837907)

func clampf(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Package tracer implements the distributed ray-scheduling core: per-depth
// queues, the shared visibility buffer, work-stats driven termination and
// the in-situ and out-of-core frame orchestrators.
package tracer

import (
	"encoding/binary"
	"math"

	"github.com/hyungman/SpRay/types"
)

const (
	// rayEpsilon offsets secondary ray origins off their surfaces.
	rayEpsilon float32 = 1e-4

	// rayDomainListSize caps the number of domains a single ray may be
	// queued into per traversal step.
	rayDomainListSize = 8

	// historySize bounds the out-of-core virtual depth window.
	historySize = 8
)

// DebugChecks gates the depth-loop invariant assertions. Enabling it must
// not change control flow on valid inputs.
var DebugChecks = false

// A Ray is the unit of scheduled work. Rays are value-copied across rank
// boundaries and referenced by pointer within a rank; a ray lives exactly
// one bounce depth in its arena.
type Ray struct {
	Org   types.Vec3
	PixID int32

	Dir   types.Vec3
	SamID int32

	W     types.Vec3 // carried throughput
	Depth int32      // out-of-core virtual depth within the history window

	T        float32 // best distance bound known to the ray
	Light    int32   // light sample index for shadow rays; -1 otherwise
	Occluded int32
	Seq      uint32 // per-sender sequence, part of the closest-hit tie-break
}

// raySize is the packed wire size of one ray record in bytes.
const raySize = 64

// Encode packs the ray into buf (little endian, word units).
func (r *Ray) Encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:], math.Float32bits(r.Org[0]))
	binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(r.Org[1]))
	binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(r.Org[2]))
	binary.LittleEndian.PutUint32(buf[12:], uint32(r.PixID))
	binary.LittleEndian.PutUint32(buf[16:], math.Float32bits(r.Dir[0]))
	binary.LittleEndian.PutUint32(buf[20:], math.Float32bits(r.Dir[1]))
	binary.LittleEndian.PutUint32(buf[24:], math.Float32bits(r.Dir[2]))
	binary.LittleEndian.PutUint32(buf[28:], uint32(r.SamID))
	binary.LittleEndian.PutUint32(buf[32:], math.Float32bits(r.W[0]))
	binary.LittleEndian.PutUint32(buf[36:], math.Float32bits(r.W[1]))
	binary.LittleEndian.PutUint32(buf[40:], math.Float32bits(r.W[2]))
	binary.LittleEndian.PutUint32(buf[44:], uint32(r.Depth))
	binary.LittleEndian.PutUint32(buf[48:], math.Float32bits(r.T))
	binary.LittleEndian.PutUint32(buf[52:], uint32(r.Light))
	binary.LittleEndian.PutUint32(buf[56:], uint32(r.Occluded))
	binary.LittleEndian.PutUint32(buf[60:], r.Seq)
}

// Decode unpacks a ray from buf.
func (r *Ray) Decode(buf []byte) {
	r.Org[0] = math.Float32frombits(binary.LittleEndian.Uint32(buf[0:]))
	r.Org[1] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4:]))
	r.Org[2] = math.Float32frombits(binary.LittleEndian.Uint32(buf[8:]))
	r.PixID = int32(binary.LittleEndian.Uint32(buf[12:]))
	r.Dir[0] = math.Float32frombits(binary.LittleEndian.Uint32(buf[16:]))
	r.Dir[1] = math.Float32frombits(binary.LittleEndian.Uint32(buf[20:]))
	r.Dir[2] = math.Float32frombits(binary.LittleEndian.Uint32(buf[24:]))
	r.SamID = int32(binary.LittleEndian.Uint32(buf[28:]))
	r.W[0] = math.Float32frombits(binary.LittleEndian.Uint32(buf[32:]))
	r.W[1] = math.Float32frombits(binary.LittleEndian.Uint32(buf[36:]))
	r.W[2] = math.Float32frombits(binary.LittleEndian.Uint32(buf[40:]))
	r.Depth = int32(binary.LittleEndian.Uint32(buf[44:]))
	r.T = math.Float32frombits(binary.LittleEndian.Uint32(buf[48:]))
	r.Light = int32(binary.LittleEndian.Uint32(buf[52:]))
	r.Occluded = int32(binary.LittleEndian.Uint32(buf[56:]))
	r.Seq = binary.LittleEndian.Uint32(buf[60:])
}

// makeShadow derives a shadow ray from a shaded hit.
func makeShadow(parent *Ray, light int, org, dir, w types.Vec3, t float32, out *Ray) {
	out.Org = org.Add(dir.Mul(rayEpsilon))
	out.Dir = dir
	out.W = w
	out.PixID = parent.PixID
	out.SamID = parent.SamID
	out.Light = int32(light)
	out.Depth = parent.Depth
	out.T = t
	out.Occluded = 0
}

// makeSecondary derives a continuation radiance ray from a shaded hit.
func makeSecondary(parent *Ray, org, dir, w types.Vec3, t float32, depth int32, out *Ray) {
	out.Org = org.Add(dir.Mul(rayEpsilon))
	out.Dir = dir
	out.W = w
	out.PixID = parent.PixID
	out.SamID = parent.SamID
	out.Light = -1
	out.Depth = depth
	out.T = t
	out.Occluded = 0
}

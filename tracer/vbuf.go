package tracer

import (
	"math"
	"sync/atomic"

	"github.com/hyungman/SpRay/mpi"
)

// A VBuf holds the authoritative per-sample visibility state for a frame:
// the closest hit distance per sample and the per-(sample, light) occlusion
// bits. Closest-hit words pack the distance together with a deterministic
// tie-break key so that exactly one ray wins a sample even when two hits
// share the same t on different ranks:
//
//	word = float32 bits of t << 32 | source rank << 24 | ray sequence
//
// Non-negative float32 bit patterns order like their values, so uint64
// minimization minimizes (t, rank, seq) lexicographically.
type VBuf struct {
	tbufIn  []uint64
	tbufOut []uint64
	obuf    []uint32

	numSamples      int
	numLightSamples int
}

const infWord = uint64(0x7F800000)<<32 | 0xFFFFFFFF

// packHit builds a closest-hit word for a hit at distance t from a ray.
func packHit(t float32, rank int, seq uint32) uint64 {
	return uint64(math.Float32bits(t))<<32 | uint64(uint32(rank)&0xFF)<<24 | uint64(seq&0xFFFFFF)
}

func unpackT(word uint64) float32 {
	return math.Float32frombits(uint32(word >> 32))
}

// NewVBuf sizes the buffers for numSamples samples and numLightSamples
// occlusion slots per sample.
func NewVBuf(numSamples, numLightSamples int) *VBuf {
	v := &VBuf{
		tbufIn:          make([]uint64, numSamples),
		tbufOut:         make([]uint64, numSamples),
		obuf:            make([]uint32, (numSamples*numLightSamples+31)/32),
		numSamples:      numSamples,
		numLightSamples: numLightSamples,
	}
	v.ResetTBufIn()
	v.ResetTBufOut()
	return v
}

// NumSamples covered by this buffer.
func (v *VBuf) NumSamples() int { return v.numSamples }

// UpdateTBufOut atomically lowers the closest-hit word for samid. Returns
// true iff this ray's hit became the new minimum; the winner is the shading
// candidate until a closer hit displaces it.
func (v *VBuf) UpdateTBufOut(samid int32, t float32, rank int, seq uint32) bool {
	word := packHit(t, rank, seq)
	addr := &v.tbufOut[samid]
	for {
		cur := atomic.LoadUint64(addr)
		if word >= cur {
			return false
		}
		if atomic.CompareAndSwapUint64(addr, cur, word) {
			return true
		}
	}
}

// EqualToTBufOut reports whether this exact hit still owns the sample.
func (v *VBuf) EqualToTBufOut(samid int32, t float32, rank int, seq uint32) bool {
	return atomic.LoadUint64(&v.tbufOut[samid]) == packHit(t, rank, seq)
}

// Correct reports whether a speculative result whose originating hit was
// at distance t is still valid against the reconciled input buffer.
func (v *VBuf) Correct(samid int32, t float32) bool {
	return t <= unpackT(atomic.LoadUint64(&v.tbufIn[samid]))
}

// SetOBuf marks (samid, light) occluded. Monotone: bits never clear within
// a frame.
func (v *VBuf) SetOBuf(samid, light int32) {
	bit := uint32(samid)*uint32(v.numLightSamples) + uint32(light)
	addr := &v.obuf[bit>>5]
	mask := uint32(1) << (bit & 31)
	for {
		cur := atomic.LoadUint32(addr)
		if cur&mask != 0 {
			return
		}
		if atomic.CompareAndSwapUint32(addr, cur, cur|mask) {
			return
		}
	}
}

// Occluded reports the (samid, light) occlusion bit.
func (v *VBuf) Occluded(samid, light int32) bool {
	bit := uint32(samid)*uint32(v.numLightSamples) + uint32(light)
	return atomic.LoadUint32(&v.obuf[bit>>5])&(uint32(1)<<(bit&31)) != 0
}

// CompositeTBuf minimizes the output buffer across ranks. The packed
// tie-break keys make the surviving word identical on every rank.
func (v *VBuf) CompositeTBuf(comm *mpi.Comm) {
	comm.AllreduceMinUint64(v.tbufOut)
}

// CompositeOBuf ORs the occlusion bits across ranks.
func (v *VBuf) CompositeOBuf(comm *mpi.Comm) {
	comm.AllreduceOrUint32(v.obuf)
}

// SwapTBufs publishes the reconciled output as the next depth's input.
func (v *VBuf) SwapTBufs() {
	v.tbufIn, v.tbufOut = v.tbufOut, v.tbufIn
}

// ResetTBufIn reinitializes the input buffer to +inf.
func (v *VBuf) ResetTBufIn() {
	for i := range v.tbufIn {
		v.tbufIn[i] = infWord
	}
}

// ResetTBufOut reinitializes the output buffer to +inf.
func (v *VBuf) ResetTBufOut() {
	for i := range v.tbufOut {
		v.tbufOut[i] = infWord
	}
}

// ResetOBuf clears all occlusion bits.
func (v *VBuf) ResetOBuf() {
	for i := range v.obuf {
		v.obuf[i] = 0
	}
}

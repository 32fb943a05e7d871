package mpi

import (
	"encoding/binary"
	"math"
)

// The collectives below follow a gather-to-root, compute, redistribute
// scheme. Every master goroutine executes the same collective sequence, so
// the per-source FIFO queues in the transport keep steps aligned without
// sequence numbers. All of them are no-ops in a single-rank world.

// ReduceScatterWork element-wise sums an R-length work vector across ranks
// at the root, then hands each rank the world total and its own summed
// entry. This is the per-depth termination collective: a zero world total
// means no rank holds outstanding domain blocks.
func (c *Comm) ReduceScatterWork(work []int64) (worldTotal, rankPortion int64) {
	if c.size == 1 {
		var sum int64
		for _, v := range work {
			sum += v
		}
		return sum, work[0]
	}

	if c.rank == 0 {
		total := make([]int64, len(work))
		copy(total, work)
		for src := 1; src < c.size; src++ {
			msg := c.transport.recvColl(src)
			contrib := decodeInt64s(msg.Payload)
			for i := range total {
				total[i] += contrib[i]
			}
		}

		var sum int64
		for _, v := range total {
			sum += v
		}

		for dest := 1; dest < c.size; dest++ {
			entry := make([]int64, 2)
			entry[0] = sum
			entry[1] = total[dest]
			c.transport.sendColl(dest, tagScatter, encodeInt64s(entry))
		}
		return sum, total[0]
	}

	c.transport.sendColl(0, tagGather, encodeInt64s(work))
	msg := c.transport.recvColl(0)
	entry := decodeInt64s(msg.Payload)
	return entry[0], entry[1]
}

// AllreduceMinUint64 element-wise minimizes buf across ranks, in place.
// Packed closest-hit words order correctly under uint64 comparison.
func (c *Comm) AllreduceMinUint64(buf []uint64) {
	c.allreduceBytes(encodeUint64s(buf), func(acc, in []byte) {
		for i := 0; i+8 <= len(acc); i += 8 {
			a := binary.LittleEndian.Uint64(acc[i:])
			b := binary.LittleEndian.Uint64(in[i:])
			if b < a {
				binary.LittleEndian.PutUint64(acc[i:], b)
			}
		}
	}, func(out []byte) {
		for i := range buf {
			buf[i] = binary.LittleEndian.Uint64(out[i*8:])
		}
	})
}

// AllreduceOrUint32 element-wise ORs buf across ranks, in place.
func (c *Comm) AllreduceOrUint32(buf []uint32) {
	c.allreduceBytes(encodeUint32s(buf), func(acc, in []byte) {
		for i := 0; i+4 <= len(acc); i += 4 {
			a := binary.LittleEndian.Uint32(acc[i:])
			b := binary.LittleEndian.Uint32(in[i:])
			binary.LittleEndian.PutUint32(acc[i:], a|b)
		}
	}, func(out []byte) {
		for i := range buf {
			buf[i] = binary.LittleEndian.Uint32(out[i*4:])
		}
	})
}

// AllreduceSumInt64 element-wise sums buf across ranks, in place.
func (c *Comm) AllreduceSumInt64(buf []int64) {
	c.allreduceBytes(encodeInt64s(buf), func(acc, in []byte) {
		for i := 0; i+8 <= len(acc); i += 8 {
			a := int64(binary.LittleEndian.Uint64(acc[i:]))
			b := int64(binary.LittleEndian.Uint64(in[i:]))
			binary.LittleEndian.PutUint64(acc[i:], uint64(a+b))
		}
	}, func(out []byte) {
		for i := range buf {
			buf[i] = int64(binary.LittleEndian.Uint64(out[i*8:]))
		}
	})
}

// ReduceSumFloat32 element-wise sums buf across ranks into the root's
// buffer. Non-root buffers are left untouched. Used for the final image
// composite: only rank 0 writes the frame.
func (c *Comm) ReduceSumFloat32(buf []float32) {
	if c.size == 1 {
		return
	}

	if c.rank == 0 {
		for src := 1; src < c.size; src++ {
			msg := c.transport.recvColl(src)
			for i := 0; i+4 <= len(msg.Payload); i += 4 {
				buf[i/4] += math.Float32frombits(binary.LittleEndian.Uint32(msg.Payload[i:]))
			}
		}
		return
	}
	c.transport.sendColl(0, tagGather, encodeFloat32s(buf))
}

// Barrier blocks until every rank has entered it.
func (c *Comm) Barrier() {
	if c.size == 1 {
		return
	}
	if c.rank == 0 {
		for src := 1; src < c.size; src++ {
			c.transport.recvColl(src)
		}
		for dest := 1; dest < c.size; dest++ {
			c.transport.sendColl(dest, tagBarrierOut, nil)
		}
		return
	}
	c.transport.sendColl(0, tagBarrierIn, nil)
	c.transport.recvColl(0)
}

func (c *Comm) allreduceBytes(local []byte, fold func(acc, in []byte), out func([]byte)) {
	if c.size == 1 {
		return
	}

	if c.rank == 0 {
		acc := make([]byte, len(local))
		copy(acc, local)
		for src := 1; src < c.size; src++ {
			msg := c.transport.recvColl(src)
			fold(acc, msg.Payload)
		}
		for dest := 1; dest < c.size; dest++ {
			c.transport.sendColl(dest, tagBcast, acc)
		}
		out(acc)
		return
	}

	c.transport.sendColl(0, tagGather, local)
	msg := c.transport.recvColl(0)
	out(msg.Payload)
}

func encodeInt64s(v []int64) []byte {
	buf := make([]byte, len(v)*8)
	for i, x := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], uint64(x))
	}
	return buf
}

func decodeInt64s(buf []byte) []int64 {
	v := make([]int64, len(buf)/8)
	for i := range v {
		v[i] = int64(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return v
}

func encodeUint64s(v []uint64) []byte {
	buf := make([]byte, len(v)*8)
	for i, x := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], x)
	}
	return buf
}

func encodeUint32s(v []uint32) []byte {
	buf := make([]byte, len(v)*4)
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], x)
	}
	return buf
}

func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

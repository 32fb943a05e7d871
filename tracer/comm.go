package tracer

import (
	"encoding/binary"
	"runtime"

	"github.com/hyungman/SpRay/mpi"
)

// msgHeaderSize covers the (domain id, payload count) message header.
const msgHeaderSize = 12

// EncodeRayMsg packs a header and value-copied ray records into one wire
// message: (domain_id: i32, payload_count: i64) followed by the records.
func EncodeRayMsg(domainID int, rays []*Ray) []byte {
	buf := make([]byte, msgHeaderSize+len(rays)*raySize)
	binary.LittleEndian.PutUint32(buf[0:], uint32(domainID))
	binary.LittleEndian.PutUint64(buf[4:], uint64(len(rays)))
	for i, r := range rays {
		r.Encode(buf[msgHeaderSize+i*raySize:])
	}
	return buf
}

// EncodeRayMsgHeader allocates a message buffer for count rays and fills
// the header; callers copy the records in at their scanned offsets.
func EncodeRayMsgHeader(domainID, count int) []byte {
	buf := make([]byte, msgHeaderSize+count*raySize)
	binary.LittleEndian.PutUint32(buf[0:], uint32(domainID))
	binary.LittleEndian.PutUint64(buf[4:], uint64(count))
	return buf
}

// DecodeRayMsg unpacks a wire message into rays allocated from mem, so the
// records live in this rank's current depth arena.
func DecodeRayMsg(buf []byte, mem *Arena) (domainID int, rays []Ray) {
	domainID = int(int32(binary.LittleEndian.Uint32(buf[0:])))
	count := int(binary.LittleEndian.Uint64(buf[4:]))

	rays = mem.AllocRays(count)
	for i := 0; i < count; i++ {
		rays[i].Decode(buf[msgHeaderSize+i*raySize:])
	}
	return domainID, rays
}

// A Receiver takes ownership of one decoded incoming message.
type Receiver func(tag int, domainID int, rays []Ray)

// Comm drives the per-depth message exchange: an outgoing FIFO of ray
// messages, the in-flight send requests, and a probe-driven receive loop.
// All methods run on the master thread only.
type Comm struct {
	mpi *mpi.Comm

	sendq    []sendItem
	inflight []*mpi.Request
}

type sendItem struct {
	dest int
	tag  int
	buf  []byte
}

func NewComm(m *mpi.Comm) *Comm {
	return &Comm{mpi: m}
}

// PushSendQ enqueues one outgoing ray message.
func (c *Comm) PushSendQ(dest, tag int, buf []byte) {
	c.sendq = append(c.sendq, sendItem{dest: dest, tag: tag, buf: buf})
}

// EmptySendQ reports whether the outgoing FIFO is drained.
func (c *Comm) EmptySendQ() bool { return len(c.sendq) == 0 }

// Run drains the outgoing FIFO and receives until the rank's predicted
// incoming block count for this depth is met. Incoming payloads are
// decoded into mem and handed to receiver in arrival order.
func (c *Comm) Run(ws *WorkStats, mem *Arena, receiver Receiver) error {
	numBlocksRecved := 0
	recvDone := ws.RecvDone(numBlocksRecved)

	for {
		if !recvDone {
			if msg, ok := c.mpi.Poll(); ok {
				domainID, rays := DecodeRayMsg(msg.Payload, mem)
				receiver(msg.Tag, domainID, rays)
				numBlocksRecved++
				recvDone = ws.RecvDone(numBlocksRecved)
			}
		}

		if len(c.sendq) > 0 {
			item := c.sendq[0]
			c.sendq = c.sendq[1:]

			if DebugChecks && item.tag != mpi.TagSendRadianceRays && item.tag != mpi.TagSendShadowRays {
				panic("tracer: unexpected send tag")
			}

			req, err := c.mpi.Isend(item.dest, item.tag, item.buf)
			if err != nil {
				return err
			}
			c.inflight = append(c.inflight, req)
		} else if recvDone {
			return nil
		} else {
			runtime.Gosched()
		}
	}
}

// WaitForSend blocks until every in-flight send has been handed to the
// transport, then clears the request list.
func (c *Comm) WaitForSend() error {
	var firstErr error
	for _, req := range c.inflight {
		if err := req.Wait(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.inflight = c.inflight[:0]
	return firstErr
}

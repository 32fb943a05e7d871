package mpi

import (
	"encoding/binary"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/gorilla/websocket"

	"github.com/hyungman/SpRay/log"
)

var logger = log.New("mpi")

const (
	frameHeaderSize = 16
	appQueueDepth   = 1024
	collQueueDepth  = 8
	sendQueueDepth  = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1 << 16,
	WriteBufferSize: 1 << 16,
}

type outFrame struct {
	tag     int
	payload []byte
	req     *Request
}

// A peer is one live connection to another rank. Exactly one writer
// goroutine owns the websocket for writes; one reader goroutine owns it
// for reads.
type peer struct {
	rank int
	ws   *websocket.Conn
	out  chan outFrame
}

// mesh is the fully-connected transport between ranks. Each pair of ranks
// shares a single websocket; the higher rank dials the lower one.
type mesh struct {
	rank int
	size int

	peers []*peer

	// Application messages (ray traffic) in arrival order.
	app chan Message

	// Per-source collective queues. Collectives execute in the same
	// global order on every master goroutine, so a FIFO per source is
	// sufficient to keep steps from crossing.
	coll []chan Message

	server   *http.Server
	listener net.Listener

	mu       sync.Mutex
	accepted map[int]*peer
	ready    chan struct{}
	closed   bool
}

func newMesh(rank int, addrs []string, dialTimeout time.Duration) (*mesh, error) {
	size := len(addrs)
	m := &mesh{
		rank:     rank,
		size:     size,
		peers:    make([]*peer, size),
		app:      make(chan Message, appQueueDepth),
		coll:     make([]chan Message, size),
		accepted: make(map[int]*peer),
		ready:    make(chan struct{}),
	}
	for i := range m.coll {
		if i != rank {
			m.coll[i] = make(chan Message, collQueueDepth)
		}
	}

	// Serve incoming dials from higher ranks.
	if rank < size-1 {
		ln, err := net.Listen("tcp", addrs[rank])
		if err != nil {
			return nil, fmt.Errorf("mpi: listen on %s: %v", addrs[rank], err)
		}
		m.listener = ln

		mux := http.NewServeMux()
		mux.HandleFunc("/mpi", m.handleAccept)
		m.server = &http.Server{Handler: mux}
		go m.server.Serve(ln)
	}

	// Dial every lower rank, retrying until it comes up.
	for dest := 0; dest < rank; dest++ {
		ws, err := dialPeer(addrs[dest], dialTimeout)
		if err != nil {
			m.close()
			return nil, fmt.Errorf("mpi: rank %d dialing rank %d: %v", rank, dest, err)
		}
		p := &peer{rank: dest, ws: ws, out: make(chan outFrame, sendQueueDepth)}
		if err := writeFrame(ws, rank, tagHello, nil); err != nil {
			m.close()
			return nil, fmt.Errorf("mpi: rank %d hello to rank %d: %v", rank, dest, err)
		}
		m.peers[dest] = p
		go m.writeLoop(p)
		go m.readLoop(p)
	}

	// Wait for every higher rank to dial in.
	expect := size - 1 - rank
	deadline := time.After(dialTimeout)
	for {
		m.mu.Lock()
		got := len(m.accepted)
		m.mu.Unlock()
		if got == expect {
			break
		}
		select {
		case <-deadline:
			m.close()
			return nil, fmt.Errorf("mpi: rank %d timed out waiting for %d peers", rank, expect-got)
		case <-time.After(5 * time.Millisecond):
		}
	}

	m.mu.Lock()
	for r, p := range m.accepted {
		m.peers[r] = p
	}
	m.mu.Unlock()

	logger.Infof("rank %d connected (world size %d)", rank, size)
	return m, nil
}

func dialPeer(addr string, timeout time.Duration) (*websocket.Conn, error) {
	url := "ws://" + addr + "/mpi"
	deadline := time.Now().Add(timeout)
	for {
		ws, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err == nil {
			return ws, nil
		}
		if time.Now().After(deadline) {
			return nil, err
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func (m *mesh) handleAccept(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	// The first frame identifies the dialing rank.
	src, tag, _, err := readFrame(ws)
	if err != nil || tag != tagHello {
		ws.Close()
		return
	}

	p := &peer{rank: src, ws: ws, out: make(chan outFrame, sendQueueDepth)}

	m.mu.Lock()
	m.accepted[src] = p
	m.mu.Unlock()

	go m.writeLoop(p)
	m.readLoop(p)
}

func (m *mesh) writeLoop(p *peer) {
	for f := range p.out {
		err := writeFrame(p.ws, m.rank, f.tag, f.payload)
		if f.req != nil {
			f.req.err = err
			close(f.req.done)
		}
		if err != nil {
			return
		}
	}
}

func (m *mesh) readLoop(p *peer) {
	for {
		src, tag, payload, err := readFrame(p.ws)
		if err != nil {
			m.mu.Lock()
			closed := m.closed
			m.mu.Unlock()
			// A peer that finalized first surfaces as a close error.
			if !closed && !websocket.IsCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseAbnormalClosure, websocket.CloseGoingAway) {
				logger.Errorf("rank %d lost connection to rank %d: %v", m.rank, p.rank, err)
			}
			return
		}
		msg := Message{Src: src, Tag: tag, Payload: payload}
		if tag >= collTagBase {
			m.coll[src] <- msg
		} else {
			m.app <- msg
		}
	}
}

func (m *mesh) send(dest, tag int, payload []byte) *Request {
	req := &Request{done: make(chan struct{})}
	m.peers[dest].out <- outFrame{tag: tag, payload: payload, req: req}
	return req
}

// sendColl enqueues a collective frame without a completion handle.
func (m *mesh) sendColl(dest, tag int, payload []byte) {
	m.peers[dest].out <- outFrame{tag: tag, payload: payload}
}

// recvColl blocks for the next collective frame from src.
func (m *mesh) recvColl(src int) Message {
	return <-m.coll[src]
}

func (m *mesh) poll() (Message, bool) {
	select {
	case msg := <-m.app:
		return msg, true
	default:
		return Message{}, false
	}
}

func (m *mesh) recv() (Message, error) {
	msg, ok := <-m.app
	if !ok {
		return Message{}, ErrFinalized
	}
	return msg, nil
}

func (m *mesh) close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	for _, p := range m.peers {
		if p != nil {
			close(p.out)
			p.ws.Close()
		}
	}
	m.mu.Lock()
	for _, p := range m.accepted {
		if m.peers[p.rank] == nil {
			close(p.out)
			p.ws.Close()
		}
	}
	m.mu.Unlock()
	if m.server != nil {
		m.server.Close()
	}
}

// writeFrame emits one length-delimited frame: a fixed header followed by
// the snappy-compressed payload.
func writeFrame(ws *websocket.Conn, src, tag int, payload []byte) error {
	packed := snappy.Encode(nil, payload)
	buf := make([]byte, frameHeaderSize+len(packed))
	binary.LittleEndian.PutUint32(buf[0:], uint32(src))
	binary.LittleEndian.PutUint32(buf[4:], uint32(tag))
	binary.LittleEndian.PutUint64(buf[8:], uint64(len(payload)))
	copy(buf[frameHeaderSize:], packed)
	return ws.WriteMessage(websocket.BinaryMessage, buf)
}

func readFrame(ws *websocket.Conn) (src, tag int, payload []byte, err error) {
	_, buf, err := ws.ReadMessage()
	if err != nil {
		return 0, 0, nil, err
	}
	if len(buf) < frameHeaderSize {
		return 0, 0, nil, fmt.Errorf("mpi: short frame (%d bytes)", len(buf))
	}
	src = int(binary.LittleEndian.Uint32(buf[0:]))
	tag = int(binary.LittleEndian.Uint32(buf[4:]))
	rawLen := binary.LittleEndian.Uint64(buf[8:])

	payload, err = snappy.Decode(nil, buf[frameHeaderSize:])
	if err != nil {
		return 0, 0, nil, fmt.Errorf("mpi: frame decompression: %v", err)
	}
	if uint64(len(payload)) != rawLen {
		return 0, 0, nil, fmt.Errorf("mpi: frame length mismatch: header %d, payload %d", rawLen, len(payload))
	}
	return src, tag, payload, nil
}

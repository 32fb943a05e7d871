package mpi

import (
	"fmt"
	"net"
	"sync"
	"testing"
	"time"
)

// freeAddrs reserves n loopback addresses for an in-process cluster.
func freeAddrs(t *testing.T, n int) []string {
	t.Helper()
	addrs := make([]string, n)
	for i := 0; i < n; i++ {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("reserving port: %v", err)
		}
		addrs[i] = ln.Addr().String()
		ln.Close()
	}
	return addrs
}

// startCluster runs fn once per rank on its own goroutine and waits.
func startCluster(t *testing.T, size int, fn func(c *Comm)) {
	t.Helper()
	addrs := freeAddrs(t, size)

	var wg sync.WaitGroup
	errs := make([]error, size)

	for rank := 0; rank < size; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			c, err := Init(Options{
				Addr:        addrs[rank],
				AllAddrs:    addrs,
				DialTimeout: 10 * time.Second,
			})
			if err != nil {
				errs[rank] = err
				return
			}
			defer c.Finalize()
			fn(c)
		}(rank)
	}
	wg.Wait()

	for rank, err := range errs {
		if err != nil {
			t.Fatalf("rank %d init: %v", rank, err)
		}
	}
}

func TestSingleRankWorld(t *testing.T) {
	c, err := Init(Options{})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	defer c.Finalize()

	if c.Size() != 1 || c.Rank() != 0 {
		t.Fatalf("expected rank 0 of 1; got rank %d of %d", c.Rank(), c.Size())
	}
	if _, ok := c.Poll(); ok {
		t.Fatalf("expected no pending messages in a single-rank world")
	}

	world, mine := c.ReduceScatterWork([]int64{7})
	if world != 7 || mine != 7 {
		t.Fatalf("expected (7, 7); got (%d, %d)", world, mine)
	}
}

func TestPointToPoint(t *testing.T) {
	startCluster(t, 2, func(c *Comm) {
		if c.Rank() == 0 {
			req, err := c.Isend(1, TagSendRadianceRays, []byte("forward these rays"))
			if err != nil {
				t.Errorf("isend: %v", err)
				return
			}
			if err := req.Wait(); err != nil {
				t.Errorf("wait: %v", err)
			}
			c.Barrier()
			return
		}

		msg, err := c.Recv()
		if err != nil {
			t.Errorf("recv: %v", err)
			return
		}
		if msg.Src != 0 || msg.Tag != TagSendRadianceRays {
			t.Errorf("expected src 0 tag %d; got src %d tag %d", TagSendRadianceRays, msg.Src, msg.Tag)
		}
		if string(msg.Payload) != "forward these rays" {
			t.Errorf("payload mismatch: %q", msg.Payload)
		}
		c.Barrier()
	})
}

func TestSelfSendRejected(t *testing.T) {
	startCluster(t, 2, func(c *Comm) {
		if _, err := c.Isend(c.Rank(), TagSendRadianceRays, nil); err != ErrSelfSend {
			t.Errorf("expected ErrSelfSend; got %v", err)
		}
		c.Barrier()
	})
}

func TestReduceScatterWork(t *testing.T) {
	const size = 3
	startCluster(t, size, func(c *Comm) {
		// Rank r owes every rank d exactly r+d blocks.
		work := make([]int64, size)
		for d := range work {
			work[d] = int64(c.Rank() + d)
		}

		world, mine := c.ReduceScatterWork(work)

		// Sum over all (r, d) pairs of r+d.
		var expWorld int64
		for r := 0; r < size; r++ {
			for d := 0; d < size; d++ {
				expWorld += int64(r + d)
			}
		}
		var expMine int64
		for r := 0; r < size; r++ {
			expMine += int64(r + c.Rank())
		}

		if world != expWorld {
			t.Errorf("rank %d: expected world %d; got %d", c.Rank(), expWorld, world)
		}
		if mine != expMine {
			t.Errorf("rank %d: expected portion %d; got %d", c.Rank(), expMine, mine)
		}
	})
}

func TestAllreduceMinUint64(t *testing.T) {
	const size = 3
	startCluster(t, size, func(c *Comm) {
		buf := []uint64{
			uint64(10 + c.Rank()),
			uint64(20 - c.Rank()),
			uint64(c.Rank()),
		}
		c.AllreduceMinUint64(buf)

		exp := []uint64{10, 20 - (size - 1), 0}
		for i := range exp {
			if buf[i] != exp[i] {
				t.Errorf("rank %d: entry %d: expected %d; got %d", c.Rank(), i, exp[i], buf[i])
			}
		}
	})
}

func TestAllreduceOrUint32(t *testing.T) {
	const size = 3
	startCluster(t, size, func(c *Comm) {
		buf := []uint32{1 << uint(c.Rank()), 0}
		c.AllreduceOrUint32(buf)

		if buf[0] != (1<<size)-1 {
			t.Errorf("rank %d: expected %#x; got %#x", c.Rank(), (1<<size)-1, buf[0])
		}
		if buf[1] != 0 {
			t.Errorf("rank %d: expected zero word untouched; got %#x", c.Rank(), buf[1])
		}
	})
}

func TestReduceSumFloat32(t *testing.T) {
	const size = 3
	startCluster(t, size, func(c *Comm) {
		buf := []float32{float32(c.Rank() + 1), 0.5}
		c.ReduceSumFloat32(buf)

		if c.Rank() == 0 {
			if buf[0] != 6 { // 1 + 2 + 3
				t.Errorf("expected 6 at root; got %f", buf[0])
			}
			if buf[1] != 1.5 {
				t.Errorf("expected 1.5 at root; got %f", buf[1])
			}
		}
		c.Barrier()
	})
}

func TestFrameRoundTrip(t *testing.T) {
	startCluster(t, 2, func(c *Comm) {
		if c.Rank() == 0 {
			payload := make([]byte, 1000)
			for i := range payload {
				payload[i] = byte(i % 7) // compressible
			}
			if _, err := c.Isend(1, TagSendShadowRays, payload); err != nil {
				t.Errorf("isend: %v", err)
			}
			c.Barrier()
			return
		}

		msg, err := c.Recv()
		if err != nil {
			t.Errorf("recv: %v", err)
			return
		}
		if len(msg.Payload) != 1000 {
			t.Errorf("expected 1000 bytes; got %d", len(msg.Payload))
		}
		for i, b := range msg.Payload {
			if b != byte(i%7) {
				t.Errorf("byte %d corrupted: %d", i, b)
				break
			}
		}
		c.Barrier()
	})
}

func TestBarrierOrdering(t *testing.T) {
	const size = 4
	var mu sync.Mutex
	arrived := 0

	startCluster(t, size, func(c *Comm) {
		mu.Lock()
		arrived++
		mu.Unlock()

		c.Barrier()

		mu.Lock()
		n := arrived
		mu.Unlock()
		if n != size {
			panic(fmt.Sprintf("barrier released with %d of %d arrived", n, size))
		}
	})
}

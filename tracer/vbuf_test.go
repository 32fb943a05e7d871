package tracer

import (
	"sync"
	"testing"
)

func TestVBufAtomicMin(t *testing.T) {
	v := NewVBuf(4, 2)

	if !v.UpdateTBufOut(0, 5.0, 0, 1) {
		t.Fatalf("expected first write to win")
	}
	if v.UpdateTBufOut(0, 6.0, 0, 2) {
		t.Fatalf("expected farther hit to lose")
	}
	if !v.UpdateTBufOut(0, 4.0, 0, 3) {
		t.Fatalf("expected closer hit to win")
	}

	if !v.EqualToTBufOut(0, 4.0, 0, 3) {
		t.Fatalf("expected the closest hit to own the sample")
	}
	if v.EqualToTBufOut(0, 5.0, 0, 1) {
		t.Fatalf("expected the displaced hit to be suppressed")
	}
}

func TestVBufTieBreak(t *testing.T) {
	v := NewVBuf(1, 1)

	// Identical t; the lower (rank, seq) key must win deterministically.
	v.UpdateTBufOut(0, 1.0, 1, 100)
	won := v.UpdateTBufOut(0, 1.0, 0, 100)
	if !won {
		t.Fatalf("expected the lower rank to displace the tie")
	}

	if !v.EqualToTBufOut(0, 1.0, 0, 100) {
		t.Fatalf("expected exactly one winner after the tie")
	}
	if v.EqualToTBufOut(0, 1.0, 1, 100) {
		t.Fatalf("expected the higher rank's hit to be suppressed")
	}
}

func TestVBufConcurrentWriters(t *testing.T) {
	const goroutines = 8
	const writes = 1000

	v := NewVBuf(1, 1)

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < writes; i++ {
				v.UpdateTBufOut(0, float32(1+(g*writes+i)%977), 0, uint32(g*writes+i))
			}
		}(g)
	}
	wg.Wait()

	// The minimum t written is 1 regardless of interleaving.
	if got := unpackT(v.tbufOut[0]); got != 1.0 {
		t.Fatalf("expected reconciled t of 1; got %f", got)
	}
}

func TestVBufObufMonotone(t *testing.T) {
	v := NewVBuf(8, 3)

	if v.Occluded(5, 2) {
		t.Fatalf("expected fresh bit to be clear")
	}
	v.SetOBuf(5, 2)
	if !v.Occluded(5, 2) {
		t.Fatalf("expected bit to be set")
	}
	v.SetOBuf(5, 2)
	if !v.Occluded(5, 2) {
		t.Fatalf("expected bit to stay set")
	}
	if v.Occluded(5, 1) || v.Occluded(4, 2) {
		t.Fatalf("expected neighboring bits to stay clear")
	}

	v.ResetOBuf()
	if v.Occluded(5, 2) {
		t.Fatalf("expected reset to clear all bits")
	}
}

func TestVBufCorrectAndSwap(t *testing.T) {
	v := NewVBuf(2, 1)

	if !v.Correct(0, 100.0) {
		t.Fatalf("expected any distance to be correct against +inf input")
	}

	v.UpdateTBufOut(0, 5.0, 0, 1)
	v.SwapTBufs()

	if !v.Correct(0, 5.0) {
		t.Fatalf("expected the winning distance to remain correct")
	}
	if !v.Correct(0, 4.0) {
		t.Fatalf("expected a closer stash to be correct")
	}
	if v.Correct(0, 6.0) {
		t.Fatalf("expected a farther stash to be discarded")
	}

	v.ResetTBufOut()
	if !v.UpdateTBufOut(0, 9.0, 0, 2) {
		t.Fatalf("expected reset output buffer to accept new hits")
	}
}

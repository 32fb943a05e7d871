package tracer

import (
	"sync"
	"testing"

	"github.com/hyungman/SpRay/mpi"
	"github.com/hyungman/SpRay/scene"
)

func singleComm(t *testing.T) *mpi.Comm {
	t.Helper()
	c, err := mpi.Init(mpi.Options{})
	if err != nil {
		t.Fatalf("mpi init: %v", err)
	}
	return c
}

func TestWorkStatsClampAcrossThreads(t *testing.T) {
	comm := singleComm(t)
	defer comm.Finalize()

	// Three threads all hold rays for domain 2: the merged count must be
	// one block per queue kind, since the shards travel in a single
	// message.
	merged := NewWorkStats(1, 4)
	for i := 0; i < 3; i++ {
		ws := NewWorkStats(1, 4)
		ws.MarkRadianceBlock(2)
		ws.MarkShadowBlock(2)
		merged.Merge(ws)
	}
	merged.Fold(0, func(domainID int) int { return 0 })
	merged.Reduce(comm)

	if merged.worldNumBlocks != 2 {
		t.Fatalf("expected 2 clamped blocks (radiance + shadow); got %d", merged.worldNumBlocks)
	}
}

func TestWorkStatsTermination(t *testing.T) {
	comm := singleComm(t)
	defer comm.Finalize()

	ws := NewWorkStats(1, 2)
	ws.Fold(0, func(domainID int) int { return 0 })
	ws.Reduce(comm)

	if !ws.AllDone() {
		t.Fatalf("expected quiescence with no blocks")
	}

	ws.Reset()
	ws.MarkRadianceBlock(0)
	ws.AddSelfBlocks(1)
	ws.Fold(0, func(domainID int) int { return 0 })
	ws.Reduce(comm)

	if ws.AllDone() {
		t.Fatalf("expected outstanding work to block termination")
	}
	if !ws.RecvDone(0) {
		t.Fatalf("self-owed blocks never arrive as messages")
	}
}

func TestInclusiveScan(t *testing.T) {
	s := NewInclusiveScan(4)
	counts := []int{3, 0, 5, 2}
	for tid, n := range counts {
		s.Set(tid, n)
	}
	s.Scan()

	exp := []int{3, 3, 8, 10}
	for tid, want := range exp {
		if got := s.Get(tid); got != want {
			t.Fatalf("thread %d: expected prefix %d; got %d", tid, want, got)
		}
	}
	if s.Sum() != 10 {
		t.Fatalf("expected total 10; got %d", s.Sum())
	}
}

func TestBarrierReuse(t *testing.T) {
	const parties = 4
	const rounds = 50

	b := NewBarrier(parties)
	counters := make([]int, parties)

	var wg sync.WaitGroup
	for p := 0; p < parties; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for round := 0; round < rounds; round++ {
				counters[p]++
				b.Await()
				// Every party must have finished this round before any
				// proceeds.
				for q := 0; q < parties; q++ {
					if counters[q] < round+1 {
						panic("barrier released early")
					}
				}
				b.Await()
			}
		}(p)
	}
	wg.Wait()
}

func TestDomainCacheLru(t *testing.T) {
	loads := map[int]int{}
	cache := NewDomainCache(2, func(id int) (*scene.Geometry, error) {
		loads[id]++
		return &scene.Geometry{}, nil
	})

	for _, id := range []int{0, 1, 0} {
		if _, err := cache.Acquire(id); err != nil {
			t.Fatalf("acquire %d: %v", id, err)
		}
		cache.Release(id)
	}
	if loads[0] != 1 || loads[1] != 1 {
		t.Fatalf("expected each domain loaded once; got %v", loads)
	}

	// Domain 2 evicts the least recently used block (domain 1).
	if _, err := cache.Acquire(2); err != nil {
		t.Fatalf("acquire 2: %v", err)
	}
	cache.Release(2)
	if cache.Resident(1) {
		t.Fatalf("expected domain 1 evicted")
	}
	if !cache.Resident(0) || !cache.Resident(2) {
		t.Fatalf("expected domains 0 and 2 resident")
	}

	// Pinned blocks cannot be evicted.
	if _, err := cache.Acquire(0); err != nil {
		t.Fatalf("acquire 0: %v", err)
	}
	if _, err := cache.Acquire(2); err != nil {
		t.Fatalf("acquire 2: %v", err)
	}
	if _, err := cache.Acquire(1); err != ErrCacheFull {
		t.Fatalf("expected ErrCacheFull with all blocks pinned; got %v", err)
	}

	hits, misses, evicts := cache.Stats()
	if misses != 3 {
		t.Fatalf("expected 3 misses; got %d", misses)
	}
	if evicts != 1 {
		t.Fatalf("expected 1 eviction; got %d", evicts)
	}
	if hits == 0 {
		t.Fatalf("expected at least one hit")
	}
}

func TestDomainCacheInfinite(t *testing.T) {
	cache := NewDomainCache(-1, func(id int) (*scene.Geometry, error) {
		return &scene.Geometry{}, nil
	})

	for id := 0; id < 16; id++ {
		if _, err := cache.Acquire(id); err != nil {
			t.Fatalf("acquire %d: %v", id, err)
		}
		cache.Release(id)
	}
	for id := 0; id < 16; id++ {
		if !cache.Resident(id) {
			t.Fatalf("expected domain %d to stay resident", id)
		}
	}

	_, _, evicts := cache.Stats()
	if evicts != 0 {
		t.Fatalf("expected no evictions from the infinite cache; got %d", evicts)
	}
}

package tracer

import (
	"sync"

	"github.com/hyungman/SpRay/display"
	"github.com/hyungman/SpRay/mpi"
	"github.com/hyungman/SpRay/scene"
	"github.com/hyungman/SpRay/types"
)

// OocTracer drives one frame in out-of-core mode: every rank may process
// any domain, paging geometry through the domain cache. The image is
// partitioned across ranks, so rays stay on their rank; the collectives
// keep the load schedule, the visibility buffers and the termination test
// global. Virtual depth bounds how far a ray's history window runs before
// the ray parks in the pending queue for the next depth wave.
type OocTracer struct {
	cfg  Config
	comm *mpi.Comm

	sc     *scene.Scene
	camera *scene.Camera
	image  *display.HdrImage
	shader Shader

	vbuf      *VBuf
	tcontexts []*TContext
	cache     *DomainCache
	stats     *DomainStats

	workStats    *WorkStats
	threadStatus *ThreadStatus
	barrier      *Barrier

	imageTile Tile
	myTile    Tile

	schedule []int
	done     bool
	err      error
}

// NewOoc wires an out-of-core tracer. A negative cache size selects the
// infinite cache.
func NewOoc(cfg Config, comm *mpi.Comm, camera *scene.Camera, sc *scene.Scene, image *display.HdrImage, shader Shader) *OocTracer {
	t := &OocTracer{
		cfg:    cfg,
		comm:   comm,
		sc:     sc,
		camera: camera,
		image:  image,
		shader: shader,
	}

	t.imageTile = Tile{X: 0, Y: 0, W: cfg.ImageW, H: cfg.ImageH}
	t.myTile = RankStripe(comm.Size(), comm.Rank(), t.imageTile)

	numSamples := cfg.ImageW * cfg.ImageH * cfg.PixelSamples
	t.vbuf = NewVBuf(numSamples, totalLightSamples(shader, sc, cfg))

	t.cache = NewDomainCache(cfg.CacheSize, sc.LoadUncached)
	t.stats = NewDomainStats(sc.NumDomains())

	t.tcontexts = make([]*TContext, cfg.NumThreads)
	for tid := range t.tcontexts {
		tc := NewTContext(tid, comm.Rank(), comm.Size(), sc, t.vbuf, image, shader)
		tc.EnablePendingQ()
		tc.SetLoader(t.cache.Acquire, t.cache.Release)
		t.tcontexts[tid] = tc
	}

	t.workStats = NewWorkStats(comm.Size(), sc.NumDomains())
	t.threadStatus = NewThreadStatus(cfg.NumThreads)
	t.barrier = NewBarrier(cfg.NumThreads)

	return t
}

// Trace renders one frame to the accumulation image.
func (t *OocTracer) Trace() error {
	t.vbuf.ResetTBufOut()
	t.vbuf.ResetOBuf()

	for _, tc := range t.tcontexts {
		tc.ResetMems()
		tc.Reset()
	}
	t.workStats.Reset()
	t.stats.Reset()
	t.done = false
	t.err = nil

	numEyes := t.myTile.NumPixels() * t.cfg.PixelSamples
	var sharedEyes []Ray
	if numEyes > 0 {
		sharedEyes = t.tcontexts[0].Mem().In.AllocRays(numEyes)
	}

	var wg sync.WaitGroup
	for tid := 0; tid < t.cfg.NumThreads; tid++ {
		wg.Add(1)
		go func(tid int) {
			defer wg.Done()
			t.worker(tid, sharedEyes)
		}(tid)
	}
	wg.Wait()

	if t.err == nil {
		hits, misses, evicts := t.cache.Stats()
		logger.Infof("rank %d cache: %d hits, %d misses, %d evictions", t.comm.Rank(), hits, misses, evicts)
	}
	return t.err
}

func (t *OocTracer) worker(tid int, sharedEyes []Ray) {
	tc := t.tcontexts[tid]
	nranks := t.comm.Size()
	nbounces := t.cfg.Bounces

	if len(sharedEyes) > 0 {
		t.genEyeRays(tid, sharedEyes)
		t.barrier.Await()

		for i := tid; i < len(sharedEyes); i += t.cfg.NumThreads {
			tc.IsectDomains(&sharedEyes[i])
		}
		t.barrier.Await()

		if tid == 0 {
			bg := [3]float32{t.cfg.Background[0], t.cfg.Background[1], t.cfg.Background[2]}
			for _, c := range t.tcontexts {
				c.RetireBackground(bg, t.cfg.PixelSamples)
			}
		}
	}

	// Initial work stats and load schedule.
	t.populateWorkStats(tc)
	t.buildSchedule(tid)

	rayDepth := 0

	for {
		t.barrier.Await()

		if tid == 0 {
			t.workStats.Reduce(t.comm)
			if t.workStats.AllDone() {
				t.done = true
				// Retire shadow rays created in the final depth; their
				// occlusion state is complete once no blocks remain.
				for _, c := range t.tcontexts {
					c.ProcRetireQ(t.cfg.PixelSamples)
				}
			}
		}

		t.barrier.Await()
		if t.done || t.err != nil {
			return
		}

		if DebugChecks && rayDepth >= nbounces*historySize+historySize+1 {
			panic("tracer: depth ran past the bounce budget")
		}

		// Replay speculative hits that are still authoritative.
		t.procCachedRq(tid, rayDepth, tc)
		t.barrier.Await()

		// Release rays parked by the virtual depth window.
		tc.ReleasePending()
		t.barrier.Await()

		t.procScheduledQs(tid, rayDepth, tc)
		t.barrier.Await()
		if t.err != nil {
			return
		}

		if tid == 0 {
			if nranks > 1 {
				t.vbuf.CompositeTBuf(t.comm)
			}
			if rayDepth > 0 && nranks > 1 {
				t.vbuf.CompositeOBuf(t.comm)
			}
			if rayDepth > 0 {
				for _, c := range t.tcontexts {
					c.ProcRetireQ(t.cfg.PixelSamples)
				}
				t.vbuf.ResetOBuf()
			}
			t.vbuf.ResetTBufIn()
			t.vbuf.SwapTBufs()
		}
		t.barrier.Await()

		tc.ProcessRays2()
		t.barrier.Await()

		t.populateWorkStats(tc)
		t.buildSchedule(tid)
		tc.ResetAndSwapMems()
		rayDepth++

		t.barrier.Await()
	}
}

func (t *OocTracer) fail(err error) {
	logger.Criticalf("rank %d: %v", t.comm.Rank(), err)
	t.err = err
	t.done = true
}

func (t *OocTracer) genEyeRays(tid int, eyes []Ray) {
	camPos := t.camera.Position
	nsamples := t.cfg.PixelSamples
	tile := t.myTile
	samidOffset := (tile.Y - t.imageTile.Y) * tile.W * nsamples

	for bufid := tid; bufid < len(eyes); bufid += t.cfg.NumThreads {
		pix := bufid / nsamples
		x0 := pix % tile.W
		y0 := pix / tile.W
		x := tile.X + x0
		y := tile.Y + y0

		ray := &eyes[bufid]
		ray.Org = camPos
		ray.PixID = int32(y*t.cfg.ImageW + x)
		ray.SamID = int32(bufid + samidOffset)
		ray.W = types.Vec3{1, 1, 1}
		ray.Depth = 0
		ray.T = maxShadowT
		ray.Light = -1
		ray.Occluded = 0
		ray.Seq = 0

		fx := float32(x)
		fy := float32(y)
		if nsamples > 1 {
			sampler := scene.NewSampler(uint32(bufid + samidOffset))
			fx += sampler.Get1D()
			fy += sampler.Get1D()
		}
		ray.Dir = t.camera.GenerateRay(fx, fy)
	}
}

func (t *OocTracer) populateWorkStats(tc *TContext) {
	tc.PopulateWorkStats()
	t.barrier.Await()
	if tc.tid == 0 {
		t.workStats.Reset()
		for _, c := range t.tcontexts {
			t.workStats.Merge(c.WorkStats())
		}
		t.workStats.Fold(t.comm.Rank(), t.tcontexts[0].rankOf)
	}
	t.barrier.Await()
}

// buildSchedule derives the next depth's global domain order from the
// observed ray pressure.
func (t *OocTracer) buildSchedule(tid int) {
	if tid == 0 {
		t.stats.Reset()
		for _, c := range t.tcontexts {
			c.CollectDomainStats(t.stats)
		}
		t.stats.AllReduce(t.comm)
		t.schedule = t.stats.Schedule()
	}
	t.barrier.Await()
}

// procCachedRq replays speculative hits through the cache. The replay
// runs entirely on the master thread: the cache is single-threaded in its
// decisions, and worker replays could otherwise pin more blocks than the
// capacity holds.
func (t *OocTracer) procCachedRq(tid, rayDepth int, tc *TContext) {
	if tid == 0 {
		for _, c := range t.tcontexts {
			c.UpdateTBufWithCached()
		}
		for _, c := range t.tcontexts {
			c.ProcessCached(rayDepth)
		}
	}
}

// procScheduledQs walks the load schedule, pinning each domain while any
// thread holds rays for it.
func (t *OocTracer) procScheduledQs(tid, rayDepth int, tc *TContext) {
	for _, id := range t.schedule {
		if tc.IsLocalQsEmpty(id) {
			t.threadStatus.Clear(tid)
		} else {
			t.threadStatus.Set(tid)
		}
		t.barrier.Await()

		if t.threadStatus.IsAnySet() {
			if tid == 0 {
				geom, err := t.cache.Acquire(id)
				if err != nil {
					t.fail(err)
				} else {
					for _, c := range t.tcontexts {
						c.SetSceneInfo(id, geom)
					}
				}
			}
			t.barrier.Await()
			if t.err != nil {
				return
			}

			tc.ProcessRays(id)
			t.barrier.Await()

			if tid == 0 {
				for _, c := range t.tcontexts {
					c.UpdateVBuf()
				}
			}
			t.barrier.Await()

			tc.GenRays(id, rayDepth)
			t.barrier.Await()

			if tid == 0 {
				t.cache.Release(id)
			}
		}
		t.barrier.Await()
	}
}

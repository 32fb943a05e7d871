package tracer

import (
	"sync"

	"github.com/hyungman/SpRay/display"
	"github.com/hyungman/SpRay/log"
	"github.com/hyungman/SpRay/mpi"
	"github.com/hyungman/SpRay/scene"
	"github.com/hyungman/SpRay/types"
)

var logger = log.New("tracer")

type recvMsg struct {
	domainID int
	rays     []Ray
}

// InsituTracer drives one frame in in-situ mode: the domain-to-rank
// assignment is fixed, a rank processes only its own domains and forwards
// foreign rays. A team of worker threads is spawned per frame and rejoined
// at every phase barrier; thread zero doubles as the master and performs
// all communicator calls.
type InsituTracer struct {
	cfg    Config
	comm   *mpi.Comm
	driver *Comm

	sc     *scene.Scene
	camera *scene.Camera
	image  *display.HdrImage
	shader Shader

	vbuf      *VBuf
	tcontexts []*TContext

	workStats    *WorkStats
	threadStatus *ThreadStatus
	scan         *InclusiveScan
	barrier      *Barrier

	recvRq []recvMsg
	recvSq []recvMsg

	imageTile Tile
	myTile    Tile

	sendBuf []byte
	done    bool
	err     error
}

// NewInsitu wires a tracer for the scene. The partition must assign every
// domain to exactly one rank.
func NewInsitu(cfg Config, comm *mpi.Comm, camera *scene.Camera, sc *scene.Scene, image *display.HdrImage, shader Shader) *InsituTracer {
	t := &InsituTracer{
		cfg:    cfg,
		comm:   comm,
		driver: NewComm(comm),
		sc:     sc,
		camera: camera,
		image:  image,
		shader: shader,
	}

	t.imageTile = Tile{X: 0, Y: 0, W: cfg.ImageW, H: cfg.ImageH}
	t.myTile = RankStripe(comm.Size(), comm.Rank(), t.imageTile)

	numSamples := cfg.ImageW * cfg.ImageH * cfg.PixelSamples
	t.vbuf = NewVBuf(numSamples, totalLightSamples(shader, sc, cfg))

	t.tcontexts = make([]*TContext, cfg.NumThreads)
	for tid := range t.tcontexts {
		t.tcontexts[tid] = NewTContext(tid, comm.Rank(), comm.Size(), sc, t.vbuf, image, shader)
	}

	t.workStats = NewWorkStats(comm.Size(), sc.NumDomains())
	t.threadStatus = NewThreadStatus(cfg.NumThreads)
	t.scan = NewInclusiveScan(cfg.NumThreads)
	t.barrier = NewBarrier(cfg.NumThreads)

	return t
}

// totalLightSamples sizes the occlusion buffer: AO shading reserves one
// slot per hemisphere sample, path tracing one per light (area lights
// share a slot across their samples).
func totalLightSamples(shader Shader, sc *scene.Scene, cfg Config) int {
	if shader.IsAo() {
		return cfg.AoSamples
	}
	n := shader.NumLights()
	if n == 0 {
		n = 1
	}
	return n
}

// Trace renders one frame to the accumulation image.
func (t *InsituTracer) Trace() error {
	t.vbuf.ResetTBufOut()
	t.vbuf.ResetOBuf()

	for _, tc := range t.tcontexts {
		tc.ResetMems()
		tc.Reset()
	}
	t.recvRq = t.recvRq[:0]
	t.recvSq = t.recvSq[:0]
	t.workStats.Reset()
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

	return t.err
}

func (t *InsituTracer) worker(tid int, sharedEyes []Ray) {
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

		t.populateRadWorkStats(tc)
	}

	rayDepth := 0

	for {
		t.barrier.Await()

		if tid == 0 {
			t.workStats.Reduce(t.comm)
			if t.workStats.AllDone() {
				t.done = true
				if err := t.driver.WaitForSend(); err != nil {
					t.fail(err)
				}
				// Retire shadow rays created in the final depth. Any
				// ray with an unresolved occlusion test elsewhere would
				// have kept the world block count nonzero.
				for _, c := range t.tcontexts {
					c.ProcRetireQ(t.cfg.PixelSamples)
				}
			}
		}

		t.barrier.Await()
		if t.done || t.err != nil {
			return
		}

		if DebugChecks && rayDepth >= nbounces+1 {
			panic("tracer: depth ran past the bounce budget")
		}

		if nranks > 1 {
			t.sendRays(tid, tc)
			if tid == 0 {
				if err := t.driver.WaitForSend(); err != nil {
					t.fail(err)
				} else if err := t.driver.Run(t.workStats, tc.Mem().In, t.receive); err != nil {
					t.fail(err)
				}
			}
			t.barrier.Await()
			if t.err != nil {
				return
			}
		}

		t.procCachedRq(tid, rayDepth, tc)
		t.barrier.Await()

		t.procLocalQs(tid, rayDepth, tc)
		t.barrier.Await()
		if t.err != nil {
			return
		}

		if nranks > 1 {
			t.procRecvQs(tid, rayDepth, tc)
			t.barrier.Await()
			if t.err != nil {
				return
			}
		}

		if tid == 0 {
			if rayDepth < nbounces && nranks > 1 {
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

		// Resolve speculative work against the reconciled input buffer.
		tc.ProcessRays2()
		t.barrier.Await()

		t.populateWorkStats(tc)
		tc.ResetAndSwapMems()
		rayDepth++

		t.barrier.Await()
	}
}

func (t *InsituTracer) fail(err error) {
	logger.Criticalf("rank %d: %v", t.comm.Rank(), err)
	t.err = err
	t.done = true
}

// genEyeRays fills this thread's share of the shared eye buffer. Sample
// ids are offsets into the full image sample range so they stay unique
// across ranks.
func (t *InsituTracer) genEyeRays(tid int, eyes []Ray) {
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

func (t *InsituTracer) populateRadWorkStats(tc *TContext) {
	tc.PopulateRadWorkStats()
	t.barrier.Await()
	if tc.tid == 0 {
		t.mergeWorkStats()
	}
	t.barrier.Await()
}

func (t *InsituTracer) populateWorkStats(tc *TContext) {
	tc.PopulateWorkStats()
	t.barrier.Await()
	if tc.tid == 0 {
		t.mergeWorkStats()
	}
}

func (t *InsituTracer) mergeWorkStats() {
	t.workStats.Reset()
	for _, c := range t.tcontexts {
		t.workStats.Merge(c.WorkStats())
	}
	t.workStats.Fold(t.comm.Rank(), t.tcontexts[0].rankOf)
}

// sendRays packs every foreign-domain shard into one contiguous message
// per (domain, kind) and hands it to the comm driver. The parallel prefix
// scan gives each thread its disjoint copy offset.
func (t *InsituTracer) sendRays(tid int, tc *TContext) {
	for id := 0; id < t.sc.NumDomains(); id++ {
		dest := t.sc.Partition.Rank(id)
		if dest != t.comm.Rank() {
			numRads := tc.RqSize(id)
			t.scan.Set(tid, numRads)
			t.barrier.Await()
			if tid == 0 {
				t.scan.Scan()
			}
			t.barrier.Await()

			if t.scan.Sum() > 0 {
				t.send(false, tid, id, dest, numRads, tc)
			}
			t.barrier.Await()

			numShads := tc.SqSize(id)
			t.scan.Set(tid, numShads)
			t.barrier.Await()
			if tid == 0 {
				t.scan.Scan()
			}
			t.barrier.Await()

			if t.scan.Sum() > 0 {
				t.send(true, tid, id, dest, numShads, tc)
			}
		}
		t.barrier.Await()
	}
}

func (t *InsituTracer) send(shadow bool, tid, domainID, dest, numRays int, tc *TContext) {
	if tid == 0 {
		t.sendBuf = EncodeRayMsgHeader(domainID, t.scan.Sum())
	}
	t.barrier.Await()

	target := t.scan.Get(tid) - numRays
	rays := tc.DrainRays(shadow, domainID)
	for i, r := range rays {
		r.Encode(t.sendBuf[msgHeaderSize+(target+i)*raySize:])
	}

	t.barrier.Await()
	if tid == 0 {
		tag := mpi.TagSendRadianceRays
		if shadow {
			tag = mpi.TagSendShadowRays
		}
		t.driver.PushSendQ(dest, tag, t.sendBuf)
	}
}

// receive files one decoded incoming message on the matching queue. Runs
// on the master thread inside Comm.Run.
func (t *InsituTracer) receive(tag, domainID int, rays []Ray) {
	switch tag {
	case mpi.TagSendRadianceRays:
		t.recvRq = append(t.recvRq, recvMsg{domainID: domainID, rays: rays})
	case mpi.TagSendShadowRays:
		t.recvSq = append(t.recvSq, recvMsg{domainID: domainID, rays: rays})
	}
}

// procCachedRq replays speculative hits that are still authoritative.
func (t *InsituTracer) procCachedRq(tid, rayDepth int, tc *TContext) {
	if tid == 0 {
		for _, c := range t.tcontexts {
			c.UpdateTBufWithCached()
		}
	}
	t.barrier.Await()
	tc.ProcessCached(rayDepth)
}

// procLocalQs processes every domain owned by this rank that any thread
// holds rays for.
func (t *InsituTracer) procLocalQs(tid, rayDepth int, tc *TContext) {
	for _, id := range t.sc.Partition.Domains(t.comm.Rank()) {
		if tc.IsLocalQsEmpty(id) {
			t.threadStatus.Clear(tid)
		} else {
			t.threadStatus.Set(tid)
		}
		t.barrier.Await()

		if t.threadStatus.IsAnySet() {
			if tid == 0 {
				geom, err := t.sc.Load(id)
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
		}
		t.barrier.Await()
	}
}

// procRecvQs drains the received queues, assigning rays to threads round
// robin within each message.
func (t *InsituTracer) procRecvQs(tid, rayDepth int, tc *TContext) {
	for _, msg := range t.recvRq {
		if tid == 0 {
			geom, err := t.sc.Load(msg.domainID)
			if err != nil {
				t.fail(err)
			} else {
				for _, c := range t.tcontexts {
					c.SetSceneInfo(msg.domainID, geom)
				}
			}
		}
		t.barrier.Await()
		if t.err != nil {
			return
		}

		for i := tid; i < len(msg.rays); i += t.cfg.NumThreads {
			tc.IsectRecvRad(&msg.rays[i])
		}
		t.barrier.Await()

		if tid == 0 {
			for _, c := range t.tcontexts {
				c.UpdateTBuf()
			}
		}
		t.barrier.Await()

		tc.GenRays(msg.domainID, rayDepth)
		t.barrier.Await()
	}

	for _, msg := range t.recvSq {
		if tid == 0 {
			geom, err := t.sc.Load(msg.domainID)
			if err != nil {
				t.fail(err)
			} else {
				for _, c := range t.tcontexts {
					c.SetSceneInfo(msg.domainID, geom)
				}
			}
		}
		t.barrier.Await()
		if t.err != nil {
			return
		}

		for i := tid; i < len(msg.rays); i += t.cfg.NumThreads {
			tc.OcclRecvShad(&msg.rays[i])
		}
		t.barrier.Await()

		if tid == 0 {
			for _, c := range t.tcontexts {
				c.UpdateOBuf()
			}
		}
		t.barrier.Await()
	}

	if tid == 0 {
		t.recvRq = t.recvRq[:0]
		t.recvSq = t.recvSq[:0]
	}
}

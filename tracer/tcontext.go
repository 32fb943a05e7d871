package tracer

import (
	"math"

	"github.com/hyungman/SpRay/display"
	"github.com/hyungman/SpRay/scene"
)

type isectInfo struct {
	ray   *Ray
	isect *scene.Intersection
}

type occlInfo struct {
	samid int32
	light int32
}

type cacheItem struct {
	domainID int
	ray      *Ray
	isect    *scene.Intersection
}

// A TContext is one worker thread's scheduling state: the per-domain
// radiance and shadow queue shards, the intersection scratch queues, the
// speculation queues and the retire queue. All queue mutation is
// single-writer; cross-thread aggregation happens at phase barriers.
type TContext struct {
	tid        int
	rank       int
	numDomains int

	partition *scene.InsituPartition
	sc        *scene.Scene
	vbuf      *VBuf
	image     *display.HdrImage
	shader    Shader
	isector   *Isector

	mem ArenaPair

	rqs *QVector // radiance queues per domain
	sqs *QVector // shadow queues per domain

	isects        []isectInfo // hits awaiting visibility reconciliation
	occls         []occlInfo  // confirmed occlusions awaiting obuf writes
	reducedIsects []isectInfo // hits that won the atomic min

	sq2  []*Ray      // shader shadow outputs
	rq2  []*Ray      // shader secondary outputs
	fsq2 []cacheItem // shadow outputs after self-domain filtering
	frq2 []cacheItem // secondary outputs after self-domain filtering

	cachedRq        []cacheItem // speculative local hits (out of core)
	reducedCachedRq []cacheItem

	retireQ     []*Ray // shadow rays ready to deposit once obuf settles
	pendingQ    []*Ray // secondaries parked by the virtual depth window
	backgroundQ []*Ray // eye rays that missed every domain

	workStats *WorkStats

	// Geometry of the domain currently being processed.
	geom      *scene.Geometry
	curDomain int

	// Set by the out-of-core tracer to activate the virtual depth window.
	pendingEnabled bool

	// loadGeom resolves domain geometry for speculative replay. In-situ
	// uses the resident scene map; out of core routes through the cache,
	// with releaseGeom unpinning the block afterwards.
	loadGeom    func(domainID int) (*scene.Geometry, error)
	releaseGeom func(domainID int)

	seqCounter uint32
}

// NewTContext wires one thread context.
func NewTContext(tid, rank, numRanks int, sc *scene.Scene, vbuf *VBuf, image *display.HdrImage, shader Shader) *TContext {
	return &TContext{
		tid:        tid,
		rank:       rank,
		numDomains: sc.NumDomains(),
		partition:  sc.Partition,
		sc:         sc,
		vbuf:       vbuf,
		image:      image,
		shader:     shader,
		isector:    NewIsector(sc),
		mem:        NewArenaPair(),
		rqs:        NewQVector(sc.NumDomains()),
		sqs:        NewQVector(sc.NumDomains()),
		workStats:  NewWorkStats(numRanks, sc.NumDomains()),
		loadGeom:   sc.Load,
	}
}

// SetLoader overrides the geometry source for speculative replay. The
// release hook may be nil.
func (t *TContext) SetLoader(load func(domainID int) (*scene.Geometry, error), release func(domainID int)) {
	t.loadGeom = load
	t.releaseGeom = release
}

// nextKey mints the tie-break key for a hit found by this thread. Keys
// disambiguate exact-t ties between distinct rays on one sample; the hash
// spreads sender-assigned sequences so forwarded rays cannot collide with
// local ones except with negligible probability.
func (t *TContext) nextKey(r *Ray) uint32 {
	t.seqCounter++
	if r.Seq == 0 {
		return hashKey(uint32(r.SamID)*0x9E3779B9 + uint32(t.tid)<<18 + t.seqCounter)
	}
	return hashKey(r.Seq)
}

func hashKey(v uint32) uint32 {
	v ^= v >> 16
	v *= 0x7FEB352D
	v ^= v >> 15
	v *= 0x846CA68B
	v ^= v >> 16
	return v & 0xFFFFFF
}

// Mem returns the thread's arena pair.
func (t *TContext) Mem() *ArenaPair { return &t.mem }

// ResetMems rewinds both arenas at frame start.
func (t *TContext) ResetMems() { t.mem.ResetAll() }

// ResetAndSwapMems rotates arenas at a depth boundary.
func (t *TContext) ResetAndSwapMems() { t.mem.ResetAndSwap() }

// Reset clears all queues for a new frame.
func (t *TContext) Reset() {
	t.rqs.Reset()
	t.sqs.Reset()
	t.isects = nil
	t.occls = nil
	t.reducedIsects = nil
	t.sq2 = nil
	t.rq2 = nil
	t.fsq2 = nil
	t.frq2 = nil
	t.cachedRq = nil
	t.reducedCachedRq = nil
	t.retireQ = nil
	t.pendingQ = nil
	t.backgroundQ = nil
	t.seqCounter = 0
}

// SetSceneInfo installs the loaded geometry for the domain being processed.
func (t *TContext) SetSceneInfo(domainID int, geom *scene.Geometry) {
	t.curDomain = domainID
	t.geom = geom
}

// IsectDomains places an eye ray into the queues of every domain it
// overlaps, or onto the background queue when it misses all of them.
func (t *TContext) IsectDomains(r *Ray) {
	t.isector.IntersectEye(r, t.rqs, &t.backgroundQ)
}

// IsLocalQsEmpty reports whether this thread holds no rays for a domain.
func (t *TContext) IsLocalQsEmpty(domainID int) bool {
	return t.rqs.Empty(domainID) && t.sqs.Empty(domainID)
}

// RqSize and SqSize expose shard sizes for the send scans.
func (t *TContext) RqSize(domainID int) int { return t.rqs.Size(domainID) }
func (t *TContext) SqSize(domainID int) int { return t.sqs.Size(domainID) }

// DrainRays removes and returns one shard for message packing.
func (t *TContext) DrainRays(shadow bool, domainID int) []*Ray {
	if shadow {
		return t.sqs.Drain(domainID)
	}
	return t.rqs.Drain(domainID)
}

// EnqueueRadiance re-queues a ray for a domain (receive path).
func (t *TContext) EnqueueRadiance(domainID int, r *Ray) { t.rqs.Push(domainID, r) }

// EnqueueShadow re-queues a shadow ray for a domain (receive path).
func (t *TContext) EnqueueShadow(domainID int, r *Ray) { t.sqs.Push(domainID, r) }

// PopulateRadWorkStats flags the initial radiance blocks after eye-ray
// placement.
func (t *TContext) PopulateRadWorkStats() {
	t.workStats.Reset()
	for id := 0; id < t.numDomains; id++ {
		if !t.rqs.Empty(id) {
			t.workStats.MarkRadianceBlock(id)
		}
	}
}

// PopulateWorkStats flags the blocks owed for the next depth: one per
// nonempty (domain, kind) queue, plus the speculation and pending queues
// owed to this rank itself.
func (t *TContext) PopulateWorkStats() {
	t.workStats.Reset()

	n := 0
	if len(t.cachedRq) > 0 {
		n++
	}
	if len(t.pendingQ) > 0 {
		n++
	}
	if n > 0 {
		t.workStats.AddSelfBlocks(n)
	}

	for id := 0; id < t.numDomains; id++ {
		if !t.rqs.Empty(id) {
			t.workStats.MarkRadianceBlock(id)
		}
		if !t.sqs.Empty(id) {
			t.workStats.MarkShadowBlock(id)
		}
	}
}

// rankOf resolves a domain's destination: out of core every queue is this
// rank's own work; in situ it belongs to the owning rank.
func (t *TContext) rankOf(domainID int) int {
	if t.pendingEnabled {
		return t.rank
	}
	return t.partition.Rank(domainID)
}

// CollectDomainStats credits the load scheduler with this thread's queued
// rays, bucketed by virtual depth.
func (t *TContext) CollectDomainStats(ds *DomainStats) {
	for id := 0; id < t.numDomains; id++ {
		for _, ray := range t.rqs.Peek(id) {
			ds.Add(id, ray.Depth, 1)
		}
		if n := t.sqs.Size(id); n > 0 {
			ds.Add(id, 0, int64(n))
		}
	}
}

// WorkStats returns this thread's per-depth stats for merging.
func (t *TContext) WorkStats() *WorkStats { return t.workStats }

// ProcessRays drains this thread's queues for the loaded domain: radiance
// rays run a closest-hit query into the scratch queue; shadow rays whose
// occlusion bit is still clear run an occlusion query.
func (t *TContext) ProcessRays(domainID int) {
	for _, ray := range t.rqs.Drain(domainID) {
		isect, hit := t.geom.Intersect(ray.Org, ray.Dir, rayEpsilon, maxShadowT)
		if hit {
			rec := t.mem.Out.AllocIntersection()
			*rec = isect
			t.isects = append(t.isects, isectInfo{ray: ray, isect: rec})
		}
	}

	for _, ray := range t.sqs.Drain(domainID) {
		if !t.vbuf.Occluded(ray.SamID, ray.Light) {
			if t.geom.Occluded(ray.Org, ray.Dir, rayEpsilon, maxShadowT) {
				t.occls = append(t.occls, occlInfo{samid: ray.SamID, light: ray.Light})
			}
		}
	}
}

const maxShadowT = float32(math.MaxFloat32)

// IsectRecvRad intersects one received radiance ray against the loaded
// domain.
func (t *TContext) IsectRecvRad(ray *Ray) {
	isect, hit := t.geom.Intersect(ray.Org, ray.Dir, rayEpsilon, maxShadowT)
	if hit {
		rec := t.mem.Out.AllocIntersection()
		*rec = isect
		t.isects = append(t.isects, isectInfo{ray: ray, isect: rec})
	}
}

// OcclRecvShad runs the occlusion query for one received shadow ray.
func (t *TContext) OcclRecvShad(ray *Ray) {
	if !t.vbuf.Occluded(ray.SamID, ray.Light) {
		if t.geom.Occluded(ray.Org, ray.Dir, rayEpsilon, maxShadowT) {
			t.occls = append(t.occls, occlInfo{samid: ray.SamID, light: ray.Light})
		}
	}
}

// UpdateVBuf reconciles both scratch queues into the shared buffers.
func (t *TContext) UpdateVBuf() {
	t.UpdateTBuf()
	t.UpdateOBuf()
}

// UpdateTBuf pushes pending hits through the atomic min; winners move to
// the reduced queue as shading candidates.
func (t *TContext) UpdateTBuf() {
	for _, info := range t.isects {
		key := t.nextKey(info.ray)
		if t.vbuf.UpdateTBufOut(info.ray.SamID, info.isect.T, t.rank, key) {
			info.ray.Seq = key
			t.reducedIsects = append(t.reducedIsects, info)
		}
	}
	t.isects = t.isects[:0]
}

// UpdateOBuf publishes pending occlusions.
func (t *TContext) UpdateOBuf() {
	for _, o := range t.occls {
		t.vbuf.SetOBuf(o.samid, o.light)
	}
	t.occls = t.occls[:0]
}

// GenRays shades every surviving hit that still owns its sample, then
// filters the shader outputs against the current domain.
func (t *TContext) GenRays(domainID, rayDepth int) {
	for _, info := range t.reducedIsects {
		if t.vbuf.EqualToTBufOut(info.ray.SamID, info.isect.T, t.rank, info.ray.Seq) {
			t.shader.Shade(domainID, info.ray, info.isect, t.mem.Out, &t.sq2, &t.rq2, t.pendingSink(), rayDepth)
			t.filterSq2(domainID)
			t.filterRq2(domainID)
		}
	}
	t.reducedIsects = t.reducedIsects[:0]
}

// pendingSink exposes the virtual-depth parking queue only when the shader
// runs under the out-of-core tracer.
func (t *TContext) pendingSink() *[]*Ray {
	if t.pendingEnabled {
		return &t.pendingQ
	}
	return nil
}

// filterSq2 runs each new shadow ray against the domain it was shaded in,
// the most likely occluder, and marks its occluded bit.
func (t *TContext) filterSq2(domainID int) {
	for _, ray := range t.sq2 {
		if t.geom.Occluded(ray.Org, ray.Dir, rayEpsilon, maxShadowT) {
			ray.Occluded = 1
		}
		t.fsq2 = append(t.fsq2, cacheItem{domainID: domainID, ray: ray})
	}
	t.sq2 = t.sq2[:0]
}

// filterRq2 runs each new secondary ray against the current domain to
// obtain a speculative closest hit.
func (t *TContext) filterRq2(domainID int) {
	for _, ray := range t.rq2 {
		item := cacheItem{domainID: domainID, ray: ray}
		isect, hit := t.geom.Intersect(ray.Org, ray.Dir, rayEpsilon, maxShadowT)
		if hit {
			rec := t.mem.Out.AllocIntersection()
			*rec = isect
			item.isect = rec
		}
		t.frq2 = append(t.frq2, item)
	}
	t.rq2 = t.rq2[:0]
}

// ProcFsq2 disposes filtered shadow rays once the reconciled input buffer
// confirms their originating hit: locally occluded rays mark obuf; the
// rest join the retire queue and fan out to the other domains they
// overlap.
func (t *TContext) ProcFsq2() {
	for _, item := range t.fsq2 {
		ray := item.ray
		if t.vbuf.Correct(ray.SamID, ray.T) {
			if ray.Occluded != 0 {
				t.vbuf.SetOBuf(ray.SamID, ray.Light)
			} else {
				t.retireQ = append(t.retireQ, ray)
				t.isector.IntersectExclude(item.domainID, ray, t.sqs)
			}
		}
	}
	t.fsq2 = t.fsq2[:0]
}

// ProcFrq2 routes filtered secondary rays: a speculative local hit is
// recorded for replay and only domains entered closer than it are queued;
// a miss queues every other overlapped domain.
func (t *TContext) ProcFrq2() {
	for _, item := range t.frq2 {
		ray := item.ray
		if t.vbuf.Correct(ray.SamID, ray.T) {
			if item.isect != nil {
				t.cachedRq = append(t.cachedRq, item)
				t.isector.IntersectExcludeT(item.domainID, item.isect.T, ray, t.rqs)
			} else {
				t.isector.IntersectExclude(item.domainID, ray, t.rqs)
			}
		}
	}
	t.frq2 = t.frq2[:0]
}

// ProcessRays2 resolves the speculation queues against the freshly
// reconciled input buffer. Runs after the tbuf swap at each depth.
func (t *TContext) ProcessRays2() {
	t.ProcFsq2()
	t.ProcFrq2()
}

// UpdateTBufWithCached replays speculative local hits into the visibility
// buffer for the new depth.
func (t *TContext) UpdateTBufWithCached() {
	for _, item := range t.cachedRq {
		key := t.nextKey(item.ray)
		if t.vbuf.UpdateTBufOut(item.ray.SamID, item.isect.T, t.rank, key) {
			item.ray.Seq = key
			t.reducedCachedRq = append(t.reducedCachedRq, item)
		}
	}
	t.cachedRq = t.cachedRq[:0]
}

// ProcessCached shades replayed hits that survived the atomic min. The
// speculative hit is known correct for its own rank, so no equality check
// is repeated here.
func (t *TContext) ProcessCached(rayDepth int) {
	for _, item := range t.reducedCachedRq {
		geom, curDomain := t.geom, t.curDomain
		if g, err := t.loadGeom(item.domainID); err == nil {
			t.SetSceneInfo(item.domainID, g)
			t.shader.Shade(item.domainID, item.ray, item.isect, t.mem.Out, &t.sq2, &t.rq2, t.pendingSink(), rayDepth)
			t.filterSq2(item.domainID)
			t.filterRq2(item.domainID)
			if t.releaseGeom != nil {
				t.releaseGeom(item.domainID)
			}
		}
		t.geom, t.curDomain = geom, curDomain
	}
	t.reducedCachedRq = t.reducedCachedRq[:0]
}

// ReleasePending moves parked secondaries back into the radiance queues
// for the next depth wave.
func (t *TContext) ReleasePending() {
	for _, ray := range t.pendingQ {
		t.isector.Intersect(ray, t.rqs)
	}
	t.pendingQ = t.pendingQ[:0]
}

// ProcRetireQ deposits retired shadow rays whose occlusion bit stayed
// clear through reconciliation.
func (t *TContext) ProcRetireQ(numPixelSamples int) {
	scale := 1.0 / float64(numPixelSamples)
	for _, ray := range t.retireQ {
		if !t.vbuf.Occluded(ray.SamID, ray.Light) {
			t.image.Add(int(ray.PixID), ray.W, scale)
		}
	}
	t.retireQ = t.retireQ[:0]
}

// RetireBackground deposits the background color once for each eye ray
// that traversed zero domains.
func (t *TContext) RetireBackground(background [3]float32, numPixelSamples int) {
	scale := 1.0 / float64(numPixelSamples)
	for _, ray := range t.backgroundQ {
		w := ray.W
		w[0] *= background[0]
		w[1] *= background[1]
		w[2] *= background[2]
		t.image.Add(int(ray.PixID), w, scale)
	}
	t.backgroundQ = t.backgroundQ[:0]
}

// EnablePendingQ activates the virtual depth window.
func (t *TContext) EnablePendingQ() { t.pendingEnabled = true }

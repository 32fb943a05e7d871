package tracer

import (
	"sort"

	"github.com/hyungman/SpRay/scene"
	"github.com/hyungman/SpRay/types"
)

type domainHit struct {
	id int
	t  float32
}

// An Isector tests rays against domain bounds and places them into the
// per-domain queues front to back. At most rayDomainListSize domains are
// kept per ray; ties on entry distance break to the lower domain id so the
// traversal order is deterministic.
type Isector struct {
	domains []scene.Domain
	hits    []domainHit
}

func NewIsector(sc *scene.Scene) *Isector {
	return &Isector{
		domains: sc.Domains,
		hits:    make([]domainHit, 0, rayDomainListSize),
	}
}

// collect gathers the sorted hit list for one ray. excludeID rules out the
// ray's current domain; maxT drops domains entered beyond the known hit.
func (is *Isector) collect(org, dir types.Vec3, excludeID int, maxT float32) []domainHit {
	is.hits = is.hits[:0]

	for i := range is.domains {
		d := &is.domains[i]
		if d.ID == excludeID {
			continue
		}
		t, ok := d.WorldAabb.IntersectRay(org, dir, rayEpsilon, types.FloatInf)
		if !ok || t >= maxT {
			continue
		}

		if len(is.hits) < rayDomainListSize {
			is.hits = append(is.hits, domainHit{id: d.ID, t: t})
			continue
		}
		// Keep the nearest K: replace the current worst if this entry
		// is closer.
		worst := 0
		for h := 1; h < len(is.hits); h++ {
			if domainHitLess(is.hits[worst], is.hits[h]) {
				worst = h
			}
		}
		if domainHitLess(domainHit{id: d.ID, t: t}, is.hits[worst]) {
			is.hits[worst] = domainHit{id: d.ID, t: t}
		}
	}

	sort.Slice(is.hits, func(a, b int) bool {
		return domainHitLess(is.hits[a], is.hits[b])
	})
	return is.hits
}

func domainHitLess(a, b domainHit) bool {
	return a.t < b.t || (a.t == b.t && a.id < b.id)
}

// Intersect queues a ray into every domain it overlaps.
func (is *Isector) Intersect(r *Ray, qs *QVector) {
	for _, h := range is.collect(r.Org, r.Dir, -1, types.FloatInf) {
		qs.Push(h.id, r)
	}
}

// IntersectEye queues an eye ray, sending misses to the background queue.
func (is *Isector) IntersectEye(r *Ray, qs *QVector, backgroundQ *[]*Ray) {
	hits := is.collect(r.Org, r.Dir, -1, types.FloatInf)
	if len(hits) == 0 {
		*backgroundQ = append(*backgroundQ, r)
		return
	}
	for _, h := range hits {
		qs.Push(h.id, r)
	}
}

// IntersectExclude queues a secondary ray into every overlapped domain
// except the one it was shaded in.
func (is *Isector) IntersectExclude(excludeID int, r *Ray, qs *QVector) {
	for _, h := range is.collect(r.Org, r.Dir, excludeID, types.FloatInf) {
		qs.Push(h.id, r)
	}
}

// IntersectExcludeT additionally drops domains entered at or beyond the
// ray's speculative hit distance.
func (is *Isector) IntersectExcludeT(excludeID int, maxT float32, r *Ray, qs *QVector) {
	for _, h := range is.collect(r.Org, r.Dir, excludeID, maxT) {
		qs.Push(h.id, r)
	}
}

// IntersectExcludeBackground queues a secondary radiance ray, sending
// misses to the background queue.
func (is *Isector) IntersectExcludeBackground(excludeID int, r *Ray, qs *QVector, backgroundQ *[]*Ray) {
	hits := is.collect(r.Org, r.Dir, excludeID, types.FloatInf)
	if len(hits) == 0 {
		*backgroundQ = append(*backgroundQ, r)
		return
	}
	for _, h := range hits {
		qs.Push(h.id, r)
	}
}

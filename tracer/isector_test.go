package tracer

import (
	"testing"

	"github.com/hyungman/SpRay/scene"
	"github.com/hyungman/SpRay/types"
)

func boxAt(z float32) types.Aabb {
	return types.Aabb{Min: types.Vec3{-1, -1, z - 0.5}, Max: types.Vec3{1, 1, z + 0.5}}
}

func stackedScene(zs ...float32) *scene.Scene {
	sc := &scene.Scene{}
	for i, z := range zs {
		sc.Domains = append(sc.Domains, scene.Domain{ID: i, WorldAabb: boxAt(z)})
	}
	sc.Partition = scene.NewInsituPartition(len(zs), 1)
	return sc
}

func TestIsectorFrontToBack(t *testing.T) {
	// Domains stacked along -z; a ray from +z must visit near to far.
	sc := stackedScene(-4, 0, -2)
	is := NewIsector(sc)
	qs := NewQVector(sc.NumDomains())

	ray := &Ray{Org: types.Vec3{0, 0, 5}, Dir: types.Vec3{0, 0, -1}, T: maxShadowT}
	is.Intersect(ray, qs)

	for id := 0; id < 3; id++ {
		if qs.Size(id) != 1 {
			t.Fatalf("domain %d: expected 1 queued ray; got %d", id, qs.Size(id))
		}
	}

	hits := is.collect(ray.Org, ray.Dir, -1, types.FloatInf)
	expOrder := []int{1, 2, 0} // z=0 first, then z=-2, then z=-4
	for i, h := range hits {
		if h.id != expOrder[i] {
			t.Fatalf("position %d: expected domain %d; got %d", i, expOrder[i], h.id)
		}
	}
}

func TestIsectorTieBreak(t *testing.T) {
	// Two domains sharing an entry plane must order by id.
	sc := stackedScene(0, 0)
	is := NewIsector(sc)

	hits := is.collect(types.Vec3{0, 0, 5}, types.Vec3{0, 0, -1}, -1, types.FloatInf)
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits; got %d", len(hits))
	}
	if hits[0].id != 0 || hits[1].id != 1 {
		t.Fatalf("expected id order 0,1 on tie; got %d,%d", hits[0].id, hits[1].id)
	}
}

func TestIsectorBackground(t *testing.T) {
	sc := stackedScene(0)
	is := NewIsector(sc)
	qs := NewQVector(1)

	var backgroundQ []*Ray
	miss := &Ray{Org: types.Vec3{0, 0, 5}, Dir: types.Vec3{0, 0, 1}, T: maxShadowT}
	is.IntersectEye(miss, qs, &backgroundQ)

	if qs.Size(0) != 0 {
		t.Fatalf("expected no queued rays for a miss")
	}
	if len(backgroundQ) != 1 {
		t.Fatalf("expected the miss on the background queue; got %d entries", len(backgroundQ))
	}
}

func TestIsectorExcludeAndLimit(t *testing.T) {
	sc := stackedScene(0, -2, -4)
	is := NewIsector(sc)

	qs := NewQVector(3)
	ray := &Ray{Org: types.Vec3{0, 0, 5}, Dir: types.Vec3{0, 0, -1}, T: maxShadowT}

	is.IntersectExclude(0, ray, qs)
	if qs.Size(0) != 0 {
		t.Fatalf("expected the excluded domain to stay empty")
	}
	if qs.Size(1) != 1 || qs.Size(2) != 1 {
		t.Fatalf("expected the other domains queued; got %d and %d", qs.Size(1), qs.Size(2))
	}

	// A speculative hit at t=7.2 (inside domain 1) rules out domain 2,
	// entered at t=8.5.
	qs2 := NewQVector(3)
	is.IntersectExcludeT(0, 7.2, ray, qs2)
	if qs2.Size(1) != 1 {
		t.Fatalf("expected the closer domain queued; got %d", qs2.Size(1))
	}
	if qs2.Size(2) != 0 {
		t.Fatalf("expected the farther domain dropped")
	}
}

func TestIsectorDomainListCap(t *testing.T) {
	// More overlapping domains than the list size; the nearest K must
	// survive.
	zs := make([]float32, rayDomainListSize+4)
	for i := range zs {
		zs[i] = -float32(i)
	}
	sc := stackedScene(zs...)
	is := NewIsector(sc)

	hits := is.collect(types.Vec3{0, 0, 5}, types.Vec3{0, 0, -1}, -1, types.FloatInf)
	if len(hits) != rayDomainListSize {
		t.Fatalf("expected %d hits; got %d", rayDomainListSize, len(hits))
	}
	for i, h := range hits {
		if h.id != i {
			t.Fatalf("expected the %d nearest domains; position %d holds %d", rayDomainListSize, i, h.id)
		}
	}
}

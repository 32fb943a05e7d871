package scene

import (
	"fmt"
	"sync"

	"github.com/hyungman/SpRay/log"
	"github.com/hyungman/SpRay/types"
)

var logger = log.New("scene")

// Scene is the per-rank view of the whole distributed dataset: every domain
// descriptor with its world bounds plus the light list and the in-situ
// partition. Domain geometry is not resident here; callers obtain it with
// Load, either keeping it pinned (in-situ) or through a cache (out of
// core).
type Scene struct {
	Domains []Domain
	Lights  []Light

	Partition *InsituPartition

	bound types.Aabb

	// Resident geometry for in-situ mode, keyed by domain id.
	residentMu sync.Mutex
	resident   map[int]*Geometry
}

// Init parses the descriptor, computes per-domain world bounds and builds
// the in-situ partition over numRanks. No domain geometry is loaded here;
// Load and LoadUncached read it on demand.
func Init(descriptor, plyPath string, numLightSamples, numRanks int) (*Scene, error) {
	domains, lights, err := LoadDescriptor(descriptor, plyPath, numLightSamples)
	if err != nil {
		return nil, err
	}

	s := &Scene{
		Domains:   domains,
		Lights:    lights,
		Partition: NewInsituPartition(len(domains), numRanks),
		resident:  map[int]*Geometry{},
		bound:     types.NewAabb(),
	}

	for i := range s.Domains {
		if err := s.computeDomainBounds(&s.Domains[i]); err != nil {
			return nil, err
		}
		s.bound.UnionAabb(s.Domains[i].WorldAabb)
	}
	return s, nil
}

// Bound returns the union of all domain bounds.
func (s *Scene) Bound() types.Aabb { return s.bound }

// NumDomains in the scene.
func (s *Scene) NumDomains() int { return len(s.Domains) }

// Load returns the geometry for a domain, reading it from disk on first
// use and keeping it resident afterwards. The out-of-core tracer bypasses
// this and evicts through its cache instead, calling LoadUncached.
func (s *Scene) Load(domainID int) (*Geometry, error) {
	s.residentMu.Lock()
	defer s.residentMu.Unlock()

	if g, ok := s.resident[domainID]; ok {
		return g, nil
	}
	g, err := s.LoadUncached(domainID)
	if err != nil {
		return nil, err
	}
	s.resident[domainID] = g
	return g, nil
}

// LoadUncached reads a domain's models from disk and builds its BVH. The
// caller owns the returned geometry.
func (s *Scene) LoadUncached(domainID int) (*Geometry, error) {
	d := &s.Domains[domainID]

	g := &Geometry{domain: d, bounds: types.NewAabb()}

	for mi := range d.Models {
		m := &d.Models[mi]
		mesh, err := readPly(m.Filename)
		if err != nil {
			return nil, err
		}

		base := int32(len(g.verts))
		for _, v := range mesh.verts {
			p := m.Transform.TransformPoint(v)
			g.verts = append(g.verts, p)
			g.bounds.Union(p)
		}
		if mesh.colors != nil {
			if g.colors == nil {
				g.colors = make([]uint32, base)
				for i := range g.colors {
					g.colors[i] = types.InvalidColor
				}
			}
			g.colors = append(g.colors, mesh.colors...)
		} else if g.colors != nil {
			for range mesh.verts {
				g.colors = append(g.colors, types.InvalidColor)
			}
		}

		matIndex := int32(len(g.materials))
		g.materials = append(g.materials, m.Material)
		for fi := 0; fi < len(mesh.faces); fi += 3 {
			g.faces = append(g.faces,
				mesh.faces[fi]+base, mesh.faces[fi+1]+base, mesh.faces[fi+2]+base)
			g.faceMaterial = append(g.faceMaterial, matIndex)
		}
	}

	g.shapes = d.Shapes
	for _, sh := range g.shapes {
		g.bounds.UnionAabb(sh.Bounds())
	}

	numTris := g.NumTriangles()
	prims := make([]bvhPrim, 0, numTris+len(g.shapes))
	for t := 0; t < numTris; t++ {
		box := types.NewAabb()
		box.Union(g.verts[g.faces[t*3]])
		box.Union(g.verts[g.faces[t*3+1]])
		box.Union(g.verts[g.faces[t*3+2]])
		prims = append(prims, bvhPrim{id: int32(t), bounds: box, center: box.Center()})
	}
	for i, sh := range g.shapes {
		box := sh.Bounds()
		prims = append(prims, bvhPrim{id: int32(numTris + i), bounds: box, center: box.Center()})
	}
	if len(prims) == 0 {
		return nil, fmt.Errorf("scene: domain %d holds no geometry", domainID)
	}
	g.bvh = buildBvh(prims)

	d.NumVertices = int64(len(g.verts))
	d.NumFaces = int64(numTris)

	return g, nil
}

// computeDomainBounds derives a domain's world bounds. Mesh files are
// scanned once for their vertex extents; analytic shapes contribute their
// bounds directly.
func (s *Scene) computeDomainBounds(d *Domain) error {
	box := types.NewAabb()

	for mi := range d.Models {
		m := &d.Models[mi]
		mesh, err := readPly(m.Filename)
		if err != nil {
			return err
		}
		for _, v := range mesh.verts {
			box.Union(m.Transform.TransformPoint(v))
		}
		d.NumVertices += int64(len(mesh.verts))
		d.NumFaces += int64(len(mesh.faces) / 3)
	}
	for _, sh := range d.Shapes {
		box.UnionAabb(sh.Bounds())
	}

	if !box.Valid() {
		return fmt.Errorf("scene: domain %d has empty bounds", d.ID)
	}
	d.ObjectAabb = box
	d.WorldAabb = box
	return nil
}

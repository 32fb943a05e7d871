package scene

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyungman/SpRay/types"
)

// writeTrianglePly writes an ascii ply holding one triangle spanning
// [-size, size] in x/y at the given z, facing +z.
func writeTrianglePly(t *testing.T, dir, name string, z, size float32) string {
	t.Helper()
	content := fmt.Sprintf(`ply
format ascii 1.0
element vertex 3
property float x
property float y
property float z
element face 1
property list uchar int vertex_indices
end_header
%g %g %g
%g %g %g
%g %g %g
3 0 1 2
`,
		-size, -size, z,
		size, -size, z,
		0.0, size, z)

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing ply: %v", err)
	}
	return path
}

func loadTriangleDomain(t *testing.T, z, size float32) *Geometry {
	t.Helper()
	dir := t.TempDir()
	writeTrianglePly(t, dir, "tri.ply", z, size)

	descriptor := "domain\nModelBegin\nfile tri.ply\nmaterial matte 0.25 0.5 0.75\nModelEnd\n"
	path := filepath.Join(dir, "scene.descriptor")
	if err := os.WriteFile(path, []byte(descriptor), 0o644); err != nil {
		t.Fatalf("writing descriptor: %v", err)
	}

	sc, err := Init(path, dir, 1, 1)
	if err != nil {
		t.Fatalf("scene init: %v", err)
	}
	g, err := sc.Load(0)
	if err != nil {
		t.Fatalf("domain load: %v", err)
	}
	return g
}

func TestGeometryIntersect(t *testing.T) {
	g := loadTriangleDomain(t, 0, 2)

	if g.NumTriangles() != 1 {
		t.Fatalf("expected 1 triangle; got %d", g.NumTriangles())
	}

	isect, hit := g.Intersect(types.Vec3{0, 0, 3}, types.Vec3{0, 0, -1}, 1e-4, types.FloatInf)
	if !hit {
		t.Fatalf("expected a hit through the triangle center")
	}
	if absf(isect.T-3) > 1e-4 {
		t.Fatalf("expected t=3; got %f", isect.T)
	}
	if isect.Ns[2] <= 0 {
		t.Fatalf("expected +z shading normal; got %v", isect.Ns)
	}
	if isect.Color != types.InvalidColor {
		t.Fatalf("expected invalid color for an uncolored mesh; got %#x", isect.Color)
	}
	matte, ok := isect.Material.(*Matte)
	if !ok {
		t.Fatalf("expected matte material; got %T", isect.Material)
	}
	if matte.Kd != (types.Vec3{0.25, 0.5, 0.75}) {
		t.Fatalf("unexpected albedo %v", matte.Kd)
	}

	if _, hit := g.Intersect(types.Vec3{5, 5, 3}, types.Vec3{0, 0, -1}, 1e-4, types.FloatInf); hit {
		t.Fatalf("expected a miss far outside the triangle")
	}
}

func TestGeometryOccluded(t *testing.T) {
	g := loadTriangleDomain(t, 0, 2)

	if !g.Occluded(types.Vec3{0, 0, 3}, types.Vec3{0, 0, -1}, 1e-4, types.FloatInf) {
		t.Fatalf("expected occlusion through the triangle")
	}
	if g.Occluded(types.Vec3{0, 0, 3}, types.Vec3{0, 0, 1}, 1e-4, types.FloatInf) {
		t.Fatalf("expected no occlusion looking away")
	}
}

func TestSphereGeometry(t *testing.T) {
	dir := t.TempDir()
	descriptor := "domain\nsphere 0 0 0 1 matte 1 0 0\n"
	path := filepath.Join(dir, "scene.descriptor")
	if err := os.WriteFile(path, []byte(descriptor), 0o644); err != nil {
		t.Fatalf("writing descriptor: %v", err)
	}

	sc, err := Init(path, dir, 1, 1)
	if err != nil {
		t.Fatalf("scene init: %v", err)
	}
	g, err := sc.Load(0)
	if err != nil {
		t.Fatalf("domain load: %v", err)
	}

	isect, hit := g.Intersect(types.Vec3{0, 0, 5}, types.Vec3{0, 0, -1}, 1e-4, types.FloatInf)
	if !hit {
		t.Fatalf("expected a sphere hit")
	}
	if absf(isect.T-4) > 1e-4 {
		t.Fatalf("expected t=4; got %f", isect.T)
	}
	if isect.Ns[2] < 0.99 {
		t.Fatalf("expected +z normal at the near pole; got %v", isect.Ns)
	}
	if isect.Color != types.InvalidColor {
		t.Fatalf("analytic shapes must report the invalid color sentinel")
	}
}

func TestSamplerDeterminism(t *testing.T) {
	a := NewSampler(42)
	b := NewSampler(42)
	for i := 0; i < 16; i++ {
		va, vb := a.Get1D(), b.Get1D()
		if va != vb {
			t.Fatalf("sample %d diverged: %f vs %f", i, va, vb)
		}
		if va < 0 || va >= 1 {
			t.Fatalf("sample %d out of range: %f", i, va)
		}
	}

	c := NewSampler(43)
	if c.Get1D() == NewSamplerValue42(t) {
		t.Fatalf("expected different seeds to produce different streams")
	}
}

func NewSamplerValue42(t *testing.T) float32 {
	t.Helper()
	s := NewSampler(42)
	return s.Get1D()
}

func TestCosineSampleHemisphere(t *testing.T) {
	s := NewSampler(7)
	n := types.Vec3{0, 0, 1}
	for i := 0; i < 64; i++ {
		dir, pdf := s.CosineSampleHemisphere(n)
		if dir.Dot(n) < 0 {
			t.Fatalf("sample %d below the hemisphere: %v", i, dir)
		}
		if pdf <= 0 {
			t.Fatalf("sample %d has nonpositive pdf %f", i, pdf)
		}
		if absf(dir.Len()-1) > 1e-4 {
			t.Fatalf("sample %d not normalized: %v", i, dir)
		}
	}
}

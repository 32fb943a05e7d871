package tracer

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hyungman/SpRay/display"
	"github.com/hyungman/SpRay/mpi"
	"github.com/hyungman/SpRay/scene"
	"github.com/hyungman/SpRay/types"
)

// writePly writes an ascii ply holding one triangle with the given
// vertices.
func writePly(t *testing.T, dir, name string, verts [3]types.Vec3) {
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
		verts[0][0], verts[0][1], verts[0][2],
		verts[1][0], verts[1][1], verts[1][2],
		verts[2][0], verts[2][1], verts[2][2])

	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("writing ply: %v", err)
	}
}

// triangleAt spans [-size, size] in x/y at z, facing +z.
func triangleAt(z, size float32) [3]types.Vec3 {
	return [3]types.Vec3{
		{-size, -size, z},
		{size, -size, z},
		{0, size, z},
	}
}

func buildScene(t *testing.T, dir, descriptor string, numRanks int) *scene.Scene {
	t.Helper()
	path := filepath.Join(dir, "scene.descriptor")
	if err := os.WriteFile(path, []byte(descriptor), 0o644); err != nil {
		t.Fatalf("writing descriptor: %v", err)
	}
	sc, err := scene.Init(path, dir, 1, numRanks)
	if err != nil {
		t.Fatalf("scene init: %v", err)
	}
	return sc
}

func pixel(img *display.HdrImage, pixid int) types.Vec3 {
	return types.Vec3{img.Buf[pixid*3], img.Buf[pixid*3+1], img.Buf[pixid*3+2]}
}

func near(a, b types.Vec3, eps float32) bool {
	for i := 0; i < 3; i++ {
		d := a[i] - b[i]
		if d < -eps || d > eps {
			return false
		}
	}
	return true
}

func testConfig(w, h, spp, bounces, threads int) Config {
	return Config{
		ImageW:       w,
		ImageH:       h,
		PixelSamples: spp,
		Bounces:      bounces,
		AoSamples:    1,
		NumThreads:   threads,
		Ks:           types.Vec3{},
		Shininess:    10,
		CacheSize:    -1,
	}
}

// One rank, one triangle, one diffuse light of unit radiance: the single
// pixel converges to the triangle albedo (the cosine pdf cancels the
// cosine-weighted lambertian term).
func TestInsituSinglePixelAlbedo(t *testing.T) {
	dir := t.TempDir()
	writePly(t, dir, "tri.ply", triangleAt(0, 2))

	sc := buildScene(t, dir, `light diffuse 1 1 1
domain
ModelBegin
file tri.ply
material matte 0.25 0.5 0.75
ModelEnd
`, 1)

	comm, err := mpi.Init(mpi.Options{})
	if err != nil {
		t.Fatalf("mpi init: %v", err)
	}
	defer comm.Finalize()

	cfg := testConfig(1, 1, 1, 1, 1)
	camera := scene.NewCamera(types.Vec3{0, 0, 3}, types.Vec3{0, 0, 0}, types.Vec3{0, 1, 0}, 45, 1, 1)
	image := display.NewHdrImage(1, 1)
	shader := NewPTShader(sc.Lights, cfg.Bounces, cfg.AoSamples, cfg.Ks, cfg.Shininess)

	tr := NewInsitu(cfg, comm, camera, sc, image, shader)
	if err := tr.Trace(); err != nil {
		t.Fatalf("trace: %v", err)
	}

	got := pixel(image, 0)
	want := types.Vec3{0.25, 0.5, 0.75}
	if !near(got, want, 1e-3) {
		t.Fatalf("expected pixel near %v; got %v", want, got)
	}
}

// A frame whose rays miss every domain deposits the background color
// exactly once per sample and terminates immediately.
func TestInsituBackgroundOnly(t *testing.T) {
	dir := t.TempDir()
	writePly(t, dir, "tri.ply", triangleAt(-100, 1))

	sc := buildScene(t, dir, `light diffuse 1 1 1
domain
ModelBegin
file tri.ply
material matte 1 1 1
ModelEnd
`, 1)

	comm, err := mpi.Init(mpi.Options{})
	if err != nil {
		t.Fatalf("mpi init: %v", err)
	}
	defer comm.Finalize()

	cfg := testConfig(2, 2, 1, 1, 1)
	cfg.Background = types.Vec3{0.1, 0.2, 0.3}

	// Looking away from the only domain.
	camera := scene.NewCamera(types.Vec3{0, 0, 3}, types.Vec3{0, 0, 100}, types.Vec3{0, 1, 0}, 45, 2, 2)
	image := display.NewHdrImage(2, 2)
	shader := NewPTShader(sc.Lights, cfg.Bounces, cfg.AoSamples, cfg.Ks, cfg.Shininess)

	tr := NewInsitu(cfg, comm, camera, sc, image, shader)
	if err := tr.Trace(); err != nil {
		t.Fatalf("trace: %v", err)
	}

	for pix := 0; pix < 4; pix++ {
		got := pixel(image, pix)
		if !near(got, cfg.Background, 1e-5) {
			t.Fatalf("pixel %d: expected background %v; got %v", pix, cfg.Background, got)
		}
	}
}

// A wall in a second domain sits between the light and the target: the
// shadow ray must traverse the other domain's queue and blacken the
// pixel. The control run without the wall must be lit.
func TestInsituCrossDomainShadow(t *testing.T) {
	run := func(withWall bool) types.Vec3 {
		dir := t.TempDir()
		writePly(t, dir, "target.ply", triangleAt(0, 4))
		descriptor := `light point 0 0 4 10 10 10
domain
ModelBegin
file target.ply
material matte 1 1 1
ModelEnd
`
		if withWall {
			writePly(t, dir, "wall.ply", triangleAt(2, 0.5))
			descriptor += `domain
ModelBegin
file wall.ply
material matte 1 1 1
ModelEnd
`
		}
		sc := buildScene(t, dir, descriptor, 1)

		comm, err := mpi.Init(mpi.Options{})
		if err != nil {
			t.Fatalf("mpi init: %v", err)
		}
		defer comm.Finalize()

		cfg := testConfig(1, 1, 1, 1, 1)
		camera := scene.NewCamera(types.Vec3{0, 3, 3}, types.Vec3{0, 0, 0}, types.Vec3{0, 1, 0}, 45, 1, 1)
		image := display.NewHdrImage(1, 1)
		shader := NewPTShader(sc.Lights, cfg.Bounces, cfg.AoSamples, cfg.Ks, cfg.Shininess)

		tr := NewInsitu(cfg, comm, camera, sc, image, shader)
		if err := tr.Trace(); err != nil {
			t.Fatalf("trace: %v", err)
		}
		return pixel(image, 0)
	}

	lit := run(false)
	if lit[0] <= 0 {
		t.Fatalf("control run must be lit; got %v", lit)
	}

	shadowed := run(true)
	if !near(shadowed, types.Vec3{}, 1e-5) {
		t.Fatalf("expected a black pixel behind the wall; got %v", shadowed)
	}
}

// Re-running the same frame with the same seeds reproduces the image bit
// for bit; a different thread count stays within float tolerance.
func TestInsituDeterminism(t *testing.T) {
	dir := t.TempDir()
	writePly(t, dir, "tri.ply", triangleAt(0, 4))
	descriptor := `light diffuse 1 1 1
domain
ModelBegin
file tri.ply
material matte 0.6 0.6 0.6
ModelEnd
`

	render := func(threads int) []float32 {
		sc := buildScene(t, dir, descriptor, 1)

		comm, err := mpi.Init(mpi.Options{})
		if err != nil {
			t.Fatalf("mpi init: %v", err)
		}
		defer comm.Finalize()

		cfg := testConfig(8, 8, 2, 2, threads)
		camera := scene.NewCamera(types.Vec3{0, 0, 4}, types.Vec3{0, 0, 0}, types.Vec3{0, 1, 0}, 45, 8, 8)
		image := display.NewHdrImage(8, 8)
		shader := NewPTShader(sc.Lights, cfg.Bounces, cfg.AoSamples, cfg.Ks, cfg.Shininess)

		tr := NewInsitu(cfg, comm, camera, sc, image, shader)
		if err := tr.Trace(); err != nil {
			t.Fatalf("trace: %v", err)
		}
		out := make([]float32, len(image.Buf))
		copy(out, image.Buf)
		return out
	}

	a := render(2)
	b := render(2)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("re-run diverged at %d: %f vs %f", i, a[i], b[i])
		}
	}

	c := render(1)
	for i := range a {
		d := a[i] - c[i]
		if d < -1e-3 || d > 1e-3 {
			t.Fatalf("thread counts diverged at %d: %f vs %f", i, a[i], c[i])
		}
	}
}

// Two ranks, two side-by-side domains: each rank owns one domain and one
// image row, so rays for the foreign domain cross the rank boundary and
// deposit on the shading rank. The composited image colors each side by
// its domain's albedo.
func TestInsituTwoRanks(t *testing.T) {
	dir := t.TempDir()
	writePly(t, dir, "left.ply", [3]types.Vec3{{-4, -4, 0}, {-0.05, -4, 0}, {-0.05, 4, 0}})
	writePly(t, dir, "right.ply", [3]types.Vec3{{0.05, -4, 0}, {4, -4, 0}, {0.05, 4, 0}})
	descriptor := `light diffuse 1 1 1
domain
ModelBegin
file left.ply
material matte 0.8 0.1 0.1
ModelEnd
domain
ModelBegin
file right.ply
material matte 0.1 0.8 0.1
ModelEnd
`

	addrs := freeTestAddrs(t, 2)

	images := make([]*display.HdrImage, 2)
	errs := make([]error, 2)

	var wg sync.WaitGroup
	for rank := 0; rank < 2; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()

			comm, err := mpi.Init(mpi.Options{
				Addr:        addrs[rank],
				AllAddrs:    addrs,
				DialTimeout: 10 * time.Second,
			})
			if err != nil {
				errs[rank] = err
				return
			}
			defer comm.Finalize()

			sc, err := func() (*scene.Scene, error) {
				path := filepath.Join(dir, "scene.descriptor")
				if rank == 0 {
					if err := os.WriteFile(path, []byte(descriptor), 0o644); err != nil {
						return nil, err
					}
				}
				comm.Barrier()
				return scene.Init(path, dir, 1, comm.Size())
			}()
			if err != nil {
				errs[rank] = err
				return
			}

			cfg := testConfig(2, 2, 1, 1, 1)
			camera := scene.NewCamera(types.Vec3{0, 0, 3}, types.Vec3{0, 0, 0}, types.Vec3{0, 1, 0}, 45, 2, 2)
			image := display.NewHdrImage(2, 2)
			shader := NewPTShader(sc.Lights, cfg.Bounces, cfg.AoSamples, cfg.Ks, cfg.Shininess)

			tr := NewInsitu(cfg, comm, camera, sc, image, shader)
			if err := tr.Trace(); err != nil {
				errs[rank] = err
				return
			}

			image.Composite(comm)
			images[rank] = image
		}(rank)
	}
	wg.Wait()

	for rank, err := range errs {
		if err != nil {
			t.Fatalf("rank %d: %v", rank, err)
		}
	}

	img := images[0]
	red := types.Vec3{0.8, 0.1, 0.1}
	green := types.Vec3{0.1, 0.8, 0.1}

	for y := 0; y < 2; y++ {
		left := pixel(img, y*2)
		right := pixel(img, y*2+1)
		if !near(left, red, 1e-3) {
			t.Fatalf("row %d: expected left pixel near %v; got %v", y, red, left)
		}
		if !near(right, green, 1e-3) {
			t.Fatalf("row %d: expected right pixel near %v; got %v", y, green, right)
		}
	}
}

// Two ranks with a point light behind a wall: the target lives in rank
// 0's domain, the wall in rank 1's, so the shadow ray must cross the rank
// boundary and the occlusion bit must composite back before retirement.
func TestInsituCrossRankShadow(t *testing.T) {
	dir := t.TempDir()
	writePly(t, dir, "target.ply", triangleAt(0, 6))
	writePly(t, dir, "wall.ply", triangleAt(2, 1.5))
	descriptor := `light point 0 0 4 10 10 10
domain
ModelBegin
file target.ply
material matte 1 1 1
ModelEnd
domain
ModelBegin
file wall.ply
material matte 1 1 1
ModelEnd
`
	path := filepath.Join(dir, "scene.descriptor")
	if err := os.WriteFile(path, []byte(descriptor), 0o644); err != nil {
		t.Fatalf("writing descriptor: %v", err)
	}

	addrs := freeTestAddrs(t, 2)
	images := make([]*display.HdrImage, 2)
	errs := make([]error, 2)

	var wg sync.WaitGroup
	for rank := 0; rank < 2; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()

			comm, err := mpi.Init(mpi.Options{
				Addr:        addrs[rank],
				AllAddrs:    addrs,
				DialTimeout: 10 * time.Second,
			})
			if err != nil {
				errs[rank] = err
				return
			}
			defer comm.Finalize()

			sc, err := scene.Init(path, dir, 1, comm.Size())
			if err != nil {
				errs[rank] = err
				return
			}

			cfg := testConfig(2, 2, 1, 1, 1)
			// A narrow field of view keeps every eye ray near the view
			// axis, clear of the wall, while their shadow rays all cross
			// it.
			camera := scene.NewCamera(types.Vec3{0, 4, 4}, types.Vec3{0, 0, 0}, types.Vec3{0, 1, 0}, 10, 2, 2)
			image := display.NewHdrImage(2, 2)
			shader := NewPTShader(sc.Lights, cfg.Bounces, cfg.AoSamples, cfg.Ks, cfg.Shininess)

			tr := NewInsitu(cfg, comm, camera, sc, image, shader)
			if err := tr.Trace(); err != nil {
				errs[rank] = err
				return
			}

			image.Composite(comm)
			images[rank] = image
		}(rank)
	}
	wg.Wait()

	for rank, err := range errs {
		if err != nil {
			t.Fatalf("rank %d: %v", rank, err)
		}
	}

	img := images[0]
	for pix := 0; pix < 4; pix++ {
		got := pixel(img, pix)
		if !near(got, types.Vec3{}, 1e-5) {
			t.Fatalf("pixel %d: expected black behind the wall; got %v", pix, got)
		}
	}
}

func freeTestAddrs(t *testing.T, n int) []string {
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

package scene

import (
	"testing"

	"github.com/hyungman/SpRay/types"
)

func TestCameraCenterRay(t *testing.T) {
	c := NewCamera(types.Vec3{0, 0, 3}, types.Vec3{0, 0, 0}, types.Vec3{0, 1, 0}, 45, 3, 3)

	// The center pixel of an odd-sized image looks straight down the view
	// axis.
	dir := c.GenerateRay(1, 1)
	want := types.Vec3{0, 0, -1}
	for i := 0; i < 3; i++ {
		d := dir[i] - want[i]
		if d < -1e-5 || d > 1e-5 {
			t.Fatalf("expected center ray %v; got %v", want, dir)
		}
	}

	// Pixels right of center bend toward +x, pixels above toward +y.
	right := c.GenerateRay(2, 1)
	if right[0] <= 0 {
		t.Fatalf("expected +x component right of center; got %v", right)
	}
	up := c.GenerateRay(1, 2)
	if up[1] <= 0 {
		t.Fatalf("expected +y component above center; got %v", up)
	}
}

func TestAutoFrameSeesBound(t *testing.T) {
	bound := types.Aabb{Min: types.Vec3{-1, -1, -1}, Max: types.Vec3{1, 1, 1}}
	c := AutoFrame(bound, 45, 8, 8)

	if c.Position[2] <= bound.Max[2] {
		t.Fatalf("expected the camera placed beyond the +z face; got %v", c.Position)
	}
	if c.LookAt != bound.Center() {
		t.Fatalf("expected the camera aimed at the bound center; got %v", c.LookAt)
	}

	dir := c.GenerateRay(3.5, 3.5)
	if dir[2] >= 0 {
		t.Fatalf("expected the center ray toward the scene; got %v", dir)
	}
}

package scene

import (
	"math"

	"github.com/hyungman/SpRay/types"
)

// A pinhole camera. GenerateRay maps fractional pixel coordinates to world
// space directions through the image plane basis.
type Camera struct {
	Position types.Vec3
	LookAt   types.Vec3
	Up       types.Vec3
	Fov      float32 // vertical field of view in degrees

	imageW int
	imageH int

	// Image plane basis vectors and lower-left corner direction.
	u, v, dirLowerLeft types.Vec3
}

// NewCamera builds a camera for an image of the given dimensions.
func NewCamera(pos, lookat, up types.Vec3, fov float32, imageW, imageH int) *Camera {
	c := &Camera{
		Position: pos,
		LookAt:   lookat,
		Up:       up,
		Fov:      fov,
		imageW:   imageW,
		imageH:   imageH,
	}
	c.Update()
	return c
}

// AutoFrame positions the camera to view the whole scene bound from +z,
// used when no camera configuration is given.
func AutoFrame(bound types.Aabb, fov float32, imageW, imageH int) *Camera {
	lookat := bound.Center()
	radius := float64(bound.Extent().Len()) * 0.5

	// Back off until the bound's enclosing sphere fits the narrower of the
	// vertical and horizontal view angles.
	halfH := math.Tan(float64(fov) * math.Pi / 360.0)
	half := math.Min(halfH, halfH*float64(imageW)/float64(imageH))
	dist := float32(radius / math.Sin(math.Atan(half)))
	pos := lookat.Add(types.Vec3{0, 0, dist})
	return NewCamera(pos, lookat, types.Vec3{0, 1, 0}, fov, imageW, imageH)
}

// Update recomputes the image plane basis after a camera move.
func (c *Camera) Update() {
	theta := float64(c.Fov) * math.Pi / 180.0
	halfH := float32(math.Tan(theta / 2.0))
	aspect := float32(c.imageW) / float32(c.imageH)
	halfW := aspect * halfH

	w := c.Position.Sub(c.LookAt).Normalize()
	u := c.Up.Cross(w).Normalize()
	v := w.Cross(u)

	c.u = u.Mul(2 * halfW / float32(c.imageW))
	c.v = v.Mul(2 * halfH / float32(c.imageH))
	c.dirLowerLeft = u.Mul(-halfW).Add(v.Mul(-halfH)).Sub(w)
}

// GenerateRay returns the normalized direction through pixel (fx, fy).
// Integer coordinates address pixel centers.
func (c *Camera) GenerateRay(fx, fy float32) types.Vec3 {
	return c.dirLowerLeft.Add(c.u.Mul(fx + 0.5)).Add(c.v.Mul(fy + 0.5)).Normalize()
}

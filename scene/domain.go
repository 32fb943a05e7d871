package scene

import "github.com/hyungman/SpRay/types"

// One transform statement from a descriptor model block, kept in source
// order so descriptors re-emit faithfully.
type TransformOp struct {
	Kind string // "scale", "rotate" or "translate"
	Axis string // rotate only
	V    types.Vec3
	Deg  float32
}

// A Model is one mesh file within a domain, with its material and the
// object-to-world transform composed from descriptor statements.
type Model struct {
	Filename  string
	Material  Material
	Transform types.Mat4
	Ops       []TransformOp
}

// A Domain is the unit of scene distribution and cache residency: a bounded
// collection of models and analytic shapes. Immutable after load.
type Domain struct {
	ID     int
	Models []Model
	Shapes []*Sphere

	NumVertices int64
	NumFaces    int64

	ObjectAabb types.Aabb
	WorldAabb  types.Aabb
}

// Bsdf returns the material to use for rays that hit this domain's analytic
// shapes or meshes lacking an explicit material.
func (d *Domain) Bsdf() Material {
	if len(d.Models) > 0 && d.Models[0].Material != nil {
		return d.Models[0].Material
	}
	if len(d.Shapes) > 0 {
		return d.Shapes[0].Material
	}
	return DefaultMatte()
}

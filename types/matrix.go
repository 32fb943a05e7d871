package types

import (
	"math"

	"golang.org/x/image/math/f32"
)

// Mat4 is a column-major 4x4 matrix.
type Mat4 f32.Mat4

// Identity matrix.
func Ident4() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Multiply two matrices.
func (m Mat4) Mul4(o Mat4) Mat4 {
	var out Mat4
	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			var sum float32
			for k := 0; k < 4; k++ {
				sum += m[k*4+row] * o[col*4+k]
			}
			out[col*4+row] = sum
		}
	}
	return out
}

// Transform a point (w = 1).
func (m Mat4) TransformPoint(p Vec3) Vec3 {
	return Vec3{
		m[0]*p[0] + m[4]*p[1] + m[8]*p[2] + m[12],
		m[1]*p[0] + m[5]*p[1] + m[9]*p[2] + m[13],
		m[2]*p[0] + m[6]*p[1] + m[10]*p[2] + m[14],
	}
}

// Transform a direction (w = 0).
func (m Mat4) TransformDir(d Vec3) Vec3 {
	return Vec3{
		m[0]*d[0] + m[4]*d[1] + m[8]*d[2],
		m[1]*d[0] + m[5]*d[1] + m[9]*d[2],
		m[2]*d[0] + m[6]*d[1] + m[10]*d[2],
	}
}

// Compose a scale onto m, matching glm::scale semantics.
func (m Mat4) Scale(s Vec3) Mat4 {
	sm := Ident4()
	sm[0] = s[0]
	sm[5] = s[1]
	sm[10] = s[2]
	return m.Mul4(sm)
}

// Compose a translation onto m, matching glm::translate semantics.
func (m Mat4) Translate(t Vec3) Mat4 {
	tm := Ident4()
	tm[12] = t[0]
	tm[13] = t[1]
	tm[14] = t[2]
	return m.Mul4(tm)
}

// Compose a rotation of deg degrees about a principal axis onto m.
func (m Mat4) RotateAxis(axis int, deg float32) Mat4 {
	rad := float64(deg) * math.Pi / 180.0
	s := float32(math.Sin(rad))
	c := float32(math.Cos(rad))

	rm := Ident4()
	switch axis {
	case 0: // x
		rm[5], rm[6] = c, s
		rm[9], rm[10] = -s, c
	case 1: // y
		rm[0], rm[2] = c, -s
		rm[8], rm[10] = s, c
	case 2: // z
		rm[0], rm[1] = c, s
		rm[4], rm[5] = -s, c
	}
	return m.Mul4(rm)
}

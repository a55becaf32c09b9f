package bvh

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Ray is a half-open segment Origin + t*Direction for t in [TMin, TMax].
type Ray struct {
	Origin    mgl32.Vec3
	Direction mgl32.Vec3
	TMin      float32
	TMax      float32
}

// NewRay creates a ray with TMin 1e-4 and an unbounded TMax.
func NewRay(origin, direction mgl32.Vec3) Ray {
	return Ray{Origin: origin, Direction: direction, TMin: 1e-4, TMax: math32.MaxFloat32}
}

// At returns the point at parameter t.
func (r Ray) At(t float32) mgl32.Vec3 {
	return r.Origin.Add(r.Direction.Mul(t))
}

// Transform returns the ray in the space described by m. Direction is not renormalized so
// hit distances stay comparable across spaces.
func (r Ray) Transform(m mgl32.Mat4) Ray {
	o := m.Mul4x1(r.Origin.Vec4(1))
	d := m.Mul4x1(r.Direction.Vec4(0))
	r.Origin = o.Vec3()
	r.Direction = d.Vec3()
	return r
}

// InverseDirection returns 1/d per component, using a large finite value for zero components.
func InverseDirection(d mgl32.Vec3) mgl32.Vec3 {
	var inv mgl32.Vec3
	for i := range 3 {
		switch {
		case math32.Abs(d[i]) >= 1e-12:
			inv[i] = 1 / d[i]
		case d[i] < 0:
			inv[i] = -1e12
		default:
			inv[i] = 1e12
		}
	}
	return inv
}

// IntersectAABB runs the slab test and returns the entry distance.
//
// Parameters:
//   - origin: the ray origin
//   - invDir: the reciprocal ray direction from InverseDirection
//   - tMin, tMax: the accepted interval
//   - lo, hi: the box extents
//
// Returns:
//   - float32: the entry distance clamped to tMin
//   - bool: true if the box overlaps the interval
func IntersectAABB(origin, invDir mgl32.Vec3, tMin, tMax float32, lo, hi mgl32.Vec3) (float32, bool) {
	for i := range 3 {
		t0 := (lo[i] - origin[i]) * invDir[i]
		t1 := (hi[i] - origin[i]) * invDir[i]
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		tMin = math32.Max(tMin, t0)
		tMax = math32.Min(tMax, t1)
		if tMax < tMin {
			return 0, false
		}
	}
	return tMin, true
}

// IntersectTriangle is the Möller-Trumbore ray/triangle test. Both faces are hit.
//
// Returns:
//   - t: the hit distance
//   - u, v: barycentric coordinates of v1 and v2
//   - ok: true on a hit inside [r.TMin, r.TMax]
func IntersectTriangle(r Ray, v0, v1, v2 mgl32.Vec3) (t, u, v float32, ok bool) {
	const eps = 1e-8
	e1 := v1.Sub(v0)
	e2 := v2.Sub(v0)
	p := r.Direction.Cross(e2)
	det := e1.Dot(p)
	if math32.Abs(det) < eps {
		return 0, 0, 0, false
	}
	invDet := 1 / det
	s := r.Origin.Sub(v0)
	u = s.Dot(p) * invDet
	if u < 0 || u > 1 {
		return 0, 0, 0, false
	}
	q := s.Cross(e1)
	v = r.Direction.Dot(q) * invDet
	if v < 0 || u+v > 1 {
		return 0, 0, 0, false
	}
	t = e2.Dot(q) * invDet
	if t < r.TMin || t > r.TMax {
		return 0, 0, 0, false
	}
	return t, u, v, true
}

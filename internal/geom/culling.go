package geom

import "math"

type Intersect int

const (
	Outside Intersect = iota - 1
	Intersecting
	Inside
)

// Plane masks used to skip planes an ancestor was already fully inside of.
const (
	MaskOutside       uint32 = 0xffffffff
	MaskInside        uint32 = 0
	MaskIndeterminate uint32 = 0x7fffffff
)

// Plane is Normal·p + D = 0 with the normal pointing into the kept half-space.
type Plane struct {
	Normal Vec3
	D      float64
}

func (p Plane) Distance(point Vec3) float64 {
	return p.Normal.Dot(point) + p.D
}

func PlaneFromPointNormal(point, normal Vec3) Plane {
	n := normal.Normalize()
	return Plane{Normal: n, D: -n.Dot(point)}
}

type CullingVolume struct {
	Planes []Plane
}

// SphereIntersect classifies a sphere against a single plane.
func SphereIntersect(p Plane, center Vec3, radius float64) Intersect {
	d := p.Distance(center)
	if d < -radius {
		return Outside
	}
	if d < radius {
		return Intersecting
	}
	return Inside
}

// VisibilityWithPlaneMask tests a volume against every plane not already
// cleared by the parent mask. test classifies the volume against one plane.
func (cv CullingVolume) VisibilityWithPlaneMask(parentMask uint32, test func(Plane) Intersect) uint32 {
	if parentMask == MaskOutside || parentMask == MaskInside {
		return parentMask
	}

	mask := MaskInside
	for k, plane := range cv.Planes {
		bit := uint32(1) << uint(k)
		if k < 31 && parentMask&bit == 0 {
			continue
		}
		switch test(plane) {
		case Outside:
			return MaskOutside
		case Intersecting:
			mask |= bit
		}
	}
	return mask
}

// PerspectiveCullingVolume builds the six planes of a symmetric perspective
// frustum. fovy is the vertical field of view in radians.
func PerspectiveCullingVolume(position, direction, up Vec3, fovy, aspect, near, far float64) CullingVolume {
	dir := direction.Normalize()
	right := dir.Cross(up).Normalize()
	u := right.Cross(dir).Normalize()

	tanY := math.Tan(fovy / 2)
	tanX := tanY * aspect

	nearCenter := position.Add(dir.Scale(near))
	farCenter := position.Add(dir.Scale(far))

	leftNormal := dir.Sub(right.Scale(tanX)).Cross(u)
	rightNormal := u.Cross(dir.Add(right.Scale(tanX)))
	bottomNormal := right.Cross(dir.Sub(u.Scale(tanY)))
	topNormal := dir.Add(u.Scale(tanY)).Cross(right)

	return CullingVolume{Planes: []Plane{
		PlaneFromPointNormal(position, leftNormal),
		PlaneFromPointNormal(position, rightNormal),
		PlaneFromPointNormal(position, bottomNormal),
		PlaneFromPointNormal(position, topNormal),
		PlaneFromPointNormal(nearCenter, dir),
		PlaneFromPointNormal(farCenter, dir.Scale(-1)),
	}}
}

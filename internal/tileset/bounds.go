package tileset

import (
	"math"

	"github.com/golang/geo/s2"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/geom"
)

// BoundingVolume is the spatial extent of a tile in world coordinates.
type BoundingVolume interface {
	Center() geom.Vec3
	Radius() float64
	DistanceTo(p geom.Vec3) float64
	Intersect(p geom.Plane) geom.Intersect
	Transform(m geom.Mat4) BoundingVolume
}

func visibility(bv BoundingVolume, cv geom.CullingVolume, parentMask uint32) uint32 {
	return cv.VisibilityWithPlaneMask(parentMask, bv.Intersect)
}

type BoundingSphere struct {
	Centre geom.Vec3
	R      float64
}

var _ BoundingVolume = (*BoundingSphere)(nil)

func (s *BoundingSphere) Center() geom.Vec3 { return s.Centre }
func (s *BoundingSphere) Radius() float64   { return s.R }

func (s *BoundingSphere) DistanceTo(p geom.Vec3) float64 {
	return math.Max(0, p.Distance(s.Centre)-s.R)
}

func (s *BoundingSphere) Intersect(p geom.Plane) geom.Intersect {
	return geom.SphereIntersect(p, s.Centre, s.R)
}

func (s *BoundingSphere) Transform(m geom.Mat4) BoundingVolume {
	return &BoundingSphere{Centre: m.MulPoint(s.Centre), R: s.R * m.MaximumScale()}
}

// OrientedBox is a center plus three half-axis vectors.
type OrientedBox struct {
	Centre   geom.Vec3
	HalfAxes [3]geom.Vec3
}

var _ BoundingVolume = (*OrientedBox)(nil)

func (b *OrientedBox) Center() geom.Vec3 { return b.Centre }

func (b *OrientedBox) Radius() float64 {
	return b.HalfAxes[0].Add(b.HalfAxes[1]).Add(b.HalfAxes[2]).Length()
}

func (b *OrientedBox) DistanceTo(p geom.Vec3) float64 {
	offset := p.Sub(b.Centre)
	var distanceSquared float64
	for _, axis := range b.HalfAxes {
		half := axis.Length()
		if half == 0 {
			continue
		}
		d := offset.Dot(axis.Scale(1 / half))
		switch {
		case d < -half:
			distanceSquared += (d + half) * (d + half)
		case d > half:
			distanceSquared += (d - half) * (d - half)
		}
	}
	return math.Sqrt(distanceSquared)
}

func (b *OrientedBox) Intersect(p geom.Plane) geom.Intersect {
	radEffective := math.Abs(p.Normal.Dot(b.HalfAxes[0])) +
		math.Abs(p.Normal.Dot(b.HalfAxes[1])) +
		math.Abs(p.Normal.Dot(b.HalfAxes[2]))
	d := p.Distance(b.Centre)
	if d <= -radEffective {
		return geom.Outside
	}
	if d >= radEffective {
		return geom.Inside
	}
	return geom.Intersecting
}

func (b *OrientedBox) Transform(m geom.Mat4) BoundingVolume {
	return &OrientedBox{
		Centre: m.MulPoint(b.Centre),
		HalfAxes: [3]geom.Vec3{
			m.MulVector(b.HalfAxes[0]),
			m.MulVector(b.HalfAxes[1]),
			m.MulVector(b.HalfAxes[2]),
		},
	}
}

// split returns the sub-box at the given octant. For a quadtree only the
// first two axes are halved.
func (b *OrientedBox) split(x, y, z int, octree bool) *OrientedBox {
	h0, h1, h2 := b.HalfAxes[0].Scale(0.5), b.HalfAxes[1].Scale(0.5), b.HalfAxes[2]
	c := b.Centre.Sub(b.HalfAxes[0]).Sub(b.HalfAxes[1]).
		Add(h0.Scale(float64(2*x + 1))).
		Add(h1.Scale(float64(2*y + 1)))
	if octree {
		h2 = b.HalfAxes[2].Scale(0.5)
		c = c.Sub(b.HalfAxes[2]).Add(h2.Scale(float64(2*z + 1)))
	}
	return &OrientedBox{Centre: c, HalfAxes: [3]geom.Vec3{h0, h1, h2}}
}

// Region is a geographic extent in radians and meters above the WGS84
// ellipsoid. It is approximated by a box fitted in the local east-north-up
// frame for distance and culling.
type Region struct {
	West, South, East, North     float64
	MinimumHeight, MaximumHeight float64

	box *OrientedBox
}

var _ BoundingVolume = (*Region)(nil)

func NewRegion(west, south, east, north, minHeight, maxHeight float64) *Region {
	r := &Region{
		West: west, South: south, East: east, North: north,
		MinimumHeight: minHeight, MaximumHeight: maxHeight,
	}
	r.box = r.fitBox()
	return r
}

func (r *Region) fitBox() *OrientedBox {
	ellipsoid := geom.WGS84
	east := r.East
	if east < r.West {
		east += 2 * math.Pi
	}
	mid := geom.Cartographic{
		Longitude: (r.West + east) / 2,
		Latitude:  (r.South + r.North) / 2,
		Height:    (r.MinimumHeight + r.MaximumHeight) / 2,
	}
	origin := ellipsoid.CartographicToCartesian(mid)
	up := ellipsoid.GeodeticSurfaceNormal(mid)
	eastAxis := geom.Vec3{X: -math.Sin(mid.Longitude), Y: math.Cos(mid.Longitude)}
	northAxis := up.Cross(eastAxis).Normalize()
	axes := [3]geom.Vec3{eastAxis, northAxis, up}

	lo := [3]float64{math.MaxFloat64, math.MaxFloat64, math.MaxFloat64}
	hi := [3]float64{-math.MaxFloat64, -math.MaxFloat64, -math.MaxFloat64}
	for _, lon := range []float64{r.West, mid.Longitude, east} {
		for _, lat := range []float64{r.South, mid.Latitude, r.North} {
			for _, h := range []float64{r.MinimumHeight, r.MaximumHeight} {
				p := ellipsoid.CartographicToCartesian(geom.Cartographic{Longitude: lon, Latitude: lat, Height: h}).Sub(origin)
				for i, axis := range axes {
					d := p.Dot(axis)
					lo[i] = math.Min(lo[i], d)
					hi[i] = math.Max(hi[i], d)
				}
			}
		}
	}

	box := &OrientedBox{Centre: origin}
	for i, axis := range axes {
		box.Centre = box.Centre.Add(axis.Scale((lo[i] + hi[i]) / 2))
		box.HalfAxes[i] = axis.Scale((hi[i] - lo[i]) / 2)
	}
	return box
}

func (r *Region) Center() geom.Vec3                     { return r.box.Centre }
func (r *Region) Radius() float64                       { return r.box.Radius() }
func (r *Region) DistanceTo(p geom.Vec3) float64        { return r.box.DistanceTo(p) }
func (r *Region) Intersect(p geom.Plane) geom.Intersect { return r.box.Intersect(p) }

// Transform is a no-op: regions are always expressed in earth-fixed
// coordinates.
func (r *Region) Transform(geom.Mat4) BoundingVolume { return r }

func (r *Region) split(x, y, z int, octree bool) *Region {
	dLon := (r.East - r.West) / 2
	dLat := (r.North - r.South) / 2
	minH, maxH := r.MinimumHeight, r.MaximumHeight
	if octree {
		dH := (maxH - minH) / 2
		minH = r.MinimumHeight + float64(z)*dH
		maxH = minH + dH
	}
	west := r.West + float64(x)*dLon
	south := r.South + float64(y)*dLat
	return NewRegion(west, south, west+dLon, south+dLat, minH, maxH)
}

// RegionFromS2Cell converts an S2 cell token with a height range to the
// region bounding the cell.
func RegionFromS2Cell(token string, minHeight, maxHeight float64) (*Region, bool) {
	id := s2.CellIDFromToken(token)
	if !id.IsValid() {
		return nil, false
	}
	rect := s2.CellFromCellID(id).RectBound()
	lo, hi := rect.Lo(), rect.Hi()
	return NewRegion(lo.Lng.Radians(), lo.Lat.Radians(), hi.Lng.Radians(), hi.Lat.Radians(), minHeight, maxHeight), true
}

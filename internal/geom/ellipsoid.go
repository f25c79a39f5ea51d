package geom

import "math"

// WGS84 radii in meters.
var WGS84 = Ellipsoid{Radii: Vec3{6378137.0, 6378137.0, 6356752.3142451793}}

type Ellipsoid struct {
	Radii Vec3
}

type Cartographic struct {
	Longitude, Latitude, Height float64
}

func (e Ellipsoid) radiiSquared() Vec3 {
	return Vec3{e.Radii.X * e.Radii.X, e.Radii.Y * e.Radii.Y, e.Radii.Z * e.Radii.Z}
}

func (e Ellipsoid) GeodeticSurfaceNormal(c Cartographic) Vec3 {
	cosLat := math.Cos(c.Latitude)
	return Vec3{
		cosLat * math.Cos(c.Longitude),
		cosLat * math.Sin(c.Longitude),
		math.Sin(c.Latitude),
	}.Normalize()
}

func (e Ellipsoid) CartographicToCartesian(c Cartographic) Vec3 {
	n := e.GeodeticSurfaceNormal(c)
	r2 := e.radiiSquared()
	k := Vec3{r2.X * n.X, r2.Y * n.Y, r2.Z * n.Z}
	gamma := math.Sqrt(n.Dot(k))
	k = k.Scale(1 / gamma)
	return k.Add(n.Scale(c.Height))
}

// CartesianToCartographic uses Bowring's method, accurate to well under a
// meter for points near the surface.
func (e Ellipsoid) CartesianToCartographic(p Vec3) Cartographic {
	a := e.Radii.X
	b := e.Radii.Z
	e2 := 1 - (b*b)/(a*a)
	ep2 := (a*a)/(b*b) - 1

	r := math.Hypot(p.X, p.Y)
	if r == 0 && p.Z == 0 {
		return Cartographic{}
	}
	lon := math.Atan2(p.Y, p.X)
	theta := math.Atan2(p.Z*a, r*b)
	sinT, cosT := math.Sin(theta), math.Cos(theta)
	lat := math.Atan2(p.Z+ep2*b*sinT*sinT*sinT, r-e2*a*cosT*cosT*cosT)

	sinLat := math.Sin(lat)
	n := a / math.Sqrt(1-e2*sinLat*sinLat)
	var h float64
	if math.Abs(math.Cos(lat)) > 1e-10 {
		h = r/math.Cos(lat) - n
	} else {
		h = math.Abs(p.Z) - b
	}
	return Cartographic{Longitude: lon, Latitude: lat, Height: h}
}

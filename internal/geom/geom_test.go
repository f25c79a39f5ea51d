package geom

import (
	"math"
	"testing"
)

func TestCartographicRoundTrip(t *testing.T) {
	cases := []Cartographic{
		{Longitude: 0, Latitude: 0, Height: 0},
		{Longitude: 0.5, Latitude: 0.7, Height: 1200},
		{Longitude: -2.1, Latitude: -0.3, Height: 35},
	}

	for _, c := range cases {
		p := WGS84.CartographicToCartesian(c)
		got := WGS84.CartesianToCartographic(p)
		if math.Abs(got.Longitude-c.Longitude) > 1e-9 || math.Abs(got.Latitude-c.Latitude) > 1e-9 {
			t.Errorf("angles: got %+v, want %+v", got, c)
		}
		if math.Abs(got.Height-c.Height) > 1e-3 {
			t.Errorf("height: got %f, want %f", got.Height, c.Height)
		}
	}
}

func TestPerspectiveCullingVolume(t *testing.T) {
	cv := PerspectiveCullingVolume(Vec3{}, Vec3{0, 0, -1}, Vec3{0, 1, 0}, math.Pi/3, 1, 1, 1000)

	visible := func(center Vec3, radius float64) uint32 {
		return cv.VisibilityWithPlaneMask(MaskIndeterminate, func(p Plane) Intersect {
			return SphereIntersect(p, center, radius)
		})
	}

	if m := visible(Vec3{0, 0, -100}, 1); m != MaskInside {
		t.Errorf("sphere ahead: got mask %x, want inside", m)
	}
	if m := visible(Vec3{0, 0, 100}, 1); m != MaskOutside {
		t.Errorf("sphere behind: got mask %x, want outside", m)
	}
	if m := visible(Vec3{500, 0, -100}, 1); m != MaskOutside {
		t.Errorf("sphere far right: got mask %x, want outside", m)
	}
	if m := visible(Vec3{0, 0, -100}, 500); m == MaskOutside || m == MaskInside {
		t.Errorf("huge sphere: got mask %x, want intersecting", m)
	}
}

func TestMat4(t *testing.T) {
	tr := Identity()
	tr[12], tr[13], tr[14] = 10, 20, 30

	p := tr.MulPoint(Vec3{1, 1, 1})
	if p != (Vec3{11, 21, 31}) {
		t.Errorf("MulPoint: got %+v", p)
	}
	if v := tr.MulVector(Vec3{1, 1, 1}); v != (Vec3{1, 1, 1}) {
		t.Errorf("MulVector: got %+v", v)
	}
	if m := Identity().Mul(tr); m != tr {
		t.Errorf("Mul identity: got %v", m)
	}
	if !Identity().IsIdentity() {
		t.Error("identity not detected")
	}
}

func TestFogAndNormalize(t *testing.T) {
	if f := Fog(0, 1); f != 0 {
		t.Errorf("fog at 0: %f", f)
	}
	if f := Fog(1e9, 2e-4); f < 0.999 {
		t.Errorf("fog far: %f", f)
	}
	if n := Normalize(5, 0, 10); n != 0.5 {
		t.Errorf("normalize: %f", n)
	}
	if n := Normalize(5, 5, 5); n != 0 {
		t.Errorf("degenerate normalize: %f", n)
	}
}

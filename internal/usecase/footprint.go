package usecase

import (
	"math"

	"github.com/jaennil/guide_helper/backend/tilestream/internal/geom"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/tileset"
	geojson "github.com/paulmach/go.geojson"
)

// SelectedFootprints describes the tiles selected by the last render pass as
// lon/lat polygons. Regions use their own extent. Other volumes use a square
// around the center sized by the bounding radius.
func SelectedFootprints(ts *tileset.Tileset) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, tile := range ts.Selected() {
		ring := footprint(tile.BoundingVolume())
		if ring == nil {
			continue
		}
		f := geojson.NewPolygonFeature([][][]float64{ring})
		f.SetProperty("id", int(tile.ID()))
		f.SetProperty("depth", tile.Depth())
		f.SetProperty("sse", tile.ScreenSpaceError())
		f.SetProperty("state", tile.State().String())
		f.SetProperty("distance", tile.DistanceToCamera())
		fc.AddFeature(f)
	}
	return fc
}

func footprint(bv tileset.BoundingVolume) [][]float64 {
	if r, ok := bv.(*tileset.Region); ok {
		return rectangle(r.West, r.South, r.East, r.North)
	}

	center := bv.Center()
	if center.Length() == 0 {
		return nil
	}
	c := geom.WGS84.CartesianToCartographic(center)
	dLat := bv.Radius() / geom.WGS84.Radii.X
	dLon := dLat
	if cos := math.Cos(c.Latitude); cos > 1e-6 {
		dLon = dLat / cos
	}
	return rectangle(c.Longitude-dLon, c.Latitude-dLat, c.Longitude+dLon, c.Latitude+dLat)
}

// rectangle takes radians and returns a closed ring in degrees.
func rectangle(west, south, east, north float64) [][]float64 {
	w, s := degrees(west), degrees(south)
	e, n := degrees(east), degrees(north)
	return [][]float64{{w, s}, {e, s}, {e, n}, {w, n}, {w, s}}
}

func degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

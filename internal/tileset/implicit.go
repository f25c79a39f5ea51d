package tileset

import (
	"net/url"
	"strconv"
	"strings"
)

type SubdivisionScheme uint8

const (
	Quadtree SubdivisionScheme = iota
	Octree
)

func (s SubdivisionScheme) childCount() int {
	if s == Octree {
		return 8
	}
	return 4
}

type ImplicitCoord struct {
	Level, X, Y, Z int
}

// Availability answers which implicit tiles exist and which carry content.
type Availability interface {
	TileAvailable(c ImplicitCoord) bool
	ContentAvailable(c ImplicitCoord) bool
}

// FullAvailability marks every tile within the available levels as present
// with content.
type FullAvailability struct{}

func (FullAvailability) TileAvailable(ImplicitCoord) bool    { return true }
func (FullAvailability) ContentAvailable(ImplicitCoord) bool { return true }

type implicitTileset struct {
	scheme          SubdivisionScheme
	availableLevels int
	subtreeLevels   int
	templates       []string
	base            *url.URL
	availability    Availability
}

type implicitNode struct {
	tileset  *implicitTileset
	coord    ImplicitCoord
	expanded bool
}

func (it *implicitTileset) contentURLs(c ImplicitCoord) []string {
	if len(it.templates) == 0 || !it.availability.ContentAvailable(c) {
		return nil
	}
	r := strings.NewReplacer(
		"{level}", strconv.Itoa(c.Level),
		"{x}", strconv.Itoa(c.X),
		"{y}", strconv.Itoa(c.Y),
		"{z}", strconv.Itoa(c.Z),
	)
	urls := make([]string, 0, len(it.templates))
	for _, tmpl := range it.templates {
		u, err := resolve(it.base, r.Replace(tmpl))
		if err != nil {
			continue
		}
		urls = append(urls, u)
	}
	return urls
}

func splitVolume(bv BoundingVolume, x, y, z int, octree bool) BoundingVolume {
	switch v := bv.(type) {
	case *Region:
		return v.split(x, y, z, octree)
	case *OrientedBox:
		return v.split(x, y, z, octree)
	}
	return bv
}

// expandImplicit creates the available children of an implicit tile the
// first time traversal asks for them.
func (ts *Tileset) expandImplicit(tile *Tile) {
	node := tile.implicit
	if node == nil || node.expanded {
		return
	}
	node.expanded = true
	it := node.tileset
	if node.coord.Level+1 >= it.availableLevels {
		return
	}

	octree := it.scheme == Octree
	for i := 0; i < it.scheme.childCount(); i++ {
		dx, dy, dz := i&1, (i>>1)&1, (i>>2)&1
		coord := ImplicitCoord{
			Level: node.coord.Level + 1,
			X:     node.coord.X*2 + dx,
			Y:     node.coord.Y*2 + dy,
			Z:     node.coord.Z*2 + dz,
		}
		if !it.availability.TileAvailable(coord) {
			continue
		}
		child := &Tile{
			geometricError: tile.geometricError / 2,
			refine:         tile.refine,
			transform:      tile.transform,
			boundingVolume: splitVolume(tile.boundingVolume, dx, dy, dz, octree),
			contentURLs:    it.contentURLs(coord),
			expireDuration: tile.expireDuration,
			implicit:       &implicitNode{tileset: it, coord: coord},
		}
		ts.tree.add(child, tile)
		ts.stats.NumberOfTilesTotal++
	}
}

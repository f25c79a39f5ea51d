package tileset

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jaennil/guide_helper/backend/tilestream/internal/geom"
)

func resolve(base *url.URL, ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse content uri %q: %w", ref, err)
	}
	if base == nil {
		return u.String(), nil
	}
	return base.ResolveReference(u).String(), nil
}

func boundingVolumeFrom(d *BoundingVolumeDescriptor, transform geom.Mat4) (BoundingVolume, error) {
	switch {
	case d.Extensions.S2 != nil:
		s2 := d.Extensions.S2
		region, ok := RegionFromS2Cell(s2.Token, s2.MinimumHeight, s2.MaximumHeight)
		if !ok {
			return nil, fmt.Errorf("%w: invalid s2 token %q", ErrMalformedDescriptor, s2.Token)
		}
		return region, nil
	case len(d.Region) == 6:
		r := d.Region
		return NewRegion(r[0], r[1], r[2], r[3], r[4], r[5]), nil
	case len(d.Box) == 12:
		b := d.Box
		box := &OrientedBox{
			Centre: geom.Vec3{X: b[0], Y: b[1], Z: b[2]},
			HalfAxes: [3]geom.Vec3{
				{X: b[3], Y: b[4], Z: b[5]},
				{X: b[6], Y: b[7], Z: b[8]},
				{X: b[9], Y: b[10], Z: b[11]},
			},
		}
		return box.Transform(transform), nil
	case len(d.Sphere) == 4:
		s := d.Sphere
		sphere := &BoundingSphere{Centre: geom.Vec3{X: s[0], Y: s[1], Z: s[2]}, R: s[3]}
		return sphere.Transform(transform), nil
	}
	return nil, fmt.Errorf("%w: bounding volume has no box, region, sphere or s2 cell", ErrMalformedDescriptor)
}

// newTile builds a single tile from its descriptor. Transforms and refinement
// are inherited from parent.
func (ts *Tileset) newTile(d *TileDescriptor, parent *Tile, base *url.URL) (*Tile, error) {
	transform := geom.Identity()
	refine := RefineReplace
	if parent != nil {
		transform = parent.transform
		refine = parent.refine
	}
	if len(d.Transform) == 16 {
		var local geom.Mat4
		copy(local[:], d.Transform)
		transform = transform.Mul(local)
	}
	switch strings.ToUpper(d.Refine) {
	case "ADD":
		refine = RefineAdd
	case "REPLACE":
		refine = RefineReplace
	}

	bv, err := boundingVolumeFrom(&d.BoundingVolume, transform)
	if err != nil {
		return nil, err
	}
	tile := &Tile{
		geometricError: *d.GeometricError,
		refine:         refine,
		transform:      transform,
		boundingVolume: bv,
	}
	if d.ViewerRequestVolume != nil && d.ViewerRequestVolume.defined() {
		if tile.viewerRequestVolume, err = boundingVolumeFrom(d.ViewerRequestVolume, transform); err != nil {
			return nil, err
		}
	}

	if d.Expire != nil {
		if d.Expire.Duration != nil {
			tile.expireDuration = time.Duration(*d.Expire.Duration * float64(time.Second))
		}
		if d.Expire.Date != "" {
			if tile.expireDate, err = time.Parse(time.RFC3339, d.Expire.Date); err != nil {
				return nil, fmt.Errorf("%w: expire.date: %v", ErrMalformedDescriptor, err)
			}
		}
	}

	contents := d.contents()
	if it := d.implicitTiling(); it != nil {
		if _, ok := bv.(*BoundingSphere); ok {
			return nil, fmt.Errorf("%w: implicit tiling requires a box or region", ErrMalformedDescriptor)
		}
		scheme := Quadtree
		if it.SubdivisionScheme == "OCTREE" {
			scheme = Octree
		}
		imp := &implicitTileset{
			scheme:          scheme,
			availableLevels: it.levels(),
			subtreeLevels:   it.SubtreeLevels,
			base:            base,
			availability:    ts.availability(),
		}
		for _, c := range contents {
			imp.templates = append(imp.templates, c.location())
		}
		tile.implicit = &implicitNode{tileset: imp}
		tile.contentURLs = imp.contentURLs(ImplicitCoord{})
		return tile, nil
	}

	for _, c := range contents {
		u, err := resolve(base, c.location())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedDescriptor, err)
		}
		tile.contentURLs = append(tile.contentURLs, u)
	}
	return tile, nil
}

func (ts *Tileset) availability() Availability {
	if ts.opts.ImplicitAvailability != nil {
		return ts.opts.ImplicitAvailability
	}
	return FullAvailability{}
}

// buildSubtree adds the tile hierarchy rooted at d under parent. A nil parent
// makes it the tree root.
func (ts *Tileset) buildSubtree(d *TileDescriptor, parent *Tile, base *url.URL) (*Tile, error) {
	type entry struct {
		desc   *TileDescriptor
		parent *Tile
	}

	root, err := ts.newTile(d, parent, base)
	if err != nil {
		return nil, err
	}
	ts.tree.add(root, parent)
	ts.stats.NumberOfTilesTotal++

	stack := make([]entry, 0, len(d.Children))
	for i := len(d.Children) - 1; i >= 0; i-- {
		stack = append(stack, entry{desc: d.Children[i], parent: root})
	}
	for len(stack) > 0 {
		n := len(stack) - 1
		e := stack[n]
		stack = stack[:n]

		tile, err := ts.newTile(e.desc, e.parent, base)
		if err != nil {
			return nil, err
		}
		ts.tree.add(tile, e.parent)
		ts.stats.NumberOfTilesTotal++
		for i := len(e.desc.Children) - 1; i >= 0; i-- {
			stack = append(stack, entry{desc: e.desc.Children[i], parent: tile})
		}
	}
	return root, nil
}

package tileset

import (
	"slices"

	"github.com/jaennil/guide_helper/backend/tilestream/internal/geom"
)

type TraversalKind uint8

const (
	// TraversalDefault picks skip or base traversal from the tileset options.
	TraversalDefault TraversalKind = iota
	TraversalBase
	TraversalSkipLOD
	TraversalMostDetailed
)

func (k TraversalKind) String() string {
	switch k {
	case TraversalBase:
		return "base"
	case TraversalSkipLOD:
		return "skip_lod"
	case TraversalMostDetailed:
		return "most_detailed"
	}
	return "default"
}

// Traversal selects the tiles to draw and request for one pass. It returns
// whether the selection is final, which only most detailed traversal uses.
type Traversal interface {
	SelectTiles(ts *Tileset, fs *FrameState) bool
}

// TraversalState is the output of the last pass.
type TraversalState struct {
	Selected           []*Tile
	SelectedToStyle    []*Tile
	Empty              []*Tile
	Requested          []*Tile
	HasMixedContent    bool
	StackMaximumLength int
}

func (s *TraversalState) reset() {
	clear(s.Selected)
	clear(s.SelectedToStyle)
	clear(s.Empty)
	clear(s.Requested)
	s.Selected = s.Selected[:0]
	s.SelectedToStyle = s.SelectedToStyle[:0]
	s.Empty = s.Empty[:0]
	s.Requested = s.Requested[:0]
	s.HasMixedContent = false
}

func (ts *Tileset) traversalFor(kind TraversalKind) Traversal {
	switch kind {
	case TraversalMostDetailed:
		return ts.mostDetailed
	case TraversalBase:
		return ts.base
	case TraversalSkipLOD:
		return ts.skip
	}
	if ts.opts.SkipLevelOfDetail {
		return ts.skip
	}
	return ts.base
}

// children resolves a tile's child IDs, creating implicit children on first
// use.
func (ts *Tileset) children(tile *Tile) []*Tile {
	if tile.implicit != nil && !tile.implicit.expanded {
		ts.expandImplicit(tile)
	}
	if len(tile.children) == 0 {
		return nil
	}
	out := make([]*Tile, 0, len(tile.children))
	for _, id := range tile.children {
		if c := ts.tree.Tile(id); c != nil {
			out = append(out, c)
		}
	}
	return out
}

func isVisible(tile *Tile) bool {
	return tile.visible && tile.inRequestVolume
}

func (ts *Tileset) canTraverse(tile *Tile) bool {
	if tile.state == ContentFailed {
		return false
	}
	if len(ts.children(tile)) == 0 {
		return false
	}
	if tile.hasTilesetContent {
		return !tile.contentExpired(ts.now())
	}
	return tile.screenSpaceError > ts.budget.adjusted
}

// updateVisibility refreshes the per-pass geometric state of a tile once.
func (ts *Tileset) updateVisibility(tile *Tile, fs *FrameState) {
	if tile.updatedVisibilityFrame == ts.updatedVisibilityFrame {
		return
	}
	parentMask := geom.MaskIndeterminate
	if parent := ts.tree.Parent(tile); parent != nil {
		parentMask = parent.visibilityPlaneMask
	}

	cam := fs.Camera
	bv := tile.boundingVolume
	tile.distanceToCamera = bv.DistanceTo(cam.Position)
	tile.centerZDepth = bv.Center().Sub(cam.Position).Dot(cam.Direction)
	tile.screenSpaceError = ts.screenSpaceError(tile, fs, false, 1)
	tile.screenSpaceErrorLowRes = ts.screenSpaceError(tile, fs, false, ts.opts.ProgressiveResolutionHeightFraction)
	tile.visibilityPlaneMask = visibility(bv, fs.CullingVolume, parentMask)
	tile.visible = tile.visibilityPlaneMask != geom.MaskOutside
	tile.inRequestVolume = tile.viewerRequestVolume == nil || tile.viewerRequestVolume.DistanceTo(cam.Position) == 0
	tile.priorityReverseScreenSpaceError = ts.priorityReverseScreenSpaceError(tile)
	tile.priorityDeferred = ts.isPriorityDeferred(tile, fs)
	tile.priorityProgressiveResolution = ts.isPriorityProgressiveResolution(tile)
	tile.updatedVisibilityFrame = ts.updatedVisibilityFrame
}

func (ts *Tileset) updateTileVisibility(tile *Tile, fs *FrameState) {
	ts.updateVisibility(tile, fs)
	if !isVisible(tile) {
		return
	}

	children := ts.children(tile)
	if tile.hasTilesetContent && len(children) > 0 {
		child := children[0]
		ts.updateTileVisibility(child, fs)
		tile.visible = child.visible
		return
	}

	if ts.meetsScreenSpaceErrorEarly(tile, fs) {
		tile.visible = false
		return
	}

	if tile.refine == RefineReplace && len(children) > 0 && ts.childrenWithinParent(tile, children) {
		anyVisible := false
		for _, child := range children {
			ts.updateVisibility(child, fs)
			anyVisible = anyVisible || isVisible(child)
		}
		if !anyVisible {
			ts.stats.NumberOfTilesCulledWithChildrenUnion++
			tile.visible = false
		}
	}
}

// meetsScreenSpaceErrorEarly culls a child of an ADD parent whose box already
// satisfies the threshold with the parent's geometric error.
func (ts *Tileset) meetsScreenSpaceErrorEarly(tile *Tile, fs *FrameState) bool {
	parent := ts.tree.Parent(tile)
	if parent == nil || parent.hasTilesetContent || parent.refine != RefineAdd {
		return false
	}
	return ts.screenSpaceError(tile, fs, true, 1) <= ts.budget.adjusted
}

const (
	childrenBoundsUnknown int8 = iota
	childrenBoundsWithin
	childrenBoundsOutside
)

func (ts *Tileset) childrenWithinParent(tile *Tile, children []*Tile) bool {
	if !ts.opts.CullWithChildrenBounds {
		return false
	}
	if tile.childrenBounds == childrenBoundsUnknown {
		tile.childrenBounds = childrenBoundsWithin
		center, radius := tile.boundingVolume.Center(), tile.boundingVolume.Radius()
		for _, child := range children {
			if child.boundingVolume.Center().Distance(center)+child.boundingVolume.Radius() > radius*(1+geom.Epsilon7) {
				tile.childrenBounds = childrenBoundsOutside
				break
			}
		}
	}
	return tile.childrenBounds == childrenBoundsWithin
}

func (ts *Tileset) updateTile(tile *Tile, fs *FrameState) {
	ts.updateTileVisibility(tile, fs)
	tile.contentExpired(ts.now())
	tile.wasMinPriorityChild = false
	tile.priorityHolder = tile
	ts.updateMinimumMaximumPriority(tile)
	tile.shouldSelect = false
	tile.finalResolution = true
}

func hasUnloadedContent(tile *Tile) bool {
	return tile.hasRenderableContent() && tile.state == ContentUnloaded
}

func (ts *Tileset) loadTile(tile *Tile, fs *FrameState) {
	if tile.requestedFrame == fs.FrameNumber || (!hasUnloadedContent(tile) && !tile.expired) {
		return
	}
	if !ts.isOnScreenLongEnough(tile, fs) {
		return
	}
	if tile.priorityDeferred && fs.Camera.TimeSinceMoved < ts.opts.FoveatedTimeDelay {
		return
	}
	tile.requestedFrame = fs.FrameNumber
	ts.state.Requested = append(ts.state.Requested, tile)
}

func (ts *Tileset) touchTile(tile *Tile, fs *FrameState) {
	if tile.touchedFrame == fs.FrameNumber {
		return
	}
	ts.cache.Touch(tile)
	tile.touchedFrame = fs.FrameNumber
}

func (ts *Tileset) visitTile(tile *Tile, fs *FrameState) {
	ts.stats.Visited++
	tile.visitedFrame = fs.FrameNumber
}

func (ts *Tileset) selectTile(tile *Tile, fs *FrameState) {
	if !tile.visible {
		return
	}
	tile.wasSelectedLastFrame = true
	if tile.selectedFrame < fs.FrameNumber-1 {
		ts.state.SelectedToStyle = append(ts.state.SelectedToStyle, tile)
		tile.wasSelectedLastFrame = false
	}
	tile.selectedFrame = fs.FrameNumber
	ts.state.Selected = append(ts.state.Selected, tile)
}

func (ts *Tileset) addEmptyTile(tile *Tile) {
	ts.state.Empty = append(ts.state.Empty, tile)
}

// sortChildrenByDistance orders children farthest first, so the nearest is
// popped first from a stack.
func sortChildrenByDistance(children []*Tile) {
	slices.SortStableFunc(children, func(a, b *Tile) int {
		var d float64
		if a.distanceToCamera == 0 && b.distanceToCamera == 0 {
			d = b.centerZDepth - a.centerZDepth
		} else {
			d = b.distanceToCamera - a.distanceToCamera
		}
		switch {
		case d < 0:
			return -1
		case d > 0:
			return 1
		}
		return 0
	})
}

func (ts *Tileset) trackStack(n int) {
	if n > ts.state.StackMaximumLength {
		ts.state.StackMaximumLength = n
	}
}

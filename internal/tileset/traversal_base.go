package tileset

import "math"

// baseTraversal refines a REPLACE tile only once all of its children can be
// drawn, so the selection never has holes.
type baseTraversal struct {
	stack      []*Tile
	emptyStack []*Tile
}

var _ Traversal = (*baseTraversal)(nil)

func (t *baseTraversal) SelectTiles(ts *Tileset, fs *FrameState) bool {
	ts.state.reset()
	root := ts.tree.Root()
	if root == nil {
		return true
	}
	ts.updateTile(root, fs)
	if !isVisible(root) {
		return true
	}
	if ts.screenSpaceError(root, fs, true, 1) <= ts.budget.adjusted {
		return true
	}

	t.stack = append(t.stack[:0], root)
	for len(t.stack) > 0 {
		ts.trackStack(len(t.stack))
		n := len(t.stack) - 1
		tile := t.stack[n]
		t.stack[n] = nil
		t.stack = t.stack[:n]

		parent := ts.tree.Parent(tile)
		parentRefines := parent == nil || parent.refines
		refines := false
		if ts.canTraverse(tile) {
			refines = t.updateAndPushChildren(ts, tile, fs) && parentRefines
		}
		stoppedRefining := !refines && parentRefines

		switch {
		case !tile.hasRenderableContent():
			ts.addEmptyTile(tile)
			ts.loadTile(tile, fs)
			if stoppedRefining {
				selectDesiredTileBase(ts, tile, fs)
			}
		case tile.refine == RefineAdd:
			selectDesiredTileBase(ts, tile, fs)
			ts.loadTile(tile, fs)
		default:
			ts.loadTile(tile, fs)
			if stoppedRefining {
				selectDesiredTileBase(ts, tile, fs)
			}
		}
		ts.visitTile(tile, fs)
		ts.touchTile(tile, fs)
		tile.refines = refines
	}
	return len(ts.state.Requested) == 0
}

func selectDesiredTileBase(ts *Tileset, tile *Tile, fs *FrameState) {
	if tile.contentAvailable() {
		ts.selectTile(tile, fs)
	}
}

// updateAndPushChildren pushes visible children nearest last and reports
// whether tile may refine into them.
func (t *baseTraversal) updateAndPushChildren(ts *Tileset, tile *Tile, fs *FrameState) bool {
	children := ts.children(tile)
	for _, child := range children {
		ts.updateTile(child, fs)
	}
	sortChildrenByDistance(children)

	replace := tile.refine == RefineReplace
	checkRefines := replace && tile.hasRenderableContent()
	refines := true
	anyChildrenVisible := false

	minIndex := -1
	minimumPriority := math.MaxFloat64
	for i, child := range children {
		if isVisible(child) {
			t.stack = append(t.stack, child)
			if child.foveatedFactor < minimumPriority {
				minIndex = i
				minimumPriority = child.foveatedFactor
			}
			anyChildrenVisible = true
		} else if checkRefines || ts.opts.LoadSiblings {
			if child.foveatedFactor < minimumPriority {
				minIndex = i
				minimumPriority = child.foveatedFactor
			}
			ts.loadTile(child, fs)
			ts.touchTile(child, fs)
		}

		if checkRefines {
			var childRefines bool
			switch {
			case !child.inRequestVolume:
				childRefines = false
			case !child.hasRenderableContent():
				childRefines = t.executeEmptyTraversal(ts, child, fs)
			default:
				childRefines = child.contentAvailable()
			}
			refines = refines && childRefines
		}
	}

	if !anyChildrenVisible {
		refines = false
	}

	if minIndex != -1 && replace {
		minPriorityChild := children[minIndex]
		minPriorityChild.wasMinPriorityChild = true
		holder := tile
		if tile.wasMinPriorityChild || tile == ts.tree.Root() {
			holder = tile.priorityHolder
		}
		holder.foveatedFactor = math.Min(holder.foveatedFactor, minPriorityChild.foveatedFactor)
		holder.distanceToCamera = math.Min(holder.distanceToCamera, minPriorityChild.distanceToCamera)
		for _, child := range children {
			child.priorityHolder = holder
		}
	}
	return refines
}

// executeEmptyTraversal walks down through empty tiles and reports whether
// every descendant with content below them is ready.
func (t *baseTraversal) executeEmptyTraversal(ts *Tileset, root *Tile, fs *FrameState) bool {
	allDescendantsLoaded := true
	t.emptyStack = append(t.emptyStack[:0], root)
	for len(t.emptyStack) > 0 {
		n := len(t.emptyStack) - 1
		tile := t.emptyStack[n]
		t.emptyStack[n] = nil
		t.emptyStack = t.emptyStack[:n]

		ts.updateTile(tile, fs)
		children := ts.children(tile)
		emptyContent := !tile.hasRenderableContent()
		traverse := emptyContent && ts.canTraverse(tile)
		emptyLeaf := emptyContent && len(children) == 0

		if !traverse && !tile.contentAvailable() && !emptyLeaf {
			allDescendantsLoaded = false
		}
		if !isVisible(tile) {
			ts.loadTile(tile, fs)
			ts.touchTile(tile, fs)
		}
		if traverse {
			t.emptyStack = append(t.emptyStack, children...)
		}
	}
	return allDescendantsLoaded
}

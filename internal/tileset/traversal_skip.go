package tileset

import "math"

// descendantSelectionDepth bounds how far selectDescendants searches for
// loaded tiles when no ancestor can stand in.
const descendantSelectionDepth = 2

// skipTraversal loads the desired level of detail directly and draws the
// nearest loaded ancestor meanwhile. Overlapping ancestor and descendant
// selections are ordered through selectionDepth for the renderer.
type skipTraversal struct {
	stack           []*Tile
	descendantStack []*Tile
	selectionStack  []*Tile
	ancestorStack   []*Tile
}

var _ Traversal = (*skipTraversal)(nil)

func (t *skipTraversal) SelectTiles(ts *Tileset, fs *FrameState) bool {
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

	t.executeTraversal(ts, root, fs)
	t.traverseAndSelect(ts, root, fs)
	return len(ts.state.Requested) == 0
}

func (t *skipTraversal) executeTraversal(ts *Tileset, root *Tile, fs *FrameState) {
	baseScreenSpaceError := math.MaxFloat64
	if !ts.opts.ImmediatelyLoadDesiredLevelOfDetail {
		baseScreenSpaceError = math.Max(ts.opts.BaseScreenSpaceError, ts.budget.adjusted)
	}

	t.stack = append(t.stack[:0], root)
	for len(t.stack) > 0 {
		ts.trackStack(len(t.stack))
		n := len(t.stack) - 1
		tile := t.stack[n]
		t.stack[n] = nil
		t.stack = t.stack[:n]

		ts.updateTileAncestorContentLinks(tile, fs)
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
				t.selectDesiredTile(ts, tile, fs)
			}
		case tile.refine == RefineAdd:
			t.selectDesiredTile(ts, tile, fs)
			ts.loadTile(tile, fs)
		case ts.inBaseTraversal(tile, baseScreenSpaceError):
			ts.loadTile(tile, fs)
			if stoppedRefining {
				t.selectDesiredTile(ts, tile, fs)
			}
		case stoppedRefining:
			t.selectDesiredTile(ts, tile, fs)
			ts.loadTile(tile, fs)
		case ts.reachedSkippingThreshold(tile):
			ts.loadTile(tile, fs)
		}
		ts.visitTile(tile, fs)
		ts.touchTile(tile, fs)
		tile.refines = refines
	}
}

func (t *skipTraversal) updateAndPushChildren(ts *Tileset, tile *Tile, fs *FrameState) bool {
	children := ts.children(tile)
	for _, child := range children {
		ts.updateTile(child, fs)
	}
	sortChildrenByDistance(children)

	anyChildrenVisible := false
	for _, child := range children {
		if isVisible(child) {
			t.stack = append(t.stack, child)
			anyChildrenVisible = true
		} else if ts.opts.LoadSiblings {
			ts.loadTile(child, fs)
			ts.touchTile(child, fs)
		}
	}
	return anyChildrenVisible
}

func (ts *Tileset) updateTileAncestorContentLinks(tile *Tile, fs *FrameState) {
	tile.ancestorWithContent = nil
	tile.ancestorWithContentAvailable = nil
	parent := ts.tree.Parent(tile)
	if parent == nil {
		return
	}
	if !hasUnloadedContent(parent) || parent.requestedFrame == fs.FrameNumber {
		tile.ancestorWithContent = parent
	} else {
		tile.ancestorWithContent = parent.ancestorWithContent
	}
	if parent.contentAvailable() {
		tile.ancestorWithContentAvailable = parent
	} else {
		tile.ancestorWithContentAvailable = parent.ancestorWithContentAvailable
	}
}

func (ts *Tileset) inBaseTraversal(tile *Tile, baseScreenSpaceError float64) bool {
	if ts.opts.ImmediatelyLoadDesiredLevelOfDetail {
		return false
	}
	if tile.ancestorWithContent == nil {
		return true
	}
	if tile.screenSpaceError == 0 {
		if parent := ts.tree.Parent(tile); parent != nil {
			return parent.screenSpaceError > baseScreenSpaceError
		}
	}
	return tile.screenSpaceError > baseScreenSpaceError
}

func (ts *Tileset) reachedSkippingThreshold(tile *Tile) bool {
	if ts.opts.ImmediatelyLoadDesiredLevelOfDetail {
		return false
	}
	if tile.priorityProgressiveResolutionSSELeaf {
		return true
	}
	ancestor := tile.ancestorWithContent
	return ancestor != nil &&
		tile.screenSpaceError < ancestor.screenSpaceError/ts.opts.SkipScreenSpaceErrorFactor &&
		tile.depth > ancestor.depth+ts.opts.SkipLevels
}

// selectDesiredTile marks the tile, or its nearest ready ancestor, for
// selection in traverseAndSelect.
func (t *skipTraversal) selectDesiredTile(ts *Tileset, tile *Tile, fs *FrameState) {
	loaded := tile.ancestorWithContentAvailable
	if tile.contentAvailable() {
		loaded = tile
	}
	if loaded != nil {
		loaded.shouldSelect = true
		return
	}
	t.selectDescendants(ts, tile, fs)
}

// selectDescendants fills a hole with nearby ready descendants when no
// ancestor is loaded.
func (t *skipTraversal) selectDescendants(ts *Tileset, root *Tile, fs *FrameState) {
	t.descendantStack = append(t.descendantStack[:0], root)
	for len(t.descendantStack) > 0 {
		n := len(t.descendantStack) - 1
		tile := t.descendantStack[n]
		t.descendantStack[n] = nil
		t.descendantStack = t.descendantStack[:n]

		for _, child := range ts.children(tile) {
			ts.updateTile(child, fs)
			if !isVisible(child) {
				continue
			}
			if child.contentAvailable() {
				ts.touchTile(child, fs)
				ts.selectTile(child, fs)
			} else if child.depth-root.depth < descendantSelectionDepth {
				t.descendantStack = append(t.descendantStack, child)
			}
		}
	}
}

// traverseAndSelect walks the marked tiles depth first. A REPLACE tile with
// marked descendants is selected after them with finalResolution cleared, so
// it only fills the gaps they leave.
func (t *skipTraversal) traverseAndSelect(ts *Tileset, root *Tile, fs *FrameState) {
	t.selectionStack = append(t.selectionStack[:0], root)
	t.ancestorStack = t.ancestorStack[:0]
	var lastAncestor *Tile

	for len(t.selectionStack) > 0 || len(t.ancestorStack) > 0 {
		if len(t.ancestorStack) > 0 {
			waiting := t.ancestorStack[len(t.ancestorStack)-1]
			if waiting.stackLength == len(t.selectionStack) {
				t.ancestorStack = t.ancestorStack[:len(t.ancestorStack)-1]
				if waiting != lastAncestor {
					waiting.finalResolution = false
				}
				ts.selectTile(waiting, fs)
				continue
			}
		}

		n := len(t.selectionStack) - 1
		tile := t.selectionStack[n]
		t.selectionStack[n] = nil
		t.selectionStack = t.selectionStack[:n]

		traverse := ts.canTraverse(tile)
		if tile.shouldSelect {
			if tile.refine == RefineAdd {
				ts.selectTile(tile, fs)
			} else {
				tile.selectionDepth = len(t.ancestorStack)
				if tile.selectionDepth > 0 {
					ts.state.HasMixedContent = true
				}
				lastAncestor = tile
				if !traverse {
					ts.selectTile(tile, fs)
					continue
				}
				t.ancestorStack = append(t.ancestorStack, tile)
				tile.stackLength = len(t.selectionStack)
			}
		}

		if traverse {
			for _, child := range ts.children(tile) {
				if isVisible(child) {
					t.selectionStack = append(t.selectionStack, child)
				}
			}
		}
	}
}

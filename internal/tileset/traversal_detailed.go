package tileset

// mostDetailedTraversal descends to the finest available level inside the
// frame's culling volume, ignoring screen space error and memory budgets.
// Used for one-shot queries such as height sampling.
type mostDetailedTraversal struct {
	stack []*Tile
}

var _ Traversal = (*mostDetailedTraversal)(nil)

func (t *mostDetailedTraversal) SelectTiles(ts *Tileset, fs *FrameState) bool {
	ts.state.reset()
	ready := true
	root := ts.tree.Root()
	if root == nil {
		return ready
	}
	ts.updateVisibility(root, fs)
	if !isVisible(root) {
		return ready
	}

	t.stack = append(t.stack[:0], root)
	for len(t.stack) > 0 {
		ts.trackStack(len(t.stack))
		n := len(t.stack) - 1
		tile := t.stack[n]
		t.stack[n] = nil
		t.stack = t.stack[:n]

		traverse := t.canTraverse(ts, tile)
		if traverse {
			for _, child := range ts.children(tile) {
				ts.updateVisibility(child, fs)
				if isVisible(child) {
					t.stack = append(t.stack, child)
				}
			}
		}

		if tile.refine == RefineAdd || !traverse {
			if hasUnloadedContent(tile) || tile.expired {
				tile.priority = 0
				ts.state.Requested = append(ts.state.Requested, tile)
			}
			ts.touchTile(tile, fs)
			if tile.contentAvailable() {
				ts.state.Selected = append(ts.state.Selected, tile)
			}
			if tile.hasRenderableContent() && !tile.contentAvailable() && tile.state != ContentFailed {
				ready = false
			}
		}
		ts.visitTile(tile, fs)
	}
	return ready
}

func (t *mostDetailedTraversal) canTraverse(ts *Tileset, tile *Tile) bool {
	if tile.state == ContentFailed || len(ts.children(tile)) == 0 {
		return false
	}
	if tile.hasTilesetContent {
		return !tile.contentExpired(ts.now())
	}
	return true
}

package tileset

// Tree is the arena holding every tile of a tileset, including tiles attached
// from external tilesets and generated from implicit tiling. Pruned tiles
// leave a nil slot so IDs stay stable.
type Tree struct {
	tiles []*Tile
	root  TileID
	live  int
}

func newTree() *Tree {
	return &Tree{root: NoTile}
}

func (t *Tree) Root() *Tile {
	return t.Tile(t.root)
}

// Tile returns nil for unknown or pruned IDs.
func (t *Tree) Tile(id TileID) *Tile {
	if id < 0 || int(id) >= len(t.tiles) {
		return nil
	}
	return t.tiles[id]
}

func (t *Tree) Len() int {
	return t.live
}

func (t *Tree) Parent(tile *Tile) *Tile {
	return t.Tile(tile.parent)
}

func (t *Tree) add(tile *Tile, parent *Tile) *Tile {
	tile.id = TileID(len(t.tiles))
	tile.parent = NoTile
	tile.priorityHolder = tile
	if parent != nil {
		tile.parent = parent.id
		tile.depth = parent.depth + 1
		parent.children = append(parent.children, tile.id)
	} else if t.root == NoTile {
		t.root = tile.id
	}
	t.tiles = append(t.tiles, tile)
	t.live++
	return tile
}

// Walk visits the live subtree rooted at tile in depth-first order.
func (t *Tree) Walk(tile *Tile, fn func(*Tile) bool) {
	if tile == nil {
		return
	}
	stack := []*Tile{tile}
	for len(stack) > 0 {
		n := len(stack) - 1
		cur := stack[n]
		stack = stack[:n]
		if !fn(cur) {
			continue
		}
		for _, id := range cur.children {
			if c := t.Tile(id); c != nil {
				stack = append(stack, c)
			}
		}
	}
}

// prune removes every descendant of tile, calling onRemove for each one
// before it is destroyed. tile itself is kept.
func (t *Tree) prune(tile *Tile, onRemove func(*Tile)) {
	var stack []*Tile
	for _, id := range tile.children {
		if c := t.Tile(id); c != nil {
			stack = append(stack, c)
		}
	}
	for len(stack) > 0 {
		n := len(stack) - 1
		cur := stack[n]
		stack = stack[:n]
		for _, id := range cur.children {
			if c := t.Tile(id); c != nil {
				stack = append(stack, c)
			}
		}
		onRemove(cur)
		cur.destroy()
		t.tiles[cur.id] = nil
		t.live--
	}
	tile.children = nil
	if tile.implicit != nil {
		tile.implicit.expanded = false
	}
}

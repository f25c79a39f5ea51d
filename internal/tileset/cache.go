package tileset

type cacheNode struct {
	tile       *Tile
	prev, next *cacheNode
}

// ContentCache is an LRU list of tiles holding renderable content. A sentinel
// splits the list: tiles before it were not touched this frame and are
// eviction candidates, tiles after it were.
type ContentCache struct {
	head, tail *cacheNode
	sentinel   *cacheNode
	length     int
	trimTiles  bool
}

func NewContentCache() *ContentCache {
	c := &ContentCache{}
	c.sentinel = &cacheNode{}
	c.insertAfter(c.tail, c.sentinel)
	return c
}

func (c *ContentCache) Len() int {
	return c.length - 1
}

func (c *ContentCache) insertAfter(at, n *cacheNode) {
	if at == nil {
		n.prev = nil
		n.next = c.head
		if c.head != nil {
			c.head.prev = n
		}
		c.head = n
		if c.tail == nil {
			c.tail = n
		}
		c.length++
		return
	}
	n.prev = at
	n.next = at.next
	if at.next != nil {
		at.next.prev = n
	} else {
		c.tail = n
	}
	at.next = n
	c.length++
}

func (c *ContentCache) unlink(n *cacheNode) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		c.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		c.tail = n.prev
	}
	n.prev, n.next = nil, nil
	c.length--
}

// Reset starts a new frame: every tile becomes an eviction candidate until
// it is touched again.
func (c *ContentCache) Reset() {
	if c.tail == c.sentinel {
		return
	}
	c.unlink(c.sentinel)
	c.insertAfter(c.tail, c.sentinel)
}

// Touch marks tile as used this frame.
func (c *ContentCache) Touch(tile *Tile) {
	n := tile.cacheNode
	if n == nil {
		return
	}
	c.unlink(n)
	c.insertAfter(c.tail, n)
}

// Add inserts a tile whose content just became ready. Adding twice is a no-op.
func (c *ContentCache) Add(tile *Tile) {
	if tile.cacheNode != nil {
		return
	}
	n := &cacheNode{tile: tile}
	tile.cacheNode = n
	c.insertAfter(c.tail, n)
}

// UnloadTile removes a single tile, calling unload before it leaves the list.
func (c *ContentCache) UnloadTile(tile *Tile, unload func(*Tile)) {
	n := tile.cacheNode
	if n == nil {
		return
	}
	c.unlink(n)
	tile.cacheNode = nil
	unload(tile)
}

// UnloadTiles evicts least recently used, untouched tiles while usage()
// exceeds limit, or all untouched tiles after Trim.
func (c *ContentCache) UnloadTiles(limit int64, usage func() int64, unload func(*Tile)) int {
	trim := c.trimTiles
	c.trimTiles = false

	evicted := 0
	n := c.head
	for n != nil && n != c.sentinel && (usage() > limit || trim) {
		next := n.next
		c.UnloadTile(n.tile, unload)
		evicted++
		n = next
	}
	return evicted
}

// Trim requests that the next UnloadTiles drop every untouched tile.
func (c *ContentCache) Trim() {
	c.trimTiles = true
}

// Tiles returns the cached tiles from least to most recently used.
func (c *ContentCache) Tiles() []*Tile {
	out := make([]*Tile, 0, c.Len())
	for n := c.head; n != nil; n = n.next {
		if n != c.sentinel {
			out = append(out, n.tile)
		}
	}
	return out
}

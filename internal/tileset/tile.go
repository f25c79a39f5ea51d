package tileset

import (
	"time"

	"github.com/jaennil/guide_helper/backend/tilestream/internal/geom"
)

// TileID indexes a tile inside its Tree. IDs are never reused.
type TileID int32

const NoTile TileID = -1

type Refine uint8

const (
	RefineReplace Refine = iota
	RefineAdd
)

func (r Refine) String() string {
	if r == RefineAdd {
		return "ADD"
	}
	return "REPLACE"
}

type ContentState uint8

const (
	ContentUnloaded ContentState = iota
	ContentLoading
	ContentProcessing
	ContentReady
	ContentFailed
)

func (s ContentState) String() string {
	switch s {
	case ContentUnloaded:
		return "UNLOADED"
	case ContentLoading:
		return "LOADING"
	case ContentProcessing:
		return "PROCESSING"
	case ContentReady:
		return "READY"
	case ContentFailed:
		return "FAILED"
	}
	return "UNKNOWN"
}

// Tile is a node of the spatial hierarchy. Topology fields are fixed once the
// tile is created; the rest is per-frame traversal state owned by the frame
// thread.
type Tile struct {
	id       TileID
	parent   TileID
	children []TileID
	depth    int

	geometricError      float64
	refine              Refine
	transform           geom.Mat4
	boundingVolume      BoundingVolume
	viewerRequestVolume BoundingVolume
	contentURLs         []string
	implicit            *implicitNode

	expireDuration time.Duration
	expireDate     time.Time
	expired        bool

	state             ContentState
	content           Content
	hasTilesetContent bool
	request           *request
	cacheNode         *cacheNode
	destroyed         bool

	updatedVisibilityFrame int64
	touchedFrame           int64
	visitedFrame           int64
	requestedFrame         int64
	selectedFrame          int64

	distanceToCamera       float64
	centerZDepth           float64
	screenSpaceError       float64
	screenSpaceErrorLowRes float64
	visibilityPlaneMask    uint32
	visible                bool
	inRequestVolume        bool
	refines                bool

	priority                             float64
	priorityHolder                       *Tile
	priorityReverseScreenSpaceError      float64
	priorityProgressiveResolution        bool
	priorityProgressiveResolutionSSELeaf bool
	priorityDeferred                     bool
	foveatedFactor                       float64
	wasMinPriorityChild                  bool

	shouldSelect                 bool
	finalResolution              bool
	selectionDepth               int
	stackLength                  int
	ancestorWithContent          *Tile
	ancestorWithContentAvailable *Tile
	wasSelectedLastFrame         bool
	childrenBounds               int8
}

func (t *Tile) ID() TileID                     { return t.id }
func (t *Tile) Parent() TileID                 { return t.parent }
func (t *Tile) Children() []TileID             { return t.children }
func (t *Tile) Depth() int                     { return t.depth }
func (t *Tile) GeometricError() float64        { return t.geometricError }
func (t *Tile) Refine() Refine                 { return t.refine }
func (t *Tile) Transform() geom.Mat4           { return t.transform }
func (t *Tile) BoundingVolume() BoundingVolume { return t.boundingVolume }
func (t *Tile) ContentURLs() []string          { return t.contentURLs }
func (t *Tile) State() ContentState            { return t.state }
func (t *Tile) Content() Content               { return t.content }
func (t *Tile) HasTilesetContent() bool        { return t.hasTilesetContent }
func (t *Tile) DistanceToCamera() float64      { return t.distanceToCamera }
func (t *Tile) ScreenSpaceError() float64      { return t.screenSpaceError }
func (t *Tile) Priority() float64              { return t.priority }
func (t *Tile) Visible() bool                  { return t.visible }
func (t *Tile) Destroyed() bool                { return t.destroyed }
func (t *Tile) ExpireDate() time.Time          { return t.expireDate }
func (t *Tile) TouchedFrame() int64            { return t.touchedFrame }
func (t *Tile) SelectedFrame() int64           { return t.selectedFrame }
func (t *Tile) ImplicitCoordinates() (ImplicitCoord, bool) {
	if t.implicit == nil {
		return ImplicitCoord{}, false
	}
	return t.implicit.coord, true
}

func (t *Tile) hasEmptyContent() bool {
	return len(t.contentURLs) == 0
}

func (t *Tile) hasRenderableContent() bool {
	return !t.hasEmptyContent() && !t.hasTilesetContent
}

func (t *Tile) hasUnloadedRenderableContent() bool {
	return t.hasRenderableContent() && t.state == ContentUnloaded
}

// contentAvailable reports whether the tile can be drawn right now.
func (t *Tile) contentAvailable() bool {
	return t.state == ContentReady && t.hasRenderableContent()
}

// contentExpired checks the expiry date against now and latches the flag.
func (t *Tile) contentExpired(now time.Time) bool {
	if t.expired {
		return true
	}
	if t.expireDate.IsZero() || t.hasEmptyContent() || t.state != ContentReady {
		return false
	}
	if now.After(t.expireDate) {
		t.expired = true
	}
	return t.expired
}

func (t *Tile) updateExpireDate(now time.Time) {
	if t.expireDuration <= 0 {
		return
	}
	d := now.Add(t.expireDuration)
	if t.expireDate.IsZero() || t.expireDate.Before(d) {
		t.expireDate = d
	}
}

func (t *Tile) unloadContent() {
	if t.content != nil {
		t.content.Destroy()
		t.content = nil
	}
	t.state = ContentUnloaded
}

func (t *Tile) destroy() {
	t.unloadContent()
	t.destroyed = true
	t.priorityHolder = nil
	t.ancestorWithContent = nil
	t.ancestorWithContentAvailable = nil
}

package tileset

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/jaennil/guide_helper/backend/tilestream/pkg/logger"
)

// Tileset drives selection, loading and eviction for one tileset. All
// methods must be called from a single goroutine, the frame thread; only
// content fetches run elsewhere.
type Tileset struct {
	opts Options
	log  logger.Logger

	url            string
	asset          Asset
	geometricError float64
	tree           *Tree

	cache     *ContentCache
	scheduler *RequestScheduler
	pipeline  *Pipeline

	base         *baseTraversal
	skip         *skipTraversal
	mostDetailed *mostDetailedTraversal

	events       Events
	stats        Statistics
	passStats    [numberOfPasses]Statistics
	lastProgress LoadProgress
	state        TraversalState

	priorityMin, priorityMax priorityBounds
	budget                   memoryBudget
	dynamicSSEDensity        float64
	updatedVisibilityFrame   int64
	pass                     Pass

	tilesLoaded        bool
	initialTilesLoaded bool
	styleDirty         bool
	styleApplied       bool
	loadTimestamp      time.Time
	timeSinceLoad      time.Duration
	destroyed          bool
}

// Load fetches and parses the descriptor at rawURL and builds the tileset.
// Any failure is a *SetupError and no tileset is returned.
func Load(ctx context.Context, rawURL string, opts Options) (*Tileset, error) {
	if opts.Fetcher == nil {
		return nil, &SetupError{URL: rawURL, Err: errors.New("no fetcher configured")}
	}
	data, err := opts.Fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, &SetupError{URL: rawURL, Err: fmt.Errorf("fetch descriptor: %w", err)}
	}
	desc, err := ParseDescriptor(data)
	if err != nil {
		return nil, &SetupError{URL: rawURL, Err: err}
	}
	return New(desc, rawURL, opts)
}

// New builds a tileset from an already parsed descriptor. rawURL is the base
// for relative content URIs.
func New(desc *Descriptor, rawURL string, opts Options) (*Tileset, error) {
	if desc == nil {
		return nil, &SetupError{URL: rawURL, Err: fmt.Errorf("%w: nil descriptor", ErrMalformedDescriptor)}
	}
	if err := desc.Validate(); err != nil {
		return nil, &SetupError{URL: rawURL, Err: err}
	}
	base, err := url.Parse(rawURL)
	if err != nil {
		return nil, &SetupError{URL: rawURL, Err: fmt.Errorf("parse url: %w", err)}
	}

	opts = opts.withDefaults()
	ts := &Tileset{
		opts:           opts,
		log:            opts.Logger,
		url:            rawURL,
		asset:          desc.Asset,
		geometricError: *desc.GeometricError,
		tree:           newTree(),
		cache:          NewContentCache(),
		base:           &baseTraversal{},
		skip:           &skipTraversal{},
		mostDetailed:   &mostDetailedTraversal{},
		budget:         newMemoryBudget(opts.MaximumScreenSpaceError),
	}
	ts.scheduler = newRequestScheduler(ts)
	ts.pipeline = newPipeline(ts)
	ts.resetMinimumMaximum()

	if _, err := ts.buildSubtree(desc.Root, nil, base); err != nil {
		ts.log.Error("tileset setup failed", "url", rawURL, "error", err)
		return nil, &SetupError{URL: rawURL, Err: err}
	}
	return ts, nil
}

func (ts *Tileset) now() time.Time {
	return ts.opts.Clock()
}

func (ts *Tileset) URL() string                      { return ts.url }
func (ts *Tileset) Asset() Asset                     { return ts.asset }
func (ts *Tileset) GeometricError() float64          { return ts.geometricError }
func (ts *Tileset) Tree() *Tree                      { return ts.tree }
func (ts *Tileset) Root() *Tile                      { return ts.tree.Root() }
func (ts *Tileset) Tile(id TileID) *Tile             { return ts.tree.Tile(id) }
func (ts *Tileset) Events() *Events                  { return &ts.events }
func (ts *Tileset) Cache() *ContentCache             { return ts.cache }
func (ts *Tileset) Options() Options                 { return ts.opts }
func (ts *Tileset) Selected() []*Tile                { return ts.state.Selected }
func (ts *Tileset) SelectedToStyle() []*Tile         { return ts.state.SelectedToStyle }
func (ts *Tileset) Empty() []*Tile                   { return ts.state.Empty }
func (ts *Tileset) Requested() []*Tile               { return ts.state.Requested }
func (ts *Tileset) HasMixedContent() bool            { return ts.state.HasMixedContent }
func (ts *Tileset) TilesLoaded() bool                { return ts.tilesLoaded }
func (ts *Tileset) TimeSinceLoad() time.Duration     { return ts.timeSinceLoad }
func (ts *Tileset) StyleDirty() bool                 { return ts.styleDirty }
func (ts *Tileset) Destroyed() bool                  { return ts.destroyed }
func (ts *Tileset) ActiveRequests() int              { return ts.scheduler.ActiveRequests() }
func (ts *Tileset) Statistics() Statistics           { return ts.stats }
func (ts *Tileset) PassStatistics(p Pass) Statistics { return ts.passStats[p] }

func (ts *Tileset) MemoryAdjustedScreenSpaceError() float64 {
	return ts.budget.adjusted
}

// MemoryUsage is resident content plus content still being processed.
func (ts *Tileset) MemoryUsage() int64 {
	return ts.memoryUsage()
}

func (ts *Tileset) memoryUsage() int64 {
	return ts.stats.ResidentBytes + ts.pipeline.inFlightBytes()
}

// Update runs a full frame with a single render pass.
func (ts *Tileset) Update(fs *FrameState) error {
	if err := ts.PrePassesUpdate(fs); err != nil {
		return err
	}
	if _, err := ts.UpdateForPass(fs, PassRender); err != nil {
		return err
	}
	return ts.PostPassesUpdate(fs)
}

// PrePassesUpdate applies settled fetches, advances processing and prepares
// the cache for a new frame.
func (ts *Tileset) PrePassesUpdate(fs *FrameState) error {
	if ts.destroyed {
		return ErrTilesetDestroyed
	}
	ts.pipeline.applyCompleted(ts.scheduler.takeCompleted())
	ts.pipeline.Process(fs.FrameNumber)

	if ts.loadTimestamp.IsZero() {
		ts.loadTimestamp = fs.Time
	}
	ts.timeSinceLoad = max(fs.Time.Sub(ts.loadTimestamp), 0)

	if ts.opts.DynamicScreenSpaceError {
		ts.updateDynamicScreenSpaceError(fs)
	}
	if fs.NewFrame {
		ts.cache.Reset()
	}
	return nil
}

// UpdateForPass runs one traversal for pass and, if the pass allows it,
// issues requests. The returned flag is the traversal's readiness.
func (ts *Tileset) UpdateForPass(fs *FrameState, pass Pass) (bool, error) {
	if ts.destroyed {
		return false, ErrTilesetDestroyed
	}
	opts := pass.Options()
	ts.pass = pass

	ts.stats.clear()
	ts.updatedVisibilityFrame++
	ts.resetMinimumMaximum()

	ready := ts.traversalFor(opts.Traversal).SelectTiles(ts, fs)
	if opts.RequestTiles {
		ts.scheduler.RequestTiles(ts.state.Requested, fs, opts.Traversal)
	}
	ts.updateTiles(opts)

	ts.passStats[pass] = ts.stats
	return ready, nil
}

func (ts *Tileset) updateTiles(opts PassOptions) {
	ts.stats.Selected = len(ts.state.Selected)
	if opts.IgnoreCommands {
		return
	}
	for _, tile := range ts.state.Selected {
		if opts.IsRender {
			ts.events.TileVisible.Raise(tile)
		}
		ts.stats.NumberOfCommands++
	}
	if !opts.IsRender {
		return
	}
	if ts.styleDirty {
		ts.stats.NumberOfTilesStyled = len(ts.state.Selected)
		ts.styleApplied = true
	} else {
		ts.stats.NumberOfTilesStyled = len(ts.state.SelectedToStyle)
	}
}

// PostPassesUpdate cancels stale requests, raises progress events and
// evicts untouched content over budget. Usage still over the hard limit
// after eviction relaxes the threshold for the next frame.
func (ts *Tileset) PostPassesUpdate(fs *FrameState) error {
	if ts.destroyed {
		return ErrTilesetDestroyed
	}
	ts.scheduler.CancelOutOfViewRequests(fs.FrameNumber)
	ts.raiseLoadProgressEvent()
	ts.cache.UnloadTiles(ts.opts.CacheBytes, ts.memoryUsage, ts.unloadTile)
	if ts.memoryUsage() > ts.opts.cacheByteLimit() {
		ts.raiseScreenSpaceError(fs.FrameNumber)
	}

	if ts.styleApplied {
		ts.styleDirty = false
		ts.styleApplied = false
	}
	return nil
}

func (ts *Tileset) raiseLoadProgressEvent() {
	progress := LoadProgress{
		PendingRequests: ts.stats.NumberOfPendingRequests,
		TilesProcessing: ts.stats.NumberOfTilesProcessing,
	}
	changed := progress != ts.lastProgress
	ts.lastProgress = progress
	if changed {
		ts.events.LoadProgress.Raise(progress)
	}

	ts.tilesLoaded = progress.PendingRequests == 0 &&
		progress.TilesProcessing == 0 &&
		ts.stats.NumberOfAttemptedRequests == 0

	if changed && ts.tilesLoaded {
		ts.events.AllTilesLoaded.Raise(struct{}{})
		if !ts.initialTilesLoaded {
			ts.initialTilesLoaded = true
			ts.events.InitialTilesLoaded.Raise(struct{}{})
		}
	}
}

// Trim evicts every untouched tile at the end of the next frame.
func (ts *Tileset) Trim() {
	ts.cache.Trim()
}

func (ts *Tileset) MakeStyleDirty() {
	ts.styleDirty = true
}

// Destroy cancels in-flight requests and releases all content. Fetches that
// settle afterwards are ignored.
func (ts *Tileset) Destroy() {
	if ts.destroyed {
		return
	}
	ts.destroyed = true
	ts.scheduler.cancelAll()
	ts.pipeline.clear()
	for _, tile := range ts.tree.tiles {
		if tile == nil {
			continue
		}
		if tile.cacheNode != nil {
			ts.cache.UnloadTile(tile, func(*Tile) {})
		}
		tile.destroy()
	}
	ts.state.reset()
	ts.log.Debug("tileset destroyed", "url", ts.url)
}

func (ts *Tileset) unloadTile(tile *Tile) {
	ts.events.TileUnload.Raise(tile)
	if tile.content != nil {
		ts.stats.decrementLoadCounts(tile.content)
	}
	ts.stats.NumberOfTilesEvicted++
	tile.unloadContent()
	tile.expired = false
	if !tile.expireDate.IsZero() && tile.expireDate.Before(ts.now()) {
		tile.expireDate = time.Time{}
	}
}

// contentReady finishes a tile whose processing completed.
func (ts *Tileset) contentReady(tile *Tile) {
	tile.state = ContentReady
	tile.updateExpireDate(ts.now())
	ts.stats.NumberOfLoadedTilesTotal++

	if ext, ok := tile.content.(*ExternalTileset); ok {
		if err := ts.attachExternal(tile, ext); err != nil {
			ts.failTile(tile, ext.URL, err)
			return
		}
		ts.events.TileLoad.Raise(tile)
		return
	}

	ts.stats.incrementLoadCounts(tile.content)
	ts.cache.Add(tile)
	ts.events.TileLoad.Raise(tile)
}

func (ts *Tileset) attachExternal(tile *Tile, ext *ExternalTileset) error {
	base, err := url.Parse(ext.URL)
	if err != nil {
		return fmt.Errorf("parse external tileset url: %w", err)
	}
	if _, err := ts.buildSubtree(ext.Descriptor.Root, tile, base); err != nil {
		ts.destroySubtree(tile)
		return err
	}
	tile.hasTilesetContent = true
	return nil
}

// expireContent drops stale content right before it is requested again. An
// expired external tileset takes its whole subtree with it.
func (ts *Tileset) expireContent(tile *Tile) {
	tile.expired = false
	if tile.hasTilesetContent {
		ts.destroySubtree(tile)
		tile.hasTilesetContent = false
		tile.unloadContent()
		return
	}
	if tile.cacheNode != nil {
		ts.cache.UnloadTile(tile, ts.unloadTile)
		return
	}
	if tile.state == ContentReady && tile.content != nil {
		ts.stats.decrementLoadCounts(tile.content)
	}
	tile.unloadContent()
}

func (ts *Tileset) destroySubtree(tile *Tile) {
	ts.tree.prune(tile, func(d *Tile) {
		if d.request != nil {
			ts.scheduler.Cancel(d)
		}
		if d.cacheNode != nil {
			ts.cache.UnloadTile(d, ts.unloadTile)
		} else if d.state == ContentProcessing {
			ts.stats.NumberOfTilesProcessing--
		}
		ts.stats.NumberOfTilesTotal--
	})
}

// failTile is the single path for per-tile load errors. A registered
// TileFailed listener replaces logging.
func (ts *Tileset) failTile(tile *Tile, url string, err error) {
	if tile.content != nil {
		tile.content.Destroy()
		tile.content = nil
	}
	tile.state = ContentFailed
	ts.stats.NumberOfTilesFailed++

	failure := failureFrom(url, err)
	failure.Tile = tile
	if ts.events.TileFailed.NumberOfListeners() > 0 {
		ts.events.TileFailed.Raise(failure)
		return
	}
	ts.log.Error("tile content failed to load", "url", failure.URL, "error", failure.Message)
}

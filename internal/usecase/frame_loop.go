package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jaennil/guide_helper/backend/tilestream/internal/infrastructure/ws"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/tileset"
	"github.com/jaennil/guide_helper/backend/tilestream/pkg/logger"
	"github.com/jaennil/guide_helper/backend/tilestream/pkg/metrics"
)

var ErrFrameLoopStopped = errors.New("frame loop stopped")

// EventSink receives tileset notifications raised on the frame goroutine.
type EventSink interface {
	Broadcast(ev ws.Event)
}

type FrameConfig struct {
	Interval time.Duration
	Width    float64
	Height   float64
	Fovy     float64
}

// Snapshot is the state published after every frame for concurrent readers.
type Snapshot struct {
	Frame                          int64                         `json:"frame"`
	Time                           time.Time                     `json:"time"`
	Render                         tileset.Statistics            `json:"render"`
	Passes                         map[string]tileset.Statistics `json:"passes"`
	MemoryAdjustedScreenSpaceError float64                       `json:"memoryAdjustedScreenSpaceError"`
	MemoryUsage                    int64                         `json:"memoryUsage"`
	ActiveRequests                 int                           `json:"activeRequests"`
	TilesLoaded                    bool                          `json:"tilesLoaded"`
	Flying                         bool                          `json:"flying"`
	Camera                         CameraPose                    `json:"camera"`
}

type task struct {
	fn   func(ts *tileset.Tileset)
	done chan struct{}
}

// FrameLoop owns the tileset. Every tileset call happens on the goroutine
// running Run; other goroutines reach it through SetCamera, Do and Snapshot.
type FrameLoop struct {
	ts     *tileset.Tileset
	cfg    FrameConfig
	sink   EventSink
	logger logger.Logger

	flight   *CameraFlight
	pose     CameraPose
	frame    int64
	lastTime time.Time
	lastMove time.Time
	lastDist float64

	cameras chan CameraPose
	tasks   chan task
	stopped chan struct{}

	mu       sync.RWMutex
	snapshot Snapshot
}

func NewFrameLoop(ts *tileset.Tileset, cfg FrameConfig, flight *CameraFlight, sink EventSink, l logger.Logger) *FrameLoop {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second / 30
	}
	if cfg.Fovy <= 0 {
		cfg.Fovy = 1.0471975511965976
	}
	f := &FrameLoop{
		ts:      ts,
		cfg:     cfg,
		sink:    sink,
		logger:  l,
		flight:  flight,
		cameras: make(chan CameraPose, 1),
		tasks:   make(chan task),
		stopped: make(chan struct{}),
	}
	if flight != nil {
		f.pose = flight.Pose(cfg.Fovy)
	} else {
		f.pose = defaultPose(ts, cfg.Fovy)
	}
	f.subscribe()
	return f
}

// defaultPose looks at the root from a few radii away.
func defaultPose(ts *tileset.Tileset, fovy float64) CameraPose {
	bv := ts.Root().BoundingVolume()
	center := bv.Center()
	dir := center.Normalize()
	if dir.Length() == 0 {
		dir.Z = 1
	}
	position := center.Add(dir.Scale(3 * bv.Radius()))
	direction, up := LookAt(position, center)
	return CameraPose{Position: position, Direction: direction, Up: up, Fovy: fovy}
}

func (f *FrameLoop) subscribe() {
	events := f.ts.Events()
	events.TileLoad.AddListener(func(t *tileset.Tile) {
		metrics.TilesLoaded.Inc()
		f.broadcast(ws.Event{Type: "tileLoad", TileID: tileID(t)})
	})
	events.TileUnload.AddListener(func(t *tileset.Tile) {
		metrics.TilesUnloaded.Inc()
		f.broadcast(ws.Event{Type: "tileUnload", TileID: tileID(t)})
	})
	events.TileFailed.AddListener(func(fail tileset.TileFailure) {
		metrics.TilesFailed.Inc()
		f.logger.Debug("tile failed to load", "url", fail.URL, "message", fail.Message)
		ev := ws.Event{Type: "tileFailed", URL: fail.URL, Message: fail.Message}
		if fail.Tile != nil {
			ev.TileID = tileID(fail.Tile)
		}
		f.broadcast(ev)
	})
	events.LoadProgress.AddListener(func(p tileset.LoadProgress) {
		f.broadcast(ws.Event{Type: "loadProgress", Pending: &p.PendingRequests, Processing: &p.TilesProcessing})
	})
	events.AllTilesLoaded.AddListener(func(struct{}) {
		f.broadcast(ws.Event{Type: "allTilesLoaded"})
	})
	events.InitialTilesLoaded.AddListener(func(struct{}) {
		f.logger.Info("initial tiles loaded", "frame", f.frame)
		f.broadcast(ws.Event{Type: "initialTilesLoaded"})
	})
}

func tileID(t *tileset.Tile) *int32 {
	id := int32(t.ID())
	return &id
}

func (f *FrameLoop) broadcast(ev ws.Event) {
	if f.sink == nil {
		return
	}
	ev.Frame = f.frame
	f.sink.Broadcast(ev)
}

// Run ticks frames until ctx is done, then destroys the tileset.
func (f *FrameLoop) Run(ctx context.Context) error {
	defer close(f.stopped)
	defer f.ts.Destroy()

	ticker := time.NewTicker(f.cfg.Interval)
	defer ticker.Stop()

	f.logger.Info("frame loop started", "interval", f.cfg.Interval)
	for {
		select {
		case <-ctx.Done():
			f.logger.Info("frame loop stopped", "frames", f.frame)
			return nil
		case t := <-f.tasks:
			t.fn(f.ts)
			close(t.done)
		case now := <-ticker.C:
			if err := f.step(now); err != nil {
				return err
			}
		}
	}
}

// SetCamera overrides the camera from the next frame on and ends any
// scripted flight. Only the latest pending override is kept.
func (f *FrameLoop) SetCamera(pose CameraPose) {
	for {
		select {
		case f.cameras <- pose:
			return
		default:
		}
		select {
		case <-f.cameras:
		default:
		}
	}
}

// Do runs fn on the frame goroutine between frames.
func (f *FrameLoop) Do(ctx context.Context, fn func(ts *tileset.Tileset)) error {
	t := task{fn: fn, done: make(chan struct{})}
	select {
	case f.tasks <- t:
	case <-ctx.Done():
		return ctx.Err()
	case <-f.stopped:
		return ErrFrameLoopStopped
	}
	select {
	case <-t.done:
		return nil
	case <-f.stopped:
		return ErrFrameLoopStopped
	}
}

func (f *FrameLoop) Snapshot() Snapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.snapshot
}

func (f *FrameLoop) step(now time.Time) error {
	start := time.Now()

	var dt time.Duration
	if !f.lastTime.IsZero() {
		dt = now.Sub(f.lastTime)
	}
	f.lastTime = now

	previous := f.pose.Position
	flying := false
	select {
	case pose := <-f.cameras:
		f.pose = pose
		f.flight = nil
	default:
		if f.flight != nil && f.flight.Update(dt) {
			flying = true
			f.pose = f.flight.Pose(f.cfg.Fovy)
		}
	}

	moved := f.pose.Position.Distance(previous)
	if moved > 0 || f.lastMove.IsZero() {
		f.lastMove = now
	}
	camera := tileset.Camera{
		Position:               f.pose.Position,
		Direction:              f.pose.Direction,
		Up:                     f.pose.Up,
		Fovy:                   f.pose.Fovy,
		PositionDelta:          moved,
		PositionDeltaLastFrame: f.lastDist,
		TimeSinceMoved:         now.Sub(f.lastMove),
	}
	f.lastDist = moved

	f.frame++
	fs := tileset.NewFrameState(f.frame, now, camera, f.cfg.Width, f.cfg.Height)

	if err := f.ts.PrePassesUpdate(fs); err != nil {
		return err
	}
	if _, err := f.ts.UpdateForPass(fs, tileset.PassRender); err != nil {
		return err
	}
	if flying {
		if _, err := f.ts.UpdateForPass(fs, tileset.PassPreloadFlight); err != nil {
			return err
		}
	}
	if err := f.ts.PostPassesUpdate(fs); err != nil {
		return err
	}

	f.publish(now, flying)
	metrics.FrameDuration.Observe(time.Since(start).Seconds())
	return nil
}

func (f *FrameLoop) publish(now time.Time, flying bool) {
	render := f.ts.PassStatistics(tileset.PassRender)
	passes := map[string]tileset.Statistics{
		tileset.PassRender.String(): render,
	}
	if flying {
		passes[tileset.PassPreloadFlight.String()] = f.ts.PassStatistics(tileset.PassPreloadFlight)
	}

	s := Snapshot{
		Frame:                          f.frame,
		Time:                           now,
		Render:                         render,
		Passes:                         passes,
		MemoryAdjustedScreenSpaceError: f.ts.MemoryAdjustedScreenSpaceError(),
		MemoryUsage:                    f.ts.MemoryUsage(),
		ActiveRequests:                 f.ts.ActiveRequests(),
		TilesLoaded:                    f.ts.TilesLoaded(),
		Flying:                         flying,
		Camera:                         f.pose,
	}

	metrics.ResidentBytes.Set(float64(render.ResidentBytes))
	metrics.PendingRequests.Set(float64(render.NumberOfPendingRequests))
	metrics.TilesProcessing.Set(float64(render.NumberOfTilesProcessing))
	metrics.TilesSelected.Set(float64(render.Selected))
	metrics.MemoryAdjustedScreenSpaceError.Set(s.MemoryAdjustedScreenSpaceError)

	f.mu.Lock()
	f.snapshot = s
	f.mu.Unlock()
}

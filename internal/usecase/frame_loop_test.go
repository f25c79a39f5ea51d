package usecase

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jaennil/guide_helper/backend/tilestream/internal/geom"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/infrastructure/ws"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/repository/content"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/tileset"
	"github.com/jaennil/guide_helper/backend/tilestream/pkg/logger"
	"github.com/tanema/gween/ease"
)

const singleTile = `{
	"asset": {"version": "1.0"},
	"geometricError": 100,
	"root": {
		"boundingVolume": {"sphere": [0, 0, 0, 10]},
		"geometricError": 0,
		"content": {"uri": "root.bin"}
	}
}`

var frameEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type inlineExecutor struct{}

func (inlineExecutor) Go(fn func()) { fn() }

type recordingSink struct {
	mu     sync.Mutex
	events []ws.Event
}

func (s *recordingSink) Broadcast(ev ws.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Type)
	}
	return out
}

func (s *recordingSink) find(typ string) (ws.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.events {
		if ev.Type == typ {
			return ev, true
		}
	}
	return ws.Event{}, false
}

// newTestServer serves the descriptor and every file in files.
func newTestServer(t *testing.T, descriptor string, files map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/tileset.json" {
			w.Write([]byte(descriptor))
			return
		}
		body, ok := files[r.URL.Path[1:]]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestLoop(t *testing.T, files map[string]string) (*FrameLoop, *recordingSink) {
	t.Helper()
	return newTestLoopWith(t, singleTile, files)
}

func newTestLoopWith(t *testing.T, descriptor string, files map[string]string) (*FrameLoop, *recordingSink) {
	t.Helper()
	srv := newTestServer(t, descriptor, files)

	opts := tileset.DefaultOptions()
	opts.DynamicScreenSpaceError = false
	opts.FoveatedScreenSpaceError = false
	opts.CullRequestsWhileMoving = false
	opts.ProgressiveResolutionHeightFraction = 0
	opts.Executor = inlineExecutor{}
	opts.Fetcher = NewContentUseCase(content.NewMapStore(), time.Second, "", logger.NewNoOpLogger())

	ts, err := tileset.Load(t.Context(), srv.URL+"/tileset.json", opts)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	sink := &recordingSink{}
	loop := NewFrameLoop(ts, FrameConfig{Width: 1920, Height: 1080}, nil, sink, logger.NewNoOpLogger())
	return loop, sink
}

func stepFrames(t *testing.T, loop *FrameLoop, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		now := frameEpoch.Add(time.Duration(loop.frame) * 33 * time.Millisecond)
		if err := loop.step(now); err != nil {
			t.Fatalf("frame %d: %v", loop.frame, err)
		}
	}
}

func TestFrameLoopLoadsAndPublishes(t *testing.T) {
	loop, sink := newTestLoop(t, map[string]string{"root.bin": "0123456789"})

	stepFrames(t, loop, 3)

	snap := loop.Snapshot()
	if snap.Frame != 3 {
		t.Errorf("frame = %d, want 3", snap.Frame)
	}
	if snap.Render.Selected != 1 {
		t.Errorf("selected = %d, want 1", snap.Render.Selected)
	}
	if snap.Render.NumberOfTilesWithContentReady != 1 || snap.Render.ResidentBytes != 10 {
		t.Errorf("render stats = %+v", snap.Render)
	}
	if !snap.TilesLoaded {
		t.Error("tiles not loaded after three frames")
	}
	if _, ok := snap.Passes["render"]; !ok {
		t.Errorf("passes = %v", snap.Passes)
	}

	ev, ok := sink.find("tileLoad")
	if !ok {
		t.Fatalf("no tileLoad event, got %v", sink.types())
	}
	if ev.TileID == nil || *ev.TileID != 0 || ev.Frame == 0 {
		t.Errorf("tileLoad event = %+v", ev)
	}
	if _, ok := sink.find("initialTilesLoaded"); !ok {
		t.Errorf("no initialTilesLoaded event, got %v", sink.types())
	}
}

func TestFrameLoopBroadcastsFailures(t *testing.T) {
	loop, sink := newTestLoop(t, nil)

	stepFrames(t, loop, 3)

	ev, ok := sink.find("tileFailed")
	if !ok {
		t.Fatalf("no tileFailed event, got %v", sink.types())
	}
	if ev.Message != "upstream returned status 404" {
		t.Errorf("message = %q", ev.Message)
	}
	if loop.Snapshot().Render.NumberOfTilesFailed != 1 {
		t.Errorf("failed = %d", loop.Snapshot().Render.NumberOfTilesFailed)
	}
}

type levelLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *levelLogger) Debug(string, ...any) {}
func (l *levelLogger) Info(string, ...any)  {}
func (l *levelLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}
func (l *levelLogger) Error(msg string, kv ...any) { l.Warn(msg, kv...) }
func (l *levelLogger) Fatal(msg string, kv ...any) { l.Warn(msg, kv...) }

func TestFrameLoopReportsFailuresAsEventsOnly(t *testing.T) {
	loop, sink := newTestLoop(t, nil)
	rec := &levelLogger{}
	loop.logger = rec

	stepFrames(t, loop, 3)

	if _, ok := sink.find("tileFailed"); !ok {
		t.Fatalf("no tileFailed event, got %v", sink.types())
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.warns) != 0 {
		t.Errorf("failure was logged as well: %v", rec.warns)
	}
}

func TestSetCameraOverridesFlight(t *testing.T) {
	loop, _ := newTestLoop(t, map[string]string{"root.bin": "x"})
	loop.flight = NewCameraFlight(
		[]geom.Vec3{{Z: 1000}, {Z: 500}}, geom.Vec3{}, time.Second, ease.Linear,
	)

	stepFrames(t, loop, 1)
	if !loop.Snapshot().Flying {
		t.Fatal("not flying on first frame")
	}

	pose := CameraPose{
		Position:  geom.Vec3{X: 50},
		Direction: geom.Vec3{X: -1},
		Up:        geom.Vec3{Z: 1},
		Fovy:      1,
	}
	loop.SetCamera(CameraPose{Position: geom.Vec3{X: 99}})
	loop.SetCamera(pose)
	stepFrames(t, loop, 1)

	snap := loop.Snapshot()
	if snap.Flying {
		t.Error("still flying after override")
	}
	if snap.Camera != pose {
		t.Errorf("camera = %+v, want %+v", snap.Camera, pose)
	}
	if loop.flight != nil {
		t.Error("flight kept after override")
	}
}

func TestDoRunsOnFrameGoroutine(t *testing.T) {
	loop, _ := newTestLoop(t, map[string]string{"root.bin": "x"})
	loop.cfg.Interval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	var url string
	err := loop.Do(context.Background(), func(ts *tileset.Tileset) {
		url = ts.Root().ContentURLs()[0]
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if url == "" {
		t.Error("task did not run")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !loop.ts.Destroyed() {
		t.Error("tileset not destroyed after Run returned")
	}
	err = loop.Do(context.Background(), func(*tileset.Tileset) {})
	if !errors.Is(err, ErrFrameLoopStopped) {
		t.Errorf("Do after stop = %v", err)
	}
}

func TestCameraFlightEasesBetweenWaypoints(t *testing.T) {
	f := NewCameraFlight([]geom.Vec3{{Z: 100}, {Z: 50}, {Z: 0}}, geom.Vec3{X: 1}, 2*time.Second, ease.Linear)

	if !f.Update(500 * time.Millisecond) {
		t.Fatal("flight finished early")
	}
	if got := f.Pose(1).Position.Z; math.Abs(got-75) > 1e-3 {
		t.Errorf("z = %v, want 75", got)
	}

	f.Update(600 * time.Millisecond)
	f.Update(time.Second)
	if f.Update(time.Second) {
		t.Error("flight still moving past its duration")
	}
	if !f.Done() || f.Pose(1).Position != (geom.Vec3{}) {
		t.Errorf("final position = %+v", f.Pose(1).Position)
	}
}

func TestParseWaypoints(t *testing.T) {
	got, err := ParseWaypoints([]string{"1,2,3", " ", "4, 5 ,6"})
	if err != nil {
		t.Fatal(err)
	}
	want := []geom.Vec3{{X: 1, Y: 2, Z: 3}, {X: 4, Y: 5, Z: 6}}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("waypoints = %v", got)
	}

	for _, bad := range []string{"1,2", "a,b,c"} {
		if _, err := ParseWaypoints([]string{bad}); err == nil {
			t.Errorf("ParseWaypoints(%q) succeeded", bad)
		}
	}
}

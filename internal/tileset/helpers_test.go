package tileset

import (
	"context"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jaennil/guide_helper/backend/tilestream/internal/geom"
)

const testBaseURL = "https://tiles.test/tileset.json"

var testEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type inlineExecutor struct{}

func (inlineExecutor) Go(fn func()) { fn() }

type deferredExecutor struct {
	mu  sync.Mutex
	fns []func()
}

func (e *deferredExecutor) Go(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fns = append(e.fns, fn)
}

func (e *deferredExecutor) runAll() {
	e.mu.Lock()
	fns := e.fns
	e.fns = nil
	e.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

type fakeFetcher struct {
	mu       sync.Mutex
	payloads map[string][]byte
	calls    map[string]int
	order    []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		payloads: make(map[string][]byte),
		calls:    make(map[string]int),
	}
}

func (f *fakeFetcher) set(name string, data []byte) {
	f.payloads["https://tiles.test/"+name] = data
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++
	f.order = append(f.order, url)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, ok := f.payloads[url]
	if !ok {
		return nil, &ContentLoadError{URL: url, Message: "404"}
	}
	return data, nil
}

func (f *fakeFetcher) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls["https://tiles.test/"+name]
}

func testOptions(fetcher Fetcher) Options {
	opts := DefaultOptions()
	opts.DynamicScreenSpaceError = false
	opts.FoveatedScreenSpaceError = false
	opts.CullRequestsWhileMoving = false
	opts.ProgressiveResolutionHeightFraction = 0
	opts.Fetcher = fetcher
	opts.Executor = inlineExecutor{}
	return opts
}

func newTestTileset(t *testing.T, descriptor string, opts Options) *Tileset {
	t.Helper()
	desc, err := ParseDescriptor([]byte(descriptor))
	if err != nil {
		t.Fatalf("ParseDescriptor: %v", err)
	}
	ts, err := New(desc, testBaseURL, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ts
}

// frameAt places the camera on the -Z axis looking at the origin. With a
// 90 degree field of view and a 1000px viewport, SSE = 500 * error / distance.
func frameAt(n int64, distance float64) *FrameState {
	cam := Camera{
		Position:  geom.Vec3{Z: -distance},
		Direction: geom.Vec3{Z: 1},
		Up:        geom.Vec3{Y: 1},
		Fovy:      math.Pi / 2,
	}
	return NewFrameState(n, testEpoch.Add(time.Duration(n)*16*time.Millisecond), cam, 1000, 1000)
}

func frameLookingAway(n int64, distance float64) *FrameState {
	fs := frameAt(n, distance)
	fs.Camera.Direction = geom.Vec3{Z: -1}
	fs.CullingVolume = geom.PerspectiveCullingVolume(
		fs.Camera.Position, fs.Camera.Direction, fs.Camera.Up, fs.Camera.Fovy, 1, 1, 5e8)
	return fs
}

func mustUpdate(t *testing.T, ts *Tileset, fs *FrameState) {
	t.Helper()
	if err := ts.Update(fs); err != nil {
		t.Fatalf("frame %d: Update: %v", fs.FrameNumber, err)
	}
}

func tileWithContent(ts *Tileset, name string) *Tile {
	for _, tile := range ts.tree.tiles {
		if tile == nil {
			continue
		}
		for _, u := range tile.contentURLs {
			if strings.HasSuffix(u, "/"+name) {
				return tile
			}
		}
	}
	return nil
}

func selectedNames(ts *Tileset) []string {
	var names []string
	for _, tile := range ts.Selected() {
		u := tile.contentURLs[0]
		names = append(names, u[strings.LastIndex(u, "/")+1:])
	}
	return names
}

func sameSet(got []string, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	seen := make(map[string]int)
	for _, g := range got {
		seen[g]++
	}
	for _, w := range want {
		if seen[w] == 0 {
			return false
		}
		seen[w]--
	}
	return true
}

// twoLevel is a root with geometric error 100 and one child with 10, both
// unit spheres at the origin.
func twoLevel(refine string) string {
	return `{
		"asset": {"version": "1.0"},
		"geometricError": 1000,
		"root": {
			"boundingVolume": {"sphere": [0, 0, 0, 1]},
			"geometricError": 100,
			"refine": "` + refine + `",
			"content": {"uri": "root.bin"},
			"children": [{
				"boundingVolume": {"sphere": [0, 0, 0, 1]},
				"geometricError": 10,
				"content": {"uri": "child.bin"}
			}]
		}
	}`
}

const twoChildren = `{
	"asset": {"version": "1.0"},
	"geometricError": 1000,
	"root": {
		"boundingVolume": {"sphere": [0, 0, 0, 1]},
		"geometricError": 100,
		"refine": "REPLACE",
		"content": {"uri": "root.bin"},
		"children": [
			{"boundingVolume": {"sphere": [0, 0, 0, 1]}, "geometricError": 10, "content": {"uri": "a.bin"}},
			{"boundingVolume": {"sphere": [0, 0, 0, 1]}, "geometricError": 10, "content": {"uri": "b.bin"}}
		]
	}
}`

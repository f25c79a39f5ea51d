package tileset

import (
	"errors"
	"testing"
	"time"
)

func newTwoLevelFetcher() *fakeFetcher {
	f := newFakeFetcher()
	f.set("root.bin", make([]byte, 100))
	f.set("child.bin", make([]byte, 10))
	return f
}

func TestFarCameraSelectsRoot(t *testing.T) {
	f := newTwoLevelFetcher()
	ts := newTestTileset(t, twoLevel("REPLACE"), testOptions(f))

	// root SSE = 500*100/10000 = 5
	mustUpdate(t, ts, frameAt(1, 10001))
	mustUpdate(t, ts, frameAt(2, 10001))

	if got := selectedNames(ts); !sameSet(got, "root.bin") {
		t.Fatalf("selected = %v, want [root.bin]", got)
	}
	if n := len(ts.Requested()); n != 0 {
		t.Errorf("requested %d tiles, want 0", n)
	}
	if f.callCount("child.bin") != 0 {
		t.Errorf("child fetched while root satisfies the threshold")
	}
}

func TestCloseCameraRefines(t *testing.T) {
	tests := []struct {
		refine string
		want   []string
	}{
		{refine: "REPLACE", want: []string{"child.bin"}},
		{refine: "ADD", want: []string{"root.bin", "child.bin"}},
	}

	for _, tt := range tests {
		t.Run(tt.refine, func(t *testing.T) {
			f := newTwoLevelFetcher()
			ts := newTestTileset(t, twoLevel(tt.refine), testOptions(f))

			// root SSE = 50, child SSE = 5
			for n := int64(1); n <= 3; n++ {
				mustUpdate(t, ts, frameAt(n, 1001))
			}

			if got := selectedNames(ts); !sameSet(got, tt.want...) {
				t.Fatalf("selected = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReplaceKeepsParentUntilChildReady(t *testing.T) {
	f := newTwoLevelFetcher()
	exec := &deferredExecutor{}
	opts := testOptions(f)
	opts.Executor = exec
	ts := newTestTileset(t, twoLevel("REPLACE"), opts)

	mustUpdate(t, ts, frameAt(1, 1001))
	root := ts.Root()
	child := tileWithContent(ts, "child.bin")
	if root.State() != ContentLoading || child.State() != ContentLoading {
		t.Fatalf("states = %v/%v, want LOADING/LOADING", root.State(), child.State())
	}

	// Only the root settles; the child request stays in flight.
	fns := exec.fns
	exec.fns = nil
	fns[0]()
	mustUpdate(t, ts, frameAt(2, 1001))

	if got := selectedNames(ts); !sameSet(got, "root.bin") {
		t.Fatalf("selected = %v, want [root.bin] while child loads", got)
	}

	fns[1]()
	mustUpdate(t, ts, frameAt(3, 1001))
	if got := selectedNames(ts); !sameSet(got, "child.bin") {
		t.Fatalf("selected = %v, want [child.bin]", got)
	}
}

func TestZeroCacheEvictsUntouchedTiles(t *testing.T) {
	f := newFakeFetcher()
	f.set("root.bin", make([]byte, 100))
	f.set("a.bin", make([]byte, 10))
	f.set("b.bin", make([]byte, 10))
	opts := testOptions(f)
	opts.CacheBytes = 0
	ts := newTestTileset(t, twoChildren, opts)

	var unloaded []*Tile
	ts.Events().TileUnload.AddListener(func(tile *Tile) {
		unloaded = append(unloaded, tile)
	})

	mustUpdate(t, ts, frameAt(1, 1001))
	mustUpdate(t, ts, frameAt(2, 1001))
	if got := selectedNames(ts); !sameSet(got, "a.bin", "b.bin") {
		t.Fatalf("selected = %v, want [a.bin b.bin]", got)
	}
	if len(unloaded) != 0 {
		t.Fatalf("touched tiles evicted: %d", len(unloaded))
	}

	mustUpdate(t, ts, frameAt(3, 10001))
	a, b := tileWithContent(ts, "a.bin"), tileWithContent(ts, "b.bin")
	if len(unloaded) != 2 {
		t.Fatalf("evicted %d tiles, want 2", len(unloaded))
	}
	for _, tile := range unloaded {
		if tile.TouchedFrame() == 3 {
			t.Errorf("tile touched in frame 3 was evicted in frame 3")
		}
	}
	if a.State() != ContentUnloaded || b.State() != ContentUnloaded {
		t.Fatalf("children states = %v/%v, want UNLOADED", a.State(), b.State())
	}
	if ts.Root().State() != ContentReady {
		t.Fatalf("root state = %v, want READY", ts.Root().State())
	}
	if got := ts.Statistics().ResidentBytes; got != 100 {
		t.Errorf("resident bytes = %d, want 100", got)
	}

	mustUpdate(t, ts, frameAt(4, 1001))
	if a.State() != ContentLoading {
		t.Fatalf("evicted tile state = %v, want LOADING after reselection", a.State())
	}
	mustUpdate(t, ts, frameAt(5, 1001))
	if a.State() != ContentReady || b.State() != ContentReady {
		t.Fatalf("children states = %v/%v, want READY", a.State(), b.State())
	}
	if f.callCount("a.bin") != 2 {
		t.Errorf("a.bin fetched %d times, want 2", f.callCount("a.bin"))
	}
}

func TestMemoryBudgetConvergesAndRelaxes(t *testing.T) {
	f := newFakeFetcher()
	f.set("root.bin", make([]byte, 45))
	f.set("a.bin", make([]byte, 40))
	f.set("b.bin", make([]byte, 40))
	opts := testOptions(f)
	opts.CacheBytes = 40
	opts.MaximumCacheOverflowBytes = 60
	ts := newTestTileset(t, twoChildren, opts)
	limit := opts.CacheBytes + opts.MaximumCacheOverflowBytes
	nominal := opts.MaximumScreenSpaceError

	// root SSE = 500*100/3086 ~ 16.2, just above the nominal 16, so a single
	// raise is enough to stop refining into the children.
	const distance = 3087
	firstRaise := int64(-1)
	for n := int64(1); n <= 8; n++ {
		before := ts.MemoryAdjustedScreenSpaceError()
		mustUpdate(t, ts, frameAt(n, distance))
		after := ts.MemoryAdjustedScreenSpaceError()
		if after > before*1.02+1e-9 {
			t.Fatalf("frame %d: threshold %v -> %v, more than one step", n, before, after)
		}
		if after > before && firstRaise < 0 {
			firstRaise = n
		}
		if usage := ts.MemoryUsage(); usage > limit && n != firstRaise {
			t.Errorf("frame %d: usage %d over limit %d outside the first raise (frame %d)", n, usage, limit, firstRaise)
		}
	}
	if firstRaise < 0 {
		t.Fatal("threshold never raised")
	}

	converged := ts.MemoryAdjustedScreenSpaceError()
	if converged <= nominal {
		t.Fatalf("threshold = %v, want above %v", converged, nominal)
	}
	for n := int64(9); n <= 11; n++ {
		mustUpdate(t, ts, frameAt(n, distance))
		if got := ts.MemoryAdjustedScreenSpaceError(); got != converged {
			t.Fatalf("frame %d: threshold %v, want it to stay at %v", n, got, converged)
		}
	}
	if got := selectedNames(ts); !sameSet(got, "root.bin") {
		t.Errorf("selected = %v, want [root.bin]", got)
	}
	if got := ts.MemoryUsage(); got != 45 {
		t.Errorf("memory usage = %d, want 45", got)
	}

	for n := int64(12); n <= 18; n++ {
		mustUpdate(t, ts, frameLookingAway(n, distance))
	}
	if got := ts.MemoryUsage(); got != 0 {
		t.Errorf("memory usage = %d after looking away, want 0", got)
	}
	if got := ts.MemoryAdjustedScreenSpaceError(); got != nominal {
		t.Errorf("threshold = %v, want relaxed back to %v", got, nominal)
	}
}

func TestMostDetailedIgnoresMemoryBudget(t *testing.T) {
	f := newTwoLevelFetcher()
	opts := testOptions(f)
	opts.CacheBytes = 0
	opts.MaximumCacheOverflowBytes = 50
	ts := newTestTileset(t, twoLevel("REPLACE"), opts)

	// root SSE = 5, so the render pass keeps only the 100 byte root.
	mustUpdate(t, ts, frameAt(1, 10001))
	mustUpdate(t, ts, frameAt(2, 10001))
	if got := ts.MemoryUsage(); got <= 50 {
		t.Fatalf("memory usage = %d, want over the limit", got)
	}

	fs := frameAt(3, 10001)
	if err := ts.PrePassesUpdate(fs); err != nil {
		t.Fatal(err)
	}
	threshold := ts.MemoryAdjustedScreenSpaceError()
	ready, err := ts.UpdateForPass(fs, PassMostDetailedPreload)
	if err != nil {
		t.Fatal(err)
	}
	if ready {
		t.Fatal("ready before the leaf loaded")
	}
	if f.callCount("child.bin") != 1 {
		t.Fatalf("child.bin fetched %d times, want 1", f.callCount("child.bin"))
	}
	if got := ts.MemoryAdjustedScreenSpaceError(); got != threshold {
		t.Errorf("threshold = %v, want %v untouched by the query", got, threshold)
	}
	if err := ts.PostPassesUpdate(fs); err != nil {
		t.Fatal(err)
	}

	fs = frameAt(4, 10001)
	if err := ts.PrePassesUpdate(fs); err != nil {
		t.Fatal(err)
	}
	ready, err = ts.UpdateForPass(fs, PassMostDetailedPick)
	if err != nil {
		t.Fatal(err)
	}
	if !ready {
		t.Fatal("not ready after the leaf loaded")
	}
	if got := selectedNames(ts); !sameSet(got, "child.bin") {
		t.Errorf("selected = %v, want [child.bin]", got)
	}
}

func TestFailedFetchBecomesLeaf(t *testing.T) {
	f := newFakeFetcher()
	f.set("root.bin", make([]byte, 100))
	f.set("b.bin", make([]byte, 10))
	ts := newTestTileset(t, twoChildren, testOptions(f))

	var failures []TileFailure
	ts.Events().TileFailed.AddListener(func(tf TileFailure) {
		failures = append(failures, tf)
	})

	for n := int64(1); n <= 5; n++ {
		mustUpdate(t, ts, frameAt(n, 1001))
	}

	if len(failures) != 1 {
		t.Fatalf("tileFailed fired %d times, want 1", len(failures))
	}
	if failures[0].Message != "404" {
		t.Errorf("message = %q, want 404", failures[0].Message)
	}
	if failures[0].URL != "https://tiles.test/a.bin" {
		t.Errorf("url = %q", failures[0].URL)
	}
	if a := tileWithContent(ts, "a.bin"); a.State() != ContentFailed {
		t.Errorf("a.bin state = %v, want FAILED", a.State())
	}
	if b := tileWithContent(ts, "b.bin"); b.State() != ContentReady {
		t.Errorf("sibling state = %v, want READY", b.State())
	}
	if f.callCount("a.bin") != 1 {
		t.Errorf("failed tile requested %d times, want 1", f.callCount("a.bin"))
	}
	if got := selectedNames(ts); !sameSet(got, "root.bin") {
		t.Errorf("selected = %v, want parent to stay selected", got)
	}
	if got := ts.Statistics().NumberOfTilesFailed; got != 1 {
		t.Errorf("failed tiles = %d, want 1", got)
	}
}

func TestSkipLevelOfDetailLoadsDesiredTile(t *testing.T) {
	const descriptor = `{
		"asset": {"version": "1.0"},
		"geometricError": 1000,
		"root": {
			"boundingVolume": {"sphere": [0, 0, 0, 1]},
			"geometricError": 100,
			"refine": "REPLACE",
			"content": {"uri": "root.bin"},
			"children": [{
				"boundingVolume": {"sphere": [0, 0, 0, 1]},
				"geometricError": 10,
				"content": {"uri": "child.bin"},
				"children": [{
					"boundingVolume": {"sphere": [0, 0, 0, 1]},
					"geometricError": 0.1,
					"content": {"uri": "grandchild.bin"}
				}]
			}]
		}
	}`
	f := newFakeFetcher()
	f.set("root.bin", make([]byte, 100))
	f.set("child.bin", make([]byte, 10))
	f.set("grandchild.bin", make([]byte, 1))
	opts := testOptions(f)
	opts.SkipLevelOfDetail = true
	opts.SkipLevels = 1
	ts := newTestTileset(t, descriptor, opts)

	// SSE: root 500, child 50, grandchild 0.5
	for n := int64(1); n <= 3; n++ {
		mustUpdate(t, ts, frameAt(n, 101))
	}

	if got := selectedNames(ts); !sameSet(got, "grandchild.bin") {
		t.Fatalf("selected = %v, want [grandchild.bin]", got)
	}
	if f.callCount("child.bin") != 0 {
		t.Errorf("intermediate child requested %d times, want 0", f.callCount("child.bin"))
	}
	if child := tileWithContent(ts, "child.bin"); child.State() != ContentUnloaded {
		t.Errorf("child state = %v, want UNLOADED", child.State())
	}
}

func TestSkipLevelOfDetailShowsAncestorWhileLoading(t *testing.T) {
	f := newFakeFetcher()
	f.set("root.bin", make([]byte, 100))
	f.set("child.bin", make([]byte, 10))
	exec := &deferredExecutor{}
	opts := testOptions(f)
	opts.Executor = exec
	opts.SkipLevelOfDetail = true
	ts := newTestTileset(t, twoLevel("REPLACE"), opts)

	mustUpdate(t, ts, frameAt(1, 1001))
	fns := exec.fns
	exec.fns = nil
	fns[0]()
	mustUpdate(t, ts, frameAt(2, 1001))

	if got := selectedNames(ts); !sameSet(got, "root.bin") {
		t.Fatalf("selected = %v, want ancestor while child loads", got)
	}
}

func TestMostDetailedTraversal(t *testing.T) {
	f := newTwoLevelFetcher()
	ts := newTestTileset(t, twoLevel("REPLACE"), testOptions(f))

	fs := frameAt(1, 10001)
	if err := ts.PrePassesUpdate(fs); err != nil {
		t.Fatal(err)
	}
	ready, err := ts.UpdateForPass(fs, PassMostDetailedPreload)
	if err != nil {
		t.Fatal(err)
	}
	if ready {
		t.Fatal("ready before the leaf loaded")
	}
	if err := ts.PostPassesUpdate(fs); err != nil {
		t.Fatal(err)
	}

	fs = frameAt(2, 10001)
	if err := ts.PrePassesUpdate(fs); err != nil {
		t.Fatal(err)
	}
	ready, err = ts.UpdateForPass(fs, PassMostDetailedPick)
	if err != nil {
		t.Fatal(err)
	}
	if !ready {
		t.Fatal("not ready after the leaf loaded")
	}
	if got := selectedNames(ts); !sameSet(got, "child.bin") {
		t.Errorf("selected = %v, want [child.bin]", got)
	}
	if f.callCount("root.bin") != 0 {
		t.Errorf("most detailed traversal requested the refined root")
	}
}

func TestPassStatisticsAreIsolated(t *testing.T) {
	f := newTwoLevelFetcher()
	ts := newTestTileset(t, twoLevel("ADD"), testOptions(f))
	mustUpdate(t, ts, frameAt(1, 1001))

	fs := frameAt(2, 1001)
	if err := ts.PrePassesUpdate(fs); err != nil {
		t.Fatal(err)
	}
	if _, err := ts.UpdateForPass(fs, PassRender); err != nil {
		t.Fatal(err)
	}
	if _, err := ts.UpdateForPass(fs, PassPreload); err != nil {
		t.Fatal(err)
	}
	if err := ts.PostPassesUpdate(fs); err != nil {
		t.Fatal(err)
	}

	render := ts.PassStatistics(PassRender)
	preload := ts.PassStatistics(PassPreload)
	if render.NumberOfCommands != 2 {
		t.Errorf("render commands = %d, want 2", render.NumberOfCommands)
	}
	if preload.NumberOfCommands != 0 {
		t.Errorf("preload commands = %d, want 0", preload.NumberOfCommands)
	}
	if preload.Selected != 2 {
		t.Errorf("preload selected = %d, want 2", preload.Selected)
	}
}

func TestLoadEvents(t *testing.T) {
	f := newTwoLevelFetcher()
	ts := newTestTileset(t, twoLevel("REPLACE"), testOptions(f))

	var progress []LoadProgress
	var all, initial, loaded, visible int
	ts.Events().LoadProgress.AddListener(func(p LoadProgress) { progress = append(progress, p) })
	ts.Events().AllTilesLoaded.AddListener(func(struct{}) { all++ })
	ts.Events().InitialTilesLoaded.AddListener(func(struct{}) { initial++ })
	ts.Events().TileLoad.AddListener(func(*Tile) { loaded++ })
	remove := ts.Events().TileVisible.AddListener(func(*Tile) { visible++ })

	for n := int64(1); n <= 4; n++ {
		mustUpdate(t, ts, frameAt(n, 1001))
	}

	if initial != 1 || all != 1 {
		t.Fatalf("initialTilesLoaded=%d allTilesLoaded=%d, want 1/1", initial, all)
	}
	if loaded != 2 {
		t.Errorf("tileLoad fired %d times, want 2", loaded)
	}
	if len(progress) != 2 || progress[0].PendingRequests != 2 || progress[1] != (LoadProgress{}) {
		t.Errorf("progress = %+v", progress)
	}
	if !ts.TilesLoaded() {
		t.Errorf("TilesLoaded() = false")
	}

	before := visible
	remove()
	mustUpdate(t, ts, frameAt(5, 1001))
	if visible != before {
		t.Errorf("removed listener still called")
	}
}

func TestContentExpiry(t *testing.T) {
	const descriptor = `{
		"asset": {"version": "1.0"},
		"geometricError": 1000,
		"root": {
			"boundingVolume": {"sphere": [0, 0, 0, 1]},
			"geometricError": 100,
			"content": {"uri": "root.bin"},
			"expire": {"duration": 1}
		}
	}`
	f := newFakeFetcher()
	f.set("root.bin", make([]byte, 100))
	now := testEpoch
	opts := testOptions(f)
	opts.Clock = func() time.Time { return now }
	ts := newTestTileset(t, descriptor, opts)

	unloads := 0
	ts.Events().TileUnload.AddListener(func(*Tile) { unloads++ })

	mustUpdate(t, ts, frameAt(1, 1001))
	mustUpdate(t, ts, frameAt(2, 1001))
	root := ts.Root()
	if root.State() != ContentReady {
		t.Fatalf("state = %v, want READY", root.State())
	}
	if !root.ExpireDate().Equal(now.Add(time.Second)) {
		t.Fatalf("expire date = %v", root.ExpireDate())
	}

	now = now.Add(2 * time.Second)
	mustUpdate(t, ts, frameAt(3, 1001))
	if unloads != 1 {
		t.Fatalf("expired content unloaded %d times, want 1", unloads)
	}
	if root.State() != ContentLoading {
		t.Fatalf("state = %v, want LOADING", root.State())
	}

	mustUpdate(t, ts, frameAt(4, 1001))
	if root.State() != ContentReady {
		t.Fatalf("state = %v, want READY", root.State())
	}
	if f.callCount("root.bin") != 2 {
		t.Errorf("fetched %d times, want 2", f.callCount("root.bin"))
	}
	if got := ts.Statistics().ResidentBytes; got != 100 {
		t.Errorf("resident bytes = %d, want 100", got)
	}
}

func TestExternalTileset(t *testing.T) {
	const descriptor = `{
		"asset": {"version": "1.0"},
		"geometricError": 1000,
		"root": {
			"boundingVolume": {"sphere": [0, 0, 0, 1]},
			"geometricError": 100,
			"content": {"uri": "sub/external.json"}
		}
	}`
	const external = `{
		"asset": {"version": "1.1"},
		"geometricError": 100,
		"root": {
			"boundingVolume": {"sphere": [0, 0, 0, 1]},
			"geometricError": 5,
			"content": {"uri": "leaf.bin"}
		}
	}`
	f := newFakeFetcher()
	f.set("sub/external.json", []byte(external))
	f.set("sub/leaf.bin", make([]byte, 10))
	ts := newTestTileset(t, descriptor, testOptions(f))

	for n := int64(1); n <= 3; n++ {
		mustUpdate(t, ts, frameAt(n, 1001))
	}

	root := ts.Root()
	if !root.HasTilesetContent() {
		t.Fatal("root does not hold tileset content")
	}
	if len(root.Children()) != 1 {
		t.Fatalf("root has %d children, want 1", len(root.Children()))
	}
	leaf := ts.Tile(root.Children()[0])
	if got := leaf.ContentURLs()[0]; got != "https://tiles.test/sub/leaf.bin" {
		t.Errorf("leaf url = %q", got)
	}
	if got := selectedNames(ts); !sameSet(got, "leaf.bin") {
		t.Errorf("selected = %v, want [leaf.bin]", got)
	}
	if got := ts.Tree().Len(); got != 2 {
		t.Errorf("tree size = %d, want 2", got)
	}
}

func TestDestroy(t *testing.T) {
	f := newTwoLevelFetcher()
	exec := &deferredExecutor{}
	opts := testOptions(f)
	opts.Executor = exec
	ts := newTestTileset(t, twoLevel("REPLACE"), opts)

	mustUpdate(t, ts, frameAt(1, 1001))
	ts.Destroy()
	exec.runAll()

	if err := ts.Update(frameAt(2, 1001)); !errors.Is(err, ErrTilesetDestroyed) {
		t.Fatalf("Update after Destroy = %v, want ErrTilesetDestroyed", err)
	}
	if ts.ActiveRequests() != 0 {
		t.Errorf("active requests = %d, want 0", ts.ActiveRequests())
	}
	if !ts.Root().Destroyed() {
		t.Errorf("root not destroyed")
	}
	ts.Destroy()
}

func TestStyleDirtyClearedAfterRenderPass(t *testing.T) {
	f := newTwoLevelFetcher()
	ts := newTestTileset(t, twoLevel("ADD"), testOptions(f))
	mustUpdate(t, ts, frameAt(1, 1001))
	mustUpdate(t, ts, frameAt(2, 1001))

	if got := len(ts.SelectedToStyle()); got != 2 {
		t.Fatalf("newly selected = %d, want 2", got)
	}
	mustUpdate(t, ts, frameAt(3, 1001))
	if got := len(ts.SelectedToStyle()); got != 0 {
		t.Fatalf("newly selected = %d, want 0", got)
	}

	ts.MakeStyleDirty()
	mustUpdate(t, ts, frameAt(4, 1001))
	if got := ts.Statistics().NumberOfTilesStyled; got != 2 {
		t.Errorf("styled = %d, want 2", got)
	}
	if ts.StyleDirty() {
		t.Errorf("style still dirty after a render pass")
	}
}

func TestLoadReportsSetupError(t *testing.T) {
	f := newFakeFetcher()
	f.set("tileset.json", []byte(`{"asset": {"version": "2.0"}, "geometricError": 1, "root": {}}`))

	_, err := Load(t.Context(), testBaseURL, testOptions(f))
	var setupErr *SetupError
	if !errors.As(err, &setupErr) {
		t.Fatalf("err = %v, want *SetupError", err)
	}
	if !errors.Is(err, ErrUnsupportedVersion) {
		t.Errorf("err = %v, want ErrUnsupportedVersion", err)
	}

	_, err = Load(t.Context(), "https://tiles.test/missing.json", testOptions(f))
	if !errors.As(err, &setupErr) {
		t.Fatalf("err = %v, want *SetupError for missing descriptor", err)
	}
}

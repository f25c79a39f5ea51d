package app

import (
	"testing"
	"time"

	"github.com/jaennil/guide_helper/backend/tilestream/internal/tileset"
	"github.com/jaennil/guide_helper/backend/tilestream/pkg/config"
)

func TestTilesetOptions(t *testing.T) {
	cfg := config.Tileset{
		MaximumScreenSpaceError:   8,
		CacheBytes:                1 << 20,
		MaximumCacheOverflowBytes: 1 << 10,
		SkipLevelOfDetail:         true,
		SkipLevels:                2,
		FoveatedTimeDelay:         time.Second,
		FoveatedInterpolation:     "InOutQuad",
		MaximumRequests:           4,
		MaximumRequestsPerServer:  2,
	}

	opts, err := tilesetOptions(cfg)
	if err != nil {
		t.Fatalf("tilesetOptions: %v", err)
	}
	if opts.MaximumScreenSpaceError != 8 || opts.CacheBytes != 1<<20 || opts.MaximumCacheOverflowBytes != 1<<10 {
		t.Errorf("budget options = %+v", opts)
	}
	if !opts.SkipLevelOfDetail || opts.SkipLevels != 2 {
		t.Errorf("skip options = %+v", opts)
	}
	if opts.FoveatedTimeDelay != time.Second || opts.FoveatedInterpolation == nil {
		t.Errorf("foveated options = %+v", opts)
	}
	if opts.MaximumRequests != 4 || opts.MaximumRequestsPerServer != 2 {
		t.Errorf("request options = %+v", opts)
	}
	if got := opts.FoveatedInterpolation(0.5, 0, 1, 1); got != 0.5 {
		t.Errorf("inOutQuad(0.5) = %v, want 0.5", got)
	}
}

func TestTilesetOptionsRejectsUnknownEasing(t *testing.T) {
	if _, err := tilesetOptions(config.Tileset{FoveatedInterpolation: "bouncy"}); err == nil {
		t.Fatal("tilesetOptions accepted an unknown easing")
	}
}

func TestFrameInterval(t *testing.T) {
	tests := []struct {
		rate int
		want time.Duration
	}{
		{rate: 30, want: time.Second / 30},
		{rate: 60, want: time.Second / 60},
		{rate: 0, want: time.Second / 30},
		{rate: -5, want: time.Second / 30},
	}
	for _, tt := range tests {
		if got := frameInterval(tt.rate); got != tt.want {
			t.Errorf("frameInterval(%d) = %v, want %v", tt.rate, got, tt.want)
		}
	}
}

func TestCameraFlight(t *testing.T) {
	desc, err := tileset.ParseDescriptor([]byte(`{
		"asset": {"version": "1.0"},
		"geometricError": 10,
		"root": {"boundingVolume": {"sphere": [5, 0, 0, 1]}, "geometricError": 0}
	}`))
	if err != nil {
		t.Fatal(err)
	}
	ts, err := tileset.New(desc, "https://tiles.test/tileset.json", tileset.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}

	flight, err := cameraFlight(config.Frame{}, ts)
	if err != nil || flight != nil {
		t.Errorf("empty path = %v, %v", flight, err)
	}

	flight, err = cameraFlight(config.Frame{
		CameraPath:     []string{"0,0,100", "0,0,10"},
		FlightDuration: time.Second,
		CameraEasing:   "linear",
	}, ts)
	if err != nil || flight == nil {
		t.Fatalf("cameraFlight = %v, %v", flight, err)
	}
	pose := flight.Pose(1)
	if pose.Direction.X <= 0 {
		t.Errorf("direction = %+v, want towards the root", pose.Direction)
	}

	if _, err := cameraFlight(config.Frame{CameraPath: []string{"0,0,1"}, CameraEasing: "nope"}, ts); err == nil {
		t.Error("unknown easing accepted")
	}
}

package tileset

import (
	"math"
	"time"

	"github.com/jaennil/guide_helper/backend/tilestream/internal/geom"
)

// Camera is the viewer pose in world coordinates. Fovy is the vertical field
// of view in radians.
type Camera struct {
	Position  geom.Vec3
	Direction geom.Vec3
	Up        geom.Vec3
	Fovy      float64
	Near      float64
	Far       float64

	// PositionDelta is how far the camera moved since the previous frame.
	PositionDelta          float64
	PositionDeltaLastFrame float64
	TimeSinceMoved         time.Duration
}

func (c Camera) sseDenominator() float64 {
	return 2 * math.Tan(c.Fovy/2)
}

// FrameState is the per-frame input to every pass.
type FrameState struct {
	FrameNumber int64
	Time        time.Time
	NewFrame    bool
	Camera      Camera
	Width       float64
	Height      float64
	PixelRatio  float64
	// CullingVolume with no planes treats every tile as inside.
	CullingVolume geom.CullingVolume
}

// NewFrameState builds a frame for a perspective camera and derives its
// culling volume from the viewport aspect ratio.
func NewFrameState(frame int64, now time.Time, camera Camera, width, height float64) *FrameState {
	if camera.Near <= 0 {
		camera.Near = 1
	}
	if camera.Far <= 0 {
		camera.Far = 5e8
	}
	aspect := 1.0
	if height > 0 {
		aspect = width / height
	}
	return &FrameState{
		FrameNumber: frame,
		Time:        now,
		NewFrame:    true,
		Camera:      camera,
		Width:       width,
		Height:      height,
		PixelRatio:  1,
		CullingVolume: geom.PerspectiveCullingVolume(
			camera.Position, camera.Direction, camera.Up,
			camera.Fovy, aspect, camera.Near, camera.Far,
		),
	}
}

func (fs *FrameState) pixelRatio() float64 {
	if fs.PixelRatio <= 0 {
		return 1
	}
	return fs.PixelRatio
}

package usecase

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jaennil/guide_helper/backend/tilestream/internal/geom"
	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
)

// CameraPose is the viewer placement applied at the start of a frame.
type CameraPose struct {
	Position  geom.Vec3 `json:"position"`
	Direction geom.Vec3 `json:"direction"`
	Up        geom.Vec3 `json:"up"`
	Fovy      float64   `json:"fovy"`
}

// ParseWaypoints reads "x,y,z" triples.
func ParseWaypoints(waypoints []string) ([]geom.Vec3, error) {
	out := make([]geom.Vec3, 0, len(waypoints))
	for _, raw := range waypoints {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		parts := strings.Split(raw, ",")
		if len(parts) != 3 {
			return nil, fmt.Errorf("waypoint %q: want x,y,z", raw)
		}
		var xyz [3]float64
		for i, p := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return nil, fmt.Errorf("waypoint %q: %w", raw, err)
			}
			xyz[i] = v
		}
		out = append(out, geom.Vec3{X: xyz[0], Y: xyz[1], Z: xyz[2]})
	}
	return out, nil
}

// LookAt orients a camera at position towards target with an up vector as
// close to +Z as the direction allows.
func LookAt(position, target geom.Vec3) (direction, up geom.Vec3) {
	direction = target.Sub(position).Normalize()
	if direction.Length() == 0 {
		direction = geom.Vec3{Z: -1}
	}
	worldUp := geom.Vec3{Z: 1}
	if abs(direction.Dot(worldUp)) > 0.999 {
		worldUp = geom.Vec3{Y: 1}
	}
	right := direction.Cross(worldUp).Normalize()
	up = right.Cross(direction).Normalize()
	return direction, up
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// CameraFlight eases the camera through a list of waypoints while looking at
// a fixed target. Each leg takes the same share of the total duration.
type CameraFlight struct {
	waypoints []geom.Vec3
	target    geom.Vec3
	leg       int
	legTime   float32
	easeFn    ease.TweenFunc
	tweens    [3]*gween.Tween
	position  geom.Vec3
	done      bool
}

func NewCameraFlight(waypoints []geom.Vec3, target geom.Vec3, duration time.Duration, fn ease.TweenFunc) *CameraFlight {
	f := &CameraFlight{
		waypoints: waypoints,
		target:    target,
		easeFn:    fn,
	}
	if len(waypoints) == 0 {
		f.done = true
		return f
	}
	f.position = waypoints[0]
	if len(waypoints) == 1 || duration <= 0 {
		f.position = waypoints[len(waypoints)-1]
		f.done = true
		return f
	}
	f.legTime = float32(duration.Seconds()) / float32(len(waypoints)-1)
	f.startLeg()
	return f
}

func (f *CameraFlight) startLeg() {
	from, to := f.waypoints[f.leg], f.waypoints[f.leg+1]
	f.tweens[0] = gween.New(float32(from.X), float32(to.X), f.legTime, f.easeFn)
	f.tweens[1] = gween.New(float32(from.Y), float32(to.Y), f.legTime, f.easeFn)
	f.tweens[2] = gween.New(float32(from.Z), float32(to.Z), f.legTime, f.easeFn)
}

// Update advances the flight by dt and reports whether it is still moving.
func (f *CameraFlight) Update(dt time.Duration) bool {
	if f.done {
		return false
	}
	x, doneX := f.tweens[0].Update(float32(dt.Seconds()))
	y, doneY := f.tweens[1].Update(float32(dt.Seconds()))
	z, doneZ := f.tweens[2].Update(float32(dt.Seconds()))
	f.position = geom.Vec3{X: float64(x), Y: float64(y), Z: float64(z)}

	if doneX && doneY && doneZ {
		f.leg++
		if f.leg >= len(f.waypoints)-1 {
			f.position = f.waypoints[len(f.waypoints)-1]
			f.done = true
			return false
		}
		f.startLeg()
	}
	return true
}

func (f *CameraFlight) Done() bool {
	return f.done
}

func (f *CameraFlight) Pose(fovy float64) CameraPose {
	direction, up := LookAt(f.position, f.target)
	return CameraPose{
		Position:  f.position,
		Direction: direction,
		Up:        up,
		Fovy:      fovy,
	}
}

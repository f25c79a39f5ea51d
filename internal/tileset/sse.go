package tileset

import (
	"math"

	"github.com/jaennil/guide_helper/backend/tilestream/internal/geom"
)

// screenSpaceError projects a geometric error to pixels. With
// useParentGeometricError the parent's error (or the tileset's for the root)
// is used, which answers "is this tile worth drawing at all".
func (ts *Tileset) screenSpaceError(tile *Tile, fs *FrameState, useParentGeometricError bool, heightFraction float64) float64 {
	geometricError := tile.geometricError
	if useParentGeometricError {
		geometricError = ts.geometricError
		if parent := ts.tree.Parent(tile); parent != nil {
			geometricError = parent.geometricError
		}
	}
	if geometricError == 0 {
		return 0
	}

	height := fs.Height * heightFraction
	distance := math.Max(tile.distanceToCamera, geom.Epsilon7)
	err := geometricError * height / (distance * fs.Camera.sseDenominator())
	if ts.opts.DynamicScreenSpaceError {
		err -= geom.Fog(distance, ts.dynamicSSEDensity) * ts.opts.DynamicScreenSpaceErrorFactor
	}
	return err / fs.pixelRatio()
}

// updateDynamicScreenSpaceError derives the fog density for this frame from
// camera height above the tileset and how close the view is to the horizon.
func (ts *Tileset) updateDynamicScreenSpaceError(fs *FrameState) {
	root := ts.tree.Root()
	if root == nil {
		return
	}
	cam := fs.Camera

	var up geom.Vec3
	var height, minimumHeight, maximumHeight float64
	if region, ok := root.boundingVolume.(*Region); ok {
		up = cam.Position.Normalize()
		height = geom.WGS84.CartesianToCartographic(cam.Position).Height
		minimumHeight = region.MinimumHeight
		maximumHeight = region.MaximumHeight
	} else {
		center := root.boundingVolume.Center()
		radius := root.boundingVolume.Radius()
		if center.Length() > geom.WGS84.Radii.Z {
			centerHeight := geom.WGS84.CartesianToCartographic(center).Height
			minimumHeight = centerHeight - radius
			maximumHeight = centerHeight + radius
			up = cam.Position.Normalize()
			height = geom.WGS84.CartesianToCartographic(cam.Position).Height
		} else {
			minimumHeight = center.Z - radius
			maximumHeight = center.Z + radius
			up = geom.Vec3{Z: 1}
			height = cam.Position.Z
		}
	}

	heightFalloff := ts.opts.DynamicScreenSpaceErrorHeightFalloff
	heightClose := minimumHeight + (maximumHeight-minimumHeight)*heightFalloff
	heightFar := maximumHeight

	t := geom.Clamp((height-heightClose)/(heightFar-heightClose), 0, 1)
	if heightFar == heightClose {
		t = 0
	}
	horizonFactor := (1 - math.Abs(cam.Direction.Dot(up))) * (1 - t)
	ts.dynamicSSEDensity = ts.opts.DynamicScreenSpaceErrorDensity * horizonFactor
}

// isPriorityDeferred reports whether tile sits outside the foveated cone and
// can wait until the camera stops. The relaxation blends from the minimum
// toward the memory adjusted maximum with the configured easing.
func (ts *Tileset) isPriorityDeferred(tile *Tile, fs *FrameState) bool {
	opts := ts.opts
	if !opts.FoveatedScreenSpaceError {
		return false
	}
	if ts.pass == PassPreload || ts.pass == PassPreloadFlight {
		return false
	}
	if !opts.SkipLevelOfDetail && tile.refine == RefineReplace {
		return false
	}

	cam := fs.Camera
	radius := tile.boundingVolume.Radius()
	scaledCameraDirection := cam.Direction.Scale(tile.centerZDepth)
	closestPointOnLine := cam.Position.Add(scaledCameraDirection)
	toLine := closestPointOnLine.Sub(tile.boundingVolume.Center())
	distanceToLine := toLine.Length()
	notTouchingSphere := distanceToLine > radius

	if notTouchingSphere {
		toLineNormalized := toLine.Scale(1 / distanceToLine)
		scaledToLine := toLineNormalized.Scale(radius)
		closestOnSphere := tile.boundingVolume.Center().Add(scaledToLine)
		toClosestOnSphere := closestOnSphere.Sub(cam.Position).Normalize()
		tile.foveatedFactor = 1 - math.Abs(cam.Direction.Dot(toClosestOnSphere))
	} else {
		tile.foveatedFactor = 0
	}

	replace := tile.refine == RefineReplace
	memoryAdjusted := ts.budget.adjusted
	maximumFoveatedFactor := 1 - math.Cos(cam.Fovy*0.5)
	foveatedConeFactor := opts.FoveatedConeSize * maximumFoveatedFactor

	if (replace && memoryAdjusted > ts.opts.MaximumScreenSpaceError) || tile.foveatedFactor <= foveatedConeFactor {
		return false
	}

	foveatedRange := maximumFoveatedFactor - foveatedConeFactor
	if foveatedRange <= 0 {
		return false
	}
	normalizedFoveatedFactor := geom.Clamp((tile.foveatedFactor-foveatedConeFactor)/foveatedRange, 0, 1)
	sseRelaxation := opts.lerp(opts.FoveatedMinimumScreenSpaceErrorRelaxation, memoryAdjusted, normalizedFoveatedFactor)
	sse := tile.screenSpaceError
	if tile.screenSpaceError == 0 {
		if parent := ts.tree.Parent(tile); parent != nil {
			sse = parent.screenSpaceError * 0.5
		}
	}
	return memoryAdjusted-sseRelaxation <= sse
}

// isPriorityProgressiveResolution marks tiles that would already satisfy the
// threshold at a reduced viewport height, so a coarse pass fills the screen
// before full detail arrives.
func (ts *Tileset) isPriorityProgressiveResolution(tile *Tile) bool {
	fraction := ts.opts.ProgressiveResolutionHeightFraction
	if fraction <= 0 || fraction > 0.5 {
		return false
	}

	threshold := ts.budget.adjusted
	progressive := tile.screenSpaceErrorLowRes > threshold
	tile.priorityProgressiveResolutionSSELeaf = false
	parent := ts.tree.Parent(tile)
	maximumSSE := threshold
	if tile.screenSpaceErrorLowRes <= maximumSSE && (parent == nil || parent.screenSpaceErrorLowRes > maximumSSE) {
		tile.priorityProgressiveResolutionSSELeaf = true
		progressive = true
	}
	return progressive
}

// isOnScreenLongEnough drops requests for tiles the camera is sweeping past.
func (ts *Tileset) isOnScreenLongEnough(tile *Tile, fs *FrameState) bool {
	if !ts.opts.CullRequestsWhileMoving {
		return true
	}
	cam := fs.Camera
	deltaMagnitude := cam.PositionDelta
	if deltaMagnitude == 0 {
		deltaMagnitude = cam.PositionDeltaLastFrame
	}
	diameter := math.Max(tile.boundingVolume.Radius()*2, 1)
	movementRatio := ts.opts.CullRequestsWhileMovingMultiplier * deltaMagnitude / diameter
	return movementRatio < 1
}

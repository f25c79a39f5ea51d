package tileset

import (
	"math"

	"github.com/jaennil/guide_helper/backend/tilestream/internal/geom"
)

type priorityBounds struct {
	depth          float64
	distance       float64
	foveatedFactor float64
	reverseSSE     float64
}

func (ts *Tileset) resetMinimumMaximum() {
	ts.priorityMin = priorityBounds{math.MaxFloat64, math.MaxFloat64, math.MaxFloat64, math.MaxFloat64}
	ts.priorityMax = priorityBounds{-math.MaxFloat64, -math.MaxFloat64, -math.MaxFloat64, -math.MaxFloat64}
}

func (ts *Tileset) updateMinimumMaximumPriority(tile *Tile) {
	holder := tile.priorityHolder
	lo, hi := &ts.priorityMin, &ts.priorityMax
	hi.distance = math.Max(holder.distanceToCamera, hi.distance)
	lo.distance = math.Min(holder.distanceToCamera, lo.distance)
	hi.depth = math.Max(float64(tile.depth), hi.depth)
	lo.depth = math.Min(float64(tile.depth), lo.depth)
	hi.foveatedFactor = math.Max(holder.foveatedFactor, hi.foveatedFactor)
	lo.foveatedFactor = math.Min(holder.foveatedFactor, lo.foveatedFactor)
	hi.reverseSSE = math.Max(tile.priorityReverseScreenSpaceError, hi.reverseSSE)
	lo.reverseSSE = math.Min(tile.priorityReverseScreenSpaceError, lo.reverseSSE)
}

// priorityReverseScreenSpaceError is the error still left to resolve below
// the root; larger means closer to final detail.
func (ts *Tileset) priorityReverseScreenSpaceError(tile *Tile) float64 {
	root := ts.tree.Root()
	parent := ts.tree.Parent(tile)
	if parent != nil && tile.refine != RefineAdd {
		return root.screenSpaceError - parent.screenSpaceError
	}
	return root.screenSpaceError - tile.screenSpaceError
}

func isolateDigits(normalized float64, numberOfDigits int) float64 {
	limit := math.Pow(10, float64(numberOfDigits))
	return math.Min(math.Floor(normalized*limit), limit-1)
}

func priorityWeight(condition bool, value float64) float64 {
	if condition {
		return value
	}
	return 0
}

const (
	priorityDigits             = 4
	depthScale                 = 1
	preferredSortingScale      = 1e4
	foveatedScale              = 1e8
	progressiveResolutionScale = 1e12
	foveatedDeferScale         = 1e13
	preloadFlightScale         = 1e14
)

// updatePriority packs the normalized priority components into one number.
// Smaller is more important. Each component owns a decimal digit range so a
// more significant component always dominates.
func (ts *Tileset) updatePriority(tile *Tile) {
	lo, hi := ts.priorityMin, ts.priorityMax
	holder := tile.priorityHolder
	preferLeaves := ts.opts.PreferLeaves

	normalizedDepth := geom.Normalize(float64(tile.depth), lo.depth, hi.depth)
	if preferLeaves {
		normalizedDepth = 1 - normalizedDepth
	}
	depthDigit := depthScale * isolateDigits(normalizedDepth, priorityDigits)

	var normalizedPreferredSorting float64
	if ts.opts.SkipLevelOfDetail || preferLeaves {
		normalizedPreferredSorting = geom.Normalize(holder.distanceToCamera, lo.distance, hi.distance)
	} else {
		normalizedPreferredSorting = 1 - geom.Normalize(tile.priorityReverseScreenSpaceError, lo.reverseSSE, hi.reverseSSE)
	}
	preferredSortingDigit := preferredSortingScale * isolateDigits(normalizedPreferredSorting, priorityDigits)

	foveatedDigit := foveatedScale * isolateDigits(geom.Normalize(holder.foveatedFactor, lo.foveatedFactor, hi.foveatedFactor), priorityDigits)
	progressiveDigit := priorityWeight(!tile.priorityProgressiveResolution, progressiveResolutionScale)
	deferDigit := priorityWeight(tile.priorityDeferred, foveatedDeferScale)
	preloadFlightDigit := priorityWeight(ts.pass != PassPreloadFlight, preloadFlightScale)

	tile.priority = depthDigit + preferredSortingDigit + foveatedDigit + progressiveDigit + deferDigit + preloadFlightDigit
}

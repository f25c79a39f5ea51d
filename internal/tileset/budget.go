package tileset

import "math"

const memoryAdjustmentStep = 1.02

// memoryBudget tracks the screen space error threshold after relaxation for
// memory pressure. It never drops below the configured maximum and is raised
// at most once per frame.
type memoryBudget struct {
	nominal     float64
	adjusted    float64
	raisedFrame int64
}

func newMemoryBudget(maximumScreenSpaceError float64) memoryBudget {
	return memoryBudget{nominal: maximumScreenSpaceError, adjusted: maximumScreenSpaceError, raisedFrame: -1}
}

// increase reports whether the threshold was raised for frame.
func (b *memoryBudget) increase(frame int64) bool {
	if b.raisedFrame == frame {
		return false
	}
	b.raisedFrame = frame
	b.adjusted *= memoryAdjustmentStep
	return true
}

func (b *memoryBudget) decrease() {
	b.adjusted = math.Max(b.adjusted/memoryAdjustmentStep, b.nominal)
}

func (b *memoryBudget) relaxed() bool {
	return b.adjusted > b.nominal
}

// raiseScreenSpaceError relaxes the threshold for frame and reorders the
// processing queue so the most valuable tiles still finish first.
func (ts *Tileset) raiseScreenSpaceError(frame int64) {
	if !ts.budget.increase(frame) {
		return
	}
	ts.log.Debug("memory adjusted screen space error raised", "sse", ts.budget.adjusted, "processing", ts.pipeline.Len())
	ts.pipeline.prioritize()
}

package tileset

import (
	"time"

	"github.com/jaennil/guide_helper/backend/tilestream/pkg/logger"
	"github.com/tanema/gween/ease"
)

// Options is the configuration surface of a Tileset. Start from
// DefaultOptions and override what is needed.
type Options struct {
	MaximumScreenSpaceError   float64
	CacheBytes                int64
	MaximumCacheOverflowBytes int64

	SkipLevelOfDetail                   bool
	BaseScreenSpaceError                float64
	SkipScreenSpaceErrorFactor          float64
	SkipLevels                          int
	ImmediatelyLoadDesiredLevelOfDetail bool
	LoadSiblings                        bool

	CullWithChildrenBounds            bool
	CullRequestsWhileMoving           bool
	CullRequestsWhileMovingMultiplier float64

	DynamicScreenSpaceError              bool
	DynamicScreenSpaceErrorDensity       float64
	DynamicScreenSpaceErrorFactor        float64
	DynamicScreenSpaceErrorHeightFalloff float64

	FoveatedScreenSpaceError                  bool
	FoveatedConeSize                          float64
	FoveatedMinimumScreenSpaceErrorRelaxation float64
	FoveatedTimeDelay                         time.Duration
	// FoveatedInterpolation blends between the minimum relaxation and the
	// memory adjusted maximum; called as fn(t, begin, change, 1).
	FoveatedInterpolation ease.TweenFunc

	PreferLeaves                        bool
	ProgressiveResolutionHeightFraction float64

	MaximumRequests          int
	MaximumRequestsPerServer int

	ImplicitAvailability Availability

	Fetcher         Fetcher
	Decoder         Decoder
	Executor        Executor
	Logger          logger.Logger
	SharedResources *SharedResources
	Clock           func() time.Time
}

func DefaultOptions() Options {
	return Options{
		MaximumScreenSpaceError:   16,
		CacheBytes:                512 * 1024 * 1024,
		MaximumCacheOverflowBytes: 512 * 1024 * 1024,

		BaseScreenSpaceError:       1024,
		SkipScreenSpaceErrorFactor: 16,
		SkipLevels:                 1,

		CullWithChildrenBounds:            true,
		CullRequestsWhileMoving:           true,
		CullRequestsWhileMovingMultiplier: 60,

		DynamicScreenSpaceError:              true,
		DynamicScreenSpaceErrorDensity:       2.0e-4,
		DynamicScreenSpaceErrorFactor:        24,
		DynamicScreenSpaceErrorHeightFalloff: 0.25,

		FoveatedScreenSpaceError:                  true,
		FoveatedConeSize:                          0.1,
		FoveatedMinimumScreenSpaceErrorRelaxation: 0,
		FoveatedTimeDelay:                         200 * time.Millisecond,
		FoveatedInterpolation:                     ease.Linear,

		ProgressiveResolutionHeightFraction: 0.3,

		MaximumRequests:          50,
		MaximumRequestsPerServer: 18,
	}
}

func (o Options) withDefaults() Options {
	if o.FoveatedInterpolation == nil {
		o.FoveatedInterpolation = ease.Linear
	}
	if o.MaximumRequests <= 0 {
		o.MaximumRequests = 50
	}
	if o.MaximumRequestsPerServer <= 0 {
		o.MaximumRequestsPerServer = 18
	}
	if o.SkipScreenSpaceErrorFactor <= 0 {
		o.SkipScreenSpaceErrorFactor = 16
	}
	if o.Executor == nil {
		o.Executor = goExecutor{}
	}
	if o.Decoder == nil {
		o.Decoder = NewRawDecoder(o.SharedResources)
	}
	if o.Logger == nil {
		o.Logger = logger.NewNoOpLogger()
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

func (o Options) cacheByteLimit() int64 {
	return o.CacheBytes + o.MaximumCacheOverflowBytes
}

// lerp interpolates through the configured easing function.
func (o Options) lerp(begin, end, t float64) float64 {
	return float64(o.FoveatedInterpolation(float32(t), float32(begin), float32(end-begin), 1))
}

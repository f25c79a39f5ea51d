package app

import (
	"fmt"
	"strings"

	"github.com/jaennil/guide_helper/backend/tilestream/internal/tileset"
	"github.com/jaennil/guide_helper/backend/tilestream/pkg/config"
	"github.com/tanema/gween/ease"
)

var easings = map[string]ease.TweenFunc{
	"linear":     ease.Linear,
	"inquad":     ease.InQuad,
	"outquad":    ease.OutQuad,
	"inoutquad":  ease.InOutQuad,
	"incubic":    ease.InCubic,
	"outcubic":   ease.OutCubic,
	"inoutcubic": ease.InOutCubic,
	"insine":     ease.InSine,
	"outsine":    ease.OutSine,
	"inoutsine":  ease.InOutSine,
	"inexpo":     ease.InExpo,
	"outexpo":    ease.OutExpo,
	"inoutexpo":  ease.InOutExpo,
	"outinquad":  ease.OutInQuad,
	"outinsine":  ease.OutInSine,
	"outincubic": ease.OutInCubic,
}

func easing(name string) (ease.TweenFunc, error) {
	fn, ok := easings[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown easing function %q", name)
	}
	return fn, nil
}

// tilesetOptions maps the TILESET_* configuration onto tileset.Options.
// Collaborators are wired by the caller.
func tilesetOptions(cfg config.Tileset) (tileset.Options, error) {
	interpolation, err := easing(cfg.FoveatedInterpolation)
	if err != nil {
		return tileset.Options{}, fmt.Errorf("foveated interpolation: %w", err)
	}

	opts := tileset.DefaultOptions()
	opts.MaximumScreenSpaceError = cfg.MaximumScreenSpaceError
	opts.CacheBytes = cfg.CacheBytes
	opts.MaximumCacheOverflowBytes = cfg.MaximumCacheOverflowBytes

	opts.SkipLevelOfDetail = cfg.SkipLevelOfDetail
	opts.BaseScreenSpaceError = cfg.BaseScreenSpaceError
	opts.SkipScreenSpaceErrorFactor = cfg.SkipScreenSpaceErrorFactor
	opts.SkipLevels = cfg.SkipLevels
	opts.ImmediatelyLoadDesiredLevelOfDetail = cfg.ImmediatelyLoadDesiredLevelOfDetail
	opts.LoadSiblings = cfg.LoadSiblings

	opts.CullWithChildrenBounds = cfg.CullWithChildrenBounds
	opts.CullRequestsWhileMoving = cfg.CullRequestsWhileMoving
	opts.CullRequestsWhileMovingMultiplier = cfg.CullRequestsWhileMovingMultiplier

	opts.DynamicScreenSpaceError = cfg.DynamicScreenSpaceError
	opts.DynamicScreenSpaceErrorDensity = cfg.DynamicScreenSpaceErrorDensity
	opts.DynamicScreenSpaceErrorFactor = cfg.DynamicScreenSpaceErrorFactor
	opts.DynamicScreenSpaceErrorHeightFalloff = cfg.DynamicScreenSpaceErrorFalloff

	opts.FoveatedScreenSpaceError = cfg.FoveatedScreenSpaceError
	opts.FoveatedConeSize = cfg.FoveatedConeSize
	opts.FoveatedMinimumScreenSpaceErrorRelaxation = cfg.FoveatedMinimumRelaxation
	opts.FoveatedTimeDelay = cfg.FoveatedTimeDelay
	opts.FoveatedInterpolation = interpolation

	opts.PreferLeaves = cfg.PreferLeaves
	opts.ProgressiveResolutionHeightFraction = cfg.ProgressiveResolutionHeightFraction

	opts.MaximumRequests = cfg.MaximumRequests
	opts.MaximumRequestsPerServer = cfg.MaximumRequestsPerServer
	return opts, nil
}

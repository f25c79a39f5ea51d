package tileset

// Pass identifies why the tileset is being traversed within a frame.
type Pass uint8

const (
	PassRender Pass = iota
	PassPick
	PassShadow
	PassPreload
	PassPreloadFlight
	PassRequestRenderModeDeferCheck
	PassMostDetailedPreload
	PassMostDetailedPick
	numberOfPasses
)

func (p Pass) String() string {
	switch p {
	case PassRender:
		return "render"
	case PassPick:
		return "pick"
	case PassShadow:
		return "shadow"
	case PassPreload:
		return "preload"
	case PassPreloadFlight:
		return "preload_flight"
	case PassRequestRenderModeDeferCheck:
		return "request_render_mode_defer_check"
	case PassMostDetailedPreload:
		return "most_detailed_preload"
	case PassMostDetailedPick:
		return "most_detailed_pick"
	}
	return "unknown"
}

// ParsePass is the inverse of Pass.String.
func ParsePass(s string) (Pass, bool) {
	for p := PassRender; p < numberOfPasses; p++ {
		if p.String() == s {
			return p, true
		}
	}
	return 0, false
}

type PassOptions struct {
	Traversal      TraversalKind
	IsRender       bool
	RequestTiles   bool
	IgnoreCommands bool
}

func (p Pass) Options() PassOptions {
	switch p {
	case PassRender:
		return PassOptions{Traversal: TraversalDefault, IsRender: true, RequestTiles: true}
	case PassPick:
		return PassOptions{Traversal: TraversalDefault}
	case PassShadow:
		return PassOptions{Traversal: TraversalDefault, RequestTiles: true}
	case PassPreload:
		return PassOptions{Traversal: TraversalDefault, RequestTiles: true, IgnoreCommands: true}
	case PassPreloadFlight:
		return PassOptions{Traversal: TraversalDefault, RequestTiles: true, IgnoreCommands: true}
	case PassRequestRenderModeDeferCheck:
		return PassOptions{Traversal: TraversalDefault, IgnoreCommands: true}
	case PassMostDetailedPreload:
		return PassOptions{Traversal: TraversalMostDetailed, RequestTiles: true, IgnoreCommands: true}
	case PassMostDetailedPick:
		return PassOptions{Traversal: TraversalMostDetailed}
	}
	return PassOptions{}
}

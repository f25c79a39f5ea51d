package tileset

type listener[T any] struct {
	fn func(T)
}

// Event is a per-tileset observer list. Listeners run synchronously on the
// frame thread.
type Event[T any] struct {
	listeners []*listener[T]
}

// AddListener registers fn and returns a function that removes it.
func (e *Event[T]) AddListener(fn func(T)) (remove func()) {
	l := &listener[T]{fn: fn}
	e.listeners = append(e.listeners, l)
	return func() {
		for i, cur := range e.listeners {
			if cur == l {
				e.listeners = append(e.listeners[:i:i], e.listeners[i+1:]...)
				return
			}
		}
	}
}

func (e *Event[T]) NumberOfListeners() int {
	return len(e.listeners)
}

func (e *Event[T]) Raise(v T) {
	if len(e.listeners) == 0 {
		return
	}
	snapshot := append([]*listener[T](nil), e.listeners...)
	for _, l := range snapshot {
		l.fn(v)
	}
}

type LoadProgress struct {
	PendingRequests int
	TilesProcessing int
}

type Events struct {
	TileVisible        Event[*Tile]
	TileLoad           Event[*Tile]
	TileUnload         Event[*Tile]
	TileFailed         Event[TileFailure]
	LoadProgress       Event[LoadProgress]
	AllTilesLoaded     Event[struct{}]
	InitialTilesLoaded Event[struct{}]
}

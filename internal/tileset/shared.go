package tileset

import "sync"

// SharedResources is a reference counted cache for objects shared between
// tile contents, such as decompressors. It may be shared by several tilesets.
type SharedResources struct {
	mu      sync.Mutex
	entries map[string]*sharedEntry
}

type sharedEntry struct {
	value   any
	refs    int
	destroy func(any)
}

func NewSharedResources() *SharedResources {
	s := &SharedResources{}
	s.Init()
	return s
}

// Init prepares an empty resource table. It is safe to call after Teardown.
func (s *SharedResources) Init() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries == nil {
		s.entries = make(map[string]*sharedEntry)
	}
}

// Acquire returns the resource stored under key, creating it on first use.
// Every successful Acquire must be paired with a Release.
func (s *SharedResources) Acquire(key string, create func() (any, func(any), error)) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entries == nil {
		s.entries = make(map[string]*sharedEntry)
	}
	if e, ok := s.entries[key]; ok {
		e.refs++
		return e.value, nil
	}
	v, destroy, err := create()
	if err != nil {
		return nil, err
	}
	s.entries[key] = &sharedEntry{value: v, refs: 1, destroy: destroy}
	return v, nil
}

func (s *SharedResources) Release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return
	}
	e.refs--
	if e.refs > 0 {
		return
	}
	delete(s.entries, key)
	if e.destroy != nil {
		e.destroy(e.value)
	}
}

func (s *SharedResources) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Teardown destroys every resource regardless of outstanding references.
func (s *SharedResources) Teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, e := range s.entries {
		if e.destroy != nil {
			e.destroy(e.value)
		}
		delete(s.entries, key)
	}
}

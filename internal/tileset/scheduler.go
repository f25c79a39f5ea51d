package tileset

import (
	"context"
	"net/url"
	"slices"
	"sync"
)

// Fetcher resolves a content URL to its bytes. Implementations must honor
// ctx cancellation.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Executor runs fetch tasks off the frame thread.
type Executor interface {
	Go(fn func())
}

type refreshKey struct{}

// WithRefresh marks ctx as a fetch replacing expired content.
func WithRefresh(ctx context.Context) context.Context {
	return context.WithValue(ctx, refreshKey{}, true)
}

// IsRefresh reports whether a fetch replaces expired content. Fetchers
// backed by a persistent store should bypass it for such requests.
func IsRefresh(ctx context.Context) bool {
	v, _ := ctx.Value(refreshKey{}).(bool)
	return v
}

type goExecutor struct{}

func (goExecutor) Go(fn func()) { go fn() }

// request is the handle of one in-flight content fetch. Only the frame
// thread reads or writes its fields after creation; the fetch goroutine
// touches ctx and urls.
type request struct {
	tile          *Tile
	urls          []string
	server        string
	expired       bool
	previousState ContentState
	ctx           context.Context
	cancel        context.CancelFunc
	canceled      bool
	released      bool
}

type fetchResult struct {
	req      *request
	payloads [][]byte
	url      string
	err      error
}

// RequestScheduler admits prioritized content requests within global and
// per-server concurrency limits. Finished fetches are queued and applied on
// the next frame by the pipeline.
type RequestScheduler struct {
	ts       *Tileset
	fetcher  Fetcher
	executor Executor

	maximumRequests          int
	maximumRequestsPerServer int
	active                   int
	activeByServer           map[string]int
	inFlight                 []*Tile

	mu        sync.Mutex
	completed []fetchResult
}

func newRequestScheduler(ts *Tileset) *RequestScheduler {
	return &RequestScheduler{
		ts:                       ts,
		fetcher:                  ts.opts.Fetcher,
		executor:                 ts.opts.Executor,
		maximumRequests:          ts.opts.MaximumRequests,
		maximumRequestsPerServer: ts.opts.MaximumRequestsPerServer,
		activeByServer:           make(map[string]int),
	}
}

func (s *RequestScheduler) ActiveRequests() int {
	return s.active
}

func serverKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}

func sortByPriority(tiles []*Tile) {
	slices.SortStableFunc(tiles, func(a, b *Tile) int {
		switch {
		case a.priority < b.priority:
			return -1
		case a.priority > b.priority:
			return 1
		}
		return 0
	})
}

// RequestTiles cancels stale requests, then issues the requested set in
// priority order. Most detailed queries are admitted regardless of memory
// and leave the screen space error threshold alone.
func (s *RequestScheduler) RequestTiles(requested []*Tile, fs *FrameState, kind TraversalKind) {
	s.CancelOutOfViewRequests(fs.FrameNumber)

	ignoreMemory := kind == TraversalMostDetailed
	if !ignoreMemory {
		for _, tile := range requested {
			s.ts.updatePriority(tile)
		}
	}
	sortByPriority(requested)

	overBudget := false
	for _, tile := range requested {
		if !s.requestContent(tile, ignoreMemory) {
			s.ts.stats.NumberOfAttemptedRequests++
			if !ignoreMemory && s.ts.memoryUsage() > s.ts.opts.cacheByteLimit() {
				overBudget = true
			}
		}
	}
	if overBudget {
		s.ts.raiseScreenSpaceError(fs.FrameNumber)
	}
}

// requestContent reports false when the request could not be admitted this
// frame and should be retried later.
func (s *RequestScheduler) requestContent(tile *Tile, ignoreMemory bool) bool {
	ts := s.ts
	if tile.hasEmptyContent() || tile.destroyed {
		return true
	}
	if tile.state != ContentUnloaded && !tile.expired {
		return true
	}
	if s.fetcher == nil {
		return false
	}

	server := serverKey(tile.contentURLs[0])
	if s.active >= s.maximumRequests || s.activeByServer[server] >= s.maximumRequestsPerServer {
		return false
	}
	if !ignoreMemory && ts.memoryUsage() > ts.opts.cacheByteLimit() {
		return false
	}

	expired := tile.expired
	if expired {
		ts.expireContent(tile)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if expired {
		ctx = WithRefresh(ctx)
	}
	req := &request{
		tile:          tile,
		urls:          slices.Clone(tile.contentURLs),
		server:        server,
		expired:       expired,
		previousState: tile.state,
		ctx:           ctx,
		cancel:        cancel,
	}
	tile.request = req
	tile.state = ContentLoading
	ts.stats.NumberOfPendingRequests++
	s.active++
	s.activeByServer[server]++
	s.inFlight = append(s.inFlight, tile)

	s.executor.Go(func() { s.fetch(req) })
	return true
}

func (s *RequestScheduler) fetch(req *request) {
	res := fetchResult{req: req}
	for _, u := range req.urls {
		if req.ctx.Err() != nil {
			res.err = ErrRequestCanceled
			break
		}
		data, err := s.fetcher.Fetch(req.ctx, u)
		if err != nil {
			res.err = err
			res.url = u
			break
		}
		res.payloads = append(res.payloads, data)
	}

	s.mu.Lock()
	s.completed = append(s.completed, res)
	s.mu.Unlock()
}

// takeCompleted drains the fetches that settled since the last call.
func (s *RequestScheduler) takeCompleted() []fetchResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.completed
	s.completed = nil
	return out
}

func (s *RequestScheduler) release(req *request) {
	if req.released {
		return
	}
	req.released = true
	s.active--
	s.activeByServer[req.server]--
	if s.activeByServer[req.server] <= 0 {
		delete(s.activeByServer, req.server)
	}
}

// Cancel aborts tile's in-flight request and reverts it to the state it had
// before the request so traversal can ask for it again.
func (s *RequestScheduler) Cancel(tile *Tile) {
	req := tile.request
	if req == nil || req.canceled {
		return
	}
	req.canceled = true
	req.cancel()
	s.release(req)
	tile.request = nil
	if tile.state == ContentLoading {
		tile.state = req.previousState
	}
	s.ts.stats.NumberOfPendingRequests--
}

// CancelOutOfViewRequests cancels requests whose tile was not touched in the
// current frame.
func (s *RequestScheduler) CancelOutOfViewRequests(frame int64) {
	kept := s.inFlight[:0]
	for _, tile := range s.inFlight {
		if tile.request == nil || tile.state != ContentLoading {
			continue
		}
		if frame-tile.touchedFrame >= 1 {
			s.Cancel(tile)
			continue
		}
		kept = append(kept, tile)
	}
	clear(s.inFlight[len(kept):])
	s.inFlight = kept
}

func (s *RequestScheduler) cancelAll() {
	for _, tile := range s.inFlight {
		s.Cancel(tile)
	}
	s.inFlight = nil
}

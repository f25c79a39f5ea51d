package tileset

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"
)

// Pipeline moves tiles from fetched bytes to ready content. Completed
// fetches are applied at the start of a frame, never inline with the fetch.
type Pipeline struct {
	ts    *Tileset
	queue []*Tile
}

func newPipeline(ts *Tileset) *Pipeline {
	return &Pipeline{ts: ts}
}

func (p *Pipeline) Len() int {
	return len(p.queue)
}

// inFlightBytes is the size of content that is decoded but not yet ready.
func (p *Pipeline) inFlightBytes() int64 {
	var n int64
	for _, tile := range p.queue {
		if tile.state == ContentProcessing && tile.content != nil {
			n += tile.content.ByteLength()
		}
	}
	return n
}

// applyCompleted turns settled fetches into PROCESSING or FAILED tiles.
func (p *Pipeline) applyCompleted(results []fetchResult) {
	ts := p.ts
	for _, res := range results {
		req := res.req
		tile := req.tile
		if req.canceled || tile.destroyed || tile.request != req {
			continue
		}
		ts.scheduler.release(req)
		tile.request = nil
		ts.stats.NumberOfPendingRequests--

		if res.err != nil {
			if errors.Is(res.err, context.Canceled) || errors.Is(res.err, ErrRequestCanceled) {
				tile.state = req.previousState
				ts.stats.NumberOfAttemptedRequests++
				continue
			}
			ts.failTile(tile, res.url, res.err)
			continue
		}

		content, err := decodeAll(ts.opts.Decoder, req.urls, res.payloads)
		if err != nil {
			ts.failTile(tile, req.urls[0], err)
			continue
		}
		if req.expired {
			tile.expireDate = time.Time{}
		}
		tile.content = content
		tile.state = ContentProcessing
		p.queue = append(p.queue, tile)
		ts.stats.NumberOfTilesProcessing++
	}
}

func (p *Pipeline) filter() {
	p.queue = slices.DeleteFunc(p.queue, func(tile *Tile) bool {
		return tile.destroyed || tile.state != ContentProcessing
	})
}

// step advances one tile and converts a panicking content into an error.
func step(tile *Tile) (ready bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("content processing panicked: %v", r)
		}
	}()
	return tile.content.Process()
}

// Process advances every PROCESSING tile by one step. Once usage crosses the
// hard limit the remaining tiles wait for a later frame, and the screen space
// error threshold is relaxed. The head of the queue always advances, so
// decoded content alone never stalls the pipeline.
func (p *Pipeline) Process(frame int64) {
	ts := p.ts
	p.filter()

	limit := ts.opts.cacheByteLimit()
	memoryExceeded := false
	for i, tile := range p.queue {
		if ts.memoryUsage() > limit {
			memoryExceeded = true
			if i > 0 {
				break
			}
		}
		if tile.state != ContentProcessing {
			continue
		}

		ready, err := step(tile)
		if err != nil {
			ts.stats.NumberOfTilesProcessing--
			url := ""
			if len(tile.contentURLs) > 0 {
				url = tile.contentURLs[0]
			}
			ts.failTile(tile, url, err)
			continue
		}
		if ready {
			ts.stats.NumberOfTilesProcessing--
			ts.contentReady(tile)
		}
	}
	p.filter()

	if ts.memoryUsage() < ts.opts.CacheBytes {
		ts.budget.decrease()
	} else if memoryExceeded && len(p.queue) > 0 {
		ts.raiseScreenSpaceError(frame)
	}
}

// prioritize orders the queue most important first.
func (p *Pipeline) prioritize() {
	for _, tile := range p.queue {
		p.ts.updatePriority(tile)
	}
	sortByPriority(p.queue)
}

func (p *Pipeline) clear() {
	for _, tile := range p.queue {
		if tile.state == ContentProcessing {
			tile.unloadContent()
		}
	}
	p.queue = nil
}

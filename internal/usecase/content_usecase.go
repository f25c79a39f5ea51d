package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jaennil/guide_helper/backend/tilestream/internal/repository/content"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/tileset"
	"github.com/jaennil/guide_helper/backend/tilestream/pkg/logger"
	"github.com/jaennil/guide_helper/backend/tilestream/pkg/metrics"
	"github.com/jaennil/guide_helper/backend/tilestream/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

const defaultUserAgent = "GuideHelper/1.0 (https://github.com/jaennil/guide_helper)"

// ContentUseCase fetches tile content for the tileset, reading through the
// content store and falling back to the upstream server.
type ContentUseCase struct {
	store      content.Store
	httpClient *http.Client
	userAgent  string
	group      singleflight.Group
	logger     logger.Logger
}

var _ tileset.Fetcher = (*ContentUseCase)(nil)

func NewContentUseCase(store content.Store, timeout time.Duration, userAgent string, l logger.Logger) *ContentUseCase {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &ContentUseCase{
		store: store,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		userAgent: userAgent,
		logger:    l,
	}
}

func (uc *ContentUseCase) Fetch(ctx context.Context, url string) ([]byte, error) {
	key := content.Key(url)
	refresh := tileset.IsRefresh(ctx)

	if !refresh {
		data, ok, err := uc.store.Get(ctx, key)
		switch {
		case err != nil:
			metrics.ContentStoreErrors.WithLabelValues("get").Inc()
			uc.logger.Warn("content store lookup failed, will fetch from upstream", "url", url, "error", err)
		case ok:
			metrics.ContentStoreHits.Inc()
			uc.logger.Debug("content store hit", "url", url, "size", len(data))
			return data, nil
		default:
			metrics.ContentStoreMisses.Inc()
		}
	}

	// Concurrent requests for one URL share a single upstream fetch. The
	// shared fetch is detached from any one caller so a cancel does not fail
	// the others.
	ch := uc.group.DoChan(url, func() (any, error) {
		return uc.fetchUpstream(context.WithoutCancel(ctx), url)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		data := res.Val.([]byte)
		if err := uc.store.Set(ctx, key, data); err != nil {
			metrics.ContentStoreErrors.WithLabelValues("set").Inc()
			uc.logger.Warn("failed to store content", "url", url, "error", err)
		} else {
			metrics.ContentStoreWrites.Inc()
		}
		return data, nil
	}
}

func (uc *ContentUseCase) fetchUpstream(ctx context.Context, url string) ([]byte, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "content.fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(semconv.URLFull(url)),
	)
	defer span.End()

	uc.logger.Debug("fetching from upstream", "url", url)
	start := time.Now()

	data, err := uc.get(ctx, url)
	metrics.UpstreamLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	metrics.UpstreamRequests.WithLabelValues("ok").Inc()
	span.SetAttributes(attribute.Int("content.size", len(data)))
	span.SetStatus(codes.Ok, "")
	uc.logger.Debug("fetched from upstream", "url", url, "size", len(data))
	return data, nil
}

func (uc *ContentUseCase) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", uc.userAgent)

	resp, err := uc.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to fetch content from upstream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &tileset.ContentLoadError{
			URL:     url,
			Message: fmt.Sprintf("upstream returned status %d", resp.StatusCode),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}
	return data, nil
}

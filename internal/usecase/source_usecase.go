package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jaennil/guide_helper/backend/tilestream/internal/coord"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/repository/cache"
	"github.com/jaennil/guide_helper/backend/tilestream/pkg/config"
	"github.com/jaennil/guide_helper/backend/tilestream/pkg/logger"
	"github.com/jaennil/guide_helper/backend/tilestream/pkg/metrics"
	"github.com/jaennil/guide_helper/backend/tilestream/pkg/telemetry"
)

var ErrUpstreamStatus = errors.New("upstream returned non-200 status")

// SourceUseCase fetches raw source tile payloads, trying the cache before
// the upstream server.
type SourceUseCase struct {
	cache      cache.TileCache
	httpClient *http.Client
	userAgent  string
	referer    string
	logger     logger.Logger
}

func NewSourceUseCase(c cache.TileCache, cfg config.Upstream, l logger.Logger) *SourceUseCase {
	if c == nil {
		c = cache.NopCache{}
	}
	return &SourceUseCase{
		cache: c,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		userAgent: cfg.UserAgent,
		referer:   cfg.Referer,
		logger:    l,
	}
}

// TileURL fills a {z}/{x}/{y} template. x is wrapped into [0, 2^z).
func TileURL(template string, c coord.Coordinate) string {
	n := 1 << c.Z
	x := ((c.X % n) + n) % n
	return strings.NewReplacer(
		"{z}", strconv.Itoa(c.Z),
		"{x}", strconv.Itoa(x),
		"{y}", strconv.Itoa(c.Y),
	).Replace(template)
}

func (uc *SourceUseCase) Fetch(ctx context.Context, source, urlTemplate string, c coord.Coordinate) ([]byte, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "source.fetch")
	defer span.End()
	span.SetAttributes(
		attribute.String("source", source),
		attribute.String("tile", c.Key()),
	)

	metrics.SourceRequests.Inc()
	key := cache.TileCacheKey{Source: source, X: c.X, Y: c.Y, Z: c.Z}

	data, exists, err := uc.cache.Get(ctx, key)
	if err != nil {
		uc.logger.Warn("failed to check cache, will fetch from upstream", "key", key.String(), "error", err)
	} else if exists && len(data) > 0 {
		metrics.SourceCacheHits.Inc()
		span.SetAttributes(attribute.Bool("cache_hit", true))
		uc.logger.Debug("cache hit, returning cached source tile", "key", key.String(), "size", len(data))
		return data, nil
	}
	metrics.SourceCacheMisses.Inc()

	data, err = uc.fetchUpstream(ctx, TileURL(urlTemplate, c))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			metrics.SourceRequestsCanceled.Inc()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// Store in cache (fire and forget)
	go func() {
		storeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := uc.cache.Set(storeCtx, key, data); err != nil {
			uc.logger.Warn("failed to store source tile in cache", "key", key.String(), "error", err)
		}
	}()

	return data, nil
}

func (uc *SourceUseCase) fetchUpstream(ctx context.Context, url string) ([]byte, error) {
	uc.logger.Debug("fetching from upstream", "url", url)
	metrics.SourceUpstreamRequests.Inc()
	start := time.Now()
	defer func() {
		metrics.SourceUpstreamLatency.Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if uc.userAgent != "" {
		req.Header.Set("User-Agent", uc.userAgent)
	}
	if uc.referer != "" {
		req.Header.Set("Referer", uc.referer)
	}

	resp, err := uc.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch source tile from upstream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", ErrUpstreamStatus, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read source tile data: %w", err)
	}

	uc.logger.Debug("fetched source tile from upstream", "url", url, "size", len(data))
	return data, nil
}

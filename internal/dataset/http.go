package dataset

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"hotspot-map/internal/logger"
	"hotspot-map/internal/metrics"
	"hotspot-map/internal/record"
)

// HTTPSource fetches BaseURL/<file name> for each kind. With Cache set, raw response
// bodies are kept in Redis for CacheTTL.
type HTTPSource struct {
	BaseURL  string
	Client   *http.Client
	Cache    *redis.Client
	CacheTTL time.Duration
}

func (h *HTTPSource) url(k Kind) string {
	return strings.TrimRight(h.BaseURL, "/") + "/" + FileName(k)
}

func cacheKey(u string) string { return "hotspotmap:dataset:" + u }

func (h *HTTPSource) Fetch(ctx context.Context, k Kind) ([]record.Raw, error) {
	if FileName(k) == "" {
		return nil, fmt.Errorf("unknown dataset kind %q", k)
	}
	u := h.url(k)
	if h.Cache != nil {
		if b, err := h.Cache.Get(ctx, cacheKey(u)).Bytes(); err == nil && len(b) > 0 {
			if rows, err := Decode(b); err == nil {
				metrics.DatasetCacheHitsTotal.Inc()
				logger.L().Debug("dataset_cache_hit", "kind", string(k))
				return rows, nil
			}
		}
		metrics.DatasetCacheMissesTotal.Inc()
	}
	b, err := h.get(ctx, u)
	if err != nil {
		return nil, err
	}
	rows, err := Decode(b)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", u, err)
	}
	if h.Cache != nil {
		ttl := h.CacheTTL
		if ttl <= 0 {
			ttl = time.Hour
		}
		_ = h.Cache.Set(ctx, cacheKey(u), b, ttl).Err()
	}
	return rows, nil
}

func (h *HTTPSource) get(ctx context.Context, u string) ([]byte, error) {
	client := h.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: %s", u, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

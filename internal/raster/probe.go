package raster

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/redis/go-redis/v9"

	"hotspot-map/internal/logger"
	"hotspot-map/internal/metrics"
)

// DiagnosisBodyRunes bounds the response excerpt kept in a Diagnosis.
const DiagnosisBodyRunes = 500

// Diagnosis is what a direct re-fetch of a failing overlay URL returned.
type Diagnosis struct {
	URL         string    `json:"url"`
	Status      int       `json:"status,omitempty"`
	StatusText  string    `json:"statusText,omitempty"`
	ContentType string    `json:"contentType,omitempty"`
	Body        string    `json:"body,omitempty"`
	Err         string    `json:"err,omitempty"`
	FetchedAt   time.Time `json:"fetchedAt"`
}

// Prober re-fetches overlay URLs after image errors. With Cache set, results are shared
// across sessions for TTL and repeated probes of one URL inside DedupeWindow are
// suppressed.
type Prober struct {
	Client       *http.Client
	Cache        *redis.Client
	TTL          time.Duration
	DedupeWindow time.Duration
	// Claims overrides the claim store; it defaults to RedisClaims on Cache.
	Claims ClaimStore
}

// NewProberFromEnv reads WMS_PROBE_TIMEOUT_MS and WMS_PROBE_CACHE_TTL_S.
func NewProberFromEnv(rc *redis.Client) *Prober {
	timeout := 5000
	if v := os.Getenv("WMS_PROBE_TIMEOUT_MS"); v != "" {
		if n, e := strconv.Atoi(v); e == nil && n > 0 {
			timeout = n
		}
	}
	ttl := 300
	if v := os.Getenv("WMS_PROBE_CACHE_TTL_S"); v != "" {
		if n, e := strconv.Atoi(v); e == nil && n > 0 {
			ttl = n
		}
	}
	return &Prober{
		Client:       &http.Client{Timeout: time.Duration(timeout) * time.Millisecond},
		Cache:        rc,
		TTL:          time.Duration(ttl) * time.Second,
		DedupeWindow: 30 * time.Second,
	}
}

func probeKey(u string) string {
	h := sha1.Sum([]byte(u))
	return "hotspotmap:probe:" + hex.EncodeToString(h[:])
}

// Probe fetches u and reports status, content type and the start of the body. Transport
// failures are returned inside the Diagnosis, not as an error.
func (p *Prober) Probe(ctx context.Context, u string) Diagnosis {
	t0 := time.Now()
	defer func() { metrics.RasterProbeDurationMs.Observe(float64(time.Since(t0).Milliseconds())) }()

	key := probeKey(u)
	if p.Cache != nil {
		if s, _ := p.Cache.Get(ctx, key).Result(); s != "" {
			var d Diagnosis
			if json.Unmarshal([]byte(s), &d) == nil {
				return d
			}
		}
	}
	claims := p.claims()
	claimKey := key + ":claim"
	if claims != nil {
		window := p.DedupeWindow
		if window <= 0 {
			window = 30 * time.Second
		}
		ok, err := claims.Claim(ctx, claimKey, window)
		if err == nil && !ok {
			return Diagnosis{URL: u, Err: "probe suppressed: repeated within window", FetchedAt: time.Now()}
		}
	}

	d := p.fetch(ctx, u)
	logger.L().Debug("raster_probe_done", "status", d.Status, "content_type", d.ContentType, "err", d.Err)
	if d.Err != "" {
		// not cached; the next report may retry
		if claims != nil {
			_ = claims.Release(ctx, claimKey)
		}
		return d
	}
	if p.Cache != nil {
		b, _ := json.Marshal(d)
		ttl := p.TTL
		if ttl <= 0 {
			ttl = 300 * time.Second
		}
		_ = p.Cache.Set(ctx, key, string(b), ttl).Err()
	}
	return d
}

func (p *Prober) claims() ClaimStore {
	if p.Claims != nil {
		return p.Claims
	}
	if p.Cache != nil {
		return RedisClaims{RC: p.Cache}
	}
	return nil
}

func (p *Prober) fetch(ctx context.Context, u string) Diagnosis {
	d := Diagnosis{URL: u, FetchedAt: time.Now()}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		d.Err = err.Error()
		return d
	}
	resp, err := client.Do(req)
	if err != nil {
		d.Err = err.Error()
		return d
	}
	defer resp.Body.Close()
	d.Status = resp.StatusCode
	d.StatusText = http.StatusText(resp.StatusCode)
	d.ContentType = resp.Header.Get("Content-Type")
	// 4 bytes per rune is the worst case for the excerpt
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, DiagnosisBodyRunes*utf8.UTFMax))
	d.Body = firstRunes(string(raw), DiagnosisBodyRunes)
	return d
}

func firstRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

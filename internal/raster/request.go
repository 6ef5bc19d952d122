// Package raster drives the accident-hotspot WMS overlay: it maps the selected year to the
// provider's year code, composes the GetMap URL for the current viewport, and keeps one
// image overlay on the surface in sync with viewport and filter changes.
package raster

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"hotspot-map/internal/surface"
)

var (
	ErrUnsupportedYear = errors.New("unsupported year")
	ErrImageLoad       = errors.New("overlay image failed to load")
)

// yearCodes maps a calendar year to the representative accident id the provider expects
// as searchYearCd.
var yearCodes = map[int]int{
	2012: 2013098,
	2013: 2014105,
	2014: 2015048,
	2015: 2016146,
	2016: 2017029,
	2017: 2018029,
	2018: 2019036,
	2019: 2020027,
	2020: 2021024,
	2021: 2022042,
	2022: 2023057,
	2023: 2024044,
	2024: 2025076,
}

// YearCode returns the provider code for year, or ErrUnsupportedYear.
func YearCode(year int) (int, error) {
	if c, ok := yearCodes[year]; ok {
		return c, nil
	}
	return 0, fmt.Errorf("%w: %d", ErrUnsupportedYear, year)
}

// SupportedYears lists the mapped years in ascending order.
func SupportedYears() []int {
	out := make([]int, 0, len(yearCodes))
	for y := range yearCodes {
		out = append(out, y)
	}
	sort.Ints(out)
	return out
}

type Config struct {
	Endpoint string
	// AuthKey is issued URL-encoded and is inserted verbatim.
	AuthKey     string
	Layers      string
	Format      string
	Transparent string
	Version     string
	Width       int
	Height      int
	SRS         string
	Opacity     float64
	ZIndex      int
	// ProbeEnabled turns on the diagnostic re-fetch after an image error.
	ProbeEnabled bool
}

func DefaultConfig() Config {
	return Config{
		Endpoint:     "https://opendata.koroad.or.kr/data/wms/frequentzone/oldman",
		Layers:       "freoldman",
		Format:       "image/png",
		Transparent:  "TRUE",
		Version:      "1.1.1",
		Width:        1024,
		Height:       1024,
		SRS:          "EPSG:4326",
		Opacity:      0.7,
		ZIndex:       1,
		ProbeEnabled: true,
	}
}

// ConfigFromEnv overlays WMS_* and KOROAD_API_KEY on DefaultConfig.
func ConfigFromEnv() Config {
	c := DefaultConfig()
	c.AuthKey = os.Getenv("KOROAD_API_KEY")
	if v := os.Getenv("WMS_ENDPOINT"); v != "" {
		c.Endpoint = strings.TrimRight(v, "?")
	}
	if v := os.Getenv("WMS_LAYERS"); v != "" {
		c.Layers = v
	}
	if v := os.Getenv("WMS_WIDTH"); v != "" {
		if n, e := strconv.Atoi(v); e == nil && n > 0 {
			c.Width = n
		}
	}
	if v := os.Getenv("WMS_HEIGHT"); v != "" {
		if n, e := strconv.Atoi(v); e == nil && n > 0 {
			c.Height = n
		}
	}
	if v := os.Getenv("WMS_OPACITY"); v != "" {
		if f, e := strconv.ParseFloat(v, 64); e == nil && f >= 0 && f <= 1 {
			c.Opacity = f
		}
	}
	if v := strings.ToLower(os.Getenv("WMS_PROBE_ENABLED")); v == "0" || v == "false" {
		c.ProbeEnabled = false
	}
	return c
}

func formatCoord(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// BBox renders bounds as swLng,swLat,neLng,neLat.
func BBox(b surface.Bounds) string {
	return formatCoord(b.SW.Lng) + "," + formatCoord(b.SW.Lat) + "," + formatCoord(b.NE.Lng) + "," + formatCoord(b.NE.Lat)
}

// BuildRequest composes the GetMap URL in a fixed parameter order. The query is assembled
// by hand so the pre-encoded auth key is not encoded twice.
func BuildRequest(cfg Config, b surface.Bounds, year int) (string, error) {
	code, err := YearCode(year)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString(cfg.Endpoint)
	sb.WriteString("?authKey=")
	sb.WriteString(cfg.AuthKey)
	sb.WriteString("&layers=" + cfg.Layers)
	sb.WriteString("&format=" + cfg.Format)
	sb.WriteString("&transparent=" + cfg.Transparent)
	sb.WriteString("&service=WMS")
	sb.WriteString("&version=" + cfg.Version)
	sb.WriteString("&request=GetMap")
	sb.WriteString("&bbox=" + BBox(b))
	sb.WriteString("&width=" + strconv.Itoa(cfg.Width))
	sb.WriteString("&height=" + strconv.Itoa(cfg.Height))
	sb.WriteString("&srs=" + cfg.SRS)
	sb.WriteString("&searchYearCd=" + strconv.Itoa(code))
	return sb.String(), nil
}

// Redact keeps the first 20 characters of the auth key, for logs.
func Redact(u string) string {
	i := strings.Index(u, "authKey=")
	if i < 0 {
		return u
	}
	start := i + len("authKey=")
	end := strings.IndexByte(u[start:], '&')
	if end < 0 {
		end = len(u) - start
	}
	key := u[start : start+end]
	if len(key) <= 20 {
		return u
	}
	return u[:start] + key[:20] + "..." + u[start+end:]
}

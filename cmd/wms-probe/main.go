package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"hotspot-map/internal/logger"
	"hotspot-map/internal/raster"
	"hotspot-map/internal/surface"
	"hotspot-map/internal/utils"
)

const usage = "usage: wms-probe <year> [swLng,swLat,neLng,neLat]"

// Seoul city hall and surroundings.
var defaultBounds = surface.Bounds{
	SW: surface.LatLng{Lat: 37.45, Lng: 126.85},
	NE: surface.LatLng{Lat: 37.65, Lng: 127.15},
}

func parseBBox(s string) (surface.Bounds, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return surface.Bounds{}, fmt.Errorf("bbox needs 4 values, got %d", len(parts))
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return surface.Bounds{}, fmt.Errorf("bbox value %q: %w", p, err)
		}
		v[i] = f
	}
	b := surface.Bounds{SW: surface.LatLng{Lat: v[1], Lng: v[0]}, NE: surface.LatLng{Lat: v[3], Lng: v[2]}}
	if b.Empty() || !b.SW.Valid() || !b.NE.Valid() {
		return surface.Bounds{}, fmt.Errorf("bbox %q is empty or out of range", s)
	}
	return b, nil
}

// Prints the overlay request for a year and viewport, then fetches it once and reports
// what the provider answered.
func main() {
	_ = godotenv.Load(".env")
	l := logger.Setup()
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	year, err := strconv.Atoi(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	b := defaultBounds
	if len(os.Args) > 2 {
		if b, err = parseBBox(os.Args[2]); err != nil {
			l.Error("bbox_error", "err", err)
			os.Exit(2)
		}
	}

	cfg := raster.ConfigFromEnv()
	u, err := raster.BuildRequest(cfg, b, year)
	if err != nil {
		l.Error("wms_request_error", "year", year, "err", err, "supported", raster.SupportedYears())
		os.Exit(1)
	}
	fmt.Println(raster.Redact(u))

	rc := utils.OpenRedisFromEnv()
	if rc != nil {
		defer rc.Close()
	}
	p := raster.NewProberFromEnv(rc)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	d := p.Probe(ctx, u)
	l.Info("wms_probe_done",
		"status", d.Status,
		"status_text", d.StatusText,
		"content_type", d.ContentType,
		"err", d.Err,
	)
	if d.Body != "" && !strings.HasPrefix(d.ContentType, "image/") {
		fmt.Println(d.Body)
	}
	if d.Err != "" || d.Status != 200 {
		os.Exit(1)
	}
}

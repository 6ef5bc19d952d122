// Package dataset fetches the four raw collections (hotspots, medical institutions,
// traditional markets, welfare centers) and publishes the normalized records.
package dataset

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"hotspot-map/internal/logger"
	"hotspot-map/internal/metrics"
	"hotspot-map/internal/record"
)

// Kind names one source collection.
type Kind string

const (
	Hotspots Kind = "hotspots"
	Medical  Kind = "medical"
	Markets  Kind = "markets"
	Welfare  Kind = "welfare"
)

// Kinds in load and output order.
func Kinds() []Kind { return []Kind{Hotspots, Medical, Markets, Welfare} }

var fileNames = map[Kind]string{
	Hotspots: "elderly_hotspots.json",
	Medical:  "medical_institutions.json",
	Markets:  "traditional_markets.json",
	Welfare:  "welfare_centers.json",
}

// FileName is the conventional file (or URL path) name for k.
func FileName(k Kind) string { return fileNames[k] }

func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if _, ok := fileNames[k]; !ok {
		return "", fmt.Errorf("unknown dataset kind %q", s)
	}
	return k, nil
}

var ErrLoad = errors.New("unable to load")

// Source supplies one raw collection as decoded JSON objects.
type Source interface {
	Fetch(ctx context.Context, k Kind) ([]record.Raw, error)
}

// Decode parses a JSON array of objects keeping numbers as json.Number.
func Decode(b []byte) ([]record.Raw, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var out []record.Raw
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// FileSource reads the four files from a directory.
type FileSource struct {
	Dir string
}

func (f FileSource) Fetch(ctx context.Context, k Kind) ([]record.Raw, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name, ok := fileNames[k]
	if !ok {
		return nil, fmt.Errorf("unknown dataset kind %q", k)
	}
	b, err := os.ReadFile(filepath.Join(f.Dir, name))
	if err != nil {
		return nil, err
	}
	return Decode(b)
}

// LoadAll fetches every kind concurrently and returns them only if all succeeded. The
// error wraps ErrLoad and names the first failing kind.
func LoadAll(ctx context.Context, src Source) (record.Sources, error) {
	t0 := time.Now()
	var out record.Sources
	dst := map[Kind]*[]record.Raw{
		Hotspots: &out.Hotspots,
		Medical:  &out.Medical,
		Markets:  &out.Markets,
		Welfare:  &out.Welfare,
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, k := range Kinds() {
		k := k
		g.Go(func() error {
			rows, err := src.Fetch(gctx, k)
			if err != nil {
				metrics.DatasetLoadFailTotal.WithLabelValues(string(k)).Inc()
				return fmt.Errorf("%w: %s: %v", ErrLoad, k, err)
			}
			*dst[k] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.L().Error("dataset_load_fail", "err", err)
		return record.Sources{}, err
	}
	metrics.DatasetLoadsTotal.Inc()
	metrics.DatasetLoadDurationMs.Observe(float64(time.Since(t0).Milliseconds()))
	logger.L().Info("dataset_load_ok",
		"hotspots", len(out.Hotspots),
		"medical", len(out.Medical),
		"markets", len(out.Markets),
		"welfare", len(out.Welfare),
		"ms", time.Since(t0).Milliseconds(),
	)
	return out, nil
}

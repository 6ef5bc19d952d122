// Package overlay reconciles the visible record subset with the markers, polygons and
// clustering group living on a map surface.
//
// Every render is a generation swap: the previous generation's handles are all released
// before the next one is built, so a surface never shows a mix of two generations.
package overlay

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"hotspot-map/internal/filter"
	"hotspot-map/internal/logger"
	"hotspot-map/internal/metrics"
	"hotspot-map/internal/popup"
	"hotspot-map/internal/record"
	"hotspot-map/internal/surface"
)

// Stats summarizes one render.
type Stats struct {
	Visible         int `json:"visible"`
	Markers         int `json:"markers"`
	Polygons        int `json:"polygons"`
	Clustered       int `json:"clustered"`
	SkippedNoCoords int `json:"skippedNoCoords"`
	SkippedRaster   int `json:"skippedRaster"`
}

// Live counts the handles the synchronizer currently owns.
type Live struct {
	Markers    int            `json:"markers"`
	Polygons   int            `json:"polygons"`
	Clustered  int            `json:"clustered"`
	ByCategory map[string]int `json:"byCategory,omitempty"`
}

type Options struct {
	Clusterer surface.ClustererOptions
	// AfterRender runs once after every completed render, including empty ones.
	AfterRender func(Stats)
}

// OptionsFromEnv starts from the default clusterer and applies CLUSTER_MIN_LEVEL.
func OptionsFromEnv() Options {
	o := Options{Clusterer: DefaultClusterer()}
	if s := os.Getenv("CLUSTER_MIN_LEVEL"); s != "" {
		if n, e := strconv.Atoi(s); e == nil && n > 0 {
			o.Clusterer.MinLevel = n
		}
	}
	return o
}

type placedMarker struct {
	m   surface.Marker
	cat record.Category
}

// generation holds every handle created by one render.
type generation struct {
	markers   []placedMarker
	polygons  []surface.Polygon
	clusterer surface.Clusterer
	info      surface.InfoWindow
}

// Synchronizer owns the current generation. It is not safe for concurrent use;
// callers run it on the surface's event loop.
type Synchronizer struct {
	m    surface.Map
	opts Options
	gen  generation
	log  *slog.Logger
}

func NewSynchronizer(m surface.Map, opts Options) *Synchronizer {
	if opts.Clusterer.Calculator == nil {
		opts.Clusterer = DefaultClusterer()
	}
	return &Synchronizer{m: m, opts: opts, log: logger.L()}
}

// Clear releases every handle of the current generation.
func (s *Synchronizer) Clear() {
	g := s.gen
	s.gen = generation{}
	if g.clusterer != nil {
		g.clusterer.Clear()
		g.clusterer.Remove()
	}
	for _, pm := range g.markers {
		pm.m.Remove()
	}
	for _, p := range g.polygons {
		p.Remove()
	}
	if g.info != nil {
		g.info.Close()
		g.info.Remove()
	}
}

// Live reports the handles owned right now.
func (s *Synchronizer) Live() Live {
	l := Live{Markers: len(s.gen.markers), Polygons: len(s.gen.polygons)}
	if len(s.gen.markers) > 0 {
		l.ByCategory = make(map[string]int, 4)
		for _, pm := range s.gen.markers {
			l.ByCategory[pm.cat.String()]++
		}
	}
	if s.gen.clusterer != nil {
		l.Clustered = s.gen.clusterer.Len()
	}
	return l
}

// Render tears down the previous generation and draws visible.
//
// Background: called after every filter change and dataset publish, with the full
// visible subset rather than a delta.
// Constraints: hotspot records are skipped entirely when ds is RasterOverlay. Records
// without a usable position still get their polygon but no marker. Nothing in a single
// record can abort the batch.
func (s *Synchronizer) Render(visible []record.Record, ds filter.DataSource) Stats {
	t0 := time.Now()
	s.Clear()
	st := Stats{Visible: len(visible)}
	defer func() {
		metrics.RendersTotal.Inc()
		metrics.RenderDurationMs.Observe(float64(time.Since(t0).Milliseconds()))
		if s.opts.AfterRender != nil {
			s.opts.AfterRender(st)
		}
	}()
	if len(visible) == 0 {
		s.log.Debug("overlay_render_empty")
		return st
	}

	s.gen.info = s.m.NewInfoWindow(surface.InfoWindowOptions{Removable: true})
	var pins []surface.Marker
	for i := range visible {
		r := visible[i]
		if ds == filter.RasterOverlay && r.Category == record.HotspotArea {
			st.SkippedRaster++
			continue
		}
		style := StyleFor(r.Category)
		if len(r.Polygon) > 0 {
			s.addPolygon(r, style)
			st.Polygons++
		}
		pos, ok := r.Position()
		if !ok {
			st.SkippedNoCoords++
			s.log.Debug("overlay_skip_no_coords", "category", r.Category.String(), "label", r.Label())
			continue
		}
		m := s.addMarker(r, style, pos)
		st.Markers++
		if r.Category == record.HotspotArea {
			pins = append(pins, m)
		}
	}

	if ds != filter.RasterOverlay && len(pins) > 0 {
		c := s.m.NewClusterer(s.opts.Clusterer)
		c.AddMarkers(pins)
		s.gen.clusterer = c
		st.Clustered = len(pins)
	}

	metrics.HandlesCreatedTotal.WithLabelValues("marker").Add(float64(st.Markers))
	metrics.HandlesCreatedTotal.WithLabelValues("polygon").Add(float64(st.Polygons))
	metrics.HandlesCreatedTotal.WithLabelValues("clustered").Add(float64(st.Clustered))
	metrics.RecordsSkippedTotal.WithLabelValues("no_coords").Add(float64(st.SkippedNoCoords))
	metrics.RecordsSkippedTotal.WithLabelValues("raster").Add(float64(st.SkippedRaster))
	s.log.Info("overlay_render_done",
		"data_source", ds.String(),
		"visible", st.Visible,
		"markers", st.Markers,
		"polygons", st.Polygons,
		"clustered", st.Clustered,
		"skipped_no_coords", st.SkippedNoCoords,
		"skipped_raster", st.SkippedRaster,
	)
	return st
}

func (s *Synchronizer) addPolygon(r record.Record, style Style) {
	path := popup.Path(r.Polygon)
	p := s.m.NewPolygon(style.PolygonOptions(path))
	s.gen.polygons = append(s.gen.polygons, p)
	info := s.gen.info
	p.On(surface.EventClick, func() {
		center, ok := popup.Centroid(r.Polygon)
		if !ok {
			s.log.Warn("overlay_polygon_no_center", "label", r.Label())
			return
		}
		info.SetContent(popup.HotspotSummary(r, style.Stroke))
		info.SetPosition(center)
		info.Open(nil)
	})
}

func (s *Synchronizer) addMarker(r record.Record, style Style, pos surface.LatLng) surface.Marker {
	opts := surface.MarkerOptions{Position: pos, Attached: true}
	if r.Category == record.HotspotArea {
		// plain pin, drawn only through the clustering group
		opts.Attached = false
	} else {
		opts.Image = style.MarkerImage()
	}
	m := s.m.NewMarker(opts)
	s.gen.markers = append(s.gen.markers, placedMarker{m: m, cat: r.Category})
	info := s.gen.info
	m.On(surface.EventClick, func() {
		info.SetContent(popup.ForRecord(r, style.Stroke))
		info.SetPosition(pos)
		info.Open(m)
	})
	return m
}

// Package scene is an in-memory map surface. The browser adapter mirrors it: it reports
// viewport changes, clicks and overlay image results back here and draws whatever
// Snapshot returns.
//
// A Scene is not safe for concurrent use. Its owner (one session loop) serializes every
// call, including the handlers that fire from Fire, Click and ReportImage.
package scene

import (
	"errors"
	"sort"

	"github.com/google/uuid"

	"hotspot-map/internal/metrics"
	"hotspot-map/internal/surface"
)

// Default viewport: the whole peninsula.
var (
	DefaultCenter = surface.LatLng{Lat: 36.5, Lng: 127.5}
	DefaultLevel  = 12
)

const (
	MinLevel = 1
	MaxLevel = 14

	defaultViewW = 1024
	defaultViewH = 768
)

var ErrUnknownHandle = errors.New("unknown handle")

type Scene struct {
	emitter
	seq        uint64
	center     surface.LatLng
	level      int
	reported   *surface.Bounds
	viewW      int
	viewH      int
	tileFilter string

	markers    map[string]*marker
	polygons   map[string]*polygon
	infos      map[string]*infoWindow
	clusterers map[string]*clusterer
	overlays   map[string]*imageOverlay
}

// New creates a scene at opts; a zero center or level falls back to the defaults.
func New(opts surface.MapOptions) *Scene {
	s := &Scene{
		center:     opts.Center,
		level:      opts.Level,
		viewW:      defaultViewW,
		viewH:      defaultViewH,
		markers:    make(map[string]*marker),
		polygons:   make(map[string]*polygon),
		infos:      make(map[string]*infoWindow),
		clusterers: make(map[string]*clusterer),
		overlays:   make(map[string]*imageOverlay),
	}
	if s.center == (surface.LatLng{}) || !s.center.Valid() {
		s.center = DefaultCenter
	}
	if s.level == 0 {
		s.level = DefaultLevel
	}
	s.level = clampLevel(s.level)
	return s
}

func clampLevel(l int) int {
	if l < MinLevel {
		return MinLevel
	}
	if l > MaxLevel {
		return MaxLevel
	}
	return l
}

func (s *Scene) nextSeq() uint64 {
	s.seq++
	return s.seq
}

func (s *Scene) Center() surface.LatLng { return s.center }

func (s *Scene) SetCenter(p surface.LatLng) {
	if !p.Valid() {
		return
	}
	s.center = p
	s.reported = nil
}

func (s *Scene) Level() int { return s.level }

func (s *Scene) SetLevel(level int) {
	s.level = clampLevel(level)
	s.reported = nil
}

// Bounds returns the rectangle last reported by the browser, or a Web Mercator estimate
// from center, level and view size when the browser has not reported one yet.
func (s *Scene) Bounds() surface.Bounds {
	if s.reported != nil {
		return *s.reported
	}
	return approxBounds(s.center, s.level, s.viewW, s.viewH)
}

func (s *Scene) SetTileFilter(css string) { s.tileFilter = css }

func (s *Scene) TileFilter() string { return s.tileFilter }

// SetViewSize records the map container size in pixels, used for estimated bounds.
func (s *Scene) SetViewSize(w, h int) {
	if w > 0 && h > 0 {
		s.viewW, s.viewH = w, h
	}
}

func (s *Scene) NewMarker(opts surface.MarkerOptions) surface.Marker {
	m := &marker{
		s:        s,
		id:       uuid.NewString(),
		seq:      s.nextSeq(),
		pos:      opts.Position,
		image:    opts.Image,
		attached: opts.Attached,
	}
	s.markers[m.id] = m
	return m
}

func (s *Scene) NewPolygon(opts surface.PolygonOptions) surface.Polygon {
	path := make([]surface.LatLng, len(opts.Path))
	copy(path, opts.Path)
	opts.Path = path
	p := &polygon{s: s, id: uuid.NewString(), seq: s.nextSeq(), opts: opts}
	s.polygons[p.id] = p
	return p
}

func (s *Scene) NewInfoWindow(opts surface.InfoWindowOptions) surface.InfoWindow {
	w := &infoWindow{s: s, id: uuid.NewString(), seq: s.nextSeq(), removable: opts.Removable}
	s.infos[w.id] = w
	return w
}

func (s *Scene) NewClusterer(opts surface.ClustererOptions) surface.Clusterer {
	c := &clusterer{s: s, id: uuid.NewString(), seq: s.nextSeq(), opts: opts}
	s.clusterers[c.id] = c
	return c
}

func (s *Scene) NewImageOverlay(opts surface.ImageOverlayOptions) surface.ImageOverlay {
	o := &imageOverlay{s: s, id: uuid.NewString(), seq: s.nextSeq(), opts: opts}
	s.overlays[o.id] = o
	return o
}

// Fire delivers a map-level event and returns how many handlers ran.
func (s *Scene) Fire(ev surface.Event) int {
	metrics.SessionEventsTotal.WithLabelValues(string(ev)).Inc()
	return s.emitter.fire(ev)
}

// Listeners counts the map-level handlers subscribed to ev.
func (s *Scene) Listeners(ev surface.Event) int { return s.emitter.count(ev) }

// Viewport is what the browser reports after the user moves the map.
type Viewport struct {
	Center surface.LatLng  `json:"center"`
	Level  int             `json:"level"`
	Bounds *surface.Bounds `json:"bounds,omitempty"`
	Width  int             `json:"width,omitempty"`
	Height int             `json:"height,omitempty"`
}

// ApplyViewport stores a browser viewport report and fires zoom_changed when the level
// moved, then ev (dragend or idle). An empty ev fires idle.
func (s *Scene) ApplyViewport(v Viewport, ev surface.Event) {
	prevLevel := s.level
	if v.Center.Valid() && v.Center != (surface.LatLng{}) {
		s.center = v.Center
	}
	if v.Level != 0 {
		s.level = clampLevel(v.Level)
	}
	s.SetViewSize(v.Width, v.Height)
	s.reported = nil
	if v.Bounds != nil && !v.Bounds.Empty() && v.Bounds.SW.Valid() && v.Bounds.NE.Valid() {
		b := *v.Bounds
		s.reported = &b
	}
	if s.level != prevLevel {
		s.Fire(surface.EventZoomChanged)
	}
	if ev == "" {
		ev = surface.EventIdle
	}
	s.Fire(ev)
}

// Click fires the click handlers of a marker or polygon.
func (s *Scene) Click(handleID string) error {
	if m, ok := s.markers[handleID]; ok {
		m.fire(surface.EventClick)
		return nil
	}
	if p, ok := s.polygons[handleID]; ok {
		p.fire(surface.EventClick)
		return nil
	}
	return ErrUnknownHandle
}

// ReportImage delivers the browser's load or error result for an overlay image. Reports
// are not sequenced against URL changes: whichever arrives last wins.
func (s *Scene) ReportImage(overlayID string, ok bool) error {
	o, found := s.overlays[overlayID]
	if !found {
		return ErrUnknownHandle
	}
	if ok {
		o.fire(surface.EventLoad)
	} else {
		o.fire(surface.EventError)
	}
	return nil
}

// Overlays lists live image overlay ids in creation order.
func (s *Scene) Overlays() []string {
	list := make([]*imageOverlay, 0, len(s.overlays))
	for _, o := range s.overlays {
		list = append(list, o)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].seq < list[j].seq })
	ids := make([]string, len(list))
	for i, o := range list {
		ids[i] = o.id
	}
	return ids
}

// Counts reports live handles by kind.
func (s *Scene) Counts() (markers, polygons, clusterers, infos, overlays int) {
	return len(s.markers), len(s.polygons), len(s.clusterers), len(s.infos), len(s.overlays)
}

var _ surface.Map = (*Scene)(nil)

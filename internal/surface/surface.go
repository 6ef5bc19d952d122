// Package surface: the map-widget capability the rendering pipeline depends on.
//
// Nothing in here knows about a concrete SDK. The synchronizer and the raster controller
// only see these interfaces, so a browser-mirrored scene, a recording fake in tests, or any
// other map widget can sit behind them.
package surface

import (
	"context"
	"errors"
	"math"
)

// LatLng is a WGS84 coordinate.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether both components are finite and inside the WGS84 range.
func (p LatLng) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Bounds is a viewport rectangle given by its southwest and northeast corners.
type Bounds struct {
	SW LatLng `json:"sw"`
	NE LatLng `json:"ne"`
}

func (b Bounds) Empty() bool {
	return b.SW == b.NE || b.NE.Lat < b.SW.Lat
}

// Contains handles viewports that cross the antimeridian (SW.Lng > NE.Lng).
func (b Bounds) Contains(p LatLng) bool {
	if p.Lat < b.SW.Lat || p.Lat > b.NE.Lat {
		return false
	}
	if b.SW.Lng <= b.NE.Lng {
		return p.Lng >= b.SW.Lng && p.Lng <= b.NE.Lng
	}
	return p.Lng >= b.SW.Lng || p.Lng <= b.NE.Lng
}

// Event names delivered by a surface.
type Event string

const (
	EventIdle        Event = "idle"
	EventZoomChanged Event = "zoom_changed"
	EventDragEnd     Event = "dragend"
	EventTilesLoaded Event = "tilesloaded"
	EventClick       Event = "click"
	EventLoad        Event = "load"
	EventError       Event = "error"
)

// Emitter subscribes handlers to element events. The returned func detaches the handler;
// calling it more than once is harmless.
type Emitter interface {
	On(ev Event, fn func()) (off func())
}

// MarkerImage is a custom marker glyph, usually an SVG data URL.
type MarkerImage struct {
	URL     string `json:"url"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	OffsetX int    `json:"offsetX"`
	OffsetY int    `json:"offsetY"`
}

type MarkerOptions struct {
	Position LatLng
	// Image nil means the SDK default pin.
	Image *MarkerImage
	// Attached markers are drawn on the map directly; detached ones only through a clusterer.
	Attached bool
}

type Marker interface {
	Emitter
	ID() string
	Position() LatLng
	// Remove detaches the marker from the map and from any clusterer and drops its listeners.
	Remove()
}

type PolygonOptions struct {
	Path          []LatLng
	StrokeWeight  int
	StrokeColor   string
	StrokeOpacity float64
	FillColor     string
	FillOpacity   float64
}

type Polygon interface {
	Emitter
	ID() string
	Path() []LatLng
	Remove()
}

type InfoWindowOptions struct {
	Removable bool
}

type InfoWindow interface {
	ID() string
	SetContent(html string)
	SetPosition(p LatLng)
	// Open shows the window above anchor, or at its position when anchor is nil.
	Open(anchor Marker)
	Close()
	Remove()
}

// ClusterStyle describes one badge tier.
type ClusterStyle struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Background  string `json:"background"`
	Color       string `json:"color"`
	FontSize    int    `json:"fontSize"`
	BorderWidth int    `json:"borderWidth"`
	Shadow      string `json:"shadow"`
}

type ClustererOptions struct {
	AverageCenter    bool
	MinLevel         int
	MinClusterSize   int
	DisableClickZoom bool
	Styles           []ClusterStyle
	// Calculator holds ascending count thresholds; len(Calculator)+1 tiers.
	Calculator []int
}

// Tier returns the style index for a cluster holding count markers.
func (o ClustererOptions) Tier(count int) int {
	for i, t := range o.Calculator {
		if count < t {
			return i
		}
	}
	return len(o.Calculator)
}

// Active reports whether clustering applies at the given map level. Levels follow the
// Kakao convention: larger level means further zoomed out.
func (o ClustererOptions) Active(level int) bool { return level >= o.MinLevel }

type Clusterer interface {
	ID() string
	AddMarkers(ms []Marker)
	Len() int
	// Clear drops all markers from the group without removing the markers themselves.
	Clear()
	Remove()
}

type ImageOverlayOptions struct {
	Opacity     float64
	ZIndex      int
	Interactive bool
}

// ImageOverlay is a georeferenced raster stretched over the current viewport.
// It emits EventLoad and EventError after each URL change.
type ImageOverlay interface {
	Emitter
	ID() string
	SetURL(u string)
	URL() string
	Show()
	Hide()
	Visible() bool
	Remove()
}

// Map is the stateful surface owned by one session.
type Map interface {
	Emitter
	Center() LatLng
	SetCenter(p LatLng)
	Level() int
	SetLevel(level int)
	Bounds() Bounds
	// SetTileFilter applies a CSS filter to base tiles only, never to overlays or markers.
	SetTileFilter(css string)

	NewMarker(opts MarkerOptions) Marker
	NewPolygon(opts PolygonOptions) Polygon
	NewInfoWindow(opts InfoWindowOptions) InfoWindow
	NewClusterer(opts ClustererOptions) Clusterer
	NewImageOverlay(opts ImageOverlayOptions) ImageOverlay
}

type MapOptions struct {
	Center LatLng
	Level  int
}

// LoadState is the SDK lifecycle: Uninitialized -> Loading -> Ready (or Failed).
type LoadState int

const (
	Uninitialized LoadState = iota
	Loading
	Ready
	Failed
)

func (s LoadState) String() string {
	switch s {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "uninitialized"
	}
}

var ErrNotReady = errors.New("map surface not ready")

// Loader brings the SDK up and creates the map. Load may be called once.
type Loader interface {
	State() LoadState
	Load(ctx context.Context, opts MapOptions) (Map, error)
}

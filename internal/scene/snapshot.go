package scene

import (
	"sort"

	"hotspot-map/internal/surface"
)

type MarkerView struct {
	ID       string               `json:"id"`
	Position surface.LatLng       `json:"position"`
	Image    *surface.MarkerImage `json:"image,omitempty"`
	// Visible is false for detached markers and for markers folded into a cluster badge.
	Visible bool `json:"visible"`
}

type PolygonView struct {
	ID            string           `json:"id"`
	Path          []surface.LatLng `json:"path"`
	StrokeWeight  int              `json:"strokeWeight"`
	StrokeColor   string           `json:"strokeColor"`
	StrokeOpacity float64          `json:"strokeOpacity"`
	FillColor     string           `json:"fillColor"`
	FillOpacity   float64          `json:"fillOpacity"`
}

type InfoWindowView struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Position surface.LatLng `json:"position"`
	AnchorID string         `json:"anchorId,omitempty"`
	Open     bool           `json:"open"`
}

type OverlayView struct {
	ID      string         `json:"id"`
	URL     string         `json:"url"`
	Visible bool           `json:"visible"`
	Opacity float64        `json:"opacity"`
	ZIndex  int            `json:"zIndex"`
	Bounds  surface.Bounds `json:"bounds"`
}

// Snapshot is the full drawable state handed to the browser.
type Snapshot struct {
	Center     surface.LatLng  `json:"center"`
	Level      int             `json:"level"`
	Bounds     surface.Bounds  `json:"bounds"`
	TileFilter string          `json:"tileFilter,omitempty"`
	Markers    []MarkerView    `json:"markers"`
	Polygons   []PolygonView   `json:"polygons"`
	Clusters   []ClusterView   `json:"clusters"`
	InfoWindow *InfoWindowView `json:"infoWindow,omitempty"`
	Overlays   []OverlayView   `json:"overlays"`
}

// Snapshot renders the scene at its current level. Clusterers only fold their members at
// levels where they are active; outside that range members show as plain markers.
func (s *Scene) Snapshot() Snapshot {
	snap := Snapshot{
		Center:     s.center,
		Level:      s.level,
		Bounds:     s.Bounds(),
		TileFilter: s.tileFilter,
		Markers:    []MarkerView{},
		Polygons:   []PolygonView{},
		Clusters:   []ClusterView{},
		Overlays:   []OverlayView{},
	}

	shown := make(map[*marker]bool)
	for _, c := range sortedBySeq(s.clusterers, func(c *clusterer) uint64 { return c.seq }) {
		clusters, singles := c.groups(s.level)
		snap.Clusters = append(snap.Clusters, clusters...)
		for _, m := range singles {
			shown[m] = true
		}
	}
	for _, m := range sortedBySeq(s.markers, func(m *marker) uint64 { return m.seq }) {
		snap.Markers = append(snap.Markers, MarkerView{
			ID:       m.id,
			Position: m.pos,
			Image:    m.image,
			Visible:  m.attached || shown[m],
		})
	}
	for _, p := range sortedBySeq(s.polygons, func(p *polygon) uint64 { return p.seq }) {
		snap.Polygons = append(snap.Polygons, PolygonView{
			ID:            p.id,
			Path:          p.Path(),
			StrokeWeight:  p.opts.StrokeWeight,
			StrokeColor:   p.opts.StrokeColor,
			StrokeOpacity: p.opts.StrokeOpacity,
			FillColor:     p.opts.FillColor,
			FillOpacity:   p.opts.FillOpacity,
		})
	}
	// the most recent open window wins, matching a single-popup map
	for _, w := range sortedBySeq(s.infos, func(w *infoWindow) uint64 { return w.seq }) {
		if !w.open {
			continue
		}
		v := &InfoWindowView{ID: w.id, Content: w.content, Position: w.pos, Open: true}
		if w.anchor != nil {
			v.AnchorID = w.anchor.id
		}
		snap.InfoWindow = v
	}
	for _, o := range sortedBySeq(s.overlays, func(o *imageOverlay) uint64 { return o.seq }) {
		snap.Overlays = append(snap.Overlays, OverlayView{
			ID:      o.id,
			URL:     o.url,
			Visible: o.visible,
			Opacity: o.opts.Opacity,
			ZIndex:  o.opts.ZIndex,
			Bounds:  o.bounds,
		})
	}
	return snap
}

func sortedBySeq[T any](m map[string]T, seq func(T) uint64) []T {
	out := make([]T, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return seq(out[i]) < seq(out[j]) })
	return out
}

package scene

import (
	"hotspot-map/internal/surface"
)

type marker struct {
	emitter
	s        *Scene
	id       string
	seq      uint64
	pos      surface.LatLng
	image    *surface.MarkerImage
	attached bool
	group    *clusterer
}

func (m *marker) ID() string               { return m.id }
func (m *marker) Position() surface.LatLng { return m.pos }

func (m *marker) Remove() {
	if _, ok := m.s.markers[m.id]; !ok {
		return
	}
	if m.group != nil {
		m.group.drop(m)
	}
	for _, iw := range m.s.infos {
		if iw.anchor == m {
			iw.anchor = nil
			iw.open = false
		}
	}
	delete(m.s.markers, m.id)
	m.reset()
}

type polygon struct {
	emitter
	s    *Scene
	id   string
	seq  uint64
	opts surface.PolygonOptions
}

func (p *polygon) ID() string { return p.id }

func (p *polygon) Path() []surface.LatLng {
	out := make([]surface.LatLng, len(p.opts.Path))
	copy(out, p.opts.Path)
	return out
}

func (p *polygon) Remove() {
	if _, ok := p.s.polygons[p.id]; !ok {
		return
	}
	delete(p.s.polygons, p.id)
	p.reset()
}

type infoWindow struct {
	s         *Scene
	id        string
	seq       uint64
	removable bool
	content   string
	pos       surface.LatLng
	anchor    *marker
	open      bool
}

func (w *infoWindow) ID() string                   { return w.id }
func (w *infoWindow) SetContent(html string)       { w.content = html }
func (w *infoWindow) SetPosition(p surface.LatLng) { w.pos = p }

func (w *infoWindow) Open(anchor surface.Marker) {
	if _, ok := w.s.infos[w.id]; !ok {
		return
	}
	w.anchor = nil
	if m, ok := anchor.(*marker); ok && m != nil {
		if _, live := w.s.markers[m.id]; live {
			w.anchor = m
			w.pos = m.pos
		}
	}
	w.open = true
}

func (w *infoWindow) Close() { w.open = false }

func (w *infoWindow) Remove() {
	w.open = false
	w.anchor = nil
	delete(w.s.infos, w.id)
}

type clusterer struct {
	s       *Scene
	id      string
	seq     uint64
	opts    surface.ClustererOptions
	members []*marker
}

func (c *clusterer) ID() string { return c.id }
func (c *clusterer) Len() int   { return len(c.members) }

// AddMarkers ignores markers from another surface and markers already removed.
func (c *clusterer) AddMarkers(ms []surface.Marker) {
	for _, sm := range ms {
		m, ok := sm.(*marker)
		if !ok || m == nil || m.s != c.s {
			continue
		}
		if _, live := c.s.markers[m.id]; !live || m.group == c {
			continue
		}
		if m.group != nil {
			m.group.drop(m)
		}
		m.group = c
		c.members = append(c.members, m)
	}
}

func (c *clusterer) drop(m *marker) {
	for i, x := range c.members {
		if x == m {
			c.members = append(c.members[:i], c.members[i+1:]...)
			break
		}
	}
	m.group = nil
}

func (c *clusterer) Clear() {
	for _, m := range c.members {
		m.group = nil
	}
	c.members = nil
}

func (c *clusterer) Remove() {
	c.Clear()
	delete(c.s.clusterers, c.id)
}

type imageOverlay struct {
	emitter
	s       *Scene
	id      string
	seq     uint64
	opts    surface.ImageOverlayOptions
	url     string
	visible bool
	// bounds the current URL was issued for
	bounds surface.Bounds
}

func (o *imageOverlay) ID() string    { return o.id }
func (o *imageOverlay) URL() string   { return o.url }
func (o *imageOverlay) Visible() bool { return o.visible }
func (o *imageOverlay) Show()         { o.visible = true }
func (o *imageOverlay) Hide()         { o.visible = false }

func (o *imageOverlay) SetURL(u string) {
	o.url = u
	o.bounds = o.s.Bounds()
}

func (o *imageOverlay) Remove() {
	delete(o.s.overlays, o.id)
	o.visible = false
	o.reset()
}

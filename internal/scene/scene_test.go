package scene

import (
	"context"
	"errors"
	"testing"

	"hotspot-map/internal/surface"
)

func TestNewDefaults(t *testing.T) {
	s := New(surface.MapOptions{})
	if s.Center() != DefaultCenter || s.Level() != DefaultLevel {
		t.Fatalf("defaults = %v level %d", s.Center(), s.Level())
	}
	b := s.Bounds()
	if !b.Contains(DefaultCenter) || b.Empty() {
		t.Fatalf("estimated bounds %+v do not contain the center", b)
	}
	if b.NE.Lng-b.SW.Lng < 1 {
		t.Fatalf("level %d bounds too narrow: %+v", DefaultLevel, b)
	}
}

func TestApproxBoundsShrinkWithLevel(t *testing.T) {
	c := surface.LatLng{Lat: 37.5, Lng: 127}
	wide := approxBounds(c, 10, 1024, 768)
	narrow := approxBounds(c, 3, 1024, 768)
	if !(narrow.NE.Lng-narrow.SW.Lng < wide.NE.Lng-wide.SW.Lng) {
		t.Fatalf("level 3 %+v not narrower than level 10 %+v", narrow, wide)
	}
}

func TestViewportReportFiresEvents(t *testing.T) {
	s := New(surface.MapOptions{})
	var got []surface.Event
	s.On(surface.EventZoomChanged, func() { got = append(got, surface.EventZoomChanged) })
	s.On(surface.EventIdle, func() { got = append(got, surface.EventIdle) })
	s.On(surface.EventDragEnd, func() { got = append(got, surface.EventDragEnd) })

	b := surface.Bounds{SW: surface.LatLng{Lat: 37, Lng: 126}, NE: surface.LatLng{Lat: 38, Lng: 127}}
	s.ApplyViewport(Viewport{Center: surface.LatLng{Lat: 37.5, Lng: 126.5}, Level: 7, Bounds: &b}, "")
	s.ApplyViewport(Viewport{Center: surface.LatLng{Lat: 37.6, Lng: 126.6}, Level: 7, Bounds: &b}, surface.EventDragEnd)

	want := []surface.Event{surface.EventZoomChanged, surface.EventIdle, surface.EventDragEnd}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
	if s.Bounds() != b {
		t.Fatalf("reported bounds not kept: %+v", s.Bounds())
	}
	s.SetLevel(3)
	if s.Bounds() == b {
		t.Fatal("bounds not invalidated by SetLevel")
	}
}

func TestOffDetaches(t *testing.T) {
	s := New(surface.MapOptions{})
	n := 0
	off := s.On(surface.EventIdle, func() { n++ })
	s.Fire(surface.EventIdle)
	off()
	off()
	s.Fire(surface.EventIdle)
	if n != 1 || s.Listeners(surface.EventIdle) != 0 {
		t.Fatalf("handler ran %d times, %d listeners left", n, s.Listeners(surface.EventIdle))
	}
}

func TestMarkerRemoveLeavesClusterer(t *testing.T) {
	s := New(surface.MapOptions{})
	a := s.NewMarker(surface.MarkerOptions{Position: surface.LatLng{Lat: 37, Lng: 127}})
	b := s.NewMarker(surface.MarkerOptions{Position: surface.LatLng{Lat: 37, Lng: 127}})
	c := s.NewClusterer(surface.ClustererOptions{MinLevel: 5, MinClusterSize: 2})
	c.AddMarkers([]surface.Marker{a, b, a})
	if c.Len() != 2 {
		t.Fatalf("clusterer len = %d, want 2", c.Len())
	}
	a.Remove()
	a.Remove()
	if c.Len() != 1 {
		t.Fatalf("removed marker still clustered: %d", c.Len())
	}
	if err := s.Click(a.ID()); !errors.Is(err, ErrUnknownHandle) {
		t.Fatalf("click on removed marker: %v", err)
	}
}

func TestSnapshotClustersByLevel(t *testing.T) {
	s := New(surface.MapOptions{Center: surface.LatLng{Lat: 37.5, Lng: 127}, Level: 8})
	var ms []surface.Marker
	for i := 0; i < 3; i++ {
		ms = append(ms, s.NewMarker(surface.MarkerOptions{Position: surface.LatLng{Lat: 37.5, Lng: 127}}))
	}
	far := s.NewMarker(surface.MarkerOptions{Position: surface.LatLng{Lat: 35.1, Lng: 129}})
	ms = append(ms, far)
	opts := surface.ClustererOptions{
		AverageCenter:  true,
		MinLevel:       5,
		MinClusterSize: 2,
		Calculator:     []int{10, 100},
		Styles:         []surface.ClusterStyle{{Width: 50}, {Width: 60}, {Width: 70}},
	}
	s.NewClusterer(opts).AddMarkers(ms)
	attached := s.NewMarker(surface.MarkerOptions{Position: surface.LatLng{Lat: 36, Lng: 128}, Attached: true})

	snap := s.Snapshot()
	if len(snap.Clusters) != 1 || snap.Clusters[0].Count != 3 || snap.Clusters[0].Style.Width != 50 {
		t.Fatalf("clusters at level 8 = %+v", snap.Clusters)
	}
	visible := map[string]bool{}
	for _, m := range snap.Markers {
		visible[m.ID] = m.Visible
	}
	if !visible[far.ID()] || !visible[attached.ID()] || visible[ms[0].ID()] {
		t.Fatalf("visibility = %v", visible)
	}

	s.SetLevel(3)
	snap = s.Snapshot()
	if len(snap.Clusters) != 0 {
		t.Fatalf("clusters below MinLevel: %+v", snap.Clusters)
	}
	for _, m := range snap.Markers {
		if !m.Visible {
			t.Fatalf("marker %s hidden with clustering off", m.ID)
		}
	}
}

func TestInfoWindowAnchor(t *testing.T) {
	s := New(surface.MapOptions{})
	m := s.NewMarker(surface.MarkerOptions{Position: surface.LatLng{Lat: 37, Lng: 127}, Attached: true})
	w := s.NewInfoWindow(surface.InfoWindowOptions{Removable: true})
	m.On(surface.EventClick, func() {
		w.SetContent("hello")
		w.Open(m)
	})
	if err := s.Click(m.ID()); err != nil {
		t.Fatal(err)
	}
	snap := s.Snapshot()
	if snap.InfoWindow == nil || snap.InfoWindow.AnchorID != m.ID() || snap.InfoWindow.Content != "hello" {
		t.Fatalf("info window = %+v", snap.InfoWindow)
	}
	m.Remove()
	if s.Snapshot().InfoWindow != nil {
		t.Fatal("window anchored on a removed marker stayed open")
	}
}

func TestReportImageLastWins(t *testing.T) {
	s := New(surface.MapOptions{})
	o := s.NewImageOverlay(surface.ImageOverlayOptions{Opacity: 0.7})
	var last surface.Event
	o.On(surface.EventLoad, func() { last = surface.EventLoad })
	o.On(surface.EventError, func() { last = surface.EventError })
	o.SetURL("https://a")
	o.SetURL("https://b")
	if err := s.ReportImage(o.ID(), true); err != nil {
		t.Fatal(err)
	}
	if err := s.ReportImage(o.ID(), false); err != nil {
		t.Fatal(err)
	}
	if last != surface.EventError {
		t.Fatalf("last event = %q, want error", last)
	}
	if err := s.ReportImage("nope", true); !errors.Is(err, ErrUnknownHandle) {
		t.Fatalf("unknown overlay: %v", err)
	}
}

func TestLoaderLifecycle(t *testing.T) {
	l := NewLoader(nil)
	if l.State() != surface.Uninitialized {
		t.Fatalf("initial state %v", l.State())
	}
	m, err := l.Load(context.Background(), surface.MapOptions{Level: 9})
	if err != nil || m == nil || l.State() != surface.Ready || m.Level() != 9 {
		t.Fatalf("Load = %v, %v, state %v", m, err, l.State())
	}
	if _, err := l.Load(context.Background(), surface.MapOptions{}); !errors.Is(err, ErrAlreadyLoaded) {
		t.Fatalf("second Load: %v", err)
	}

	boom := errors.New("no sdk key")
	failing := NewLoader(func(context.Context) error { return boom })
	if _, err := failing.Load(context.Background(), surface.MapOptions{}); !errors.Is(err, boom) {
		t.Fatalf("failing Load: %v", err)
	}
	if failing.State() != surface.Failed {
		t.Fatalf("state after failure %v", failing.State())
	}
}

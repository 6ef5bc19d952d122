package raster

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"hotspot-map/internal/filter"
	"hotspot-map/internal/scene"
	"hotspot-map/internal/surface"
)

func TestYearCode(t *testing.T) {
	tests := []struct {
		year int
		code int
		err  error
	}{
		{2024, 2025076, nil},
		{2012, 2013098, nil},
		{2019, 2020027, nil},
		{2011, 0, ErrUnsupportedYear},
		{2025, 0, ErrUnsupportedYear},
	}
	for _, tc := range tests {
		code, err := YearCode(tc.year)
		if code != tc.code || !errors.Is(err, tc.err) {
			t.Errorf("YearCode(%d) = %d, %v; want %d, %v", tc.year, code, err, tc.code, tc.err)
		}
	}
	if n := len(SupportedYears()); n != 13 {
		t.Fatalf("SupportedYears has %d entries, want 13", n)
	}
}

func TestBuildRequest(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AuthKey = "abc%2Bdef"
	b := surface.Bounds{SW: surface.LatLng{Lat: 37.4, Lng: 126.8}, NE: surface.LatLng{Lat: 37.7, Lng: 127.2}}
	got, err := BuildRequest(cfg, b, 2024)
	if err != nil {
		t.Fatal(err)
	}
	want := "https://opendata.koroad.or.kr/data/wms/frequentzone/oldman?authKey=abc%2Bdef" +
		"&layers=freoldman&format=image/png&transparent=TRUE&service=WMS&version=1.1.1" +
		"&request=GetMap&bbox=126.8,37.4,127.2,37.7&width=1024&height=1024&srs=EPSG:4326" +
		"&searchYearCd=2025076"
	if got != want {
		t.Fatalf("BuildRequest =\n%s\nwant\n%s", got, want)
	}
	if _, err := BuildRequest(cfg, b, 2011); !errors.Is(err, ErrUnsupportedYear) {
		t.Fatalf("2011: %v", err)
	}
}

func TestRedact(t *testing.T) {
	u := "https://x/wms?authKey=0123456789abcdefghijKLMNOP&layers=a"
	if got := Redact(u); got != "https://x/wms?authKey=0123456789abcdefghij...&layers=a" {
		t.Fatalf("Redact = %s", got)
	}
	if got := Redact("https://x/wms?authKey=short"); got != "https://x/wms?authKey=short" {
		t.Fatalf("short key changed: %s", got)
	}
}

func newController(t *testing.T) (*scene.Scene, *Controller) {
	t.Helper()
	s := scene.New(surface.MapOptions{Center: surface.LatLng{Lat: 37.5, Lng: 127}, Level: 8})
	return s, NewController(s, DefaultConfig())
}

func TestControllerRasterScenario(t *testing.T) {
	s, c := newController(t)
	st := filter.Default().WithDataSource(filter.RasterOverlay)
	c.Apply(st)
	status := c.Status()
	if !status.Active || status.Code != 2025076 || !c.Overlay().Visible() {
		t.Fatalf("status = %+v visible=%v", status, c.Overlay().Visible())
	}
	if !strings.Contains(c.Overlay().URL(), "searchYearCd=2025076") {
		t.Fatalf("url = %s", c.Overlay().URL())
	}
	for _, ev := range []surface.Event{surface.EventIdle, surface.EventZoomChanged, surface.EventDragEnd} {
		if s.Listeners(ev) != 1 {
			t.Fatalf("%s listeners = %d, want 1", ev, s.Listeners(ev))
		}
	}
}

func TestControllerFollowsViewport(t *testing.T) {
	s, c := newController(t)
	c.Apply(filter.Default().WithDataSource(filter.Both))
	first := c.Overlay().URL()
	b := surface.Bounds{SW: surface.LatLng{Lat: 35, Lng: 128.9}, NE: surface.LatLng{Lat: 35.3, Lng: 129.2}}
	s.ApplyViewport(scene.Viewport{Center: surface.LatLng{Lat: 35.15, Lng: 129.05}, Level: 6, Bounds: &b}, surface.EventDragEnd)
	got := c.Overlay().URL()
	if got == first || !strings.Contains(got, "bbox=128.9,35,129.2,35.3") {
		t.Fatalf("url after drag = %s", got)
	}
}

func TestControllerInactiveStates(t *testing.T) {
	s, c := newController(t)
	c.Apply(filter.Default().WithDataSource(filter.Both))
	for name, st := range map[string]filter.State{
		"records only": filter.Default(),
		"no years":     filter.Default().WithDataSource(filter.RasterOverlay).WithoutYears(),
	} {
		c.Apply(st)
		if c.Overlay().Visible() || c.Status().Active {
			t.Errorf("%s: overlay still active", name)
		}
		if s.Listeners(surface.EventIdle) != 0 {
			t.Errorf("%s: viewport listener still attached", name)
		}
		c.Apply(filter.Default().WithDataSource(filter.Both))
	}
}

func TestControllerUnsupportedYear(t *testing.T) {
	_, c := newController(t)
	c.Apply(filter.Default().WithDataSource(filter.RasterOverlay).WithYears(2011))
	st := c.Status()
	if !errors.Is(st.Err, ErrUnsupportedYear) || !c.Unsupported() || st.URL != "" {
		t.Fatalf("status = %+v", st)
	}
	if c.Overlay().Visible() {
		t.Fatal("overlay visible for an unsupported year")
	}
}

func TestControllerImageErrorDiagnoses(t *testing.T) {
	s, c := newController(t)
	var asked []string
	c.Diagnose = func(u string) { asked = append(asked, u) }
	c.Apply(filter.Default().WithDataSource(filter.RasterOverlay))
	u := c.Overlay().URL()

	if err := s.ReportImage(c.Overlay().ID(), false); err != nil {
		t.Fatal(err)
	}
	st := c.Status()
	if st.Image != ImageError || !errors.Is(st.Err, ErrImageLoad) {
		t.Fatalf("status after error = %+v", st)
	}
	if len(asked) != 1 || asked[0] != u {
		t.Fatalf("Diagnose calls = %v", asked)
	}
	c.SetDiagnosis(Diagnosis{URL: u, Status: 401, Body: "invalid key"})
	if d := c.Status().Diagnosis; d == nil || d.Status != 401 {
		t.Fatalf("diagnosis = %+v", d)
	}
	c.SetDiagnosis(Diagnosis{URL: "stale", Status: 500})
	if c.Status().Diagnosis.Status != 401 {
		t.Fatal("stale diagnosis replaced the current one")
	}

	if err := s.ReportImage(c.Overlay().ID(), true); err != nil {
		t.Fatal(err)
	}
	if st := c.Status(); st.Image != ImageLoaded || st.Err != nil || st.Diagnosis != nil {
		t.Fatalf("status after load = %+v", st)
	}
}

func TestControllerClose(t *testing.T) {
	s, c := newController(t)
	c.Apply(filter.Default().WithDataSource(filter.Both))
	c.Close()
	if _, _, _, _, overlays := s.Counts(); overlays != 0 {
		t.Fatalf("overlays left = %d", overlays)
	}
	if s.Listeners(surface.EventIdle) != 0 {
		t.Fatal("listener left after Close")
	}
}

func TestProberExcerpt(t *testing.T) {
	body := strings.Repeat("가", 600)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml; charset=utf-8")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	p := &Prober{Client: srv.Client()}
	d := p.Probe(context.Background(), srv.URL+"/wms?authKey=x")
	if d.Status != http.StatusForbidden || !strings.HasPrefix(d.ContentType, "text/xml") {
		t.Fatalf("diagnosis = %+v", d)
	}
	if got := len([]rune(d.Body)); got != DiagnosisBodyRunes {
		t.Fatalf("excerpt = %d runes, want %d", got, DiagnosisBodyRunes)
	}
}

func TestProberTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	u := srv.URL
	srv.Close()
	d := (&Prober{}).Probe(context.Background(), u)
	if d.Err == "" || d.Status != 0 {
		t.Fatalf("diagnosis = %+v", d)
	}
}

type memClaims struct {
	mu   sync.Mutex
	keys map[string]time.Time
}

func (m *memClaims) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys == nil {
		m.keys = map[string]time.Time{}
	}
	if exp, ok := m.keys[key]; ok && time.Now().Before(exp) {
		return false, nil
	}
	m.keys[key] = time.Now().Add(ttl)
	return true, nil
}

func (m *memClaims) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

func TestProberSuppressesRepeats(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := &Prober{Client: srv.Client(), Claims: &memClaims{}, DedupeWindow: time.Minute}
	if d := p.Probe(context.Background(), srv.URL); d.Status != http.StatusBadGateway {
		t.Fatalf("first probe = %+v", d)
	}
	d := p.Probe(context.Background(), srv.URL)
	if d.Status != 0 || !strings.Contains(d.Err, "suppressed") {
		t.Fatalf("second probe = %+v", d)
	}
	if hits.Load() != 1 {
		t.Fatalf("server hits = %d, want 1", hits.Load())
	}
}

func TestProberRetriesAfterTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	u := srv.URL
	srv.Close()

	p := &Prober{Claims: &memClaims{}, DedupeWindow: time.Minute}
	for i := 0; i < 2; i++ {
		d := p.Probe(context.Background(), u)
		if d.Err == "" || strings.Contains(d.Err, "suppressed") {
			t.Fatalf("probe %d = %+v", i, d)
		}
	}
}

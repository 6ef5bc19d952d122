package record

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
)

func decode(t *testing.T, s string) []Raw {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var out []Raw
	if err := dec.Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

// TestNormalizeCoordinateFields checks that every source naming ends up under the
// canonical latitude/longitude pair.
func TestNormalizeCoordinateFields(t *testing.T) {
	src := Sources{
		Hotspots: decode(t, `[{"accident_id": 2025076, "spot_name": "A", "latitude": 37.5, "longitude": 127.0}]`),
		Medical:  decode(t, `[{"name": "B", "lat": 37.6, "lng": 127.1}]`),
		Markets:  decode(t, `[{"name": "C", "lat": "35.1", "lng": "129.0"}]`),
		Welfare: decode(t, `[{"name": "D", "lat": 36.1, "lon": 128.2},
			{"name": "E", "lat": 36.2, "lng": 128.3}]`),
	}
	recs := Normalize(src)
	if len(recs) != 5 {
		t.Fatalf("len = %d, want 5", len(recs))
	}
	tests := []struct {
		cat      Category
		lat, lng float64
	}{
		{HotspotArea, 37.5, 127.0},
		{Medical, 37.6, 127.1},
		{Market, 35.1, 129.0},
		{Welfare, 36.1, 128.2},
		{Welfare, 36.2, 128.3},
	}
	for i, tc := range tests {
		r := recs[i]
		if r.Category != tc.cat {
			t.Errorf("recs[%d].Category = %v, want %v", i, r.Category, tc.cat)
		}
		p, ok := r.Position()
		if !ok {
			t.Errorf("recs[%d] has no position", i)
			continue
		}
		if p.Lat != tc.lat || p.Lng != tc.lng {
			t.Errorf("recs[%d] = %v, want (%v,%v)", i, p, tc.lat, tc.lng)
		}
	}
}

func TestNormalizeKeepsRecordsWithoutCoordinates(t *testing.T) {
	src := Sources{Medical: decode(t, `[{"name": "no coords"}, {"name": "zero", "lat": 0, "lng": 0}]`)}
	recs := Normalize(src)
	if len(recs) != 2 {
		t.Fatalf("len = %d, want 2 (records must pass through)", len(recs))
	}
	for i, r := range recs {
		if _, ok := r.Position(); ok {
			t.Errorf("recs[%d].Position() ok, want missing", i)
		}
	}
}

func TestPositionRejectsNonFinite(t *testing.T) {
	nan := math.NaN()
	lng := 127.0
	r := Record{Category: Medical, Latitude: &nan, Longitude: &lng}
	if _, ok := r.Position(); ok {
		t.Fatal("NaN latitude accepted")
	}
	lat := 95.0
	r.Latitude = &lat
	if _, ok := r.Position(); ok {
		t.Fatal("out of range latitude accepted")
	}
}

func TestYearKey(t *testing.T) {
	tests := []struct {
		id     any
		want   int
		wantOK bool
	}{
		{json.Number("2025076"), 2024, true},
		{float64(2013098), 2012, true},
		{"2019036", 2018, true},
		{"20", 0, false},
		{nil, 0, false},
		{"abcd123", 0, false},
	}
	for _, tc := range tests {
		got, ok := YearKey(tc.id)
		if got != tc.want || ok != tc.wantOK {
			t.Errorf("YearKey(%v) = %d,%v want %d,%v", tc.id, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestNormalizeHotspotPolygonAndYear(t *testing.T) {
	src := Sources{Hotspots: decode(t, `[{
		"accident_id": 2024044, "spot_name": "Spot", "latitude": 37.5, "longitude": 127.0,
		"accident_count": 5, "casualties": 6, "deaths": 1, "serious_injuries": 2,
		"polygon": {"type": "Polygon", "coordinates": [[[127.0, 37.5], [127.1, 37.5], [127.1, 37.6], [127.0, 37.5]]]}
	}]`)}
	recs := Normalize(src)
	r := recs[0]
	if !r.HasYear || r.YearKey != 2023 {
		t.Fatalf("YearKey = %d (has=%v), want 2023", r.YearKey, r.HasYear)
	}
	if len(r.Polygon) != 4 {
		t.Fatalf("polygon vertices = %d, want 4", len(r.Polygon))
	}
	if r.Polygon[1][0] != 127.1 || r.Polygon[1][1] != 37.5 {
		t.Errorf("vertex order not (lng, lat): %v", r.Polygon[1])
	}
	if n, ok := r.Int("deaths"); !ok || n != 1 {
		t.Errorf("Int(deaths) = %d,%v", n, ok)
	}
}

func TestOnlyHotspotsCarryPolygonOrYear(t *testing.T) {
	src := Sources{Medical: decode(t, `[{"name": "M", "lat": 37, "lng": 127, "accident_id": 2025076,
		"polygon": {"type": "Polygon", "coordinates": [[[127.0, 37.5], [127.1, 37.5], [127.0, 37.5]]]}}]`)}
	r := Normalize(src)[0]
	if r.HasYear || r.Polygon != nil {
		t.Fatalf("medical record carries hotspot-only fields: %+v", r)
	}
}

func TestNormalizeBadPolygonKeepsRecord(t *testing.T) {
	src := Sources{Hotspots: decode(t, `[{"accident_id": 2025076, "latitude": 37.5, "longitude": 127.0, "polygon": {"type": "Bogus"}}]`)}
	recs := Normalize(src)
	if len(recs) != 1 || recs[0].Polygon != nil {
		t.Fatalf("got %+v", recs)
	}
}

func TestCategoryJSON(t *testing.T) {
	b, err := json.Marshal(Welfare)
	if err != nil || string(b) != `"welfare"` {
		t.Fatalf("Marshal = %s, %v", b, err)
	}
	var c Category
	if err := json.Unmarshal([]byte(`"elderly"`), &c); err != nil || c != HotspotArea {
		t.Fatalf("Unmarshal = %v, %v", c, err)
	}
}
